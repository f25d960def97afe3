package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/codyseavey/kaiwa/internal/middleware"
)

// RegisterRoutes mounts the public and admin API on router.
func RegisterRoutes(router *gin.Engine, chat *ChatHandler, admin *AdminHandler, adminKey string) {
	router.GET("/healthz", func(c *gin.Context) {
		c.String(http.StatusOK, "ok")
	})

	api := router.Group("/api")
	api.Any("/chat", chat.Chat)

	adminGroup := api.Group("/admin")
	adminGroup.GET("/status", middleware.GetAuthStatus(adminKey))
	adminGroup.POST("/verify", middleware.VerifyAdminKey(adminKey))

	protected := adminGroup.Group("", middleware.AdminKeyAuth(adminKey))
	protected.GET("/limits", admin.GetLimits)
	protected.GET("/cache", admin.GetCacheStats)
	protected.POST("/cache/prune", admin.PruneCache)
}
