package handlers

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/codyseavey/kaiwa/internal/ratelimit"
	"github.com/codyseavey/kaiwa/internal/services"
)

type AdminHandler struct {
	limiter *ratelimit.Limiter
	cache   *services.TranslationCacheService
}

func NewAdminHandler(limiter *ratelimit.Limiter, cache *services.TranslationCacheService) *AdminHandler {
	return &AdminHandler{
		limiter: limiter,
		cache:   cache,
	}
}

// GetLimits returns the current limiter state
// GET /api/admin/limits
func (h *AdminHandler) GetLimits(c *gin.Context) {
	c.JSON(http.StatusOK, h.limiter.Snapshot(time.Now()))
}

// GetCacheStats returns translation cache statistics
// GET /api/admin/cache
func (h *AdminHandler) GetCacheStats(c *gin.Context) {
	if h.cache == nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "translation cache not available"})
		return
	}
	c.JSON(http.StatusOK, h.cache.GetStats())
}

// PruneCache deletes expired translation cache entries
// POST /api/admin/cache/prune
func (h *AdminHandler) PruneCache(c *gin.Context) {
	if h.cache == nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "translation cache not available"})
		return
	}

	removed, err := h.cache.Prune()
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"message": "Expired translations pruned",
		"removed": removed,
	})
}
