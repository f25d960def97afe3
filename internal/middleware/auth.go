package middleware

import (
	"crypto/subtle"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
)

// authFailure describes why a presented admin key was rejected.
type authFailure struct {
	message string
	code    string
}

// checkAdminKey validates the "Bearer <key>" Authorization header against key.
// It returns nil when the header carries the key.
func checkAdminKey(c *gin.Context, key string) *authFailure {
	authHeader := c.GetHeader("Authorization")
	if authHeader == "" {
		return &authFailure{"Authorization header required", "AUTH_REQUIRED"}
	}

	parts := strings.SplitN(authHeader, " ", 2)
	if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") {
		return &authFailure{"Invalid authorization format. Use: Bearer <admin_key>", "AUTH_INVALID_FORMAT"}
	}

	// Constant-time comparison to prevent timing attacks
	if subtle.ConstantTimeCompare([]byte(parts[1]), []byte(key)) != 1 {
		return &authFailure{"Invalid admin key", "AUTH_INVALID_KEY"}
	}
	return nil
}

// AdminKeyAuth returns middleware that requires the admin key for access.
// With an empty key every request is allowed (local development).
// The key should be provided in the Authorization header as "Bearer <key>".
func AdminKeyAuth(key string) gin.HandlerFunc {
	return func(c *gin.Context) {
		if key == "" {
			c.Next()
			return
		}

		if fail := checkAdminKey(c, key); fail != nil {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{
				"error": fail.message,
				"code":  fail.code,
			})
			return
		}

		c.Next()
	}
}

// VerifyAdminKey returns a handler that reports whether the presented admin key is valid.
// Operators use it to check a stored key before calling admin endpoints.
func VerifyAdminKey(key string) gin.HandlerFunc {
	return func(c *gin.Context) {
		if key == "" {
			c.JSON(http.StatusOK, gin.H{
				"valid":        true,
				"auth_enabled": false,
				"message":      "Authentication is not configured",
			})
			return
		}

		if fail := checkAdminKey(c, key); fail != nil {
			c.JSON(http.StatusUnauthorized, gin.H{
				"valid": false,
				"error": fail.message,
				"code":  fail.code,
			})
			return
		}

		c.JSON(http.StatusOK, gin.H{
			"valid":        true,
			"auth_enabled": true,
		})
	}
}

// GetAuthStatus returns whether admin authentication is enabled.
// This is a public endpoint that doesn't require authentication.
func GetAuthStatus(key string) gin.HandlerFunc {
	return func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{
			"auth_enabled": key != "",
		})
	}
}
