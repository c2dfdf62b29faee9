package middleware

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"snapfeed/internal/config"
	"snapfeed/internal/security"
)

const OwnerIDKey = "owner_id"

// Auth verifies the bearer token and places the verified owner id into the
// request context. The pipeline trusts this identity and does not re-verify.
func Auth(cfg *config.AppConfig) gin.HandlerFunc {
	return func(c *gin.Context) {
		authHeader := c.GetHeader("Authorization")
		if authHeader == "" || !strings.HasPrefix(authHeader, "Bearer ") {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "missing_token"})
			return
		}

		tokenStr := strings.TrimPrefix(authHeader, "Bearer ")

		claims, err := security.ParseAccessToken(tokenStr, cfg.Security.JWTAccessSecret)
		if err != nil {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "invalid_token"})
			return
		}

		c.Set(OwnerIDKey, claims.UserID)
		c.Next()
	}
}

// OwnerID returns the verified identity set by Auth.
func OwnerID(c *gin.Context) (string, bool) {
	val, exists := c.Get(OwnerIDKey)
	if !exists {
		return "", false
	}
	id, ok := val.(string)
	return id, ok && id != ""
}
