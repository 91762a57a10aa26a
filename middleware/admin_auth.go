package middleware

import (
	"crypto/subtle"
	"net/http"

	"sessionledger/config"

	"github.com/gin-gonic/gin"
)

// AdminAuthMiddleware guards the back-office endpoints with a static API
// key. An empty configured key disables the endpoints entirely.
func AdminAuthMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		expected := config.AppConfig.AdminAPIKey
		provided := c.GetHeader("X-Admin-Key")
		if expected == "" || subtle.ConstantTimeCompare([]byte(provided), []byte(expected)) != 1 {
			c.AbortWithStatusJSON(http.StatusForbidden, gin.H{"error": "admin access denied"})
			return
		}
		c.Next()
	}
}
