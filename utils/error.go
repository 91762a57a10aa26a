package utils

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

// ErrorResponse is the JSON body for errors that bypass the handler layer.
type ErrorResponse struct {
	Message string `json:"message"`
	Details string `json:"details,omitempty"`
}

// ErrorHandler recovers panics on the request path and answers with a 500
// instead of dropping the connection. Panic detail is logged, never exposed.
func ErrorHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		defer func() {
			if r := recover(); r != nil {
				GetLogger().Error("panic recovered on request path",
					zap.String("method", c.Request.Method),
					zap.String("path", c.FullPath()),
					zap.Any("panic", r))

				c.AbortWithStatusJSON(http.StatusInternalServerError, ErrorResponse{
					Message: "internal server error",
				})
			}
		}()
		c.Next()
	}
}
