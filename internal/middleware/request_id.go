package middleware

import (
	"github.com/gin-gonic/gin"

	"rdportal/client/internal/ids"
)

const requestIDHeader = "X-Request-Id"

// RequestID honors an inbound correlation id (the API client sends one on
// every call) and generates one otherwise.
func RequestID() gin.HandlerFunc {
	return func(c *gin.Context) {
		requestID := c.GetHeader(requestIDHeader)
		if requestID == "" {
			requestID = ids.Request()
		}

		c.Set(requestIDHeader, requestID)
		c.Writer.Header().Set(requestIDHeader, requestID)

		c.Next()
	}
}
