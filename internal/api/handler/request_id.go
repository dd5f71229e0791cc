package handler

import "github.com/gin-gonic/gin"

// RequestIDKey is the gin context key holding the request id
const RequestIDKey = "request_id"

// RequestID returns the id set by the request id middleware, or ""
func RequestID(c *gin.Context) string {
	return c.GetString(RequestIDKey)
}
