package middleware

import (
	"context"
	"strings"

	"codeprep/pkg/utils/contextkey"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

const (
	TraceIDHeader   = "X-Trace-Id"
	RequestIDHeader = "X-Request-Id"
)

// Correlation stamps every request with a trace id and a request id, reusing
// inbound headers when present. Both ids are echoed back, stored on the gin
// context for the response envelope, and placed on the request context so the
// logger picks them up.
func Correlation() gin.HandlerFunc {
	return func(c *gin.Context) {
		ctx := c.Request.Context()
		for _, id := range []struct {
			header string
			key    contextkey.Key
		}{
			{TraceIDHeader, contextkey.TraceID},
			{RequestIDHeader, contextkey.RequestID},
		} {
			value := strings.TrimSpace(c.GetHeader(id.header))
			if value == "" {
				value = uuid.NewString()
			}
			c.Set(string(id.key), value)
			c.Header(id.header, value)
			ctx = context.WithValue(ctx, id.key, value)
		}
		c.Request = c.Request.WithContext(ctx)
		c.Next()
	}
}
