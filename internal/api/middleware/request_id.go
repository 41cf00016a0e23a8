package middleware

import (
	"github.com/gin-gonic/gin"

	"github.com/hudsor01/tenant-flow-sub014/pkg/telemetry/correlation"
)

const requestIDHeader = "X-Request-ID"

// RequestID assigns each request a correlation ID, honoring one supplied
// by the caller. The ID rides the request context into the pipeline and
// onto every job enqueued for the delivery.
func RequestID() gin.HandlerFunc {
	return func(c *gin.Context) {
		id := c.GetHeader(requestIDHeader)
		ctx := c.Request.Context()
		if id != "" {
			ctx = correlation.WithCorrelationID(ctx, id)
		} else {
			ctx, id = correlation.Ensure(ctx)
		}

		c.Request = c.Request.WithContext(ctx)
		c.Set("request_id", id)
		c.Writer.Header().Set(requestIDHeader, id)
		c.Next()
	}
}
