package middleware

import (
	"time"

	"github.com/gin-gonic/gin"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"

	"pairnet/internal/core/domain"
	"pairnet/pkg/tracing"
)

// TracingMiddleware wraps each API request in a span. The participant
// identity is attached after the handler chain ran, since the auth
// middleware sits further down the chain.
func TracingMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		ctx, span := tracing.TraceHTTPRequest(c.Request.Context(), c.Request.Method, c.FullPath())
		defer span.End()

		span.SetAttributes(
			attribute.String("http.client_ip", c.ClientIP()),
			attribute.String("http.user_agent", c.Request.UserAgent()),
		)
		c.Request = c.Request.WithContext(ctx)

		start := time.Now()
		c.Next()

		span.SetAttributes(
			attribute.Int("http.status_code", c.Writer.Status()),
			attribute.Int64("http.duration_ms", time.Since(start).Milliseconds()),
		)
		if userID, ok := c.Get("user_id"); ok {
			if id, typed := userID.(domain.UserID); typed {
				span.SetAttributes(attribute.String("room.user_id", string(id)))
			}
		}
		if eventID, ok := c.Get("event_id"); ok {
			if id, typed := eventID.(domain.EventID); typed {
				span.SetAttributes(attribute.String("room.event_id", string(id)))
			}
		}

		if c.Writer.Status() >= 400 {
			span.SetStatus(codes.Error, c.Errors.String())
			return
		}
		span.SetStatus(codes.Ok, "")
	}
}
