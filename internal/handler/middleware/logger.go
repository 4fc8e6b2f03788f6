package middleware

import (
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"kairos/launch/pkg/logging"
)

const RequestIDHeader = "X-Request-ID"

// RequestLogger attaches a request-scoped logger to the request context and
// logs one line per completed request.
func RequestLogger(logger *zap.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()

		requestID := c.GetHeader(RequestIDHeader)
		if requestID == "" {
			requestID = uuid.NewString()
		}
		c.Header(RequestIDHeader, requestID)

		reqLogger := logger.With(
			zap.String("request_id", requestID),
			zap.String("method", c.Request.Method),
			zap.String("path", c.Request.URL.Path),
			zap.String("client_ip", c.ClientIP()),
		)
		c.Request = c.Request.WithContext(logging.WithLogger(c.Request.Context(), reqLogger))

		c.Next()

		fields := []zap.Field{
			zap.Int("status", c.Writer.Status()),
			zap.Duration("latency", time.Since(start)),
		}
		if len(c.Errors) > 0 {
			fields = append(fields, zap.String("errors", c.Errors.String()))
		}
		// Use the request's final logger so fields added downstream show up.
		final := logging.FromContext(c.Request.Context())
		switch status := c.Writer.Status(); {
		case status >= 500:
			final.Error("request completed", fields...)
		case status >= 400:
			final.Warn("request completed", fields...)
		default:
			final.Info("request completed", fields...)
		}
	}
}
