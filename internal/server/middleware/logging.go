package middleware

import (
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"taskflow/backend/internal/logging"
)

// AccessLog logs one line per request and puts a logger tagged with the correlation id in the
// request context. Server errors are logged at error level.
func AccessLog(log *zap.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		reqLog := log.With(zap.String("correlation_id", GetClient(c.Request.Context()).CorrelationID))
		c.Request = c.Request.WithContext(logging.WithLogger(c.Request.Context(), reqLog))
		c.Next()

		ctx := c.Request.Context()
		status := c.Writer.Status()
		fields := []zap.Field{
			zap.String("method", c.Request.Method),
			zap.String("path", c.Request.URL.Path),
			zap.Int("status", status),
			zap.Duration("latency", time.Since(start)),
			zap.String("client_ip", ClientIP(ctx)),
			zap.String("correlation_id", GetClient(ctx).CorrelationID),
		}
		if userID, ok := GetUserID(ctx); ok {
			fields = append(fields, zap.String("user_id", userID))
		}
		if len(c.Errors) > 0 {
			fields = append(fields, zap.String("errors", c.Errors.String()))
		}
		if status >= 500 {
			log.Error("http request", fields...)
			return
		}
		log.Info("http request", fields...)
	}
}
