package middlewares

import (
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

// Logger logs the start and the end of every request.
func Logger() gin.HandlerFunc {
	log := zap.S().Named("http")

	return func(c *gin.Context) {
		start := time.Now()
		fields := []any{
			"method", c.Request.Method,
			"path", c.Request.URL.Path,
			"query", c.Request.URL.RawQuery,
			"ip", c.ClientIP(),
			"user_agent", c.Request.UserAgent(),
		}
		log.Debugw("request started", fields...)

		c.Next()

		fields = append(fields, "status", c.Writer.Status(), "latency", time.Since(start))
		if len(c.Errors) > 0 {
			log.Errorw("request failed", append(fields, "errors", c.Errors.String())...)
			return
		}
		log.Infow("request completed", fields...)
	}
}
