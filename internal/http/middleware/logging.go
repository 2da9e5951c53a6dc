// README: Request logging and latency metrics.
package middleware

import (
	"strconv"
	"time"

	"github.com/gin-gonic/gin"

	"bagdrop/internal/logger"
	"bagdrop/internal/metrics"
)

// Logging writes one line per request.
func Logging(log logger.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		status := c.Writer.Status()
		kv := []interface{}{
			"method", c.Request.Method,
			"path", c.Request.URL.Path,
			"status", status,
			"latency_ms", time.Since(start).Milliseconds(),
		}
		if uid := CallerUID(c); uid != "" {
			kv = append(kv, "uid", uid)
		}
		if status >= 500 {
			log.Error("request", kv...)
			return
		}
		log.Info("request", kv...)
	}
}

// Metrics records request latency by route template.
func Metrics(m *metrics.Metrics) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		route := c.FullPath()
		if route == "" {
			route = "unmatched"
		}
		m.ObserveRequest(c.Request.Method, route, strconv.Itoa(c.Writer.Status()), time.Since(start))
	}
}
