package middleware

import (
	"strconv"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/libops/library-api/internal/service"
)

// Metrics records request counts and latency per route. The route template is
// used as the label, not the raw path, to keep cardinality bounded.
func Metrics(m *service.Metrics) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		route := c.FullPath()
		if route == "" {
			route = "unmatched"
		}
		status := strconv.Itoa(c.Writer.Status())
		m.HTTPRequests.WithLabelValues(c.Request.Method, route, status).Inc()
		m.HTTPDuration.WithLabelValues(c.Request.Method, route).Observe(time.Since(start).Seconds())
	}
}
