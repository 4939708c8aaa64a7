package middleware

import (
	"time"

	"github.com/gin-gonic/gin"

	"github.com/cleancoindev/zaidan-dealer-client/internal/pkg/metrics"
)

// MetricsMiddleware observes latency per route template so tx ids do not become labels.
func MetricsMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		route := c.FullPath()
		if route == "" {
			route = "unmatched"
		}
		metrics.LatencyBucket.WithLabelValues(route).Observe(time.Since(start).Seconds())
	}
}
