package middleware

import (
	"time"

	"github.com/SergeiKhy/site-analytics/internal/observability"
	"github.com/gin-gonic/gin"
)

// RequestMetrics длительность запросов по шаблону маршрута
func RequestMetrics(m *observability.Metrics) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		m.ObserveRequest(c.Request.Method, c.FullPath(), c.Writer.Status(), time.Since(start))
	}
}
