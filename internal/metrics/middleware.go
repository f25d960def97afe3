package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
)

// knownMethods bounds the method label. /api/chat answers every verb (with 405),
// so arbitrary client-chosen methods must not become label values.
var knownMethods = map[string]bool{
	http.MethodGet:     true,
	http.MethodHead:    true,
	http.MethodPost:    true,
	http.MethodPut:     true,
	http.MethodPatch:   true,
	http.MethodDelete:  true,
	http.MethodOptions: true,
}

// HTTPMetrics is Gin middleware that records request count and latency by
// method, route pattern and status code. Scrapes of the metrics route itself are skipped.
func HTTPMetrics(skipPaths ...string) gin.HandlerFunc {
	skip := make(map[string]bool, len(skipPaths))
	for _, p := range skipPaths {
		skip[p] = true
	}

	return func(c *gin.Context) {
		path := c.FullPath() // route pattern, not raw path
		if skip[path] {
			c.Next()
			return
		}
		if path == "" {
			path = "unknown"
		}
		method := MethodLabel(c.Request.Method)
		start := time.Now()

		c.Next()

		status := strconv.Itoa(c.Writer.Status())
		HTTPRequestsTotal.WithLabelValues(method, path, status).Inc()
		HTTPRequestDuration.WithLabelValues(method, path).Observe(time.Since(start).Seconds())
	}
}

// MethodLabel collapses non-standard HTTP methods to "OTHER".
func MethodLabel(method string) string {
	if knownMethods[method] {
		return method
	}
	return "OTHER"
}
