package metrics

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestMethodLabel(t *testing.T) {
	tests := []struct {
		method   string
		expected string
	}{
		{method: http.MethodPost, expected: "POST"},
		{method: http.MethodGet, expected: "GET"},
		{method: "PROPFIND", expected: "OTHER"},
		{method: "", expected: "OTHER"},
	}

	for _, tt := range tests {
		if got := MethodLabel(tt.method); got != tt.expected {
			t.Errorf("MethodLabel(%q) = %q, want %q", tt.method, got, tt.expected)
		}
	}
}

func TestHTTPMetricsRecordsRoutePattern(t *testing.T) {
	gin.SetMode(gin.TestMode)

	router := gin.New()
	router.Use(HTTPMetrics("/metrics"))
	router.GET("/items/:id", func(c *gin.Context) { c.String(http.StatusOK, "ok") })
	router.GET("/metrics", func(c *gin.Context) { c.String(http.StatusOK, "scrape") })

	before := testutil.ToFloat64(HTTPRequestsTotal.WithLabelValues("GET", "/items/:id", "200"))
	scrapesBefore := testutil.ToFloat64(HTTPRequestsTotal.WithLabelValues("GET", "/metrics", "200"))

	for _, path := range []string{"/items/1", "/items/2", "/metrics"} {
		w := httptest.NewRecorder()
		router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, path, nil))
		if w.Code != http.StatusOK {
			t.Fatalf("GET %s returned %d", path, w.Code)
		}
	}

	after := testutil.ToFloat64(HTTPRequestsTotal.WithLabelValues("GET", "/items/:id", "200"))
	if after-before != 2 {
		t.Errorf("expected 2 requests recorded under the route pattern, got %v", after-before)
	}
	scrapesAfter := testutil.ToFloat64(HTTPRequestsTotal.WithLabelValues("GET", "/metrics", "200"))
	if scrapesAfter != scrapesBefore {
		t.Errorf("metrics scrapes should not be recorded, got %v new", scrapesAfter-scrapesBefore)
	}
}
