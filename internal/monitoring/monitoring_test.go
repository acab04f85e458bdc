package monitoring

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCounter(t *testing.T) {
	counter := NewCounter("test_total", "help", nil)
	counter.Inc()
	counter.Add(4)
	counter.Add(-1) // counters never decrease
	assert.Equal(t, float64(5), counter.Get())
}

func TestGauge(t *testing.T) {
	gauge := NewGauge("test_gauge", "help", nil)
	gauge.Set(2.5)
	gauge.Inc()
	gauge.Dec()
	assert.InDelta(t, 2.5, gauge.Get(), 1e-9)
}

func TestHistogram(t *testing.T) {
	hist := NewHistogram("test_hist", "help", nil, []float64{1, 5, 10})
	hist.Observe(0.5)
	hist.Observe(3)
	hist.Observe(20)

	assert.Equal(t, uint64(3), hist.GetCount())
	assert.InDelta(t, 23.5, hist.GetSum(), 1e-6)
	assert.InDelta(t, 23.5/3, hist.GetAverage(), 1e-6)
}

func TestCollectorGetOrCreate(t *testing.T) {
	mc := NewMetricsCollector()

	first := mc.NewCounter("dup_total", "help", map[string]string{"k": "v"})
	second := mc.NewCounter("dup_total", "help", map[string]string{"k": "v"})
	assert.Same(t, first, second, "same name and labels must return the same counter")

	other := mc.NewCounter("dup_total", "help", map[string]string{"k": "other"})
	assert.NotSame(t, first, other)
}

func TestDomainRecorders(t *testing.T) {
	mc := NewMetricsCollector()
	mc.RecordGeocodeLookup("resolved")
	mc.RecordPostCreated("looking_to_jam")
	mc.RecordLikeToggle(true)
	mc.RecordLikeToggle(false)
	mc.RecordFeedRequest(25 * time.Millisecond)
	mc.RecordMusicianSearch(10 * time.Millisecond)

	assert.Equal(t, float64(1),
		mc.NewCounter("post_likes_total", "", map[string]string{"action": "like"}).Get())
	assert.Equal(t, float64(1),
		mc.NewCounter("post_likes_total", "", map[string]string{"action": "unlike"}).Get())
	assert.Equal(t, float64(1),
		mc.NewCounter("location_cache_lookups_total", "", map[string]string{"outcome": "resolved"}).Get())
	assert.Equal(t, float64(1), mc.NewCounter("feed_requests_total", "", nil).Get())
}

func TestPrometheusHandlerOutput(t *testing.T) {
	gin.SetMode(gin.TestMode)
	mc := NewMetricsCollector()
	mc.RecordHTTPRequest("GET", "200", 30*time.Millisecond)

	router := gin.New()
	router.GET("/metrics", mc.PrometheusHandler())

	recorder := httptest.NewRecorder()
	router.ServeHTTP(recorder, httptest.NewRequest(http.MethodGet, "/metrics", nil))

	require.Equal(t, http.StatusOK, recorder.Code)
	body := recorder.Body.String()
	assert.Contains(t, body, "# TYPE http_requests_total counter")
	assert.Contains(t, body, `method="GET"`)
	assert.Contains(t, body, "go_goroutines")
}

func TestHealthCheckerOverallStatus(t *testing.T) {
	hc := NewHealthChecker("bandmate", "test")
	hc.RegisterCustomCheck("ok", func() ComponentHealth {
		return ComponentHealth{Status: HealthStatusHealthy, LastChecked: time.Now()}
	})

	health := hc.GetHealth()
	assert.Equal(t, HealthStatusHealthy, health.Status)
	assert.Equal(t, "bandmate", health.Service)
	assert.Contains(t, health.Components, "ok")

	hc.RegisterCustomCheck("slow", func() ComponentHealth {
		return ComponentHealth{Status: HealthStatusDegraded, LastChecked: time.Now()}
	})
	hc.RunChecks()
	assert.Equal(t, HealthStatusDegraded, hc.GetHealth().Status)

	hc.RegisterCustomCheck("down", func() ComponentHealth {
		return ComponentHealth{Status: HealthStatusUnhealthy, LastChecked: time.Now()}
	})
	hc.RunChecks()
	assert.Equal(t, HealthStatusUnhealthy, hc.GetHealth().Status)
}

func TestHealthHandlerStatusCodes(t *testing.T) {
	gin.SetMode(gin.TestMode)
	hc := NewHealthChecker("bandmate", "test")
	hc.RegisterCustomCheck("down", func() ComponentHealth {
		return ComponentHealth{Status: HealthStatusUnhealthy, LastChecked: time.Now()}
	})

	router := gin.New()
	router.GET("/health", hc.HealthHandler())
	router.GET("/health/ready", hc.ReadinessHandler())
	router.GET("/health/live", hc.LivenessHandler())

	check := func(path string) int {
		recorder := httptest.NewRecorder()
		router.ServeHTTP(recorder, httptest.NewRequest(http.MethodGet, path, nil))
		return recorder.Code
	}

	assert.Equal(t, http.StatusServiceUnavailable, check("/health"))
	assert.Equal(t, http.StatusServiceUnavailable, check("/health/ready"))
	assert.Equal(t, http.StatusOK, check("/health/live"))
}
