package monitoring

import (
	"fmt"
	"net/http"
	"runtime"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gin-gonic/gin"
)

// MetricType represents the type of metric
type MetricType string

const (
	MetricTypeCounter   MetricType = "counter"
	MetricTypeGauge     MetricType = "gauge"
	MetricTypeHistogram MetricType = "histogram"
)

// Metric represents a single metric
type Metric struct {
	Name      string            `json:"name"`
	Type      MetricType        `json:"type"`
	Help      string            `json:"help"`
	Labels    map[string]string `json:"labels,omitempty"`
	Value     float64           `json:"value"`
	Timestamp time.Time         `json:"timestamp"`
}

// Counter represents a counter metric
type Counter struct {
	name   string
	help   string
	labels map[string]string
	value  uint64
}

// NewCounter creates a new counter
func NewCounter(name, help string, labels map[string]string) *Counter {
	return &Counter{
		name:   name,
		help:   help,
		labels: labels,
	}
}

// Inc increments the counter by 1
func (c *Counter) Inc() {
	atomic.AddUint64(&c.value, 1)
}

// Add adds the given value to the counter
func (c *Counter) Add(value float64) {
	if value < 0 {
		return // Counters can't decrease
	}
	atomic.AddUint64(&c.value, uint64(value))
}

// Get returns the current value
func (c *Counter) Get() float64 {
	return float64(atomic.LoadUint64(&c.value))
}

// ToMetric converts to a Metric struct
func (c *Counter) ToMetric() Metric {
	return Metric{
		Name:      c.name,
		Type:      MetricTypeCounter,
		Help:      c.help,
		Labels:    c.labels,
		Value:     c.Get(),
		Timestamp: time.Now(),
	}
}

// Gauge represents a gauge metric
type Gauge struct {
	name   string
	help   string
	labels map[string]string
	value  int64 // stored with 3 decimal precision for atomic ops
}

// NewGauge creates a new gauge
func NewGauge(name, help string, labels map[string]string) *Gauge {
	return &Gauge{
		name:   name,
		help:   help,
		labels: labels,
	}
}

// Set sets the gauge to the given value
func (g *Gauge) Set(value float64) {
	atomic.StoreInt64(&g.value, int64(value*1000))
}

// Inc increments the gauge by 1
func (g *Gauge) Inc() {
	atomic.AddInt64(&g.value, 1000)
}

// Dec decrements the gauge by 1
func (g *Gauge) Dec() {
	atomic.AddInt64(&g.value, -1000)
}

// Get returns the current value
func (g *Gauge) Get() float64 {
	return float64(atomic.LoadInt64(&g.value)) / 1000
}

// ToMetric converts to a Metric struct
func (g *Gauge) ToMetric() Metric {
	return Metric{
		Name:      g.name,
		Type:      MetricTypeGauge,
		Help:      g.help,
		Labels:    g.labels,
		Value:     g.Get(),
		Timestamp: time.Now(),
	}
}

// Histogram represents a histogram metric
type Histogram struct {
	name    string
	help    string
	labels  map[string]string
	buckets []float64
	counts  []uint64
	sum     uint64
	count   uint64
}

// NewHistogram creates a new histogram
func NewHistogram(name, help string, labels map[string]string, buckets []float64) *Histogram {
	if buckets == nil {
		buckets = []float64{0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10}
	}
	return &Histogram{
		name:    name,
		help:    help,
		labels:  labels,
		buckets: buckets,
		counts:  make([]uint64, len(buckets)+1), // +1 for +Inf bucket
	}
}

// Observe adds an observation to the histogram
func (h *Histogram) Observe(value float64) {
	atomic.AddUint64(&h.count, 1)
	atomic.AddUint64(&h.sum, uint64(value*1000)) // 3 decimal precision

	for i, bucket := range h.buckets {
		if value <= bucket {
			atomic.AddUint64(&h.counts[i], 1)
			return
		}
	}
	atomic.AddUint64(&h.counts[len(h.buckets)], 1)
}

// GetCount returns the total count of observations
func (h *Histogram) GetCount() uint64 {
	return atomic.LoadUint64(&h.count)
}

// GetSum returns the sum of all observations
func (h *Histogram) GetSum() float64 {
	return float64(atomic.LoadUint64(&h.sum)) / 1000
}

// GetAverage calculates the average value
func (h *Histogram) GetAverage() float64 {
	count := h.GetCount()
	if count == 0 {
		return 0
	}
	return h.GetSum() / float64(count)
}

// GetPercentile calculates the percentile value
func (h *Histogram) GetPercentile(percentile float64) float64 {
	if h.GetCount() == 0 {
		return 0
	}

	target := float64(h.GetCount()) * percentile / 100.0
	var cumulative uint64

	for i, bucket := range h.buckets {
		cumulative += atomic.LoadUint64(&h.counts[i])
		if float64(cumulative) >= target {
			return bucket
		}
	}
	return 0
}

// ToMetric converts to a Metric struct
func (h *Histogram) ToMetric() Metric {
	labels := make(map[string]string)
	for k, v := range h.labels {
		labels[k] = v
	}
	labels["count"] = fmt.Sprintf("%d", h.GetCount())
	labels["average"] = fmt.Sprintf("%.2f", h.GetAverage())
	labels["p95"] = fmt.Sprintf("%.2f", h.GetPercentile(95))
	labels["p99"] = fmt.Sprintf("%.2f", h.GetPercentile(99))

	return Metric{
		Name:      h.name,
		Type:      MetricTypeHistogram,
		Help:      h.help,
		Labels:    labels,
		Value:     float64(h.GetCount()),
		Timestamp: time.Now(),
	}
}

// MetricsCollector manages all metrics
type MetricsCollector struct {
	mu         sync.RWMutex
	counters   map[string]*Counter
	gauges     map[string]*Gauge
	histograms map[string]*Histogram
	startTime  time.Time
}

// NewMetricsCollector creates a new metrics collector
func NewMetricsCollector() *MetricsCollector {
	mc := &MetricsCollector{
		counters:   make(map[string]*Counter),
		gauges:     make(map[string]*Gauge),
		histograms: make(map[string]*Histogram),
		startTime:  time.Now(),
	}

	mc.registerSystemMetrics()
	return mc
}

func (mc *MetricsCollector) registerSystemMetrics() {
	mc.NewGauge("go_memstats_alloc_bytes", "Number of bytes allocated and still in use", nil)
	mc.NewGauge("go_memstats_sys_bytes", "Number of bytes obtained from system", nil)
	mc.NewGauge("go_goroutines", "Number of goroutines that currently exist", nil)

	mc.NewCounter("http_requests_total", "Total number of HTTP requests", nil)
	mc.NewHistogram("http_request_duration_seconds", "HTTP request duration in seconds", nil, nil)

	mc.NewCounter("location_cache_lookups_total", "Total number of location cache lookups", nil)

	mc.NewCounter("posts_created_total", "Total number of posts created", nil)
	mc.NewCounter("post_likes_total", "Total number of like toggles", nil)
	mc.NewCounter("feed_requests_total", "Total number of proximity feed requests", nil)
	mc.NewCounter("musician_searches_total", "Total number of musician searches", nil)
}

// NewCounter creates or gets a counter
func (mc *MetricsCollector) NewCounter(name, help string, labels map[string]string) *Counter {
	mc.mu.Lock()
	defer mc.mu.Unlock()

	key := metricKey(name, labels)
	if counter, exists := mc.counters[key]; exists {
		return counter
	}

	counter := NewCounter(name, help, labels)
	mc.counters[key] = counter
	return counter
}

// NewGauge creates or gets a gauge
func (mc *MetricsCollector) NewGauge(name, help string, labels map[string]string) *Gauge {
	mc.mu.Lock()
	defer mc.mu.Unlock()

	key := metricKey(name, labels)
	if gauge, exists := mc.gauges[key]; exists {
		return gauge
	}

	gauge := NewGauge(name, help, labels)
	mc.gauges[key] = gauge
	return gauge
}

// NewHistogram creates or gets a histogram
func (mc *MetricsCollector) NewHistogram(name, help string, labels map[string]string, buckets []float64) *Histogram {
	mc.mu.Lock()
	defer mc.mu.Unlock()

	key := metricKey(name, labels)
	if histogram, exists := mc.histograms[key]; exists {
		return histogram
	}

	histogram := NewHistogram(name, help, labels, buckets)
	mc.histograms[key] = histogram
	return histogram
}

func metricKey(name string, labels map[string]string) string {
	key := name
	for k, v := range labels {
		key += fmt.Sprintf("_%s_%s", k, v)
	}
	return key
}

// UpdateSystemMetrics updates system-level metrics
func (mc *MetricsCollector) UpdateSystemMetrics() {
	var memStats runtime.MemStats
	runtime.ReadMemStats(&memStats)

	mc.NewGauge("go_memstats_alloc_bytes", "Number of bytes allocated and still in use", nil).Set(float64(memStats.Alloc))
	mc.NewGauge("go_memstats_sys_bytes", "Number of bytes obtained from system", nil).Set(float64(memStats.Sys))
	mc.NewGauge("go_goroutines", "Number of goroutines that currently exist", nil).Set(float64(runtime.NumGoroutine()))
}

// GetAllMetrics returns all metrics
func (mc *MetricsCollector) GetAllMetrics() []Metric {
	mc.UpdateSystemMetrics()

	mc.mu.RLock()
	defer mc.mu.RUnlock()

	var metrics []Metric
	for _, counter := range mc.counters {
		metrics = append(metrics, counter.ToMetric())
	}
	for _, gauge := range mc.gauges {
		metrics = append(metrics, gauge.ToMetric())
	}
	for _, histogram := range mc.histograms {
		metrics = append(metrics, histogram.ToMetric())
	}
	return metrics
}

// RecordHTTPRequest records HTTP request metrics
func (mc *MetricsCollector) RecordHTTPRequest(method, status string, duration time.Duration) {
	labels := map[string]string{"method": method, "status": status}
	mc.NewCounter("http_requests_total", "Total number of HTTP requests", labels).Inc()
	mc.NewHistogram("http_request_duration_seconds", "HTTP request duration in seconds", labels, nil).Observe(duration.Seconds())
}

// RecordGeocodeLookup records a location resolution and its outcome,
// either "resolved" or the failing error type.
func (mc *MetricsCollector) RecordGeocodeLookup(outcome string) {
	labels := map[string]string{"outcome": outcome}
	mc.NewCounter("location_cache_lookups_total", "Total number of location cache lookups", labels).Inc()
}

// RecordPostCreated records a post creation event
func (mc *MetricsCollector) RecordPostCreated(postType string) {
	labels := map[string]string{"type": postType}
	mc.NewCounter("posts_created_total", "Total number of posts created", labels).Inc()
}

// RecordLikeToggle records a like toggle event
func (mc *MetricsCollector) RecordLikeToggle(liked bool) {
	action := "unlike"
	if liked {
		action = "like"
	}
	labels := map[string]string{"action": action}
	mc.NewCounter("post_likes_total", "Total number of like toggles", labels).Inc()
}

// RecordFeedRequest records a proximity feed request
func (mc *MetricsCollector) RecordFeedRequest(duration time.Duration) {
	mc.NewCounter("feed_requests_total", "Total number of proximity feed requests", nil).Inc()
	mc.NewHistogram("feed_request_duration_seconds", "Proximity feed duration in seconds", nil, nil).Observe(duration.Seconds())
}

// RecordMusicianSearch records a musician search
func (mc *MetricsCollector) RecordMusicianSearch(duration time.Duration) {
	mc.NewCounter("musician_searches_total", "Total number of musician searches", nil).Inc()
	mc.NewHistogram("musician_search_duration_seconds", "Musician search duration in seconds", nil, nil).Observe(duration.Seconds())
}

// RecordError records an error by type and component
func (mc *MetricsCollector) RecordError(component, errorType string) {
	labels := map[string]string{"component": component, "type": errorType}
	mc.NewCounter("errors_total", "Total number of errors", labels).Inc()
}

// GetMetricsSummary returns a summary of all metrics
func (mc *MetricsCollector) GetMetricsSummary() map[string]interface{} {
	metrics := mc.GetAllMetrics()

	mc.mu.RLock()
	byType := map[string]int{
		"counters":   len(mc.counters),
		"gauges":     len(mc.gauges),
		"histograms": len(mc.histograms),
	}
	mc.mu.RUnlock()

	return map[string]interface{}{
		"timestamp":       time.Now(),
		"uptime":          time.Since(mc.startTime).String(),
		"total_metrics":   len(metrics),
		"metrics_by_type": byType,
		"metrics":         metrics,
	}
}

// PrometheusHandler returns a handler that exports metrics in Prometheus format
func (mc *MetricsCollector) PrometheusHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		metrics := mc.GetAllMetrics()

		c.Header("Content-Type", "text/plain; version=0.0.4; charset=utf-8")

		for _, metric := range metrics {
			c.Writer.WriteString(fmt.Sprintf("# HELP %s %s\n", metric.Name, metric.Help))
			c.Writer.WriteString(fmt.Sprintf("# TYPE %s %s\n", metric.Name, metric.Type))

			labelStr := ""
			if len(metric.Labels) > 0 {
				labelPairs := make([]string, 0, len(metric.Labels))
				for k, v := range metric.Labels {
					labelPairs = append(labelPairs, fmt.Sprintf(`%s="%s"`, k, v))
				}
				labelStr = "{" + strings.Join(labelPairs, ",") + "}"
			}

			c.Writer.WriteString(fmt.Sprintf("%s%s %g %d\n", metric.Name, labelStr, metric.Value, metric.Timestamp.UnixMilli()))
		}
	}
}

// JSONHandler returns a handler that exports metrics in JSON format
func (mc *MetricsCollector) JSONHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.JSON(http.StatusOK, mc.GetMetricsSummary())
	}
}
