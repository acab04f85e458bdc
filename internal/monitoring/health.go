package monitoring

import (
	"context"
	"database/sql"
	"fmt"
	"net/http"
	"runtime"
	"sync"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/bandmate/bandmate/internal/cache"
)

// HealthStatus represents the overall health status
type HealthStatus string

const (
	HealthStatusHealthy   HealthStatus = "healthy"
	HealthStatusDegraded  HealthStatus = "degraded"
	HealthStatusUnhealthy HealthStatus = "unhealthy"
)

// ComponentHealth represents the health of a single component
type ComponentHealth struct {
	Status      HealthStatus `json:"status"`
	Message     string       `json:"message,omitempty"`
	Latency     *int64       `json:"latency_ms,omitempty"`
	LastChecked time.Time    `json:"last_checked"`
	Details     interface{}  `json:"details,omitempty"`
}

// HealthResponse represents the complete health check response
type HealthResponse struct {
	Status     HealthStatus               `json:"status"`
	Service    string                     `json:"service"`
	Version    string                     `json:"version"`
	Timestamp  time.Time                  `json:"timestamp"`
	Uptime     time.Duration              `json:"uptime"`
	Components map[string]ComponentHealth `json:"components"`
	System     SystemInfo                 `json:"system"`
}

// SystemInfo represents system-level information
type SystemInfo struct {
	MemoryUsage MemoryInfo `json:"memory"`
	Goroutines  int        `json:"goroutines"`
	CPUCount    int        `json:"cpu_count"`
	GoVersion   string     `json:"go_version"`
}

// MemoryInfo represents memory usage information
type MemoryInfo struct {
	Allocated     uint64  `json:"allocated_bytes"`
	TotalAlloc    uint64  `json:"total_alloc_bytes"`
	Sys           uint64  `json:"sys_bytes"`
	NumGC         uint32  `json:"num_gc"`
	GCCPUFraction float64 `json:"gc_cpu_fraction"`
}

// HealthChecker manages health checks for various components
type HealthChecker struct {
	mu            sync.RWMutex
	startTime     time.Time
	service       string
	version       string
	components    map[string]ComponentHealth
	checkFuncs    map[string]func() ComponentHealth
	lastCheck     time.Time
	checkInterval time.Duration
}

// NewHealthChecker creates a new health checker
func NewHealthChecker(service, version string) *HealthChecker {
	return &HealthChecker{
		startTime:     time.Now(),
		service:       service,
		version:       version,
		components:    make(map[string]ComponentHealth),
		checkFuncs:    make(map[string]func() ComponentHealth),
		checkInterval: 30 * time.Second,
	}
}

// RegisterDatabaseCheck registers a document store health check
func (hc *HealthChecker) RegisterDatabaseCheck(name string, db *sql.DB) {
	hc.mu.Lock()
	defer hc.mu.Unlock()

	hc.checkFuncs[name] = func() ComponentHealth {
		start := time.Now()
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()

		err := db.PingContext(ctx)
		latency := time.Since(start).Milliseconds()

		if err != nil {
			return ComponentHealth{
				Status:      HealthStatusUnhealthy,
				Message:     fmt.Sprintf("Database connection failed: %v", err),
				Latency:     &latency,
				LastChecked: time.Now(),
			}
		}

		stats := db.Stats()
		details := map[string]interface{}{
			"open_connections": stats.OpenConnections,
			"in_use":           stats.InUse,
			"idle":             stats.Idle,
			"wait_count":       stats.WaitCount,
			"wait_duration":    stats.WaitDuration.String(),
		}

		status := HealthStatusHealthy
		if latency > 1000 { // More than 1 second
			status = HealthStatusDegraded
		}

		return ComponentHealth{
			Status:      status,
			Message:     "Database connection successful",
			Latency:     &latency,
			LastChecked: time.Now(),
			Details:     details,
		}
	}
}

// RegisterRedisCheck registers a Redis health check
func (hc *HealthChecker) RegisterRedisCheck(name string, redis *cache.RedisService) {
	hc.mu.Lock()
	defer hc.mu.Unlock()

	hc.checkFuncs[name] = func() ComponentHealth {
		start := time.Now()
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()

		isHealthy := redis.HealthCheck(ctx)
		latency := time.Since(start).Milliseconds()

		if !isHealthy {
			return ComponentHealth{
				Status:      HealthStatusUnhealthy,
				Message:     "Redis connection failed",
				Latency:     &latency,
				LastChecked: time.Now(),
			}
		}

		stats := redis.GetStats()
		details := map[string]interface{}{
			"cache_stats": stats,
			"hit_rate":    stats.HitRate(),
		}

		status := HealthStatusHealthy
		if latency > 500 { // More than 500ms
			status = HealthStatusDegraded
		}

		return ComponentHealth{
			Status:      status,
			Message:     "Redis connection successful",
			Latency:     &latency,
			LastChecked: time.Now(),
			Details:     details,
		}
	}
}

// RegisterCustomCheck registers a custom health check function
func (hc *HealthChecker) RegisterCustomCheck(name string, checkFunc func() ComponentHealth) {
	hc.mu.Lock()
	defer hc.mu.Unlock()
	hc.checkFuncs[name] = checkFunc
}

// RunChecks executes all registered health checks
func (hc *HealthChecker) RunChecks() {
	hc.mu.Lock()
	defer hc.mu.Unlock()

	for name, checkFunc := range hc.checkFuncs {
		hc.components[name] = checkFunc()
	}
	hc.lastCheck = time.Now()
}

// GetHealth returns the current health status
func (hc *HealthChecker) GetHealth() HealthResponse {
	hc.mu.RLock()
	stale := time.Since(hc.lastCheck) > hc.checkInterval
	hc.mu.RUnlock()

	if stale {
		hc.RunChecks()
	}

	hc.mu.RLock()
	defer hc.mu.RUnlock()

	overallStatus := HealthStatusHealthy
	for _, component := range hc.components {
		if component.Status == HealthStatusUnhealthy {
			overallStatus = HealthStatusUnhealthy
			break
		} else if component.Status == HealthStatusDegraded {
			overallStatus = HealthStatusDegraded
		}
	}

	var memStats runtime.MemStats
	runtime.ReadMemStats(&memStats)

	systemInfo := SystemInfo{
		MemoryUsage: MemoryInfo{
			Allocated:     memStats.Alloc,
			TotalAlloc:    memStats.TotalAlloc,
			Sys:           memStats.Sys,
			NumGC:         memStats.NumGC,
			GCCPUFraction: memStats.GCCPUFraction,
		},
		Goroutines: runtime.NumGoroutine(),
		CPUCount:   runtime.NumCPU(),
		GoVersion:  runtime.Version(),
	}

	return HealthResponse{
		Status:     overallStatus,
		Service:    hc.service,
		Version:    hc.version,
		Timestamp:  time.Now(),
		Uptime:     time.Since(hc.startTime),
		Components: hc.components,
		System:     systemInfo,
	}
}

// HealthHandler returns a Gin handler for health checks
func (hc *HealthChecker) HealthHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		health := hc.GetHealth()

		statusCode := http.StatusOK
		if health.Status == HealthStatusUnhealthy {
			statusCode = http.StatusServiceUnavailable
		}

		c.JSON(statusCode, health)
	}
}

// ReadinessHandler returns a simple readiness check
func (hc *HealthChecker) ReadinessHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		health := hc.GetHealth()

		if health.Status == HealthStatusUnhealthy {
			c.JSON(http.StatusServiceUnavailable, gin.H{
				"status":  "not ready",
				"message": "Service is unhealthy",
			})
			return
		}

		c.JSON(http.StatusOK, gin.H{
			"status":  "ready",
			"message": "Service is ready to accept traffic",
		})
	}
}

// LivenessHandler returns a simple liveness check
func (hc *HealthChecker) LivenessHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{
			"status":    "alive",
			"uptime":    time.Since(hc.startTime).String(),
			"timestamp": time.Now(),
		})
	}
}
