package metrics

import (
	"fmt"
	"runtime"
	"sync"
	"time"

	"github.com/gofiber/fiber/v2"
)

// Metrics holds the process-wide counters exposed via /api/v1/metrics.
type Metrics struct {
	// Instance metrics
	TotalInstances   int64 `json:"total_instances"`
	ActiveInstances  int64 `json:"active_instances"`
	IdleInstances    int64 `json:"idle_instances"`
	ErroredInstances int64 `json:"errored_instances"`

	// Effect metrics
	TotalEffectLaunches  int64 `json:"total_effect_launches"`
	FailedEffectLaunches int64 `json:"failed_effect_launches"`

	// Scheduler metrics
	TotalWrites int64 `json:"total_writes"`
	TotalSkips  int64 `json:"total_skips"`

	// System metrics
	Uptime         int64   `json:"uptime_seconds"`
	MemoryUsed     uint64  `json:"memory_used_bytes"`
	MemoryTotal    uint64  `json:"memory_total_bytes"`
	GoroutineCount int     `json:"goroutine_count"`

	// API metrics
	TotalRequests   int64   `json:"total_requests"`
	TotalErrors     int64   `json:"total_errors"`
	AvgResponseTime float64 `json:"avg_response_time_ms"`

	mu        sync.RWMutex
	startTime time.Time
}

// NewMetrics creates a Metrics with its start time set to now.
func NewMetrics() *Metrics {
	return &Metrics{
		startTime: time.Now(),
	}
}

// IncrementInstances counts one instance being registered.
func (m *Metrics) IncrementInstances() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.TotalInstances++
}

// SetInstanceStates sets the device-state gauges reported by the
// scheduler snapshot for every instance.
func (m *Metrics) SetInstanceStates(active, idle, errored int64) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.ActiveInstances = active
	m.IdleInstances = idle
	m.ErroredInstances = errored
}

// IncrementEffectLaunches counts one effect launch.
func (m *Metrics) IncrementEffectLaunches() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.TotalEffectLaunches++
}

// IncrementFailedEffectLaunches counts one effect launch failure.
func (m *Metrics) IncrementFailedEffectLaunches() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.FailedEffectLaunches++
}

// AddSchedulerStats folds one scheduler's write/skip counters into the
// process-wide totals.
func (m *Metrics) AddSchedulerStats(writes, skips int64) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.TotalWrites += writes
	m.TotalSkips += skips
}

// IncrementRequests counts one inbound API request.
func (m *Metrics) IncrementRequests() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.TotalRequests++
}

// IncrementErrors counts one API request that ended in an error status.
func (m *Metrics) IncrementErrors() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.TotalErrors++
}

// RecordResponseTime folds one request's duration into the exponential
// moving average.
func (m *Metrics) RecordResponseTime(duration time.Duration) {
	m.mu.Lock()
	defer m.mu.Unlock()

	ms := float64(duration.Milliseconds())
	if m.AvgResponseTime == 0 {
		m.AvgResponseTime = ms
	} else {
		m.AvgResponseTime = (m.AvgResponseTime * 0.9) + (ms * 0.1)
	}
}

// UpdateSystemMetrics refreshes the uptime, memory, and goroutine gauges.
func (m *Metrics) UpdateSystemMetrics() {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.Uptime = int64(time.Since(m.startTime).Seconds())

	var memStats runtime.MemStats
	runtime.ReadMemStats(&memStats)
	m.MemoryUsed = memStats.Alloc
	m.MemoryTotal = memStats.Sys

	m.GoroutineCount = runtime.NumGoroutine()
}

// GetMetrics returns the current counters as a JSON-friendly map.
func (m *Metrics) GetMetrics() map[string]interface{} {
	m.mu.RLock()
	defer m.mu.RUnlock()

	return map[string]interface{}{
		"instances": map[string]interface{}{
			"total":   m.TotalInstances,
			"active":  m.ActiveInstances,
			"idle":    m.IdleInstances,
			"errored": m.ErroredInstances,
		},
		"effects": map[string]interface{}{
			"total_launches":  m.TotalEffectLaunches,
			"failed_launches": m.FailedEffectLaunches,
		},
		"scheduler": map[string]interface{}{
			"writes": m.TotalWrites,
			"skips":  m.TotalSkips,
		},
		"system": map[string]interface{}{
			"uptime_seconds":     m.Uptime,
			"memory_used_bytes":  m.MemoryUsed,
			"memory_total_bytes": m.MemoryTotal,
			"memory_used_mb":     m.MemoryUsed / 1024 / 1024,
			"goroutines":         m.GoroutineCount,
		},
		"api": map[string]interface{}{
			"total_requests":       m.TotalRequests,
			"total_errors":         m.TotalErrors,
			"avg_response_time_ms": m.AvgResponseTime,
			"error_rate": func() float64 {
				if m.TotalRequests == 0 {
					return 0.0
				}
				return float64(m.TotalErrors) / float64(m.TotalRequests) * 100
			}(),
		},
	}
}

// PrometheusFormat renders the counters in the Prometheus text exposition
// format.
func (m *Metrics) PrometheusFormat() string {
	m.mu.RLock()
	defer m.mu.RUnlock()

	return `# HELP ambientled_instances_total Total number of configured instances
# TYPE ambientled_instances_total counter
ambientled_instances_total ` + formatInt64(m.TotalInstances) + `

# HELP ambientled_instances_active Number of instances currently active
# TYPE ambientled_instances_active gauge
ambientled_instances_active ` + formatInt64(m.ActiveInstances) + `

# HELP ambientled_effect_launches_total Total number of effect launches
# TYPE ambientled_effect_launches_total counter
ambientled_effect_launches_total ` + formatInt64(m.TotalEffectLaunches) + `

# HELP ambientled_effect_launches_failed Total number of failed effect launches
# TYPE ambientled_effect_launches_failed counter
ambientled_effect_launches_failed ` + formatInt64(m.FailedEffectLaunches) + `

# HELP ambientled_scheduler_writes_total Total number of device frame writes
# TYPE ambientled_scheduler_writes_total counter
ambientled_scheduler_writes_total ` + formatInt64(m.TotalWrites) + `

# HELP ambientled_scheduler_skips_total Total number of device frame skips
# TYPE ambientled_scheduler_skips_total counter
ambientled_scheduler_skips_total ` + formatInt64(m.TotalSkips) + `

# HELP ambientled_uptime_seconds Uptime in seconds
# TYPE ambientled_uptime_seconds gauge
ambientled_uptime_seconds ` + formatInt64(m.Uptime) + `

# HELP ambientled_memory_used_bytes Memory used in bytes
# TYPE ambientled_memory_used_bytes gauge
ambientled_memory_used_bytes ` + formatUint64(m.MemoryUsed) + `

# HELP ambientled_goroutines Number of goroutines
# TYPE ambientled_goroutines gauge
ambientled_goroutines ` + formatInt(m.GoroutineCount) + `

# HELP ambientled_api_requests_total Total number of API requests
# TYPE ambientled_api_requests_total counter
ambientled_api_requests_total ` + formatInt64(m.TotalRequests) + `

# HELP ambientled_api_errors_total Total number of API errors
# TYPE ambientled_api_errors_total counter
ambientled_api_errors_total ` + formatInt64(m.TotalErrors) + `

# HELP ambientled_api_response_time_ms Average API response time in milliseconds
# TYPE ambientled_api_response_time_ms gauge
ambientled_api_response_time_ms ` + formatFloat64(m.AvgResponseTime) + `
`
}

// MetricsMiddleware is a Fiber middleware that counts requests, errors,
// and response time into m.
func MetricsMiddleware(m *Metrics) fiber.Handler {
	return func(c *fiber.Ctx) error {
		start := time.Now()

		m.IncrementRequests()

		err := c.Next()

		duration := time.Since(start)
		m.RecordResponseTime(duration)

		if c.Response().StatusCode() >= 400 {
			m.IncrementErrors()
		}

		return err
	}
}

func formatInt64(n int64) string {
	return fmt.Sprintf("%d", n)
}

func formatUint64(n uint64) string {
	return fmt.Sprintf("%d", n)
}

func formatInt(n int) string {
	return fmt.Sprintf("%d", n)
}

func formatFloat64(n float64) string {
	return fmt.Sprintf("%.2f", n)
}
