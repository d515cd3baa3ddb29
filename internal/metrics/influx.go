package metrics

import (
	"context"
	"time"

	influxdb2 "github.com/influxdata/influxdb-client-go/v2"
	"github.com/influxdata/influxdb-client-go/v2/api"
	"go.uber.org/zap"
)

// InfluxExporter periodically writes the same counters PrometheusFormat
// reports into an InfluxDB bucket, for deployments whose dashboards
// already live on InfluxDB rather than scraping a Prometheus endpoint.
type InfluxExporter struct {
	client influxdb2.Client
	writer api.WriteAPIBlocking
	log    *zap.Logger
}

// NewInfluxExporter opens a client against addr, authenticated with
// token, writing into org/bucket.
func NewInfluxExporter(addr, token, org, bucket string, log *zap.Logger) *InfluxExporter {
	if log == nil {
		log = zap.NewNop()
	}
	client := influxdb2.NewClient(addr, token)
	return &InfluxExporter{
		client: client,
		writer: client.WriteAPIBlocking(org, bucket),
		log:    log,
	}
}

// Run writes a point on every tick until ctx is cancelled.
func (e *InfluxExporter) Run(ctx context.Context, m *Metrics, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := e.writeOnce(ctx, m); err != nil {
				e.log.Warn("influx write failed", zap.Error(err))
			}
		}
	}
}

func (e *InfluxExporter) writeOnce(ctx context.Context, m *Metrics) error {
	m.mu.RLock()
	p := influxdb2.NewPoint(
		"ambientled",
		map[string]string{},
		map[string]interface{}{
			"instances_total":        m.TotalInstances,
			"instances_active":       m.ActiveInstances,
			"instances_idle":         m.IdleInstances,
			"instances_errored":      m.ErroredInstances,
			"effect_launches_total":  m.TotalEffectLaunches,
			"effect_launches_failed": m.FailedEffectLaunches,
			"scheduler_writes_total": m.TotalWrites,
			"scheduler_skips_total":  m.TotalSkips,
			"uptime_seconds":         m.Uptime,
			"memory_used_bytes":      m.MemoryUsed,
			"goroutines":             m.GoroutineCount,
			"api_requests_total":     m.TotalRequests,
			"api_errors_total":       m.TotalErrors,
			"api_avg_response_ms":    m.AvgResponseTime,
		},
		time.Now(),
	)
	m.mu.RUnlock()

	return e.writer.WritePoint(ctx, p)
}

// Close releases the underlying HTTP client.
func (e *InfluxExporter) Close() {
	e.client.Close()
}
