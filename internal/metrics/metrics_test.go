package metrics

import (
	"strings"
	"testing"
	"time"
)

func TestNewMetrics(t *testing.T) {
	m := NewMetrics()
	if m == nil {
		t.Fatal("NewMetrics returned nil")
	}
	if m.startTime.IsZero() {
		t.Error("Start time not set")
	}
}

func TestIncrementInstances(t *testing.T) {
	m := NewMetrics()

	initial := m.TotalInstances
	m.IncrementInstances()

	if m.TotalInstances != initial+1 {
		t.Errorf("Expected TotalInstances to be %d, got %d", initial+1, m.TotalInstances)
	}
}

func TestSetInstanceStates(t *testing.T) {
	m := NewMetrics()

	m.SetInstanceStates(2, 1, 0)
	if m.ActiveInstances != 2 || m.IdleInstances != 1 || m.ErroredInstances != 0 {
		t.Errorf("unexpected instance state gauges: %+v", m)
	}
}

func TestIncrementEffectLaunches(t *testing.T) {
	m := NewMetrics()

	m.IncrementEffectLaunches()
	m.IncrementEffectLaunches()

	if m.TotalEffectLaunches != 2 {
		t.Errorf("Expected TotalEffectLaunches to be 2, got %d", m.TotalEffectLaunches)
	}
}

func TestIncrementFailedEffectLaunches(t *testing.T) {
	m := NewMetrics()

	m.IncrementEffectLaunches()
	m.IncrementEffectLaunches()
	m.IncrementFailedEffectLaunches()

	if m.FailedEffectLaunches != 1 {
		t.Errorf("Expected FailedEffectLaunches to be 1, got %d", m.FailedEffectLaunches)
	}
}

func TestAddSchedulerStats(t *testing.T) {
	m := NewMetrics()

	m.AddSchedulerStats(10, 3)
	m.AddSchedulerStats(5, 1)

	if m.TotalWrites != 15 {
		t.Errorf("Expected TotalWrites to be 15, got %d", m.TotalWrites)
	}
	if m.TotalSkips != 4 {
		t.Errorf("Expected TotalSkips to be 4, got %d", m.TotalSkips)
	}
}

func TestRecordResponseTime(t *testing.T) {
	m := NewMetrics()

	m.RecordResponseTime(100 * time.Millisecond)
	if m.AvgResponseTime == 0 {
		t.Error("Expected AvgResponseTime to be set")
	}

	first := m.AvgResponseTime
	m.RecordResponseTime(200 * time.Millisecond)
	if m.AvgResponseTime == first {
		t.Error("Expected AvgResponseTime to change")
	}
}

func TestUpdateSystemMetrics(t *testing.T) {
	m := NewMetrics()
	time.Sleep(1100 * time.Millisecond)

	m.UpdateSystemMetrics()

	if m.Uptime == 0 {
		t.Error("Expected Uptime to be greater than 0")
	}
	if m.MemoryUsed == 0 {
		t.Error("Expected MemoryUsed to be greater than 0")
	}
	if m.GoroutineCount == 0 {
		t.Error("Expected GoroutineCount to be greater than 0")
	}
}

func TestGetMetrics(t *testing.T) {
	m := NewMetrics()
	m.IncrementInstances()
	m.SetInstanceStates(1, 0, 0)
	m.IncrementEffectLaunches()

	metrics := m.GetMetrics()

	if metrics == nil {
		t.Fatal("GetMetrics returned nil")
	}

	instances, ok := metrics["instances"].(map[string]interface{})
	if !ok {
		t.Fatal("instances not found in metrics")
	}

	if instances["total"] != int64(1) {
		t.Errorf("Expected instances.total to be 1, got %v", instances["total"])
	}
}

func TestPrometheusFormat(t *testing.T) {
	m := NewMetrics()
	m.IncrementInstances()
	m.IncrementEffectLaunches()

	prometheus := m.PrometheusFormat()

	if prometheus == "" {
		t.Error("PrometheusFormat returned empty string")
	}

	if !strings.Contains(prometheus, "ambientled_instances_total") {
		t.Error("Expected ambientled_instances_total in Prometheus output")
	}
	if !strings.Contains(prometheus, "ambientled_effect_launches_total") {
		t.Error("Expected ambientled_effect_launches_total in Prometheus output")
	}
}

func BenchmarkIncrementInstances(b *testing.B) {
	m := NewMetrics()
	for i := 0; i < b.N; i++ {
		m.IncrementInstances()
	}
}

func BenchmarkRecordResponseTime(b *testing.B) {
	m := NewMetrics()
	for i := 0; i < b.N; i++ {
		m.RecordResponseTime(100 * time.Millisecond)
	}
}

func BenchmarkGetMetrics(b *testing.B) {
	m := NewMetrics()
	m.IncrementInstances()
	m.IncrementEffectLaunches()

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		m.GetMetrics()
	}
}
