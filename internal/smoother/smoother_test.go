package smoother

import (
	"testing"
	"time"

	"github.com/edgeflow/ambientled/internal/colorutil"
)

func drainLatest(t *testing.T, ch <-chan Frame, timeout time.Duration) (Frame, bool) {
	t.Helper()
	var last Frame
	var got bool
	deadline := time.After(timeout)
	for {
		select {
		case f := <-ch:
			last, got = f, true
		case <-deadline:
			return last, got
		}
	}
}

func TestConvergesToTargetByWindowEnd(t *testing.T) {
	s := New(Config{Enabled: true, Window: 80 * time.Millisecond, UpdateFrequency: 50}, 1)
	defer s.Close()
	out, cancel := s.Output()
	defer cancel()

	s.Submit([]colorutil.Color16{{R: 50000}}, time.Now())

	f, got := drainLatest(t, out, 300*time.Millisecond)
	if !got {
		t.Fatalf("expected at least one emitted frame")
	}
	if f.Status != Settled {
		t.Fatalf("expected Settled after the window elapses, got %v", f.Status)
	}
	want := colorutil.Color16{R: 50000}.To8()
	if f.Colors[0].R != want.R {
		t.Fatalf("settled frame should equal the submitted target, got %+v", f.Colors[0])
	}
}

func TestLinearityAtHalfway(t *testing.T) {
	window := 200 * time.Millisecond
	s := New(Config{Enabled: true, Window: window, UpdateFrequency: 50}, 1)
	defer s.Close()
	out, cancel := s.Output()
	defer cancel()

	start := time.Now()
	s.Submit([]colorutil.Color16{{R: 60000}}, start)

	// sample a frame near the halfway point of the window.
	time.Sleep(window / 2)
	f, got := drainLatest(t, out, 30*time.Millisecond)
	if !got {
		t.Fatalf("expected a running frame near the midpoint")
	}

	want := 30000.0 // midpoint of 0 and 60000
	got16 := float64(f.Colors[0].To16().R)
	tolerance := 8000.0 // allow for scheduling jitter around the sampled tick
	if got16 < want-tolerance || got16 > want+tolerance {
		t.Fatalf("linearity: expected roughly the midpoint (%v), got %v (status=%v)", want, got16, f.Status)
	}
}

func TestSettledGoesDormantUntilNextSubmit(t *testing.T) {
	s := New(Config{Enabled: true, Window: 40 * time.Millisecond, UpdateFrequency: 50}, 1)
	defer s.Close()
	out, cancel := s.Output()
	defer cancel()

	s.Submit([]colorutil.Color16{{R: 10000}}, time.Now())
	f, got := drainLatest(t, out, 300*time.Millisecond)
	if !got || f.Status != Settled {
		t.Fatalf("expected to settle first, got %+v (ok=%v)", f, got)
	}

	// once settled the ticker stops; no further frames should arrive.
	select {
	case stray := <-out:
		t.Fatalf("expected no frames while dormant, got %+v", stray)
	case <-time.After(100 * time.Millisecond):
	}
}

func TestDisabledSmoothingSettlesImmediately(t *testing.T) {
	s := New(Config{Enabled: false}, 1)
	defer s.Close()
	out, cancel := s.Output()
	defer cancel()

	s.Submit([]colorutil.Color16{{R: 40000}}, time.Now())
	f, got := drainLatest(t, out, 100*time.Millisecond)
	if !got || f.Status != Settled {
		t.Fatalf("disabled smoothing should settle immediately, got %+v (ok=%v)", f, got)
	}
}
