package scheduler

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/edgeflow/ambientled/internal/colorutil"
	"github.com/edgeflow/ambientled/internal/smoother"
)

// fakeDriver has no periodic internal events of its own: Update simply
// blocks until the run loop's context is cancelled, as the real SPI/UDP
// drivers do when they have nothing to report between writes.
type fakeDriver struct {
	mu        sync.Mutex
	writes    []time.Time
	failFirst bool
	failed    bool
}

func (d *fakeDriver) SetLEDData(ctx context.Context, frame []colorutil.Color) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.failFirst && !d.failed {
		d.failed = true
		return errors.New("simulated write failure")
	}
	d.writes = append(d.writes, time.Now())
	return nil
}

func (d *fakeDriver) Update(ctx context.Context) error {
	<-ctx.Done()
	return ctx.Err()
}

func (d *fakeDriver) snapshot() []time.Time {
	d.mu.Lock()
	defer d.mu.Unlock()
	out := make([]time.Time, len(d.writes))
	copy(out, d.writes)
	return out
}

func TestRewriteCadenceIsAtLeastConfigured(t *testing.T) {
	driver := &fakeDriver{}
	rewrite := 50 * time.Millisecond
	sch := New(Config{HardwareLEDCount: 1, RewriteTime: rewrite}, driver, nil)

	ctx, cancel := context.WithTimeout(context.Background(), 260*time.Millisecond)
	defer cancel()
	frames := make(chan smoother.Frame, 1)
	go sch.Run(ctx, frames)

	frames <- smoother.Frame{Colors: []colorutil.Color{{R: 10}}, Status: smoother.Settled}

	<-ctx.Done()
	time.Sleep(20 * time.Millisecond)

	writes := driver.snapshot()
	if len(writes) < 2 {
		t.Fatalf("expected the idle color to be rewritten at least once, got %d writes", len(writes))
	}
	for i := 1; i < len(writes); i++ {
		gap := writes[i].Sub(writes[i-1])
		if gap < rewrite-5*time.Millisecond {
			t.Fatalf("rewrite %d fired only %v after the previous one, want >= %v", i, gap, rewrite)
		}
	}
}

func TestHoldTrueSuppressesRewrites(t *testing.T) {
	driver := &fakeDriver{}
	sch := New(Config{HardwareLEDCount: 1, RewriteTime: 30 * time.Millisecond, HoldTrue: true}, driver, nil)

	ctx, cancel := context.WithTimeout(context.Background(), 200*time.Millisecond)
	defer cancel()
	frames := make(chan smoother.Frame, 1)
	go sch.Run(ctx, frames)

	frames <- smoother.Frame{Colors: []colorutil.Color{{R: 10}}, Status: smoother.Settled}

	<-ctx.Done()
	time.Sleep(20 * time.Millisecond)

	writes := driver.snapshot()
	if len(writes) != 1 {
		t.Fatalf("a hold-true device must not be rewritten, got %d writes", len(writes))
	}
}

func TestRecoveryDoesNotHappenBeforeBackoff(t *testing.T) {
	driver := &fakeDriver{failFirst: true}
	sch := New(Config{HardwareLEDCount: 1}, driver, nil)

	if errorBackoff < time.Second {
		t.Fatalf("sanity: errorBackoff is expected to be a long recovery window, got %v", errorBackoff)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 200*time.Millisecond)
	defer cancel()
	frames := make(chan smoother.Frame, 1)
	go sch.Run(ctx, frames)

	frames <- smoother.Frame{Colors: []colorutil.Color{{R: 10}}, Status: smoother.Running}

	<-ctx.Done()
	time.Sleep(20 * time.Millisecond)

	if len(driver.snapshot()) != 0 {
		t.Fatalf("a device backing off from an error must not be rewritten before %v elapses", errorBackoff)
	}
	if sch.Snapshot().Errors != 1 {
		t.Fatalf("expected exactly one recorded error, got %d", sch.Snapshot().Errors)
	}
}
