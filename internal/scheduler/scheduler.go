// Package scheduler drives one physical device: it consumes smoother
// output, enforces rewrite timing and a fixed pre-write latency, and runs the per-device idle
// state machine that stops hammering a settled device with redundant
// writes.
package scheduler

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/edgeflow/ambientled/internal/colorutil"
	"github.com/edgeflow/ambientled/internal/smoother"
)

// Driver is implemented by every concrete device backend (SPI, UDP,
// websocket, ...). SetLEDData hands off a new frame; some drivers write
// immediately, some buffer. Update blocks until the driver's next
// internal event (e.g. a periodic refresh tick) and is polled
// concurrently with new frames.
type Driver interface {
	SetLEDData(ctx context.Context, frame []colorutil.Color) error
	Update(ctx context.Context) error
}

// DeviceState is the idle state machine's current state.
type DeviceState int

const (
	Active DeviceState = iota
	IdleBlack
	IdleColor
	Errored
)

func (s DeviceState) String() string {
	switch s {
	case Active:
		return "active"
	case IdleBlack:
		return "idle_black"
	case IdleColor:
		return "idle_color"
	case Errored:
		return "errored"
	default:
		return "unknown"
	}
}

// Config holds one device's scheduling parameters.
type Config struct {
	HardwareLEDCount int
	Latency          time.Duration
	RewriteTime      time.Duration // 0 means "write only on change"
	HoldTrue         bool          // device retains its last frame without refresh
}

const errorBackoff = 60 * time.Second

// Scheduler owns one device's driver and runs its write loop on its own
// goroutine until Close is called.
type Scheduler struct {
	cfg    Config
	driver Driver
	log    *zap.Logger

	skips      int64
	writes     int64
	errs       int64
	lastColors []colorutil.Color
}

// New creates a scheduler for driver, not yet running.
func New(cfg Config, driver Driver, log *zap.Logger) *Scheduler {
	if log == nil {
		log = zap.NewNop()
	}
	return &Scheduler{cfg: cfg, driver: driver, log: log}
}

// Stats is a snapshot of scheduler counters for diagnostics.
type Stats struct {
	Writes int64
	Skips  int64
	Errors int64
	State  DeviceState
}

// Run consumes frames until ctx is cancelled. It always writes the
// latest available frame, skipping any interior frames the smoother
// produced while a previous write was in flight (back-pressure). It also
// polls the driver's own Update future concurrently: whichever of a new
// frame, a rewrite tick, or a driver event fires first is handled next.
func (s *Scheduler) Run(ctx context.Context, frames <-chan smoother.Frame) {
	state := Active
	var rewrite *time.Timer
	defer func() {
		if rewrite != nil {
			rewrite.Stop()
		}
	}()

	var pending *smoother.Frame
	var rewriteC <-chan time.Time

	driverEvents := s.pollDriver(ctx)

	for {
		if rewrite != nil {
			rewriteC = rewrite.C
		} else {
			rewriteC = nil
		}

		select {
		case <-ctx.Done():
			return

		case f, ok := <-frames:
			if !ok {
				return
			}
			// back-pressure: always keep only the newest pending frame
			if pending != nil {
				s.skips++
			}
			fc := f
			pending = &fc

		case err := <-driverEvents:
			if err != nil {
				s.log.Warn("driver update reported an error", zap.Error(err))
			}
			continue

		case <-rewriteC:
			if pending == nil && state == IdleColor {
				s.write(ctx, s.lastColors)
			}
			rewrite = s.scheduleRewrite(state, s.cfg.RewriteTime)
			continue
		}

		if pending == nil {
			continue
		}
		frame := *pending
		pending = nil

		if s.cfg.Latency > 0 {
			time.Sleep(s.cfg.Latency)
		}

		err := s.write(ctx, frame.Colors)
		if err != nil {
			state = Errored
			s.errs++
			s.log.Error("device write failed, backing off", zap.Error(err), zap.Duration("backoff", errorBackoff))
			select {
			case <-time.After(errorBackoff):
			case <-ctx.Done():
				return
			}
			state = Active
			continue
		}

		next := s.nextState(frame)
		if next != state {
			s.log.Info("device state change", zap.Stringer("from", state), zap.Stringer("to", next))
			state = next
		}
		rewrite = s.scheduleRewrite(state, s.cfg.RewriteTime)
	}
}

// pollDriver repeatedly calls the driver's blocking Update until ctx is
// cancelled, reporting each return on the channel. The channel is
// unbuffered from the driver's perspective but read promptly by Run's
// select loop, so Update is never starved waiting to report an event.
func (s *Scheduler) pollDriver(ctx context.Context) <-chan error {
	out := make(chan error)
	go func() {
		defer close(out)
		for {
			err := s.driver.Update(ctx)
			select {
			case out <- err:
			case <-ctx.Done():
				return
			}
			if ctx.Err() != nil {
				return
			}
		}
	}()
	return out
}

func (s *Scheduler) nextState(f smoother.Frame) DeviceState {
	if f.Status != smoother.Settled {
		return Active
	}
	if allBlack(f.Colors) {
		return IdleBlack
	}
	return IdleColor
}

func allBlack(colors []colorutil.Color) bool {
	for _, c := range colors {
		if c != colorutil.Black {
			return false
		}
	}
	return true
}

func (s *Scheduler) scheduleRewrite(state DeviceState, rewriteTime time.Duration) *time.Timer {
	if state != IdleColor || rewriteTime <= 0 || s.cfg.HoldTrue {
		return nil
	}
	return time.NewTimer(rewriteTime)
}

func (s *Scheduler) write(ctx context.Context, colors []colorutil.Color) error {
	if err := s.driver.SetLEDData(ctx, colors); err != nil {
		return err
	}
	s.writes++
	s.lastColors = colors
	return nil
}

// Snapshot returns the current counters.
func (s *Scheduler) Snapshot() Stats {
	return Stats{Writes: s.writes, Skips: s.skips, Errors: s.errs}
}
