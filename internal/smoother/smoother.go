// Package smoother implements the linear temporal smoother: it absorbs
// successive target frames from the color pipeline and emits
// intermediate frames on a fixed output schedule, so the device never
// sees a hard instantaneous jump between two colors.
package smoother

import (
	"sync"
	"time"

	"github.com/edgeflow/ambientled/internal/colorutil"
)

// Status reports whether a produced frame is still interpolating toward
// its target or has reached it.
type Status int

const (
	Running Status = iota
	Settled
)

// Config holds the smoother's tunables.
type Config struct {
	Enabled         bool
	Window          time.Duration // time_ms
	UpdateFrequency float64       // Hz
}

// DefaultConfig matches a typical LED-strip smoothing setting.
func DefaultConfig() Config {
	return Config{Enabled: true, Window: 200 * time.Millisecond, UpdateFrequency: 25}
}

// Frame is one produced output: an 8-bit frame and its status.
type Frame struct {
	Colors []colorutil.Color
	Status Status
}

// Smoother runs its own ticking goroutine while a target is in flight,
// and stays dormant otherwise. All state is owned by that goroutine;
// Submit and Close communicate with it over a channel so callers never
// touch the interpolation state directly.
type Smoother struct {
	cfg Config

	cmds   chan func(*state)
	outMu  sync.Mutex
	outSub map[chan Frame]struct{}
	closed chan struct{}
	done   chan struct{}
}

type state struct {
	current []colorutil.Color16
	origin  []colorutil.Color16 // snapshot of current at submit time; lerp source for the whole window
	target  []colorutil.Color16
	tStart  time.Time
	tEnd    time.Time
	running bool
	ticker  *time.Ticker
}

// New creates a smoother with ledCount channels, starting settled on
// black.
func New(cfg Config, ledCount int) *Smoother {
	s := &Smoother{
		cfg:    cfg,
		cmds:   make(chan func(*state), 64),
		outSub: make(map[chan Frame]struct{}),
		closed: make(chan struct{}),
		done:   make(chan struct{}),
	}
	st := &state{
		current: make([]colorutil.Color16, ledCount),
		origin:  make([]colorutil.Color16, ledCount),
		target:  make([]colorutil.Color16, ledCount),
	}
	go s.run(st)
	return s
}

// Submit installs a new target frame arriving at "now". If smoothing is
// disabled, the target is emitted immediately as a Settled frame.
func (s *Smoother) Submit(target []colorutil.Color16, now time.Time) {
	cp := make([]colorutil.Color16, len(target))
	copy(cp, target)
	select {
	case s.cmds <- func(st *state) { s.submit(st, cp, now) }:
	case <-s.closed:
	}
}

// Output returns a channel of produced frames. Call the returned cancel
// func to unsubscribe.
func (s *Smoother) Output() (<-chan Frame, func()) {
	ch := make(chan Frame, 1)
	s.outMu.Lock()
	s.outSub[ch] = struct{}{}
	s.outMu.Unlock()
	return ch, func() {
		s.outMu.Lock()
		delete(s.outSub, ch)
		s.outMu.Unlock()
	}
}

// Close stops the smoother's goroutine.
func (s *Smoother) Close() {
	select {
	case <-s.closed:
	default:
		close(s.closed)
	}
	<-s.done
}

func (s *Smoother) run(st *state) {
	defer close(s.done)
	for {
		var tick <-chan time.Time
		if st.ticker != nil {
			tick = st.ticker.C
		}
		select {
		case fn := <-s.cmds:
			fn(st)
		case <-tick:
			s.advance(st)
		case <-s.closed:
			if st.ticker != nil {
				st.ticker.Stop()
			}
			return
		}
	}
}

// submit installs a new target. Disabled smoothing settles immediately;
// otherwise a ticker starts (or continues) firing at UpdateFrequency.
func (s *Smoother) submit(st *state, target []colorutil.Color16, now time.Time) {
	if len(target) != len(st.current) {
		st.current = make([]colorutil.Color16, len(target))
		st.origin = make([]colorutil.Color16, len(target))
		st.target = make([]colorutil.Color16, len(target))
	}

	if !s.cfg.Enabled || s.cfg.Window <= 0 {
		copy(st.current, target)
		copy(st.target, target)
		st.running = false
		s.stopTicker(st)
		s.emit(st, Settled)
		return
	}

	copy(st.origin, st.current)
	copy(st.target, target)
	st.tStart = now
	st.tEnd = now.Add(s.cfg.Window)
	st.running = true

	if st.ticker == nil {
		period := time.Second
		if s.cfg.UpdateFrequency > 0 {
			period = time.Duration(float64(time.Second) / s.cfg.UpdateFrequency)
		}
		st.ticker = time.NewTicker(period)
	}
}

// advance computes the interpolated frame for "now" and emits it. It is
// only called while the ticker is running, i.e. while a target is
// in flight.
func (s *Smoother) advance(st *state) {
	if !st.running {
		return
	}
	now := time.Now()
	if now.After(st.tEnd) {
		copy(st.current, st.target)
		st.running = false
		s.stopTicker(st)
		s.emit(st, Settled)
		return
	}

	k := 0.0
	if s.cfg.Window > 0 {
		k = float64(now.Sub(st.tStart)) / float64(s.cfg.Window)
	}
	if k < 0 {
		k = 0
	} else if k > 1 {
		k = 1
	}
	for i := range st.current {
		st.current[i] = colorutil.Lerp(st.origin[i], st.target[i], k)
	}
	s.emit(st, Running)
}

func (s *Smoother) stopTicker(st *state) {
	if st.ticker != nil {
		st.ticker.Stop()
		st.ticker = nil
	}
}

func (s *Smoother) emit(st *state, status Status) {
	colors := make([]colorutil.Color, len(st.current))
	for i, c16 := range st.current {
		colors[i] = c16.To8()
	}
	out := Frame{Colors: colors, Status: status}

	s.outMu.Lock()
	defer s.outMu.Unlock()
	for ch := range s.outSub {
		select {
		case ch <- out:
		default:
			select {
			case <-ch:
			default:
			}
			select {
			case ch <- out:
			default:
			}
		}
	}
}
