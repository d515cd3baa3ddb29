// Package muxer implements the per-instance priority muxer: it merges
// every input message destined for one instance into a single current
// winner, arbitrating by priority and duration, and republishes winner
// changes on a broadcast stream that subscribers are expected to accept
// loss on.
package muxer

import (
	"sync"
	"time"

	"github.com/edgeflow/ambientled/internal/colorutil"
	"github.com/edgeflow/ambientled/internal/message"
	"github.com/edgeflow/ambientled/internal/registry"
	"go.uber.org/zap"
)

// StateData is the state-only reshaping of a winning slot, emitted on the
// muxed-message stream.
type StateData interface{ isState() }

// SolidColor is the muxed state for a winning SolidColor slot.
type SolidColor struct{ Color colorutil.Color }

// LedColors is the muxed state for a winning LedColors slot.
type LedColors struct{ Colors []colorutil.Color }

// Image is the muxed state for a winning Image slot.
type Image struct{ Image *message.Image }

func (SolidColor) isState() {}
func (LedColors) isState()  {}
func (Image) isState()      {}

// Muxed is one item on the broadcast stream.
type Muxed struct {
	Data StateData
	Time time.Time
}

// EffectLaunch is an out-of-band command forwarded to the effect runtime.
type EffectLaunch struct {
	Name     string
	Args     map[string]any
	Priority int
	Duration time.Duration
}

// slot is a priority slot held by the muxer, keyed by priority.
type slot struct {
	sourceID uint64
	data     message.Data // ClearAll is never stored; SolidColor/LedColors/Image state only
	expires  *time.Timer
}

// Muxer is a single instance's priority muxer. It is safe to call Publish
// concurrently from many goroutines (registry source handles); internally
// all slot mutation is serialized onto a single command goroutine so the
// emission and timer-expiry logic never races.
type Muxer struct {
	log *zap.Logger

	cmds chan func(*state)

	subsMu sync.Mutex
	subs   map[chan Muxed]struct{}

	launchMu sync.Mutex
	launches chan EffectLaunch

	closed chan struct{}
}

// state is the muxer's private, single-goroutine-owned slot table.
type state struct {
	slots  map[int]*slot // priority -> slot; 256 always present
	winner int           // priority of the current winner
}

// New creates a muxer with the idle slot populated at priority 256, and
// starts its command-processing goroutine.
func New(log *zap.Logger) *Muxer {
	if log == nil {
		log = zap.NewNop()
	}
	m := &Muxer{
		log:      log,
		cmds:     make(chan func(*state), 256),
		subs:     make(map[chan Muxed]struct{}),
		launches: make(chan EffectLaunch, 16),
		closed:   make(chan struct{}),
	}
	st := &state{
		slots:  map[int]*slot{message.IdlePriority: {data: message.SolidColor{Color: colorutil.Black}}},
		winner: message.IdlePriority,
	}
	go m.run(st)
	return m
}

// Publish satisfies registry.Sink: every message tagged for this instance
// passes through here. Messages from a single source are processed in
// send order; interleaving between sources is arbitrary.
func (m *Muxer) Publish(in message.Input) {
	select {
	case m.cmds <- func(st *state) { m.apply(st, in) }:
	case <-m.closed:
	}
}

// Subscribe registers a new broadcast subscriber. The returned channel
// holds one value and drops on lag: a slow reader misses intermediate winners but
// always eventually gets the latest. Call the returned cancel func to
// unsubscribe.
func (m *Muxer) Subscribe() (<-chan Muxed, func()) {
	ch := make(chan Muxed, 1)
	m.subsMu.Lock()
	m.subs[ch] = struct{}{}
	m.subsMu.Unlock()
	return ch, func() {
		m.subsMu.Lock()
		delete(m.subs, ch)
		m.subsMu.Unlock()
	}
}

// Launches returns the channel of effect launch commands forwarded by the
// muxer. The effect runtime is the sole consumer.
func (m *Muxer) Launches() <-chan EffectLaunch { return m.launches }

// SlotInfo is one priority slot's read-only bookkeeping, for the
// control API's priority-table report.
type SlotInfo struct {
	Priority int
	SourceID uint64
	Kind     string
	IsWinner bool
}

// Snapshot returns every currently held priority slot, including the
// idle slot. It round-trips through the muxer's command goroutine so it
// never races slot mutation.
func (m *Muxer) Snapshot() []SlotInfo {
	done := make(chan []SlotInfo, 1)
	select {
	case m.cmds <- func(st *state) {
		out := make([]SlotInfo, 0, len(st.slots))
		for p, s := range st.slots {
			out = append(out, SlotInfo{Priority: p, SourceID: s.sourceID, Kind: kindOf(s.data), IsWinner: p == st.winner})
		}
		done <- out
	}:
	case <-m.closed:
		return nil
	}
	select {
	case out := <-done:
		return out
	case <-m.closed:
		return nil
	}
}

func kindOf(d message.Data) string {
	switch d.(type) {
	case message.SolidColor:
		return "solid_color"
	case message.LedColors:
		return "led_colors"
	case message.ImageInput:
		return "image"
	default:
		return "unknown"
	}
}

// Close stops the muxer's goroutine. Pending timers are stopped.
func (m *Muxer) Close() {
	select {
	case <-m.closed:
	default:
		close(m.closed)
	}
}

func (m *Muxer) run(st *state) {
	for {
		select {
		case fn := <-m.cmds:
			fn(st)
		case <-m.closed:
			for _, s := range st.slots {
				if s.expires != nil {
					s.expires.Stop()
				}
			}
			return
		}
	}
}

// apply implements the per-message contract
func (m *Muxer) apply(st *state, in message.Input) {
	switch d := in.Data.(type) {
	case message.ClearAll:
		prevWinner := st.winner
		for p, s := range st.slots {
			if s.expires != nil {
				s.expires.Stop()
			}
			if p != message.IdlePriority {
				delete(st.slots, p)
			}
		}
		st.winner = message.IdlePriority
		if prevWinner != message.IdlePriority {
			m.emit(st)
		}

	case message.Clear:
		if d.Priority == message.IdlePriority {
			return // idle slot is never removable by an external Clear
		}
		s, ok := st.slots[d.Priority]
		if !ok {
			return
		}
		if s.expires != nil {
			s.expires.Stop()
		}
		delete(st.slots, d.Priority)
		if d.Priority == st.winner {
			st.winner = st.recomputeWinner()
			m.emit(st)
		}

	case message.Effect:
		// Never held as a slot; forwarded as a launch command.
		select {
		case m.launches <- EffectLaunch{Name: d.Name, Args: d.Args, Priority: d.Priority, Duration: d.Duration}:
		default:
			m.log.Warn("effect launch queue full, dropping launch", zap.String("effect", d.Name))
		}

	case expireCommand:
		m.expireSlot(st, d)

	default:
		m.installStateSlot(st, in.SourceID, in.Data)
	}
}

// expireSlot removes a slot on timer expiry, but only if it is still the
// same slot instance installed when the timer was scheduled: a newer
// message at the same priority replaces the slot and its timer is
// stopped, but a timer already in flight on m.cmds could otherwise remove
// the wrong (newer) slot.
func (m *Muxer) expireSlot(st *state, d expireCommand) {
	cur, ok := st.slots[d.priority]
	if !ok || cur != d.slot {
		return
	}
	delete(st.slots, d.priority)
	if d.priority == st.winner {
		st.winner = st.recomputeWinner()
		m.emit(st)
	}
}

// installStateSlot handles SolidColor/LedColors/ImageInput: install (or
// replace) a slot at the message's priority, schedule expiry if it has a
// duration, and emit if the new slot is now the winner. Strictly-lower
// priority wins; a new message at the same priority as the current
// winner always replaces it (newest wins on ties).
func (m *Muxer) installStateSlot(st *state, sourceID uint64, d message.Data) {
	prio, ok := message.Priority(d)
	if !ok {
		return
	}

	if old, exists := st.slots[prio]; exists && old.expires != nil {
		old.expires.Stop()
	}

	newSlot := &slot{sourceID: sourceID, data: d}
	st.slots[prio] = newSlot

	if dur, hasDur := message.HasDuration(d); hasDur {
		newSlot.expires = time.AfterFunc(dur, func() {
			m.Publish(message.Input{SourceID: sourceID, Data: expireCommand{priority: prio, slot: newSlot}})
		})
	}

	if prio <= st.winner {
		st.winner = prio
		m.emit(st)
	}
}

// expireCommand is an internal Data variant used to carry timer expiry
// back onto the muxer's single goroutine; it is never produced externally.
type expireCommand struct {
	priority int
	slot     *slot
}

func (expireCommand) isData() {}

// recomputeWinner scans for the numerically smallest populated priority.
// Ties cannot occur structurally: there is at most one slot per priority.
func (st *state) recomputeWinner() int {
	best := message.IdlePriority
	for p := range st.slots {
		if p < best {
			best = p
		}
	}
	return best
}

// emit republishes the current winner's state to every subscriber,
// dropping for any subscriber whose channel is full: the muxer never
// blocks on emission.
func (m *Muxer) emit(st *state) {
	s, ok := st.slots[st.winner]
	if !ok {
		return
	}
	sd := toStateData(s.data)
	if sd == nil {
		return
	}
	out := Muxed{Data: sd, Time: time.Now()}

	m.subsMu.Lock()
	defer m.subsMu.Unlock()
	for ch := range m.subs {
		select {
		case ch <- out:
		default:
			// drop-on-lag: clear the stale pending item and push the latest,
			// so a slow subscriber resynchronizes on this message rather than
			// piling up behind one it will never catch up on.
			select {
			case <-ch:
			default:
			}
			select {
			case ch <- out:
			default:
			}
			m.log.Warn("muxer subscriber lagged, dropped an intermediate frame")
		}
	}
}

func toStateData(d message.Data) StateData {
	switch v := d.(type) {
	case message.SolidColor:
		return SolidColor{Color: v.Color}
	case message.LedColors:
		return LedColors{Colors: v.Colors}
	case message.ImageInput:
		return Image{Image: v.Image}
	default:
		return nil
	}
}

// compile-time interface checks
var _ registry.Sink = (*Muxer)(nil)
