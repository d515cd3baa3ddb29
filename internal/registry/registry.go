// Package registry implements the process-wide input source registry
//: it assigns unique, monotonically increasing ids to
// input producers and guarantees that when a source's handle is dropped,
// a Clear is issued on its behalf if it held a priority.
package registry

import (
	"sync"
	"sync/atomic"

	"github.com/edgeflow/ambientled/internal/message"
)

// Sink receives messages published by a source and the implicit clear a
// dropped source issues. Implemented by the per-instance muxer.
type Sink interface {
	Publish(in message.Input)
}

// Descriptor is the read-only bookkeeping record for a registered source.
type Descriptor struct {
	ID       uint64
	Name     string
	Priority int  // only meaningful if HasPriority
	HasPriority bool
}

// Handle grants a registered source the right to publish on its sink and,
// on Close, performs the source-drop clear described in "when
// the source is dropped the registry issues, on its behalf, a
// Clear{priority} if it had a priority."
type Handle struct {
	id       uint64
	name     string
	priority int
	hasPrio  bool
	sink     Sink
	registry *Registry
	closed   int32
}

// ID returns the source's assigned id.
func (h *Handle) ID() uint64 { return h.id }

// Send tags and publishes a message on behalf of this source.
func (h *Handle) Send(data message.Data, component string) {
	if atomic.LoadInt32(&h.closed) != 0 {
		return
	}
	h.sink.Publish(message.Input{SourceID: h.id, Component: component, Data: data})
}

// Close drops the source. This triggers, on the source's
// behalf, Clear{priority} if it was registered with one. Idempotent.
func (h *Handle) Close() {
	if !atomic.CompareAndSwapInt32(&h.closed, 0, 1) {
		return
	}
	h.registry.drop(h.id)
	if h.hasPrio {
		h.sink.Publish(message.Input{
			SourceID: h.id,
			Data:     message.Clear{Priority: h.priority},
		})
	}
}

// Registry is the process-wide mutex-protected map of live sources. Id 0
// is reserved for the muxer itself and is never handed out.
type Registry struct {
	mu      sync.RWMutex
	nextID  uint64
	sources map[uint64]Descriptor
}

// New creates an empty registry with its id counter starting at 1.
func New() *Registry {
	return &Registry{nextID: 1, sources: make(map[uint64]Descriptor)}
}

// Register inserts a new source and returns its handle. priority is
// optional (hasPriority false means the source never owns a priority slot
// and its drop never issues an implicit Clear).
func (r *Registry) Register(sink Sink, name string, priority int, hasPriority bool) *Handle {
	r.mu.Lock()
	id := r.nextID
	r.nextID++
	r.sources[id] = Descriptor{ID: id, Name: name, Priority: priority, HasPriority: hasPriority}
	r.mu.Unlock()

	return &Handle{
		id:       id,
		name:     name,
		priority: priority,
		hasPrio:  hasPriority,
		sink:     sink,
		registry: r,
	}
}

func (r *Registry) drop(id uint64) {
	r.mu.Lock()
	delete(r.sources, id)
	r.mu.Unlock()
}

// Lookup returns the descriptor for id, for priority-report bookkeeping.
func (r *Registry) Lookup(id uint64) (Descriptor, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	d, ok := r.sources[id]
	return d, ok
}

// List returns a snapshot of every currently registered source.
func (r *Registry) List() []Descriptor {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]Descriptor, 0, len(r.sources))
	for _, d := range r.sources {
		out = append(out, d)
	}
	return out
}

// Count returns the number of live sources.
func (r *Registry) Count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.sources)
}
