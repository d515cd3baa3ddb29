// Package effect runs scripted lighting effects: each launch gets its
// own isolated goja interpreter, a cancellable abort context, and becomes a
// registered input source for as long as the script runs.
package effect

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/dop251/goja"
	"go.uber.org/zap"

	"github.com/edgeflow/ambientled/internal/colorutil"
	"github.com/edgeflow/ambientled/internal/message"
	"github.com/edgeflow/ambientled/internal/registry"
)

// Definition is one loaded effect script.
type Definition struct {
	Name       string
	ScriptPath string
	DefaultArgs map[string]any
}

// Store loads and caches effect definitions from a directory; one file
// per effect, named "<name>.js".
type Store struct {
	mu   sync.RWMutex
	defs map[string]Definition
}

// NewStore loads every "*.js" file in dir as an effect definition named
// after its basename.
func NewStore(dir string) (*Store, error) {
	s := &Store{defs: make(map[string]Definition)}
	if dir == "" {
		return s, nil
	}
	if err := s.Reload(dir); err != nil {
		return nil, err
	}
	return s, nil
}

// Reload rescans dir, replacing the definition set. NewStore calls it
// once; nothing else in the repository calls it.
func (s *Store) Reload(dir string) error {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return err
	}
	next := make(map[string]Definition)
	for _, e := range entries {
		if e.IsDir() || filepath.Ext(e.Name()) != ".js" {
			continue
		}
		name := e.Name()[:len(e.Name())-len(".js")]
		def := Definition{Name: name, ScriptPath: filepath.Join(dir, e.Name())}
		if raw, err := os.ReadFile(filepath.Join(dir, name+".json")); err == nil {
			var args map[string]any
			if json.Unmarshal(raw, &args) == nil {
				def.DefaultArgs = args
			}
		}
		next[name] = def
	}
	s.mu.Lock()
	s.defs = next
	s.mu.Unlock()
	return nil
}

// Lookup returns the named definition.
func (s *Store) Lookup(name string) (Definition, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	d, ok := s.defs[name]
	return d, ok
}

// Handle identifies one running effect instance.
type Handle struct {
	id     uint64
	cancel context.CancelFunc
}

// ID returns the effect instance's registry source id.
func (h *Handle) ID() uint64 { return h.id }

// Abort raises the instance's abort flag; the script sees it on its
// next cooperative check.
func (h *Handle) Abort() { h.cancel() }

// CompletionEvent is the out-of-band notice the runtime reports when an
// effect instance's script returns, successfully or not.
type CompletionEvent struct {
	SourceID uint64
	Name     string
	Err      error
}

// Runtime launches and tracks effect instances for one muxer sink.
type Runtime struct {
	store    *Store
	registry *registry.Registry
	sink     registry.Sink
	log      *zap.Logger

	mu        sync.Mutex
	byPrio    map[int]*Handle
	completed chan CompletionEvent
}

// New creates a runtime that registers effect input sources against reg
// and publishes their messages to sink.
func New(store *Store, reg *registry.Registry, sink registry.Sink, log *zap.Logger) *Runtime {
	if log == nil {
		log = zap.NewNop()
	}
	return &Runtime{
		store:     store,
		registry:  reg,
		sink:      sink,
		log:       log,
		byPrio:    make(map[int]*Handle),
		completed: make(chan CompletionEvent, 16),
	}
}

// Completed returns the channel of effect completion events; the
// instance runtime logs them.
func (r *Runtime) Completed() <-chan CompletionEvent { return r.completed }

// Launch resolves name to a definition and starts a fresh effect
// instance at the given priority, pre-empting any effect already
// running at that priority.
func (r *Runtime) Launch(name string, args map[string]any, duration time.Duration, priority, ledCount int) (*Handle, error) {
	def, ok := r.store.Lookup(name)
	if !ok {
		return nil, fmt.Errorf("effect %q: not found", name)
	}
	script, err := os.ReadFile(def.ScriptPath)
	if err != nil {
		return nil, fmt.Errorf("effect %q: %w", name, err)
	}

	merged := mergeArgs(def.DefaultArgs, args)

	r.mu.Lock()
	if prev, exists := r.byPrio[priority]; exists {
		prev.Abort()
	}
	r.mu.Unlock()

	ctx, cancel := context.WithCancel(context.Background())
	if duration > 0 {
		var dcancel context.CancelFunc
		ctx, dcancel = context.WithTimeout(ctx, duration)
		orig := cancel
		cancel = func() { dcancel(); orig() }
	}

	h := r.registry.Register(r.sink, "effect:"+name, priority, true)
	handle := &Handle{id: h.ID(), cancel: cancel}

	r.mu.Lock()
	r.byPrio[priority] = handle
	r.mu.Unlock()

	go r.run(ctx, h, handle, name, string(script), merged, ledCount, priority)

	return handle, nil
}

// Abort raises the abort flag for the effect holding handle.
func (r *Runtime) Abort(h *Handle) {
	h.Abort()
}

// AbortByID aborts the running effect instance identified by its
// registry source id, for the control API's per-effect abort endpoint.
// Reports whether a matching instance was found.
func (r *Runtime) AbortByID(id uint64) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, h := range r.byPrio {
		if h.id == id {
			h.Abort()
			return true
		}
	}
	return false
}

// ClearAll aborts every currently running effect instance.
func (r *Runtime) ClearAll() {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, h := range r.byPrio {
		h.Abort()
	}
}

func (r *Runtime) run(ctx context.Context, src *registry.Handle, handle *Handle, name, script string, args map[string]any, ledCount, priority int) {
	defer src.Close()
	defer func() {
		r.mu.Lock()
		if r.byPrio[priority] == handle {
			delete(r.byPrio, priority)
		}
		r.mu.Unlock()
	}()

	vm := goja.New()
	host := &hostAPI{ctx: ctx, src: src, ledCount: ledCount, priority: priority}
	vm.Set("led_count", ledCount)
	vm.Set("args", args)
	vm.Set("abort", host.abort)
	vm.Set("set_color", host.setColor)
	vm.Set("set_image", host.setImage)

	_, runErr := vm.RunString(script)

	select {
	case r.completed <- CompletionEvent{SourceID: src.ID(), Name: name, Err: runErr}:
	default:
		r.log.Warn("effect completion queue full, dropping event", zap.String("effect", name))
	}
}

// hostAPI is the only surface a running script can see.
type hostAPI struct {
	ctx      context.Context
	src      *registry.Handle
	ledCount int
	priority int
}

func (h *hostAPI) abort() bool {
	return h.ctx.Err() != nil
}

// setColor accepts either (r,g,b) for a solid color or a single
// byte-slice argument of length 3*led_count for per-LED colors.
func (h *hostAPI) setColor(call goja.FunctionCall) goja.Value {
	if h.ctx.Err() != nil {
		panic("effect aborted")
	}
	args := call.Arguments
	if len(args) == 3 {
		r := uint8(args[0].ToInteger())
		g := uint8(args[1].ToInteger())
		b := uint8(args[2].ToInteger())
		h.src.Send(message.SolidColor{Priority: h.priority, Color: colorutil.Color{R: r, G: g, B: b}}, "effect")
		return goja.Undefined()
	}
	if len(args) == 1 {
		bytes := toByteSlice(args[0])
		colors := make([]colorutil.Color, 0, len(bytes)/3)
		for i := 0; i+2 < len(bytes); i += 3 {
			colors = append(colors, colorutil.Color{R: bytes[i], G: bytes[i+1], B: bytes[i+2]})
		}
		h.src.Send(message.LedColors{Priority: h.priority, Colors: colors}, "effect")
		return goja.Undefined()
	}
	panic("set_color: expected (r,g,b) or (bytes)")
}

func (h *hostAPI) setImage(w, height int, pix goja.Value) {
	if h.ctx.Err() != nil {
		panic("effect aborted")
	}
	bytes := toByteSlice(pix)
	h.src.Send(message.ImageInput{Priority: h.priority, Image: &message.Image{Width: w, Height: height, Pix: bytes}}, "effect")
}

func toByteSlice(v goja.Value) []byte {
	exported := v.Export()
	switch raw := exported.(type) {
	case []byte:
		return raw
	case []interface{}:
		out := make([]byte, len(raw))
		for i, x := range raw {
			if n, ok := x.(int64); ok {
				out[i] = byte(n)
			}
		}
		return out
	default:
		return nil
	}
}

func mergeArgs(defaults, override map[string]any) map[string]any {
	out := make(map[string]any, len(defaults)+len(override))
	for k, v := range defaults {
		out[k] = v
	}
	for k, v := range override {
		out[k] = v
	}
	return out
}
