package registry

import (
	"testing"

	"github.com/edgeflow/ambientled/internal/message"
)

type fakeSink struct {
	inputs []message.Input
}

func (f *fakeSink) Publish(in message.Input) {
	f.inputs = append(f.inputs, in)
}

func TestRegisterAssignsMonotonicIDs(t *testing.T) {
	r := New()
	sink := &fakeSink{}

	h1 := r.Register(sink, "a", 0, false)
	h2 := r.Register(sink, "b", 0, false)
	if h1.ID() == 0 || h2.ID() == 0 {
		t.Fatalf("ids should never be 0, got %d and %d", h1.ID(), h2.ID())
	}
	if h2.ID() <= h1.ID() {
		t.Fatalf("ids should increase monotonically, got %d then %d", h1.ID(), h2.ID())
	}
	if r.Count() != 2 {
		t.Fatalf("expected 2 live sources, got %d", r.Count())
	}
}

func TestCloseDropsSourceAndIssuesClearWhenPrioritized(t *testing.T) {
	r := New()
	sink := &fakeSink{}

	h := r.Register(sink, "prioritized", 42, true)
	h.Close()

	if r.Count() != 0 {
		t.Fatalf("expected the source to be dropped from the registry")
	}
	if len(sink.inputs) != 1 {
		t.Fatalf("expected exactly one implicit Clear, got %d", len(sink.inputs))
	}
	clear, ok := sink.inputs[0].Data.(message.Clear)
	if !ok || clear.Priority != 42 {
		t.Fatalf("expected Clear{Priority: 42}, got %+v", sink.inputs[0].Data)
	}
}

func TestCloseWithoutPriorityIssuesNoClear(t *testing.T) {
	r := New()
	sink := &fakeSink{}

	h := r.Register(sink, "unprioritized", 0, false)
	h.Close()

	if len(sink.inputs) != 0 {
		t.Fatalf("a source with no priority should not issue a Clear, got %+v", sink.inputs)
	}
}

func TestCloseIsIdempotent(t *testing.T) {
	r := New()
	sink := &fakeSink{}

	h := r.Register(sink, "prioritized", 1, true)
	h.Close()
	h.Close()

	if len(sink.inputs) != 1 {
		t.Fatalf("a second Close should not issue a second Clear, got %d", len(sink.inputs))
	}
}

func TestSendAfterCloseIsDropped(t *testing.T) {
	r := New()
	sink := &fakeSink{}

	h := r.Register(sink, "x", 0, false)
	h.Close()
	h.Send(message.SolidColor{Priority: 1}, "test")

	if len(sink.inputs) != 0 {
		t.Fatalf("a closed handle should never publish, got %+v", sink.inputs)
	}
}

func TestLookupAndList(t *testing.T) {
	r := New()
	sink := &fakeSink{}

	h := r.Register(sink, "named", 5, true)
	d, ok := r.Lookup(h.ID())
	if !ok || d.Name != "named" || d.Priority != 5 {
		t.Fatalf("unexpected descriptor: %+v", d)
	}

	list := r.List()
	if len(list) != 1 || list[0].ID != h.ID() {
		t.Fatalf("expected List to report the one live source, got %+v", list)
	}
}
