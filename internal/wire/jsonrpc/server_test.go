package jsonrpc

import (
	"testing"

	"github.com/edgeflow/ambientled/internal/message"
	"github.com/edgeflow/ambientled/internal/registry"
)

type fakeSink struct {
	inputs []message.Input
}

func (f *fakeSink) Publish(in message.Input) {
	f.inputs = append(f.inputs, in)
}

func newTestHandle(sink registry.Sink) *registry.Handle {
	reg := registry.New()
	return reg.Register(sink, "test", 0, false)
}

func TestApplyColor(t *testing.T) {
	sink := &fakeSink{}
	h := newTestHandle(sink)
	defer h.Close()

	s := &Server{}
	err := s.apply(h, command{Command: "color", Priority: 50, Duration: 1000, Color: []uint8{1, 2, 3}})
	if err != nil {
		t.Fatalf("apply color: %v", err)
	}
	color, ok := sink.inputs[0].Data.(message.SolidColor)
	if !ok {
		t.Fatalf("expected SolidColor, got %T", sink.inputs[0].Data)
	}
	if color.Color.R != 1 || color.Color.G != 2 || color.Color.B != 3 {
		t.Fatalf("unexpected color: %+v", color.Color)
	}
}

func TestApplyColorRejectsWrongLength(t *testing.T) {
	sink := &fakeSink{}
	h := newTestHandle(sink)
	defer h.Close()

	s := &Server{}
	if err := s.apply(h, command{Command: "color", Color: []uint8{1, 2}}); err == nil {
		t.Fatalf("expected error for malformed color length")
	}
}

func TestApplyColorsSplitsTriples(t *testing.T) {
	sink := &fakeSink{}
	h := newTestHandle(sink)
	defer h.Close()

	s := &Server{}
	err := s.apply(h, command{Command: "colors", Colors: []uint8{1, 2, 3, 4, 5, 6}})
	if err != nil {
		t.Fatalf("apply colors: %v", err)
	}
	colors, ok := sink.inputs[0].Data.(message.LedColors)
	if !ok {
		t.Fatalf("expected LedColors, got %T", sink.inputs[0].Data)
	}
	if len(colors.Colors) != 2 {
		t.Fatalf("expected 2 LEDs, got %d", len(colors.Colors))
	}
}

func TestApplyEffectRequiresName(t *testing.T) {
	sink := &fakeSink{}
	h := newTestHandle(sink)
	defer h.Close()

	s := &Server{}
	if err := s.apply(h, command{Command: "effect"}); err == nil {
		t.Fatalf("expected error for effect with no name")
	}
}

func TestApplyUnknownCommand(t *testing.T) {
	sink := &fakeSink{}
	h := newTestHandle(sink)
	defer h.Close()

	s := &Server{}
	if err := s.apply(h, command{Command: "bogus"}); err == nil {
		t.Fatalf("expected error for unknown command")
	}
}
