package boblight

import (
	"testing"

	"go.uber.org/zap"

	"github.com/edgeflow/ambientled/internal/colorutil"
	"github.com/edgeflow/ambientled/internal/message"
	"github.com/edgeflow/ambientled/internal/registry"
)

type fakeSink struct {
	inputs []message.Input
}

func (f *fakeSink) Publish(in message.Input) {
	f.inputs = append(f.inputs, in)
}

func newTestServer(ledCount int) (*Server, *fakeSink) {
	reg := registry.New()
	sink := &fakeSink{}
	leds := make([]Led, ledCount)
	for i := range leds {
		leds[i] = Led{HMin: 0, HMax: 0.5, VMin: 0, VMax: 1}
	}
	return New(reg, sink, leds, zap.NewNop()), sink
}

func TestHandleLineHelloPingVersion(t *testing.T) {
	s, _ := newTestServer(1)
	state := &connState{priority: defaultPriority}

	reply, err := s.handleLine(state, "hello")
	if err != nil || reply != "hello" {
		t.Fatalf("hello: got %q, %v", reply, err)
	}
	reply, err = s.handleLine(state, "ping")
	if err != nil || reply != "ping 1" {
		t.Fatalf("ping: got %q, %v", reply, err)
	}
	reply, err = s.handleLine(state, "get version")
	if err != nil || reply != "version 5" {
		t.Fatalf("get version: got %q, %v", reply, err)
	}
}

func TestHandleLineGetLights(t *testing.T) {
	s, _ := newTestServer(2)
	state := &connState{priority: defaultPriority}
	reply, err := s.handleLine(state, "get lights")
	if err != nil {
		t.Fatalf("get lights: %v", err)
	}
	want := "lights 2\nlight 000 scan 0 50 0 100\nlight 001 scan 0 50 0 100"
	if reply != want {
		t.Fatalf("got %q want %q", reply, want)
	}
}

func TestSetPriorityClamps(t *testing.T) {
	cases := []struct {
		in   int
		want int
	}{
		{127, defaultPriority},
		{128, 128},
		{200, 200},
		{253, 253},
		{254, defaultPriority},
		{-5, defaultPriority},
	}
	for _, c := range cases {
		if got := clampPriority(c.in); got != c.want {
			t.Errorf("clampPriority(%d) = %d, want %d", c.in, got, c.want)
		}
	}
}

func TestSetLightColorSyncsOnLastIndex(t *testing.T) {
	s, sink := newTestServer(2)
	handle := s.reg.Register(sink, "test", defaultPriority, true)
	defer handle.Close()

	st := &connState{handle: handle, priority: defaultPriority, colors: make([]colorutil.Color, 2)}

	if _, err := s.handleLine(st, "set light 0 color rgb 10 20 30"); err != nil {
		t.Fatalf("set light 0: %v", err)
	}
	if len(sink.inputs) != 0 {
		t.Fatalf("expected no sync before last LED, got %d publishes", len(sink.inputs))
	}

	if _, err := s.handleLine(st, "set light 1 color rgb 40 50 60"); err != nil {
		t.Fatalf("set light 1: %v", err)
	}
	if len(sink.inputs) != 1 {
		t.Fatalf("expected one sync after last LED, got %d", len(sink.inputs))
	}
	colors, ok := sink.inputs[0].Data.(message.LedColors)
	if !ok {
		t.Fatalf("expected LedColors, got %T", sink.inputs[0].Data)
	}
	if colors.Colors[0] != (colorutil.Color{R: 10, G: 20, B: 30}) {
		t.Fatalf("unexpected color 0: %+v", colors.Colors[0])
	}
	if colors.Colors[1] != (colorutil.Color{R: 40, G: 50, B: 60}) {
		t.Fatalf("unexpected color 1: %+v", colors.Colors[1])
	}
}

func TestClamp8(t *testing.T) {
	if clamp8(-1) != 0 {
		t.Fatalf("clamp8(-1) should be 0")
	}
	if clamp8(300) != 255 {
		t.Fatalf("clamp8(300) should be 255")
	}
	if clamp8(128) != 128 {
		t.Fatalf("clamp8(128) should be 128")
	}
}
