package effect

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/edgeflow/ambientled/internal/message"
	"github.com/edgeflow/ambientled/internal/registry"
)

type fakeSink struct {
	inputs []message.Input
}

func (f *fakeSink) Publish(in message.Input) {
	f.inputs = append(f.inputs, in)
}

func writeScript(t *testing.T, dir, name, body string) {
	t.Helper()
	if err := os.WriteFile(filepath.Join(dir, name+".js"), []byte(body), 0o644); err != nil {
		t.Fatalf("writing script %s: %v", name, err)
	}
}

func TestLaunchRunsScriptAndPublishesColor(t *testing.T) {
	dir := t.TempDir()
	writeScript(t, dir, "solid", "set_color(1, 2, 3);")

	store, err := NewStore(dir)
	if err != nil {
		t.Fatalf("NewStore: %v", err)
	}
	reg := registry.New()
	sink := &fakeSink{}
	rt := New(store, reg, sink, nil)

	h, err := rt.Launch("solid", nil, 0, 10, 5)
	if err != nil {
		t.Fatalf("Launch: %v", err)
	}
	defer h.Abort()

	select {
	case ev := <-rt.Completed():
		if ev.Err != nil {
			t.Fatalf("script completed with error: %v", ev.Err)
		}
	case <-time.After(time.Second):
		t.Fatalf("timed out waiting for script completion")
	}

	if len(sink.inputs) != 1 {
		t.Fatalf("expected one published message, got %d", len(sink.inputs))
	}
	c, ok := sink.inputs[0].Data.(message.SolidColor)
	if !ok {
		t.Fatalf("expected SolidColor, got %T", sink.inputs[0].Data)
	}
	if c.Priority != 10 || c.Color.R != 1 || c.Color.G != 2 || c.Color.B != 3 {
		t.Fatalf("unexpected published color: %+v", c)
	}
}

func TestLaunchAtSamePriorityPreemptsThePrevious(t *testing.T) {
	dir := t.TempDir()
	writeScript(t, dir, "loop", "while (!abort()) {}")

	store, err := NewStore(dir)
	if err != nil {
		t.Fatalf("NewStore: %v", err)
	}
	reg := registry.New()
	sink := &fakeSink{}
	rt := New(store, reg, sink, nil)

	h1, err := rt.Launch("loop", nil, 0, 20, 5)
	if err != nil {
		t.Fatalf("first Launch: %v", err)
	}
	time.Sleep(20 * time.Millisecond)

	h2, err := rt.Launch("loop", nil, 0, 20, 5)
	if err != nil {
		t.Fatalf("second Launch: %v", err)
	}
	defer h2.Abort()

	select {
	case ev := <-rt.Completed():
		if ev.SourceID != h1.ID() {
			t.Fatalf("expected the first instance (%d) to be preempted, completion was for %d", h1.ID(), ev.SourceID)
		}
	case <-time.After(time.Second):
		t.Fatalf("timed out waiting for the preempted instance to complete")
	}
}

func TestMergeArgsOverridesDefaults(t *testing.T) {
	defaults := map[string]any{"speed": 1, "color": "red"}
	override := map[string]any{"speed": 5}

	merged := mergeArgs(defaults, override)
	if merged["speed"] != 5 {
		t.Fatalf("override should win, got %v", merged["speed"])
	}
	if merged["color"] != "red" {
		t.Fatalf("unset keys should keep their default, got %v", merged["color"])
	}
}

func TestAbortByIDFindsRunningInstance(t *testing.T) {
	dir := t.TempDir()
	writeScript(t, dir, "loop", "while (!abort()) {}")

	store, err := NewStore(dir)
	if err != nil {
		t.Fatalf("NewStore: %v", err)
	}
	reg := registry.New()
	sink := &fakeSink{}
	rt := New(store, reg, sink, nil)

	h, err := rt.Launch("loop", nil, 0, 30, 5)
	if err != nil {
		t.Fatalf("Launch: %v", err)
	}

	if !rt.AbortByID(h.ID()) {
		t.Fatalf("expected AbortByID to find the running instance")
	}
	if rt.AbortByID(999999) {
		t.Fatalf("expected AbortByID to report false for an unknown id")
	}

	select {
	case <-rt.Completed():
	case <-time.After(time.Second):
		t.Fatalf("timed out waiting for the aborted instance to complete")
	}
}
