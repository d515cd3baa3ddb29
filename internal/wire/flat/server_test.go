package flat

import (
	"testing"

	flatbuffers "github.com/google/flatbuffers/go"

	"github.com/edgeflow/ambientled/internal/message"
	"github.com/edgeflow/ambientled/internal/registry"
)

type fakeSink struct {
	inputs []message.Input
}

func (f *fakeSink) Publish(in message.Input) {
	f.inputs = append(f.inputs, in)
}

func buildRegisterRequest(priority int32) []byte {
	b := flatbuffers.NewBuilder(64)

	b.StartObject(1)
	b.PrependInt32Slot(slotRegPriority, priority, 0)
	reg := b.EndObject()

	b.StartObject(5)
	b.PrependInt8Slot(slotCommandType, cmdRegister, cmdNone)
	b.PrependUOffsetTSlot(slotRegister, reg, 0)
	req := b.EndObject()
	b.Finish(req)
	return b.FinishedBytes()
}

func buildColorRequest(rgb uint32, durationMs int32) []byte {
	b := flatbuffers.NewBuilder(64)

	b.StartObject(2)
	b.PrependUint32Slot(slotColorData, rgb, 0)
	b.PrependInt32Slot(slotColorDuration, durationMs, 0)
	color := b.EndObject()

	b.StartObject(5)
	b.PrependInt8Slot(slotCommandType, cmdColor, cmdNone)
	b.PrependUOffsetTSlot(slotColor, color, 0)
	req := b.EndObject()
	b.Finish(req)
	return b.FinishedBytes()
}

func TestApplyRegisterThenColor(t *testing.T) {
	reg := registry.New()
	sink := &fakeSink{}
	s := New(reg, sink, nil)

	priority, handle, err := s.apply(nil, 0, buildRegisterRequest(150))
	if err != nil {
		t.Fatalf("register apply: %v", err)
	}
	if priority != 150 {
		t.Fatalf("got priority %d, want 150", priority)
	}
	if handle == nil {
		t.Fatalf("expected a handle from registration")
	}
	defer handle.Close()

	priority, newHandle, err := s.apply(handle, priority, buildColorRequest(10|20<<8|30<<16, 500))
	if err != nil {
		t.Fatalf("color apply: %v", err)
	}
	if newHandle != nil {
		t.Fatalf("color command should not replace the handle")
	}
	if priority != 150 {
		t.Fatalf("priority should be unchanged by a color command, got %d", priority)
	}

	if len(sink.inputs) != 1 {
		t.Fatalf("expected one published input, got %d", len(sink.inputs))
	}
	color, ok := sink.inputs[0].Data.(message.SolidColor)
	if !ok {
		t.Fatalf("expected SolidColor, got %T", sink.inputs[0].Data)
	}
	if color.Priority != 150 {
		t.Fatalf("unexpected solid color priority: %d", color.Priority)
	}
}

func TestApplyRejectsColorBeforeRegister(t *testing.T) {
	reg := registry.New()
	sink := &fakeSink{}
	s := New(reg, sink, nil)

	_, _, err := s.apply(nil, 0, buildColorRequest(1, 1))
	if err == nil {
		t.Fatalf("expected error for color command before register")
	}
}

func TestDurationMs(t *testing.T) {
	if durationMs(2000).Seconds() != 2 {
		t.Fatalf("durationMs(2000) should be 2s")
	}
}
