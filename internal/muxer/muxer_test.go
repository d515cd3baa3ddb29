package muxer

import (
	"testing"
	"time"

	"github.com/edgeflow/ambientled/internal/colorutil"
	"github.com/edgeflow/ambientled/internal/message"
	"github.com/edgeflow/ambientled/internal/registry"
)

func waitMuxed(t *testing.T, ch <-chan Muxed) Muxed {
	t.Helper()
	select {
	case m := <-ch:
		return m
	case <-time.After(time.Second):
		t.Fatalf("timed out waiting for a muxed emission")
	}
	return Muxed{}
}

var red = colorutil.Color{R: 255}
var green = colorutil.Color{G: 255}

func TestIdleSlotIsDefaultWinner(t *testing.T) {
	m := New(nil)
	defer m.Close()

	snap := m.Snapshot()
	if len(snap) != 1 || snap[0].Priority != message.IdlePriority || !snap[0].IsWinner {
		t.Fatalf("expected only the idle slot, winning, got %+v", snap)
	}
}

func TestWinnerIsNumericallySmallestPriority(t *testing.T) {
	m := New(nil)
	defer m.Close()
	ch, cancel := m.Subscribe()
	defer cancel()

	m.Publish(message.Input{SourceID: 1, Data: message.SolidColor{Priority: 50, Color: red}})
	got := waitMuxed(t, ch)
	if c, ok := got.Data.(SolidColor); !ok || c.Color != red {
		t.Fatalf("expected red at priority 50 to win, got %+v", got.Data)
	}

	m.Publish(message.Input{SourceID: 2, Data: message.SolidColor{Priority: 10, Color: green}})
	got = waitMuxed(t, ch)
	if c, ok := got.Data.(SolidColor); !ok || c.Color != green {
		t.Fatalf("expected green at priority 10 (lower) to win, got %+v", got.Data)
	}

	// The higher-priority slot is still held, just not winning.
	snap := m.Snapshot()
	var sawTen, sawFifty bool
	for _, s := range snap {
		if s.Priority == 10 {
			sawTen = true
			if !s.IsWinner {
				t.Fatalf("priority 10 should be the winner")
			}
		}
		if s.Priority == 50 {
			sawFifty = true
			if s.IsWinner {
				t.Fatalf("priority 50 should not be the winner once 10 is held")
			}
		}
	}
	if !sawTen || !sawFifty {
		t.Fatalf("expected both slots held, got %+v", snap)
	}
}

func TestNewestWinsOnTie(t *testing.T) {
	m := New(nil)
	defer m.Close()
	ch, cancel := m.Subscribe()
	defer cancel()

	m.Publish(message.Input{SourceID: 1, Data: message.SolidColor{Priority: 50, Color: red}})
	waitMuxed(t, ch)

	m.Publish(message.Input{SourceID: 2, Data: message.SolidColor{Priority: 50, Color: green}})
	got := waitMuxed(t, ch)
	if c, ok := got.Data.(SolidColor); !ok || c.Color != green {
		t.Fatalf("a later message at the same priority should replace the winner, got %+v", got.Data)
	}
}

func TestDurationExpirySlotClearsAtItsDeadline(t *testing.T) {
	m := New(nil)
	defer m.Close()
	ch, cancel := m.Subscribe()
	defer cancel()

	m.Publish(message.Input{SourceID: 1, Data: message.SolidColor{Priority: 10, Duration: 30 * time.Millisecond, Color: red}})
	waitMuxed(t, ch)

	select {
	case <-time.After(200 * time.Millisecond):
	}
	snap := m.Snapshot()
	if len(snap) != 1 || snap[0].Priority != message.IdlePriority {
		t.Fatalf("expired slot should leave only the idle slot, got %+v", snap)
	}
}

func TestSourceDropIsEquivalentToClear(t *testing.T) {
	reg := registry.New()
	m := New(nil)
	defer m.Close()

	h := reg.Register(m, "test-source", 20, true)
	h.Send(message.SolidColor{Priority: 20, Color: red}, "test")
	// round-trip through the command goroutine before asserting state.
	m.Snapshot()
	time.Sleep(10 * time.Millisecond)

	h.Close()
	time.Sleep(10 * time.Millisecond)

	snap := m.Snapshot()
	if len(snap) != 1 || snap[0].Priority != message.IdlePriority {
		t.Fatalf("dropping the source should clear its slot like an explicit Clear, got %+v", snap)
	}
}

func TestIdleSlotNeverExternallyClearable(t *testing.T) {
	m := New(nil)
	defer m.Close()

	m.Publish(message.Input{Data: message.Clear{Priority: message.IdlePriority}})
	time.Sleep(10 * time.Millisecond)

	snap := m.Snapshot()
	if len(snap) != 1 || snap[0].Priority != message.IdlePriority {
		t.Fatalf("the idle slot must survive an external Clear, got %+v", snap)
	}
}

func TestClearAllRevertsToIdle(t *testing.T) {
	m := New(nil)
	defer m.Close()
	ch, cancel := m.Subscribe()
	defer cancel()

	m.Publish(message.Input{SourceID: 1, Data: message.SolidColor{Priority: 10, Color: red}})
	waitMuxed(t, ch)

	m.Publish(message.Input{Data: message.ClearAll{}})
	waitMuxed(t, ch)

	snap := m.Snapshot()
	if len(snap) != 1 || snap[0].Priority != message.IdlePriority {
		t.Fatalf("ClearAll should leave only the idle slot, got %+v", snap)
	}
}
