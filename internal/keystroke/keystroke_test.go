package keystroke

import (
	"context"
	"testing"
	"time"
)

// =============================================================================
// Tests for Event
// =============================================================================

func TestEventText(t *testing.T) {
	tests := []struct {
		ev   Event
		want rune
		ok   bool
	}{
		{Char('a'), 'a', true},
		{Char(' '), ' ', true},
		{Char('\n'), '\n', true},
		{Key(KindSpace), ' ', true},
		{Key(KindEnter), '\n', true},
		{Key(KindBackspace), 0, false},
		{Key(KindOther), 0, false},
		{Event{Kind: KindChar}, 0, false},
	}

	for _, tt := range tests {
		t.Run(tt.ev.Kind.String(), func(t *testing.T) {
			got, ok := tt.ev.Text()
			if ok != tt.ok || got != tt.want {
				t.Errorf("Text() = %q, %v; want %q, %v", got, ok, tt.want, tt.ok)
			}
		})
	}
}

func TestCharClassifiesWhitespace(t *testing.T) {
	if Char(' ').Kind != KindSpace {
		t.Error("space should be KindSpace")
	}
	if Char('\r').Kind != KindEnter {
		t.Error("carriage return should be KindEnter")
	}
	if Char('x').Kind != KindChar {
		t.Error("x should be KindChar")
	}
}

// =============================================================================
// Tests for SimulatedSource
// =============================================================================

func TestSimulatedSourceDelivers(t *testing.T) {
	s := NewSimulated()
	ch, err := s.Start(context.Background())
	if err != nil {
		t.Fatalf("Start failed: %v", err)
	}
	defer s.Stop()

	s.Type("ab")
	s.Press(Key(KindBackspace))

	want := []Kind{KindChar, KindChar, KindBackspace}
	for i, k := range want {
		select {
		case ev := <-ch:
			if ev.Kind != k {
				t.Errorf("event %d: kind %v, want %v", i, ev.Kind, k)
			}
			if ev.Time.IsZero() {
				t.Errorf("event %d: missing timestamp", i)
			}
		case <-time.After(time.Second):
			t.Fatalf("timed out waiting for event %d", i)
		}
	}
}

func TestSimulatedSourceStartAlreadyRunning(t *testing.T) {
	s := NewSimulated()
	if _, err := s.Start(context.Background()); err != nil {
		t.Fatalf("first Start failed: %v", err)
	}
	defer s.Stop()

	if _, err := s.Start(context.Background()); err != ErrAlreadyRunning {
		t.Errorf("expected ErrAlreadyRunning, got %v", err)
	}
}

func TestSimulatedSourceStopClosesChannel(t *testing.T) {
	s := NewSimulated()
	ch, _ := s.Start(context.Background())

	if err := s.Stop(); err != nil {
		t.Fatalf("Stop failed: %v", err)
	}
	if s.IsRunning() {
		t.Error("source should not be running after Stop")
	}
	if _, ok := <-ch; ok {
		t.Error("channel should be closed after Stop")
	}
	if s.Press(Char('x')) {
		t.Error("Press after Stop should not deliver")
	}
	// Stop on a stopped source is a no-op.
	if err := s.Stop(); err != nil {
		t.Errorf("second Stop failed: %v", err)
	}
}

func TestSimulatedSourceContextCancel(t *testing.T) {
	s := NewSimulated()
	ctx, cancel := context.WithCancel(context.Background())
	ch, _ := s.Start(ctx)
	cancel()

	select {
	case _, ok := <-ch:
		if ok {
			t.Error("expected closed channel")
		}
	case <-time.After(time.Second):
		t.Fatal("channel not closed after context cancel")
	}
}

func TestSimulatedSourceRestart(t *testing.T) {
	s := NewSimulated()
	for i := 0; i < 3; i++ {
		ch, err := s.Start(context.Background())
		if err != nil {
			t.Fatalf("Start %d failed: %v", i, err)
		}
		s.Type("x")
		if ev := <-ch; ev.Rune != 'x' {
			t.Errorf("restart %d: got %q", i, ev.Rune)
		}
		s.Stop()
	}
	if s.Starts() != 3 {
		t.Errorf("expected 3 starts, got %d", s.Starts())
	}
}

func TestSimulatedSourceDropsWhenFull(t *testing.T) {
	s := NewSimulated()
	if _, err := s.Start(context.Background()); err != nil {
		t.Fatal(err)
	}
	defer s.Stop()

	n := DefaultOptions().BufferSize + 10
	for i := 0; i < n; i++ {
		s.Press(Char('a'))
	}
	if s.Dropped() != 10 {
		t.Errorf("expected 10 dropped events, got %d", s.Dropped())
	}
}

func TestSourceInterface(t *testing.T) {
	var _ Source = NewSimulated()
	var _ Source = New(Options{})
}
