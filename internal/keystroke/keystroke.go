// Package keystroke delivers global key-press events to the expansion engine.
//
// A Source reports each key press as an Event. Character-producing keys carry
// the rune they type under the active layout; backspace, space and enter have
// their own kinds; everything else (navigation, function keys, shortcut
// chords) is reported as KindOther so the engine can reset its buffer.
//
// Platform support:
//   - Linux: reads /dev/input/event* (requires the input group or root)
//   - Other platforms: not available; the daemon reports this at startup
package keystroke

import (
	"context"
	"errors"
	"sync"
	"time"
)

// Kind classifies a key press.
type Kind uint8

const (
	// KindOther is any key that does not produce text.
	KindOther Kind = iota
	// KindChar is a printable character; Event.Rune holds it.
	KindChar
	// KindSpace is the space bar.
	KindSpace
	// KindEnter is Return or keypad Enter.
	KindEnter
	// KindBackspace is the backspace key.
	KindBackspace
)

// String returns the kind name.
func (k Kind) String() string {
	switch k {
	case KindChar:
		return "char"
	case KindSpace:
		return "space"
	case KindEnter:
		return "enter"
	case KindBackspace:
		return "backspace"
	default:
		return "other"
	}
}

// Event is a single key press.
type Event struct {
	Kind Kind
	Rune rune
	Time time.Time
}

// Text returns the rune the event appends to typed text. Space and enter map
// to ' ' and '\n'.
func (e Event) Text() (rune, bool) {
	switch e.Kind {
	case KindChar:
		return e.Rune, e.Rune != 0
	case KindSpace:
		return ' ', true
	case KindEnter:
		return '\n', true
	default:
		return 0, false
	}
}

// Char builds a KindChar event.
func Char(r rune) Event {
	switch r {
	case ' ':
		return Event{Kind: KindSpace, Time: time.Now()}
	case '\n', '\r':
		return Event{Kind: KindEnter, Time: time.Now()}
	}
	return Event{Kind: KindChar, Rune: r, Time: time.Now()}
}

// Key builds an event of a non-character kind.
func Key(k Kind) Event {
	return Event{Kind: k, Time: time.Now()}
}

// Source delivers key events until stopped.
type Source interface {
	// Start begins listening. The returned channel is closed when the source
	// stops or ctx is cancelled.
	Start(ctx context.Context) (<-chan Event, error)

	// Stop stops listening and closes the event channel. It is safe to call
	// on a stopped source.
	Stop() error

	// Available reports whether key capture works on this platform with the
	// current permissions.
	Available() (bool, string)
}

// Options configures a platform source.
type Options struct {
	// Device pins a single input device (Linux evdev path). Empty means
	// every keyboard found.
	Device string

	// Layout names the key map used to translate scan codes. Only "us" is
	// built in.
	Layout string

	// BufferSize is the event channel capacity.
	BufferSize int
}

// DefaultOptions returns the options used when none are configured.
func DefaultOptions() Options {
	return Options{Layout: "us", BufferSize: 256}
}

// ErrNotAvailable is returned when key capture isn't available.
var ErrNotAvailable = errors.New("keyboard capture not available on this platform")

// ErrAlreadyRunning is returned when Start is called while already running.
var ErrAlreadyRunning = errors.New("key source already running")

// New creates a Source for the current platform.
func New(opts Options) Source {
	if opts.BufferSize <= 0 {
		opts.BufferSize = DefaultOptions().BufferSize
	}
	if opts.Layout == "" {
		opts.Layout = DefaultOptions().Layout
	}
	return newPlatformSource(opts)
}

// baseSource provides the running flag and event channel shared by
// implementations.
type baseSource struct {
	mu      sync.RWMutex
	running bool
	events  chan Event
	dropped uint64
}

// open marks the source running and allocates a fresh channel.
func (b *baseSource) open(size int) (chan Event, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.running {
		return nil, ErrAlreadyRunning
	}
	b.events = make(chan Event, size)
	b.running = true
	return b.events, nil
}

// emit delivers ev without blocking the reader; a full channel drops it.
func (b *baseSource) emit(ev Event) bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	if !b.running {
		return false
	}
	select {
	case b.events <- ev:
		return true
	default:
		b.dropped++
		return false
	}
}

// close marks the source stopped and closes the channel once.
func (b *baseSource) close() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	if !b.running {
		return false
	}
	b.running = false
	close(b.events)
	return true
}

// closeChan closes ch if it is still the active channel. A goroutine left
// over from an earlier run must not close a newer channel.
func (b *baseSource) closeChan(ch chan Event) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if !b.running || b.events != ch {
		return
	}
	b.running = false
	close(b.events)
}

// IsRunning returns the running state.
func (b *baseSource) IsRunning() bool {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.running
}

// Dropped returns how many events were discarded because the consumer fell
// behind.
func (b *baseSource) Dropped() uint64 {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.dropped
}

// SimulatedSource is a Source for tests that doesn't hook a real keyboard.
type SimulatedSource struct {
	baseSource
	cancel context.CancelFunc
	starts int
}

// NewSimulated creates a source for testing.
func NewSimulated() *SimulatedSource {
	return &SimulatedSource{}
}

// Start begins the simulated source. Cancelling ctx stops it.
func (s *SimulatedSource) Start(ctx context.Context) (<-chan Event, error) {
	ch, err := s.open(DefaultOptions().BufferSize)
	if err != nil {
		return nil, err
	}
	ctx, cancel := context.WithCancel(ctx)
	s.mu.Lock()
	s.cancel = cancel
	s.starts++
	s.mu.Unlock()
	go func() {
		<-ctx.Done()
		s.closeChan(ch)
	}()
	return ch, nil
}

// Stop stops the simulated source.
func (s *SimulatedSource) Stop() error {
	s.mu.Lock()
	cancel := s.cancel
	s.cancel = nil
	s.mu.Unlock()
	if cancel != nil {
		cancel()
	}
	s.close()
	return nil
}

// Available returns true (simulated is always available).
func (s *SimulatedSource) Available() (bool, string) {
	return true, "simulated key source (for testing)"
}

// Starts returns how many times Start succeeded.
func (s *SimulatedSource) Starts() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.starts
}

// Press simulates a single key event.
func (s *SimulatedSource) Press(ev Event) bool {
	if ev.Time.IsZero() {
		ev.Time = time.Now()
	}
	return s.emit(ev)
}

// Type simulates typing each rune of text.
func (s *SimulatedSource) Type(text string) {
	for _, r := range text {
		s.Press(Char(r))
	}
}
