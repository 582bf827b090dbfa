// Package matcher implements the rolling input buffer and prefix detection.
//
// The buffer holds the most recent runes typed by the user. On every appended
// rune the buffer suffix is compared against the active prefix set and the
// longest matching prefix fires. Firing clears the buffer so overlapping
// input cannot re-trigger.
package matcher

import (
	"slices"
	"strings"
	"sync"
	"sync/atomic"

	"expanderd/internal/expansion"
)

// DefaultBufferSize is the number of runes retained in the input buffer.
const DefaultBufferSize = 100

// Trigger is returned when a typed rune completes a configured prefix.
type Trigger struct {
	Prefix    string
	Expansion expansion.Expansion
}

// activeSet is an immutable prefix dictionary. A new one is built on every
// update and swapped in atomically.
type activeSet struct {
	byPrefix map[string]expansion.Expansion
	// prefixes holds the same keys as runes, longest first.
	prefixes [][]rune
}

// Matcher owns the input buffer and the active expansion set.
type Matcher struct {
	mu     sync.Mutex
	buffer []rune
	size   int

	active atomic.Pointer[activeSet]
}

// New creates a Matcher with the given buffer capacity. A non-positive size
// selects DefaultBufferSize.
func New(size int) *Matcher {
	if size <= 0 {
		size = DefaultBufferSize
	}
	m := &Matcher{
		buffer: make([]rune, 0, size),
		size:   size,
	}
	m.active.Store(&activeSet{byPrefix: map[string]expansion.Expansion{}})
	return m
}

// Update replaces the active expansion set. Expansions with an empty prefix
// are skipped. When two expansions share a prefix the later one wins.
func (m *Matcher) Update(expansions []expansion.Expansion) {
	set := &activeSet{byPrefix: make(map[string]expansion.Expansion, len(expansions))}
	for _, e := range expansions {
		if e.Prefix == "" {
			continue
		}
		set.byPrefix[e.Prefix] = e
	}
	set.prefixes = make([][]rune, 0, len(set.byPrefix))
	for p := range set.byPrefix {
		set.prefixes = append(set.prefixes, []rune(p))
	}
	sortLongestFirst(set.prefixes)
	m.active.Store(set)
}

// OnCharacter appends r to the buffer and reports a trigger if the buffer now
// ends with a configured prefix.
func (m *Matcher) OnCharacter(r rune) (Trigger, bool) {
	set := m.active.Load()

	m.mu.Lock()
	defer m.mu.Unlock()

	m.buffer = append(m.buffer, r)
	if over := len(m.buffer) - m.size; over > 0 {
		copy(m.buffer, m.buffer[over:])
		m.buffer = m.buffer[:m.size]
	}

	for _, p := range set.prefixes {
		if hasRuneSuffix(m.buffer, p) {
			prefix := string(p)
			m.buffer = m.buffer[:0]
			return Trigger{Prefix: prefix, Expansion: set.byPrefix[prefix]}, true
		}
	}
	return Trigger{}, false
}

// OnBackspace removes the last buffered rune.
func (m *Matcher) OnBackspace() {
	m.mu.Lock()
	defer m.mu.Unlock()
	if n := len(m.buffer); n > 0 {
		m.buffer = m.buffer[:n-1]
	}
}

// OnNonTextKey clears the buffer. Navigation and function keys move the
// caret, so buffered text no longer precedes it.
func (m *Matcher) OnNonTextKey() {
	m.Clear()
}

// Clear empties the buffer.
func (m *Matcher) Clear() {
	m.mu.Lock()
	m.buffer = m.buffer[:0]
	m.mu.Unlock()
}

// Buffer returns the current buffer contents.
func (m *Matcher) Buffer() string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return string(m.buffer)
}

// Len returns the number of buffered runes.
func (m *Matcher) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.buffer)
}

// Size returns the number of prefixes in the active set.
func (m *Matcher) Size() int {
	return len(m.active.Load().byPrefix)
}

// Lookup returns the expansion registered for prefix in the active set.
func (m *Matcher) Lookup(prefix string) (expansion.Expansion, bool) {
	e, ok := m.active.Load().byPrefix[prefix]
	return e, ok
}

func hasRuneSuffix(buf, suffix []rune) bool {
	if len(suffix) > len(buf) {
		return false
	}
	off := len(buf) - len(suffix)
	for i, r := range suffix {
		if buf[off+i] != r {
			return false
		}
	}
	return true
}

// sortLongestFirst orders prefixes by descending rune length, breaking ties
// lexically so iteration order is deterministic.
func sortLongestFirst(ps [][]rune) {
	slices.SortFunc(ps, func(a, b []rune) int {
		if len(a) != len(b) {
			return len(b) - len(a)
		}
		return strings.Compare(string(a), string(b))
	})
}
