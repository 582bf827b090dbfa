//go:build !linux

package keystroke

import (
	"context"
	"runtime"
)

// StubSource is used on platforms without a key capture backend.
type StubSource struct{}

func newPlatformSource(opts Options) Source {
	return &StubSource{}
}

// Available returns false on unsupported platforms.
func (s *StubSource) Available() (bool, string) {
	return false, "keyboard capture not implemented for " + runtime.GOOS
}

// Start returns an error on unsupported platforms.
func (s *StubSource) Start(ctx context.Context) (<-chan Event, error) {
	return nil, ErrNotAvailable
}

// Stop is a no-op on unsupported platforms.
func (s *StubSource) Stop() error {
	return nil
}
