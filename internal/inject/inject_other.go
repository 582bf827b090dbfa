//go:build !linux && !windows && !darwin

package inject

import (
	"context"
	"runtime"
)

type backend struct{}

func newBackend(*Injector) backend { return backend{} }

func (backend) backspace(context.Context) error { return ErrUnsupported }

func (backend) paste(context.Context) error { return ErrUnsupported }

func (backend) available() (bool, string) {
	return false, "key injection not implemented for " + runtime.GOOS
}
