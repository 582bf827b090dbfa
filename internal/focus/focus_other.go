//go:build !linux && !windows && !darwin

package focus

import (
	"context"
	"errors"
	"runtime"

	"expanderd/internal/expansion"
)

type platform struct{}

func newPlatform(*Provider) platform { return platform{} }

func (platform) activeApp(context.Context) expansion.ActiveAppInfo {
	return expansion.UnknownApp()
}

func (platform) runningApps(context.Context) ([]string, error) {
	return nil, errors.New("listing applications is not supported on " + runtime.GOOS)
}

func (platform) available() (bool, string) {
	return false, "window lookup not implemented for " + runtime.GOOS
}
