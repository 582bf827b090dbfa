//go:build windows

package main

import (
	"context"
	"os"
)

// handleSignals does nothing on Windows, which has no SIGHUP. Reload with
// expanderctl reload instead.
func (d *Daemon) handleSignals(ctx context.Context) {}

// shutdownSignals are the signals that stop the daemon.
var shutdownSignals = []os.Signal{os.Interrupt}
