//go:build !windows

package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
)

// handleSignals reloads expansions on SIGHUP.
func (d *Daemon) handleSignals(ctx context.Context) {
	hup := make(chan os.Signal, 1)
	signal.Notify(hup, syscall.SIGHUP)
	defer signal.Stop(hup)

	for {
		select {
		case <-hup:
			d.log.Info("SIGHUP received, reloading")
			d.reload()
		case <-ctx.Done():
			return
		case <-d.done:
			return
		}
	}
}

// shutdownSignals are the signals that stop the daemon.
var shutdownSignals = []os.Signal{os.Interrupt, syscall.SIGTERM}
