package main

import (
	"context"
	"fmt"
	"io"
	"os/signal"
	"text/tabwriter"
	"time"

	"github.com/urfave/cli/v2"

	"expanderd/internal/config"
	"expanderd/internal/ipc"
	"expanderd/internal/logging"
	"expanderd/internal/store"
)

// runAction runs the daemon until SIGINT or SIGTERM.
func runAction(c *cli.Context) error {
	loader := config.NewLoader(c.String("config"))
	cfg, err := loader.Load()
	if err != nil {
		return fmt.Errorf("load config %s: %w", loader.Path(), err)
	}
	if lvl := c.String("log-level"); lvl != "" {
		cfg.Logging.Level = lvl
	}

	log, err := newLogger(cfg.Logging)
	if err != nil {
		return err
	}
	logging.SetDefault(log)
	defer log.Close()

	loader.OnChange(func(next *config.Config) {
		if c.IsSet("log-level") {
			return
		}
		if lvl, err := logging.ParseLevel(next.Logging.Level); err == nil && lvl != log.Level() {
			log.SetLevel(lvl)
			log.Info("log level changed", "level", logging.LevelString(lvl))
		}
	})
	if err := loader.Watch(); err != nil {
		log.Warn("config file watch unavailable", "path", loader.Path(), "error", err)
	}
	defer loader.Close()

	d, err := newDaemon(cfg, log, newPlatform(cfg, log))
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(c.Context, shutdownSignals...)
	defer stop()

	log.Info("expanderd starting",
		"version", Version,
		"config", loader.Path(),
		"storage", cfg.Storage.Type,
		"data", cfg.Storage.Path,
	)
	return d.Run(ctx)
}

// newLogger builds the daemon logger from the [logging] section.
func newLogger(c config.LoggingConfig) (*logging.Logger, error) {
	level, err := logging.ParseLevel(c.Level)
	if err != nil {
		return nil, err
	}
	format, err := logging.ParseFormat(c.Format)
	if err != nil {
		return nil, err
	}

	lc := logging.DefaultConfig()
	lc.Level = level
	lc.Format = format
	lc.Output = c.Output
	if c.FilePath != "" {
		lc.FilePath = c.FilePath
	}
	lc.MaxSize = int64(c.MaxSizeMB)
	lc.MaxBackups = c.MaxBackups
	lc.MaxAge = c.MaxAgeDays
	lc.Compress = c.Compress
	return logging.New(lc)
}

// availability is implemented by every platform capability.
type availability interface {
	Available() (bool, string)
}

// checkAction reports whether each platform capability works here.
func checkAction(c *cli.Context) error {
	cfg, err := config.Load(c.String("config"))
	if err != nil {
		return err
	}
	log, err := logging.New(&logging.Config{Level: logging.LevelError, Writer: io.Discard})
	if err != nil {
		return err
	}
	p := newPlatform(cfg, log)

	w := tabwriter.NewWriter(c.App.Writer, 0, 0, 2, ' ', 0)
	failed := 0
	line := func(name string, ok bool, detail string) {
		mark := "ok"
		if !ok {
			mark = "FAIL"
			failed++
		}
		fmt.Fprintf(w, "%s\t%s\t%s\n", name, mark, detail)
	}

	for _, item := range []struct {
		name       string
		capability any
	}{
		{"key capture", p.source},
		{"app lookup", p.apps},
		{"paste", p.injector},
		{"clipboard", p.clipboard},
	} {
		if a, ok := item.capability.(availability); ok {
			ok, detail := a.Available()
			line(item.name, ok, detail)
		}
	}

	st, err := store.Open(cfg.Storage)
	if err != nil {
		line("data store", false, err.Error())
	} else {
		ctx, cancel := context.WithTimeout(c.Context, 5*time.Second)
		exps, err := st.LoadExpansions(ctx)
		cancel()
		st.Close()
		if err != nil {
			line("data store", false, err.Error())
		} else {
			line("data store", true, fmt.Sprintf("%s %s (%d expansions)", cfg.Storage.Type, cfg.Storage.Path, len(exps)))
		}
	}

	if ipc.IsSocketListening(cfg.IPC.SocketPath) {
		fmt.Fprintf(w, "daemon\trunning\t%s\n", cfg.IPC.SocketPath)
	} else {
		fmt.Fprintf(w, "daemon\tstopped\t%s\n", cfg.IPC.SocketPath)
	}
	w.Flush()

	if failed > 0 {
		return cli.Exit(fmt.Sprintf("%d check(s) failed", failed), 1)
	}
	return nil
}
