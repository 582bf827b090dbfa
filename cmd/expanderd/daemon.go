package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strconv"
	"sync"
	"time"

	"expanderd/internal/config"
	"expanderd/internal/engine"
	"expanderd/internal/focus"
	"expanderd/internal/inject"
	"expanderd/internal/ipc"
	"expanderd/internal/keystroke"
	"expanderd/internal/logging"
	"expanderd/internal/notify"
	"expanderd/internal/store"
	"expanderd/internal/watcher"
)

// platform bundles the OS capabilities the engine drives.
type platform struct {
	source    keystroke.Source
	apps      engine.AppInfoProvider
	injector  engine.Injector
	clipboard engine.Clipboard
	reporter  engine.ErrorReporter
}

// newPlatform selects the capability implementations for this OS.
func newPlatform(cfg *config.Config, log *logging.Logger) platform {
	return platform{
		source: keystroke.New(keystroke.Options{
			Device:     cfg.Input.Device,
			Layout:     cfg.Input.Layout,
			BufferSize: cfg.Input.BufferSize,
		}),
		apps:      focus.New(),
		injector:  inject.New(),
		clipboard: inject.NewClipboard(),
		reporter:  notify.New(cfg.Notify.Enabled, log.Logger),
	}
}

// Daemon owns every long-running component of expanderd.
type Daemon struct {
	cfg     *config.Config
	log     *logging.Logger
	store   store.Store
	engine  *engine.Engine
	server  *ipc.Server
	watcher *watcher.Watcher

	wg   sync.WaitGroup
	done chan struct{}
	once sync.Once
}

// newDaemon opens the store and builds the engine. Nothing runs until
// Start.
func newDaemon(cfg *config.Config, log *logging.Logger, p platform) (*Daemon, error) {
	if err := cfg.EnsureDirectories(); err != nil {
		return nil, err
	}

	st, err := store.Open(cfg.Storage)
	if err != nil {
		return nil, fmt.Errorf("open %s store: %w", cfg.Storage.Type, err)
	}

	opts := []engine.Option{
		engine.WithLogger(log.WithComponent("engine").Logger),
	}
	if p.reporter != nil {
		opts = append(opts, engine.WithErrorReporter(p.reporter))
	}
	if rec, ok := st.(engine.UsageRecorder); ok {
		opts = append(opts, engine.WithUsageRecorder(rec))
	}

	eng, err := engine.New(engineConfig(cfg.Engine), engine.Deps{
		Source:    p.source,
		Apps:      p.apps,
		Injector:  p.injector,
		Clipboard: p.clipboard,
		Config:    st,
	}, opts...)
	if err != nil {
		st.Close()
		return nil, err
	}

	d := &Daemon{
		cfg:    cfg,
		log:    log.WithComponent("daemon"),
		store:  st,
		engine: eng,
		done:   make(chan struct{}),
	}
	eng.OnStatusChange(func(running bool) {
		d.log.Info("engine status changed", "running", running)
	})
	return d, nil
}

// engineConfig converts the [engine] section to engine settings.
func engineConfig(c config.EngineConfig) *engine.Config {
	cfg := engine.DefaultConfig()
	cfg.BackspacePacing = time.Duration(c.BackspacePacingMs) * time.Millisecond
	cfg.PasteSettle = time.Duration(c.PasteSettleMs) * time.Millisecond
	if c.BufferSize > 0 {
		cfg.BufferSize = c.BufferSize
	}
	cfg.CancelPendingOnStop = c.CancelPendingOnStop
	if c.ReportIntervalSec > 0 {
		cfg.ReportInterval = time.Duration(c.ReportIntervalSec) * time.Second
	}
	return cfg
}

// serverConfig converts the [ipc] section to server settings.
func serverConfig(c config.IPCConfig) ipc.ServerConfig {
	cfg := ipc.DefaultServerConfig(c.SocketPath)
	cfg.Version = Version
	if perm, err := strconv.ParseUint(c.Permissions, 8, 32); err == nil && perm != 0 {
		cfg.Permissions = os.FileMode(perm)
	}
	if c.TimeoutSec > 0 {
		cfg.ReadTimeout = time.Duration(c.TimeoutSec) * time.Second
		cfg.WriteTimeout = cfg.ReadTimeout
	}
	if c.MaxConnections > 0 {
		cfg.MaxConnections = c.MaxConnections
	}
	return cfg
}

// Start brings up the control socket and the data-file watcher, then the
// engine when autostart is set. An engine that cannot start is reported but
// does not stop the daemon while the control socket is up, so the operator
// can fix permissions and retry with expanderctl start.
func (d *Daemon) Start(ctx context.Context) error {
	if d.cfg.IPC.Enabled {
		handler := ipc.NewDaemonHandler(ipc.DaemonHandlerConfig{
			Version: Version,
			Storage: ipc.StorageStatus{Type: d.cfg.Storage.Type, Path: d.cfg.Storage.Path},
			Engine:  d.engine,
		})
		server, err := ipc.NewServer(serverConfig(d.cfg.IPC), handler)
		if err != nil {
			return err
		}
		if err := server.Start(); err != nil {
			return fmt.Errorf("start control socket: %w", err)
		}
		d.server = server
	}

	// SQLite writes land in the WAL first, so only the JSON file is watched.
	// expanderctl sends a reload after every edit either way.
	if d.cfg.Watch.Enabled && d.cfg.Storage.Type == "json" {
		if err := d.startWatcher(); err != nil {
			d.log.Warn("data file watch unavailable", "path", d.cfg.Storage.Path, "error", err)
		}
	}

	if !d.cfg.Engine.Autostart {
		if err := d.engine.Refresh(ctx); err != nil {
			d.log.Warn("initial load failed", "error", err)
		}
		d.log.Info("engine idle until started", "socket", d.cfg.IPC.SocketPath)
		return nil
	}

	if err := d.engine.Start(ctx); err != nil {
		if d.server == nil {
			return fmt.Errorf("start engine: %w", err)
		}
		d.log.Error("engine failed to start", "error", err)
		if errors.Is(err, keystroke.ErrNotAvailable) {
			d.log.Info("run 'expanderd check' for key capture requirements")
		}
	}
	return nil
}

func (d *Daemon) startWatcher() error {
	debounce := time.Duration(d.cfg.Watch.DebounceMs) * time.Millisecond
	w, err := watcher.New(d.cfg.Storage.Path, debounce)
	if err != nil {
		return err
	}
	if err := w.Start(); err != nil {
		w.Stop()
		return err
	}
	d.watcher = w

	d.wg.Add(1)
	go func() {
		defer d.wg.Done()
		for {
			select {
			case ev, ok := <-w.Events():
				if !ok {
					return
				}
				d.log.Info("data file changed, reloading", "path", ev.Path, "size", ev.Size)
				d.reload()
			case err, ok := <-w.Errors():
				if !ok {
					return
				}
				d.log.Warn("data file watch", "error", err)
			case <-d.done:
				return
			}
		}
	}()
	return nil
}

// reload re-reads expansions and whitelist settings.
func (d *Daemon) reload() {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := d.engine.Refresh(ctx); err != nil {
		d.log.Warn("reload failed, keeping previous expansions", "error", err)
		return
	}
	d.log.Info("expansions reloaded", "expansions", d.engine.Stats().Expansions)
}

// Stop shuts everything down in reverse order of Start.
func (d *Daemon) Stop() error {
	var errs []error
	d.once.Do(func() {
		close(d.done)
		if err := d.engine.Stop(); err != nil {
			errs = append(errs, err)
		}
		if d.watcher != nil {
			d.watcher.Stop()
		}
		d.wg.Wait()
		if d.server != nil {
			if err := d.server.Stop(); err != nil {
				errs = append(errs, err)
			}
		}
		if err := d.store.Close(); err != nil {
			errs = append(errs, err)
		}
	})
	return errors.Join(errs...)
}

// Run starts the daemon and blocks until ctx is cancelled.
func (d *Daemon) Run(ctx context.Context) error {
	if err := d.Start(ctx); err != nil {
		d.Stop()
		return err
	}

	d.wg.Add(1)
	go func() {
		defer d.wg.Done()
		d.handleSignals(ctx)
	}()

	<-ctx.Done()
	d.log.Info("shutting down")
	return d.Stop()
}
