// Package engine coordinates key events, prefix matching, whitelist gating
// and text substitution.
//
// An Engine owns one key source at a time. Every event from the source is
// fed to the matcher; when a prefix completes the engine checks the
// foreground application against the whitelist and then replaces the typed
// prefix with the expansion body, either immediately or after the
// expansion's delay.
//
// Substitution erases the prefix with synthetic backspaces, puts the body on
// the clipboard and pastes it. Failures along the way are logged, counted and
// reported, but never stop the engine.
package engine

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"
	"unicode/utf8"

	"expanderd/internal/expansion"
	"expanderd/internal/keystroke"
	"expanderd/internal/matcher"
	"expanderd/internal/whitelist"
)

// Status is the engine lifecycle state.
type Status int

const (
	// Stopped means no key source is attached.
	Stopped Status = iota
	// Running means key events are being processed.
	Running
)

// String returns the status name.
func (s Status) String() string {
	if s == Running {
		return "running"
	}
	return "stopped"
}

// Config holds the engine timing and buffer settings.
type Config struct {
	// BackspacePacing is the pause after each synthetic backspace.
	// Default: 10ms
	BackspacePacing time.Duration

	// PasteSettle is the pause between the clipboard write and the paste.
	// Default: 50ms
	PasteSettle time.Duration

	// BufferSize is the number of typed runes the matcher keeps.
	// Default: 100
	BufferSize int

	// CancelPendingOnStop drops delayed expansions that have not fired yet
	// when the engine stops.
	CancelPendingOnStop bool

	// ReportInterval rate-limits operator reports per failure stage.
	// Default: 30s
	ReportInterval time.Duration

	// StopTimeout bounds how long Stop waits for the event loop to drain.
	StopTimeout time.Duration
}

// DefaultConfig returns the default engine configuration.
func DefaultConfig() *Config {
	return &Config{
		BackspacePacing:     10 * time.Millisecond,
		PasteSettle:         50 * time.Millisecond,
		BufferSize:          matcher.DefaultBufferSize,
		CancelPendingOnStop: true,
		ReportInterval:      30 * time.Second,
		StopTimeout:         2 * time.Second,
	}
}

// Deps are the capabilities the engine drives.
type Deps struct {
	Source    keystroke.Source
	Apps      AppInfoProvider
	Injector  Injector
	Clipboard Clipboard
	Config    ConfigSource
}

// Stats is a point-in-time view of engine activity.
type Stats struct {
	Status           Status    `json:"-"`
	Running          bool      `json:"running"`
	StartedAt        time.Time `json:"started_at,omitempty"`
	Expansions       int       `json:"expansions"`
	WhitelistEnabled bool      `json:"whitelist_enabled"`
	WhitelistEntries int       `json:"whitelist_entries"`
	Triggers         uint64    `json:"triggers"`
	Denied           uint64    `json:"denied"`
	Scheduled        uint64    `json:"scheduled"`
	Cancelled        uint64    `json:"cancelled"`
	Substitutions    uint64    `json:"substitutions"`
	Errors           uint64    `json:"errors"`
	Pending          int       `json:"pending"`
	LastError        string    `json:"last_error,omitempty"`
	LastErrorAt      time.Time `json:"last_error_at,omitempty"`
}

// Option customizes an Engine.
type Option func(*Engine)

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(e *Engine) {
		if l != nil {
			e.logger = l
		}
	}
}

// WithErrorReporter sets where capability failures are reported.
func WithErrorReporter(r ErrorReporter) Option {
	return func(e *Engine) { e.reporter = r }
}

// WithUsageRecorder records each completed substitution.
func WithUsageRecorder(u UsageRecorder) Option {
	return func(e *Engine) { e.usage = u }
}

// Engine is the expansion coordinator.
type Engine struct {
	cfg  *Config
	deps Deps

	matcher *matcher.Matcher
	gate    atomic.Pointer[whitelist.Gate]

	logger   *slog.Logger
	reporter ErrorReporter
	usage    UsageRecorder

	// lifecycle serializes Start, Stop and Refresh. It is never taken on
	// the event path.
	lifecycle sync.Mutex

	mu         sync.Mutex
	status     Status
	startedAt  time.Time
	cancel     context.CancelFunc
	done       chan struct{}
	pending    map[*time.Timer]struct{}
	onStatus   func(running bool)
	stats      Stats
	lastReport map[string]time.Time
}

// ErrMissingDependency is returned by New when a capability is nil.
var ErrMissingDependency = errors.New("engine: missing dependency")

// New creates a stopped Engine.
func New(cfg *Config, deps Deps, opts ...Option) (*Engine, error) {
	if cfg == nil {
		cfg = DefaultConfig()
	}
	switch {
	case deps.Source == nil:
		return nil, fmt.Errorf("%w: key source", ErrMissingDependency)
	case deps.Apps == nil:
		return nil, fmt.Errorf("%w: app info provider", ErrMissingDependency)
	case deps.Injector == nil:
		return nil, fmt.Errorf("%w: injector", ErrMissingDependency)
	case deps.Clipboard == nil:
		return nil, fmt.Errorf("%w: clipboard", ErrMissingDependency)
	case deps.Config == nil:
		return nil, fmt.Errorf("%w: config source", ErrMissingDependency)
	}

	e := &Engine{
		cfg:        cfg,
		deps:       deps,
		matcher:    matcher.New(cfg.BufferSize),
		logger:     slog.Default().With("component", "engine"),
		pending:    make(map[*time.Timer]struct{}),
		lastReport: make(map[string]time.Time),
	}
	gate := whitelist.NewGate(expansion.WhitelistConfig{})
	e.gate.Store(&gate)
	for _, opt := range opts {
		opt(e)
	}
	return e, nil
}

// OnStatusChange registers fn to be called after every state transition.
// A later call replaces the previous callback.
func (e *Engine) OnStatusChange(fn func(running bool)) {
	e.mu.Lock()
	e.onStatus = fn
	e.mu.Unlock()
}

// Status returns the lifecycle state.
func (e *Engine) Status() Status {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.status
}

// Running reports whether the engine is processing key events.
func (e *Engine) Running() bool {
	return e.Status() == Running
}

// Start loads the configuration snapshots and attaches the key source.
// Starting a running engine does nothing. ctx bounds the configuration load
// only; the listener runs until Stop.
func (e *Engine) Start(ctx context.Context) error {
	e.lifecycle.Lock()
	defer e.lifecycle.Unlock()

	if e.Running() {
		return nil
	}

	if err := e.refresh(ctx); err != nil {
		return err
	}

	runCtx, cancel := context.WithCancel(context.WithoutCancel(ctx))
	events, err := e.deps.Source.Start(runCtx)
	if err != nil {
		cancel()
		return fmt.Errorf("start key source: %w", err)
	}

	done := make(chan struct{})
	e.matcher.Clear()

	e.mu.Lock()
	e.status = Running
	e.startedAt = time.Now()
	e.cancel = cancel
	e.done = done
	cb := e.onStatus
	e.mu.Unlock()

	go e.run(events, done)

	e.logger.Info("expansion engine started", "expansions", e.matcher.Size())
	if cb != nil {
		cb(true)
	}
	return nil
}

// Stop detaches the key source and clears the input buffer. Stopping a
// stopped engine does nothing.
func (e *Engine) Stop() error {
	e.lifecycle.Lock()
	defer e.lifecycle.Unlock()

	e.mu.Lock()
	if e.status != Running {
		e.mu.Unlock()
		return nil
	}
	e.status = Stopped
	cancel, done := e.cancel, e.done
	e.cancel, e.done = nil, nil
	if e.cfg.CancelPendingOnStop {
		for t := range e.pending {
			if t.Stop() {
				e.stats.Cancelled++
			}
			delete(e.pending, t)
		}
	}
	cb := e.onStatus
	e.mu.Unlock()

	cancel()
	err := e.deps.Source.Stop()
	if err != nil {
		e.logger.Warn("stop key source", "error", err)
	}

	select {
	case <-done:
	case <-time.After(e.stopTimeout()):
		e.logger.Warn("key event loop did not exit in time")
	}
	e.matcher.Clear()

	e.logger.Info("expansion engine stopped")
	if cb != nil {
		cb(false)
	}
	return nil
}

// Refresh reloads expansions and whitelist settings from the config source
// and swaps them in. It works in either state. On error the previous
// snapshots stay active.
func (e *Engine) Refresh(ctx context.Context) error {
	e.lifecycle.Lock()
	defer e.lifecycle.Unlock()
	return e.refresh(ctx)
}

func (e *Engine) refresh(ctx context.Context) error {
	exps, err := e.deps.Config.LoadExpansions(ctx)
	if err != nil {
		return fmt.Errorf("load expansions: %w", err)
	}
	wl, err := e.deps.Config.LoadWhitelist(ctx)
	if err != nil {
		return fmt.Errorf("load whitelist: %w", err)
	}

	seen := make(map[string]bool, len(exps))
	for _, x := range exps {
		if seen[x.Prefix] {
			e.logger.Warn("duplicate prefix, last definition wins", "prefix", x.Prefix)
		}
		seen[x.Prefix] = true
	}

	gate := whitelist.NewGate(wl)
	e.matcher.Update(exps)
	e.gate.Store(&gate)
	e.logger.Debug("configuration applied",
		"expansions", e.matcher.Size(),
		"whitelist_enabled", wl.Enabled,
		"whitelist_entries", len(wl.Entries))
	return nil
}

// run feeds events to HandleKey until the source closes its channel.
func (e *Engine) run(events <-chan keystroke.Event, done chan struct{}) {
	defer close(done)
	for ev := range events {
		e.HandleKey(ev)
	}

	// A channel closed by the source itself, not by Stop, means capture was
	// lost. Drop to Stopped so the status reflects reality.
	e.mu.Lock()
	if e.done != done || e.status != Running {
		e.mu.Unlock()
		return
	}
	e.status = Stopped
	e.cancel()
	e.cancel, e.done = nil, nil
	cb := e.onStatus
	e.mu.Unlock()

	e.matcher.Clear()
	e.fail("capture", errors.New("key source closed unexpectedly"))
	if cb != nil {
		cb(false)
	}
}

// HandleKey processes one key event. Events are ignored while stopped.
func (e *Engine) HandleKey(ev keystroke.Event) {
	if !e.Running() {
		return
	}

	if ev.Kind == keystroke.KindBackspace {
		e.matcher.OnBackspace()
		return
	}
	r, ok := ev.Text()
	if !ok {
		e.matcher.OnNonTextKey()
		return
	}
	if tr, fired := e.matcher.OnCharacter(r); fired {
		e.handleTrigger(tr)
	}
}

func (e *Engine) handleTrigger(tr matcher.Trigger) {
	e.mu.Lock()
	e.stats.Triggers++
	e.mu.Unlock()

	app := e.deps.Apps.ActiveApp()
	if !e.gate.Load().Allows(app) {
		e.mu.Lock()
		e.stats.Denied++
		e.mu.Unlock()
		e.logger.Debug("expansion blocked by whitelist",
			"prefix", tr.Prefix, "process", app.ProcessName)
		return
	}

	if tr.Expansion.Delayed() {
		e.schedule(tr, time.Duration(tr.Expansion.TriggerDelayMs)*time.Millisecond)
		return
	}
	e.substitute(tr)
}

// schedule runs the substitution for tr after d unless the timer is
// cancelled by Stop first.
func (e *Engine) schedule(tr matcher.Trigger, d time.Duration) {
	e.mu.Lock()
	defer e.mu.Unlock()

	// Stop may have run while the trigger was being checked.
	if e.status != Running && e.cfg.CancelPendingOnStop {
		e.stats.Cancelled++
		e.logger.Debug("expansion dropped, engine stopped", "prefix", tr.Prefix)
		return
	}

	var t *time.Timer
	t = time.AfterFunc(d, func() {
		e.mu.Lock()
		_, ok := e.pending[t]
		delete(e.pending, t)
		e.mu.Unlock()
		if ok {
			e.substitute(tr)
		}
	})
	e.pending[t] = struct{}{}
	e.stats.Scheduled++
	e.logger.Debug("expansion scheduled", "prefix", tr.Prefix, "delay", d)
}

// substitute erases the typed prefix and pastes the body in its place.
func (e *Engine) substitute(tr matcher.Trigger) {
	n := utf8.RuneCountInString(tr.Prefix)
	for i := 0; i < n; i++ {
		if err := e.deps.Injector.Backspace(); err != nil {
			e.fail("backspace", err)
			return
		}
		sleep(e.cfg.BackspacePacing)
	}

	if err := e.deps.Clipboard.WriteText(tr.Expansion.Body); err != nil {
		e.fail("clipboard", err)
		return
	}
	sleep(e.cfg.PasteSettle)

	if err := e.deps.Injector.Paste(); err != nil {
		e.fail("paste", err)
		return
	}

	now := time.Now()
	e.mu.Lock()
	e.stats.Substitutions++
	e.mu.Unlock()
	e.logger.Debug("expansion substituted", "prefix", tr.Prefix, "id", tr.Expansion.ID)

	if e.usage != nil {
		ctx, cancel := context.WithTimeout(context.Background(), time.Second)
		defer cancel()
		if err := e.usage.RecordUsage(ctx, tr.Expansion.ID, tr.Prefix, now); err != nil {
			e.logger.Warn("record usage", "error", err)
		}
	}
}

// fail logs and counts a capability failure and reports it, at most once per
// ReportInterval for each stage.
func (e *Engine) fail(stage string, err error) {
	e.logger.Error("expansion failed", "stage", stage, "error", err)

	now := time.Now()
	e.mu.Lock()
	e.stats.Errors++
	e.stats.LastError = fmt.Sprintf("%s: %v", stage, err)
	e.stats.LastErrorAt = now
	report := e.reporter != nil && now.Sub(e.lastReport[stage]) >= e.cfg.ReportInterval
	if report {
		e.lastReport[stage] = now
	}
	e.mu.Unlock()

	if report {
		e.reporter.Report("Text expansion failed", fmt.Sprintf("%s: %v", stage, err))
	}
}

// Stats returns a snapshot of engine counters and state.
func (e *Engine) Stats() Stats {
	gate := e.gate.Load().Config()

	e.mu.Lock()
	defer e.mu.Unlock()
	s := e.stats
	s.Status = e.status
	s.Running = e.status == Running
	if s.Running {
		s.StartedAt = e.startedAt
	}
	s.Pending = len(e.pending)
	s.Expansions = e.matcher.Size()
	s.WhitelistEnabled = gate.Enabled
	s.WhitelistEntries = len(gate.Entries)
	return s
}

func (e *Engine) stopTimeout() time.Duration {
	if e.cfg.StopTimeout > 0 {
		return e.cfg.StopTimeout
	}
	return DefaultConfig().StopTimeout
}

func sleep(d time.Duration) {
	if d > 0 {
		time.Sleep(d)
	}
}
