// Package daemon runs the snipit expansion engine as a background process:
// it wires the keyboard source, engine, output sink, history, metrics and
// control socket together and owns their lifecycle.
package daemon

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"sync"
	"syscall"
	"time"

	"snipit/internal/config"
	"snipit/internal/engine"
	"snipit/internal/health"
	"snipit/internal/history"
	"snipit/internal/ipc"
	"snipit/internal/keystroke"
	"snipit/internal/logging"
	"snipit/internal/metrics"
	"snipit/internal/notify"
	"snipit/internal/snippet"
)

// ErrSourceClosed is returned by Run when the keyboard source stops on its own.
var ErrSourceClosed = errors.New("keyboard source closed")

// Options configures a Daemon. Zero values select the platform defaults.
type Options struct {
	ConfigPath string
	PIDPath    string
	ListPath   string
	CrashDir   string
	Version    string
	Logger     *logging.Logger

	// Source, Sink and Notifier replace the platform implementations.
	Source   keystroke.Source
	Sink     engine.Sink
	Notifier notify.Notifier

	Clock    engine.Clock
	Registry *metrics.Registry
}

// Daemon owns one running expansion engine.
type Daemon struct {
	opts    Options
	logger  *logging.Logger
	manager *Manager
	crash   *logging.CrashHandler

	mu  sync.RWMutex
	cfg *config.Config

	engine   *engine.Engine
	watcher  *engine.TimeoutWatcher
	metrics  *metrics.EngineMetrics
	source   keystroke.Source
	paste    *keystroke.PasteSink
	notifier notify.Notifier
	history  *history.Store
	loader   *config.Loader
	server   *ipc.Server
	health   *health.Checker
	backend  string

	startedAt time.Time
	stopOnce  sync.Once
	stop      chan struct{}
}

// New loads the configuration and builds every component. Nothing is
// started until Run.
func New(opts Options) (*Daemon, error) {
	if opts.ConfigPath == "" {
		opts.ConfigPath = config.ConfigPath()
	}
	if opts.PIDPath == "" {
		opts.PIDPath = config.PIDPath()
	}
	if opts.ListPath == "" {
		opts.ListPath = filepath.Join(filepath.Dir(opts.ConfigPath), "List.txt")
	}
	if opts.Logger == nil {
		opts.Logger = logging.Default()
	}

	d := &Daemon{
		opts:    opts,
		logger:  opts.Logger.WithComponent("daemon"),
		manager: NewManager(opts.PIDPath),
		health:  health.NewChecker(),
		stop:    make(chan struct{}),
	}
	d.crash = logging.NewCrashHandler(opts.CrashDir, "engine", opts.Logger)
	d.crash.SetVersion(opts.Version)

	cfg, created, err := config.LoadOrCreate(opts.ConfigPath)
	switch {
	case err != nil:
		d.logger.Warn("configuration unreadable, using built-in snippets", "path", opts.ConfigPath, "error", err)
		cfg = config.DefaultConfig()
	case created:
		d.logger.Info("wrote default configuration", "path", opts.ConfigPath)
	}
	d.cfg = cfg

	table, err := snippet.Load(cfg)
	if err != nil {
		d.logger.Warn("snippet list unusable, using built-in snippets", "error", err)
		table = snippet.Default()
	}

	registry := opts.Registry
	if registry == nil {
		registry = metrics.NewRegistry("snipit")
	}
	d.metrics = metrics.NewEngineMetrics(registry)

	sink := opts.Sink
	if sink == nil {
		if sink, err = d.buildSink(cfg); err != nil {
			return nil, err
		}
	}

	d.notifier = opts.Notifier
	if d.notifier == nil {
		n, err := notify.New("snipit")
		if err != nil {
			d.logger.Debug("desktop notifications unavailable", "error", err)
		}
		d.notifier = n
	}

	var recorder engine.Recorder
	if cfg.History.Enabled {
		store, err := history.Open(cfg.History.Path)
		if err != nil {
			d.logger.Warn("firing history disabled", "path", cfg.History.Path, "error", err)
		} else {
			d.history = store
			recorder = store
		}
	}

	d.engine, err = engine.New(engine.Config{
		Table:      table,
		Sink:       sink,
		Notifier:   d.notifier,
		Recorder:   recorder,
		Metrics:    d.metrics,
		Logger:     opts.Logger,
		Clock:      opts.Clock,
		Sound:      cfg.Settings.Sound,
		PasteDelay: cfg.PasteDelay(),
	})
	if err != nil {
		d.closeStores()
		return nil, fmt.Errorf("create engine: %w", err)
	}
	d.watcher = engine.NewTimeoutWatcher(d.engine, cfg.Timeout(), cfg.PollInterval())

	d.source = opts.Source
	if d.source == nil {
		d.source = keystroke.New(cfg.Input.Device)
	}
	return d, nil
}

// buildSink types through the injection tool, staging text on the clipboard
// when one is available.
func (d *Daemon) buildSink(cfg *config.Config) (engine.Sink, error) {
	injector, err := keystroke.NewCommandInjector(cfg.Output.Backend)
	if err != nil {
		return nil, fmt.Errorf("output backend: %w", err)
	}
	d.backend = injector.Backend()

	if !keystroke.ClipboardAvailable() {
		d.logger.Info("no clipboard utility found, typing expansions directly", "backend", d.backend)
		return injector, nil
	}
	d.paste = keystroke.NewPasteSink(injector, keystroke.SystemClipboard{}, cfg.ClipboardRestore())
	return d.paste, nil
}

// Engine returns the daemon's engine.
func (d *Daemon) Engine() *engine.Engine {
	return d.engine
}

// Config returns the configuration currently in effect.
func (d *Daemon) Config() *config.Config {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return d.cfg
}

// Stop asks Run to return. It is safe to call more than once.
func (d *Daemon) Stop() {
	d.stopOnce.Do(func() { close(d.stop) })
}

// Run starts every component and delivers key events to the engine until ctx
// is cancelled, Stop is called, the exit hotkey is pressed or SIGINT/SIGTERM
// arrives. SIGHUP reloads the configuration.
func (d *Daemon) Run(ctx context.Context) error {
	if err := d.manager.Acquire(); err != nil {
		d.closeStores()
		return err
	}

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	defer d.shutdown()

	cfg := d.Config()
	d.startedAt = time.Now()
	if err := d.manager.WriteState(&State{
		PID:        os.Getpid(),
		StartedAt:  d.startedAt,
		Version:    d.opts.Version,
		ConfigPath: d.opts.ConfigPath,
		SocketPath: cfg.IPC.SocketPath,
	}); err != nil {
		d.logger.Warn("write state file", "error", err)
	}

	d.writeList(d.engine.Table())
	d.pruneHistory(ctx, cfg)
	d.registerChecks()

	if cfg.Metrics.Enabled {
		addr, err := d.metrics.Registry().ServeWith(ctx, cfg.Metrics.Listen, d.health.Routes())
		if err != nil {
			d.logger.Warn("metrics endpoint disabled", "error", err)
		} else {
			d.logger.Info("metrics endpoint listening", "addr", addr.String())
		}
	}

	if cfg.IPC.Enabled {
		srv, err := ipc.NewServer(ipc.ServerConfig{SocketPath: cfg.IPC.SocketPath, Logger: d.opts.Logger}, d)
		if err == nil {
			err = srv.Start()
		}
		if err != nil {
			d.logger.Warn("control socket disabled", "error", err)
		} else {
			d.server = srv
		}
	}

	d.loader = config.NewLoader(d.opts.ConfigPath)
	d.loader.OnChange(d.onConfigChange)
	if err := d.loader.Watch(); err != nil {
		d.logger.Warn("configuration hot reload disabled", "error", err)
	}

	if ok, reason := d.source.Available(); !ok {
		return fmt.Errorf("%w: %s", keystroke.ErrNotAvailable, reason)
	}
	if err := d.source.Start(ctx); err != nil {
		return fmt.Errorf("start keyboard source: %w", err)
	}
	events := d.source.Events()

	d.watcher.Start(ctx)
	d.health.SetReady(true)
	defer d.health.SetReady(false)

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM, syscall.SIGHUP)
	defer signal.Stop(sigCh)

	uptime := time.NewTicker(10 * time.Second)
	defer uptime.Stop()

	d.logger.Info("snipit running",
		"version", d.opts.Version,
		"snippets", d.engine.Table().Len(),
		"sound", d.engine.Sound(),
		"backend", d.backend,
	)

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-d.stop:
			return nil
		case ev, ok := <-events:
			if !ok {
				return ErrSourceClosed
			}
			d.handleKey(ev.Name)
		case sig := <-sigCh:
			if sig == syscall.SIGHUP {
				d.Reload()
				continue
			}
			d.logger.Info("received signal, shutting down", "signal", sig.String())
			return nil
		case err := <-d.loader.Errors():
			d.logger.Warn("configuration reload failed", "error", err)
		case <-uptime.C:
			d.metrics.UpdateUptime()
		}
	}
}

// handleKey delivers one key to the engine and runs any bound hotkey.
// A panic inside the engine is recorded and the key dropped.
func (d *Daemon) handleKey(name string) {
	d.crash.Guard("on_key", func() { d.engine.OnKey(name) })

	switch d.hotkey(name) {
	case actionExit:
		d.logger.Info("exit hotkey pressed")
		d.Stop()
	case actionToggleSound:
		d.ToggleSound()
	case actionReload, actionReset:
		d.Reload()
	}
}

type action int

const (
	actionNone action = iota
	actionExit
	actionToggleSound
	actionReload
	actionReset
)

func (d *Daemon) hotkey(name string) action {
	if len([]rune(name)) < 2 {
		return actionNone
	}
	chord := keystroke.NormalizeChord(name)
	h := d.Config().Hotkeys

	bindings := []struct {
		chord  string
		action action
	}{
		{h.Exit, actionExit},
		{h.ToggleSound, actionToggleSound},
		{h.Reload, actionReload},
		{h.Reset, actionReset},
	}
	for _, b := range bindings {
		if b.chord != "" && keystroke.NormalizeChord(b.chord) == chord {
			return b.action
		}
	}
	return actionNone
}

// Reload re-reads the configuration file, swaps in its table and clears the
// input buffer. If the file cannot be used the built-in snippets are loaded
// and the error is returned as a warning.
func (d *Daemon) Reload() (int, error) {
	table, cfg, err := snippet.LoadFile(d.opts.ConfigPath)
	if err != nil {
		d.logger.Warn("configuration unreadable, using built-in snippets", "error", err)
	}
	d.apply(cfg, table)
	return table.Len(), err
}

func (d *Daemon) onConfigChange(cfg *config.Config) {
	table, err := snippet.Load(cfg)
	if err != nil {
		d.logger.Warn("snippet list unusable, keeping current table", "error", err)
		return
	}
	d.apply(cfg, table)
}

func (d *Daemon) apply(cfg *config.Config, table *snippet.Table) {
	d.mu.Lock()
	d.cfg = cfg
	d.mu.Unlock()

	d.engine.SetTable(table)
	d.engine.SetSound(cfg.Settings.Sound)
	d.engine.Reset()
	d.writeList(table)
}

// SetSound turns the firing sound on or off and saves the setting.
func (d *Daemon) SetSound(on bool) bool {
	d.engine.SetSound(on)
	d.persistSound(on)
	return on
}

// ToggleSound flips the firing sound and saves the setting.
func (d *Daemon) ToggleSound() bool {
	on := d.engine.ToggleSound()
	d.persistSound(on)
	d.logger.Info("sound toggled", "sound", on)
	return on
}

func (d *Daemon) persistSound(on bool) {
	d.mu.Lock()
	cfg := d.cfg.Clone()
	cfg.Settings.Sound = on
	d.cfg = cfg
	d.mu.Unlock()

	if err := config.SaveConfig(cfg, d.opts.ConfigPath); err != nil {
		d.logger.Warn("could not save sound setting", "error", err)
	}
}

// registerChecks registers the component checks served on the metrics
// endpoint and reported by Status.
func (d *Daemon) registerChecks() {
	d.health.RegisterFunc("keyboard", true, health.CustomCheck(func(context.Context) error {
		if r, ok := d.source.(interface{ IsRunning() bool }); ok && !r.IsRunning() {
			return keystroke.ErrNotAvailable
		}
		return nil
	}))
	d.health.RegisterFunc("config", false, health.Degrading("built-in snippets in use", func(context.Context) error {
		_, err := config.Load(d.opts.ConfigPath)
		return err
	}))
	if store := d.history; store != nil {
		d.health.RegisterFunc("history", false, health.Degrading("firings not recorded", func(ctx context.Context) error {
			_, err := store.Count(ctx)
			return err
		}))
	}
}

// Status reports the daemon and engine state.
func (d *Daemon) Status(ctx context.Context) *ipc.StatusResponse {
	st := d.engine.Status()
	overall, problems := d.health.Summary(ctx)
	return &ipc.StatusResponse{
		Health:         string(overall),
		Problems:       problems,
		Version:        d.opts.Version,
		PID:            os.Getpid(),
		StartedAt:      d.startedAt,
		Uptime:         time.Since(d.startedAt),
		ConfigPath:     d.opts.ConfigPath,
		Backend:        d.backend,
		Snippets:       st.Snippets,
		BufferLength:   st.BufferLength,
		Sound:          st.Sound,
		Firings:        st.Firings,
		EmissionErrors: st.EmissionErrors,
		LookupRaces:    st.LookupRaces,
	}
}

func (d *Daemon) writeList(t *snippet.Table) {
	if err := snippet.WriteList(d.opts.ListPath, t); err != nil {
		d.logger.Warn("could not write snippet list", "error", err)
	}
}

func (d *Daemon) pruneHistory(ctx context.Context, cfg *config.Config) {
	if d.history == nil || cfg.History.RetainDays <= 0 {
		return
	}
	cutoff := time.Now().AddDate(0, 0, -cfg.History.RetainDays)
	n, err := d.history.Prune(ctx, cutoff)
	if err != nil {
		d.logger.Warn("prune history", "error", err)
		return
	}
	if n > 0 {
		d.logger.Info("pruned firing history", "removed", n)
	}
}

// shutdown stops input first, then the timeout watcher, the control surfaces
// and finally the stores.
func (d *Daemon) shutdown() {
	if err := d.source.Stop(); err != nil {
		d.logger.Warn("stop keyboard source", "error", err)
	}
	d.watcher.Stop()
	if d.server != nil {
		if err := d.server.Stop(); err != nil {
			d.logger.Warn("stop control socket", "error", err)
		}
	}
	if d.loader != nil {
		d.loader.Close()
	}
	d.closeStores()

	if err := snippet.RemoveList(d.opts.ListPath); err != nil {
		d.logger.Warn("remove snippet list", "error", err)
	}
	d.manager.Release()
	d.logger.Info("snipit stopped", "firings", d.engine.Status().Firings)
	d.opts.Logger.Sync()
}

func (d *Daemon) closeStores() {
	if d.paste != nil {
		d.paste.Close()
	}
	if d.history != nil {
		if err := d.history.Close(); err != nil {
			d.logger.Warn("close history", "error", err)
		}
		d.history = nil
	}
}
