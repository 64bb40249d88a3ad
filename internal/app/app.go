// Package app hosts the gesture pipeline for standalone use. It polls the
// signals the way a game loop would, records their edges and fires the
// plugin actions bound to them.
package app

import (
	"context"
	"errors"
	"fmt"
	"log"
	"os"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/ayusman/gesturepad/internal/config"
	"github.com/ayusman/gesturepad/internal/detector"
	"github.com/ayusman/gesturepad/internal/gesture"
	"github.com/ayusman/gesturepad/internal/plugin"
	"github.com/ayusman/gesturepad/internal/store"
)

// PipelineFactory builds a stopped pipeline from the settings.
type PipelineFactory func(settings *config.Config) *gesture.Pipeline

// DefaultPipeline builds a pipeline that loads classifier resources from
// the settings' resource directory.
func DefaultPipeline(settings *config.Config) *gesture.Pipeline {
	pc := settings.Pipeline()
	if settings.ResourceDir != "" {
		pc.Loader = detector.DefaultLoader(os.DirFS(settings.ResourceDir))
	}
	return gesture.New(pc)
}

// Config holds configuration options for the application.
type Config struct {
	Settings *config.Config
	// Store keeps sessions, edges and the enabled flag. Optional.
	Store *store.Store
	// Pipeline defaults to DefaultPipeline.
	Pipeline PipelineFactory
}

// Status is a point-in-time view of the application.
type Status struct {
	Enabled    bool                   `json:"enabled"`
	Running    bool                   `json:"running"`
	SessionID  string                 `json:"sessionId,omitempty"`
	Uptime     time.Duration          `json:"uptimeNs"`
	CaptureErr string                 `json:"captureError,omitempty"`
	Channels   []gesture.ChannelState `json:"channels"`
}

// App is the main application that polls the gesture signals and executes
// the bound actions.
type App struct {
	store       *store.Store
	newPipeline PipelineFactory

	mu       sync.Mutex
	settings *config.Config
	session  *store.Session
	cancel   context.CancelFunc
	pollDone chan struct{}
	dispatch *dispatcher

	// Read by the poll loop without a.mu.
	pipeline  atomic.Pointer[gesture.Pipeline]
	bindings  atomic.Pointer[bindingTable]
	runner    atomic.Pointer[runner]
	sessionID atomic.Pointer[string]
	enabled   atomic.Bool

	listenerMu sync.RWMutex
	listeners  []func(Event)
	last       atomic.Pointer[Event]
}

// New creates a stopped App. The enabled flag is restored from the store
// and defaults to true.
func New(cfg Config) *App {
	settings := cfg.Settings
	if settings == nil {
		settings = config.Default()
	}
	factory := cfg.Pipeline
	if factory == nil {
		factory = DefaultPipeline
	}

	a := &App{
		store:       cfg.Store,
		newPipeline: factory,
		settings:    settings,
	}

	enabled := true
	if a.store != nil {
		enabled = a.store.Settings().GetBool(store.SettingEnabled, true)
	}
	a.enabled.Store(enabled)
	a.pipeline.Store(factory(settings))
	a.bindings.Store(newBindingTable(settings.Bindings))
	a.runner.Store(newRunner(settings))
	return a
}

// DiscoverPlugins scans the plugin directory and loads available plugins.
func (a *App) DiscoverPlugins() error {
	return a.runner.Load().plugins.Discover()
}

// Start starts the pipeline (when enabled), opens a session and begins
// polling. Calling Start on a running App is a no-op. A pipeline start
// failure is returned, but the App keeps polling with every channel off, so
// a later SetEnabled(true) or Reload can still bring the pipeline up.
func (a *App) Start() error {
	a.mu.Lock()
	defer a.mu.Unlock()

	if a.cancel != nil {
		return nil
	}

	if err := a.DiscoverPlugins(); err != nil {
		log.Printf("Plugin discovery failed: %v", err)
	}

	if a.store != nil {
		if n, err := a.store.Sessions().EndStale(time.Now()); err != nil {
			log.Printf("Failed to close stale sessions: %v", err)
		} else if n > 0 {
			log.Printf("Closed %d stale sessions", n)
		}
	}

	p := a.pipeline.Load()
	var startErr error
	if a.enabled.Load() {
		startErr = p.Start()
	}

	a.openSession(p)

	ctx, cancel := context.WithCancel(context.Background())
	a.cancel = cancel
	a.pollDone = make(chan struct{})
	a.dispatch = newDispatcher()
	go a.dispatch.run()
	go a.poll(ctx, a.settings.PollInterval(), a.dispatch, a.pollDone)

	if startErr != nil {
		log.Printf("App started without gesture detection: %v", startErr)
		return startErr
	}
	log.Println("App started")
	return nil
}

// Stop halts polling, releases held bindings, stops the pipeline and ends
// the session.
func (a *App) Stop() {
	a.mu.Lock()
	defer a.mu.Unlock()

	if a.cancel == nil {
		return
	}

	a.cancel()
	<-a.pollDone
	a.cancel = nil

	timeout := a.runner.Load().exec.Timeout()
	select {
	case <-a.dispatch.done:
	case <-time.After(timeout):
		log.Printf("Pending actions still running after %v", timeout)
	}
	a.dispatch = nil

	a.pipeline.Load().Stop()
	a.closeSession()

	log.Println("App stopped")
}

// Running reports whether the poll loop is active.
func (a *App) Running() bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.cancel != nil
}

// SetEnabled turns gesture detection on or off and persists the choice.
// Disabling stops the pipeline and releases the camera; every channel then
// reads off, so held bindings are released by the poll loop. Enabling a
// running App starts the pipeline if it is not running, which also retries
// a pipeline that failed to start.
func (a *App) SetEnabled(enabled bool) error {
	a.mu.Lock()
	defer a.mu.Unlock()

	if a.store != nil {
		if err := a.store.Settings().SetBool(store.SettingEnabled, enabled); err != nil {
			log.Printf("Failed to persist enabled flag: %v", err)
		}
	}

	a.enabled.Store(enabled)
	if a.cancel == nil {
		return nil
	}

	p := a.pipeline.Load()
	if !enabled {
		if p.Running() {
			p.Stop()
			log.Println("Gesture detection disabled")
		}
		return nil
	}
	if p.Running() {
		return nil
	}

	if err := p.Start(); err != nil {
		a.enabled.Store(false)
		return fmt.Errorf("enable detection: %w", err)
	}
	log.Println("Gesture detection enabled")
	return nil
}

// IsEnabled returns whether gesture detection is currently enabled.
func (a *App) IsEnabled() bool {
	return a.enabled.Load()
}

// Reload replaces the settings. A running App stops its pipeline, ends the
// session and starts again with the new channel set. On a start failure
// the App keeps polling with the new, stopped pipeline.
func (a *App) Reload(settings *config.Config) error {
	if err := config.Validate(settings); err != nil {
		return fmt.Errorf("reload: %w", err)
	}

	a.mu.Lock()
	defer a.mu.Unlock()

	old := a.pipeline.Load()
	old.Stop()
	a.closeSession()

	r := newRunner(settings)
	if settings.PluginDir == a.settings.PluginDir {
		r.plugins = a.runner.Load().plugins
	} else if err := r.plugins.Discover(); err != nil {
		log.Printf("Plugin discovery failed: %v", err)
	}
	a.runner.Store(r)
	a.settings = settings
	a.bindings.Store(newBindingTable(settings.Bindings))

	p := a.newPipeline(settings)
	a.pipeline.Store(p)

	if a.cancel == nil {
		return nil
	}

	var err error
	if a.enabled.Load() {
		err = p.Start()
	}
	a.openSession(p)

	log.Printf("Configuration reloaded with %d channels", len(settings.Channels))
	return err
}

// Settings returns the current settings.
func (a *App) Settings() *config.Config {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.settings
}

// Pipeline returns the current pipeline. It changes on Reload.
func (a *App) Pipeline() *gesture.Pipeline {
	return a.pipeline.Load()
}

// PluginManager returns the plugin manager.
func (a *App) PluginManager() *plugin.Manager {
	return a.runner.Load().plugins
}

// Store returns the store, or nil.
func (a *App) Store() *store.Store {
	return a.store
}

// Status returns the current application status.
func (a *App) Status() Status {
	p := a.pipeline.Load()
	st := Status{
		Enabled:  a.enabled.Load(),
		Running:  p.Running(),
		Uptime:   p.Uptime(),
		Channels: p.Snapshot(),
	}
	if err := p.CaptureErr(); err != nil {
		st.CaptureErr = err.Error()
	}
	if id := a.sessionID.Load(); id != nil {
		st.SessionID = *id
	}
	return st
}

// OnEdge registers a listener called from the poll loop for every edge.
// Listeners must not block.
func (a *App) OnEdge(fn func(Event)) {
	a.listenerMu.Lock()
	defer a.listenerMu.Unlock()
	a.listeners = append(a.listeners, fn)
}

// LastEdge returns the most recent edge, or nil.
func (a *App) LastEdge() *Event {
	return a.last.Load()
}

// openSession records a new session for the pipeline's channel set.
// Must be called with a.mu held.
func (a *App) openSession(p *gesture.Pipeline) {
	if a.store == nil {
		return
	}
	sess := &store.Session{
		ID:        uuid.New().String(),
		Channels:  p.Channels(),
		StartedAt: time.Now(),
	}
	if err := a.store.Sessions().Create(sess); err != nil {
		log.Printf("Failed to create session: %v", err)
		return
	}
	a.session = sess
	a.sessionID.Store(&sess.ID)
}

// closeSession ends the current session. Must be called with a.mu held.
func (a *App) closeSession() {
	if a.store == nil || a.session == nil {
		return
	}
	if err := a.store.Sessions().End(a.session.ID, time.Now()); err != nil && !errors.Is(err, store.ErrNotFound) {
		log.Printf("Failed to end session %s: %v", a.session.ID, err)
	}
	a.session = nil
	a.sessionID.Store(nil)
}

// runner executes bound actions. It is replaced as a whole on Reload.
type runner struct {
	plugins *plugin.Manager
	exec    *plugin.Executor
}

func newRunner(settings *config.Config) *runner {
	return &runner{
		plugins: plugin.NewManager(settings.PluginDir),
		exec:    plugin.NewExecutor(settings.PluginTimeout()),
	}
}
