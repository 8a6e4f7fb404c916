// Package vegaview wires together the visualization registry, the delivery
// server, and the session controller behind a single app facade.
package vegaview

import (
	"context"
	"io"
	"time"

	"github.com/raykavin/vegaview/core"
	"github.com/raykavin/vegaview/logger"
	"github.com/raykavin/vegaview/registry"
	"github.com/raykavin/vegaview/session"
	"github.com/raykavin/vegaview/viewer"
)

// DefaultLog is the logger used when the host application does not supply
// its own. Configured from environment variables, see init.go.
var DefaultLog logger.Logger

const (
	defaultHost = "127.0.0.1"
	defaultPort = 8000
)

// App owns the component instances for one viewer process. It is created at
// process start and torn down at shutdown; none of the components are
// reachable through ambient globals.
type App struct {
	registry   *registry.Registry
	viewer     *viewer.Viewer
	server     *viewer.Server
	controller *session.Controller
	log        logger.Logger
}

type config struct {
	host         string
	port         int
	policy       core.DisplayPolicy
	watchTimeout time.Duration
	idleTimeout  time.Duration
	debug        bool
	launcher     core.Launcher
}

// New creates a viewer app with the provided options. The delivery server is
// not started here; it binds lazily on the first show request.
func New(log logger.Logger, options ...Option) (*App, error) {
	cfg := &config{
		host:   defaultHost,
		port:   defaultPort,
		policy: core.DisplayEager,
	}

	// Apply custom options
	for _, option := range options {
		option(cfg)
	}

	reg, err := registry.New(log)
	if err != nil {
		return nil, err
	}

	viewerOptions := make([]viewer.Option, 0, 2)
	if cfg.watchTimeout > 0 {
		viewerOptions = append(viewerOptions, viewer.WithWatchTimeout(cfg.watchTimeout))
	}
	if cfg.debug {
		viewerOptions = append(viewerOptions, viewer.WithDebug())
	}

	viz, err := viewer.NewViewer(reg, log, viewerOptions...)
	if err != nil {
		return nil, err
	}

	server := viewer.NewServer(cfg.host, cfg.port, log)
	viz.RegisterHandlers(server)

	launcher := cfg.launcher
	if launcher == nil {
		launcher = session.NewBrowserLauncher(log)
	}

	controllerOptions := []session.Option{session.WithDisplayPolicy(cfg.policy)}
	if cfg.idleTimeout > 0 {
		controllerOptions = append(controllerOptions, session.WithIdleTimeout(cfg.idleTimeout))
	}

	controller := session.NewController(reg, viz, server, launcher, log, controllerOptions...)

	return &App{
		registry:   reg,
		viewer:     viz,
		server:     server,
		controller: controller,
		log:        log,
	}, nil
}

// Show registers or updates a visualization and returns its id and URL.
func (a *App) Show(ctx context.Context, raw []byte, opts ...session.ShowOption) (core.VizHandle, error) {
	return a.controller.Show(ctx, raw, opts...)
}

// Update replaces the spec of an existing visualization.
func (a *App) Update(ctx context.Context, id string, raw []byte) (core.VizHandle, error) {
	return a.controller.Update(ctx, id, raw)
}

// Start brings the delivery server up eagerly. Calling Show without Start is
// fine; the server then binds on first use.
func (a *App) Start() error {
	return a.controller.Start()
}

// Controller exposes the session controller.
func (a *App) Controller() *session.Controller {
	return a.controller
}

// Registry exposes the visualization registry.
func (a *App) Registry() core.Registry {
	return a.registry
}

// URL returns the base URL of the delivery server, or "" before first use.
func (a *App) URL() string {
	return a.server.URL()
}

// Summary writes a table of all active sessions for diagnostics.
func (a *App) Summary(w io.Writer) {
	a.controller.Summary(w)
}

// Close tears the app down: controller, delivery server, then registry.
func (a *App) Close(ctx context.Context) error {
	if err := a.controller.Close(ctx); err != nil {
		return err
	}
	return a.registry.Close()
}
