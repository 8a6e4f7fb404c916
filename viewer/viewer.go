package viewer

import (
	"embed"
	"fmt"
	"html/template"
	"time"

	"github.com/evanw/esbuild/pkg/api"
	"github.com/raykavin/vegaview/core"
	"github.com/raykavin/vegaview/logger"
)

// Static assets embedded in the binary
var (
	//go:embed assets
	staticFiles embed.FS
)

const defaultWatchTimeout = 30 * time.Second

// Viewer serves the browser-facing surface of the visualization server: the
// HTML shell, the spec and watch endpoints, and the websocket push channel.
// It holds no session state of its own and reads through the registry on
// every request.
type Viewer struct {
	registry     core.Registry
	log          logger.Logger
	debug        bool
	watchTimeout time.Duration

	scriptContent string
	shellHTML     *template.Template
	indexHTML     *template.Template
	wsManager     *WebSocketManager
	startedAt     time.Time
}

// Option defines a function type for configuring a Viewer instance
type Option func(*Viewer)

// WithDebug enables debug mode (disables script minification)
func WithDebug() Option {
	return func(v *Viewer) {
		v.debug = true
	}
}

// WithWatchTimeout bounds how long a watch request may block before the
// server answers with a "no change yet" response
func WithWatchTimeout(timeout time.Duration) Option {
	return func(v *Viewer) {
		if timeout > 0 {
			v.watchTimeout = timeout
		}
	}
}

// NewViewer creates a new viewer instance with the provided options
func NewViewer(registry core.Registry, log logger.Logger, options ...Option) (*Viewer, error) {
	viewer := &Viewer{
		registry:     registry,
		log:          log,
		watchTimeout: defaultWatchTimeout,
		startedAt:    time.Now(),
	}

	// Apply all options
	for _, option := range options {
		option(viewer)
	}

	// Parse viewer HTML templates
	var err error
	viewer.shellHTML, err = template.ParseFS(staticFiles, "assets/shell.html")
	if err != nil {
		return nil, fmt.Errorf("failed to parse shell template: %w", err)
	}

	viewer.indexHTML, err = template.ParseFS(staticFiles, "assets/index.html")
	if err != nil {
		return nil, fmt.Errorf("failed to parse index template: %w", err)
	}

	// Read and transpile the viewer JavaScript
	viewerJS, err := staticFiles.ReadFile("assets/js/main.js")
	if err != nil {
		return nil, fmt.Errorf("failed to read main.js: %w", err)
	}

	transpiledJS := api.Transform(string(viewerJS), api.TransformOptions{
		Loader:            api.LoaderJS,
		Target:            api.ES2015,
		MinifySyntax:      !viewer.debug,
		MinifyIdentifiers: !viewer.debug,
		MinifyWhitespace:  !viewer.debug,
	})

	if len(transpiledJS.Errors) > 0 {
		return nil, fmt.Errorf("viewer script failed with: %v", transpiledJS.Errors)
	}

	viewer.scriptContent = string(transpiledJS.Code)

	// Create WebSocket manager
	viewer.wsManager = NewWebSocketManager(log, registry)

	return viewer, nil
}

// WatchTimeout returns the configured watch wait window
func (v *Viewer) WatchTimeout() time.Duration {
	return v.watchTimeout
}

// Broadcast pushes a new session state to every websocket subscriber of its
// id. Tabs polling the watch endpoint are woken by the registry itself.
func (v *Viewer) Broadcast(sess core.Session) {
	v.wsManager.BroadcastSession(sess)
}

// LiveClients returns the number of connected websocket subscribers
func (v *Viewer) LiveClients() int {
	return v.wsManager.ClientCount()
}

// RegisterHandlers registers all viewer routes on the HTTP server
func (v *Viewer) RegisterHandlers(server HTTPServer) {
	server.RegisterHandler("GET /{$}", v.handleIndex)
	server.RegisterHandler("GET /view/{id}", v.handleView)
	server.RegisterHandler("GET /api/spec/{id}", v.handleSpec)
	server.RegisterHandler("GET /api/watch/{id}", v.handleWatch)
	server.RegisterHandler("GET /api/live/{id}", v.wsManager.HandleWebSocket)
	server.RegisterHandler("GET /assets/main.js", v.handleScript)
	server.RegisterHandler("GET /healthz", v.handleHealth)
	server.RegisterHandler("GET /favicon.ico", v.handleFavicon)
}
