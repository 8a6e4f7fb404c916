// Package session implements the controller that orchestrates the viewer
// lifecycle: identifier allocation, lazy server startup, browser launch
// policy, and idle shutdown. It is the only component allowed to make those
// decisions.
package session

import (
	"context"
	"io"
	"net/url"
	"strconv"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/olekukonko/tablewriter"
	"github.com/raykavin/vegaview/core"
	"github.com/raykavin/vegaview/logger"
	"github.com/raykavin/vegaview/viewer"
)

// Controller executes display requests. Requests for one identifier are
// serialized by the registry; requests for different identifiers interleave
// freely.
type Controller struct {
	registry core.Registry
	viewer   *viewer.Viewer
	server   *viewer.Server
	launcher core.Launcher
	log      logger.Logger

	policy      core.DisplayPolicy
	idleTimeout time.Duration

	mu        sync.Mutex
	displayed map[string]bool // ids with at least one launch attempt
	lastShow  time.Time
	idleStop  chan struct{}
}

// Option is a functional option for configuring a Controller instance
type Option func(*Controller)

// WithDisplayPolicy sets the default display policy for show requests
func WithDisplayPolicy(policy core.DisplayPolicy) Option {
	return func(c *Controller) {
		c.policy = policy
	}
}

// WithIdleTimeout enables shutting the server down after the given period
// with no activity. The next show request starts it again.
func WithIdleTimeout(timeout time.Duration) Option {
	return func(c *Controller) {
		c.idleTimeout = timeout
	}
}

// NewController creates a new session controller
func NewController(registry core.Registry, viz *viewer.Viewer, server *viewer.Server,
	launcher core.Launcher, log logger.Logger, options ...Option) *Controller {

	controller := &Controller{
		registry:  registry,
		viewer:    viz,
		server:    server,
		launcher:  launcher,
		log:       log,
		displayed: make(map[string]bool),
	}

	// Apply custom options
	for _, option := range options {
		option(controller)
	}

	return controller
}

// ShowOption adjusts a single show request
type ShowOption func(*showOptions)

type showOptions struct {
	targetID string
	policy   core.DisplayPolicy
}

// WithTargetID directs the request at an existing identifier instead of
// allocating a fresh one. Unknown ids are created implicitly; use Update for
// the strict variant.
func WithTargetID(id string) ShowOption {
	return func(o *showOptions) {
		o.targetID = id
	}
}

// WithPolicy overrides the controller's display policy for this request
func WithPolicy(policy core.DisplayPolicy) ShowOption {
	return func(o *showOptions) {
		o.policy = policy
	}
}

// Show registers or updates a visualization and returns its identifier and
// viewer URL. The delivery server is started on first use regardless of
// display policy; whether a browser launch is triggered depends on the policy
// and on whether this identifier has been displayed before.
func (c *Controller) Show(ctx context.Context, raw []byte, opts ...ShowOption) (core.VizHandle, error) {
	if err := ctx.Err(); err != nil {
		return core.VizHandle{}, err
	}

	options := showOptions{policy: c.policy}
	for _, opt := range opts {
		opt(&options)
	}

	// Reject malformed input before anything is stored
	spec, err := core.ParseSpec(raw)
	if err != nil {
		return core.VizHandle{}, err
	}

	if err := c.ensureRunning(); err != nil {
		return core.VizHandle{}, err
	}

	id := options.targetID
	if id == "" {
		id = uuid.NewString()
	}

	revision, err := c.registry.Put(id, spec)
	if err != nil {
		return core.VizHandle{}, err
	}

	// Push the new state to already-open tabs
	if sess, err := c.registry.Get(id); err == nil {
		c.viewer.Broadcast(sess)
	}

	handle := core.VizHandle{
		ID:       id,
		URL:      c.urlFor(id),
		Revision: revision,
	}

	if c.shouldLaunch(id, options.policy) {
		if err := c.launcher.Open(handle.URL); err != nil {
			// Degraded but non-fatal: the viewer stays reachable at the URL
			c.log.WithError(err).Warnf("browser launch failed, viewer remains reachable at %s", handle.URL)
		}
	}

	c.touch()
	return handle, nil
}

// Update replaces the spec of an existing visualization. Unlike Show with a
// target id, an unknown identifier is an error.
func (c *Controller) Update(ctx context.Context, id string, raw []byte) (core.VizHandle, error) {
	if _, err := c.registry.Get(id); err != nil {
		return core.VizHandle{}, err
	}
	return c.Show(ctx, raw, WithTargetID(id))
}

// Start brings the delivery server up eagerly instead of waiting for the
// first show request.
func (c *Controller) Start() error {
	return c.ensureRunning()
}

// Remove evicts a visualization. This is an out-of-band operation, not part
// of the normal show/update flow.
func (c *Controller) Remove(id string) error {
	c.mu.Lock()
	delete(c.displayed, id)
	c.mu.Unlock()

	return c.registry.Remove(id)
}

// URL returns the base URL of the delivery server, or "" before first use.
func (c *Controller) URL() string {
	return c.server.URL()
}

// Summary writes a table of all active sessions for diagnostics
func (c *Controller) Summary(w io.Writer) {
	table := tablewriter.NewWriter(w)
	table.SetHeader([]string{"ID", "Revision", "Created", "Updated"})

	for _, id := range c.registry.List() {
		sess, err := c.registry.Get(id)
		if err != nil {
			continue
		}

		table.Append([]string{
			sess.ID,
			strconv.FormatInt(sess.Revision, 10),
			sess.CreatedAt.Local().Format(time.DateTime),
			sess.UpdatedAt.Local().Format(time.DateTime),
		})
	}

	table.Render()
}

// Close stops the idle monitor and shuts the delivery server down.
func (c *Controller) Close(ctx context.Context) error {
	c.mu.Lock()
	if c.idleStop != nil {
		close(c.idleStop)
		c.idleStop = nil
	}
	c.mu.Unlock()

	return c.server.Shutdown(ctx)
}

// ensureRunning starts the delivery server on first use and re-starts it
// after an idle shutdown. The listener is owned here exclusively.
func (c *Controller) ensureRunning() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if err := c.server.Start(); err != nil {
		return err
	}

	// Baseline for the idle clock; an eager start with no shows must still
	// count down
	if c.lastShow.IsZero() {
		c.lastShow = time.Now()
	}

	if c.idleTimeout > 0 && c.idleStop == nil {
		c.idleStop = make(chan struct{})
		go c.idleMonitor(c.idleStop)
	}

	return nil
}

// shouldLaunch applies the display policy and records the launch attempt
func (c *Controller) shouldLaunch(id string, policy core.DisplayPolicy) bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	seen := c.displayed[id]
	if policy == core.DisplayEager || !seen {
		c.displayed[id] = true
		return true
	}
	return false
}

func (c *Controller) touch() {
	c.mu.Lock()
	c.lastShow = time.Now()
	c.mu.Unlock()
}

func (c *Controller) urlFor(id string) string {
	return c.server.URL() + "/view/" + url.PathEscape(id)
}

func (c *Controller) idleMonitor(stop chan struct{}) {
	interval := c.idleTimeout / 4
	if interval < time.Second {
		interval = time.Second
	}

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-stop:
			return
		case <-ticker.C:
			if !c.idle() {
				continue
			}

			c.log.Infof("no viewer activity for %s, shutting down server", c.idleTimeout)

			ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			if err := c.server.Shutdown(ctx); err != nil {
				c.log.WithError(err).Error("idle shutdown failed")
			}
			cancel()

			c.mu.Lock()
			if c.idleStop == stop {
				c.idleStop = nil
			}
			c.mu.Unlock()
			return
		}
	}
}

// idle reports whether the idle window has passed without any session
// activity and with no connected live clients
func (c *Controller) idle() bool {
	if c.viewer.LiveClients() > 0 {
		return false
	}

	c.mu.Lock()
	last := c.lastShow
	c.mu.Unlock()

	if updated, ok := c.registry.LastUpdated(); ok && updated.After(last) {
		last = updated
	}

	if last.IsZero() {
		return false
	}

	return time.Since(last) > c.idleTimeout
}
