package vegaview

import (
	"time"

	"github.com/raykavin/vegaview/core"
)

// Option is a functional option for configuring an App instance
type Option func(*config)

// WithPort sets the delivery server port. Port 0 opts into auto-selection;
// any other occupied port fails fast instead of silently rebinding.
func WithPort(port int) Option {
	return func(cfg *config) {
		cfg.port = port
	}
}

// WithBindHost overrides the bind address. The default, and the only
// sensible value for a local viewer, is loopback.
func WithBindHost(host string) Option {
	return func(cfg *config) {
		if host != "" {
			cfg.host = host
		}
	}
}

// WithDisplayPolicy sets the default browser launch policy
func WithDisplayPolicy(policy core.DisplayPolicy) Option {
	return func(cfg *config) {
		cfg.policy = policy
	}
}

// WithWatchTimeout bounds how long a change-notification request may block
func WithWatchTimeout(timeout time.Duration) Option {
	return func(cfg *config) {
		cfg.watchTimeout = timeout
	}
}

// WithIdleTimeout shuts the delivery server down after the given period of
// inactivity; it restarts on the next show request
func WithIdleTimeout(timeout time.Duration) Option {
	return func(cfg *config) {
		cfg.idleTimeout = timeout
	}
}

// WithDebug disables viewer script minification
func WithDebug() Option {
	return func(cfg *config) {
		cfg.debug = true
	}
}

// WithLauncher replaces the browser launcher, mainly for tests
func WithLauncher(launcher core.Launcher) Option {
	return func(cfg *config) {
		cfg.launcher = launcher
	}
}
