package core

import (
	"context"
	"encoding/json"
	"time"
)

// Registry is the single source of truth for active visualizations.
// All mutations of session state pass through it.
type Registry interface {
	// Put inserts or replaces the spec stored under id and returns the new
	// revision. Revisions for a given id strictly increase.
	Put(id string, spec json.RawMessage) (int64, error)

	// Get returns the current session for id, or ErrNotFound.
	Get(id string) (Session, error)

	// List returns the ids of all active sessions in creation order.
	// Intended for diagnostics only.
	List() []string

	// Remove deletes a session and wakes any outstanding watchers.
	Remove(id string) error

	// Watch blocks until the revision stored under id exceeds since, the
	// timeout elapses (ok == false), the context is canceled, or the session
	// is removed (ErrNotFound).
	Watch(ctx context.Context, id string, since int64, timeout time.Duration) (sess Session, ok bool, err error)

	// LastUpdated reports the most recent update time across all sessions.
	LastUpdated() (time.Time, bool)

	// Len returns the number of active sessions.
	Len() int
}

// Launcher opens a URL in the user's web browser. Implementations may retry
// internally; a returned error wraps ErrLaunchFailed and is non-fatal to the
// operation that triggered it.
type Launcher interface {
	Open(url string) error
}
