// Package registry holds the in-memory registry of active visualizations.
// Session records live in an in-memory BuntDB keyed by identifier, so a
// revision is never observable without its spec: both are written in a single
// transaction. Change signaling is kept outside the database; every id owns a
// channel that is closed and replaced on each write, waking all watchers at
// once.
package registry

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/StudioSol/set"
	"github.com/raykavin/vegaview/core"
	"github.com/raykavin/vegaview/logger"
	"github.com/tidwall/buntdb"
)

const (
	// UpdatedIndexName orders session records by their last update time
	UpdatedIndexName = "updated_index"
)

// Registry implements core.Registry.
type Registry struct {
	db  *buntdb.DB
	log logger.Logger

	mu      sync.RWMutex
	entries map[string]*entry
	order   *set.LinkedHashSetString
}

// entry carries the per-identifier coordination state. Its mutex serializes
// writers for one id without blocking writers for other ids.
type entry struct {
	mu        sync.Mutex
	revision  int64
	createdAt time.Time
	changed   chan struct{}
	removed   bool
}

// New creates an empty in-memory registry.
func New(log logger.Logger) (*Registry, error) {
	db, err := buntdb.Open(":memory:")
	if err != nil {
		return nil, fmt.Errorf("failed to open buntdb: %w", err)
	}

	if err := db.SetConfig(buntdb.Config{SyncPolicy: buntdb.Never}); err != nil {
		return nil, fmt.Errorf("failed to configure buntdb: %w", err)
	}

	if err := db.CreateIndex(UpdatedIndexName, "*", buntdb.IndexJSON("updated_at")); err != nil {
		return nil, fmt.Errorf("failed to create update index: %w", err)
	}

	return &Registry{
		db:      db,
		log:     log,
		entries: make(map[string]*entry),
		order:   set.NewLinkedHashSetString(),
	}, nil
}

// Put inserts or replaces the spec stored under id and returns the new
// revision.
func (r *Registry) Put(id string, spec json.RawMessage) (int64, error) {
	// A concurrent Remove may invalidate the entry between lookup and lock;
	// in that case start over with a fresh one.
	var e *entry
	for {
		e = r.entryFor(id)
		e.mu.Lock()
		if !e.removed {
			break
		}
		e.mu.Unlock()
	}
	defer e.mu.Unlock()

	now := time.Now().UTC()
	if e.revision == 0 {
		e.createdAt = now
	}

	sess := core.Session{
		ID:        id,
		Spec:      spec,
		Revision:  e.revision + 1,
		CreatedAt: e.createdAt,
		UpdatedAt: now,
	}

	content, err := json.Marshal(sess)
	if err != nil {
		return 0, fmt.Errorf("failed to marshal session: %w", err)
	}

	err = r.db.Update(func(tx *buntdb.Tx) error {
		_, _, err := tx.Set(id, string(content), nil)
		return err
	})
	if err != nil {
		return 0, fmt.Errorf("failed to store session: %w", err)
	}

	e.revision = sess.Revision

	// Wake every watcher parked on this id
	changed := e.changed
	e.changed = make(chan struct{})
	close(changed)

	r.log.WithField("id", id).Debugf("stored revision %d", e.revision)
	return e.revision, nil
}

// Get returns the current session for id.
func (r *Registry) Get(id string) (core.Session, error) {
	var sess core.Session

	err := r.db.View(func(tx *buntdb.Tx) error {
		value, err := tx.Get(id)
		if err != nil {
			return err
		}
		return json.Unmarshal([]byte(value), &sess)
	})
	if err == buntdb.ErrNotFound {
		return core.Session{}, fmt.Errorf("session %q: %w", id, core.ErrNotFound)
	}
	if err != nil {
		return core.Session{}, fmt.Errorf("failed to read session: %w", err)
	}

	return sess, nil
}

// List returns all active session ids in creation order.
func (r *Registry) List() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	ids := make([]string, 0, len(r.entries))
	for id := range r.order.Iter() {
		ids = append(ids, id)
	}
	return ids
}

// Remove deletes a session. Outstanding watchers are woken and observe
// ErrNotFound.
func (r *Registry) Remove(id string) error {
	r.mu.Lock()
	e := r.entries[id]
	delete(r.entries, id)
	r.order.Remove(id)
	r.mu.Unlock()

	if e == nil {
		return fmt.Errorf("session %q: %w", id, core.ErrNotFound)
	}

	err := r.db.Update(func(tx *buntdb.Tx) error {
		_, err := tx.Delete(id)
		return err
	})
	if err != nil && err != buntdb.ErrNotFound {
		return fmt.Errorf("failed to delete session: %w", err)
	}

	e.mu.Lock()
	e.removed = true
	close(e.changed)
	e.mu.Unlock()

	return nil
}

// Watch blocks the caller until the revision stored under id exceeds since.
// It returns ok == false when the timeout elapses first; removal of the
// session surfaces as ErrNotFound.
func (r *Registry) Watch(ctx context.Context, id string, since int64, timeout time.Duration) (core.Session, bool, error) {
	timer := time.NewTimer(timeout)
	defer timer.Stop()

	for {
		r.mu.RLock()
		e := r.entries[id]
		r.mu.RUnlock()

		if e == nil {
			return core.Session{}, false, fmt.Errorf("session %q: %w", id, core.ErrNotFound)
		}

		e.mu.Lock()
		revision := e.revision
		changed := e.changed
		e.mu.Unlock()

		if revision > since {
			sess, err := r.Get(id)
			if err != nil {
				return core.Session{}, false, err
			}
			return sess, true, nil
		}

		select {
		case <-changed:
		case <-timer.C:
			return core.Session{}, false, nil
		case <-ctx.Done():
			return core.Session{}, false, ctx.Err()
		}
	}
}

// LastUpdated reports the most recent update time across all sessions, using
// the updated_at index.
func (r *Registry) LastUpdated() (time.Time, bool) {
	var last time.Time
	var found bool

	err := r.db.View(func(tx *buntdb.Tx) error {
		return tx.Descend(UpdatedIndexName, func(key, value string) bool {
			var sess core.Session
			if err := json.Unmarshal([]byte(value), &sess); err == nil {
				last = sess.UpdatedAt
				found = true
			}
			return false
		})
	})
	if err != nil {
		r.log.WithError(err).Error("failed to scan update index")
		return time.Time{}, false
	}

	return last, found
}

// Len returns the number of active sessions.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.entries)
}

// Close releases the underlying database.
func (r *Registry) Close() error {
	return r.db.Close()
}

// entryFor returns the coordination entry for id, creating it on first use.
func (r *Registry) entryFor(id string) *entry {
	r.mu.RLock()
	e := r.entries[id]
	r.mu.RUnlock()
	if e != nil {
		return e
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if e = r.entries[id]; e == nil {
		e = &entry{changed: make(chan struct{})}
		r.entries[id] = e
		r.order.Add(id)
	}
	return e
}
