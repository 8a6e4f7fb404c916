package viewer

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/raykavin/vegaview/core"
	"github.com/samber/lo"
)

const vegaFaviconURL = "https://vega.github.io/favicon.ico"

// revisionHeader echoes the revision a timed-out watch request waited past,
// so the browser loop can re-arm without parsing a body.
const revisionHeader = "X-Viz-Revision"

type specResponse struct {
	ID       string          `json:"id"`
	Spec     json.RawMessage `json:"spec"`
	Revision int64           `json:"revision"`
}

type healthResponse struct {
	Status   string `json:"status"`
	Sessions int    `json:"sessions"`
	Uptime   string `json:"uptime"`
}

type indexRow struct {
	ID       string
	Revision int64
	Updated  string
}

// handleIndex renders the diagnostics page listing all active sessions
func (v *Viewer) handleIndex(w http.ResponseWriter, _ *http.Request) {
	rows := lo.FilterMap(v.registry.List(), func(id string, _ int) (indexRow, bool) {
		sess, err := v.registry.Get(id)
		if err != nil {
			return indexRow{}, false
		}
		return indexRow{
			ID:       sess.ID,
			Revision: sess.Revision,
			Updated:  sess.UpdatedAt.Local().Format(time.RFC3339),
		}, true
	})

	w.Header().Set("Content-Type", "text/html")
	if err := v.indexHTML.Execute(w, map[string]any{"sessions": rows}); err != nil {
		v.log.WithError(err).Error("index template execution failed")
		http.Error(w, "Internal server error", http.StatusInternalServerError)
	}
}

// handleView renders the HTML shell for a single visualization. The spec must
// already be registered; an unknown id is a 404, not an empty page.
func (v *Viewer) handleView(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")

	sess, err := v.registry.Get(id)
	if err != nil {
		if errors.Is(err, core.ErrNotFound) {
			http.Error(w, "Unknown visualization", http.StatusNotFound)
			return
		}
		v.log.WithError(err).Error("failed to read session")
		http.Error(w, "Internal server error", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "text/html")
	err = v.shellHTML.Execute(w, map[string]any{
		"ID":       sess.ID,
		"Revision": sess.Revision,
	})
	if err != nil {
		v.log.WithError(err).Error("shell template execution failed")
		http.Error(w, "Internal server error", http.StatusInternalServerError)
	}
}

// handleSpec returns the current spec and revision for an id. The response
// reflects the registry's latest value at the instant of the read.
func (v *Viewer) handleSpec(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")

	sess, err := v.registry.Get(id)
	if err != nil {
		if errors.Is(err, core.ErrNotFound) {
			http.Error(w, "Unknown visualization", http.StatusNotFound)
			return
		}
		v.log.WithError(err).Error("failed to read session")
		http.Error(w, "Internal server error", http.StatusInternalServerError)
		return
	}

	v.writeJSON(w, http.StatusOK, specResponse{
		ID:       sess.ID,
		Spec:     sess.Spec,
		Revision: sess.Revision,
	})
}

// handleWatch blocks until the session's revision exceeds ?since=N, then
// returns the new spec. A timed-out wait answers 204 so the browser retries
// instead of the server holding the connection open indefinitely. Only the
// requesting connection blocks; the registry itself never does.
func (v *Viewer) handleWatch(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")

	since, err := strconv.ParseInt(r.URL.Query().Get("since"), 10, 64)
	if err != nil {
		http.Error(w, "Invalid since parameter", http.StatusBadRequest)
		return
	}

	sess, ok, err := v.registry.Watch(r.Context(), id, since, v.watchTimeout)
	switch {
	case errors.Is(err, core.ErrNotFound):
		http.Error(w, "Unknown visualization", http.StatusNotFound)
		return
	case err != nil:
		// Client went away or the wait was interrupted; nothing to answer
		v.log.WithField("id", id).WithError(err).Debug("watch interrupted")
		return
	case !ok:
		w.Header().Set(revisionHeader, strconv.FormatInt(since, 10))
		w.WriteHeader(http.StatusNoContent)
		return
	}

	v.writeJSON(w, http.StatusOK, specResponse{
		ID:       sess.ID,
		Spec:     sess.Spec,
		Revision: sess.Revision,
	})
}

// handleScript serves the transpiled viewer script
func (v *Viewer) handleScript(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "application/javascript")
	if _, err := w.Write([]byte(v.scriptContent)); err != nil {
		v.log.WithError(err).Error("failed to write viewer script")
	}
}

// handleHealth handles liveness check requests
func (v *Viewer) handleHealth(w http.ResponseWriter, _ *http.Request) {
	v.writeJSON(w, http.StatusOK, healthResponse{
		Status:   "ok",
		Sessions: v.registry.Len(),
		Uptime:   time.Since(v.startedAt).Round(time.Second).String(),
	})
}

// handleFavicon redirects favicon requests to Vega-Lite's official favicon
func (v *Viewer) handleFavicon(w http.ResponseWriter, r *http.Request) {
	http.Redirect(w, r, vegaFaviconURL, http.StatusMovedPermanently)
}

func (v *Viewer) writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(body); err != nil {
		v.log.WithError(err).Error("failed to write JSON response")
	}
}
