package core

import (
	"bytes"
	"encoding/json"
	"fmt"
	"time"
)

// Session is a single visualization tracked by the registry. The spec is an
// opaque Vega-Lite document; nothing in this codebase interprets it.
type Session struct {
	ID        string          `json:"id"`
	Spec      json.RawMessage `json:"spec"`
	Revision  int64           `json:"revision"`
	CreatedAt time.Time       `json:"created_at"`
	UpdatedAt time.Time       `json:"updated_at"`
}

// VizHandle identifies a displayed visualization and where to reach it.
type VizHandle struct {
	ID       string `json:"id"`
	URL      string `json:"url"`
	Revision int64  `json:"revision"`
}

// ParseSpec checks that raw is a well-formed JSON object and returns a
// compacted copy. Anything else is rejected with ErrInvalidSpec before it can
// reach the registry.
func ParseSpec(raw []byte) (json.RawMessage, error) {
	trimmed := bytes.TrimSpace(raw)
	if len(trimmed) == 0 {
		return nil, fmt.Errorf("%w: empty document", ErrInvalidSpec)
	}

	if trimmed[0] != '{' {
		return nil, fmt.Errorf("%w: expected a JSON object", ErrInvalidSpec)
	}

	buf := bytes.NewBuffer(make([]byte, 0, len(trimmed)))
	if err := json.Compact(buf, trimmed); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidSpec, err)
	}

	return json.RawMessage(buf.Bytes()), nil
}
