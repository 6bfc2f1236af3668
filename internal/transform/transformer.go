// Package transform implements the Reasoning Transformer (strip/summarize
// variants) and the Model Mapper (forward request rewrite, reverse
// response rewrite for both JSON and SSE bodies).
package transform

import "context"

// Stats reports what a transformer variant changed, for observability and
// debug logging.
type Stats struct {
	Changed      bool
	ItemsRemoved int
	Note         string
}

// Transformer is the polymorphic surface every reasoning-mode variant
// implements. The active variant is chosen once per config snapshot;
// hot-reload swaps the instance, and the new instance takes effect on the
// very next request.
type Transformer interface {
	Name() string
	TransformRequest(ctx context.Context, body []byte, rc RequestContext) ([]byte, Stats, error)
	OnBackendSwitch(from, to string)
}

// RequestContext carries the per-request detail a transformer variant may
// need without pulling in the full upstream/proxy packages (breaks the
// cyclic-reference risk called out in the design notes: pass a narrow
// handle, not a full reference).
type RequestContext struct {
	RequestID string
}
