// Package routing implements the Routing Middleware: an ordered list of
// rules evaluated against an inbound request, first match wins.
package routing

import "net/http"

// Decision is attached to a request as a routing annotation when a rule
// matches.
type Decision struct {
	BackendID   string
	Reason      string
	StripPrefix string
}

// Rule is generic so future rules can match on headers, bodies, etc.; the
// one concrete rule shipped here matches on URL path prefix.
type Rule interface {
	// Match returns a Decision and true if this rule applies to req.
	Match(req *http.Request) (Decision, bool)
}

// PathPrefixRule matches when the request path starts with Prefix.
type PathPrefixRule struct {
	Prefix    string
	BackendID string
	Reason    string
}

func (r PathPrefixRule) Match(req *http.Request) (Decision, bool) {
	if !hasPathPrefix(req.URL.Path, r.Prefix) {
		return Decision{}, false
	}
	return Decision{BackendID: r.BackendID, Reason: r.Reason, StripPrefix: r.Prefix}, true
}

func hasPathPrefix(path, prefix string) bool {
	if prefix == "" {
		return false
	}
	if len(path) < len(prefix) {
		return false
	}
	return path[:len(prefix)] == prefix
}

// Middleware evaluates rules in order against a request. When no rules
// are configured, callers should skip constructing a Middleware entirely
// so the per-request cost is zero, per spec.
type Middleware struct {
	rules []Rule
}

func New(rules ...Rule) *Middleware {
	return &Middleware{rules: rules}
}

// Evaluate returns the first matching decision, or false if no rule
// matches (callers then fall back to the Backend State's active id).
func (m *Middleware) Evaluate(req *http.Request) (Decision, bool) {
	for _, r := range m.rules {
		if d, ok := r.Match(req); ok {
			return d, true
		}
	}
	return Decision{}, false
}

// StripPrefix rewrites req.URL.Path by removing the matched prefix,
// leaving a leading slash intact.
func StripPrefix(path, prefix string) string {
	trimmed := path[len(prefix):]
	if trimmed == "" {
		return "/"
	}
	if trimmed[0] != '/' {
		return "/" + trimmed
	}
	return trimmed
}
