// Package credential resolves a backend's auth declaration into the
// concrete header(s) to attach to an outbound request, expanding
// environment-variable templates in the process.
package credential

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"strings"

	"github.com/anyclaude/anyclaude/internal/config"
)

// Declaration is the auth shape parsed straight out of the TOML backend
// entry, with no secrets resolved yet.
type Declaration struct {
	Kind       string // "forward", "x_api_key", "bearer", "aws_sigv4"
	RawValue   string // possibly ${VAR:-default}-templated
	AWSRegion  string
	AWSProfile string
}

// DeclarationFromBackend extracts the declared auth shape from a backend
// config entry.
func DeclarationFromBackend(b config.Backend) Declaration {
	kind := b.Auth
	if kind == "" {
		kind = "forward"
	}
	return Declaration{
		Kind:       kind,
		RawValue:   b.APIKey,
		AWSRegion:  b.AWSRegion,
		AWSProfile: b.AWSProfile,
	}
}

// Resolved is the per-request outcome of resolving a Declaration: either a
// header pair to attach, or Forward=true meaning the inbound Authorization
// header (and friends) should pass through unchanged.
type Resolved struct {
	Forward bool
	Header  string // e.g. "Authorization" or "x-api-key"
	Value   string
}

// ErrMissingCredential is returned when a backend's declared auth kind
// requires a value that resolved to empty.
type ErrMissingCredential struct {
	BackendID string
	Kind      string
}

func (e *ErrMissingCredential) Error() string {
	return fmt.Sprintf("credential: backend %q declares auth=%q but no credential is configured", e.BackendID, e.Kind)
}

// Resolve is a pure function: given a backend's declared auth and the
// current environment, return the outbound auth-header pair, or
// Resolved{Forward: true} to forward incoming headers unchanged.
func Resolve(ctx context.Context, backendID string, decl Declaration) (Resolved, error) {
	switch decl.Kind {
	case "", "forward":
		return Resolved{Forward: true}, nil

	case "x_api_key":
		val := expandEnv(decl.RawValue)
		if val == "" {
			return Resolved{}, &ErrMissingCredential{BackendID: backendID, Kind: decl.Kind}
		}
		return Resolved{Header: "x-api-key", Value: val}, nil

	case "bearer":
		val := expandEnv(decl.RawValue)
		if val == "" {
			return Resolved{}, &ErrMissingCredential{BackendID: backendID, Kind: decl.Kind}
		}
		return Resolved{Header: "Authorization", Value: "Bearer " + val}, nil

	case "aws_sigv4":
		// SigV4 does not produce a static header pair up front; the
		// upstream client signs the request in place once the body is
		// final. Resolve only validates that region/profile are usable.
		if decl.AWSRegion == "" {
			return Resolved{}, fmt.Errorf("credential: backend %q declares aws_sigv4 but no aws_region configured", backendID)
		}
		return Resolved{}, nil

	default:
		return Resolved{}, fmt.Errorf("credential: backend %q has unknown auth kind %q", backendID, decl.Kind)
	}
}

// Apply attaches the resolved credential to an outbound request, removing
// the inbound Authorization header first unless Forward is set.
func (r Resolved) Apply(req *http.Request) {
	if r.Forward {
		return
	}
	req.Header.Del("Authorization")
	req.Header.Del("x-api-key")
	if r.Header != "" {
		req.Header.Set(r.Header, r.Value)
	}
}

// expandEnv expands ${VAR} and ${VAR:-default} syntax, mirroring the
// teacher's resolveEnvVar. Values without the ${ prefix pass through
// unchanged, so a literal key can still be written directly in the TOML.
func expandEnv(value string) string {
	if !strings.HasPrefix(value, "${") || !strings.HasSuffix(value, "}") {
		return value
	}
	content := strings.TrimSuffix(strings.TrimPrefix(value, "${"), "}")

	var varName, defaultVal string
	if idx := strings.Index(content, ":-"); idx != -1 {
		varName, defaultVal = content[:idx], content[idx+2:]
	} else {
		varName = content
	}

	if envVal := os.Getenv(varName); envVal != "" {
		return envVal
	}
	return defaultVal
}
