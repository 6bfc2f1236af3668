package credential

import (
	"context"
	"net/http"
	"os"
	"testing"

	"github.com/anyclaude/anyclaude/internal/config"
	"github.com/stretchr/testify/require"
)

func TestResolveForward(t *testing.T) {
	r, err := Resolve(context.Background(), "a", Declaration{Kind: "forward"})
	require.NoError(t, err)
	require.True(t, r.Forward)
}

func TestResolveXAPIKeyExpandsEnv(t *testing.T) {
	t.Setenv("MY_KEY", "sk-real-value")
	r, err := Resolve(context.Background(), "a", Declaration{Kind: "x_api_key", RawValue: "${MY_KEY:-fallback}"})
	require.NoError(t, err)
	require.Equal(t, "x-api-key", r.Header)
	require.Equal(t, "sk-real-value", r.Value)
}

func TestResolveXAPIKeyFallsBackToDefault(t *testing.T) {
	os.Unsetenv("MISSING_KEY_XYZ")
	r, err := Resolve(context.Background(), "a", Declaration{Kind: "x_api_key", RawValue: "${MISSING_KEY_XYZ:-literal-default}"})
	require.NoError(t, err)
	require.Equal(t, "literal-default", r.Value)
}

func TestResolveBearer(t *testing.T) {
	r, err := Resolve(context.Background(), "a", Declaration{Kind: "bearer", RawValue: "plain-token"})
	require.NoError(t, err)
	require.Equal(t, "Authorization", r.Header)
	require.Equal(t, "Bearer plain-token", r.Value)
}

func TestResolveMissingCredential(t *testing.T) {
	_, err := Resolve(context.Background(), "a", Declaration{Kind: "bearer", RawValue: ""})
	require.Error(t, err)
	var missing *ErrMissingCredential
	require.ErrorAs(t, err, &missing)
}

func TestResolveAWSSigV4RequiresRegion(t *testing.T) {
	_, err := Resolve(context.Background(), "a", Declaration{Kind: "aws_sigv4"})
	require.Error(t, err)
}

func TestApplyForwardLeavesHeadersUntouched(t *testing.T) {
	req, _ := http.NewRequest(http.MethodPost, "http://example.com", nil)
	req.Header.Set("Authorization", "Bearer original")

	Resolved{Forward: true}.Apply(req)
	require.Equal(t, "Bearer original", req.Header.Get("Authorization"))
}

func TestApplyReplacesAuthorization(t *testing.T) {
	req, _ := http.NewRequest(http.MethodPost, "http://example.com", nil)
	req.Header.Set("Authorization", "Bearer original")
	req.Header.Set("x-api-key", "old")

	Resolved{Header: "Authorization", Value: "Bearer new"}.Apply(req)
	require.Equal(t, "Bearer new", req.Header.Get("Authorization"))
	require.Empty(t, req.Header.Get("x-api-key"))
}

func TestDeclarationFromBackendDefaultsToForward(t *testing.T) {
	d := DeclarationFromBackend(config.Backend{ID: "a"})
	require.Equal(t, "forward", d.Kind)
}
