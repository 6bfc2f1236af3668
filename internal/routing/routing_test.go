package routing

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestPathPrefixRuleMatches(t *testing.T) {
	rule := PathPrefixRule{Prefix: "/teammate", BackendID: "X", Reason: "path prefix /teammate"}
	req := httptest.NewRequest(http.MethodPost, "/teammate/v1/messages", nil)

	d, ok := rule.Match(req)
	require.True(t, ok)
	require.Equal(t, "X", d.BackendID)
	require.Equal(t, "/teammate", d.StripPrefix)
}

func TestPathPrefixRuleNoMatch(t *testing.T) {
	rule := PathPrefixRule{Prefix: "/teammate", BackendID: "X"}
	req := httptest.NewRequest(http.MethodPost, "/v1/messages", nil)

	_, ok := rule.Match(req)
	require.False(t, ok)
}

func TestMiddlewareFirstMatchWins(t *testing.T) {
	m := New(
		PathPrefixRule{Prefix: "/teammate", BackendID: "X"},
		PathPrefixRule{Prefix: "/teammate/special", BackendID: "Y"},
	)
	req := httptest.NewRequest(http.MethodPost, "/teammate/special/v1/messages", nil)

	d, ok := m.Evaluate(req)
	require.True(t, ok)
	require.Equal(t, "X", d.BackendID)
}

func TestMiddlewareNoMatch(t *testing.T) {
	m := New(PathPrefixRule{Prefix: "/teammate", BackendID: "X"})
	req := httptest.NewRequest(http.MethodGet, "/v1/messages", nil)

	_, ok := m.Evaluate(req)
	require.False(t, ok)
}

func TestStripPrefix(t *testing.T) {
	require.Equal(t, "/v1/messages", StripPrefix("/teammate/v1/messages", "/teammate"))
	require.Equal(t, "/", StripPrefix("/teammate", "/teammate"))
}
