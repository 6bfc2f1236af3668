package launch

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestClassifySupervisorOwnedFlagConsumesValue(t *testing.T) {
	result := Classify([]string{"--anyclaude-backend", "fast", "--model", "opus"}, Registry)

	require.Empty(t, result.Warnings)
	require.Len(t, result.Args, 2)
	require.Equal(t, KindSupervisorOwned, result.Args[0].Kind)
	require.Equal(t, "fast", result.Args[0].Value)
	require.Equal(t, KindKnownPassthrough, result.Args[1].Kind)
	require.Equal(t, "opus", result.Args[1].Value)
}

func TestClassifyInterceptedContinueHasNoValue(t *testing.T) {
	result := Classify([]string{"--continue"}, Registry)
	require.Len(t, result.Args, 1)
	require.Equal(t, KindIntercepted, result.Args[0].Kind)
	require.Equal(t, "--continue", result.Args[0].Flag)
	require.False(t, result.Args[0].HasValue)
}

func TestClassifyUnknownFlagWarnsAndForwards(t *testing.T) {
	result := Classify([]string{"--some-future-flag", "value"}, Registry)
	require.Len(t, result.Warnings, 1)
	require.Len(t, result.Args, 2)
	require.Equal(t, KindUnknownPassthrough, result.Args[0].Kind)
	require.Equal(t, "--some-future-flag", result.Args[0].Raw)
	require.Equal(t, "value", result.Args[1].Raw)
}

func TestClassifyMissingRequiredValueWarns(t *testing.T) {
	result := Classify([]string{"--model"}, Registry)
	require.Len(t, result.Warnings, 1)
	require.Len(t, result.Args, 1)
	require.False(t, result.Args[0].HasValue)
}

func TestClassifyPositionalArg(t *testing.T) {
	result := Classify([]string{"fix the bug"}, Registry)
	require.Len(t, result.Args, 1)
	require.Equal(t, KindPositional, result.Args[0].Kind)
	require.Equal(t, "fix the bug", result.Args[0].Raw)
}

func TestAssemblerDropsSupervisorAndInterceptedFlags(t *testing.T) {
	result := Classify([]string{"--anyclaude-backend", "fast", "--continue", "--model", "opus"}, Registry)
	a := NewAssembler(result.Args)
	require.Equal(t, []string{"--model", "opus"}, a.Args())
}

func TestAssemblerWithSessionFlagReinjectsResume(t *testing.T) {
	result := Classify([]string{"--resume", "abc123"}, Registry)
	a := NewAssembler(result.Args).WithSessionFlag(result.Args)
	require.Equal(t, []string{"--resume", "abc123"}, a.Args())
}

func TestAssemblerEnvIncludesProxyAndPath(t *testing.T) {
	a := NewAssembler(nil).WithProxyEnv("http://127.0.0.1:8080", "tok-123").WithPath("/shim:/usr/bin")
	env := a.Env()
	require.Equal(t, "http://127.0.0.1:8080", env["ANTHROPIC_BASE_URL"])
	require.Equal(t, "tok-123", env["ANTHROPIC_AUTH_TOKEN"])
	require.Equal(t, "/shim:/usr/bin", env["PATH"])
}

func TestEnvSliceOverlayWinsOverBase(t *testing.T) {
	base := []string{"PATH=/usr/bin", "HOME=/root"}
	out := EnvSlice(base, map[string]string{"PATH": "/shim:/usr/bin", "ANTHROPIC_BASE_URL": "http://x"})

	got := map[string]string{}
	for _, kv := range out {
		for i, c := range kv {
			if c == '=' {
				got[kv[:i]] = kv[i+1:]
				break
			}
		}
	}
	require.Equal(t, "/shim:/usr/bin", got["PATH"])
	require.Equal(t, "/root", got["HOME"])
	require.Equal(t, "http://x", got["ANTHROPIC_BASE_URL"])
}
