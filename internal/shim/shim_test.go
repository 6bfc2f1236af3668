package shim

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"
)

func TestCreateWritesBothScripts(t *testing.T) {
	s, err := Create("http://127.0.0.1:37123", "/teammate", "tmux", "claude", zerolog.Nop())
	require.NoError(t, err)
	defer s.Close()

	tmuxInfo, err := os.Stat(filepath.Join(s.Dir(), "tmux"))
	require.NoError(t, err)
	require.NotZero(t, tmuxInfo.Mode()&0o111, "tmux shim must be executable")

	claudeInfo, err := os.Stat(filepath.Join(s.Dir(), "claude"))
	require.NoError(t, err)
	require.NotZero(t, claudeInfo.Mode()&0o111, "claude shim must be executable")
}

func TestMultiplexerScriptInjectsSubAgentURL(t *testing.T) {
	body, err := os.ReadFile(writeTempScript(t, multiplexerScript("tmux", "claude", "http://127.0.0.1:9/teammate")))
	require.NoError(t, err)
	require.Contains(t, string(body), "ANTHROPIC_BASE_URL='http://127.0.0.1:9/teammate'")
	require.Contains(t, string(body), IndicatorEnvVar)
	require.Contains(t, string(body), "send-keys")
}

func TestGuestScriptChecksIndicator(t *testing.T) {
	body := guestScript("claude", "http://127.0.0.1:9/teammate")
	require.True(t, strings.Contains(body, "$"+IndicatorEnvVar))
	require.Contains(t, body, "export ANTHROPIC_BASE_URL")
}

func TestPathEnvPrependsShimDir(t *testing.T) {
	s, err := Create("http://127.0.0.1:1", "/teammate", "tmux", "claude", zerolog.Nop())
	require.NoError(t, err)
	defer s.Close()

	got := s.PathEnv("/usr/bin:/bin")
	require.True(t, strings.HasPrefix(got, s.Dir()))
	require.Contains(t, got, "/usr/bin:/bin")
}

func TestCloseRemovesDir(t *testing.T) {
	s, err := Create("http://127.0.0.1:1", "/teammate", "tmux", "claude", zerolog.Nop())
	require.NoError(t, err)
	dir := s.Dir()
	require.NoError(t, s.Close())

	_, err = os.Stat(dir)
	require.True(t, os.IsNotExist(err))
}

func writeTempScript(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "script.sh")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o755))
	return path
}
