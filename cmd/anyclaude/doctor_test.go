package main

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestRunDoctorFailsOnMissingConfig(t *testing.T) {
	err := runDoctor(filepath.Join(t.TempDir(), "missing.toml"), "claude", "tmux")
	require.Error(t, err)
}

func TestRunDoctorFailsOnInvalidActiveBackend(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.toml")
	require.NoError(t, os.WriteFile(path, []byte(`
[defaults]
active_backend_id = "missing"

[[backends]]
id = "a"
base_url = "http://example.invalid"
auth = "forward"
`), 0o644))

	err := runDoctor(path, "claude", "tmux")
	require.Error(t, err)
}

func TestDefaultConfigPathIsNonEmpty(t *testing.T) {
	require.NotEmpty(t, defaultConfigPath())
}
