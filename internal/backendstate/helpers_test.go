package backendstate

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"
)

func zerologNop() zerolog.Logger { return zerolog.Nop() }

func writeTemp(t *testing.T, contents string) string {
	t.Helper()
	p := filepath.Join(t.TempDir(), "config.toml")
	require.NoError(t, os.WriteFile(p, []byte(contents), 0o644))
	return p
}

const baseTOML = `
[defaults]
active_backend_id = "a"

[[backends]]
id = "a"
base_url = "https://a.example.com"
`

const twoBackendTOML = `
[defaults]
active_backend_id = "a"

[[backends]]
id = "a"
base_url = "https://a.example.com"

[[backends]]
id = "b"
base_url = "https://b.example.com"
`
