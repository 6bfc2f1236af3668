package supervisor

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/anyclaude/anyclaude/internal/commandbus"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	dir := t.TempDir()
	path := filepath.Join(dir, "config.toml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestNewWiresBasicSupervisor(t *testing.T) {
	path := writeConfig(t, `
[proxy]
bind_addr = "127.0.0.1:0"

[defaults]
active_backend_id = "a"

[[backends]]
id = "a"
base_url = "http://example.invalid"
auth = "forward"
`)

	sup, err := New(Options{ConfigPath: path, Log: zerolog.Nop()})
	require.NoError(t, err)
	require.NotEmpty(t, string(sup.Token()))
	require.Nil(t, sup.router)
}

func TestNewWithSubAgentBuildsRouterAndShim(t *testing.T) {
	path := writeConfig(t, `
[proxy]
bind_addr = "127.0.0.1:0"
base_url = "http://127.0.0.1:9999"

[defaults]
active_backend_id = "a"

[sub_agent]
teammate_backend_id = "b"
path_prefix = "/teammate"

[[backends]]
id = "a"
base_url = "http://example.invalid"
auth = "forward"

[[backends]]
id = "b"
base_url = "http://example2.invalid"
auth = "forward"
`)

	sup, err := New(Options{ConfigPath: path, Log: zerolog.Nop()})
	require.NoError(t, err)
	require.NotNil(t, sup.router)
	require.NotNil(t, sup.shimHandle)

	require.NoError(t, sup.Shutdown(context.Background()))
}

func TestGetStatusCommandRoundTrips(t *testing.T) {
	path := writeConfig(t, `
[proxy]
bind_addr = "127.0.0.1:0"

[defaults]
active_backend_id = "a"

[[backends]]
id = "a"
base_url = "http://example.invalid"
auth = "forward"
`)

	sup, err := New(Options{ConfigPath: path, Log: zerolog.Nop()})
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go sup.serveCommands(ctx)

	reply, err := sup.CommandSender().SendWithDeadline(commandbus.Command{Kind: commandbus.KindGetStatus}, time.Second)
	require.NoError(t, err)
	require.NoError(t, reply.Err)
	status, ok := reply.Value.(statusSnapshot)
	require.True(t, ok)
	require.Equal(t, "a", status.ActiveBackendID)
}

func TestSwitchBackendCommandUpdatesState(t *testing.T) {
	path := writeConfig(t, `
[proxy]
bind_addr = "127.0.0.1:0"

[defaults]
active_backend_id = "a"

[[backends]]
id = "a"
base_url = "http://example.invalid"
auth = "forward"

[[backends]]
id = "b"
base_url = "http://example2.invalid"
auth = "forward"
`)

	sup, err := New(Options{ConfigPath: path, Log: zerolog.Nop()})
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go sup.serveCommands(ctx)

	reply, err := sup.CommandSender().SendWithDeadline(commandbus.Command{Kind: commandbus.KindSwitchBackend, SwitchBackendID: "b"}, time.Second)
	require.NoError(t, err)
	require.NoError(t, reply.Err)
	require.Equal(t, "b", sup.backendState.Get())
}

func TestOnConfigReloadedRebuildsTransformer(t *testing.T) {
	path := writeConfig(t, `
[proxy]
bind_addr = "127.0.0.1:0"

[defaults]
active_backend_id = "a"

[[backends]]
id = "a"
base_url = "http://example.invalid"
auth = "forward"
`)

	sup, err := New(Options{ConfigPath: path, Log: zerolog.Nop()})
	require.NoError(t, err)

	snap, err := sup.configStore.Load(path)
	require.NoError(t, err)
	sup.onConfigReloaded(snap)
}
