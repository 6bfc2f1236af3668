// Package shim materializes the Sub-agent Shim: a pair of POSIX sh
// scripts in a per-process temporary directory, prepended to the
// guest's PATH, that tag sub-agent traffic with the proxy's
// sub-agent route before it ever reaches the routing middleware.
//
// Grounded on original_source/src/shim/tmux.rs's send-keys injection
// script, reusing internal/utils.ShellQuote for safe argv embedding
// into the generated scripts, generalized from a single tmux-only
// wrapper to the spec's two-script design (multiplexer wrapper plus a
// defense-in-depth guest-binary wrapper).
package shim

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/anyclaude/anyclaude/internal/utils"
	"github.com/rs/zerolog"
)

// IndicatorEnvVar is set by the multiplexer wrapper before delegating
// to the real multiplexer, so the guest-binary wrapper (invoked by the
// multiplexer for the sub-agent's own process) knows to rewrite its
// ANTHROPIC_BASE_URL even if the multiplexer wrapper's own injection
// was stripped somewhere along the way.
const IndicatorEnvVar = "ANYCLAUDE_SUBAGENT_ROUTE"

// Shim owns the temporary directory containing the shim scripts. The
// directory and its contents are removed by Close.
type Shim struct {
	dir             string
	multiplexerName string
	guestName       string
	log             zerolog.Logger
}

// Create materializes the shim directory with both scripts.
// baseURL is the proxy's externally-reachable base URL (e.g.
// "http://127.0.0.1:37123"); prefix is the sub-agent path prefix
// (e.g. "/teammate", no trailing slash); multiplexerName and
// guestName are the binary names to wrap (e.g. "tmux" and "claude").
func Create(baseURL, prefix, multiplexerName, guestName string, log zerolog.Logger) (*Shim, error) {
	dir, err := os.MkdirTemp("", "anyclaude-shim-")
	if err != nil {
		return nil, fmt.Errorf("shim: create temp dir: %w", err)
	}

	s := &Shim{dir: dir, multiplexerName: multiplexerName, guestName: guestName, log: log.With().Str("component", "shim").Logger()}

	subAgentURL := strings.TrimRight(baseURL, "/") + prefix

	if err := writeExecutable(dir, multiplexerName, multiplexerScript(multiplexerName, guestName, subAgentURL)); err != nil {
		os.RemoveAll(dir)
		return nil, err
	}
	if err := writeExecutable(dir, guestName, guestScript(guestName, subAgentURL)); err != nil {
		os.RemoveAll(dir)
		return nil, err
	}

	s.log.Info().Str("dir", dir).Str("sub_agent_url", subAgentURL).Msg("sub-agent shim installed")
	return s, nil
}

// Dir returns the shim directory's absolute path.
func (s *Shim) Dir() string {
	return s.dir
}

// PathEnv returns the PATH value the guest process should receive:
// the shim directory prepended to the current PATH.
func (s *Shim) PathEnv(currentPath string) string {
	return s.dir + string(os.PathListSeparator) + currentPath
}

// Close removes the shim directory and everything in it.
func (s *Shim) Close() error {
	s.log.Debug().Str("dir", s.dir).Msg("removing sub-agent shim directory")
	return os.RemoveAll(s.dir)
}

func writeExecutable(dir, name, content string) error {
	path := filepath.Join(dir, name)
	if err := os.WriteFile(path, []byte(content), 0o755); err != nil {
		return fmt.Errorf("shim: write %s: %w", name, err)
	}
	return nil
}

// multiplexerScript wraps the multiplexer binary (e.g. tmux). When
// invoked with a "send-keys" argument whose payload embeds the guest
// binary's absolute path, it injects ANTHROPIC_BASE_URL=subAgentURL
// and IndicatorEnvVar=1 ahead of that path, then execs the real
// multiplexer found later on PATH (skipping this shim directory).
// Any other invocation passes through unchanged.
func multiplexerScript(multiplexerName, guestName, subAgentURL string) string {
	return fmt.Sprintf(`#!/bin/sh
# AnyClaude %[1]s shim -- injects sub-agent routing into send-keys payloads.
SHIM_DIR=$(cd "$(dirname "$0")" && pwd)

find_real() {
  name=$1
  old_ifs=$IFS
  IFS=:
  for d in $PATH; do
    if [ "$d" != "$SHIM_DIR" ] && [ -x "$d/$name" ]; then
      echo "$d/$name"
      IFS=$old_ifs
      return 0
    fi
  done
  IFS=$old_ifs
  return 1
}

REAL=$(find_real %[1]s)
if [ -z "$REAL" ]; then
  echo "%[1]s: command not found (anyclaude shim)" >&2
  exit 127
fi

has_send_keys=0
for arg in "$@"; do
  case "$arg" in
    send-keys) has_send_keys=1 ;;
  esac
done

if [ "$has_send_keys" -eq 0 ]; then
  exec "$REAL" "$@"
fi

# Rebuild argv, inserting the sub-agent env assignments as two
# standalone tokens immediately before whichever arg embeds the guest
# binary's own path, matching the shape the multiplexer expects (env
# assignments followed by the absolute command path). shift/set -- is
# the standard POSIX way to walk and rebuild "$@" without arrays.
injected=0
remaining=$#
i=0
while [ "$i" -lt "$remaining" ]; do
  i=$((i + 1))
  arg=$1
  shift
  case "$arg" in
    *"/%[2]s"*)
      if [ "$injected" -eq 0 ]; then
        set -- "$@" %[3]s %[4]s "$arg"
        injected=1
        continue
      fi
      ;;
  esac
  set -- "$@" "$arg"
done

exec "$REAL" "$@"
`, multiplexerName, guestName, shellAssignment("ANTHROPIC_BASE_URL", subAgentURL), utils.ShellQuote(IndicatorEnvVar+"=1"))
}

// guestScript wraps the guest binary itself as a defense-in-depth
// layer: if IndicatorEnvVar is set in its environment, it overrides
// ANTHROPIC_BASE_URL to subAgentURL before execing the real guest
// binary found later on PATH.
func guestScript(guestName, subAgentURL string) string {
	return fmt.Sprintf(`#!/bin/sh
# AnyClaude %[1]s shim -- defense-in-depth sub-agent route rewrite.
SHIM_DIR=$(cd "$(dirname "$0")" && pwd)

find_real() {
  name=$1
  old_ifs=$IFS
  IFS=:
  for d in $PATH; do
    if [ "$d" != "$SHIM_DIR" ] && [ -x "$d/$name" ]; then
      echo "$d/$name"
      IFS=$old_ifs
      return 0
    fi
  done
  IFS=$old_ifs
  return 1
}

REAL=$(find_real %[1]s)
if [ -z "$REAL" ]; then
  echo "%[1]s: command not found (anyclaude shim)" >&2
  exit 127
fi

if [ -n "$%[2]s" ]; then
  %[3]s
fi

exec "$REAL" "$@"
`, guestName, IndicatorEnvVar, shellAssignment("export ANTHROPIC_BASE_URL", subAgentURL))
}

func shellAssignment(name, value string) string {
	return name + "=" + utils.ShellQuote(value)
}
