package main

import (
	"fmt"
	"os"
	"os/exec"

	"github.com/anyclaude/anyclaude/internal/config"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"
)

func newDoctorCmd() *cobra.Command {
	var configPath string
	var guestBinary string
	var multiplexerName string

	cmd := &cobra.Command{
		Use:   "doctor",
		Short: "Check the local environment for common setup problems",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runDoctor(configPath, guestBinary, multiplexerName)
		},
	}

	cmd.Flags().StringVar(&configPath, "config", defaultConfigPath(), "path to the anyclaude config file")
	cmd.Flags().StringVar(&guestBinary, "guest-binary", "claude", "guest CLI binary name")
	cmd.Flags().StringVar(&multiplexerName, "multiplexer", "tmux", "multiplexer binary name the guest spawns teammates through")

	return cmd
}

func runDoctor(configPath, guestBinary, multiplexerName string) error {
	ok := true

	store := config.NewStore(zerolog.Nop())
	snap, err := store.Load(configPath)
	if err != nil {
		fmt.Printf("[FAIL] config: %v\n", err)
		ok = false
	} else {
		fmt.Printf("[ OK ] config loaded from %s (%d backend(s))\n", configPath, len(snap.Backends()))
		if _, found := snap.BackendByID(snap.Defaults().ActiveBackendID); !found {
			fmt.Printf("[FAIL] defaults.active_backend_id %q does not match any configured backend\n", snap.Defaults().ActiveBackendID)
			ok = false
		}
	}

	if path, err := exec.LookPath(guestBinary); err != nil {
		fmt.Printf("[FAIL] guest binary %q not found on PATH: %v\n", guestBinary, err)
		ok = false
	} else {
		fmt.Printf("[ OK ] guest binary %q resolved to %s\n", guestBinary, path)
	}

	if snap != nil && snap.SubAgent().TeammateBackendID != "" {
		if path, err := exec.LookPath(multiplexerName); err != nil {
			fmt.Printf("[FAIL] multiplexer %q not found on PATH (required by sub_agent config): %v\n", multiplexerName, err)
			ok = false
		} else {
			fmt.Printf("[ OK ] multiplexer %q resolved to %s\n", multiplexerName, path)
		}
	}

	tmp, err := os.MkdirTemp("", "anyclaude-doctor-")
	if err != nil {
		fmt.Printf("[FAIL] cannot create a temp directory for the sub-agent shim: %v\n", err)
		ok = false
	} else {
		os.RemoveAll(tmp)
		fmt.Println("[ OK ] temp directory is writable")
	}

	if !ok {
		return fmt.Errorf("doctor: one or more checks failed")
	}
	fmt.Println("all checks passed")
	return nil
}

func defaultConfigPath() string {
	if home, err := os.UserHomeDir(); err == nil {
		return home + "/.config/anyclaude/config.toml"
	}
	return "./anyclaude.toml"
}
