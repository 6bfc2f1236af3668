package main

import (
	"fmt"
	"os"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
)

// version is overridden at build time via -ldflags.
var version = "dev"

func main() {
	_ = godotenv.Load()

	rootCmd := &cobra.Command{
		Use:   "anyclaude",
		Short: "Terminal-hosted supervisor and proxy for the claude CLI",
		Long: `anyclaude launches the claude CLI inside a managed terminal session,
fronted by a local reverse proxy that handles backend switching,
reasoning-block compatibility, and request/response observability.`,
	}

	rootCmd.AddCommand(newRunCmd())
	rootCmd.AddCommand(newDoctorCmd())
	rootCmd.AddCommand(newVersionCmd())

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
