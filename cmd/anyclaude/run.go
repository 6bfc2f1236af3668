package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/exec"
	"os/signal"
	"syscall"
	"time"

	"github.com/anyclaude/anyclaude/internal/launch"
	"github.com/anyclaude/anyclaude/internal/ptyhandle"
	"github.com/anyclaude/anyclaude/internal/shutdown"
	"github.com/anyclaude/anyclaude/internal/supervisor"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"
)

func newRunCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:                "run [-- guest args...]",
		Short:              "Launch the guest CLI behind the anyclaude proxy",
		DisableFlagParsing: true, // every flag here may belong to the guest, not us
		RunE: func(cmd *cobra.Command, args []string) error {
			return runRun(args)
		},
	}
	return cmd
}

func runRun(rawArgs []string) error {
	classified := launch.Classify(rawArgs, launch.Registry)
	for _, w := range classified.Warnings {
		fmt.Fprintln(os.Stderr, "anyclaude:", w)
	}

	configPath := flagValue(classified.Args, "--anyclaude-config")
	if configPath == "" {
		configPath = defaultConfigPath()
	}
	guestBinary := "claude"

	log := zerolog.New(zerolog.NewConsoleWriter()).With().Timestamp().Logger()

	sup, err := supervisor.New(supervisor.Options{
		ConfigPath:      configPath,
		GuestBinaryName: guestBinary,
		Log:             log,
	})
	if err != nil {
		return fmt.Errorf("anyclaude: %w", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	proxyErrCh := make(chan error, 1)
	go func() {
		proxyErrCh <- sup.Start(ctx)
	}()

	boundAddr, err := waitForBoundAddr(sup, 5*time.Second)
	if err != nil {
		return fmt.Errorf("anyclaude: proxy failed to bind: %w", err)
	}
	log.Info().Str("addr", boundAddr).Msg("proxy listening")

	guestPath, err := exec.LookPath(guestBinary)
	if err != nil {
		return fmt.Errorf("anyclaude: guest binary %q not found: %w", guestBinary, err)
	}

	assembler := launch.NewAssembler(classified.Args).
		WithSessionFlag(classified.Args).
		WithProxyEnv("http://"+boundAddr, string(sup.Token()))

	guestCmd := exec.Command(guestPath, assembler.Args()...)
	guestCmd.Env = launch.EnvSlice(os.Environ(), assembler.Env())
	guestCmd.Stdout = os.Stdout
	guestCmd.Stderr = os.Stderr

	handle := ptyhandle.NewProcessHandle(guestCmd)
	stdinWriter := handle.Stdin() // must be taken before Start; see ptyhandle.ProcessHandle

	if err := guestCmd.Start(); err != nil {
		return fmt.Errorf("anyclaude: failed to start guest: %w", err)
	}
	go io.Copy(stdinWriter, os.Stdin)

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)

	guestExited := make(chan error, 1)
	go func() { guestExited <- guestCmd.Wait() }()

	select {
	case <-sigCh:
		log.Info().Msg("received shutdown signal")
	case guestErr := <-guestExited:
		log.Info().Err(guestErr).Msg("guest process exited")
	case proxyErr := <-proxyErrCh:
		if proxyErr != nil {
			log.Error().Err(proxyErr).Msg("proxy server exited unexpectedly")
		}
	}

	coordinator := shutdown.New(handle, sup.Proxy(), sup, log)
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()
	return coordinator.Run(shutdownCtx)
}

func waitForBoundAddr(sup *supervisor.Supervisor, timeout time.Duration) (string, error) {
	deadline := time.Now().Add(timeout)
	for {
		if addr := sup.BoundAddr(); addr != "" {
			return addr, nil
		}
		if time.Now().After(deadline) {
			return "", fmt.Errorf("timed out waiting for proxy to bind")
		}
		time.Sleep(10 * time.Millisecond)
	}
}

func flagValue(args []launch.ClassifiedArg, flag string) string {
	for _, a := range args {
		if a.Kind == launch.KindSupervisorOwned && a.Flag == flag {
			return a.Value
		}
	}
	return ""
}
