package main

import (
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/hedworth/mcpc/internal/bridge"
	"github.com/hedworth/mcpc/internal/logging"
	"github.com/hedworth/mcpc/internal/paths"
	"github.com/hedworth/mcpc/internal/registry"
)

// bridgeCmd is the daemon entry point. The CLI re-executes its own binary
// with this subcommand, writes the handshake to the child's stdin, and
// waits for the readiness signal. Users never run it directly.
var bridgeCmd = &cobra.Command{
	Use:    "bridge",
	Short:  "Run a session bridge daemon (internal)",
	Hidden: true,
	Args:   cobra.NoArgs,
	RunE:   runBridge,
}

func init() {
	rootCmd.AddCommand(bridgeCmd)
}

func runBridge(cmd *cobra.Command, args []string) error {
	hs, err := bridge.ReadHandshake(os.Stdin)
	if err != nil {
		// Stderr is redirected to the bridge log file by the spawner.
		fmt.Fprintln(os.Stderr, "bridge handshake:", err)
		return err
	}

	home, err := paths.Home()
	if err != nil {
		return err
	}

	logger, err := logging.NewBridgeLogger(paths.LogPath(home, hs.SessionName), hs.Verbose)
	if err != nil {
		return err
	}

	var ready io.WriteCloser
	if f := bridge.ReadyPipe(); f != nil {
		ready = f
	}

	srv := bridge.NewServer(*hs, bridge.ServerOptions{
		Home:     home,
		Logger:   logger,
		Registry: registry.New(home),
		Ready:    ready,
	})

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(sigCh)
	go func() {
		sig := <-sigCh
		srv.Shutdown(fmt.Sprintf("signal %v", sig))
	}()

	return srv.Run(cmd.Context())
}
