package main

import (
	"encoding/json"
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/hedworth/mcpc/internal/bridge"
	"github.com/hedworth/mcpc/internal/errkind"
	"github.com/hedworth/mcpc/internal/history"
	"github.com/hedworth/mcpc/internal/paths"
	"github.com/hedworth/mcpc/internal/registry"
)

// Version information (set at build time via ldflags)
var (
	version = "dev"
	commit  = "unknown"
)

var (
	flagJSON    bool
	flagVerbose bool
)

var rootCmd = &cobra.Command{
	Use:   "mcpc",
	Short: "MCP client with named persistent sessions",
	Long: `mcpc talks to MCP servers through named sessions (@name). Each session
is backed by a background bridge daemon that keeps the server connection
alive between CLI invocations, so expensive stdio servers start once and
OAuth tokens refresh in one place.

  mcpc connect @docs https://mcp.example.com/mcp --header "Authorization: Bearer ..."
  mcpc tools list @docs
  mcpc tools call @docs search --arg query=hello
  mcpc close @docs

Commands that take a target also accept a server URL or a local command
after "--" for a one-shot connection without a session:

  mcpc tools list https://mcp.example.com/mcp
  mcpc ping -- npx -y some-mcp-server`,
	Version:       fmt.Sprintf("%s (commit: %s)", version, commit),
	SilenceErrors: true,
	SilenceUsage:  true,
	// The flags mirror into the environment so spawned bridges and the
	// env-based helpers see one consistent setting.
	PersistentPreRun: func(cmd *cobra.Command, args []string) {
		if flagVerbose {
			os.Setenv(paths.EnvVerbose, "1")
		}
		if flagJSON {
			os.Setenv(paths.EnvJSON, "1")
		}
	},
}

func init() {
	rootCmd.CompletionOptions.DisableDefaultCmd = true
	rootCmd.PersistentFlags().BoolVar(&flagJSON, "json", false, "Output as JSON (also: MCPC_JSON=1)")
	rootCmd.PersistentFlags().BoolVarP(&flagVerbose, "verbose", "v", false, "Verbose output (also: MCPC_VERBOSE=1)")
}

func Execute() {
	err := rootCmd.Execute()
	recordHistory()
	if err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		if hint := errkind.HintOf(err); hint != "" {
			fmt.Fprintln(os.Stderr, "  "+hint)
		}
		os.Exit(errkind.Of(err).ExitCode())
	}
}

// recordHistory appends the invocation to ~/.mcpc/history. The hidden
// bridge daemon command is not user input and stays out.
func recordHistory() {
	args := os.Args[1:]
	if len(args) == 0 || args[0] == "bridge" || args[0] == "help" {
		return
	}
	home, err := paths.Home()
	if err != nil {
		return
	}
	_ = history.Append(home, strings.Join(args, " "))
}

// jsonOutput reports whether machine-readable output was requested by flag
// or environment.
func jsonOutput() bool {
	return flagJSON || paths.JSONOutput()
}

// printJSON writes v as indented JSON to stdout.
func printJSON(v any) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return err
	}
	fmt.Println(string(data))
	return nil
}

// openSession returns the registry and bridge manager for the mcpc home.
func openSession() (*registry.Registry, *bridge.Manager, error) {
	home, err := paths.Home()
	if err != nil {
		return nil, nil, err
	}
	reg := registry.New(home)
	return reg, bridge.NewManager(home, reg), nil
}
