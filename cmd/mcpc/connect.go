package main

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/hedworth/mcpc/internal/config"
	"github.com/hedworth/mcpc/internal/errkind"
	"github.com/hedworth/mcpc/internal/keychain"
	"github.com/hedworth/mcpc/internal/oauth"
	"github.com/hedworth/mcpc/internal/paths"
	"github.com/hedworth/mcpc/internal/registry"
)

var (
	connectHeaders []string
	connectEnv     []string
	connectProfile string
	connectTimeout int
)

var connectCmd = &cobra.Command{
	Use:   "connect @name [<url> | -- <command> [args...]]",
	Short: "Create a session and start its bridge",
	Long: `Create (or replace) a named session and start its background bridge.

For HTTP servers, provide the URL as a positional argument. Sensitive header
values go to the OS keychain; the registry keeps a redacted copy.
For stdio servers, the command and arguments follow the -- separator.

Examples:
  mcpc connect @docs https://mcp.example.com/mcp --header "Authorization: Bearer tok"
  mcpc connect @jira https://mcp.atlassian.com/v1/sse --profile work
  mcpc connect @fs -- npx -y @modelcontextprotocol/server-filesystem /tmp`,
	Args: cobra.MinimumNArgs(1),
	RunE: runConnect,
}

func init() {
	connectCmd.Flags().StringArrayVarP(&connectHeaders, "header", "H", nil, `HTTP header ("Name: value"), can be repeated`)
	connectCmd.Flags().StringArrayVarP(&connectEnv, "env", "e", nil, "Environment variable (KEY=VALUE) for stdio servers, can be repeated")
	connectCmd.Flags().StringVar(&connectProfile, "profile", "", "OAuth profile to authenticate with (see: mcpc auth set)")
	connectCmd.Flags().IntVar(&connectTimeout, "timeout", 0, "Per-request timeout in seconds (default 30)")

	rootCmd.AddCommand(connectCmd)
}

func runConnect(cmd *cobra.Command, args []string) error {
	name := args[0]
	if err := paths.ValidateSessionName(name); err != nil {
		return err
	}

	cfg, err := buildServerConfig(cmd, args)
	if err != nil {
		return err
	}
	if err := cfg.Validate(); err != nil {
		return err
	}

	reg, mgr, err := openSession()
	if err != nil {
		return err
	}

	if connectProfile != "" {
		if err := paths.ValidateProfileName(connectProfile); err != nil {
			return err
		}
		if !cfg.IsHTTP() {
			return errkind.New(errkind.Client, "--profile only applies to HTTP servers")
		}
		profiles := oauth.NewProfileStore(paths.ProfilesFile(reg.Home()))
		if _, err := profiles.Get(cfg.URL, connectProfile); err != nil {
			return err
		}
	}

	// Real header values live in the keychain only; the registry gets the
	// redacted copy via Put.
	if len(cfg.Headers) > 0 {
		if err := keychain.SetJSON(keychain.SessionHeadersKey(name), cfg.Headers); err != nil {
			return err
		}
	}

	if err := reg.Put(registry.Record{
		Name:        name,
		Server:      cfg,
		ProfileName: connectProfile,
	}); err != nil {
		return err
	}

	if err := mgr.StartBridge(cmd.Context(), name); err != nil {
		return err
	}

	rec, err := reg.Get(name)
	if err != nil {
		return err
	}
	if jsonOutput() {
		return printJSON(newSessionView(rec))
	}
	fmt.Printf("connected %s -> %s (pid %d)\n", name, cfg.String(), rec.PID)
	return nil
}

// buildServerConfig assembles a ServerConfig from positionals and flags:
// a URL positional means HTTP, everything after -- is the stdio command.
func buildServerConfig(cmd *cobra.Command, args []string) (config.ServerConfig, error) {
	var cfg config.ServerConfig

	dashIdx := cmd.ArgsLenAtDash()
	if dashIdx != -1 {
		cmdArgs := args[dashIdx:]
		if len(cmdArgs) == 0 {
			return cfg, errkind.New(errkind.Client, "missing command after --")
		}
		env, err := parseKeyValues(connectEnv, "=")
		if err != nil {
			return cfg, err
		}
		cfg.Command = cmdArgs[0]
		cfg.Args = cmdArgs[1:]
		cfg.Env = env
		return cfg, nil
	}

	if len(args) < 2 {
		return cfg, errkind.New(errkind.Client, "missing server: provide a URL or -- <command>")
	}
	headers, err := parseKeyValues(connectHeaders, ":")
	if err != nil {
		return cfg, err
	}
	cfg.URL = args[1]
	cfg.Headers = headers
	cfg.Timeout = connectTimeout
	return cfg, nil
}

func parseKeyValues(pairs []string, sep string) (map[string]string, error) {
	if len(pairs) == 0 {
		return nil, nil
	}
	out := make(map[string]string, len(pairs))
	for _, p := range pairs {
		k, v, ok := strings.Cut(p, sep)
		k, v = strings.TrimSpace(k), strings.TrimSpace(v)
		if !ok || k == "" {
			return nil, errkind.New(errkind.Client, "invalid pair %q: expected KEY%sVALUE", p, sep)
		}
		out[k] = v
	}
	return out, nil
}
