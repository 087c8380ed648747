package main

import (
	"encoding/json"

	"github.com/spf13/cobra"

	"github.com/hedworth/mcpc/internal/errkind"
)

var (
	toolArgFlags []string
	toolJSONArgs string
)

var toolsCmd = &cobra.Command{
	Use:   "tools",
	Short: "List and call tools on an MCP server",
}

var toolsListCmd = &cobra.Command{
	Use:   "list <target>",
	Short: "List the server's tools",
	Long: `List the server's tools. The target is a session (@name), a server
URL for a one-shot connection, or a local stdio server after "--".

Examples:
  mcpc tools list @docs
  mcpc tools list https://mcp.example.com/mcp
  mcpc tools list -- npx -y @modelcontextprotocol/server-filesystem /tmp`,
	Args: cobra.ArbitraryArgs,
	RunE: runToolsList,
}

var toolsCallCmd = &cobra.Command{
	Use:   "call <target> <tool>",
	Short: "Call a tool",
	Long: `Call a tool by name. Arguments are given either as repeated --arg
key=value pairs (values are parsed as JSON when possible, otherwise kept as
strings) or as one JSON object via --args.

Examples:
  mcpc tools call @docs search --arg query=hello --arg limit=5
  mcpc tools call @docs search --args '{"query":"hello","limit":5}'
  mcpc tools call search --arg query=hello -- npx -y some-mcp-server`,
	Args: cobra.ArbitraryArgs,
	RunE: runToolsCall,
}

func init() {
	toolsCallCmd.Flags().StringArrayVar(&toolArgFlags, "arg", nil, "Tool argument (key=value), can be repeated")
	toolsCallCmd.Flags().StringVar(&toolJSONArgs, "args", "", "Tool arguments as a JSON object")

	toolsCmd.AddCommand(toolsListCmd)
	toolsCmd.AddCommand(toolsCallCmd)
	rootCmd.AddCommand(toolsCmd)
}

func runToolsList(cmd *cobra.Command, args []string) error {
	c, rest, err := resolveTarget(cmd, args, nil)
	if err != nil {
		return err
	}
	defer c.Close()
	if err := wantArgs(rest, 0, "tools list <target>"); err != nil {
		return err
	}

	raw, err := c.ListTools(cmd.Context())
	if err != nil {
		return err
	}
	return printResult(raw)
}

func runToolsCall(cmd *cobra.Command, args []string) error {
	toolArgs, err := parseToolArgs()
	if err != nil {
		return err
	}

	c, rest, err := resolveTarget(cmd, args, nil)
	if err != nil {
		return err
	}
	defer c.Close()
	if err := wantArgs(rest, 1, "tools call <target> <tool>"); err != nil {
		return err
	}

	raw, err := c.CallTool(cmd.Context(), rest[0], toolArgs)
	if err != nil {
		return err
	}
	return printResult(raw)
}

func parseToolArgs() (map[string]any, error) {
	if toolJSONArgs != "" {
		if len(toolArgFlags) > 0 {
			return nil, errkind.New(errkind.Client, "--arg and --args are mutually exclusive")
		}
		var out map[string]any
		if err := json.Unmarshal([]byte(toolJSONArgs), &out); err != nil {
			return nil, errkind.Wrap(errkind.Client, err, "parse --args")
		}
		return out, nil
	}
	if len(toolArgFlags) == 0 {
		return nil, nil
	}

	pairs, err := parseKeyValues(toolArgFlags, "=")
	if err != nil {
		return nil, err
	}
	out := make(map[string]any, len(pairs))
	for k, v := range pairs {
		// Numbers, booleans, and nested JSON pass through typed; anything
		// that does not parse stays a string.
		var typed any
		if err := json.Unmarshal([]byte(v), &typed); err == nil {
			out[k] = typed
		} else {
			out[k] = v
		}
	}
	return out, nil
}
