package main

import (
	"github.com/spf13/cobra"
)

var promptArgFlags []string

var promptsCmd = &cobra.Command{
	Use:   "prompts",
	Short: "List and fetch prompts on an MCP server",
}

var promptsListCmd = &cobra.Command{
	Use:   "list <target>",
	Short: "List the server's prompts",
	Args:  cobra.ArbitraryArgs,
	RunE:  runPromptsList,
}

var promptsGetCmd = &cobra.Command{
	Use:   "get <target> <prompt>",
	Short: "Fetch a prompt",
	Long: `Fetch a prompt by name.

Examples:
  mcpc prompts get @docs summarize --arg style=short`,
	Args: cobra.ArbitraryArgs,
	RunE: runPromptsGet,
}

func init() {
	promptsGetCmd.Flags().StringArrayVar(&promptArgFlags, "arg", nil, "Prompt argument (key=value), can be repeated")

	promptsCmd.AddCommand(promptsListCmd)
	promptsCmd.AddCommand(promptsGetCmd)
	rootCmd.AddCommand(promptsCmd)
}

func runPromptsList(cmd *cobra.Command, args []string) error {
	c, rest, err := resolveTarget(cmd, args, nil)
	if err != nil {
		return err
	}
	defer c.Close()
	if err := wantArgs(rest, 0, "prompts list <target>"); err != nil {
		return err
	}

	raw, err := c.ListPrompts(cmd.Context())
	if err != nil {
		return err
	}
	return printResult(raw)
}

func runPromptsGet(cmd *cobra.Command, args []string) error {
	promptArgs, err := parseKeyValues(promptArgFlags, "=")
	if err != nil {
		return err
	}

	c, rest, err := resolveTarget(cmd, args, nil)
	if err != nil {
		return err
	}
	defer c.Close()
	if err := wantArgs(rest, 1, "prompts get <target> <prompt>"); err != nil {
		return err
	}

	raw, err := c.GetPrompt(cmd.Context(), rest[0], promptArgs)
	if err != nil {
		return err
	}
	return printResult(raw)
}
