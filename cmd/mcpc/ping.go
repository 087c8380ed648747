package main

import (
	"fmt"

	"github.com/spf13/cobra"
)

var pingCmd = &cobra.Command{
	Use:   "ping <target>",
	Short: "Round-trip a ping to the server",
	Long: `Ping an MCP server. The target is a session (@name, routed through
its bridge), a server URL, or a local stdio server after "--".`,
	Args: cobra.ArbitraryArgs,
	RunE: runPing,
}

var detailsCmd = &cobra.Command{
	Use:   "details <target>",
	Short: "Show the server's name, version, and capabilities",
	Args:  cobra.ArbitraryArgs,
	RunE:  runDetails,
}

var setLevelCmd = &cobra.Command{
	Use:   "set-level <target> <level>",
	Short: "Set the server's logging level",
	Long:  `Set the upstream server's logging level (debug, info, notice, warning, error, critical, alert, emergency).`,
	Args:  cobra.ArbitraryArgs,
	RunE:  runSetLevel,
}

func init() {
	rootCmd.AddCommand(pingCmd)
	rootCmd.AddCommand(detailsCmd)
	rootCmd.AddCommand(setLevelCmd)
}

func runPing(cmd *cobra.Command, args []string) error {
	c, rest, err := resolveTarget(cmd, args, nil)
	if err != nil {
		return err
	}
	defer c.Close()
	if err := wantArgs(rest, 0, "ping <target>"); err != nil {
		return err
	}

	if err := c.Ping(cmd.Context()); err != nil {
		return err
	}
	if jsonOutput() {
		return printJSON(map[string]string{"status": "ok"})
	}
	fmt.Println("ok")
	return nil
}

func runDetails(cmd *cobra.Command, args []string) error {
	c, rest, err := resolveTarget(cmd, args, nil)
	if err != nil {
		return err
	}
	defer c.Close()
	if err := wantArgs(rest, 0, "details <target>"); err != nil {
		return err
	}

	details, err := c.ServerDetails(cmd.Context())
	if err != nil {
		return err
	}
	if jsonOutput() {
		return printJSON(details)
	}
	fmt.Printf("name:     %s\n", details.Name)
	fmt.Printf("version:  %s\n", details.Version)
	fmt.Printf("protocol: %s\n", details.ProtocolVersion)
	if details.Instructions != "" {
		fmt.Printf("instructions:\n%s\n", details.Instructions)
	}
	return nil
}

func runSetLevel(cmd *cobra.Command, args []string) error {
	c, rest, err := resolveTarget(cmd, args, nil)
	if err != nil {
		return err
	}
	defer c.Close()
	if err := wantArgs(rest, 1, "set-level <target> <level>"); err != nil {
		return err
	}

	if err := c.SetLoggingLevel(cmd.Context(), rest[0]); err != nil {
		return err
	}
	if !jsonOutput() {
		fmt.Println("ok")
	}
	return nil
}
