package main

import (
	"fmt"
	"os"
	"os/signal"

	"github.com/spf13/cobra"

	"github.com/hedworth/mcpc/internal/ipc"
)

var resourcesCmd = &cobra.Command{
	Use:   "resources",
	Short: "List, read, and watch resources on an MCP server",
}

var resourcesListCmd = &cobra.Command{
	Use:   "list <target>",
	Short: "List the server's resources",
	Args:  cobra.ArbitraryArgs,
	RunE:  runResourcesList,
}

var resourcesTemplatesCmd = &cobra.Command{
	Use:   "templates <target>",
	Short: "List the server's resource templates",
	Args:  cobra.ArbitraryArgs,
	RunE:  runResourcesTemplates,
}

var resourcesReadCmd = &cobra.Command{
	Use:   "read <target> <uri>",
	Short: "Read a resource",
	Args:  cobra.ArbitraryArgs,
	RunE:  runResourcesRead,
}

var resourcesSubscribeCmd = &cobra.Command{
	Use:   "subscribe <target> <uri>",
	Short: "Subscribe to a resource and stream update notifications",
	Long: `Subscribe to a resource URI and print each update notification as it
arrives. Runs until interrupted; the subscription is dropped on exit.`,
	Args: cobra.ArbitraryArgs,
	RunE: runResourcesSubscribe,
}

func init() {
	resourcesCmd.AddCommand(resourcesListCmd)
	resourcesCmd.AddCommand(resourcesTemplatesCmd)
	resourcesCmd.AddCommand(resourcesReadCmd)
	resourcesCmd.AddCommand(resourcesSubscribeCmd)
	rootCmd.AddCommand(resourcesCmd)
}

func runResourcesList(cmd *cobra.Command, args []string) error {
	c, rest, err := resolveTarget(cmd, args, nil)
	if err != nil {
		return err
	}
	defer c.Close()
	if err := wantArgs(rest, 0, "resources list <target>"); err != nil {
		return err
	}

	raw, err := c.ListResources(cmd.Context())
	if err != nil {
		return err
	}
	return printResult(raw)
}

func runResourcesTemplates(cmd *cobra.Command, args []string) error {
	c, rest, err := resolveTarget(cmd, args, nil)
	if err != nil {
		return err
	}
	defer c.Close()
	if err := wantArgs(rest, 0, "resources templates <target>"); err != nil {
		return err
	}

	raw, err := c.ListResourceTemplates(cmd.Context())
	if err != nil {
		return err
	}
	return printResult(raw)
}

func runResourcesRead(cmd *cobra.Command, args []string) error {
	c, rest, err := resolveTarget(cmd, args, nil)
	if err != nil {
		return err
	}
	defer c.Close()
	if err := wantArgs(rest, 1, "resources read <target> <uri>"); err != nil {
		return err
	}

	raw, err := c.ReadResource(cmd.Context(), rest[0])
	if err != nil {
		return err
	}
	return printResult(raw)
}

func runResourcesSubscribe(cmd *cobra.Command, args []string) error {
	notifications := make(chan ipc.Notification, 16)
	c, rest, err := resolveTarget(cmd, args, func(n ipc.Notification) {
		select {
		case notifications <- n:
		default: // slow terminal; drop rather than block the read loop
		}
	})
	if err != nil {
		return err
	}
	defer c.Close()
	if err := wantArgs(rest, 1, "resources subscribe <target> <uri>"); err != nil {
		return err
	}
	uri := rest[0]

	if err := c.Subscribe(cmd.Context(), uri); err != nil {
		return err
	}
	defer c.Unsubscribe(cmd.Context(), uri)

	fmt.Fprintf(os.Stderr, "subscribed to %s, waiting for updates (ctrl-c to stop)\n", uri)

	interrupt := make(chan os.Signal, 1)
	signal.Notify(interrupt, os.Interrupt)
	defer signal.Stop(interrupt)

	for {
		select {
		case n := <-notifications:
			view := struct {
				Method string `json:"method"`
				Params any    `json:"params,omitempty"`
			}{n.Method, nil}
			if len(n.Params) > 0 {
				view.Params = n.Params
			}
			if err := printJSON(view); err != nil {
				return err
			}
		case <-interrupt:
			return nil
		case <-cmd.Context().Done():
			return nil
		}
	}
}
