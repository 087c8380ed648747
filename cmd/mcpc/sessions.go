package main

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/hedworth/mcpc/internal/bridge"
	"github.com/hedworth/mcpc/internal/ipc"
	"github.com/hedworth/mcpc/internal/keychain"
	"github.com/hedworth/mcpc/internal/registry"
)

var consolidateForce bool

var sessionsCmd = &cobra.Command{
	Use:   "sessions",
	Short: "List and maintain sessions",
	RunE:  runSessionsList,
}

var sessionsListCmd = &cobra.Command{
	Use:   "list",
	Short: "List sessions",
	RunE:  runSessionsList,
}

var sessionsConsolidateCmd = &cobra.Command{
	Use:   "consolidate",
	Short: "Reconcile the session registry with reality",
	Long: `Remove expired sessions, sweep stale sockets left by dead bridges, and
delete orphan bridge logs older than a week. Dead sessions are kept so they
can be restarted.

With --force, sessions whose bridge process is alive but unresponsive are
treated as dead.`,
	RunE: runConsolidate,
}

var closeCmd = &cobra.Command{
	Use:   "close @name",
	Short: "Stop a session's bridge and remove the session",
	Args:  cobra.ExactArgs(1),
	RunE:  runClose,
}

var restartCmd = &cobra.Command{
	Use:   "restart @name",
	Short: "Restart a session's bridge",
	Args:  cobra.ExactArgs(1),
	RunE:  runRestart,
}

func init() {
	sessionsConsolidateCmd.Flags().BoolVar(&consolidateForce, "force", false, "Ping live bridges; demote unresponsive ones to dead")

	sessionsCmd.AddCommand(sessionsListCmd)
	sessionsCmd.AddCommand(sessionsConsolidateCmd)
	rootCmd.AddCommand(sessionsCmd)
	rootCmd.AddCommand(closeCmd)
	rootCmd.AddCommand(restartCmd)
}

// sessionView is the output shape for one session.
type sessionView struct {
	Name        string `json:"name"`
	Target      string `json:"target"`
	Type        string `json:"type"`
	Status      string `json:"status"`
	PID         int    `json:"pid,omitempty"`
	ProfileName string `json:"profileName,omitempty"`
	CreatedAt   string `json:"createdAt"`
	LastSeenAt  string `json:"lastSeenAt"`
}

func newSessionView(r registry.Record) sessionView {
	kind := "http"
	if r.Server.IsStdio() {
		kind = "stdio"
	}
	return sessionView{
		Name:        r.Name,
		Target:      r.Server.String(),
		Type:        kind,
		Status:      r.ComputedStatus(),
		PID:         r.PID,
		ProfileName: r.ProfileName,
		CreatedAt:   r.CreatedAt.Format(time.RFC3339),
		LastSeenAt:  r.LastSeenAt.Format(time.RFC3339),
	}
}

func runSessionsList(cmd *cobra.Command, args []string) error {
	reg, _, err := openSession()
	if err != nil {
		return err
	}
	records, err := reg.List()
	if err != nil {
		return err
	}

	views := make([]sessionView, len(records))
	for i, r := range records {
		views[i] = newSessionView(r)
	}

	if jsonOutput() {
		return printJSON(views)
	}
	if len(views) == 0 {
		fmt.Println("No sessions")
		return nil
	}
	printSessionTable(views)
	return nil
}

func printSessionTable(views []sessionView) {
	nameWidth, targetWidth := 4, 6
	for _, v := range views {
		if len(v.Name) > nameWidth {
			nameWidth = len(v.Name)
		}
		if len(v.Target) > targetWidth {
			targetWidth = len(v.Target)
		}
	}
	if targetWidth > 45 {
		targetWidth = 45
	}

	fmt.Printf("%-*s  %-*s  %-6s  %-8s  %s\n", nameWidth, "NAME", targetWidth, "TARGET", "TYPE", "STATUS", "PID")
	for _, v := range views {
		target := v.Target
		if len(target) > targetWidth {
			target = target[:targetWidth-3] + "..."
		}
		pid := "-"
		if v.PID > 0 {
			pid = fmt.Sprintf("%d", v.PID)
		}
		fmt.Printf("%-*s  %-*s  %-6s  %-8s  %s\n", nameWidth, v.Name, targetWidth, target, v.Type, v.Status, pid)
	}
}

func runConsolidate(cmd *cobra.Command, args []string) error {
	reg, mgr, err := openSession()
	if err != nil {
		return err
	}

	var ping registry.Pinger
	if consolidateForce {
		ping = func(ctx context.Context, home, session string) error {
			conn, err := mgr.Dial(session)
			if err != nil {
				return err
			}
			c := ipc.NewClient(conn, nil)
			defer c.Close()
			pingCtx, cancel := context.WithTimeout(ctx, bridge.DialTimeout)
			defer cancel()
			return c.Ping(pingCtx)
		}
	}

	res, err := reg.Consolidate(cmd.Context(), consolidateForce, ping)
	if err != nil {
		return err
	}

	if jsonOutput() {
		views := make([]sessionView, len(res.Sessions))
		for i, r := range res.Sessions {
			views[i] = newSessionView(r)
		}
		return printJSON(struct {
			Sessions       []sessionView `json:"sessions"`
			Removed        []string      `json:"removed"`
			SocketsSwept   []string      `json:"socketsSwept"`
			OrphanLogsGone []string      `json:"orphanLogsGone"`
		}{views, res.Removed, res.SocketsSwept, res.OrphanLogsGone})
	}

	fmt.Printf("removed %d expired session(s), swept %d socket(s), deleted %d orphan log(s)\n",
		len(res.Removed), len(res.SocketsSwept), len(res.OrphanLogsGone))
	for _, name := range res.Removed {
		fmt.Println("  removed", name)
	}
	return nil
}

func runClose(cmd *cobra.Command, args []string) error {
	name := args[0]
	reg, mgr, err := openSession()
	if err != nil {
		return err
	}
	if _, err := reg.Get(name); err != nil {
		return err
	}
	if err := mgr.StopBridge(cmd.Context(), name); err != nil {
		return err
	}
	if err := reg.Delete(name); err != nil {
		return err
	}
	// Session-scoped headers go with the session.
	if err := keychain.Delete(keychain.SessionHeadersKey(name)); err != nil {
		return err
	}
	if !jsonOutput() {
		fmt.Println("closed", name)
	}
	return nil
}

func runRestart(cmd *cobra.Command, args []string) error {
	name := args[0]
	reg, mgr, err := openSession()
	if err != nil {
		return err
	}
	if _, err := reg.Get(name); err != nil {
		return err
	}
	if err := mgr.RestartBridge(cmd.Context(), name); err != nil {
		return err
	}
	rec, err := reg.Get(name)
	if err != nil {
		return err
	}
	if jsonOutput() {
		return printJSON(newSessionView(rec))
	}
	fmt.Printf("restarted %s (pid %d)\n", name, rec.PID)
	return nil
}
