package main

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/hedworth/mcpc/internal/config"
	"github.com/hedworth/mcpc/internal/errkind"
	"github.com/hedworth/mcpc/internal/ipc"
	"github.com/hedworth/mcpc/internal/paths"
	"github.com/hedworth/mcpc/internal/session"
)

// sessionClient validates the session name and returns a client over the
// bridge manager. The caller owns Close.
func sessionClient(name string, onNotify ipc.NotificationHandler) (*session.Client, error) {
	if err := paths.ValidateSessionName(name); err != nil {
		return nil, err
	}
	_, mgr, err := openSession()
	if err != nil {
		return nil, err
	}
	return session.New(name, mgr, onNotify), nil
}

// resolveTarget turns a command's target into an MCP client and returns the
// remaining positional arguments. Three target forms are accepted:
//
//	@name          persistent session, routed through its bridge
//	https://...    transient streamable-HTTP connection for this invocation
//	-- cmd [args]  transient stdio server spawned for this invocation
//
// Transient targets connect in-process; no session record is created.
func resolveTarget(cmd *cobra.Command, args []string, onNotify ipc.NotificationHandler) (session.MCP, []string, error) {
	if dash := cmd.ArgsLenAtDash(); dash >= 0 {
		command := args[dash:]
		if len(command) == 0 {
			return nil, nil, errkind.New(errkind.Client, "missing command after --")
		}
		cfg := config.ServerConfig{Command: command[0], Args: command[1:]}
		return session.NewDirect(cfg, onNotify), args[:dash], nil
	}

	if len(args) == 0 {
		return nil, nil, errkind.New(errkind.Client, "missing target: @session, server URL, or -- <command>")
	}
	target, rest := args[0], args[1:]
	if strings.HasPrefix(target, "@") {
		c, err := sessionClient(target, onNotify)
		return c, rest, err
	}

	cfg := config.ServerConfig{URL: target}
	if err := cfg.Validate(); err != nil {
		return nil, nil, err
	}
	return session.NewDirect(cfg, onNotify), rest, nil
}

// wantArgs checks the positional arguments left after target resolution.
func wantArgs(rest []string, n int, use string) error {
	if len(rest) != n {
		return errkind.New(errkind.Client, "wrong number of arguments (usage: mcpc %s)", use)
	}
	return nil
}

// printResult pretty-prints a raw MCP result.
func printResult(raw json.RawMessage) error {
	if len(raw) == 0 || bytes.Equal(raw, []byte("null")) {
		fmt.Println("{}")
		return nil
	}
	var buf bytes.Buffer
	if err := json.Indent(&buf, raw, "", "  "); err != nil {
		// Not JSON after all; print as-is.
		fmt.Println(string(raw))
		return nil
	}
	fmt.Println(buf.String())
	return nil
}
