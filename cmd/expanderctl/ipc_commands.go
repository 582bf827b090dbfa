package main

import (
	"context"
	"errors"
	"fmt"
	"text/tabwriter"
	"time"

	"github.com/urfave/cli/v2"

	"expanderd/internal/ipc"
)

// dial connects to the daemon named by the config's socket path.
func dial(c *cli.Context) (*ipc.Client, error) {
	cfg, err := loadConfig(c)
	if err != nil {
		return nil, err
	}
	client, err := ipc.Dial(c.Context, ipc.DefaultClientConfig(cfg.IPC.SocketPath))
	if errors.Is(err, ipc.ErrDaemonNotRunning) {
		return nil, cli.Exit("expanderd is not running (start it with: expanderd run)", 1)
	}
	return client, err
}

// statusCmd creates the status command.
func statusCmd() *cli.Command {
	return &cli.Command{
		Name:  "status",
		Usage: "Show daemon and engine status",
		Action: func(c *cli.Context) error {
			client, err := dial(c)
			if err != nil {
				return outputError(err)
			}
			defer client.Close()

			st, err := client.Status(c.Context)
			if err != nil {
				return outputError(err)
			}
			if c.Bool("json") {
				return outputJSON(c.App.Writer, st)
			}

			state := "stopped"
			if st.Engine.Running {
				state = "running"
			}
			tw := tabwriter.NewWriter(c.App.Writer, 0, 4, 2, ' ', 0)
			fmt.Fprintf(tw, "Version\t%s\n", st.Version)
			fmt.Fprintf(tw, "PID\t%d\n", st.PID)
			fmt.Fprintf(tw, "Uptime\t%s\n", st.Uptime.Round(time.Second))
			fmt.Fprintf(tw, "Storage\t%s (%s)\n", st.Storage.Path, st.Storage.Type)
			fmt.Fprintf(tw, "Engine\t%s\n", state)
			fmt.Fprintf(tw, "Expansions\t%d\n", st.Engine.Expansions)
			if st.Engine.WhitelistEnabled {
				fmt.Fprintf(tw, "Whitelist\t%d entries\n", st.Engine.WhitelistEntries)
			} else {
				fmt.Fprintf(tw, "Whitelist\toff\n")
			}
			fmt.Fprintf(tw, "Substitutions\t%d\n", st.Engine.Substitutions)
			fmt.Fprintf(tw, "Denied\t%d\n", st.Engine.Denied)
			if st.Engine.Pending > 0 {
				fmt.Fprintf(tw, "Pending\t%d\n", st.Engine.Pending)
			}
			if st.Engine.LastError != "" {
				fmt.Fprintf(tw, "Last error\t%s (%s)\n", st.Engine.LastError, st.Engine.LastErrorAt.Format(time.RFC3339))
			}
			return tw.Flush()
		},
	}
}

// actionCmd creates a command that sends one engine control request.
func actionCmd(name, usage string, send func(*ipc.Client, context.Context) (*ipc.ActionResponse, error)) *cli.Command {
	return &cli.Command{
		Name:  name,
		Usage: usage,
		Action: func(c *cli.Context) error {
			client, err := dial(c)
			if err != nil {
				return outputError(err)
			}
			defer client.Close()

			resp, err := send(client, c.Context)
			if err != nil {
				return outputError(err)
			}
			if c.Bool("json") {
				return outputJSON(c.App.Writer, resp)
			}
			state := "stopped"
			if resp.Running {
				state = "running"
			}
			fmt.Fprintf(c.App.Writer, "engine %s, %d expansions\n", state, resp.Expansions)
			return nil
		},
	}
}
