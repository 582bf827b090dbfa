// expanderctl manages expanderd data and controls the running daemon.
package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/urfave/cli/v2"

	"expanderd/internal/config"
	"expanderd/internal/ipc"
	"expanderd/internal/store"
)

// Version is set at build time.
var Version = "dev"

func main() {
	if err := newApp(os.Stdout, os.Stderr, os.Stdin).Run(os.Args); err != nil {
		fmt.Fprintln(os.Stderr, "expanderctl:", err)
		os.Exit(1)
	}
}

// newApp creates the CLI application with all commands.
func newApp(stdout, stderr io.Writer, stdin io.Reader) *cli.App {
	app := &cli.App{
		Name:      "expanderctl",
		Usage:     "Manage text expansions and control expanderd",
		Version:   Version,
		Writer:    stdout,
		ErrWriter: stderr,
		Reader:    stdin,
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "config",
				Aliases: []string{"c"},
				EnvVars: []string{"EXPANDERD_CONFIG"},
				Usage:   "path to config file",
			},
			&cli.BoolFlag{Name: "json", Usage: "print machine-readable JSON"},
		},
		Commands: []*cli.Command{
			statusCmd(),
			actionCmd("start", "Start expanding", (*ipc.Client).Start),
			actionCmd("stop", "Stop expanding", (*ipc.Client).Stop),
			actionCmd("reload", "Reload expansions and settings", (*ipc.Client).Reload),
			groupCmd(),
			addCmd(),
			editCmd(),
			rmCmd(),
			lsCmd(),
			whitelistCmd(),
			exportCmd(),
			importCmd(),
			appsCmd(),
			statsCmd(),
		},
	}
	app.ExitErrHandler = func(_ *cli.Context, _ error) {}
	return app
}

// loadConfig reads the config file named by --config, or the default one.
func loadConfig(c *cli.Context) (*config.Config, error) {
	return config.Load(c.String("config"))
}

// withStore opens the configured store for the duration of fn.
func withStore(fn func(c *cli.Context, cfg *config.Config, st store.Store) error) cli.ActionFunc {
	return func(c *cli.Context) error {
		cfg, err := loadConfig(c)
		if err != nil {
			return outputError(err)
		}
		st, err := store.Open(cfg.Storage)
		if err != nil {
			return outputError(fmt.Errorf("open %s store: %w", cfg.Storage.Type, err))
		}
		defer st.Close()
		if err := fn(c, cfg, st); err != nil {
			return outputError(err)
		}
		return nil
	}
}

// notifyDaemon asks a running daemon to pick up a data edit. A daemon that
// isn't running loads the new data when it starts.
func notifyDaemon(c *cli.Context, cfg *config.Config) {
	if !cfg.IPC.Enabled {
		return
	}
	ctx, cancel := context.WithTimeout(c.Context, 3*time.Second)
	defer cancel()

	cc := ipc.DefaultClientConfig(cfg.IPC.SocketPath)
	cc.ConnectTimeout = time.Second
	client, err := ipc.Dial(ctx, cc)
	if err != nil {
		if !errors.Is(err, ipc.ErrDaemonNotRunning) {
			fmt.Fprintf(c.App.ErrWriter, "warning: could not reach daemon: %v\n", err)
		}
		return
	}
	defer client.Close()

	if _, err := client.Reload(ctx); err != nil {
		fmt.Fprintf(c.App.ErrWriter, "warning: daemon reload failed: %v\n", err)
	}
}

// outputJSON writes v as indented JSON.
func outputJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

// outputError formats err for the CLI.
func outputError(err error) error {
	var exit cli.ExitCoder
	if errors.As(err, &exit) {
		return err
	}
	return cli.Exit(err.Error(), 1)
}
