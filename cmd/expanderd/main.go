// expanderd replaces typed prefixes with their expansion text.
//
//	expanderd [run]     Run the daemon in the foreground
//	expanderd check     Report whether capture, app lookup and paste work
//	expanderd version   Print the version
//
// The daemon reads its settings from config.toml in the platform config
// directory and its expansions from the configured data store. expanderctl
// talks to it over the control socket.
package main

import (
	"fmt"
	"io"
	"os"

	"github.com/urfave/cli/v2"
)

// Version is set via -ldflags at build time.
var Version = "dev"

func main() {
	if err := newApp(os.Stdout, os.Stderr).Run(os.Args); err != nil {
		fmt.Fprintln(os.Stderr, "expanderd:", err)
		os.Exit(1)
	}
}

// newApp creates the CLI application with all commands.
func newApp(stdout, stderr io.Writer) *cli.App {
	app := &cli.App{
		Name:      "expanderd",
		Usage:     "Text expansion daemon",
		Version:   Version,
		Writer:    stdout,
		ErrWriter: stderr,
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "config", Aliases: []string{"c"}, Usage: "Config file (default: platform config dir)", EnvVars: []string{"EXPANDERD_CONFIG"}},
			&cli.StringFlag{Name: "log-level", Usage: "Override the configured log level"},
		},
		Action: runAction,
		Commands: []*cli.Command{
			{
				Name:   "run",
				Usage:  "Run the daemon in the foreground (default)",
				Action: runAction,
			},
			{
				Name:   "check",
				Usage:  "Report whether key capture, app lookup, clipboard and paste work",
				Action: checkAction,
			},
			{
				Name:  "version",
				Usage: "Print the version",
				Action: func(c *cli.Context) error {
					fmt.Fprintf(c.App.Writer, "expanderd %s\n", Version)
					return nil
				},
			},
		},
	}
	// Errors are printed once by main.
	app.ExitErrHandler = func(_ *cli.Context, _ error) {}
	return app
}
