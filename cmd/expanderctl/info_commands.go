package main

import (
	"fmt"
	"text/tabwriter"
	"time"

	"github.com/urfave/cli/v2"

	"expanderd/internal/config"
	"expanderd/internal/expansion"
	"expanderd/internal/focus"
	"expanderd/internal/store"
)

// appsCmd creates the apps command, a helper for writing whitelist entries.
func appsCmd() *cli.Command {
	return &cli.Command{
		Name:  "apps",
		Usage: "List running applications and the focused window",
		Action: func(c *cli.Context) error {
			p := focus.New()
			if ok, reason := p.Available(); !ok {
				return outputError(fmt.Errorf("application lookup unavailable: %s", reason))
			}
			names, err := p.RunningApps(c.Context)
			if err != nil {
				return outputError(err)
			}
			active := p.ActiveApp()

			if c.Bool("json") {
				return outputJSON(c.App.Writer, struct {
					Active  expansion.ActiveAppInfo `json:"active"`
					Running []string                `json:"running"`
				}{active, names})
			}
			fmt.Fprintf(c.App.Writer, "focused: %s (%q)\n\n", active.ProcessName, active.WindowTitle)
			for _, n := range names {
				fmt.Fprintln(c.App.Writer, n)
			}
			return nil
		},
	}
}

// statsCmd creates the stats command.
func statsCmd() *cli.Command {
	return &cli.Command{
		Name:  "stats",
		Usage: "Show how often each expansion fired (sqlite storage only)",
		Flags: []cli.Flag{
			&cli.IntFlag{Name: "limit", Aliases: []string{"n"}, Value: 20, Usage: "maximum rows (0 for all)"},
		},
		Action: withStore(func(c *cli.Context, _ *config.Config, st store.Store) error {
			sqlite, ok := st.(*store.SQLiteStore)
			if !ok {
				return cli.Exit("usage statistics need the sqlite storage backend", 1)
			}
			stats, err := sqlite.UsageStats(c.Context, c.Int("limit"))
			if err != nil {
				return err
			}
			if c.Bool("json") {
				if stats == nil {
					stats = []store.UsageStat{}
				}
				return outputJSON(c.App.Writer, stats)
			}
			tw := tabwriter.NewWriter(c.App.Writer, 0, 4, 2, ' ', 0)
			fmt.Fprintln(tw, "PREFIX\tCOUNT\tLAST USED")
			for _, s := range stats {
				fmt.Fprintf(tw, "%s\t%d\t%s\n", s.Prefix, s.Count, s.LastUsed.Local().Format(time.DateTime))
			}
			return tw.Flush()
		}),
	}
}
