package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"
	"text/tabwriter"

	"github.com/urfave/cli/v2"

	"expanderd/internal/config"
	"expanderd/internal/expansion"
	"expanderd/internal/store"
)

// resolveGroup finds a group by ID or by name.
func resolveGroup(ctx context.Context, st store.Store, ref string) (expansion.Group, error) {
	groups, err := st.Groups(ctx)
	if err != nil {
		return expansion.Group{}, err
	}
	for _, g := range groups {
		if g.ID == ref {
			return g, nil
		}
	}
	for _, g := range groups {
		if strings.EqualFold(g.Name, ref) {
			return g, nil
		}
	}
	return expansion.Group{}, fmt.Errorf("%w: group %q", store.ErrNotFound, ref)
}

// findExpansion looks up an expansion by ID.
func findExpansion(ctx context.Context, st store.Store, id string) (expansion.Expansion, error) {
	all, err := st.LoadExpansions(ctx)
	if err != nil {
		return expansion.Expansion{}, err
	}
	for _, e := range all {
		if e.ID == id {
			return e, nil
		}
	}
	return expansion.Expansion{}, fmt.Errorf("%w: expansion %q", store.ErrNotFound, id)
}

func isNotFound(err error) bool {
	return errors.Is(err, store.ErrNotFound)
}

func requireArgs(c *cli.Context, n int) error {
	if c.NArg() != n {
		return cli.Exit(fmt.Sprintf("usage: %s %s", c.Command.HelpName, c.Command.ArgsUsage), 2)
	}
	return nil
}

// groupCmd creates the group command and its subcommands.
func groupCmd() *cli.Command {
	return &cli.Command{
		Name:  "group",
		Usage: "Manage expansion groups",
		Subcommands: []*cli.Command{
			{
				Name:      "add",
				Usage:     "Create a group",
				ArgsUsage: "NAME",
				Action: withStore(func(c *cli.Context, cfg *config.Config, st store.Store) error {
					if err := requireArgs(c, 1); err != nil {
						return err
					}
					id, err := st.AddGroup(c.Context, c.Args().First())
					if err != nil {
						return err
					}
					fmt.Fprintln(c.App.Writer, id)
					notifyDaemon(c, cfg)
					return nil
				}),
			},
			{
				Name:      "rename",
				Usage:     "Rename a group",
				ArgsUsage: "GROUP NAME",
				Action: withStore(func(c *cli.Context, cfg *config.Config, st store.Store) error {
					if err := requireArgs(c, 2); err != nil {
						return err
					}
					g, err := resolveGroup(c.Context, st, c.Args().Get(0))
					if err != nil {
						return err
					}
					if err := st.RenameGroup(c.Context, g.ID, c.Args().Get(1)); err != nil {
						return err
					}
					notifyDaemon(c, cfg)
					return nil
				}),
			},
			{
				Name:      "rm",
				Usage:     "Delete a group and its expansions",
				ArgsUsage: "GROUP",
				Action: withStore(func(c *cli.Context, cfg *config.Config, st store.Store) error {
					if err := requireArgs(c, 1); err != nil {
						return err
					}
					g, err := resolveGroup(c.Context, st, c.Args().First())
					if err != nil {
						return err
					}
					if err := st.DeleteGroup(c.Context, g.ID); err != nil {
						return err
					}
					notifyDaemon(c, cfg)
					return nil
				}),
			},
			{
				Name:  "ls",
				Usage: "List groups",
				Action: withStore(func(c *cli.Context, _ *config.Config, st store.Store) error {
					groups, err := st.Groups(c.Context)
					if err != nil {
						return err
					}
					if c.Bool("json") {
						return outputJSON(c.App.Writer, groups)
					}
					tw := tabwriter.NewWriter(c.App.Writer, 0, 4, 2, ' ', 0)
					fmt.Fprintln(tw, "ID\tNAME\tEXPANSIONS")
					for _, g := range groups {
						fmt.Fprintf(tw, "%s\t%s\t%d\n", g.ID, g.Name, len(g.Expansions))
					}
					return tw.Flush()
				}),
			},
		},
	}
}

// readBody returns --text, or the piped input when the flag is absent.
func readBody(c *cli.Context) (string, error) {
	if c.IsSet("text") {
		return c.String("text"), nil
	}
	if f, ok := c.App.Reader.(*os.File); ok {
		stat, err := f.Stat()
		if err != nil || stat.Mode()&os.ModeCharDevice != 0 {
			return "", cli.Exit("expansion text is required: pass --text or pipe it via stdin", 2)
		}
	}
	data, err := io.ReadAll(c.App.Reader)
	if err != nil {
		return "", err
	}
	return strings.TrimSuffix(string(data), "\n"), nil
}

func expansionFlags() []cli.Flag {
	return []cli.Flag{
		&cli.StringFlag{Name: "prefix", Aliases: []string{"p"}, Usage: "trigger prefix, e.g. /sig"},
		&cli.StringFlag{Name: "text", Aliases: []string{"t"}, Usage: "replacement text (read from stdin when omitted)"},
		&cli.StringFlag{Name: "description", Aliases: []string{"d"}, Usage: "short note shown in listings"},
		&cli.IntFlag{Name: "delay", Usage: "wait this many ms after the prefix before expanding (0 expands at once)"},
	}
}

// addCmd creates the add command.
func addCmd() *cli.Command {
	return &cli.Command{
		Name:  "add",
		Usage: "Add an expansion",
		Flags: append(expansionFlags(),
			&cli.StringFlag{Name: "group", Aliases: []string{"g"}, Value: "Default", Usage: "group ID or name, created when missing"},
		),
		Action: withStore(func(c *cli.Context, cfg *config.Config, st store.Store) error {
			if !c.IsSet("prefix") {
				return cli.Exit("--prefix is required", 2)
			}
			body, err := readBody(c)
			if err != nil {
				return err
			}

			in := store.ExpansionInput{
				Prefix:           c.String("prefix"),
				Body:             body,
				Description:      c.String("description"),
				TriggerImmediate: c.Int("delay") <= 0,
				TriggerDelayMs:   max(c.Int("delay"), 0),
			}
			if err := in.Validate(); err != nil {
				return err
			}

			unique, err := st.IsPrefixUnique(c.Context, in.Prefix, "")
			if err != nil {
				return err
			}
			if !unique {
				return fmt.Errorf("%w: %q", store.ErrDuplicatePrefix, in.Prefix)
			}

			g, err := resolveGroup(c.Context, st, c.String("group"))
			var groupID string
			switch {
			case err == nil:
				groupID = g.ID
			case isNotFound(err):
				if groupID, err = st.AddGroup(c.Context, c.String("group")); err != nil {
					return err
				}
			default:
				return err
			}

			id, err := st.AddExpansion(c.Context, groupID, in)
			if err != nil {
				return err
			}
			fmt.Fprintln(c.App.Writer, id)
			notifyDaemon(c, cfg)
			return nil
		}),
	}
}

// editCmd creates the edit command. Only the given flags change.
func editCmd() *cli.Command {
	return &cli.Command{
		Name:      "edit",
		Usage:     "Change an expansion",
		ArgsUsage: "ID",
		Flags:     expansionFlags(),
		Action: withStore(func(c *cli.Context, cfg *config.Config, st store.Store) error {
			if err := requireArgs(c, 1); err != nil {
				return err
			}
			e, err := findExpansion(c.Context, st, c.Args().First())
			if err != nil {
				return err
			}

			in := store.ExpansionInput{
				Prefix:           e.Prefix,
				Body:             e.Body,
				Description:      e.Description,
				TriggerImmediate: e.TriggerImmediate,
				TriggerDelayMs:   e.TriggerDelayMs,
			}
			if c.IsSet("prefix") {
				in.Prefix = c.String("prefix")
			}
			if c.IsSet("text") {
				in.Body = c.String("text")
			}
			if c.IsSet("description") {
				in.Description = c.String("description")
			}
			if c.IsSet("delay") {
				in.TriggerImmediate = c.Int("delay") <= 0
				in.TriggerDelayMs = max(c.Int("delay"), 0)
			}

			if err := st.UpdateExpansion(c.Context, e.ID, in); err != nil {
				return err
			}
			notifyDaemon(c, cfg)
			return nil
		}),
	}
}

// rmCmd creates the rm command.
func rmCmd() *cli.Command {
	return &cli.Command{
		Name:      "rm",
		Usage:     "Delete an expansion",
		ArgsUsage: "ID",
		Action: withStore(func(c *cli.Context, cfg *config.Config, st store.Store) error {
			if err := requireArgs(c, 1); err != nil {
				return err
			}
			if err := st.DeleteExpansion(c.Context, c.Args().First()); err != nil {
				return err
			}
			notifyDaemon(c, cfg)
			return nil
		}),
	}
}

// lsCmd creates the ls command.
func lsCmd() *cli.Command {
	return &cli.Command{
		Name:  "ls",
		Usage: "List expansions",
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "group", Aliases: []string{"g"}, Usage: "only list this group (ID or name)"},
		},
		Action: withStore(func(c *cli.Context, _ *config.Config, st store.Store) error {
			all, err := st.LoadExpansions(c.Context)
			if err != nil {
				return err
			}
			if ref := c.String("group"); ref != "" {
				g, err := resolveGroup(c.Context, st, ref)
				if err != nil {
					return err
				}
				filtered := all[:0]
				for _, e := range all {
					if e.GroupID == g.ID {
						filtered = append(filtered, e)
					}
				}
				all = filtered
			}

			if c.Bool("json") {
				if all == nil {
					all = []expansion.Expansion{}
				}
				return outputJSON(c.App.Writer, all)
			}
			tw := tabwriter.NewWriter(c.App.Writer, 0, 4, 2, ' ', 0)
			fmt.Fprintln(tw, "ID\tGROUP\tPREFIX\tTRIGGER\tTEXT")
			for _, e := range all {
				trigger := "immediate"
				if !e.TriggerImmediate {
					trigger = fmt.Sprintf("%dms", e.TriggerDelayMs)
				}
				fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\n", e.ID, e.GroupName, e.Prefix, trigger, preview(e.Body, 40))
			}
			return tw.Flush()
		}),
	}
}

// preview shortens text to one line of at most n runes.
func preview(text string, n int) string {
	text = strings.ReplaceAll(text, "\n", `\n`)
	r := []rune(text)
	if len(r) <= n {
		return text
	}
	return string(r[:n-1]) + "…"
}

// whitelistCmd creates the whitelist command and its subcommands.
func whitelistCmd() *cli.Command {
	setEnabled := func(on bool) cli.ActionFunc {
		return withStore(func(c *cli.Context, cfg *config.Config, st store.Store) error {
			s, err := st.Settings(c.Context)
			if err != nil {
				return err
			}
			s.WhitelistEnabled = on
			if err := st.UpdateSettings(c.Context, s); err != nil {
				return err
			}
			notifyDaemon(c, cfg)
			return nil
		})
	}

	return &cli.Command{
		Name:  "whitelist",
		Usage: "Limit expansion to specific applications",
		Subcommands: []*cli.Command{
			{Name: "enable", Usage: "Only expand in whitelisted applications", Action: setEnabled(true)},
			{Name: "disable", Usage: "Expand in every application", Action: setEnabled(false)},
			{
				Name:  "add",
				Usage: "Add an application entry",
				Flags: []cli.Flag{
					&cli.StringFlag{Name: "process", Usage: "process name (case-insensitive, .exe optional)"},
					&cli.StringFlag{Name: "title", Usage: "window title substring (case-insensitive)"},
				},
				Action: withStore(func(c *cli.Context, cfg *config.Config, st store.Store) error {
					entry := expansion.AppWhitelistEntry{
						ProcessName: strings.TrimSpace(c.String("process")),
						WindowTitle: strings.TrimSpace(c.String("title")),
					}
					if entry.ProcessName == "" && entry.WindowTitle == "" {
						return cli.Exit("--process or --title is required", 2)
					}
					s, err := st.Settings(c.Context)
					if err != nil {
						return err
					}
					s.WhitelistApps = append(s.WhitelistApps, entry)
					if err := st.UpdateSettings(c.Context, s); err != nil {
						return err
					}
					notifyDaemon(c, cfg)
					return nil
				}),
			},
			{
				Name:      "rm",
				Usage:     "Remove an entry by its number in 'whitelist ls'",
				ArgsUsage: "N",
				Action: withStore(func(c *cli.Context, cfg *config.Config, st store.Store) error {
					if err := requireArgs(c, 1); err != nil {
						return err
					}
					s, err := st.Settings(c.Context)
					if err != nil {
						return err
					}
					n, err := strconv.Atoi(c.Args().First())
					if err != nil || n < 1 || n > len(s.WhitelistApps) {
						return cli.Exit(fmt.Sprintf("no whitelist entry %q", c.Args().First()), 1)
					}
					s.WhitelistApps = append(s.WhitelistApps[:n-1], s.WhitelistApps[n:]...)
					if err := st.UpdateSettings(c.Context, s); err != nil {
						return err
					}
					notifyDaemon(c, cfg)
					return nil
				}),
			},
			{
				Name:  "ls",
				Usage: "Show the whitelist",
				Action: withStore(func(c *cli.Context, _ *config.Config, st store.Store) error {
					s, err := st.Settings(c.Context)
					if err != nil {
						return err
					}
					if c.Bool("json") {
						return outputJSON(c.App.Writer, s)
					}
					state := "disabled (expanding everywhere)"
					if s.WhitelistEnabled {
						state = "enabled"
					}
					fmt.Fprintf(c.App.Writer, "whitelist %s\n", state)
					tw := tabwriter.NewWriter(c.App.Writer, 0, 4, 2, ' ', 0)
					fmt.Fprintln(tw, "#\tPROCESS\tTITLE")
					for i, e := range s.WhitelistApps {
						fmt.Fprintf(tw, "%d\t%s\t%s\n", i+1, orDash(e.ProcessName), orDash(e.WindowTitle))
					}
					return tw.Flush()
				}),
			},
		},
	}
}

func orDash(s string) string {
	if s == "" {
		return "-"
	}
	return s
}

// exportCmd creates the export command.
func exportCmd() *cli.Command {
	return &cli.Command{
		Name:      "export",
		Usage:     "Write groups, expansions and settings as JSON",
		ArgsUsage: "FILE|-",
		Action: withStore(func(c *cli.Context, _ *config.Config, st store.Store) error {
			if err := requireArgs(c, 1); err != nil {
				return err
			}
			path := c.Args().First()
			if path == "-" {
				return st.Export(c.Context, c.App.Writer)
			}
			f, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, 0o600)
			if err != nil {
				return err
			}
			if err := st.Export(c.Context, f); err != nil {
				f.Close()
				return err
			}
			return f.Close()
		}),
	}
}

// importCmd creates the import command.
func importCmd() *cli.Command {
	return &cli.Command{
		Name:      "import",
		Usage:     "Load an exported JSON document",
		ArgsUsage: "FILE|-",
		Flags: []cli.Flag{
			&cli.BoolFlag{Name: "merge", Usage: "add to existing data instead of replacing it"},
		},
		Action: withStore(func(c *cli.Context, cfg *config.Config, st store.Store) error {
			if err := requireArgs(c, 1); err != nil {
				return err
			}
			var r io.Reader = c.App.Reader
			if path := c.Args().First(); path != "-" {
				f, err := os.Open(path)
				if err != nil {
					return err
				}
				defer f.Close()
				r = f
			}
			if err := st.Import(c.Context, r, c.Bool("merge")); err != nil {
				return err
			}
			notifyDaemon(c, cfg)
			return nil
		}),
	}
}
