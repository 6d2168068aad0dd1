package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/url"
	"os/signal"
	"strings"
	"syscall"
	"text/tabwriter"
	"time"

	"github.com/urfave/cli/v2"

	"eventfinder/internal/engine"
	appLog "eventfinder/internal/log"
	"eventfinder/internal/model"
	"eventfinder/internal/prefs"
	"eventfinder/internal/refresh"
	"eventfinder/internal/web"
)

func serveCommand() *cli.Command {
	return &cli.Command{
		Name:  "serve",
		Usage: "Serve the JSON API and keep the event cache warm.",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "listen",
				Usage:   "HTTP listen address (overrides config)",
				EnvVars: []string{"EVENTFINDER_LISTEN"},
			},
		},
		Action: func(c *cli.Context) error {
			a, err := newApp(c)
			if err != nil {
				return err
			}
			if v := c.String("listen"); v != "" {
				a.cfg.Listen = v
			}

			// Root context with cancellation on SIGINT/SIGTERM.
			ctx, stop := signal.NotifyContext(c.Context, syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			if err := a.cache.Refresh(ctx); err != nil {
				appLog.Warn("initial load failed; requests will retry", "err", err)
			}

			var schedDone <-chan struct{}
			if a.cfg.RefreshEnabled() {
				sched, err := refresh.New(a.cfg.Data.RefreshCron, a.cache, 2*a.cfg.Data.Timeout, a.loc)
				if err != nil {
					return err
				}
				schedDone = sched.Start(ctx)
			}

			err = web.StartServer(ctx, a.cfg, web.Deps{
				Events:  a.cache,
				Engine:  a.engine,
				Prefs:   a.prefs,
				Metrics: a.metrics,
			})
			stop()
			if schedDone != nil {
				<-schedDone
			}
			appLog.Info("eventfinder exiting")
			return err
		},
	}
}

func eventsCommand() *cli.Command {
	return &cli.Command{
		Name:  "events",
		Usage: "Load the feed once and print the matching events.",
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "q", Aliases: []string{"query"}, Usage: "Case-insensitive text search"},
			&cli.StringFlag{Name: "category", Usage: "Exact category filter"},
			&cli.StringFlag{Name: "location", Usage: "Exact location filter"},
			&cli.StringFlag{Name: "sort", Value: "date", Usage: "date, title (name) or location"},
			&cli.StringFlag{Name: "dir", Value: "asc", Usage: "asc or desc"},
			&cli.StringFlag{Name: "from", Usage: "Earliest date, inclusive"},
			&cli.StringFlag{Name: "to", Usage: "Latest date, inclusive"},
			&cli.IntFlag{Name: "featured", Usage: "Print the next N upcoming events instead"},
			&cli.BoolFlag{Name: "favorites", Usage: "Only favorite events"},
			&cli.BoolFlag{Name: "remember", Usage: "Add the query to the search history"},
			&cli.BoolFlag{Name: "json", Usage: "Print raw records as JSON"},
		},
		Action: func(c *cli.Context) error {
			a, err := newApp(c)
			if err != nil {
				return err
			}

			st, err := engine.ParseState(url.Values{
				"q":        {c.String("q")},
				"category": {c.String("category")},
				"location": {c.String("location")},
				"sort":     {c.String("sort")},
				"dir":      {c.String("dir")},
				"from":     {c.String("from")},
				"to":       {c.String("to")},
			})
			if err != nil {
				return err
			}

			ctx, cancel := context.WithTimeout(c.Context, 2*a.cfg.Data.Timeout)
			defer cancel()
			events, err := a.cache.Events(ctx)
			if err != nil {
				return err
			}

			var list []model.Event
			if n := c.Int("featured"); c.IsSet("featured") {
				list = a.engine.Featured(events, time.Now(), n)
			} else {
				list = a.engine.Select(events, st)
			}
			favs := a.prefs.Get().Favorites
			if c.Bool("favorites") {
				list = a.engine.FindAll(list, favs)
			}
			if c.Bool("remember") {
				a.prefs.AddSearch(st.Query)
			}

			if snap, ok := a.cache.Snapshot(); ok && snap.Fallback {
				appLog.Warn("primary source failed; showing fallback data")
			}
			if c.Bool("json") {
				return printJSON(c.App.Writer, list)
			}
			return printTable(c.App.Writer, list, favs)
		},
	}
}

func prefsCommand() *cli.Command {
	return &cli.Command{
		Name:  "prefs",
		Usage: "Show or change stored preferences.",
		Subcommands: []*cli.Command{
			{
				Name:  "show",
				Usage: "Print the preferences blob",
				Action: withStore(func(c *cli.Context, s *prefs.Store) error {
					return printJSON(c.App.Writer, s.Get())
				}),
			},
			{
				Name:  "set",
				Usage: "Change theme, language or notifications",
				Flags: []cli.Flag{
					&cli.StringFlag{Name: "theme"},
					&cli.StringFlag{Name: "language"},
					&cli.BoolFlag{Name: "notifications"},
				},
				Action: withStore(func(c *cli.Context, s *prefs.Store) error {
					var patch prefs.Patch
					if c.IsSet("theme") {
						v := c.String("theme")
						patch.Theme = &v
					}
					if c.IsSet("language") {
						v := c.String("language")
						patch.Language = &v
					}
					if c.IsSet("notifications") {
						v := c.Bool("notifications")
						patch.Notifications = &v
					}
					return printJSON(c.App.Writer, s.Save(patch))
				}),
			},
			{
				Name:  "favorite",
				Usage: "Add or remove favorite event ids",
				Subcommands: []*cli.Command{
					{
						Name:      "add",
						ArgsUsage: "ID...",
						Action: withStore(func(c *cli.Context, s *prefs.Store) error {
							ids, err := requireArgs(c)
							if err != nil {
								return err
							}
							var p prefs.Preferences
							for _, id := range ids {
								p = s.AddFavorite(id)
							}
							return printJSON(c.App.Writer, p.Favorites)
						}),
					},
					{
						Name:      "remove",
						ArgsUsage: "ID...",
						Action: withStore(func(c *cli.Context, s *prefs.Store) error {
							ids, err := requireArgs(c)
							if err != nil {
								return err
							}
							var p prefs.Preferences
							for _, id := range ids {
								p = s.RemoveFavorite(id)
							}
							return printJSON(c.App.Writer, p.Favorites)
						}),
					},
				},
			},
			{
				Name:  "history",
				Usage: "Show or clear the search history",
				Subcommands: []*cli.Command{
					{
						Name: "show",
						Action: withStore(func(c *cli.Context, s *prefs.Store) error {
							return printJSON(c.App.Writer, s.Get().SearchHistory)
						}),
					},
					{
						Name: "clear",
						Action: withStore(func(c *cli.Context, s *prefs.Store) error {
							s.ClearHistory()
							return nil
						}),
					},
				},
			},
		},
	}
}

// withStore opens only the preferences store; prefs commands never fetch.
func withStore(fn func(*cli.Context, *prefs.Store) error) cli.ActionFunc {
	return func(c *cli.Context) error {
		cfg, err := loadConfig(c)
		if err != nil {
			return err
		}
		s, err := newPrefsStore(cfg)
		if err != nil {
			return err
		}
		return fn(c, s)
	}
}

func requireArgs(c *cli.Context) ([]string, error) {
	if c.NArg() == 0 {
		return nil, errors.New("at least one event id is required")
	}
	return c.Args().Slice(), nil
}

func printJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func printTable(w io.Writer, events []model.Event, favorites []string) error {
	fav := make(map[string]bool, len(favorites))
	for _, id := range favorites {
		fav[id] = true
	}

	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "ID\tDATE\tTITLE\tLOCATION\tCATEGORIES\tFAV")
	for _, ev := range events {
		mark := ""
		if fav[ev.ID.String()] {
			mark = "*"
		}
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\t%s\n",
			ev.ID, ev.ResolvedDateText(), ev.ResolvedTitle(), ev.ResolvedLocation(),
			strings.Join(nonEmpty(ev.ResolvedCategories()), ", "), mark)
	}
	if err := tw.Flush(); err != nil {
		return err
	}
	_, err := fmt.Fprintf(w, "%d event(s)\n", len(events))
	return err
}

func nonEmpty(vals []string) []string {
	out := vals[:0:0]
	for _, v := range vals {
		if v != "" {
			out = append(out, v)
		}
	}
	return out
}
