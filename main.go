package main

import (
	"fmt"
	"os"

	"github.com/urfave/cli/v2"

	"github.com/dtnitsch/blocklist-curator/internal/history"
	"github.com/dtnitsch/blocklist-curator/internal/lists"
	"github.com/dtnitsch/blocklist-curator/internal/run"
	"github.com/dtnitsch/blocklist-curator/internal/watch"
	"github.com/dtnitsch/blocklist-curator/pkg/fetcher"
	"github.com/dtnitsch/blocklist-curator/pkg/help"
)

func main() {
	app := &cli.App{
		Name:  "blocklist-curator",
		Usage: "fetch, merge, and render DNS blocklists from many sources",
		Commands: []*cli.Command{
			{
				Name:   "run",
				Usage:  "fetch all configured lists and write the output documents",
				Action: run.RunAction,
				Flags: []cli.Flag{
					&cli.StringFlag{Name: "config", Aliases: []string{"c"}, Value: "blocklists.yaml", Usage: "path to the list config file"},
					&cli.IntFlag{Name: "workers", Aliases: []string{"w"}, Value: 4, Usage: "number of concurrent fetch workers"},
					&cli.BoolFlag{Name: "force", Aliases: []string{"f"}, Usage: "refetch every list, ignoring the cache"},
					&cli.DurationFlag{Name: "timeout", Value: fetcher.DefaultTimeout, Usage: "per-request timeout"},
					&cli.StringFlag{Name: "format", Value: "json", Usage: "summary format on stdout (json or yaml)"},
					&cli.BoolFlag{Name: "quiet", Aliases: []string{"q"}, Usage: "only log errors"},
				},
			},
			{
				Name:   "lists",
				Usage:  "validate the config and show the configured list descriptors",
				Action: lists.ListsAction,
				Flags: []cli.Flag{
					&cli.StringFlag{Name: "config", Aliases: []string{"c"}, Value: "blocklists.yaml", Usage: "path to the list config file"},
				},
			},
			{
				Name:   "history",
				Usage:  "show recent runs from the journal",
				Action: history.RunsAction,
				Flags: []cli.Flag{
					&cli.StringFlag{Name: "config", Aliases: []string{"c"}, Value: "blocklists.yaml", Usage: "path to the list config file"},
					&cli.IntFlag{Name: "limit", Value: 10, Usage: "number of runs to show"},
				},
				Subcommands: []*cli.Command{
					{
						Name:      "show",
						Usage:     "show one run's per-list results",
						ArgsUsage: "[run-id]",
						Action:    history.ShowAction,
						Flags: []cli.Flag{
							&cli.StringFlag{Name: "config", Aliases: []string{"c"}, Value: "blocklists.yaml", Usage: "path to the list config file"},
						},
					},
				},
			},
			{
				Name:   "watch",
				Usage:  "rerun on a schedule and whenever the config changes",
				Action: watch.WatchAction,
				Flags: []cli.Flag{
					&cli.StringFlag{Name: "config", Aliases: []string{"c"}, Value: "blocklists.yaml", Usage: "path to the list config file"},
					&cli.StringFlag{Name: "schedule", Value: "0 */6 * * *", Usage: "cron schedule for periodic runs (empty disables the schedule)"},
					&cli.IntFlag{Name: "workers", Aliases: []string{"w"}, Value: 4, Usage: "number of concurrent fetch workers"},
					&cli.BoolFlag{Name: "force", Aliases: []string{"f"}, Usage: "refetch every list, ignoring the cache"},
					&cli.DurationFlag{Name: "timeout", Value: fetcher.DefaultTimeout, Usage: "per-request timeout"},
					&cli.BoolFlag{Name: "quiet", Aliases: []string{"q"}, Usage: "only log errors"},
				},
			},
			{
				Name:  "coldstart",
				Usage: "print a machine-readable quick start reference",
				Action: func(c *cli.Context) error {
					fmt.Print(help.ColdstartYAML)
					return nil
				},
			},
		},
	}

	if err := app.Run(os.Args); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}
