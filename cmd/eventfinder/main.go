package main

import (
	"os"
	_ "time/tzdata"

	"github.com/joho/godotenv"
	"github.com/urfave/cli/v2"

	appLog "eventfinder/internal/log"
)

var version = "0.1.0-dev"

func main() {
	// Load .env first; a missing file is fine.
	_ = godotenv.Load()

	app := &cli.App{
		Name:    "eventfinder",
		Usage:   "Search, filter and bookmark events from a JSON or ICS feed.",
		Version: version,
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "config",
				Aliases: []string{"c"},
				Value:   "config.yaml",
				Usage:   "Path to config file (created with defaults on first run)",
				EnvVars: []string{"EVENTFINDER_CONFIG"},
			},
			&cli.StringFlag{
				Name:    "log-level",
				Usage:   "debug, info, warn or error (overrides config)",
				EnvVars: []string{"LOG_LEVEL"},
			},
			&cli.StringFlag{
				Name:    "primary-url",
				Usage:   "Live event endpoint (overrides config)",
				EnvVars: []string{"EVENTFINDER_PRIMARY_URL"},
			},
			&cli.StringFlag{
				Name:    "fallback",
				Usage:   "Static fallback file or URL (overrides config)",
				EnvVars: []string{"EVENTFINDER_FALLBACK"},
			},
			&cli.StringFlag{
				Name:    "prefs",
				Usage:   "Preferences file (overrides config)",
				EnvVars: []string{"EVENTFINDER_PREFS"},
			},
		},
		Commands: []*cli.Command{
			serveCommand(),
			eventsCommand(),
			prefsCommand(),
		},
	}

	if err := app.Run(os.Args); err != nil {
		appLog.Error("eventfinder failed", err)
		os.Exit(1)
	}
}
