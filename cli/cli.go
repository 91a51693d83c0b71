package cli

import (
	"fmt"
	"os"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/urfave/cli/v2"

	"github.com/perfgo/texforge/cli/pandoc"
)

const AppName = "texforge"

type App struct {
	logger zerolog.Logger
	cli    *cli.App
}

func New() *App {

	// Set default log level to info
	zerolog.SetGlobalLevel(zerolog.InfoLevel)

	logger :=
		log.Output(zerolog.ConsoleWriter{
			Out:        os.Stderr,
			TimeFormat: time.RFC3339Nano,
		})

	app := &App{
		logger: logger,
		cli: &cli.App{
			Name:  AppName,
			Usage: "Verify document templates by rendering test requests dropped into a shared workspace",
			Flags: []cli.Flag{
				&cli.BoolFlag{
					Name:  "verbose",
					Usage: "Enable verbose (debug) logging",
				},
				&cli.StringFlag{
					Name:    "config",
					Aliases: []string{"c"},
					Usage:   "YAML configuration file",
					EnvVars: []string{"TEXFORGE_CONFIG"},
				},
				&cli.StringFlag{
					Name:    "root",
					Usage:   "Shared workspace root (default: /workspace/shared)",
					EnvVars: []string{"TEXFORGE_ROOT"},
				},
			},
			Before: func(ctx *cli.Context) error {
				if ctx.Bool("verbose") {
					zerolog.SetGlobalLevel(zerolog.DebugLevel)
				}
				return nil
			},
		},
	}

	rendererFlags := []cli.Flag{
		pandoc.BinaryFlag(),
		pandoc.EngineFlag(),
		pandoc.DebugTimeoutFlag(),
		pandoc.FinalTimeoutFlag(),
	}

	app.cli.Commands = append(app.cli.Commands, &cli.Command{
		Name:   "watch",
		Usage:  "Watch the requests directory and process test requests as they arrive",
		Action: app.watch,
		Flags: append([]cli.Flag{
			&cli.DurationFlag{
				Name:    "stability",
				Usage:   "Time a request file must stay unchanged before it is processed (default: 1s)",
				EnvVars: []string{"TEXFORGE_STABILITY"},
			},
			&cli.IntFlag{
				Name:    "queue-size",
				Usage:   "Number of requests that can wait while one is processed (default: 64)",
				EnvVars: []string{"TEXFORGE_QUEUE_SIZE"},
			},
		}, rendererFlags...),
	})
	app.cli.Commands = append(app.cli.Commands, &cli.Command{
		Name:      "run",
		Usage:     "Process a single request file and exit",
		ArgsUsage: "<request.json>",
		Action:    app.run,
		Flags:     rendererFlags,
	})
	app.cli.Commands = append(app.cli.Commands, &cli.Command{
		Name:      "validate",
		Usage:     "Check a request file without running it",
		ArgsUsage: "<request.json>",
		Action:    app.validate,
	})
	app.cli.Commands = append(app.cli.Commands, &cli.Command{
		Name:      "classify",
		Usage:     "Diagnose renderer error output read from a file or stdin",
		ArgsUsage: "[file]",
		Action:    app.classify,
	})
	app.cli.Commands = append(app.cli.Commands, &cli.Command{
		Name:   "list",
		Usage:  "List run reports",
		Action: app.list,
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:  "template",
				Usage: "Only show reports for this template",
			},
			&cli.IntFlag{
				Name:    "limit",
				Aliases: []string{"n"},
				Usage:   "Limit number of results (default: 20)",
				Value:   20,
			},
		},
	})
	app.cli.Commands = append(app.cli.Commands, &cli.Command{
		Name:      "view",
		Usage:     "Show one run report in detail",
		ArgsUsage: "[index|request-id]",
		Action:    app.view,
		Flags: []cli.Flag{
			&cli.BoolFlag{
				Name:  "stderr",
				Usage: "Print full renderer output of failed tests",
			},
		},
	})
	app.cli.Commands = append(app.cli.Commands, &cli.Command{
		Name:   "init",
		Usage:  "Create the workspace directories and a sample request",
		Action: app.initWorkspace,
	})
	return app
}

func (a *App) Run(args []string) error {
	return a.cli.Run(args)
}

// SetVersion sets the version information for the CLI application
func (a *App) SetVersion(version, commit, date string) {
	a.cli.Version = version
	if commit != "none" && commit != "" {
		a.cli.Version = fmt.Sprintf("%s (commit: %s, built: %s)", version, commit[:min(8, len(commit))], date)
	}
}
