package cli

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/urfave/cli/v2"

	"github.com/ubrun/ubrun/config"
)

const AppName = "ubrun"

type App struct {
	logger zerolog.Logger
	cli    *cli.App
	cfg    config.Config
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
			Usage: "Run and triage U-Boot sandbox unit tests",
			Flags: []cli.Flag{
				&cli.BoolFlag{
					Name:  "verbose",
					Usage: "Enable verbose (debug) logging",
				},
				&cli.StringFlag{
					Name:  "config",
					Usage: "Config file path (default: ~/.ubrunrc.yaml)",
				},
				&cli.StringFlag{
					Name:    "build-dir",
					Aliases: []string{"b"},
					Usage:   "Build output directory containing per-board subdirectories",
				},
				&cli.StringFlag{
					Name:  "board",
					Usage: "Board name the binary was built for",
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
	app.cli.Before = chainBefore(app.cli.Before, app.loadConfig)

	app.cli.Commands = append(app.cli.Commands, &cli.Command{
		Name:      "test",
		Usage:     "Run tests matching the given specs",
		ArgsUsage: "[SPEC...]",
		Action:    app.test,
		Flags: []cli.Flag{
			&cli.BoolFlag{
				Name:    "full",
				Aliases: []string{"f"},
				Usage:   "Also run tests against the flat device tree",
			},
			&cli.IntFlag{
				Name:    "workers",
				Aliases: []string{"j"},
				Usage:   "Number of parallel worker processes",
				Value:   1,
			},
			&cli.BoolFlag{
				Name:    "test-verbose",
				Aliases: []string{"v"},
				Usage:   "Pass raw binary output through to the terminal",
			},
			&cli.BoolFlag{
				Name:    "manual",
				Aliases: []string{"m"},
				Usage:   "Include tests excluded from automatic runs",
			},
			&cli.BoolFlag{
				Name:    "legacy",
				Aliases: []string{"L"},
				Usage:   "Drop the explicit result-marker flag for old binaries",
			},
			&cli.BoolFlag{
				Name:    "dry-run",
				Aliases: []string{"n"},
				Usage:   "Print the command lines instead of executing them",
			},
			&cli.StringFlag{
				Name:  "bin",
				Usage: "Test binary path (overrides config)",
			},
		},
	})
	app.cli.Commands = append(app.cli.Commands, &cli.Command{
		Name:   "suites",
		Usage:  "List the test suites in the binary",
		Action: app.suites,
	})
	app.cli.Commands = append(app.cli.Commands, &cli.Command{
		Name:      "tests",
		Usage:     "List the tests in the binary, optionally for one suite",
		ArgsUsage: "[SUITE]",
		Action:    app.tests,
	})
	app.cli.Commands = append(app.cli.Commands, &cli.Command{
		Name:      "bisect",
		Usage:     "Find the first commit at which a test starts failing",
		ArgsUsage: "SPEC",
		Action:    app.bisect,
	})
	app.cli.Commands = append(app.cli.Commands, &cli.Command{
		Name:      "pollute",
		Usage:     "Find the earlier test whose state leakage breaks TARGET",
		ArgsUsage: "TARGET",
		Action:    app.pollute,
	})
	app.cli.Commands = append(app.cli.Commands, &cli.Command{
		Name:   "list",
		Usage:  "List previous test runs",
		Action: app.list,
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "spec",
				Aliases: []string{"s"},
				Usage:   "Filter by test spec substring (e.g., dm)",
			},
			&cli.IntFlag{
				Name:    "limit",
				Aliases: []string{"n"},
				Usage:   "Limit number of results (default: 20)",
				Value:   20,
			},
		},
	})
	return app
}

func chainBefore(fns ...cli.BeforeFunc) cli.BeforeFunc {
	return func(ctx *cli.Context) error {
		for _, fn := range fns {
			if fn == nil {
				continue
			}
			if err := fn(ctx); err != nil {
				return err
			}
		}
		return nil
	}
}

func (a *App) loadConfig(ctx *cli.Context) error {
	var (
		cfg config.Config
		err error
	)
	if path := ctx.String("config"); path != "" {
		cfg, err = config.Load(path)
	} else {
		cfg, err = config.LoadDefault()
	}
	if err != nil {
		return err
	}
	if dir := ctx.String("build-dir"); dir != "" {
		cfg.BuildDir = dir
	}
	if board := ctx.String("board"); board != "" {
		cfg.Board = board
	}
	a.cfg = cfg
	a.logger.Debug().
		Str("buildDir", cfg.BuildDir).
		Str("board", cfg.Board).
		Msg("Configuration loaded")
	return nil
}

// Run executes the CLI, cancelling all work on Ctrl-C.
func (a *App) Run(args []string) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()
	return a.cli.RunContext(ctx, args)
}

// SetVersion sets the version information for the CLI application
func (a *App) SetVersion(version, commit, date string) {
	a.cli.Version = version
	if commit != "none" && commit != "" {
		a.cli.Version = fmt.Sprintf("%s (commit: %s, built: %s)", version, commit[:8], date)
	}
}
