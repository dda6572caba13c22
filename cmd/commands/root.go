// Package commands holds the agentweb CLI.
package commands

import (
	"context"
	"log/slog"
	"os"

	"github.com/urfave/cli/v3"

	"github.com/dohr-michael/agentweb/internal/config"
)

// DefaultServerURL is where client commands look for a running server.
const DefaultServerURL = "http://127.0.0.1:8000"

// NewRootCommand returns the top-level CLI command.
func NewRootCommand() *cli.Command {
	return &cli.Command{
		Name:  "agentweb",
		Usage: "Run coding agent sessions behind an HTTP and WebSocket API",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "config",
				Aliases: []string{"c"},
				Usage:   "Path to config file",
				Value:   config.ConfigPath(),
			},
			&cli.BoolFlag{
				Name:  "debug",
				Usage: "Enable debug logging",
			},
		},
		Before: func(ctx context.Context, cmd *cli.Command) (context.Context, error) {
			if cmd.Bool("debug") {
				slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelDebug})))
			}
			return ctx, nil
		},
		Commands: []*cli.Command{
			NewServeCommand(),
			NewRunCommand(),
			NewChatCommand(),
			NewSessionsCommand(),
			NewStatusCommand(),
		},
	}
}

func serverFlag() cli.Flag {
	return &cli.StringFlag{
		Name:    "server",
		Usage:   "Base URL of the agentweb server",
		Value:   DefaultServerURL,
		Sources: cli.EnvVars("AGENTWEB_SERVER"),
	}
}

// loadConfig reads the config file named by --config, falling back to the
// defaults when it is missing or invalid.
func loadConfig(cmd *cli.Command) *config.Config {
	path := cmd.String("config")
	cfg, err := config.Load(path)
	if err != nil {
		slog.Warn("config not loaded, using defaults", "path", path, "error", err)
		return config.Default()
	}
	return cfg
}
