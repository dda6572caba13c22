package commands

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/cloudwego/eino/callbacks"
	"github.com/urfave/cli/v3"
	"golang.org/x/sync/errgroup"

	"github.com/dohr-michael/agentweb/internal/chat"
	"github.com/dohr-michael/agentweb/internal/config"
	"github.com/dohr-michael/agentweb/internal/engine"
	"github.com/dohr-michael/agentweb/internal/gateway"
	"github.com/dohr-michael/agentweb/internal/heartbeat"
	"github.com/dohr-michael/agentweb/internal/metrics"
	"github.com/dohr-michael/agentweb/internal/retention"
	"github.com/dohr-michael/agentweb/internal/sessions"
	"github.com/dohr-michael/agentweb/internal/storage"
	"github.com/dohr-michael/agentweb/internal/tasks"
	"github.com/dohr-michael/agentweb/internal/workspace"
)

// NewServeCommand returns the serve subcommand.
func NewServeCommand() *cli.Command {
	return &cli.Command{
		Name:  "serve",
		Usage: "Start the agentweb server",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:  "host",
				Usage: "Host to listen on",
			},
			&cli.IntFlag{
				Name:  "port",
				Usage: "Port to listen on",
			},
		},
		Action: runServe,
	}
}

func runServe(ctx context.Context, cmd *cli.Command) error {
	cfg := loadConfig(cmd)

	// CLI flags override config
	if cmd.IsSet("host") {
		cfg.Server.Host = cmd.String("host")
	}
	if cmd.IsSet("port") {
		cfg.Server.Port = cmd.Int("port")
	}

	workspaces := workspace.NewManager(cfg.Workspace.Root)
	audit := storage.NewEventLogger(config.LogsPath())

	var m *metrics.Metrics
	var observer tasks.Observer
	if cfg.Metrics.On() {
		var err error
		if m, err = metrics.New(nil); err != nil {
			return fmt.Errorf("init metrics: %w", err)
		}
		observer = m
	}

	var eng engine.Engine
	if cfg.Runner.Engine.Enabled {
		eng = engine.NewModelEngine(workspaces, engine.ModelEngineConfig{
			BaseURL:   cfg.Runner.Engine.BaseURL,
			Timeout:   cfg.Runner.Engine.Timeout.Duration(),
			MaxTokens: cfg.Runner.Engine.MaxTokens,
		})
		if cmd.Bool("debug") {
			callbacks.AppendGlobalHandlers(engine.NewTraceHandler())
		}
		slog.Info("agent engine enabled")
	} else {
		slog.Info("agent engine disabled, tasks run the simulation")
	}

	// Tasks outlive the signal context so they get the shutdown grace period.
	runCtx, cancelRuns := context.WithCancel(context.Background())
	defer cancelRuns()
	runner := tasks.NewRunner(runCtx, tasks.RunnerConfig{
		Engine:     eng,
		Workspaces: workspaces,
		StepDelay:  cfg.Runner.StepDelay.Duration(),
		Observer:   observer,
		Verbose:    cmd.Bool("debug"),
	})
	registry := sessions.NewRegistry(workspaces, runner, audit)

	store, err := chat.OpenSQLite(ctx, cfg.Chat.DBPath)
	if err != nil {
		return fmt.Errorf("open chat store: %w", err)
	}
	defer store.Close()

	server := gateway.NewServer(gateway.Config{
		Addr:           cfg.Server.Addr(),
		AllowedOrigins: cfg.Server.AllowedOrigins,
		PollInterval:   cfg.Stream.PollInterval.Duration(),
		Registry:       registry,
		Engine:         eng,
		Chat:           store,
		Metrics:        m,
	})

	g, gctx := errgroup.WithContext(ctx)

	g.Go(server.Start)

	hb := heartbeat.NewWriter(config.HeartbeatPath(), cfg.Server.Addr(), func() map[string]int {
		out := make(map[string]int)
		for status, n := range registry.Counts() {
			out[string(status)] = n
		}
		return out
	})
	g.Go(func() error { return hb.Run(gctx) })

	if cfg.Retention.Enabled {
		sweeper, err := retention.New(retention.Config{
			Registry: registry,
			Audit:    audit,
			Schedule: cfg.Retention.Schedule,
			MaxAge:   cfg.Retention.MaxAge.Duration(),
		})
		if err != nil {
			return err
		}
		slog.Warn("retention enabled: terminal sessions will be evicted",
			"schedule", cfg.Retention.Schedule, "max_age", cfg.Retention.MaxAge.Duration())
		g.Go(func() error { return sweeper.Run(gctx) })
	}

	g.Go(func() error {
		<-gctx.Done()
		slog.Info("shutting down...")

		grace := cfg.Server.ShutdownGrace.Duration()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), grace)
		defer cancel()

		if err := server.Shutdown(shutdownCtx); err != nil {
			slog.Warn("server shutdown", "error", err)
		}
		if err := runner.Wait(shutdownCtx); err != nil {
			slog.Warn("tasks still running after grace period, cancelling", "grace", grace)
			cancelRuns()
			waitCtx, waitCancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer waitCancel()
			runner.Wait(waitCtx)
		}
		return nil
	})

	return g.Wait()
}
