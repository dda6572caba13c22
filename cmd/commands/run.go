package commands

import (
	"context"
	"fmt"
	"os"
	"strings"

	"github.com/urfave/cli/v3"

	"github.com/dohr-michael/agentweb/clients/api"
	"github.com/dohr-michael/agentweb/internal/events"
	"github.com/dohr-michael/agentweb/internal/sessions"
	"github.com/dohr-michael/agentweb/internal/workspace"
)

// NewRunCommand returns the run subcommand.
func NewRunCommand() *cli.Command {
	return &cli.Command{
		Name:      "run",
		Usage:     "Start a task on the server and follow its events",
		ArgsUsage: "<task>",
		Flags: []cli.Flag{
			serverFlag(),
			&cli.StringFlag{Name: "provider", Usage: "Model provider (anthropic, openai, mistral, ollama)", Value: "openai"},
			&cli.StringFlag{Name: "model", Usage: "Model name", Value: "gpt-4o"},
			&cli.StringFlag{Name: "api-key", Usage: "Provider API key", Sources: cli.EnvVars("AGENTWEB_API_KEY")},
			&cli.IntFlag{Name: "max-steps", Usage: "Step budget for the agent", Value: 20},
			&cli.BoolFlag{Name: "show", Usage: "Print the content of every text file in the workspace"},
		},
		Action: runRun,
	}
}

func runRun(ctx context.Context, cmd *cli.Command) error {
	task := strings.Join(cmd.Args().Slice(), " ")
	if task == "" {
		return fmt.Errorf("usage: agentweb run <task>")
	}

	client := api.New(cmd.String("server"), nil)
	id, err := client.ExecuteTask(ctx, sessions.TaskSpec{
		Task:     task,
		Provider: cmd.String("provider"),
		Model:    cmd.String("model"),
		APIKey:   cmd.String("api-key"),
		MaxSteps: cmd.Int("max-steps"),
	})
	if err != nil {
		return fmt.Errorf("execute task: %w", err)
	}
	fmt.Fprintf(os.Stderr, "session: %s\n", id)

	if err := client.Stream(ctx, id, printEvent); err != nil {
		return fmt.Errorf("stream session: %w", err)
	}

	summary, err := client.Session(ctx, id)
	if err != nil {
		return fmt.Errorf("session status: %w", err)
	}
	files, err := client.Files(ctx, id, "")
	if err == nil && len(files) > 0 {
		fmt.Println("\nworkspace:")
		for _, f := range files {
			fmt.Printf("  %s (%d bytes)\n", f.Path, f.Size)
		}
		if cmd.Bool("show") {
			showFiles(ctx, client, id, files)
		}
	}
	if summary.Status != sessions.StatusCompleted {
		return fmt.Errorf("task ended with status %s", summary.Status)
	}
	return nil
}

func printEvent(e events.Event) error {
	if e.Type != events.KindSessionComplete {
		fmt.Println(e)
	}
	return nil
}

func showFiles(ctx context.Context, client *api.Client, id string, files []workspace.File) {
	for _, f := range files {
		content, err := client.File(ctx, id, f.Path)
		if err != nil {
			fmt.Fprintf(os.Stderr, "\n%s: %v\n", f.Path, err)
			continue
		}
		fmt.Printf("\n--- %s ---\n%s", f.Path, content)
		if !strings.HasSuffix(content, "\n") {
			fmt.Println()
		}
	}
}
