package commands

import (
	"context"
	"fmt"
	"os"
	"text/tabwriter"

	"github.com/urfave/cli/v3"

	"github.com/dohr-michael/agentweb/clients/api"
	"github.com/dohr-michael/agentweb/internal/chat"
)

// NewSessionsCommand returns the sessions subcommand.
func NewSessionsCommand() *cli.Command {
	return &cli.Command{
		Name:  "sessions",
		Usage: "Inspect execution and chat sessions",
		Commands: []*cli.Command{
			{
				Name:   "list",
				Usage:  "List execution sessions of the running server",
				Flags:  []cli.Flag{serverFlag()},
				Action: runSessionsList,
			},
			{
				Name:      "show",
				Usage:     "Show an execution session, its events and workspace",
				ArgsUsage: "<session_id>",
				Flags:     []cli.Flag{serverFlag()},
				Action:    runSessionsShow,
			},
			{
				Name:      "chat",
				Usage:     "List chat sessions, or print one chat history, from the local database",
				ArgsUsage: "[session_id]",
				Action:    runSessionsChat,
			},
		},
		DefaultCommand: "list",
	}
}

func runSessionsList(ctx context.Context, cmd *cli.Command) error {
	list, err := api.New(cmd.String("server"), nil).Sessions(ctx)
	if err != nil {
		return fmt.Errorf("list sessions: %w", err)
	}

	if len(list) == 0 {
		fmt.Println("No sessions found.")
		return nil
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "ID\tSTATUS\tEVENTS\tCREATED\tTASK")
	for _, s := range list {
		fmt.Fprintf(w, "%s\t%s\t%d\t%s\t%s\n",
			s.ID,
			s.Status,
			s.MessageCount,
			s.CreatedAt.Format("2006-01-02 15:04"),
			truncate(s.Task, 60),
		)
	}
	return w.Flush()
}

func runSessionsShow(ctx context.Context, cmd *cli.Command) error {
	sessionID := cmd.Args().First()
	if sessionID == "" {
		return fmt.Errorf("usage: agentweb sessions show <session_id>")
	}

	client := api.New(cmd.String("server"), nil)
	s, err := client.Session(ctx, sessionID)
	if err != nil {
		return fmt.Errorf("load session: %w", err)
	}
	fmt.Printf("%s  %s  %s/%s\n%s\n\n", s.ID, s.Status, s.Provider, s.Model, s.Task)

	// The stream replays the full log; for a finished session it ends at once.
	if s.Status.Terminal() {
		if err := client.Stream(ctx, sessionID, printEvent); err != nil {
			return fmt.Errorf("load events: %w", err)
		}
	}

	files, err := client.Files(ctx, sessionID, "")
	if err != nil {
		return fmt.Errorf("list files: %w", err)
	}
	for _, f := range files {
		fmt.Printf("  %s (%d bytes)\n", f.Path, f.Size)
	}
	return nil
}

func runSessionsChat(ctx context.Context, cmd *cli.Command) error {
	cfg := loadConfig(cmd)
	store, err := chat.OpenSQLite(ctx, cfg.Chat.DBPath)
	if err != nil {
		return fmt.Errorf("open chat store: %w", err)
	}
	defer store.Close()

	sessionID := cmd.Args().First()
	if sessionID == "" {
		list, err := store.Sessions(ctx)
		if err != nil {
			return err
		}
		if len(list) == 0 {
			fmt.Println("No chat sessions found.")
			return nil
		}
		w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
		fmt.Fprintln(w, "ID\tMESSAGES\tCREATED")
		for _, s := range list {
			fmt.Fprintf(w, "%s\t%d\t%s\n", s.ID, s.MessageCount, s.CreatedAt.Format("2006-01-02 15:04"))
		}
		return w.Flush()
	}

	turns, err := store.History(ctx, sessionID)
	if err != nil {
		return err
	}
	if len(turns) == 0 {
		fmt.Println("No messages in this session.")
		return nil
	}
	for _, t := range turns {
		fmt.Printf("[%s] %s: %s\n", t.CreatedAt.Local().Format("15:04:05"), t.Role, t.Content)
	}
	return nil
}

func truncate(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n-1]) + "…"
}
