package commands

import (
	"bufio"
	"context"
	"fmt"
	"os"
	"strings"

	"github.com/urfave/cli/v3"
	"golang.org/x/term"

	"github.com/dohr-michael/agentweb/clients/api"
	wsclient "github.com/dohr-michael/agentweb/clients/ws"
)

// NewChatCommand returns the chat subcommand.
func NewChatCommand() *cli.Command {
	return &cli.Command{
		Name:      "chat",
		Usage:     "Chat over WebSocket; one line per turn",
		ArgsUsage: "[session_id]",
		Flags:     []cli.Flag{serverFlag()},
		Action:    runChat,
	}
}

func runChat(ctx context.Context, cmd *cli.Command) error {
	server := cmd.String("server")
	sessionID := cmd.Args().First()
	if sessionID == "" {
		id, err := api.New(server, nil).NewChatSession(ctx)
		if err != nil {
			return fmt.Errorf("create chat session: %w", err)
		}
		sessionID = id
	}
	fmt.Fprintf(os.Stderr, "session: %s\n", sessionID)

	client, err := wsclient.Dial(ctx, wsclient.URL(server, sessionID))
	if err != nil {
		return fmt.Errorf("connect: %w", err)
	}
	defer client.Close()

	history, err := client.History()
	if err != nil {
		return fmt.Errorf("read history: %w", err)
	}
	for _, t := range history {
		fmt.Printf("%s: %s\n", t.Role, t.Content)
	}

	interactive := term.IsTerminal(int(os.Stdin.Fd()))
	in := bufio.NewScanner(os.Stdin)
	for {
		if interactive {
			fmt.Print("> ")
		}
		if !in.Scan() {
			return in.Err()
		}
		line := strings.TrimSpace(in.Text())
		if line == "" {
			continue
		}
		if line == "/quit" || line == "/exit" {
			return nil
		}

		reply, err := client.Ask(line)
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			return fmt.Errorf("chat: %w", err)
		}
		fmt.Printf("agent: %s\n", reply)
	}
}
