package main

import (
	"bufio"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

var chatCmd = &cobra.Command{
	Use:   "chat",
	Short: "Interactive multi-turn question answering",
	Long: `Start a REPL that answers questions from the indexed corpus. Follow-up
questions are rewritten against the conversation so far, so "what about
electronics?" after a refund question asks about electronics refunds.

Exit with Ctrl-D or by typing "exit".`,
	RunE: runChat,
}

func runChat(cmd *cobra.Command, args []string) error {
	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	app, err := newApp(ctx)
	if err != nil {
		return err
	}
	defer app.close()

	sess := app.sessions.GetOrCreate("")
	fmt.Printf("corpusd chat (session %s). Ctrl-D to exit.\n", sess.ID())

	scanner := bufio.NewScanner(os.Stdin)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)

	for {
		fmt.Print("> ")
		if !scanner.Scan() {
			fmt.Println()
			return scanner.Err()
		}
		question := strings.TrimSpace(scanner.Text())
		if question == "" {
			continue
		}
		if question == "exit" || question == "quit" {
			return nil
		}

		turn, err := app.orch.HandleTurn(ctx, sess, question)
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			app.logger.Error("turn failed", zap.Error(err))
			fmt.Fprintf(os.Stderr, "error: %v\n", err)
			continue
		}

		fmt.Printf("\n%s\n", turn.Answer)
		if len(turn.RetrievedChunkIDs) > 0 {
			fmt.Printf("\nSources: %s\n\n", strings.Join(turn.RetrievedChunkIDs, ", "))
		} else {
			fmt.Println()
		}
	}
}
