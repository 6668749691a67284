package main

import (
	"fmt"
	"os/signal"
	"strings"
	"syscall"

	"github.com/spf13/cobra"
)

var askCmd = &cobra.Command{
	Use:   "ask <question>",
	Short: "Answer a single question from the indexed corpus",
	Long: `Answer one question against the current index and print the answer
with the chunk IDs it cites.

Examples:
  corpusd ask "What is the refund policy?"`,
	Args: cobra.MinimumNArgs(1),
	RunE: runAsk,
}

func runAsk(cmd *cobra.Command, args []string) error {
	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	app, err := newApp(ctx)
	if err != nil {
		return err
	}
	defer app.close()

	question := strings.Join(args, " ")
	sess := app.sessions.GetOrCreate("")

	turn, err := app.orch.HandleTurn(ctx, sess, question)
	if err != nil {
		return err
	}

	fmt.Println(turn.Answer)
	if len(turn.RetrievedChunkIDs) > 0 {
		fmt.Printf("\nSources: %s\n", strings.Join(turn.RetrievedChunkIDs, ", "))
	}
	return nil
}
