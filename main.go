// Command chat-relay serves the streaming LLM relay and its terminal client.
package main

import (
	"context"
	"errors"
	"os"
	"os/signal"
	"syscall"

	"github.com/fatih/color"
	_ "github.com/joho/godotenv/autoload"

	"chat-relay/cmd"
)

func main() {
	os.Exit(run(os.Args[1:]))
}

// run executes the CLI and returns the process exit code. An interrupt that
// ends a long-running command counts as a clean exit.
func run(args []string) int {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	err := cmd.Execute(ctx, args)
	switch {
	case err == nil:
		return 0
	case errors.Is(err, context.Canceled) && ctx.Err() != nil:
		return 0
	default:
		color.New(color.FgRed).Fprintf(os.Stderr, "chat-relay: %v\n", err)
		return 1
	}
}
