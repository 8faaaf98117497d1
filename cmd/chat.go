package cmd

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"strings"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"chat-relay/internal/client"
	"chat-relay/internal/ui"
)

func newChatCmd() *cobra.Command {
	var (
		baseURL  string
		model    string
		modelID  string
		noStream bool
	)

	cmd := &cobra.Command{
		Use:   "chat",
		Short: "Start an interactive chat against a running relay",
		Long: `Start a conversational session against a running relay. Replies stream
in as they are generated. Ctrl-C cancels the current reply; type 'exit'
or 'quit' to end the session.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			terminal := ui.NewTerminal(cmd.OutOrStdout(), cmd.ErrOrStderr())
			consumer, err := client.New(client.Options{
				BaseURL:  baseURL,
				Model:    model,
				ModelID:  modelID,
				NoStream: noStream,
				Logger:   slog.New(slog.NewTextHandler(io.Discard, nil)),
			}, client.NewTranscript(terminal))
			if err != nil {
				return err
			}

			// Ctrl-C is handled per reply below.
			signal.Reset(os.Interrupt)
			return chatLoop(cmd.Context(), consumer, cmd.InOrStdin(), cmd.ErrOrStderr())
		},
	}

	cmd.Flags().StringVar(&baseURL, "url", "http://127.0.0.1:3000", "relay base URL")
	cmd.Flags().StringVar(&model, "model", "auto", "provider preference: auto, primary or secondary")
	cmd.Flags().StringVar(&modelID, "model-id", "", "override the primary provider's model")
	cmd.Flags().BoolVar(&noStream, "no-stream", false, "use the blocking endpoint instead of streaming")
	return cmd
}

func chatLoop(ctx context.Context, consumer *client.Consumer, in io.Reader, prompt io.Writer) error {
	cyan := color.New(color.FgCyan, color.Bold)
	dim := color.New(color.FgHiBlack)
	green := color.New(color.FgGreen)

	fmt.Fprintln(prompt)
	cyan.Fprintln(prompt, "  chat-relay")
	dim.Fprintf(prompt, "  Ctrl-C cancels a reply. Type 'exit' to quit.\n\n")

	scanner := bufio.NewScanner(in)
	for {
		green.Fprint(prompt, "  you → ")
		if !scanner.Scan() {
			return scanner.Err()
		}

		input := strings.TrimSpace(scanner.Text())
		if input == "" {
			continue
		}
		if input == "exit" || input == "quit" {
			dim.Fprintf(prompt, "\n  Bye.\n\n")
			return nil
		}

		// Errors are already rendered into the transcript.
		if err := submitTurn(ctx, consumer, input); errors.Is(err, context.Canceled) && ctx.Err() != nil {
			return ctx.Err()
		}
	}
}

// submitTurn sends one prompt; an interrupt while it runs cancels only that reply.
func submitTurn(ctx context.Context, consumer *client.Consumer, input string) error {
	turnCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	interrupts := make(chan os.Signal, 1)
	signal.Notify(interrupts, os.Interrupt)
	defer signal.Stop(interrupts)

	go func() {
		select {
		case <-interrupts:
			cancel()
		case <-turnCtx.Done():
		}
	}()

	_, err := consumer.Submit(turnCtx, input)
	if errors.Is(err, client.ErrCancelled) && ctx.Err() != nil {
		return ctx.Err()
	}
	return err
}
