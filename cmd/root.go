package cmd

import (
	"context"

	"github.com/spf13/cobra"
)

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:   "chat-relay",
		Short: "A streaming LLM relay with provider fallback",
		Long: `chat-relay relays chat generations to an upstream LLM provider,
streaming replies as they are produced and falling back to a secondary
provider when the primary fails before any output.

Examples:
  chat-relay serve --config config.yaml
  chat-relay chat --url http://127.0.0.1:3000
  chat-relay check-key`,
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	root.AddCommand(newServeCmd())
	root.AddCommand(newChatCmd())
	root.AddCommand(newCheckKeyCmd())
	return root
}

// Execute runs the CLI with the provided arguments.
func Execute(ctx context.Context, args []string) error {
	root := newRootCmd()
	root.SetArgs(args)
	return root.ExecuteContext(ctx)
}
