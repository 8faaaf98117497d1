package cmd

import (
	"errors"
	"fmt"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"chat-relay/internal/config"
	"chat-relay/internal/models"
)

func newCheckKeyCmd() *cobra.Command {
	var cfgPath string

	cmd := &cobra.Command{
		Use:   "check-key",
		Short: "Report which provider API keys are configured",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(cfgPath)
			if err != nil {
				return err
			}

			green := color.New(color.FgGreen)
			red := color.New(color.FgRed)
			out := cmd.OutOrStdout()

			creds := cfg.Credentials()
			entries := []struct {
				id     models.ProviderID
				envVar string
			}{
				{models.ProviderOpenAI, cfg.Providers.Primary.APIKeyEnv},
				{models.ProviderDeepSeek, cfg.Providers.Secondary.APIKeyEnv},
			}

			configured := 0
			for _, e := range entries {
				if creds.Has(e.id) {
					configured++
					green.Fprintf(out, "  ✓ %s key configured\n", e.id)
					continue
				}
				red.Fprintf(out, "  ✗ %s key missing (set %s)\n", e.id, e.envVar)
			}
			fmt.Fprintln(out)

			if configured == 0 {
				return errors.New("no provider API key is configured")
			}
			return nil
		},
	}

	cmd.Flags().StringVar(&cfgPath, "config", "", "path to YAML configuration file")
	return cmd
}
