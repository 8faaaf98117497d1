package cmd

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/spf13/cobra"

	"chat-relay/internal/config"
	"chat-relay/internal/logger"
	"chat-relay/internal/provider"
	providerfactory "chat-relay/internal/provider/factory"
	"chat-relay/internal/relay"
	"chat-relay/internal/router"
	"chat-relay/internal/server"
	"chat-relay/internal/tracer"
)

func newServeCmd() *cobra.Command {
	var (
		cfgPath      string
		overridePort int
	)

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the HTTP relay",
		Long: `Start the HTTP relay. Provider secrets come from the configuration
file or from OPENAI_API_KEY / DEEPSEEK_API_KEY in the environment.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(cfgPath)
			if err != nil {
				return err
			}

			if cmd.Flags().Changed("port") {
				if overridePort <= 0 || overridePort > 65535 {
					return fmt.Errorf("port override %d must be a valid TCP port", overridePort)
				}
				cfg.Server.Port = overridePort
			}

			return serve(cmd.Context(), cfg)
		},
	}

	cmd.Flags().StringVar(&cfgPath, "config", "", "path to YAML configuration file")
	cmd.Flags().IntVar(&overridePort, "port", 0, "override server port from configuration")
	return cmd
}

func serve(ctx context.Context, cfg config.Config) error {
	log, closeLog, err := logger.New(cfg.Log)
	if err != nil {
		return err
	}
	defer func() { _ = closeLog() }()
	slog.SetDefault(log)

	shutdownTracing, err := tracer.Setup(ctx, cfg.Tracing)
	if err != nil {
		return fmt.Errorf("setup tracing: %w", err)
	}
	defer func() {
		if err := shutdownTracing(context.Background()); err != nil {
			log.Warn("tracer shutdown failed", "err", err)
		}
	}()

	registry := provider.NewRegistry()
	if err := providerfactory.RegisterConfiguredProviders(cfg, registry, log); err != nil {
		return err
	}

	rl, err := relay.New(providerfactory.NewHTTPClient(cfg.Upstream), log, relay.Options{
		StreamTimeout:  cfg.Upstream.StreamTimeout,
		RequestTimeout: cfg.Upstream.RequestTimeout,
	})
	if err != nil {
		return err
	}

	rt, err := router.New(registry, rl, log, cfg.Breaker)
	if err != nil {
		return err
	}

	srv, err := server.New(cfg, rt, log)
	if err != nil {
		return err
	}

	return srv.Run(ctx)
}
