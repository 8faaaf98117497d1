package factory

import (
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"time"

	"chat-relay/internal/config"
	"chat-relay/internal/provider"
	deepseekProvider "chat-relay/internal/provider/deepseek"
	openaiProvider "chat-relay/internal/provider/openai"
)

const (
	defaultDialTimeout     = 10 * time.Second
	defaultKeepAlive       = 30 * time.Second
	defaultIdleConnTimeout = 90 * time.Second
)

// RegisterConfiguredProviders constructs both adapters from configuration and binds them to their roles.
// Providers without a secret are still registered so routing can report them as unavailable.
func RegisterConfiguredProviders(cfg config.Config, registry *provider.Registry, logger *slog.Logger) error {
	if registry == nil {
		return errors.New("registry must not be nil")
	}

	creds := cfg.Credentials()

	primary, err := openaiProvider.New(cfg.Providers.Primary, creds)
	if err != nil {
		return fmt.Errorf("initialise openai provider: %w", err)
	}
	if err := registry.Register(provider.RolePrimary, primary); err != nil {
		return fmt.Errorf("register openai provider: %w", err)
	}

	secondary, err := deepseekProvider.New(cfg.Providers.Secondary, creds)
	if err != nil {
		return fmt.Errorf("initialise deepseek provider: %w", err)
	}
	if err := registry.Register(provider.RoleSecondary, secondary); err != nil {
		return fmt.Errorf("register deepseek provider: %w", err)
	}

	logger.Info("providers registered",
		"primary", primary.Name(), "primary_configured", primary.CheckCredential() == nil,
		"secondary", secondary.Name(), "secondary_configured", secondary.CheckCredential() == nil,
	)
	return nil
}

// NewHTTPClient builds the upstream client. It sets no overall Timeout because
// streamed bodies may legitimately stay open for minutes; bounds are applied
// per call by the relay.
func NewHTTPClient(cfg config.UpstreamConfig) *http.Client {
	dialTimeout := cfg.DialTimeout
	if dialTimeout == 0 {
		dialTimeout = defaultDialTimeout
	}

	transport := &http.Transport{
		Proxy:                 http.ProxyFromEnvironment,
		DialContext:           (&net.Dialer{Timeout: dialTimeout, KeepAlive: defaultKeepAlive}).DialContext,
		ForceAttemptHTTP2:     true,
		MaxIdleConns:          50,
		IdleConnTimeout:       defaultIdleConnTimeout,
		TLSHandshakeTimeout:   10 * time.Second,
		ResponseHeaderTimeout: cfg.ResponseHeaderTimeout,
		ExpectContinueTimeout: 1 * time.Second,
	}

	return &http.Client{
		Transport: transport,
	}
}
