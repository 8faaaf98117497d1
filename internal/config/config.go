package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"chat-relay/internal/models"
)

const (
	defaultPort            = 3000
	defaultReadTimeout     = 30 * time.Second
	defaultIdleTimeout     = 120 * time.Second
	defaultDialTimeout     = 10 * time.Second
	defaultHeaderTimeout   = 60 * time.Second
	defaultPrimaryBaseURL  = "https://api.openai.com/v1"
	defaultPrimaryModel    = "gpt-5-nano"
	defaultPrimaryKeyEnv   = "OPENAI_API_KEY"
	defaultPrimaryModelEnv = "OPENAI_MODEL"
	defaultSecondaryURL    = "https://api.deepseek.com/v1"
	defaultSecondaryModel  = "deepseek-chat"
	defaultSecondaryKeyEnv = "DEEPSEEK_API_KEY"
	defaultSecondaryModEnv = "DEEPSEEK_MODEL"
)

// Config represents the application configuration parsed from YAML and the environment.
type Config struct {
	Server    ServerConfig    `yaml:"server"`
	Log       LogConfig       `yaml:"log"`
	Tracing   TracingConfig   `yaml:"tracing"`
	Upstream  UpstreamConfig  `yaml:"upstream"`
	Breaker   BreakerConfig   `yaml:"breaker"`
	Providers ProvidersConfig `yaml:"providers"`
}

// ServerConfig defines listener configuration.
type ServerConfig struct {
	Port         int           `yaml:"port"`
	ReadTimeout  time.Duration `yaml:"read_timeout"`
	WriteTimeout time.Duration `yaml:"write_timeout"`
	IdleTimeout  time.Duration `yaml:"idle_timeout"`
}

// LogConfig selects the slog handler.
type LogConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
	Output string `yaml:"output"`
}

// TracingConfig toggles OpenTelemetry span export.
type TracingConfig struct {
	Enabled  bool   `yaml:"enabled"`
	Exporter string `yaml:"exporter"`
}

// UpstreamConfig bounds upstream calls. A zero duration disables that bound.
// Only the dial and response-header bounds are on by default; they limit the
// wait for the upstream's first byte, never the length of a stream.
type UpstreamConfig struct {
	StreamTimeout         time.Duration `yaml:"stream_timeout"`
	RequestTimeout        time.Duration `yaml:"request_timeout"`
	DialTimeout           time.Duration `yaml:"dial_timeout"`
	ResponseHeaderTimeout time.Duration `yaml:"response_header_timeout"`
}

// BreakerConfig configures the per-provider circuit breaker.
type BreakerConfig struct {
	MaxFailures uint32        `yaml:"max_failures"`
	Timeout     time.Duration `yaml:"timeout"`
	Interval    time.Duration `yaml:"interval"`
}

// ProvidersConfig holds the primary (streaming) and secondary (fallback) upstreams.
type ProvidersConfig struct {
	Primary   ProviderConfig `yaml:"primary"`
	Secondary ProviderConfig `yaml:"secondary"`
}

// ProviderConfig captures authentication and routing info for a provider.
type ProviderConfig struct {
	APIKey    string  `yaml:"api_key"`
	APIKeyEnv string  `yaml:"api_key_env"`
	BaseURL   string  `yaml:"base_url"`
	Model     string  `yaml:"model"`
	ModelEnv  string  `yaml:"model_env"`
	Headers   Headers `yaml:"headers"`
}

// Headers contains additional HTTP headers to send with a provider request.
type Headers map[string]string

// Credentials are the process-wide provider secrets. They are read-only after Load.
type Credentials struct {
	byProvider map[models.ProviderID]string
}

// Token returns the secret for the provider and whether it is set.
func (c Credentials) Token(id models.ProviderID) (string, bool) {
	token := strings.TrimSpace(c.byProvider[id])
	return token, token != ""
}

// Has reports whether a non-empty secret is configured for the provider.
func (c Credentials) Has(id models.ProviderID) bool {
	_, ok := c.Token(id)
	return ok
}

// NewCredentials copies tokens into a read-only Credentials value.
func NewCredentials(tokens map[models.ProviderID]string) Credentials {
	byProvider := make(map[models.ProviderID]string, len(tokens))
	for id, token := range tokens {
		byProvider[id] = token
	}
	return Credentials{byProvider: byProvider}
}

// Credentials snapshots the configured provider secrets. Adapters receive
// this value at construction and never read ProviderConfig.APIKey themselves.
func (c Config) Credentials() Credentials {
	return NewCredentials(map[models.ProviderID]string{
		models.ProviderOpenAI:   c.Providers.Primary.APIKey,
		models.ProviderDeepSeek: c.Providers.Secondary.APIKey,
	})
}

// Default returns the configuration used when no file is supplied.
func Default() Config {
	return Config{
		Server: ServerConfig{
			Port:        defaultPort,
			ReadTimeout: defaultReadTimeout,
			IdleTimeout: defaultIdleTimeout,
		},
		Log: LogConfig{Level: "info", Format: "text", Output: "stderr"},
		Upstream: UpstreamConfig{
			DialTimeout:           defaultDialTimeout,
			ResponseHeaderTimeout: defaultHeaderTimeout,
		},
		Providers: ProvidersConfig{
			Primary: ProviderConfig{
				APIKeyEnv: defaultPrimaryKeyEnv,
				BaseURL:   defaultPrimaryBaseURL,
				Model:     defaultPrimaryModel,
				ModelEnv:  defaultPrimaryModelEnv,
			},
			Secondary: ProviderConfig{
				APIKeyEnv: defaultSecondaryKeyEnv,
				BaseURL:   defaultSecondaryURL,
				Model:     defaultSecondaryModel,
				ModelEnv:  defaultSecondaryModEnv,
			},
		},
	}
}

// Load reads optional YAML configuration from disk, overlays the environment and validates the result.
func Load(path string) (Config, error) {
	return load(path, os.LookupEnv)
}

func load(path string, lookup func(string) (string, bool)) (Config, error) {
	cfg := Default()

	if strings.TrimSpace(path) != "" {
		absPath, err := filepath.Abs(path)
		if err != nil {
			return Config{}, fmt.Errorf("resolve config path: %w", err)
		}

		data, err := os.ReadFile(absPath)
		if err != nil {
			return Config{}, fmt.Errorf("read config file %q: %w", absPath, err)
		}

		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return Config{}, fmt.Errorf("parse config file %q: %w", absPath, err)
		}
	}

	cfg.Providers.Primary.applyEnv(lookup)
	cfg.Providers.Secondary.applyEnv(lookup)

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// applyEnv fills the secret and model from the environment. Values already set in the file win.
func (p *ProviderConfig) applyEnv(lookup func(string) (string, bool)) {
	if strings.TrimSpace(p.APIKey) == "" && p.APIKeyEnv != "" {
		if v, ok := lookup(p.APIKeyEnv); ok {
			p.APIKey = strings.TrimSpace(v)
		}
	}
	if p.ModelEnv != "" {
		if v, ok := lookup(p.ModelEnv); ok && strings.TrimSpace(v) != "" {
			p.Model = strings.TrimSpace(v)
		}
	}
}

// Validate performs strict sanity checks on the configuration.
// Missing secrets are allowed: a provider without one is skipped at routing time.
func (c Config) Validate() error {
	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		return fmt.Errorf("server.port must be a valid TCP port, got %d", c.Server.Port)
	}
	if c.Server.ReadTimeout < 0 || c.Server.WriteTimeout < 0 || c.Server.IdleTimeout < 0 {
		return errors.New("server timeouts must not be negative")
	}
	if c.Upstream.StreamTimeout < 0 || c.Upstream.RequestTimeout < 0 ||
		c.Upstream.DialTimeout < 0 || c.Upstream.ResponseHeaderTimeout < 0 {
		return errors.New("upstream timeouts must not be negative")
	}
	switch strings.ToLower(c.Tracing.Exporter) {
	case "", "noop", "stdout":
	default:
		return fmt.Errorf("tracing.exporter %q must be one of \"stdout\" or \"noop\"", c.Tracing.Exporter)
	}

	providers := map[string]ProviderConfig{
		"primary":   c.Providers.Primary,
		"secondary": c.Providers.Secondary,
	}
	for name, provider := range providers {
		if err := validateProvider(name, provider); err != nil {
			return err
		}
	}
	return nil
}

func validateProvider(name string, provider ProviderConfig) error {
	if strings.TrimSpace(provider.BaseURL) == "" {
		return fmt.Errorf("provider %s: base_url must be provided", name)
	}
	if !strings.HasPrefix(provider.BaseURL, "http://") && !strings.HasPrefix(provider.BaseURL, "https://") {
		return fmt.Errorf("provider %s: base_url %q must be an http(s) URL", name, provider.BaseURL)
	}
	if strings.TrimSpace(provider.Model) == "" {
		return fmt.Errorf("provider %s: model must not be empty", name)
	}

	for headerKey := range provider.Headers {
		if !isCanonicalHTTPHeader(headerKey) {
			return fmt.Errorf("provider %s: header %q is not a valid canonical HTTP header", name, headerKey)
		}
		if strings.EqualFold(headerKey, "Authorization") {
			return fmt.Errorf("provider %s: header %q is managed by the gateway", name, headerKey)
		}
	}
	return nil
}

func isCanonicalHTTPHeader(header string) bool {
	if header == "" {
		return false
	}

	for _, r := range header {
		if !(r == '-' || (r >= 'A' && r <= 'Z') || (r >= 'a' && r <= 'z')) {
			return false
		}
	}
	return true
}
