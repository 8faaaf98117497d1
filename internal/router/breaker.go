package router

import (
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/sony/gobreaker/v2"

	"chat-relay/internal/config"
	"chat-relay/internal/models"
	"chat-relay/internal/provider"
	"chat-relay/internal/relay"
)

const (
	defaultBreakerMaxFailures uint32        = 5
	defaultBreakerTimeout     time.Duration = 30 * time.Second
	defaultBreakerInterval    time.Duration = 60 * time.Second
)

// breaker fails fast for a provider that keeps rejecting calls. Only the
// connection phase is guarded; a stream that breaks after opening does not trip it.
type breaker struct {
	provider models.ProviderID
	cb       *gobreaker.CircuitBreaker[struct{}]
}

func newBreaker(id models.ProviderID, cfg config.BreakerConfig, logger *slog.Logger) *breaker {
	maxFailures := cfg.MaxFailures
	if maxFailures == 0 {
		maxFailures = defaultBreakerMaxFailures
	}
	timeout := cfg.Timeout
	if timeout == 0 {
		timeout = defaultBreakerTimeout
	}
	interval := cfg.Interval
	if interval == 0 {
		interval = defaultBreakerInterval
	}

	cb := gobreaker.NewCircuitBreaker[struct{}](gobreaker.Settings{
		Name:        "upstream:" + string(id),
		MaxRequests: 1,
		Interval:    interval,
		Timeout:     timeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= maxFailures
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			logger.Warn("circuit breaker state change",
				"breaker", name,
				"from", from.String(),
				"to", to.String(),
			)
		},
		// Caller cancellation and missing secrets say nothing about upstream health.
		IsSuccessful: func(err error) bool {
			return err == nil ||
				errors.Is(err, relay.ErrCancelled) ||
				errors.Is(err, provider.ErrMissingCredential)
		},
	})

	return &breaker{provider: id, cb: cb}
}

// run executes fn through the breaker.
func (b *breaker) run(fn func() error) error {
	_, err := b.cb.Execute(func() (struct{}, error) {
		return struct{}{}, fn()
	})
	if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
		return fmt.Errorf("provider %q circuit open: %w", b.provider, err)
	}
	return err
}

func (b *breaker) state() gobreaker.State {
	return b.cb.State()
}
