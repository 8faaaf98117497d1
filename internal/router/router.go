// Package router decides which upstream serves a generation request and
// falls back from the primary to the secondary provider when the primary
// fails before producing any output.
package router

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"chat-relay/internal/config"
	"chat-relay/internal/models"
	"chat-relay/internal/provider"
	"chat-relay/internal/relay"
	"chat-relay/internal/tracer"
)

var (
	// ErrNoCredentials indicates neither provider has a secret configured.
	ErrNoCredentials = errors.New("no provider credentials configured")
	// ErrAllProvidersExhausted indicates every attempted provider failed before producing output.
	ErrAllProvidersExhausted = errors.New("all providers failed")
)

// ExhaustedError lists why each provider failed.
type ExhaustedError struct {
	Reasons []string
}

func (e *ExhaustedError) Error() string {
	return ErrAllProvidersExhausted.Error() + ": " + strings.Join(e.Reasons, "; ")
}

func (e *ExhaustedError) Unwrap() error {
	return ErrAllProvidersExhausted
}

// Sink receives deltas bound for the client, in order.
type Sink interface {
	Delta(models.Delta) error
}

// SinkFunc adapts a function to Sink.
type SinkFunc func(models.Delta) error

func (f SinkFunc) Delta(d models.Delta) error { return f(d) }

type state int

const (
	stateStart state = iota
	stateTryPrimary
	stateTrySecondary
	stateDone
	stateFailed
)

// Router is the fallback orchestrator. It holds no per-request state.
type Router struct {
	registry *provider.Registry
	relay    *relay.Relay
	logger   *slog.Logger
	breakers map[models.ProviderID]*breaker
}

// New constructs a router over the registry's primary and secondary adapters.
func New(registry *provider.Registry, rl *relay.Relay, logger *slog.Logger, cfg config.BreakerConfig) (*Router, error) {
	if registry == nil {
		return nil, errors.New("registry must not be nil")
	}
	if rl == nil {
		return nil, errors.New("relay must not be nil")
	}
	if logger == nil {
		logger = slog.Default()
	}

	breakers := make(map[models.ProviderID]*breaker)
	for _, role := range []provider.Role{provider.RolePrimary, provider.RoleSecondary} {
		a, err := registry.Lookup(role)
		if err != nil {
			return nil, err
		}
		breakers[a.Name()] = newBreaker(a.Name(), cfg, logger)
	}

	return &Router{
		registry: registry,
		relay:    rl,
		logger:   logger,
		breakers: breakers,
	}, nil
}

// Stream serves req, delivering deltas to sink as they arrive. The secondary
// provider never streams; its full reply reaches sink as a single delta.
//
// A failure after the first delta reached sink is not retried elsewhere: the
// returned outcome carries the partial text and the error wraps
// relay.ErrStreamTruncated.
func (r *Router) Stream(ctx context.Context, req models.GenerationRequest, sink Sink) (models.Outcome, error) {
	if sink == nil {
		return models.Outcome{}, errors.New("sink must not be nil")
	}
	return r.run(ctx, req, sink)
}

// Generate serves req with blocking calls only.
func (r *Router) Generate(ctx context.Context, req models.GenerationRequest) (models.Outcome, error) {
	return r.run(ctx, req, nil)
}

func (r *Router) run(ctx context.Context, req models.GenerationRequest, sink Sink) (models.Outcome, error) {
	ctx, span := tracer.StartSpan(ctx, "router.generate")
	defer span.End()
	span.SetAttributes(
		tracer.StringAttr("preference", string(req.Preference)),
		tracer.StringAttr("mode", modeName(sink)),
	)

	var (
		st      = stateStart
		outcome models.Outcome
		reasons []string
		err     error
	)

	for st != stateDone && st != stateFailed {
		switch st {
		case stateStart:
			st = r.initialState(req.Preference)

		case stateTryPrimary:
			primary, lookupErr := r.registry.Lookup(provider.RolePrimary)
			if lookupErr != nil || primary.CheckCredential() != nil {
				reason := unavailableReason(primary, lookupErr)
				if r.registry.Available(provider.RoleSecondary) {
					outcome.FallbackReason = reason
					reasons = append(reasons, formatReason(models.ProviderOpenAI, reason))
					st = stateTrySecondary
				} else {
					err = ErrNoCredentials
					st = stateFailed
				}
				continue
			}

			text, delivered, attemptErr := r.attempt(ctx, req, primary, sink)
			switch {
			case attemptErr == nil:
				outcome.ModelUsed = primary.Name()
				outcome.FinalText = text
				st = stateDone
			case errors.Is(attemptErr, relay.ErrCancelled):
				outcome.ModelUsed = primary.Name()
				outcome.FinalText = text
				err = relay.ErrCancelled
				st = stateFailed
			case delivered > 0:
				outcome.ModelUsed = primary.Name()
				outcome.FinalText = text
				outcome.Error = attemptErr.Error()
				err = attemptErr
				if !errors.Is(err, relay.ErrStreamTruncated) {
					err = fmt.Errorf("%w: %v", relay.ErrStreamTruncated, attemptErr)
				}
				r.logger.Warn("primary stream failed after partial output",
					"provider", primary.Name(), "deltas", delivered, "err", attemptErr)
				st = stateFailed
			default:
				reason := attemptErr.Error()
				reasons = append(reasons, formatReason(primary.Name(), reason))
				if r.registry.Available(provider.RoleSecondary) {
					r.logger.Warn("primary provider failed, falling back",
						"provider", primary.Name(), "err", attemptErr)
					outcome.FallbackReason = reason
					st = stateTrySecondary
				} else {
					secondary, _ := r.registry.Lookup(provider.RoleSecondary)
					reasons = append(reasons, formatReason(models.ProviderDeepSeek, unavailableReason(secondary, nil)))
					err = &ExhaustedError{Reasons: reasons}
					st = stateFailed
				}
			}

		case stateTrySecondary:
			secondary, lookupErr := r.registry.Lookup(provider.RoleSecondary)
			if lookupErr != nil || secondary.CheckCredential() != nil {
				switch {
				case len(reasons) > 0:
					reasons = append(reasons, formatReason(models.ProviderDeepSeek, unavailableReason(secondary, lookupErr)))
					err = &ExhaustedError{Reasons: reasons}
				case !r.registry.Available(provider.RolePrimary):
					err = ErrNoCredentials
				case lookupErr != nil:
					err = lookupErr
				default:
					err = secondary.CheckCredential()
				}
				st = stateFailed
				continue
			}

			text, _, attemptErr := r.attempt(ctx, req, secondary, sink)
			switch {
			case attemptErr == nil:
				outcome.ModelUsed = secondary.Name()
				outcome.FinalText = text
				st = stateDone
			case errors.Is(attemptErr, relay.ErrCancelled):
				err = relay.ErrCancelled
				st = stateFailed
			case len(reasons) > 0:
				reasons = append(reasons, formatReason(secondary.Name(), attemptErr.Error()))
				err = &ExhaustedError{Reasons: reasons}
				st = stateFailed
			default:
				err = attemptErr
				st = stateFailed
			}
		}
	}

	if st == stateFailed {
		tracer.RecordError(span, err)
		if !errors.Is(err, relay.ErrCancelled) {
			r.logger.Error("generation failed", "preference", req.Preference, "err", err)
		}
		return outcome, err
	}

	span.SetAttributes(
		tracer.StringAttr("model_used", string(outcome.ModelUsed)),
		tracer.StringAttr("fallback_reason", outcome.FallbackReason),
	)
	tracer.SetOK(span)
	r.logger.Info("generation served",
		"model_used", outcome.ModelUsed,
		"fallback", outcome.FallbackReason != "",
		"chars", len(outcome.FinalText),
	)
	return outcome, nil
}

func (r *Router) initialState(pref models.Preference) state {
	switch pref {
	case models.PreferPrimary:
		return stateTryPrimary
	case models.PreferSecondary:
		return stateTrySecondary
	default:
		if r.registry.Available(provider.RolePrimary) {
			return stateTryPrimary
		}
		return stateTrySecondary
	}
}

// attempt runs one provider and reports the text produced, how many deltas
// reached sink, and the failure if any.
func (r *Router) attempt(ctx context.Context, req models.GenerationRequest, a provider.Adapter, sink Sink) (string, int, error) {
	b := r.breakers[a.Name()]

	ctx, span := tracer.StartSpan(ctx, "router.attempt")
	defer span.End()
	span.SetAttributes(
		tracer.StringAttr("provider", string(a.Name())),
		tracer.StringAttr("breaker_state", b.state().String()),
	)

	if sink != nil && a.SupportsStreaming() {
		var session *relay.Session
		err := b.run(func() error {
			var openErr error
			session, openErr = r.relay.Open(ctx, req, a)
			return openErr
		})
		if err != nil {
			tracer.RecordError(span, err)
			return "", 0, err
		}
		text, delivered, err := r.pump(session, sink)
		span.SetAttributes(
			tracer.StringAttr("session_id", session.ID),
			tracer.IntAttr("deltas", session.Emitted()),
		)
		if err != nil {
			tracer.RecordError(span, err)
		}
		return text, delivered, err
	}

	var text string
	err := b.run(func() error {
		var completeErr error
		text, completeErr = r.relay.Complete(ctx, req, a)
		return completeErr
	})
	if err != nil {
		tracer.RecordError(span, err)
		return "", 0, err
	}
	if sink == nil || text == "" {
		return text, 0, nil
	}
	if err := sink.Delta(models.Delta{Text: text}); err != nil {
		return text, 0, fmt.Errorf("%w: %v", relay.ErrCancelled, err)
	}
	return text, 1, nil
}

// pump forwards session deltas to sink until the stream ends.
func (r *Router) pump(session *relay.Session, sink Sink) (string, int, error) {
	delivered := 0
	for delta, err := range session.Deltas() {
		if err != nil {
			return session.Accumulated(), delivered, err
		}
		if err := sink.Delta(delta); err != nil {
			return session.Accumulated(), delivered, fmt.Errorf("%w: %v", relay.ErrCancelled, err)
		}
		delivered++
	}
	return session.Accumulated(), delivered, nil
}

func unavailableReason(a provider.Adapter, lookupErr error) string {
	if lookupErr != nil {
		return lookupErr.Error()
	}
	if a == nil {
		return provider.ErrUnknownProvider.Error()
	}
	if err := a.CheckCredential(); err != nil {
		return err.Error()
	}
	return provider.ErrMissingCredential.Error()
}

func formatReason(id models.ProviderID, reason string) string {
	return fmt.Sprintf("%s failed: %s", id, reason)
}

func modeName(sink Sink) string {
	if sink == nil {
		return "blocking"
	}
	return "stream"
}
