// Package relay owns upstream connections: it opens streamed calls, drives
// the decoder over the body and hands deltas to its caller as they arrive.
package relay

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"chat-relay/internal/models"
	"chat-relay/internal/provider"
	"chat-relay/internal/tracer"
)

const maxResponseBytes = 4 << 20 // 4 MiB

var (
	// ErrStreamTruncated indicates the upstream stream ended abnormally after it was opened.
	ErrStreamTruncated = errors.New("stream ended early")
	// ErrCancelled indicates the caller cancelled the session or went away.
	ErrCancelled = errors.New("stream cancelled")
	// ErrStreamingUnsupported indicates Open was called with a blocking-only adapter.
	ErrStreamingUnsupported = errors.New("provider does not support streaming")

	errIdleTimeout = errors.New("upstream idle timeout")
)

// Options bounds upstream calls. Zero values disable the bound.
type Options struct {
	// StreamTimeout is the longest a streamed body may stay silent.
	StreamTimeout time.Duration
	// RequestTimeout bounds a whole blocking call.
	RequestTimeout time.Duration
}

// Relay issues upstream calls on behalf of the router.
type Relay struct {
	client *http.Client
	logger *slog.Logger
	opts   Options
}

// New constructs a relay around client.
func New(client *http.Client, logger *slog.Logger, opts Options) (*Relay, error) {
	if client == nil {
		return nil, errors.New("http client must not be nil")
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Relay{client: client, logger: logger, opts: opts}, nil
}

// Open issues a streamed call and returns the session that owns it. A
// non-success status fails with a *provider.UpstreamError before any decoding.
func (r *Relay) Open(ctx context.Context, req models.GenerationRequest, adapter provider.Adapter) (*Session, error) {
	if !adapter.SupportsStreaming() {
		return nil, fmt.Errorf("%s: %w", adapter.Name(), ErrStreamingUnsupported)
	}

	ctx, span := tracer.StartSpan(ctx, "relay.open")
	defer span.End()
	span.SetAttributes(tracer.StringAttr("provider", string(adapter.Name())))

	sessionCtx, cancel := context.WithCancelCause(ctx)

	httpReq, err := adapter.BuildRequest(sessionCtx, req, true)
	if err != nil {
		cancel(err)
		tracer.RecordError(span, err)
		return nil, err
	}

	resp, err := r.client.Do(httpReq)
	if err != nil {
		cancel(err)
		if ctx.Err() != nil {
			return nil, ErrCancelled
		}
		err = fmt.Errorf("%s stream request failed: %w", adapter.Name(), err)
		tracer.RecordError(span, err)
		return nil, err
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 64*1024))
		resp.Body.Close()
		upstreamErr := provider.ParseUpstreamError(adapter.Name(), resp.StatusCode, body)
		cancel(upstreamErr)
		tracer.RecordError(span, upstreamErr)
		return nil, upstreamErr
	}

	s := newSession(sessionCtx, cancel, adapter.Name(), resp.Body, r.opts.StreamTimeout, r.logger)
	span.SetAttributes(tracer.StringAttr("session_id", s.ID))
	tracer.SetOK(span)
	r.logger.Debug("upstream stream opened", "session_id", s.ID, "provider", adapter.Name(), "status", resp.StatusCode)
	return s, nil
}

// Complete issues one blocking call and returns the parsed reply text.
func (r *Relay) Complete(ctx context.Context, req models.GenerationRequest, adapter provider.Adapter) (string, error) {
	ctx, span := tracer.StartSpan(ctx, "relay.complete")
	defer span.End()
	span.SetAttributes(tracer.StringAttr("provider", string(adapter.Name())))

	callCtx := ctx
	if r.opts.RequestTimeout > 0 {
		var cancel context.CancelFunc
		callCtx, cancel = context.WithTimeout(ctx, r.opts.RequestTimeout)
		defer cancel()
	}

	httpReq, err := adapter.BuildRequest(callCtx, req, false)
	if err != nil {
		tracer.RecordError(span, err)
		return "", err
	}

	resp, err := r.client.Do(httpReq)
	if err != nil {
		if ctx.Err() != nil {
			return "", ErrCancelled
		}
		err = fmt.Errorf("%s request failed: %w", adapter.Name(), err)
		tracer.RecordError(span, err)
		return "", err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		if ctx.Err() != nil {
			return "", ErrCancelled
		}
		err = fmt.Errorf("%s read response: %w", adapter.Name(), err)
		tracer.RecordError(span, err)
		return "", err
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		upstreamErr := provider.ParseUpstreamError(adapter.Name(), resp.StatusCode, body)
		tracer.RecordError(span, upstreamErr)
		return "", upstreamErr
	}

	tracer.SetOK(span)
	return adapter.ParseResponse(body), nil
}
