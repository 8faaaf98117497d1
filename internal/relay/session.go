package relay

import (
	"context"
	"errors"
	"fmt"
	"io"
	"iter"
	"log/slog"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/oklog/ulid/v2"

	"chat-relay/internal/decoder"
	"chat-relay/internal/models"
)

// Session is one in-flight streamed generation. Next, Deltas, Accumulated and
// Emitted belong to a single consuming goroutine; Cancel may be called from any goroutine.
type Session struct {
	ID       string
	Provider models.ProviderID

	ctx    context.Context
	cancel context.CancelCauseFunc
	body   io.ReadCloser
	reader *decoder.Reader
	idle   *time.Timer
	logger *slog.Logger

	accumulated strings.Builder
	emitted     int
	err         error

	cancelled atomic.Bool
	closeOnce sync.Once
}

func newSession(ctx context.Context, cancel context.CancelCauseFunc, id models.ProviderID, body io.ReadCloser, idleTimeout time.Duration, logger *slog.Logger) *Session {
	s := &Session{
		ID:       ulid.Make().String(),
		Provider: id,
		ctx:      ctx,
		cancel:   cancel,
		body:     body,
		logger:   logger,
	}

	var src io.Reader = body
	if idleTimeout > 0 {
		s.idle = time.AfterFunc(idleTimeout, func() { cancel(errIdleTimeout) })
		src = &idleReader{r: body, timer: s.idle, timeout: idleTimeout}
	}
	s.reader = decoder.NewReader(src)
	return s
}

// Next returns the next delta. It returns io.EOF when the stream completes,
// ErrCancelled after Cancel or caller cancellation, and an error wrapping
// ErrStreamTruncated when the upstream ends abnormally. Terminal errors repeat.
func (s *Session) Next() (models.Delta, error) {
	if s.err != nil {
		return models.Delta{}, s.err
	}

	for {
		frame, err := s.reader.Next(s.ctx)
		if err != nil {
			s.err = s.classify(err)
			s.Close()
			s.logger.Debug("upstream stream finished",
				"session_id", s.ID, "provider", s.Provider, "deltas", s.emitted, "result", s.err)
			return models.Delta{}, s.err
		}

		delta, ok := frame.Delta()
		if !ok {
			continue
		}
		s.accumulated.WriteString(delta.Text)
		s.emitted++
		return delta, nil
	}
}

// Deltas ranges over the session. Breaking out of the loop cancels the session.
func (s *Session) Deltas() iter.Seq2[models.Delta, error] {
	return func(yield func(models.Delta, error) bool) {
		defer s.Close()
		for {
			delta, err := s.Next()
			if errors.Is(err, io.EOF) {
				return
			}
			if err != nil {
				yield(models.Delta{}, err)
				return
			}
			if !yield(delta, nil) {
				s.Cancel()
				return
			}
		}
	}
}

// Cancel stops delivery and aborts the upstream call. It is idempotent.
func (s *Session) Cancel() {
	if s.cancelled.Swap(true) {
		return
	}
	s.Close()
}

// Close releases the upstream connection. It is idempotent.
func (s *Session) Close() {
	s.closeOnce.Do(func() {
		if s.idle != nil {
			s.idle.Stop()
		}
		s.cancel(ErrCancelled)
		if err := s.body.Close(); err != nil {
			s.logger.Debug("close upstream body", "session_id", s.ID, "err", err)
		}
	})
}

// Accumulated returns the concatenation of every delta delivered so far.
func (s *Session) Accumulated() string {
	return s.accumulated.String()
}

// Emitted returns how many deltas have been delivered.
func (s *Session) Emitted() int {
	return s.emitted
}

func (s *Session) classify(err error) error {
	switch {
	case s.cancelled.Load():
		return ErrCancelled
	case errors.Is(err, io.EOF):
		return io.EOF
	case errors.Is(context.Cause(s.ctx), errIdleTimeout):
		return fmt.Errorf("%w: %v", ErrStreamTruncated, errIdleTimeout)
	case s.ctx.Err() != nil:
		return ErrCancelled
	default:
		return fmt.Errorf("%w: %v", ErrStreamTruncated, err)
	}
}

// idleReader re-arms the idle timer whenever the upstream delivers bytes.
type idleReader struct {
	r       io.Reader
	timer   *time.Timer
	timeout time.Duration
}

func (r *idleReader) Read(p []byte) (int, error) {
	n, err := r.r.Read(p)
	if n > 0 {
		r.timer.Reset(r.timeout)
	}
	return n, err
}
