package server

import (
	"errors"
	"net/http"

	"github.com/labstack/echo/v4"

	"chat-relay/internal/models"
	"chat-relay/internal/router"
	"chat-relay/internal/translator"
)

var errFlushUnsupported = errors.New("server does not support streaming responses")

// eventStream writes deltas as server-sent events. Headers are committed on
// the first write, so a failure before any output can still become a JSON error.
type eventStream struct {
	c       echo.Context
	flusher http.Flusher
	started bool
}

var _ router.Sink = (*eventStream)(nil)

func newEventStream(c echo.Context) *eventStream {
	return &eventStream{c: c}
}

// Started reports whether the status line has been sent.
func (s *eventStream) Started() bool {
	return s.started
}

func (s *eventStream) Delta(d models.Delta) error {
	if err := s.start(); err != nil {
		return err
	}
	return s.write(translator.DeltaFrame{OutputText: d.Text})
}

// Close sends the outcome event and the terminator.
func (s *eventStream) Close(outcome models.Outcome) error {
	if err := s.start(); err != nil {
		return err
	}
	if err := s.write(translator.NewOutcomeFrame(outcome)); err != nil {
		return err
	}
	if err := translator.WriteDone(s.c.Response()); err != nil {
		return err
	}
	s.flusher.Flush()
	return nil
}

func (s *eventStream) start() error {
	if s.started {
		return nil
	}

	flusher, ok := s.c.Response().Writer.(http.Flusher)
	if !ok {
		return errFlushUnsupported
	}
	s.flusher = flusher

	header := s.c.Response().Header()
	header.Set("Content-Type", "text/event-stream; charset=utf-8")
	header.Set("Cache-Control", "no-cache")
	header.Set("Connection", "keep-alive")
	header.Set("X-Accel-Buffering", "no")

	s.c.Response().WriteHeader(http.StatusOK)
	s.started = true
	return nil
}

func (s *eventStream) write(payload any) error {
	if err := translator.WriteFrame(s.c.Response(), payload); err != nil {
		return err
	}
	s.flusher.Flush()
	return nil
}
