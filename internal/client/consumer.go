// Package client drives one generation request from the user's side: it
// keeps the visible transcript, consumes the relay's event stream and falls
// back to the blocking endpoint when the stream produces nothing.
package client

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"

	"chat-relay/internal/decoder"
	"chat-relay/internal/envelope"
	"chat-relay/internal/models"
	"chat-relay/internal/translator"
)

const maxErrorBody = 64 << 10

var (
	// ErrCancelled indicates the caller cancelled the reply.
	ErrCancelled = errors.New("reply cancelled")
	// ErrReplyIncomplete indicates the reply stopped after partial output.
	ErrReplyIncomplete = errors.New("reply ended early")
)

// ServerError is a non-2xx answer from the gateway.
type ServerError struct {
	Status   int
	Message  string
	Friendly string
}

func (e *ServerError) Error() string {
	return fmt.Sprintf("gateway status %d: %s", e.Status, e.Message)
}

// Options configures a Consumer.
type Options struct {
	// BaseURL is the gateway root, e.g. http://127.0.0.1:3000.
	BaseURL string
	// Model is the provider preference sent with every request.
	Model string
	// ModelID overrides the primary provider's model.
	ModelID string
	// NoStream sends every request to the blocking endpoint.
	NoStream   bool
	HTTPClient *http.Client
	Logger     *slog.Logger
}

// Consumer submits prompts to the gateway and renders replies into a Transcript.
// Submit calls must not overlap.
type Consumer struct {
	baseURL    string
	model      string
	modelID    string
	noStream   bool
	client     *http.Client
	logger     *slog.Logger
	transcript *Transcript
}

// New creates a consumer writing into transcript.
func New(opts Options, transcript *Transcript) (*Consumer, error) {
	baseURL := strings.TrimRight(strings.TrimSpace(opts.BaseURL), "/")
	if baseURL == "" {
		return nil, errors.New("base url must not be empty")
	}
	if transcript == nil {
		return nil, errors.New("transcript must not be nil")
	}

	client := opts.HTTPClient
	if client == nil {
		client = &http.Client{}
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}

	return &Consumer{
		baseURL:    baseURL,
		model:      opts.Model,
		modelID:    opts.ModelID,
		noStream:   opts.NoStream,
		client:     client,
		logger:     logger,
		transcript: transcript,
	}, nil
}

// Transcript returns the transcript the consumer writes to.
func (c *Consumer) Transcript() *Transcript {
	return c.transcript
}

type wireMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type wireRequest struct {
	Input       string        `json:"input"`
	Messages    []wireMessage `json:"messages,omitempty"`
	Model       string        `json:"model,omitempty"`
	OpenAIModel string        `json:"openaiModel,omitempty"`
}

// Submit sends prompt and renders the reply. Cancelling ctx stops the reply
// and keeps whatever text had arrived.
func (c *Consumer) Submit(ctx context.Context, prompt string) (models.Outcome, error) {
	prompt = strings.TrimSpace(prompt)
	if prompt == "" {
		return models.Outcome{}, errors.New("prompt must not be empty")
	}

	req := wireRequest{
		Input:       prompt,
		Model:       c.model,
		OpenAIModel: c.modelID,
	}
	for _, m := range c.transcript.History() {
		req.Messages = append(req.Messages, wireMessage{Role: m.Role, Content: m.Text})
	}

	c.transcript.append(Message{Role: RoleUser, Text: prompt, Status: StatusComplete})
	placeholder := c.transcript.append(Message{Role: RoleAssistant, Status: StatusInProgress})

	if c.noStream {
		return c.finishBlocking(ctx, placeholder.ID, req)
	}

	outcome, delivered, err := c.stream(ctx, placeholder.ID, req)
	switch {
	case err == nil && outcome.Error == "":
		c.transcript.update(placeholder.ID, func(m *Message) {
			m.Status = StatusComplete
			m.ModelUsed = string(outcome.ModelUsed)
			m.FallbackReason = outcome.FallbackReason
		})
		return outcome, nil

	case err == nil:
		c.transcript.update(placeholder.ID, func(m *Message) {
			m.Status = StatusError
			m.ModelUsed = string(outcome.ModelUsed)
			m.FallbackReason = outcome.FallbackReason
			m.Err = outcome.Error
		})
		return outcome, fmt.Errorf("%w: %s", ErrReplyIncomplete, outcome.Error)

	case ctx.Err() != nil:
		c.transcript.update(placeholder.ID, func(m *Message) { m.Status = StatusCancelled })
		return outcome, ErrCancelled

	case delivered > 0:
		c.transcript.update(placeholder.ID, func(m *Message) {
			m.Status = StatusError
			m.Err = err.Error()
		})
		return outcome, fmt.Errorf("%w: %v", ErrReplyIncomplete, err)
	}

	c.logger.Warn("stream produced no output, retrying on secondary", "err", err)
	c.transcript.remove(placeholder.ID)

	req.Model = string(models.PreferSecondary)
	retried, retryErr := c.generate(ctx, req)
	if retryErr != nil {
		if ctx.Err() != nil {
			return models.Outcome{}, ErrCancelled
		}
		c.notice(retryErr)
		return models.Outcome{}, retryErr
	}
	c.transcript.append(Message{
		Role:           RoleAssistant,
		Text:           retried.FinalText,
		Status:         StatusComplete,
		ModelUsed:      string(retried.ModelUsed),
		FallbackReason: retried.FallbackReason,
	})
	return retried, nil
}

func (c *Consumer) finishBlocking(ctx context.Context, id int, req wireRequest) (models.Outcome, error) {
	outcome, err := c.generate(ctx, req)
	switch {
	case err == nil:
		c.transcript.update(id, func(m *Message) {
			m.Text = outcome.FinalText
			m.Status = StatusComplete
			m.ModelUsed = string(outcome.ModelUsed)
			m.FallbackReason = outcome.FallbackReason
		})
		return outcome, nil
	case ctx.Err() != nil:
		c.transcript.update(id, func(m *Message) { m.Status = StatusCancelled })
		return models.Outcome{}, ErrCancelled
	default:
		c.transcript.remove(id)
		c.notice(err)
		return models.Outcome{}, err
	}
}

// stream consumes /api/stream. Every delta replaces the placeholder text with
// the accumulated reply. It returns how many deltas were rendered.
func (c *Consumer) stream(ctx context.Context, id int, req wireRequest) (models.Outcome, int, error) {
	resp, err := c.post(ctx, "/api/stream", req)
	if err != nil {
		return models.Outcome{}, 0, err
	}
	defer resp.Body.Close()

	var (
		accumulated strings.Builder
		outcome     models.Outcome
		delivered   int
		frames      = decoder.NewReader(resp.Body)
	)
	for {
		frame, err := frames.Next(ctx)
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			outcome.FinalText = accumulated.String()
			return outcome, delivered, err
		}

		if frame.Envelope.Kind == envelope.KindUnrecognized {
			if body, ok := translator.ParseOutcomeFrame(frame.Envelope.Raw); ok {
				outcome.ModelUsed = models.ProviderID(body.ModelUsed)
				outcome.FallbackReason = body.FallbackReason
				outcome.Error = body.Error
			}
			continue
		}

		delta, ok := frame.Delta()
		if !ok {
			continue
		}
		accumulated.WriteString(delta.Text)
		text := accumulated.String()
		c.transcript.update(id, func(m *Message) { m.Text = text })
		delivered++
	}

	outcome.FinalText = accumulated.String()
	return outcome, delivered, nil
}

func (c *Consumer) generate(ctx context.Context, req wireRequest) (models.Outcome, error) {
	resp, err := c.post(ctx, "/api/generate", req)
	if err != nil {
		return models.Outcome{}, err
	}
	defer resp.Body.Close()

	var body translator.GenerateResponse
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return models.Outcome{}, fmt.Errorf("decode generate response: %w", err)
	}
	return models.Outcome{
		ModelUsed:      models.ProviderID(body.ModelUsed),
		FallbackReason: body.FallbackReason,
		FinalText:      body.Response,
	}, nil
}

// post sends payload and returns the response only when it is 2xx.
func (c *Consumer) post(ctx context.Context, path string, payload wireRequest) (*http.Response, error) {
	body, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("marshal request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("construct request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := c.client.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("call %s: %w", path, err)
	}
	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		return resp, nil
	}
	defer resp.Body.Close()

	raw, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
	serverErr := &ServerError{Status: resp.StatusCode, Message: strings.TrimSpace(string(raw))}
	var decoded translator.ErrorResponse
	if json.Unmarshal(raw, &decoded) == nil && decoded.Error != "" {
		serverErr.Message = decoded.Error
		serverErr.Friendly = decoded.ErrorFriendly
	}
	if serverErr.Message == "" {
		serverErr.Message = http.StatusText(resp.StatusCode)
	}
	return nil, serverErr
}

func (c *Consumer) notice(err error) {
	text := err.Error()
	var serverErr *ServerError
	if errors.As(err, &serverErr) && serverErr.Friendly != "" {
		text = serverErr.Friendly
	}
	c.transcript.append(Message{Role: RoleNotice, Text: text, Status: StatusError, Err: err.Error()})
}
