package translator

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"

	"chat-relay/internal/models"
	"chat-relay/internal/provider"
	"chat-relay/internal/relay"
	"chat-relay/internal/router"
)

// GenerateResponse is the body of a successful blocking generation.
type GenerateResponse struct {
	Response       string `json:"response"`
	ModelUsed      string `json:"modelUsed"`
	FallbackReason string `json:"fallbackReason,omitempty"`
}

// PlanResponse is the body of a successful itinerary request.
type PlanResponse struct {
	Plan           string `json:"plan"`
	ModelUsed      string `json:"modelUsed"`
	FallbackReason string `json:"fallbackReason,omitempty"`
}

// ErrorResponse is the body of every failed request.
type ErrorResponse struct {
	Error         string `json:"error"`
	ErrorFriendly string `json:"errorFriendly,omitempty"`
}

// KeyStatusResponse reports which provider secrets are configured. Secrets are never echoed.
type KeyStatusResponse struct {
	Status    string          `json:"status"`
	Message   string          `json:"message"`
	Providers map[string]bool `json:"providers"`
}

// FromOutcome builds the blocking response for outcome.
func FromOutcome(outcome models.Outcome) GenerateResponse {
	return GenerateResponse{
		Response:       outcome.FinalText,
		ModelUsed:      string(outcome.ModelUsed),
		FallbackReason: outcome.FallbackReason,
	}
}

// DeltaFrame is the stream event carrying one delta. Its shape is the
// output_text envelope, so the same decoder reads both directions.
type DeltaFrame struct {
	OutputText string `json:"output_text"`
}

// OutcomeFrame is the last stream event before the terminator.
type OutcomeFrame struct {
	Outcome OutcomeBody `json:"outcome"`
}

// OutcomeBody annotates the streamed reply with its provenance.
type OutcomeBody struct {
	ModelUsed      string `json:"modelUsed"`
	FallbackReason string `json:"fallbackReason,omitempty"`
	Error          string `json:"error,omitempty"`
}

// NewOutcomeFrame builds the closing event for outcome.
func NewOutcomeFrame(outcome models.Outcome) OutcomeFrame {
	return OutcomeFrame{Outcome: OutcomeBody{
		ModelUsed:      string(outcome.ModelUsed),
		FallbackReason: outcome.FallbackReason,
		Error:          outcome.Error,
	}}
}

// ParseOutcomeFrame recognises an outcome event payload.
func ParseOutcomeFrame(raw string) (OutcomeBody, bool) {
	var frame struct {
		Outcome *OutcomeBody `json:"outcome"`
	}
	if err := json.Unmarshal([]byte(raw), &frame); err != nil || frame.Outcome == nil {
		return OutcomeBody{}, false
	}
	return *frame.Outcome, true
}

// WriteFrame writes payload as one "data:" event.
func WriteFrame(w io.Writer, payload any) error {
	data, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshal stream frame: %w", err)
	}
	if _, err := fmt.Fprintf(w, "data: %s\n\n", data); err != nil {
		return fmt.Errorf("write stream frame: %w", err)
	}
	return nil
}

// WriteDone writes the stream terminator.
func WriteDone(w io.Writer) error {
	if _, err := fmt.Fprint(w, "data: [DONE]\n\n"); err != nil {
		return fmt.Errorf("write stream terminator: %w", err)
	}
	return nil
}

// FriendlyMessage returns a short localized explanation for err, or "" when none applies.
func FriendlyMessage(err error) string {
	switch {
	case errors.Is(err, router.ErrNoCredentials):
		return "未配置 OPENAI 或 DEEPSEEK API Key，无法生成回复。"
	case errors.Is(err, router.ErrAllProvidersExhausted):
		return "我们暂时无法生成回复，请稍后重试。"
	case errors.Is(err, provider.ErrMissingCredential):
		return "未配置所选模型的 API Key，请检查服务端配置。"
	case errors.Is(err, relay.ErrStreamTruncated):
		return "回复在生成过程中中断，以上为部分内容。"
	case errors.Is(err, provider.ErrUpstreamRejected):
		return "模型服务暂时不可用，请稍后重试。"
	default:
		return ""
	}
}
