package provider

import (
	"context"
	"encoding/json"
	"net/http"
	"strings"

	"github.com/kaptinlin/jsonrepair"

	"chat-relay/internal/envelope"
	"chat-relay/internal/models"
)

// Adapter encapsulates one upstream's request shape, response shape and streaming capability.
type Adapter interface {
	Name() models.ProviderID
	// CheckCredential returns an ErrMissingCredential error when the secret is absent.
	CheckCredential() error
	// BuildRequest translates req into an upstream call. It fails with
	// ErrMissingCredential before any I/O when the secret is absent.
	BuildRequest(ctx context.Context, req models.GenerationRequest, stream bool) (*http.Request, error)
	SupportsStreaming() bool
	// ParseResponse extracts reply text from a non-streaming body. It never fails.
	ParseResponse(raw []byte) string
}

// ParseResponse is the tolerant non-streaming parse shared by adapters.
// It recognises the message-content and output-text envelopes, repairs
// malformed JSON where possible, and otherwise returns the raw body.
func ParseResponse(raw []byte) string {
	if text, ok := recognisedText(envelope.Classify(raw)); ok {
		return text
	}

	trimmed := strings.TrimSpace(string(raw))
	if trimmed != "" && !json.Valid(raw) {
		if repaired, err := jsonrepair.JSONRepair(trimmed); err == nil {
			if text, ok := recognisedText(envelope.Classify([]byte(repaired))); ok {
				return text
			}
		}
	}
	return string(raw)
}

func recognisedText(env envelope.Envelope) (string, bool) {
	switch env.Kind {
	case envelope.KindOutputText, envelope.KindSegments, envelope.KindChoice:
		return env.Text()
	case envelope.KindRaw, envelope.KindScalar, envelope.KindUnrecognized:
		return "", false
	default:
		return "", false
	}
}
