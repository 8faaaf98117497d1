package provider

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"chat-relay/internal/models"
)

// ErrMissingCredential indicates a provider's secret is absent or empty.
var ErrMissingCredential = errors.New("missing credential")

// ErrUpstreamRejected indicates the upstream answered with a non-success status.
var ErrUpstreamRejected = errors.New("upstream rejected request")

// MissingCredentialError names the provider and the variable that should hold its secret.
func MissingCredentialError(id models.ProviderID, envName string) error {
	if envName == "" {
		return fmt.Errorf("%w: %s", ErrMissingCredential, id)
	}
	return fmt.Errorf("%w: %s not set", ErrMissingCredential, envName)
}

// UpstreamError carries a non-success upstream status and its best-effort message.
type UpstreamError struct {
	Provider models.ProviderID
	Status   int
	Message  string
}

func (e *UpstreamError) Error() string {
	return fmt.Sprintf("upstream status %d: %s", e.Status, e.Message)
}

func (e *UpstreamError) Unwrap() error {
	return ErrUpstreamRejected
}

// ParseUpstreamError builds an UpstreamError from a rejected response body.
func ParseUpstreamError(id models.ProviderID, status int, body []byte) *UpstreamError {
	return &UpstreamError{
		Provider: id,
		Status:   status,
		Message:  errorMessage(status, body),
	}
}

func errorMessage(status int, body []byte) string {
	var apiErr struct {
		Error   json.RawMessage `json:"error"`
		Message string          `json:"message"`
	}
	if err := json.Unmarshal(body, &apiErr); err == nil {
		var nested struct {
			Message string `json:"message"`
		}
		if err := json.Unmarshal(apiErr.Error, &nested); err == nil && nested.Message != "" {
			return nested.Message
		}
		var plain string
		if err := json.Unmarshal(apiErr.Error, &plain); err == nil && plain != "" {
			return plain
		}
		if apiErr.Message != "" {
			return apiErr.Message
		}
	}

	if text := strings.TrimSpace(string(body)); text != "" {
		return text
	}
	return http.StatusText(status)
}
