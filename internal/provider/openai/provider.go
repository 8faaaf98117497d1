package openai

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"chat-relay/internal/config"
	"chat-relay/internal/models"
	"chat-relay/internal/provider"
)

const (
	contentTypeJSON = "application/json"
	eventStream     = "text/event-stream"
	userAgent       = "chat-relay/0.1"
)

// Provider is the Responses-style streaming adapter.
type Provider struct {
	creds        config.Credentials
	apiKeyEnv    string
	model        string
	headers      map[string]string
	responsesURL string
}

var _ provider.Adapter = (*Provider)(nil)

// New creates the adapter from its configuration and the process credentials.
// The secret may be absent; BuildRequest reports that at call time.
func New(cfg config.ProviderConfig, creds config.Credentials) (*Provider, error) {
	baseURL := strings.TrimRight(cfg.BaseURL, "/")
	if baseURL == "" {
		return nil, errors.New("base url must not be empty")
	}
	if strings.TrimSpace(cfg.Model) == "" {
		return nil, errors.New("model must not be empty")
	}

	return &Provider{
		creds:        creds,
		apiKeyEnv:    cfg.APIKeyEnv,
		model:        cfg.Model,
		headers:      cfg.Headers,
		responsesURL: baseURL + "/responses",
	}, nil
}

func (p *Provider) Name() models.ProviderID {
	return models.ProviderOpenAI
}

func (p *Provider) CheckCredential() error {
	if !p.creds.Has(p.Name()) {
		return provider.MissingCredentialError(p.Name(), p.apiKeyEnv)
	}
	return nil
}

func (p *Provider) SupportsStreaming() bool {
	return true
}

func (p *Provider) BuildRequest(ctx context.Context, req models.GenerationRequest, stream bool) (*http.Request, error) {
	if err := p.CheckCredential(); err != nil {
		return nil, err
	}

	payload, err := p.buildPayload(req, stream)
	if err != nil {
		return nil, err
	}

	body, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("marshal payload: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, p.responsesURL, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("construct request: %w", err)
	}

	httpReq.Header.Set("Content-Type", contentTypeJSON)
	httpReq.Header.Set("User-Agent", userAgent)
	token, _ := p.creds.Token(p.Name())
	httpReq.Header.Set("Authorization", "Bearer "+token)
	if stream {
		httpReq.Header.Set("Accept", eventStream)
	} else {
		httpReq.Header.Set("Accept", contentTypeJSON)
	}

	for k, v := range p.headers {
		httpReq.Header.Set(k, v)
	}
	return httpReq, nil
}

func (p *Provider) ParseResponse(raw []byte) string {
	return provider.ParseResponse(raw)
}

type responsesPayload struct {
	Model  string `json:"model"`
	Input  any    `json:"input"`
	Stream bool   `json:"stream,omitempty"`
}

type inputMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

func (p *Provider) buildPayload(req models.GenerationRequest, stream bool) (responsesPayload, error) {
	model := p.model
	if strings.TrimSpace(req.ModelID) != "" {
		model = strings.TrimSpace(req.ModelID)
	}

	payload := responsesPayload{
		Model:  model,
		Stream: stream,
	}

	if len(req.PriorMessages) == 0 {
		if strings.TrimSpace(req.Prompt) == "" {
			return responsesPayload{}, errors.New("prompt must not be empty")
		}
		payload.Input = req.Prompt
		return payload, nil
	}

	conversation := req.Conversation()
	messages := make([]inputMessage, 0, len(conversation))
	for _, msg := range conversation {
		messages = append(messages, inputMessage{Role: msg.Role, Content: msg.Content})
	}
	payload.Input = messages
	return payload, nil
}
