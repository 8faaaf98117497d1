package deepseek

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
	userAgent       = "chat-relay/0.1"
)

// Provider is the chat-completions adapter. It only serves blocking calls.
type Provider struct {
	creds     config.Credentials
	apiKeyEnv string
	model     string
	headers   map[string]string
	chatURL   string
}

var _ provider.Adapter = (*Provider)(nil)

// New creates the adapter from its configuration and the process credentials.
func New(cfg config.ProviderConfig, creds config.Credentials) (*Provider, error) {
	baseURL := strings.TrimRight(cfg.BaseURL, "/")
	if baseURL == "" {
		return nil, errors.New("base url must not be empty")
	}
	if strings.TrimSpace(cfg.Model) == "" {
		return nil, errors.New("model must not be empty")
	}

	return &Provider{
		creds:     creds,
		apiKeyEnv: cfg.APIKeyEnv,
		model:     cfg.Model,
		headers:   cfg.Headers,
		chatURL:   baseURL + "/chat/completions",
	}, nil
}

func (p *Provider) Name() models.ProviderID {
	return models.ProviderDeepSeek
}

func (p *Provider) CheckCredential() error {
	if !p.creds.Has(p.Name()) {
		return provider.MissingCredentialError(p.Name(), p.apiKeyEnv)
	}
	return nil
}

func (p *Provider) SupportsStreaming() bool {
	return false
}

// BuildRequest ignores stream: this upstream is always called in blocking mode.
// The request's ModelID targets the primary provider and is not forwarded here.
func (p *Provider) BuildRequest(ctx context.Context, req models.GenerationRequest, _ bool) (*http.Request, error) {
	if err := p.CheckCredential(); err != nil {
		return nil, err
	}

	payload, err := p.buildPayload(req)
	if err != nil {
		return nil, err
	}

	body, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("marshal payload: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, p.chatURL, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("construct request: %w", err)
	}

	httpReq.Header.Set("Content-Type", contentTypeJSON)
	httpReq.Header.Set("Accept", contentTypeJSON)
	httpReq.Header.Set("User-Agent", userAgent)
	token, _ := p.creds.Token(p.Name())
	httpReq.Header.Set("Authorization", "Bearer "+token)

	for k, v := range p.headers {
		httpReq.Header.Set(k, v)
	}
	return httpReq, nil
}

func (p *Provider) ParseResponse(raw []byte) string {
	return provider.ParseResponse(raw)
}

type chatPayload struct {
	Model    string        `json:"model"`
	Messages []chatMessage `json:"messages"`
}

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

func buildMessages(conversation []models.Message) ([]chatMessage, error) {
	messages := make([]chatMessage, 0, len(conversation))
	for _, msg := range conversation {
		if strings.TrimSpace(msg.Content) == "" {
			return nil, errors.New("message content must not be empty")
		}
		messages = append(messages, chatMessage{Role: msg.Role, Content: msg.Content})
	}
	if len(messages) == 0 {
		return nil, errors.New("at least one message is required")
	}
	return messages, nil
}

func (p *Provider) buildPayload(req models.GenerationRequest) (chatPayload, error) {
	messages, err := buildMessages(req.Conversation())
	if err != nil {
		return chatPayload{}, err
	}
	return chatPayload{Model: p.model, Messages: messages}, nil
}
