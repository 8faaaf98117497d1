package translator

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"chat-relay/internal/models"
)

// DefaultGreeting is sent when a request carries neither a prompt nor messages.
const DefaultGreeting = "Hello, world! Please respond with a simple greeting."

var (
	errInvalidRole    = errors.New("invalid role")
	errInvalidContent = errors.New("invalid message content")
	errInvalidPrompt  = errors.New("unsupported prompt type")
)

var allowedRoles = map[string]struct{}{
	"system":    {},
	"user":      {},
	"assistant": {},
}

// GenerateRequest models the downstream generation request payload.
type GenerateRequest struct {
	Prompt   string
	Messages []ChatMessage
	Model    string
	ModelID  string
}

// UnmarshalJSON accepts "input" or "prompt" for the prompt, "model" for the
// provider preference and "openaiModel" or "modelId" for the model override.
func (r *GenerateRequest) UnmarshalJSON(data []byte) error {
	type alias struct {
		Input       json.RawMessage `json:"input"`
		Prompt      json.RawMessage `json:"prompt"`
		Messages    []ChatMessage   `json:"messages"`
		Model       string          `json:"model"`
		OpenAIModel string          `json:"openaiModel"`
		ModelID     string          `json:"modelId"`
	}

	var raw alias
	if err := json.Unmarshal(data, &raw); err != nil {
		return fmt.Errorf("decode generate request: %w", err)
	}

	promptRaw := raw.Input
	if len(promptRaw) == 0 {
		promptRaw = raw.Prompt
	}
	prompt, err := extractPrompt(promptRaw)
	if err != nil {
		return err
	}

	r.Prompt = prompt
	r.Messages = raw.Messages
	r.Model = strings.TrimSpace(raw.Model)
	r.ModelID = strings.TrimSpace(raw.OpenAIModel)
	if r.ModelID == "" {
		r.ModelID = strings.TrimSpace(raw.ModelID)
	}
	return nil
}

// ToGeneration converts the request into its canonical form. Without an
// explicit prompt, a trailing user message becomes the prompt; with neither,
// fallbackPrompt is used.
func (r GenerateRequest) ToGeneration(fallbackPrompt string) models.GenerationRequest {
	prior := make([]models.Message, 0, len(r.Messages))
	for _, m := range r.Messages {
		prior = append(prior, models.Message{Role: m.Role, Content: m.Content})
	}

	prompt := r.Prompt
	if strings.TrimSpace(prompt) == "" && len(prior) > 0 && prior[len(prior)-1].Role == "user" {
		prompt = prior[len(prior)-1].Content
		prior = prior[:len(prior)-1]
	}
	if strings.TrimSpace(prompt) == "" && len(prior) == 0 {
		prompt = fallbackPrompt
	}

	return models.GenerationRequest{
		Prompt:        prompt,
		PriorMessages: prior,
		Preference:    models.ParsePreference(r.Model),
		ModelID:       r.ModelID,
	}
}

// ChatMessage captures a single prior turn within the request.
type ChatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// UnmarshalJSON supports string and array-of-text content formats.
func (m *ChatMessage) UnmarshalJSON(data []byte) error {
	type alias struct {
		Role    string          `json:"role"`
		Content json.RawMessage `json:"content"`
	}

	var raw alias
	if err := json.Unmarshal(data, &raw); err != nil {
		return fmt.Errorf("decode message: %w", err)
	}

	content, err := extractMessageContent(raw.Content)
	if err != nil {
		return err
	}

	m.Role = strings.TrimSpace(raw.Role)
	m.Content = content
	return m.validate()
}

func (m *ChatMessage) validate() error {
	if _, ok := allowedRoles[m.Role]; !ok {
		return fmt.Errorf("%w: %s", errInvalidRole, m.Role)
	}
	if strings.TrimSpace(m.Content) == "" {
		return fmt.Errorf("%w: message content must not be empty", errInvalidContent)
	}
	return nil
}

func extractMessageContent(raw json.RawMessage) (string, error) {
	if raw == nil {
		return "", fmt.Errorf("%w: missing content", errInvalidContent)
	}

	var text string
	if err := json.Unmarshal(raw, &text); err == nil {
		return text, nil
	}

	var segments []struct {
		Type string `json:"type"`
		Text string `json:"text"`
	}
	if err := json.Unmarshal(raw, &segments); err == nil {
		var builder strings.Builder
		for _, segment := range segments {
			if segment.Type != "text" {
				return "", fmt.Errorf("%w: segment type %q not supported", errInvalidContent, segment.Type)
			}
			builder.WriteString(segment.Text)
		}
		return builder.String(), nil
	}

	return "", fmt.Errorf("%w: unsupported content structure", errInvalidContent)
}

func extractPrompt(raw json.RawMessage) (string, error) {
	if len(raw) == 0 || string(raw) == "null" {
		return "", nil
	}
	var text string
	if err := json.Unmarshal(raw, &text); err == nil {
		return text, nil
	}

	var parts []string
	if err := json.Unmarshal(raw, &parts); err == nil {
		return strings.Join(parts, "\n"), nil
	}

	return "", errInvalidPrompt
}

// PlannerPrompt builds the itinerary-planner instruction from a conversation.
func PlannerPrompt(messages []ChatMessage) string {
	lines := make([]string, 0, len(messages))
	for _, m := range messages {
		lines = append(lines, m.Role+": "+m.Content)
	}
	return "You are a helpful travel planner. Based on the conversation below, generate a concise, " +
		"day-by-day itinerary in Markdown. Include travel dates if mentioned, top activities, a short " +
		"summary for each day, and practical tips (transport, packing, estimated budget). Conversation:\n\n" +
		strings.Join(lines, "\n")
}
