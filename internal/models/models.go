package models

import "strings"

// ProviderID names an upstream provider.
type ProviderID string

const (
	ProviderOpenAI   ProviderID = "openai"
	ProviderDeepSeek ProviderID = "deepseek"
)

// Preference selects which provider a request should try first.
type Preference string

const (
	PreferPrimary   Preference = "primary"
	PreferSecondary Preference = "secondary"
	PreferAuto      Preference = "auto"
)

// ParsePreference maps the downstream model selector onto a Preference.
// Unknown or empty selectors behave like auto.
func ParsePreference(value string) Preference {
	switch strings.ToLower(strings.TrimSpace(value)) {
	case "primary", "chatgpt", "openai":
		return PreferPrimary
	case "secondary", "deepseek":
		return PreferSecondary
	default:
		return PreferAuto
	}
}

// Message represents a single prior conversational turn.
type Message struct {
	Role    string
	Content string
}

// GenerationRequest is one logical "generate a reply" request.
type GenerationRequest struct {
	Prompt        string
	PriorMessages []Message
	Preference    Preference
	ModelID       string
}

// Conversation returns the prior turns followed by the prompt as a user turn.
func (r GenerationRequest) Conversation() []Message {
	out := make([]Message, 0, len(r.PriorMessages)+1)
	out = append(out, r.PriorMessages...)
	if strings.TrimSpace(r.Prompt) != "" {
		out = append(out, Message{Role: "user", Content: r.Prompt})
	}
	return out
}

// Delta is one incremental fragment of generated text.
type Delta struct {
	Text string
}

// Outcome records how a generation request was ultimately served.
type Outcome struct {
	ModelUsed      ProviderID
	FallbackReason string
	FinalText      string
	// Error annotates a best-effort outcome, e.g. a stream that ended early.
	Error string
}
