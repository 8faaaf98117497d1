package provider

import (
	"context"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"chat-relay/internal/models"
)

func TestParseResponseKnownShapes(t *testing.T) {
	tests := map[string]string{
		`{"choices":[{"message":{"role":"assistant","content":"from chat"}}]}`:                      "from chat",
		`{"output_text":"from responses"}`:                                                          "from responses",
		`{"output":[{"type":"message","content":[{"type":"output_text","text":"from segments"}]}]}`: "from segments",
	}
	for body, want := range tests {
		assert.Equal(t, want, ParseResponse([]byte(body)), body)
	}
}

func TestParseResponseFallsBackToRawBody(t *testing.T) {
	body := `{"result":{"answer":"drifted shape"}}`
	assert.Equal(t, body, ParseResponse([]byte(body)))
	assert.Equal(t, "not json at all", ParseResponse([]byte("not json at all")))
	assert.Equal(t, "", ParseResponse(nil))
}

func TestParseResponseRepairsMalformedJSON(t *testing.T) {
	body := `{"choices":[{"message":{"content":"repaired"}}]`
	assert.Equal(t, "repaired", ParseResponse([]byte(body)))
}

func TestMissingCredentialError(t *testing.T) {
	err := MissingCredentialError(models.ProviderOpenAI, "OPENAI_API_KEY")
	assert.ErrorIs(t, err, ErrMissingCredential)
	assert.Equal(t, "missing credential: OPENAI_API_KEY not set", err.Error())

	err = MissingCredentialError(models.ProviderDeepSeek, "")
	assert.Equal(t, "missing credential: deepseek", err.Error())
}

func TestParseUpstreamError(t *testing.T) {
	tests := []struct {
		name string
		body string
		want string
	}{
		{"nested message", `{"error":{"message":"Incorrect API key provided","type":"invalid_request_error"}}`, "Incorrect API key provided"},
		{"string error", `{"error":"quota exceeded"}`, "quota exceeded"},
		{"top-level message", `{"message":"bad model"}`, "bad model"},
		{"plain body", "  upstream exploded \n", "upstream exploded"},
		{"empty body", "", http.StatusText(http.StatusServiceUnavailable)},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			err := ParseUpstreamError(models.ProviderOpenAI, http.StatusServiceUnavailable, []byte(tc.body))
			assert.Equal(t, tc.want, err.Message)
			assert.Equal(t, http.StatusServiceUnavailable, err.Status)
			assert.ErrorIs(t, err, ErrUpstreamRejected)
			assert.Equal(t, "upstream status 503: "+tc.want, err.Error())
		})
	}
}

type stubAdapter struct {
	id  models.ProviderID
	key string
}

func (s stubAdapter) Name() models.ProviderID { return s.id }

func (s stubAdapter) CheckCredential() error {
	if s.key == "" {
		return MissingCredentialError(s.id, "")
	}
	return nil
}

func (s stubAdapter) BuildRequest(context.Context, models.GenerationRequest, bool) (*http.Request, error) {
	return nil, nil
}

func (s stubAdapter) SupportsStreaming() bool { return false }

func (s stubAdapter) ParseResponse(raw []byte) string { return string(raw) }

func TestRegistry(t *testing.T) {
	r := NewRegistry()

	_, err := r.Lookup(RolePrimary)
	assert.ErrorIs(t, err, ErrUnknownProvider)
	assert.False(t, r.Available(RolePrimary))

	require.NoError(t, r.Register(RolePrimary, stubAdapter{id: models.ProviderOpenAI, key: "k"}))
	require.NoError(t, r.Register(RoleSecondary, stubAdapter{id: models.ProviderDeepSeek}))

	a, err := r.Lookup(RolePrimary)
	require.NoError(t, err)
	assert.Equal(t, models.ProviderOpenAI, a.Name())
	assert.True(t, r.Available(RolePrimary))
	assert.False(t, r.Available(RoleSecondary))

	assert.Error(t, r.Register(RolePrimary, stubAdapter{id: "other"}))
	assert.Error(t, r.Register(Role("tertiary"), stubAdapter{id: "other"}))
	assert.Error(t, r.Register(RolePrimary, nil))
}

func TestRegistryRejectsDuplicateProvider(t *testing.T) {
	r := NewRegistry()
	require.NoError(t, r.Register(RolePrimary, stubAdapter{id: models.ProviderOpenAI}))
	assert.Error(t, r.Register(RoleSecondary, stubAdapter{id: models.ProviderOpenAI}))
}
