package envelope

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestClassify(t *testing.T) {
	tests := []struct {
		name     string
		input    string
		wantKind Kind
		wantText string
		wantOK   bool
	}{
		{"output_text string", `{"output_text":"Hello"}`, KindOutputText, "Hello", true},
		{"output_text list", `{"output_text":["He","llo"]}`, KindOutputText, "Hello", true},
		{
			"output segments",
			`{"output":[{"type":"message","content":[{"type":"output_text","text":"Hi"},{"type":"output_text","text":" there"}]}]}`,
			KindSegments, "Hi there", true,
		},
		{"bare string segments", `{"output":["a","b"]}`, KindSegments, "ab", true},
		{"chat delta", `{"choices":[{"delta":{"content":"tok"}}]}`, KindChoice, "tok", true},
		{"chat message", `{"choices":[{"message":{"role":"assistant","content":"full"}}]}`, KindChoice, "full", true},
		{"completion text", `{"choices":[{"text":"legacy"}]}`, KindChoice, "legacy", true},
		{"finish chunk", `{"choices":[{"delta":{},"finish_reason":"stop"}]}`, KindChoice, "", true},
		{"top-level delta", `{"type":"response.output_text.delta","delta":"x"}`, KindChoice, "x", true},
		{"lifecycle event", `{"type":"response.created","response":{"id":"r1"}}`, KindUnrecognized, "", false},
		{"scalar", `42`, KindScalar, "42", true},
		{"not json", `plain words`, KindRaw, "plain words", true},
		{"cut-off json", `{"output_text":"Hel`, KindRaw, `{"output_text":"Hel`, true},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			env := Classify([]byte(tc.input))
			assert.Equal(t, tc.wantKind, env.Kind, "kind %s", env.Kind)
			text, ok := env.Text()
			assert.Equal(t, tc.wantOK, ok)
			assert.Equal(t, tc.wantText, text)
			assert.Equal(t, tc.input, env.Raw)
		})
	}
}

func TestClassifyPrefersOutputTextOverSegments(t *testing.T) {
	env := Classify([]byte(`{"output_text":"top","output":[{"text":"nested"}],"choices":[{"text":"c"}]}`))
	assert.Equal(t, KindOutputText, env.Kind)
	text, _ := env.Text()
	assert.Equal(t, "top", text)
}

func TestClassifySegmentsBeforeChoice(t *testing.T) {
	env := Classify([]byte(`{"output":[{"text":"seg"}],"choices":[{"text":"c"}]}`))
	assert.Equal(t, KindSegments, env.Kind)
}

func TestKindString(t *testing.T) {
	assert.Equal(t, "output_text", KindOutputText.String())
	assert.Equal(t, "unrecognized", KindUnrecognized.String())
	assert.Equal(t, "unknown", Kind(99).String())
}
