package ui

import (
	"bytes"
	"io"
	"testing"

	"github.com/fatih/color"
	"github.com/stretchr/testify/assert"

	"chat-relay/internal/client"
)

func newTestTerminal(t *testing.T) (*Terminal, *bytes.Buffer) {
	t.Helper()
	prev := color.NoColor
	color.NoColor = true
	t.Cleanup(func() { color.NoColor = prev })

	var out bytes.Buffer
	return NewTerminal(&out, io.Discard), &out
}

func reply(id int, text string, status client.Status) client.Message {
	return client.Message{ID: id, Role: client.RoleAssistant, Text: text, Status: status}
}

func TestTerminalPrintsOnlyNewSuffix(t *testing.T) {
	term, out := newTestTerminal(t)

	term.OnAppend(client.Message{ID: 1, Role: client.RoleUser, Text: "hi", Status: client.StatusComplete})
	term.OnAppend(reply(2, "", client.StatusInProgress))
	term.OnUpdate(reply(2, "Hel", client.StatusInProgress))
	term.OnUpdate(reply(2, "Hello", client.StatusInProgress))

	done := reply(2, "Hello", client.StatusComplete)
	done.ModelUsed = "openai"
	term.OnUpdate(done)

	assert.Equal(t, "  ai → Hello\n  via openai\n\n", out.String())
}

func TestTerminalReprintsRewrittenReply(t *testing.T) {
	term, out := newTestTerminal(t)

	term.OnAppend(reply(1, "", client.StatusInProgress))
	term.OnUpdate(reply(1, "Hello", client.StatusInProgress))
	term.OnUpdate(reply(1, "Howdy", client.StatusInProgress))

	assert.Equal(t, "  ai → Hello\n  (rewritten)\n  ai → Howdy", out.String())
}

func TestTerminalMarksCancelledAndFailedReplies(t *testing.T) {
	term, out := newTestTerminal(t)

	term.OnAppend(reply(1, "", client.StatusInProgress))
	term.OnUpdate(reply(1, "part", client.StatusInProgress))
	term.OnUpdate(reply(1, "part", client.StatusCancelled))
	assert.Equal(t, "  ai → part\n  [cancelled]\n\n", out.String())

	out.Reset()
	term.OnAppend(reply(2, "", client.StatusInProgress))
	term.OnUpdate(reply(2, "one", client.StatusInProgress))
	failed := reply(2, "one", client.StatusError)
	failed.Err = "stream ended early"
	failed.ModelUsed = "deepseek"
	failed.FallbackReason = "upstream status 500"
	term.OnUpdate(failed)
	assert.Equal(t, "  ai → one\n  [error: stream ended early]\n  via deepseek (fallback: upstream status 500)\n\n", out.String())
}

func TestTerminalRemoveAndNotice(t *testing.T) {
	term, out := newTestTerminal(t)

	term.OnAppend(reply(1, "", client.StatusInProgress))
	term.OnRemove(reply(1, "", client.StatusInProgress))
	assert.Empty(t, out.String())

	complete := reply(2, "from retry", client.StatusComplete)
	complete.ModelUsed = "deepseek"
	term.OnAppend(complete)
	assert.Equal(t, "  ai → from retry\n  via deepseek\n\n", out.String())

	out.Reset()
	term.OnAppend(client.Message{ID: 3, Role: client.RoleNotice, Text: "未配置 API Key", Status: client.StatusError})
	assert.Equal(t, "  ✗ 未配置 API Key\n\n", out.String())
}

func TestTerminalIgnoresStaleUpdates(t *testing.T) {
	term, out := newTestTerminal(t)

	term.OnAppend(reply(1, "", client.StatusInProgress))
	term.OnUpdate(reply(7, "other", client.StatusInProgress))
	assert.Empty(t, out.String())
}

func TestSpinnerStartStopIsIdempotent(t *testing.T) {
	sp := NewSpinner(io.Discard, "waiting")
	sp.Stop()
	sp.Start()
	sp.Start()
	sp.Stop()
	sp.Stop()
	assert.False(t, sp.running)
}
