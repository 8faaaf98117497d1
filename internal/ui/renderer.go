package ui

import (
	"fmt"
	"io"
	"strings"
	"sync"

	"github.com/fatih/color"

	"chat-relay/internal/client"
)

// Terminal prints transcript changes as they happen. Updates replace the
// whole message text, so only the unseen suffix is written; a reply that
// was rewritten is printed again in full.
type Terminal struct {
	mu      sync.Mutex
	out     io.Writer
	spinner *Spinner

	activeID int
	printed  string

	cyan   *color.Color
	dim    *color.Color
	yellow *color.Color
	red    *color.Color
}

var _ client.Renderer = (*Terminal)(nil)

// NewTerminal writes replies to out and the spinner to status.
func NewTerminal(out, status io.Writer) *Terminal {
	return &Terminal{
		out:     out,
		spinner: NewSpinner(status, "Thinking..."),
		cyan:    color.New(color.FgCyan, color.Bold),
		dim:     color.New(color.FgHiBlack),
		yellow:  color.New(color.FgYellow),
		red:     color.New(color.FgRed),
	}
}

func (t *Terminal) OnAppend(m client.Message) {
	t.mu.Lock()
	defer t.mu.Unlock()

	switch m.Role {
	case client.RoleAssistant:
		t.activeID = m.ID
		t.printed = ""
		if m.Status == client.StatusInProgress && m.Text == "" {
			t.spinner.Start()
			return
		}
		t.spinner.Stop()
		t.cyan.Fprint(t.out, "  ai → ")
		t.write(m.Text)
		t.finish(m)
	case client.RoleNotice:
		t.spinner.Stop()
		t.red.Fprintf(t.out, "  ✗ %s\n\n", m.Text)
	}
}

func (t *Terminal) OnUpdate(m client.Message) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if m.Role != client.RoleAssistant || m.ID != t.activeID {
		return
	}

	if m.Text != "" {
		t.spinner.Stop()
		switch {
		case t.printed == "":
			t.cyan.Fprint(t.out, "  ai → ")
			t.write(m.Text)
		case strings.HasPrefix(m.Text, t.printed):
			t.write(m.Text[len(t.printed):])
		default:
			t.dim.Fprint(t.out, "\n  (rewritten)\n")
			t.cyan.Fprint(t.out, "  ai → ")
			t.printed = ""
			t.write(m.Text)
		}
	}

	if m.Status != client.StatusInProgress {
		t.spinner.Stop()
		t.finish(m)
	}
}

func (t *Terminal) OnRemove(m client.Message) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if m.ID != t.activeID {
		return
	}
	t.spinner.Stop()
	if t.printed != "" {
		fmt.Fprintln(t.out)
	}
	t.activeID = 0
	t.printed = ""
}

func (t *Terminal) write(s string) {
	fmt.Fprint(t.out, s)
	t.printed += s
}

func (t *Terminal) finish(m client.Message) {
	fmt.Fprintln(t.out)
	switch m.Status {
	case client.StatusCancelled:
		t.yellow.Fprintln(t.out, "  [cancelled]")
	case client.StatusError:
		t.red.Fprintf(t.out, "  [error: %s]\n", m.Err)
	}
	if m.ModelUsed != "" {
		t.dim.Fprintf(t.out, "  via %s", m.ModelUsed)
		if m.FallbackReason != "" {
			t.yellow.Fprintf(t.out, " (fallback: %s)", m.FallbackReason)
		}
		fmt.Fprintln(t.out)
	}
	fmt.Fprintln(t.out)
	t.activeID = 0
	t.printed = ""
}
