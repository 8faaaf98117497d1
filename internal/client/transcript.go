package client

import (
	"slices"
	"sync"
)

// Status is the lifecycle state of a transcript message.
type Status int

const (
	StatusInProgress Status = iota
	StatusComplete
	StatusCancelled
	StatusError
)

func (s Status) String() string {
	switch s {
	case StatusInProgress:
		return "in-progress"
	case StatusComplete:
		return "complete"
	case StatusCancelled:
		return "cancelled"
	case StatusError:
		return "error"
	default:
		return "unknown"
	}
}

// Roles used in the transcript. RoleNotice marks a standalone error notice.
const (
	RoleUser      = "user"
	RoleAssistant = "assistant"
	RoleNotice    = "notice"
)

// Message is one visible transcript entry.
type Message struct {
	ID             int
	Role           string
	Text           string
	Status         Status
	ModelUsed      string
	FallbackReason string
	Err            string
}

// Renderer is notified of every transcript change. Callbacks run on the
// goroutine that made the change, after the transcript lock is released.
type Renderer interface {
	OnAppend(Message)
	OnUpdate(Message)
	OnRemove(Message)
}

// Transcript is the ordered list of messages shown to the user.
type Transcript struct {
	mu       sync.Mutex
	messages []Message
	nextID   int
	renderer Renderer
}

// NewTranscript returns an empty transcript. renderer may be nil.
func NewTranscript(renderer Renderer) *Transcript {
	return &Transcript{renderer: renderer}
}

// Messages returns a snapshot of the transcript.
func (t *Transcript) Messages() []Message {
	t.mu.Lock()
	defer t.mu.Unlock()
	return slices.Clone(t.messages)
}

// History returns the completed exchanges worth forwarding as context for the
// next request: each user turn paired with the assistant reply that finished
// it. Notices, unanswered prompts and cancelled or failed replies are left out.
func (t *Transcript) History() []Message {
	t.mu.Lock()
	defer t.mu.Unlock()

	out := make([]Message, 0, len(t.messages))
	for i, m := range t.messages {
		if m.Role != RoleUser || i+1 >= len(t.messages) {
			continue
		}
		reply := t.messages[i+1]
		if reply.Role != RoleAssistant || reply.Status != StatusComplete || reply.Text == "" {
			continue
		}
		out = append(out, m, reply)
	}
	return out
}

func (t *Transcript) append(m Message) Message {
	t.mu.Lock()
	t.nextID++
	m.ID = t.nextID
	t.messages = append(t.messages, m)
	t.mu.Unlock()

	if t.renderer != nil {
		t.renderer.OnAppend(m)
	}
	return m
}

// update applies fn to the message with id. It reports false if the message is gone.
func (t *Transcript) update(id int, fn func(*Message)) (Message, bool) {
	t.mu.Lock()
	idx := t.index(id)
	if idx < 0 {
		t.mu.Unlock()
		return Message{}, false
	}
	fn(&t.messages[idx])
	m := t.messages[idx]
	t.mu.Unlock()

	if t.renderer != nil {
		t.renderer.OnUpdate(m)
	}
	return m, true
}

func (t *Transcript) remove(id int) {
	t.mu.Lock()
	idx := t.index(id)
	if idx < 0 {
		t.mu.Unlock()
		return
	}
	m := t.messages[idx]
	t.messages = slices.Delete(t.messages, idx, idx+1)
	t.mu.Unlock()

	if t.renderer != nil {
		t.renderer.OnRemove(m)
	}
}

func (t *Transcript) index(id int) int {
	return slices.IndexFunc(t.messages, func(m Message) bool { return m.ID == id })
}
