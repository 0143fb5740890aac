package ai

import (
	"sync/atomic"

	"github.com/cloudwego/eino/schema"
	"github.com/google/uuid"
)

// OpeningSentinel is the fixed pseudo-input for the first exchange of every
// conversation. It is distinct from any real user text so the tutor persona
// always speaks first.
const OpeningSentinel = "[conversation start]"

// Dialogue is the conversation context handed out by Open. It owns the system
// prompt and the rolling turn history the chain is replayed against. Turns
// are driven by a single connection at a time; only the closed flag may be
// observed from connection-teardown paths.
type Dialogue struct {
	ID     string
	system string

	history []*schema.Message
	closed  atomic.Bool
}

func newDialogue(systemPrompt string) *Dialogue {
	return &Dialogue{
		ID:      uuid.NewString(),
		system:  systemPrompt,
		history: make([]*schema.Message, 0, 16),
	}
}

// Extend appends a completed exchange to the history.
func (d *Dialogue) Extend(userText string, reply *schema.Message) {
	if d.closed.Load() || reply == nil {
		return
	}
	d.history = append(d.history, schema.UserMessage(userText), schema.AssistantMessage(reply.Content, nil))
}

// Close discards the dialogue context. Further use is a no-op; the provider
// side holds no server state for closed dialogues.
func (d *Dialogue) Close() {
	d.closed.Store(true)
	d.history = nil
}

// Closed reports whether Close has been called.
func (d *Dialogue) Closed() bool {
	return d.closed.Load()
}

// window returns the most recent history entries up to limit.
func (d *Dialogue) window(limit int) []*schema.Message {
	if len(d.history) == 0 {
		return nil
	}

	start := 0
	if len(d.history) > limit {
		start = len(d.history) - limit
	}

	out := make([]*schema.Message, len(d.history)-start)
	copy(out, d.history[start:])
	return out
}
