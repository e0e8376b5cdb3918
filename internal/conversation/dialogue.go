package conversation

import "github.com/weny945/home-pi/pkg/provider/llm"

// defaultHistoryTurns bounds the dialogue history when the caller does not.
const defaultHistoryTurns = 10

// Dialogue is the bounded chat history for one conversation. It keeps the
// most recent turns so the model sees context without the prompt growing
// unbounded on a long session. Not safe for concurrent use; the loop owns
// it.
type Dialogue struct {
	maxTurns int
	msgs     []llm.Message
}

// NewDialogue creates a history holding at most maxTurns user/assistant
// pairs.
func NewDialogue(maxTurns int) *Dialogue {
	if maxTurns <= 0 {
		maxTurns = defaultHistoryTurns
	}
	return &Dialogue{maxTurns: maxTurns}
}

// AddUser appends a user turn.
func (d *Dialogue) AddUser(text string) { d.add("user", text) }

// AddAssistant appends an assistant turn.
func (d *Dialogue) AddAssistant(text string) { d.add("assistant", text) }

func (d *Dialogue) add(role, content string) {
	d.msgs = append(d.msgs, llm.Message{Role: role, Content: content})
	if max := d.maxTurns * 2; len(d.msgs) > max {
		d.msgs = d.msgs[len(d.msgs)-max:]
	}
}

// Messages returns a copy of the history, oldest first.
func (d *Dialogue) Messages() []llm.Message {
	out := make([]llm.Message, len(d.msgs))
	copy(out, d.msgs)
	return out
}

// Len reports the number of stored turns.
func (d *Dialogue) Len() int { return len(d.msgs) }

// Reset clears the history. A new conversation starts clean.
func (d *Dialogue) Reset() { d.msgs = d.msgs[:0] }
