// Package aggregate maintains the conversation context around the language
// model stage. A user-side aggregator collects committed transcriptions into
// user turns and triggers response generation; an assistant-side aggregator
// collects the text that was actually spoken back into assistant turns.
// Both share one Conversation so the context stays consistent across turns
// and interruptions.
package aggregate

import (
	"sync"

	"github.com/voxpipe/voxpipe/pkg/frame"
)

// Conversation is the shared, goroutine-safe message history for one
// session. The user aggregator appends user turns and snapshots the history
// for generation; the assistant aggregator appends assistant turns, possibly
// truncated by an interruption.
type Conversation struct {
	mu       sync.Mutex
	messages []frame.Message
}

// NewConversation creates a conversation seeded with the given messages
// (typically a system prompt).
func NewConversation(seed ...frame.Message) *Conversation {
	c := &Conversation{}
	c.messages = append(c.messages, seed...)
	return c
}

// Append adds messages to the history.
func (c *Conversation) Append(msgs ...frame.Message) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.messages = append(c.messages, msgs...)
}

// Replace swaps the entire history.
func (c *Conversation) Replace(msgs []frame.Message) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.messages = make([]frame.Message, len(msgs))
	copy(c.messages, msgs)
}

// Snapshot returns a copy of the current history.
func (c *Conversation) Snapshot() []frame.Message {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]frame.Message, len(c.messages))
	copy(out, c.messages)
	return out
}

// Len returns the number of messages in the history.
func (c *Conversation) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.messages)
}
