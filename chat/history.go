package chat

import (
	"sync"
)

// History is the ordered, append-mostly collection of messages for the active
// conversation. It is the single source of truth for what the shell renders.
//
// All mutations go through History methods; entries handed out via Snapshot
// must be treated as read-only. Updates are last-write-wins per message id.
type History struct {
	mu       sync.RWMutex
	messages []*Message
	onChange func([]*Message)
}

func NewHistory() *History {
	return &History{}
}

// SetOnChange registers the render callback. It is invoked with a fresh
// snapshot after every mutation, outside the history lock.
func (h *History) SetOnChange(fn func([]*Message)) {
	h.mu.Lock()
	h.onChange = fn
	h.mu.Unlock()
}

// Snapshot returns a copy of the visible list. The returned slice is owned by
// the caller; the entries are shared and must not be mutated.
func (h *History) Snapshot() []*Message {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.snapshotLocked()
}

func (h *History) snapshotLocked() []*Message {
	out := make([]*Message, len(h.messages))
	copy(out, h.messages)
	return out
}

// Append adds messages in one update. The send path appends the outbound
// user message and its typing placeholder together so no intermediate render
// shows one without the other.
func (h *History) Append(messages ...*Message) {
	h.mu.Lock()
	h.messages = append(h.messages, messages...)
	fn, snap := h.onChange, h.snapshotLocked()
	h.mu.Unlock()
	if fn != nil {
		fn(snap)
	}
}

// Update replaces the message with the given id by the result of fn. Returns
// false when the id is not present. fn receives a copy, so concurrent readers
// never observe a half-applied update.
func (h *History) Update(id string, fn func(Message) Message) bool {
	h.mu.Lock()
	idx := -1
	for i, m := range h.messages {
		if m.ID == id {
			idx = i
			break
		}
	}
	if idx < 0 {
		h.mu.Unlock()
		return false
	}
	updated := fn(*h.messages[idx])
	updated.ID = id // the id is the identity, never rewritable
	h.messages[idx] = &updated
	notify, snap := h.onChange, h.snapshotLocked()
	h.mu.Unlock()
	if notify != nil {
		notify(snap)
	}
	return true
}

// Get returns the message with the given id.
func (h *History) Get(id string) (*Message, bool) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	for _, m := range h.messages {
		if m.ID == id {
			return m, true
		}
	}
	return nil, false
}

// At returns the message at index i, or nil when out of range.
func (h *History) At(i int) *Message {
	h.mu.RLock()
	defer h.mu.RUnlock()
	if i < 0 || i >= len(h.messages) {
		return nil
	}
	return h.messages[i]
}

func (h *History) Len() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.messages)
}

// Replace swaps the whole list, used when loading a conversation.
func (h *History) Replace(messages []*Message) {
	h.mu.Lock()
	h.messages = make([]*Message, len(messages))
	copy(h.messages, messages)
	fn, snap := h.onChange, h.snapshotLocked()
	h.mu.Unlock()
	if fn != nil {
		fn(snap)
	}
}

// Reset clears the list (new conversation).
func (h *History) Reset() {
	h.Replace(nil)
}

// TruncateFrom drops the message at index and everything after it.
// Regeneration is truncate + resend.
func (h *History) TruncateFrom(index int) {
	h.mu.Lock()
	if index < 0 || index >= len(h.messages) {
		h.mu.Unlock()
		return
	}
	h.messages = h.messages[:index]
	fn, snap := h.onChange, h.snapshotLocked()
	h.mu.Unlock()
	if fn != nil {
		fn(snap)
	}
}
