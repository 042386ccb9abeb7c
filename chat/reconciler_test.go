package chat

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestReconciler(t *testing.T) (*Reconciler, *History, *Message) {
	t.Helper()
	h := NewHistory()
	placeholder := NewTypingPlaceholder()
	h.Append(NewUserMessage("question"), placeholder)
	return NewReconciler(h, 5*time.Millisecond), h, placeholder
}

func TestReconcilerStreamsIntoPlaceholder(t *testing.T) {
	r, h, placeholder := newTestReconciler(t)

	require.NoError(t, r.Begin(placeholder.ID, true))
	r.Append("Hello")
	r.Append(", world")

	waitFor(t, func() bool {
		m, _ := h.Get(placeholder.ID)
		return m != nil && m.Text == "Hello, world"
	})

	m, _ := h.Get(placeholder.ID)
	assert.True(t, m.IsTyping)

	r.Finalize(nil)
	m, _ = h.Get(placeholder.ID)
	assert.False(t, m.IsTyping)
	assert.Equal(t, "Hello, world", m.Text)
}

func TestReconcilerRejectsSecondBegin(t *testing.T) {
	r, _, placeholder := newTestReconciler(t)

	require.NoError(t, r.Begin(placeholder.ID, true))
	assert.ErrorIs(t, r.Begin("another", true), ErrReplyInFlight)
	r.Finalize(nil)

	// Once finalized a new reply can begin.
	assert.NoError(t, r.Begin("another", false))
}

func TestReconcilerEmptyStreamFallback(t *testing.T) {
	r, h, placeholder := newTestReconciler(t)

	require.NoError(t, r.Begin(placeholder.ID, true))
	r.Finalize(nil)

	m, _ := h.Get(placeholder.ID)
	assert.Equal(t, noResponseText, m.Text)
	assert.False(t, m.IsTyping)
}

func TestReconcilerSingleShotShowsProcessing(t *testing.T) {
	r, h, placeholder := newTestReconciler(t)

	require.NoError(t, r.Begin(placeholder.ID, false))

	m, _ := h.Get(placeholder.ID)
	assert.Equal(t, processingText, m.Text)

	r.Finalize(&CompletionResult{Text: "a poem", ImageURL: "https://cdn.test/img.png"})

	m, _ = h.Get(placeholder.ID)
	assert.Equal(t, "a poem", m.Text)
	require.NotNil(t, m.Attachment)
	assert.Equal(t, AttachmentImage, m.Attachment.Kind)
	assert.Equal(t, "https://cdn.test/img.png", m.Attachment.URI)
}

func TestReconcilerAudioResult(t *testing.T) {
	r, h, placeholder := newTestReconciler(t)

	require.NoError(t, r.Begin(placeholder.ID, false))
	r.Finalize(&CompletionResult{AudioURL: "https://cdn.test/clip.mp3"})

	m, _ := h.Get(placeholder.ID)
	assert.Equal(t, noResponseText, m.Text)
	require.NotNil(t, m.Attachment)
	assert.Equal(t, AttachmentAudio, m.Attachment.Kind)
}

func TestReconcilerFinalizeError(t *testing.T) {
	r, h, placeholder := newTestReconciler(t)

	require.NoError(t, r.Begin(placeholder.ID, true))
	r.Append("partial")
	r.FinalizeError("خطا: connection reset")

	m, _ := h.Get(placeholder.ID)
	assert.Equal(t, "خطا: connection reset", m.Text)
	assert.False(t, m.IsTyping)
	assert.False(t, r.Active())
}

func TestReconcilerNoFlushAfterFinalize(t *testing.T) {
	r, h, placeholder := newTestReconciler(t)

	require.NoError(t, r.Begin(placeholder.ID, true))
	r.Append("streamed")
	r.Finalize(&CompletionResult{Text: "final"})

	// Give a few would-be ticks time to fire.
	time.Sleep(30 * time.Millisecond)

	m, _ := h.Get(placeholder.ID)
	assert.Equal(t, "final", m.Text)
}

func TestReconcilerFinalizeWithoutBegin(t *testing.T) {
	h := NewHistory()
	r := NewReconciler(h, time.Millisecond)

	// Must not panic or touch history.
	r.Finalize(&CompletionResult{Text: "x"})
	r.FinalizeError("y")
	assert.Equal(t, 0, h.Len())
}
