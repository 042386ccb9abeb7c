package chat

import (
	"log/slog"
	"strings"
	"sync"
	"time"
)

// Fallback text when a stream completes without producing any content.
const noResponseText = "پاسخی دریافت نشد."

// Text shown while a single-shot model is working.
const processingText = "در حال پردازش..."

// Reconciler bridges an open-ended reply stream into incremental history
// updates without touching the list on every chunk. It owns the accumulation
// buffer for the in-flight assistant reply; callers only Append to it.
//
// Exactly one placeholder can be active at a time. A periodic flush copies
// the buffer into the placeholder's visible text; finalization stops the
// flusher before the final write, so no stale tick can clobber a finalized
// message.
type Reconciler struct {
	history  *History
	interval time.Duration

	mu            sync.Mutex
	buf           strings.Builder
	placeholderID string
	streaming     bool

	// flusher lifecycle; stop is closed by finalize, done is closed by the
	// flusher goroutine on exit.
	stop chan struct{}
	done chan struct{}
}

func NewReconciler(history *History, flushInterval time.Duration) *Reconciler {
	if flushInterval <= 0 {
		flushInterval = 200 * time.Millisecond
	}
	return &Reconciler{history: history, interval: flushInterval}
}

// Begin registers the active placeholder. In streaming mode a periodic
// flusher starts; in single-shot mode the placeholder is put into the
// processing display state and updated once at the end.
func (r *Reconciler) Begin(placeholderID string, streaming bool) error {
	r.mu.Lock()
	if r.placeholderID != "" {
		r.mu.Unlock()
		return ErrReplyInFlight
	}
	r.placeholderID = placeholderID
	r.streaming = streaming
	r.buf.Reset()
	if streaming {
		r.stop = make(chan struct{})
		r.done = make(chan struct{})
		go r.flushLoop(r.stop, r.done)
	} else {
		r.stop, r.done = nil, nil
	}
	r.mu.Unlock()

	if !streaming {
		r.history.Update(placeholderID, func(m Message) Message {
			m.Text = processingText
			return m
		})
	}
	return nil
}

// Active reports whether a placeholder is being reconciled.
func (r *Reconciler) Active() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.placeholderID != ""
}

// Append adds a chunk to the accumulation buffer. Safe to call from the
// stream consumer goroutine; the next flush tick makes it visible.
func (r *Reconciler) Append(chunk string) {
	r.mu.Lock()
	r.buf.WriteString(chunk)
	r.mu.Unlock()
}

// Accumulated returns the buffered reply text so far.
func (r *Reconciler) Accumulated() string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.buf.String()
}

func (r *Reconciler) flushLoop(stop, done chan struct{}) {
	defer close(done)
	ticker := time.NewTicker(r.interval)
	defer ticker.Stop()
	for {
		select {
		case <-stop:
			return
		case <-ticker.C:
			r.flushOnce()
		}
	}
}

func (r *Reconciler) flushOnce() {
	r.mu.Lock()
	id := r.placeholderID
	text := r.buf.String()
	r.mu.Unlock()
	if id == "" {
		return
	}
	r.history.Update(id, func(m Message) Message {
		if !m.IsTyping {
			// Already finalized; never rewrite finished text.
			return m
		}
		m.Text = text
		return m
	})
}

// stopFlusher halts the periodic flush and waits for the goroutine to exit,
// guaranteeing no tick runs after the final state write.
func (r *Reconciler) stopFlusher() {
	r.mu.Lock()
	stop, done := r.stop, r.done
	r.stop, r.done = nil, nil
	r.mu.Unlock()
	if stop == nil {
		return
	}
	close(stop)
	<-done
}

// Finalize completes the active placeholder with the accumulated text (or
// the no-response fallback) plus any trailing media a non-text model
// produced. The placeholder becomes a normal message.
func (r *Reconciler) Finalize(result *CompletionResult) {
	r.stopFlusher()

	r.mu.Lock()
	id := r.placeholderID
	text := r.buf.String()
	r.placeholderID = ""
	r.buf.Reset()
	r.mu.Unlock()
	if id == "" {
		return
	}

	if result != nil && result.Text != "" {
		text = result.Text
	}
	if text == "" {
		text = noResponseText
	}

	r.history.Update(id, func(m Message) Message {
		m.Text = text
		m.IsTyping = false
		if result != nil {
			if result.ImageURL != "" {
				m.Attachment = ImageAttachment(result.ImageURL)
			} else if result.AudioURL != "" {
				m.Attachment = AudioAttachment(result.AudioURL, 0)
			}
		}
		return m
	})
	slog.Debug("chat.reconcile.finalized", "message_id", id, "text_len", len(text))
}

// FinalizeError completes the active placeholder with a human-readable error
// description. The entry stays in history as a normal message; errors are
// not ephemeral.
func (r *Reconciler) FinalizeError(description string) {
	r.stopFlusher()

	r.mu.Lock()
	id := r.placeholderID
	r.placeholderID = ""
	r.buf.Reset()
	r.mu.Unlock()
	if id == "" {
		return
	}

	if description == "" {
		description = "خطا"
	}
	r.history.Update(id, func(m Message) Message {
		m.Text = description
		m.IsTyping = false
		return m
	})
	slog.Warn("chat.reconcile.error_finalized", "message_id", id, "error", description)
}
