package chat

import (
	"context"
	"log/slog"
	"sync"

	"github.com/pkg/errors"
	"golang.org/x/sync/errgroup"
)

// Directory is the conversation list plus the active-conversation switch.
// Selecting a conversation replaces visible history wholesale; a bounded
// load keeps a dead backend from wedging the switch forever.
type Directory struct {
	session  *Session
	store    ConversationStore
	history  *History
	notifier Notifier

	mu          sync.Mutex
	chats       []*ChatSummary
	currentName string
	generation  uint64
	onChange    func()
}

func NewDirectory(session *Session, store ConversationStore, history *History, notifier Notifier) *Directory {
	if notifier == nil {
		notifier = NopNotifier{}
	}
	return &Directory{
		session:     session,
		store:       store,
		history:     history,
		notifier:    notifier,
		currentName: defaultChatName,
	}
}

// SetOnChange registers the render callback for list and name changes.
func (d *Directory) SetOnChange(fn func()) {
	d.mu.Lock()
	d.onChange = fn
	d.mu.Unlock()
}

func (d *Directory) notify() {
	d.mu.Lock()
	fn := d.onChange
	d.mu.Unlock()
	if fn != nil {
		fn()
	}
}

// Chats returns the last refreshed conversation list, newest activity first.
func (d *Directory) Chats() []*ChatSummary {
	d.mu.Lock()
	defer d.mu.Unlock()
	out := make([]*ChatSummary, len(d.chats))
	copy(out, d.chats)
	return out
}

// CurrentName is the display name of the active conversation.
func (d *Directory) CurrentName() string {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.currentName
}

// Refresh reloads the conversation list. Concurrent refreshes may land out
// of order; only the newest call's result is kept.
func (d *Directory) Refresh(ctx context.Context) error {
	d.mu.Lock()
	d.generation++
	gen := d.generation
	d.mu.Unlock()

	chats, err := d.store.ListChats(ctx)
	if err != nil {
		return errors.Wrap(err, "list chats")
	}

	d.mu.Lock()
	if gen != d.generation {
		d.mu.Unlock()
		return nil
	}
	d.chats = chats
	d.mu.Unlock()
	d.notify()
	return nil
}

// Select switches the active conversation, loading its name and full
// message history in parallel under the configured load bound. On failure
// the previous conversation stays active and untouched.
func (d *Directory) Select(ctx context.Context, chatID string) error {
	loadCtx, cancel := context.WithTimeout(ctx, d.session.Profile().LoadTimeout)
	defer cancel()

	var (
		name     string
		messages []*Message
	)
	g, gctx := errgroup.WithContext(loadCtx)
	g.Go(func() error {
		var err error
		name, err = d.store.ChatName(gctx, chatID)
		return err
	})
	g.Go(func() error {
		var err error
		messages, err = d.store.Messages(gctx, chatID)
		return err
	})
	if err := g.Wait(); err != nil {
		slog.Error("chat.select.failed", "chat_id", chatID, "error", err)
		d.notifier.ToastError("خطا", "بارگذاری گفتگو ناموفق بود")
		return errors.Wrapf(err, "load chat %s", chatID)
	}

	d.session.SetCurrentChatID(chatID)
	d.history.Replace(messages)
	d.mu.Lock()
	if name == "" {
		name = defaultChatName
	}
	d.currentName = name
	d.mu.Unlock()
	d.notify()
	slog.Info("chat.selected", "chat_id", chatID, "messages", len(messages))
	return nil
}

// NewChat resets to a fresh unsaved conversation. The conversation row is
// created lazily on the first send.
func (d *Directory) NewChat() {
	d.session.SetCurrentChatID("")
	d.history.Reset()
	d.mu.Lock()
	d.currentName = defaultChatName
	d.mu.Unlock()
	d.notify()
}
