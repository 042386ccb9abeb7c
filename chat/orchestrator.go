package chat

import (
	"context"
	"log/slog"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/sashabaranov/go-openai"
)

// Persian UI strings woven around attachments and errors.
const (
	fileAttachedPrefix  = "فایل ضمیمه شد: "
	fileAttachedSuffix  = "\n\n(فایل ضمیمه: "
	errorPrefix         = "خطا: "
	toastUploadTitle    = "خطا در آپلود فایل"
	toastRetrievalTitle = "خطا در پردازش فایل"
	toastPersistTitle   = "خطا در ذخیره پیام"
)

// Chat name fallbacks when no text is available.
const (
	imageChatName   = "چت تصویری"
	defaultChatName = "چت جدید"
)

// Orchestrator drives the full send pipeline: validation, optimistic history
// updates, conversation auto-creation, attachment registration and
// retrieval, the completion round trip, and persistence. One send is in
// flight at a time; everything after validation runs asynchronously under
// the session context.
type Orchestrator struct {
	session    *Session
	history    *History
	staging    *Staging
	reconciler *Reconciler

	completer   Completer
	store       ConversationStore
	files       FileLibrary
	retriever   Retriever
	transcriber Transcriber
	notifier    Notifier

	sending atomic.Bool

	mu        sync.Mutex
	editingID string
	draft     string
}

// NewOrchestrator wires the pipeline. Any of files, retriever, transcriber
// may be nil when the deployment lacks that capability; the corresponding
// stage is skipped.
func NewOrchestrator(
	session *Session,
	history *History,
	staging *Staging,
	reconciler *Reconciler,
	completer Completer,
	store ConversationStore,
	files FileLibrary,
	retriever Retriever,
	transcriber Transcriber,
	notifier Notifier,
) *Orchestrator {
	if notifier == nil {
		notifier = NopNotifier{}
	}
	return &Orchestrator{
		session:     session,
		history:     history,
		staging:     staging,
		reconciler:  reconciler,
		completer:   completer,
		store:       store,
		files:       files,
		retriever:   retriever,
		transcriber: transcriber,
		notifier:    notifier,
	}
}

// IsSending reports whether a send round trip is in flight.
func (o *Orchestrator) IsSending() bool { return o.sending.Load() }

// Draft returns the composer draft installed by Edit, if any.
func (o *Orchestrator) Draft() (string, bool) {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.draft, o.editingID != ""
}

// CancelEdit drops the pending edit without sending.
func (o *Orchestrator) CancelEdit() {
	o.mu.Lock()
	o.editingID = ""
	o.draft = ""
	o.mu.Unlock()
}

// Send validates and launches one send round trip against the session's
// selected model. Validation is synchronous and ordered: a staged upload
// still running or failed blocks first, then a send already in flight, then
// emptiness. Past validation the optimistic user message and typing
// placeholder land atomically and the heavy work continues in the
// background.
func (o *Orchestrator) Send(text string) error {
	return o.send(text, o.session.SelectedModel())
}

// SendWithModel is Send with a per-call model override, used by quick
// prompts bound to a specific model.
func (o *Orchestrator) SendWithModel(text, model string) error {
	if model == "" {
		model = o.session.SelectedModel()
	}
	return o.send(text, model)
}

func (o *Orchestrator) send(text, model string) error {
	text = strings.TrimSpace(text)

	if o.staging.Uploading() {
		o.notifier.Toast("لطفا صبر کنید", "فایل در حال آپلود است")
		return ErrUploadInProgress
	}
	if o.staging.Failed() {
		o.notifier.ToastError(toastUploadTitle, "آپلود فایل ناموفق بود")
		return ErrAttachmentFailed
	}
	if !o.sending.CompareAndSwap(false, true) {
		return ErrSendInFlight
	}

	stagedImage := o.staging.Image()
	stagedFile := o.staging.File()
	if text == "" && stagedImage == "" && stagedFile == nil {
		o.sending.Store(false)
		return ErrEmptyMessage
	}

	userMsg := o.buildUserMessage(text, stagedImage, stagedFile)
	placeholder := NewTypingPlaceholder()
	o.history.Append(userMsg, placeholder)

	o.staging.Clear()
	o.CancelEdit()

	if err := o.reconciler.Begin(placeholder.ID, StreamingCapable(model)); err != nil {
		o.sending.Store(false)
		return err
	}

	go o.run(userMsg, stagedFile, model)
	return nil
}

// buildUserMessage composes the optimistic user turn. A file-only send gets
// the attachment notice as its whole text; a file plus text gets the notice
// appended below the text. The attachment itself rides in structured form.
func (o *Orchestrator) buildUserMessage(text, stagedImage string, stagedFile *StagedFile) *Message {
	display := text
	if stagedFile != nil {
		if display == "" {
			display = fileAttachedPrefix + stagedFile.Name
		} else {
			display = display + fileAttachedSuffix + stagedFile.Name + ")"
		}
	}
	msg := NewUserMessage(display)
	msg.IsSending = true
	switch {
	case stagedImage != "":
		msg.Attachment = ImageAttachment(stagedImage)
	case stagedFile != nil:
		msg.Attachment = FileAttachment(stagedFile.Name, stagedFile.MimeType, stagedFile.Size, stagedFile.StoredPath)
	}
	return msg
}

// run is the asynchronous half of Send. Every exit path finalizes the
// placeholder and releases the send slot.
func (o *Orchestrator) run(userMsg *Message, stagedFile *StagedFile, model string) {
	ctx := o.session.Context()
	started := time.Now()
	defer o.sending.Store(false)
	defer o.clearSendingFlag(userMsg.ID)

	chatID, err := o.ensureChat(ctx, userMsg, model)
	if err != nil {
		o.fail(err)
		return
	}

	retrieved := o.prepareRetrieval(ctx, userMsg, stagedFile)

	req := &CompletionRequest{
		Model:           model,
		Messages:        o.buildWireHistory(userMsg, retrieved),
		ChatID:          chatID,
		EnableWebSearch: true,
	}

	result, err := o.complete(ctx, req)
	if err != nil {
		o.fail(err)
		return
	}

	o.reconciler.Finalize(result)
	o.persistTurn(ctx, chatID, userMsg, result, model)
	slog.Info("chat.send.completed",
		"chat_id", chatID,
		"model", req.Model,
		"elapsed", time.Since(started).Round(time.Millisecond),
	)
}

// fail finalizes the placeholder with a visible error entry. Errors after
// the optimistic append are never silent and never ephemeral.
func (o *Orchestrator) fail(err error) {
	slog.Error("chat.send.failed", "error", err)
	o.reconciler.FinalizeError(errorPrefix + err.Error())
}

func (o *Orchestrator) clearSendingFlag(userID string) {
	o.history.Update(userID, func(m Message) Message {
		m.IsSending = false
		return m
	})
}

// ensureChat lazily creates the conversation on the first send and derives
// its permanent name from the first outbound content.
func (o *Orchestrator) ensureChat(ctx context.Context, userMsg *Message, model string) (string, error) {
	if id := o.session.CurrentChatID(); id != "" {
		if err := o.store.TouchChat(ctx, id); err != nil {
			slog.Warn("chat.touch.failed", "chat_id", id, "error", err)
		}
		return id, nil
	}

	p := o.session.Profile()
	params := &CreateChatParams{
		Name:               o.deriveChatName(userMsg),
		WorkspaceID:        o.session.WorkspaceID(),
		Model:              model,
		ContextLength:      p.ContextLength,
		Temperature:        p.Temperature,
		EmbeddingsProvider: "openai",
		Prompt:             o.session.ModelPrompt(model),
	}
	id, err := o.store.CreateChat(ctx, params)
	if err != nil {
		return "", err
	}
	o.session.SetCurrentChatID(id)
	slog.Info("chat.created", "chat_id", id, "name", params.Name)
	return id, nil
}

func (o *Orchestrator) deriveChatName(userMsg *Message) string {
	text := userMsg.Text
	if text != "" && !strings.HasPrefix(text, fileAttachedPrefix) {
		words := strings.Fields(text)
		max := o.session.Profile().MaxChatNameWords
		if len(words) > max {
			words = words[:max]
		}
		return strings.Join(words, " ")
	}
	if att := userMsg.Attachment; att != nil {
		switch att.Kind {
		case AttachmentFile:
			return att.Name
		case AttachmentImage:
			return imageChatName
		}
	}
	return defaultChatName
}

// prepareRetrieval registers the staged document, kicks off server-side
// processing, and fetches retrieval context for the outbound text. All
// failures here degrade to a toast; the send proceeds without context.
func (o *Orchestrator) prepareRetrieval(ctx context.Context, userMsg *Message, stagedFile *StagedFile) string {
	if stagedFile == nil || o.files == nil {
		return ""
	}

	fileID, err := o.files.RegisterFile(ctx, stagedFile)
	if err != nil {
		slog.Warn("chat.file.register_failed", "file", stagedFile.Name, "error", err)
		o.notifier.ToastError(toastRetrievalTitle, stagedFile.Name)
		return ""
	}
	if o.retriever == nil {
		return ""
	}
	if err := o.retriever.ProcessFile(ctx, fileID); err != nil {
		slog.Warn("chat.file.process_failed", "file_id", fileID, "error", err)
		o.notifier.ToastError(toastRetrievalTitle, stagedFile.Name)
		return ""
	}
	retrieved, err := o.retriever.Retrieve(ctx, userMsg.Text, []string{fileID})
	if err != nil {
		slog.Warn("chat.retrieval.failed", "file_id", fileID, "error", err)
		return ""
	}
	return retrieved
}

// buildWireHistory converts visible history into the API message list.
// Typing placeholders are dropped, ordering is re-established by timestamp,
// and attachments are rewritten into forms the completion endpoint
// understands. Retrieved document context is spliced in as a system message
// directly before the final user turn.
func (o *Orchestrator) buildWireHistory(userMsg *Message, retrieved string) []openai.ChatCompletionMessage {
	snapshot := o.history.Snapshot()
	visible := make([]*Message, 0, len(snapshot))
	for _, m := range snapshot {
		if m.IsTyping {
			continue
		}
		visible = append(visible, m)
	}
	SortByCreatedAt(visible)

	wire := make([]openai.ChatCompletionMessage, 0, len(visible)+1)
	for _, m := range visible {
		if retrieved != "" && m.ID == userMsg.ID {
			wire = append(wire, openai.ChatCompletionMessage{
				Role: openai.ChatMessageRoleSystem,
				Content: "Here is relevant context from user-uploaded files:\n\n" + retrieved +
					"\n\nBased on this context, please answer the user's following message.",
			})
		}
		wire = append(wire, o.wireMessage(m))
	}
	return wire
}

func (o *Orchestrator) wireMessage(m *Message) openai.ChatCompletionMessage {
	role := string(m.Role)
	text := m.Text

	if att := m.Attachment; att != nil {
		switch att.Kind {
		case AttachmentFile:
			// Strip the local attachment notice; the model gets a plain
			// english description instead.
			if strings.HasPrefix(text, fileAttachedPrefix) {
				text = "User uploaded a file: " + att.Name + ". Analyze it."
			} else {
				if i := strings.Index(text, fileAttachedSuffix); i >= 0 {
					text = text[:i]
				}
				text = text + "\n\n[File Attached: " + att.Name + "]"
			}
		case AttachmentImage:
			parts := []openai.ChatMessagePart{}
			if text != "" {
				parts = append(parts, openai.ChatMessagePart{
					Type: openai.ChatMessagePartTypeText,
					Text: text,
				})
			}
			parts = append(parts, openai.ChatMessagePart{
				Type:     openai.ChatMessagePartTypeImageURL,
				ImageURL: &openai.ChatMessageImageURL{URL: att.URI},
			})
			return openai.ChatCompletionMessage{Role: role, MultiContent: parts}
		}
	}

	if text == "" {
		// The API rejects empty content strings.
		text = " "
	}
	return openai.ChatCompletionMessage{Role: role, Content: text}
}

// complete runs either the streaming or the single-shot completion path,
// feeding the reconciler along the way.
func (o *Orchestrator) complete(ctx context.Context, req *CompletionRequest) (*CompletionResult, error) {
	if !StreamingCapable(req.Model) {
		return o.completer.Complete(ctx, req)
	}

	chunks, errs := o.completer.Stream(ctx, req)
	for chunk := range chunks {
		o.reconciler.Append(chunk)
	}
	if err := <-errs; err != nil {
		return nil, err
	}
	return nil, nil
}

// persistTurn writes the finished user and assistant turns. Persistence
// failure never rolls back visible history; it degrades to a toast.
func (o *Orchestrator) persistTurn(ctx context.Context, chatID string, userMsg *Message, result *CompletionResult, model string) {
	final, ok := o.history.Get(o.lastAssistantID())
	assistantText := ""
	if ok {
		assistantText = final.Text
	} else if result != nil {
		assistantText = result.Text
	}

	userRec := &MessageRecord{
		ChatID:  chatID,
		Role:    RoleUser,
		Content: userMsg.Text,
		Model:   model,
	}
	if att := userMsg.Attachment; att != nil && att.Kind == AttachmentImage {
		userRec.ImagePaths = []string{att.URI}
	}

	assistantRec := &MessageRecord{
		ChatID:  chatID,
		Role:    RoleAssistant,
		Content: assistantText,
		Model:   model,
	}
	if result != nil {
		if result.ImageURL != "" {
			assistantRec.ImagePaths = []string{result.ImageURL}
		}
		assistantRec.AudioURL = result.AudioURL
	}

	for _, rec := range []*MessageRecord{userRec, assistantRec} {
		if err := o.store.InsertMessage(ctx, rec); err != nil {
			slog.Warn("chat.persist.failed", "chat_id", chatID, "role", rec.Role, "error", err)
			o.notifier.ToastError(toastPersistTitle, string(rec.Role))
		}
	}
	if err := o.store.TouchChat(ctx, chatID); err != nil {
		slog.Warn("chat.touch.failed", "chat_id", chatID, "error", err)
	}
}

// lastAssistantID finds the newest assistant entry; used to read back the
// finalized reply text for persistence.
func (o *Orchestrator) lastAssistantID() string {
	snapshot := o.history.Snapshot()
	for i := len(snapshot) - 1; i >= 0; i-- {
		if snapshot[i].Role == RoleAssistant {
			return snapshot[i].ID
		}
	}
	return ""
}

// Regenerate discards the assistant reply at index and every later entry,
// then resends the immediately preceding user message verbatim. The user
// turn itself stays in place. Validation happens before any mutation.
func (o *Orchestrator) Regenerate(index int) error {
	if o.sending.Load() {
		return ErrSendInFlight
	}
	target := o.history.At(index)
	if target == nil || target.Role != RoleAssistant {
		return ErrNoPrecedingUser
	}
	user := o.history.At(index - 1)
	if user == nil || user.Role != RoleUser {
		return ErrNoPrecedingUser
	}

	o.history.TruncateFrom(index)

	// Server-side prune so the persisted transcript matches what was cut.
	// Best effort; local state is already authoritative for the resend.
	if chatID := o.session.CurrentChatID(); chatID != "" && target.Sequence > 0 {
		if err := o.store.DeleteMessagesFrom(o.session.Context(), chatID, target.Sequence); err != nil {
			slog.Warn("chat.regenerate.prune_failed", "chat_id", chatID, "sequence", target.Sequence, "error", err)
		}
	}

	return o.Send(user.Text)
}

// Edit loads a previously sent user message back into the composer. The
// attachment notice is stripped; the message itself stays in history until
// the edited send replaces the tail.
func (o *Orchestrator) Edit(id string) error {
	msg, ok := o.history.Get(id)
	if !ok || msg.Role != RoleUser {
		return ErrNotUserMessage
	}
	draft := msg.Text
	if i := strings.Index(draft, fileAttachedSuffix); i >= 0 {
		draft = draft[:i]
	}
	o.mu.Lock()
	o.editingID = id
	o.draft = draft
	o.mu.Unlock()
	o.staging.Clear()
	return nil
}

// HandleRecording is the voice-capture completion hook. The clip is
// transcribed; under the transcription-only model the transcript lands
// directly in history as a finished exchange, otherwise it is sent like a
// typed message.
func (o *Orchestrator) HandleRecording(rec RecordingResult) {
	if o.transcriber == nil {
		return
	}
	ctx := o.session.Context()
	text, err := o.transcriber.Transcribe(ctx, rec)
	if err != nil {
		slog.Error("chat.transcribe.failed", "error", err)
		o.notifier.Alert("خطا", "تبدیل گفتار به متن ناموفق بود.")
		return
	}

	if o.session.SelectedModel() == TranscribeModel {
		audio := NewAudioMessage(rec.URI, rec.Duration)
		reply := &Message{
			ID:        localID(typingIDPrefix),
			Role:      RoleAssistant,
			Text:      text,
			CreatedAt: time.Now(),
			Model:     TranscribeModel,
		}
		o.history.Append(audio, reply)
		return
	}

	if err := o.Send(text); err != nil {
		slog.Warn("chat.voice_send.rejected", "error", err)
	}
}
