package chat

import (
	"context"

	"github.com/sashabaranov/go-openai"
)

// CompletionRequest is one call against the hosted completion endpoint. The
// message list uses go-openai wire shapes so multi-part content (text +
// image) marshals exactly as the backend's OpenAI-compatible ingestion
// expects.
type CompletionRequest struct {
	Model           string
	Messages        []openai.ChatCompletionMessage
	ChatID          string
	EnableWebSearch bool
}

// CompletionResult is the single-shot JSON reply shape (image and audio
// generators).
type CompletionResult struct {
	Text     string
	ImageURL string
	AudioURL string
}

// Completer talks to the remote completion API. Stream delivers raw text
// chunks; the chunk channel is closed when the stream ends, after which the
// error channel yields the terminal error (nil on clean completion).
type Completer interface {
	Stream(ctx context.Context, req *CompletionRequest) (<-chan string, <-chan error)
	Complete(ctx context.Context, req *CompletionRequest) (*CompletionResult, error)
}

// CreateChatParams is the conversation-creation payload. The name is derived
// from the first outbound content and fixed at creation.
type CreateChatParams struct {
	Name               string
	WorkspaceID        string
	Model              string
	ContextLength      int
	Temperature        float64
	EmbeddingsProvider string
	Prompt             string
}

// ChatSummary is one row of the conversation list.
type ChatSummary struct {
	ID        string
	Name      string
	UpdatedAt string
}

// MessageRecord is the persisted shape of a finished turn.
type MessageRecord struct {
	ChatID     string
	Role       Role
	Content    string
	Model      string
	Sequence   int
	ImagePaths []string
	AudioURL   string
}

// ConversationStore is the external persistent chat/message store.
type ConversationStore interface {
	CreateChat(ctx context.Context, params *CreateChatParams) (string, error)
	ListChats(ctx context.Context) ([]*ChatSummary, error)
	ChatName(ctx context.Context, chatID string) (string, error)
	Messages(ctx context.Context, chatID string) ([]*Message, error)
	InsertMessage(ctx context.Context, rec *MessageRecord) error
	DeleteMessagesFrom(ctx context.Context, chatID string, sequence int) error
	TouchChat(ctx context.Context, chatID string) error
}

// FileStorage uploads a blob to a caller-chosen path and returns the stored
// path.
type FileStorage interface {
	Upload(ctx context.Context, path, contentType string, data []byte) (string, error)
}

// FileLibrary registers an uploaded document so it becomes addressable for
// retrieval.
type FileLibrary interface {
	RegisterFile(ctx context.Context, file *StagedFile) (string, error)
}

// Retriever converts registered files into retrievable content and answers
// context queries over them.
type Retriever interface {
	ProcessFile(ctx context.Context, fileID string) error
	Retrieve(ctx context.Context, userInput string, fileIDs []string) (string, error)
}

// Transcriber turns a finished recording into text.
type Transcriber interface {
	Transcribe(ctx context.Context, rec RecordingResult) (string, error)
}

// Notifier is the ephemeral-feedback sink (toasts and alerts). Pre-send
// validation failures and non-fatal pipeline failures surface here; they
// leave no history trace.
type Notifier interface {
	Toast(title, detail string)
	ToastError(title, detail string)
	Alert(title, message string)
}

// NopNotifier discards all feedback. Useful for tests and headless use.
type NopNotifier struct{}

func (NopNotifier) Toast(string, string)      {}
func (NopNotifier) ToastError(string, string) {}
func (NopNotifier) Alert(string, string)      {}
