package chat

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/require"

	"github.com/rhynoai/rhynochat/internal/profile"
)

func testProfile() *profile.Profile {
	return &profile.Profile{
		BackendURL:       "https://backend.test",
		SupabaseURL:      "https://project.supabase.co",
		SupabaseAnonKey:  "anon",
		DefaultModel:     "gpt-4o",
		ContextLength:    4096,
		Temperature:      1.0,
		RequestTimeout:   5 * time.Second,
		StreamTimeout:    5 * time.Second,
		LoadTimeout:      2 * time.Second,
		FlushInterval:    5 * time.Millisecond,
		MaxChatNameWords: 5,
	}
}

func testToken(t *testing.T, claims jwt.MapClaims) string {
	t.Helper()
	if _, ok := claims["sub"]; !ok {
		claims["sub"] = "user-123"
	}
	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte("test-secret"))
	require.NoError(t, err)
	return token
}

func newTestSession(t *testing.T) *Session {
	t.Helper()
	token := testToken(t, jwt.MapClaims{
		"sub":   "user-123",
		"email": "sara@example.com",
		"exp":   time.Now().Add(time.Hour).Unix(),
	})
	s, err := NewSession(context.Background(), testProfile(), StaticToken(token))
	require.NoError(t, err)
	t.Cleanup(s.Close)
	return s
}

// fakeStorage implements FileStorage.
type fakeStorage struct {
	mu      sync.Mutex
	uploads []string
	err     error
	block   chan struct{} // when set, Upload waits for it
}

func (f *fakeStorage) Upload(ctx context.Context, path, contentType string, data []byte) (string, error) {
	if f.block != nil {
		select {
		case <-f.block:
		case <-ctx.Done():
			return "", ctx.Err()
		}
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return "", f.err
	}
	f.uploads = append(f.uploads, path)
	return path, nil
}

// fakeCompleter implements Completer.
type fakeCompleter struct {
	mu         sync.Mutex
	chunks     []string
	streamErr  error
	result     *CompletionResult
	resultErr  error
	lastReq    *CompletionRequest
	streamed   int
	singleShot int
	hold       chan struct{} // when set, the stream stays open until closed
}

func (f *fakeCompleter) Stream(ctx context.Context, req *CompletionRequest) (<-chan string, <-chan error) {
	f.mu.Lock()
	f.lastReq = req
	f.streamed++
	chunks, streamErr, hold := f.chunks, f.streamErr, f.hold
	f.mu.Unlock()

	out := make(chan string, len(chunks))
	errs := make(chan error, 1)
	go func() {
		defer close(out)
		defer close(errs)
		for _, c := range chunks {
			out <- c
		}
		if hold != nil {
			<-hold
		}
		if streamErr != nil {
			errs <- streamErr
		}
	}()
	return out, errs
}

func (f *fakeCompleter) Complete(ctx context.Context, req *CompletionRequest) (*CompletionResult, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.lastReq = req
	f.singleShot++
	return f.result, f.resultErr
}

func (f *fakeCompleter) request() *CompletionRequest {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.lastReq
}

// fakeStore implements ConversationStore.
type fakeStore struct {
	mu        sync.Mutex
	chats     []*ChatSummary
	names     map[string]string
	messages  map[string][]*Message
	inserted  []*MessageRecord
	deletions []int
	touched   []string

	createErr  error
	listErr    error
	nameErr    error
	messagesEr error
	insertErr  error

	createdID string
	created   []*CreateChatParams
	listDelay time.Duration
}

func newFakeStore() *fakeStore {
	return &fakeStore{
		names:     map[string]string{},
		messages:  map[string][]*Message{},
		createdID: "chat-1",
	}
}

func (f *fakeStore) CreateChat(ctx context.Context, params *CreateChatParams) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.createErr != nil {
		return "", f.createErr
	}
	f.created = append(f.created, params)
	return f.createdID, nil
}

func (f *fakeStore) ListChats(ctx context.Context) ([]*ChatSummary, error) {
	if f.listDelay > 0 {
		select {
		case <-time.After(f.listDelay):
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.listErr != nil {
		return nil, f.listErr
	}
	return f.chats, nil
}

func (f *fakeStore) ChatName(ctx context.Context, chatID string) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.nameErr != nil {
		return "", f.nameErr
	}
	return f.names[chatID], nil
}

func (f *fakeStore) Messages(ctx context.Context, chatID string) ([]*Message, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.messagesEr != nil {
		return nil, f.messagesEr
	}
	return f.messages[chatID], nil
}

func (f *fakeStore) InsertMessage(ctx context.Context, rec *MessageRecord) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.insertErr != nil {
		return f.insertErr
	}
	f.inserted = append(f.inserted, rec)
	return nil
}

func (f *fakeStore) DeleteMessagesFrom(ctx context.Context, chatID string, sequence int) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.deletions = append(f.deletions, sequence)
	return nil
}

func (f *fakeStore) TouchChat(ctx context.Context, chatID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.touched = append(f.touched, chatID)
	return nil
}

func (f *fakeStore) insertedRecords() []*MessageRecord {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]*MessageRecord, len(f.inserted))
	copy(out, f.inserted)
	return out
}

func (f *fakeStore) createdChats() []*CreateChatParams {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]*CreateChatParams, len(f.created))
	copy(out, f.created)
	return out
}

// fakeLibrary implements FileLibrary.
type fakeLibrary struct {
	mu     sync.Mutex
	fileID string
	err    error
	files  []*StagedFile
}

func (f *fakeLibrary) RegisterFile(ctx context.Context, file *StagedFile) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return "", f.err
	}
	f.files = append(f.files, file)
	return f.fileID, nil
}

// fakeRetriever implements Retriever.
type fakeRetriever struct {
	mu        sync.Mutex
	processed []string
	context   string
	procErr   error
	retErr    error
}

func (f *fakeRetriever) ProcessFile(ctx context.Context, fileID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.procErr != nil {
		return f.procErr
	}
	f.processed = append(f.processed, fileID)
	return nil
}

func (f *fakeRetriever) Retrieve(ctx context.Context, userInput string, fileIDs []string) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.context, f.retErr
}

// fakeTranscriber implements Transcriber.
type fakeTranscriber struct {
	text string
	err  error
}

func (f *fakeTranscriber) Transcribe(ctx context.Context, rec RecordingResult) (string, error) {
	return f.text, f.err
}

// fakeRecorder implements Recorder and counts releases.
type fakeRecorder struct {
	mu           sync.Mutex
	granted      bool
	permErr      error
	startErr     error
	stopErr      error
	result       RecordingResult
	releaseCalls int
}

func (f *fakeRecorder) RequestPermission(ctx context.Context) (bool, error) {
	return f.granted, f.permErr
}

func (f *fakeRecorder) Start(ctx context.Context) error { return f.startErr }

func (f *fakeRecorder) Stop(ctx context.Context) (RecordingResult, error) {
	return f.result, f.stopErr
}

func (f *fakeRecorder) Release() {
	f.mu.Lock()
	f.releaseCalls++
	f.mu.Unlock()
}

func (f *fakeRecorder) released() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.releaseCalls
}

// recordingNotifier captures feedback for assertions.
type recordingNotifier struct {
	mu     sync.Mutex
	toasts []string
	errors []string
	alerts []string
}

func (n *recordingNotifier) Toast(title, detail string) {
	n.mu.Lock()
	n.toasts = append(n.toasts, title)
	n.mu.Unlock()
}

func (n *recordingNotifier) ToastError(title, detail string) {
	n.mu.Lock()
	n.errors = append(n.errors, title)
	n.mu.Unlock()
}

func (n *recordingNotifier) Alert(title, message string) {
	n.mu.Lock()
	n.alerts = append(n.alerts, message)
	n.mu.Unlock()
}

func (n *recordingNotifier) alertMessages() []string {
	n.mu.Lock()
	defer n.mu.Unlock()
	out := make([]string, len(n.alerts))
	copy(out, n.alerts)
	return out
}

// waitFor polls until the condition holds or the deadline passes.
func waitFor(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(2 * time.Millisecond)
	}
	require.Fail(t, "condition not met before deadline")
}
