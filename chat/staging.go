package chat

import (
	"fmt"
	"log/slog"
	"sync"

	"github.com/google/uuid"
	"github.com/lithammer/shortuuid/v4"
)

// FileStatus is the staged-file upload state machine.
type FileStatus string

const (
	FileUploading FileStatus = "uploading"
	FileUploaded  FileStatus = "uploaded"
	FileError     FileStatus = "error"
)

// FileAsset is what the platform document picker hands over.
type FileAsset struct {
	Name     string
	MimeType string
	Size     int64
	Data     []byte
}

// StagedFile is a document held client-side prior to being attached to an
// outbound message.
type StagedFile struct {
	ID         string
	Name       string
	MimeType   string
	Size       int64
	Data       []byte
	Status     FileStatus
	StoredPath string
	Err        string
}

// Staging holds at most one pending image or one pending file, independent
// of message history, until consumed by a send. Staging a kind clears the
// other kind; never both at once.
type Staging struct {
	session *Session
	storage FileStorage

	mu       sync.Mutex
	image    string
	file     *StagedFile
	onChange func()
}

func NewStaging(session *Session, storage FileStorage) *Staging {
	return &Staging{session: session, storage: storage}
}

// SetOnChange registers the render callback, invoked after every staging
// state change outside the lock.
func (s *Staging) SetOnChange(fn func()) {
	s.mu.Lock()
	s.onChange = fn
	s.mu.Unlock()
}

func (s *Staging) notify() {
	s.mu.Lock()
	fn := s.onChange
	s.mu.Unlock()
	if fn != nil {
		fn()
	}
}

// StageImage replaces any staged file with the given image URI.
func (s *Staging) StageImage(uri string) {
	s.mu.Lock()
	s.image = uri
	s.file = nil
	s.mu.Unlock()
	s.notify()
}

// StageFile stages a picked document and begins its upload asynchronously.
// Any staged image is cleared. On upload failure the entry stays visible in
// error state so the user can retry or dismiss it.
func (s *Staging) StageFile(asset FileAsset) {
	file := &StagedFile{
		ID:       shortuuid.New(),
		Name:     asset.Name,
		MimeType: asset.MimeType,
		Size:     asset.Size,
		Data:     asset.Data,
		Status:   FileUploading,
	}
	s.mu.Lock()
	s.image = ""
	s.file = file
	s.mu.Unlock()
	s.notify()

	go s.upload(file.ID)
}

// RetryUpload restarts the upload of a staged file stuck in error state.
func (s *Staging) RetryUpload() {
	s.mu.Lock()
	if s.file == nil || s.file.Status != FileError {
		s.mu.Unlock()
		return
	}
	s.file.Status = FileUploading
	s.file.Err = ""
	id := s.file.ID
	s.mu.Unlock()
	s.notify()

	go s.upload(id)
}

func (s *Staging) upload(stagingID string) {
	ctx := s.session.Context()

	s.mu.Lock()
	if s.file == nil || s.file.ID != stagingID {
		s.mu.Unlock()
		return
	}
	name, mimeType, data := s.file.Name, s.file.MimeType, s.file.Data
	s.mu.Unlock()

	if mimeType == "" {
		mimeType = "application/octet-stream"
	}
	path := fmt.Sprintf("%s/%s_%s", s.session.UserID(), uuid.NewString(), name)

	storedPath, err := s.storage.Upload(ctx, path, mimeType, data)

	s.mu.Lock()
	// The user may have cleared or restaged while the upload was in flight.
	if s.file == nil || s.file.ID != stagingID {
		s.mu.Unlock()
		return
	}
	if err != nil {
		slog.Error("chat.staging.upload_failed", "name", name, "error", err)
		s.file.Status = FileError
		s.file.Err = err.Error()
	} else {
		s.file.Status = FileUploaded
		s.file.StoredPath = storedPath
		slog.Info("chat.staging.uploaded", "name", name, "path", storedPath)
	}
	s.mu.Unlock()
	s.notify()
}

// Clear resets staging to empty. Idempotent, callable any time.
func (s *Staging) Clear() {
	s.mu.Lock()
	s.image = ""
	s.file = nil
	s.mu.Unlock()
	s.notify()
}

// Image returns the staged image URI, empty when none.
func (s *Staging) Image() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.image
}

// File returns a copy of the staged file, nil when none.
func (s *Staging) File() *StagedFile {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.file == nil {
		return nil
	}
	cp := *s.file
	return &cp
}

// Uploading reports whether a staged file is mid-upload. Sends are gated on
// this.
func (s *Staging) Uploading() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.file != nil && s.file.Status == FileUploading
}

// Failed reports whether the staged file ended in error state.
func (s *Staging) Failed() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.file != nil && s.file.Status == FileError
}

// Empty reports whether nothing is staged.
func (s *Staging) Empty() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.image == "" && s.file == nil
}
