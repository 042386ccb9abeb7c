package chat

import (
	"fmt"
	"regexp"
	"sort"
	"strings"
	"time"
)

// Role identifies the author of a chat turn.
type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
	RoleSystem    Role = "system"
)

// AttachmentKind discriminates the attachment union.
type AttachmentKind string

const (
	AttachmentImage AttachmentKind = "image"
	AttachmentFile  AttachmentKind = "file"
	AttachmentAudio AttachmentKind = "audio"
)

// Attachment is the tagged union of everything a message can carry besides
// text. Exactly one kind per message; the kind decides which fields are
// meaningful. Attachments are never smuggled inside the message text.
type Attachment struct {
	Kind AttachmentKind

	// URI is the image data URI / remote URL, or the audio clip URI.
	URI string

	// File metadata (Kind == AttachmentFile).
	Name       string
	MimeType   string
	Size       int64
	StoredPath string

	// Duration of the clip (Kind == AttachmentAudio).
	Duration time.Duration
}

// ImageAttachment wraps an image URI (data URI or remote URL).
func ImageAttachment(uri string) *Attachment {
	return &Attachment{Kind: AttachmentImage, URI: uri}
}

// FileAttachment wraps an uploaded document reference.
func FileAttachment(name, mimeType string, size int64, storedPath string) *Attachment {
	return &Attachment{Kind: AttachmentFile, Name: name, MimeType: mimeType, Size: size, StoredPath: storedPath}
}

// AudioAttachment wraps a recorded clip.
func AudioAttachment(uri string, duration time.Duration) *Attachment {
	return &Attachment{Kind: AttachmentAudio, URI: uri, Duration: duration}
}

// FileNoticeName extracts the attached-file name from a persisted message
// body. Stored transcripts keep only the Persian attachment notice, so a
// reload rebuilds the structured file attachment from it.
func FileNoticeName(text string) (string, bool) {
	if rest, ok := strings.CutPrefix(text, fileAttachedPrefix); ok {
		rest = strings.TrimSpace(rest)
		return rest, rest != ""
	}
	if i := strings.Index(text, fileAttachedSuffix); i >= 0 {
		rest := text[i+len(fileAttachedSuffix):]
		if j := strings.Index(rest, ")"); j > 0 {
			return rest[:j], true
		}
	}
	return "", false
}

// Message is a single chat turn as rendered by the shell.
type Message struct {
	// ID is opaque. Locally-generated entries use a prefixed synthetic id
	// (user-<ms>, typing-<ms>) distinguishable from server-issued ids.
	ID        string
	Role      Role
	Text      string
	CreatedAt time.Time

	// Attachment is nil or exactly one of image/file/audio.
	Attachment *Attachment

	// Model that produced an assistant turn, when known.
	Model string

	// Sequence is the server-side ordering number, 0 for local-only entries.
	Sequence int

	// IsTyping marks the placeholder entry still being filled by the
	// streaming reconciler. Never persisted.
	IsTyping bool

	// IsSending is true only for the most recent optimistic user message
	// until the full round trip completes.
	IsSending bool
}

const (
	userIDPrefix   = "user-"
	typingIDPrefix = "typing-"
	audioIDPrefix  = "user-audio-"
)

func localID(prefix string) string {
	return fmt.Sprintf("%s%d", prefix, time.Now().UnixMilli())
}

// NewUserMessage builds an optimistic outbound message.
func NewUserMessage(text string) *Message {
	return &Message{
		ID:        localID(userIDPrefix),
		Role:      RoleUser,
		Text:      text,
		CreatedAt: time.Now(),
	}
}

// NewTypingPlaceholder builds the transient assistant entry for an in-flight
// reply.
func NewTypingPlaceholder() *Message {
	return &Message{
		ID:        localID(typingIDPrefix),
		Role:      RoleAssistant,
		Text:      "",
		CreatedAt: time.Now(),
		IsTyping:  true,
	}
}

// NewAudioMessage builds the user turn representing a finished recording.
func NewAudioMessage(uri string, duration time.Duration) *Message {
	return &Message{
		ID:         localID(audioIDPrefix),
		Role:       RoleUser,
		Text:       fmt.Sprintf("(فایل صوتی: %d ثانیه)", int(duration.Round(time.Second).Seconds())),
		CreatedAt:  time.Now(),
		Attachment: AudioAttachment(uri, duration),
	}
}

// IsLocal reports whether the id was generated on this device rather than
// issued by the server.
func (m *Message) IsLocal() bool {
	return strings.HasPrefix(m.ID, userIDPrefix) || strings.HasPrefix(m.ID, typingIDPrefix)
}

// SortByCreatedAt orders messages chronologically. Edits and regeneration
// splice the visible list, so array position is not trustworthy; every
// API-bound history is re-sorted through here.
func SortByCreatedAt(messages []*Message) {
	sort.SliceStable(messages, func(i, j int) bool {
		return messages[i].CreatedAt.Before(messages[j].CreatedAt)
	})
}

var rtlPattern = regexp.MustCompile(`[\x{0600}-\x{06FF}]`)

// IsRTL reports whether text should lay out right-to-left. Only the leading
// snippet is inspected; empty text defaults to RTL (Persian UI).
func IsRTL(text string) bool {
	if text == "" {
		return true
	}
	snippet := text
	if len(snippet) > 60 {
		snippet = snippet[:60]
	}
	return rtlPattern.MatchString(snippet)
}
