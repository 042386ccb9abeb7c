package chat

import (
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLocalIDsArePrefixed(t *testing.T) {
	user := NewUserMessage("hi")
	assert.True(t, user.IsLocal())
	assert.Contains(t, user.ID, userIDPrefix)

	typing := NewTypingPlaceholder()
	assert.True(t, typing.IsLocal())
	assert.True(t, typing.IsTyping)
	assert.Equal(t, RoleAssistant, typing.Role)
}

func TestNewAudioMessage(t *testing.T) {
	msg := NewAudioMessage("file:///tmp/clip.m4a", 7*time.Second)
	require.NotNil(t, msg.Attachment)
	assert.Equal(t, AttachmentAudio, msg.Attachment.Kind)
	assert.Equal(t, 7*time.Second, msg.Attachment.Duration)
	assert.Equal(t, "(فایل صوتی: 7 ثانیه)", msg.Text)
}

func TestAttachmentConstructorsSetKind(t *testing.T) {
	assert.Equal(t, AttachmentImage, ImageAttachment("data:image/png;base64,x").Kind)
	assert.Equal(t, AttachmentAudio, AudioAttachment("u", time.Second).Kind)

	file := FileAttachment("report.pdf", "application/pdf", 42, "user/1_report.pdf")
	assert.Equal(t, AttachmentFile, file.Kind)
	assert.Equal(t, "report.pdf", file.Name)
	assert.Equal(t, "user/1_report.pdf", file.StoredPath)
}

func TestSortByCreatedAt(t *testing.T) {
	base := time.Now()
	a := &Message{ID: "a", CreatedAt: base.Add(2 * time.Second)}
	b := &Message{ID: "b", CreatedAt: base}
	c := &Message{ID: "c", CreatedAt: base.Add(time.Second)}

	msgs := []*Message{a, b, c}
	SortByCreatedAt(msgs)

	assert.Equal(t, "b", msgs[0].ID)
	assert.Equal(t, "c", msgs[1].ID)
	assert.Equal(t, "a", msgs[2].ID)
}

func TestSortByCreatedAtIsStable(t *testing.T) {
	at := time.Now()
	msgs := []*Message{
		{ID: "first", CreatedAt: at},
		{ID: "second", CreatedAt: at},
	}
	SortByCreatedAt(msgs)
	assert.Equal(t, "first", msgs[0].ID)
	assert.Equal(t, "second", msgs[1].ID)
}

func TestIsRTL(t *testing.T) {
	tests := []struct {
		name string
		text string
		want bool
	}{
		{"persian", "سلام دنیا", true},
		{"english", "hello world", false},
		{"empty defaults rtl", "", true},
		{"mixed leading persian", "سلام hello", true},
		{"long english with late persian", strings.Repeat("a", 100) + "سلام", false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, IsRTL(tt.text))
		})
	}
}

func TestFileNoticeName(t *testing.T) {
	tests := []struct {
		name string
		text string
		want string
		ok   bool
	}{
		{"file only", fileAttachedPrefix + "report.pdf", "report.pdf", true},
		{"text with notice", "summarize" + fileAttachedSuffix + "notes.txt)", "notes.txt", true},
		{"plain text", "just a question", "", false},
		{"bare prefix", fileAttachedPrefix, "", false},
		{"unclosed notice", "hi" + fileAttachedSuffix + "notes.txt", "", false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, ok := FileNoticeName(tt.text)
			assert.Equal(t, tt.ok, ok)
			assert.Equal(t, tt.want, got)
		})
	}
}
