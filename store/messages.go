package store

import (
	"context"
	"log/slog"
	"strconv"
	"strings"
	"time"

	"github.com/pkg/errors"
	"github.com/supabase-community/postgrest-go"
	storage_go "github.com/supabase-community/storage-go"

	"github.com/rhynoai/rhynochat/chat"
)

type messageRow struct {
	ID             string   `json:"id"`
	ChatID         string   `json:"chat_id"`
	UserID         string   `json:"user_id,omitempty"`
	Content        string   `json:"content"`
	Role           string   `json:"role"`
	CreatedAt      string   `json:"created_at,omitempty"`
	Model          string   `json:"model"`
	SequenceNumber int      `json:"sequence_number"`
	ImagePaths     []string `json:"image_paths"`
	AudioURL       string   `json:"audio_url,omitempty"`
}

// Messages loads a conversation's full transcript in sequence order,
// rebuilding attachment state from the persisted image paths and audio URL.
func (s *Store) Messages(ctx context.Context, chatID string) ([]*chat.Message, error) {
	client, err := s.rest(ctx)
	if err != nil {
		return nil, err
	}

	var rows []messageRow
	_, err = client.From("messages").
		Select("*", "", false).
		Eq("chat_id", chatID).
		Order("sequence_number", &postgrest.OrderOpts{Ascending: true}).
		ExecuteTo(&rows)
	if err != nil {
		return nil, errors.Wrapf(err, "load messages for chat %s", chatID)
	}

	storage, err := s.storage(ctx)
	if err != nil {
		return nil, err
	}

	out := make([]*chat.Message, 0, len(rows))
	for _, row := range rows {
		msg := &chat.Message{
			ID:       row.ID,
			Role:     chat.Role(row.Role),
			Text:     row.Content,
			Model:    row.Model,
			Sequence: row.SequenceNumber,
		}
		if t, err := time.Parse(time.RFC3339, row.CreatedAt); err == nil {
			msg.CreatedAt = t
		}
		switch {
		case len(row.ImagePaths) > 0:
			msg.Attachment = chat.ImageAttachment(s.imageURL(storage, row.ImagePaths[0]))
		case row.AudioURL != "":
			msg.Attachment = chat.AudioAttachment(row.AudioURL, 0)
		default:
			// File turns persist only the attachment notice in their text.
			if name, ok := chat.FileNoticeName(row.Content); ok {
				msg.Attachment = chat.FileAttachment(name, "", 0, "")
			}
		}
		out = append(out, msg)
	}
	slog.Debug("store.messages.loaded", "chat_id", chatID, "count", len(out))
	return out, nil
}

// imageURL resolves a persisted image path to something displayable. Data
// URIs are stored inline and pass through; bucket paths resolve to their
// public URL.
func (s *Store) imageURL(storage *storage_go.Client, path string) string {
	if strings.HasPrefix(path, "data:") || strings.HasPrefix(path, "http") {
		return path
	}
	return storage.GetPublicUrl(s.profile.ImageBucket, path).SignedURL
}

// InsertMessage appends a finished turn. A zero sequence is assigned the
// next free number; PostgREST insert conflicts are surfaced unchanged.
func (s *Store) InsertMessage(ctx context.Context, rec *chat.MessageRecord) error {
	client, err := s.rest(ctx)
	if err != nil {
		return err
	}

	seq := rec.Sequence
	if seq == 0 {
		seq, err = s.nextSequence(ctx, rec.ChatID)
		if err != nil {
			return err
		}
	}

	row := messageRow{
		ChatID:         rec.ChatID,
		UserID:         s.creds.UserID(),
		Content:        rec.Content,
		Role:           string(rec.Role),
		Model:          rec.Model,
		SequenceNumber: seq,
		ImagePaths:     rec.ImagePaths,
		AudioURL:       rec.AudioURL,
	}
	if row.ImagePaths == nil {
		row.ImagePaths = []string{}
	}

	_, _, err = client.From("messages").
		Insert(row, false, "", "", "").
		Execute()
	return errors.Wrapf(err, "insert %s message into chat %s", rec.Role, rec.ChatID)
}

func (s *Store) nextSequence(ctx context.Context, chatID string) (int, error) {
	client, err := s.rest(ctx)
	if err != nil {
		return 0, err
	}

	var rows []messageRow
	_, err = client.From("messages").
		Select("sequence_number", "", false).
		Eq("chat_id", chatID).
		Order("sequence_number", &postgrest.OrderOpts{Ascending: false}).
		Limit(1, "").
		ExecuteTo(&rows)
	if err != nil {
		return 0, errors.Wrapf(err, "next sequence for chat %s", chatID)
	}
	if len(rows) == 0 {
		return 1, nil
	}
	return rows[0].SequenceNumber + 1, nil
}

// DeleteMessagesFrom removes every message of the conversation with the
// given sequence number or higher. Used when a turn is regenerated so the
// persisted transcript matches the local cut.
func (s *Store) DeleteMessagesFrom(ctx context.Context, chatID string, sequence int) error {
	client, err := s.rest(ctx)
	if err != nil {
		return err
	}

	_, _, err = client.From("messages").
		Delete("", "").
		Eq("chat_id", chatID).
		Gte("sequence_number", strconv.Itoa(sequence)).
		Execute()
	return errors.Wrapf(err, "delete messages of chat %s from sequence %d", chatID, sequence)
}
