package store

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"

	"github.com/pkg/errors"
	"github.com/supabase-community/postgrest-go"

	"github.com/rhynoai/rhynochat/chat"
)

type chatRow struct {
	ID        string `json:"id"`
	Name      string `json:"name"`
	UpdatedAt string `json:"updated_at"`
}

// createChatPayload is the backend conversation-creation request body.
type createChatPayload struct {
	Name               string  `json:"name"`
	WorkspaceID        string  `json:"workspace_id,omitempty"`
	Model              string  `json:"model"`
	ContextLength      int     `json:"context_length"`
	Temperature        float64 `json:"temperature"`
	EmbeddingsProvider string  `json:"embeddings_provider"`
	Prompt             string  `json:"prompt"`
}

// CreateChat creates a conversation through the hosted backend and returns
// its id.
func (s *Store) CreateChat(ctx context.Context, params *chat.CreateChatParams) (string, error) {
	body, err := json.Marshal(createChatPayload{
		Name:               params.Name,
		WorkspaceID:        params.WorkspaceID,
		Model:              params.Model,
		ContextLength:      params.ContextLength,
		Temperature:        params.Temperature,
		EmbeddingsProvider: params.EmbeddingsProvider,
		Prompt:             params.Prompt,
	})
	if err != nil {
		return "", errors.Wrap(err, "marshal create chat payload")
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.profile.BackendURL+"/api/chat/create", bytes.NewReader(body))
	if err != nil {
		return "", errors.Wrap(err, "build create chat request")
	}
	token, err := s.creds.Bearer(ctx)
	if err != nil {
		return "", err
	}
	req.Header.Set("Authorization", "Bearer "+token)
	req.Header.Set("Content-Type", "application/json")

	resp, err := s.http.Do(req)
	if err != nil {
		return "", errors.Wrap(err, "create chat request")
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		detail, _ := io.ReadAll(io.LimitReader(resp.Body, 2048))
		return "", errors.Errorf("create chat returned %d: %s", resp.StatusCode, bytes.TrimSpace(detail))
	}

	var created chatRow
	if err := json.NewDecoder(resp.Body).Decode(&created); err != nil {
		return "", errors.Wrap(err, "decode create chat reply")
	}
	if created.ID == "" {
		return "", errors.New("create chat reply missing id")
	}
	slog.Debug("store.chat.created", "chat_id", created.ID)
	return created.ID, nil
}

// ListChats returns the user's conversations, most recently active first.
func (s *Store) ListChats(ctx context.Context) ([]*chat.ChatSummary, error) {
	client, err := s.rest(ctx)
	if err != nil {
		return nil, err
	}

	var rows []chatRow
	_, err = client.From("chats").
		Select("id,name,updated_at", "", false).
		Order("updated_at", &postgrest.OrderOpts{Ascending: false}).
		ExecuteTo(&rows)
	if err != nil {
		return nil, errors.Wrap(err, "list chats")
	}

	out := make([]*chat.ChatSummary, 0, len(rows))
	for _, row := range rows {
		out = append(out, &chat.ChatSummary{ID: row.ID, Name: row.Name, UpdatedAt: row.UpdatedAt})
	}
	return out, nil
}

// ChatName fetches a single conversation's display name.
func (s *Store) ChatName(ctx context.Context, chatID string) (string, error) {
	client, err := s.rest(ctx)
	if err != nil {
		return "", err
	}

	var rows []chatRow
	_, err = client.From("chats").
		Select("id,name", "", false).
		Eq("id", chatID).
		ExecuteTo(&rows)
	if err != nil {
		return "", errors.Wrapf(err, "fetch chat %s", chatID)
	}
	if len(rows) == 0 {
		return "", errors.Errorf("chat %s not found", chatID)
	}
	return rows[0].Name, nil
}

// TouchChat bumps the conversation's activity timestamp so it sorts to the
// top of the list.
func (s *Store) TouchChat(ctx context.Context, chatID string) error {
	client, err := s.rest(ctx)
	if err != nil {
		return err
	}

	_, _, err = client.From("chats").
		Update(map[string]string{"updated_at": nowUTC()}, "", "").
		Eq("id", chatID).
		Execute()
	return errors.Wrapf(err, "touch chat %s", chatID)
}
