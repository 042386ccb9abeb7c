package store

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"

	"github.com/pkg/errors"

	"github.com/rhynoai/rhynochat/chat"
)

type fileRow struct {
	ID          string `json:"id,omitempty"`
	UserID      string `json:"user_id"`
	Name        string `json:"name"`
	Type        string `json:"type"`
	Size        int64  `json:"size"`
	FilePath    string `json:"file_path"`
	Tokens      int    `json:"tokens"`
	Description string `json:"description"`
}

// Upload pushes a blob through the file-uploader edge function, which
// writes it into the files bucket under the caller-chosen path. Returns the
// stored path.
func (s *Store) Upload(ctx context.Context, path, contentType string, data []byte) (string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.profile.UploaderURL, bytes.NewReader(data))
	if err != nil {
		return "", errors.Wrap(err, "build upload request")
	}
	token, err := s.creds.Bearer(ctx)
	if err != nil {
		return "", err
	}
	if contentType == "" {
		contentType = "application/octet-stream"
	}
	req.Header.Set("Authorization", "Bearer "+token)
	req.Header.Set("X-File-Path", path)
	req.Header.Set("Content-Type", contentType)

	resp, err := s.http.Do(req)
	if err != nil {
		return "", errors.Wrap(err, "upload request")
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		detail, _ := io.ReadAll(io.LimitReader(resp.Body, 2048))
		return "", errors.Errorf("uploader returned %d: %s", resp.StatusCode, bytes.TrimSpace(detail))
	}

	slog.Debug("store.file.uploaded", "path", path, "bytes", len(data))
	return path, nil
}

// RegisterFile records an already-uploaded document in the files table so
// it becomes addressable for retrieval. Returns the file id.
func (s *Store) RegisterFile(ctx context.Context, file *chat.StagedFile) (string, error) {
	if file.StoredPath == "" {
		return "", errors.New("file has no stored path")
	}
	client, err := s.rest(ctx)
	if err != nil {
		return "", err
	}

	row := fileRow{
		UserID:   s.creds.UserID(),
		Name:     file.Name,
		Type:     file.MimeType,
		Size:     file.Size,
		FilePath: file.StoredPath,
	}
	if row.Type == "" {
		row.Type = "application/octet-stream"
	}

	data, _, err := client.From("files").
		Insert(row, false, "", "representation", "").
		Execute()
	if err != nil {
		return "", errors.Wrapf(err, "register file %s", file.Name)
	}

	var inserted []fileRow
	if err := json.Unmarshal(data, &inserted); err != nil {
		return "", errors.Wrap(err, "decode registered file")
	}
	if len(inserted) == 0 || inserted[0].ID == "" {
		return "", errors.New("registered file row missing id")
	}
	slog.Debug("store.file.registered", "file_id", inserted[0].ID, "name", file.Name)
	return inserted[0].ID, nil
}
