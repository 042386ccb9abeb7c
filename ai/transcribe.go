package ai

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"mime/multipart"
	"net/http"
	"os"
	"path/filepath"
	"strings"

	"github.com/pkg/errors"

	"github.com/rhynoai/rhynochat/chat"
)

type transcribeReply struct {
	Text string `json:"text"`
}

// Transcribe uploads a finished recording and returns its transcript.
func (c *Client) Transcribe(ctx context.Context, rec chat.RecordingResult) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, c.requestTimeout)
	defer cancel()

	clip, err := os.Open(strings.TrimPrefix(rec.URI, "file://"))
	if err != nil {
		return "", errors.Wrap(err, "open recording")
	}
	defer clip.Close()

	var body bytes.Buffer
	form := multipart.NewWriter(&body)
	part, err := form.CreateFormFile("file", filepath.Base(clip.Name()))
	if err != nil {
		return "", errors.Wrap(err, "create form file")
	}
	if _, err := io.Copy(part, clip); err != nil {
		return "", errors.Wrap(err, "copy recording")
	}
	if err := form.Close(); err != nil {
		return "", errors.Wrap(err, "close form")
	}

	req, err := c.newRequest(ctx, http.MethodPost, "/api/transcribe", &body)
	if err != nil {
		return "", err
	}
	req.Header.Set("Content-Type", form.FormDataContentType())

	resp, err := c.http.Do(req)
	if err != nil {
		return "", errors.Wrap(err, "transcribe request")
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return "", httpError(resp)
	}

	var reply transcribeReply
	if err := json.NewDecoder(resp.Body).Decode(&reply); err != nil {
		return "", errors.Wrap(err, "decode transcript")
	}
	slog.Debug("ai.transcribe.completed", "duration", rec.Duration, "chars", len(reply.Text))
	return reply.Text, nil
}
