package ai

import (
	"bytes"
	"context"
	"encoding/json"
	"log/slog"
	"mime/multipart"
	"net/http"
	"strings"

	"github.com/pkg/errors"
)

// ProcessFile asks the backend to chunk and embed a registered file so it
// becomes retrievable.
func (c *Client) ProcessFile(ctx context.Context, fileID string) error {
	ctx, cancel := context.WithTimeout(ctx, c.requestTimeout)
	defer cancel()

	var body bytes.Buffer
	form := multipart.NewWriter(&body)
	if err := form.WriteField("file_id", fileID); err != nil {
		return errors.Wrap(err, "write form field")
	}
	if err := form.WriteField("embeddingsProvider", "openai"); err != nil {
		return errors.Wrap(err, "write form field")
	}
	if err := form.Close(); err != nil {
		return errors.Wrap(err, "close form")
	}

	req, err := c.newRequest(ctx, http.MethodPost, "/api/retrieval/process", &body)
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", form.FormDataContentType())

	resp, err := c.http.Do(req)
	if err != nil {
		return errors.Wrap(err, "process file request")
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return httpError(resp)
	}
	slog.Debug("ai.retrieval.processed", "file_id", fileID)
	return nil
}

type retrievePayload struct {
	UserInput string   `json:"userInput"`
	FileIDs   []string `json:"fileIds"`
}

type retrieveReply struct {
	FileItems []struct {
		Content string `json:"content"`
	} `json:"fileItems"`
}

// Retrieve fetches the document chunks most relevant to the user's input
// and joins them into one context block.
func (c *Client) Retrieve(ctx context.Context, userInput string, fileIDs []string) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, c.requestTimeout)
	defer cancel()

	body, err := json.Marshal(retrievePayload{UserInput: userInput, FileIDs: fileIDs})
	if err != nil {
		return "", errors.Wrap(err, "marshal retrieve payload")
	}

	req, err := c.newRequest(ctx, http.MethodPost, "/api/retrieval/retrieve", bytes.NewReader(body))
	if err != nil {
		return "", err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return "", errors.Wrap(err, "retrieve request")
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return "", httpError(resp)
	}

	var reply retrieveReply
	if err := json.NewDecoder(resp.Body).Decode(&reply); err != nil {
		return "", errors.Wrap(err, "decode retrieve reply")
	}

	parts := make([]string, 0, len(reply.FileItems))
	for _, item := range reply.FileItems {
		if item.Content != "" {
			parts = append(parts, item.Content)
		}
	}
	slog.Debug("ai.retrieval.retrieved", "files", len(fileIDs), "chunks", len(parts))
	return strings.Join(parts, "\n\n"), nil
}
