// Package ai talks to the hosted Rhyno backend: chat completions
// (streaming and single-shot), retrieval over uploaded documents, and
// speech transcription.
package ai

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net"
	"net/http"
	"time"

	"github.com/pkg/errors"
	"github.com/sashabaranov/go-openai"

	"github.com/rhynoai/rhynochat/chat"
	"github.com/rhynoai/rhynochat/internal/profile"
	"github.com/rhynoai/rhynochat/internal/version"
)

// TokenProvider yields a fresh bearer token per request. Satisfied by
// *chat.Session.
type TokenProvider interface {
	Bearer(ctx context.Context) (string, error)
}

// Client is the backend HTTP client. One instance per session.
type Client struct {
	baseURL        string
	tokens         TokenProvider
	http           *http.Client
	requestTimeout time.Duration
	streamTimeout  time.Duration
}

func NewClient(p *profile.Profile, tokens TokenProvider) *Client {
	return &Client{
		baseURL:        p.BackendURL,
		tokens:         tokens,
		http:           newHTTPClient(),
		requestTimeout: p.RequestTimeout,
		streamTimeout:  p.StreamTimeout,
	}
}

func newHTTPClient() *http.Client {
	// No client-level Timeout: it would cut streamed bodies short. Each
	// call carries its own context deadline instead.
	return &http.Client{
		Transport: &http.Transport{
			DialContext: (&net.Dialer{
				Timeout:   30 * time.Second,
				KeepAlive: 30 * time.Second,
			}).DialContext,
			MaxIdleConns:          100,
			IdleConnTimeout:       90 * time.Second,
			TLSHandshakeTimeout:   10 * time.Second,
			ExpectContinueTimeout: 1 * time.Second,
		},
	}
}

// completionPayload is the backend chat endpoint's request body.
type completionPayload struct {
	ChatSettings       completionSettings             `json:"chatSettings"`
	Messages           []openai.ChatCompletionMessage `json:"messages"`
	EnableWebSearch    bool                           `json:"enableWebSearch"`
	ChatID             string                         `json:"chat_id,omitempty"`
	IsUserMessageSaved bool                           `json:"is_user_message_saved"`
}

type completionSettings struct {
	Model string `json:"model"`
}

// completionReply is the single-shot response for media-producing models.
type completionReply struct {
	Text     string `json:"text"`
	ImageURL string `json:"imageUrl"`
	AudioURL string `json:"audioUrl"`
}

func (c *Client) newRequest(ctx context.Context, method, path string, body io.Reader) (*http.Request, error) {
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return nil, errors.Wrapf(err, "build %s request", path)
	}
	token, err := c.tokens.Bearer(ctx)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Authorization", "Bearer "+token)
	req.Header.Set("User-Agent", version.UserAgent())
	return req, nil
}

func (c *Client) completionRequest(ctx context.Context, r *chat.CompletionRequest) (*http.Request, error) {
	payload := completionPayload{
		ChatSettings:       completionSettings{Model: r.Model},
		Messages:           r.Messages,
		EnableWebSearch:    r.EnableWebSearch,
		ChatID:             r.ChatID,
		// The orchestrator persists both turns itself; the backend must not
		// double-save the user message.
		IsUserMessageSaved: true,
	}
	body, err := json.Marshal(payload)
	if err != nil {
		return nil, errors.Wrap(err, "marshal completion payload")
	}
	req, err := c.newRequest(ctx, http.MethodPost, "/api/chat/openai", bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")
	return req, nil
}

// Stream runs a streaming completion. The backend streams the reply as raw
// accumulating text, not SSE; chunks are forwarded as they arrive. The
// chunk channel closes when the stream ends, then the error channel yields
// the terminal error, nil on clean EOF.
func (c *Client) Stream(ctx context.Context, r *chat.CompletionRequest) (<-chan string, <-chan error) {
	chunks := make(chan string, 10)
	errs := make(chan error, 1)

	go func() {
		defer close(chunks)
		defer close(errs)

		ctx, cancel := context.WithTimeout(ctx, c.streamTimeout)
		defer cancel()

		req, err := c.completionRequest(ctx, r)
		if err != nil {
			errs <- err
			return
		}

		started := time.Now()
		resp, err := c.http.Do(req)
		if err != nil {
			slog.Error("ai.stream.request_failed", "model", r.Model, "error", err)
			errs <- errors.Wrap(err, "completion request")
			return
		}
		defer resp.Body.Close()

		if resp.StatusCode != http.StatusOK {
			errs <- httpError(resp)
			return
		}

		buf := make([]byte, 4096)
		chunkCount := 0
		for {
			n, err := resp.Body.Read(buf)
			if n > 0 {
				chunkCount++
				select {
				case chunks <- string(buf[:n]):
				case <-ctx.Done():
					errs <- ctx.Err()
					return
				}
			}
			if err == io.EOF {
				slog.Debug("ai.stream.completed",
					"model", r.Model,
					"chunks", chunkCount,
					"duration_ms", time.Since(started).Milliseconds(),
				)
				return
			}
			if err != nil {
				slog.Error("ai.stream.read_failed", "error", err, "chunks_so_far", chunkCount)
				errs <- errors.Wrap(err, "read stream")
				return
			}
		}
	}()

	return chunks, errs
}

// Complete runs a single-shot completion against a media-producing model
// and decodes the JSON reply.
func (c *Client) Complete(ctx context.Context, r *chat.CompletionRequest) (*chat.CompletionResult, error) {
	ctx, cancel := context.WithTimeout(ctx, c.requestTimeout)
	defer cancel()

	req, err := c.completionRequest(ctx, r)
	if err != nil {
		return nil, err
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, errors.Wrap(err, "completion request")
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, httpError(resp)
	}

	var reply completionReply
	if err := json.NewDecoder(resp.Body).Decode(&reply); err != nil {
		return nil, errors.Wrap(err, "decode completion reply")
	}
	return &chat.CompletionResult{
		Text:     reply.Text,
		ImageURL: reply.ImageURL,
		AudioURL: reply.AudioURL,
	}, nil
}

// httpError drains a failed response into a bounded error value.
func httpError(resp *http.Response) error {
	body, _ := io.ReadAll(io.LimitReader(resp.Body, 2048))
	return errors.Errorf("backend returned %d: %s", resp.StatusCode, bytes.TrimSpace(body))
}
