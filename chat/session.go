package chat

import (
	"context"
	"regexp"
	"strings"
	"sync"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/pkg/errors"

	"github.com/rhynoai/rhynochat/internal/profile"
)

// TokenSource supplies the bearer token authorizing every backend call. The
// platform auth layer owns refresh; the core asks for a fresh token before
// each call, mirroring the per-call session fetch of the mobile client.
type TokenSource interface {
	Token(ctx context.Context) (string, error)
}

// StaticToken is a TokenSource for tests and short-lived tooling.
type StaticToken string

func (t StaticToken) Token(context.Context) (string, error) { return string(t), nil }

// Session is the explicit per-login state object handed to the orchestrator
// and directory: identity, token access, model selection, and the active
// conversation id. It replaces ambient global lookup; it is created at login
// and closed at logout, and closing cancels all in-flight work started under
// it.
type Session struct {
	profile *profile.Profile
	tokens  TokenSource

	userID      string
	email       string
	displayName string

	ctx    context.Context
	cancel context.CancelFunc

	mu            sync.RWMutex
	workspaceID   string
	selectedModel string
	currentChatID string
	modelPrompts  map[string]string
}

// NewSession builds a session from the profile and an authenticated token
// source. Identity is read from the token's claims; supabase access tokens
// are JWTs carrying sub, email and user metadata. The signature is not
// verified client-side (the server is the verifier); the claims are only
// used for display and storage-path construction.
func NewSession(ctx context.Context, p *profile.Profile, tokens TokenSource) (*Session, error) {
	token, err := tokens.Token(ctx)
	if err != nil {
		return nil, errors.Wrap(err, "fetching session token")
	}

	claims := jwt.MapClaims{}
	if _, _, err := jwt.NewParser().ParseUnverified(token, claims); err != nil {
		return nil, errors.Wrap(err, "parsing session token")
	}

	userID, _ := claims["sub"].(string)
	if userID == "" {
		return nil, errors.New("session token has no subject")
	}
	email, _ := claims["email"].(string)

	displayName := email
	if meta, ok := claims["user_metadata"].(map[string]any); ok {
		for _, key := range []string{"display_name", "username"} {
			if v, ok := meta[key].(string); ok && v != "" {
				displayName = v
				break
			}
		}
	}
	if displayName == "" {
		displayName = "کاربر"
	}

	sessionCtx, cancel := context.WithCancel(context.WithoutCancel(ctx))
	return &Session{
		profile:       p,
		tokens:        tokens,
		userID:        userID,
		email:         email,
		displayName:   displayName,
		ctx:           sessionCtx,
		cancel:        cancel,
		selectedModel: p.DefaultModel,
		modelPrompts:  map[string]string{},
	}, nil
}

// Context is the lifetime of the session. All asynchronous orchestration
// runs under it, so Close aborts in-flight requests.
func (s *Session) Context() context.Context { return s.ctx }

// Close tears the session down (logout). Idempotent.
func (s *Session) Close() { s.cancel() }

func (s *Session) Profile() *profile.Profile { return s.profile }
func (s *Session) UserID() string            { return s.userID }
func (s *Session) Email() string             { return s.email }
func (s *Session) DisplayName() string       { return s.displayName }

var digits = regexp.MustCompile(`[0-9]`)

// FirstName derives the short greeting name from the display name.
func (s *Session) FirstName() string {
	name := digits.ReplaceAllString(s.displayName, "")
	fields := strings.FieldsFunc(name, func(r rune) bool {
		return r == ' ' || r == '\t' || r == '@' || r == ',' || r == '.' || r == ';'
	})
	if len(fields) == 0 {
		return name
	}
	return fields[0]
}

// Bearer returns a fresh token for the next call. An expired token is a hard
// failure of the current operation; nothing re-authenticates transparently.
func (s *Session) Bearer(ctx context.Context) (string, error) {
	token, err := s.tokens.Token(ctx)
	if err != nil {
		return "", errors.Wrap(ErrSessionExpired, err.Error())
	}
	claims := jwt.MapClaims{}
	if _, _, err := jwt.NewParser().ParseUnverified(token, claims); err != nil {
		return "", errors.Wrap(ErrSessionExpired, err.Error())
	}
	if exp, err := claims.GetExpirationTime(); err == nil && exp != nil && exp.Before(time.Now()) {
		return "", ErrSessionExpired
	}
	return token, nil
}

func (s *Session) WorkspaceID() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.workspaceID
}

func (s *Session) SetWorkspaceID(id string) {
	s.mu.Lock()
	s.workspaceID = id
	s.mu.Unlock()
}

func (s *Session) SelectedModel() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.selectedModel
}

func (s *Session) SetSelectedModel(model string) {
	s.mu.Lock()
	s.selectedModel = model
	s.mu.Unlock()
}

// CurrentChatID is empty until the first message of a new conversation has
// actually been sent.
func (s *Session) CurrentChatID() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.currentChatID
}

func (s *Session) SetCurrentChatID(id string) {
	s.mu.Lock()
	s.currentChatID = id
	s.mu.Unlock()
}

// ModelPrompt returns the configured system prompt for a model, or the
// generic default.
func (s *Session) ModelPrompt(model string) string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if p, ok := s.modelPrompts[model]; ok && p != "" {
		return p
	}
	return "You are a helpful assistant."
}

func (s *Session) SetModelPrompt(model, prompt string) {
	s.mu.Lock()
	s.modelPrompts[model] = prompt
	s.mu.Unlock()
}
