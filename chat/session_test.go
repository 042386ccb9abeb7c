package chat

import (
	"context"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewSessionReadsClaims(t *testing.T) {
	token := testToken(t, jwt.MapClaims{
		"sub":   "u-42",
		"email": "sara@example.com",
		"user_metadata": map[string]any{
			"display_name": "Sara Tehrani",
		},
	})

	s, err := NewSession(context.Background(), testProfile(), StaticToken(token))
	require.NoError(t, err)
	defer s.Close()

	assert.Equal(t, "u-42", s.UserID())
	assert.Equal(t, "sara@example.com", s.Email())
	assert.Equal(t, "Sara Tehrani", s.DisplayName())
	assert.Equal(t, "Sara", s.FirstName())
}

func TestNewSessionFallsBackToEmail(t *testing.T) {
	token := testToken(t, jwt.MapClaims{"sub": "u-1", "email": "ali.r@example.com"})

	s, err := NewSession(context.Background(), testProfile(), StaticToken(token))
	require.NoError(t, err)
	defer s.Close()

	assert.Equal(t, "ali.r@example.com", s.DisplayName())
	assert.Equal(t, "ali", s.FirstName())
}

func TestNewSessionRequiresSubject(t *testing.T) {
	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{"email": "x@y.z"}).
		SignedString([]byte("s"))
	require.NoError(t, err)

	_, err = NewSession(context.Background(), testProfile(), StaticToken(token))
	assert.Error(t, err)
}

func TestNewSessionRejectsGarbageToken(t *testing.T) {
	_, err := NewSession(context.Background(), testProfile(), StaticToken("not-a-jwt"))
	assert.Error(t, err)
}

func TestFirstNameStripsDigits(t *testing.T) {
	token := testToken(t, jwt.MapClaims{
		"sub":           "u-1",
		"user_metadata": map[string]any{"username": "reza1384"},
	})
	s, err := NewSession(context.Background(), testProfile(), StaticToken(token))
	require.NoError(t, err)
	defer s.Close()

	assert.Equal(t, "reza", s.FirstName())
}

func TestBearerRejectsExpiredToken(t *testing.T) {
	expired := testToken(t, jwt.MapClaims{
		"sub": "u-1",
		"exp": time.Now().Add(-time.Minute).Unix(),
	})

	// Session creation itself does not check expiry; Bearer does.
	s, err := NewSession(context.Background(), testProfile(), StaticToken(expired))
	require.NoError(t, err)
	defer s.Close()

	_, err = s.Bearer(context.Background())
	assert.ErrorIs(t, err, ErrSessionExpired)
}

func TestBearerReturnsFreshToken(t *testing.T) {
	s := newTestSession(t)
	token, err := s.Bearer(context.Background())
	require.NoError(t, err)
	assert.NotEmpty(t, token)
}

func TestCloseCancelsSessionContext(t *testing.T) {
	s := newTestSession(t)
	require.NoError(t, s.Context().Err())

	s.Close()
	assert.ErrorIs(t, s.Context().Err(), context.Canceled)

	// Idempotent.
	s.Close()
}

func TestSessionOutlivesLoginContext(t *testing.T) {
	loginCtx, cancel := context.WithCancel(context.Background())
	token := testToken(t, jwt.MapClaims{"sub": "u-1"})
	s, err := NewSession(loginCtx, testProfile(), StaticToken(token))
	require.NoError(t, err)
	defer s.Close()

	cancel()
	assert.NoError(t, s.Context().Err())
}

func TestSessionModelSelection(t *testing.T) {
	s := newTestSession(t)
	assert.Equal(t, "gpt-4o", s.SelectedModel())

	s.SetSelectedModel("gpt-5")
	assert.Equal(t, "gpt-5", s.SelectedModel())
}

func TestModelPromptDefault(t *testing.T) {
	s := newTestSession(t)
	assert.Equal(t, "You are a helpful assistant.", s.ModelPrompt("gpt-4o"))

	s.SetModelPrompt("gpt-4o", "Answer in Persian.")
	assert.Equal(t, "Answer in Persian.", s.ModelPrompt("gpt-4o"))
	assert.Equal(t, "You are a helpful assistant.", s.ModelPrompt("dall-e-3"))
}
