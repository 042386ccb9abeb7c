// Package store persists conversations, messages, and uploaded files in the
// Supabase project backing the app. Conversation creation goes through the
// hosted backend so server-side defaults and ownership checks apply.
package store

import (
	"context"
	"net/http"
	"time"

	"github.com/supabase-community/postgrest-go"
	storage_go "github.com/supabase-community/storage-go"

	"github.com/rhynoai/rhynochat/internal/profile"
	"github.com/rhynoai/rhynochat/internal/version"
)

// Credentials supplies per-request auth. Satisfied by *chat.Session.
type Credentials interface {
	Bearer(ctx context.Context) (string, error)
	UserID() string
}

// Store is the Supabase-backed conversation store. Safe for concurrent use;
// REST clients are built per call so every request carries a fresh token.
type Store struct {
	profile *profile.Profile
	creds   Credentials
	http    *http.Client
}

func New(p *profile.Profile, creds Credentials) *Store {
	return &Store{
		profile: p,
		creds:   creds,
		http:    &http.Client{Timeout: p.RequestTimeout},
	}
}

// rest builds a PostgREST client authenticated as the current user.
func (s *Store) rest(ctx context.Context) (*postgrest.Client, error) {
	token, err := s.creds.Bearer(ctx)
	if err != nil {
		return nil, err
	}
	headers := map[string]string{
		"apikey":     s.profile.SupabaseAnonKey,
		"User-Agent": version.UserAgent(),
	}
	client := postgrest.NewClient(s.profile.SupabaseURL+"/rest/v1", "public", headers)
	return client.SetAuthToken(token), nil
}

// storage builds a storage client for bucket operations and public URL
// resolution.
func (s *Store) storage(ctx context.Context) (*storage_go.Client, error) {
	token, err := s.creds.Bearer(ctx)
	if err != nil {
		return nil, err
	}
	headers := map[string]string{"apikey": s.profile.SupabaseAnonKey}
	return storage_go.NewClient(s.profile.SupabaseURL+"/storage/v1", token, headers), nil
}

func nowUTC() string {
	return time.Now().UTC().Format(time.RFC3339)
}
