package profile

import (
	"log/slog"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/pkg/errors"
	"github.com/spf13/viper"
)

// Profile is the configuration the client core is started with. It is
// assembled once at login time and handed to the session; nothing reads the
// environment after that point.
type Profile struct {
	// Hosted backend configuration.
	BackendURL string // Completion / retrieval / transcription API base URL

	// Supabase project configuration.
	SupabaseURL     string // https://<project>.supabase.co
	SupabaseAnonKey string // anon (publishable) key, sent as apikey header
	UploaderURL     string // file-uploader edge function endpoint
	ImageBucket     string // storage bucket for message images

	// Chat defaults.
	DefaultModel  string
	ContextLength int
	Temperature   float64

	// Tunables.
	RequestTimeout   time.Duration // single-shot HTTP calls
	StreamTimeout    time.Duration // upper bound for a full streamed reply
	LoadTimeout      time.Duration // conversation history reload bound
	FlushInterval    time.Duration // streaming reconciler flush cadence
	MaxChatNameWords int           // words of the first message used for the chat name

	Mode string // dev or prod
}

const (
	defaultBackendURL    = "https://www.rhynoai.ir"
	defaultModel         = "gpt-4o"
	defaultContextLength = 4096
)

// Load reads configuration from the environment (RHYNO_* variables), after
// loading a .env file when one is present next to the process.
func Load() (*Profile, error) {
	// Missing .env is the normal production case.
	_ = godotenv.Load()

	v := viper.New()
	v.SetEnvPrefix("rhyno")
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	v.AutomaticEnv()

	v.SetDefault("backend-url", defaultBackendURL)
	v.SetDefault("image-bucket", "message_images")
	v.SetDefault("default-model", defaultModel)
	v.SetDefault("context-length", defaultContextLength)
	v.SetDefault("temperature", 1.0)
	v.SetDefault("request-timeout-seconds", 120)
	v.SetDefault("stream-timeout-seconds", 300)
	v.SetDefault("load-timeout-seconds", 10)
	v.SetDefault("flush-interval-millis", 200)
	v.SetDefault("chat-name-words", 5)
	v.SetDefault("mode", "prod")

	p := &Profile{
		BackendURL:       strings.TrimRight(v.GetString("backend-url"), "/"),
		SupabaseURL:      strings.TrimRight(v.GetString("supabase-url"), "/"),
		SupabaseAnonKey:  v.GetString("supabase-anon-key"),
		UploaderURL:      v.GetString("uploader-url"),
		ImageBucket:      v.GetString("image-bucket"),
		DefaultModel:     v.GetString("default-model"),
		ContextLength:    v.GetInt("context-length"),
		Temperature:      v.GetFloat64("temperature"),
		RequestTimeout:   time.Duration(v.GetInt("request-timeout-seconds")) * time.Second,
		StreamTimeout:    time.Duration(v.GetInt("stream-timeout-seconds")) * time.Second,
		LoadTimeout:      time.Duration(v.GetInt("load-timeout-seconds")) * time.Second,
		FlushInterval:    time.Duration(v.GetInt("flush-interval-millis")) * time.Millisecond,
		MaxChatNameWords: v.GetInt("chat-name-words"),
		Mode:             v.GetString("mode"),
	}

	if err := p.Validate(); err != nil {
		return nil, err
	}
	return p, nil
}

func (p *Profile) IsDev() bool {
	return p.Mode != "prod"
}

// Validate checks required fields and fills derivable ones.
func (p *Profile) Validate() error {
	if p.Mode != "dev" && p.Mode != "prod" {
		slog.Warn("unknown mode, falling back to prod", "mode", p.Mode)
		p.Mode = "prod"
	}
	if p.BackendURL == "" {
		return errors.New("backend URL is required")
	}
	if p.SupabaseURL == "" {
		return errors.New("supabase URL is required")
	}
	if p.SupabaseAnonKey == "" {
		return errors.New("supabase anon key is required")
	}
	if p.UploaderURL == "" {
		// Edge functions live on the project's functions domain.
		p.UploaderURL = strings.Replace(p.SupabaseURL, ".supabase.co", ".functions.supabase.co", 1) + "/file-uploader"
	}
	if p.FlushInterval <= 0 {
		return errors.Errorf("flush interval must be positive, got %s", p.FlushInterval)
	}
	if p.LoadTimeout <= 0 {
		return errors.Errorf("load timeout must be positive, got %s", p.LoadTimeout)
	}
	if p.MaxChatNameWords <= 0 {
		p.MaxChatNameWords = 5
	}
	return nil
}
