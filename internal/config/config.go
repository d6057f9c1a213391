// Package config collects serve settings from flags, falling back to
// environment variables (optionally loaded from .env).
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/lehigh-university-libraries/imageeditor/internal/cloudinary"
	"github.com/lehigh-university-libraries/imageeditor/internal/suggest"
	"github.com/spf13/pflag"
)

type Config struct {
	Port                    string
	CredentialsFile         string
	RequirePreauthorization bool
	SecureCookies           bool
	StagingDir              string
	HistoryFile             string
	SessionTTL              time.Duration
	AnonymousSessionTTL     time.Duration
	SweepInterval           time.Duration
	MaxUploadBytes          int64

	Cloudinary cloudinary.Config
	Suggest    suggest.Settings
}

// envFlags maps flag names to the environment variable read when the
// flag is not given on the command line.
var envFlags = []struct {
	flag string
	env  string
}{
	{"port", "PORT"},
	{"credentials", "CREDENTIALS_FILE"},
	{"require-preauthorization", "REQUIRE_PREAUTHORIZATION"},
	{"secure-cookies", "SECURE_COOKIES"},
	{"staging-dir", "STAGING_DIR"},
	{"history-file", "HISTORY_FILE"},
	{"session-ttl", "SESSION_TTL"},
	{"anonymous-session-ttl", "ANONYMOUS_SESSION_TTL"},
	{"sweep-interval", "SWEEP_INTERVAL"},
	{"max-upload-bytes", "MAX_UPLOAD_BYTES"},
	{"cloud-name", "CLOUDINARY_CLOUD_NAME"},
	{"api-key", "CLOUDINARY_API_KEY"},
	{"api-secret", "CLOUDINARY_API_SECRET"},
	{"remote-timeout", "REMOTE_TIMEOUT"},
	{"suggest-provider", "SUGGEST_PROVIDER"},
	{"suggest-model", "SUGGEST_MODEL"},
}

// Bind registers the serve flags on fs.
func Bind(fs *pflag.FlagSet) *Config {
	c := &Config{}

	fs.StringVarP(&c.Port, "port", "p", "8888", "Port to listen on")
	fs.StringVar(&c.CredentialsFile, "credentials", "credentials.yaml", "Path to the YAML credential file")
	fs.BoolVar(&c.RequirePreauthorization, "require-preauthorization", false, "Only let pre-authorized emails register")
	fs.BoolVar(&c.SecureCookies, "secure-cookies", false, "Mark cookies Secure (serve behind TLS)")
	fs.StringVar(&c.StagingDir, "staging-dir", filepath.Join(os.TempDir(), "imageeditor"), "Directory for staged uploads")
	fs.StringVar(&c.HistoryFile, "history-file", "", "Append transform history to this JSONL file")
	fs.DurationVar(&c.SessionTTL, "session-ttl", 2*time.Hour, "Expire sessions idle for this long")
	fs.DurationVar(&c.AnonymousSessionTTL, "anonymous-session-ttl", 10*time.Minute, "Expire sessions that never logged in after this long idle")
	fs.DurationVar(&c.SweepInterval, "sweep-interval", time.Minute, "How often to look for idle sessions")
	fs.Int64Var(&c.MaxUploadBytes, "max-upload-bytes", 10*1024*1024, "Largest accepted upload")

	fs.StringVar(&c.Cloudinary.CloudName, "cloud-name", "", "Cloudinary cloud name")
	fs.StringVar(&c.Cloudinary.APIKey, "api-key", "", "Cloudinary API key")
	fs.StringVar(&c.Cloudinary.APISecret, "api-secret", "", "Cloudinary API secret")
	fs.DurationVar(&c.Cloudinary.Timeout, "remote-timeout", cloudinary.DefaultTimeout, "Timeout for each remote image call")

	fs.StringVar(&c.Suggest.Provider, "suggest-provider", "", "Vision LLM for object suggestions (gemini, ollama, openai); empty disables")
	fs.StringVar(&c.Suggest.Model, "suggest-model", "", "Model for object suggestions")

	return c
}

// ApplyEnv fills every flag not set on the command line from its
// environment variable. Call it after .env has been loaded.
func (c *Config) ApplyEnv(fs *pflag.FlagSet) error {
	for _, b := range envFlags {
		if fs.Changed(b.flag) {
			continue
		}
		v := os.Getenv(b.env)
		if v == "" {
			continue
		}
		if err := fs.Set(b.flag, v); err != nil {
			return fmt.Errorf("invalid %s: %w", b.env, err)
		}
	}

	c.Suggest.GeminiAPIKey = os.Getenv("GEMINI_API_KEY")
	c.Suggest.OllamaURL = os.Getenv("OLLAMA_URL")
	c.Suggest.OpenAIAPIKey = os.Getenv("OPENAI_API_KEY")
	return nil
}

// Validate reports settings serve cannot start without.
func (c *Config) Validate() error {
	var errs []error
	if c.Cloudinary.CloudName == "" {
		errs = append(errs, errors.New("CLOUDINARY_CLOUD_NAME (or --cloud-name) is required"))
	}
	if c.Cloudinary.APIKey == "" {
		errs = append(errs, errors.New("CLOUDINARY_API_KEY (or --api-key) is required"))
	}
	if c.Cloudinary.APISecret == "" {
		errs = append(errs, errors.New("CLOUDINARY_API_SECRET (or --api-secret) is required"))
	}
	if c.CredentialsFile == "" {
		errs = append(errs, errors.New("CREDENTIALS_FILE (or --credentials) is required"))
	}
	if c.SessionTTL <= 0 {
		errs = append(errs, errors.New("--session-ttl must be positive"))
	}
	if c.AnonymousSessionTTL <= 0 {
		errs = append(errs, errors.New("--anonymous-session-ttl must be positive"))
	}
	if c.SweepInterval <= 0 {
		errs = append(errs, errors.New("--sweep-interval must be positive"))
	}
	if c.MaxUploadBytes <= 0 {
		errs = append(errs, errors.New("--max-upload-bytes must be positive"))
	}
	return errors.Join(errs...)
}
