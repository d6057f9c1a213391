// Package suggest asks a vision LLM which objects in a staged image the
// replace, remove and recolor workflows could target.
package suggest

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"

	"github.com/lehigh-university-libraries/imageeditor/internal/apperr"
	"github.com/lehigh-university-libraries/imageeditor/internal/gemini"
	"github.com/lehigh-university-libraries/imageeditor/internal/metrics"
	"github.com/lehigh-university-libraries/imageeditor/internal/ollama"
	"github.com/lehigh-university-libraries/imageeditor/internal/openai"
	"github.com/lehigh-university-libraries/imageeditor/internal/providers"
	"github.com/lehigh-university-libraries/imageeditor/internal/staging"
)

const (
	maxSuggestions = 10
	cacheSize      = 256
	cacheTTL       = 30 * time.Minute
)

// Settings selects the provider and its credentials.
type Settings struct {
	Provider     string
	Model        string
	GeminiAPIKey string
	OllamaURL    string
	OpenAIAPIKey string
}

// Service handles object suggestions for staged images. Answers are
// cached per staged upload, so asking twice costs one LLM call.
type Service struct {
	provider providers.Provider
	name     string
	model    string
	cache    *expirable.LRU[string, []string]
}

func newCache() *expirable.LRU[string, []string] {
	return expirable.NewLRU[string, []string](cacheSize, nil, cacheTTL)
}

// NewService builds a Service for settings.Provider. An empty provider
// returns a disabled Service.
func NewService(settings Settings) (*Service, error) {
	s := &Service{name: settings.Provider, model: settings.Model, cache: newCache()}

	switch settings.Provider {
	case "":
		return s, nil
	case "gemini":
		s.provider = gemini.New(settings.GeminiAPIKey)
	case "ollama":
		s.provider = ollama.New(settings.OllamaURL)
	case "openai":
		s.provider = openai.New(settings.OpenAIAPIKey)
	default:
		return nil, fmt.Errorf("unsupported suggestion provider: %s", settings.Provider)
	}

	if s.model == "" {
		s.model = defaultModel(settings.Provider)
	}
	return s, nil
}

// NewWithProvider wraps an existing provider.
func NewWithProvider(name, model string, p providers.Provider) *Service {
	return &Service{provider: p, name: name, model: model, cache: newCache()}
}

func (s *Service) Enabled() bool {
	return s != nil && s.provider != nil
}

func defaultModel(provider string) string {
	switch provider {
	case "gemini":
		if model := os.Getenv("GEMINI_MODEL"); model != "" {
			return model
		}
		return "gemini-2.5-flash"
	case "openai":
		if model := os.Getenv("OPENAI_MODEL"); model != "" {
			return model
		}
		return "gpt-4o"
	case "ollama":
		if model := os.Getenv("OLLAMA_MODEL"); model != "" {
			return model
		}
		return "mistral-small3.2:24b"
	default:
		return ""
	}
}

func buildPrompt() string {
	return `List the distinct physical objects and garments visible in this photo that a person might want to remove, replace or recolor.

INSTRUCTIONS:
1. Use short, common nouns (e.g. "bottle", "t shirt", "armchair")
2. Most prominent objects first
3. No more than 10 items
4. Respond with a comma-separated list only, no numbering or commentary`
}

// Suggest returns object names found in the staged upload.
func (s *Service) Suggest(ctx context.Context, upload *staging.Upload) ([]string, error) {
	const op = "suggest objects"
	if !s.Enabled() {
		return nil, apperr.Validation(op, "object suggestions are not configured")
	}
	if upload == nil {
		return nil, apperr.Validation(op, "upload an image first")
	}

	if items, ok := s.cache.Get(upload.ID); ok {
		metrics.SuggestCacheTotal.WithLabelValues("hit").Inc()
		return items, nil
	}
	metrics.SuggestCacheTotal.WithLabelValues("miss").Inc()

	data, err := upload.ReadAll()
	if err != nil {
		return nil, err
	}

	slog.Info("Requesting object suggestions", "provider", s.name, "model", s.model, "upload", upload.Filename)
	text, err := s.provider.Generate(ctx, providers.Config{
		Model:       s.model,
		Temperature: 0.1,
		Prompt:      buildPrompt(),
		Image:       data,
		MIMEType:    upload.ContentType,
	})
	if err != nil {
		return nil, apperr.RemoteWrap(op, err)
	}

	items := Parse(text)
	s.cache.Add(upload.ID, items)
	slog.Info("Object suggestions received", "provider", s.name, "count", len(items))
	return items, nil
}

// Parse splits a comma, semicolon or newline separated list, dropping
// list markers, quotes, blanks and case-insensitive duplicates.
func Parse(text string) []string {
	fields := strings.FieldsFunc(text, func(r rune) bool {
		return r == ',' || r == '\n' || r == ';'
	})

	seen := make(map[string]bool)
	var items []string
	for _, f := range fields {
		item := strings.TrimSpace(f)
		item = strings.TrimLeft(item, "-*•0123456789. ")
		item = strings.Trim(item, "\"'`. ")
		item = strings.ToLower(item)
		if item == "" || seen[item] {
			continue
		}
		seen[item] = true
		items = append(items, item)
		if len(items) == maxSuggestions {
			break
		}
	}
	return items
}
