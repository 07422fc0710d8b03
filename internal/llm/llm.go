// Package llm talks to the local generation backend. The default backend is
// an Ollama instance reached over its native /api/generate contract; an
// OpenAI-compatible /chat/completions backend can be selected by config.
package llm

import (
	"context"
	"errors"
	"time"

	"github.com/quillworks/voxpilot/internal/config"
)

var (
	// ErrUnreachable classifies transport failures: the backend could not be
	// reached at all. Reported to the user, never retried automatically.
	ErrUnreachable = errors.New("generation backend unreachable")

	// ErrEmptyResponse classifies a backend that answered but produced no
	// usable text. Treated as no reply.
	ErrEmptyResponse = errors.New("empty model response")
)

// Generator produces one completion per call. Implementations enforce a
// bounded per-request deadline so an unresponsive backend can never hold a
// conversation's processing lock indefinitely.
type Generator interface {
	Generate(ctx context.Context, model, prompt string) (string, error)
	Ping(ctx context.Context) error
}

// New selects the backend from config.
func New(cfg config.ProviderConfig) Generator {
	timeout := time.Duration(cfg.TimeoutSeconds) * time.Second
	switch cfg.Type {
	case "openai":
		return NewOpenAIClient(cfg.BaseURL, cfg.APIKey, timeout)
	default:
		return NewOllamaClient(cfg.BaseURL, timeout)
	}
}
