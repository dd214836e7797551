// Package llm turns a question prompt into model text through an
// OpenAI-compatible endpoint or the Anthropic API.
package llm

import (
	"context"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/ekaya-inc/ekaya-querykit/pkg/apperrors"
	"github.com/ekaya-inc/ekaya-querykit/pkg/config"
)

// Provider names accepted in config.
const (
	ProviderOpenAI    = "openai"
	ProviderAnthropic = "anthropic"
)

// TextService generates a completion for a system message and a user prompt.
type TextService interface {
	Generate(ctx context.Context, system, prompt string) (string, error)
}

// Config holds what every provider needs.
type Config struct {
	Endpoint    string // Base URL, e.g. "http://localhost:11434/v1"
	Model       string
	APIKey      string // Optional for local endpoints
	Temperature float64
}

// New builds the configured provider wrapped in retries and a circuit
// breaker. Returns apperrors.ErrLLMNotConfigured when no model is set.
func New(cfg config.LLMConfig, logger *zap.Logger) (TextService, error) {
	if !cfg.IsAvailable() {
		return nil, apperrors.ErrLLMNotConfigured
	}

	pc := &Config{
		Endpoint:    cfg.Endpoint,
		Model:       cfg.Model,
		APIKey:      cfg.APIKey,
		Temperature: cfg.Temperature,
	}

	var (
		svc TextService
		err error
	)
	switch strings.ToLower(cfg.Provider) {
	case "", ProviderOpenAI, "ollama":
		svc, err = NewOpenAIClient(pc, logger)
	case ProviderAnthropic:
		svc, err = NewAnthropicClient(pc, logger)
	default:
		return nil, fmt.Errorf("unknown llm provider %q", cfg.Provider)
	}
	if err != nil {
		return nil, err
	}
	return NewGuarded(svc, cfg.MaxRetries, DefaultCircuitBreakerConfig(), logger), nil
}
