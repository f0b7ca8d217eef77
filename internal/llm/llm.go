// Package llm wraps hosted chat models behind a single Completer interface.
package llm

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/asksql/asksql/internal/observability"
)

// ErrProvider marks any failure talking to, or getting a usable answer from,
// the model provider.
var ErrProvider = errors.New("llm provider request failed")

const (
	ProviderGemini = "gemini"
	ProviderGroq   = "groq"
	ProviderOpenAI = "openai"
)

type Prompt struct {
	System      string
	User        string
	Temperature *float64
	MaxTokens   int
}

type Completion struct {
	Text     string
	Provider string
	Model    string
}

type Completer interface {
	Complete(ctx context.Context, prompt Prompt) (Completion, error)
}

type Config struct {
	Provider string
	BaseURL  string
	APIKey   string
	Model    string
	Timeout  time.Duration
}

// New builds the completer for cfg.Provider.
func New(ctx context.Context, cfg Config) (Completer, error) {
	provider := strings.ToLower(strings.TrimSpace(cfg.Provider))
	switch provider {
	case ProviderGemini:
		return NewGemini(ctx, GeminiConfig{
			APIKey:  cfg.APIKey,
			BaseURL: cfg.BaseURL,
			Model:   cfg.Model,
			Timeout: cfg.Timeout,
		})
	case ProviderGroq, ProviderOpenAI:
		baseURL := cfg.BaseURL
		if baseURL == "" && provider == ProviderGroq {
			baseURL = DefaultGroqBaseURL
		}
		return NewOpenAICompatible(OpenAIConfig{
			Name:    provider,
			BaseURL: baseURL,
			APIKey:  cfg.APIKey,
			Model:   cfg.Model,
			Timeout: cfg.Timeout,
		})
	default:
		return nil, fmt.Errorf("unsupported llm provider %q", cfg.Provider)
	}
}

func Temperature(value float64) *float64 {
	return &value
}

// StripCodeFence removes a surrounding markdown code fence such as
// ```sql ... ``` or ```json ... ```.
func StripCodeFence(value string) string {
	trimmed := strings.TrimSpace(value)
	if !strings.HasPrefix(trimmed, "```") {
		return trimmed
	}
	trimmed = strings.TrimPrefix(trimmed, "```")
	if newline := strings.IndexByte(trimmed, '\n'); newline >= 0 {
		lang := strings.TrimSpace(trimmed[:newline])
		if !strings.ContainsAny(lang, " \t") {
			trimmed = trimmed[newline+1:]
		}
	}
	trimmed = strings.TrimSpace(trimmed)
	trimmed = strings.TrimSuffix(trimmed, "```")
	return strings.TrimSpace(trimmed)
}

type instrumented struct {
	next      Completer
	operation string
	provider  string
}

// Instrument records latency and failures of every completion under operation.
func Instrument(next Completer, operation, provider string) Completer {
	return &instrumented{next: next, operation: operation, provider: provider}
}

func (c *instrumented) Complete(ctx context.Context, prompt Prompt) (Completion, error) {
	start := time.Now()
	completion, err := c.next.Complete(ctx, prompt)
	observability.ObserveLLMCall(c.operation, c.provider, time.Since(start), err)
	return completion, err
}

func providerError(provider, format string, args ...any) error {
	return fmt.Errorf("%w: %s: %s", ErrProvider, provider, fmt.Sprintf(format, args...))
}
