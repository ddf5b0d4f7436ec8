// Package llm selects a text-generation provider and layers retries and
// structured-output extraction on top of it.
package llm

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"time"

	"github.com/forPelevin/vidsum/internal/domain/structured"
	"github.com/forPelevin/vidsum/internal/ports"
	"github.com/forPelevin/vidsum/internal/ports/adapters/gemini"
	"github.com/forPelevin/vidsum/internal/ports/adapters/openrouter"
)

const (
	ProviderGoogle     = "google"
	ProviderOpenRouter = "openrouter"

	// JSONTemperature is used for every request whose reply must parse as JSON.
	JSONTemperature = 0.3
)

type Config struct {
	Provider string

	OpenRouterAPIKey       string
	OpenRouterModel        string
	OpenRouterBaseURL      string
	OpenRouterAllowedHosts []string

	GoogleAPIKey string
	GoogleModel  string

	MaxTokens   int
	Temperature float64

	MaxRetries int
	RetryDelay time.Duration
}

// New builds the configured provider wrapped in Retrying. A missing
// credential fails here with ports.ErrNotConfigured.
func New(ctx context.Context, cfg Config, log *slog.Logger) (ports.LLM, error) {
	var (
		base ports.LLM
		err  error
	)
	switch p := strings.ToLower(strings.TrimSpace(cfg.Provider)); p {
	case ProviderGoogle:
		base, err = gemini.New(ctx, gemini.Config{
			APIKey:      cfg.GoogleAPIKey,
			Model:       cfg.GoogleModel,
			Temperature: cfg.Temperature,
		})
	case ProviderOpenRouter, "":
		if err := openrouter.ValidateBaseURL(cfg.OpenRouterBaseURL, cfg.OpenRouterAllowedHosts); err != nil {
			return nil, err
		}
		base, err = openrouter.New(openrouter.Config{
			APIKey:      cfg.OpenRouterAPIKey,
			Model:       cfg.OpenRouterModel,
			BaseURL:     cfg.OpenRouterBaseURL,
			MaxTokens:   cfg.MaxTokens,
			Temperature: cfg.Temperature,
		})
	default:
		return nil, fmt.Errorf("unknown provider: %s. Use 'google' or 'openrouter'", cfg.Provider)
	}
	if err != nil {
		return nil, err
	}
	return NewRetrying(base, cfg.MaxRetries, cfg.RetryDelay, log), nil
}

// Retrying re-issues requests that failed with ports.ErrLLMTransport. Other
// errors, including a malformed reply, are returned immediately.
type Retrying struct {
	next     ports.LLM
	attempts int
	delay    time.Duration
	log      *slog.Logger
	sleep    func(ctx context.Context, d time.Duration) error
}

func NewRetrying(next ports.LLM, attempts int, delay time.Duration, log *slog.Logger) *Retrying {
	if attempts <= 0 {
		attempts = 3
	}
	if delay < 0 {
		delay = 0
	}
	if log == nil {
		log = slog.Default()
	}
	return &Retrying{next: next, attempts: attempts, delay: delay, log: log, sleep: sleepCtx}
}

// Close releases the wrapped provider when it holds a client.
func (r *Retrying) Close() error {
	if c, ok := r.next.(io.Closer); ok {
		return c.Close()
	}
	return nil
}

func (r *Retrying) Complete(ctx context.Context, req ports.Completion) (string, error) {
	var lastErr error
	for attempt := 0; attempt < r.attempts; attempt++ {
		out, err := r.next.Complete(ctx, req)
		if err == nil {
			return out, nil
		}
		if !errors.Is(err, ports.ErrLLMTransport) {
			return "", err
		}
		lastErr = err
		if attempt == r.attempts-1 {
			break
		}
		wait := r.delay * time.Duration(attempt+1)
		r.log.Warn("llm call failed, retrying", "attempt", attempt+1, "wait", wait, "error", err)
		if err := r.sleep(ctx, wait); err != nil {
			return "", err
		}
	}
	return "", ports.Wrap(ports.ErrLLMTransport, fmt.Errorf("API call failed after %d retries: %w", r.attempts, lastErr))
}

// Stream is not retried: chunks may already have reached the caller.
func (r *Retrying) Stream(ctx context.Context, req ports.Completion, onChunk func(string) error) error {
	return r.next.Stream(ctx, req, onChunk)
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

// CompleteJSON asks for a JSON reply at a low temperature and recovers the
// object with structured.Extract.
func CompleteJSON(ctx context.Context, l ports.LLM, req ports.Completion) (map[string]any, error) {
	req.Temperature = JSONTemperature
	text, err := l.Complete(ctx, req)
	if err != nil {
		return nil, err
	}
	return structured.Extract(text)
}
