package gemini

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/google/generative-ai-go/genai"
	"google.golang.org/api/googleapi"
	"google.golang.org/api/iterator"
	"google.golang.org/api/option"

	"github.com/forPelevin/vidsum/internal/ports"
)

const (
	DefaultModel       = "gemini-1.5-flash"
	DefaultMaxTokens   = 8000
	DefaultTemperature = 0.7
)

type Config struct {
	APIKey      string
	Model       string
	MaxTokens   int
	Temperature float64
	// Concurrency caps in-flight requests. Zero means 4.
	Concurrency int
}

type Adapter struct {
	client      *genai.Client
	model       string
	maxTokens   int
	temperature float64
	slots       chan struct{}
}

func New(ctx context.Context, cfg Config) (*Adapter, error) {
	if strings.TrimSpace(cfg.APIKey) == "" {
		return nil, ports.Wrap(ports.ErrNotConfigured, errors.New("Google API key is required. Set GOOGLE_API_KEY environment variable"))
	}
	client, err := genai.NewClient(ctx, option.WithAPIKey(cfg.APIKey))
	if err != nil {
		return nil, fmt.Errorf("failed to create Gemini client: %w", err)
	}
	a := &Adapter{
		client:      client,
		model:       cfg.Model,
		maxTokens:   cfg.MaxTokens,
		temperature: cfg.Temperature,
	}
	if a.model == "" {
		a.model = DefaultModel
	}
	if a.maxTokens <= 0 {
		a.maxTokens = DefaultMaxTokens
	}
	if a.temperature <= 0 {
		a.temperature = DefaultTemperature
	}
	n := cfg.Concurrency
	if n <= 0 {
		n = 4
	}
	a.slots = make(chan struct{}, n)
	return a, nil
}

func (a *Adapter) Close() error { return a.client.Close() }

func (a *Adapter) Model() string { return a.model }

func (a *Adapter) acquire(ctx context.Context) error {
	select {
	case a.slots <- struct{}{}:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	case <-time.After(5 * time.Minute):
		return ports.Wrap(ports.ErrLLMTransport, errors.New("timeout waiting for Gemini rate slot"))
	}
}

func (a *Adapter) release() { <-a.slots }

// generativeModel builds a per-request model so concurrent calls never share
// generation settings.
func (a *Adapter) generativeModel(req ports.Completion) *genai.GenerativeModel {
	name := a.model
	if req.Model != "" {
		name = req.Model
	}
	m := a.client.GenerativeModel(name)
	configure(m, req, a.maxTokens, a.temperature)
	return m
}

func configure(m *genai.GenerativeModel, req ports.Completion, maxTokens int, temperature float64) {
	if req.MaxTokens > 0 {
		maxTokens = req.MaxTokens
	}
	if req.Temperature > 0 {
		temperature = req.Temperature
	}
	m.SetMaxOutputTokens(int32(maxTokens))
	m.SetTemperature(float32(temperature))
	if req.System != "" {
		m.SystemInstruction = &genai.Content{Parts: []genai.Part{genai.Text(req.System)}}
	}
}

func (a *Adapter) Complete(ctx context.Context, req ports.Completion) (string, error) {
	if err := a.acquire(ctx); err != nil {
		return "", err
	}
	defer a.release()

	resp, err := a.generativeModel(req).GenerateContent(ctx, genai.Text(req.Prompt))
	if err != nil {
		return "", classify(ctx, fmt.Errorf("Gemini API error: %w", err))
	}
	text := extractText(resp)
	if strings.TrimSpace(text) == "" {
		return "", fmt.Errorf("gemini: empty response (finish reason %s)", finishReason(resp))
	}
	return text, nil
}

func (a *Adapter) Stream(ctx context.Context, req ports.Completion, onChunk func(string) error) error {
	if err := a.acquire(ctx); err != nil {
		return err
	}
	defer a.release()

	it := a.generativeModel(req).GenerateContentStream(ctx, genai.Text(req.Prompt))
	for {
		resp, err := it.Next()
		if errors.Is(err, iterator.Done) {
			return nil
		}
		if err != nil {
			return classify(ctx, fmt.Errorf("gemini: streaming failed: %w", err))
		}
		if chunk := extractText(resp); chunk != "" {
			if err := onChunk(chunk); err != nil {
				return err
			}
		}
	}
}

// classify tags retryable failures. Caller cancellation is returned as is.
func classify(ctx context.Context, err error) error {
	if ctx.Err() != nil {
		return ctx.Err()
	}
	var gerr *googleapi.Error
	if errors.As(err, &gerr) {
		if retryableStatus(gerr.Code) {
			return ports.Wrap(ports.ErrLLMTransport, err)
		}
		return err
	}
	var coded interface{ HTTPCode() int }
	if errors.As(err, &coded) && coded.HTTPCode() > 0 {
		if retryableStatus(coded.HTTPCode()) {
			return ports.Wrap(ports.ErrLLMTransport, err)
		}
		return err
	}
	return ports.Wrap(ports.ErrLLMTransport, err)
}

func retryableStatus(code int) bool {
	return code == http.StatusTooManyRequests || code >= 500
}

func extractText(resp *genai.GenerateContentResponse) string {
	if resp == nil {
		return ""
	}
	var b strings.Builder
	for _, c := range resp.Candidates {
		if c == nil || c.Content == nil {
			continue
		}
		for _, p := range c.Content.Parts {
			if t, ok := p.(genai.Text); ok {
				b.WriteString(string(t))
			}
		}
		// Only the first candidate is used.
		break
	}
	return b.String()
}

func finishReason(resp *genai.GenerateContentResponse) string {
	if resp == nil || len(resp.Candidates) == 0 || resp.Candidates[0] == nil {
		return "unknown"
	}
	return resp.Candidates[0].FinishReason.String()
}
