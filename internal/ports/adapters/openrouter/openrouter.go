package openrouter

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"regexp"
	"strings"
	"time"

	"github.com/forPelevin/vidsum/internal/ports"
)

const (
	DefaultModel       = "meta-llama/llama-3.1-70b-instruct:free"
	DefaultMaxTokens   = 4096
	DefaultTemperature = 0.7

	requestTimeout = 90 * time.Second
)

type Config struct {
	APIKey      string
	Model       string
	BaseURL     string
	MaxTokens   int
	Temperature float64
	// HTTPClient overrides the default client. Streaming requests rely on the
	// caller context for cancellation, so its Timeout should stay generous.
	HTTPClient *http.Client
}

type Adapter struct {
	key         string
	model       string
	baseURL     string
	maxTokens   int
	temperature float64
	client      *http.Client
}

func New(cfg Config) (*Adapter, error) {
	if strings.TrimSpace(cfg.APIKey) == "" {
		return nil, ports.Wrap(ports.ErrNotConfigured, errors.New("OpenRouter API key is required. Set OPENROUTER_API_KEY environment variable"))
	}
	a := &Adapter{
		key:         cfg.APIKey,
		model:       cfg.Model,
		baseURL:     trimBaseURL(cfg.BaseURL),
		maxTokens:   cfg.MaxTokens,
		temperature: cfg.Temperature,
		client:      cfg.HTTPClient,
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
	if a.client == nil {
		a.client = &http.Client{Timeout: 5 * time.Minute}
	}
	return a, nil
}

func (a *Adapter) Model() string { return a.model }

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type chatRequest struct {
	Model       string        `json:"model"`
	Messages    []chatMessage `json:"messages"`
	MaxTokens   int           `json:"max_tokens"`
	Temperature float64       `json:"temperature"`
	Stream      bool          `json:"stream"`
}

func (a *Adapter) payload(req ports.Completion, stream bool) ([]byte, error) {
	p := chatRequest{
		Model:       a.model,
		MaxTokens:   a.maxTokens,
		Temperature: a.temperature,
		Stream:      stream,
	}
	if req.Model != "" {
		p.Model = req.Model
	}
	if req.MaxTokens > 0 {
		p.MaxTokens = req.MaxTokens
	}
	if req.Temperature > 0 {
		p.Temperature = req.Temperature
	}
	if req.System != "" {
		p.Messages = append(p.Messages, chatMessage{Role: "system", Content: req.System})
	}
	p.Messages = append(p.Messages, chatMessage{Role: "user", Content: req.Prompt})
	b, err := json.Marshal(p)
	if err != nil {
		return nil, fmt.Errorf("marshal request: %w", err)
	}
	return b, nil
}

// do sends the request and checks the status. Network failures, 429 and 5xx
// are tagged as transport errors so callers may retry them.
func (a *Adapter) do(ctx context.Context, body []byte) (*http.Response, error) {
	url := a.baseURL + "/api/v1/chat/completions"
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Authorization", "Bearer "+a.key)
	req.Header.Set("Content-Type", "application/json")

	resp, err := a.client.Do(req)
	if err != nil {
		if errors.Is(ctx.Err(), context.DeadlineExceeded) {
			return nil, ports.Wrap(ports.ErrLLMTransport, fmt.Errorf("openrouter timeout (model=%s): %w", a.model, err))
		}
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		return nil, ports.Wrap(ports.ErrLLMTransport, fmt.Errorf("openrouter request: %s", redactSecrets(err.Error(), a.key)))
	}
	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		return resp, nil
	}
	defer resp.Body.Close()

	rb, readErr := io.ReadAll(io.LimitReader(resp.Body, 64<<10))
	var statusErr error
	if readErr != nil {
		statusErr = fmt.Errorf("openrouter status %d and read body failed: %v", resp.StatusCode, readErr)
	} else {
		statusErr = fmt.Errorf("openrouter status %d: %s", resp.StatusCode, truncate(redactSecrets(string(rb), a.key), 400))
	}
	if resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode >= 500 {
		return nil, ports.Wrap(ports.ErrLLMTransport, statusErr)
	}
	return nil, statusErr
}

func (a *Adapter) Complete(ctx context.Context, req ports.Completion) (string, error) {
	body, err := a.payload(req, false)
	if err != nil {
		return "", err
	}

	reqCtx, cancel := context.WithTimeout(ctx, requestTimeout)
	defer cancel()

	resp, err := a.do(reqCtx, body)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()

	var raw struct {
		Choices []struct {
			Message struct {
				Content any `json:"content"`
			} `json:"message"`
		} `json:"choices"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&raw); err != nil {
		return "", ports.Wrap(ports.ErrLLMTransport, fmt.Errorf("openrouter: decode response: %w", err))
	}
	if len(raw.Choices) == 0 {
		return "", errors.New("openrouter: no choices in response")
	}
	return messageContentToString(raw.Choices[0].Message.Content)
}

// Stream reads the server-sent event stream and forwards each content delta.
func (a *Adapter) Stream(ctx context.Context, req ports.Completion, onChunk func(string) error) error {
	body, err := a.payload(req, true)
	if err != nil {
		return err
	}
	resp, err := a.do(ctx, body)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	sc := bufio.NewScanner(resp.Body)
	sc.Buffer(make([]byte, 0, 64<<10), 1<<20)
	for sc.Scan() {
		line := strings.TrimSpace(sc.Text())
		// Blank separators and ": keep-alive" comments carry no data.
		data, ok := strings.CutPrefix(line, "data:")
		if !ok {
			continue
		}
		data = strings.TrimSpace(data)
		if data == "[DONE]" {
			return nil
		}

		var ev struct {
			Choices []struct {
				Delta struct {
					Content string `json:"content"`
				} `json:"delta"`
			} `json:"choices"`
			Error *struct {
				Message string `json:"message"`
			} `json:"error"`
		}
		if err := json.Unmarshal([]byte(data), &ev); err != nil {
			return fmt.Errorf("openrouter: decode stream event: %w", err)
		}
		if ev.Error != nil {
			return fmt.Errorf("openrouter: streaming failed: %s", redactSecrets(ev.Error.Message, a.key))
		}
		if len(ev.Choices) == 0 || ev.Choices[0].Delta.Content == "" {
			continue
		}
		if err := onChunk(ev.Choices[0].Delta.Content); err != nil {
			return err
		}
	}
	if err := sc.Err(); err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		return ports.Wrap(ports.ErrLLMTransport, fmt.Errorf("openrouter: streaming failed: %w", err))
	}
	return nil
}

func messageContentToString(v any) (string, error) {
	switch x := v.(type) {
	case string:
		return x, nil
	case []any:
		// Some providers return an array of {type,text} parts.
		var b strings.Builder
		for _, it := range x {
			m, ok := it.(map[string]any)
			if !ok {
				continue
			}
			if t, ok := m["text"].(string); ok {
				b.WriteString(t)
			}
		}
		s := b.String()
		if strings.TrimSpace(s) == "" {
			return "", errors.New("openrouter: empty content")
		}
		return s, nil
	case nil:
		return "", errors.New("openrouter: empty content")
	default:
		return "", fmt.Errorf("openrouter: unexpected content type %T", v)
	}
}

func truncate(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n])
}

var (
	bearerTokenRE = regexp.MustCompile(`(?i)\bBearer\s+[A-Za-z0-9._-]+\b`)
	authHeaderRE  = regexp.MustCompile(`(?i)(authorization\s*[:=]\s*)([^\n\r,;]+)`)
	apiKeyFieldRE = regexp.MustCompile(`(?i)(api[_-]?key\s*[:=]\s*)([^\n\r,;]+)`)
)

func redactSecrets(s, apiKey string) string {
	if s == "" {
		return s
	}
	out := s
	if apiKey != "" {
		out = strings.ReplaceAll(out, apiKey, "[REDACTED]")
	}
	out = bearerTokenRE.ReplaceAllString(out, "Bearer [REDACTED]")
	out = authHeaderRE.ReplaceAllString(out, "${1}[REDACTED]")
	out = apiKeyFieldRE.ReplaceAllString(out, "${1}[REDACTED]")
	return out
}
