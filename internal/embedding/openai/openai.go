package openai

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"strconv"
	"time"

	"golang.org/x/time/rate"

	"docrag/internal/embedding"
	"docrag/internal/logger"
)

// ProviderName identifies the OpenAI-compatible provider.
const ProviderName = "openai"

// Default configuration values.
const (
	DefaultBaseURL    = "https://api.openai.com/v1"
	DefaultModel      = "text-embedding-3-small"
	DefaultTimeout    = 30 * time.Second
	DefaultBatchSize  = 32
	DefaultMaxRetries = 5
)

var _ embedding.Embedder = (*Client)(nil)

// Client is an OpenAI-compatible embeddings client implementing the Embedder interface.
// It also understands Ollama's {"embedding": [...]} response shape.
type Client struct {
	baseURL    string
	apiKey     string
	model      string
	batchSize  int
	client     *http.Client
	limiter    *rate.Limiter
	maxRetries int
}

// Config configures the OpenAI-compatible embeddings client.
type Config struct {
	BaseURL string
	// APIKey takes precedence over APIKeyEnv.
	APIKey    string
	APIKeyEnv string
	Model     string
	Timeout   time.Duration
	BatchSize int
	// RequestsPerSecond limits outgoing requests; 0 disables limiting.
	RequestsPerSecond float64
	// MaxRetries < 0 disables retries; 0 uses the default.
	MaxRetries int
}

// NewClient creates a new embeddings client using the provided configuration.
func NewClient(cfg Config) (*Client, error) {
	key := cfg.APIKey
	if key == "" && cfg.APIKeyEnv != "" {
		key = os.Getenv(cfg.APIKeyEnv)
	}
	if key == "" {
		return nil, fmt.Errorf("missing API key in env %s", cfg.APIKeyEnv)
	}
	if cfg.BaseURL == "" {
		cfg.BaseURL = DefaultBaseURL
	}
	if cfg.Model == "" {
		cfg.Model = DefaultModel
	}
	if cfg.Timeout == 0 {
		cfg.Timeout = DefaultTimeout
	}
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = DefaultBatchSize
	}
	switch {
	case cfg.MaxRetries == 0:
		cfg.MaxRetries = DefaultMaxRetries
	case cfg.MaxRetries < 0:
		cfg.MaxRetries = 0
	}
	limiter := rate.NewLimiter(rate.Inf, 1)
	if cfg.RequestsPerSecond > 0 {
		limiter = rate.NewLimiter(rate.Limit(cfg.RequestsPerSecond), 1)
	}
	return &Client{
		baseURL:    cfg.BaseURL,
		apiKey:     key,
		model:      cfg.Model,
		batchSize:  cfg.BatchSize,
		client:     &http.Client{Timeout: cfg.Timeout},
		limiter:    limiter,
		maxRetries: cfg.MaxRetries,
	}, nil
}

// Name returns the identifier of this embedder implementation.
func (c *Client) Name() string { return ProviderName }

// Model returns the embedding model name.
func (c *Client) Model() string { return c.model }

// Embed returns one embedding per text, sending at most batchSize texts per request.
func (c *Client) Embed(ctx context.Context, texts []string) ([][]float64, error) {
	out := make([][]float64, 0, len(texts))
	for start := 0; start < len(texts); start += c.batchSize {
		end := start + c.batchSize
		if end > len(texts) {
			end = len(texts)
		}
		vecs, err := c.embedBatch(ctx, texts[start:end])
		if err != nil {
			return nil, err
		}
		out = append(out, vecs...)
	}
	return out, nil
}

type request struct {
	Input  any    `json:"input,omitempty"`
	Prompt string `json:"prompt,omitempty"`
	Model  string `json:"model"`
}

func (c *Client) embedBatch(ctx context.Context, texts []string) ([][]float64, error) {
	body := request{Input: texts, Model: c.model}
	if len(texts) == 1 {
		// Ollama's native endpoint reads "prompt"
		body.Prompt = texts[0]
	}
	data, err := json.Marshal(body)
	if err != nil {
		return nil, fmt.Errorf("marshal request: %w", err)
	}
	url := c.baseURL + "/embeddings"

	var lastErr error
	for attempt := 0; attempt <= c.maxRetries; attempt++ {
		if attempt > 0 {
			logger.Debug("openai embeddings retry %d/%d: %v", attempt, c.maxRetries, lastErr)
		}
		if err := c.limiter.Wait(ctx); err != nil {
			return nil, err
		}
		req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(data))
		if err != nil {
			return nil, fmt.Errorf("create request: %w", err)
		}
		req.Header.Set("Content-Type", "application/json")
		req.Header.Set("Authorization", "Bearer "+c.apiKey)

		resp, err := c.client.Do(req)
		if err != nil {
			if ctx.Err() != nil {
				return nil, ctx.Err()
			}
			lastErr = err
			if err := sleep(ctx, retryDelay(attempt)); err != nil {
				return nil, err
			}
			continue
		}

		if resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode >= 500 {
			_ = resp.Body.Close()
			lastErr = fmt.Errorf("openai embeddings failed: %s", resp.Status)
			delay := retryDelay(attempt)
			// Respect Retry-After if provided
			if secs, err := strconv.Atoi(resp.Header.Get("Retry-After")); err == nil {
				delay = time.Duration(secs) * time.Second
			}
			if attempt < c.maxRetries {
				if err := sleep(ctx, delay); err != nil {
					return nil, err
				}
			}
			continue
		}

		payload, err := io.ReadAll(resp.Body)
		_ = resp.Body.Close()
		if resp.StatusCode >= 300 {
			return nil, fmt.Errorf("openai embeddings failed: %s: %s", resp.Status, string(payload))
		}
		if err != nil {
			lastErr = err
			if err := sleep(ctx, retryDelay(attempt)); err != nil {
				return nil, err
			}
			continue
		}
		vecs, err := decode(payload, len(texts))
		if err != nil {
			return nil, err
		}
		return vecs, nil
	}
	return nil, fmt.Errorf("openai embeddings: giving up after %d attempts: %w", c.maxRetries+1, lastErr)
}

// decode accepts the OpenAI shape first, then Ollama's single-embedding shape.
func decode(payload []byte, n int) ([][]float64, error) {
	var openaiOut struct {
		Data []struct {
			Embedding []float64 `json:"embedding"`
			Index     int       `json:"index"`
		} `json:"data"`
	}
	if err := json.Unmarshal(payload, &openaiOut); err == nil && len(openaiOut.Data) > 0 {
		if len(openaiOut.Data) != n {
			return nil, fmt.Errorf("openai embeddings: got %d embeddings for %d inputs", len(openaiOut.Data), n)
		}
		out := make([][]float64, n)
		for _, d := range openaiOut.Data {
			if d.Index < 0 || d.Index >= n || len(d.Embedding) == 0 {
				return nil, fmt.Errorf("openai embeddings: bad embedding at index %d", d.Index)
			}
			out[d.Index] = d.Embedding
		}
		for i, v := range out {
			if v == nil {
				return nil, fmt.Errorf("openai embeddings: missing embedding for input %d", i)
			}
		}
		return out, nil
	}
	var ollamaOut struct {
		Embedding []float64 `json:"embedding"`
	}
	if err := json.Unmarshal(payload, &ollamaOut); err == nil && len(ollamaOut.Embedding) > 0 && n == 1 {
		return [][]float64{ollamaOut.Embedding}, nil
	}
	return nil, errors.New("no embedding returned")
}

func sleep(ctx context.Context, d time.Duration) error {
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

func retryDelay(attempt int) time.Duration {
	if attempt < 0 {
		attempt = 0
	}
	base := 200 * time.Millisecond
	// exponential backoff capped at 5s
	d := base << attempt
	if d > 5*time.Second {
		d = 5 * time.Second
	}
	return d
}
