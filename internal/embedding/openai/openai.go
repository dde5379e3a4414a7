package openai

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"time"

	goopenai "github.com/sashabaranov/go-openai"
)

const (
	DefaultModel     = "text-embedding-3-small"
	DefaultAPIKeyEnv = "OPENAI_API_KEY"
)

// Client is an OpenAI-compatible embeddings client.
type Client struct {
	client     *goopenai.Client
	model      string
	maxRetries int
}

// Config configures the OpenAI-compatible embeddings client.
type Config struct {
	BaseURL    string
	APIKeyEnv  string
	Model      string
	MaxRetries int
}

// NewClient creates a new embeddings client using the provided configuration.
func NewClient(cfg Config) (*Client, error) {
	if cfg.APIKeyEnv == "" {
		cfg.APIKeyEnv = DefaultAPIKeyEnv
	}
	key := os.Getenv(cfg.APIKeyEnv)
	if key == "" {
		return nil, fmt.Errorf("missing API key in env %s", cfg.APIKeyEnv)
	}
	if cfg.Model == "" {
		cfg.Model = DefaultModel
	}
	oc := goopenai.DefaultConfig(key)
	if cfg.BaseURL != "" {
		oc.BaseURL = cfg.BaseURL
	}
	return &Client{
		client:     goopenai.NewClientWithConfig(oc),
		model:      cfg.Model,
		maxRetries: max(cfg.MaxRetries, 0),
	}, nil
}

// Model returns the embedding model identifier.
func (c *Client) Model() string { return c.model }

// Embed returns an embedding vector for the given text.
func (c *Client) Embed(ctx context.Context, text string) ([]float32, error) {
	req := goopenai.EmbeddingRequestStrings{
		Input: []string{text},
		Model: goopenai.EmbeddingModel(c.model),
	}
	var lastErr error
	for attempt := 0; attempt <= c.maxRetries; attempt++ {
		if attempt > 0 {
			select {
			case <-ctx.Done():
				return nil, ctx.Err()
			case <-time.After(retryDelay(attempt - 1)):
			}
		}
		resp, err := c.client.CreateEmbeddings(ctx, req)
		if err != nil {
			lastErr = err
			if retryable(ctx, err) {
				continue
			}
			return nil, err
		}
		if len(resp.Data) == 0 {
			return nil, errors.New("no embedding returned")
		}
		src := resp.Data[0].Embedding
		v := make([]float32, len(src))
		for i := range src {
			v[i] = float32(src[i])
		}
		return v, nil
	}
	return nil, lastErr
}

func retryable(ctx context.Context, err error) bool {
	if ctx.Err() != nil {
		return false
	}
	var apiErr *goopenai.APIError
	if errors.As(err, &apiErr) {
		return apiErr.HTTPStatusCode == http.StatusTooManyRequests || apiErr.HTTPStatusCode >= 500
	}
	var reqErr *goopenai.RequestError
	if errors.As(err, &reqErr) {
		return reqErr.HTTPStatusCode == http.StatusTooManyRequests || reqErr.HTTPStatusCode >= 500
	}
	// transport-level failure
	return true
}

func retryDelay(attempt int) time.Duration {
	if attempt < 0 {
		attempt = 0
	}
	if attempt > 5 {
		return 5 * time.Second
	}
	base := 200 * time.Millisecond
	// exponential backoff capped at 5s
	d := base << attempt
	if d > 5*time.Second {
		d = 5 * time.Second
	}
	return d
}
