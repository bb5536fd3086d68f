package embedding

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/tomichandesu/research-tool-sub000/internal/repository"
	"github.com/tomichandesu/research-tool-sub000/pkg/config"
)

// ErrUnavailable is returned when no embedding endpoint is configured.
var ErrUnavailable = errors.New("embedding model unavailable")

// Client talks to a remote image-embedding service.
type Client struct {
	endpoint string
	model    string
	apiKey   string
	http     *http.Client
}

var _ repository.ImageEmbedder = (*Client)(nil)

// NewClient creates a reusable HTTP client. An empty endpoint yields a client
// that reports itself unavailable.
func NewClient(cfg config.EmbeddingConfig) *Client {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &Client{
		endpoint: cfg.Endpoint,
		model:    cfg.Model,
		apiKey:   cfg.APIKey,
		http:     &http.Client{Timeout: timeout},
	}
}

func (c *Client) Available() bool { return c.endpoint != "" }

type embedRequest struct {
	Model string `json:"model"`
	Image string `json:"image"`
}

type embedResponse struct {
	Embedding []float32 `json:"embedding"`
}

// EmbedImage sends the base64-encoded image and returns its embedding vector.
func (c *Client) EmbedImage(ctx context.Context, image []byte) ([]float32, error) {
	if !c.Available() {
		return nil, ErrUnavailable
	}
	body, err := json.Marshal(embedRequest{Model: c.model, Image: base64.StdEncoding.EncodeToString(image)})
	if err != nil {
		return nil, fmt.Errorf("marshal payload: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("new request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if c.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.apiKey)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("do request: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("unexpected status %s", resp.Status)
	}

	var out embedResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return nil, fmt.Errorf("decode response: %w", err)
	}
	if len(out.Embedding) == 0 {
		return nil, errors.New("empty embedding")
	}
	return out.Embedding, nil
}
