package suggest

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/tomichandesu/research-tool-sub000/internal/proxy"
	"github.com/tomichandesu/research-tool-sub000/internal/repository"
	"github.com/tomichandesu/research-tool-sub000/pkg/logger"
	"github.com/tomichandesu/research-tool-sub000/pkg/utils"
)

// Client fetches autocomplete suggestions from the marketplace completion API.
type Client struct {
	endpoint      string
	marketplaceID string
	agents        *proxy.Manager
	http          *http.Client
	logger        *zap.Logger
}

var _ repository.SuggestRepository = (*Client)(nil)

// NewClient creates a suggestion client. agents supplies the User-Agent
// header and may be nil.
func NewClient(endpoint, marketplaceID string, timeout time.Duration, agents *proxy.Manager, l *zap.Logger) *Client {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &Client{
		endpoint:      endpoint,
		marketplaceID: marketplaceID,
		agents:        agents,
		http:          &http.Client{Timeout: timeout},
		logger:        logger.OrNop(l).Named("suggest"),
	}
}

type suggestResponse struct {
	Suggestions []struct {
		Value string `json:"value"`
	} `json:"suggestions"`
}

// Suggest returns the completion API's suggestions for keyword, excluding
// the keyword itself.
func (c *Client) Suggest(ctx context.Context, keyword string) ([]string, error) {
	q := url.Values{}
	q.Set("mid", c.marketplaceID)
	q.Set("alias", "aps")
	q.Set("prefix", keyword)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.endpoint+"?"+q.Encode(), nil)
	if err != nil {
		return nil, fmt.Errorf("new request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	if ua := c.agents.GetUserAgent(); ua != "" {
		req.Header.Set("User-Agent", ua)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("do request: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("unexpected status %s", resp.Status)
	}

	var body suggestResponse
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return nil, fmt.Errorf("decode response: %w", err)
	}

	self := utils.NormalizeKeyword(keyword)
	out := make([]string, 0, len(body.Suggestions))
	for _, s := range body.Suggestions {
		v := strings.TrimSpace(s.Value)
		if v == "" || utils.NormalizeKeyword(v) == self {
			continue
		}
		out = append(out, v)
	}
	c.logger.Debug("suggestions fetched", zap.String("keyword", keyword), zap.Int("count", len(out)))
	return out, nil
}
