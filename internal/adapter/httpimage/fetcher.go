package httpimage

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"github.com/tomichandesu/research-tool-sub000/internal/proxy"
	"github.com/tomichandesu/research-tool-sub000/internal/repository"
)

const (
	// maxImageBytes caps a single download.
	maxImageBytes = 10 << 20
	// proxyBench is how long a proxy sits out after a failed download.
	proxyBench = 2 * time.Minute
)

type proxyKey struct{}

var ErrTooLarge = errors.New("image exceeds size limit")

// Fetcher downloads product images over HTTP, routed through the rotating
// proxy list when one is configured.
type Fetcher struct {
	client  *http.Client
	proxies *proxy.Manager
}

var _ repository.ImageFetcher = (*Fetcher)(nil)

// NewFetcher creates a fetcher. proxies may be nil.
func NewFetcher(timeout time.Duration, proxies *proxy.Manager) *Fetcher {
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	transport := http.DefaultTransport.(*http.Transport).Clone()
	transport.Proxy = func(req *http.Request) (*url.URL, error) {
		p, _ := req.Context().Value(proxyKey{}).(string)
		if p == "" {
			return nil, nil
		}
		return url.Parse(p)
	}
	return &Fetcher{
		client:  &http.Client{Timeout: timeout, Transport: transport},
		proxies: proxies,
	}
}

// Fetch returns the body of imageURL. A transport failure or a blocking
// status benches the proxy the request went through.
func (f *Fetcher) Fetch(ctx context.Context, imageURL string) ([]byte, error) {
	via := f.proxies.GetProxy()
	req, err := http.NewRequestWithContext(context.WithValue(ctx, proxyKey{}, via), http.MethodGet, imageURL, nil)
	if err != nil {
		return nil, fmt.Errorf("new request: %w", err)
	}
	if ua := f.proxies.GetUserAgent(); ua != "" {
		req.Header.Set("User-Agent", ua)
	}

	resp, err := f.client.Do(req)
	if err != nil {
		if ctx.Err() == nil {
			f.proxies.Bench(via, proxyBench)
		}
		return nil, fmt.Errorf("do request: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		switch resp.StatusCode {
		case http.StatusForbidden, http.StatusProxyAuthRequired, http.StatusTooManyRequests:
			f.proxies.Bench(via, proxyBench)
		}
		return nil, fmt.Errorf("unexpected status %s", resp.Status)
	}

	data, err := io.ReadAll(io.LimitReader(resp.Body, maxImageBytes+1))
	if err != nil {
		return nil, fmt.Errorf("read body: %w", err)
	}
	if len(data) > maxImageBytes {
		return nil, ErrTooLarge
	}
	return data, nil
}
