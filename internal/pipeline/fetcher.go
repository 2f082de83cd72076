package pipeline

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"time"
)

// MediaFetcher downloads recording bytes from the telephony upstream.
type MediaFetcher interface {
	Fetch(ctx context.Context, url string) ([]byte, error)
}

// HTTPFetcher fetches media over HTTP with a bearer credential. The client
// carries no overall timeout; each attempt is bounded by the caller's
// per-attempt context, since the upstream is known to be slow.
type HTTPFetcher struct {
	client    *http.Client
	authToken string
}

// NewHTTPFetcher creates a fetcher with a pooled transport.
func NewHTTPFetcher(authToken string) *HTTPFetcher {
	return &HTTPFetcher{
		client: &http.Client{
			Transport: &http.Transport{
				MaxIdleConns:        100,
				MaxIdleConnsPerHost: 10,
				IdleConnTimeout:     90 * time.Second,
				TLSHandshakeTimeout: 10 * time.Second,
			},
		},
		authToken: authToken,
	}
}

// Fetch performs a single download attempt. Any non-2xx response is an error.
func (f *HTTPFetcher) Fetch(ctx context.Context, url string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create download request: %w", err)
	}
	if f.authToken != "" {
		req.Header.Set("Authorization", "Bearer "+f.authToken)
	}

	resp, err := f.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("download request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, fmt.Errorf("upstream returned status %d", resp.StatusCode)
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read media body: %w", err)
	}

	return body, nil
}
