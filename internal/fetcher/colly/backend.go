package collyfetcher

import (
	"context"
	"fmt"
	"net/http"
	"sync"

	"github.com/JakeFAU/batch-crawler/internal/crawler"
)

// Backend renders pages without a browser: the HTML returned by the server is the page.
type Backend struct {
	fetcher *Fetcher

	mu      sync.Mutex
	started bool
}

// NewBackend wraps a Fetcher as a crawler.Backend.
func NewBackend(fetcher *Fetcher) *Backend {
	return &Backend{fetcher: fetcher}
}

// Start marks the shared connection pool as in use.
func (b *Backend) Start(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return fmt.Errorf("start http backend: %w", err)
	}
	if b.fetcher == nil {
		return fmt.Errorf("start http backend: no fetcher configured")
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	b.started = true
	return nil
}

// Crawl fetches the URL. The session header lets servers and proxies correlate requests.
func (b *Backend) Crawl(ctx context.Context, url string, session crawler.Session) (crawler.Page, error) {
	b.mu.Lock()
	started := b.started
	b.mu.Unlock()
	if !started {
		return crawler.Page{}, fmt.Errorf("http backend not started")
	}

	resp, err := b.fetcher.Fetch(ctx, crawler.FetchRequest{
		URL:     url,
		Headers: http.Header{"X-Crawl-Session": {session.ID}},
	})
	if err != nil {
		return crawler.Page{}, err
	}

	ok, reason := crawler.JudgePage(resp.StatusCode, string(resp.Body))
	return crawler.Page{
		URL:           url,
		FinalURL:      resp.URL,
		StatusCode:    resp.StatusCode,
		Headers:       resp.Headers,
		HTML:          string(resp.Body),
		Success:       ok,
		FailureReason: reason,
		Duration:      resp.Duration,
	}, nil
}

// Close releases pooled connections.
func (b *Backend) Close() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if !b.started {
		return nil
	}
	b.started = false
	b.fetcher.Close()
	return nil
}
