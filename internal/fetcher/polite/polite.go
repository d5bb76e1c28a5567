// Package polite throttles page requests per host.
package polite

import (
	"context"
	"fmt"
	"net/url"
	"strings"
	"sync"

	"golang.org/x/time/rate"

	"github.com/JakeFAU/batch-crawler/internal/crawler"
)

// Backend decorates another backend with a token bucket per host.
type Backend struct {
	next     crawler.Backend
	qps      float64
	burst    int
	limiters sync.Map
}

// New wraps next. A qps of zero or less disables throttling.
func New(next crawler.Backend, qps float64, burst int) *Backend {
	if burst <= 0 {
		burst = 1
	}
	return &Backend{next: next, qps: qps, burst: burst}
}

// Start starts the wrapped backend.
func (b *Backend) Start(ctx context.Context) error {
	return b.next.Start(ctx)
}

// Crawl waits for the host's budget and then delegates.
func (b *Backend) Crawl(ctx context.Context, rawURL string, session crawler.Session) (crawler.Page, error) {
	if err := b.wait(ctx, rawURL); err != nil {
		return crawler.Page{}, err
	}
	return b.next.Crawl(ctx, rawURL, session)
}

// Close closes the wrapped backend.
func (b *Backend) Close() error {
	return b.next.Close()
}

func (b *Backend) wait(ctx context.Context, rawURL string) error {
	if b.qps <= 0 {
		return nil
	}
	parsed, err := url.Parse(rawURL)
	if err != nil {
		return fmt.Errorf("parse crawl url: %w", err)
	}
	host := strings.ToLower(parsed.Host)
	val, _ := b.limiters.LoadOrStore(host, rate.NewLimiter(rate.Limit(b.qps), b.burst))
	limiter, ok := val.(*rate.Limiter)
	if !ok {
		return fmt.Errorf("unexpected limiter type %T", val)
	}
	if err := limiter.Wait(ctx); err != nil {
		return fmt.Errorf("wait host budget: %w", err)
	}
	return nil
}
