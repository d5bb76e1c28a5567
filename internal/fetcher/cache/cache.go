// Package cache keeps recently rendered pages in memory so repeated URLs
// within a run skip the backend.
package cache

import (
	"context"
	"time"

	gocache "github.com/patrickmn/go-cache"

	"github.com/JakeFAU/batch-crawler/internal/crawler"
)

const defaultTTL = 10 * time.Minute

// Backend decorates another backend with a TTL page cache.
// Only successful pages are stored; failures are always retried.
type Backend struct {
	next  crawler.Backend
	mode  crawler.CacheMode
	store *gocache.Cache
}

// New wraps next. With CacheModeBypass every call goes straight through.
func New(next crawler.Backend, mode crawler.CacheMode, ttl time.Duration) *Backend {
	if ttl <= 0 {
		ttl = defaultTTL
	}
	return &Backend{
		next:  next,
		mode:  mode,
		store: gocache.New(ttl, 2*ttl),
	}
}

// Start starts the wrapped backend.
func (b *Backend) Start(ctx context.Context) error {
	return b.next.Start(ctx)
}

// Crawl serves url from the cache when allowed and present.
func (b *Backend) Crawl(ctx context.Context, url string, session crawler.Session) (crawler.Page, error) {
	if b.mode != crawler.CacheModeUse {
		return b.next.Crawl(ctx, url, session)
	}
	if cached, ok := b.store.Get(url); ok {
		page := cached.(crawler.Page)
		page.FromCache = true
		page.Duration = 0
		return page, nil
	}
	page, err := b.next.Crawl(ctx, url, session)
	if err != nil {
		return page, err
	}
	if page.Success {
		b.store.Set(url, page, gocache.DefaultExpiration)
	}
	return page, nil
}

// Close flushes the cache and closes the wrapped backend.
func (b *Backend) Close() error {
	b.store.Flush()
	return b.next.Close()
}

// size reports how many pages are held.
func (b *Backend) size() int {
	return b.store.ItemCount()
}
