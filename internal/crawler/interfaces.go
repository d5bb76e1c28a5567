package crawler

import (
	"context"
	"io"
	"time"
)

// Fetcher fetches a URL and returns the body plus metadata.
// Non-2xx responses are returned as values; only transport problems are errors.
type Fetcher interface {
	Fetch(ctx context.Context, request FetchRequest) (FetchResponse, error)
}

// Backend renders pages on behalf of the orchestrator.
// Start acquires the shared resource (browser, connection pool) and Close releases it.
type Backend interface {
	Start(ctx context.Context) error
	Crawl(ctx context.Context, url string, session Session) (Page, error)
	Close() error
}

// PageHandler receives every successfully crawled page.
type PageHandler interface {
	HandlePage(ctx context.Context, session Session, page Page) error
}

// BlobStore writes raw artifacts and returns a URI.
type BlobStore interface {
	PutObject(ctx context.Context, path string, contentType string, data io.Reader) (string, error)
}

// Hasher computes digests used for object naming.
type Hasher interface {
	Hash(data []byte) (string, error)
}

// Clock returns the current time (useful for testing).
type Clock interface {
	Now() time.Time
}

// IDGenerator produces session IDs (UUIDs).
type IDGenerator interface {
	NewID() (string, error)
}
