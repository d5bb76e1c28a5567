// Package sink persists crawled pages.
package sink

import (
	"context"
	"fmt"
	"net/url"
	"path"
	"strings"

	htmltomarkdown "github.com/JohannesKaufmann/html-to-markdown/v2"
	"go.uber.org/zap"

	"github.com/JakeFAU/batch-crawler/internal/crawler"
	"github.com/JakeFAU/batch-crawler/internal/metrics"
)

const (
	markdownContentType = "text/markdown; charset=utf-8"
	digestLength        = 16
)

// MarkdownSink converts each page to markdown and writes it to a blob store
// at <prefix>/<host>/<digest>.md, where digest is derived from the page URL.
type MarkdownSink struct {
	store  crawler.BlobStore
	hasher crawler.Hasher
	prefix string
	logger *zap.Logger
}

// NewMarkdownSink builds a sink writing under prefix.
func NewMarkdownSink(store crawler.BlobStore, hasher crawler.Hasher, prefix string, logger *zap.Logger) *MarkdownSink {
	if logger == nil {
		logger = zap.NewNop()
	}
	metrics.Init()
	return &MarkdownSink{
		store:  store,
		hasher: hasher,
		prefix: strings.Trim(prefix, "/"),
		logger: logger,
	}
}

// HandlePage implements crawler.PageHandler.
func (s *MarkdownSink) HandlePage(ctx context.Context, session crawler.Session, page crawler.Page) error {
	markdown, err := htmltomarkdown.ConvertString(page.HTML)
	if err != nil {
		metrics.ObserveSinkWrite("error")
		return fmt.Errorf("convert %s to markdown: %w", page.URL, err)
	}

	objectPath, err := s.ObjectPath(page.URL)
	if err != nil {
		metrics.ObserveSinkWrite("error")
		return err
	}

	uri, err := s.store.PutObject(ctx, objectPath, markdownContentType, strings.NewReader(markdown))
	if err != nil {
		metrics.ObserveSinkWrite("error")
		return fmt.Errorf("store markdown for %s: %w", page.URL, err)
	}
	metrics.ObserveSinkWrite("ok")
	s.logger.Debug("markdown stored",
		zap.String("url", page.URL),
		zap.String("session_id", session.ID),
		zap.String("uri", uri),
		zap.Int("bytes", len(markdown)),
	)
	return nil
}

// ObjectPath returns where the markdown for rawURL is written.
func (s *MarkdownSink) ObjectPath(rawURL string) (string, error) {
	parsed, err := url.Parse(rawURL)
	if err != nil {
		return "", fmt.Errorf("parse page url: %w", err)
	}
	host := strings.ToLower(parsed.Hostname())
	if host == "" {
		host = "unknown-host"
	}
	digest, err := s.hasher.Hash([]byte(rawURL))
	if err != nil {
		return "", fmt.Errorf("hash page url: %w", err)
	}
	if len(digest) > digestLength {
		digest = digest[:digestLength]
	}
	return path.Join(s.prefix, host, digest+".md"), nil
}
