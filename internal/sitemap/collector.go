// Package sitemap turns sitemap locations into a deduplicated list of page URLs.
package sitemap

import (
	"bytes"
	"compress/gzip"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/antchfx/xmlquery"
	"go.uber.org/zap"

	"github.com/JakeFAU/batch-crawler/internal/crawler"
	"github.com/JakeFAU/batch-crawler/internal/metrics"
)

// Namespace is the XML namespace of the sitemap protocol.
const Namespace = "http://www.sitemaps.org/schemas/sitemap/0.9"

const maxDecompressedBytes = 256 << 20

var gzipMagic = []byte{0x1f, 0x8b}

// FailureKind says which stage a sitemap failed in.
type FailureKind string

// Failure kinds reported per location.
const (
	FailureFetch FailureKind = "fetch"
	FailureParse FailureKind = "parse"
)

// LocationFailure describes a sitemap that contributed nothing.
type LocationFailure struct {
	Location string
	Kind     FailureKind
	Err      error
}

// Report is the full outcome of a collection pass.
type Report struct {
	URLs      []string
	Failures  []LocationFailure
	Processed int
}

// Config tunes the collector.
type Config struct {
	// ExpandIndexes follows <sitemapindex> children instead of returning them as pages.
	ExpandIndexes bool
	// MaxURLs truncates the deduplicated output; 0 means no limit.
	MaxURLs int
}

// Collector fetches sitemaps one at a time and gathers their <loc> entries.
type Collector struct {
	fetcher crawler.Fetcher
	cfg     Config
	logger  *zap.Logger
}

// New builds a Collector around fetcher.
func New(fetcher crawler.Fetcher, cfg Config, logger *zap.Logger) *Collector {
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.MaxURLs < 0 {
		cfg.MaxURLs = 0
	}
	metrics.Init()
	return &Collector{fetcher: fetcher, cfg: cfg, logger: logger}
}

// Collect returns the page URLs found across locations. Per-location failures are
// logged and skipped.
func (c *Collector) Collect(ctx context.Context, locations []string) []string {
	return c.CollectWithReport(ctx, locations).URLs
}

// CollectWithReport is Collect plus the list of locations that failed.
func (c *Collector) CollectWithReport(ctx context.Context, locations []string) Report {
	var (
		report    Report
		collected []string
	)
	queue := append([]string(nil), locations...)
	expanded := make(map[string]struct{}, len(locations))
	for _, location := range locations {
		expanded[strings.TrimSpace(location)] = struct{}{}
	}

	for i := 0; i < len(queue); i++ {
		location := strings.TrimSpace(queue[i])
		if location == "" {
			continue
		}
		report.Processed++

		if err := ctx.Err(); err != nil {
			c.fail(&report, location, FailureFetch, fmt.Errorf("%w: %w", crawler.ErrSitemapFetch, err))
			continue
		}

		body, err := c.fetch(ctx, location)
		if err != nil {
			c.fail(&report, location, FailureFetch, err)
			continue
		}

		entries, isIndex, err := parse(location, body)
		if err != nil {
			c.fail(&report, location, FailureParse, err)
			continue
		}

		if isIndex && c.cfg.ExpandIndexes {
			for _, child := range entries {
				if _, seen := expanded[child]; seen {
					continue
				}
				expanded[child] = struct{}{}
				queue = append(queue, child)
			}
			c.logger.Debug("sitemap index expanded",
				zap.String("location", location),
				zap.Int("children", len(entries)),
			)
			continue
		}

		c.logger.Debug("sitemap collected",
			zap.String("location", location),
			zap.Int("urls", len(entries)),
		)
		collected = append(collected, entries...)
	}

	report.URLs = Dedupe(collected)
	if c.cfg.MaxURLs > 0 && len(report.URLs) > c.cfg.MaxURLs {
		report.URLs = report.URLs[:c.cfg.MaxURLs]
	}
	metrics.AddSitemapURLs(len(report.URLs))
	c.logger.Info("sitemap collection finished",
		zap.Int("locations", report.Processed),
		zap.Int("failed", len(report.Failures)),
		zap.Int("urls", len(report.URLs)),
	)
	return report
}

func (c *Collector) fetch(ctx context.Context, location string) ([]byte, error) {
	resp, err := c.fetcher.Fetch(ctx, crawler.FetchRequest{
		URL:     location,
		Headers: http.Header{"Accept": {"application/xml, text/xml;q=0.9, */*;q=0.8"}},
	})
	if err != nil {
		return nil, fmt.Errorf("%w: %w", crawler.ErrSitemapFetch, err)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, fmt.Errorf("%w: status %d", crawler.ErrSitemapFetch, resp.StatusCode)
	}
	return resp.Body, nil
}

func (c *Collector) fail(report *Report, location string, kind FailureKind, err error) {
	report.Failures = append(report.Failures, LocationFailure{Location: location, Kind: kind, Err: err})
	metrics.ObserveSitemapFailure(string(kind))
	c.logger.Warn("skipping sitemap",
		zap.String("location", location),
		zap.String("kind", string(kind)),
		zap.Error(err),
	)
}

// parse returns the <loc> values of a sitemap document in document order and
// whether the document is a sitemap index.
func parse(location string, body []byte) ([]string, bool, error) {
	data, err := decompress(body)
	if err != nil {
		return nil, false, fmt.Errorf("%w: %s: %w", crawler.ErrSitemapParse, location, err)
	}
	if len(bytes.TrimSpace(data)) == 0 {
		return nil, false, nil
	}

	doc, err := xmlquery.Parse(bytes.NewReader(data))
	if err != nil {
		return nil, false, fmt.Errorf("%w: %s: %w", crawler.ErrSitemapParse, location, err)
	}

	var locs []string
	for _, node := range xmlquery.Find(doc, "//*[local-name()='loc']") {
		if node.NamespaceURI != Namespace {
			continue
		}
		if value := strings.TrimSpace(node.InnerText()); value != "" {
			locs = append(locs, value)
		}
	}
	return locs, isIndex(doc), nil
}

func isIndex(doc *xmlquery.Node) bool {
	for node := doc.FirstChild; node != nil; node = node.NextSibling {
		if node.Type == xmlquery.ElementNode {
			return node.Data == "sitemapindex" && node.NamespaceURI == Namespace
		}
	}
	return false
}

// decompress gunzips payloads that start with the gzip magic, whatever the file name says.
func decompress(body []byte) ([]byte, error) {
	if !bytes.HasPrefix(body, gzipMagic) {
		return body, nil
	}
	zr, err := gzip.NewReader(bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("open gzip: %w", err)
	}
	defer func() { _ = zr.Close() }()

	data, err := io.ReadAll(io.LimitReader(zr, maxDecompressedBytes+1))
	if err != nil {
		return nil, fmt.Errorf("read gzip: %w", err)
	}
	if len(data) > maxDecompressedBytes {
		return nil, errors.New("decompressed sitemap exceeds size limit")
	}
	return data, nil
}

// Dedupe removes repeated values, keeping each first occurrence in place.
func Dedupe(values []string) []string {
	seen := make(map[string]struct{}, len(values))
	out := make([]string, 0, len(values))
	for _, v := range values {
		if _, ok := seen[v]; ok {
			continue
		}
		seen[v] = struct{}{}
		out = append(out, v)
	}
	return out
}
