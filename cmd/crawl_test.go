package cmd

import (
	"bytes"
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/JakeFAU/batch-crawler/internal/config"
	"github.com/JakeFAU/batch-crawler/internal/crawler"
	"github.com/JakeFAU/batch-crawler/internal/fetcher/cache"
	collyfetcher "github.com/JakeFAU/batch-crawler/internal/fetcher/colly"
	"github.com/JakeFAU/batch-crawler/internal/fetcher/polite"
	"github.com/JakeFAU/batch-crawler/internal/sitemap"
)

func newSiteServer(t *testing.T) *httptest.Server {
	t.Helper()
	var srv *httptest.Server
	srv = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/sitemap.xml":
			_, _ = fmt.Fprintf(w, `<urlset xmlns="%s">`+
				`<url><loc>%s/docs/a</loc></url><url><loc>%s/docs/b</loc></url><url><loc>%s/docs/gone</loc></url>`+
				`</urlset>`, sitemap.Namespace, srv.URL, srv.URL, srv.URL)
		case "/docs/a", "/docs/b", "/extra":
			w.Header().Set("Content-Type", "text/html; charset=utf-8")
			_, _ = fmt.Fprintf(w, "<html><body><h1>%s</h1><p>content</p></body></html>", r.URL.Path)
		default:
			http.NotFound(w, r)
		}
	}))
	t.Cleanup(srv.Close)
	return srv
}

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))
	return path
}

func TestCrawlCommandEndToEnd(t *testing.T) {
	srv := newSiteServer(t)
	outDir := t.TempDir()
	path := writeConfig(t, fmt.Sprintf(`
crawler:
  sitemaps: ["%s/sitemap.xml"]
backend:
  kind: http
output:
  kind: local
  dir: %s
  prefix: docs
logging:
  development: false
  level: error
`, srv.URL, outDir))

	var out bytes.Buffer
	root := newRootCmd()
	root.SetOut(&out)
	root.SetArgs([]string{"crawl", "--config", path, "--url", srv.URL + "/extra", "--url", srv.URL + "/docs/a", "--concurrency", "2"})
	require.NoError(t, root.ExecuteContext(context.Background()))

	assert.Contains(t, out.String(), "Successfully crawled: 3")
	assert.Contains(t, out.String(), "Failed: 1")
	assert.Contains(t, out.String(), "Peak memory usage (MB):")

	var written []string
	require.NoError(t, filepath.WalkDir(outDir, func(p string, d os.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if !d.IsDir() && strings.HasSuffix(p, ".md") {
			written = append(written, p)
		}
		return nil
	}))
	assert.Len(t, written, 3)
	for _, p := range written {
		assert.Contains(t, p, filepath.Join(outDir, "docs", "127.0.0.1"))
	}
}

func TestCrawlCommandNothingToCrawl(t *testing.T) {
	path := writeConfig(t, "backend:\n  kind: http\nlogging:\n  level: error\n")

	var out bytes.Buffer
	root := newRootCmd()
	root.SetOut(&out)
	root.SetArgs([]string{"crawl", "--config", path})
	require.NoError(t, root.ExecuteContext(context.Background()))
	assert.Contains(t, out.String(), "Successfully crawled: 0")
}

func TestCrawlCommandRejectsBadConfig(t *testing.T) {
	path := writeConfig(t, "crawler:\n  concurrency: 0\n")

	root := newRootCmd()
	root.SetOut(&bytes.Buffer{})
	root.SetErr(&bytes.Buffer{})
	root.SetArgs([]string{"crawl", "--config", path})
	err := root.ExecuteContext(context.Background())
	require.Error(t, err)
	assert.ErrorIs(t, err, crawler.ErrInvalidConfiguration)
}

func TestCollectURLsMergesAndCaps(t *testing.T) {
	t.Parallel()

	srv := newSiteServer(t)
	fetcher := collyfetcher.New(collyfetcher.Config{})
	t.Cleanup(fetcher.Close)

	cfg := config.Config{Crawler: config.CrawlerConfig{
		Sitemaps: []string{srv.URL + "/sitemap.xml", srv.URL + "/missing.xml"},
		URLs:     []string{srv.URL + "/docs/b", srv.URL + "/extra"},
	}}
	got := collectURLs(context.Background(), cfg, fetcher, zap.NewNop())
	require.Equal(t, []string{
		srv.URL + "/docs/a", srv.URL + "/docs/b", srv.URL + "/docs/gone", srv.URL + "/extra",
	}, got)

	cfg.Crawler.MaxURLs = 2
	got = collectURLs(context.Background(), cfg, fetcher, zap.NewNop())
	require.Equal(t, []string{srv.URL + "/docs/a", srv.URL + "/docs/b"}, got)
}

func TestBuildBackendLayers(t *testing.T) {
	t.Parallel()

	fetcher := collyfetcher.New(collyfetcher.Config{})
	t.Cleanup(fetcher.Close)

	cfg := config.Config{Backend: config.BackendConfig{Kind: config.BackendHTTP, CacheMode: "bypass"}}
	_, ok := buildBackend(cfg, fetcher, zap.NewNop()).(*polite.Backend)
	assert.True(t, ok, "bypass mode leaves the throttle outermost")

	cfg.Backend.CacheMode = "use"
	_, ok = buildBackend(cfg, fetcher, zap.NewNop()).(*cache.Backend)
	assert.True(t, ok, "use mode wraps the cache around everything")
}

func TestBuildSink(t *testing.T) {
	t.Parallel()

	handler, closeFn, err := buildSink(context.Background(), config.Config{Output: config.OutputConfig{Kind: config.OutputNone}}, zap.NewNop())
	require.NoError(t, err)
	assert.Nil(t, handler)
	require.NoError(t, closeFn())

	handler, closeFn, err = buildSink(context.Background(), config.Config{Output: config.OutputConfig{Kind: config.OutputMemory}}, zap.NewNop())
	require.NoError(t, err)
	assert.NotNil(t, handler)
	require.NoError(t, closeFn())

	file := filepath.Join(t.TempDir(), "not-a-dir")
	require.NoError(t, os.WriteFile(file, []byte("x"), 0o600))
	_, _, err = buildSink(context.Background(), config.Config{Output: config.OutputConfig{Kind: config.OutputLocal, Dir: file}}, zap.NewNop())
	require.Error(t, err)
}

func TestPrintSummary(t *testing.T) {
	t.Parallel()

	var out bytes.Buffer
	printSummary(&out, crawler.RunSummary{
		Succeeded:       5,
		SoftFailed:      1,
		HardFailed:      2,
		HandlerErrors:   1,
		PeakMemoryBytes: 300 * mebibyte,
	})
	assert.Contains(t, out.String(), "Successfully crawled: 5")
	assert.Contains(t, out.String(), "Failed: 3")
	assert.Contains(t, out.String(), "Output errors: 1")
	assert.Contains(t, out.String(), "Peak memory usage (MB): 300")
}
