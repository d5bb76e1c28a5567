package cmd

import (
	"context"
	"fmt"
	"io"

	"github.com/sourcegraph/conc"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/JakeFAU/batch-crawler/internal/api"
	"github.com/JakeFAU/batch-crawler/internal/config"
	"github.com/JakeFAU/batch-crawler/internal/crawler"
	"github.com/JakeFAU/batch-crawler/internal/fetcher/cache"
	collyfetcher "github.com/JakeFAU/batch-crawler/internal/fetcher/colly"
	"github.com/JakeFAU/batch-crawler/internal/fetcher/headless"
	"github.com/JakeFAU/batch-crawler/internal/fetcher/polite"
	"github.com/JakeFAU/batch-crawler/internal/hash/sha256"
	"github.com/JakeFAU/batch-crawler/internal/logging"
	"github.com/JakeFAU/batch-crawler/internal/orchestrator"
	"github.com/JakeFAU/batch-crawler/internal/sink"
	"github.com/JakeFAU/batch-crawler/internal/sitemap"
	"github.com/JakeFAU/batch-crawler/internal/storage/gcs"
	"github.com/JakeFAU/batch-crawler/internal/storage/local"
	"github.com/JakeFAU/batch-crawler/internal/storage/memory"
)

const mebibyte = 1024 * 1024

// gcsClientFactory is swapped in tests to point GCS output at a fake server.
var gcsClientFactory gcs.ClientFactory = gcs.DefaultClientFactory{}

// newCrawlCmd creates the 'crawl' subcommand.
func newCrawlCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "crawl",
		Short: "Collect URLs from sitemaps and crawl them in batches",
		Long: `Fetches every configured sitemap, merges and deduplicates the page URLs
with any URLs given directly, then crawls them at most --concurrency at a time.
A summary of successes, failures and peak memory is printed at the end.`,
		RunE: runCrawlCommand,
	}
	cmd.Flags().StringSlice("sitemap", nil, "sitemap URL to collect pages from (repeatable)")
	cmd.Flags().StringSlice("url", nil, "page URL to crawl directly (repeatable)")
	cmd.Flags().Int("concurrency", 0, "maximum pages crawled at once")
	cmd.Flags().String("backend", "", "page backend: chromedp or http")
	cmd.Flags().String("output", "", "where to write markdown: none, local, memory or gcs")
	return cmd
}

func runCrawlCommand(cmd *cobra.Command, _ []string) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}

	logger, err := logging.New(cfg.Logging.Development, cfg.Logging.Level)
	if err != nil {
		return fmt.Errorf("init logger: %w", err)
	}
	defer logger.Sync() //nolint:errcheck // best-effort flush

	ctx := cmd.Context()
	server := api.NewServer(logger)
	serverCtx, stopServer := context.WithCancel(ctx)
	var wg conc.WaitGroup
	if cfg.Server.MetricsAddr != "" {
		wg.Go(func() {
			if serr := server.Serve(serverCtx, cfg.Server.MetricsAddr); serr != nil {
				logger.Error("operator server failed", zap.Error(serr))
			}
		})
	}
	defer func() {
		stopServer()
		wg.Wait()
	}()

	summary, err := crawl(ctx, cfg, server, logger)
	server.Publish(summary, err)
	if err != nil {
		return err
	}
	printSummary(cmd.OutOrStdout(), summary)
	return nil
}

func loadConfig(cmd *cobra.Command) (config.Config, error) {
	path, err := cmd.Flags().GetString("config")
	if err != nil {
		return config.Config{}, fmt.Errorf("read --config: %w", err)
	}
	flags := cmd.Flags()
	cfg, err := config.Load(path,
		config.FlagBinding{Key: "crawler.sitemaps", Flag: flags.Lookup("sitemap")},
		config.FlagBinding{Key: "crawler.urls", Flag: flags.Lookup("url")},
		config.FlagBinding{Key: "crawler.concurrency", Flag: flags.Lookup("concurrency")},
		config.FlagBinding{Key: "backend.kind", Flag: flags.Lookup("backend")},
		config.FlagBinding{Key: "output.kind", Flag: flags.Lookup("output")},
	)
	if err != nil {
		return config.Config{}, fmt.Errorf("load config: %w", err)
	}
	return cfg, nil
}

// crawl runs one full collection and crawl pass.
func crawl(ctx context.Context, cfg config.Config, server *api.Server, logger *zap.Logger) (crawler.RunSummary, error) {
	fetcher := collyfetcher.New(collyfetcher.Config{
		UserAgent:     cfg.Crawler.UserAgent,
		RespectRobots: cfg.Crawler.RespectRobots,
		Timeout:       cfg.HTTPTimeout(),
		MaxBodySize:   int(cfg.HTTP.MaxBodyBytes),
	})
	defer fetcher.Close()

	urls := collectURLs(ctx, cfg, fetcher, logger)
	if len(urls) == 0 {
		logger.Warn("no URLs found to crawl")
		return crawler.RunSummary{}, nil
	}
	logger.Info("found URLs to crawl", zap.Int("count", len(urls)))

	backend := buildBackend(cfg, fetcher, logger)
	handler, closeSink, err := buildSink(ctx, cfg, logger)
	if err != nil {
		return crawler.RunSummary{}, err
	}
	defer func() {
		if cerr := closeSink(); cerr != nil {
			logger.Warn("failed to close output store", zap.Error(cerr))
		}
	}()

	server.SetReady(true)
	server.MarkRunning()
	summary, err := orchestrator.New(backend, nil, nil, nil, handler, logger).
		Run(ctx, urls, cfg.Crawler.Concurrency)
	if err != nil {
		return crawler.RunSummary{}, fmt.Errorf("run crawl: %w", err)
	}
	return summary, nil
}

// collectURLs merges sitemap entries with directly configured URLs, sitemap entries first.
func collectURLs(ctx context.Context, cfg config.Config, fetcher crawler.Fetcher, logger *zap.Logger) []string {
	var urls []string
	if len(cfg.Crawler.Sitemaps) > 0 {
		collector := sitemap.New(fetcher, sitemap.Config{ExpandIndexes: cfg.Crawler.ExpandSitemapIndexes}, logger)
		urls = collector.Collect(ctx, cfg.Crawler.Sitemaps)
	}
	urls = sitemap.Dedupe(append(urls, cfg.Crawler.URLs...))
	if cfg.Crawler.MaxURLs > 0 && len(urls) > cfg.Crawler.MaxURLs {
		urls = urls[:cfg.Crawler.MaxURLs]
	}
	return urls
}

// buildBackend assembles the page backend: base renderer, then per-host throttle, then cache.
func buildBackend(cfg config.Config, fetcher *collyfetcher.Fetcher, logger *zap.Logger) crawler.Backend {
	fetchCfg := cfg.FetchConfig()

	var base crawler.Backend
	switch cfg.Backend.Kind {
	case config.BackendHTTP:
		base = collyfetcher.NewBackend(fetcher)
	default:
		base = headless.New(headless.Config{
			FetchConfig:       fetchCfg,
			UserAgent:         cfg.Crawler.UserAgent,
			NavigationTimeout: cfg.NavigationTimeout(),
			SettleDelay:       cfg.SettleDelay(),
		}, logger)
	}

	var backend crawler.Backend = polite.New(base, cfg.Backend.DomainQPS, cfg.Backend.DomainBurst)
	if fetchCfg.CacheMode == crawler.CacheModeUse {
		backend = cache.New(backend, fetchCfg.CacheMode, cfg.CacheTTL())
	}
	return backend
}

// buildSink returns the page handler for the configured output and a closer for its store.
// A nil handler means pages are not persisted.
func buildSink(ctx context.Context, cfg config.Config, logger *zap.Logger) (crawler.PageHandler, func() error, error) {
	noop := func() error { return nil }

	var (
		store   crawler.BlobStore
		closeFn = noop
	)
	switch cfg.Output.Kind {
	case config.OutputLocal:
		s, err := local.New(local.Config{BaseDir: cfg.Output.Dir})
		if err != nil {
			return nil, noop, fmt.Errorf("init local output: %w", err)
		}
		store = s
	case config.OutputMemory:
		store = memory.NewBlobStore()
	case config.OutputGCS:
		s, err := gcs.Open(ctx, gcs.Config{Bucket: cfg.Output.GCSBucket}, gcsClientFactory)
		if err != nil {
			return nil, noop, fmt.Errorf("init gcs output: %w", err)
		}
		store, closeFn = s, s.Close
	default:
		return nil, noop, nil
	}
	return sink.NewMarkdownSink(store, sha256.NewShort(16), cfg.Output.Prefix, logger), closeFn, nil
}

func printSummary(w io.Writer, summary crawler.RunSummary) {
	_, _ = fmt.Fprintf(w, "\nSummary:\n  - Successfully crawled: %d\n  - Failed: %d\n",
		summary.Succeeded, summary.Failed())
	if summary.HandlerErrors > 0 {
		_, _ = fmt.Fprintf(w, "  - Output errors: %d\n", summary.HandlerErrors)
	}
	_, _ = fmt.Fprintf(w, "\nPeak memory usage (MB): %d\n", summary.PeakMemoryBytes/mebibyte)
}
