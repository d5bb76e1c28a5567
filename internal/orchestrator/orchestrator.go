// Package orchestrator crawls a list of URLs in fixed-size concurrent batches.
package orchestrator

import (
	"context"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/sourcegraph/conc"
	"github.com/sourcegraph/conc/panics"
	"go.uber.org/zap"

	"github.com/JakeFAU/batch-crawler/internal/clock/system"
	"github.com/JakeFAU/batch-crawler/internal/crawler"
	"github.com/JakeFAU/batch-crawler/internal/id/uuid"
	"github.com/JakeFAU/batch-crawler/internal/memory"
	"github.com/JakeFAU/batch-crawler/internal/metrics"
)

// Orchestrator drives one backend through batches of at most limit URLs.
// Batches run strictly one after another; a batch starts only when every
// task of the previous one has settled.
type Orchestrator struct {
	backend crawler.Backend
	ids     crawler.IDGenerator
	sampler memory.Sampler
	clock   crawler.Clock
	handler crawler.PageHandler
	logger  *zap.Logger
}

// New wires an Orchestrator. Nil collaborators other than the backend fall back to
// production implementations; a nil handler means pages are not persisted.
func New(
	backend crawler.Backend,
	ids crawler.IDGenerator,
	sampler memory.Sampler,
	clock crawler.Clock,
	handler crawler.PageHandler,
	logger *zap.Logger,
) *Orchestrator {
	if ids == nil {
		ids = uuid.New()
	}
	if sampler == nil {
		sampler = memory.NewDefaultSampler()
	}
	if clock == nil {
		clock = system.New()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	metrics.Init()
	return &Orchestrator{
		backend: backend,
		ids:     ids,
		sampler: sampler,
		clock:   clock,
		handler: handler,
		logger:  logger,
	}
}

// Run crawls urls and returns the tally. Only an invalid limit or a backend that
// fails to start produce an error; every per-URL failure lands in the summary.
func (o *Orchestrator) Run(ctx context.Context, urls []string, limit int) (crawler.RunSummary, error) {
	if limit < 1 {
		return crawler.RunSummary{}, fmt.Errorf("%w: concurrency limit must be at least 1, got %d",
			crawler.ErrInvalidConfiguration, limit)
	}
	if o.backend == nil {
		return crawler.RunSummary{}, fmt.Errorf("%w: no backend configured", crawler.ErrInvalidConfiguration)
	}

	if err := o.backend.Start(ctx); err != nil {
		return crawler.RunSummary{}, fmt.Errorf("%w: %w", crawler.ErrBackendUnavailable, err)
	}
	var closed bool
	closeBackend := func() {
		if closed {
			return
		}
		closed = true
		if err := o.backend.Close(); err != nil {
			o.logger.Warn("backend close failed", zap.Error(err))
		}
	}
	defer closeBackend()

	var handlerErrors atomic.Int64
	tracker := memory.NewTracker(o.sampler, o.clock, o.logger)
	results := make([]crawler.TaskResult, len(urls))
	batches := (len(urls) + limit - 1) / limit

	o.logger.Info("crawl run starting",
		zap.Int("urls", len(urls)),
		zap.Int("concurrency", limit),
		zap.Int("batches", batches),
	)

	for batch := 1; batch <= batches; batch++ {
		start := (batch - 1) * limit
		end := min(start+limit, len(urls))

		if err := ctx.Err(); err != nil {
			o.abandon(results, urls, start, limit, err)
			o.logger.Warn("crawl run canceled; remaining URLs not dispatched",
				zap.Int("batch", batch),
				zap.Int("abandoned", len(urls)-start),
				zap.Error(err),
			)
			break
		}

		_, _ = tracker.Observe(fmt.Sprintf("before batch %d", batch))
		batchStart := time.Now()

		var wg conc.WaitGroup
		for i := start; i < end; i++ {
			wg.Go(func() {
				results[i] = o.runTask(ctx, urls[i], i, batch, &handlerErrors)
			})
		}
		wg.Wait()

		metrics.ObserveBatch(time.Since(batchStart))
		_, _ = tracker.Observe(fmt.Sprintf("after batch %d", batch))
		o.logger.Info("batch settled",
			zap.Int("batch", batch),
			zap.Int("size", end-start),
			zap.Duration("elapsed", time.Since(batchStart)),
		)
	}

	closeBackend()
	_, _ = tracker.Observe("final")

	summary := summarize(results, tracker)
	summary.HandlerErrors = int(handlerErrors.Load())
	o.logger.Info("crawl run finished",
		zap.Int("succeeded", summary.Succeeded),
		zap.Int("soft_failed", summary.SoftFailed),
		zap.Int("hard_failed", summary.HardFailed),
		zap.Int("handler_errors", summary.HandlerErrors),
		zap.Uint64("peak_memory_bytes", summary.PeakMemoryBytes),
	)
	return summary, nil
}

// runTask crawls one URL in its own session. It never panics and never fails:
// every problem is folded into the returned result. Handler failures are counted
// in handlerErrors, which belongs to the calling run.
func (o *Orchestrator) runTask(
	ctx context.Context,
	url string,
	index, batch int,
	handlerErrors *atomic.Int64,
) (result crawler.TaskResult) {
	metrics.IncInFlight()
	defer metrics.DecInFlight()

	started := time.Now()
	result = crawler.TaskResult{URL: url, Batch: batch}
	defer func() {
		result.Duration = time.Since(started)
	}()

	id, err := o.ids.NewID()
	if err != nil {
		return o.finish(result, crawler.OutcomeHardFailure, fmt.Sprintf("allocate session: %v", err))
	}
	session := crawler.Session{ID: id, Index: index}
	result.SessionID = id

	var (
		page     crawler.Page
		crawlErr error
		pc       panics.Catcher
	)
	pc.Try(func() {
		page, crawlErr = o.backend.Crawl(ctx, url, session)
	})
	if recovered := pc.Recovered(); recovered != nil {
		crawlErr = fmt.Errorf("backend panicked: %v", recovered.Value)
		o.logger.Error("backend panicked",
			zap.String("url", url),
			zap.String("session_id", id),
			zap.ByteString("stack", recovered.Stack),
		)
	}

	outcome, reason := crawler.Classify(page, crawlErr)
	result.StatusCode = page.StatusCode
	if outcome == crawler.OutcomeSuccess {
		if !o.handle(ctx, session, page) {
			handlerErrors.Add(1)
		}
	}
	return o.finish(result, outcome, reason)
}

// handle passes a successful page to the handler and reports whether it was accepted.
func (o *Orchestrator) handle(ctx context.Context, session crawler.Session, page crawler.Page) bool {
	if o.handler == nil {
		return true
	}
	var (
		err error
		pc  panics.Catcher
	)
	pc.Try(func() {
		err = o.handler.HandlePage(ctx, session, page)
	})
	if recovered := pc.Recovered(); recovered != nil {
		err = recovered.AsError()
	}
	if err != nil {
		o.logger.Warn("page handler failed",
			zap.String("url", page.URL),
			zap.String("session_id", session.ID),
			zap.Error(err),
		)
		return false
	}
	return true
}

func (o *Orchestrator) finish(result crawler.TaskResult, outcome crawler.Outcome, reason string) crawler.TaskResult {
	result.Outcome = outcome
	result.Reason = reason
	metrics.ObservePage(metrics.SanitizeSite(result.URL), string(outcome))

	fields := []zap.Field{
		zap.String("url", result.URL),
		zap.String("session_id", result.SessionID),
		zap.Int("batch", result.Batch),
		zap.String("outcome", string(outcome)),
	}
	if outcome == crawler.OutcomeSuccess {
		o.logger.Debug("page crawled", fields...)
	} else {
		o.logger.Warn("page failed", append(fields, zap.String("reason", reason))...)
	}
	return result
}

// abandon marks every URL from start onward as a hard failure without dispatching it.
func (o *Orchestrator) abandon(results []crawler.TaskResult, urls []string, start, limit int, cause error) {
	reason := fmt.Sprintf("not dispatched: %v", cause)
	for i := start; i < len(urls); i++ {
		results[i] = o.finish(crawler.TaskResult{URL: urls[i], Batch: i/limit + 1}, crawler.OutcomeHardFailure, reason)
	}
}

func summarize(results []crawler.TaskResult, tracker *memory.Tracker) crawler.RunSummary {
	summary := crawler.RunSummary{
		PeakMemoryBytes: tracker.Peak(),
		Samples:         tracker.Samples(),
		Results:         results,
	}
	for _, r := range results {
		switch r.Outcome {
		case crawler.OutcomeSuccess:
			summary.Succeeded++
		case crawler.OutcomeSoftFailure:
			summary.SoftFailed++
		default:
			summary.HardFailed++
		}
	}
	return summary
}
