package memory

import (
	"fmt"
	"sync"

	"go.uber.org/zap"

	"github.com/JakeFAU/batch-crawler/internal/crawler"
	"github.com/JakeFAU/batch-crawler/internal/metrics"
)

const mebibyte = 1024 * 1024

// Tracker records a run-scoped stream of memory samples and the running peak.
// Ordinals are strictly increasing and the peak never decreases.
type Tracker struct {
	mu      sync.Mutex
	sampler Sampler
	clock   crawler.Clock
	logger  *zap.Logger
	ordinal uint64
	peak    uint64
	samples []crawler.MemorySample
}

// NewTracker creates a Tracker for a single run.
func NewTracker(sampler Sampler, clock crawler.Clock, logger *zap.Logger) *Tracker {
	if logger == nil {
		logger = zap.NewNop()
	}
	metrics.Init()
	return &Tracker{
		sampler: sampler,
		clock:   clock,
		logger:  logger,
	}
}

// Observe takes a sample labeled with the given prefix.
// A failed sample is logged and not recorded; the peak is left untouched.
func (t *Tracker) Observe(label string) (crawler.MemorySample, error) {
	if t.sampler == nil {
		return crawler.MemorySample{}, fmt.Errorf("no memory sampler configured")
	}
	current, err := t.sampler.Sample()
	if err != nil {
		t.logger.Warn("memory sample failed", zap.String("label", label), zap.Error(err))
		return crawler.MemorySample{}, fmt.Errorf("sample memory: %w", err)
	}

	t.mu.Lock()
	t.ordinal++
	if current > t.peak {
		t.peak = current
	}
	sample := crawler.MemorySample{
		Ordinal:      t.ordinal,
		Label:        label,
		CurrentBytes: current,
	}
	if t.clock != nil {
		sample.ObservedAt = t.clock.Now()
	}
	t.samples = append(t.samples, sample)
	peak := t.peak
	t.mu.Unlock()

	metrics.ObserveMemory(current, peak)
	t.logger.Info(fmt.Sprintf("%s: current memory %d MB, peak %d MB", label, current/mebibyte, peak/mebibyte),
		zap.Uint64("current_bytes", current),
		zap.Uint64("peak_bytes", peak),
		zap.Uint64("ordinal", sample.Ordinal),
	)
	return sample, nil
}

// Peak returns the highest sample seen so far.
func (t *Tracker) Peak() uint64 {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.peak
}

// Samples returns a copy of every recorded sample in observation order.
func (t *Tracker) Samples() []crawler.MemorySample {
	t.mu.Lock()
	defer t.mu.Unlock()
	return append([]crawler.MemorySample(nil), t.samples...)
}
