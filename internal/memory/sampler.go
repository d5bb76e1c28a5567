// Package memory samples process memory and tracks the peak across a crawl run.
package memory

import (
	"fmt"
	"runtime"

	"github.com/prometheus/procfs"
)

// Sampler reports the current process memory usage in bytes.
type Sampler interface {
	Sample() (uint64, error)
}

// ProcSampler reads resident set size from /proc.
type ProcSampler struct {
	proc procfs.Proc
}

// NewProcSampler binds a sampler to the current process.
func NewProcSampler() (*ProcSampler, error) {
	proc, err := procfs.Self()
	if err != nil {
		return nil, fmt.Errorf("open procfs self: %w", err)
	}
	return &ProcSampler{proc: proc}, nil
}

// Sample returns the resident set size of the process.
func (s *ProcSampler) Sample() (uint64, error) {
	stat, err := s.proc.Stat()
	if err != nil {
		return 0, fmt.Errorf("read proc stat: %w", err)
	}
	rss := stat.ResidentMemory()
	if rss < 0 {
		return 0, fmt.Errorf("negative resident memory %d", rss)
	}
	return uint64(rss), nil
}

// RuntimeSampler reports memory obtained from the OS by the Go runtime.
// It is the fallback on platforms without /proc.
type RuntimeSampler struct{}

// Sample returns runtime.MemStats.Sys.
func (RuntimeSampler) Sample() (uint64, error) {
	var stats runtime.MemStats
	runtime.ReadMemStats(&stats)
	return stats.Sys, nil
}

// NewDefaultSampler prefers RSS from procfs and falls back to runtime stats.
func NewDefaultSampler() Sampler {
	if s, err := NewProcSampler(); err == nil {
		if _, err := s.Sample(); err == nil {
			return s
		}
	}
	return RuntimeSampler{}
}
