package crawler

import (
	"fmt"
	"net/http"
	"strings"
	"time"
)

// CacheMode controls whether a backend may serve or store cached pages.
type CacheMode string

// Cache modes understood by the page backends.
const (
	CacheModeBypass CacheMode = "bypass"
	CacheModeUse    CacheMode = "use"
)

// ParseCacheMode normalizes a configured cache mode string.
func ParseCacheMode(raw string) (CacheMode, error) {
	switch mode := CacheMode(strings.ToLower(strings.TrimSpace(raw))); mode {
	case "":
		return CacheModeBypass, nil
	case CacheModeBypass, CacheModeUse:
		return mode, nil
	default:
		return "", fmt.Errorf("unknown cache mode %q", raw)
	}
}

// FetchConfig is handed to page backends when they are constructed.
type FetchConfig struct {
	CacheMode       CacheMode
	Headless        bool
	ExtraLaunchArgs []string
}

// Session isolates one crawl task from its concurrent siblings.
// A fresh Session is allocated per URL and never reused within a run.
type Session struct {
	ID    string
	Index int
}

// Page is what a backend hands back for a completed fetch.
type Page struct {
	URL           string
	FinalURL      string
	StatusCode    int
	Headers       http.Header
	HTML          string
	Success       bool
	FailureReason string
	Duration      time.Duration
	FromCache     bool
}

// Outcome tags the result of a single crawl task.
type Outcome string

// Outcome values recorded per URL.
const (
	OutcomeSuccess     Outcome = "success"
	OutcomeSoftFailure Outcome = "soft_failure"
	OutcomeHardFailure Outcome = "hard_failure"
)

// TaskResult records how one URL fared during a run.
type TaskResult struct {
	URL        string        `json:"url"`
	SessionID  string        `json:"session_id"`
	Batch      int           `json:"batch"`
	Outcome    Outcome       `json:"outcome"`
	StatusCode int           `json:"status_code,omitempty"`
	Reason     string        `json:"reason,omitempty"`
	Duration   time.Duration `json:"duration"`
}

// MemorySample is one observation of process memory.
type MemorySample struct {
	Ordinal      uint64    `json:"ordinal"`
	ObservedAt   time.Time `json:"observed_at"`
	Label        string    `json:"label"`
	CurrentBytes uint64    `json:"current_bytes"`
}

// RunSummary is the immutable result of an orchestrator run.
type RunSummary struct {
	Succeeded       int            `json:"succeeded"`
	SoftFailed      int            `json:"soft_failed"`
	HardFailed      int            `json:"hard_failed"`
	HandlerErrors   int            `json:"handler_errors"`
	PeakMemoryBytes uint64         `json:"peak_memory_bytes"`
	Samples         []MemorySample `json:"samples"`
	Results         []TaskResult   `json:"results"`
}

// Total returns the number of URLs accounted for by the summary.
func (s RunSummary) Total() int {
	return s.Succeeded + s.SoftFailed + s.HardFailed
}

// Failed returns soft and hard failures combined.
func (s RunSummary) Failed() int {
	return s.SoftFailed + s.HardFailed
}

// FetchRequest captures everything needed to fetch a URL over plain HTTP.
type FetchRequest struct {
	URL     string
	Headers http.Header
}

// FetchResponse is the result returned by a Fetcher implementation.
type FetchResponse struct {
	URL        string
	StatusCode int
	Headers    http.Header
	Body       []byte
	Duration   time.Duration
}
