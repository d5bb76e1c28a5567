package metrics

import (
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestSanitizeSite(t *testing.T) {
	testCases := []struct {
		name     string
		input    string
		expected string
	}{
		{"standard http", "http://example.com/path", "example.com"},
		{"standard https", "https://Example.com/path", "example.com"},
		{"no scheme", "example.com/path", "example.com"},
		{"just host", "example.com", "example.com"},
		{"host with port", "example.com:8080", "example.com"},
		{"ip address", "192.168.1.1", "192.168.1.1"},
		{"invalid url", "http://%", "unknown"},
		{"empty string", "", "unknown"},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			if got := SanitizeSite(tc.input); got != tc.expected {
				t.Errorf("SanitizeSite(%q) = %q; want %q", tc.input, got, tc.expected)
			}
		})
	}
}

func TestInitIsIdempotent(t *testing.T) {
	Init()
	Init()

	if crawlerPagesTotal == nil || crawlerBatchesTotal == nil ||
		crawlerMemoryPeakBytes == nil || sitemapFailuresTotal == nil {
		t.Fatal("Init() did not initialize metrics collectors")
	}
}

func TestObservers(t *testing.T) {
	Init()

	before := testutil.ToFloat64(crawlerPagesTotal.WithLabelValues("metrics-test.example", "success"))
	ObservePage("https://metrics-test.example/a", "success")
	if got := testutil.ToFloat64(crawlerPagesTotal.WithLabelValues("metrics-test.example", "success")); got != before+1 {
		t.Errorf("expected page counter to grow by one, got %f (before %f)", got, before)
	}

	ObserveMemory(1024, 4096)
	if got := testutil.ToFloat64(crawlerMemoryPeakBytes); got != 4096 {
		t.Errorf("expected peak gauge 4096, got %f", got)
	}
	if got := testutil.ToFloat64(crawlerMemoryBytes); got != 1024 {
		t.Errorf("expected current gauge 1024, got %f", got)
	}

	batches := testutil.ToFloat64(crawlerBatchesTotal)
	ObserveBatch(250 * time.Millisecond)
	if got := testutil.ToFloat64(crawlerBatchesTotal); got != batches+1 {
		t.Errorf("expected batch counter to grow by one, got %f", got)
	}

	parse := testutil.ToFloat64(sitemapFailuresTotal.WithLabelValues("parse"))
	ObserveSitemapFailure("parse")
	if got := testutil.ToFloat64(sitemapFailuresTotal.WithLabelValues("parse")); got != parse+1 {
		t.Errorf("expected parse failures to grow by one, got %f", got)
	}

	urls := testutil.ToFloat64(sitemapURLsTotal)
	AddSitemapURLs(0)
	AddSitemapURLs(3)
	if got := testutil.ToFloat64(sitemapURLsTotal); got != urls+3 {
		t.Errorf("expected url counter to grow by three, got %f", got)
	}
}

// Fuzz test for SanitizeSite.
func FuzzSanitizeSite(f *testing.F) {
	testcases := []string{"http://example.com", "https://google.com", "ftp://example.com"}
	for _, tc := range testcases {
		f.Add(tc)
	}
	f.Fuzz(func(t *testing.T, orig string) {
		sanitized := SanitizeSite(orig)
		if sanitized == "" {
			t.Errorf("SanitizeSite(%q) returned an empty string", orig)
		}
	})
}
