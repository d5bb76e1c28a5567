package headless

import (
	"context"
	"net/http"
	"testing"
	"time"

	"github.com/chromedp/cdproto/network"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/JakeFAU/batch-crawler/internal/crawler"
)

func TestNewAppliesDefaults(t *testing.T) {
	t.Parallel()

	b := New(Config{SettleDelay: -time.Second}, nil)
	require.Equal(t, defaultNavigationTimeout, b.cfg.NavigationTimeout)
	require.Zero(t, b.cfg.SettleDelay)
	require.NotNil(t, b.logger)

	b = New(Config{}, zap.NewNop())
	require.Equal(t, defaultSettleDelay, b.cfg.SettleDelay)
}

func TestCrawlBeforeStart(t *testing.T) {
	t.Parallel()

	b := New(Config{}, nil)
	_, err := b.Crawl(context.Background(), "https://example.com", crawler.Session{ID: "s"})
	require.ErrorIs(t, err, ErrNotStarted)
	require.NoError(t, b.Close())
	require.NoError(t, b.Close())
}

func TestStartHonorsCanceledContext(t *testing.T) {
	t.Parallel()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	err := New(Config{}, nil).Start(ctx)
	require.ErrorIs(t, err, context.Canceled)
}

func TestSplitLaunchArg(t *testing.T) {
	t.Parallel()

	cases := []struct {
		arg   string
		name  string
		value any
		ok    bool
	}{
		{arg: "--disable-gpu", name: "disable-gpu", value: true, ok: true},
		{arg: "--window-size=1280,720", name: "window-size", value: "1280,720", ok: true},
		{arg: "  no-sandbox ", name: "no-sandbox", value: true, ok: true},
		{arg: "--lang=", name: "lang", value: "", ok: true},
		{arg: "--", ok: false},
		{arg: "--=x", ok: false},
	}
	for _, tc := range cases {
		name, value, ok := splitLaunchArg(tc.arg)
		require.Equal(t, tc.ok, ok, tc.arg)
		if !tc.ok {
			continue
		}
		require.Equal(t, tc.name, name, tc.arg)
		require.Equal(t, tc.value, value, tc.arg)
	}
}

func TestAllocatorOptionsIncludeExtraArgs(t *testing.T) {
	t.Parallel()

	b := New(Config{FetchConfig: crawler.FetchConfig{
		Headless:        true,
		ExtraLaunchArgs: []string{"--disable-gpu", "--", "--lang=en-US"},
	}}, nil)
	base := len(b.allocatorOptions())

	plain := New(Config{FetchConfig: crawler.FetchConfig{Headless: true}}, nil)
	require.Equal(t, len(plain.allocatorOptions())+2, base, "malformed args are skipped")
}

func TestCloneHeader(t *testing.T) {
	t.Parallel()

	src := http.Header{"X-Test": {"a", "b"}}
	cloned := cloneHeader(src)
	cloned.Add("X-Test", "c")
	require.Len(t, src["X-Test"], 2)
	require.Nil(t, cloneHeader(nil))
}

func TestResponseMetaCaptureAndFallbacks(t *testing.T) {
	t.Parallel()

	meta := newResponseMeta()
	meta.captureEvent(&network.EventResponseReceived{
		Type: network.ResourceTypeDocument,
		Response: &network.Response{
			Status:  404,
			URL:     "https://example.com/rendered",
			Headers: network.Headers{"X-Request-ID": "abc", "Set-Cookie": []interface{}{"a=1", "b=2"}},
		},
	})
	meta.captureEvent(&network.EventResponseReceived{
		Type:     network.ResourceTypeDocument,
		Response: &network.Response{Status: 200, URL: "https://example.com/frame"},
	})
	meta.captureEvent(&network.EventResponseReceived{
		Type:     network.ResourceTypeScript,
		Response: &network.Response{Status: 500, URL: "https://example.com/app.js"},
	})

	status, headers, url := meta.snapshotWithFallbacks("https://req", "")
	require.Equal(t, 404, status)
	require.Equal(t, "abc", headers.Get("X-Request-ID"))
	require.Len(t, headers.Values("Set-Cookie"), 2)
	require.Equal(t, "https://example.com/rendered", url)

	meta = newResponseMeta()
	status, _, url = meta.snapshotWithFallbacks("https://req", "https://final")
	require.Equal(t, http.StatusOK, status)
	require.Equal(t, "https://final", url)

	_, _, url = meta.snapshotWithFallbacks("https://req", "")
	require.Equal(t, "https://req", url)
}

func TestForwardCancel(t *testing.T) {
	t.Parallel()

	parent, cancelParent := context.WithCancel(context.Background())
	child, cancelChild := context.WithCancel(context.Background())
	defer cancelChild()

	stop := forwardCancel(parent, cancelChild)
	defer stop()
	cancelParent()

	select {
	case <-child.Done():
	case <-time.After(time.Second):
		t.Fatal("child context was not canceled")
	}
}
