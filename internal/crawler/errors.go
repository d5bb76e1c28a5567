package crawler

import "errors"

var (
	// ErrInvalidConfiguration is returned before any work starts when run parameters are unusable.
	ErrInvalidConfiguration = errors.New("invalid configuration")
	// ErrBackendUnavailable wraps failures to acquire the page backend at run start.
	ErrBackendUnavailable = errors.New("backend unavailable")
	// ErrSitemapFetch marks a sitemap that could not be retrieved.
	ErrSitemapFetch = errors.New("sitemap fetch failed")
	// ErrSitemapParse marks a sitemap whose payload is not valid XML.
	ErrSitemapParse = errors.New("sitemap parse failed")
)
