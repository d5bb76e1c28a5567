// Package crawler holds the types shared by the sitemap collector, the page
// backends, and the batch orchestrator: sessions, pages, tagged task outcomes,
// run summaries, and the small interfaces that connect them.
package crawler
