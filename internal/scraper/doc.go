// Package scraper holds the job-search domain model shared by the fetch,
// dedup, filter and session components, together with the small interfaces
// those components depend on.
package scraper
