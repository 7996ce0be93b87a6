// Package scraper reads a travel site's embedded script-tag JSON and turns it
// into ingest payloads.
//
// A run issues one search request per location (more when pagination is
// enabled), one detail request per result, and one post per detail record.
// Requests are sequential. Any fetch, extraction, or post failure is logged
// and the item is skipped; there is no retry and no dedup across runs.
//
// Page retrieval is behind the Fetcher interface (a Colly fetcher by default,
// chromedp when headless rendering is enabled) and delivery is behind
// Submitter, implemented by the ingest HTTP client.
package scraper
