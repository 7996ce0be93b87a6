// Package cmd defines the CLI for the listings binary: "serve" runs the HTTP
// API and "scrape" runs one scraper pass against the configured site.
package cmd
