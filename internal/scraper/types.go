package scraper

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/JakeFAU/listing-scraper/internal/listing"
)

// Params describes one scrape run.
type Params struct {
	Location string
	CheckIn  string
	CheckOut string
	Guests   int
}

// Normalize trims the location, defaults a missing checkin to today and a
// missing checkout to the checkin, and validates the dates and guest count.
// Each date is optional on its own.
func (p Params) Normalize(now time.Time) (Params, error) {
	p.Location = strings.TrimSpace(p.Location)
	if p.Location == "" {
		return Params{}, fmt.Errorf("location is required")
	}
	if p.Guests < 1 {
		return Params{}, fmt.Errorf("guests must be >= 1, got %d", p.Guests)
	}
	bothSet := p.CheckIn != "" && p.CheckOut != ""
	today := now.UTC().Format(listing.DateLayout)
	if p.CheckIn == "" {
		p.CheckIn = today
	}
	if p.CheckOut == "" {
		p.CheckOut = p.CheckIn
	}
	in, err := time.Parse(listing.DateLayout, p.CheckIn)
	if err != nil {
		return Params{}, fmt.Errorf("invalid checkin %q: want YYYY-MM-DD", p.CheckIn)
	}
	out, err := time.Parse(listing.DateLayout, p.CheckOut)
	if err != nil {
		return Params{}, fmt.Errorf("invalid checkout %q: want YYYY-MM-DD", p.CheckOut)
	}
	// Ordering is only enforced on an explicit pair.
	if bothSet && out.Before(in) {
		return Params{}, fmt.Errorf("checkout %s is before checkin %s", p.CheckOut, p.CheckIn)
	}
	return p, nil
}

// SearchResult is the basic record read from a search results page.
type SearchResult struct {
	ID            string
	Title         string
	City          string
	PricePerNight float64
	Currency      string
	Rating        float64
	Reviews       int
	ImageURL      string
}

// FetchRequest captures everything needed to fetch a page.
type FetchRequest struct {
	URL     string
	Headers http.Header
}

// FetchResponse is the result returned by a Fetcher implementation.
type FetchResponse struct {
	URL          string
	StatusCode   int
	Headers      http.Header
	Body         []byte
	Duration     time.Duration
	UsedHeadless bool
}

// Fetcher retrieves pages over the network.
type Fetcher interface {
	Fetch(ctx context.Context, request FetchRequest) (FetchResponse, error)
}

// Submitter delivers one ingest payload to the backend.
type Submitter interface {
	Submit(ctx context.Context, req listing.IngestRequest) (int64, error)
}

// Archiver stores raw page bodies for later inspection.
type Archiver interface {
	Archive(ctx context.Context, name string, body []byte) (string, error)
}

// Summary reports the outcome of a run. Every failure is counted, never
// returned.
type Summary struct {
	RunID         string
	SearchPages   int
	Results       int
	SkippedSearch int
	Details       int
	SkippedDetail int
	Submitted     int
	FailedSubmit  int
}
