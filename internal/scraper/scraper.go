package scraper

import (
	"context"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/JakeFAU/listing-scraper/internal/metrics"
)

// Config controls a Scraper.
type Config struct {
	BaseURL  string
	MaxPages int
	// Delay is waited between consecutive requests.
	Delay time.Duration
}

// Scraper runs the search, detail, and submit sequence for one location.
type Scraper struct {
	cfg       Config
	fetcher   Fetcher
	submitter Submitter
	archiver  Archiver
	logger    *zap.Logger
	now       func() time.Time
	newID     func() string
}

// Option customizes a Scraper.
type Option func(*Scraper)

// WithArchiver stores pages that fail extraction.
func WithArchiver(a Archiver) Option {
	return func(s *Scraper) { s.archiver = a }
}

// WithClock overrides the clock used for default dates.
func WithClock(now func() time.Time) Option {
	return func(s *Scraper) { s.now = now }
}

// New builds a Scraper.
func New(cfg Config, fetcher Fetcher, submitter Submitter, logger *zap.Logger, opts ...Option) (*Scraper, error) {
	if fetcher == nil {
		return nil, fmt.Errorf("fetcher is required")
	}
	if submitter == nil {
		return nil, fmt.Errorf("submitter is required")
	}
	if _, err := parseBase(cfg.BaseURL); err != nil {
		return nil, err
	}
	if cfg.MaxPages <= 0 {
		cfg.MaxPages = 1
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	s := &Scraper{
		cfg:       cfg,
		fetcher:   fetcher,
		submitter: submitter,
		logger:    logger,
		now:       time.Now,
		newID:     uuid.NewString,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

// Run scrapes one location. Per-item failures are logged, counted in the
// Summary, and skipped. An error is returned only for invalid parameters or
// when ctx ends the run early.
func (s *Scraper) Run(ctx context.Context, p Params) (Summary, error) {
	p, err := p.Normalize(s.now())
	if err != nil {
		return Summary{}, err
	}
	summary := Summary{RunID: s.newID()}
	logger := s.logger.With(zap.String("run_id", summary.RunID), zap.String("location", p.Location))

	pageURL, err := BuildSearchURL(s.cfg.BaseURL, p)
	if err != nil {
		return summary, err
	}
	logger.Info("scrape started",
		zap.String("search_url", pageURL),
		zap.String("checkin", p.CheckIn),
		zap.String("checkout", p.CheckOut),
		zap.Int("guests", p.Guests),
	)

	var results []SearchResult
	for page := 1; page <= s.cfg.MaxPages && pageURL != ""; page++ {
		if err := s.pause(ctx, page > 1); err != nil {
			return summary, err
		}
		found, next, ok := s.searchPage(ctx, logger, &summary, page, pageURL)
		if !ok {
			break
		}
		results = append(results, found...)
		pageURL = ""
		if next != "" {
			if pageURL, err = ResolveURL(s.cfg.BaseURL, next); err != nil {
				logger.Warn("invalid next page", zap.String("next_page", next), zap.Error(err))
				pageURL = ""
			}
		}
	}
	summary.Results = len(results)

	for _, result := range results {
		if err := s.pause(ctx, true); err != nil {
			return summary, err
		}
		s.scrapeListing(ctx, logger, &summary, result, p)
	}

	logger.Info("scrape finished",
		zap.Int("search_pages", summary.SearchPages),
		zap.Int("results", summary.Results),
		zap.Int("skipped_search", summary.SkippedSearch),
		zap.Int("details", summary.Details),
		zap.Int("skipped_detail", summary.SkippedDetail),
		zap.Int("submitted", summary.Submitted),
		zap.Int("failed_submit", summary.FailedSubmit),
	)
	return summary, nil
}

func (s *Scraper) searchPage(
	ctx context.Context,
	logger *zap.Logger,
	summary *Summary,
	page int,
	pageURL string,
) ([]SearchResult, string, bool) {
	resp, err := s.fetch(ctx, pageURL)
	if err != nil {
		logger.Error("search fetch failed", zap.Int("page", page), zap.String("url", pageURL), zap.Error(err))
		metrics.ObserveScrapeItem("search", "fetch_failed")
		return nil, "", false
	}
	summary.SearchPages++

	extracted, err := ExtractSearchResults(resp.Body)
	if err != nil {
		logger.Error("search extraction failed", zap.Int("page", page), zap.Error(err))
		metrics.ObserveScrapeItem("search", "extract_failed")
		s.archive(ctx, logger, fmt.Sprintf("%s/search-%d.html", summary.RunID, page), resp.Body)
		return nil, "", false
	}
	for _, skipErr := range extracted.Skipped {
		logger.Warn("search result skipped", zap.Int("page", page), zap.Error(skipErr))
		metrics.ObserveScrapeItem("search", "skipped")
	}
	summary.SkippedSearch += len(extracted.Skipped)
	if len(extracted.Results) == 0 {
		logger.Warn("no listings on search page", zap.Int("page", page))
	}
	return extracted.Results, extracted.NextPage, true
}

func (s *Scraper) scrapeListing(
	ctx context.Context,
	logger *zap.Logger,
	summary *Summary,
	result SearchResult,
	p Params,
) {
	logger = logger.With(zap.String("listing_id", result.ID))
	detailURL, err := DetailURL(s.cfg.BaseURL, result.ID)
	if err != nil {
		summary.SkippedDetail++
		logger.Warn("invalid detail url", zap.Error(err))
		metrics.ObserveScrapeItem("detail", "skipped")
		return
	}
	resp, err := s.fetch(ctx, detailURL)
	if err != nil {
		summary.SkippedDetail++
		logger.Error("detail fetch failed", zap.String("url", detailURL), zap.Error(err))
		metrics.ObserveScrapeItem("detail", "fetch_failed")
		return
	}
	req, err := ExtractDetail(resp.Body, result, p)
	if err != nil {
		summary.SkippedDetail++
		logger.Error("detail extraction failed", zap.Error(err))
		metrics.ObserveScrapeItem("detail", "extract_failed")
		s.archive(ctx, logger, fmt.Sprintf("%s/detail-%s.html", summary.RunID, result.ID), resp.Body)
		return
	}
	summary.Details++

	id, err := s.submitter.Submit(ctx, req)
	if err != nil {
		summary.FailedSubmit++
		logger.Error("submit failed", zap.String("title", req.Title), zap.Error(err))
		metrics.ObserveScrapeItem("submit", "failed")
		return
	}
	summary.Submitted++
	metrics.ObserveScrapeItem("submit", "created")
	logger.Info("listing submitted", zap.String("title", req.Title), zap.Int64("created_id", id))
}

func (s *Scraper) fetch(ctx context.Context, url string) (FetchResponse, error) {
	resp, err := s.fetcher.Fetch(ctx, FetchRequest{URL: url})
	if err != nil {
		metrics.ObserveFetch(url, "error", 0)
		return FetchResponse{}, err
	}
	metrics.ObserveFetch(url, strconv.Itoa(resp.StatusCode), len(resp.Body))
	if resp.StatusCode >= http.StatusBadRequest {
		return FetchResponse{}, fmt.Errorf("unexpected status %d", resp.StatusCode)
	}
	return resp, nil
}

func (s *Scraper) archive(ctx context.Context, logger *zap.Logger, name string, body []byte) {
	if s.archiver == nil {
		return
	}
	uri, err := s.archiver.Archive(ctx, name, body)
	if err != nil {
		logger.Warn("archive page failed", zap.String("name", name), zap.Error(err))
		return
	}
	logger.Info("page archived", zap.String("uri", uri))
}

// pause waits the configured delay before a follow-up request.
func (s *Scraper) pause(ctx context.Context, followUp bool) error {
	if err := ctx.Err(); err != nil {
		return fmt.Errorf("scrape canceled: %w", err)
	}
	if !followUp || s.cfg.Delay <= 0 {
		return nil
	}
	timer := time.NewTimer(s.cfg.Delay)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return fmt.Errorf("scrape canceled: %w", ctx.Err())
	case <-timer.C:
		return nil
	}
}
