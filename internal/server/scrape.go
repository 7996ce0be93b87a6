package server

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/JakeFAU/listing-scraper/internal/config"
	collyfetcher "github.com/JakeFAU/listing-scraper/internal/fetcher/colly"
	headlessfetcher "github.com/JakeFAU/listing-scraper/internal/fetcher/headless"
	"github.com/JakeFAU/listing-scraper/internal/ingest"
	"github.com/JakeFAU/listing-scraper/internal/scraper"
	localstorage "github.com/JakeFAU/listing-scraper/internal/storage/local"
)

// ScrapeApp holds one configured scraper and what must be released after it.
type ScrapeApp struct {
	logger  *zap.Logger
	scraper *scraper.Scraper
	closers []func()
}

// BuildScraper creates the fetcher, ingest client, and optional page archive.
func BuildScraper(cfg config.Config) (*ScrapeApp, error) {
	if err := cfg.ValidateScrape(); err != nil {
		return nil, err
	}
	logger, err := newLogger(cfg)
	if err != nil {
		return nil, err
	}
	app := &ScrapeApp{logger: logger}

	fetcher, err := app.setupFetcher(cfg)
	if err != nil {
		return nil, err
	}

	client, err := ingest.New(ingest.Config{
		URL:       cfg.Scraper.APIURL,
		APIKey:    cfg.Scraper.APIKey,
		UserAgent: cfg.Scraper.UserAgent,
		Timeout:   cfg.FetchTimeout(),
	}, logger.Named("ingest"))
	if err != nil {
		app.Close()
		return nil, fmt.Errorf("ingest client init failed: %w", err)
	}
	logger.Info("posting listings", zap.String("api_url", cfg.Scraper.APIURL))

	var opts []scraper.Option
	if cfg.Scraper.ArchiveDir != "" {
		archive, err := localstorage.New(localstorage.Config{Dir: cfg.Scraper.ArchiveDir})
		if err != nil {
			app.Close()
			return nil, fmt.Errorf("page archive init failed: %w", err)
		}
		opts = append(opts, scraper.WithArchiver(archive))
		logger.Info("archiving failed pages", zap.String("dir", cfg.Scraper.ArchiveDir))
	}

	app.scraper, err = scraper.New(scraper.Config{
		BaseURL:  cfg.Scraper.BaseURL,
		MaxPages: cfg.Scraper.MaxPages,
		Delay:    time.Duration(cfg.Scraper.DelayMillis) * time.Millisecond,
	}, fetcher, client, logger.Named("scraper"), opts...)
	if err != nil {
		app.Close()
		return nil, fmt.Errorf("scraper init failed: %w", err)
	}
	return app, nil
}

func (a *ScrapeApp) setupFetcher(cfg config.Config) (scraper.Fetcher, error) {
	if !cfg.Headless.Enabled {
		a.logger.Info("using colly fetcher",
			zap.String("user_agent", cfg.Scraper.UserAgent),
			zap.Bool("respect_robots", cfg.Scraper.RespectRobots),
		)
		return collyfetcher.New(collyfetcher.Config{
			UserAgent:     cfg.Scraper.UserAgent,
			RespectRobots: cfg.Scraper.RespectRobots,
			Timeout:       cfg.FetchTimeout(),
		}), nil
	}
	hcfg := headlessConfig(cfg)
	headless, err := headlessfetcher.NewChromedp(hcfg)
	if err != nil {
		return nil, fmt.Errorf("headless fetcher init failed: %w", err)
	}
	a.closers = append(a.closers, headless.Close)
	a.logger.Info("using headless fetcher",
		zap.Int("max_parallel", hcfg.MaxParallel),
		zap.String("wait_selector", hcfg.WaitSelector),
		zap.Duration("data_timeout", hcfg.DataTimeout),
		zap.Duration("settle_delay", hcfg.SettleDelay),
	)
	return headless, nil
}

func headlessConfig(cfg config.Config) headlessfetcher.Config {
	return headlessfetcher.Config{
		MaxParallel:       cfg.Headless.MaxParallel,
		UserAgent:         cfg.Scraper.UserAgent,
		NavigationTimeout: time.Duration(cfg.Headless.NavTimeoutSec) * time.Second,
		WaitSelector:      cfg.Headless.WaitSelector,
		DataTimeout:       time.Duration(cfg.Headless.DataTimeoutSec) * time.Second,
		SettleDelay:       time.Duration(cfg.Headless.SettleMillis) * time.Millisecond,
	}
}

// Run scrapes one location.
func (a *ScrapeApp) Run(ctx context.Context, p scraper.Params) (scraper.Summary, error) {
	return a.scraper.Run(ctx, p)
}

// Close stops the browser allocator, if any, and flushes logs.
func (a *ScrapeApp) Close() {
	for i := len(a.closers) - 1; i >= 0; i-- {
		a.closers[i]()
	}
	a.closers = nil
	if err := a.logger.Sync(); err != nil {
		a.logger.Debug("logger sync failed", zap.Error(err))
	}
}
