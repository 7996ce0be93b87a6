package cmd

import (
	"context"
	"fmt"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/JakeFAU/listing-scraper/internal/config"
	"github.com/JakeFAU/listing-scraper/internal/scraper"
	"github.com/JakeFAU/listing-scraper/internal/server"
)

type scrapeRunner interface {
	Run(ctx context.Context, p scraper.Params) (scraper.Summary, error)
	Close()
}

var newScrapeRunner = func(cfg config.Config) (scrapeRunner, error) {
	return server.BuildScraper(cfg)
}

// newScrapeCmd creates the 'scrape' subcommand.
func newScrapeCmd() *cobra.Command {
	var (
		params   scraper.Params
		maxPages int
	)
	cmd := &cobra.Command{
		Use:   "scrape",
		Short: "Scrape one location and post each listing to the ingest endpoint",
		Long: `Fetches the search results for a location, then each listing's detail
page, and posts one payload per listing to scraper.api_url. Failed items are
logged and skipped. Check-in defaults to today and check-out to check-in.`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := resolveConfig(cmd.Context())
			if err != nil {
				return err
			}
			if maxPages > 0 {
				cfg.Scraper.MaxPages = maxPages
			}
			runner, err := newScrapeRunner(cfg)
			if err != nil {
				return fmt.Errorf("failed to initialize scraper: %w", err)
			}
			defer runner.Close()

			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			summary, err := runner.Run(ctx, params)
			if err != nil {
				return fmt.Errorf("scrape: %w", err)
			}
			_, err = fmt.Fprintf(cmd.OutOrStdout(),
				"run %s: %d results, %d submitted, %d failed submits, %d skipped details, %d skipped results\n",
				summary.RunID, summary.Results, summary.Submitted, summary.FailedSubmit,
				summary.SkippedDetail, summary.SkippedSearch)
			return err
		},
	}
	cmd.Flags().StringVar(&params.Location, "location", "New York", "location to search")
	cmd.Flags().StringVar(&params.CheckIn, "checkin", "", "check-in date YYYY-MM-DD (default today)")
	cmd.Flags().StringVar(&params.CheckOut, "checkout", "", "check-out date YYYY-MM-DD (default the check-in date)")
	cmd.Flags().IntVar(&params.Guests, "guests", 2, "number of adult guests")
	cmd.Flags().IntVar(&maxPages, "max-pages", 0, "search pages to follow (overrides scraper.max_pages)")
	return cmd
}
