package cmd

import (
	"context"
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/JakeFAU/listing-scraper/internal/config"
	"github.com/JakeFAU/listing-scraper/internal/server"
)

type serveRunner interface {
	Run(ctx context.Context) error
}

var newServeRunner = func(ctx context.Context, cfg config.Config) (serveRunner, error) {
	return server.Build(ctx, cfg)
}

// newServeCmd creates the 'serve' subcommand.
func newServeCmd() *cobra.Command {
	var port int
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the listings HTTP API",
		Long: `Starts the HTTP API: GET /api/listings, GET /api/listings/{id},
POST /api/add_listing, plus /healthz, /readyz, and /metrics. Stops
gracefully on SIGINT or SIGTERM.`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := resolveConfig(cmd.Context())
			if err != nil {
				return err
			}
			if port > 0 {
				cfg.Server.Port = port
			}
			app, err := newServeRunner(cmd.Context(), cfg)
			if err != nil {
				return fmt.Errorf("failed to initialize application services: %w", err)
			}
			if err := app.Run(cmd.Context()); err != nil && !errors.Is(err, context.Canceled) {
				return fmt.Errorf("serve: %w", err)
			}
			return nil
		},
	}
	cmd.Flags().IntVar(&port, "port", 0, "listen port (overrides server.port)")
	return cmd
}
