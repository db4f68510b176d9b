package cmd

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"os"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"webshop/crawler/internal/api"
	"webshop/crawler/internal/catalog"
	"webshop/crawler/internal/config"
	"webshop/crawler/internal/dedup"
	"webshop/crawler/internal/fetch"
	"webshop/crawler/internal/logging"
	"webshop/crawler/internal/pipeline"
	"webshop/crawler/internal/ratelimit"
	"webshop/crawler/internal/store"
)

// newCrawlCmd creates the 'crawl' subcommand, which executes one full
// crawl run and exits.
func newCrawlCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "crawl",
		Short: "Runs a full catalog crawl",
		Long: `Discovers the category tree from the configured root URL, processes
every leaf category, and reports per-category and final totals.`,
		RunE: runCrawlCommand,
	}
}

func runCrawlCommand(cmd *cobra.Command, _ []string) error {
	cfg, err := config.Load(cfgFile)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	logger, err := logging.New(cfg.Logging.Development)
	if err != nil {
		return fmt.Errorf("init logger: %w", err)
	}
	defer logger.Sync() //nolint:errcheck // best-effort flush

	run, err := buildPipeline(cmd.Context(), cfg, logger)
	if err != nil {
		return err
	}
	defer run.close()

	if cfg.Server.Enabled {
		server := api.NewServer(cfg.Server.Addr, run.pipeline, logger)
		server.Start()
		defer func() {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			if err := server.Shutdown(shutdownCtx); err != nil {
				logger.Warn("observability server shutdown", zap.Error(err))
			}
		}()
	}

	if err := run.pipeline.Run(cmd.Context()); err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	return nil
}

// crawlRun bundles the pipeline with the resources it borrows.
type crawlRun struct {
	pipeline *pipeline.Pipeline
	store    *store.ProductStore
}

func (r *crawlRun) close() {
	r.store.Close()
}

// buildPipeline wires every pipeline stage from configuration.
func buildPipeline(ctx context.Context, cfg config.Config, logger *zap.Logger) (*crawlRun, error) {
	baseURL, err := url.Parse(cfg.Crawler.RootURL)
	if err != nil {
		return nil, fmt.Errorf("parse root url: %w", err)
	}

	keyFunc, err := catalog.KeyFuncFor(cfg.Crawler.IdentitySource)
	if err != nil {
		return nil, fmt.Errorf("resolve identity source: %w", err)
	}

	limiter := ratelimit.New(ratelimit.Config{
		RequestsPerSecond: cfg.HTTP.RatePerHost,
		Burst:             cfg.HTTP.RateBurst,
	})
	client := fetch.New(fetch.Config{
		UserAgent:         cfg.Crawler.UserAgent,
		Timeout:           cfg.HTTP.Timeout(),
		MaxRetries:        cfg.HTTP.MaxRetries,
		BackoffBase:       cfg.HTTP.BackoffBase(),
		BackoffMax:        cfg.HTTP.BackoffMax(),
		BackoffMultiplier: cfg.HTTP.BackoffMultiplier,
	}, limiter, logger)

	productStore, err := store.NewProductStore(ctx, store.Config{
		DSN:             cfg.DB.DSN,
		Table:           cfg.DB.Table,
		MaxConns:        cfg.DB.MaxConns,
		MinConns:        cfg.DB.MinConns,
		MaxConnLifetime: cfg.DB.ConnLifetime(),
		MaxRetries:      cfg.DB.MaxRetries,
		BackoffBase:     cfg.DB.BackoffBase(),
	}, logger)
	if err != nil {
		return nil, fmt.Errorf("init product store: %w", err)
	}
	if err := productStore.EnsureSchema(ctx); err != nil {
		productStore.Close()
		return nil, fmt.Errorf("ensure schema: %w", err)
	}

	p := pipeline.New(
		catalog.NewWalker(client, cfg.Crawler.RootURL, logger),
		catalog.NewPaginator(client, cfg.Crawler.MaxPages, logger),
		catalog.NewExtractor(baseURL, cfg.Crawler.WebsiteName, keyFunc),
		dedup.New(),
		productStore,
		pipeline.Config{Concurrency: cfg.Crawler.Concurrency},
		os.Stdout,
		logger,
	)

	return &crawlRun{pipeline: p, store: productStore}, nil
}
