package cmd

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/cajo-dk/mycousinvinyl-ha-sub001/config"
	"github.com/cajo-dk/mycousinvinyl-ha-sub001/internal/cache"
	"github.com/cajo-dk/mycousinvinyl-ha-sub001/internal/database"
	"github.com/cajo-dk/mycousinvinyl-ha-sub001/internal/repositories"
	"github.com/cajo-dk/mycousinvinyl-ha-sub001/internal/search"
	"github.com/cajo-dk/mycousinvinyl-ha-sub001/internal/services"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
)

var refreshPricingCmd = &cobra.Command{
	Use:   "refresh-pricing",
	Short: "Refresh stale market pricing",
	Long: `Select pressings whose market pricing is missing or stale, look up
current prices and store the refreshed snapshots. Price update events are
written to the outbox and published by the worker's relay.`,
	RunE: runRefreshPricing,
}

func init() {
	rootCmd.AddCommand(refreshPricingCmd)
}

func runRefreshPricing(cmd *cobra.Command, args []string) error {
	// Load configuration
	cfg, err := config.LoadConfig(".")
	if err != nil {
		return err
	}
	if err := cfg.Validate(); err != nil {
		return err
	}

	// Allow Ctrl-C to stop between pressings
	ctx, stop := signal.NotifyContext(context.Background(),
		os.Interrupt, syscall.SIGTERM, syscall.SIGINT)
	defer stop()

	// Initialize database connection
	db, err := database.Connect(cfg.DB)
	if err != nil {
		return err
	}

	// Initialize cache
	redisCache, err := cache.NewRedisCache(cfg.Redis)
	if err != nil {
		log.Warn().Err(err).Msg("Failed to initialize Redis cache, continuing without caching")
		redisCache = nil
	}

	// Initialize Elasticsearch client
	elasticClient, err := search.NewElasticClient(cfg.Elastic)
	if err != nil {
		log.Warn().Err(err).Msg("Failed to initialize Elasticsearch client, continuing without search indexing")
		elasticClient = nil
	}

	marketRepo := repositories.NewMarketDataRepository(db)
	cacheRepo := repositories.NewCacheRepository(db)
	syslogRepo := repositories.NewSystemLogRepository(db)
	source := services.NewDiscogsPriceSource(cfg.Discogs)

	var indexer services.SnapshotIndexer
	if elasticClient != nil {
		indexer = elasticClient
	}

	pricing := services.NewPricingService(
		marketRepo,
		cacheRepo,
		redisCache,
		source,
		indexer,
		syslogRepo,
		cfg.Sweep,
		cfg.Discogs.CacheTTL,
	)

	if err := pricing.RefreshStalePricing(ctx); err != nil {
		log.Error().Err(err).Msg("Pricing refresh failed")
		return err
	}

	log.Info().Msg("Pricing refresh complete")
	return nil
}
