package cmd

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/cajo-dk/mycousinvinyl-ha-sub001/config"
	"github.com/cajo-dk/mycousinvinyl-ha-sub001/internal/api"
	"github.com/cajo-dk/mycousinvinyl-ha-sub001/internal/cache"
	"github.com/cajo-dk/mycousinvinyl-ha-sub001/internal/database"
	"github.com/cajo-dk/mycousinvinyl-ha-sub001/internal/repositories"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
)

var apiCmd = &cobra.Command{
	Use:   "api",
	Short: "Start the ops API server",
	Long:  `Start the HTTP server exposing health and outbox statistics`,
	RunE:  runAPI,
}

func init() {
	rootCmd.AddCommand(apiCmd)
}

func runAPI(cmd *cobra.Command, args []string) error {
	// Load configuration
	cfg, err := config.LoadConfig(".")
	if err != nil {
		return err
	}
	if err := cfg.Validate(); err != nil {
		return err
	}

	// Configure logging
	if cfg.Environment == "development" {
		log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr})
	}

	// Set up signal handling for graceful shutdown
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
	}

	outboxRepo := repositories.NewOutboxRepository(db)
	server := api.NewServer(cfg, db, redisCache, outboxRepo)

	go func() {
		<-ctx.Done()
		if err := server.Shutdown(context.Background()); err != nil {
			log.Error().Err(err).Msg("Failed to shut down HTTP server")
		}
	}()

	return server.Start()
}
