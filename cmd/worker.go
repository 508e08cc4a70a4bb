package cmd

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/cajo-dk/mycousinvinyl-ha-sub001/config"
	"github.com/cajo-dk/mycousinvinyl-ha-sub001/internal/database"
	"github.com/cajo-dk/mycousinvinyl-ha-sub001/internal/messaging"
	"github.com/cajo-dk/mycousinvinyl-ha-sub001/internal/relay"
	"github.com/cajo-dk/mycousinvinyl-ha-sub001/internal/repositories"
	"github.com/cajo-dk/mycousinvinyl-ha-sub001/internal/sweeper"
	"github.com/cajo-dk/mycousinvinyl-ha-sub001/internal/tracing"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"
)

var workerCmd = &cobra.Command{
	Use:   "worker",
	Short: "Start the background worker",
	Long:  `Start the outbox relay and the background sweepers`,
	RunE:  runWorker,
}

func init() {
	rootCmd.AddCommand(workerCmd)
}

func runWorker(cmd *cobra.Command, args []string) error {
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

	// Create an error group to manage goroutines
	g, ctx := errgroup.WithContext(ctx)

	// Initialize database connection
	db, err := database.Connect(cfg.DB)
	if err != nil {
		return err
	}

	// Initialize tracer
	tracer, err := tracing.NewTracer(cfg.Tracing)
	if err != nil {
		log.Warn().Err(err).Msg("Failed to initialize tracer, continuing without tracing")
		tracer = &tracing.NewRelicTracer{}
	}
	defer tracer.Close()

	// Initialize repositories
	outboxRepo := repositories.NewOutboxRepository(db)
	cacheRepo := repositories.NewCacheRepository(db)
	syslogRepo := repositories.NewSystemLogRepository(db)

	// Initialize the broker publisher
	publisher, err := messaging.NewPublisher(cfg.Broker)
	if err != nil {
		return err
	}
	defer publisher.Close()

	// Start the outbox relay
	outboxRelay := relay.New(outboxRepo, publisher, tracer, cfg.Relay)
	g.Go(func() error {
		return outboxRelay.Run(ctx)
	})

	// Start the sweepers
	g.Go(func() error {
		runner, err := sweeper.NewRunner(tracer)
		if err != nil {
			return err
		}

		if err := runner.Every(ctx, cfg.Sweep.CacheInterval, sweeper.NewCacheEviction(cacheRepo)); err != nil {
			return err
		}
		if err := runner.DailyAt(ctx, cfg.Sweep.LogPruneAt, sweeper.NewLogPruning(syslogRepo, cfg.Sweep.LogRetentionDays)); err != nil {
			return err
		}

		runner.Start()

		if err := syslogRepo.Write(ctx, "info", "worker", "background worker started", "system"); err != nil {
			log.Warn().Err(err).Msg("Failed to write startup audit entry")
		}

		// Wait for context cancellation
		<-ctx.Done()

		return runner.Shutdown()
	})

	// Wait for any goroutine to exit
	if err := g.Wait(); err != nil {
		log.Error().Err(err).Msg("Worker error")
		return err
	}

	log.Info().Msg("Worker shutting down gracefully")
	return nil
}
