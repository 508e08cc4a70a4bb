package relay

import (
	"context"
	"encoding/json"
	"time"

	"github.com/cajo-dk/mycousinvinyl-ha-sub001/config"
	"github.com/cajo-dk/mycousinvinyl-ha-sub001/internal/messaging"
	"github.com/cajo-dk/mycousinvinyl-ha-sub001/internal/models"
	"github.com/cajo-dk/mycousinvinyl-ha-sub001/internal/tracing"

	"github.com/rs/zerolog/log"
)

// Store is the outbox access the relay needs.
type Store interface {
	DrainPending(ctx context.Context, limit, maxAttempts int, fn func(models.OutboxEvent) error) (int, int, error)
	DeleteProcessedOlderThan(ctx context.Context, age time.Duration) (int64, error)
}

// Relay drains the outbox on a fixed cadence and publishes claimed events to
// the broker. A publish failure leaves the row pending for the next cycle
// and never aborts the rest of the batch; delivery is at-least-once.
type Relay struct {
	store       Store
	publisher   messaging.Publisher
	tracer      tracing.Tracer
	interval    time.Duration
	batchSize   int
	maxAttempts int
	purgeAfter  time.Duration
	purgeEvery  int

	cycles int
}

// New creates a new outbox relay
func New(store Store, publisher messaging.Publisher, tracer tracing.Tracer, cfg config.RelayConfig) *Relay {
	return &Relay{
		store:       store,
		publisher:   publisher,
		tracer:      tracer,
		interval:    cfg.Interval,
		batchSize:   cfg.BatchSize,
		maxAttempts: cfg.MaxAttempts,
		purgeAfter:  cfg.PurgeAfter,
		purgeEvery:  cfg.PurgeEvery,
	}
}

// Run drains the outbox until the context is cancelled. An in-flight event
// finishes before the loop stops; the rest of the batch stays pending.
func (r *Relay) Run(ctx context.Context) error {
	log.Info().
		Dur("interval", r.interval).
		Int("batch_size", r.batchSize).
		Int("max_attempts", r.maxAttempts).
		Msg("Starting outbox relay")

	ticker := time.NewTicker(r.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			log.Info().Msg("Outbox relay stopped")
			return nil
		case <-ticker.C:
			r.DrainOnce(ctx)
		}
	}
}

// DrainOnce runs a single claim-publish-mark cycle and, periodically, the
// processed-row purge.
func (r *Relay) DrainOnce(ctx context.Context) {
	txn := r.tracer.StartTransaction("outbox-relay-drain")
	defer r.tracer.EndTransaction(txn)

	published, failed, err := r.store.DrainPending(ctx, r.batchSize, r.maxAttempts, func(ev models.OutboxEvent) error {
		headers := map[string]string{
			"aggregate-id":   ev.AggregateID,
			"aggregate-type": ev.AggregateType,
		}
		if err := r.publisher.Publish(ctx, ev.Destination, json.RawMessage(ev.Payload), headers); err != nil {
			log.Warn().
				Err(err).
				Str("event_id", ev.ID.String()).
				Str("destination", ev.Destination).
				Int("attempts", ev.Attempts).
				Msg("Failed to publish outbox event, leaving pending")
			return err
		}
		return nil
	})
	if err != nil {
		r.tracer.RecordError(txn, err)
		log.Error().Err(err).Msg("Outbox drain cycle failed")
		return
	}

	if published > 0 || failed > 0 {
		log.Info().
			Int("published", published).
			Int("failed", failed).
			Msg("Outbox drain cycle complete")
	}

	r.cycles++
	if r.purgeEvery > 0 && r.cycles%r.purgeEvery == 0 {
		deleted, err := r.store.DeleteProcessedOlderThan(ctx, r.purgeAfter)
		if err != nil {
			r.tracer.RecordError(txn, err)
			log.Error().Err(err).Msg("Failed to purge processed outbox events")
			return
		}
		if deleted > 0 {
			log.Info().Int64("deleted", deleted).Msg("Purged processed outbox events")
		}
	}
}
