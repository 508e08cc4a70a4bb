package sweeper

import (
	"context"
	"sync"
	"time"

	"github.com/cajo-dk/mycousinvinyl-ha-sub001/internal/tracing"

	"github.com/go-co-op/gocron/v2"
	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"
)

// Sweeper is one recurring background pass over a table.
type Sweeper interface {
	Name() string
	Sweep(ctx context.Context) error
}

// Runner schedules sweepers. A pass failure or panic is logged and the
// schedule keeps firing; nothing escalates to process termination.
type Runner struct {
	scheduler gocron.Scheduler
	tracer    tracing.Tracer
}

// NewRunner creates a new sweeper runner
func NewRunner(tracer tracing.Tracer) (*Runner, error) {
	scheduler, err := gocron.NewScheduler()
	if err != nil {
		return nil, errors.Wrap(err, "failed to create scheduler")
	}
	return &Runner{scheduler: scheduler, tracer: tracer}, nil
}

// Every schedules a sweeper on a fixed interval.
func (r *Runner) Every(ctx context.Context, interval time.Duration, s Sweeper) error {
	_, err := r.scheduler.NewJob(
		gocron.DurationJob(interval),
		gocron.NewTask(func() {
			r.runPass(ctx, s)
		}),
	)
	if err != nil {
		return errors.Wrapf(err, "failed to schedule sweeper %s", s.Name())
	}

	log.Info().Str("sweeper", s.Name()).Dur("interval", interval).Msg("Scheduled interval sweeper")
	return nil
}

// DailyAt schedules a sweeper once per calendar day at the given local
// wall-clock time (HH:MM). A last-run-date guard keeps a wake-up spanning
// the trigger minute from running the pass twice in the same day.
func (r *Runner) DailyAt(ctx context.Context, at string, s Sweeper) error {
	trigger, err := time.Parse("15:04", at)
	if err != nil {
		return errors.Wrapf(err, "invalid daily trigger time %q for sweeper %s", at, s.Name())
	}

	guarded := &dailyGuard{inner: s}
	_, err = r.scheduler.NewJob(
		gocron.DailyJob(1, gocron.NewAtTimes(
			gocron.NewAtTime(uint(trigger.Hour()), uint(trigger.Minute()), 0),
		)),
		gocron.NewTask(func() {
			r.runPass(ctx, guarded)
		}),
	)
	if err != nil {
		return errors.Wrapf(err, "failed to schedule sweeper %s", s.Name())
	}

	log.Info().Str("sweeper", s.Name()).Str("at", at).Msg("Scheduled daily sweeper")
	return nil
}

// Start begins firing scheduled sweepers.
func (r *Runner) Start() {
	r.scheduler.Start()
}

// Shutdown stops the scheduler. Running passes finish their current item.
func (r *Runner) Shutdown() error {
	return r.scheduler.Shutdown()
}

// runPass executes one sweep pass with failure containment.
func (r *Runner) runPass(ctx context.Context, s Sweeper) {
	defer func() {
		if rec := recover(); rec != nil {
			log.Error().Interface("panic", rec).Str("sweeper", s.Name()).Msg("Sweeper pass panicked")
		}
	}()

	txn := r.tracer.StartTransaction("sweep-" + s.Name())
	defer r.tracer.EndTransaction(txn)

	start := time.Now()
	if err := s.Sweep(ctx); err != nil {
		r.tracer.RecordError(txn, err)
		log.Error().Err(err).Str("sweeper", s.Name()).Msg("Sweeper pass failed")
		return
	}

	log.Debug().Str("sweeper", s.Name()).Dur("took", time.Since(start)).Msg("Sweeper pass complete")
}

// dailyGuard runs its inner sweeper at most once per local calendar day.
type dailyGuard struct {
	inner Sweeper

	mu      sync.Mutex
	lastRun string
}

func (g *dailyGuard) Name() string { return g.inner.Name() }

func (g *dailyGuard) Sweep(ctx context.Context) error {
	g.mu.Lock()
	today := time.Now().Format("2006-01-02")
	if g.lastRun == today {
		g.mu.Unlock()
		return nil
	}
	g.lastRun = today
	g.mu.Unlock()

	return g.inner.Sweep(ctx)
}
