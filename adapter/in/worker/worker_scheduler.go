package worker

import (
	"context"
	"fmt"

	"github.com/robfig/cron/v3"
	"github.com/rs/zerolog"

	"calsync_server/core/port/out"
)

// cronLogger adapts zerolog to cron.Logger.
type cronLogger struct {
	log zerolog.Logger
}

func (l cronLogger) Info(msg string, keysAndValues ...interface{}) {
	l.log.Debug().Fields(keysAndValues).Msg(msg)
}

func (l cronLogger) Error(err error, msg string, keysAndValues ...interface{}) {
	l.log.Error().Err(err).Fields(keysAndValues).Msg(msg)
}

// Scheduler runs jobs on cron schedules. A run still in progress when the
// next tick fires makes that tick a no-op.
type Scheduler struct {
	cron       *cron.Cron
	dispatcher *Dispatcher
	log        zerolog.Logger
	ctx        context.Context
	cancel     context.CancelFunc
}

func NewScheduler(dispatcher *Dispatcher, log zerolog.Logger) *Scheduler {
	log = log.With().Str("component", "scheduler").Logger()
	cl := cronLogger{log: log}
	ctx, cancel := context.WithCancel(context.Background())
	return &Scheduler{
		cron: cron.New(cron.WithLogger(cl), cron.WithChain(
			cron.Recover(cl),
			cron.SkipIfStillRunning(cl),
		)),
		dispatcher: dispatcher,
		log:        log,
		ctx:        ctx,
		cancel:     cancel,
	}
}

// Add schedules job t on spec. An empty spec leaves the job unscheduled.
func (s *Scheduler) Add(spec string, t out.JobType) error {
	if spec == "" {
		return nil
	}
	if !s.dispatcher.Known(t) {
		return ErrUnknownJob{Type: t}
	}
	if _, err := s.cron.AddFunc(spec, s.job(t)); err != nil {
		return fmt.Errorf("invalid schedule %q for %s: %w", spec, t, err)
	}
	s.log.Info().Str("job", string(t)).Str("spec", spec).Msg("job scheduled")
	return nil
}

func (s *Scheduler) job(t out.JobType) func() {
	return func() {
		// Errors are logged by the dispatcher.
		_ = s.dispatcher.Dispatch(s.ctx, out.Job{Type: t})
	}
}

func (s *Scheduler) Start() {
	s.log.Info().Int("jobs", len(s.cron.Entries())).Msg("scheduler started")
	s.cron.Start()
}

// Stop cancels running jobs and waits for them to return.
func (s *Scheduler) Stop() {
	s.cancel()
	<-s.cron.Stop().Done()
	s.log.Info().Msg("scheduler stopped")
}
