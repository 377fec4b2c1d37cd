// Package worker drives the sync and token refresh jobs from the cron
// schedule and the trigger queue.
package worker

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"calsync_server/core/port/in"
	"calsync_server/core/port/out"
)

// JobFunc runs one job.
type JobFunc func(ctx context.Context) error

// DefaultJobTimeouts bound each job type.
var DefaultJobTimeouts = map[out.JobType]time.Duration{
	out.JobSync:          10 * time.Minute,
	out.JobRefreshTokens: 2 * time.Minute,
}

// ErrUnknownJob is returned by Dispatch for a job type with no handler.
type ErrUnknownJob struct{ Type out.JobType }

func (e ErrUnknownJob) Error() string { return fmt.Sprintf("unknown job type %q", e.Type) }

// Dispatcher maps job types to handlers.
type Dispatcher struct {
	handlers map[out.JobType]JobFunc
	timeouts map[out.JobType]time.Duration
	log      zerolog.Logger
}

// NewDispatcher registers the sync and refresh jobs.
func NewDispatcher(sync in.SyncService, oauth in.OAuthService, log zerolog.Logger) *Dispatcher {
	d := &Dispatcher{
		handlers: map[out.JobType]JobFunc{},
		timeouts: DefaultJobTimeouts,
		log:      log.With().Str("component", "dispatcher").Logger(),
	}
	d.Handle(out.JobSync, func(ctx context.Context) error {
		_, err := sync.RunSync(ctx)
		return err
	})
	d.Handle(out.JobRefreshTokens, oauth.RefreshAll)
	return d
}

// Handle registers or replaces the handler for t.
func (d *Dispatcher) Handle(t out.JobType, fn JobFunc) {
	d.handlers[t] = fn
}

// Known reports whether t has a handler.
func (d *Dispatcher) Known(t out.JobType) bool {
	_, ok := d.handlers[t]
	return ok
}

// Dispatch runs the handler for job under its timeout.
func (d *Dispatcher) Dispatch(ctx context.Context, job out.Job) error {
	fn, ok := d.handlers[job.Type]
	if !ok {
		return ErrUnknownJob{Type: job.Type}
	}
	if timeout, ok := d.timeouts[job.Type]; ok && timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}

	start := time.Now()
	err := fn(ctx)
	ev := d.log.Info()
	if err != nil {
		ev = d.log.Error().Err(err)
	}
	ev.Str("job", string(job.Type)).Dur("duration", time.Since(start)).Msg("job finished")
	return err
}
