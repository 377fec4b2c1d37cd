package worker

import (
	"context"
	"errors"
	"time"

	"github.com/rs/zerolog"

	"calsync_server/core/port/out"
)

const (
	DefaultQueueWait    = 20 * time.Second
	DefaultQueueBatch   = 10
	receiveErrorBackoff = 5 * time.Second
)

// QueueConsumer long-polls the trigger queue and runs each job. A message is
// deleted only after its job succeeds, so failed jobs are redelivered.
type QueueConsumer struct {
	queue      out.TriggerQueue
	dispatcher *Dispatcher
	wait       time.Duration
	batch      int
	backoff    time.Duration
	log        zerolog.Logger
}

func NewQueueConsumer(queue out.TriggerQueue, dispatcher *Dispatcher, log zerolog.Logger) *QueueConsumer {
	return &QueueConsumer{
		queue:      queue,
		dispatcher: dispatcher,
		wait:       DefaultQueueWait,
		batch:      DefaultQueueBatch,
		backoff:    receiveErrorBackoff,
		log:        log.With().Str("component", "queue_consumer").Logger(),
	}
}

// Run consumes until ctx is cancelled.
func (c *QueueConsumer) Run(ctx context.Context) {
	c.log.Info().Msg("queue consumer started")
	defer c.log.Info().Msg("queue consumer stopped")

	for ctx.Err() == nil {
		if _, err := c.Poll(ctx); err != nil && ctx.Err() == nil {
			c.log.Error().Err(err).Msg("receive failed")
			select {
			case <-ctx.Done():
			case <-time.After(c.backoff):
			}
		}
	}
}

// Poll receives one batch and handles it, returning how many messages were
// deleted. Duplicate triggers in a batch run the job once.
func (c *QueueConsumer) Poll(ctx context.Context) (int, error) {
	msgs, err := c.queue.Receive(ctx, c.batch, c.wait)
	if err != nil {
		return 0, err
	}

	done := map[out.JobType]error{}
	deleted := 0
	for _, msg := range msgs {
		log := c.log.With().Str("message_id", msg.ID).Str("job", string(msg.Job.Type)).Logger()

		jobErr, ran := done[msg.Job.Type]
		if !ran {
			jobErr = c.dispatcher.Dispatch(ctx, msg.Job)
			done[msg.Job.Type] = jobErr
		}

		var unknown ErrUnknownJob
		switch {
		case errors.As(jobErr, &unknown):
			// Unrunnable, redelivery cannot help.
			log.Warn().Str("body", msg.Raw).Msg("dropping message with unknown job type")
		case jobErr != nil:
			log.Warn().Err(jobErr).Msg("job failed, leaving message for redelivery")
			continue
		}

		if err := c.queue.Delete(ctx, msg.ReceiptHandle); err != nil {
			log.Error().Err(err).Msg("delete failed")
			continue
		}
		deleted++
	}
	return deleted, nil
}
