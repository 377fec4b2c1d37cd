package out

import (
	"context"
	"time"

	"calsync_server/core/domain"
)

// Mailer sends plain-text notification email.
type Mailer interface {
	Send(ctx context.Context, to []string, subject, body string) error
}

// RunLock is a cross-process mutual exclusion lease.
type RunLock interface {
	// Acquire returns ok=false when another holder owns the lock.
	Acquire(ctx context.Context, name string, ttl time.Duration) (release func(context.Context) error, ok bool, err error)
}

// JobType names a queued background job.
type JobType string

const (
	JobSync          JobType = "sync"
	JobRefreshTokens JobType = "refresh_tokens"
)

// Job is the queue message body.
type Job struct {
	Type JobType `json:"type"`
}

// QueueMessage is a received job with its delivery handle.
type QueueMessage struct {
	ID            string
	ReceiptHandle string
	Job           Job
	Raw           string
}

// TriggerQueue carries sync and refresh triggers between processes.
type TriggerQueue interface {
	Send(ctx context.Context, job Job) error
	Receive(ctx context.Context, max int, wait time.Duration) ([]QueueMessage, error)
	Delete(ctx context.Context, receiptHandle string) error
}

// ReportPublisher publishes run summaries.
type ReportPublisher interface {
	PublishReport(ctx context.Context, report *domain.SyncReport) error
}
