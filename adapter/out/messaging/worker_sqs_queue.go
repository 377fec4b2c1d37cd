// Package messaging provides the trigger queue and report publisher
// adapters.
package messaging

import (
	"context"
	"fmt"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/sqs"
	"github.com/goccy/go-json"

	"calsync_server/core/port/out"
	"calsync_server/pkg/logger"
)

// SQSAPI is the part of the SQS client the queue uses.
type SQSAPI interface {
	GetQueueUrl(ctx context.Context, params *sqs.GetQueueUrlInput, optFns ...func(*sqs.Options)) (*sqs.GetQueueUrlOutput, error)
	SendMessage(ctx context.Context, params *sqs.SendMessageInput, optFns ...func(*sqs.Options)) (*sqs.SendMessageOutput, error)
	ReceiveMessage(ctx context.Context, params *sqs.ReceiveMessageInput, optFns ...func(*sqs.Options)) (*sqs.ReceiveMessageOutput, error)
	DeleteMessage(ctx context.Context, params *sqs.DeleteMessageInput, optFns ...func(*sqs.Options)) (*sqs.DeleteMessageOutput, error)
}

const maxReceiveBatch = 10

// SQSTriggerQueue implements out.TriggerQueue on one SQS queue.
type SQSTriggerQueue struct {
	client   SQSAPI
	queueURL string
}

// NewSQSTriggerQueue uses queueURL when set and otherwise resolves
// queueName.
func NewSQSTriggerQueue(ctx context.Context, client SQSAPI, queueURL, queueName string) (*SQSTriggerQueue, error) {
	if queueURL == "" {
		resp, err := client.GetQueueUrl(ctx, &sqs.GetQueueUrlInput{QueueName: aws.String(queueName)})
		if err != nil {
			return nil, fmt.Errorf("failed to resolve queue %q: %w", queueName, err)
		}
		queueURL = aws.ToString(resp.QueueUrl)
	}
	return &SQSTriggerQueue{client: client, queueURL: queueURL}, nil
}

var _ out.TriggerQueue = (*SQSTriggerQueue)(nil)

// URL returns the resolved queue URL.
func (q *SQSTriggerQueue) URL() string { return q.queueURL }

func (q *SQSTriggerQueue) Send(ctx context.Context, job out.Job) error {
	body, err := json.Marshal(job)
	if err != nil {
		return fmt.Errorf("failed to marshal job: %w", err)
	}
	_, err = q.client.SendMessage(ctx, &sqs.SendMessageInput{
		QueueUrl:    aws.String(q.queueURL),
		MessageBody: aws.String(string(body)),
	})
	if err != nil {
		return fmt.Errorf("failed to send job %s: %w", job.Type, err)
	}
	return nil
}

// Receive long-polls for up to max messages. A body that does not decode
// is returned with an empty job type so the caller can drop it.
func (q *SQSTriggerQueue) Receive(ctx context.Context, max int, wait time.Duration) ([]out.QueueMessage, error) {
	if max <= 0 || max > maxReceiveBatch {
		max = maxReceiveBatch
	}
	resp, err := q.client.ReceiveMessage(ctx, &sqs.ReceiveMessageInput{
		QueueUrl:            aws.String(q.queueURL),
		MaxNumberOfMessages: int32(max),
		WaitTimeSeconds:     int32(wait / time.Second),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to receive messages: %w", err)
	}

	msgs := make([]out.QueueMessage, 0, len(resp.Messages))
	for _, m := range resp.Messages {
		msg := out.QueueMessage{
			ID:            aws.ToString(m.MessageId),
			ReceiptHandle: aws.ToString(m.ReceiptHandle),
			Raw:           aws.ToString(m.Body),
		}
		if err := json.Unmarshal([]byte(msg.Raw), &msg.Job); err != nil {
			logger.WithError(err).Warn("[SQSTriggerQueue.Receive] undecodable message %s", msg.ID)
			msg.Job = out.Job{}
		}
		msgs = append(msgs, msg)
	}
	return msgs, nil
}

func (q *SQSTriggerQueue) Delete(ctx context.Context, receiptHandle string) error {
	_, err := q.client.DeleteMessage(ctx, &sqs.DeleteMessageInput{
		QueueUrl:      aws.String(q.queueURL),
		ReceiptHandle: aws.String(receiptHandle),
	})
	if err != nil {
		return fmt.Errorf("failed to delete message: %w", err)
	}
	return nil
}
