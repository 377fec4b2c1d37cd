package messaging

import (
	"context"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/sns"
	"github.com/aws/aws-sdk-go-v2/service/sns/types"
	"github.com/goccy/go-json"

	"calsync_server/core/domain"
	"calsync_server/core/port/out"
)

// SNSAPI is the part of the SNS client the publisher uses.
type SNSAPI interface {
	Publish(ctx context.Context, params *sns.PublishInput, optFns ...func(*sns.Options)) (*sns.PublishOutput, error)
}

// SNSReportPublisher publishes run reports to a topic.
type SNSReportPublisher struct {
	client   SNSAPI
	topicARN string
}

func NewSNSReportPublisher(client SNSAPI, topicARN string) *SNSReportPublisher {
	return &SNSReportPublisher{client: client, topicARN: topicARN}
}

var _ out.ReportPublisher = (*SNSReportPublisher)(nil)

// PublishReport sends the report as JSON. The outcome attribute lets
// subscribers filter on skipped or failed passes.
func (p *SNSReportPublisher) PublishReport(ctx context.Context, report *domain.SyncReport) error {
	body, err := json.Marshal(report)
	if err != nil {
		return fmt.Errorf("failed to marshal report: %w", err)
	}

	_, err = p.client.Publish(ctx, &sns.PublishInput{
		TopicArn: aws.String(p.topicARN),
		Subject:  aws.String("calendar sync report"),
		Message:  aws.String(string(body)),
		MessageAttributes: map[string]types.MessageAttributeValue{
			"outcome": {DataType: aws.String("String"), StringValue: aws.String(reportOutcome(report))},
		},
	})
	if err != nil {
		return fmt.Errorf("failed to publish report %s: %w", report.RunID, err)
	}
	return nil
}

func reportOutcome(r *domain.SyncReport) string {
	switch {
	case r.Skipped:
		return "skipped"
	case len(r.FailedUsers) > 0 || len(r.FailedEvents) > 0:
		return "partial"
	default:
		return "ok"
	}
}
