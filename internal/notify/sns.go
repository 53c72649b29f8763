// Package notify announces finished export runs.
package notify

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/sns"
	"github.com/aws/aws-sdk-go-v2/service/sns/types"

	commonaws "activity-export/internal/common/aws"
	"activity-export/internal/common/logger"
	"activity-export/internal/export"
)

const (
	StatusSucceeded = "succeeded"
	StatusFailed    = "failed"
)

// SNSNotifier publishes the run summary as JSON to a topic.
type SNSNotifier struct {
	client   commonaws.SNSAPI
	topicARN string
	logger   logger.Logger
}

func NewSNSNotifier(client commonaws.SNSAPI, topicARN string, log logger.Logger) *SNSNotifier {
	return &SNSNotifier{client: client, topicARN: topicARN, logger: log}
}

// RunFinished publishes summary. The status attribute lets subscribers filter failures.
func (n *SNSNotifier) RunFinished(ctx context.Context, summary *export.RunSummary) error {
	status := StatusSucceeded
	if summary.Error != "" {
		status = StatusFailed
	}

	body, err := json.Marshal(struct {
		Status string `json:"status"`
		*export.RunSummary
	}{status, summary})
	if err != nil {
		return fmt.Errorf("marshal run summary: %w", err)
	}

	out, err := n.client.Publish(ctx, &sns.PublishInput{
		TopicArn: aws.String(n.topicARN),
		Subject:  aws.String(fmt.Sprintf("Activity export %s (since %s)", status, summary.SinceDate)),
		Message:  aws.String(string(body)),
		MessageAttributes: map[string]types.MessageAttributeValue{
			"status": {DataType: aws.String("String"), StringValue: aws.String(status)},
			"runId":  {DataType: aws.String("String"), StringValue: aws.String(summary.RunID)},
		},
	})
	if err != nil {
		return fmt.Errorf("publish run summary: %w", err)
	}

	n.logger.Info("Run summary published", map[string]interface{}{
		"topicArn":  n.topicARN,
		"messageId": aws.ToString(out.MessageId),
		"status":    status,
	})
	return nil
}
