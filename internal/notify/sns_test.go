package notify

import (
	"context"
	"encoding/json"
	stderrors "errors"
	"testing"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/sns"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"activity-export/internal/common/logger"
	"activity-export/internal/export"
)

// ==========================
// Mock Services
// ==========================

type MockSNSService struct {
	PublishFunc func(ctx context.Context, params *sns.PublishInput, optFns ...func(*sns.Options)) (*sns.PublishOutput, error)
}

func (m *MockSNSService) Publish(ctx context.Context, params *sns.PublishInput, optFns ...func(*sns.Options)) (*sns.PublishOutput, error) {
	return m.PublishFunc(ctx, params, optFns...)
}

func createTestSummary() *export.RunSummary {
	return &export.RunSummary{
		RunID:     "run-001",
		SinceDate: "2015-04-01",
		Pages:     3,
		Records:   120,
		Rows:      117,
		Discarded: 3,
	}
}

func TestSNSNotifier_RunFinished(t *testing.T) {
	tests := []struct {
		name       string
		errMessage string
		wantStatus string
	}{
		{"success", "", StatusSucceeded},
		{"failure", "[MARKETO_API_ERROR] Upstream API rejected get activities: 606 Max rate limit exceeded", StatusFailed},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var published *sns.PublishInput
			mockSNS := &MockSNSService{
				PublishFunc: func(ctx context.Context, params *sns.PublishInput, optFns ...func(*sns.Options)) (*sns.PublishOutput, error) {
					published = params
					return &sns.PublishOutput{MessageId: aws.String("msg-1")}, nil
				},
			}
			summary := createTestSummary()
			summary.Error = tt.errMessage

			n := NewSNSNotifier(mockSNS, "arn:aws:sns:us-east-1:123456789012:exports", logger.NewTestLogger(t))
			require.NoError(t, n.RunFinished(context.Background(), summary))

			require.NotNil(t, published)
			assert.Equal(t, "arn:aws:sns:us-east-1:123456789012:exports", *published.TopicArn)
			assert.Contains(t, *published.Subject, tt.wantStatus)
			assert.Equal(t, tt.wantStatus, *published.MessageAttributes["status"].StringValue)
			assert.Equal(t, "run-001", *published.MessageAttributes["runId"].StringValue)

			var body map[string]interface{}
			require.NoError(t, json.Unmarshal([]byte(*published.Message), &body))
			assert.Equal(t, tt.wantStatus, body["status"])
			assert.Equal(t, "run-001", body["runId"])
			assert.Equal(t, float64(117), body["rows"])
		})
	}
}

func TestSNSNotifier_PublishError(t *testing.T) {
	mockSNS := &MockSNSService{
		PublishFunc: func(ctx context.Context, params *sns.PublishInput, optFns ...func(*sns.Options)) (*sns.PublishOutput, error) {
			return nil, stderrors.New("AuthorizationError")
		},
	}

	n := NewSNSNotifier(mockSNS, "arn:topic", logger.NewTestLogger(t))
	err := n.RunFinished(context.Background(), createTestSummary())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "AuthorizationError")
}
