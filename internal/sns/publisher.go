// Package sns publishes fired-trigger events so that other services (the
// in-app notification feed, analytics) can react to reminders without
// polling the ledger.
package sns

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/sns"
	"github.com/aws/aws-sdk-go-v2/service/sns/types"
)

// Event describes one delivered trigger.
type Event struct {
	Kind       string    `json:"kind"`
	EntityID   string    `json:"entity_id"`
	SubjectID  string    `json:"subject_id"`
	Window     string    `json:"window,omitempty"`
	Recipients []string  `json:"recipients"`
	Subject    string    `json:"subject"`
	FiredAt    time.Time `json:"fired_at"`
}

type snsAPI interface {
	Publish(ctx context.Context, params *sns.PublishInput, optFns ...func(*sns.Options)) (*sns.PublishOutput, error)
}

// Publisher publishes events to one topic.
type Publisher struct {
	client   snsAPI
	topicARN string
}

// NewPublisher creates an SNS publisher for the given topic
func NewPublisher(ctx context.Context, topicARN string, optFns ...func(*config.LoadOptions) error) (*Publisher, error) {
	cfg, err := config.LoadDefaultConfig(ctx, optFns...)
	if err != nil {
		return nil, fmt.Errorf("failed to load AWS config: %w", err)
	}

	return &Publisher{
		client:   sns.NewFromConfig(cfg),
		topicARN: topicARN,
	}, nil
}

// NewPublisherWithEndpoint creates a publisher with custom endpoint (for LocalStack)
func NewPublisherWithEndpoint(ctx context.Context, topicARN, endpoint, region string) (*Publisher, error) {
	cfg, err := config.LoadDefaultConfig(ctx,
		config.WithRegion(region),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to load AWS config: %w", err)
	}

	client := sns.NewFromConfig(cfg, func(o *sns.Options) {
		o.BaseEndpoint = aws.String(endpoint)
	})

	return &Publisher{
		client:   client,
		topicARN: topicARN,
	}, nil
}

// Publish sends e with its kind as a message attribute so subscribers can
// filter by kind.
func (p *Publisher) Publish(ctx context.Context, e Event) (string, error) {
	payload, err := json.Marshal(e)
	if err != nil {
		return "", fmt.Errorf("failed to marshal event: %w", err)
	}

	input := &sns.PublishInput{
		TopicArn: aws.String(p.topicARN),
		Message:  aws.String(string(payload)),
		MessageAttributes: map[string]types.MessageAttributeValue{
			"kind": {
				DataType:    aws.String("String"),
				StringValue: aws.String(e.Kind),
			},
			"entity_id": {
				DataType:    aws.String("String"),
				StringValue: aws.String(e.EntityID),
			},
		},
	}

	result, err := p.client.Publish(ctx, input)
	if err != nil {
		return "", fmt.Errorf("failed to publish to SNS: %w", err)
	}

	return aws.ToString(result.MessageId), nil
}
