// Package sqs hands outbound email to an SQS queue drained by a separate
// mail worker.
package sqs

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/sqs"
	"github.com/aws/aws-sdk-go-v2/service/sqs/types"
	"go.uber.org/zap"

	"github.com/lalithlochan/nudge/internal/sender"
)

// Config holds SQS configuration.
type Config struct {
	Region   string
	QueueURL string
}

// Envelope is the queued message body.
type Envelope struct {
	sender.Message
	EnqueuedAt int64 `json:"enqueued_at"`
}

type sqsAPI interface {
	SendMessage(ctx context.Context, params *sqs.SendMessageInput, optFns ...func(*sqs.Options)) (*sqs.SendMessageOutput, error)
}

// Producer enqueues emails. It satisfies sender.Sender; a nil error means
// SQS accepted the message.
type Producer struct {
	client   sqsAPI
	queueURL string
	logger   *zap.Logger
	now      func() time.Time
}

// NewProducer creates a new SQS producer.
func NewProducer(ctx context.Context, cfg Config, logger *zap.Logger) (*Producer, error) {
	awsCfg, err := config.LoadDefaultConfig(ctx, config.WithRegion(cfg.Region))
	if err != nil {
		return nil, fmt.Errorf("failed to load AWS config: %w", err)
	}

	logger.Info("sqs producer initialized",
		zap.String("queue_url", cfg.QueueURL),
	)

	return newProducer(sqs.NewFromConfig(awsCfg), cfg.QueueURL, logger), nil
}

func newProducer(client sqsAPI, queueURL string, logger *zap.Logger) *Producer {
	return &Producer{
		client:   client,
		queueURL: queueURL,
		logger:   logger,
		now:      time.Now,
	}
}

// Send enqueues msg.
func (p *Producer) Send(ctx context.Context, msg sender.Message) error {
	if err := msg.Validate(); err != nil {
		return err
	}

	body, err := json.Marshal(Envelope{Message: msg, EnqueuedAt: p.now().UnixNano()})
	if err != nil {
		return fmt.Errorf("failed to marshal message: %w", err)
	}

	input := &sqs.SendMessageInput{
		QueueUrl:    aws.String(p.queueURL),
		MessageBody: aws.String(string(body)),
	}
	if msg.Tag != "" {
		input.MessageAttributes = map[string]types.MessageAttributeValue{
			"tag": {
				DataType:    aws.String("String"),
				StringValue: aws.String(msg.Tag),
			},
		}
	}

	result, err := p.client.SendMessage(ctx, input)
	if err != nil {
		p.logger.Error("failed to send message to sqs",
			zap.Error(err),
			zap.String("tag", msg.Tag),
		)
		return fmt.Errorf("sqs send failed: %w", err)
	}

	p.logger.Debug("email enqueued",
		zap.String("message_id", aws.ToString(result.MessageId)),
		zap.Strings("to", msg.To),
	)
	return nil
}
