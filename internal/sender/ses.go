package sender

import (
	"context"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/ses"
	"github.com/aws/aws-sdk-go-v2/service/ses/types"
	"go.uber.org/zap"
)

// sesAPI is the subset of the SES client used here.
type sesAPI interface {
	SendEmail(ctx context.Context, params *ses.SendEmailInput, optFns ...func(*ses.Options)) (*ses.SendEmailOutput, error)
}

type SESConfig struct {
	Region    string
	FromEmail string
}

// SESSender sends email through Amazon SES.
type SESSender struct {
	client sesAPI
	from   string
	logger *zap.Logger
}

func NewSESSender(ctx context.Context, cfg SESConfig, logger *zap.Logger) (*SESSender, error) {
	awsCfg, err := config.LoadDefaultConfig(ctx, config.WithRegion(cfg.Region))
	if err != nil {
		return nil, fmt.Errorf("failed to load default AWS config: %w", err)
	}
	return newSESSender(ses.NewFromConfig(awsCfg), cfg.FromEmail, logger), nil
}

func newSESSender(client sesAPI, from string, logger *zap.Logger) *SESSender {
	return &SESSender{
		client: client,
		from:   from,
		logger: logger,
	}
}

// Send sends msg as a plain-text email to every address in To.
func (s *SESSender) Send(ctx context.Context, msg Message) error {
	if err := msg.Validate(); err != nil {
		return err
	}

	input := &ses.SendEmailInput{
		Source: aws.String(s.from),
		Destination: &types.Destination{
			ToAddresses: msg.To,
		},
		Message: &types.Message{
			Subject: &types.Content{
				Data:    aws.String(msg.Subject),
				Charset: aws.String("UTF-8"),
			},
			Body: &types.Body{
				Text: &types.Content{
					Data:    aws.String(msg.Body),
					Charset: aws.String("UTF-8"),
				},
			},
		},
	}
	if msg.Tag != "" {
		input.Tags = []types.MessageTag{{Name: aws.String("trigger"), Value: aws.String(msg.Tag)}}
	}

	result, err := s.client.SendEmail(ctx, input)
	if err != nil {
		return fmt.Errorf("ses send failed: %w", err)
	}

	s.logger.Info("email sent via SES",
		zap.Strings("to", msg.To),
		zap.String("tag", msg.Tag),
		zap.String("message_id", aws.ToString(result.MessageId)),
	)

	return nil
}
