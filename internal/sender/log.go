package sender

import (
	"context"

	"go.uber.org/zap"
)

// LogSender logs messages instead of sending them (development)
type LogSender struct {
	logger *zap.Logger
}

func NewLogSender(logger *zap.Logger) *LogSender {
	return &LogSender{logger: logger}
}

func (s *LogSender) Send(_ context.Context, msg Message) error {
	if err := msg.Validate(); err != nil {
		return err
	}
	s.logger.Info("email sent",
		zap.Strings("to", msg.To),
		zap.String("subject", msg.Subject),
		zap.String("tag", msg.Tag),
		zap.Int("body_bytes", len(msg.Body)),
	)
	return nil
}
