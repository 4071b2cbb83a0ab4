package circuitbreaker

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/lalithlochan/nudge/internal/sender"
)

// ProtectedSender wraps a sender with a CircuitBreaker. While the circuit
// is open, Send fails immediately with ErrCircuitOpen.
type ProtectedSender struct {
	sender  sender.Sender
	breaker *CircuitBreaker
	logger  *zap.Logger
}

// NewProtectedSender wraps s with breaker.
func NewProtectedSender(s sender.Sender, breaker *CircuitBreaker, logger *zap.Logger) *ProtectedSender {
	return &ProtectedSender{
		sender:  s,
		breaker: breaker,
		logger:  logger,
	}
}

func (p *ProtectedSender) Send(ctx context.Context, msg sender.Message) error {
	// Invalid messages say nothing about provider health
	if err := msg.Validate(); err != nil {
		return err
	}

	if !p.breaker.Allow() {
		p.logger.Warn("circuit breaker rejected send",
			zap.String("breaker", p.breaker.Name()),
			zap.Stringer("state", p.breaker.State()),
			zap.String("tag", msg.Tag),
		)
		return fmt.Errorf("%w: %s sender unavailable", ErrCircuitOpen, p.breaker.Name())
	}

	if err := p.sender.Send(ctx, msg); err != nil {
		p.breaker.RecordFailure()
		return err
	}

	p.breaker.RecordSuccess()
	return nil
}
