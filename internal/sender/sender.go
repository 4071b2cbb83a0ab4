// Package sender delivers rendered messages. Implementations exist for
// SES, an HTTP mail relay and a log-only sink; queue transports live in
// internal/sqs and internal/amqp and satisfy the same interface.
package sender

import (
	"context"
	"errors"
	"fmt"
)

// ErrNoRecipients is returned when a message has no addresses to send to.
var ErrNoRecipients = errors.New("message has no recipients")

// Message is one outbound email.
type Message struct {
	To      []string `json:"to"`
	Subject string   `json:"subject"`
	Body    string   `json:"body"`

	// Tag identifies the trigger that produced the message, e.g.
	// "task_due_today". Transports pass it through for provider-side
	// filtering.
	Tag string `json:"tag,omitempty"`
}

// Validate checks the fields every transport needs.
func (m Message) Validate() error {
	if len(m.To) == 0 {
		return ErrNoRecipients
	}
	if m.Subject == "" {
		return fmt.Errorf("message missing subject")
	}
	return nil
}

// Sender delivers a message. A nil error means the transport accepted it;
// it does not mean the recipient received it.
type Sender interface {
	Send(ctx context.Context, msg Message) error
}
