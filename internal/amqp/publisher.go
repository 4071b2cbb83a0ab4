// Package amqp hands outbound email to a RabbitMQ queue.
package amqp

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/streadway/amqp"
	"go.uber.org/zap"

	"github.com/lalithlochan/nudge/internal/sender"
)

// Config holds broker settings.
type Config struct {
	URL   string
	Queue string
}

type channel interface {
	Publish(exchange, key string, mandatory, immediate bool, msg amqp.Publishing) error
	Close() error
}

// Publisher publishes emails to a durable queue on the default exchange.
// It satisfies sender.Sender.
type Publisher struct {
	mu     sync.Mutex
	conn   *amqp.Connection
	ch     channel
	queue  string
	logger *zap.Logger
}

// Dial connects to the broker and declares the queue.
func Dial(cfg Config, logger *zap.Logger) (*Publisher, error) {
	conn, err := amqp.Dial(cfg.URL)
	if err != nil {
		return nil, fmt.Errorf("amqp dial: %w", err)
	}

	ch, err := conn.Channel()
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("amqp channel: %w", err)
	}

	q, err := ch.QueueDeclare(
		cfg.Queue,
		true,  // durable
		false, // delete when unused
		false, // exclusive
		false, // no-wait
		nil,
	)
	if err != nil {
		ch.Close()
		conn.Close()
		return nil, fmt.Errorf("amqp declare queue %s: %w", cfg.Queue, err)
	}

	logger.Info("amqp publisher initialized", zap.String("queue", q.Name))

	p := newPublisher(ch, q.Name, logger)
	p.conn = conn
	return p, nil
}

func newPublisher(ch channel, queue string, logger *zap.Logger) *Publisher {
	return &Publisher{ch: ch, queue: queue, logger: logger}
}

// Send publishes msg as a persistent JSON message. The context is only
// checked before publishing; the channel API is not cancellable.
func (p *Publisher) Send(ctx context.Context, msg sender.Message) error {
	if err := msg.Validate(); err != nil {
		return err
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	body, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("failed to marshal message: %w", err)
	}

	// amqp channels are not safe for concurrent publishes
	p.mu.Lock()
	defer p.mu.Unlock()

	err = p.ch.Publish("", p.queue, false, false, amqp.Publishing{
		ContentType:  "application/json",
		DeliveryMode: amqp.Persistent,
		Timestamp:    time.Now(),
		Type:         msg.Tag,
		Body:         body,
	})
	if err != nil {
		return fmt.Errorf("amqp publish: %w", err)
	}

	p.logger.Debug("email published", zap.String("queue", p.queue), zap.String("tag", msg.Tag))
	return nil
}

// Close closes the channel and connection.
func (p *Publisher) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()

	err := p.ch.Close()
	if p.conn != nil {
		if cerr := p.conn.Close(); err == nil {
			err = cerr
		}
	}
	return err
}
