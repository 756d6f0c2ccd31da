package events

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
	"go.uber.org/zap"
)

// FileIngested is published once the aggregates of a file are stored.
type FileIngested struct {
	RunID    string    `json:"run_id"`
	FileID   int       `json:"file_id"`
	Path     string    `json:"path"`
	Format   string    `json:"format"`
	Checksum string    `json:"checksum"`
	Lines    int       `json:"lines"`
	Accepted int       `json:"accepted"`
	Rejected int       `json:"rejected"`
	Entries  int       `json:"entries"`
	At       time.Time `json:"at"`
}

type Publisher interface {
	Publish(ctx context.Context, event FileIngested) error
	Close() error
}

// NopPublisher drops every event. It is used when no broker is configured.
type NopPublisher struct{}

func (NopPublisher) Publish(context.Context, FileIngested) error { return nil }
func (NopPublisher) Close() error                                { return nil }

type amqpChannel interface {
	PublishWithContext(ctx context.Context, exchange, key string, mandatory, immediate bool, msg amqp.Publishing) error
	Close() error
}

// AMQPPublisher publishes JSON events to a durable fanout exchange.
type AMQPPublisher struct {
	exchange string
	conn     *amqp.Connection
	channel  amqpChannel
	logger   *zap.Logger
	mu       sync.Mutex
}

func NewAMQPPublisher(url, exchange string, logger *zap.Logger) (*AMQPPublisher, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	conn, err := amqp.Dial(url)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to RabbitMQ: %w", err)
	}

	ch, err := conn.Channel()
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("failed to open channel: %w", err)
	}

	err = ch.ExchangeDeclare(
		exchange,
		amqp.ExchangeFanout,
		true,  // durable
		false, // autoDelete
		false, // internal
		false, // noWait
		nil,
	)
	if err != nil {
		ch.Close()
		conn.Close()
		return nil, fmt.Errorf("failed to declare exchange %s: %w", exchange, err)
	}
	logger.Info("Declared events exchange", zap.String("exchange", exchange))

	return &AMQPPublisher{exchange: exchange, conn: conn, channel: ch, logger: logger}, nil
}

func (p *AMQPPublisher) Publish(ctx context.Context, event FileIngested) error {
	body, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("failed to encode event: %w", err)
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	err = p.channel.PublishWithContext(ctx, p.exchange, "", false, false, amqp.Publishing{
		ContentType:  "application/json",
		DeliveryMode: amqp.Persistent,
		Timestamp:    event.At,
		MessageId:    fmt.Sprintf("%s-%d", event.RunID, event.FileID),
		Body:         body,
	})
	if err != nil {
		return fmt.Errorf("failed to publish event for file %d: %w", event.FileID, err)
	}
	p.logger.Debug("Published event", zap.Int("file_id", event.FileID), zap.String("format", event.Format))
	return nil
}

func (p *AMQPPublisher) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if err := p.channel.Close(); err != nil {
		return fmt.Errorf("failed to close channel: %w", err)
	}
	if p.conn != nil {
		return p.conn.Close()
	}
	return nil
}
