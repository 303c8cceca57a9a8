package source

import (
	"context"
	"errors"
	"fmt"
	"sync"

	amqp "github.com/rabbitmq/amqp091-go"
	"go.uber.org/zap"
)

const (
	// DefaultExchangeName is the topic exchange log events are published to.
	DefaultExchangeName = "logstream"
	// prefetchCount bounds unacknowledged deliveries held by the client.
	prefetchCount = 100
)

// ErrNotConnected is returned by Ping while no broker connection is open.
var ErrNotConnected = errors.New("not connected")

// RabbitMQSource consumes a durable topic exchange through an exclusive, auto-delete
// queue bound with each stream name as routing key.
type RabbitMQSource struct {
	url      string
	exchange string
	streams  map[string]bool
	backoff  *Backoff
	logger   *zap.Logger

	mu   sync.Mutex
	conn *amqp.Connection
}

// NewRabbitMQSource creates a source for the broker at amqpURL. An empty exchange
// uses DefaultExchangeName; no streams means every known stream.
func NewRabbitMQSource(amqpURL, exchange string, streams []string, logger *zap.Logger) *RabbitMQSource {
	if exchange == "" {
		exchange = DefaultExchangeName
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &RabbitMQSource{
		url:      amqpURL,
		exchange: exchange,
		streams:  knownStreams(streams),
		backoff:  NewBackoff(),
		logger:   logger,
	}
}

// Name implements Source.
func (s *RabbitMQSource) Name() string {
	return "rabbitmq"
}

// StreamForDelivery maps a delivery to its stream by routing key.
func (s *RabbitMQSource) StreamForDelivery(d amqp.Delivery) (string, bool) {
	if !s.streams[d.RoutingKey] {
		return "", false
	}
	return d.RoutingKey, true
}

// Run implements Source.
func (s *RabbitMQSource) Run(ctx context.Context, pub Publisher) error {
	return runWithReconnect(ctx, s.Name(), s.backoff, s.logger, func(ctx context.Context, connected func()) error {
		return s.consume(ctx, pub, connected)
	})
}

func (s *RabbitMQSource) consume(ctx context.Context, pub Publisher, connected func()) error {
	conn, err := amqp.Dial(s.url)
	if err != nil {
		return fmt.Errorf("failed to connect to RabbitMQ: %w", err)
	}
	s.setConn(conn)
	defer func() {
		s.setConn(nil)
		_ = conn.Close()
	}()

	ch, err := conn.Channel()
	if err != nil {
		return fmt.Errorf("failed to open channel: %w", err)
	}

	deliveries, err := s.setup(ch)
	if err != nil {
		return err
	}
	connected()

	closed := conn.NotifyClose(make(chan *amqp.Error, 1))
	for {
		select {
		case <-ctx.Done():
			return nil
		case amqpErr := <-closed:
			if amqpErr == nil {
				return errors.New("rabbitmq connection closed")
			}
			return fmt.Errorf("rabbitmq connection closed: %w", amqpErr)
		case d, ok := <-deliveries:
			if !ok {
				return errors.New("rabbitmq delivery channel closed")
			}
			s.handle(pub, d)
		}
	}
}

// setup declares the exchange and a private queue bound to every stream.
func (s *RabbitMQSource) setup(ch *amqp.Channel) (<-chan amqp.Delivery, error) {
	err := ch.ExchangeDeclare(
		s.exchange,
		"topic",
		true,  // durable
		false, // auto-deleted
		false, // internal
		false, // no-wait
		nil,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to declare exchange: %w", err)
	}

	q, err := ch.QueueDeclare(
		"",    // server-named
		false, // durable
		true,  // delete when unused
		true,  // exclusive
		false, // no-wait
		nil,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to declare queue: %w", err)
	}

	for stream := range s.streams {
		if err := ch.QueueBind(q.Name, stream, s.exchange, false, nil); err != nil {
			return nil, fmt.Errorf("failed to bind queue to %s: %w", stream, err)
		}
	}

	if err := ch.Qos(prefetchCount, 0, false); err != nil {
		return nil, fmt.Errorf("failed to set QoS: %w", err)
	}

	deliveries, err := ch.Consume(
		q.Name,
		"",    // consumer tag
		true,  // auto-ack
		true,  // exclusive
		false, // no-local
		false, // no-wait
		nil,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to start consuming: %w", err)
	}
	return deliveries, nil
}

func (s *RabbitMQSource) handle(pub Publisher, d amqp.Delivery) {
	stream, ok := s.StreamForDelivery(d)
	if !ok {
		s.logger.Debug("rabbitmq_delivery_ignored", zap.String("routing_key", d.RoutingKey))
		return
	}
	ev := pub.Publish(stream, string(d.Body))
	s.logger.Debug("rabbitmq_delivery_published",
		zap.String("stream", stream),
		zap.String("event_id", ev.ID),
	)
}

func (s *RabbitMQSource) setConn(conn *amqp.Connection) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.conn = conn
}

// Ping implements Source.
func (s *RabbitMQSource) Ping(_ context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.conn == nil || s.conn.IsClosed() {
		return ErrNotConnected
	}
	return nil
}

// Close implements Source.
func (s *RabbitMQSource) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.conn == nil {
		return nil
	}
	return s.conn.Close()
}
