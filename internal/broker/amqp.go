package broker

import (
	"context"
	"fmt"

	"kitchen-display/internal/util"

	amqp "github.com/rabbitmq/amqp091-go"
	"go.uber.org/zap"
)

// AMQPListener receives push events from a fanout exchange. Every display
// binds its own queue so each instance sees every event.
type AMQPListener struct {
	conn     *amqp.Connection
	ch       *amqp.Channel
	exchange string
	queue    string
	logger   *zap.Logger
}

// DialAMQP connects and declares the exchange and this instance's queue.
// An empty queue name gets a server-named exclusive queue.
func DialAMQP(url, exchange, queue string) (*AMQPListener, error) {
	conn, err := amqp.Dial(url)
	if err != nil {
		return nil, fmt.Errorf("amqp dial: %w", err)
	}
	ch, err := conn.Channel()
	if err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("amqp channel: %w", err)
	}

	if err := ch.ExchangeDeclare(exchange, "fanout", true, false, false, false, nil); err != nil {
		_ = ch.Close()
		_ = conn.Close()
		return nil, fmt.Errorf("declare %s: %w", exchange, err)
	}

	durable := queue != ""
	q, err := ch.QueueDeclare(queue, durable, !durable, !durable, false, nil)
	if err != nil {
		_ = ch.Close()
		_ = conn.Close()
		return nil, fmt.Errorf("queue declare %s: %w", queue, err)
	}
	if err := ch.QueueBind(q.Name, "", exchange, false, nil); err != nil {
		_ = ch.Close()
		_ = conn.Close()
		return nil, fmt.Errorf("queue bind %s: %w", q.Name, err)
	}

	return &AMQPListener{
		conn:     conn,
		ch:       ch,
		exchange: exchange,
		queue:    q.Name,
		logger:   util.GetLogger(),
	}, nil
}

// Listen consumes deliveries until ctx is cancelled or the channel closes
func (l *AMQPListener) Listen(ctx context.Context, handler *EventHandler) error {
	if err := l.ch.Qos(16, 0, false); err != nil {
		return fmt.Errorf("amqp qos: %w", err)
	}
	msgs, err := l.ch.Consume(l.queue, "kitchen-display", false, false, false, false, nil)
	if err != nil {
		return fmt.Errorf("amqp consume: %w", err)
	}

	l.logger.Info("Starting AMQP listener",
		zap.String("exchange", l.exchange),
		zap.String("queue", l.queue))

	for {
		select {
		case <-ctx.Done():
			l.logger.Info("AMQP listener stopping")
			return ctx.Err()
		case d, ok := <-msgs:
			if !ok {
				return fmt.Errorf("amqp delivery channel closed")
			}
			l.handleDelivery(ctx, handler, d)
		}
	}
}

// handleDelivery acks handled events and drops malformed ones without requeue
func (l *AMQPListener) handleDelivery(ctx context.Context, handler *EventHandler, d amqp.Delivery) {
	if err := handler.HandlePayload(ctx, d.Body); err != nil {
		l.logger.Warn("Dropping undeliverable event", zap.Error(err))
		_ = d.Nack(false, false)
		return
	}
	_ = d.Ack(false)
}

// Close closes the channel and connection
func (l *AMQPListener) Close() error {
	if l.ch != nil {
		_ = l.ch.Close()
	}
	if l.conn != nil {
		return l.conn.Close()
	}
	return nil
}
