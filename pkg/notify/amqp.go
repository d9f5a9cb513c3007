package notify

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
	"tonygamingtz/pkg/domain"
)

const publishTimeout = 5 * time.Second

// AMQPPush publishes notifications to a fan-out exchange consumed by the
// push gateway. The exchange is durable; messages are transient, matching
// the no-confirmation contract.
type AMQPPush struct {
	mu       sync.Mutex
	conn     *amqp.Connection
	ch       *amqp.Channel
	exchange string
}

// NewAMQPPush dials the broker and declares the exchange.
func NewAMQPPush(url, exchange string) (*AMQPPush, error) {
	conn, err := amqp.Dial(url)
	if err != nil {
		return nil, fmt.Errorf("dial amqp: %w", err)
	}
	ch, err := conn.Channel()
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("open channel: %w", err)
	}
	if err := ch.ExchangeDeclare(exchange, "fanout", true, false, false, false, nil); err != nil {
		ch.Close()
		conn.Close()
		return nil, fmt.Errorf("declare exchange: %w", err)
	}
	return &AMQPPush{conn: conn, ch: ch, exchange: exchange}, nil
}

func (p *AMQPPush) Name() string { return "push" }

// Deliver publishes the notification as a JSON body with the recipient in a
// header, so the push gateway can resolve device registrations.
func (p *AMQPPush) Deliver(ctx context.Context, recipientID string, n domain.Notification) error {
	body, err := json.Marshal(n)
	if err != nil {
		return fmt.Errorf("marshal notification: %w", err)
	}
	ctx, cancel := context.WithTimeout(ctx, publishTimeout)
	defer cancel()

	p.mu.Lock()
	defer p.mu.Unlock()
	return p.ch.PublishWithContext(ctx, p.exchange, "", false, false, amqp.Publishing{
		ContentType: "application/json",
		MessageId:   n.ID,
		Timestamp:   n.CreatedAt,
		Headers:     amqp.Table{"recipient_id": recipientID},
		Body:        body,
	})
}

// Close releases the channel and connection.
func (p *AMQPPush) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if err := p.ch.Close(); err != nil {
		p.conn.Close()
		return err
	}
	return p.conn.Close()
}
