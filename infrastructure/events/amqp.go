package events

import (
	"context"
	"fmt"
	"sync"

	"github.com/cenkalti/backoff/v5"
	"github.com/goccy/go-json"
	"github.com/sirupsen/logrus"
	"github.com/streadway/amqp"
)

type AMQPConfig struct {
	URL      string
	Exchange string
}

// AMQP publishes events to a durable topic exchange, routed by event type.
// The connection is opened lazily and re-dialed after a failure.
type AMQP struct {
	cfg AMQPConfig

	mu   sync.Mutex
	conn *amqp.Connection
	ch   *amqp.Channel
}

func NewAMQP(cfg AMQPConfig) *AMQP {
	if cfg.Exchange == "" {
		cfg.Exchange = "az-publisher.events"
	}
	return &AMQP{cfg: cfg}
}

func (a *AMQP) channel() (*amqp.Channel, error) {
	if a.ch != nil {
		return a.ch, nil
	}
	conn, err := amqp.Dial(a.cfg.URL)
	if err != nil {
		return nil, fmt.Errorf("dial amqp: %w", err)
	}
	ch, err := conn.Channel()
	if err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("open amqp channel: %w", err)
	}
	if err := ch.ExchangeDeclare(a.cfg.Exchange, amqp.ExchangeTopic, true, false, false, false, nil); err != nil {
		_ = ch.Close()
		_ = conn.Close()
		return nil, fmt.Errorf("declare exchange %s: %w", a.cfg.Exchange, err)
	}
	a.conn, a.ch = conn, ch
	return ch, nil
}

func (a *AMQP) reset() {
	if a.ch != nil {
		_ = a.ch.Close()
	}
	if a.conn != nil {
		_ = a.conn.Close()
	}
	a.ch, a.conn = nil, nil
}

func (a *AMQP) Send(ctx context.Context, evt Event) error {
	body, err := json.Marshal(evt)
	if err != nil {
		return fmt.Errorf("marshal event: %w", err)
	}

	a.mu.Lock()
	defer a.mu.Unlock()

	_, err = backoff.Retry(ctx, func() (struct{}, error) {
		ch, err := a.channel()
		if err != nil {
			return struct{}{}, err
		}
		err = ch.Publish(a.cfg.Exchange, evt.Type, false, false, amqp.Publishing{
			ContentType:  "application/json",
			DeliveryMode: amqp.Persistent,
			MessageId:    evt.ID,
			Timestamp:    evt.OccurredAt,
			Type:         evt.Type,
			Body:         body,
		})
		if err != nil {
			logrus.WithError(err).Warn("[AMQP] publish failed, reconnecting")
			a.reset()
			return struct{}{}, err
		}
		return struct{}{}, nil
	}, backoff.WithBackOff(backoff.NewExponentialBackOff()), backoff.WithMaxTries(3))
	return err
}

func (a *AMQP) Close() error {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.reset()
	return nil
}
