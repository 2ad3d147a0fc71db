package events

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"tableside/internal/models"

	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/rs/zerolog"
)

var errNotConnected = errors.New("amqp relay not connected")

type envelope struct {
	Topic        string                    `json:"topic"`
	Notification *models.TableNotification `json:"notification"`
}

// AMQPRelay shares notifications between instances through a fanout exchange.
// Every instance consumes the exchange into its local Hub, including its own
// publications. While the broker is unreachable notifications go straight to
// the local Hub.
type AMQPRelay struct {
	url      string
	exchange string
	hub      *Hub
	backoff  Backoff
	logger   *zerolog.Logger

	mu sync.Mutex
	ch *amqp.Channel
}

func NewAMQPRelay(url, exchange string, hub *Hub, logger *zerolog.Logger) *AMQPRelay {
	return &AMQPRelay{
		url:      url,
		exchange: exchange,
		hub:      hub,
		backoff:  Backoff{InitialDelay: time.Second, MaxDelay: 30 * time.Second, BackoffFactor: 2},
		logger:   logger,
	}
}

func (r *AMQPRelay) Publish(ctx context.Context, topic string, n *models.TableNotification) error {
	if err := r.publishRemote(ctx, topic, n); err != nil {
		r.logger.Warn().Err(err).Str("topic", topic).Msg("relay publish failed, delivering locally")
		return r.hub.Publish(ctx, topic, n)
	}
	return nil
}

func (r *AMQPRelay) publishRemote(ctx context.Context, topic string, n *models.TableNotification) error {
	body, err := json.Marshal(envelope{Topic: topic, Notification: n})
	if err != nil {
		return fmt.Errorf("marshal notification: %w", err)
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if r.ch == nil {
		return errNotConnected
	}
	return r.ch.PublishWithContext(ctx, r.exchange, "", false, false, amqp.Publishing{
		ContentType: "application/json",
		MessageId:   n.ID,
		Timestamp:   n.Timestamp,
		Body:        body,
	})
}

// Run keeps a consumer attached to the exchange until ctx is done.
func (r *AMQPRelay) Run(ctx context.Context) {
	attempt := 0
	for {
		connected, err := r.session(ctx)
		if ctx.Err() != nil {
			return
		}
		if connected {
			attempt = 0
		}
		attempt++
		r.logger.Error().Err(err).Int("attempt", attempt).Msg("amqp relay disconnected")
		if r.backoff.Wait(ctx, attempt) != nil {
			return
		}
	}
}

// session runs one connection lifetime and reports whether it got as far as
// consuming.
func (r *AMQPRelay) session(ctx context.Context) (bool, error) {
	conn, err := amqp.Dial(r.url)
	if err != nil {
		return false, fmt.Errorf("dial broker: %w", err)
	}
	defer conn.Close()

	pub, err := conn.Channel()
	if err != nil {
		return false, fmt.Errorf("open publish channel: %w", err)
	}
	if err := pub.ExchangeDeclare(r.exchange, amqp.ExchangeFanout, true, false, false, false, nil); err != nil {
		return false, fmt.Errorf("declare exchange: %w", err)
	}

	sub, err := conn.Channel()
	if err != nil {
		return false, fmt.Errorf("open consume channel: %w", err)
	}
	q, err := sub.QueueDeclare("", false, true, true, false, nil)
	if err != nil {
		return false, fmt.Errorf("declare queue: %w", err)
	}
	if err := sub.QueueBind(q.Name, "", r.exchange, false, nil); err != nil {
		return false, fmt.Errorf("bind queue: %w", err)
	}
	deliveries, err := sub.Consume(q.Name, "", true, true, false, false, nil)
	if err != nil {
		return false, fmt.Errorf("consume: %w", err)
	}

	r.setChannel(pub)
	defer r.setChannel(nil)
	r.logger.Info().Str("exchange", r.exchange).Msg("amqp relay connected")

	for {
		select {
		case <-ctx.Done():
			return true, ctx.Err()
		case d, ok := <-deliveries:
			if !ok {
				return true, errors.New("deliveries channel closed")
			}
			r.deliver(ctx, d.Body)
		}
	}
}

func (r *AMQPRelay) setChannel(ch *amqp.Channel) {
	r.mu.Lock()
	r.ch = ch
	r.mu.Unlock()
}

func (r *AMQPRelay) deliver(ctx context.Context, body []byte) {
	var env envelope
	if err := json.Unmarshal(body, &env); err != nil || env.Notification == nil || env.Topic == "" {
		r.logger.Warn().Err(err).Msg("discarding malformed relay message")
		return
	}
	_ = r.hub.Publish(ctx, env.Topic, env.Notification)
}
