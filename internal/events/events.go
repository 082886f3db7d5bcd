// Package events publishes and consumes blog domain events over the
// configured message broker.
package events

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/inkwell-blog/inkwell/config"
	"github.com/inkwell-blog/inkwell/internal/mq"
	"github.com/inkwell-blog/inkwell/types"
)

const (
	contentTypeJSON = "application/json"
	attrEventType   = "event_type"
)

// NewBackend connects to the broker selected by cfg. It returns a nil
// backend when events are disabled.
func NewBackend(ctx context.Context, cfg config.EventsConfig) (mq.Backend, error) {
	switch strings.ToLower(strings.TrimSpace(cfg.Backend)) {
	case "", "none":
		return nil, nil
	case "rabbitmq":
		return mq.NewRabbitMQClient(cfg.RabbitMQ)
	case "pubsub":
		return mq.NewPubSubClient(ctx, cfg.PubSub)
	default:
		return nil, fmt.Errorf("unknown events backend %q", cfg.Backend)
	}
}

// Publisher serialises events as JSON onto a single channel.
type Publisher struct {
	mq      *mq.MQ
	channel string
	now     func() time.Time
}

// NewPublisher constructs a Publisher. A nil broker yields a publisher that
// drops every event.
func NewPublisher(broker *mq.MQ, channel string) *Publisher {
	return &Publisher{
		mq:      broker,
		channel: channel,
		now:     func() time.Time { return time.Now().UTC() },
	}
}

// Publish stamps the event with an id and timestamp when missing and sends it.
func (p *Publisher) Publish(ctx context.Context, event types.Event) error {
	if p == nil || p.mq == nil {
		return nil
	}
	if event.ID == "" {
		event.ID = uuid.NewString()
	}
	if event.OccurredAt.IsZero() {
		event.OccurredAt = p.now()
	}

	data, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("encode event: %w", err)
	}

	attrs := map[string]string{
		mq.AttrContentType: contentTypeJSON,
		attrEventType:      string(event.Type),
		mq.AttrOrderingKey: OrderingKey(event),
	}
	if _, err := p.mq.Publish(ctx, p.channel, data, attrs); err != nil {
		return fmt.Errorf("publish %s: %w", event.Type, err)
	}
	return nil
}

// OrderingKey keeps the events of one post, or of one account, in order.
func OrderingKey(event types.Event) string {
	if event.PostID > 0 {
		return "post-" + strconv.Itoa(event.PostID)
	}
	return "user-" + strconv.Itoa(event.UserID)
}

// Consume blocks delivering decoded events to handle until ctx is done or
// the broker fails. Undecodable payloads are discarded.
func Consume(ctx context.Context, broker *mq.MQ, channel string, handle func(context.Context, types.Event) error) error {
	return broker.Subscribe(ctx, channel, func(ctx context.Context, msg mq.Message) error {
		var event types.Event
		if err := json.Unmarshal(msg.Data, &event); err != nil {
			return fmt.Errorf("decode message %s: %w", msg.ID, mq.ErrPermanent)
		}
		if event.Type == "" {
			return fmt.Errorf("message %s has no event type: %w", msg.ID, mq.ErrPermanent)
		}
		return handle(ctx, event)
	})
}
