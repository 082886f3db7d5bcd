package events

import (
	"context"
	"errors"
	"testing"
	"time"

	"cloud.google.com/go/pubsub/pstest"
	"github.com/inkwell-blog/inkwell/config"
	"github.com/inkwell-blog/inkwell/internal/mq"
	"github.com/inkwell-blog/inkwell/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/api/option"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"
)

type published struct {
	channel string
	data    []byte
	attrs   map[string]string
}

// loopback delivers published messages to the handler of the next Subscribe.
type loopback struct {
	sent    []published
	results []error
}

func (l *loopback) Publish(_ context.Context, channel string, data []byte, attrs map[string]string) (string, error) {
	l.sent = append(l.sent, published{channel: channel, data: data, attrs: attrs})
	return "msg-1", nil
}

func (l *loopback) Subscribe(ctx context.Context, channel string, handler mq.Handler) error {
	for i, msg := range l.sent {
		if msg.channel != channel {
			continue
		}
		l.results = append(l.results, handler(ctx, mq.Message{ID: string(rune('a' + i)), Data: msg.data, Attributes: msg.attrs}))
	}
	return nil
}

func (l *loopback) Close() error { return nil }

func TestPublisher_RoundTrip(t *testing.T) {
	backend := &loopback{}
	broker := mq.New(backend)
	publisher := NewPublisher(broker, "blog")
	fixed := time.Date(2024, 3, 1, 9, 0, 0, 0, time.UTC)
	publisher.now = func() time.Time { return fixed }

	ctx := context.Background()
	require.NoError(t, publisher.Publish(ctx, types.Event{Type: types.EventPostCreated, UserID: 1, PostID: 9}))
	require.Len(t, backend.sent, 1)
	assert.Equal(t, "blog", backend.sent[0].channel)
	assert.Equal(t, "application/json", backend.sent[0].attrs[mq.AttrContentType])
	assert.Equal(t, "post.created", backend.sent[0].attrs["event_type"])
	assert.Equal(t, "post-9", backend.sent[0].attrs[mq.AttrOrderingKey])

	var received []types.Event
	err := Consume(ctx, broker, "blog", func(_ context.Context, event types.Event) error {
		received = append(received, event)
		return nil
	})
	require.NoError(t, err)
	require.Len(t, received, 1)
	assert.NotEmpty(t, received[0].ID)
	assert.Equal(t, types.EventPostCreated, received[0].Type)
	assert.Equal(t, 9, received[0].PostID)
	assert.True(t, received[0].OccurredAt.Equal(fixed))
}

func TestConsume_DiscardsGarbage(t *testing.T) {
	backend := &loopback{sent: []published{{channel: "blog", data: []byte("not json")}}}

	err := Consume(context.Background(), mq.New(backend), "blog", func(context.Context, types.Event) error {
		t.Fatal("handler must not run for undecodable payloads")
		return nil
	})
	require.NoError(t, err)
	require.Len(t, backend.results, 1)
	assert.True(t, errors.Is(backend.results[0], mq.ErrPermanent))
}

func TestPublisher_NilBrokerDrops(t *testing.T) {
	var p *Publisher
	assert.NoError(t, p.Publish(context.Background(), types.Event{Type: types.EventUserRegistered}))
	assert.NoError(t, NewPublisher(nil, "blog").Publish(context.Background(), types.Event{Type: types.EventUserRegistered}))
}

func TestNewBackend_Disabled(t *testing.T) {
	backend, err := NewBackend(context.Background(), config.EventsConfig{Backend: "none"})
	require.NoError(t, err)
	assert.Nil(t, backend)

	_, err = NewBackend(context.Background(), config.EventsConfig{Backend: "kafka"})
	assert.Error(t, err)
}

func TestOrderingKey(t *testing.T) {
	assert.Equal(t, "post-4", OrderingKey(types.Event{Type: types.EventPostDeleted, UserID: 2, PostID: 4}))
	assert.Equal(t, "user-2", OrderingKey(types.Event{Type: types.EventUserUpdated, UserID: 2}))
}

func TestPublisher_OverPubSub(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Second)
	defer cancel()

	srv := pstest.NewServer()
	t.Cleanup(func() { _ = srv.Close() })
	conn, err := grpc.NewClient(srv.Addr, grpc.WithTransportCredentials(insecure.NewCredentials()))
	require.NoError(t, err)
	t.Cleanup(func() { _ = conn.Close() })

	client, err := mq.NewPubSubClient(ctx, config.PubSubConfig{ProjectID: "inkwell-test"}, option.WithGRPCConn(conn))
	require.NoError(t, err)
	broker := mq.New(client)
	t.Cleanup(func() { _ = broker.Close() })

	publisher := NewPublisher(broker, "blog-events")
	require.NoError(t, publisher.Publish(ctx, types.Event{Type: types.EventPostCreated, UserID: 1, PostID: 7}))
	require.NoError(t, publisher.Publish(ctx, types.Event{Type: types.EventPostUpdated, UserID: 1, PostID: 7}))

	msgs := srv.Messages()
	require.Len(t, msgs, 2)
	for _, m := range msgs {
		assert.Equal(t, "post-7", m.OrderingKey)
		assert.Equal(t, "application/json", m.Attributes[mq.AttrContentType])
	}
	assert.Equal(t, "post.created", msgs[0].Attributes["event_type"])

	// The subscription only sees messages published after it exists.
	subCtx, stop := context.WithCancel(ctx)
	received := make(chan types.Event, 4)
	done := make(chan error, 1)
	go func() {
		done <- Consume(subCtx, broker, "blog-events", func(_ context.Context, event types.Event) error {
			select {
			case received <- event:
			default:
			}
			return nil
		})
	}()

	require.Eventually(t, func() bool {
		_ = publisher.Publish(ctx, types.Event{Type: types.EventPostDeleted, UserID: 1, PostID: 7})
		select {
		case event := <-received:
			return event.Type == types.EventPostDeleted && event.PostID == 7
		case <-time.After(200 * time.Millisecond):
			return false
		}
	}, 10*time.Second, 50*time.Millisecond)

	stop()
	require.NoError(t, <-done)
}
