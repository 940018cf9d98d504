package notify

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/redis/go-redis/v9"
)

// Envelope is the unit published after a durable write. Every server
// instance, the originating one included, consumes envelopes and pushes to
// its own local sessions only, so the Dispatcher contract survives horizontal
// scaling unchanged.
type Envelope struct {
	Kind           string      `json:"kind"`
	Content        *Content    `json:"content,omitempty"`
	Recipients     []Recipient `json:"recipients,omitempty"`
	UserID         int         `json:"user_id,omitempty"`
	NotificationID int64       `json:"notification_id,omitempty"`
}

// Recipient pairs a user with the delivery record a dispatch created for them.
type Recipient struct {
	UserID           int   `json:"user_id"`
	DeliveryRecordID int64 `json:"delivery_record_id"`
}

const (
	EnvelopeDispatch = "dispatch"
	EnvelopeRead     = "read"
	EnvelopeReadAll  = "read-all"
)

// Broker carries envelopes between durable writes and live delivery.
type Broker interface {
	Publish(ctx context.Context, env Envelope) error
	Subscribe(ctx context.Context) <-chan Envelope
	Close() error
}

const redisChannel = "notify:events"

// RedisBroker bridges server instances over one Redis pub/sub channel.
type RedisBroker struct {
	client *redis.Client
}

func NewRedisBroker(client *redis.Client) *RedisBroker {
	return &RedisBroker{client: client}
}

func (b *RedisBroker) Publish(ctx context.Context, env Envelope) error {
	payload, err := json.Marshal(env)
	if err != nil {
		return fmt.Errorf("marshal envelope: %w", err)
	}
	if err := b.client.Publish(ctx, redisChannel, payload).Err(); err != nil {
		return fmt.Errorf("publish envelope: %w", err)
	}
	return nil
}

func (b *RedisBroker) Subscribe(ctx context.Context) <-chan Envelope {
	pubsub := b.client.Subscribe(ctx, redisChannel)

	// Closing the pubsub ends its Channel(), so cancellation unblocks the
	// consumer loop even when no traffic is flowing.
	go func() {
		<-ctx.Done()
		pubsub.Close()
	}()

	out := make(chan Envelope)
	go func() {
		defer close(out)
		for msg := range pubsub.Channel() {
			var env Envelope
			if err := json.Unmarshal([]byte(msg.Payload), &env); err != nil {
				continue
			}
			select {
			case out <- env:
			case <-ctx.Done():
				return
			}
		}
	}()
	return out
}

func (b *RedisBroker) Close() error {
	return b.client.Close()
}

// LocalBroker is the single-process loopback used when no Redis is
// configured (and in tests).
type LocalBroker struct {
	ch chan Envelope
}

func NewLocalBroker() *LocalBroker {
	return &LocalBroker{ch: make(chan Envelope, 256)}
}

func (b *LocalBroker) Publish(ctx context.Context, env Envelope) error {
	select {
	case b.ch <- env:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (b *LocalBroker) Subscribe(ctx context.Context) <-chan Envelope {
	return b.ch
}

func (b *LocalBroker) Close() error {
	close(b.ch)
	return nil
}
