package notify

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"
)

// Redis broker tests run only against a real instance, set TEST_REDIS_ADDR
// (e.g. localhost:6379) to enable them.
func redisBrokerFromEnv(t *testing.T) *RedisBroker {
	t.Helper()
	addr := os.Getenv("TEST_REDIS_ADDR")
	if addr == "" {
		t.Skip("TEST_REDIS_ADDR not set")
	}
	client := redis.NewClient(&redis.Options{Addr: addr})
	if err := client.Ping(context.Background()).Err(); err != nil {
		t.Fatalf("redis ping: %v", err)
	}
	t.Cleanup(func() { client.Close() })
	return NewRedisBroker(client)
}

func TestRedisBrokerRoundTrip(t *testing.T) {
	b := redisBrokerFromEnv(t)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	ch := b.Subscribe(ctx)
	time.Sleep(100 * time.Millisecond) // let the subscription land

	env := Envelope{Kind: EnvelopeRead, UserID: 7, NotificationID: 42}
	if err := b.Publish(ctx, env); err != nil {
		t.Fatalf("publish: %v", err)
	}

	select {
	case got := <-ch:
		if got.Kind != EnvelopeRead || got.UserID != 7 || got.NotificationID != 42 {
			t.Fatalf("envelope = %+v", got)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("envelope never arrived")
	}
}

func TestRedisBrokerSubscribeEndsOnCancelWithoutTraffic(t *testing.T) {
	b := redisBrokerFromEnv(t)
	ctx, cancel := context.WithCancel(context.Background())

	ch := b.Subscribe(ctx)
	time.Sleep(100 * time.Millisecond)

	// No message is in flight; cancellation alone must close the channel.
	cancel()

	deadline := time.After(2 * time.Second)
	for {
		select {
		case _, ok := <-ch:
			if !ok {
				return
			}
		case <-deadline:
			t.Fatal("subscription channel still open after cancel")
		}
	}
}
