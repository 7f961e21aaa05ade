// Package realtime fans notification inserts out to live subscribers.
package realtime

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"github.com/hds-conecte/conecte/internal/models"
)

const (
	channelPrefix    = "notifications:"
	broadcastChannel = channelPrefix + "*broadcast"
)

// Broker publishes notification rows and streams them per user. A
// subscriber receives its own notifications and every broadcast.
type Broker interface {
	Publish(ctx context.Context, n models.Notification) error
	Subscribe(ctx context.Context, userID string) (<-chan models.Notification, func(), error)
}

func channelFor(userID string) string {
	return channelPrefix + userID
}

// channelOf is the channel n is published on
func channelOf(n models.Notification) string {
	if n.IsBroadcast() {
		return broadcastChannel
	}
	return channelFor(*n.UserID)
}

// RedisBroker uses Redis pub/sub so the worker and API processes share one feed
type RedisBroker struct {
	client *redis.Client
	logger zerolog.Logger
}

// NewRedisBroker creates a broker on the given Redis address
func NewRedisBroker(addr string, logger zerolog.Logger) *RedisBroker {
	return &RedisBroker{
		client: redis.NewClient(&redis.Options{Addr: addr}),
		logger: logger.With().Str("component", "realtime").Logger(),
	}
}

// Publish sends n to its recipient's channel, or the broadcast channel
func (b *RedisBroker) Publish(ctx context.Context, n models.Notification) error {
	payload, err := json.Marshal(n)
	if err != nil {
		return fmt.Errorf("failed to marshal notification: %w", err)
	}
	if err := b.client.Publish(ctx, channelOf(n), payload).Err(); err != nil {
		return fmt.Errorf("failed to publish notification: %w", err)
	}
	return nil
}

// Subscribe streams notifications for userID until ctx ends or the returned
// close func is called
func (b *RedisBroker) Subscribe(ctx context.Context, userID string) (<-chan models.Notification, func(), error) {
	channels := []string{channelFor(userID), broadcastChannel}
	sub := b.client.Subscribe(ctx, channels...)
	// Wait for every subscription confirmation so early publishes are not lost
	for range channels {
		if _, err := sub.Receive(ctx); err != nil {
			_ = sub.Close()
			return nil, nil, fmt.Errorf("failed to subscribe: %w", err)
		}
	}

	out := make(chan models.Notification)
	done := make(chan struct{})
	var once sync.Once
	stop := func() {
		once.Do(func() {
			close(done)
			_ = sub.Close()
		})
	}

	go func() {
		defer close(out)
		msgs := sub.Channel()
		for {
			select {
			case <-ctx.Done():
				stop()
				return
			case <-done:
				return
			case msg, ok := <-msgs:
				if !ok {
					return
				}
				var n models.Notification
				if err := json.Unmarshal([]byte(msg.Payload), &n); err != nil {
					b.logger.Warn().Err(err).Msg("Dropping malformed notification payload")
					continue
				}
				select {
				case out <- n:
				case <-done:
					return
				case <-ctx.Done():
					stop()
					return
				}
			}
		}
	}()

	return out, stop, nil
}

// Ping checks the Redis connection
func (b *RedisBroker) Ping(ctx context.Context) error {
	return b.client.Ping(ctx).Err()
}

// Close releases the Redis client
func (b *RedisBroker) Close() error {
	return b.client.Close()
}

// MemoryBroker is an in-process broker for single-process setups and tests
type MemoryBroker struct {
	mu     sync.Mutex
	nextID int
	subs   map[string]map[int]chan models.Notification
}

// NewMemoryBroker creates an empty in-process broker
func NewMemoryBroker() *MemoryBroker {
	return &MemoryBroker{subs: make(map[string]map[int]chan models.Notification)}
}

// Publish delivers n to current subscribers of its user, or to every
// subscriber for a broadcast; slow subscribers miss the message rather than
// block the publisher
func (b *MemoryBroker) Publish(ctx context.Context, n models.Notification) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	deliver := func(subs map[int]chan models.Notification) {
		for _, ch := range subs {
			select {
			case ch <- n:
			default:
			}
		}
	}
	if n.IsBroadcast() {
		for _, subs := range b.subs {
			deliver(subs)
		}
		return nil
	}
	deliver(b.subs[*n.UserID])
	return nil
}

// Subscribe registers a buffered channel for userID
func (b *MemoryBroker) Subscribe(ctx context.Context, userID string) (<-chan models.Notification, func(), error) {
	ch := make(chan models.Notification, 16)

	b.mu.Lock()
	id := b.nextID
	b.nextID++
	if b.subs[userID] == nil {
		b.subs[userID] = make(map[int]chan models.Notification)
	}
	b.subs[userID][id] = ch
	b.mu.Unlock()

	done := make(chan struct{})
	var once sync.Once
	stop := func() {
		once.Do(func() {
			b.mu.Lock()
			delete(b.subs[userID], id)
			if len(b.subs[userID]) == 0 {
				delete(b.subs, userID)
			}
			b.mu.Unlock()
			close(done)
			close(ch)
		})
	}

	go func() {
		select {
		case <-ctx.Done():
			stop()
		case <-done:
		}
	}()

	return ch, stop, nil
}
