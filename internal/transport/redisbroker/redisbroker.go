// Package redisbroker runs room traffic over Redis pub/sub. Redis channels
// have no last-value feature, so retained publishes also land in a per-topic
// key that Subscribe replays to late joiners before live messages.
package redisbroker

import (
	"context"
	"errors"
	"fmt"
	"runtime"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"tombalago/internal/transport"
)

const retainKeyPrefix = "retain:"

// Retained values expire with the room; a dead host should not leave a stale
// snapshot greeting joiners forever.
const retainTTL = 24 * time.Hour

type Broker struct {
	rdb    *redis.Client
	notify chan transport.Notification

	mu     sync.Mutex
	closed bool
	subs   []*redis.PubSub
}

// Dial connects with bounded retries and returns a ready broker. Exhausted
// retries surface as a fatal connect error to the caller.
func Dial(ctx context.Context, host string, port int) (*Broker, error) {
	maxPool := runtime.NumCPU() * 8
	if maxPool > 512 {
		maxPool = 512
	}
	rdb := redis.NewClient(&redis.Options{
		Addr:     fmt.Sprintf("%s:%d", host, port),
		PoolSize: maxPool,
	})

	err := pingWithRetry(ctx, rdb)
	if err != nil {
		_ = rdb.Close()
		return nil, errors.New("redis connection failed: " + err.Error())
	}
	return New(rdb), nil
}

func pingWithRetry(ctx context.Context, rdb *redis.Client) error {
	return transport.WithBackoff(ctx, "redis ping", func() error {
		pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
		defer cancel()
		return rdb.Ping(pingCtx).Err()
	})
}

// New wraps an existing client; tests hand in a mock here.
func New(rdb *redis.Client) *Broker {
	return &Broker{
		rdb:    rdb,
		notify: make(chan transport.Notification, 4),
	}
}

func (b *Broker) SupportsRetained() bool { return true }

func (b *Broker) Notifications() <-chan transport.Notification { return b.notify }

func (b *Broker) Publish(ctx context.Context, topic string, payload []byte, retain bool) error {
	if retain {
		if err := b.rdb.Set(ctx, retainKeyPrefix+topic, payload, retainTTL).Err(); err != nil {
			return fmt.Errorf("retain %s: %w", topic, err)
		}
	}
	if err := b.rdb.Publish(ctx, topic, payload).Err(); err != nil {
		return fmt.Errorf("publish %s: %w", topic, err)
	}
	return nil
}

func (b *Broker) Subscribe(ctx context.Context, topic string, h transport.Handler) (func(), error) {
	ps := b.rdb.Subscribe(ctx, topic)
	// Force the SUBSCRIBE onto the wire before replaying the retained value,
	// so nothing published in between can be missed entirely.
	if _, err := ps.Receive(ctx); err != nil {
		_ = ps.Close()
		return nil, fmt.Errorf("subscribe %s: %w", topic, err)
	}

	if last, err := b.Retained(ctx, topic); err == nil && last != nil {
		h(topic, last)
	}

	b.mu.Lock()
	b.subs = append(b.subs, ps)
	b.mu.Unlock()

	done := make(chan struct{})
	go func() {
		ch := ps.Channel()
		for {
			select {
			case <-done:
				return
			case <-ctx.Done():
				return
			case m, ok := <-ch:
				if !ok {
					b.connectionLost(topic)
					return
				}
				h(m.Channel, []byte(m.Payload))
			}
		}
	}()

	var once sync.Once
	return func() {
		once.Do(func() {
			close(done)
			_ = ps.Close()
		})
	}, nil
}

// Retained fetches the last retained payload for topic, nil when there is none.
func (b *Broker) Retained(ctx context.Context, topic string) ([]byte, error) {
	val, err := b.rdb.Get(ctx, retainKeyPrefix+topic).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return val, nil
}

func (b *Broker) connectionLost(topic string) {
	zap.L().Warn("redisbroker.connection_lost", zap.String("topic", topic))
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return
	}
	select {
	case b.notify <- transport.Notification{Kind: transport.ConnectionLost, Detail: topic}:
	default:
	}
}

func (b *Broker) Close() error {
	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		return nil
	}
	b.closed = true
	subs := b.subs
	b.subs = nil
	b.mu.Unlock()

	for _, ps := range subs {
		_ = ps.Close()
	}
	close(b.notify)
	return b.rdb.Close()
}
