// Package notify forwards controller notifications to places other than
// the web page: the application log and a Redis pub/sub channel.
package notify

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/google/uuid"

	"evsched/internal/config"
	"evsched/internal/controller"
	appLog "evsched/internal/log"
)

const (
	queueSize      = 64
	publishTimeout = 2 * time.Second
)

// Message types published on the channel.
const (
	TypeNotification  = "notification"
	TypeEventsChanged = "events_changed"
)

// Envelope is the JSON document published for every message.
type Envelope struct {
	ID        string    `json:"id"`
	Type      string    `json:"type"`
	Timestamp time.Time `json:"timestamp"`
	Payload   any       `json:"payload"`
}

// EventsChanged is the payload of TypeEventsChanged.
type EventsChanged struct {
	Revision uint64 `json:"revision"`
	Count    int    `json:"count"`
}

// Publisher is the subset of *redis.Client used here.
type Publisher interface {
	Publish(ctx context.Context, channel string, message interface{}) *redis.IntCmd
}

// Dial connects to Redis and verifies the connection with PING.
func Dial(ctx context.Context, cfg config.RedisConfig) (*redis.Client, error) {
	if cfg.Addr == "" {
		return nil, errors.New("redis: addr is empty")
	}
	client := redis.NewClient(&redis.Options{
		Addr: cfg.Addr,
		DB:   cfg.DB,
	})
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("redis ping %s: %w", cfg.Addr, err)
	}
	appLog.Info("connected to redis", "addr", cfg.Addr, "db", cfg.DB)
	return client, nil
}

// RedisObserver publishes notifications, and list changes after each
// successful mutation, to a Redis channel. Callbacks only enqueue; Run
// does the publishing so the controller is never blocked on the network.
type RedisObserver struct {
	pub     Publisher
	channel string
	queue   chan Envelope

	mu           sync.Mutex
	lastRevision uint64
}

// NewRedisObserver creates an observer publishing to channel.
func NewRedisObserver(pub Publisher, channel string) *RedisObserver {
	return &RedisObserver{
		pub:     pub,
		channel: channel,
		queue:   make(chan Envelope, queueSize),
	}
}

// Notified implements controller.Observer.
func (o *RedisObserver) Notified(n controller.Notification) {
	o.enqueue(Envelope{
		ID:        uuid.New().String(),
		Type:      TypeNotification,
		Timestamp: n.At.UTC(),
		Payload:   n,
	})
}

// StateChanged implements controller.Observer. Only revision bumps are
// published.
func (o *RedisObserver) StateChanged(s controller.Snapshot) {
	o.mu.Lock()
	if s.Revision == o.lastRevision {
		o.mu.Unlock()
		return
	}
	o.lastRevision = s.Revision
	o.mu.Unlock()

	o.enqueue(Envelope{
		ID:        uuid.New().String(),
		Type:      TypeEventsChanged,
		Timestamp: time.Now().UTC(),
		Payload:   EventsChanged{Revision: s.Revision, Count: len(s.Events)},
	})
}

func (o *RedisObserver) enqueue(env Envelope) {
	select {
	case o.queue <- env:
	default:
		appLog.Warn("redis notify queue full; message dropped", "type", env.Type)
	}
}

// Run publishes queued messages until ctx is canceled.
func (o *RedisObserver) Run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case env := <-o.queue:
			if err := o.publish(ctx, env); err != nil {
				appLog.Error("redis publish failed", err, "channel", o.channel, "type", env.Type)
			}
		}
	}
}

func (o *RedisObserver) publish(ctx context.Context, env Envelope) error {
	payload, err := json.Marshal(env)
	if err != nil {
		return fmt.Errorf("marshal message: %w", err)
	}
	pctx, cancel := context.WithTimeout(ctx, publishTimeout)
	defer cancel()
	if err := o.pub.Publish(pctx, o.channel, payload).Err(); err != nil {
		return fmt.Errorf("publish: %w", err)
	}
	appLog.Debug("published to redis", "channel", o.channel, "type", env.Type)
	return nil
}
