package events

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// Message is the JSON document published for every forwarded notification.
type Message struct {
	Event  string         `json:"event"`
	Kind   string         `json:"kind"`
	Model  string         `json:"model"`
	Key    any            `json:"key,omitempty"`
	Record map[string]any `json:"record,omitempty"`
	RunID  string         `json:"run_id,omitempty"`
	At     time.Time      `json:"at"`
}

// row is satisfied by store records.
type row interface {
	Key() any
	Fields() map[string]any
}

// RedisForwarder publishes notifications to a Redis channel so processes
// outside this one can react to purges.
type RedisForwarder struct {
	client    *redis.Client
	channel   string
	namespace string
	now       func() time.Time
}

// NewRedisForwarder wraps an existing client.
func NewRedisForwarder(client *redis.Client, namespace, channel string) *RedisForwarder {
	return &RedisForwarder{client: client, channel: channel, namespace: namespace, now: time.Now}
}

// DialRedis builds a client for addr and checks it answers.
func DialRedis(ctx context.Context, addr, password string, db int) (*redis.Client, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
		DB:       db,
	})
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("ping redis %s: %w", addr, err)
	}
	return client, nil
}

// Listener returns a Listener that forwards and never halts.
func (f *RedisForwarder) Listener() Listener {
	return func(ctx context.Context, n Notification) (any, error) {
		return nil, f.Publish(ctx, n)
	}
}

// Publish sends n to the configured channel.
func (f *RedisForwarder) Publish(ctx context.Context, n Notification) error {
	msg := Message{
		Event: EventName(f.namespace, n.Kind, n.Model),
		Kind:  n.Kind.String(),
		Model: n.Model,
		RunID: n.RunID,
		At:    f.now().UTC(),
	}
	if r, ok := n.Record.(row); ok {
		msg.Key = r.Key()
		msg.Record = r.Fields()
	}
	b, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("marshal notification: %w", err)
	}
	if err := f.client.Publish(ctx, f.channel, b).Err(); err != nil {
		return fmt.Errorf("publish %s: %w", msg.Event, err)
	}
	return nil
}
