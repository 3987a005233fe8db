// Package queue carries sync triggers from the capture side (API, CLI,
// platform hooks) to the background reconciliation worker.
package queue

import (
	"context"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
)

// Trigger sources.
const (
	SourceConnectivity = "connectivity"
	SourceManual       = "manual"
	SourceForeground   = "foreground"
)

// Trigger asks the worker to run one reconciliation pass. Force bypasses the
// connectivity gate and the per-event retry budget (explicit user action).
type Trigger struct {
	Source string
	Force  bool
}

// Queue is the abstraction over different backends.
type Queue interface {
	Publish(ctx context.Context, t Trigger) error
	Consume(ctx context.Context) (<-chan Trigger, error)
}

// InMemory is a channel-backed queue for single-process agents (the default).
type InMemory struct {
	ch chan Trigger
}

// NewInMemory creates a bounded in-memory queue.
func NewInMemory(size int) *InMemory {
	return &InMemory{ch: make(chan Trigger, size)}
}

// Publish enqueues a trigger.
func (q *InMemory) Publish(ctx context.Context, t Trigger) error {
	select {
	case q.ch <- t:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Consume returns a channel for the worker.
func (q *InMemory) Consume(ctx context.Context) (<-chan Trigger, error) {
	out := make(chan Trigger)
	go func() {
		defer close(out)
		for {
			select {
			case t := <-q.ch:
				out <- t
			case <-ctx.Done():
				return
			}
		}
	}()
	return out, nil
}

// RedisQueue is a Redis list-backed queue for kiosk fleets where several
// capture processes feed one sync worker.
type RedisQueue struct {
	client *redis.Client
	key    string
}

// NewRedisQueue builds a queue using LPUSH/BRPOP semantics.
func NewRedisQueue(client *redis.Client, key string) *RedisQueue {
	if key == "" {
		key = "attendsync:triggers"
	}
	return &RedisQueue{client: client, key: key}
}

// Publish enqueues a trigger.
func (q *RedisQueue) Publish(ctx context.Context, t Trigger) error {
	return q.client.LPush(ctx, q.key, serialize(t)).Err()
}

// Consume streams triggers using BRPOP.
func (q *RedisQueue) Consume(ctx context.Context) (<-chan Trigger, error) {
	out := make(chan Trigger)
	go func() {
		defer close(out)
		for {
			res, err := q.client.BRPop(ctx, 5*time.Second, q.key).Result()
			if err != nil {
				if err == redis.Nil {
					continue
				}
				if ctx.Err() != nil {
					return
				}
				continue
			}
			if len(res) == 2 {
				out <- deserialize(res[1])
			}
		}
	}()
	return out, nil
}

// serialize stores triggers as source|force.
func serialize(t Trigger) string {
	if t.Force {
		return t.Source + "|force"
	}
	return t.Source + "|"
}

func deserialize(s string) Trigger {
	source, rest, _ := strings.Cut(s, "|")
	return Trigger{Source: source, Force: rest == "force"}
}
