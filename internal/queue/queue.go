// Package queue carries accepted submissions from the record-keeper to the
// post-processing worker.
package queue

import (
	"context"
	"errors"
	"time"

	"github.com/goccy/go-json"
	"github.com/redis/go-redis/v9"
)

// TypeSubmitted marks a message announcing an accepted attendance event.
const TypeSubmitted = "attendance.submitted"

// Message represents work to be processed.
type Message struct {
	Type string          `json:"type"`
	Body json.RawMessage `json:"body"`
}

// Submitted is the body of a TypeSubmitted message.
type Submitted struct {
	EventID  string    `json:"event_id"`
	Roll     string    `json:"roll"`
	DeviceID string    `json:"device_id"`
	At       time.Time `json:"at"`
}

// NewSubmitted builds a TypeSubmitted message.
func NewSubmitted(s Submitted) (Message, error) {
	body, err := json.Marshal(s)
	if err != nil {
		return Message{}, err
	}
	return Message{Type: TypeSubmitted, Body: body}, nil
}

// Decode unmarshals the body into dst.
func (m Message) Decode(dst any) error {
	if len(m.Body) == 0 {
		return errors.New("empty message body")
	}
	return json.Unmarshal(m.Body, dst)
}

// Queue is the abstraction over different backends.
type Queue interface {
	Publish(ctx context.Context, msg Message) error
	Consume(ctx context.Context) (<-chan Message, error)
}

// InMemory is a channel-backed queue for dev and tests.
type InMemory struct {
	ch chan Message
}

// NewInMemory creates a bounded in-memory queue.
func NewInMemory(size int) *InMemory {
	return &InMemory{ch: make(chan Message, size)}
}

// Publish enqueues a message.
func (q *InMemory) Publish(ctx context.Context, msg Message) error {
	select {
	case q.ch <- msg:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Consume returns a channel for workers. It closes when ctx ends.
func (q *InMemory) Consume(ctx context.Context) (<-chan Message, error) {
	out := make(chan Message)
	go func() {
		defer close(out)
		for {
			select {
			case msg := <-q.ch:
				select {
				case out <- msg:
				case <-ctx.Done():
					return
				}
			case <-ctx.Done():
				return
			}
		}
	}()
	return out, nil
}

// RedisQueue implements a Redis list-backed queue.
type RedisQueue struct {
	client *redis.Client
	key    string
}

// NewRedisQueue builds a queue using LPUSH/BRPOP semantics.
func NewRedisQueue(client *redis.Client, key string) *RedisQueue {
	if key == "" {
		key = "attendance:submissions"
	}
	return &RedisQueue{client: client, key: key}
}

// Publish enqueues a message.
func (q *RedisQueue) Publish(ctx context.Context, msg Message) error {
	raw, err := encode(msg)
	if err != nil {
		return err
	}
	return q.client.LPush(ctx, q.key, raw).Err()
}

// Consume streams messages using BRPOP. Undecodable entries are dropped.
func (q *RedisQueue) Consume(ctx context.Context) (<-chan Message, error) {
	out := make(chan Message)
	go func() {
		defer close(out)
		for {
			res, err := q.client.BRPop(ctx, 5*time.Second, q.key).Result()
			if err != nil {
				if ctx.Err() != nil {
					return
				}
				continue
			}
			if len(res) != 2 {
				continue
			}
			msg, err := decode(res[1])
			if err != nil {
				continue
			}
			select {
			case out <- msg:
			case <-ctx.Done():
				return
			}
		}
	}()
	return out, nil
}

func encode(msg Message) (string, error) {
	b, err := json.Marshal(msg)
	return string(b), err
}

func decode(s string) (Message, error) {
	var msg Message
	if err := json.Unmarshal([]byte(s), &msg); err != nil {
		return Message{}, err
	}
	if msg.Type == "" {
		return Message{}, errors.New("message without type")
	}
	return msg, nil
}
