// Package queue implements the delivery queue on top of Redis Streams:
// XADD to enqueue, XREADGROUP for at-least-once consumption with a
// visibility timeout, XACK on success, and XAUTOCLAIM to reclaim entries a
// worker picked up but never acknowledged.
package queue

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/go-redis/redis/v8"
)

// Task is one unit of delivery work: a routed lead waiting for its webhook
// attempt.
type Task struct {
	MessageID string
	LeadID    int64
}

type taskPayload struct {
	LeadID int64 `json:"lead_id"`
}

// Queue wraps a single Redis Stream plus one consumer group.
type Queue struct {
	rdb    *redis.Client
	stream string
	group  string
}

// New opens (or joins) the consumer group on stream, creating the stream if
// it does not exist yet.
func New(ctx context.Context, rdb *redis.Client, stream, group string) (*Queue, error) {
	q := &Queue{rdb: rdb, stream: stream, group: group}

	err := rdb.XGroupCreateMkStream(ctx, stream, group, "0").Err()
	if err != nil && !strings.Contains(err.Error(), "BUSYGROUP") {
		return nil, fmt.Errorf("create consumer group: %w", err)
	}
	return q, nil
}

// Enqueue adds a delivery task to the stream, returning the stream message
// ID.
func (q *Queue) Enqueue(ctx context.Context, leadID int64) (string, error) {
	raw, err := json.Marshal(taskPayload{LeadID: leadID})
	if err != nil {
		return "", err
	}
	return q.rdb.XAdd(ctx, &redis.XAddArgs{
		Stream: q.stream,
		Values: map[string]interface{}{"payload": raw},
	}).Result()
}

// Dequeue reads up to count pending tasks for consumer, blocking up to
// block for new entries if none are immediately available. A block of zero
// or less does not wait: it returns whatever is available right away.
func (q *Queue) Dequeue(ctx context.Context, consumer string, count int64, block time.Duration) ([]Task, error) {
	if block <= 0 {
		// go-redis sends BLOCK 0 (wait forever) for a zero Block; -1 omits it.
		block = -1
	}
	res, err := q.rdb.XReadGroup(ctx, &redis.XReadGroupArgs{
		Group:    q.group,
		Consumer: consumer,
		Streams:  []string{q.stream, ">"},
		Count:    count,
		Block:    block,
	}).Result()
	if err == redis.Nil {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return messagesToTasks(res)
}

// Ack acknowledges successfully processed messages, removing them from the
// consumer group's pending entries list.
func (q *Queue) Ack(ctx context.Context, messageIDs ...string) error {
	if len(messageIDs) == 0 {
		return nil
	}
	return q.rdb.XAck(ctx, q.stream, q.group, messageIDs...).Err()
}

// ReclaimStuck claims pending entries idle longer than minIdle, handing
// them to consumer for another attempt. This is the mechanism that
// recovers tasks whose worker crashed mid-delivery without acking.
func (q *Queue) ReclaimStuck(ctx context.Context, consumer string, minIdle time.Duration, count int64) ([]Task, error) {
	messages, _, err := q.rdb.XAutoClaim(ctx, &redis.XAutoClaimArgs{
		Stream:   q.stream,
		Group:    q.group,
		Consumer: consumer,
		MinIdle:  minIdle,
		Start:    "0",
		Count:    count,
	}).Result()
	if err != nil {
		return nil, err
	}
	return messagesToTasks([]redis.XStream{{Stream: q.stream, Messages: messages}})
}

func messagesToTasks(streams []redis.XStream) ([]Task, error) {
	var tasks []Task
	for _, stream := range streams {
		for _, msg := range stream.Messages {
			raw, ok := msg.Values["payload"].(string)
			if !ok {
				continue
			}
			var p taskPayload
			if err := json.Unmarshal([]byte(raw), &p); err != nil {
				return nil, fmt.Errorf("decode task payload %s: %w", msg.ID, err)
			}
			tasks = append(tasks, Task{MessageID: msg.ID, LeadID: p.LeadID})
		}
	}
	return tasks, nil
}
