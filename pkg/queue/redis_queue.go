package queue

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"github.com/calliq/qaengine/pkg/telemetry"
)

// DefaultIdempotencyTTL bounds how long a dedup key is remembered after a
// task is enqueued, long enough to outlast any reasonable retry storm from
// the at-least-once queue collaborator.
const DefaultIdempotencyTTL = 24 * time.Hour

// DefaultLeaseDuration is how long a claimed task may run before its
// lease is considered expired and eligible for orphan recovery.
const DefaultLeaseDuration = 10 * time.Minute

// RedisQueue implements Queue on top of a single Redis list (pending
// FIFO), a second list (in-flight tasks), a sorted set of lease
// deadlines keyed by task ID, a hash of task bodies, and a SETNX-guarded
// idempotency key per task.
type RedisQueue struct {
	client *redis.Client
	prefix string
	lease  time.Duration
}

// NewRedisQueue builds a RedisQueue namespaced under prefix (e.g.
// "qaengine:queue").
func NewRedisQueue(client *redis.Client, prefix string) *RedisQueue {
	return &RedisQueue{client: client, prefix: prefix, lease: DefaultLeaseDuration}
}

func (q *RedisQueue) pendingKey() string        { return q.prefix + ":pending" }
func (q *RedisQueue) inFlightKey() string       { return q.prefix + ":inflight" }
func (q *RedisQueue) leaseKey() string          { return q.prefix + ":leases" }
func (q *RedisQueue) taskHashKey() string       { return q.prefix + ":tasks" }
func (q *RedisQueue) idemKey(key string) string { return q.prefix + ":idem:" + key }

func (q *RedisQueue) Enqueue(ctx context.Context, kind TaskKind, payload any, idempotencyKey string, delay time.Duration) (string, bool, error) {
	body, err := json.Marshal(payload)
	if err != nil {
		return "", false, fmt.Errorf("marshal task payload: %w", err)
	}

	id := uuid.NewString()
	ok, err := q.client.SetNX(ctx, q.idemKey(idempotencyKey), id, DefaultIdempotencyTTL).Result()
	if err != nil {
		return "", false, fmt.Errorf("check idempotency key: %w", err)
	}
	if !ok {
		existing, err := q.client.Get(ctx, q.idemKey(idempotencyKey)).Result()
		if err != nil {
			return "", false, fmt.Errorf("read existing idempotency key: %w", err)
		}
		return existing, true, nil
	}

	task := Task{
		ID:             id,
		Kind:           kind,
		Payload:        body,
		IdempotencyKey: idempotencyKey,
		EnqueuedAt:     time.Now(),
	}
	taskJSON, err := json.Marshal(task)
	if err != nil {
		return "", false, fmt.Errorf("marshal task: %w", err)
	}

	pipe := q.client.TxPipeline()
	pipe.HSet(ctx, q.taskHashKey(), id, taskJSON)
	if delay > 0 {
		pipe.ZAdd(ctx, q.prefix+":scheduled", redis.Z{Score: float64(time.Now().Add(delay).Unix()), Member: id})
	} else {
		pipe.RPush(ctx, q.pendingKey(), id)
	}
	if _, err := pipe.Exec(ctx); err != nil {
		return "", false, fmt.Errorf("enqueue task: %w", err)
	}

	telemetry.RecordQueueEnqueue(string(kind))
	return id, false, nil
}

// claimPollStep is how often Claim retries the non-blocking LMOVE while
// waiting out its timeout.
const claimPollStep = 100 * time.Millisecond

func (q *RedisQueue) Claim(ctx context.Context, timeout time.Duration) (*Task, error) {
	deadline := time.Now().Add(timeout)

	var id string
	for {
		q.promoteScheduled(ctx)

		var err error
		id, err = q.client.LMove(ctx, q.pendingKey(), q.inFlightKey(), "LEFT", "RIGHT").Result()
		if err == nil {
			break
		}
		if !errors.Is(err, redis.Nil) {
			return nil, fmt.Errorf("claim task: %w", err)
		}
		if time.Now().After(deadline) {
			return nil, ErrNoTasksAvailable
		}
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(claimPollStep):
		}
	}

	taskJSON, err := q.client.HGet(ctx, q.taskHashKey(), id).Result()
	if err != nil {
		return nil, fmt.Errorf("load claimed task body %s: %w", id, err)
	}
	var task Task
	if err := json.Unmarshal([]byte(taskJSON), &task); err != nil {
		return nil, fmt.Errorf("unmarshal claimed task %s: %w", id, err)
	}
	task.Attempts++

	if err := q.client.ZAdd(ctx, q.leaseKey(), redis.Z{
			Score: float64(time.Now().Add(q.lease).Unix()), Member: id,
	}).Err(); err != nil {
		return nil, fmt.Errorf("set lease for task %s: %w", id, err)
	}

	return &task, nil
}

// promoteScheduled moves delayed tasks whose delay has elapsed into the
// pending list. Best-effort: failures here just delay a task's visibility
// by one more claim cycle.
func (q *RedisQueue) promoteScheduled(ctx context.Context) {
	scheduledKey := q.prefix + ":scheduled"
	due, err := q.client.ZRangeByScore(ctx, scheduledKey, &redis.ZRangeBy{
			Min: "-inf", Max: fmt.Sprintf("%d", time.Now().Unix()),
	}).Result()
	if err != nil || len(due) == 0 {
		return
	}
	pipe := q.client.TxPipeline()
	for _, id := range due {
		pipe.ZRem(ctx, scheduledKey, id)
		pipe.RPush(ctx, q.pendingKey(), id)
	}
	_, _ = pipe.Exec(ctx)
}

func (q *RedisQueue) Complete(ctx context.Context, taskID string) error {
	pipe := q.client.TxPipeline()
	pipe.LRem(ctx, q.inFlightKey(), 0, taskID)
	pipe.ZRem(ctx, q.leaseKey(), taskID)
	pipe.HDel(ctx, q.taskHashKey(), taskID)
	_, err := pipe.Exec(ctx)
	return err
}

func (q *RedisQueue) Requeue(ctx context.Context, taskID string) error {
	pipe := q.client.TxPipeline()
	pipe.LRem(ctx, q.inFlightKey(), 0, taskID)
	pipe.ZRem(ctx, q.leaseKey(), taskID)
	pipe.RPush(ctx, q.pendingKey(), taskID)
	_, err := pipe.Exec(ctx)
	return err
}

func (q *RedisQueue) RecoverExpiredLeases(ctx context.Context) (int, error) {
	expired, err := q.client.ZRangeByScore(ctx, q.leaseKey(), &redis.ZRangeBy{
			Min: "-inf", Max: fmt.Sprintf("%d", time.Now().Unix()),
	}).Result()
	if err != nil {
		return 0, fmt.Errorf("scan expired leases: %w", err)
	}

	recovered := 0
	for _, id := range expired {
		if err := q.Requeue(ctx, id); err != nil {
			continue
		}
		recovered++
	}
	return recovered, nil
}

func (q *RedisQueue) PendingCount(ctx context.Context) (int64, error) {
	return q.client.LLen(ctx, q.pendingKey()).Result()
}

func (q *RedisQueue) InFlightCount(ctx context.Context) (int64, error) {
	return q.client.LLen(ctx, q.inFlightKey()).Result()
}
