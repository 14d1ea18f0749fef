// Package queue implements the Job Orchestrator (C12): at-least-once
// task dispatch with task-level idempotency keys for compile, evaluate,
// and sandbox-evaluate jobs, plus the worker pool that drains them.
package queue

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"
)

// Sentinel errors for queue operations.
var (
	// ErrNoTasksAvailable indicates no pending tasks are in the queue.
	ErrNoTasksAvailable = errors.New("no tasks available")

	// ErrAtCapacity indicates the global concurrent task limit has been reached.
	ErrAtCapacity = errors.New("at capacity")

	// ErrUnknownTaskKind indicates no handler is registered for a task's kind.
	ErrUnknownTaskKind = errors.New("no handler registered for task kind")
)

// TaskKind identifies which task handler endpoint processes a task.
type TaskKind string

const (
	TaskKindCompileBlueprint TaskKind = "compile-blueprint"
	TaskKindEvaluateRecording TaskKind = "evaluate-recording"
	TaskKindSandboxEvaluate TaskKind = "sandbox-evaluate"
)

// CompileIdempotencyKey builds the task-level dedup key for a compile job
// ("compile-{blueprint_version_id}").
func CompileIdempotencyKey(blueprintVersionID string) string {
	return fmt.Sprintf("compile-%s", blueprintVersionID)
}

// EvaluateIdempotencyKey builds the task-level dedup key for an
// evaluation job ("evaluate-{recording_id}").
func EvaluateIdempotencyKey(recordingID string) string {
	return fmt.Sprintf("evaluate-%s", recordingID)
}

// SandboxIdempotencyKey builds the task-level dedup key for a sandbox
// job ("sandbox-{sandbox_run_id}").
func SandboxIdempotencyKey(sandboxRunID string) string {
	return fmt.Sprintf("sandbox-%s", sandboxRunID)
}

// Task is one unit of background work. Payload is the task-kind-specific
// JSON body documented on each *Payload type in handlers.go.
type Task struct {
	ID string `json:"id"`
	Kind TaskKind `json:"kind"`
	Payload json.RawMessage `json:"payload"`
	IdempotencyKey string `json:"idempotency_key"`
	Attempts int `json:"attempts"`
	EnqueuedAt time.Time `json:"enqueued_at"`
}

// Handler processes one task's payload. Returning an error causes the
// task to be requeued (up to MaxAttempts) or dead-lettered.
type Handler func(ctx context.Context, payload json.RawMessage) error

// Queue is the collaborator workers poll and producers enqueue onto.
// Implemented by RedisQueue.
type Queue interface {
	// Enqueue submits a task for processing. If idempotencyKey was
	// already seen (and not yet expired), Enqueue is a no-op and returns
	// the previously assigned task ID with deduped=true ( "Queue
	// idempotency").
	Enqueue(ctx context.Context, kind TaskKind, payload any, idempotencyKey string, delay time.Duration) (taskID string, deduped bool, err error)

	// Claim blocks up to timeout for the next available task.
	Claim(ctx context.Context, timeout time.Duration) (*Task, error)

	// Complete acknowledges successful processing, removing the task from
	// the in-flight set.
	Complete(ctx context.Context, taskID string) error

	// Requeue returns a claimed task to the pending list, for handler
	// failure or orphan recovery.
	Requeue(ctx context.Context, taskID string) error

	// RecoverExpiredLeases finds tasks whose claim lease has expired
	// (worker died without completing or requeuing) and moves them back
	// to pending. Returns how many were recovered.
	RecoverExpiredLeases(ctx context.Context) (int, error)

	// PendingCount reports how many tasks are waiting to be claimed.
	PendingCount(ctx context.Context) (int64, error)

	// InFlightCount reports how many tasks are claimed but not yet
	// completed.
	InFlightCount(ctx context.Context) (int64, error)
}

// PoolHealth contains health information for the entire worker pool.
type PoolHealth struct {
	IsHealthy bool `json:"is_healthy"`
	PodID string `json:"pod_id"`
	ActiveWorkers int `json:"active_workers"`
	TotalWorkers int `json:"total_workers"`
	PendingTasks int64 `json:"pending_tasks"`
	InFlightTasks int64 `json:"in_flight_tasks"`
	WorkerStats []WorkerHealth `json:"worker_stats"`
	LastOrphanScan time.Time `json:"last_orphan_scan"`
	OrphansRecovered int `json:"orphans_recovered"`
}

// WorkerHealth contains health information for a single worker.
type WorkerHealth struct {
	ID string `json:"id"`
	Status string `json:"status"` // "idle" or "working"
	CurrentTaskID string `json:"current_task_id,omitempty"`
	CurrentTaskKind string `json:"current_task_kind,omitempty"`
	TasksProcessed int `json:"tasks_processed"`
	LastActivity time.Time `json:"last_activity"`
}
