package queue

import (
	"context"
	"errors"
	"log/slog"
	"math/rand/v2"
	"sync"
	"time"

	"github.com/calliq/qaengine/pkg/telemetry"
)

// WorkerStatus represents the current state of a worker.
type WorkerStatus string

const (
	WorkerStatusIdle    WorkerStatus = "idle"
	WorkerStatusWorking WorkerStatus = "working"
)

// Worker is a single queue worker that polls for and processes tasks.
type Worker struct {
	id       string
	podID    string
	queue    Queue
	handlers map[TaskKind]Handler
	config   PollConfig
	stopCh   chan struct{}
	stopOnce sync.Once
	wg       sync.WaitGroup

	mu             sync.RWMutex
	status         WorkerStatus
	currentTaskID  string
	currentKind    string
	tasksProcessed int
	lastActivity   time.Time
}

// PollConfig bounds worker polling and retry behavior.
type PollConfig struct {
	ClaimTimeout       time.Duration
	PollIntervalJitter time.Duration
	MaxAttempts        int
}

// NewWorker creates a new queue worker.
func NewWorker(id, podID string, q Queue, handlers map[TaskKind]Handler, cfg PollConfig) *Worker {
	return &Worker{
		id:           id,
		podID:        podID,
		queue:        q,
		handlers:     handlers,
		config:       cfg,
		stopCh:       make(chan struct{}),
		status:       WorkerStatusIdle,
		lastActivity: time.Now(),
	}
}

// Start begins the worker polling loop in a goroutine.
func (w *Worker) Start(ctx context.Context) {
	w.wg.Add(1)
	go w.run(ctx)
}

// Stop signals the worker to stop and waits for it to finish.
func (w *Worker) Stop() {
	w.stopOnce.Do(func() { close(w.stopCh) })
	w.wg.Wait()
}

// Health returns the current worker health status.
func (w *Worker) Health() WorkerHealth {
	w.mu.RLock()
	defer w.mu.RUnlock()
	return WorkerHealth{
		ID:              w.id,
		Status:          string(w.status),
		CurrentTaskID:   w.currentTaskID,
		CurrentTaskKind: w.currentKind,
		TasksProcessed:  w.tasksProcessed,
		LastActivity:    w.lastActivity,
	}
}

func (w *Worker) run(ctx context.Context) {
	defer w.wg.Done()

	log := slog.With("worker_id", w.id, "pod_id", w.podID)
	log.Info("queue worker started")

	for {
		select {
		case <-w.stopCh:
			log.Info("queue worker shutting down")
			return
		case <-ctx.Done():
			log.Info("context cancelled, queue worker shutting down")
			return
		default:
			if err := w.pollAndProcess(ctx); err != nil {
				if errors.Is(err, ErrNoTasksAvailable) {
					continue
				}
				log.Error("error processing task", "error", err)
				w.sleep(w.jitteredBackoff())
			}
		}
	}
}

func (w *Worker) sleep(d time.Duration) {
	select {
	case <-w.stopCh:
	case <-time.After(d):
	}
}

func (w *Worker) pollAndProcess(ctx context.Context) error {
	task, err := w.queue.Claim(ctx, w.config.ClaimTimeout)
	if err != nil {
		return err
	}

	log := slog.With("task_id", task.ID, "task_kind", task.Kind, "worker_id", w.id)
	log.Info("task claimed")

	w.setStatus(WorkerStatusWorking, task.ID, string(task.Kind))
	defer w.setStatus(WorkerStatusIdle, "", "")

	handler, ok := w.handlers[task.Kind]
	if !ok {
		log.Error("no handler registered for task kind")
		telemetry.RecordQueueProcessed(string(task.Kind), "dropped")
		return w.queue.Complete(ctx, task.ID) // drop: retrying won't help
	}

	if err := handler(ctx, task.Payload); err != nil {
		if task.Attempts >= w.config.MaxAttempts {
			log.Error("task failed permanently, dead-lettering", "attempts", task.Attempts, "error", err)
			telemetry.RecordQueueProcessed(string(task.Kind), "failed")
			return w.queue.Complete(ctx, task.ID)
		}
		log.Warn("task handler failed, requeueing", "attempts", task.Attempts, "error", err)
		telemetry.RecordQueueProcessed(string(task.Kind), "requeued")
		return w.queue.Requeue(ctx, task.ID)
	}

	if err := w.queue.Complete(ctx, task.ID); err != nil {
		return err
	}

	w.mu.Lock()
	w.tasksProcessed++
	w.mu.Unlock()

	telemetry.RecordQueueProcessed(string(task.Kind), "succeeded")
	log.Info("task completed")
	return nil
}

func (w *Worker) jitteredBackoff() time.Duration {
	base := time.Second
	jitter := w.config.PollIntervalJitter
	if jitter <= 0 {
		return base
	}
	offset := time.Duration(rand.Int64N(int64(2 * jitter)))
	return base - jitter + offset
}

func (w *Worker) setStatus(status WorkerStatus, taskID, kind string) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.status = status
	w.currentTaskID = taskID
	w.currentKind = kind
	w.lastActivity = time.Now()
}
