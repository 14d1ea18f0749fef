package queue

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"github.com/calliq/qaengine/pkg/config"
	"github.com/calliq/qaengine/pkg/telemetry"
)

// WorkerPool manages a pool of queue workers draining a single Queue.
type WorkerPool struct {
	podID string
	queue Queue
	config *config.QueueConfig
	handlers map[TaskKind]Handler
	workers []*Worker
	stopCh chan struct{}
	stopOnce sync.Once
	wg sync.WaitGroup
	started bool

	orphans orphanState
}

// NewWorkerPool creates a new worker pool. handlers maps each task kind
// to the function that processes it ("task handlers are the
// same function invoked in-process for synchronous flows").
func NewWorkerPool(podID string, q Queue, cfg *config.QueueConfig, handlers map[TaskKind]Handler) *WorkerPool {
	return &WorkerPool{
		podID: podID,
		queue: q,
		config: cfg,
		handlers: handlers,
		workers: make([]*Worker, 0, cfg.WorkerCount),
		stopCh: make(chan struct{}),
	}
}

// Start spawns worker goroutines and the orphan-lease-recovery background
// task. Safe to call multiple times; subsequent calls are no-ops.
func (p *WorkerPool) Start(ctx context.Context) {
	if p.started {
		slog.Warn("worker pool already started, ignoring duplicate start call", "pod_id", p.podID)
		return
	}
	p.started = true

	slog.Info("starting queue worker pool", "pod_id", p.podID, "worker_count", p.config.WorkerCount)

	pollCfg:= PollConfig{
		ClaimTimeout: p.config.PollInterval,
		PollIntervalJitter: p.config.PollIntervalJitter,
		MaxAttempts: 3,
	}

	for i:= 0; i < p.config.WorkerCount; i++ {
		workerID:= fmt.Sprintf("%s-worker-%d", p.podID, i)
		worker:= NewWorker(workerID, p.podID, p.queue, p.handlers, pollCfg)
		p.workers = append(p.workers, worker)
		worker.Start(ctx)
	}

	p.wg.Add(1)
	go func() {
		defer p.wg.Done()
		p.runOrphanDetection(ctx)
	}()

	slog.Info("queue worker pool started")
}

// Stop signals all workers to stop and waits for them to finish their
// current task (graceful shutdown).
func (p *WorkerPool) Stop() {
	slog.Info("stopping queue worker pool gracefully")

	for _, worker:= range p.workers {
		worker.Stop()
	}

	p.stopOnce.Do(func() { close(p.stopCh) })
	p.wg.Wait()

	slog.Info("queue worker pool stopped gracefully")
}

// Health returns the current health status of the pool.
func (p *WorkerPool) Health() *PoolHealth {
	ctx:= context.Background()

	pending, errP:= p.queue.PendingCount(ctx)
	if errP != nil {
		slog.Error("failed to query pending task count for health check", "pod_id", p.podID, "error", errP)
	} else {
		telemetry.SetQueueDepth(float64(pending))
	}
	inFlight, errI:= p.queue.InFlightCount(ctx)
	if errI != nil {
		slog.Error("failed to query in-flight task count for health check", "pod_id", p.podID, "error", errI)
	}

	workerStats:= make([]WorkerHealth, len(p.workers))
	activeWorkers:= 0
	for i, worker:= range p.workers {
		stats:= worker.Health()
		workerStats[i] = stats
		if stats.Status == string(WorkerStatusWorking) {
			activeWorkers++
		}
	}

	p.orphans.mu.Lock()
	lastOrphanScan:= p.orphans.lastOrphanScan
	orphansRecovered:= p.orphans.orphansRecovered
	p.orphans.mu.Unlock()

	return &PoolHealth{
		IsHealthy: len(p.workers) > 0 && errP == nil && errI == nil,
		PodID: p.podID,
		ActiveWorkers: activeWorkers,
		TotalWorkers: len(p.workers),
		PendingTasks: pending,
		InFlightTasks: inFlight,
		WorkerStats: workerStats,
		LastOrphanScan: lastOrphanScan,
		OrphansRecovered: orphansRecovered,
	}
}
