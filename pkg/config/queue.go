package config

import "time"

// QueueConfig contains job-orchestrator worker pool configuration.
// These values control how compile/evaluate/sandbox tasks are polled,
// claimed, and processed ( §5).
type QueueConfig struct {
	// WorkerCount is the number of worker goroutines per replica/pod.
	WorkerCount int `yaml:"worker_count"`

	// MaxConcurrentEvaluations is a global limit of concurrent evaluation
	// pipelines across all replicas. It is validated at load time, but
	// nothing outside this package reads it, so the limit is not enforced.
	MaxConcurrentEvaluations int `yaml:"max_concurrent_evaluations"`

	// PollInterval is the base interval for checking pending tasks.
	PollInterval time.Duration `yaml:"poll_interval"`

	// PollIntervalJitter is the random jitter added to PollInterval.
	// Actual interval: PollInterval ± PollIntervalJitter.
	PollIntervalJitter time.Duration `yaml:"poll_interval_jitter"`

	// EvaluationTimeout bounds a single evaluation pipeline run end to end.
	EvaluationTimeout time.Duration `yaml:"evaluation_timeout"`

	// GracefulShutdownTimeout is the max time to wait for active evaluations
	// to complete during shutdown.
	GracefulShutdownTimeout time.Duration `yaml:"graceful_shutdown_timeout"`

	// HeartbeatInterval is how often a worker refreshes its claimed task's
	// last-activity timestamp while processing.
	HeartbeatInterval time.Duration `yaml:"heartbeat_interval"`

	// OrphanDetectionInterval is how often to scan for orphaned evaluations
	// (claimed by a worker that has since died without updating status).
	OrphanDetectionInterval time.Duration `yaml:"orphan_detection_interval"`

	// OrphanThreshold is how long a task can go without a heartbeat before
	// it is considered orphaned and requeued.
	OrphanThreshold time.Duration `yaml:"orphan_threshold"`
}

// DefaultQueueConfig returns the built-in queue defaults.
func DefaultQueueConfig() *QueueConfig {
	return &QueueConfig{
		WorkerCount: 5,
		MaxConcurrentEvaluations: 5,
		PollInterval: 1 * time.Second,
		PollIntervalJitter: 500 * time.Millisecond,
		EvaluationTimeout: 15 * time.Minute,
		GracefulShutdownTimeout: 15 * time.Minute,
		HeartbeatInterval: 30 * time.Second,
		OrphanDetectionInterval: 5 * time.Minute,
		OrphanThreshold: 5 * time.Minute,
	}
}
