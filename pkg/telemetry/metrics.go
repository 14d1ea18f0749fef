// Package telemetry wires Prometheus metrics and OpenTelemetry tracing for
// the evaluation engine: pipeline stage durations, detection and LLM-eval
// call counts, queue throughput, and a /metrics + /health server.
package telemetry

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// EvaluationsProcessedTotal counts completed recording evaluations.
	EvaluationsProcessedTotal = promauto.NewCounter(prometheus.CounterOpts{
			Name: "evaluations_processed_total",
			Help: "Total number of recording evaluations completed.",
	})

	// PipelineStageDuration tracks how long each pipeline stage takes.
	PipelineStageDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "pipeline_stage_duration_seconds",
			Help:    "Duration of each evaluation pipeline stage in seconds.",
			Buckets: prometheus.DefBuckets,
		}, []string{"stage"})

	// DetectionsTriggeredTotal counts detections that fired, by detector
	// label; the pipeline uses the detected step's id as the label.
	DetectionsTriggeredTotal = promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "detections_triggered_total",
			Help: "Total number of detections triggered, by detector.",
		}, []string{"detector"})

	// RulesEvaluatedTotal counts compliance rule evaluations of every rule
	// kind by outcome (pass/fail).
	RulesEvaluatedTotal = promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "rules_evaluated_total",
			Help: "Total number of rule evaluations, by outcome.",
		}, []string{"outcome"})

	// LLMEvalCallsTotal counts LLM evaluation calls per provider.
	LLMEvalCallsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "llm_eval_calls_total",
			Help: "Total number of LLM evaluation calls made, by provider.",
		}, []string{"provider"})

	// LLMEvalErrorsTotal counts LLM evaluation call failures per provider and error type.
	LLMEvalErrorsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "llm_eval_errors_total",
			Help: "Total number of LLM evaluation call failures, by provider and error type.",
		}, []string{"provider", "error_type"})

	// LLMEvalDuration tracks LLM evaluation call latency per provider.
	LLMEvalDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "llm_eval_duration_seconds",
			Help:    "Duration of LLM evaluation calls in seconds, by provider.",
			Buckets: prometheus.DefBuckets,
		}, []string{"provider"})

	// ASRTranscriptionDuration tracks transcription call latency.
	ASRTranscriptionDuration = promauto.NewHistogram(prometheus.HistogramOpts{
			Name:    "asr_transcription_duration_seconds",
			Help:    "Duration of ASR transcription calls in seconds.",
			Buckets: prometheus.DefBuckets,
	})

	// QueueTasksEnqueuedTotal counts tasks enqueued, by task kind.
	QueueTasksEnqueuedTotal = promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "queue_tasks_enqueued_total",
			Help: "Total number of tasks enqueued, by task kind.",
		}, []string{"kind"})

	// QueueTasksProcessedTotal counts tasks processed, by task kind and outcome.
	QueueTasksProcessedTotal = promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "queue_tasks_processed_total",
			Help: "Total number of tasks processed, by task kind and outcome.",
		}, []string{"kind", "outcome"})

	// QueueDepth reports the last observed queue depth.
	QueueDepth = promauto.NewGauge(prometheus.GaugeOpts{
			Name: "queue_depth",
			Help: "Last observed number of pending tasks in the queue.",
	})

	// EmbeddingCallsTotal counts embedding provider calls, by outcome.
	EmbeddingCallsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "embedding_calls_total",
			Help: "Total number of embedding provider calls, by outcome.",
		}, []string{"outcome"})
)

// RecordEvaluation increments the evaluations-processed counter.
func RecordEvaluation() {
	EvaluationsProcessedTotal.Inc()
}

// RecordPipelineStage records the duration of a completed pipeline stage.
func RecordPipelineStage(stage string, duration time.Duration) {
	PipelineStageDuration.WithLabelValues(stage).Observe(duration.Seconds())
}

// RecordDetection increments the detections-triggered counter for a detector.
func RecordDetection(detector string) {
	DetectionsTriggeredTotal.WithLabelValues(detector).Inc()
}

// RecordRuleEvaluation increments the rules-evaluated counter for an outcome.
func RecordRuleEvaluation(outcome string) {
	RulesEvaluatedTotal.WithLabelValues(outcome).Inc()
}

// RecordLLMCall records a completed LLM evaluation call and its duration.
func RecordLLMCall(provider string, duration time.Duration) {
	LLMEvalCallsTotal.WithLabelValues(provider).Inc()
	LLMEvalDuration.WithLabelValues(provider).Observe(duration.Seconds())
}

// RecordLLMError increments the LLM-eval error counter for a provider and error type.
func RecordLLMError(provider, errorType string) {
	LLMEvalErrorsTotal.WithLabelValues(provider, errorType).Inc()
}

// RecordASRTranscription records the duration of a completed transcription call.
func RecordASRTranscription(duration time.Duration) {
	ASRTranscriptionDuration.Observe(duration.Seconds())
}

// RecordQueueEnqueue increments the tasks-enqueued counter for a task kind.
func RecordQueueEnqueue(kind string) {
	QueueTasksEnqueuedTotal.WithLabelValues(kind).Inc()
}

// RecordQueueProcessed increments the tasks-processed counter for a task kind and outcome.
func RecordQueueProcessed(kind, outcome string) {
	QueueTasksProcessedTotal.WithLabelValues(kind, outcome).Inc()
}

// SetQueueDepth updates the last observed queue depth gauge.
func SetQueueDepth(depth float64) {
	QueueDepth.Set(depth)
}

// RecordEmbeddingCall increments the embedding-calls counter for an outcome.
func RecordEmbeddingCall(outcome string) {
	EmbeddingCallsTotal.WithLabelValues(outcome).Inc()
}

// Timer measures elapsed time against a fixed start, for call sites that
// want to record a duration without threading time.Now() through by hand.
type Timer struct {
	start time.Time
}

// NewTimer starts a timer.
func NewTimer() *Timer {
	return &Timer{start: time.Now()}
}

// Elapsed returns the time elapsed since the timer started.
func (t *Timer) Elapsed() time.Duration {
	return time.Since(t.start)
}

// RecordPipelineStage records the elapsed time as the named stage's duration.
func (t *Timer) RecordPipelineStage(stage string) {
	RecordPipelineStage(stage, t.Elapsed())
}

// RecordLLMCall records the elapsed time as a completed LLM call for the given provider.
func (t *Timer) RecordLLMCall(provider string) {
	RecordLLMCall(provider, t.Elapsed())
}
