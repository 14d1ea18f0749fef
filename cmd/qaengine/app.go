package main

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/joho/godotenv"
	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"

	"github.com/calliq/qaengine/pkg/api"
	"github.com/calliq/qaengine/pkg/asr"
	"github.com/calliq/qaengine/pkg/config"
	"github.com/calliq/qaengine/pkg/database"
	"github.com/calliq/qaengine/pkg/embedding"
	"github.com/calliq/qaengine/pkg/llmeval"
	"github.com/calliq/qaengine/pkg/masking"
	"github.com/calliq/qaengine/pkg/objectstore"
	"github.com/calliq/qaengine/pkg/pipeline"
	"github.com/calliq/qaengine/pkg/queue"
	"github.com/calliq/qaengine/pkg/telemetry"
)

// app holds every collaborator shared across the serve/compile/sandbox
// commands, built once from the same configuration each command reads.
type app struct {
	cfg       *config.Config
	db        *database.Client
	store     *database.Client
	queue     queue.Queue
	pipeline  *pipeline.Pipeline
	handlers  map[queue.TaskKind]queue.Handler
	telemetry *telemetry.Server
}

// buildApp loads configuration and wires every collaborator. Commands that
// only need a subset (compile, sandbox) still build the whole thing; the
// cost is a handful of client constructors, not network calls, aside from
// the database connection and migration check.
func buildApp(ctx context.Context) (*app, error) {
	envPath := filepath.Join(configDir, ".env")
	if err := godotenv.Load(envPath); err != nil {
		fmt.Fprintf(os.Stderr, "warning: could not load %s: %v\n", envPath, err)
	}

	cfg, err := config.Initialize(ctx, configDir)
	if err != nil {
		return nil, fmt.Errorf("initialize configuration: %w", err)
	}

	dbCfg, err := database.LoadConfigFromEnv()
	if err != nil {
		return nil, fmt.Errorf("load database config: %w", err)
	}
	dbClient, err := database.NewClient(ctx, dbCfg)
	if err != nil {
		return nil, fmt.Errorf("connect to database: %w", err)
	}

	maskingService, err := masking.NewService()
	if err != nil {
		return nil, fmt.Errorf("build masking service: %w", err)
	}

	objectStore, err := buildObjectStore(ctx)
	if err != nil {
		return nil, fmt.Errorf("build object store: %w", err)
	}

	asrClient := asr.NewClient(cfg.ASR.Endpoint, objectStore)

	embeddingProvider := embedding.NewHTTPProvider(cfg.Embedding.Endpoint, cfg.Embedding.RequestTimeout)
	embeddingService := embedding.NewService(embeddingProvider, cfg.Embedding.RequestTimeout)

	llmProvider := buildLLMProvider(cfg.LLM)

	p := &pipeline.Pipeline{
		Store:    dbClient,
		ASR:      asrClient,
		Embedder: embeddingService,
		LLM:      llmProvider,
		Masker:   maskingService,
		Defaults: cfg.Defaults,
		Timeouts: cfg.Timeouts,
	}

	redisClient := redis.NewClient(&redis.Options{Addr: getEnv("REDIS_ADDR", "localhost:6379")})
	q := queue.NewRedisQueue(redisClient, "qaengine:queue")

	handlers := map[queue.TaskKind]queue.Handler{
		queue.TaskKindCompileBlueprint:  queue.CompileHandler(dbClient),
		queue.TaskKindEvaluateRecording: queue.EvaluateHandler(p),
		queue.TaskKindSandboxEvaluate:   queue.SandboxHandler(dbClient, p),
	}

	telemetryLog := logrus.New()
	telemetryServer := telemetry.NewServer(getEnv("TELEMETRY_PORT", "9090"), telemetryLog)

	return &app{
		cfg:       cfg,
		db:        dbClient,
		store:     dbClient,
		queue:     q,
		pipeline:  p,
		handlers:  handlers,
		telemetry: telemetryServer,
	}, nil
}

func (a *app) Close() {
	_ = a.db.Close()
}

// buildObjectStore builds the S3-compatible signed-URL collaborator, or
// returns a nil asr.ObjectStore when no bucket is configured (sandbox runs
// supplying a transcript directly never need it). Returning the interface
// type directly, rather than a *objectstore.Store, avoids handing asr.Client
// a non-nil interface wrapping a nil pointer.
func buildObjectStore(ctx context.Context) (asr.ObjectStore, error) {
	bucket := os.Getenv("OBJECT_STORE_BUCKET")
	if bucket == "" {
		return nil, nil
	}
	return objectstore.New(ctx, bucket)
}

// buildLLMProvider adapts the configured LLM provider to llmeval.Provider.
// Only Anthropic is wired today; any other configured provider name falls
// back to it rather than failing startup; Generate calls then return the
// model's own error for a bad model string.
func buildLLMProvider(cfg *config.LLMProviderConfig) llmeval.Provider {
	apiKey := os.Getenv(cfg.APIKeyEnv)
	return llmeval.NewAnthropicProvider(apiKey, anthropic.Model(cfg.Model))
}

// newServer builds the api.Server wired against this app's collaborators
// and the WorkerPool the caller passes in.
func (a *app) newServer(pool *queue.WorkerPool) *api.Server {
	return api.NewServer(api.ServerConfig{
			Store:    a.store,
			DB:       a.db.DB(),
			Queue:    a.queue,
			Pool:     pool,
			Pipeline: a.pipeline,
	})
}
