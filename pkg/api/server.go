package api

import (
	"context"
	stdsql "database/sql"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/calliq/qaengine/pkg/pipeline"
	"github.com/calliq/qaengine/pkg/queue"
)

// ServerConfig collects Server's collaborators. Pool may be nil, in which
// case /health reports no worker pool stats; a zero ShutdownTimeout means
// 30 seconds.
type ServerConfig struct {
	Store Store
	DB *stdsql.DB
	Queue queue.Queue
	Pool *queue.WorkerPool
	Pipeline *pipeline.Pipeline

	// ShutdownTimeout bounds how long Shutdown waits for in-flight
	// requests to drain.
	ShutdownTimeout time.Duration
}

// Server is the HTTP surface for the evaluation engine, built
// on gin middleware and routing.
type Server struct {
	router *gin.Engine
	httpServer *http.Server

	store Store
	db *stdsql.DB
	queue queue.Queue
	pool *queue.WorkerPool
	pipeline *pipeline.Pipeline

	compileHandler queue.Handler
	evaluateHandler queue.Handler
	sandboxHandler queue.Handler

	shutdownTimeout time.Duration
}

// NewServer builds the Server and registers every route.
func NewServer(cfg ServerConfig) *Server {
	router:= gin.New()
	router.Use(gin.Recovery(), requestLogger(), securityHeaders())

	shutdownTimeout:= cfg.ShutdownTimeout
	if shutdownTimeout == 0 {
		shutdownTimeout = 30 * time.Second
	}

	s:= &Server{
		router: router,
		store: cfg.Store,
		db: cfg.DB,
		queue: cfg.Queue,
		pool: cfg.Pool,
		pipeline: cfg.Pipeline,
		compileHandler: queue.CompileHandler(cfg.Store),
		evaluateHandler: queue.EvaluateHandler(cfg.Pipeline),
		sandboxHandler: queue.SandboxHandler(cfg.Store, cfg.Pipeline),
		shutdownTimeout: shutdownTimeout,
	}

	s.setupRoutes()
	return s
}

func (s *Server) setupRoutes() {
	s.router.GET("/health", s.health)

	blueprints:= s.router.Group("/blueprints")
	{
		blueprints.POST("", s.createBlueprint)
		blueprints.GET("", s.listBlueprints)
		blueprints.GET("/:id", s.getBlueprint)
		blueprints.PUT("/:id", s.updateBlueprint)
		blueprints.DELETE("/:id", s.archiveBlueprint)
		blueprints.POST("/:id/publish", s.publishBlueprint)
		blueprints.GET("/:id/publish-status/:job_id", s.publishStatus)
		blueprints.POST("/:id/sandbox-evaluate", s.sandboxEvaluate)
		blueprints.GET("/:id/sandbox-runs/:run_id", s.getSandboxRun)
	}

	recordings:= s.router.Group("/recordings")
	{
		recordings.POST("/:id/evaluate", s.evaluateRecording)
	}

	s.router.GET("/evaluations/:recording_id", s.getEvaluationByRecording)

	tasks:= s.router.Group("/tasks")
	{
		tasks.POST("/compile-blueprint", s.taskCompileBlueprint)
		tasks.POST("/sandbox-evaluate", s.taskSandboxEvaluate)
		tasks.POST("/process-recording", s.taskProcessRecording)
	}
}

// Router exposes the underlying gin engine, for tests that drive routes
// with httptest directly.
func (s *Server) Router() *gin.Engine {
	return s.router
}

// Start serves HTTP on addr until the context is cancelled or an
// unrecoverable listener error occurs.
func (s *Server) Start(ctx context.Context, addr string) error {
	s.httpServer = &http.Server{
		Addr: addr,
		Handler: s.router,
	}

	listener, err:= net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("listen on %s: %w", addr, err)
	}

	errCh:= make(chan error, 1)
	go func() {
		errCh <- s.httpServer.Serve(listener)
	}()

	select {
	case <-ctx.Done():
		return s.Shutdown(context.Background())
	case err:= <-errCh:
		if err != nil && err != http.ErrServerClosed {
			return err
		}
		return nil
	}
}

// Shutdown gracefully stops accepting new connections and drains
// in-flight requests within s.shutdownTimeout.
func (s *Server) Shutdown(ctx context.Context) error {
	if s.httpServer == nil {
		return nil
	}
	shutdownCtx, cancel:= context.WithTimeout(ctx, s.shutdownTimeout)
	defer cancel()
	return s.httpServer.Shutdown(shutdownCtx)
}
