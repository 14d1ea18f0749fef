package main

import (
	"context"
	"log"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/spf13/cobra"

	"github.com/calliq/qaengine/pkg/queue"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the HTTP API and background worker pool",
	RunE: func(cmd *cobra.Command, args []string) error {
		return runServe(cmd.Context())
	},
}

func runServe(ctx context.Context) error {
	gin.SetMode(ginMode)

	a, err := buildApp(ctx)
	if err != nil {
		return err
	}
	defer a.Close()

	podID := getEnv("POD_ID", "qaengine-0")
	pool := queue.NewWorkerPool(podID, a.queue, a.cfg.Queue, a.handlers)

	runCtx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	a.telemetry.StartAsync()
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := a.telemetry.Stop(shutdownCtx); err != nil {
			slog.Warn("telemetry server shutdown error", "error", err)
		}
	}()

	pool.Start(runCtx)
	defer pool.Stop()

	server := a.newServer(pool)

	slog.Info("starting qaengine HTTP server", "port", httpPort)
	if err := server.Start(runCtx, ":"+httpPort); err != nil {
		log.Printf("server stopped: %v", err)
		return err
	}
	return nil
}
