package telemetry

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/sirupsen/logrus"
)

// Server exposes /metrics (Prometheus text exposition format) and /health
// on a dedicated port, independent of the main API server's gin router.
type Server struct {
	server *http.Server
	log    *logrus.Logger
}

// NewServer builds a telemetry Server listening on port. It does not start
// listening until StartAsync is called.
func NewServer(port string, logger *logrus.Logger) *Server {
	if logger == nil {
		logger = logrus.New()
	}

	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	mux.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusOK)
			_, _ = w.Write([]byte("OK"))
	})

	return &Server{
		server: &http.Server{
			Addr:    fmt.Sprintf(":%s", port),
			Handler: mux,
		},
		log: logger,
	}
}

// StartAsync starts the server in a background goroutine. Bind or listen
// errors are logged rather than returned, since there is no caller left to
// receive them once the goroutine has been launched.
func (s *Server) StartAsync() {
	go func() {
		if err := s.server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.log.WithError(err).Error("telemetry server stopped unexpectedly")
		}
	}()
}

// Stop gracefully shuts down the server, waiting up to ctx's deadline for
// in-flight scrapes to finish.
func (s *Server) Stop(ctx context.Context) error {
	return s.server.Shutdown(ctx)
}
