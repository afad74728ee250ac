package metrics

import (
	"context"
	"net"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"gosyncmovies/internal/utils"
)

// Server exposes /metrics on its own listener. It runs under the worker's supervisor.
type Server struct {
	addr string
}

// NewServer creates a metrics server for addr.
func NewServer(addr string) *Server {
	return &Server{addr: addr}
}

func (s *Server) String() string {
	return "metrics"
}

// Routes returns the metrics handler mounted at /metrics.
func (s *Server) Routes() http.Handler {
	r := chi.NewRouter()
	r.Handle("/metrics", Handler())
	return r
}

// Serve listens until ctx is done.
func (s *Server) Serve(ctx context.Context) error {
	log := utils.Component("metrics")
	srv := &http.Server{
		Addr:              s.addr,
		Handler:           s.Routes(),
		ReadHeaderTimeout: 5 * time.Second,
		BaseContext:       func(net.Listener) context.Context { return ctx },
	}

	errCh := make(chan error, 1)
	go func() {
		log.Info().Str("addr", s.addr).Msg("metrics listening")
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
		return ctx.Err()
	}
}
