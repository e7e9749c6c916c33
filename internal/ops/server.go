package ops

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/myhibachi/hibachi-backend/pkg/config"
	"github.com/myhibachi/hibachi-backend/pkg/logger"
)

const readinessTimeout = 2 * time.Second

// Pinger is a dependency whose connectivity gates readiness.
type Pinger interface {
	Ping(ctx context.Context) error
}

// ServerParams configure the operational HTTP server.
type ServerParams struct {
	Config   *config.Config
	Logger   *logger.Logger
	Registry *prometheus.Registry
	DB       Pinger
	Redis    Pinger
}

// Server exposes liveness, readiness, and metrics endpoints for the worker.
// It carries no dispatch traffic.
type Server struct {
	httpServer *http.Server
	logg       *logger.Logger
}

// NewServer builds the ops server on the configured port.
func NewServer(params ServerParams) (*Server, error) {
	if params.Config == nil {
		return nil, fmt.Errorf("config required")
	}
	if params.Logger == nil {
		return nil, fmt.Errorf("logger required")
	}

	r := chi.NewRouter()
	r.Get("/healthz", healthz(params.Config))
	r.Get("/readyz", readyz(params.Logger, params.DB, params.Redis))
	if params.Registry != nil {
		r.Handle("/metrics", promhttp.HandlerFor(params.Registry, promhttp.HandlerOpts{}))
	}

	return &Server{
		httpServer: &http.Server{
			Addr:              ":" + params.Config.Ops.Port,
			Handler:           r,
			ReadHeaderTimeout: 5 * time.Second,
		},
		logg: params.Logger,
	}, nil
}

// Run serves until Shutdown is called.
func (s *Server) Run() error {
	if err := s.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return err
	}
	return nil
}

// Shutdown drains in-flight requests.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.httpServer.Shutdown(ctx)
}

// Addr returns the listen address.
func (s *Server) Addr() string {
	return s.httpServer.Addr
}

func healthz(cfg *config.Config) http.HandlerFunc {
	return func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{
			"status": "live",
			"env":    cfg.App.Env,
		})
	}
}

func readyz(logg *logger.Logger, pingers ...Pinger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, cancel := context.WithTimeout(r.Context(), readinessTimeout)
		defer cancel()

		for _, p := range pingers {
			if p == nil {
				continue
			}
			if err := p.Ping(ctx); err != nil {
				logg.Error(ctx, "readiness probe failed", err)
				writeJSON(w, http.StatusServiceUnavailable, map[string]string{"status": "unavailable"})
				return
			}
		}
		writeJSON(w, http.StatusOK, map[string]string{"status": "ready"})
	}
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}
