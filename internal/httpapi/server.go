package httpapi

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"voltcore/internal/authcache"
	"voltcore/internal/coordinator"
	"voltcore/internal/ledger"
	"voltcore/internal/registry"
	"voltcore/internal/repository"
)

// Server exposes the operator API: fleet inspection, session history, and
// centrally initiated commands.
type Server struct {
	coordinator *coordinator.Coordinator
	registry    *registry.Registry
	ledger      *ledger.Ledger
	auth        *authcache.Cache
	points      *repository.ChargePointRepository
	connectors  *repository.ConnectorRepository
	sessions    *repository.SessionRepository
	logger      *zap.Logger

	server *http.Server
}

// NewServer builds the operator API server.
func NewServer(addr string, coord *coordinator.Coordinator, reg *registry.Registry, led *ledger.Ledger, auth *authcache.Cache, points *repository.ChargePointRepository, connectors *repository.ConnectorRepository, sessions *repository.SessionRepository, wsHandler http.HandlerFunc, logger *zap.Logger) *Server {
	s := &Server{
		coordinator: coord,
		registry:    reg,
		ledger:      led,
		auth:        auth,
		points:      points,
		connectors:  connectors,
		sessions:    sessions,
		logger:      logger,
	}

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)

	r.Get("/ocpp/{chargePointId}", wsHandler)

	r.Route("/v1", func(r chi.Router) {
		r.Get("/charge-points", s.ListChargePoints)
		r.Get("/charge-points/{chargePointId}", s.GetChargePoint)
		r.Get("/charge-points/{chargePointId}/connectors", s.ListConnectors)
		r.Get("/sessions", s.ListSessions)
		r.Get("/sessions/{transactionId}", s.GetSession)
		r.Get("/stats", s.Stats)

		r.Post("/charge-points/{chargePointId}/remote-start", s.RemoteStart)
		r.Post("/charge-points/{chargePointId}/remote-stop", s.RemoteStop)
		r.Post("/charge-points/{chargePointId}/availability", s.ChangeAvailability)
		r.Post("/charge-points/{chargePointId}/reset", s.Reset)
		r.Post("/charge-points/{chargePointId}/clear-cache", s.ClearCache)
	})

	r.Handle("/metrics", promhttp.Handler())
	r.Get("/health", func(w http.ResponseWriter, r *http.Request) { w.WriteHeader(http.StatusOK) })

	s.server = &http.Server{
		Addr:         addr,
		Handler:      r,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}
	return s
}

// Run starts the HTTP server and blocks until ctx is cancelled or the
// listener fails.
func (s *Server) Run(ctx context.Context) error {
	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("starting http server", zap.String("addr", s.server.Addr))
		if err := s.server.ListenAndServe(); err != nil {
			errCh <- err
			return
		}
		errCh <- nil
	}()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return s.server.Shutdown(shutdownCtx)
	case err := <-errCh:
		if err == nil || errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	}
}
