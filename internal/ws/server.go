package ws

import (
	"context"
	"net/http"
	"strings"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"voltcore/internal/metrics"
	"voltcore/internal/models"
	"voltcore/internal/registry"
)

// ReachabilityStore persists charge point reachability transitions.
type ReachabilityStore interface {
	UpdateReachability(ctx context.Context, chargePointID string, state models.Reachability) error
}

// Server upgrades HTTP connections to WebSockets for OCPP. The charge point
// identifier is the last segment of the request path.
type Server struct {
	registry     *registry.Registry
	processor    CallProcessor
	points       ReachabilityStore
	writeTimeout time.Duration
	logger       *zap.Logger
	upgrader     websocket.Upgrader
}

// NewServer builds ws server.
func NewServer(reg *registry.Registry, processor CallProcessor, points ReachabilityStore, writeTimeout time.Duration, logger *zap.Logger) *Server {
	return &Server{
		registry:     reg,
		processor:    processor,
		points:       points,
		writeTimeout: writeTimeout,
		logger:       logger,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			Subprotocols:    []string{"ocpp1.6"},
			CheckOrigin: func(r *http.Request) bool {
				return true
			},
		},
	}
}

// HandleWS is the HTTP handler for the /ocpp/{chargePointID} endpoint.
func (s *Server) HandleWS(w http.ResponseWriter, r *http.Request) {
	chargePointID := chargePointIDFromPath(r.URL.Path)
	if chargePointID == "" {
		http.Error(w, "charge point id is required", http.StatusBadRequest)
		return
	}

	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.Error("websocket upgrade failed", zap.Error(err))
		return
	}

	ctx, cancel := context.WithCancel(context.Background())
	connection := NewConnection(chargePointID, conn, s.processor, s.writeTimeout, s.logger, func(id string, closed *Connection) {
		// A superseded handle closing late must not evict its successor.
		s.registry.Unregister(id, closed)
		if !s.registry.Connected(id) {
			metrics.ConnectedChargePoints.Set(float64(s.registry.Count()))
			if err := s.points.UpdateReachability(context.Background(), id, models.ReachabilityOffline); err != nil {
				s.logger.Warn("failed to mark charge point offline",
					zap.String("charge_point_id", id), zap.Error(err))
			}
			s.logger.Info("charge point disconnected", zap.String("charge_point_id", id))
		}
		cancel()
	})

	s.registry.Register(chargePointID, connection)
	metrics.ConnectedChargePoints.Set(float64(s.registry.Count()))
	if err := s.points.UpdateReachability(ctx, chargePointID, models.ReachabilityOnline); err != nil {
		s.logger.Warn("failed to mark charge point online",
			zap.String("charge_point_id", chargePointID), zap.Error(err))
	}
	s.logger.Info("charge point connected", zap.String("charge_point_id", chargePointID))

	go connection.Start(ctx)
}

func chargePointIDFromPath(path string) string {
	parts := strings.Split(strings.Trim(path, "/"), "/")
	if len(parts) < 2 {
		return ""
	}
	return parts[len(parts)-1]
}
