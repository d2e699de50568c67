package httpapi

import (
	"encoding/json"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"voltcore/internal/models"
)

type chargePointView struct {
	ID              string    `json:"chargePointId"`
	Vendor          string    `json:"vendor,omitempty"`
	Model           string    `json:"model,omitempty"`
	SerialNumber    string    `json:"serialNumber,omitempty"`
	FirmwareVersion string    `json:"firmwareVersion,omitempty"`
	Reachability    string    `json:"reachability"`
	Connected       bool      `json:"connected"`
	LastSeen        time.Time `json:"lastSeen"`
}

func (s *Server) chargePointView(cp models.ChargePoint) chargePointView {
	return chargePointView{
		ID:              cp.ID,
		Vendor:          cp.Vendor,
		Model:           cp.Model,
		SerialNumber:    cp.SerialNumber,
		FirmwareVersion: cp.FirmwareVersion,
		Reachability:    string(cp.Reachability),
		Connected:       s.registry.Connected(cp.ID),
		LastSeen:        cp.LastSeen,
	}
}

// ListChargePoints returns every known charge point with its live state.
func (s *Server) ListChargePoints(w http.ResponseWriter, r *http.Request) {
	points, err := s.points.List(r.Context())
	if err != nil {
		s.logger.Error("failed to list charge points", zap.Error(err))
		http.Error(w, "storage error", http.StatusInternalServerError)
		return
	}

	views := make([]chargePointView, 0, len(points))
	for _, cp := range points {
		views = append(views, s.chargePointView(cp))
	}
	writeJSON(w, http.StatusOK, views)
}

// GetChargePoint returns one charge point.
func (s *Server) GetChargePoint(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "chargePointId")
	cp, err := s.points.Find(r.Context(), id)
	if err != nil {
		s.logger.Error("failed to find charge point", zap.String("charge_point_id", id), zap.Error(err))
		http.Error(w, "storage error", http.StatusInternalServerError)
		return
	}
	if cp == nil {
		http.NotFound(w, r)
		return
	}
	writeJSON(w, http.StatusOK, s.chargePointView(*cp))
}

// ListConnectors returns the connectors of one charge point.
func (s *Server) ListConnectors(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "chargePointId")
	connectors, err := s.connectors.ListByChargePoint(r.Context(), id)
	if err != nil {
		s.logger.Error("failed to list connectors", zap.String("charge_point_id", id), zap.Error(err))
		http.Error(w, "storage error", http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusOK, connectors)
}

// ListSessions returns session history; ?active=true narrows to in-progress
// transactions.
func (s *Server) ListSessions(w http.ResponseWriter, r *http.Request) {
	activeOnly := r.URL.Query().Get("active") == "true"
	sessions, err := s.sessions.List(r.Context(), activeOnly)
	if err != nil {
		s.logger.Error("failed to list sessions", zap.Error(err))
		http.Error(w, "storage error", http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusOK, sessions)
}

// GetSession returns one session by transaction id.
func (s *Server) GetSession(w http.ResponseWriter, r *http.Request) {
	txID, err := strconv.ParseInt(chi.URLParam(r, "transactionId"), 10, 64)
	if err != nil {
		http.Error(w, "invalid transaction id", http.StatusBadRequest)
		return
	}

	session, err := s.sessions.FindByTransaction(r.Context(), txID)
	if err != nil {
		s.logger.Error("failed to find session", zap.Int64("transaction_id", txID), zap.Error(err))
		http.Error(w, "storage error", http.StatusInternalServerError)
		return
	}
	if session == nil {
		http.NotFound(w, r)
		return
	}
	writeJSON(w, http.StatusOK, session)
}

// Stats returns live counters.
func (s *Server) Stats(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"connectedChargePoints": s.registry.Count(),
		"activeTransactions":    s.ledger.ActiveCount(),
	})
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}
