package httpapi

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"voltcore/internal/coordinator"
	"voltcore/internal/ocpp/protocol"
)

type commandResponse struct {
	Status string `json:"status"`
}

type remoteStartRequest struct {
	IdTag       string `json:"idTag"`
	ConnectorID *int   `json:"connectorId,omitempty"`
}

// RemoteStart asks a charge point to begin a transaction.
func (s *Server) RemoteStart(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "chargePointId")

	var req remoteStartRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.IdTag == "" {
		http.Error(w, "idTag is required", http.StatusBadRequest)
		return
	}

	status, err := s.coordinator.SendRemoteStart(r.Context(), id, req.IdTag, req.ConnectorID)
	if err != nil {
		s.writeCommandError(w, id, err)
		return
	}
	writeJSON(w, http.StatusOK, commandResponse{Status: status})
}

type remoteStopRequest struct {
	TransactionID int64 `json:"transactionId"`
}

// RemoteStop asks a charge point to end a transaction. The session closes
// only when the device reports the stop itself.
func (s *Server) RemoteStop(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "chargePointId")

	var req remoteStopRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.TransactionID == 0 {
		http.Error(w, "transactionId is required", http.StatusBadRequest)
		return
	}

	status, err := s.coordinator.SendRemoteStop(r.Context(), id, req.TransactionID)
	if err != nil {
		s.writeCommandError(w, id, err)
		return
	}
	writeJSON(w, http.StatusOK, commandResponse{Status: status})
}

type changeAvailabilityRequest struct {
	ConnectorID int    `json:"connectorId"`
	Type        string `json:"type"`
}

// ChangeAvailability switches a connector between operative and inoperative.
func (s *Server) ChangeAvailability(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "chargePointId")

	var req changeAvailabilityRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid json", http.StatusBadRequest)
		return
	}
	if req.Type != protocol.AvailabilityTypeOperative && req.Type != protocol.AvailabilityTypeInoperative {
		http.Error(w, "type must be Operative or Inoperative", http.StatusBadRequest)
		return
	}

	status, err := s.coordinator.SendChangeAvailability(r.Context(), id, req.ConnectorID, req.Type)
	if err != nil {
		s.writeCommandError(w, id, err)
		return
	}
	writeJSON(w, http.StatusOK, commandResponse{Status: status})
}

type resetRequest struct {
	Type string `json:"type"`
}

// Reset asks a charge point to reboot.
func (s *Server) Reset(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "chargePointId")

	var req resetRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid json", http.StatusBadRequest)
		return
	}
	if req.Type != protocol.ResetHard && req.Type != protocol.ResetSoft {
		http.Error(w, "type must be Hard or Soft", http.StatusBadRequest)
		return
	}

	status, err := s.coordinator.SendReset(r.Context(), id, req.Type)
	if err != nil {
		s.writeCommandError(w, id, err)
		return
	}
	writeJSON(w, http.StatusOK, commandResponse{Status: status})
}

// ClearCache drops cached authorization verdicts and forwards the clear to
// the device.
func (s *Server) ClearCache(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "chargePointId")

	status, err := s.coordinator.ClearAuthCache(r.Context(), id)
	if err != nil {
		s.writeCommandError(w, id, err)
		return
	}
	writeJSON(w, http.StatusOK, commandResponse{Status: status})
}

func (s *Server) writeCommandError(w http.ResponseWriter, chargePointID string, err error) {
	switch {
	case errors.Is(err, coordinator.ErrUnreachable):
		http.Error(w, "charge point is not connected", http.StatusConflict)
	case errors.Is(err, coordinator.ErrBusy):
		http.Error(w, "another command is pending for this charge point", http.StatusConflict)
	case errors.Is(err, coordinator.ErrTimeout):
		http.Error(w, "charge point did not reply in time", http.StatusGatewayTimeout)
	case errors.Is(err, coordinator.ErrNotFound):
		http.Error(w, "transaction not found", http.StatusNotFound)
	default:
		s.logger.Error("command failed",
			zap.String("charge_point_id", chargePointID), zap.Error(err))
		http.Error(w, "command failed", http.StatusInternalServerError)
	}
}
