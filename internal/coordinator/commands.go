package coordinator

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"voltcore/internal/metrics"
	"voltcore/internal/models"
	"voltcore/internal/ocpp"
	"voltcore/internal/ocpp/protocol"
	"voltcore/internal/registry"
)

var (
	// ErrUnreachable means the charge point has no live connection. Commands
	// fail fast instead of queueing.
	ErrUnreachable = errors.New("coordinator: charge point unreachable")
	// ErrBusy means another command is already in flight for the charge
	// point. One pending command per charge point at a time.
	ErrBusy = errors.New("coordinator: command already pending for charge point")
	// ErrTimeout means the command was sent but no correlated reply arrived
	// within the deadline. Distinct from a device-issued rejection.
	ErrTimeout = errors.New("coordinator: command timed out")
	// ErrNotFound means the referenced transaction or charge point is absent.
	ErrNotFound = errors.New("coordinator: not found")
)

// beginCommand reserves the single command slot for a charge point.
func (c *Coordinator) beginCommand(chargePointID, action string) error {
	c.pendingMu.Lock()
	defer c.pendingMu.Unlock()
	if inflight, ok := c.pending[chargePointID]; ok {
		c.logger.Warn("command refused, another pending",
			zap.String("charge_point_id", chargePointID),
			zap.String("inflight", inflight),
			zap.String("action", action))
		return ErrBusy
	}
	c.pending[chargePointID] = action
	return nil
}

func (c *Coordinator) endCommand(chargePointID string) {
	c.pendingMu.Lock()
	delete(c.pending, chargePointID)
	c.pendingMu.Unlock()
}

// call sends one command over the charge point's live connection and waits
// for the correlated reply or the command deadline.
func (c *Coordinator) call(ctx context.Context, chargePointID, action string, payload interface{}) (json.RawMessage, error) {
	conn, err := c.registry.Lookup(chargePointID)
	if errors.Is(err, registry.ErrNotConnected) {
		metrics.CommandsSent.WithLabelValues(action, "unreachable").Inc()
		return nil, ErrUnreachable
	}
	if err != nil {
		return nil, err
	}

	if err := c.beginCommand(chargePointID, action); err != nil {
		metrics.CommandsSent.WithLabelValues(action, "busy").Inc()
		return nil, err
	}
	defer c.endCommand(chargePointID)

	callCtx, cancel := context.WithTimeout(ctx, c.commandTimeout)
	defer cancel()

	reply, err := conn.Call(callCtx, action, payload)
	if errors.Is(err, context.DeadlineExceeded) {
		c.logger.Warn("command timed out",
			zap.String("charge_point_id", chargePointID),
			zap.String("action", action))
		metrics.CommandsSent.WithLabelValues(action, "timeout").Inc()
		return nil, ErrTimeout
	}
	if err != nil {
		metrics.CommandsSent.WithLabelValues(action, "error").Inc()
		return nil, fmt.Errorf("coordinator: %s: %w", action, err)
	}
	return reply, nil
}

// SendRemoteStart asks a charge point to start a transaction. The tag is
// validated first; an unauthorized tag is refused without touching the wire.
func (c *Coordinator) SendRemoteStart(ctx context.Context, chargePointID, idTag string, connectorID *int) (string, error) {
	verdict, err := c.auth.Resolve(ctx, idTag)
	if err != nil {
		return "", fmt.Errorf("coordinator: validate tag: %w", err)
	}
	if verdict != models.VerdictAccepted {
		c.logger.Info("remote start refused, tag not accepted",
			zap.String("charge_point_id", chargePointID),
			zap.String("id_tag", idTag),
			zap.String("verdict", string(verdict)))
		return protocol.StatusRejected, nil
	}

	reply, err := c.call(ctx, chargePointID, protocol.ActionRemoteStartTransaction, protocol.RemoteStartTransactionRequest{
		IdTag:       idTag,
		ConnectorID: connectorID,
	})
	if err != nil {
		return "", err
	}

	resp, err := ocpp.Decode[protocol.RemoteStartTransactionResponse](reply)
	if err != nil {
		return "", fmt.Errorf("coordinator: decode remote start reply: %w", err)
	}
	metrics.CommandsSent.WithLabelValues(protocol.ActionRemoteStartTransaction, outcomeLabel(resp.Status)).Inc()

	c.logger.Info("remote start answered",
		zap.String("charge_point_id", chargePointID),
		zap.String("id_tag", idTag),
		zap.String("status", resp.Status))
	return resp.Status, nil
}

// SendRemoteStop asks a charge point to stop a transaction. The session
// stays active until the device's own stop-transaction report arrives: the
// device is the authority over whether energy delivery actually ceased, so
// neither an Accepted reply nor a timeout closes the session here.
func (c *Coordinator) SendRemoteStop(ctx context.Context, chargePointID string, transactionID int64) (string, error) {
	if !c.ledger.HasTransaction(chargePointID, transactionID) {
		return "", fmt.Errorf("%w: transaction %d not active on %s", ErrNotFound, transactionID, chargePointID)
	}

	reply, err := c.call(ctx, chargePointID, protocol.ActionRemoteStopTransaction, protocol.RemoteStopTransactionRequest{
		TransactionID: transactionID,
	})
	if err != nil {
		return "", err
	}

	resp, err := ocpp.Decode[protocol.RemoteStopTransactionResponse](reply)
	if err != nil {
		return "", fmt.Errorf("coordinator: decode remote stop reply: %w", err)
	}
	metrics.CommandsSent.WithLabelValues(protocol.ActionRemoteStopTransaction, outcomeLabel(resp.Status)).Inc()

	c.logger.Info("remote stop answered",
		zap.String("charge_point_id", chargePointID),
		zap.Int64("transaction_id", transactionID),
		zap.String("status", resp.Status))
	return resp.Status, nil
}

// SendChangeAvailability changes a connector's availability. The stored
// availability is updated when the device accepts or schedules the change.
func (c *Coordinator) SendChangeAvailability(ctx context.Context, chargePointID string, connectorID int, availabilityType string) (string, error) {
	reply, err := c.call(ctx, chargePointID, protocol.ActionChangeAvailability, protocol.ChangeAvailabilityRequest{
		ConnectorID: connectorID,
		Type:        availabilityType,
	})
	if err != nil {
		return "", err
	}

	resp, err := ocpp.Decode[protocol.ChangeAvailabilityResponse](reply)
	if err != nil {
		return "", fmt.Errorf("coordinator: decode change availability reply: %w", err)
	}
	metrics.CommandsSent.WithLabelValues(protocol.ActionChangeAvailability, outcomeLabel(resp.Status)).Inc()

	if resp.Status == protocol.StatusAccepted || resp.Status == protocol.StatusScheduled {
		availability := models.AvailabilityOperative
		if availabilityType == protocol.AvailabilityTypeInoperative {
			availability = models.AvailabilityInoperative
		}
		if err := c.connectors.UpdateAvailability(ctx, chargePointID, connectorID, availability); err != nil {
			c.logger.Warn("failed to persist availability change",
				zap.String("charge_point_id", chargePointID),
				zap.Int("connector_id", connectorID), zap.Error(err))
		}
	}

	return resp.Status, nil
}

// SendReset asks a charge point to reboot.
func (c *Coordinator) SendReset(ctx context.Context, chargePointID, resetType string) (string, error) {
	reply, err := c.call(ctx, chargePointID, protocol.ActionReset, protocol.ResetRequest{Type: resetType})
	if err != nil {
		return "", err
	}

	resp, err := ocpp.Decode[protocol.ResetResponse](reply)
	if err != nil {
		return "", fmt.Errorf("coordinator: decode reset reply: %w", err)
	}
	metrics.CommandsSent.WithLabelValues(protocol.ActionReset, outcomeLabel(resp.Status)).Inc()
	return resp.Status, nil
}

// ClearAuthCache drops every cached verdict and, when the charge point is
// reachable, asks it to clear its local authorization list too.
func (c *Coordinator) ClearAuthCache(ctx context.Context, chargePointID string) (string, error) {
	c.auth.InvalidateAll()
	c.logger.Info("authorization cache cleared", zap.String("charge_point_id", chargePointID))

	reply, err := c.call(ctx, chargePointID, protocol.ActionClearCache, protocol.ClearCacheRequest{})
	if err != nil {
		return "", err
	}

	resp, err := ocpp.Decode[protocol.ClearCacheResponse](reply)
	if err != nil {
		return "", fmt.Errorf("coordinator: decode clear cache reply: %w", err)
	}
	metrics.CommandsSent.WithLabelValues(protocol.ActionClearCache, outcomeLabel(resp.Status)).Inc()
	return resp.Status, nil
}

func outcomeLabel(status string) string {
	if status == protocol.StatusAccepted {
		return "accepted"
	}
	return "rejected"
}
