package coordinator

import (
	"context"
	"encoding/json"
	"fmt"

	"voltcore/internal/metrics"
	"voltcore/internal/ocpp"
	"voltcore/internal/ocpp/protocol"
)

// HandleCall routes one inbound call to its handler and returns the response
// payload to send back.
func (c *Coordinator) HandleCall(ctx context.Context, chargePointID, action string, payload json.RawMessage) (interface{}, error) {
	metrics.MessagesReceived.WithLabelValues(action).Inc()

	switch action {
	case protocol.ActionBootNotification:
		req, err := ocpp.Decode[protocol.BootNotificationRequest](payload)
		if err != nil {
			return nil, err
		}
		return c.OnBoot(ctx, chargePointID, req)

	case protocol.ActionHeartbeat:
		return c.OnHeartbeat(ctx, chargePointID)

	case protocol.ActionAuthorize:
		req, err := ocpp.Decode[protocol.AuthorizeRequest](payload)
		if err != nil {
			return nil, err
		}
		return c.OnAuthorize(ctx, chargePointID, req)

	case protocol.ActionStatusNotification:
		req, err := ocpp.Decode[protocol.StatusNotificationRequest](payload)
		if err != nil {
			return nil, err
		}
		return c.OnStatusNotification(ctx, chargePointID, req)

	case protocol.ActionStartTransaction:
		req, err := ocpp.Decode[protocol.StartTransactionRequest](payload)
		if err != nil {
			return nil, err
		}
		return c.OnStartTransaction(ctx, chargePointID, req)

	case protocol.ActionStopTransaction:
		req, err := ocpp.Decode[protocol.StopTransactionRequest](payload)
		if err != nil {
			return nil, err
		}
		return c.OnStopTransaction(ctx, chargePointID, req)

	case protocol.ActionMeterValues:
		req, err := ocpp.Decode[protocol.MeterValuesRequest](payload)
		if err != nil {
			return nil, err
		}
		return c.OnMeterValues(ctx, chargePointID, req)

	case protocol.ActionDataTransfer:
		req, err := ocpp.Decode[protocol.DataTransferRequest](payload)
		if err != nil {
			return nil, err
		}
		return c.OnDataTransfer(ctx, chargePointID, req)

	default:
		return nil, fmt.Errorf("%w: %s", ocpp.ErrNotImplemented, action)
	}
}
