package ocpp

import (
	"context"
	"encoding/json"
	"errors"

	"go.uber.org/zap"
)

// ErrNotImplemented marks actions outside the supported set. The reply is a
// NotImplemented call error rather than a silent ack.
var ErrNotImplemented = errors.New("ocpp: action not implemented")

// Dispatcher routes an inbound call to its handler.
type Dispatcher interface {
	HandleCall(ctx context.Context, chargePointID, action string, payload json.RawMessage) (interface{}, error)
}

// MessageLog keeps a raw audit trail of protocol traffic.
type MessageLog interface {
	Save(ctx context.Context, chargePointID, direction, action string, payload []byte) error
}

// Processor ties together frame parsing, dispatch, and response encoding for
// charge-point-initiated calls.
type Processor struct {
	dispatcher Dispatcher
	audit      MessageLog
	logger     *zap.Logger
}

// NewProcessor builds Processor.
func NewProcessor(dispatcher Dispatcher, audit MessageLog, logger *zap.Logger) *Processor {
	return &Processor{
		dispatcher: dispatcher,
		audit:      audit,
		logger:     logger,
	}
}

// ProcessCall handles a parsed CALL frame and returns response frame bytes.
// The reply is always a CALLRESULT or CALLERROR with the caller's unique id.
func (p *Processor) ProcessCall(ctx context.Context, chargePointID string, frame *Frame, raw []byte) ([]byte, error) {
	if p.audit != nil {
		_ = p.audit.Save(ctx, chargePointID, "incoming", frame.Action, raw)
	}

	responsePayload, err := p.dispatcher.HandleCall(ctx, chargePointID, frame.Action, frame.Payload)
	if err != nil {
		p.logger.Warn("call handler failed",
			zap.String("charge_point_id", chargePointID),
			zap.String("action", frame.Action), zap.Error(err))
		return BuildCallError(frame.UniqueID, errorCode(err), err.Error())
	}

	respBytes, err := BuildCallResult(frame.UniqueID, responsePayload)
	if err != nil {
		p.logger.Error("encode response failed",
			zap.String("action", frame.Action), zap.Error(err))
		return nil, err
	}

	if p.audit != nil {
		_ = p.audit.Save(ctx, chargePointID, "outgoing", frame.Action, respBytes)
	}

	return respBytes, nil
}

func errorCode(err error) string {
	var syntaxErr *json.SyntaxError
	var typeErr *json.UnmarshalTypeError
	switch {
	case errors.Is(err, ErrNotImplemented):
		return "NotImplemented"
	case errors.As(err, &syntaxErr), errors.As(err, &typeErr):
		return "FormationViolation"
	default:
		return "InternalError"
	}
}
