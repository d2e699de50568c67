package ocpp

import (
	"encoding/json"
	"errors"
	"fmt"
)

// Frame kinds per the OCPP-J wire format.
const (
	FrameCall       = 2
	FrameCallResult = 3
	FrameCallError  = 4
)

// Frame represents one parsed OCPP-J message of any kind.
type Frame struct {
	Type             int
	UniqueID         string
	Action           string          // CALL only
	Payload          json.RawMessage // CALL and CALLRESULT
	ErrorCode        string          // CALLERROR only
	ErrorDescription string          // CALLERROR only
}

// Parse decodes a raw OCPP-J frame.
func Parse(data []byte) (*Frame, error) {
	var array []json.RawMessage
	if err := json.Unmarshal(data, &array); err != nil {
		return nil, err
	}

	if len(array) < 3 {
		return nil, errors.New("ocpp: malformed frame")
	}

	var msgType int
	if err := json.Unmarshal(array[0], &msgType); err != nil {
		return nil, err
	}

	frame := &Frame{Type: msgType}
	if err := json.Unmarshal(array[1], &frame.UniqueID); err != nil {
		return nil, fmt.Errorf("ocpp: read unique id: %w", err)
	}

	switch msgType {
	case FrameCall:
		if len(array) < 4 {
			return nil, errors.New("ocpp: incomplete CALL frame")
		}
		if err := json.Unmarshal(array[2], &frame.Action); err != nil {
			return nil, fmt.Errorf("ocpp: read action: %w", err)
		}
		frame.Payload = array[3]
	case FrameCallResult:
		frame.Payload = array[2]
	case FrameCallError:
		if len(array) < 4 {
			return nil, errors.New("ocpp: incomplete CALLERROR frame")
		}
		if err := json.Unmarshal(array[2], &frame.ErrorCode); err != nil {
			return nil, fmt.Errorf("ocpp: read error code: %w", err)
		}
		if err := json.Unmarshal(array[3], &frame.ErrorDescription); err != nil {
			return nil, fmt.Errorf("ocpp: read error description: %w", err)
		}
	default:
		return nil, fmt.Errorf("ocpp: unsupported message type %d", msgType)
	}

	return frame, nil
}

// BuildCall builds an outbound CALL frame.
func BuildCall(uniqueID, action string, payload interface{}) ([]byte, error) {
	body, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	frame := []interface{}{FrameCall, uniqueID, action, json.RawMessage(body)}
	return json.Marshal(frame)
}

// BuildCallResult builds a CALLRESULT frame.
func BuildCallResult(uniqueID string, payload interface{}) ([]byte, error) {
	body, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	frame := []interface{}{FrameCallResult, uniqueID, json.RawMessage(body)}
	return json.Marshal(frame)
}

// BuildCallError builds a CALLERROR frame.
func BuildCallError(uniqueID, code, description string) ([]byte, error) {
	frame := []interface{}{FrameCallError, uniqueID, code, description, map[string]string{}}
	return json.Marshal(frame)
}

// Decode convenience helper for handlers.
func Decode[T any](payload json.RawMessage) (T, error) {
	var target T
	if err := json.Unmarshal(payload, &target); err != nil {
		var zero T
		return zero, err
	}
	return target, nil
}
