package ocpp

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type fakeDispatcher struct {
	response interface{}
	err      error
	actions  []string
}

func (f *fakeDispatcher) HandleCall(ctx context.Context, chargePointID, action string, payload json.RawMessage) (interface{}, error) {
	f.actions = append(f.actions, action)
	return f.response, f.err
}

type fakeMessageLog struct {
	mu      sync.Mutex
	entries []string
}

func (f *fakeMessageLog) Save(ctx context.Context, chargePointID, direction, action string, payload []byte) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.entries = append(f.entries, fmt.Sprintf("%s/%s/%s", chargePointID, direction, action))
	return nil
}

func TestProcessCallBuildsCallResult(t *testing.T) {
	dispatcher := &fakeDispatcher{response: map[string]string{"currentTime": "2026-01-01T00:00:00Z"}}
	audit := &fakeMessageLog{}
	processor := NewProcessor(dispatcher, audit, zap.NewNop())

	raw := []byte(`[2,"msg-1","Heartbeat",{}]`)
	frame, err := Parse(raw)
	require.NoError(t, err)

	resp, err := processor.ProcessCall(context.Background(), "CP001", frame, raw)
	require.NoError(t, err)

	out, err := Parse(resp)
	require.NoError(t, err)
	assert.Equal(t, FrameCallResult, out.Type)
	assert.Equal(t, "msg-1", out.UniqueID)
	assert.Equal(t, []string{"Heartbeat"}, dispatcher.actions)
	assert.Equal(t, []string{"CP001/incoming/Heartbeat", "CP001/outgoing/Heartbeat"}, audit.entries)
}

func TestProcessCallHandlerErrorBecomesCallError(t *testing.T) {
	dispatcher := &fakeDispatcher{err: errors.New("boom")}
	processor := NewProcessor(dispatcher, nil, zap.NewNop())

	raw := []byte(`[2,"msg-1","Heartbeat",{}]`)
	frame, err := Parse(raw)
	require.NoError(t, err)

	resp, err := processor.ProcessCall(context.Background(), "CP001", frame, raw)
	require.NoError(t, err)

	out, err := Parse(resp)
	require.NoError(t, err)
	assert.Equal(t, FrameCallError, out.Type)
	assert.Equal(t, "msg-1", out.UniqueID)
	assert.Equal(t, "InternalError", out.ErrorCode)
}

func TestProcessCallUnsupportedActionIsNotImplemented(t *testing.T) {
	dispatcher := &fakeDispatcher{err: fmt.Errorf("%w: FancyAction", ErrNotImplemented)}
	processor := NewProcessor(dispatcher, nil, zap.NewNop())

	raw := []byte(`[2,"msg-1","FancyAction",{}]`)
	frame, err := Parse(raw)
	require.NoError(t, err)

	resp, err := processor.ProcessCall(context.Background(), "CP001", frame, raw)
	require.NoError(t, err)

	out, err := Parse(resp)
	require.NoError(t, err)
	assert.Equal(t, "NotImplemented", out.ErrorCode)
}

func TestProcessCallDecodeFailureIsFormationViolation(t *testing.T) {
	dispatcher := &fakeDispatcher{err: &json.UnmarshalTypeError{Value: "string", Field: "connectorId"}}
	processor := NewProcessor(dispatcher, nil, zap.NewNop())

	raw := []byte(`[2,"msg-1","StatusNotification",{"connectorId":"one"}]`)
	frame, err := Parse(raw)
	require.NoError(t, err)

	resp, err := processor.ProcessCall(context.Background(), "CP001", frame, raw)
	require.NoError(t, err)

	out, err := Parse(resp)
	require.NoError(t, err)
	assert.Equal(t, "FormationViolation", out.ErrorCode)
}
