package coordinator

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"voltcore/internal/ocpp"
	"voltcore/internal/ocpp/protocol"
)

func TestHandleCallRoutesActions(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	resp, err := h.coord.HandleCall(ctx, "CP001", protocol.ActionHeartbeat, json.RawMessage(`{}`))
	require.NoError(t, err)
	_, ok := resp.(protocol.HeartbeatResponse)
	assert.True(t, ok)

	resp, err = h.coord.HandleCall(ctx, "CP001", protocol.ActionAuthorize, json.RawMessage(`{"idTag":"OK001"}`))
	require.NoError(t, err)
	auth, ok := resp.(protocol.AuthorizeResponse)
	require.True(t, ok)
	assert.Equal(t, "Accepted", auth.IdTagInfo.Status)
}

func TestHandleCallRejectsUnknownAction(t *testing.T) {
	h := newHarness(t)

	_, err := h.coord.HandleCall(context.Background(), "CP001", "GetDiagnostics", json.RawMessage(`{}`))
	assert.ErrorIs(t, err, ocpp.ErrNotImplemented)
}

func TestHandleCallRejectsMalformedPayload(t *testing.T) {
	h := newHarness(t)

	_, err := h.coord.HandleCall(context.Background(), "CP001", protocol.ActionStartTransaction,
		json.RawMessage(`{"connectorId":"one"}`))
	assert.Error(t, err)
}
