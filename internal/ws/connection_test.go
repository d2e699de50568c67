package ws

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"voltcore/internal/ocpp"
)

type echoProcessor struct{}

func (echoProcessor) ProcessCall(ctx context.Context, chargePointID string, frame *ocpp.Frame, raw []byte) ([]byte, error) {
	return ocpp.BuildCallResult(frame.UniqueID, map[string]string{"echo": frame.Action})
}

// deviceBehavior drives the remote end of the socket in tests.
type deviceBehavior func(t *testing.T, conn *websocket.Conn)

func startDevice(t *testing.T, behavior deviceBehavior) *websocket.Conn {
	t.Helper()

	upgrader := websocket.Upgrader{CheckOrigin: func(r *http.Request) bool { return true }}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		remote, err := upgrader.Upgrade(w, r, nil)
		require.NoError(t, err)
		behavior(t, remote)
	}))
	t.Cleanup(srv.Close)

	url := "ws" + strings.TrimPrefix(srv.URL, "http")
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })
	return conn
}

// answering reads CALL frames and answers each with a CALLRESULT for the
// given unique id transform.
func answering(reshapeID func(string) string) deviceBehavior {
	return func(t *testing.T, remote *websocket.Conn) {
		for {
			_, raw, err := remote.ReadMessage()
			if err != nil {
				return
			}
			frame, err := ocpp.Parse(raw)
			if err != nil || frame.Type != ocpp.FrameCall {
				continue
			}
			resp, err := ocpp.BuildCallResult(reshapeID(frame.UniqueID), map[string]string{"status": "Accepted"})
			if err != nil {
				return
			}
			if err := remote.WriteMessage(websocket.TextMessage, resp); err != nil {
				return
			}
		}
	}
}

func TestCallCorrelatesReply(t *testing.T) {
	socket := startDevice(t, answering(func(id string) string { return id }))

	conn := NewConnection("CP001", socket, echoProcessor{}, time.Second, zap.NewNop(), nil)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go conn.Start(ctx)
	defer conn.Close()

	callCtx, callCancel := context.WithTimeout(ctx, time.Second)
	defer callCancel()

	reply, err := conn.Call(callCtx, "Reset", map[string]string{"type": "Soft"})
	require.NoError(t, err)

	var payload map[string]string
	require.NoError(t, json.Unmarshal(reply, &payload))
	assert.Equal(t, "Accepted", payload["status"])
}

func TestCallTimesOutWhenReplyHasWrongID(t *testing.T) {
	socket := startDevice(t, answering(func(id string) string { return "stale-" + id }))

	conn := NewConnection("CP001", socket, echoProcessor{}, time.Second, zap.NewNop(), nil)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go conn.Start(ctx)
	defer conn.Close()

	callCtx, callCancel := context.WithTimeout(ctx, 100*time.Millisecond)
	defer callCancel()

	_, err := conn.Call(callCtx, "Reset", map[string]string{"type": "Soft"})
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestCallErrorReplySurfacesAsError(t *testing.T) {
	socket := startDevice(t, func(t *testing.T, remote *websocket.Conn) {
		for {
			_, raw, err := remote.ReadMessage()
			if err != nil {
				return
			}
			frame, err := ocpp.Parse(raw)
			if err != nil || frame.Type != ocpp.FrameCall {
				continue
			}
			resp, _ := ocpp.BuildCallError(frame.UniqueID, "NotSupported", "nope")
			if err := remote.WriteMessage(websocket.TextMessage, resp); err != nil {
				return
			}
		}
	})

	conn := NewConnection("CP001", socket, echoProcessor{}, time.Second, zap.NewNop(), nil)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go conn.Start(ctx)
	defer conn.Close()

	callCtx, callCancel := context.WithTimeout(ctx, time.Second)
	defer callCancel()

	_, err := conn.Call(callCtx, "Reset", map[string]string{"type": "Soft"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "NotSupported")
}

func TestCallAfterCloseFailsFast(t *testing.T) {
	socket := startDevice(t, func(t *testing.T, remote *websocket.Conn) {
		for {
			if _, _, err := remote.ReadMessage(); err != nil {
				return
			}
		}
	})

	onCloseCalled := make(chan struct{}, 1)
	conn := NewConnection("CP001", socket, echoProcessor{}, time.Second, zap.NewNop(), func(id string, c *Connection) {
		onCloseCalled <- struct{}{}
	})
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go conn.Start(ctx)

	require.NoError(t, conn.Close())

	_, err := conn.Call(context.Background(), "Reset", map[string]string{"type": "Soft"})
	assert.ErrorIs(t, err, ErrConnectionClosed)

	select {
	case <-onCloseCalled:
	case <-time.After(time.Second):
		t.Fatal("onClose was not invoked")
	}
}

func TestInboundCallIsAnsweredByProcessor(t *testing.T) {
	answered := make(chan []byte, 1)
	socket := startDevice(t, func(t *testing.T, remote *websocket.Conn) {
		call, err := ocpp.BuildCall("dev-1", "Heartbeat", map[string]string{})
		require.NoError(t, err)
		if err := remote.WriteMessage(websocket.TextMessage, call); err != nil {
			return
		}
		_, raw, err := remote.ReadMessage()
		if err != nil {
			return
		}
		answered <- raw
	})

	conn := NewConnection("CP001", socket, echoProcessor{}, time.Second, zap.NewNop(), nil)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go conn.Start(ctx)
	defer conn.Close()

	select {
	case raw := <-answered:
		frame, err := ocpp.Parse(raw)
		require.NoError(t, err)
		assert.Equal(t, ocpp.FrameCallResult, frame.Type)
		assert.Equal(t, "dev-1", frame.UniqueID)
	case <-time.After(time.Second):
		t.Fatal("no response reached the device")
	}
}

func TestChargePointIDFromPath(t *testing.T) {
	cases := []struct {
		path string
		want string
	}{
		{"/ocpp/CP001", "CP001"},
		{"/ocpp/CP001/", "CP001"},
		{"/ocpp/", ""},
		{"/", ""},
		{"", ""},
	}
	for _, tc := range cases {
		assert.Equal(t, tc.want, chargePointIDFromPath(tc.path), tc.path)
	}
}
