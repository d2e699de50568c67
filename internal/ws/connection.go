package ws

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"voltcore/internal/ocpp"
)

// CallProcessor handles parsed inbound CALL frames.
type CallProcessor interface {
	ProcessCall(ctx context.Context, chargePointID string, frame *ocpp.Frame, raw []byte) ([]byte, error)
}

// ErrConnectionClosed is returned by Call when the socket goes away while a
// reply is outstanding.
var ErrConnectionClosed = errors.New("ws: connection closed")

type callOutcome struct {
	payload json.RawMessage
	err     error
}

// Connection represents an active charge point WebSocket connection. It
// serves inbound calls through the processor and carries outbound commands
// with unique-id correlation.
type Connection struct {
	chargePointID string
	ws            *websocket.Conn
	send          chan []byte
	processor     CallProcessor
	writeTimeout  time.Duration
	logger        *zap.Logger
	onClose       func(chargePointID string, conn *Connection)

	pendingMu sync.Mutex
	pending   map[string]chan callOutcome

	closeOnce sync.Once
	closed    chan struct{}
}

// NewConnection builds connection wrapper.
func NewConnection(chargePointID string, ws *websocket.Conn, processor CallProcessor, writeTimeout time.Duration, logger *zap.Logger, onClose func(string, *Connection)) *Connection {
	return &Connection{
		chargePointID: chargePointID,
		ws:            ws,
		send:          make(chan []byte, 16),
		processor:     processor,
		writeTimeout:  writeTimeout,
		logger:        logger,
		onClose:       onClose,
		pending:       make(map[string]chan callOutcome),
		closed:        make(chan struct{}),
	}
}

// ChargePointID returns identifier.
func (c *Connection) ChargePointID() string {
	return c.chargePointID
}

// Start launches read/write pumps. Blocks until the read side closes.
func (c *Connection) Start(ctx context.Context) {
	go c.writePump(ctx)
	c.readPump(ctx)
}

// Call sends an outbound CALL frame and blocks until the correlated reply
// arrives, ctx expires, or the connection closes.
func (c *Connection) Call(ctx context.Context, action string, payload interface{}) (json.RawMessage, error) {
	uniqueID := uuid.NewString()
	frame, err := ocpp.BuildCall(uniqueID, action, payload)
	if err != nil {
		return nil, err
	}

	reply := make(chan callOutcome, 1)
	c.pendingMu.Lock()
	c.pending[uniqueID] = reply
	c.pendingMu.Unlock()
	defer func() {
		c.pendingMu.Lock()
		delete(c.pending, uniqueID)
		c.pendingMu.Unlock()
	}()

	select {
	case c.send <- frame:
	case <-c.closed:
		return nil, ErrConnectionClosed
	case <-ctx.Done():
		return nil, ctx.Err()
	}

	select {
	case outcome := <-reply:
		return outcome.payload, outcome.err
	case <-c.closed:
		return nil, ErrConnectionClosed
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// Close terminates the connection. Safe to call more than once.
func (c *Connection) Close() error {
	c.closeOnce.Do(func() {
		close(c.closed)
		_ = c.ws.Close()
	})
	return nil
}

func (c *Connection) readPump(ctx context.Context) {
	defer c.cleanup()
	c.ws.SetReadLimit(1024 * 1024)
	c.ws.SetReadDeadline(time.Now().Add(60 * time.Second))
	c.ws.SetPongHandler(func(string) error {
		c.ws.SetReadDeadline(time.Now().Add(60 * time.Second))
		return nil
	})

	for {
		select {
		case <-ctx.Done():
			return
		case <-c.closed:
			return
		default:
		}

		_, message, err := c.ws.ReadMessage()
		if err != nil {
			c.logger.Info("connection read closed",
				zap.String("charge_point_id", c.chargePointID), zap.Error(err))
			return
		}
		c.ws.SetReadDeadline(time.Now().Add(60 * time.Second))

		frame, err := ocpp.Parse(message)
		if err != nil {
			c.logger.Warn("failed to parse frame",
				zap.String("charge_point_id", c.chargePointID), zap.Error(err))
			continue
		}

		switch frame.Type {
		case ocpp.FrameCall:
			response, err := c.processor.ProcessCall(ctx, c.chargePointID, frame, message)
			if err != nil {
				c.logger.Warn("failed to process call",
					zap.String("charge_point_id", c.chargePointID), zap.Error(err))
				continue
			}
			if response != nil {
				c.enqueue(response)
			}
		case ocpp.FrameCallResult:
			c.resolve(frame.UniqueID, callOutcome{payload: frame.Payload})
		case ocpp.FrameCallError:
			c.resolve(frame.UniqueID, callOutcome{
				err: fmt.Errorf("ws: call error %s: %s", frame.ErrorCode, frame.ErrorDescription),
			})
		}
	}
}

// resolve delivers a reply to its waiter. Replies with no waiter, usually
// arriving after the command deadline, are discarded.
func (c *Connection) resolve(uniqueID string, outcome callOutcome) {
	c.pendingMu.Lock()
	reply, ok := c.pending[uniqueID]
	if ok {
		delete(c.pending, uniqueID)
	}
	c.pendingMu.Unlock()

	if !ok {
		c.logger.Warn("discarding uncorrelated reply",
			zap.String("charge_point_id", c.chargePointID),
			zap.String("unique_id", uniqueID))
		return
	}
	reply <- outcome
}

func (c *Connection) writePump(ctx context.Context) {
	ticker := time.NewTicker(30 * time.Second)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-c.closed:
			return
		case msg := <-c.send:
			if err := c.write(websocket.TextMessage, msg); err != nil {
				return
			}
		case <-ticker.C:
			if err := c.write(websocket.PingMessage, []byte("ping")); err != nil {
				return
			}
		}
	}
}

func (c *Connection) enqueue(msg []byte) {
	select {
	case c.send <- msg:
	case <-c.closed:
	default:
		c.logger.Warn("dropping outgoing message, buffer full",
			zap.String("charge_point_id", c.chargePointID))
	}
}

func (c *Connection) write(messageType int, data []byte) error {
	c.ws.SetWriteDeadline(time.Now().Add(c.writeTimeout))
	return c.ws.WriteMessage(messageType, data)
}

func (c *Connection) cleanup() {
	_ = c.Close()
	if c.onClose != nil {
		c.onClose(c.chargePointID, c)
	}
}
