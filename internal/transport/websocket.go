package transport

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/muurk/coopdoor/internal/logging"
)

const (
	// Time allowed to write a frame to the peer
	writeWait = 5 * time.Second

	// Frames buffered between the read pump and Receive
	wsInboxSize = 64

	// Largest message accepted from the peer
	maxMessageSize = 512
)

// WebSocketTransport carries radio frames over a WebSocket connection to a
// radio bridge, one frame per binary message.
//
// gorilla/websocket treats a read deadline expiry as fatal to the
// connection, so a dedicated read pump owns the reader and hands frames to
// Receive over a channel.
type WebSocketTransport struct {
	conn   *websocket.Conn
	logger *zap.Logger

	inbox chan []byte
	done  chan struct{}

	writeMu   sync.Mutex
	errMu     sync.Mutex
	readErr   error
	closeOnce sync.Once
}

// DialWebSocket connects to a radio bridge at url (ws://host:port/radio)
func DialWebSocket(ctx context.Context, url string, logger *zap.Logger) (*WebSocketTransport, error) {
	dialer := websocket.Dialer{HandshakeTimeout: 10 * time.Second}

	conn, resp, err := dialer.DialContext(ctx, url, nil)
	if err != nil {
		if resp != nil {
			err = fmt.Errorf("%w (status %d)", err, resp.StatusCode)
		}
		return nil, NewIOFault("dial", err)
	}

	t := NewWebSocketTransport(conn, logger)
	t.logger.Info("Connected to radio bridge", zap.String("url", url))
	return t, nil
}

// NewWebSocketTransport wraps an established connection. The transport
// takes ownership of conn.
func NewWebSocketTransport(conn *websocket.Conn, logger *zap.Logger) *WebSocketTransport {
	t := &WebSocketTransport{
		conn:   conn,
		logger: logging.OrDefault(logger, "websocket"),
		inbox:  make(chan []byte, wsInboxSize),
		done:   make(chan struct{}),
	}
	conn.SetReadLimit(maxMessageSize)
	go t.readPump()
	return t
}

func (t *WebSocketTransport) readPump() {
	defer close(t.done)

	for {
		msgType, data, err := t.conn.ReadMessage()
		if err != nil {
			t.errMu.Lock()
			t.readErr = err
			t.errMu.Unlock()

			if websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				t.logger.Info("Radio bridge closed the connection")
			} else {
				t.logger.Debug("WebSocket read ended", zap.Error(err))
			}
			return
		}

		if msgType != websocket.BinaryMessage {
			t.logger.Debug("Ignoring non-binary message", zap.Int("type", msgType))
			continue
		}

		select {
		case t.inbox <- data:
		default:
			// Same as a radio FIFO overrun
			t.logger.Warn("Inbound frame dropped, receiver not keeping up")
		}
	}
}

// Send implements Transport
func (t *WebSocketTransport) Send(ctx context.Context, frame []byte) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	select {
	case <-t.done:
		return NewIOFault("send", t.err())
	default:
	}

	t.writeMu.Lock()
	defer t.writeMu.Unlock()

	deadline := time.Now().Add(writeWait)
	if d, ok := ctx.Deadline(); ok && d.Before(deadline) {
		deadline = d
	}
	if err := t.conn.SetWriteDeadline(deadline); err != nil {
		return NewIOFault("send", err)
	}
	if err := t.conn.WriteMessage(websocket.BinaryMessage, frame); err != nil {
		return NewIOFault("send", err)
	}
	return nil
}

// Receive implements Transport. Frames already read are delivered even
// after the connection has failed.
func (t *WebSocketTransport) Receive(ctx context.Context, timeout time.Duration) ([]byte, error) {
	select {
	case frame := <-t.inbox:
		return frame, nil
	default:
	}

	timer := time.NewTimer(timeout)
	defer timer.Stop()

	select {
	case frame := <-t.inbox:
		return frame, nil
	case <-t.done:
		select {
		case frame := <-t.inbox:
			return frame, nil
		default:
		}
		return nil, NewIOFault("receive", t.err())
	case <-timer.C:
		return nil, NewTimeout("receive")
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// Close implements Transport
func (t *WebSocketTransport) Close() error {
	var err error
	t.closeOnce.Do(func() {
		t.writeMu.Lock()
		_ = t.conn.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
			time.Now().Add(time.Second))
		t.writeMu.Unlock()
		err = t.conn.Close()
	})
	return err
}

// Done is closed when the connection's read side has ended
func (t *WebSocketTransport) Done() <-chan struct{} {
	return t.done
}

func (t *WebSocketTransport) err() error {
	t.errMu.Lock()
	defer t.errMu.Unlock()
	if t.readErr == nil {
		return errors.New("connection closed")
	}
	return t.readErr
}
