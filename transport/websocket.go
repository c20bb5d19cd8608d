package transport

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/multierr"
	"go.uber.org/zap"

	"github.com/Spinkelben/MarketDash/protocol"
)

const (
	// FrameBufferSize is how many received frames are held until someone
	// calls Receive
	FrameBufferSize = 255
)

// Socket is a single connection to the realtime database carrying text
// frames.
type Socket interface {
	protocol.FrameReader

	Send(text string) error
	Close() error
}

type Dialer interface {
	Dial(ctx context.Context, url string) (Socket, error)
}

type WebSocketDialer struct {
	dialer       *websocket.Dialer
	writeTimeout time.Duration
	trace        bool
	log          *zap.Logger
}

func NewWebSocketDialer(options Options) *WebSocketDialer {
	options = options.withDefaults()

	return &WebSocketDialer{
		dialer: &websocket.Dialer{
			Proxy:            websocket.DefaultDialer.Proxy,
			HandshakeTimeout: options.HandshakeTimeout,
		},
		writeTimeout: options.WriteTimeout,
		trace:        options.Trace,
		log:          options.Log,
	}
}

func (d *WebSocketDialer) Dial(ctx context.Context, url string) (Socket, error) {
	conn, resp, err := d.dialer.DialContext(ctx, url, nil)
	if err != nil {
		if resp != nil {
			return nil, fmt.Errorf("%w: failed to dial %s (status %d): %w", protocol.ErrTransport, url, resp.StatusCode, err)
		}
		return nil, fmt.Errorf("%w: failed to dial %s: %w", protocol.ErrTransport, url, err)
	}

	ws := newWebSocket(conn, d.writeTimeout, d.trace, d.log.With(zap.String("url", url)))
	go ws.readLoop()

	return ws, nil
}

type frame struct {
	text string
	err  error
}

// WebSocket pumps received frames from a read loop into a buffered channel.
// Receive races that channel against a timer and the caller's context, a
// frame that arrives after a lost race stays queued for the next Receive.
type WebSocket struct {
	conn *websocket.Conn

	frames chan frame

	// done will be closed when Close() is called
	done      chan struct{}
	closeOnce sync.Once

	writeMu      sync.Mutex
	writeTimeout time.Duration

	log   *zap.Logger
	trace bool
}

func newWebSocket(conn *websocket.Conn, writeTimeout time.Duration, trace bool, log *zap.Logger) *WebSocket {
	return &WebSocket{
		conn:         conn,
		frames:       make(chan frame, FrameBufferSize),
		done:         make(chan struct{}),
		writeTimeout: writeTimeout,
		trace:        trace,
		log:          log,
	}
}

func (w *WebSocket) Receive(ctx context.Context, timeout time.Duration) (string, error) {
	timer := time.NewTimer(timeout)
	defer timer.Stop()

	select {
	case f, ok := <-w.frames:
		if !ok {
			return "", fmt.Errorf("%w: socket is closed", protocol.ErrTransport)
		}

		if f.err != nil {
			return "", f.err
		}

		return f.text, nil

	case <-timer.C:
		return "", fmt.Errorf("%w after %s", protocol.ErrTimeout, timeout)

	case <-ctx.Done():
		return "", fmt.Errorf("%w: %v", protocol.ErrCancelled, ctx.Err())
	}
}

func (w *WebSocket) Send(text string) error {
	if !w.isRunning() {
		return fmt.Errorf("%w: socket is closed", protocol.ErrTransport)
	}

	w.writeMu.Lock()
	defer w.writeMu.Unlock()

	if w.trace {
		w.log.Debug("Sending frame", zap.String("text", text))
	}

	if err := w.conn.SetWriteDeadline(time.Now().Add(w.writeTimeout)); err != nil {
		return fmt.Errorf("%w: %w", protocol.ErrTransport, err)
	}

	if err := w.conn.WriteMessage(websocket.TextMessage, []byte(text)); err != nil {
		return fmt.Errorf("%w: failed to write frame: %w", protocol.ErrTransport, err)
	}

	return nil
}

// Close sends a close frame, best effort, and closes the connection. It is
// safe to call more than once.
func (w *WebSocket) Close() (err error) {
	w.closeOnce.Do(func() {
		close(w.done)

		w.writeMu.Lock()
		msg := websocket.FormatCloseMessage(websocket.CloseNormalClosure, "")
		if cerr := w.conn.WriteControl(websocket.CloseMessage, msg, time.Now().Add(time.Second)); cerr != nil && !errors.Is(cerr, websocket.ErrCloseSent) {
			err = multierr.Append(err, cerr)
		}
		w.writeMu.Unlock()

		err = multierr.Append(err, w.conn.Close())
	})

	return err
}

func (w *WebSocket) readLoop() {
	defer close(w.frames)

	for {
		messageType, data, err := w.conn.ReadMessage()
		if err != nil {
			if w.isRunning() {
				w.log.Info("WebSocket read loop exiting", zap.Error(err))
			}

			w.push(frame{err: readError(err)})
			return
		}

		if messageType != websocket.TextMessage {
			w.log.Warn("Discarding non-text frame", zap.Int("type", messageType), zap.Int("size", len(data)))
			continue
		}

		if w.trace {
			w.log.Debug("Received frame", zap.ByteString("text", data))
		}

		if !w.push(frame{text: string(data)}) {
			return
		}
	}
}

// push returns false if the socket was closed while waiting for buffer space
func (w *WebSocket) push(f frame) bool {
	select {
	case w.frames <- f:
		return true

	case <-w.done:
		return false
	}
}

// isRunning returns true if Close has not been called
func (w *WebSocket) isRunning() bool {
	select {
	case <-w.done:
		return false

	default:
		return true
	}
}

func readError(err error) error {
	if websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
		return fmt.Errorf("%w: stream closed by server: %w", protocol.ErrTransport, err)
	}

	return fmt.Errorf("%w: failed to read frame: %w", protocol.ErrTransport, err)
}

var _ Socket = (*WebSocket)(nil)
var _ Dialer = (*WebSocketDialer)(nil)
