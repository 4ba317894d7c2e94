// Package transport wraps a websocket in a connection with a bounded
// outbound queue, a read loop, a write loop and keepalive pings.
package transport

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/coder/websocket"

	"chatzalo/pkg/logger"
	"chatzalo/pkg/utils"
)

// StatusUnauthorized closes a socket whose first-frame handshake failed.
const StatusUnauthorized websocket.StatusCode = 4401

var ErrClosed = errors.New("connection closed")

// MessageHandler runs on the read goroutine for every text or binary frame.
type MessageHandler func(ctx context.Context, c *Connection, msg []byte)

// CloseHandler runs exactly once after the connection is torn down. It must
// not call Close.
type CloseHandler func(c *Connection, err error)

type Config struct {
	SendBuffer   int
	WriteTimeout time.Duration
	PingInterval time.Duration
	ReadLimit    int64
}

func (c Config) withDefaults() Config {
	if c.SendBuffer <= 0 {
		c.SendBuffer = 256
	}
	if c.WriteTimeout <= 0 {
		c.WriteTimeout = 10 * time.Second
	}
	if c.PingInterval <= 0 {
		c.PingInterval = 25 * time.Second
	}
	if c.ReadLimit <= 0 {
		c.ReadLimit = 1 << 20
	}
	return c
}

// Connection is one live websocket. Send is safe for concurrent use.
type Connection struct {
	id     string
	conn   *websocket.Conn
	config Config
	send   chan []byte

	onMessage MessageHandler
	onClose   CloseHandler

	ctx       context.Context
	cancel    context.CancelFunc
	closeOnce sync.Once
	done      chan struct{}

	mu          sync.Mutex
	closeCode   websocket.StatusCode
	closeReason string
}

func NewConnection(parent context.Context, ws *websocket.Conn, cfg Config, onMessage MessageHandler, onClose CloseHandler) *Connection {
	cfg = cfg.withDefaults()
	ctx, cancel := context.WithCancel(parent)
	ws.SetReadLimit(cfg.ReadLimit)
	return &Connection{
		id:        utils.GenID(),
		conn:      ws,
		config:    cfg,
		send:      make(chan []byte, cfg.SendBuffer),
		onMessage: onMessage,
		onClose:   onClose,
		ctx:       ctx,
		cancel:    cancel,
		done:      make(chan struct{}),
		closeCode: websocket.StatusNormalClosure,
	}
}

func (c *Connection) ID() string { return c.id }

// Context is cancelled when the connection closes.
func (c *Connection) Context() context.Context { return c.ctx }

// Done is closed once teardown has finished.
func (c *Connection) Done() <-chan struct{} { return c.done }

func (c *Connection) SetOnMessage(h MessageHandler) { c.onMessage = h }

// Run starts the write loop and reads until the connection closes. It
// returns after teardown.
func (c *Connection) Run() {
	go c.writePump()
	c.readPump()
	<-c.done
}

func (c *Connection) readPump() {
	var readErr error
	defer func() { c.Close(readErr) }()

	for {
		typ, msg, err := c.conn.Read(c.ctx)
		if err != nil {
			readErr = err
			return
		}
		if typ != websocket.MessageText && typ != websocket.MessageBinary {
			continue
		}
		if c.onMessage != nil {
			c.onMessage(c.ctx, c, msg)
		}
	}
}

func (c *Connection) writePump() {
	var writeErr error
	defer func() { c.Close(writeErr) }()

	ticker := time.NewTicker(c.config.PingInterval)
	defer ticker.Stop()

	for {
		select {
		case frame := <-c.send:
			if writeErr = c.write(frame); writeErr != nil {
				return
			}
		case <-ticker.C:
			pctx, cancel := context.WithTimeout(c.ctx, c.config.WriteTimeout)
			writeErr = c.conn.Ping(pctx)
			cancel()
			if writeErr != nil {
				return
			}
		case <-c.ctx.Done():
			return
		}
	}
}

func (c *Connection) write(frame []byte) error {
	wctx, cancel := context.WithTimeout(c.ctx, c.config.WriteTimeout)
	defer cancel()
	return c.conn.Write(wctx, websocket.MessageText, frame)
}

// Send enqueues frame without blocking. It reports false when the queue is
// full or the connection is closed; the frame is then dropped.
func (c *Connection) Send(frame []byte) bool {
	select {
	case <-c.ctx.Done():
		return false
	default:
	}
	select {
	case c.send <- frame:
		return true
	default:
		return false
	}
}

// CloseWith closes the connection with a specific websocket status.
func (c *Connection) CloseWith(code websocket.StatusCode, reason string) {
	c.mu.Lock()
	c.closeCode, c.closeReason = code, reason
	c.mu.Unlock()
	c.Close(ErrClosed)
}

// Close tears the connection down once; later calls are no-ops.
func (c *Connection) Close(err error) {
	c.closeOnce.Do(func() {
		c.mu.Lock()
		code, reason := c.closeCode, c.closeReason
		c.mu.Unlock()

		_ = c.conn.Close(code, reason)
		c.cancel()
		logger.Debug("ws_connection_closed", "conn", c.id, "status", websocket.CloseStatus(err).String(), "error", err)
		if c.onClose != nil {
			c.onClose(c, err)
		}
		close(c.done)
	})
}
