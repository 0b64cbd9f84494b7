package client

import (
	"errors"
	"fmt"
	"log/slog"
	"net/url"
	"sync"
	"time"

	ws "github.com/gorilla/websocket"
	"github.com/kartsync/kartsync/internal/channel"
)

const (
	sendChSize     = 1024
	maxReconnect   = 10
	maxBackoff     = 30 * time.Second
	initialBackoff = time.Second
	writeWait      = 10 * time.Second
)

// ErrConnectionClosed is returned when dialing a closed connection.
var ErrConnectionClosed = errors.New("connection closed")

// ErrReconnectFailed means every reconnect attempt after a lost socket failed.
var ErrReconnectFailed = errors.New("websocket reconnect failed")

// connection manages a WebSocket connection with a single write goroutine
// per underlying socket.
type connection struct {
	mu     sync.Mutex
	conn   *ws.Conn
	stop   chan struct{} // closed when the current socket fails
	sendCh channel.Channel[[]byte]
	done   chan struct{} // closed on shutdown
	closed bool

	lost     chan struct{} // closed when reconnecting gives up
	lostOnce sync.Once

	wsURL string
	// hello is written first on every socket, so a reconnect rejoins.
	hello []byte

	backoff     time.Duration
	maxAttempts int
	onMessage   func([]byte)
	onReconnect func()

	logger *slog.Logger
}

func newConnection(logger *slog.Logger, onMessage func([]byte)) *connection {
	return &connection{
		sendCh:    channel.New[[]byte](sendChSize),
		done:        make(chan struct{}),
		lost:        make(chan struct{}),
		backoff:     initialBackoff,
		maxAttempts: maxReconnect,
		onMessage:   onMessage,
		logger:      logger,
	}
}

// dial connects, writes hello and starts the read and write loops.
func (c *connection) dial(rawURL string, hello []byte) error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return ErrConnectionClosed
	}
	c.wsURL = rawURL
	c.hello = hello
	c.mu.Unlock()

	conn, err := c.dialOnce()
	if err != nil {
		return err
	}
	if err := c.writeHello(conn); err != nil {
		_ = conn.Close()
		return err
	}
	if !c.start(conn) {
		_ = conn.Close()
		return ErrConnectionClosed
	}
	return nil
}

func (c *connection) dialOnce() (*ws.Conn, error) {
	if _, err := url.Parse(c.wsURL); err != nil {
		return nil, fmt.Errorf("invalid websocket URL: %w", err)
	}
	conn, _, err := ws.DefaultDialer.Dial(c.wsURL, nil)
	if err != nil {
		return nil, fmt.Errorf("websocket dial failed: %w", err)
	}
	return conn, nil
}

func (c *connection) writeHello(conn *ws.Conn) error {
	if c.hello == nil {
		return nil
	}
	if err := conn.SetWriteDeadline(time.Now().Add(writeWait)); err != nil {
		return err
	}
	if err := conn.WriteMessage(ws.BinaryMessage, c.hello); err != nil {
		return fmt.Errorf("writing hello: %w", err)
	}
	return nil
}

// start makes conn current and runs its loops. It reports false if the
// connection was closed meanwhile.
func (c *connection) start(conn *ws.Conn) bool {
	stop := make(chan struct{})
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return false
	}
	c.conn = conn
	c.stop = stop
	c.mu.Unlock()

	go c.writeLoop(conn, stop)
	go c.readLoop(conn, stop)
	return true
}

// fail tears down a broken socket once and starts reconnecting.
func (c *connection) fail(conn *ws.Conn, err error) {
	c.mu.Lock()
	if c.closed || c.conn != conn {
		c.mu.Unlock()
		return
	}
	c.conn = nil
	close(c.stop)
	c.mu.Unlock()

	_ = conn.Close()
	c.logger.Warn("WebSocket connection lost", "error", err)
	go c.reconnect()
}

// writeLoop drains sendCh onto one socket until it fails or is replaced.
func (c *connection) writeLoop(conn *ws.Conn, stop <-chan struct{}) {
	for {
		select {
		case <-c.done:
			return
		case <-stop:
			return
		case data := <-c.sendCh.Receive():
			if err := conn.SetWriteDeadline(time.Now().Add(writeWait)); err != nil {
				c.fail(conn, err)
				return
			}
			if err := conn.WriteMessage(ws.BinaryMessage, data); err != nil {
				c.fail(conn, err)
				return
			}
		}
	}
}

// readLoop hands every frame to onMessage.
func (c *connection) readLoop(conn *ws.Conn, stop <-chan struct{}) {
	for {
		_, message, err := conn.ReadMessage()
		if err != nil {
			select {
			case <-c.done:
				return
			case <-stop:
				return
			default:
			}
			c.fail(conn, err)
			return
		}
		c.onMessage(message)
	}
}

// reconnect re-establishes the socket with exponential backoff. Frames
// queued for the old socket are discarded; hello is replayed first.
func (c *connection) reconnect() {
	if c.onReconnect != nil {
		c.onReconnect()
	}

	backoff := c.backoff
	for attempt := 1; attempt <= c.maxAttempts; attempt++ {
		select {
		case <-c.done:
			return
		case <-time.After(backoff):
		}

		c.logger.Info("Reconnecting to WebSocket", "attempt", attempt, "backoff", backoff)
		conn, err := c.dialOnce()
		if err == nil {
			err = c.writeHello(conn)
			if err != nil {
				_ = conn.Close()
			}
		}
		if err != nil {
			c.logger.Warn("Reconnect failed", "attempt", attempt, "error", err)
			backoff *= 2
			if backoff > maxBackoff {
				backoff = maxBackoff
			}
			continue
		}

		c.drain()
		if !c.start(conn) {
			_ = conn.Close()
			return
		}
		c.logger.Info("WebSocket reconnected", "attempt", attempt)
		return
	}

	c.logger.Error("WebSocket reconnect failed after max attempts", "maxAttempts", c.maxAttempts)
	c.lostOnce.Do(func() { close(c.lost) })
}

func (c *connection) drain() {
	for {
		select {
		case <-c.sendCh.Receive():
		default:
			return
		}
	}
}

// send pushes data to the write loop. Non-blocking; drops if channel full.
func (c *connection) send(data []byte) {
	if !c.sendCh.TrySend(data) {
		c.logger.Warn("WebSocket send channel full, dropping message")
	}
}

// close sends a WebSocket close frame and shuts down all goroutines.
func (c *connection) close() error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return nil
	}
	c.closed = true
	close(c.done)
	conn := c.conn
	c.conn = nil
	c.mu.Unlock()

	if conn != nil {
		_ = conn.WriteControl(
			ws.CloseMessage,
			ws.FormatCloseMessage(ws.CloseNormalClosure, ""),
			time.Now().Add(writeWait),
		)
		return conn.Close()
	}
	return nil
}
