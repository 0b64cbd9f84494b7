package server

import (
	"errors"
	"log/slog"
	"net/http"
	"sync"
	"time"

	ws "github.com/gorilla/websocket"
	"github.com/kartsync/kartsync/pkg/streaming"
)

const (
	sendChSize     = 256
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = 25 * time.Second
	maxMessageSize = 1 << 16
)

var (
	// ErrSlowPeer is returned by Send when the peer's queue is full.
	ErrSlowPeer = errors.New("peer send queue full")
	// ErrPeerClosed is returned by Send after Close.
	ErrPeerClosed = errors.New("peer closed")
)

// Handler upgrades HTTP requests to websocket sessions on a hub.
type Handler struct {
	hub      *Hub
	logger   *slog.Logger
	upgrader ws.Upgrader
}

// NewHandler returns a handler serving hub.
func NewHandler(hub *Hub, logger *slog.Logger) *Handler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Handler{
		hub:    hub,
		logger: logger.With("component", "ws"),
		upgrader: ws.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     func(*http.Request) bool { return true },
		},
	}
}

// ServeHTTP runs one client session until the connection drops.
func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Warn("Upgrade failed", "remote", r.RemoteAddr, "error", err)
		return
	}

	p := newPeer(conn, h.logger)
	go p.writeLoop()
	defer func() {
		h.hub.Leave(p)
		_ = p.Close()
	}()

	conn.SetReadLimit(maxMessageSize)
	_ = conn.SetReadDeadline(time.Now().Add(pongWait))
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	joined := false
	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			if ws.IsUnexpectedCloseError(err, ws.CloseNormalClosure, ws.CloseGoingAway) {
				h.logger.Debug("Read error", "remote", r.RemoteAddr, "error", err)
			}
			return
		}
		_ = conn.SetReadDeadline(time.Now().Add(pongWait))

		env, err := streaming.DecodeEnvelope(data)
		if err != nil {
			h.logger.Debug("Discarding malformed message", "remote", r.RemoteAddr, "error", err)
			continue
		}

		switch env.Type {
		case streaming.TypeHello:
			if joined {
				continue
			}
			hello, err := streaming.DecodePayload[streaming.HelloPayload](env)
			if err != nil {
				h.logger.Debug("Discarding hello", "error", err)
				continue
			}
			h.hub.Join(p, hello.Name)
			joined = true
		case streaming.TypeSubmitMove:
			if !joined {
				continue
			}
			sm, err := streaming.DecodePayload[streaming.SubmitMovePayload](env)
			if err != nil {
				h.logger.Debug("Discarding move", "error", err)
				continue
			}
			h.hub.SubmitMove(p, sm.Move)
		default:
			h.logger.Debug("Ignoring message", "type", env.Type)
		}
	}
}

// peer is the hub's handle on one websocket. A single write goroutine owns
// the connection's write side.
type peer struct {
	conn   *ws.Conn
	sendCh chan []byte
	done   chan struct{}
	once   sync.Once
	logger *slog.Logger
}

func newPeer(conn *ws.Conn, logger *slog.Logger) *peer {
	return &peer{
		conn:   conn,
		sendCh: make(chan []byte, sendChSize),
		done:   make(chan struct{}),
		logger: logger,
	}
}

// Send queues data for the write loop without blocking.
func (p *peer) Send(data []byte) error {
	select {
	case <-p.done:
		return ErrPeerClosed
	default:
	}
	select {
	case p.sendCh <- data:
		return nil
	default:
		return ErrSlowPeer
	}
}

// Close stops the write loop, which closes the connection.
func (p *peer) Close() error {
	p.once.Do(func() { close(p.done) })
	return nil
}

func (p *peer) writeLoop() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		_ = p.conn.Close()
	}()

	for {
		select {
		case <-p.done:
			_ = p.conn.SetWriteDeadline(time.Now().Add(writeWait))
			_ = p.conn.WriteMessage(ws.CloseMessage, ws.FormatCloseMessage(ws.CloseNormalClosure, ""))
			return
		case data := <-p.sendCh:
			_ = p.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := p.conn.WriteMessage(ws.BinaryMessage, data); err != nil {
				p.logger.Debug("Write error", "error", err)
				_ = p.Close()
				return
			}
		case <-ticker.C:
			_ = p.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := p.conn.WriteMessage(ws.PingMessage, nil); err != nil {
				_ = p.Close()
				return
			}
		}
	}
}
