package client

import (
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	ws "github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// flakyServer echoes every frame back and drops the first socket right
// after reading hello.
func flakyServer(t *testing.T) (url string, hellos *atomic.Int32) {
	t.Helper()
	hellos = &atomic.Int32{}
	var sockets atomic.Int32
	upgrader := ws.Upgrader{}

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		defer conn.Close()
		n := sockets.Add(1)

		_, data, err := conn.ReadMessage()
		if err != nil {
			return
		}
		if string(data) == "hello" {
			hellos.Add(1)
		}
		if n == 1 {
			return
		}
		for {
			mt, data, err := conn.ReadMessage()
			if err != nil {
				return
			}
			if err := conn.WriteMessage(mt, data); err != nil {
				return
			}
		}
	}))
	t.Cleanup(srv.Close)
	return "ws" + strings.TrimPrefix(srv.URL, "http"), hellos
}

func TestConnection_ReconnectReplaysHello(t *testing.T) {
	url, hellos := flakyServer(t)

	received := make(chan string, 8)
	c := newConnection(slog.Default(), func(b []byte) { received <- string(b) })
	c.backoff = 10 * time.Millisecond
	var reconnects atomic.Int32
	c.onReconnect = func() { reconnects.Add(1) }
	t.Cleanup(func() { _ = c.close() })

	require.NoError(t, c.dial(url, []byte("hello")))
	require.Eventually(t, func() bool { return hellos.Load() == 2 }, 5*time.Second, 10*time.Millisecond)
	assert.Equal(t, int32(1), reconnects.Load())

	require.Eventually(t, func() bool {
		c.send([]byte("ping"))
		select {
		case msg := <-received:
			return msg == "ping"
		case <-time.After(50 * time.Millisecond):
			return false
		}
	}, 5*time.Second, 20*time.Millisecond)
}

// doomedServer accepts sockets until drop is called. drop stops listening
// and then closes every open socket, so reconnects are refused.
func doomedServer(t *testing.T) (url string, drop func()) {
	t.Helper()
	kill := make(chan struct{})
	upgrader := ws.Upgrader{}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		defer conn.Close()
		<-kill
	}))
	t.Cleanup(srv.Close)

	var once sync.Once
	drop = func() {
		once.Do(func() {
			srv.Close()
			close(kill)
		})
	}
	t.Cleanup(drop)
	return "ws" + strings.TrimPrefix(srv.URL, "http"), drop
}

func TestConnection_GivesUpAfterMaxAttempts(t *testing.T) {
	url, drop := doomedServer(t)

	c := newConnection(slog.Default(), func([]byte) {})
	c.backoff = 10 * time.Millisecond
	c.maxAttempts = 2
	t.Cleanup(func() { _ = c.close() })

	require.NoError(t, c.dial(url, []byte("hello")))
	select {
	case <-c.lost:
		t.Fatal("lost before the socket dropped")
	default:
	}

	drop()
	select {
	case <-c.lost:
	case <-time.After(5 * time.Second):
		t.Fatal("reconnect never gave up")
	}
}

func TestConnection_DialAfterClose(t *testing.T) {
	c := newConnection(slog.Default(), func([]byte) {})
	require.NoError(t, c.close())
	assert.ErrorIs(t, c.dial("ws://127.0.0.1:1", nil), ErrConnectionClosed)
	assert.NoError(t, c.close())
}

func TestConnection_SendDropsWhenFull(t *testing.T) {
	c := newConnection(slog.Default(), func([]byte) {})
	for i := 0; i < sendChSize+5; i++ {
		c.send([]byte{byte(i)})
	}
	assert.Equal(t, sendChSize, c.sendCh.Len())
}
