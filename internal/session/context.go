// Package session holds the session the host is currently recording.
package session

import (
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/kartsync/kartsync/pkg/core"
)

// Context holds the current session
type Context struct {
	mu      sync.RWMutex
	session *core.Session
}

// NewContext creates a new Context with a placeholder session
func NewContext() *Context {
	return &Context{
		session: &core.Session{Name: "No session started"},
	}
}

// New builds a session with a fresh id starting at start.
func New(name string, start time.Time, tickHz, replicationHz int, params core.VehicleParams) *core.Session {
	return &core.Session{
		ID:            uuid.NewString(),
		Name:          name,
		StartTime:     start,
		TickHz:        tickHz,
		ReplicationHz: replicationHz,
		Params:        params,
	}
}

// Get returns a copy of the current session
func (c *Context) Get() core.Session {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return *c.session
}

// ID returns the current session id, empty before one is started.
func (c *Context) ID() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.session.ID
}

// Set replaces the current session
func (c *Context) Set(s *core.Session) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.session = s
}

// End stamps the end time on the current session and returns it.
func (c *Context) End(at time.Time) core.Session {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.session.EndTime = at
	return *c.session
}

// LogAttrs is a logging.ContextProvider.
func (c *Context) LogAttrs() []slog.Attr {
	id := c.ID()
	if id == "" {
		return nil
	}
	return []slog.Attr{slog.String("sessionId", id)}
}
