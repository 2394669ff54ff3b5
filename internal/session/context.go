// Package session holds the monitoring session currently in progress.
package session

import (
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/starlogs/starlogs/pkg/core"
)

// Context holds the current session. It is shared between the engine and
// the log context provider.
type Context struct {
	mu      sync.RWMutex
	session *core.Session
}

// NewContext creates a Context with no active session.
func NewContext() *Context {
	return &Context{}
}

// Begin starts a new session for path and returns a copy of it.
func (c *Context) Begin(path string, mode core.Mode, now time.Time) core.Session {
	s := &core.Session{
		ID:        uuid.NewString(),
		LogPath:   path,
		Mode:      mode,
		StartTime: now,
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	c.session = s
	return *s
}

// End marks the current session finished and returns it. ok is false if
// no session was active.
func (c *Context) End(now time.Time) (core.Session, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.session == nil {
		return core.Session{}, false
	}
	c.session.EndTime = now
	s := *c.session
	c.session = nil
	return s, true
}

// Current returns the active session.
func (c *Context) Current() (core.Session, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.session == nil {
		return core.Session{}, false
	}
	return *c.session, true
}

// LogAttrs is a logging.ContextProvider that tags records with the active
// session.
func (c *Context) LogAttrs() []slog.Attr {
	s, ok := c.Current()
	if !ok {
		return nil
	}
	return []slog.Attr{
		slog.String("session", s.ID),
		slog.String("logPath", s.LogPath),
	}
}
