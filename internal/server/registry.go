package server

import (
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/samber/lo"
)

// Session binds a verified identity to one open connection.
type Session struct {
	ID          uuid.UUID
	Credential  string
	DisplayName string
	Conn        Conn
	ConnectedAt time.Time
}

// Registry is the single source of truth for who is connected. Sessions are
// keyed by credential; the registry references each Conn but never owns it.
type Registry struct {
	mu       sync.RWMutex
	sessions map[string]*Session
	now      func() time.Time
}

// NewRegistry returns an empty registry.
func NewRegistry() *Registry {
	return &Registry{
		sessions: make(map[string]*Session),
		now:      time.Now,
	}
}

// Register binds credential to conn. If the credential already has a live
// session the call fails with ErrAlreadyRegistered and the existing session
// is left untouched.
func (r *Registry) Register(credential, displayName string, conn Conn) (*Session, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.sessions[credential]; exists {
		return nil, ErrAlreadyRegistered
	}

	session := &Session{
		ID:          uuid.New(),
		Credential:  credential,
		DisplayName: displayName,
		Conn:        conn,
		ConnectedAt: r.now().UTC(),
	}
	r.sessions[credential] = session
	return session, nil
}

// Unregister removes the session for credential and returns its display
// name. Removing an absent credential is a no-op that reports false.
func (r *Registry) Unregister(credential string) (string, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	session, ok := r.sessions[credential]
	if !ok {
		return "", false
	}
	delete(r.sessions, credential)
	return session.DisplayName, true
}

// Snapshot returns a copy of the registered connections minus exclude.
// Callers may iterate it while the registry keeps changing.
func (r *Registry) Snapshot(exclude Conn) []Conn {
	r.mu.RLock()
	defer r.mu.RUnlock()

	conns := make([]Conn, 0, len(r.sessions))
	for _, session := range r.sessions {
		if exclude != nil && session.Conn == exclude {
			continue
		}
		conns = append(conns, session.Conn)
	}
	return conns
}

// Len returns the number of live sessions.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.sessions)
}

// Names returns the display names of live sessions in sorted order.
// Duplicates are kept since names are not unique.
func (r *Registry) Names() []string {
	r.mu.RLock()
	names := lo.MapToSlice(r.sessions, func(_ string, s *Session) string {
		return s.DisplayName
	})
	r.mu.RUnlock()

	sort.Strings(names)
	return names
}
