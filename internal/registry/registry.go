// Package registry tracks live socket connections and the authenticated
// identity attached to each. It is the single source of truth for "who is
// connected right now" that room tracking and broadcasting are built on.
package registry

import (
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
)

// Transport is the slice of the transport connection the registry and the
// broadcast engine need. Keeping this an interface means neither depends on
// the WebSocket library directly.
type Transport interface {
	ID() uuid.UUID
	Send(message []byte)
	Close(err error)
}

// Identity is the authenticated account bound to a connection.
type Identity struct {
	ID    string
	Email string
	Name  string
}

// Conn is one live connection. Identity is nil until the connection is
// authenticated; identity-less connections are invisible to enumeration.
type Conn struct {
	ID         uuid.UUID
	RemoteAddr string
	Transport  Transport
	Identity   *Identity
	CreatedAt  time.Time
}

type Registry struct {
	mu     sync.RWMutex
	conns  map[uuid.UUID]*Conn
	byUser map[string]map[uuid.UUID]*Conn

	logger *slog.Logger
}

func New(logger *slog.Logger) *Registry {
	return &Registry{
		conns:  make(map[uuid.UUID]*Conn),
		byUser: make(map[string]map[uuid.UUID]*Conn),
		logger: logger.With(slog.String("component", "connection_registry")),
	}
}

func (r *Registry) Register(t Transport, remoteAddr string) (*Conn, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	connID := t.ID()
	if _, exists := r.conns[connID]; exists {
		return nil, errors.New("connection is already registered")
	}
	conn := &Conn{
		ID:         connID,
		RemoteAddr: remoteAddr,
		Transport:  t,
		CreatedAt:  time.Now(),
	}
	r.conns[connID] = conn
	r.logger.Debug("Connection registered", slog.String("connID", connID.String()))
	return conn, nil
}

// Identify binds an authenticated identity to a registered connection,
// making it visible to user-scoped enumeration.
func (r *Registry) Identify(connID uuid.UUID, identity Identity) (*Conn, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	conn, ok := r.conns[connID]
	if !ok {
		return nil, errors.New("cannot identify an unknown connection")
	}
	conn.Identity = &identity

	userConns, ok := r.byUser[identity.ID]
	if !ok {
		userConns = make(map[uuid.UUID]*Conn)
		r.byUser[identity.ID] = userConns
	}
	userConns[connID] = conn

	r.logger.Debug("Connection identified",
		slog.String("connID", connID.String()),
		slog.String("userID", identity.ID),
	)
	return conn, nil
}

// Deregister removes a connection. Deregistering an unknown connection is a
// no-op.
func (r *Registry) Deregister(connID uuid.UUID) {
	r.mu.Lock()
	defer r.mu.Unlock()

	conn, ok := r.conns[connID]
	if !ok {
		return
	}
	delete(r.conns, connID)

	if conn.Identity != nil {
		userConns := r.byUser[conn.Identity.ID]
		delete(userConns, connID)
		if len(userConns) == 0 {
			delete(r.byUser, conn.Identity.ID)
		}
	}
	r.logger.Debug("Connection deregistered", slog.String("connID", connID.String()))
}

func (r *Registry) Get(connID uuid.UUID) (*Conn, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	conn, ok := r.conns[connID]
	return conn, ok
}

// Alive reports whether a connection is still registered.
func (r *Registry) Alive(connID uuid.UUID) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, ok := r.conns[connID]
	return ok
}

// UserConnections returns every live connection of one user, across all of
// their devices and sessions.
func (r *Registry) UserConnections(userID string) []*Conn {
	r.mu.RLock()
	defer r.mu.RUnlock()

	userConns := r.byUser[userID]
	conns := make([]*Conn, 0, len(userConns))
	for _, c := range userConns {
		conns = append(conns, c)
	}
	return conns
}

func (r *Registry) UserConnectionCount(userID string) (int, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.byUser[userID]), nil
}

// OldestUserConnection is used by the connection limiter's cycle mode.
func (r *Registry) OldestUserConnection(userID string) (*Conn, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var oldest *Conn
	for _, c := range r.byUser[userID] {
		if oldest == nil || c.CreatedAt.Before(oldest.CreatedAt) {
			oldest = c
		}
	}
	return oldest, oldest != nil
}

// Identified returns every connection with an authenticated identity.
func (r *Registry) Identified() []*Conn {
	r.mu.RLock()
	defer r.mu.RUnlock()

	conns := make([]*Conn, 0, len(r.conns))
	for _, c := range r.conns {
		if c.Identity != nil {
			conns = append(conns, c)
		}
	}
	return conns
}

// All returns every registered connection, identified or not. Used by the
// server's shutdown path to close them.
func (r *Registry) All() []*Conn {
	r.mu.RLock()
	defer r.mu.RUnlock()

	conns := make([]*Conn, 0, len(r.conns))
	for _, c := range r.conns {
		conns = append(conns, c)
	}
	return conns
}
