// Package rooms maintains which connections are currently watching which
// list. Membership is a live view over connections the registry owns; it is
// not an authorization record, and it says nothing about a user's current
// permission tier.
package rooms

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
)

// Member is the per-connection membership record of a room.
type Member struct {
	UserID    string
	UserName  string
	UserEmail string
	JoinedAt  time.Time
}

// RoomName is the wire name of a list's room.
func RoomName(listID string) string {
	return "list-" + listID
}

type Tracker struct {
	mu    sync.RWMutex
	rooms map[string]map[uuid.UUID]Member

	logger *slog.Logger
}

func NewTracker(logger *slog.Logger) *Tracker {
	return &Tracker{
		rooms:  make(map[string]map[uuid.UUID]Member),
		logger: logger.With(slog.String("component", "room_tracker")),
	}
}

// Join adds a connection to a list's room, creating the room lazily.
// Joining a room the connection is already in overwrites the member record
// rather than duplicating it. Returns the member count after the join.
func (t *Tracker) Join(connID uuid.UUID, listID string, member Member) int {
	t.mu.Lock()
	defer t.mu.Unlock()

	room, ok := t.rooms[listID]
	if !ok {
		room = make(map[uuid.UUID]Member)
		t.rooms[listID] = room
	}
	room[connID] = member

	t.logger.Debug("Connection joined room",
		slog.String("connID", connID.String()),
		slog.String("room", RoomName(listID)),
		slog.String("userID", member.UserID),
	)
	return len(room)
}

// Leave removes a connection from a list's room and deletes the room the
// moment it becomes empty. Leaving a room the connection is not in is a
// no-op, not an error.
func (t *Tracker) Leave(connID uuid.UUID, listID string) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.removeLocked(connID, listID)
}

func (t *Tracker) removeLocked(connID uuid.UUID, listID string) bool {
	room, ok := t.rooms[listID]
	if !ok {
		return false
	}
	if _, member := room[connID]; !member {
		return false
	}
	delete(room, connID)
	if len(room) == 0 {
		delete(t.rooms, listID)
		t.logger.Debug("Removed empty room", slog.String("room", RoomName(listID)))
	}
	return true
}

// RemoveConnection sweeps a disconnected connection out of every room it
// was a member of, returning the affected list IDs. This is the primary
// cleanup path on disconnect.
func (t *Tracker) RemoveConnection(connID uuid.UUID) []string {
	t.mu.Lock()
	defer t.mu.Unlock()

	var affected []string
	for listID, room := range t.rooms {
		if _, member := room[connID]; !member {
			continue
		}
		delete(room, connID)
		affected = append(affected, listID)
		if len(room) == 0 {
			delete(t.rooms, listID)
			t.logger.Debug("Removed empty room", slog.String("room", RoomName(listID)))
		}
	}
	return affected
}

// Members returns the current member records of a room. An absent room
// yields an empty slice; order is unspecified.
func (t *Tracker) Members(listID string) []Member {
	t.mu.RLock()
	defer t.mu.RUnlock()

	room := t.rooms[listID]
	members := make([]Member, 0, len(room))
	for _, m := range room {
		members = append(members, m)
	}
	return members
}

// Connections returns the connection IDs currently in a room.
func (t *Tracker) Connections(listID string) []uuid.UUID {
	t.mu.RLock()
	defer t.mu.RUnlock()

	room := t.rooms[listID]
	conns := make([]uuid.UUID, 0, len(room))
	for id := range room {
		conns = append(conns, id)
	}
	return conns
}

func (t *Tracker) MemberCount(listID string) int {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return len(t.rooms[listID])
}

// Exists reports whether a room currently has an entry at all.
func (t *Tracker) Exists(listID string) bool {
	t.mu.RLock()
	defer t.mu.RUnlock()
	_, ok := t.rooms[listID]
	return ok
}

// Reconcile drops member records whose connection is no longer alive,
// deleting rooms emptied in the process. It exists as a safety net for
// missed disconnect events; correctness does not depend on it when those
// fire reliably. Returns the number of records dropped.
func (t *Tracker) Reconcile(alive func(uuid.UUID) bool) int {
	t.mu.Lock()
	defer t.mu.Unlock()

	dropped := 0
	for listID, room := range t.rooms {
		for connID := range room {
			if alive(connID) {
				continue
			}
			delete(room, connID)
			dropped++
		}
		if len(room) == 0 {
			delete(t.rooms, listID)
		}
	}
	return dropped
}

// RunReconciler periodically reconciles membership until ctx is cancelled.
// An interval of zero disables the sweep.
func (t *Tracker) RunReconciler(ctx context.Context, interval time.Duration, alive func(uuid.UUID) bool) {
	if interval <= 0 {
		return
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			if dropped := t.Reconcile(alive); dropped > 0 {
				t.logger.Warn("Reconciler dropped stale room members", slog.Int("dropped", dropped))
			}
		case <-ctx.Done():
			return
		}
	}
}
