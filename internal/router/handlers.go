package router

import (
	"context"
	"log/slog"

	"github.com/taskwire/taskwire/internal/protocol"
	"github.com/taskwire/taskwire/internal/registry"
	"github.com/taskwire/taskwire/internal/rooms"
)

// identity enforces the authentication guard shared by every room event.
// The connection stays open on failure; unauthenticated sockets are already
// rejected at handshake time, so hitting this guard means a registry-level
// anomaly rather than a stray client.
func (r *Router) identity(conn *registry.Conn, listID string) (*registry.Identity, bool) {
	if conn.Identity == nil {
		r.emitError(conn, "Authentication required", listID)
		return nil, false
	}
	return conn.Identity, true
}

func (r *Router) handleJoin(ctx context.Context, conn *registry.Conn, listID string) {
	id, ok := r.identity(conn, listID)
	if !ok {
		return
	}
	if listID == "" {
		r.emitError(conn, "listId is required", "")
		return
	}

	res := r.resolver.GetUserPermission(ctx, id.ID, listID)
	if !res.HasAccess {
		r.logger.Warn("Join denied",
			slog.String("userID", id.ID),
			slog.String("listID", listID),
		)
		r.emitError(conn, "Access denied: you do not have permission to access this list", listID)
		return
	}

	count := r.rooms.Join(conn.ID, listID, rooms.Member{
		UserID:    id.ID,
		UserName:  id.Name,
		UserEmail: id.Email,
		JoinedAt:  r.now(),
	})
	r.emit(conn, protocol.EventListRoomJoined, protocol.RoomJoinedPayload{
		ListID:      listID,
		RoomName:    rooms.RoomName(listID),
		MemberCount: count,
		Timestamp:   r.now().UTC(),
	})
}

func (r *Router) handleLeave(conn *registry.Conn, listID string) {
	if _, ok := r.identity(conn, listID); !ok {
		return
	}
	if listID == "" {
		r.emitError(conn, "listId is required", "")
		return
	}

	// Leaving a room the connection never joined is a no-op; the client
	// still gets its confirmation.
	r.rooms.Leave(conn.ID, listID)
	r.emit(conn, protocol.EventListRoomLeft, protocol.RoomLeftPayload{
		ListID:    listID,
		RoomName:  rooms.RoomName(listID),
		Timestamp: r.now().UTC(),
	})
}

func (r *Router) handleMembers(ctx context.Context, conn *registry.Conn, listID string) {
	id, ok := r.identity(conn, listID)
	if !ok {
		return
	}
	if listID == "" {
		r.emitError(conn, "listId is required", "")
		return
	}

	res := r.resolver.GetUserPermission(ctx, id.ID, listID)
	if !res.HasAccess {
		r.emitError(conn, "Access denied: you do not have permission to access this list", listID)
		return
	}

	members := r.rooms.Members(listID)
	out := make([]protocol.RoomMember, 0, len(members))
	for _, m := range members {
		out = append(out, protocol.RoomMember{
			UserID:    m.UserID,
			UserName:  m.UserName,
			UserEmail: m.UserEmail,
			JoinedAt:  m.JoinedAt,
		})
	}
	r.emit(conn, protocol.EventRoomMembers, protocol.RoomMembersPayload{
		ListID:      listID,
		Members:     out,
		MemberCount: len(out),
		Timestamp:   r.now().UTC(),
	})
}
