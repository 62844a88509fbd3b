// Package router dispatches inbound socket events to the room membership
// handlers, enforcing the authentication and authorization guards in front
// of every state change.
package router

import (
	"context"
	"encoding/json"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/tidwall/gjson"

	"github.com/taskwire/taskwire/internal/protocol"
	"github.com/taskwire/taskwire/internal/registry"
	"github.com/taskwire/taskwire/internal/rooms"
	"github.com/taskwire/taskwire/pkg/permission"
)

type Router struct {
	logger   *slog.Logger
	registry *registry.Registry
	rooms    *rooms.Tracker
	resolver *permission.Resolver

	now func() time.Time
}

func New(logger *slog.Logger, reg *registry.Registry, tracker *rooms.Tracker, resolver *permission.Resolver) *Router {
	return &Router{
		logger:   logger.With(slog.String("component", "event_router")),
		registry: reg,
		rooms:    tracker,
		resolver: resolver,
		now:      time.Now,
	}
}

func (r *Router) HandleMessage(ctx context.Context, connID uuid.UUID, msg []byte) {
	var clientMsg protocol.Message
	if err := json.Unmarshal(msg, &clientMsg); err != nil {
		r.logger.Warn("Failed to unmarshal client message",
			slog.String("connID", connID.String()),
			slog.Any("error", err),
		)
		return
	}

	conn, ok := r.registry.Get(connID)
	if !ok {
		r.logger.Error("Message from a connection the registry does not know",
			slog.String("connID", connID.String()),
		)
		return
	}

	listID := gjson.GetBytes(clientMsg.Payload, "listId").String()

	switch clientMsg.Event {
	case protocol.EventJoinListRoom:
		r.handleJoin(ctx, conn, listID)
	case protocol.EventLeaveListRoom:
		r.handleLeave(conn, listID)
	case protocol.EventGetRoomMembers:
		r.handleMembers(ctx, conn, listID)
	default:
		r.logger.Warn("Received unknown event",
			slog.String("event", clientMsg.Event),
			slog.String("connID", connID.String()),
		)
		r.emitError(conn, "Unknown event: "+clientMsg.Event, "")
	}
}

// OnDisconnect sweeps a closed connection out of every room it joined and
// deregisters it.
func (r *Router) OnDisconnect(connID uuid.UUID) {
	affected := r.rooms.RemoveConnection(connID)
	if len(affected) > 0 {
		r.logger.Debug("Disconnect removed connection from rooms",
			slog.String("connID", connID.String()),
			slog.Int("rooms", len(affected)),
		)
	}
	r.registry.Deregister(connID)
}

func (r *Router) emit(conn *registry.Conn, event string, payload any) {
	frame, err := protocol.Encode(event, payload)
	if err != nil {
		r.logger.Error("Failed to encode outbound event",
			slog.String("event", event),
			slog.Any("error", err),
		)
		return
	}
	conn.Transport.Send(frame)
}

func (r *Router) emitError(conn *registry.Conn, message, listID string) {
	r.emit(conn, protocol.EventError, protocol.ErrorPayload{Message: message, ListID: listID})
}
