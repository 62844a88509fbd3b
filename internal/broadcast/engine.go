// Package broadcast fans events out to the connections authorized to
// receive them. Authorization is re-resolved against the store on every
// call: room membership is presence, not permission, and a user demoted
// after joining must not keep receiving their old tier's payloads.
//
// Delivery is best-effort and at-most-once. There is no buffering, no
// retry, and no acknowledgment; a disconnected socket simply misses the
// event.
package broadcast

import (
	"context"
	"log/slog"
	"time"

	"github.com/taskwire/taskwire/internal/protocol"
	"github.com/taskwire/taskwire/internal/registry"
	"github.com/taskwire/taskwire/internal/rooms"
	"github.com/taskwire/taskwire/pkg/permission"
)

type Engine struct {
	resolver *permission.Resolver
	registry *registry.Registry
	rooms    *rooms.Tracker
	logger   *slog.Logger

	now func() time.Time
}

func NewEngine(resolver *permission.Resolver, reg *registry.Registry, tracker *rooms.Tracker, logger *slog.Logger) *Engine {
	return &Engine{
		resolver: resolver,
		registry: reg,
		rooms:    tracker,
		logger:   logger.With(slog.String("component", "broadcast_engine")),
		now:      time.Now,
	}
}

// roomConns resolves the room's current member connections against the
// registry, dropping anything unregistered or unidentified.
func (e *Engine) roomConns(listID string) []*registry.Conn {
	ids := e.rooms.Connections(listID)
	conns := make([]*registry.Conn, 0, len(ids))
	for _, id := range ids {
		conn, ok := e.registry.Get(id)
		if !ok || conn.Identity == nil {
			continue
		}
		conns = append(conns, conn)
	}
	return conns
}

// envelope merges event data with the list ID and timestamp every broadcast
// payload carries.
func (e *Engine) envelope(listID string, data map[string]any) map[string]any {
	payload := make(map[string]any, len(data)+2)
	for k, v := range data {
		payload[k] = v
	}
	payload["listId"] = listID
	payload["timestamp"] = e.now().UTC()
	return payload
}

func (e *Engine) encodeEnvelope(listID, event string, data map[string]any) ([]byte, error) {
	return protocol.Encode(event, e.envelope(listID, data))
}

// Broadcast delivers an event to every connection in the list's room whose
// user currently passes the permission filter. Resolution failures degrade
// to an empty recipient set.
func (e *Engine) Broadcast(ctx context.Context, listID, event string, data map[string]any, filter permission.Filter) {
	users := e.resolver.GetUsersWithPermission(ctx, listID, &filter)
	if len(users) == 0 {
		return
	}
	allowed := make(map[string]struct{}, len(users))
	for _, up := range users {
		allowed[up.UserID] = struct{}{}
	}

	frame, err := e.encodeEnvelope(listID, event, data)
	if err != nil {
		e.logger.Error("Failed to encode broadcast frame",
			slog.String("listID", listID),
			slog.String("event", event),
			slog.Any("error", err),
		)
		return
	}

	sent := 0
	for _, conn := range e.roomConns(listID) {
		if _, ok := allowed[conn.Identity.ID]; !ok {
			continue
		}
		conn.Transport.Send(frame)
		sent++
	}
	e.logger.Debug("Broadcast delivered",
		slog.String("listID", listID),
		slog.String("event", event),
		slog.Int("recipients", sent),
	)
}

// BroadcastToMinimumPermission delivers to every connected user holding at
// least the given tier.
func (e *Engine) BroadcastToMinimumPermission(ctx context.Context, listID, event string, data map[string]any, min permission.Level) {
	e.Broadcast(ctx, listID, event, data, permission.Filter{Required: min})
}

// BroadcastToEditorsAndOwners delivers to EDITOR-tier and above, explicitly
// dropping viewers.
func (e *Engine) BroadcastToEditorsAndOwners(ctx context.Context, listID, event string, data map[string]any) {
	e.Broadcast(ctx, listID, event, data, permission.Filter{
		Required:      permission.LevelEditor,
		ExcludeViewer: true,
	})
}

// BroadcastToOwnersOnly delivers to the OWNER tier alone.
func (e *Engine) BroadcastToOwnersOnly(ctx context.Context, listID, event string, data map[string]any) {
	e.Broadcast(ctx, listID, event, data, permission.Filter{Required: permission.LevelOwner})
}

// BroadcastAudit emits a security audit event. The recipient set is always
// restricted to owners; audit detail must not leak to lower tiers.
func (e *Engine) BroadcastAudit(ctx context.Context, listID, userID, action string, level permission.Level, success bool, details map[string]any) {
	data := map[string]any{
		"userId":          userID,
		"action":          action,
		"permissionLevel": level,
		"success":         success,
		"auditTimestamp":  e.now().UTC(),
	}
	if details != nil {
		data["details"] = details
	}
	e.Broadcast(ctx, listID, protocol.EventAudit, data, permission.Filter{Required: permission.LevelOwner})
}

// BroadcastPermissionChange announces a share change twice over: a general
// event to everyone still authorized on the list, and a targeted event to
// every live connection of the affected user. The targeted leg goes through
// the registry rather than the room, since the target must learn about the
// change even when not currently viewing the list.
func (e *Engine) BroadcastPermissionChange(ctx context.Context, listID, targetUserID string, newLevel permission.Level, actor permission.UserRef) {
	e.Broadcast(ctx, listID, protocol.EventPermissionChanged, map[string]any{
		"targetUserId":       targetUserID,
		"newPermissionLevel": newLevel,
		"changedBy":          actor,
	}, permission.Filter{Required: permission.LevelViewer})

	frame, err := protocol.Encode(protocol.EventYourPermissionChanged, map[string]any{
		"listId":             listID,
		"newPermissionLevel": newLevel,
		"changedBy":          actor,
		"timestamp":          e.now().UTC(),
	})
	if err != nil {
		e.logger.Error("Failed to encode permission change frame",
			slog.String("listID", listID),
			slog.Any("error", err),
		)
		return
	}
	for _, conn := range e.registry.UserConnections(targetUserID) {
		conn.Transport.Send(frame)
	}
}
