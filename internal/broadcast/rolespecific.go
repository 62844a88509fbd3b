package broadcast

import (
	"context"
	"log/slog"

	"github.com/taskwire/taskwire/pkg/permission"
)

// RolePayload carries a broadcast's shared data plus the overlay each tier
// is allowed to see.
type RolePayload struct {
	BaseData   map[string]any
	ViewerData map[string]any
	EditorData map[string]any
	OwnerData  map[string]any
}

func (p *RolePayload) overlayFor(level permission.Level) map[string]any {
	switch level {
	case permission.LevelViewer:
		return p.ViewerData
	case permission.LevelEditor:
		return p.EditorData
	case permission.LevelOwner:
		return p.OwnerData
	default:
		return nil
	}
}

// BroadcastRoleSpecific delivers one logical event with a payload shaped
// per recipient tier. Tiers are resolved at call time; a recipient whose
// access was revoked between resolution and send receives the base data
// unmerged rather than an error.
func (e *Engine) BroadcastRoleSpecific(ctx context.Context, listID, event string, payload RolePayload) {
	users := e.resolver.GetUsersWithPermission(ctx, listID, nil)
	tiers := make(map[string]permission.Level, len(users))
	for _, up := range users {
		tiers[up.UserID] = up.Level
	}

	for _, conn := range e.roomConns(listID) {
		data := make(map[string]any, len(payload.BaseData))
		for k, v := range payload.BaseData {
			data[k] = v
		}
		if level, ok := tiers[conn.Identity.ID]; ok {
			for k, v := range payload.overlayFor(level) {
				data[k] = v
			}
		}
		frame, err := e.encodeEnvelope(listID, event, data)
		if err != nil {
			// One tier's bad overlay must not starve the other recipients.
			e.logger.Error("Failed to encode role-specific frame",
				slog.String("listID", listID),
				slog.String("event", event),
				slog.Any("error", err),
			)
			continue
		}
		conn.Transport.Send(frame)
	}
}

// BroadcastNotification builds a role-shaped notification for a mutation
// performed by actor: every tier learns what happened, higher tiers
// additionally learn what they may do about it.
func (e *Engine) BroadcastNotification(ctx context.Context, listID, event, message string, actor permission.UserRef, operation permission.Operation) {
	e.BroadcastRoleSpecific(ctx, listID, event, RolePayload{
		BaseData: map[string]any{
			"message":   message,
			"actor":     actor,
			"operation": operation,
		},
		ViewerData: map[string]any{
			"allowedActions": []string{"view"},
		},
		EditorData: map[string]any{
			"allowedActions": []string{"view", "edit", "delete"},
			"canModify":      true,
		},
		OwnerData: map[string]any{
			"allowedActions": []string{"view", "edit", "delete", "manage"},
			"canModify":      true,
			"canManage":      true,
		},
	})
}
