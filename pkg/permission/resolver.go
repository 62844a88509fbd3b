package permission

import (
	"context"
	"log/slog"
)

// Resolver answers "what may this user do on this list" against the
// persistence store. It holds no mutable state of its own.
//
// Every store failure is logged and resolved to the no-access / empty
// default. An authorization component that cannot answer must deny, so
// callers never see a hard error from these methods.
type Resolver struct {
	store  Store
	logger *slog.Logger
}

func NewResolver(store Store, logger *slog.Logger) *Resolver {
	return &Resolver{
		store:  store,
		logger: logger.With(slog.String("component", "permission_resolver")),
	}
}

// GetUserPermission resolves one user's effective access to one list.
// Ownership wins over any share record for the same pair. Absence of both
// is a normal result, not an error.
func (r *Resolver) GetUserPermission(ctx context.Context, userID, listID string) CheckResult {
	list, err := r.store.ListOwnership(ctx, listID, userID)
	if err != nil {
		r.logger.Error("ownership lookup failed, denying access",
			slog.String("listID", listID),
			slog.String("userID", userID),
			slog.Any("error", err),
		)
		return NoAccess()
	}
	if list != nil {
		return resultFor(LevelOwner, true)
	}

	share, err := r.store.Share(ctx, listID, userID)
	if err != nil {
		r.logger.Error("share lookup failed, denying access",
			slog.String("listID", listID),
			slog.String("userID", userID),
			slog.Any("error", err),
		)
		return NoAccess()
	}
	if share == nil {
		return NoAccess()
	}
	return resultFor(share.Level, false)
}

// GetUsersWithPermission returns every user holding a tier on the list,
// owner included, narrowed by the optional filter. Order is unspecified.
func (r *Resolver) GetUsersWithPermission(ctx context.Context, listID string, filter *Filter) []UserPermission {
	access, err := r.store.ListWithShares(ctx, listID)
	if err != nil {
		r.logger.Error("list access lookup failed, resolving to empty set",
			slog.String("listID", listID),
			slog.Any("error", err),
		)
		return nil
	}
	if access == nil {
		return nil
	}

	candidates := make([]UserPermission, 0, len(access.Shares)+1)
	candidates = append(candidates, UserPermission{
		UserID:  access.Owner.ID,
		ListID:  listID,
		Level:   LevelOwner,
		IsOwner: true,
	})
	for _, share := range access.Shares {
		if share.User.ID == access.Owner.ID {
			// Ownership takes precedence over a stray share on the same pair.
			continue
		}
		candidates = append(candidates, UserPermission{
			UserID: share.User.ID,
			ListID: listID,
			Level:  share.Level,
		})
	}

	out := candidates[:0]
	for _, up := range candidates {
		if filter.Includes(up) {
			out = append(out, up)
		}
	}
	return out
}

// CanUserPerformOperation maps an operation class to the corresponding
// capability flag of the user's resolved access.
func (r *Resolver) CanUserPerformOperation(ctx context.Context, userID, listID string, op Operation) bool {
	res := r.GetUserPermission(ctx, userID, listID)
	if !res.HasAccess {
		return false
	}
	switch op {
	case OpRead:
		return res.CanRead
	case OpWrite:
		return res.CanEdit
	case OpDelete:
		return res.CanDelete
	case OpManage:
		return res.CanManageShares
	default:
		return false
	}
}

// HasMinimumPermission is the tier comparison over the total order
// VIEWER < EDITOR < OWNER.
func HasMinimumPermission(level, required Level) bool {
	return level.Meets(required)
}
