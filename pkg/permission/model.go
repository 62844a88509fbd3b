package permission

import "context"

// UserRef identifies an account as carried on member records and broadcast
// payloads.
type UserRef struct {
	ID    string `json:"id"`
	Email string `json:"email"`
	Name  string `json:"name"`
}

// ShareRecord is a stored grant of a tier on a list to a non-owner.
type ShareRecord struct {
	ListID string
	User   UserRef
	Level  Level
}

// ListRecord is the slice of a list row the resolver needs.
type ListRecord struct {
	ID      string
	OwnerID string
	Title   string
}

// ListAccess is a list's full access picture: its owner plus every share.
type ListAccess struct {
	Owner  UserRef
	Shares []ShareRecord
}

// Store is the persistence contract the resolver queries. Absence is a
// normal result: implementations return (nil, nil) when no matching record
// exists and reserve errors for infrastructure failure.
type Store interface {
	// ListOwnership returns the list record if userID owns listID.
	ListOwnership(ctx context.Context, listID, userID string) (*ListRecord, error)
	// Share returns the share record granting userID a tier on listID.
	Share(ctx context.Context, listID, userID string) (*ShareRecord, error)
	// ListWithShares returns the owner and all shares of listID.
	ListWithShares(ctx context.Context, listID string) (*ListAccess, error)
}

// UserPermission is one user's effective tier on one list. Ownership takes
// precedence over any share record for the same pair, so a user has at most
// one of these per list.
type UserPermission struct {
	UserID  string
	ListID  string
	Level   Level
	IsOwner bool
}

// CheckResult is the outcome of resolving one user's access to one list,
// with the tier expanded into capability flags. CanManageShares implies
// CanEdit implies CanRead.
type CheckResult struct {
	HasAccess       bool
	Level           Level
	IsOwner         bool
	CanRead         bool
	CanEdit         bool
	CanDelete       bool
	CanManageShares bool
}

// resultFor expands a tier into its capability set. The level set is closed,
// so this is a plain switch rather than any dynamic lookup.
func resultFor(level Level, isOwner bool) CheckResult {
	r := CheckResult{HasAccess: true, Level: level, IsOwner: isOwner}
	switch level {
	case LevelViewer:
		r.CanRead = true
	case LevelEditor:
		r.CanRead = true
		r.CanEdit = true
		r.CanDelete = true
	case LevelOwner:
		r.CanRead = true
		r.CanEdit = true
		r.CanDelete = true
		r.CanManageShares = true
	default:
		return CheckResult{}
	}
	return r
}

// NoAccess is the fail-closed default: no tier, every capability false.
func NoAccess() CheckResult {
	return CheckResult{}
}

// Filter narrows the candidate set of a broadcast. The zero value passes
// everyone with access, owner included.
type Filter struct {
	// Required is the minimum tier a candidate must hold. Zero means no
	// minimum beyond having access at all.
	Required Level
	// Operation, when set, additionally requires the candidate's tier to
	// allow that operation class.
	Operation Operation
	// ExcludeViewer drops VIEWER-tier candidates regardless of Required.
	ExcludeViewer bool
	// ExcludeOwner drops the list owner from the candidate set.
	ExcludeOwner bool
}

// Includes applies the filter policy to one candidate.
func (f *Filter) Includes(up UserPermission) bool {
	if f == nil {
		return true
	}
	if f.ExcludeViewer && up.Level == LevelViewer {
		return false
	}
	if f.ExcludeOwner && up.IsOwner {
		return false
	}
	if f.Required.Valid() && !up.Level.Meets(f.Required) {
		return false
	}
	if f.Operation != "" && !up.Level.Allows(f.Operation) {
		return false
	}
	return true
}
