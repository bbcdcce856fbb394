package rbac

import (
	"errors"
	"sort"

	"access-service/internal/repository/model"
)

// ErrMissingRole signals a user whose role was not loaded or does not exist.
// It is a data-integrity failure, never a quiet deny.
var ErrMissingRole = errors.New("principal has no role loaded")

// Principal is an authenticated user together with its loaded role. The role
// must be populated before any resolution or authorization runs.
type Principal struct {
	User *model.User
	Role *model.Role
}

// Superuser reports whether the principal's role carries the bypass
// capability.
func (p *Principal) Superuser() bool {
	return p.Role != nil && p.Role.Superuser
}

// PermissionSet is an effective permission set. It is a plain value: computed
// once per request, passed through the call chain, never cached across
// requests so role edits take effect immediately.
type PermissionSet map[string]struct{}

func (s PermissionSet) Has(id string) bool {
	_, ok := s[id]
	return ok
}

func (s PermissionSet) HasAll(ids []string) bool {
	for _, id := range ids {
		if !s.Has(id) {
			return false
		}
	}
	return true
}

func (s PermissionSet) HasAny(ids []string) bool {
	for _, id := range ids {
		if s.Has(id) {
			return true
		}
	}
	return false
}

// Sorted returns the set's members in lexical order for display and audit
// output.
func (s PermissionSet) Sorted() []string {
	ids := make([]string, 0, len(s))
	for id := range s {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// Resolve computes the principal's effective permission set:
//
//	(role.permissions ∪ granted) \ revoked
//
// The union runs before the subtraction, so a revoke wins over both role
// membership and an explicit grant. The computation is deterministic and
// side-effect-free.
func Resolve(p *Principal) (PermissionSet, error) {
	if p == nil || p.User == nil || p.Role == nil {
		return nil, ErrMissingRole
	}

	effective := make(PermissionSet, len(p.Role.Permissions)+len(p.User.CustomPermissions.Granted))
	for _, id := range p.Role.Permissions {
		effective[id] = struct{}{}
	}
	for _, id := range p.User.CustomPermissions.Granted {
		effective[id] = struct{}{}
	}
	for _, id := range p.User.CustomPermissions.Revoked {
		delete(effective, id)
	}

	return effective, nil
}

// HasPermission answers a single membership query without materialising the
// full set: revoked short-circuits to false, then granted and role
// membership to true.
func HasPermission(p *Principal, id string) (bool, error) {
	if p == nil || p.User == nil || p.Role == nil {
		return false, ErrMissingRole
	}

	for _, revoked := range p.User.CustomPermissions.Revoked {
		if revoked == id {
			return false, nil
		}
	}
	for _, granted := range p.User.CustomPermissions.Granted {
		if granted == id {
			return true, nil
		}
	}
	return p.Role.HasPermission(id), nil
}
