package notifier

import (
	"context"

	"access-service/internal/repository/model"
)

// ChangeType describes what happened to the entity in a change event.
type ChangeType string

const (
	ChangeTypeCreate ChangeType = "CREATE"
	ChangeTypeModify ChangeType = "MODIFY"
	ChangeTypeDelete ChangeType = "DELETE"
)

// AccessChange describes a mutation of a user's access: a role reassignment
// or a permission override edit.
type AccessChange struct {
	UserId     string     `json:"userId"`
	RoleId     string     `json:"roleId,omitempty"`
	Granted    string     `json:"granted,omitempty"`
	Revoked    string     `json:"revoked,omitempty"`
	ChangeType ChangeType `json:"changeType"`
}

// Notifier publishes access-control change events for downstream consumers
// (cache invalidation, audit trails). Publishing is fire-and-forget from the
// caller's point of view.
type Notifier interface {
	RoleUpdate(ctx context.Context, role *model.Role, changeType ChangeType) error
	PermissionUpdate(ctx context.Context, permission *model.Permission, changeType ChangeType) error
	UserAccessUpdate(ctx context.Context, change AccessChange) error
}
