package repository

import (
	"context"
	"time"

	"github.com/google/uuid"

	"access-service/internal/repository/model"
)

// Repository is the storage contract consumed by the access engine. Reads
// return snapshots; mutations of a single document are atomic on the storage
// side so concurrent grant/revoke and lockout updates cannot interleave.
type Repository interface {
	GetPermissions(ctx context.Context) ([]*model.Permission, error)
	GetPermission(ctx context.Context, id string) (*model.Permission, error)
	CreatePermission(ctx context.Context, permission *model.Permission) error
	DeletePermission(ctx context.Context, id string) error
	// IsPermissionReferenced reports whether any role or user override still
	// references the permission. Referenced permissions must not be deleted.
	IsPermissionReferenced(ctx context.Context, id string) (bool, error)

	GetAllRoles(ctx context.Context) ([]*model.Role, error)
	GetRole(ctx context.Context, roleId string) (*model.Role, error)
	DoesRoleExist(ctx context.Context, roleId string) (bool, error)
	CreateRole(ctx context.Context, role *model.Role) error
	UpdateRole(ctx context.Context, newRole *model.Role) error
	DeleteRole(ctx context.Context, roleId string) error
	CountUsersWithRole(ctx context.Context, roleId string) (int64, error)

	GetUser(ctx context.Context, userId uuid.UUID) (*model.User, error)
	GetUserByUsername(ctx context.Context, username string) (*model.User, error)
	CreateUser(ctx context.Context, user *model.User) error
	CountUsers(ctx context.Context) (int64, error)
	SetUserRole(ctx context.Context, userId uuid.UUID, roleId string) error
	SetUserActive(ctx context.Context, userId uuid.UUID, active bool) error

	// GrantPermission adds the id to the user's granted set and clears it
	// from the revoked set in the same update. RevokePermission is the
	// mirror operation.
	GrantPermission(ctx context.Context, userId uuid.UUID, permissionId string) error
	RevokePermission(ctx context.Context, userId uuid.UUID, permissionId string) error

	// IncrementLoginAttempts bumps the attempt counter by one and, when the
	// incremented counter reaches maxAttempts, sets the lock timer to
	// lockUntil in the same update. The threshold is judged against the
	// stored counter on the storage side, so two concurrent failures cannot
	// both pass it unlocked. Returns the post-update state.
	IncrementLoginAttempts(ctx context.Context, userId uuid.UUID, maxAttempts int, lockUntil time.Time) (model.SecurityState, error)
	// RestartLoginWindow clears an elapsed lock and restarts the counter at
	// one, counting the current failure as the first of a fresh window.
	RestartLoginWindow(ctx context.Context, userId uuid.UUID) error
	// ResetLoginAttempts zeroes the counter and clears any lock timer.
	ResetLoginAttempts(ctx context.Context, userId uuid.UUID) error
}
