package model

import (
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/google/uuid"
)

const (
	DefaultRoleId   = "default"
	SuperuserRoleId = "admin"
)

// permissionIdPattern constrains permission identifiers to resource.action form.
var permissionIdPattern = regexp.MustCompile(`^[a-z]+\.[a-z]+$`)

// Permission is an atomic capability identified by "resource.action".
type Permission struct {
	Id          string  `bson:"_id" json:"id"`
	Description *string `bson:"description,omitempty" json:"description,omitempty"`
	IsSystem    bool    `bson:"isSystem" json:"isSystem"`
}

// Resource returns the part of the identifier before the separator.
func (p *Permission) Resource() string {
	resource, _, _ := strings.Cut(p.Id, ".")
	return resource
}

// Action returns the part of the identifier after the separator.
func (p *Permission) Action() string {
	_, action, _ := strings.Cut(p.Id, ".")
	return action
}

// ValidatePermissionId reports whether id is a well-formed permission
// identifier.
func ValidatePermissionId(id string) error {
	if !permissionIdPattern.MatchString(id) {
		return fmt.Errorf("invalid permission id %q: must be lowercase resource.action", id)
	}
	return nil
}

// Role is a named, reusable bundle of permissions. The id doubles as the
// unique role name. Permission order is preserved for display but has no
// effect on resolution.
type Role struct {
	Id          string   `bson:"_id" json:"id"`
	DisplayName *string  `bson:"displayName,omitempty" json:"displayName,omitempty"`
	Permissions []string `bson:"permissions" json:"permissions"`

	// IsSystem roles cannot be deleted or reduced by non-superuser callers.
	IsSystem bool `bson:"isSystem" json:"isSystem"`
	// IsActive is a display filter only. Inactive roles still resolve for
	// the users that hold them.
	IsActive bool `bson:"isActive" json:"isActive"`
	// Superuser roles bypass every permission check. Set at creation time.
	Superuser bool `bson:"superuser" json:"superuser"`
}

// HasPermission reports whether the role's own permission list contains id.
func (r *Role) HasPermission(id string) bool {
	for _, p := range r.Permissions {
		if p == id {
			return true
		}
	}
	return false
}

// CustomPermissions are per-user overrides layered on top of the role.
// Granted and revoked never hold the same id in steady state: the repository
// clears the complementary entry in the same update.
type CustomPermissions struct {
	Granted []string `bson:"granted" json:"granted"`
	Revoked []string `bson:"revoked" json:"revoked"`
}

// SecurityState carries the login-attempt counter and lock timer.
type SecurityState struct {
	LoginAttempts int        `bson:"loginAttempts" json:"loginAttempts"`
	LockUntil     *time.Time `bson:"lockUntil,omitempty" json:"lockUntil,omitempty"`
}

// LockedAt reports whether the account is locked at the given instant.
// An elapsed lock timer counts as unlocked.
func (s *SecurityState) LockedAt(now time.Time) bool {
	return s.LockUntil != nil && now.Before(*s.LockUntil)
}

// User is the subject of authorization. Every user holds exactly one role.
type User struct {
	Id                uuid.UUID         `bson:"_id" json:"id"`
	Username          string            `bson:"username" json:"username"`
	Email             string            `bson:"email" json:"email"`
	PasswordHash      string            `bson:"passwordHash" json:"-"`
	RoleId            string            `bson:"roleId" json:"roleId"`
	CustomPermissions CustomPermissions `bson:"customPermissions" json:"customPermissions"`
	IsActive          bool              `bson:"isActive" json:"isActive"`
	Security          SecurityState     `bson:"security" json:"security"`
}
