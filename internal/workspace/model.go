// Package workspace stores workspaces and their memberships. It is the
// namespacing and access-control boundary consumed by the notes engine.
package workspace

import (
	"strings"

	"github.com/woodshedhq/woodshed/internal/apperr"
)

// Role enumerates membership roles within a workspace.
type Role string

const (
	// RoleOwner has full control including deletion.
	RoleOwner Role = "OWNER"
	// RoleAdmin can write and delete content.
	RoleAdmin Role = "ADMIN"
	// RoleMember can read and write content.
	RoleMember Role = "MEMBER"
)

// CanWrite reports whether the role may create or update content.
func (r Role) CanWrite() bool {
	switch r {
	case RoleOwner, RoleAdmin, RoleMember:
		return true
	default:
		return false
	}
}

// CanDelete reports whether the role may delete content.
func (r Role) CanDelete() bool {
	switch r {
	case RoleOwner, RoleAdmin:
		return true
	default:
		return false
	}
}

// ParseRole validates a raw role string.
func ParseRole(value string) (Role, error) {
	switch Role(strings.ToUpper(strings.TrimSpace(value))) {
	case RoleOwner:
		return RoleOwner, nil
	case RoleAdmin:
		return RoleAdmin, nil
	case RoleMember:
		return RoleMember, nil
	default:
		return "", apperr.Validation("workspace.parse_role.unknown_role", nil)
	}
}

// Workspace models a named collaboration space.
type Workspace struct {
	ID               string `gorm:"column:id;primaryKey;size:190;not null"`
	Name             string `gorm:"column:name;size:500;not null"`
	CreatedAtSeconds int64  `gorm:"column:created_at_s;not null"`
	UpdatedAtSeconds int64  `gorm:"column:updated_at_s;not null"`
}

// TableName provides the explicit table binding for GORM.
func (Workspace) TableName() string {
	return "workspaces"
}

// Membership binds a user to a workspace with a role.
type Membership struct {
	WorkspaceID      string `gorm:"column:workspace_id;primaryKey;size:190;not null"`
	UserID           string `gorm:"column:user_id;primaryKey;size:190;not null"`
	Role             Role   `gorm:"column:role;size:32;not null"`
	CreatedAtSeconds int64  `gorm:"column:created_at_s;not null"`
}

// TableName provides the explicit table binding for GORM.
func (Membership) TableName() string {
	return "workspace_memberships"
}
