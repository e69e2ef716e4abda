package models

import "time"

// Role is a named permission bundle. Ids 0 and 1 are the built-in Admin and Volunteer rows.
type Role struct {
	ID          int              `gorm:"primaryKey;autoIncrement" json:"id"`
	Name        string           `gorm:"uniqueIndex;not null" json:"name"`
	Description string           `json:"description"`
	CreatedAt   time.Time        `json:"created_at"`
	UpdatedAt   time.Time        `json:"updated_at"`
	Permissions []RolePermission `gorm:"foreignKey:RoleID;constraint:OnDelete:CASCADE" json:"permissions,omitempty"`
}

// IsProtected reports whether the role is one of the built-in rows.
func (r *Role) IsProtected() bool {
	return IsProtectedRole(r.ID)
}

// RolePermission grants or denies one permission key to a role.
type RolePermission struct {
	ID            uint   `gorm:"primaryKey" json:"id"`
	RoleID        int    `gorm:"not null;uniqueIndex:idx_role_permission" json:"role_id"`
	PermissionKey string `gorm:"not null;size:100;uniqueIndex:idx_role_permission" json:"permission_key"`
	HasAccess     bool   `gorm:"not null" json:"has_access"`
}

// Permission keys understood by the resolver.
const (
	PermUsersView              = "users.view"
	PermRolesView              = "roles.view"
	PermTasksAssign            = "tasks.assign"
	PermActivitiesParticipants = "activities.view_participants"
)

// PermissionInfo describes a catalog entry.
type PermissionInfo struct {
	Key         string `json:"key"`
	Description string `json:"description"`
}

// PermissionCatalog lists every grantable permission.
var PermissionCatalog = []PermissionInfo{
	{Key: PermUsersView, Description: "List users and view other profiles"},
	{Key: PermRolesView, Description: "List roles and their grants"},
	{Key: PermTasksAssign, Description: "Assign users to tasks created by someone else"},
	{Key: PermActivitiesParticipants, Description: "View participants of activities owned by someone else"},
}

// IsKnownPermission reports whether key is in the catalog.
func IsKnownPermission(key string) bool {
	for _, p := range PermissionCatalog {
		if p.Key == key {
			return true
		}
	}
	return false
}
