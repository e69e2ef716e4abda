package models

import (
	"time"

	"gorm.io/gorm"
)

// Built-in role ids. Both rows are seeded at boot and are protected.
const (
	RoleAdminID     = 0
	RoleVolunteerID = 1
)

// RoleKind is the collapsed view of a user's numeric role.
type RoleKind int

const (
	RoleKindAdmin RoleKind = iota
	RoleKindVolunteer
	RoleKindCustom
)

func (k RoleKind) String() string {
	switch k {
	case RoleKindAdmin:
		return "admin"
	case RoleKindVolunteer:
		return "volunteer"
	default:
		return "custom"
	}
}

// RoleKindOf maps a stored role id to its kind.
func RoleKindOf(roleID int) RoleKind {
	switch roleID {
	case RoleAdminID:
		return RoleKindAdmin
	case RoleVolunteerID:
		return RoleKindVolunteer
	default:
		return RoleKindCustom
	}
}

// IsProtectedRole reports whether the role row may never be renamed or deleted.
func IsProtectedRole(roleID int) bool {
	return roleID == RoleAdminID || roleID == RoleVolunteerID
}

// User represents an account on the platform
type User struct {
	ID        uint      `gorm:"primaryKey" json:"id"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`

	// Authentication fields
	Email        string `gorm:"uniqueIndex;not null" json:"email"`
	PasswordHash string `gorm:"not null" json:"-"`
	TokenVersion int    `gorm:"not null" json:"-"`

	// Password reset
	ResetTokenHash      *string    `gorm:"index" json:"-"`
	ResetTokenExpiresAt *time.Time `json:"-"`

	// Profile information
	Name         string  `gorm:"not null" json:"name"`
	Phone        *string `json:"phone,omitempty"`
	Bio          *string `json:"bio,omitempty"`
	ProfileImage *string `json:"profile_image,omitempty"`

	// Account status. Role and IsActive carry no column default; every insert sets both.
	Role     int  `gorm:"not null;index" json:"role"`
	IsActive bool `gorm:"not null" json:"is_active"`

	// Derived from Role on load, kept only for clients that still read it.
	UserType string `gorm:"-" json:"user_type"`
}

func (u *User) IsAdmin() bool {
	return RoleKindOf(u.Role) == RoleKindAdmin
}

func (u *User) RoleKind() RoleKind {
	return RoleKindOf(u.Role)
}

func (u *User) legacyUserType() string {
	if u.IsAdmin() {
		return "admin"
	}
	return "volunteer"
}

func (u *User) AfterFind(tx *gorm.DB) error {
	u.UserType = u.legacyUserType()
	return nil
}

func (u *User) AfterSave(tx *gorm.DB) error {
	u.UserType = u.legacyUserType()
	return nil
}
