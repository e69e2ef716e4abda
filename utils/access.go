package utils

import (
	"gorm.io/gorm"

	"volunteerconnect/models"
)

// HasPermission resolves a permission for the user. Admins hold every permission;
// anyone else needs a grant row with has_access set. Missing rows and unknown keys deny.
func HasPermission(db *gorm.DB, user *models.User, key string) (bool, error) {
	if user.IsAdmin() {
		return true, nil
	}
	if !models.IsKnownPermission(key) {
		return false, nil
	}

	var count int64
	err := db.Model(&models.RolePermission{}).
		Where("role_id = ? AND permission_key = ? AND has_access = ?", user.Role, key, true).
		Count(&count).Error
	if err != nil {
		return false, err
	}
	return count > 0, nil
}

// ResolvePermissions returns every catalog key with its resolved value for the user.
func ResolvePermissions(db *gorm.DB, user *models.User) (map[string]bool, error) {
	resolved := make(map[string]bool, len(models.PermissionCatalog))
	for _, p := range models.PermissionCatalog {
		resolved[p.Key] = user.IsAdmin()
	}
	if user.IsAdmin() {
		return resolved, nil
	}

	var grants []models.RolePermission
	if err := db.Where("role_id = ?", user.Role).Find(&grants).Error; err != nil {
		return nil, err
	}
	for _, g := range grants {
		if _, known := resolved[g.PermissionKey]; known {
			resolved[g.PermissionKey] = g.HasAccess
		}
	}
	return resolved, nil
}

// CanViewActivity applies the listing visibility rule to a single activity.
func CanViewActivity(user *models.User, activity *models.Activity) bool {
	if !activity.IsActive {
		return false
	}
	return user.IsAdmin() || activity.IsPublic || activity.CreatedBy == user.ID
}

// CanManageActivity reports whether the user may edit or delete the activity.
func CanManageActivity(user *models.User, activity *models.Activity) bool {
	return user.IsAdmin() || activity.CreatedBy == user.ID
}

// CanModifyTask reports whether the user may edit or delete the task. A non-admin
// needs to be the creator, and tasks authored by an admin stay closed to non-admins.
func CanModifyTask(user *models.User, task *models.ActivityTask) bool {
	if user.IsAdmin() {
		return true
	}
	return task.CreatedBy == user.ID && !task.CreatedByAdmin
}

// CanChangeTaskStatus extends CanModifyTask to users assigned to the task.
// Assignees must be loaded on task.
func CanChangeTaskStatus(user *models.User, task *models.ActivityTask) bool {
	return CanModifyTask(user, task) || task.IsAssigned(user.ID)
}
