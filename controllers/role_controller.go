package controller

import (
	"errors"
	"strings"

	"github.com/gofiber/fiber/v2"
	"github.com/sirupsen/logrus"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"volunteerconnect/models"
	"volunteerconnect/utils"
)

type RoleRequest struct {
	Name        string `json:"name" validate:"required,max=50"`
	Description string `json:"description" validate:"max=255"`
}

type PermissionGrant struct {
	Key       string `json:"key" validate:"required"`
	HasAccess bool   `json:"has_access"`
}

type UpdateRolePermissionsRequest struct {
	Permissions []PermissionGrant `json:"permissions" validate:"required,dive"`
}

// RolePermissionView is one catalog entry resolved for a role.
type RolePermissionView struct {
	Key         string `json:"key"`
	Description string `json:"description"`
	HasAccess   bool   `json:"has_access"`
}

type RoleController struct {
	DB     *gorm.DB
	Logger *logrus.Entry
}

func NewRoleController(db *gorm.DB, logger *logrus.Entry) *RoleController {
	return &RoleController{
		DB:     db,
		Logger: logger,
	}
}

func (rc *RoleController) ListPermissions(c *fiber.Ctx) error {
	return utils.SuccessResponse(c, fiber.StatusOK, "", models.PermissionCatalog)
}

func (rc *RoleController) ListRoles(c *fiber.Ctx) error {
	var roles []models.Role
	if err := rc.DB.Preload("Permissions").Order("id ASC").Find(&roles).Error; err != nil {
		return internalError(c, "role_list", err, nil)
	}

	type roleCount struct {
		Role  int
		Count int64
	}
	var counts []roleCount
	if err := rc.DB.Model(&models.User{}).Select("role, COUNT(*) AS count").Group("role").Scan(&counts).Error; err != nil {
		return internalError(c, "role_user_counts", err, nil)
	}
	byRole := make(map[int]int64, len(counts))
	for _, row := range counts {
		byRole[row.Role] = row.Count
	}

	out := make([]fiber.Map, 0, len(roles))
	for _, r := range roles {
		out = append(out, fiber.Map{
			"id":          r.ID,
			"name":        r.Name,
			"description": r.Description,
			"protected":   r.IsProtected(),
			"user_count":  byRole[r.ID],
			"permissions": r.Permissions,
			"created_at":  r.CreatedAt,
			"updated_at":  r.UpdatedAt,
		})
	}
	return utils.SuccessResponse(c, fiber.StatusOK, "", out)
}

func (rc *RoleController) CreateRole(c *fiber.Ctx) error {
	var req RoleRequest
	if err := c.BodyParser(&req); err != nil {
		return utils.ErrorResponse(c, fiber.StatusBadRequest, "Invalid request body")
	}
	req.Name = strings.TrimSpace(req.Name)
	if err := utils.ValidateStruct(req); err != nil {
		return utils.ErrorResponse(c, fiber.StatusBadRequest, err.Error())
	}

	taken, err := rc.nameTaken(req.Name, -1)
	if err != nil {
		return internalError(c, "role_name_lookup", err, nil)
	}
	if taken {
		return utils.ErrorResponse(c, fiber.StatusConflict, "A role with this name already exists")
	}

	role := models.Role{Name: req.Name, Description: req.Description}
	if err := rc.DB.Create(&role).Error; err != nil {
		return internalError(c, "role_create", err, map[string]interface{}{"name": req.Name})
	}

	utils.LogEvent("role_created", map[string]interface{}{"role_id": role.ID, "name": role.Name})
	return utils.SuccessResponse(c, fiber.StatusCreated, "Role created", role)
}

// UpdateRole edits a role. Built-in roles keep their names.
func (rc *RoleController) UpdateRole(c *fiber.Ctx) error {
	id, ok := utils.ParamInt(c, "id")
	if !ok {
		return utils.ErrorResponse(c, fiber.StatusBadRequest, "Invalid role ID")
	}

	var req RoleRequest
	if err := c.BodyParser(&req); err != nil {
		return utils.ErrorResponse(c, fiber.StatusBadRequest, "Invalid request body")
	}
	req.Name = strings.TrimSpace(req.Name)
	if err := utils.ValidateStruct(req); err != nil {
		return utils.ErrorResponse(c, fiber.StatusBadRequest, err.Error())
	}

	role, err := rc.findRole(id)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return utils.ErrorResponse(c, fiber.StatusNotFound, "Role not found")
		}
		return internalError(c, "role_lookup", err, map[string]interface{}{"role_id": id})
	}

	if role.IsProtected() && req.Name != role.Name {
		return utils.ErrorResponse(c, fiber.StatusBadRequest, "Built-in roles cannot be renamed")
	}

	taken, err := rc.nameTaken(req.Name, id)
	if err != nil {
		return internalError(c, "role_name_lookup", err, nil)
	}
	if taken {
		return utils.ErrorResponse(c, fiber.StatusConflict, "A role with this name already exists")
	}

	// Where on id: the Admin row has id 0, which gorm would read as an unset primary key.
	if err := rc.DB.Model(&models.Role{}).Where("id = ?", id).Updates(map[string]interface{}{
		"name":        req.Name,
		"description": req.Description,
	}).Error; err != nil {
		return internalError(c, "role_update", err, map[string]interface{}{"role_id": id})
	}

	role, err = rc.findRole(id)
	if err != nil {
		return internalError(c, "role_reload", err, map[string]interface{}{"role_id": id})
	}
	return utils.SuccessResponse(c, fiber.StatusOK, "Role updated", role)
}

// DeleteRole moves the role's users to Volunteer and drops its grants.
func (rc *RoleController) DeleteRole(c *fiber.Ctx) error {
	id, ok := utils.ParamInt(c, "id")
	if !ok {
		return utils.ErrorResponse(c, fiber.StatusBadRequest, "Invalid role ID")
	}
	if models.IsProtectedRole(id) {
		return utils.ErrorResponse(c, fiber.StatusBadRequest, "Built-in roles cannot be deleted")
	}

	if _, err := rc.findRole(id); err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return utils.ErrorResponse(c, fiber.StatusNotFound, "Role not found")
		}
		return internalError(c, "role_lookup", err, map[string]interface{}{"role_id": id})
	}

	tx := rc.DB.Begin()
	if tx.Error != nil {
		return internalError(c, "transaction_begin", tx.Error, nil)
	}

	moved := tx.Model(&models.User{}).Where("role = ?", id).Update("role", models.RoleVolunteerID)
	if moved.Error != nil {
		tx.Rollback()
		return internalError(c, "role_reassign_users", moved.Error, map[string]interface{}{"role_id": id})
	}
	if err := tx.Where("role_id = ?", id).Delete(&models.RolePermission{}).Error; err != nil {
		tx.Rollback()
		return internalError(c, "role_delete_grants", err, map[string]interface{}{"role_id": id})
	}
	if err := tx.Where("id = ?", id).Delete(&models.Role{}).Error; err != nil {
		tx.Rollback()
		return internalError(c, "role_delete", err, map[string]interface{}{"role_id": id})
	}

	if err := tx.Commit().Error; err != nil {
		return internalError(c, "transaction_commit", err, nil)
	}

	utils.LogEvent("role_deleted", map[string]interface{}{
		"role_id":     id,
		"users_moved": moved.RowsAffected,
	})
	return utils.SuccessResponse(c, fiber.StatusOK, "Role deleted", fiber.Map{"users_moved": moved.RowsAffected})
}

// GetRolePermissions lists the whole catalog with the role's resolved access.
func (rc *RoleController) GetRolePermissions(c *fiber.Ctx) error {
	id, ok := utils.ParamInt(c, "id")
	if !ok {
		return utils.ErrorResponse(c, fiber.StatusBadRequest, "Invalid role ID")
	}

	role, err := rc.findRole(id)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return utils.ErrorResponse(c, fiber.StatusNotFound, "Role not found")
		}
		return internalError(c, "role_lookup", err, map[string]interface{}{"role_id": id})
	}

	return utils.SuccessResponse(c, fiber.StatusOK, "", fiber.Map{
		"role":        role,
		"permissions": resolveRoleGrants(role),
	})
}

// UpdateRolePermissions upserts grants for a role. The Admin role always holds every permission.
func (rc *RoleController) UpdateRolePermissions(c *fiber.Ctx) error {
	id, ok := utils.ParamInt(c, "id")
	if !ok {
		return utils.ErrorResponse(c, fiber.StatusBadRequest, "Invalid role ID")
	}
	if models.RoleKindOf(id) == models.RoleKindAdmin {
		return utils.ErrorResponse(c, fiber.StatusBadRequest, "Admin role permissions cannot be changed")
	}

	var req UpdateRolePermissionsRequest
	if err := c.BodyParser(&req); err != nil {
		return utils.ErrorResponse(c, fiber.StatusBadRequest, "Invalid request body")
	}
	if err := utils.ValidateStruct(req); err != nil {
		return utils.ErrorResponse(c, fiber.StatusBadRequest, err.Error())
	}
	if len(req.Permissions) == 0 {
		return utils.ErrorResponse(c, fiber.StatusBadRequest, "permissions cannot be empty")
	}

	var unknown []string
	for _, g := range req.Permissions {
		if !models.IsKnownPermission(g.Key) {
			unknown = append(unknown, g.Key)
		}
	}
	if len(unknown) > 0 {
		return utils.ErrorResponseWithData(c, fiber.StatusBadRequest, "Unknown permission keys", fiber.Map{"unknown_keys": unknown})
	}

	if _, err := rc.findRole(id); err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return utils.ErrorResponse(c, fiber.StatusNotFound, "Role not found")
		}
		return internalError(c, "role_lookup", err, map[string]interface{}{"role_id": id})
	}

	grants := make([]models.RolePermission, 0, len(req.Permissions))
	for _, g := range req.Permissions {
		grants = append(grants, models.RolePermission{RoleID: id, PermissionKey: g.Key, HasAccess: g.HasAccess})
	}

	err := rc.DB.Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "role_id"}, {Name: "permission_key"}},
		DoUpdates: clause.AssignmentColumns([]string{"has_access"}),
	}).Create(&grants).Error
	if err != nil {
		return internalError(c, "role_grants_upsert", err, map[string]interface{}{"role_id": id})
	}

	role, err := rc.findRole(id)
	if err != nil {
		return internalError(c, "role_reload", err, map[string]interface{}{"role_id": id})
	}

	utils.LogEvent("role_permissions_updated", map[string]interface{}{"role_id": id, "grants": len(grants)})
	return utils.SuccessResponse(c, fiber.StatusOK, "Role permissions updated", fiber.Map{
		"role":        role,
		"permissions": resolveRoleGrants(role),
	})
}

func (rc *RoleController) findRole(id int) (*models.Role, error) {
	var role models.Role
	if err := rc.DB.Preload("Permissions").Where("id = ?", id).First(&role).Error; err != nil {
		return nil, err
	}
	return &role, nil
}

func (rc *RoleController) nameTaken(name string, exceptID int) (bool, error) {
	var count int64
	err := rc.DB.Model(&models.Role{}).
		Where("LOWER(name) = ? AND id <> ?", strings.ToLower(name), exceptID).
		Count(&count).Error
	return count > 0, err
}

func resolveRoleGrants(role *models.Role) []RolePermissionView {
	granted := make(map[string]bool, len(role.Permissions))
	for _, p := range role.Permissions {
		granted[p.PermissionKey] = p.HasAccess
	}

	out := make([]RolePermissionView, 0, len(models.PermissionCatalog))
	for _, p := range models.PermissionCatalog {
		out = append(out, RolePermissionView{
			Key:         p.Key,
			Description: p.Description,
			HasAccess:   models.RoleKindOf(role.ID) == models.RoleKindAdmin || granted[p.Key],
		})
	}
	return out
}
