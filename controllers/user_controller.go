package controller

import (
	"errors"
	"strconv"
	"strings"

	"github.com/gofiber/fiber/v2"
	"github.com/sirupsen/logrus"
	"golang.org/x/crypto/bcrypt"
	"gorm.io/gorm"

	"volunteerconnect/models"
	"volunteerconnect/utils"
)

type UpdateProfileRequest struct {
	Name  *string `json:"name" validate:"omitempty,min=1,max=100"`
	Phone *string `json:"phone" validate:"omitempty,max=30"`
	Bio   *string `json:"bio" validate:"omitempty,max=1000"`
}

type ChangePasswordRequest struct {
	CurrentPassword string `json:"current_password" validate:"required"`
	NewPassword     string `json:"new_password" validate:"required,min=8"`
}

type UpdateRoleRequest struct {
	Role *int `json:"role" validate:"required,gte=0"`
}

type UpdateStatusRequest struct {
	IsActive *bool `json:"is_active" validate:"required"`
}

type UserController struct {
	DB      *gorm.DB
	Uploads utils.ImageUpload
	Logger  *logrus.Entry
}

func NewUserController(db *gorm.DB, uploads utils.ImageUpload, logger *logrus.Entry) *UserController {
	return &UserController{
		DB:      db,
		Uploads: uploads,
		Logger:  logger,
	}
}

func (uc *UserController) GetMe(c *fiber.Ctx) error {
	return utils.SuccessResponse(c, fiber.StatusOK, "", currentUser(c))
}

func (uc *UserController) UpdateMe(c *fiber.Ctx) error {
	user := currentUser(c)

	var req UpdateProfileRequest
	if err := c.BodyParser(&req); err != nil {
		return utils.ErrorResponse(c, fiber.StatusBadRequest, "Invalid request body")
	}
	if err := utils.ValidateStruct(req); err != nil {
		return utils.ErrorResponse(c, fiber.StatusBadRequest, err.Error())
	}

	updates := map[string]interface{}{}
	if req.Name != nil {
		name := strings.TrimSpace(*req.Name)
		if name == "" {
			return utils.ErrorResponse(c, fiber.StatusBadRequest, "name cannot be empty")
		}
		updates["name"] = name
	}
	if req.Phone != nil {
		updates["phone"] = emptyToNil(*req.Phone)
	}
	if req.Bio != nil {
		updates["bio"] = emptyToNil(*req.Bio)
	}
	if len(updates) == 0 {
		return utils.ErrorResponse(c, fiber.StatusBadRequest, "No fields to update")
	}

	if err := uc.DB.Model(user).Updates(updates).Error; err != nil {
		return internalError(c, "profile_update", err, map[string]interface{}{"user_id": user.ID})
	}
	if err := uc.DB.First(user, user.ID).Error; err != nil {
		return internalError(c, "profile_reload", err, map[string]interface{}{"user_id": user.ID})
	}

	return utils.SuccessResponse(c, fiber.StatusOK, "Profile updated", user)
}

// ChangePassword bumps the token version and hands back a fresh token.
func (uc *UserController) ChangePassword(c *fiber.Ctx) error {
	user := currentUser(c)

	var req ChangePasswordRequest
	if err := c.BodyParser(&req); err != nil {
		return utils.ErrorResponse(c, fiber.StatusBadRequest, "Invalid request body")
	}
	if err := utils.ValidateStruct(req); err != nil {
		return utils.ErrorResponse(c, fiber.StatusBadRequest, err.Error())
	}

	if err := bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(req.CurrentPassword)); err != nil {
		return utils.ErrorResponse(c, fiber.StatusBadRequest, "Current password is incorrect")
	}

	hashedPassword, err := bcrypt.GenerateFromPassword([]byte(req.NewPassword), bcrypt.DefaultCost)
	if err != nil {
		return internalError(c, "password_hash", err, nil)
	}

	nextVersion := user.TokenVersion + 1
	if err := uc.DB.Model(user).Updates(map[string]interface{}{
		"password_hash": string(hashedPassword),
		"token_version": nextVersion,
	}).Error; err != nil {
		return internalError(c, "password_change", err, map[string]interface{}{"user_id": user.ID})
	}
	user.TokenVersion = nextVersion

	token, err := utils.GenerateJWTToken(user)
	if err != nil {
		return internalError(c, "token_generation", err, map[string]interface{}{"user_id": user.ID})
	}

	return utils.SuccessResponse(c, fiber.StatusOK, "Password updated", fiber.Map{"token": token})
}

// UploadAvatar stores the multipart "avatar" file and replaces the previous image.
func (uc *UserController) UploadAvatar(c *fiber.Ctx) error {
	user := currentUser(c)

	file, err := c.FormFile("avatar")
	if err != nil {
		return utils.ErrorResponse(c, fiber.StatusBadRequest, "avatar file is required")
	}

	url, err := uc.Uploads.Save(c, file)
	if err != nil {
		switch {
		case errors.Is(err, utils.ErrUploadTooLarge):
			return utils.ErrorResponse(c, fiber.StatusRequestEntityTooLarge, err.Error())
		case errors.Is(err, utils.ErrUnsupportedType):
			return utils.ErrorResponse(c, fiber.StatusBadRequest, err.Error())
		}
		return internalError(c, "avatar_save", err, map[string]interface{}{"user_id": user.ID})
	}

	// Copy the old URL: Update writes the new value through the model's pointer.
	var previous string
	if user.ProfileImage != nil {
		previous = *user.ProfileImage
	}
	if err := uc.DB.Model(user).Update("profile_image", url).Error; err != nil {
		uc.Uploads.Remove(url)
		return internalError(c, "avatar_update", err, map[string]interface{}{"user_id": user.ID})
	}
	if previous != "" && previous != url {
		uc.Uploads.Remove(previous)
	}
	user.ProfileImage = &url

	return utils.SuccessResponse(c, fiber.StatusOK, "Profile image updated", user)
}

func (uc *UserController) MyPermissions(c *fiber.Ctx) error {
	user := currentUser(c)

	permissions, err := utils.ResolvePermissions(uc.DB, user)
	if err != nil {
		return internalError(c, "permission_resolve", err, map[string]interface{}{"user_id": user.ID})
	}

	return utils.SuccessResponse(c, fiber.StatusOK, "", fiber.Map{
		"role":        user.Role,
		"is_admin":    user.IsAdmin(),
		"permissions": permissions,
	})
}

// ListUsers supports ?search= (name or email), ?role= and ?is_active= filters.
func (uc *UserController) ListUsers(c *fiber.Ctx) error {
	query := uc.DB.Model(&models.User{})

	if search := strings.TrimSpace(c.Query("search")); search != "" {
		like := "%" + strings.ToLower(search) + "%"
		query = query.Where("LOWER(name) LIKE ? OR LOWER(email) LIKE ?", like, like)
	}
	if role := c.Query("role"); role != "" {
		roleID, err := strconv.Atoi(role)
		if err != nil {
			return utils.ErrorResponse(c, fiber.StatusBadRequest, "Invalid role filter")
		}
		query = query.Where("role = ?", roleID)
	}
	if active := c.Query("is_active"); active != "" {
		query = query.Where("is_active = ?", active == "true" || active == "1")
	}

	var users []models.User
	if err := query.Order("id ASC").Find(&users).Error; err != nil {
		return internalError(c, "user_list", err, nil)
	}

	return utils.SuccessResponse(c, fiber.StatusOK, "", users)
}

// GetUser is open to the user themself and to holders of users.view.
func (uc *UserController) GetUser(c *fiber.Ctx) error {
	caller := currentUser(c)

	id, ok := utils.ParamID(c, "id")
	if !ok {
		return utils.ErrorResponse(c, fiber.StatusBadRequest, "Invalid user ID")
	}

	if id != caller.ID {
		allowed, err := utils.HasPermission(uc.DB, caller, models.PermUsersView)
		if err != nil {
			return internalError(c, "permission_check", err, map[string]interface{}{"user_id": caller.ID})
		}
		if !allowed {
			return utils.ErrorResponse(c, fiber.StatusForbidden, "Insufficient permissions")
		}
	}

	var user models.User
	if err := uc.DB.First(&user, id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return utils.ErrorResponse(c, fiber.StatusNotFound, "User not found")
		}
		return internalError(c, "user_lookup", err, map[string]interface{}{"target_id": id})
	}

	return utils.SuccessResponse(c, fiber.StatusOK, "", user)
}

func (uc *UserController) UpdateUserRole(c *fiber.Ctx) error {
	caller := currentUser(c)

	id, ok := utils.ParamID(c, "id")
	if !ok {
		return utils.ErrorResponse(c, fiber.StatusBadRequest, "Invalid user ID")
	}

	var req UpdateRoleRequest
	if err := c.BodyParser(&req); err != nil {
		return utils.ErrorResponse(c, fiber.StatusBadRequest, "Invalid request body")
	}
	if err := utils.ValidateStruct(req); err != nil {
		return utils.ErrorResponse(c, fiber.StatusBadRequest, err.Error())
	}
	roleID := *req.Role

	if id == caller.ID && models.RoleKindOf(roleID) != models.RoleKindAdmin {
		return utils.ErrorResponse(c, fiber.StatusBadRequest, "You cannot remove your own admin role")
	}

	var roles int64
	if err := uc.DB.Model(&models.Role{}).Where("id = ?", roleID).Count(&roles).Error; err != nil {
		return internalError(c, "role_lookup", err, map[string]interface{}{"role_id": roleID})
	}
	if roles == 0 {
		return utils.ErrorResponse(c, fiber.StatusBadRequest, "Role does not exist")
	}

	var user models.User
	if err := uc.DB.First(&user, id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return utils.ErrorResponse(c, fiber.StatusNotFound, "User not found")
		}
		return internalError(c, "user_lookup", err, map[string]interface{}{"target_id": id})
	}

	if err := uc.DB.Model(&user).Update("role", roleID).Error; err != nil {
		return internalError(c, "role_update", err, map[string]interface{}{"target_id": id})
	}

	utils.LogEvent("user_role_changed", map[string]interface{}{
		"actor_id":  caller.ID,
		"target_id": user.ID,
		"role":      roleID,
	})
	return utils.SuccessResponse(c, fiber.StatusOK, "User role updated", user)
}

func (uc *UserController) UpdateUserStatus(c *fiber.Ctx) error {
	caller := currentUser(c)

	id, ok := utils.ParamID(c, "id")
	if !ok {
		return utils.ErrorResponse(c, fiber.StatusBadRequest, "Invalid user ID")
	}

	var req UpdateStatusRequest
	if err := c.BodyParser(&req); err != nil {
		return utils.ErrorResponse(c, fiber.StatusBadRequest, "Invalid request body")
	}
	if err := utils.ValidateStruct(req); err != nil {
		return utils.ErrorResponse(c, fiber.StatusBadRequest, err.Error())
	}

	if id == caller.ID && !*req.IsActive {
		return utils.ErrorResponse(c, fiber.StatusBadRequest, "You cannot deactivate your own account")
	}

	var user models.User
	if err := uc.DB.First(&user, id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return utils.ErrorResponse(c, fiber.StatusNotFound, "User not found")
		}
		return internalError(c, "user_lookup", err, map[string]interface{}{"target_id": id})
	}

	if err := uc.DB.Model(&user).Update("is_active", *req.IsActive).Error; err != nil {
		return internalError(c, "status_update", err, map[string]interface{}{"target_id": id})
	}

	utils.LogEvent("user_status_changed", map[string]interface{}{
		"actor_id":  caller.ID,
		"target_id": user.ID,
		"is_active": *req.IsActive,
	})
	return utils.SuccessResponse(c, fiber.StatusOK, "User status updated", user)
}

// DeleteUser removes the account with its memberships and task assignments.
func (uc *UserController) DeleteUser(c *fiber.Ctx) error {
	caller := currentUser(c)

	id, ok := utils.ParamID(c, "id")
	if !ok {
		return utils.ErrorResponse(c, fiber.StatusBadRequest, "Invalid user ID")
	}
	if id == caller.ID {
		return utils.ErrorResponse(c, fiber.StatusBadRequest, "You cannot delete your own account")
	}

	var user models.User
	if err := uc.DB.First(&user, id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return utils.ErrorResponse(c, fiber.StatusNotFound, "User not found")
		}
		return internalError(c, "user_lookup", err, map[string]interface{}{"target_id": id})
	}

	tx := uc.DB.Begin()
	if tx.Error != nil {
		return internalError(c, "transaction_begin", tx.Error, nil)
	}

	if err := tx.Where("user_id = ?", user.ID).Delete(&models.TaskUser{}).Error; err != nil {
		tx.Rollback()
		return internalError(c, "user_delete_assignments", err, map[string]interface{}{"target_id": id})
	}
	if err := tx.Where("user_id = ?", user.ID).Delete(&models.ActivityParticipant{}).Error; err != nil {
		tx.Rollback()
		return internalError(c, "user_delete_participants", err, map[string]interface{}{"target_id": id})
	}
	if err := tx.Delete(&user).Error; err != nil {
		tx.Rollback()
		return internalError(c, "user_delete", err, map[string]interface{}{"target_id": id})
	}

	if err := tx.Commit().Error; err != nil {
		return internalError(c, "transaction_commit", err, nil)
	}

	if user.ProfileImage != nil {
		uc.Uploads.Remove(*user.ProfileImage)
	}

	utils.LogEvent("user_deleted", map[string]interface{}{
		"actor_id":  caller.ID,
		"target_id": user.ID,
	})
	return utils.SuccessResponse(c, fiber.StatusOK, "User deleted", nil)
}

func emptyToNil(s string) interface{} {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil
	}
	return s
}
