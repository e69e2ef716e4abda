package controller

import (
	"errors"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/sirupsen/logrus"
	"golang.org/x/crypto/bcrypt"
	"gorm.io/gorm"

	"volunteerconnect/config"
	"volunteerconnect/models"
	"volunteerconnect/utils"
)

type RegisterRequest struct {
	Name     string  `json:"name" validate:"required,max=100"`
	Email    string  `json:"email" validate:"required,mailbox"`
	Password string  `json:"password" validate:"required,min=8"`
	Phone    *string `json:"phone" validate:"omitempty,max=30"`
}

type LoginRequest struct {
	Email    string `json:"email" validate:"required,mailbox"`
	Password string `json:"password" validate:"required"`
}

type ForgotPasswordRequest struct {
	Email string `json:"email" validate:"required,mailbox"`
}

type VerifyResetTokenRequest struct {
	Token string `json:"token" validate:"required"`
}

type ResetPasswordRequest struct {
	Token    string `json:"token" validate:"required"`
	Password string `json:"password" validate:"required,min=8"`
}

type AuthResponse struct {
	Token string       `json:"token"`
	User  *models.User `json:"user"`
}

// forgotPasswordMessage is returned whether or not the address matched an account.
const forgotPasswordMessage = "If an account exists for that email, a password reset link has been sent"

type AuthController struct {
	DB     *gorm.DB
	Mailer utils.Mailer
	Logger *logrus.Entry
}

func NewAuthController(db *gorm.DB, mailer utils.Mailer, logger *logrus.Entry) *AuthController {
	return &AuthController{
		DB:     db,
		Mailer: mailer,
		Logger: logger,
	}
}

// Register creates a volunteer account and signs the caller in.
func (ac *AuthController) Register(c *fiber.Ctx) error {
	var req RegisterRequest
	if err := c.BodyParser(&req); err != nil {
		return utils.ErrorResponse(c, fiber.StatusBadRequest, "Invalid request body")
	}
	if err := utils.ValidateStruct(req); err != nil {
		return utils.ErrorResponse(c, fiber.StatusBadRequest, err.Error())
	}

	email := utils.NormalizeEmail(req.Email)

	var existing int64
	if err := ac.DB.Model(&models.User{}).Where("email = ?", email).Count(&existing).Error; err != nil {
		return internalError(c, "register_lookup", err, nil)
	}
	if existing > 0 {
		return utils.ErrorResponse(c, fiber.StatusConflict, "Email already registered")
	}

	hashedPassword, err := bcrypt.GenerateFromPassword([]byte(req.Password), bcrypt.DefaultCost)
	if err != nil {
		return internalError(c, "password_hash", err, nil)
	}

	user := models.User{
		Email:        email,
		PasswordHash: string(hashedPassword),
		Name:         req.Name,
		Phone:        req.Phone,
		Role:         models.RoleVolunteerID,
		IsActive:     true,
	}
	if err := ac.DB.Create(&user).Error; err != nil {
		return internalError(c, "register_create", err, map[string]interface{}{"email": email})
	}

	token, err := utils.GenerateJWTToken(&user)
	if err != nil {
		return internalError(c, "token_generation", err, map[string]interface{}{"user_id": user.ID})
	}

	ac.Logger.WithField("user_id", user.ID).Info("User registered")
	return utils.SuccessResponse(c, fiber.StatusCreated, "Registration successful", AuthResponse{Token: token, User: &user})
}

func (ac *AuthController) Login(c *fiber.Ctx) error {
	var req LoginRequest
	if err := c.BodyParser(&req); err != nil {
		return utils.ErrorResponse(c, fiber.StatusBadRequest, "Invalid request body")
	}
	if err := utils.ValidateStruct(req); err != nil {
		return utils.ErrorResponse(c, fiber.StatusBadRequest, err.Error())
	}

	var user models.User
	if err := ac.DB.Where("email = ?", utils.NormalizeEmail(req.Email)).First(&user).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return utils.ErrorResponse(c, fiber.StatusUnauthorized, "Invalid email or password")
		}
		return internalError(c, "login_lookup", err, nil)
	}

	if err := bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(req.Password)); err != nil {
		return utils.ErrorResponse(c, fiber.StatusUnauthorized, "Invalid email or password")
	}

	if !user.IsActive {
		return utils.ErrorResponse(c, fiber.StatusForbidden, "Account is not active")
	}

	token, err := utils.GenerateJWTToken(&user)
	if err != nil {
		return internalError(c, "token_generation", err, map[string]interface{}{"user_id": user.ID})
	}

	return utils.SuccessResponse(c, fiber.StatusOK, "Login successful", AuthResponse{Token: token, User: &user})
}

// ForgotPassword stores a hashed reset token and mails the raw one. Unknown or inactive
// addresses get the same answer as known ones.
func (ac *AuthController) ForgotPassword(c *fiber.Ctx) error {
	var req ForgotPasswordRequest
	if err := c.BodyParser(&req); err != nil {
		return utils.ErrorResponse(c, fiber.StatusBadRequest, "Invalid request body")
	}
	if err := utils.ValidateStruct(req); err != nil {
		return utils.ErrorResponse(c, fiber.StatusBadRequest, err.Error())
	}

	var user models.User
	err := ac.DB.Where("email = ? AND is_active = ?", utils.NormalizeEmail(req.Email), true).First(&user).Error
	if err != nil {
		if !errors.Is(err, gorm.ErrRecordNotFound) {
			utils.LogError("forgot_password_lookup", err, nil)
		}
		return utils.SuccessResponse(c, fiber.StatusOK, forgotPasswordMessage, nil)
	}

	token, err := utils.GenerateSecureToken()
	if err != nil {
		return internalError(c, "reset_token_generation", err, nil)
	}

	hash := utils.HashToken(token)
	expiresAt := time.Now().Add(config.AppConfig.ResetTokenTTL)
	if err := ac.DB.Model(&user).Updates(map[string]interface{}{
		"reset_token_hash":       hash,
		"reset_token_expires_at": expiresAt,
	}).Error; err != nil {
		return internalError(c, "reset_token_store", err, map[string]interface{}{"user_id": user.ID})
	}

	if err := ac.Mailer.SendPasswordResetEmail(user.Email, token, user.Name); err != nil {
		utils.LogError("reset_email_send", err, map[string]interface{}{"user_id": user.ID})
	}

	utils.LogEvent("password_reset_requested", map[string]interface{}{"user_id": user.ID})
	return utils.SuccessResponse(c, fiber.StatusOK, forgotPasswordMessage, nil)
}

func (ac *AuthController) VerifyResetToken(c *fiber.Ctx) error {
	var req VerifyResetTokenRequest
	if err := c.BodyParser(&req); err != nil {
		return utils.ErrorResponse(c, fiber.StatusBadRequest, "Invalid request body")
	}
	if err := utils.ValidateStruct(req); err != nil {
		return utils.ErrorResponse(c, fiber.StatusBadRequest, err.Error())
	}

	if _, err := ac.findByResetToken(req.Token); err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return utils.ErrorResponse(c, fiber.StatusBadRequest, "Invalid or expired reset token")
		}
		return internalError(c, "reset_token_lookup", err, nil)
	}

	return utils.SuccessResponse(c, fiber.StatusOK, "Reset token is valid", fiber.Map{"valid": true})
}

// ResetPasswordWithToken consumes the token, sets the password and invalidates issued JWTs.
func (ac *AuthController) ResetPasswordWithToken(c *fiber.Ctx) error {
	var req ResetPasswordRequest
	if err := c.BodyParser(&req); err != nil {
		return utils.ErrorResponse(c, fiber.StatusBadRequest, "Invalid request body")
	}
	if err := utils.ValidateStruct(req); err != nil {
		return utils.ErrorResponse(c, fiber.StatusBadRequest, err.Error())
	}

	user, err := ac.findByResetToken(req.Token)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return utils.ErrorResponse(c, fiber.StatusBadRequest, "Invalid or expired reset token")
		}
		return internalError(c, "reset_token_lookup", err, nil)
	}

	hashedPassword, err := bcrypt.GenerateFromPassword([]byte(req.Password), bcrypt.DefaultCost)
	if err != nil {
		return internalError(c, "password_hash", err, nil)
	}

	if err := ac.DB.Model(user).Updates(map[string]interface{}{
		"password_hash":          string(hashedPassword),
		"reset_token_hash":       nil,
		"reset_token_expires_at": nil,
		"token_version":          gorm.Expr("token_version + 1"),
	}).Error; err != nil {
		return internalError(c, "password_reset", err, map[string]interface{}{"user_id": user.ID})
	}

	utils.LogEvent("password_reset_completed", map[string]interface{}{"user_id": user.ID})
	return utils.SuccessResponse(c, fiber.StatusOK, "Password has been reset", nil)
}

func (ac *AuthController) findByResetToken(token string) (*models.User, error) {
	var user models.User
	err := ac.DB.Where("reset_token_hash = ? AND reset_token_expires_at > ? AND is_active = ?",
		utils.HashToken(token), time.Now(), true).
		First(&user).Error
	if err != nil {
		return nil, err
	}
	return &user, nil
}
