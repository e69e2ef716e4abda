package routes

import (
	"errors"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/logger"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"gorm.io/gorm"

	"volunteerconnect/config"
	controller "volunteerconnect/controllers"
	"volunteerconnect/middleware"
	"volunteerconnect/models"
	"volunteerconnect/utils"
)

// Services are the external collaborators handed to the controllers.
type Services struct {
	Mailer  utils.Mailer
	Chat    utils.ChatClient
	Storage fiber.Storage
	Uploads utils.ImageUpload
}

// NewApp builds the Fiber app with the error envelope and the global middleware.
func NewApp(cfg config.Config) *fiber.App {
	bodyLimit := 4 * 1024 * 1024
	if cfg.MaxUploadSizeMB > 0 {
		bodyLimit = (cfg.MaxUploadSizeMB + 1) * 1024 * 1024
	}

	app := fiber.New(fiber.Config{
		AppName:      "Volunteer Connect",
		BodyLimit:    bodyLimit,
		ErrorHandler: errorHandler,
	})

	app.Use(recover.New())
	app.Use(middleware.CORS(corsConfig(cfg)))
	app.Use(logger.New(logger.Config{
		Format: "[${time}] ${status} - ${latency} ${method} ${path}\n",
	}))
	return app
}

func corsConfig(cfg config.Config) middleware.CORSConfig {
	cors := middleware.DefaultCORSConfig()
	if len(cfg.CORSOrigins) > 0 {
		cors.AllowedOrigins = cfg.CORSOrigins
	}
	return cors
}

// errorHandler turns any error that reaches Fiber into the JSON envelope.
func errorHandler(c *fiber.Ctx, err error) error {
	code := fiber.StatusInternalServerError
	message := "Internal server error"

	var fiberErr *fiber.Error
	if errors.As(err, &fiberErr) {
		code = fiberErr.Code
		message = fiberErr.Message
	} else {
		utils.LogError("unhandled_error", err, map[string]interface{}{
			"path":   c.Path(),
			"method": c.Method(),
		})
	}
	return utils.ErrorResponse(c, code, message)
}

func SetupRoutes(app *fiber.App, db *gorm.DB, svc Services) {
	authController := controller.NewAuthController(db, svc.Mailer, utils.NewLogger("auth"))
	userController := controller.NewUserController(db, svc.Uploads, utils.NewLogger("users"))
	roleController := controller.NewRoleController(db, utils.NewLogger("roles"))
	activityController := controller.NewActivityController(db, utils.NewLogger("activities"))
	membershipController := controller.NewMembershipController(db, utils.NewLogger("membership"))
	taskController := controller.NewTaskController(db, utils.NewLogger("tasks"))
	chatController := controller.NewChatController(svc.Chat, utils.NewLogger("chat"))

	app.Get("/health", func(c *fiber.Ctx) error {
		return utils.SuccessResponse(c, fiber.StatusOK, "", fiber.Map{
			"status":  "running",
			"version": "1.0.0",
		})
	})

	if svc.Uploads.Dir != "" && svc.Uploads.PublicPrefix != "" {
		app.Static(svc.Uploads.PublicPrefix, svc.Uploads.Dir)
	}

	protected := middleware.Protected(db)
	adminOnly := middleware.AdminOnly()

	// Public auth endpoints
	auth := app.Group("/auth", middleware.RateLimiter("auth", config.AppConfig.AuthRateLimit, svc.Storage))
	auth.Post("/register", authController.Register)
	auth.Post("/login", authController.Login)
	auth.Post("/forgot-password", authController.ForgotPassword)
	auth.Post("/verify-reset-token", authController.VerifyResetToken)
	auth.Post("/reset-password-with-token", authController.ResetPasswordWithToken)

	// Users
	users := app.Group("/users", protected)
	users.Get("/me", userController.GetMe)
	users.Put("/me", userController.UpdateMe)
	users.Put("/me/password", userController.ChangePassword)
	users.Post("/me/avatar", userController.UploadAvatar)
	users.Get("/me/permissions", userController.MyPermissions)
	users.Get("/", middleware.RequirePermission(db, models.PermUsersView), userController.ListUsers)
	users.Get("/:id", userController.GetUser)
	users.Put("/:id/role", adminOnly, userController.UpdateUserRole)
	users.Put("/:id/status", adminOnly, userController.UpdateUserStatus)
	users.Delete("/:id", adminOnly, userController.DeleteUser)

	// Roles and permissions
	app.Get("/permissions", protected, roleController.ListPermissions)

	roles := app.Group("/roles", protected)
	roles.Get("/", middleware.RequirePermission(db, models.PermRolesView), roleController.ListRoles)
	roles.Post("/", adminOnly, roleController.CreateRole)
	roles.Put("/:id", adminOnly, roleController.UpdateRole)
	roles.Delete("/:id", adminOnly, roleController.DeleteRole)
	roles.Get("/:id/permissions", middleware.RequirePermission(db, models.PermRolesView), roleController.GetRolePermissions)
	roles.Put("/:id/permissions", adminOnly, roleController.UpdateRolePermissions)

	// Activities
	activities := app.Group("/activities", protected)
	activities.Post("/", activityController.CreateActivity)
	activities.Get("/", activityController.ListActivities)
	activities.Get("/joined", activityController.JoinedActivities)
	activities.Get("/:id", activityController.GetActivity)
	activities.Put("/:id", activityController.UpdateActivity)
	activities.Delete("/:id", activityController.DeleteActivity)
	activities.Get("/:id/participants", activityController.GetParticipants)
	activities.Post("/:id/join", membershipController.JoinActivity)
	activities.Post("/:id/leave", membershipController.LeaveActivity)

	// Tasks
	tasks := activities.Group("/:id/tasks")
	tasks.Post("/", taskController.CreateTask)
	tasks.Get("/", taskController.ListTasks)
	tasks.Get("/:taskId", taskController.GetTask)
	tasks.Put("/:taskId", taskController.UpdateTask)
	tasks.Delete("/:taskId", taskController.DeleteTask)
	tasks.Patch("/:taskId/toggle", taskController.ToggleTask)
	tasks.Post("/:taskId/users", taskController.AddUserToTask)
	tasks.Delete("/:taskId/users/:userId", taskController.RemoveUserFromTask)
	tasks.Put("/:taskId/users/:userId/status", taskController.UpdateAssignmentStatus)

	// AI assistant
	app.Post("/chat", protected, middleware.RateLimiter("chat", config.AppConfig.ChatRateLimit, svc.Storage), chatController.Chat)

	app.Use(func(c *fiber.Ctx) error {
		return utils.ErrorResponse(c, fiber.StatusNotFound, "Route not found")
	})
}
