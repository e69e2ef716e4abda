package controller

import (
	"github.com/gofiber/fiber/v2"

	"volunteerconnect/models"
	"volunteerconnect/utils"
)

func currentUser(c *fiber.Ctx) *models.User {
	return c.Locals("user").(*models.User)
}

// internalError logs err with context and answers with a generic 500.
func internalError(c *fiber.Ctx, errorType string, err error, context map[string]interface{}) error {
	if context == nil {
		context = map[string]interface{}{}
	}
	context["path"] = c.Path()
	context["method"] = c.Method()
	utils.LogError(errorType, err, context)
	return utils.ErrorResponse(c, fiber.StatusInternalServerError, "Internal server error")
}
