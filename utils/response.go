package utils

import (
	"strconv"

	"github.com/gofiber/fiber/v2"
)

// ErrorResponse writes the failure envelope.
func ErrorResponse(c *fiber.Ctx, status int, message string) error {
	return c.Status(status).JSON(fiber.Map{
		"success": false,
		"message": message,
	})
}

// ErrorResponseWithData writes the failure envelope with extra detail, e.g. offending ids.
func ErrorResponseWithData(c *fiber.Ctx, status int, message string, data interface{}) error {
	return c.Status(status).JSON(fiber.Map{
		"success": false,
		"message": message,
		"data":    data,
	})
}

// SuccessResponse writes the success envelope. Empty message and nil data are omitted.
func SuccessResponse(c *fiber.Ctx, status int, message string, data interface{}) error {
	response := fiber.Map{"success": true}
	if message != "" {
		response["message"] = message
	}
	if data != nil {
		response["data"] = data
	}
	return c.Status(status).JSON(response)
}

// ParseUint safely parses a string to uint
func ParseUint(s string) uint {
	i, _ := strconv.ParseUint(s, 10, 32)
	return uint(i)
}

// ParamID reads a positive numeric path parameter.
func ParamID(c *fiber.Ctx, name string) (uint, bool) {
	id := ParseUint(c.Params(name))
	return id, id > 0
}

// ParamInt reads a non-negative integer path parameter, zero allowed (role ids start at 0).
func ParamInt(c *fiber.Ctx, name string) (int, bool) {
	v, err := strconv.Atoi(c.Params(name))
	if err != nil || v < 0 {
		return 0, false
	}
	return v, true
}
