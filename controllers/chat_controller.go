package controller

import (
	"errors"

	"github.com/gofiber/fiber/v2"
	"github.com/sirupsen/logrus"

	"volunteerconnect/utils"
)

const chatSystemPrompt = "You are the Volunteer Connect assistant. Help volunteers and organizers with activities, tasks and volunteering questions."

type ChatRequest struct {
	Message string              `json:"message" validate:"required,max=4000"`
	History []utils.ChatMessage `json:"history" validate:"omitempty,max=50,dive"`
}

type ChatController struct {
	Client utils.ChatClient
	Logger *logrus.Entry
}

func NewChatController(client utils.ChatClient, logger *logrus.Entry) *ChatController {
	return &ChatController{
		Client: client,
		Logger: logger,
	}
}

// Chat forwards the conversation to the provider and returns its reply.
func (cc *ChatController) Chat(c *fiber.Ctx) error {
	user := currentUser(c)

	var req ChatRequest
	if err := c.BodyParser(&req); err != nil {
		return utils.ErrorResponse(c, fiber.StatusBadRequest, "Invalid request body")
	}
	if err := utils.ValidateStruct(req); err != nil {
		return utils.ErrorResponse(c, fiber.StatusBadRequest, err.Error())
	}

	messages := make([]utils.ChatMessage, 0, len(req.History)+2)
	messages = append(messages, utils.ChatMessage{Role: "system", Content: chatSystemPrompt})
	for _, m := range req.History {
		if m.Role == "system" {
			continue
		}
		messages = append(messages, m)
	}
	messages = append(messages, utils.ChatMessage{Role: "user", Content: req.Message})

	completion, err := cc.Client.ChatCompletion(c.UserContext(), messages, utils.ChatOptions{})
	if err != nil {
		var chatErr *utils.ChatError
		if errors.As(err, &chatErr) {
			cc.Logger.WithFields(logrus.Fields{
				"user_id": user.ID,
				"status":  chatErr.Status,
				"error":   chatErr.Error(),
			}).Warn("Chat request failed")
			return utils.ErrorResponse(c, chatErr.Status, chatErr.Message)
		}
		utils.LogError("chat_completion", err, map[string]interface{}{"user_id": user.ID})
		return utils.ErrorResponse(c, fiber.StatusServiceUnavailable, "AI service is unavailable")
	}

	return utils.SuccessResponse(c, fiber.StatusOK, "", fiber.Map{
		"reply":   completion.Reply(),
		"choices": completion.Choices,
		"usage":   completion.Usage,
		"model":   completion.Model,
	})
}
