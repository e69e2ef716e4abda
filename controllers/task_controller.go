package controller

import (
	"errors"
	"strings"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/sirupsen/logrus"
	"gorm.io/gorm"

	"volunteerconnect/models"
	"volunteerconnect/utils"
)

type CreateTaskRequest struct {
	Title       string   `json:"title" validate:"required,max=200"`
	Description string   `json:"description" validate:"max=5000"`
	StartDate   *string  `json:"start_date"`
	DueDate     *string  `json:"due_date"`
	TotalHours  *float64 `json:"total_hours" validate:"omitempty,gte=0"`
	Status      *string  `json:"status"`
}

type UpdateTaskRequest struct {
	Title       *string  `json:"title" validate:"omitempty,min=1,max=200"`
	Description *string  `json:"description" validate:"omitempty,max=5000"`
	StartDate   *string  `json:"start_date"`
	DueDate     *string  `json:"due_date"`
	TotalHours  *float64 `json:"total_hours" validate:"omitempty,gte=0"`
	Status      *string  `json:"status"`
}

// onlyStatus reports whether the request touches nothing but the status.
func (r UpdateTaskRequest) onlyStatus() bool {
	return r.Status != nil && r.Title == nil && r.Description == nil &&
		r.StartDate == nil && r.DueDate == nil && r.TotalHours == nil
}

type AssignUserRequest struct {
	UserID uint `json:"user_id" validate:"required"`
}

type AssignmentStatusRequest struct {
	Status string `json:"status" validate:"required,oneof=in-progress completed"`
}

type TaskController struct {
	DB     *gorm.DB
	Logger *logrus.Entry
	Now    func() time.Time
}

func NewTaskController(db *gorm.DB, logger *logrus.Entry) *TaskController {
	return &TaskController{
		DB:     db,
		Logger: logger,
		Now:    time.Now,
	}
}

// ListTasks returns the activity's tasks with assignees and the progress recomputed from them.
func (tc *TaskController) ListTasks(c *fiber.Ctx) error {
	user := currentUser(c)

	activity, status, msg := loadVisibleActivity(tc.DB, c, user)
	if activity == nil {
		return utils.ErrorResponse(c, status, msg)
	}

	var tasks []models.ActivityTask
	if err := tc.DB.Preload("Assignees.User").
		Where("activity_id = ?", activity.ID).
		Order("created_at ASC, id ASC").
		Find(&tasks).Error; err != nil {
		return internalError(c, "task_list", err, map[string]interface{}{"activity_id": activity.ID})
	}

	activity.Evaluate(tc.Now(), tasks)

	completed := 0
	for i := range tasks {
		if tasks[i].IsCompleted() {
			completed++
		}
	}

	return utils.SuccessResponse(c, fiber.StatusOK, "", fiber.Map{
		"tasks":           tasks,
		"total":           len(tasks),
		"completed":       completed,
		"progress":        activity.Progress,
		"activity_status": activity.Status,
	})
}

// CreateTask is open to admins, the activity owner and its participants.
func (tc *TaskController) CreateTask(c *fiber.Ctx) error {
	user := currentUser(c)

	activity, status, msg := loadVisibleActivity(tc.DB, c, user)
	if activity == nil {
		return utils.ErrorResponse(c, status, msg)
	}

	if !utils.CanManageActivity(user, activity) {
		joined, err := tc.isParticipant(activity.ID, user.ID)
		if err != nil {
			return internalError(c, "participant_lookup", err, map[string]interface{}{"activity_id": activity.ID})
		}
		if !joined {
			return utils.ErrorResponse(c, fiber.StatusForbidden, "Only the activity owner, participants or an administrator can add tasks")
		}
	}

	var req CreateTaskRequest
	if err := c.BodyParser(&req); err != nil {
		return utils.ErrorResponse(c, fiber.StatusBadRequest, "Invalid request body")
	}
	if err := utils.ValidateStruct(req); err != nil {
		return utils.ErrorResponse(c, fiber.StatusBadRequest, err.Error())
	}

	startDate, err := utils.ParseOptionalDate(req.StartDate)
	if err != nil {
		return utils.ErrorResponse(c, fiber.StatusBadRequest, "Invalid start_date format")
	}
	dueDate, err := utils.ParseOptionalDate(req.DueDate)
	if err != nil {
		return utils.ErrorResponse(c, fiber.StatusBadRequest, "Invalid due_date format")
	}
	if startDate != nil && dueDate != nil && dueDate.Before(*startDate) {
		return utils.ErrorResponse(c, fiber.StatusBadRequest, "due_date cannot be before start_date")
	}

	taskStatus := models.TaskInProgress
	if req.Status != nil {
		taskStatus = models.TaskStatus(*req.Status)
		if !taskStatus.IsValid() {
			return utils.ErrorResponse(c, fiber.StatusBadRequest, "status must be one of: in-progress completed")
		}
	}

	task := models.ActivityTask{
		ActivityID:     activity.ID,
		Title:          strings.TrimSpace(req.Title),
		Description:    req.Description,
		StartDate:      startDate,
		DueDate:        dueDate,
		TotalHours:     req.TotalHours,
		Status:         taskStatus,
		CreatedBy:      user.ID,
		CreatedByAdmin: user.IsAdmin(),
	}
	if err := tc.DB.Create(&task).Error; err != nil {
		return internalError(c, "task_create", err, map[string]interface{}{"activity_id": activity.ID})
	}
	task.Assignees = []models.TaskUser{}

	progress, err := tc.activityProgress(activity)
	if err != nil {
		return internalError(c, "activity_progress", err, map[string]interface{}{"activity_id": activity.ID})
	}

	return utils.SuccessResponse(c, fiber.StatusCreated, "Task created", fiber.Map{
		"task":     task,
		"progress": progress,
	})
}

func (tc *TaskController) GetTask(c *fiber.Ctx) error {
	user := currentUser(c)

	_, task, status, msg := tc.loadTask(c, user)
	if task == nil {
		return utils.ErrorResponse(c, status, msg)
	}

	return utils.SuccessResponse(c, fiber.StatusOK, "", task)
}

// UpdateTask edits a task. A status-only update is also open to assignees.
func (tc *TaskController) UpdateTask(c *fiber.Ctx) error {
	user := currentUser(c)

	activity, task, status, msg := tc.loadTask(c, user)
	if task == nil {
		return utils.ErrorResponse(c, status, msg)
	}

	var req UpdateTaskRequest
	if err := c.BodyParser(&req); err != nil {
		return utils.ErrorResponse(c, fiber.StatusBadRequest, "Invalid request body")
	}
	if err := utils.ValidateStruct(req); err != nil {
		return utils.ErrorResponse(c, fiber.StatusBadRequest, err.Error())
	}

	if req.onlyStatus() {
		if !utils.CanChangeTaskStatus(user, task) {
			return utils.ErrorResponse(c, fiber.StatusForbidden, "You are not allowed to change this task")
		}
	} else if !utils.CanModifyTask(user, task) {
		return utils.ErrorResponse(c, fiber.StatusForbidden, "You are not allowed to edit this task")
	}

	updates := map[string]interface{}{}
	if req.Title != nil {
		title := strings.TrimSpace(*req.Title)
		if title == "" {
			return utils.ErrorResponse(c, fiber.StatusBadRequest, "title cannot be empty")
		}
		updates["title"] = title
	}
	if req.Description != nil {
		updates["description"] = *req.Description
	}

	startDate := task.StartDate
	if req.StartDate != nil {
		parsed, err := utils.ParseOptionalDate(req.StartDate)
		if err != nil {
			return utils.ErrorResponse(c, fiber.StatusBadRequest, "Invalid start_date format")
		}
		startDate = parsed
		updates["start_date"] = parsed
	}
	dueDate := task.DueDate
	if req.DueDate != nil {
		parsed, err := utils.ParseOptionalDate(req.DueDate)
		if err != nil {
			return utils.ErrorResponse(c, fiber.StatusBadRequest, "Invalid due_date format")
		}
		dueDate = parsed
		updates["due_date"] = parsed
	}
	if startDate != nil && dueDate != nil && dueDate.Before(*startDate) {
		return utils.ErrorResponse(c, fiber.StatusBadRequest, "due_date cannot be before start_date")
	}

	if req.TotalHours != nil {
		updates["total_hours"] = *req.TotalHours
	}
	if req.Status != nil {
		next := models.TaskStatus(*req.Status)
		if !next.IsValid() {
			return utils.ErrorResponse(c, fiber.StatusBadRequest, "status must be one of: in-progress completed")
		}
		updates["status"] = next
	}

	if len(updates) == 0 {
		return utils.ErrorResponse(c, fiber.StatusBadRequest, "No fields to update")
	}

	if err := tc.DB.Model(&models.ActivityTask{}).Where("id = ?", task.ID).Updates(updates).Error; err != nil {
		return internalError(c, "task_update", err, map[string]interface{}{"task_id": task.ID})
	}

	return tc.respondWithTask(c, activity, task.ID, "Task updated")
}

func (tc *TaskController) DeleteTask(c *fiber.Ctx) error {
	user := currentUser(c)

	activity, task, status, msg := tc.loadTask(c, user)
	if task == nil {
		return utils.ErrorResponse(c, status, msg)
	}
	if !utils.CanModifyTask(user, task) {
		return utils.ErrorResponse(c, fiber.StatusForbidden, "You are not allowed to delete this task")
	}

	tx := tc.DB.Begin()
	if tx.Error != nil {
		return internalError(c, "transaction_begin", tx.Error, nil)
	}
	if err := tx.Where("task_id = ?", task.ID).Delete(&models.TaskUser{}).Error; err != nil {
		tx.Rollback()
		return internalError(c, "task_delete_assignments", err, map[string]interface{}{"task_id": task.ID})
	}
	if err := tx.Where("id = ?", task.ID).Delete(&models.ActivityTask{}).Error; err != nil {
		tx.Rollback()
		return internalError(c, "task_delete", err, map[string]interface{}{"task_id": task.ID})
	}
	if err := tx.Commit().Error; err != nil {
		return internalError(c, "transaction_commit", err, nil)
	}

	progress, err := tc.activityProgress(activity)
	if err != nil {
		return internalError(c, "activity_progress", err, map[string]interface{}{"activity_id": activity.ID})
	}

	return utils.SuccessResponse(c, fiber.StatusOK, "Task deleted", fiber.Map{"progress": progress})
}

// ToggleTask flips the task between in-progress and completed.
func (tc *TaskController) ToggleTask(c *fiber.Ctx) error {
	user := currentUser(c)

	activity, task, status, msg := tc.loadTask(c, user)
	if task == nil {
		return utils.ErrorResponse(c, status, msg)
	}
	if !utils.CanChangeTaskStatus(user, task) {
		return utils.ErrorResponse(c, fiber.StatusForbidden, "You are not allowed to change this task")
	}

	if err := tc.DB.Model(&models.ActivityTask{}).
		Where("id = ?", task.ID).
		Update("status", task.Status.Toggled()).Error; err != nil {
		return internalError(c, "task_toggle", err, map[string]interface{}{"task_id": task.ID})
	}

	return tc.respondWithTask(c, activity, task.ID, "Task status updated")
}

// AddUserToTask assigns a user who can see the activity. An existing assignment is returned unchanged.
func (tc *TaskController) AddUserToTask(c *fiber.Ctx) error {
	user := currentUser(c)

	activity, task, status, msg := tc.loadTask(c, user)
	if task == nil {
		return utils.ErrorResponse(c, status, msg)
	}

	allowed, err := tc.canAssign(user, task)
	if err != nil {
		return internalError(c, "permission_check", err, map[string]interface{}{"user_id": user.ID})
	}
	if !allowed {
		return utils.ErrorResponse(c, fiber.StatusForbidden, "Insufficient permissions")
	}

	var req AssignUserRequest
	if err := c.BodyParser(&req); err != nil {
		return utils.ErrorResponse(c, fiber.StatusBadRequest, "Invalid request body")
	}
	if err := utils.ValidateStruct(req); err != nil {
		return utils.ErrorResponse(c, fiber.StatusBadRequest, err.Error())
	}

	var target models.User
	if err := tc.DB.First(&target, req.UserID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return utils.ErrorResponse(c, fiber.StatusNotFound, "User not found")
		}
		return internalError(c, "user_lookup", err, map[string]interface{}{"target_id": req.UserID})
	}
	if !target.IsActive {
		return utils.ErrorResponse(c, fiber.StatusBadRequest, "User is not active")
	}
	if !utils.CanViewActivity(&target, activity) {
		return utils.ErrorResponse(c, fiber.StatusBadRequest, "User cannot access this activity")
	}

	var existing models.TaskUser
	err = tc.DB.Preload("User").Where("task_id = ? AND user_id = ?", task.ID, target.ID).First(&existing).Error
	if err == nil {
		return utils.SuccessResponse(c, fiber.StatusOK, "User is already assigned to this task", existing)
	}
	if !errors.Is(err, gorm.ErrRecordNotFound) {
		return internalError(c, "assignment_lookup", err, map[string]interface{}{"task_id": task.ID})
	}

	assignment := models.TaskUser{
		TaskID:     task.ID,
		UserID:     target.ID,
		Status:     models.TaskInProgress,
		AssignedAt: tc.Now(),
	}
	if err := tc.DB.Create(&assignment).Error; err != nil {
		if errors.Is(err, gorm.ErrDuplicatedKey) {
			return utils.SuccessResponse(c, fiber.StatusOK, "User is already assigned to this task", assignment)
		}
		return internalError(c, "assignment_create", err, map[string]interface{}{"task_id": task.ID})
	}
	assignment.User = &target

	utils.LogEvent("task_user_assigned", map[string]interface{}{
		"task_id":  task.ID,
		"user_id":  target.ID,
		"actor_id": user.ID,
	})
	return utils.SuccessResponse(c, fiber.StatusCreated, "User assigned to task", assignment)
}

// RemoveUserFromTask is open to whoever may assign, plus the assignee themself.
func (tc *TaskController) RemoveUserFromTask(c *fiber.Ctx) error {
	user := currentUser(c)

	_, task, status, msg := tc.loadTask(c, user)
	if task == nil {
		return utils.ErrorResponse(c, status, msg)
	}

	targetID, ok := utils.ParamID(c, "userId")
	if !ok {
		return utils.ErrorResponse(c, fiber.StatusBadRequest, "Invalid user ID")
	}

	if targetID != user.ID {
		allowed, err := tc.canAssign(user, task)
		if err != nil {
			return internalError(c, "permission_check", err, map[string]interface{}{"user_id": user.ID})
		}
		if !allowed {
			return utils.ErrorResponse(c, fiber.StatusForbidden, "Insufficient permissions")
		}
	}

	result := tc.DB.Where("task_id = ? AND user_id = ?", task.ID, targetID).Delete(&models.TaskUser{})
	if result.Error != nil {
		return internalError(c, "assignment_delete", result.Error, map[string]interface{}{"task_id": task.ID})
	}
	if result.RowsAffected == 0 {
		return utils.ErrorResponse(c, fiber.StatusNotFound, "Assignment not found")
	}

	return utils.SuccessResponse(c, fiber.StatusOK, "User removed from task", nil)
}

// UpdateAssignmentStatus is open to admins, the task creator and the assignee.
func (tc *TaskController) UpdateAssignmentStatus(c *fiber.Ctx) error {
	user := currentUser(c)

	_, task, status, msg := tc.loadTask(c, user)
	if task == nil {
		return utils.ErrorResponse(c, status, msg)
	}

	targetID, ok := utils.ParamID(c, "userId")
	if !ok {
		return utils.ErrorResponse(c, fiber.StatusBadRequest, "Invalid user ID")
	}

	if !user.IsAdmin() && task.CreatedBy != user.ID && targetID != user.ID {
		return utils.ErrorResponse(c, fiber.StatusForbidden, "You are not allowed to change this assignment")
	}

	var req AssignmentStatusRequest
	if err := c.BodyParser(&req); err != nil {
		return utils.ErrorResponse(c, fiber.StatusBadRequest, "Invalid request body")
	}
	if err := utils.ValidateStruct(req); err != nil {
		return utils.ErrorResponse(c, fiber.StatusBadRequest, err.Error())
	}

	var assignment models.TaskUser
	if err := tc.DB.Where("task_id = ? AND user_id = ?", task.ID, targetID).First(&assignment).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return utils.ErrorResponse(c, fiber.StatusNotFound, "Assignment not found")
		}
		return internalError(c, "assignment_lookup", err, map[string]interface{}{"task_id": task.ID})
	}

	if err := tc.DB.Model(&assignment).Update("status", models.TaskStatus(req.Status)).Error; err != nil {
		return internalError(c, "assignment_update", err, map[string]interface{}{"task_id": task.ID})
	}
	assignment.Status = models.TaskStatus(req.Status)

	return utils.SuccessResponse(c, fiber.StatusOK, "Assignment status updated", assignment)
}

// canAssign covers admins, the task creator and holders of tasks.assign.
func (tc *TaskController) canAssign(user *models.User, task *models.ActivityTask) (bool, error) {
	if user.IsAdmin() || task.CreatedBy == user.ID {
		return true, nil
	}
	return utils.HasPermission(tc.DB, user, models.PermTasksAssign)
}

func (tc *TaskController) isParticipant(activityID, userID uint) (bool, error) {
	var count int64
	err := tc.DB.Model(&models.ActivityParticipant{}).
		Where("activity_id = ? AND user_id = ?", activityID, userID).
		Count(&count).Error
	return count > 0, err
}

// loadTask resolves :id and :taskId. The task must belong to a visible activity.
func (tc *TaskController) loadTask(c *fiber.Ctx, user *models.User) (*models.Activity, *models.ActivityTask, int, string) {
	activity, status, msg := loadVisibleActivity(tc.DB, c, user)
	if activity == nil {
		return nil, nil, status, msg
	}

	taskID, ok := utils.ParamID(c, "taskId")
	if !ok {
		return nil, nil, fiber.StatusBadRequest, "Invalid task ID"
	}

	var task models.ActivityTask
	if err := tc.DB.Preload("Assignees.User").
		Where("id = ? AND activity_id = ?", taskID, activity.ID).
		First(&task).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil, fiber.StatusNotFound, "Task not found"
		}
		utils.LogError("task_lookup", err, map[string]interface{}{"task_id": taskID})
		return nil, nil, fiber.StatusInternalServerError, "Internal server error"
	}
	return activity, &task, 0, ""
}

// activityProgress recomputes progress from the activity's full task list.
func (tc *TaskController) activityProgress(activity *models.Activity) (int, error) {
	var tasks []models.ActivityTask
	if err := tc.DB.Select("id", "activity_id", "status").
		Where("activity_id = ?", activity.ID).
		Find(&tasks).Error; err != nil {
		return 0, err
	}
	activity.Evaluate(tc.Now(), tasks)
	return activity.Progress, nil
}

func (tc *TaskController) respondWithTask(c *fiber.Ctx, activity *models.Activity, taskID uint, message string) error {
	var task models.ActivityTask
	if err := tc.DB.Preload("Assignees.User").First(&task, taskID).Error; err != nil {
		return internalError(c, "task_reload", err, map[string]interface{}{"task_id": taskID})
	}

	progress, err := tc.activityProgress(activity)
	if err != nil {
		return internalError(c, "activity_progress", err, map[string]interface{}{"activity_id": activity.ID})
	}

	return utils.SuccessResponse(c, fiber.StatusOK, message, fiber.Map{
		"task":            task,
		"progress":        progress,
		"activity_status": activity.Status,
	})
}
