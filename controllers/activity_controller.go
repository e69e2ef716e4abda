package controller

import (
	"errors"
	"sort"
	"strings"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/sirupsen/logrus"
	"gorm.io/gorm"

	"volunteerconnect/models"
	"volunteerconnect/utils"
)

// CreateActivityRequest has no is_public field: visibility follows the creator's role.
type CreateActivityRequest struct {
	Title           string  `json:"title" validate:"required,max=200"`
	Description     string  `json:"description" validate:"max=5000"`
	Location        string  `json:"location" validate:"max=255"`
	StartDate       string  `json:"start_date" validate:"required"`
	EndDate         *string `json:"end_date"`
	MaxParticipants *int    `json:"max_participants" validate:"omitempty,gte=0"`
	ParticipantIDs  []uint  `json:"participant_ids"`
}

type UpdateActivityRequest struct {
	Title           *string `json:"title" validate:"omitempty,min=1,max=200"`
	Description     *string `json:"description" validate:"omitempty,max=5000"`
	Location        *string `json:"location" validate:"omitempty,max=255"`
	StartDate       *string `json:"start_date"`
	EndDate         *string `json:"end_date"`
	MaxParticipants *int    `json:"max_participants" validate:"omitempty,gte=0"`
}

type ActivityController struct {
	DB     *gorm.DB
	Logger *logrus.Entry
	Now    func() time.Time
}

func NewActivityController(db *gorm.DB, logger *logrus.Entry) *ActivityController {
	return &ActivityController{
		DB:     db,
		Logger: logger,
		Now:    time.Now,
	}
}

// CreateActivity creates the activity and, for admins, its initial participants in one transaction.
func (ac *ActivityController) CreateActivity(c *fiber.Ctx) error {
	user := currentUser(c)

	var req CreateActivityRequest
	if err := c.BodyParser(&req); err != nil {
		return utils.ErrorResponse(c, fiber.StatusBadRequest, "Invalid request body")
	}
	if err := utils.ValidateStruct(req); err != nil {
		return utils.ErrorResponse(c, fiber.StatusBadRequest, err.Error())
	}

	startDate, err := utils.ParseDate(req.StartDate)
	if err != nil {
		return utils.ErrorResponse(c, fiber.StatusBadRequest, "Invalid start_date format")
	}
	endDate, err := utils.ParseOptionalDate(req.EndDate)
	if err != nil {
		return utils.ErrorResponse(c, fiber.StatusBadRequest, "Invalid end_date format")
	}
	if endDate != nil && endDate.Before(startDate) {
		return utils.ErrorResponse(c, fiber.StatusBadRequest, "end_date cannot be before start_date")
	}

	participantIDs := uniqueIDs(req.ParticipantIDs)
	if len(participantIDs) > 0 && !user.IsAdmin() {
		return utils.ErrorResponse(c, fiber.StatusForbidden, "Only administrators can add participants when creating an activity")
	}
	if req.MaxParticipants != nil && *req.MaxParticipants > 0 && len(participantIDs) > *req.MaxParticipants {
		return utils.ErrorResponse(c, fiber.StatusBadRequest, "participant_ids exceeds max_participants")
	}

	activity := models.Activity{
		Title:           strings.TrimSpace(req.Title),
		Description:     req.Description,
		Location:        req.Location,
		StartDate:       startDate,
		EndDate:         endDate,
		IsPublic:        user.IsAdmin(),
		MaxParticipants: req.MaxParticipants,
		CreatedBy:       user.ID,
		IsActive:        true,
	}

	tx := ac.DB.Begin()
	if tx.Error != nil {
		return internalError(c, "transaction_begin", tx.Error, nil)
	}

	if len(participantIDs) > 0 {
		invalid, err := invalidParticipantIDs(tx, participantIDs)
		if err != nil {
			tx.Rollback()
			return internalError(c, "participant_validation", err, nil)
		}
		if len(invalid) > 0 {
			tx.Rollback()
			return utils.ErrorResponseWithData(c, fiber.StatusBadRequest, "Invalid participant IDs", fiber.Map{
				"invalid_participant_ids": invalid,
			})
		}
	}

	if err := tx.Create(&activity).Error; err != nil {
		tx.Rollback()
		return internalError(c, "activity_create", err, map[string]interface{}{"user_id": user.ID})
	}

	if len(participantIDs) > 0 {
		now := ac.Now()
		participants := make([]models.ActivityParticipant, 0, len(participantIDs))
		for _, id := range participantIDs {
			participants = append(participants, models.ActivityParticipant{
				ActivityID: activity.ID,
				UserID:     id,
				Status:     models.ParticipantJoined,
				JoinedAt:   now,
			})
		}
		if err := tx.Create(&participants).Error; err != nil {
			tx.Rollback()
			return internalError(c, "participant_create", err, map[string]interface{}{"activity_id": activity.ID})
		}
	}

	if err := tx.Commit().Error; err != nil {
		return internalError(c, "transaction_commit", err, nil)
	}

	activities := []models.Activity{activity}
	if err := ac.decorate(user, activities); err != nil {
		return internalError(c, "activity_decorate", err, map[string]interface{}{"activity_id": activity.ID})
	}

	utils.LogEvent("activity_created", map[string]interface{}{
		"activity_id":  activity.ID,
		"created_by":   user.ID,
		"is_public":    activity.IsPublic,
		"participants": len(participantIDs),
	})
	return utils.SuccessResponse(c, fiber.StatusCreated, "Activity created", activities[0])
}

// ListActivities applies the visibility rule plus the optional ?status= and ?search= filters.
func (ac *ActivityController) ListActivities(c *fiber.Ctx) error {
	user := currentUser(c)

	statusFilter := models.ActivityStatus(strings.ToLower(c.Query("status")))
	if statusFilter != "" && !statusFilter.IsValid() {
		return utils.ErrorResponse(c, fiber.StatusBadRequest, "status must be one of: upcoming ongoing completed")
	}

	query := ac.visibleActivities(user).Preload("Creator")
	if search := strings.TrimSpace(c.Query("search")); search != "" {
		query = query.Where("LOWER(activities.title) LIKE ?", "%"+strings.ToLower(search)+"%")
	}

	var activities []models.Activity
	if err := query.Order("activities.start_date ASC, activities.id ASC").Find(&activities).Error; err != nil {
		return internalError(c, "activity_list", err, map[string]interface{}{"user_id": user.ID})
	}

	if err := ac.decorate(user, activities); err != nil {
		return internalError(c, "activity_decorate", err, nil)
	}

	if statusFilter != "" {
		filtered := activities[:0]
		for _, a := range activities {
			if a.Status == statusFilter {
				filtered = append(filtered, a)
			}
		}
		activities = filtered
	}

	return utils.SuccessResponse(c, fiber.StatusOK, "", activities)
}

// JoinedActivities lists active activities the caller has joined.
func (ac *ActivityController) JoinedActivities(c *fiber.Ctx) error {
	user := currentUser(c)

	var activities []models.Activity
	err := ac.DB.Preload("Creator").
		Joins("JOIN activity_participants ON activity_participants.activity_id = activities.id").
		Where("activity_participants.user_id = ? AND activities.is_active = ?", user.ID, true).
		Order("activities.start_date ASC, activities.id ASC").
		Find(&activities).Error
	if err != nil {
		return internalError(c, "joined_activity_list", err, map[string]interface{}{"user_id": user.ID})
	}

	if err := ac.decorate(user, activities); err != nil {
		return internalError(c, "activity_decorate", err, nil)
	}

	return utils.SuccessResponse(c, fiber.StatusOK, "", activities)
}

func (ac *ActivityController) GetActivity(c *fiber.Ctx) error {
	user := currentUser(c)

	activity, status, msg := ac.loadVisible(c, user)
	if activity == nil {
		return utils.ErrorResponse(c, status, msg)
	}

	activities := []models.Activity{*activity}
	if err := ac.decorate(user, activities); err != nil {
		return internalError(c, "activity_decorate", err, map[string]interface{}{"activity_id": activity.ID})
	}

	return utils.SuccessResponse(c, fiber.StatusOK, "", activities[0])
}

// UpdateActivity edits the schedule and descriptive fields. is_public and created_by never change.
func (ac *ActivityController) UpdateActivity(c *fiber.Ctx) error {
	user := currentUser(c)

	activity, status, msg := ac.loadVisible(c, user)
	if activity == nil {
		return utils.ErrorResponse(c, status, msg)
	}
	if !utils.CanManageActivity(user, activity) {
		return utils.ErrorResponse(c, fiber.StatusForbidden, "Only the activity owner or an administrator can edit this activity")
	}

	var req UpdateActivityRequest
	if err := c.BodyParser(&req); err != nil {
		return utils.ErrorResponse(c, fiber.StatusBadRequest, "Invalid request body")
	}
	if err := utils.ValidateStruct(req); err != nil {
		return utils.ErrorResponse(c, fiber.StatusBadRequest, err.Error())
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
	if req.Location != nil {
		updates["location"] = *req.Location
	}

	startDate := activity.StartDate
	if req.StartDate != nil {
		parsed, err := utils.ParseDate(*req.StartDate)
		if err != nil {
			return utils.ErrorResponse(c, fiber.StatusBadRequest, "Invalid start_date format")
		}
		startDate = parsed
		updates["start_date"] = startDate
	}
	endDate := activity.EndDate
	if req.EndDate != nil {
		parsed, err := utils.ParseOptionalDate(req.EndDate)
		if err != nil {
			return utils.ErrorResponse(c, fiber.StatusBadRequest, "Invalid end_date format")
		}
		endDate = parsed
		updates["end_date"] = endDate
	}
	if endDate != nil && endDate.Before(startDate) {
		return utils.ErrorResponse(c, fiber.StatusBadRequest, "end_date cannot be before start_date")
	}

	if req.MaxParticipants != nil {
		if *req.MaxParticipants > 0 {
			var joined int64
			if err := ac.DB.Model(&models.ActivityParticipant{}).Where("activity_id = ?", activity.ID).Count(&joined).Error; err != nil {
				return internalError(c, "participant_count", err, map[string]interface{}{"activity_id": activity.ID})
			}
			if joined > int64(*req.MaxParticipants) {
				return utils.ErrorResponse(c, fiber.StatusBadRequest, "max_participants cannot be lower than the current participant count")
			}
		}
		updates["max_participants"] = *req.MaxParticipants
	}

	if len(updates) == 0 {
		return utils.ErrorResponse(c, fiber.StatusBadRequest, "No fields to update")
	}

	if err := ac.DB.Model(activity).Updates(updates).Error; err != nil {
		return internalError(c, "activity_update", err, map[string]interface{}{"activity_id": activity.ID})
	}

	var updated models.Activity
	if err := ac.DB.Preload("Creator").First(&updated, activity.ID).Error; err != nil {
		return internalError(c, "activity_reload", err, map[string]interface{}{"activity_id": activity.ID})
	}
	activities := []models.Activity{updated}
	if err := ac.decorate(user, activities); err != nil {
		return internalError(c, "activity_decorate", err, map[string]interface{}{"activity_id": activity.ID})
	}

	return utils.SuccessResponse(c, fiber.StatusOK, "Activity updated", activities[0])
}

// DeleteActivity hides the activity by clearing is_active.
func (ac *ActivityController) DeleteActivity(c *fiber.Ctx) error {
	user := currentUser(c)

	activity, status, msg := ac.loadVisible(c, user)
	if activity == nil {
		return utils.ErrorResponse(c, status, msg)
	}
	if !utils.CanManageActivity(user, activity) {
		return utils.ErrorResponse(c, fiber.StatusForbidden, "Only the activity owner or an administrator can delete this activity")
	}

	if err := ac.DB.Model(activity).Update("is_active", false).Error; err != nil {
		return internalError(c, "activity_delete", err, map[string]interface{}{"activity_id": activity.ID})
	}

	utils.LogEvent("activity_deleted", map[string]interface{}{
		"activity_id": activity.ID,
		"actor_id":    user.ID,
	})
	return utils.SuccessResponse(c, fiber.StatusOK, "Activity deleted", nil)
}

// GetParticipants is open to the owner, admins and holders of activities.view_participants.
func (ac *ActivityController) GetParticipants(c *fiber.Ctx) error {
	user := currentUser(c)

	activity, status, msg := ac.loadVisible(c, user)
	if activity == nil {
		return utils.ErrorResponse(c, status, msg)
	}

	if !utils.CanManageActivity(user, activity) {
		allowed, err := utils.HasPermission(ac.DB, user, models.PermActivitiesParticipants)
		if err != nil {
			return internalError(c, "permission_check", err, map[string]interface{}{"user_id": user.ID})
		}
		if !allowed {
			return utils.ErrorResponse(c, fiber.StatusForbidden, "Insufficient permissions")
		}
	}

	var participants []models.ActivityParticipant
	if err := ac.DB.Preload("User").
		Where("activity_id = ?", activity.ID).
		Order("joined_at ASC, id ASC").
		Find(&participants).Error; err != nil {
		return internalError(c, "participant_list", err, map[string]interface{}{"activity_id": activity.ID})
	}

	return utils.SuccessResponse(c, fiber.StatusOK, "", fiber.Map{
		"activity_id":      activity.ID,
		"max_participants": activity.MaxParticipants,
		"count":            len(participants),
		"participants":     participants,
	})
}

// visibleActivities scopes a query to the activities the user may see.
func (ac *ActivityController) visibleActivities(user *models.User) *gorm.DB {
	query := ac.DB.Model(&models.Activity{}).Where("activities.is_active = ?", true)
	if !user.IsAdmin() {
		query = query.Where("activities.is_public = ? OR activities.created_by = ?", true, user.ID)
	}
	return query
}

// loadVisible resolves :id to an activity the user may see. Invisible activities read as missing.
func (ac *ActivityController) loadVisible(c *fiber.Ctx, user *models.User) (*models.Activity, int, string) {
	return loadVisibleActivity(ac.DB, c, user)
}

func loadVisibleActivity(db *gorm.DB, c *fiber.Ctx, user *models.User) (*models.Activity, int, string) {
	id, ok := utils.ParamID(c, "id")
	if !ok {
		return nil, fiber.StatusBadRequest, "Invalid activity ID"
	}

	var activity models.Activity
	if err := db.Preload("Creator").First(&activity, id).Error; err != nil {
		if !errors.Is(err, gorm.ErrRecordNotFound) {
			utils.LogError("activity_lookup", err, map[string]interface{}{"activity_id": id})
			return nil, fiber.StatusInternalServerError, "Internal server error"
		}
		return nil, fiber.StatusNotFound, "Activity not found"
	}
	if !utils.CanViewActivity(user, &activity) {
		return nil, fiber.StatusNotFound, "Activity not found"
	}
	return &activity, 0, ""
}

// decorate fills the computed fields: status, progress, participant count and is_joined.
func (ac *ActivityController) decorate(user *models.User, activities []models.Activity) error {
	return decorateActivities(ac.DB, user, activities, ac.Now())
}

func decorateActivities(db *gorm.DB, user *models.User, activities []models.Activity, now time.Time) error {
	if len(activities) == 0 {
		return nil
	}

	ids := make([]uint, 0, len(activities))
	for _, a := range activities {
		ids = append(ids, a.ID)
	}

	type participantCount struct {
		ActivityID uint
		Count      int64
	}
	var counts []participantCount
	if err := db.Model(&models.ActivityParticipant{}).
		Select("activity_id, COUNT(*) AS count").
		Where("activity_id IN ?", ids).
		Group("activity_id").
		Scan(&counts).Error; err != nil {
		return err
	}
	countByActivity := make(map[uint]int64, len(counts))
	for _, row := range counts {
		countByActivity[row.ActivityID] = row.Count
	}

	var joinedIDs []uint
	if err := db.Model(&models.ActivityParticipant{}).
		Where("activity_id IN ? AND user_id = ?", ids, user.ID).
		Pluck("activity_id", &joinedIDs).Error; err != nil {
		return err
	}
	joined := make(map[uint]bool, len(joinedIDs))
	for _, id := range joinedIDs {
		joined[id] = true
	}

	var tasks []models.ActivityTask
	if err := db.Select("id", "activity_id", "status").Where("activity_id IN ?", ids).Find(&tasks).Error; err != nil {
		return err
	}
	tasksByActivity := make(map[uint][]models.ActivityTask)
	for _, t := range tasks {
		tasksByActivity[t.ActivityID] = append(tasksByActivity[t.ActivityID], t)
	}

	for i := range activities {
		a := &activities[i]
		a.Evaluate(now, tasksByActivity[a.ID])
		a.ParticipantCount = countByActivity[a.ID]
		a.IsJoined = joined[a.ID]
	}
	return nil
}

// invalidParticipantIDs returns the ids that do not belong to an active user.
func invalidParticipantIDs(tx *gorm.DB, ids []uint) ([]uint, error) {
	var found []uint
	if err := tx.Model(&models.User{}).
		Where("id IN ? AND is_active = ?", ids, true).
		Pluck("id", &found).Error; err != nil {
		return nil, err
	}

	active := make(map[uint]bool, len(found))
	for _, id := range found {
		active[id] = true
	}

	var invalid []uint
	for _, id := range ids {
		if !active[id] {
			invalid = append(invalid, id)
		}
	}
	return invalid, nil
}

func uniqueIDs(ids []uint) []uint {
	seen := make(map[uint]bool, len(ids))
	out := make([]uint, 0, len(ids))
	for _, id := range ids {
		if seen[id] {
			continue
		}
		seen[id] = true
		out = append(out, id)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}
