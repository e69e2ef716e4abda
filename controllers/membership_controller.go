package controller

import (
	"errors"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/sirupsen/logrus"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"volunteerconnect/models"
	"volunteerconnect/utils"
)

var (
	ErrActivityNotFound  = errors.New("activity not found")
	ErrActivityNotPublic = errors.New("only public activities can be joined")
	ErrActivityCompleted = errors.New("activity has already ended")
	ErrAlreadyJoined     = errors.New("you have already joined this activity")
	ErrActivityFull      = errors.New("activity is full")
	ErrNotParticipant    = errors.New("you are not a participant of this activity")
)

// membershipStatus maps a membership outcome to its response.
func membershipStatus(err error) (int, string) {
	switch {
	case errors.Is(err, ErrActivityNotFound):
		return fiber.StatusNotFound, "Activity not found"
	case errors.Is(err, ErrActivityNotPublic):
		return fiber.StatusForbidden, "Only public activities can be joined"
	case errors.Is(err, ErrActivityCompleted):
		return fiber.StatusBadRequest, "Activity has already ended"
	case errors.Is(err, ErrAlreadyJoined):
		return fiber.StatusConflict, "You have already joined this activity"
	case errors.Is(err, ErrActivityFull):
		return fiber.StatusBadRequest, "Activity is full"
	case errors.Is(err, ErrNotParticipant):
		return fiber.StatusBadRequest, "You are not a participant of this activity"
	}
	return fiber.StatusInternalServerError, "Internal server error"
}

type MembershipController struct {
	DB     *gorm.DB
	Logger *logrus.Entry
	Now    func() time.Time
}

func NewMembershipController(db *gorm.DB, logger *logrus.Entry) *MembershipController {
	return &MembershipController{
		DB:     db,
		Logger: logger,
		Now:    time.Now,
	}
}

func (mc *MembershipController) JoinActivity(c *fiber.Ctx) error {
	user := currentUser(c)

	id, ok := utils.ParamID(c, "id")
	if !ok {
		return utils.ErrorResponse(c, fiber.StatusBadRequest, "Invalid activity ID")
	}

	participant, err := JoinActivity(mc.DB, id, user.ID, mc.Now())
	if err != nil {
		status, msg := membershipStatus(err)
		if status == fiber.StatusInternalServerError {
			return internalError(c, "activity_join", err, map[string]interface{}{"activity_id": id, "user_id": user.ID})
		}
		return utils.ErrorResponse(c, status, msg)
	}

	utils.LogEvent("activity_joined", map[string]interface{}{"activity_id": id, "user_id": user.ID})
	return utils.SuccessResponse(c, fiber.StatusCreated, "Joined activity", participant)
}

func (mc *MembershipController) LeaveActivity(c *fiber.Ctx) error {
	user := currentUser(c)

	id, ok := utils.ParamID(c, "id")
	if !ok {
		return utils.ErrorResponse(c, fiber.StatusBadRequest, "Invalid activity ID")
	}

	if err := LeaveActivity(mc.DB, id, user.ID); err != nil {
		status, msg := membershipStatus(err)
		if status == fiber.StatusInternalServerError {
			return internalError(c, "activity_leave", err, map[string]interface{}{"activity_id": id, "user_id": user.ID})
		}
		return utils.ErrorResponse(c, status, msg)
	}

	utils.LogEvent("activity_left", map[string]interface{}{"activity_id": id, "user_id": user.ID})
	return utils.SuccessResponse(c, fiber.StatusOK, "Left activity", nil)
}

// JoinActivity adds userID to the activity. The activity row stays locked until commit, so
// concurrent joins of one activity run the capacity check one at a time.
func JoinActivity(db *gorm.DB, activityID, userID uint, now time.Time) (*models.ActivityParticipant, error) {
	var participant models.ActivityParticipant

	err := db.Transaction(func(tx *gorm.DB) error {
		var activity models.Activity
		if err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).
			Where("id = ? AND is_active = ?", activityID, true).
			First(&activity).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return ErrActivityNotFound
			}
			return err
		}

		if !activity.IsPublic {
			return ErrActivityNotPublic
		}
		if activity.StatusAt(now) == models.ActivityCompleted {
			return ErrActivityCompleted
		}

		var existing int64
		if err := tx.Model(&models.ActivityParticipant{}).
			Where("activity_id = ? AND user_id = ?", activityID, userID).
			Count(&existing).Error; err != nil {
			return err
		}
		if existing > 0 {
			return ErrAlreadyJoined
		}

		if activity.HasCapacityLimit() {
			var joined int64
			if err := tx.Model(&models.ActivityParticipant{}).
				Where("activity_id = ?", activityID).
				Count(&joined).Error; err != nil {
				return err
			}
			if joined >= int64(*activity.MaxParticipants) {
				return ErrActivityFull
			}
		}

		participant = models.ActivityParticipant{
			ActivityID: activityID,
			UserID:     userID,
			Status:     models.ParticipantJoined,
			JoinedAt:   now,
		}
		if err := tx.Create(&participant).Error; err != nil {
			if errors.Is(err, gorm.ErrDuplicatedKey) {
				return ErrAlreadyJoined
			}
			return err
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return &participant, nil
}

// LeaveActivity removes userID from the activity. Leaving is allowed after the activity ended.
func LeaveActivity(db *gorm.DB, activityID, userID uint) error {
	var activity models.Activity
	if err := db.Where("id = ? AND is_active = ?", activityID, true).First(&activity).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return ErrActivityNotFound
		}
		return err
	}

	result := db.Where("activity_id = ? AND user_id = ?", activityID, userID).Delete(&models.ActivityParticipant{})
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return ErrNotParticipant
	}
	return nil
}
