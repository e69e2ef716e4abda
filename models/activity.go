package models

import (
	"math"
	"time"
)

// ActivityStatus is derived from the activity dates; it is never stored.
type ActivityStatus string

const (
	ActivityUpcoming  ActivityStatus = "upcoming"
	ActivityOngoing   ActivityStatus = "ongoing"
	ActivityCompleted ActivityStatus = "completed"
)

// IsValid reports whether s names one of the three statuses.
func (s ActivityStatus) IsValid() bool {
	switch s {
	case ActivityUpcoming, ActivityOngoing, ActivityCompleted:
		return true
	}
	return false
}

// ongoingWithoutEndProgress is the fixed progress of a started activity with no end date.
const ongoingWithoutEndProgress = 50

// Activity is a volunteer event owned by its creator
type Activity struct {
	ID              uint       `gorm:"primaryKey" json:"id"`
	Title           string     `gorm:"not null" json:"title"`
	Description     string     `gorm:"type:text" json:"description"`
	Location        string     `json:"location"`
	StartDate       time.Time  `gorm:"not null;index" json:"start_date"`
	EndDate         *time.Time `json:"end_date"`
	IsPublic        bool       `gorm:"not null;index" json:"is_public"`
	MaxParticipants *int       `json:"max_participants"`
	CreatedBy       uint       `gorm:"not null;index" json:"created_by"`
	IsActive        bool       `gorm:"not null;index" json:"is_active"`
	CreatedAt       time.Time  `json:"created_at"`
	UpdatedAt       time.Time  `json:"updated_at"`

	// No foreign key: activities outlive a deleted creator.
	Creator *User `gorm:"foreignKey:CreatedBy;constraint:-" json:"creator,omitempty"`

	// Computed on every read.
	Status           ActivityStatus `gorm:"-" json:"status"`
	Progress         int            `gorm:"-" json:"progress"`
	ParticipantCount int64          `gorm:"-" json:"participant_count"`
	IsJoined         bool           `gorm:"-" json:"is_joined"`
}

// HasCapacityLimit reports whether MaxParticipants bounds membership.
func (a *Activity) HasCapacityLimit() bool {
	return a.MaxParticipants != nil && *a.MaxParticipants > 0
}

// StatusAt derives the activity status at now.
func (a *Activity) StatusAt(now time.Time) ActivityStatus {
	return DeriveStatus(a.StartDate, a.EndDate, now)
}

// Evaluate fills Status and Progress from the dates and the activity's task list.
func (a *Activity) Evaluate(now time.Time, tasks []ActivityTask) {
	a.Status = a.StatusAt(now)
	a.Progress = ActivityProgress(a.Status, a.StartDate, a.EndDate, now, tasks)
}

// ActivityParticipant is a join record; one row per (activity, user).
type ActivityParticipant struct {
	ID         uint      `gorm:"primaryKey" json:"id"`
	ActivityID uint      `gorm:"not null;uniqueIndex:idx_activity_participant" json:"activity_id"`
	UserID     uint      `gorm:"not null;uniqueIndex:idx_activity_participant;index" json:"user_id"`
	Status     string    `gorm:"not null" json:"status"`
	JoinedAt   time.Time `gorm:"not null" json:"joined_at"`

	Activity *Activity `gorm:"constraint:OnDelete:CASCADE" json:"-"`
	User     *User     `gorm:"constraint:OnDelete:CASCADE" json:"user,omitempty"`
}

const ParticipantJoined = "joined"

// DeriveStatus computes the temporal status of an activity.
//
// A past end date means completed; a start date at or before now means ongoing;
// anything else is upcoming.
func DeriveStatus(start time.Time, end *time.Time, now time.Time) ActivityStatus {
	if end != nil && end.Before(now) {
		return ActivityCompleted
	}
	if !start.After(now) {
		return ActivityOngoing
	}
	return ActivityUpcoming
}

// DeriveProgress computes the time-based progress (0..100) for a status.
func DeriveProgress(status ActivityStatus, start time.Time, end *time.Time, now time.Time) int {
	switch status {
	case ActivityCompleted:
		return 100
	case ActivityUpcoming:
		return 0
	}

	if end == nil {
		return ongoingWithoutEndProgress
	}

	total := end.Sub(start)
	if total <= 0 {
		return 100
	}
	elapsed := now.Sub(start)
	return clampPercent(math.Round(100 * float64(elapsed) / float64(total)))
}

// TaskProgress is the share of completed tasks, rounded to the nearest percent.
func TaskProgress(tasks []ActivityTask) int {
	if len(tasks) == 0 {
		return 0
	}
	completed := 0
	for i := range tasks {
		if tasks[i].IsCompleted() {
			completed++
		}
	}
	return clampPercent(math.Round(100 * float64(completed) / float64(len(tasks))))
}

// ActivityProgress returns task-based progress once any task exists, time-based progress otherwise.
func ActivityProgress(status ActivityStatus, start time.Time, end *time.Time, now time.Time, tasks []ActivityTask) int {
	if len(tasks) > 0 {
		return TaskProgress(tasks)
	}
	return DeriveProgress(status, start, end, now)
}

func clampPercent(v float64) int {
	if v < 0 {
		return 0
	}
	if v > 100 {
		return 100
	}
	return int(v)
}
