package models

import (
	"time"

	"gorm.io/gorm"
)

// TaskStatus is the two-state lifecycle shared by tasks and task assignments.
type TaskStatus string

const (
	TaskInProgress TaskStatus = "in-progress"
	TaskCompleted  TaskStatus = "completed"
)

func (s TaskStatus) IsValid() bool {
	return s == TaskInProgress || s == TaskCompleted
}

// Toggled returns the opposite state.
func (s TaskStatus) Toggled() TaskStatus {
	if s == TaskCompleted {
		return TaskInProgress
	}
	return TaskCompleted
}

// ActivityTask is a unit of work scoped to one activity
type ActivityTask struct {
	ID          uint       `gorm:"primaryKey" json:"id"`
	ActivityID  uint       `gorm:"not null;index" json:"activity_id"`
	Title       string     `gorm:"not null" json:"title"`
	Description string     `gorm:"type:text" json:"description"`
	StartDate   *time.Time `json:"start_date"`
	DueDate     *time.Time `json:"due_date"`
	TotalHours  *float64   `json:"total_hours"`
	Status      TaskStatus `gorm:"not null;size:20" json:"status"`
	CreatedBy   uint       `gorm:"not null;index" json:"created_by"`
	CreatedAt   time.Time  `json:"created_at"`
	UpdatedAt   time.Time  `json:"updated_at"`

	// Set when the creator was an admin at creation time.
	CreatedByAdmin bool `gorm:"not null" json:"created_by_admin"`

	Activity  *Activity  `gorm:"constraint:OnDelete:CASCADE" json:"-"`
	Assignees []TaskUser `gorm:"foreignKey:TaskID;constraint:OnDelete:CASCADE" json:"assignees"`

	// Boolean view of Status for older clients.
	Completed bool `gorm:"-" json:"completed"`
}

func (t *ActivityTask) IsCompleted() bool {
	return t.Status == TaskCompleted
}

// IsAssigned reports whether userID holds an assignment row on the task. Assignees must be loaded.
func (t *ActivityTask) IsAssigned(userID uint) bool {
	for _, a := range t.Assignees {
		if a.UserID == userID {
			return true
		}
	}
	return false
}

func (t *ActivityTask) AfterFind(tx *gorm.DB) error {
	t.Completed = t.IsCompleted()
	return nil
}

func (t *ActivityTask) AfterSave(tx *gorm.DB) error {
	t.Completed = t.IsCompleted()
	return nil
}

// TaskUser assigns a user to a task with a status of their own.
type TaskUser struct {
	ID         uint       `gorm:"primaryKey" json:"id"`
	TaskID     uint       `gorm:"not null;uniqueIndex:idx_task_user" json:"task_id"`
	UserID     uint       `gorm:"not null;uniqueIndex:idx_task_user;index" json:"user_id"`
	Status     TaskStatus `gorm:"not null;size:20" json:"status"`
	AssignedAt time.Time  `gorm:"not null" json:"assigned_at"`

	User *User `gorm:"constraint:OnDelete:CASCADE" json:"user,omitempty"`
}
