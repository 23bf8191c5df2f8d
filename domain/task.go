package domain

import (
	"fmt"
	"time"
)

// Status is the workflow state of a task. Any status may follow any other.
type Status string

const (
	StatusNew        Status = "new"
	StatusInProgress Status = "in_progress"
	StatusCompleted  Status = "completed"
	StatusPostponed  Status = "postponed"
)

// Statuses lists every status in display order.
var Statuses = []Status{StatusNew, StatusInProgress, StatusCompleted, StatusPostponed}

// ParseStatus validates raw against the known statuses.
func ParseStatus(raw string) (Status, error) {
	s := Status(raw)
	if !s.Valid() {
		return "", fmt.Errorf("unknown status %q", raw)
	}
	return s, nil
}

func (s Status) Valid() bool {
	switch s {
	case StatusNew, StatusInProgress, StatusCompleted, StatusPostponed:
		return true
	}
	return false
}

// Label is the human readable form used in notifications.
func (s Status) Label() string {
	switch s {
	case StatusNew:
		return "New"
	case StatusInProgress:
		return "In progress"
	case StatusCompleted:
		return "Completed"
	case StatusPostponed:
		return "Postponed"
	}
	return string(s)
}

// Task is a unit of work assigned by an administrator to a department.
type Task struct {
	ID           int64      `gorm:"primaryKey" json:"id"`
	Title        string     `gorm:"size:200;not null" json:"title"`
	Description  string     `gorm:"type:text;not null" json:"description"`
	Status       Status     `gorm:"size:20;not null;index" json:"status"`
	AssignedToID int64      `gorm:"not null;index" json:"assigned_to_id"`
	AssignedTo   Department `gorm:"constraint:OnDelete:CASCADE" json:"assigned_to"`
	AssignedByID int64      `gorm:"not null;index" json:"assigned_by_id"`
	AssignedBy   User       `gorm:"constraint:OnDelete:CASCADE" json:"assigned_by"`
	CreatedAt    time.Time  `gorm:"index" json:"created_at"`
	UpdatedAt    time.Time  `json:"updated_at"`
	DueDate      time.Time  `gorm:"not null;index" json:"due_date"`
}

// IsOverdue reports whether the task is unfinished and its due date lies
// strictly before now.
func (t Task) IsOverdue(now time.Time) bool {
	return t.Status != StatusCompleted && t.DueDate.Before(now)
}

// TaskCounts aggregates a set of tasks for dashboards.
type TaskCounts struct {
	Total      int64 `json:"total"`
	Completed  int64 `json:"completed"`
	InProgress int64 `json:"in_progress"`
	Overdue    int64 `json:"overdue"`
}

// DepartmentCounts is the per-department dashboard breakdown.
type DepartmentCounts struct {
	Department Department `json:"department"`
	TaskCounts
}

// TaskFilter narrows a task listing.
type TaskFilter string

const (
	FilterNone       TaskFilter = ""
	FilterCompleted  TaskFilter = "completed"
	FilterInProgress TaskFilter = "in_progress"
	FilterOverdue    TaskFilter = "overdue"
)

// ParseTaskFilter maps a query value to a filter. Unrecognized values yield
// FilterNone so the listing passes through unfiltered.
func ParseTaskFilter(raw string) TaskFilter {
	switch f := TaskFilter(raw); f {
	case FilterCompleted, FilterInProgress, FilterOverdue:
		return f
	}
	return FilterNone
}

// TaskQuery selects tasks for listings. A nil DepartmentID means all
// departments.
type TaskQuery struct {
	DepartmentID *int64
	Filter       TaskFilter
}
