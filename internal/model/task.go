package model

import (
	"time"

	"github.com/google/uuid"
)

type TaskStatus string

const (
	StatusPending    TaskStatus = "PENDING"
	StatusInProgress TaskStatus = "IN_PROGRESS"
	StatusDone       TaskStatus = "DONE"
	// StatusOverdue is derived for display and never stored.
	StatusOverdue TaskStatus = "OVERDUE"
)

// Valid reports whether s may be persisted.
func (s TaskStatus) Valid() bool {
	switch s {
	case StatusPending, StatusInProgress, StatusDone:
		return true
	}
	return false
}

type Task struct {
	ID           uuid.UUID  `json:"id"`
	WeekPlanID   uuid.UUID  `json:"week_plan_id"`
	OrgID        uuid.UUID  `json:"org_id"`
	WeekYear     int        `json:"week_year"`
	WeekNumber   int        `json:"week_number"`
	Date         time.Time  `json:"date"`
	EndDate      *time.Time `json:"end_date,omitempty"`
	AssigneeID   *uuid.UUID `json:"assignee_id,omitempty"`
	AssigneeName string     `json:"assignee_name"`
	Description  string     `json:"description"`
	Location     string     `json:"location"`
	Contractor   string     `json:"contractor"`
	Category     string     `json:"category"`
	Status       TaskStatus `json:"status"`
	HasEvidence  bool       `json:"has_evidence"`
	CreatedAt    time.Time  `json:"created_at"`
	UpdatedAt    time.Time  `json:"updated_at"`
}

func (t Task) Period() PeriodRef {
	return PeriodRef{Year: t.WeekYear, Week: t.WeekNumber}
}

// IsOverdue: not DONE and scheduled strictly before today.
func (t Task) IsOverdue(today time.Time) bool {
	return t.Status != StatusDone && DateOnly(t.Date).Before(DateOnly(today))
}

// EffectiveStatus is the status reported to callers.
func (t Task) EffectiveStatus(today time.Time) TaskStatus {
	if t.IsOverdue(today) {
		return StatusOverdue
	}
	return t.Status
}

func (t Task) IsAssignedTo(accountID uuid.UUID) bool {
	return t.AssigneeID != nil && *t.AssigneeID == accountID
}

// DateOnly truncates t to midnight UTC of its calendar day.
func DateOnly(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

// FormatDate renders a date column as YYYY-MM-DD.
func FormatDate(t time.Time) string {
	return t.Format(time.DateOnly)
}
