package model

import (
	"testing"
	"time"

	"github.com/google/uuid"
)

func day(y int, m time.Month, d int) time.Time {
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

func TestTask_EffectiveStatus(t *testing.T) {
	today := time.Date(2025, 3, 10, 15, 30, 0, 0, time.UTC)

	cases := []struct {
		name   string
		date   time.Time
		status TaskStatus
		want   TaskStatus
	}{
		{"past pending", day(2025, 3, 9), StatusPending, StatusOverdue},
		{"past in progress", day(2025, 3, 1), StatusInProgress, StatusOverdue},
		{"past done", day(2025, 3, 1), StatusDone, StatusDone},
		{"today pending", day(2025, 3, 10), StatusPending, StatusPending},
		{"future pending", day(2025, 3, 11), StatusPending, StatusPending},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			task := Task{Date: tc.date, Status: tc.status}
			if got := task.EffectiveStatus(today); got != tc.want {
				t.Fatalf("EffectiveStatus()=%s, want %s", got, tc.want)
			}
		})
	}
}

func TestTaskStatus_Valid(t *testing.T) {
	if StatusOverdue.Valid() {
		t.Fatalf("OVERDUE must not be storable")
	}
	if !StatusInProgress.Valid() {
		t.Fatalf("IN_PROGRESS should be storable")
	}
}

func TestTask_IsAssignedTo(t *testing.T) {
	id := uuid.New()
	task := Task{AssigneeID: &id}
	if !task.IsAssignedTo(id) {
		t.Fatalf("IsAssignedTo(own id)=false")
	}
	if task.IsAssignedTo(uuid.New()) {
		t.Fatalf("IsAssignedTo(other id)=true")
	}
	if (Task{}).IsAssignedTo(id) {
		t.Fatalf("unassigned task reported as assigned")
	}
}

func TestPeriodRef_Before(t *testing.T) {
	a := PeriodRef{Year: 2024, Week: 52}
	b := PeriodRef{Year: 2025, Week: 1}
	if !a.Before(b) || b.Before(a) {
		t.Fatalf("period ordering across year boundary is wrong")
	}
	if got := b.String(); got != "2025-W01" {
		t.Fatalf("String()=%q, want 2025-W01", got)
	}
}
