package notify

import (
	"fmt"
	"strings"

	"github.com/google/uuid"

	"pamsync/internal/model"
)

// PeriodAssigned summarises a user's imported tasks for one week.
func PeriodAssigned(orgID, userID uuid.UUID, period model.PeriodRef, count int) model.Notification {
	noun := "tasks"
	if count == 1 {
		noun = "task"
	}
	return model.Notification{
		OrgID:   orgID,
		UserID:  userID,
		Type:    model.NotificationTaskAssigned,
		Title:   fmt.Sprintf("New tasks for week %d/%d", period.Week, period.Year),
		Message: fmt.Sprintf("You have %d %s assigned for week %d of %d.", count, noun, period.Week, period.Year),
	}
}

// TaskAssigned is sent when a single task gets a new assignee.
func TaskAssigned(t model.Task) model.Notification {
	return forTask(t, model.NotificationTaskAssigned,
		"New task assigned",
		fmt.Sprintf("You were assigned %q on %s.", t.Description, model.FormatDate(t.Date)))
}

// EvidenceRejected includes the reviewer's comment when one was given.
func EvidenceRejected(t model.Task, comment string) model.Notification {
	msg := fmt.Sprintf("The evidence for %q was rejected. Please upload it again.", t.Description)
	if c := strings.TrimSpace(comment); c != "" {
		msg += " Comment: " + c
	}
	return forTask(t, model.NotificationEvidenceRejected, "Evidence rejected", msg)
}

func EvidenceApproved(t model.Task) model.Notification {
	return forTask(t, model.NotificationEvidenceApproved,
		"Evidence approved",
		fmt.Sprintf("The evidence for %q was approved. The task is done.", t.Description))
}

func forTask(t model.Task, typ model.NotificationType, title, msg string) model.Notification {
	taskID := t.ID
	n := model.Notification{
		OrgID:   t.OrgID,
		TaskID:  &taskID,
		Type:    typ,
		Title:   title,
		Message: msg,
	}
	if t.AssigneeID != nil {
		n.UserID = *t.AssigneeID
	}
	return n
}
