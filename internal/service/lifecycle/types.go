package lifecycle

import (
	"time"

	"github.com/google/uuid"

	"pamsync/internal/model"
	"pamsync/pkg/rbac"
)

// Actor is the authenticated caller.
type Actor struct {
	AccountID uuid.UUID
	OrgID     uuid.UUID
	Role      string
}

func (a Actor) IsAdmin() bool {
	return a.Role == rbac.RoleAdmin
}

// NewTask is a manually created task. Assignee is an email resolved
// against the directory the same way imported rows are.
type NewTask struct {
	Period      model.PeriodRef
	Date        time.Time
	EndDate     *time.Time
	Assignee    string
	Description string
	Location    string
	Contractor  string
	Category    string
}

// TaskPatch: nil fields are left unchanged.
type TaskPatch struct {
	Date         *time.Time
	EndDate      *time.Time
	ClearEndDate bool
	Assignee     *string
	Description  *string
	Location     *string
	Contractor   *string
	Category     *string
}

type EvidenceUpload struct {
	FileRef string
	Note    string
}

// TaskView is a task with the status callers should display.
type TaskView struct {
	model.Task
	EffectiveStatus model.TaskStatus `json:"effective_status"`
}
