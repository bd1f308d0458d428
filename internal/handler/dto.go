package handler

import (
	"fmt"
	"time"

	"github.com/google/uuid"

	"pamsync/internal/model"
	"pamsync/internal/service/lifecycle"
)

type taskResponse struct {
	ID              uuid.UUID        `json:"id"`
	WeekYear        int              `json:"week_year"`
	WeekNumber      int              `json:"week_number"`
	Date            string           `json:"date"`
	EndDate         string           `json:"end_date,omitempty"`
	AssigneeID      *uuid.UUID       `json:"assignee_id,omitempty"`
	AssigneeName    string           `json:"assignee_name"`
	Description     string           `json:"description"`
	Location        string           `json:"location"`
	Contractor      string           `json:"contractor"`
	Category        string           `json:"category"`
	Status          model.TaskStatus `json:"status"`
	EffectiveStatus model.TaskStatus `json:"effective_status"`
	HasEvidence     bool             `json:"has_evidence"`
	UpdatedAt       time.Time        `json:"updated_at"`
}

func toTaskResponse(v lifecycle.TaskView) taskResponse {
	r := taskResponse{
		ID:              v.ID,
		WeekYear:        v.WeekYear,
		WeekNumber:      v.WeekNumber,
		Date:            model.FormatDate(v.Date),
		AssigneeID:      v.AssigneeID,
		AssigneeName:    v.AssigneeName,
		Description:     v.Description,
		Location:        v.Location,
		Contractor:      v.Contractor,
		Category:        v.Category,
		Status:          v.Status,
		EffectiveStatus: v.EffectiveStatus,
		HasEvidence:     v.HasEvidence,
		UpdatedAt:       v.UpdatedAt,
	}
	if v.EndDate != nil {
		r.EndDate = model.FormatDate(*v.EndDate)
	}
	return r
}

type createTaskRequest struct {
	Year        int     `json:"year" binding:"required"`
	Week        int     `json:"week" binding:"required"`
	Date        string  `json:"date" binding:"required"`
	EndDate     *string `json:"end_date"`
	Assignee    string  `json:"assignee"`
	Description string  `json:"description" binding:"required"`
	Location    string  `json:"location"`
	Contractor  string  `json:"contractor"`
	Category    string  `json:"category"`
}

func (r createTaskRequest) toNewTask() (lifecycle.NewTask, error) {
	date, err := parseDate(r.Date)
	if err != nil {
		return lifecycle.NewTask{}, err
	}
	in := lifecycle.NewTask{
		Period:      model.PeriodRef{Year: r.Year, Week: r.Week},
		Date:        date,
		Assignee:    r.Assignee,
		Description: r.Description,
		Location:    r.Location,
		Contractor:  r.Contractor,
		Category:    r.Category,
	}
	if r.EndDate != nil && *r.EndDate != "" {
		end, err := parseDate(*r.EndDate)
		if err != nil {
			return lifecycle.NewTask{}, err
		}
		in.EndDate = &end
	}
	return in, nil
}

type updateTaskRequest struct {
	Date         *string `json:"date"`
	EndDate      *string `json:"end_date"`
	ClearEndDate bool    `json:"clear_end_date"`
	Assignee     *string `json:"assignee"`
	Description  *string `json:"description"`
	Location     *string `json:"location"`
	Contractor   *string `json:"contractor"`
	Category     *string `json:"category"`
}

func (r updateTaskRequest) toPatch() (lifecycle.TaskPatch, error) {
	p := lifecycle.TaskPatch{
		ClearEndDate: r.ClearEndDate,
		Assignee:     r.Assignee,
		Description:  r.Description,
		Location:     r.Location,
		Contractor:   r.Contractor,
		Category:     r.Category,
	}
	if r.Date != nil {
		d, err := parseDate(*r.Date)
		if err != nil {
			return p, err
		}
		p.Date = &d
	}
	if r.EndDate != nil {
		d, err := parseDate(*r.EndDate)
		if err != nil {
			return p, err
		}
		p.EndDate = &d
	}
	return p, nil
}

type evidenceRequest struct {
	FileRef string `json:"file_ref" binding:"required"`
	Note    string `json:"note"`
}

type rejectRequest struct {
	Comment string `json:"comment"`
}

func parseDate(s string) (time.Time, error) {
	t, err := time.Parse(time.DateOnly, s)
	if err != nil {
		return time.Time{}, fmt.Errorf("%w: date %q must be YYYY-MM-DD", lifecycle.ErrInvalidInput, s)
	}
	return t, nil
}
