package model

import (
	"fmt"
	"time"

	"github.com/google/uuid"
)

// PeriodRef identifies one planning week.
type PeriodRef struct {
	Year int `json:"year"`
	Week int `json:"week"`
}

func (p PeriodRef) String() string {
	return fmt.Sprintf("%d-W%02d", p.Year, p.Week)
}

// Before orders periods chronologically.
func (p PeriodRef) Before(o PeriodRef) bool {
	if p.Year != o.Year {
		return p.Year < o.Year
	}
	return p.Week < o.Week
}

// WeekPlan owns the tasks of one (org, year, week) import batch.
type WeekPlan struct {
	ID          uuid.UUID `json:"id"`
	OrgID       uuid.UUID `json:"org_id"`
	WeekYear    int       `json:"week_year"`
	WeekNumber  int       `json:"week_number"`
	ImporterID  uuid.UUID `json:"importer_id"`
	SourceLabel string    `json:"source_label"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}

func (w WeekPlan) Period() PeriodRef {
	return PeriodRef{Year: w.WeekYear, Week: w.WeekNumber}
}
