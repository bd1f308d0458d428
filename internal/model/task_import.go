package model

import (
	"strings"
	"time"
)

// TaskImport is one validated sheet row. Only the row validator builds it.
type TaskImport struct {
	Row         int
	WeekYear    int
	WeekNumber  int
	Date        time.Time
	EndDate     *time.Time
	Identity    string // trimmed, original case
	Description string
	Location    string
	Category    string
	Contractor  string
}

func (ti TaskImport) Period() PeriodRef {
	return PeriodRef{Year: ti.WeekYear, Week: ti.WeekNumber}
}

// IdentityKey is the case-insensitive directory lookup key.
func (ti TaskImport) IdentityKey() string {
	return strings.ToLower(ti.Identity)
}
