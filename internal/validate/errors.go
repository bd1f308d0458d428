package validate

import (
	"errors"
	"fmt"
)

var (
	ErrInvalidWeekNumber  = errors.New("invalid week number")
	ErrInvalidYear        = errors.New("invalid year")
	ErrInvalidDate        = errors.New("invalid date")
	ErrInvalidIdentity    = errors.New("invalid identity")
	ErrMissingDescription = errors.New("missing description")
)

// RowError ties a rejected row to its 1-based source row number.
type RowError struct {
	Row    int
	Column string
	Value  string
	Err    error
}

func (e *RowError) Error() string {
	if e.Value == "" {
		return fmt.Sprintf("row %d: %v", e.Row, e.Err)
	}
	return fmt.Sprintf("row %d: %v %q", e.Row, e.Err, e.Value)
}

func (e *RowError) Unwrap() error {
	return e.Err
}

// Reason is a stable metric label for err.
func Reason(err error) string {
	switch {
	case errors.Is(err, ErrInvalidWeekNumber):
		return "invalid_week_number"
	case errors.Is(err, ErrInvalidYear):
		return "invalid_year"
	case errors.Is(err, ErrInvalidDate):
		return "invalid_date"
	case errors.Is(err, ErrInvalidIdentity):
		return "invalid_identity"
	case errors.Is(err, ErrMissingDescription):
		return "missing_description"
	default:
		return "unknown"
	}
}
