package validate

import (
	"errors"
	"strconv"
	"strings"
	"time"

	"pamsync/internal/model"
	"pamsync/internal/sheet"
)

const (
	MinWeek = 1
	MaxWeek = 53
	MinYear = 2020
	MaxYear = 2100
)

var ErrNoAllowedDomains = errors.New("at least one allowed identity domain is required")

// dateLayouts: ISO first, then day-first forms used by es-* spreadsheets.
var dateLayouts = []string{"2006-1-2", "2/1/2006", "2-1-2006"}

type Validator struct {
	domains []string // "@acme.com", lower case
}

// New builds a validator that only accepts identities under the given domains.
func New(allowedDomains []string) (*Validator, error) {
	var domains []string
	for _, d := range allowedDomains {
		d = strings.ToLower(strings.TrimSpace(d))
		d = strings.TrimPrefix(d, "@")
		if d == "" {
			continue
		}
		domains = append(domains, "@"+d)
	}
	if len(domains) == 0 {
		return nil, ErrNoAllowedDomains
	}
	return &Validator{domains: domains}, nil
}

type Result struct {
	Valid  []model.TaskImport
	Errors []*RowError
}

// Failed: a batch with no valid rows is a failed batch.
func (r Result) Failed() bool {
	return len(r.Valid) == 0
}

// Messages renders the row errors for reporting.
func (r Result) Messages() []string {
	out := make([]string, 0, len(r.Errors))
	for _, e := range r.Errors {
		out = append(out, e.Error())
	}
	return out
}

// Validate checks every data row. Invalid rows are excluded, never abort the batch.
func (v *Validator) Validate(s *sheet.Sheet) Result {
	var res Result
	for _, row := range s.Rows {
		ti, rowErr := v.ValidateRow(s, row)
		if rowErr != nil {
			res.Errors = append(res.Errors, rowErr)
			continue
		}
		res.Valid = append(res.Valid, ti)
	}
	return res
}

// ValidateRow applies the rules in order; the first violation wins.
func (v *Validator) ValidateRow(s *sheet.Sheet, row sheet.Row) (model.TaskImport, *RowError) {
	fail := func(col sheet.Column, value string, err error) (model.TaskImport, *RowError) {
		return model.TaskImport{}, &RowError{Row: row.Number, Column: s.HeaderName(col), Value: value, Err: err}
	}

	rawWeek := s.Value(row, sheet.ColWeek)
	week, ok := parseIntIn(rawWeek, MinWeek, MaxWeek)
	if !ok {
		return fail(sheet.ColWeek, rawWeek, ErrInvalidWeekNumber)
	}

	rawYear := s.Value(row, sheet.ColYear)
	year, ok := parseIntIn(rawYear, MinYear, MaxYear)
	if !ok {
		return fail(sheet.ColYear, rawYear, ErrInvalidYear)
	}

	rawDate := s.Value(row, sheet.ColDate)
	date, ok := ParseDate(rawDate)
	if !ok {
		return fail(sheet.ColDate, rawDate, ErrInvalidDate)
	}

	identity := s.Value(row, sheet.ColAssignee)
	if !v.AllowedIdentity(identity) {
		return fail(sheet.ColAssignee, identity, ErrInvalidIdentity)
	}

	description := s.Value(row, sheet.ColDescription)
	if description == "" {
		description = s.Value(row, sheet.ColTitle)
	}
	if description == "" {
		return fail(sheet.ColDescription, "", ErrMissingDescription)
	}

	ti := model.TaskImport{
		Row:         row.Number,
		WeekYear:    year,
		WeekNumber:  week,
		Date:        date,
		Identity:    identity,
		Description: description,
		Location:    s.Value(row, sheet.ColLocation),
		Category:    s.Value(row, sheet.ColCategory),
		Contractor:  s.Value(row, sheet.ColContractor),
	}
	if end, ok := ParseDate(s.Value(row, sheet.ColEndDate)); ok {
		ti.EndDate = &end
	}
	return ti, nil
}

// AllowedIdentity: non-empty local part, exactly one '@', and an allow-listed domain suffix.
func (v *Validator) AllowedIdentity(identity string) bool {
	id := strings.ToLower(strings.TrimSpace(identity))
	if strings.Count(id, "@") != 1 || strings.Index(id, "@") == 0 {
		return false
	}
	for _, d := range v.domains {
		if strings.HasSuffix(id, d) && len(id) > len(d) {
			return true
		}
	}
	return false
}

// ParseDate accepts YYYY-MM-DD, DD/MM/YYYY and DD-MM-YYYY and returns midnight UTC.
func ParseDate(s string) (time.Time, bool) {
	s = strings.TrimSpace(s)
	if s == "" {
		return time.Time{}, false
	}
	for _, layout := range dateLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t, true
		}
	}
	return time.Time{}, false
}

func parseIntIn(s string, lo, hi int) (int, bool) {
	n, err := strconv.Atoi(strings.TrimSpace(s))
	if err != nil || n < lo || n > hi {
		return 0, false
	}
	return n, true
}
