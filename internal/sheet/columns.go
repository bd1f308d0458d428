package sheet

import (
	"strings"
	"unicode"

	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

// Column is a logical column of the weekly task sheet.
type Column int

const (
	ColWeek Column = iota
	ColYear
	ColEndDate
	ColDate
	ColAssignee
	ColDescription
	ColTitle
	ColLocation
	ColCategory
	ColContractor
)

// ColumnSpec maps a logical column to accepted header synonyms.
// Fallback synonyms are only tried when no primary synonym matched.
type ColumnSpec struct {
	Column   Column
	Name     string
	Synonyms []string
	Fallback []string
	Required bool
}

// DefaultColumns is evaluated in order and each header is claimed at most once,
// so "fecha fin" is taken by the end date before the date column looks for "fecha".
var DefaultColumns = []ColumnSpec{
	{Column: ColWeek, Name: "week", Synonyms: []string{"semana", "week"}, Required: true},
	{Column: ColYear, Name: "year", Synonyms: []string{"ano", "year"}, Required: true},
	{Column: ColEndDate, Name: "end_date", Synonyms: []string{"fecha fin", "end date", "hasta"}},
	{Column: ColDate, Name: "date", Synonyms: []string{"fecha", "date"}, Required: true},
	{Column: ColAssignee, Name: "assignee", Synonyms: []string{"email", "mail"}, Fallback: []string{"responsable", "asignado"}, Required: true},
	{Column: ColDescription, Name: "description", Synonyms: []string{"descripcion", "description", "tarea"}},
	{Column: ColTitle, Name: "title", Synonyms: []string{"titulo", "actividad"}},
	{Column: ColLocation, Name: "location", Synonyms: []string{"ubicacion", "location", "lugar"}},
	{Column: ColCategory, Name: "category", Synonyms: []string{"riesgo", "risk", "tipo"}},
	{Column: ColContractor, Name: "contractor", Synonyms: []string{"contratista", "contractor", "proceso"}},
}

var stripMarks = transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)

// NormalizeHeader lowercases, strips diacritics and collapses whitespace.
func NormalizeHeader(s string) string {
	out, _, err := transform.String(stripMarks, s)
	if err != nil {
		out = s
	}
	return strings.Join(strings.Fields(strings.ToLower(out)), " ")
}

// matchColumns resolves every spec to a header index, -1 when absent.
func matchColumns(header []string, specs []ColumnSpec) map[Column]int {
	normalized := make([]string, len(header))
	for i, h := range header {
		normalized[i] = NormalizeHeader(h)
	}

	claimed := make([]bool, len(header))
	columns := make(map[Column]int, len(specs))
	for _, spec := range specs {
		idx := findHeader(normalized, claimed, spec.Synonyms)
		if idx < 0 {
			idx = findHeader(normalized, claimed, spec.Fallback)
		}
		if idx >= 0 {
			claimed[idx] = true
		}
		columns[spec.Column] = idx
	}
	return columns
}

// findHeader prefers an exact header match over a substring match.
func findHeader(headers []string, claimed []bool, synonyms []string) int {
	for _, syn := range synonyms {
		for i, h := range headers {
			if !claimed[i] && h == syn {
				return i
			}
		}
	}
	for _, syn := range synonyms {
		for i, h := range headers {
			if !claimed[i] && h != "" && strings.Contains(h, syn) {
				return i
			}
		}
	}
	return -1
}
