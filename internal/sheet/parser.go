package sheet

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"strings"
)

// ErrMalformedDocument: the document cannot be turned into a header plus data rows.
var ErrMalformedDocument = errors.New("malformed document")

// Row is one non-blank data row. Number is the 1-based spreadsheet row: blank
// lines count, a quoted cell spanning several lines stays one row.
type Row struct {
	Number int
	Cells  []string
}

// Cell returns the trimmed cell at idx, or "" when idx is out of range.
func (r Row) Cell(idx int) string {
	if idx < 0 || idx >= len(r.Cells) {
		return ""
	}
	return strings.TrimSpace(r.Cells[idx])
}

type Sheet struct {
	Header  []string
	Rows    []Row
	Columns map[Column]int
}

// Index returns the header index of c, -1 when the column is absent.
func (s *Sheet) Index(c Column) int {
	idx, ok := s.Columns[c]
	if !ok {
		return -1
	}
	return idx
}

// Value returns the trimmed value of column c in row r.
func (s *Sheet) Value(r Row, c Column) string {
	return r.Cell(s.Index(c))
}

// HeaderName returns the original header text of column c.
func (s *Sheet) HeaderName(c Column) string {
	idx := s.Index(c)
	if idx < 0 || idx >= len(s.Header) {
		return ""
	}
	return strings.TrimSpace(s.Header[idx])
}

// Parse parses raw delimited text using DefaultColumns.
func Parse(raw string) (*Sheet, error) {
	return ParseWith(raw, DefaultColumns)
}

func ParseWith(raw string, specs []ColumnSpec) (*Sheet, error) {
	raw = strings.TrimPrefix(raw, "\uFEFF")

	r := csv.NewReader(strings.NewReader(raw))
	r.Comma = detectDelimiter(raw)
	r.FieldsPerRecord = -1
	r.LazyQuotes = true

	var (
		header []string
		rows   []Row
		number int
	)
	for {
		// csv.Reader drops empty lines, recover them from the line gap
		before := lineAt(raw, r.InputOffset())
		record, err := r.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrMalformedDocument, err)
		}
		start, _ := r.FieldPos(0)
		number += start - before + 1
		if isBlank(record) {
			continue
		}
		if header == nil {
			header = record
			continue
		}
		rows = append(rows, Row{Number: number, Cells: record})
	}

	if header == nil || len(rows) == 0 {
		return nil, fmt.Errorf("%w: need a header and at least one data row", ErrMalformedDocument)
	}

	s := &Sheet{
		Header:  header,
		Rows:    rows,
		Columns: matchColumns(header, specs),
	}
	if missing := s.missingColumns(specs); len(missing) > 0 {
		return nil, fmt.Errorf("%w: missing columns %s", ErrMalformedDocument, strings.Join(missing, ", "))
	}
	return s, nil
}

func (s *Sheet) missingColumns(specs []ColumnSpec) []string {
	var missing []string
	for _, spec := range specs {
		if spec.Required && s.Index(spec.Column) < 0 {
			missing = append(missing, spec.Name)
		}
	}
	// description may come from the title column instead
	if s.Index(ColDescription) < 0 && s.Index(ColTitle) < 0 {
		missing = append(missing, "description")
	}
	return missing
}

// detectDelimiter picks ';' or tab when it outnumbers commas on the first line.
func detectDelimiter(raw string) rune {
	line, _, _ := strings.Cut(raw, "\n")
	best, bestCount := ',', strings.Count(line, ",")
	for _, d := range []rune{';', '\t'} {
		if n := strings.Count(line, string(d)); n > bestCount {
			best, bestCount = d, n
		}
	}
	return best
}

// lineAt returns the 1-based line containing byte offset off.
func lineAt(raw string, off int64) int {
	return strings.Count(raw[:off], "\n") + 1
}

func isBlank(record []string) bool {
	for _, c := range record {
		if strings.TrimSpace(c) != "" {
			return false
		}
	}
	return true
}
