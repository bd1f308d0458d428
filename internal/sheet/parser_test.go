package sheet

import (
	"errors"
	"testing"
)

func TestParse_QuotingAndLineEndings(t *testing.T) {
	raw := "\uFEFFSemana,Año,Fecha,Email,Descripción,Ubicación\r\n" +
		"10,2025,2025-03-10,ana@acme.com,\"Inspect pump, north\",Plant 1\r\n" +
		"\r\n" +
		" , ,,,\r\n" +
		"10,2025,11/03/2025,bo@acme.com,\"Line one\nline two with \"\"quotes\"\"\",Yard\n"

	s, err := Parse(raw)
	if err != nil {
		t.Fatalf("Parse() err=%v, want nil", err)
	}
	if len(s.Rows) != 2 {
		t.Fatalf("len(Rows)=%d, want 2", len(s.Rows))
	}

	first := s.Rows[0]
	if got := s.Value(first, ColDescription); got != "Inspect pump, north" {
		t.Fatalf("description=%q, want embedded delimiter kept", got)
	}
	if first.Number != 2 {
		t.Fatalf("first.Number=%d, want 2", first.Number)
	}

	second := s.Rows[1]
	if got := s.Value(second, ColDescription); got != "Line one\nline two with \"quotes\"" {
		t.Fatalf("description=%q, want embedded newline and quotes", got)
	}
	// the empty line and the whitespace-only row both occupy a spreadsheet row
	if second.Number != 5 {
		t.Fatalf("second.Number=%d, want 5", second.Number)
	}
	if got := s.Value(second, ColLocation); got != "Yard" {
		t.Fatalf("location=%q, want Yard", got)
	}
}

func TestParse_RowNumbersCountBlankLines(t *testing.T) {
	raw := "\n" +
		"semana,ano,fecha,email,descripcion\n" +
		"1,2025,2025-01-01,a@acme.com,\"first\nsecond line\"\n" +
		"\n" +
		"2,2025,2025-01-08,b@acme.com,next\n" +
		",,,,\n" +
		"3,2025,2025-01-15,c@acme.com,last\n"

	s, err := Parse(raw)
	if err != nil {
		t.Fatalf("Parse() err=%v, want nil", err)
	}
	var got []int
	for _, row := range s.Rows {
		got = append(got, row.Number)
	}
	want := []int{3, 5, 7}
	if len(got) != len(want) {
		t.Fatalf("row numbers=%v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("row numbers=%v, want %v", got, want)
		}
	}
}

func TestParse_HeaderSynonymsAndFallback(t *testing.T) {
	raw := "WEEK;Year;Fecha Fin;Fecha;Responsable;Título;Tipo;Proceso\n" +
		"3;2025;2025-01-20;2025-01-17;Ana@Acme.com;Audit;High;Maintenance\n"

	s, err := Parse(raw)
	if err != nil {
		t.Fatalf("Parse() err=%v, want nil", err)
	}

	want := map[Column]int{
		ColWeek:        0,
		ColYear:        1,
		ColEndDate:     2,
		ColDate:        3,
		ColAssignee:    4,
		ColDescription: -1,
		ColTitle:       5,
		ColCategory:    6,
		ColContractor:  7,
		ColLocation:    -1,
	}
	for col, idx := range want {
		if got := s.Index(col); got != idx {
			t.Fatalf("Index(%d)=%d, want %d", col, got, idx)
		}
	}
}

func TestParse_MalformedDocument(t *testing.T) {
	cases := map[string]string{
		"empty":           "",
		"header only":     "semana,ano,fecha,email,descripcion\n",
		"blank data rows": "semana,ano,fecha,email,descripcion\n,,,,\n\n",
		"missing columns": "semana,fecha,email\n1,2025-01-01,a@acme.com\n",
	}
	for name, raw := range cases {
		t.Run(name, func(t *testing.T) {
			if _, err := Parse(raw); !errors.Is(err, ErrMalformedDocument) {
				t.Fatalf("Parse() err=%v, want ErrMalformedDocument", err)
			}
		})
	}
}

func TestNormalizeHeader(t *testing.T) {
	cases := map[string]string{
		"  Año ":          "ano",
		"DESCRIPCIÓN":     "descripcion",
		"Ubicación   del": "ubicacion del",
		"E-mail":          "e-mail",
	}
	for in, want := range cases {
		if got := NormalizeHeader(in); got != want {
			t.Fatalf("NormalizeHeader(%q)=%q, want %q", in, got, want)
		}
	}
}

func TestDetectDelimiter(t *testing.T) {
	if got := detectDelimiter("a;b;c\n1,2;3"); got != ';' {
		t.Fatalf("detectDelimiter()=%q, want ';'", got)
	}
	if got := detectDelimiter("a\tb\tc"); got != '\t' {
		t.Fatalf("detectDelimiter()=%q, want tab", got)
	}
	if got := detectDelimiter("a,b;c"); got != ',' {
		t.Fatalf("detectDelimiter()=%q, want ','", got)
	}
}
