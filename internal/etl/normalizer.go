package etl

import (
	"errors"
	"fmt"

	"sales-insights/internal/upload"
)

const (
	inferenceSample    = 50
	inferenceThreshold = 0.8
)

// Inference records a column that was mapped by looking at its values
// rather than its title.
type Inference struct {
	Field  Field
	Column string
	Index  int
}

// Normalizer maps arbitrary upload columns onto the canonical schema.
type Normalizer struct{}

func NewNormalizer() *Normalizer {
	return &Normalizer{}
}

// Map resolves columns through the alias table. The first column matching a
// field wins. When a required field is unmapped the partial mapping is
// returned together with a *SchemaValidationError.
func (n *Normalizer) Map(t upload.Table) (Mapping, error) {
	m := emptyMapping()
	for i, title := range t.Header {
		f, ok := LookupAlias(title)
		if !ok || m.Has(f) {
			continue
		}
		m[f] = i
	}

	if missing := m.missing(RequiredFields); len(missing) > 0 {
		return m, &SchemaValidationError{Source: t.Source, Missing: missing}
	}
	return m, nil
}

// Infer fills unmapped required fields from column contents: the first
// column of text dates (else of serial day numbers) becomes DATE, the right-most mostly-numeric column
// becomes AMOUNT and the first mostly-text column becomes ITEMNAME.
func (n *Normalizer) Infer(t upload.Table, m Mapping) (Mapping, []Inference) {
	var inferred []Inference
	profiles := profileColumns(t)

	assign := func(f Field, col int) {
		m[f] = col
		inferred = append(inferred, Inference{Field: f, Column: columnTitle(t, col), Index: col})
	}

	if !m.Has(FieldDate) {
		if col, ok := dateColumn(profiles, m); ok {
			assign(FieldDate, col)
		}
	}

	if !m.Has(FieldAmount) {
		for col := len(profiles) - 1; col >= 0; col-- {
			if !m.used(col) && profiles[col].numericShare() >= inferenceThreshold {
				assign(FieldAmount, col)
				break
			}
		}
	}

	if !m.Has(FieldItem) {
		for col, p := range profiles {
			if !m.used(col) && p.textShare() >= inferenceThreshold {
				assign(FieldItem, col)
				break
			}
		}
	}

	return m, inferred
}

// Apply projects every upload row onto the canonical columns.
func (n *Normalizer) Apply(t upload.Table, m Mapping) Frame {
	frame := Frame{Rows: make([]Row, 0, len(t.Rows))}
	for i := range t.Rows {
		row := Row{Source: t.Source, Line: i + 1}
		for f := Field(0); f < numFields; f++ {
			if m.Has(f) {
				row.Set(f, t.Cell(i, m[f]))
			}
		}
		frame.Rows = append(frame.Rows, row)
	}
	return frame
}

// Normalize runs Map, falls back to Infer when required columns are
// missing, and projects the table. The returned warnings name every
// inferred column. An error is returned only when required fields are
// still missing after inference.
func (n *Normalizer) Normalize(t upload.Table) (Frame, []Warning, error) {
	m, err := n.Map(t)
	if err == nil {
		return n.Apply(t, m), nil, nil
	}

	var schemaErr *SchemaValidationError
	if !errors.As(err, &schemaErr) {
		return Frame{}, nil, err
	}

	var warnings []Warning
	warnings = append(warnings, Warning{
		Stage:   StageNormalize,
		Source:  t.Source,
		Message: schemaErr.Error() + "; inferring from column contents",
	})

	m, inferred := n.Infer(t, m)
	for _, inf := range inferred {
		warnings = append(warnings, Warning{
			Stage:   StageNormalize,
			Source:  t.Source,
			Field:   inf.Field.String(),
			Message: fmt.Sprintf("inferred from column %q", inf.Column),
		})
	}

	if missing := m.missing(RequiredFields); len(missing) > 0 {
		return Frame{}, warnings, &SchemaValidationError{Source: t.Source, Missing: missing}
	}
	return n.Apply(t, m), warnings, nil
}

// columnProfile counts cell kinds in a sampled column. Serials are the
// whole numbers inside the Excel date range; they are also counted as
// numbers, so a serial-only column is ambiguous with an amount column.
type columnProfile struct {
	filled, dates, numbers, serials int
}

// dateShare counts serials toward a column that already holds text dates.
func (p columnProfile) dateShare() float64 {
	if p.dates == 0 {
		return 0
	}
	return share(p.dates+p.serials, p.filled)
}

// serialShare is non-zero only for columns whose numbers are all serials.
func (p columnProfile) serialShare() float64 {
	if p.dates > 0 || p.serials != p.numbers {
		return 0
	}
	return share(p.serials, p.filled)
}

func (p columnProfile) numericShare() float64 {
	return share(p.numbers, p.filled)
}

func (p columnProfile) textShare() float64 {
	return share(p.filled-p.numbers-p.dates, p.filled)
}

func share(part, whole int) float64 {
	if whole == 0 {
		return 0
	}
	return float64(part) / float64(whole)
}

func profileColumns(t upload.Table) []columnProfile {
	width := len(t.Header)
	for _, row := range t.Rows {
		width = max(width, len(row))
	}

	profiles := make([]columnProfile, width)
	sampled := 0
	for i := 0; i < len(t.Rows) && sampled < inferenceSample; i++ {
		sampled++
		for col := 0; col < width; col++ {
			v := t.Cell(i, col)
			if v == "" {
				continue
			}
			p := &profiles[col]
			p.filled++
			switch {
			case isNumber(v):
				p.numbers++
				if isSerialDay(v) {
					p.serials++
				}
			case looksLikeDate(v):
				p.dates++
			}
		}
	}
	return profiles
}

// dateColumn prefers the first column holding text dates and only then
// falls back to a column of bare serial day numbers.
func dateColumn(profiles []columnProfile, m Mapping) (int, bool) {
	for col, p := range profiles {
		if !m.used(col) && p.dateShare() >= inferenceThreshold {
			return col, true
		}
	}
	for col, p := range profiles {
		if !m.used(col) && p.serialShare() >= inferenceThreshold {
			return col, true
		}
	}
	return 0, false
}

func columnTitle(t upload.Table, col int) string {
	if col < len(t.Header) && t.Header[col] != "" {
		return t.Header[col]
	}
	return fmt.Sprintf("column %d", col+1)
}
