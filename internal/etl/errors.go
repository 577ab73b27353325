package etl

import (
	"errors"
	"fmt"
	"strings"
)

var (
	ErrInvalidTenant = errors.New("tenant id must be 1-64 letters, digits, '-' or '_'")
	ErrNoUsableFiles = errors.New("no uploaded file contained usable rows")
)

type Stage string

const (
	StageDecode    Stage = "decode"
	StageNormalize Stage = "normalize"
	StageClean     Stage = "clean"
	StageEnrich    Stage = "enrich"
	StageTax       Stage = "tax"
	StageWrite     Stage = "write"
)

// Warning is a recovered problem reported back to the uploader. Row is the
// 1-based data row inside Source; zero means the warning covers the whole
// file or stage.
type Warning struct {
	Stage   Stage  `json:"stage"`
	Source  string `json:"source,omitempty"`
	Row     int    `json:"row,omitempty"`
	Field   string `json:"field,omitempty"`
	Message string `json:"message"`
}

func (w Warning) String() string {
	var b strings.Builder
	b.WriteString(string(w.Stage))
	if w.Source != "" {
		b.WriteString(" ")
		b.WriteString(w.Source)
	}
	if w.Row > 0 {
		fmt.Fprintf(&b, " row %d", w.Row)
	}
	if w.Field != "" {
		b.WriteString(" [")
		b.WriteString(w.Field)
		b.WriteString("]")
	}
	b.WriteString(": ")
	b.WriteString(w.Message)
	return b.String()
}

// SchemaValidationError reports required canonical fields that no column
// could be mapped to.
type SchemaValidationError struct {
	Source  string
	Missing []Field
}

func (e *SchemaValidationError) Error() string {
	names := make([]string, len(e.Missing))
	for i, f := range e.Missing {
		names[i] = f.String()
	}
	return fmt.Sprintf("%s: missing required columns: %s", e.Source, strings.Join(names, ", "))
}

// MissingNames lists the missing fields by canonical column name.
func (e *SchemaValidationError) MissingNames() []string {
	names := make([]string, len(e.Missing))
	for i, f := range e.Missing {
		names[i] = f.String()
	}
	return names
}

// RowError is a single-record failure inside a stage. It never aborts the
// batch; the pipeline turns it into a Warning.
type RowError struct {
	Field string
	Err   error
}

func (e *RowError) Error() string {
	if e.Field == "" {
		return e.Err.Error()
	}
	return fmt.Sprintf("%s: %v", e.Field, e.Err)
}

func (e *RowError) Unwrap() error {
	return e.Err
}

// PersistenceError wraps a failed store write. Nothing from the batch is
// committed when it is returned.
type PersistenceError struct {
	Tenant string
	Err    error
}

func (e *PersistenceError) Error() string {
	return fmt.Sprintf("persist records for tenant %s: %v", e.Tenant, e.Err)
}

func (e *PersistenceError) Unwrap() error {
	return e.Err
}
