// Package upload turns spreadsheet exports (XLSX or CSV) into raw,
// untyped tables. It does not interpret column names; that is the
// normalizer's job.
package upload

import (
	"bytes"
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"unicode"

	"github.com/xuri/excelize/v2"
	"golang.org/x/sync/errgroup"
)

var (
	ErrUnsupportedFormat = errors.New("unsupported file format")
	ErrEmptyFile         = errors.New("file has no header row")
)

// Table is one decoded upload. Rows may be ragged; missing trailing cells
// read as empty strings.
type Table struct {
	Source string
	Header []string
	Rows   [][]string
}

func (t Table) Cell(row, col int) string {
	if row < 0 || row >= len(t.Rows) || col < 0 || col >= len(t.Rows[row]) {
		return ""
	}
	return strings.TrimSpace(t.Rows[row][col])
}

// File is a named upload waiting to be decoded.
type File struct {
	Name string
	Data []byte
}

// FileError records a file that could not be decoded.
type FileError struct {
	Source string
	Err    error
}

func (e FileError) Error() string {
	return fmt.Sprintf("%s: %v", e.Source, e.Err)
}

func (e FileError) Unwrap() error {
	return e.Err
}

// Batch holds the decoded tables of a multi-file upload in input order,
// plus the files that were skipped.
type Batch struct {
	Tables   []Table
	Failures []FileError
}

// Decode reads a single upload, choosing the format from the file extension.
func Decode(name string, r io.Reader) (Table, error) {
	var (
		rows [][]string
		err  error
	)

	switch strings.ToLower(filepath.Ext(name)) {
	case ".xlsx", ".xlsm":
		rows, err = readWorkbook(r)
	case ".csv", ".txt":
		rows, err = readCSV(r)
	default:
		return Table{}, fmt.Errorf("%s: %w", name, ErrUnsupportedFormat)
	}
	if err != nil {
		return Table{}, fmt.Errorf("%s: %w", name, err)
	}

	return buildTable(name, rows)
}

// DecodeFile decodes a spreadsheet from disk.
func DecodeFile(path string) (Table, error) {
	f, err := os.Open(path)
	if err != nil {
		return Table{}, err
	}
	defer f.Close()

	return Decode(filepath.Base(path), f)
}

// DecodeBatch decodes files with at most workers files in flight. A file
// that fails to decode is reported in Failures and never aborts the batch.
func DecodeBatch(ctx context.Context, files []File, workers int) (Batch, error) {
	if workers <= 0 {
		workers = 1
	}

	tables := make([]*Table, len(files))
	failures := make([]error, len(files))

	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(workers)

	for i, f := range files {
		g.Go(func() error {
			if err := ctx.Err(); err != nil {
				return err
			}
			t, err := Decode(f.Name, bytes.NewReader(f.Data))
			if err != nil {
				failures[i] = err
				return nil
			}
			tables[i] = &t
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return Batch{}, err
	}

	var batch Batch
	for i, f := range files {
		if failures[i] != nil {
			batch.Failures = append(batch.Failures, FileError{Source: f.Name, Err: unwrapName(failures[i])})
			continue
		}
		batch.Tables = append(batch.Tables, *tables[i])
	}
	return batch, nil
}

func readWorkbook(r io.Reader) ([][]string, error) {
	f, err := excelize.OpenReader(r)
	if err != nil {
		return nil, fmt.Errorf("open workbook: %w", err)
	}
	defer f.Close()

	sheets := f.GetSheetList()
	if len(sheets) == 0 {
		return nil, ErrEmptyFile
	}

	// Raw values keep date cells as serial day numbers instead of their
	// locale-formatted text.
	rows, err := f.GetRows(sheets[0], excelize.Options{RawCellValue: true})
	if err != nil {
		return nil, fmt.Errorf("read sheet %q: %w", sheets[0], err)
	}
	return rows, nil
}

func readCSV(r io.Reader) ([][]string, error) {
	cr := csv.NewReader(r)
	cr.FieldsPerRecord = -1
	cr.LazyQuotes = true

	rows, err := cr.ReadAll()
	if err != nil {
		return nil, fmt.Errorf("read csv: %w", err)
	}
	if len(rows) > 0 && len(rows[0]) > 0 {
		rows[0][0] = strings.TrimPrefix(rows[0][0], "\ufeff")
	}
	return rows, nil
}

// buildTable treats the first non-blank row as the header and drops fully
// blank rows after it.
func buildTable(name string, rows [][]string) (Table, error) {
	start := -1
	for i, row := range rows {
		if !blankRow(row) {
			start = i
			break
		}
	}
	if start < 0 {
		return Table{}, fmt.Errorf("%s: %w", name, ErrEmptyFile)
	}

	header := make([]string, len(rows[start]))
	for i, h := range rows[start] {
		header[i] = strings.TrimSpace(h)
	}

	body := make([][]string, 0, len(rows)-start-1)
	for _, row := range rows[start+1:] {
		if blankRow(row) {
			continue
		}
		body = append(body, row)
	}

	return Table{Source: name, Header: header, Rows: body}, nil
}

func blankRow(row []string) bool {
	for _, cell := range row {
		if strings.TrimSpace(cell) != "" {
			return false
		}
	}
	return true
}

// HeaderKey folds a column title into an upper-case key with runs of
// non-alphanumerics collapsed to a single underscore.
func HeaderKey(title string) string {
	var b strings.Builder
	pendingSep := false
	for _, r := range strings.TrimSpace(title) {
		if unicode.IsLetter(r) || unicode.IsDigit(r) {
			if pendingSep && b.Len() > 0 {
				b.WriteByte('_')
			}
			pendingSep = false
			b.WriteRune(unicode.ToUpper(r))
			continue
		}
		pendingSep = true
	}
	return b.String()
}

func unwrapName(err error) error {
	if inner := errors.Unwrap(err); inner != nil {
		return inner
	}
	return err
}
