// Package repository persists pipeline artifacts and serves ranked candidates.
package repository

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/okian/dipscan/internal/domain/model"
)

// keyFallbackFragment identifies a column that may stand in for the key column.
const keyFallbackFragment = "tic"

// Alias maps a legacy column name to its canonical name.
type Alias struct {
	From string
	To   string
}

// Schema declares how a table is normalized when it is loaded.
type Schema struct {
	// Keyed tables must end up with a target_id column.
	Keyed bool
	// Aliases are tried in order. A rename applies only while the canonical
	// column is absent, so the first present alias wins.
	Aliases []Alias
	// Required columns must be present after renames.
	Required []string
}

// Table is a rectangular, header-addressed CSV table. Unknown columns are preserved.
type Table struct {
	header []string
	index  map[string]int
	rows   [][]string
}

// NewTable creates an empty table with the given columns.
func NewTable(columns ...string) *Table {
	t := &Table{index: make(map[string]int, len(columns))}
	for _, c := range columns {
		t.AddColumn(c)
	}
	return t
}

// Header returns a copy of the column names.
func (t *Table) Header() []string { return append([]string(nil), t.header...) }

// Len returns the number of data rows.
func (t *Table) Len() int { return len(t.rows) }

// Has reports whether the column exists.
func (t *Table) Has(column string) bool {
	_, ok := t.index[column]
	return ok
}

// AddColumn appends an empty column if it does not exist yet.
func (t *Table) AddColumn(column string) {
	if t.Has(column) {
		return
	}
	t.index[column] = len(t.header)
	t.header = append(t.header, column)
	for i := range t.rows {
		t.rows[i] = append(t.rows[i], "")
	}
}

// Rename changes a column name. Renaming onto an existing column is an error.
func (t *Table) Rename(from, to string) error {
	i, ok := t.index[from]
	if !ok {
		return fmt.Errorf("%w: no column %q", model.ErrSchemaMismatch, from)
	}
	if from == to {
		return nil
	}
	if t.Has(to) {
		return fmt.Errorf("%w: column %q already exists", model.ErrSchemaMismatch, to)
	}
	delete(t.index, from)
	t.index[to] = i
	t.header[i] = to
	return nil
}

// Append adds a row from column values. Unknown columns are added.
func (t *Table) Append(values map[string]string) {
	row := make([]string, len(t.header))
	t.rows = append(t.rows, row)
	for c, v := range values {
		t.Set(len(t.rows)-1, c, v)
	}
}

// AppendRow adds a copy of row i of src, matching columns by name.
func (t *Table) AppendRow(src *Table, i int) {
	values := make(map[string]string, len(src.header))
	for j, c := range src.header {
		values[c] = src.rows[i][j]
	}
	t.Append(values)
}

// Get returns the cell value and whether it is present (column exists and cell non-empty).
func (t *Table) Get(row int, column string) (string, bool) {
	j, ok := t.index[column]
	if !ok {
		return "", false
	}
	v := strings.TrimSpace(t.rows[row][j])
	return v, v != ""
}

// Set writes a cell, adding the column if needed.
func (t *Table) Set(row int, column, value string) {
	t.AddColumn(column)
	t.rows[row][t.index[column]] = value
}

// Filter returns a new table with the same header holding the rows keep accepts.
func (t *Table) Filter(keep func(row int) bool) *Table {
	out := NewTable(t.header...)
	for i, r := range t.rows {
		if keep(i) {
			out.rows = append(out.rows, append([]string(nil), r...))
		}
	}
	return out
}

// Normalize applies a schema: key fallback rename, aliases, then required columns.
func (t *Table) Normalize(s Schema) error {
	if s.Keyed && !t.Has(ColTargetID) {
		fallback := ""
		for _, c := range t.header {
			if strings.Contains(strings.ToLower(c), keyFallbackFragment) {
				fallback = c
				break
			}
		}
		if fallback == "" {
			return fmt.Errorf("%w: no %q column and no fallback column", model.ErrSchemaMismatch, ColTargetID)
		}
		if err := t.Rename(fallback, ColTargetID); err != nil {
			return err
		}
	}
	for _, a := range s.Aliases {
		if t.Has(a.From) && !t.Has(a.To) {
			if err := t.Rename(a.From, a.To); err != nil {
				return err
			}
		}
	}
	for _, c := range s.Required {
		if !t.Has(c) {
			return fmt.Errorf("%w: missing required column %q", model.ErrSchemaMismatch, c)
		}
	}
	return nil
}

// ReadTable parses CSV with a header row. Short rows are padded.
func ReadTable(r io.Reader) (*Table, error) {
	cr := csv.NewReader(r)
	cr.FieldsPerRecord = -1
	cr.TrimLeadingSpace = true

	header, err := cr.Read()
	if errors.Is(err, io.EOF) {
		return NewTable(), nil
	}
	if err != nil {
		return nil, fmt.Errorf("read header: %w", err)
	}
	if len(header) > 0 {
		header[0] = strings.TrimPrefix(header[0], "\ufeff")
	}
	t := NewTable()
	for _, c := range header {
		c = strings.TrimSpace(c)
		if t.Has(c) {
			return nil, fmt.Errorf("%w: duplicate column %q", model.ErrSchemaMismatch, c)
		}
		t.AddColumn(c)
	}
	for {
		rec, err := cr.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("read row %d: %w", len(t.rows)+1, err)
		}
		row := make([]string, len(t.header))
		copy(row, rec)
		t.rows = append(t.rows, row)
	}
	return t, nil
}

// Write writes the table as CSV.
func (t *Table) Write(w io.Writer) error {
	cw := csv.NewWriter(w)
	if err := cw.Write(t.header); err != nil {
		return err
	}
	return cw.WriteAll(t.rows)
}

// LoadTable reads and normalizes the table at path.
// A missing file yields model.ErrMissingInput.
func LoadTable(path string, s Schema) (*Table, error) {
	f, err := os.Open(path) //nolint:gosec // paths come from configuration
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, fmt.Errorf("%w: %s", model.ErrMissingInput, path)
		}
		return nil, err
	}
	defer func() { _ = f.Close() }()

	t, err := ReadTable(f)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	if err := t.Normalize(s); err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return t, nil
}

// SaveTable writes the table to path atomically.
func SaveTable(path string, t *Table) error {
	return WriteFileAtomic(path, t.Write)
}
