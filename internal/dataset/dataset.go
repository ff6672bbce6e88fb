// Package dataset holds tabular input data and builds the schema document
// describing it.
package dataset

import (
	"bytes"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/raphaelgruber/hygeia-go/internal/cache"
)

var (
	ErrEmpty           = errors.New("dataset has no columns")
	ErrRaggedRow       = errors.New("row length does not match header")
	ErrDuplicateColumn = errors.New("duplicate column name")
)

// missingMarkers are cell values read as missing.
var missingMarkers = map[string]struct{}{
	"":     {},
	"NA":   {},
	"N/A":  {},
	"NaN":  {},
	"nan":  {},
	"null": {},
	"NULL": {},
}

// IsMissing reports whether a raw cell value denotes a missing value.
func IsMissing(cell string) bool {
	_, ok := missingMarkers[strings.TrimSpace(cell)]
	return ok
}

// Dataset is a rectangular table of raw string cells. Missing cells are
// normalized to the empty string.
type Dataset struct {
	Columns []string
	Rows    [][]string
}

// New validates the shape of columns and rows and returns a Dataset owning
// copies of them.
func New(columns []string, rows [][]string) (*Dataset, error) {
	if len(columns) == 0 {
		return nil, ErrEmpty
	}
	seen := make(map[string]struct{}, len(columns))
	for _, c := range columns {
		if _, dup := seen[c]; dup {
			return nil, fmt.Errorf("%w: %q", ErrDuplicateColumn, c)
		}
		seen[c] = struct{}{}
	}

	ds := &Dataset{
		Columns: append([]string(nil), columns...),
		Rows:    make([][]string, len(rows)),
	}
	for i, r := range rows {
		if len(r) != len(columns) {
			return nil, fmt.Errorf("%w: row %d has %d cells, want %d", ErrRaggedRow, i+1, len(r), len(columns))
		}
		row := make([]string, len(r))
		for j, cell := range r {
			if IsMissing(cell) {
				continue
			}
			row[j] = strings.TrimSpace(cell)
		}
		ds.Rows[i] = row
	}
	return ds, nil
}

// ReadCSV parses a CSV table whose first record is the header.
func ReadCSV(r io.Reader) (*Dataset, error) {
	cr := csv.NewReader(r)
	cr.FieldsPerRecord = -1
	records, err := cr.ReadAll()
	if err != nil {
		return nil, fmt.Errorf("parse csv: %w", err)
	}
	if len(records) == 0 {
		return nil, ErrEmpty
	}
	header := make([]string, len(records[0]))
	for i, h := range records[0] {
		header[i] = strings.TrimSpace(strings.TrimPrefix(h, "\ufeff"))
	}
	return New(header, records[1:])
}

// ReadCSVFile reads a CSV table from path.
func ReadCSVFile(path string) (*Dataset, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open dataset: %w", err)
	}
	defer f.Close()
	ds, err := ReadCSV(f)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return ds, nil
}

// NumRows returns the number of data rows.
func (d *Dataset) NumRows() int { return len(d.Rows) }

// NumCols returns the number of columns.
func (d *Dataset) NumCols() int { return len(d.Columns) }

// Column returns the cells of column i.
func (d *Dataset) Column(i int) []string {
	out := make([]string, len(d.Rows))
	for r, row := range d.Rows {
		out[r] = row[i]
	}
	return out
}

// MissingCells counts missing cells across the table.
func (d *Dataset) MissingCells() int {
	n := 0
	for _, row := range d.Rows {
		for _, cell := range row {
			if cell == "" {
				n++
			}
		}
	}
	return n
}

// WriteCSV serializes the table deterministically: header first, rows in
// order, missing cells empty, "\n" line endings.
func (d *Dataset) WriteCSV(w io.Writer) error {
	cw := csv.NewWriter(w)
	if err := cw.Write(d.Columns); err != nil {
		return fmt.Errorf("write header: %w", err)
	}
	if err := cw.WriteAll(d.Rows); err != nil {
		return fmt.Errorf("write rows: %w", err)
	}
	return nil
}

// Bytes returns the deterministic CSV form of the table.
func (d *Dataset) Bytes() ([]byte, error) {
	var buf bytes.Buffer
	if err := d.WriteCSV(&buf); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// SHA256 returns the full hex digest of the deterministic CSV form.
func (d *Dataset) SHA256() (string, error) {
	data, err := d.Bytes()
	if err != nil {
		return "", err
	}
	return cache.SHA256Hex(data), nil
}

// Hash identifies the table content. Equal tables hash equally.
func (d *Dataset) Hash() (string, error) {
	data, err := d.Bytes()
	if err != nil {
		return "", err
	}
	return cache.ShortHash(data), nil
}
