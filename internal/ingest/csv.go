// Package ingest loads charges and candidate rules from CSV exports.
package ingest

import (
	"bufio"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"strings"
)

// ErrMissingColumn is returned when a required header is absent.
var ErrMissingColumn = errors.New("missing required column")

// Options controls how cells are interpreted.
type Options struct {
	// NullValue, when set, marks an unset optional cell. Empty cells then
	// become concrete empty strings. When NullValue is empty, empty cells
	// are unset.
	NullValue string
}

var headerAliases = map[string]string{
	"customer":      "customer_name",
	"provider":      "provider_name",
	"account":       "account_number",
	"statement":     "statement_id",
	"priority":      "priority_order",
	"pattern":       "charge_name_mapping",
	"mapping":       "charge_name_mapping",
	"meter":         "meter_number",
	"measurement":   "charge_measurement",
	"group_heading": "charge_group_heading",
	"category":      "charge_category",
}

// normalizeHeader maps "Charge name", "charge-name" and "CHARGE_NAME" to the
// same key.
func normalizeHeader(h string) string {
	h = strings.TrimPrefix(h, "\ufeff")
	h = strings.ToLower(strings.TrimSpace(h))
	h = strings.NewReplacer(" ", "_", "-", "_").Replace(h)
	if canonical, ok := headerAliases[h]; ok {
		return canonical
	}
	return h
}

// table reads a headered CSV one record at a time.
type table struct {
	reader  *csv.Reader
	columns map[string]int
	opts    Options
	line    int
}

func newTable(r io.Reader, opts Options, required ...string) (*table, error) {
	reader := csv.NewReader(bufio.NewReader(r))
	reader.TrimLeadingSpace = true
	reader.FieldsPerRecord = -1

	header, err := reader.Read()
	if err == io.EOF {
		return nil, fmt.Errorf("empty CSV: header row required")
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read header: %w", err)
	}

	columns := make(map[string]int, len(header))
	for i, h := range header {
		key := normalizeHeader(h)
		if _, dup := columns[key]; dup {
			return nil, fmt.Errorf("duplicate column %q", h)
		}
		columns[key] = i
	}

	for _, name := range required {
		if _, ok := columns[name]; !ok {
			return nil, fmt.Errorf("%w: %s", ErrMissingColumn, name)
		}
	}

	return &table{reader: reader, columns: columns, opts: opts, line: 1}, nil
}

// next returns the next record, io.EOF at the end, or a per-line error the
// caller may skip.
func (t *table) next() (record, error) {
	rec, err := t.reader.Read()
	t.line++
	if err != nil {
		return record{}, err
	}
	return record{table: t, fields: rec}, nil
}

type record struct {
	table  *table
	fields []string
}

// value returns the trimmed cell for column, or "" when the column is absent,
// the row is short, or the cell holds the null token.
func (r record) value(column string) string {
	s, _ := r.lookup(column)
	return s
}

// optional returns nil for an unset cell and a pointer otherwise.
func (r record) optional(column string) *string {
	s, ok := r.lookup(column)
	if !ok {
		return nil
	}
	if r.table.opts.NullValue == "" && s == "" {
		return nil
	}
	return &s
}

func (r record) lookup(column string) (string, bool) {
	i, ok := r.table.columns[column]
	if !ok || i >= len(r.fields) {
		return "", false
	}
	s := strings.TrimSpace(r.fields[i])
	if null := r.table.opts.NullValue; null != "" && s == null {
		return "", false
	}
	return s, true
}

func (r record) blank() bool {
	for _, f := range r.fields {
		if strings.TrimSpace(f) != "" {
			return false
		}
	}
	return true
}
