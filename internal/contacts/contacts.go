// Package contacts holds the contact table a batch iterates over and the
// per-row validation applied before a message is sent.
package contacts

import (
	"errors"
	"fmt"
	"strings"
)

// PhoneColumn is the column every contact table must carry.
const PhoneColumn = "phone"

// FallbackName is used when a row has no name-like column.
const FallbackName = "Friend"

// nameColumns are checked in order by ResolveDisplayName.
var nameColumns = []string{"name", "fullName", "full_name", "firstName", "first_name"}

var ErrMissingColumn = errors.New("missing column")

// Row maps column names to cell values. An absent key and an empty value are
// both treated as null.
type Row map[string]string

// Value returns the cell for column and whether it holds a non-null value.
func (r Row) Value(column string) (string, bool) {
	v, ok := r[column]
	if !ok || v == "" {
		return "", false
	}
	return v, true
}

// Table is an ordered list of rows sharing one header.
type Table struct {
	Columns []string
	Rows    []Row
}

func (t *Table) Len() int { return len(t.Rows) }

func (t *Table) HasColumn(name string) bool {
	for _, c := range t.Columns {
		if c == name {
			return true
		}
	}
	return false
}

// RequireColumns reports every name missing from the header.
func (t *Table) RequireColumns(names ...string) error {
	var missing []string
	for _, n := range names {
		if !t.HasColumn(n) {
			missing = append(missing, n)
		}
	}
	if len(missing) > 0 {
		return fmt.Errorf("%w: %s", ErrMissingColumn, strings.Join(missing, ", "))
	}
	return nil
}

// NormalizePhone trims raw, strips internal spaces and '+' signs and reports
// whether the remainder is a non-empty run of decimal digits.
func NormalizePhone(raw string) (string, bool) {
	s := strings.TrimSpace(raw)
	s = strings.ReplaceAll(s, " ", "")
	s = strings.ReplaceAll(s, "+", "")
	if s == "" {
		return s, false
	}
	for i := 0; i < len(s); i++ {
		if s[i] < '0' || s[i] > '9' {
			return s, false
		}
	}
	return s, true
}

// ResolveDisplayName returns the first non-null name-like column of row, or
// FallbackName.
func ResolveDisplayName(row Row) string {
	for _, col := range nameColumns {
		if v, ok := row.Value(col); ok {
			return v
		}
	}
	return FallbackName
}
