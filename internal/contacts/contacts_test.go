package contacts

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNormalizePhone(t *testing.T) {
	tests := []struct {
		raw   string
		want  string
		valid bool
	}{
		{" +91 98765 43210 ", "919876543210", true},
		{"919876543210", "919876543210", true},
		{"+1 555 0100", "15550100", true},
		{"abc123", "abc123", false},
		{"", "", false},
		{"   ", "", false},
		{"+", "", false},
		{"91-98765", "91-98765", false},
		{"٣٣٣", "٣٣٣", false}, // non-ASCII digits
	}

	for _, tt := range tests {
		t.Run(tt.raw, func(t *testing.T) {
			got, ok := NormalizePhone(tt.raw)
			assert.Equal(t, tt.valid, ok)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestResolveDisplayName(t *testing.T) {
	tests := []struct {
		name string
		row  Row
		want string
	}{
		{"fullName only", Row{"fullName": "Asha"}, "Asha"},
		{"empty row", Row{}, "Friend"},
		{"priority order", Row{"first_name": "A", "name": "Ravi", "fullName": "Ravi Kumar"}, "Ravi"},
		{"null skipped", Row{"name": "", "full_name": "Meera Das"}, "Meera Das"},
		{"unrelated columns", Row{"phone": "91", "city": "Pune"}, "Friend"},
		{"first_name last", Row{"first_name": "Zoya"}, "Zoya"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, ResolveDisplayName(tt.row))
		})
	}
}

func TestParseCSV(t *testing.T) {
	input := "\ufeffphone, name ,city\n" +
		"+91 98765 43210,Asha,Pune\n" +
		",,\n" +
		"15550100,Ravi\n" +
		"abc,\"Doe, Jane\",Delhi\n"

	table, err := ParseCSV(strings.NewReader(input))
	require.NoError(t, err)

	assert.Equal(t, []string{"phone", "name", "city"}, table.Columns)
	require.Equal(t, 3, table.Len())

	assert.Equal(t, Row{"phone": "+91 98765 43210", "name": "Asha", "city": "Pune"}, table.Rows[0])

	city, ok := table.Rows[1].Value("city")
	assert.False(t, ok, "short rows are padded with nulls")
	assert.Empty(t, city)

	assert.Equal(t, "Doe, Jane", table.Rows[2]["name"])
}

func TestParseCSVEmpty(t *testing.T) {
	_, err := ParseCSV(strings.NewReader(""))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "empty")
}

func TestLoadCSV(t *testing.T) {
	path := filepath.Join(t.TempDir(), "contacts.csv")
	require.NoError(t, os.WriteFile(path, []byte("phone,name\n1,A\n"), 0o600))

	table, err := LoadCSV(path)
	require.NoError(t, err)
	assert.Equal(t, 1, table.Len())

	_, err = LoadCSV(filepath.Join(t.TempDir(), "missing.csv"))
	assert.Error(t, err)
}

func TestRequireColumns(t *testing.T) {
	table := &Table{Columns: []string{"phone", "name"}}

	assert.NoError(t, table.RequireColumns(PhoneColumn, "name"))

	err := table.RequireColumns(PhoneColumn, "city", "plan")
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrMissingColumn))
	assert.Contains(t, err.Error(), "city, plan")
}

func TestPreview(t *testing.T) {
	table := &Table{Columns: []string{"phone", "name"}}
	for i := 0; i < 12; i++ {
		table.Rows = append(table.Rows, Row{"phone": "1"})
	}

	p := table.Preview(10)
	assert.Equal(t, 12, p.TotalRows)
	require.Len(t, p.Rows, 10)
	assert.Equal(t, Row{"phone": "1", "name": ""}, p.Rows[0])

	assert.Len(t, table.Preview(50).Rows, 12)
	assert.Empty(t, table.Preview(-1).Rows)
}
