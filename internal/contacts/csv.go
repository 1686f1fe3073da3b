package contacts

import (
	"bufio"
	"bytes"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
)

var utf8BOM = []byte{0xEF, 0xBB, 0xBF}

// LoadCSV opens path and parses it with ParseCSV.
func LoadCSV(path string) (*Table, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open CSV file: %w", err)
	}
	defer file.Close()

	return ParseCSV(file)
}

// ParseCSV reads a header row followed by data rows. Header names are
// trimmed, short rows are padded with nulls and rows whose cells are all
// empty are dropped.
func ParseCSV(r io.Reader) (*Table, error) {
	br := bufio.NewReader(r)
	if head, err := br.Peek(len(utf8BOM)); err == nil && bytes.Equal(head, utf8BOM) {
		_, _ = br.Discard(len(utf8BOM))
	}

	reader := csv.NewReader(br)
	reader.TrimLeadingSpace = true
	reader.FieldsPerRecord = -1

	header, err := reader.Read()
	if errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("CSV file is empty")
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read CSV header: %w", err)
	}

	columns := make([]string, len(header))
	for i, col := range header {
		columns[i] = strings.TrimSpace(col)
	}

	table := &Table{Columns: columns}
	for line := 2; ; line++ {
		record, err := reader.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("failed to read CSV row %d: %w", line, err)
		}
		if blank(record) {
			continue
		}

		row := make(Row, len(columns))
		for i, col := range columns {
			if col == "" || i >= len(record) {
				continue
			}
			row[col] = strings.TrimSpace(record[i])
		}
		table.Rows = append(table.Rows, row)
	}

	return table, nil
}

func blank(record []string) bool {
	for _, v := range record {
		if strings.TrimSpace(v) != "" {
			return false
		}
	}
	return true
}

// Preview is the summary shown before a batch is started.
type Preview struct {
	Columns   []string `json:"columns"`
	Rows      []Row    `json:"preview"`
	TotalRows int      `json:"total_rows"`
}

// Preview returns the header, the first n rows with every column present
// (nulls as empty strings) and the total row count.
func (t *Table) Preview(n int) Preview {
	switch {
	case n < 0:
		n = 0
	case n > len(t.Rows):
		n = len(t.Rows)
	}
	rows := make([]Row, 0, n)
	for _, src := range t.Rows[:n] {
		row := make(Row, len(t.Columns))
		for _, col := range t.Columns {
			row[col] = src[col]
		}
		rows = append(rows, row)
	}
	return Preview{Columns: t.Columns, Rows: rows, TotalRows: len(t.Rows)}
}
