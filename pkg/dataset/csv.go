package dataset

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
)

// WriteCSV writes the table with a header row. Missing cells are written empty.
func WriteCSV(w io.Writer, t *Table) error {
	cw := csv.NewWriter(w)
	if err := cw.Write(t.Columns); err != nil {
		return err
	}
	record := make([]string, len(t.Columns))
	for _, row := range t.Rows {
		for i, c := range t.Columns {
			record[i] = row[c]
		}
		if err := cw.Write(record); err != nil {
			return err
		}
	}
	cw.Flush()
	return cw.Error()
}

// ReadCSV reads a table written by WriteCSV. Empty cells become missing.
func ReadCSV(r io.Reader) (*Table, error) {
	cr := csv.NewReader(r)
	cr.FieldsPerRecord = -1
	header, err := cr.Read()
	if errors.Is(err, io.EOF) {
		return nil, ErrEmptyTable
	}
	if err != nil {
		return nil, fmt.Errorf("reading header: %w", err)
	}

	t := NewTable()
	var rows []Row
	for line := 2; ; line++ {
		record, err := cr.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("line %d: %w", line, err)
		}
		rows = append(rows, RowFromRecord(header, record))
	}
	t.Append(header, rows)
	return t, nil
}

// RowFromRecord zips a header with a record, skipping empty cells.
func RowFromRecord(header, record []string) Row {
	row := make(Row, len(header))
	for i, c := range header {
		if i >= len(record) || record[i] == "" {
			continue
		}
		row[c] = record[i]
	}
	return row
}
