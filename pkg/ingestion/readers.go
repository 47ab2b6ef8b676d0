package ingestion

import (
	"encoding/csv"
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/extrame/xls"
	"github.com/synaptica-ai/rigcast/pkg/dataset"
	"github.com/synaptica-ai/rigcast/pkg/labeler"
	"github.com/xuri/excelize/v2"
)

var (
	ErrEmptyFile         = errors.New("file has no header row")
	ErrMalformedWorkbook = errors.New("malformed xls workbook")
)

// ReadFunc parses one raw file into a header and rows. The first row of the
// file is the header.
type ReadFunc func(path string) ([]string, []dataset.Row, error)

// DefaultReaders maps each accepted format to its parser.
func DefaultReaders() map[labeler.Format]ReadFunc {
	return map[labeler.Format]ReadFunc{
		labeler.FormatCSV:  ReadCSVFile,
		labeler.FormatXLSX: ReadXLSXFile,
		labeler.FormatXLS:  ReadXLSFile,
	}
}

func ReadCSVFile(path string) ([]string, []dataset.Row, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, nil, err
	}
	defer f.Close()

	cr := csv.NewReader(f)
	cr.TrimLeadingSpace = true
	// short rows leave their trailing cells missing
	cr.FieldsPerRecord = -1
	records, err := cr.ReadAll()
	if err != nil {
		return nil, nil, err
	}
	return fromRecords(records)
}

func ReadXLSXFile(path string) ([]string, []dataset.Row, error) {
	f, err := excelize.OpenFile(path)
	if err != nil {
		return nil, nil, err
	}
	defer f.Close()

	sheets := f.GetSheetList()
	if len(sheets) == 0 {
		return nil, nil, ErrEmptyFile
	}
	records, err := f.GetRows(sheets[0])
	if err != nil {
		return nil, nil, fmt.Errorf("sheet %s: %w", sheets[0], err)
	}
	return fromRecords(records)
}

func ReadXLSFile(path string) (header []string, rows []dataset.Row, err error) {
	fh, err := os.Open(path)
	if err != nil {
		return nil, nil, err
	}
	defer fh.Close()

	// the BIFF parser panics on truncated records
	defer func() {
		if r := recover(); r != nil {
			header, rows, err = nil, nil, fmt.Errorf("%w: %v", ErrMalformedWorkbook, r)
		}
	}()

	wb, err := xls.OpenReader(fh, "utf-8")
	if err != nil {
		return nil, nil, fmt.Errorf("%w: %v", ErrMalformedWorkbook, err)
	}
	if wb == nil || wb.NumSheets() == 0 {
		return nil, nil, ErrEmptyFile
	}
	sheet := wb.GetSheet(0)
	if sheet == nil {
		return nil, nil, ErrEmptyFile
	}
	records := make([][]string, 0, int(sheet.MaxRow)+1)
	for i := 0; i <= int(sheet.MaxRow); i++ {
		row := sheet.Row(i)
		if row == nil {
			records = append(records, nil)
			continue
		}
		rec := make([]string, row.LastCol())
		for j := range rec {
			rec[j] = row.Col(j)
		}
		records = append(records, rec)
	}
	return fromRecords(records)
}

// fromRecords turns a grid with a header row into table rows. Blank trailing
// lines are dropped and duplicate header names get ".1", ".2" suffixes.
func fromRecords(records [][]string) ([]string, []dataset.Row, error) {
	if len(records) == 0 {
		return nil, nil, ErrEmptyFile
	}
	header := dedupeHeader(records[0])
	if len(header) == 0 {
		return nil, nil, ErrEmptyFile
	}
	rows := make([]dataset.Row, 0, len(records)-1)
	for i, rec := range records[1:] {
		if blank(rec) {
			continue
		}
		if len(rec) > len(header) {
			return nil, nil, fmt.Errorf("row %d has %d fields, header has %d", i+2, len(rec), len(header))
		}
		rows = append(rows, dataset.RowFromRecord(header, rec))
	}
	return header, rows, nil
}

func dedupeHeader(raw []string) []string {
	end := len(raw)
	for end > 0 && strings.TrimSpace(raw[end-1]) == "" {
		end--
	}
	seen := make(map[string]int, end)
	header := make([]string, end)
	for i, name := range raw[:end] {
		name = strings.TrimSpace(name)
		if name == "" {
			name = "Unnamed: " + strconv.Itoa(i)
		}
		if n, ok := seen[name]; ok {
			seen[name] = n + 1
			name = name + "." + strconv.Itoa(n+1)
		} else {
			seen[name] = 0
		}
		header[i] = name
	}
	return header
}

func blank(rec []string) bool {
	for _, v := range rec {
		if strings.TrimSpace(v) != "" {
			return false
		}
	}
	return true
}
