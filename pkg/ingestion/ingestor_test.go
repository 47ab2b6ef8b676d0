package ingestion

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/synaptica-ai/rigcast/pkg/dataset"
	"github.com/xuri/excelize/v2"
)

func writeFile(t *testing.T, dir, name, content string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("write %s: %v", name, err)
	}
	return path
}

func writeXLSX(t *testing.T, dir, name string, rows [][]interface{}) {
	t.Helper()
	f := excelize.NewFile()
	defer f.Close()
	for i, row := range rows {
		cell, err := excelize.CoordinatesToCellName(1, i+1)
		if err != nil {
			t.Fatalf("cell name: %v", err)
		}
		r := row
		if err := f.SetSheetRow("Sheet1", cell, &r); err != nil {
			t.Fatalf("set row: %v", err)
		}
	}
	if err := f.SaveAs(filepath.Join(dir, name)); err != nil {
		t.Fatalf("save %s: %v", name, err)
	}
}

func TestIngestAssignsRunningTestNumbers(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "U013-a-RAW.csv", "TEMP,PRESSURE\n1,10\n2,20\n")
	writeFile(t, dir, "U013-b-RAW.csv", "TEMP,PRESSURE\n3,30\n")
	writeFile(t, dir, "U014-a-RAW.csv", "TEMP\n4\n")
	writeFile(t, dir, "U013-c-RAW.csv", "TEMP,FLOW\n5,0.5\n")

	res, err := NewIngestor(Options{}).Ingest(context.Background(), dir)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if res.Table.Len() != 5 {
		t.Fatalf("expected 5 rows, got %d", res.Table.Len())
	}
	wantTests := []string{"1", "1", "2", "3", "1"}
	wantUnits := []string{"13", "13", "13", "13", "14"}
	for i, row := range res.Table.Rows {
		if row[dataset.TestColumn] != wantTests[i] || row[dataset.UnitColumn] != wantUnits[i] {
			t.Fatalf("row %d: got unit=%s test=%s, want unit=%s test=%s",
				i, row[dataset.UnitColumn], row[dataset.TestColumn], wantUnits[i], wantTests[i])
		}
	}
	if res.Tally[13] != 3 || res.Tally[14] != 1 {
		t.Fatalf("unexpected tally %v", res.Tally)
	}

	want := []string{"TEMP", "PRESSURE", dataset.UnitColumn, dataset.TestColumn, "FLOW"}
	if len(res.Columns()) != len(want) {
		t.Fatalf("expected columns %v, got %v", want, res.Columns())
	}
	if _, ok := res.Table.Rows[3]["PRESSURE"]; ok {
		t.Fatal("expected PRESSURE to be missing for the FLOW file")
	}
}

func TestIngestSkipsAndRejects(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "U001-RAW.csv", "TEMP\n1\n")
	writeFile(t, dir, "U002-RAW.csv", "TEMP,PRESSURE\n1,2,3\n")
	writeFile(t, dir, "U003-RAW.xlsx", "definitely not a zip archive")
	writeFile(t, dir, "U004-summary.csv", "TEMP\n9\n")
	writeFile(t, dir, "README.txt", "notes")
	writeFile(t, dir, "RAWDATA.csv", "TEMP\n7\n")
	if err := os.Mkdir(filepath.Join(dir, "U005-RAW.csv"), 0o755); err != nil {
		t.Fatalf("mkdir: %v", err)
	}

	res, err := NewIngestor(Options{}).Ingest(context.Background(), dir)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if res.Table.Len() != 1 {
		t.Fatalf("expected only the good file's row, got %d", res.Table.Len())
	}

	status := map[string]string{}
	for _, f := range res.Files {
		status[f.Name] = f.Status
	}
	want := map[string]string{
		"U001-RAW.csv":     StatusAccepted,
		"U002-RAW.csv":     StatusSkipped,
		"U003-RAW.xlsx":    StatusSkipped,
		"U004-summary.csv": StatusRejected,
		"README.txt":       StatusRejected,
		"RAWDATA.csv":      StatusSkipped,
	}
	if len(status) != len(want) {
		t.Fatalf("expected %d reports, got %v", len(want), status)
	}
	for name, s := range want {
		if status[name] != s {
			t.Fatalf("%s: expected %s, got %s", name, s, status[name])
		}
	}
	if res.Tally[2] != 0 || res.Tally[3] != 0 {
		t.Fatalf("skipped files must not advance the tally: %v", res.Tally)
	}
}

func TestIngestReadsSpreadsheets(t *testing.T) {
	dir := t.TempDir()
	writeXLSX(t, dir, "D021-RAW.xlsx", [][]interface{}{
		{"TEMP", "PRESSURE"},
		{1.5, 100},
		{2.5, 110},
	})
	writeFile(t, dir, "D021-RAW-2.csv", "TEMP\n3.5\n")

	res, err := NewIngestor(Options{}).Ingest(context.Background(), dir)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	values, err := res.Table.Column("TEMP")
	if err != nil {
		t.Fatalf("column: %v", err)
	}
	// name order: "D021-RAW-2.csv" < "D021-RAW.xlsx"
	want := []float64{3.5, 1.5, 2.5}
	for i := range want {
		if values[i] != want[i] {
			t.Fatalf("expected %v, got %v", want, values)
		}
	}
	if res.Table.Rows[2][dataset.TestColumn] != "2" {
		t.Fatalf("expected spreadsheet to be the unit's second test, got %v", res.Table.Rows[2])
	}
}

func TestIngestKeepsShortCSVRows(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "U013-a-RAW.csv", "TEMP,PRESSURE,FLOW\n1,10,0.1\n2,20\n3,30,0.3\n")

	res, err := NewIngestor(Options{}).Ingest(context.Background(), dir)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if res.Files[0].Status != StatusAccepted || res.Files[0].Rows != 3 {
		t.Fatalf("expected 3 accepted rows, got %+v", res.Files[0])
	}
	if _, ok := res.Table.Rows[1]["FLOW"]; ok {
		t.Fatalf("expected FLOW missing on the short row, got %v", res.Table.Rows[1])
	}
	if res.Table.Rows[1]["PRESSURE"] != "20" || res.Table.Rows[2]["FLOW"] != "0.3" {
		t.Fatalf("unexpected rows %v", res.Table.Rows)
	}
	if _, err := res.Table.Column("FLOW"); !errors.Is(err, dataset.ErrMissingValue) {
		t.Fatalf("expected ErrMissingValue for FLOW, got %v", err)
	}
}

func TestReadXLSFileRejectsNonWorkbook(t *testing.T) {
	dir := t.TempDir()
	path := writeFile(t, dir, "U014-RAW.xls", "TEMP,PRESSURE\n1,2\n")

	if _, _, err := ReadXLSFile(path); !errors.Is(err, ErrMalformedWorkbook) {
		t.Fatalf("expected ErrMalformedWorkbook, got %v", err)
	}
	if _, _, err := ReadXLSFile(filepath.Join(dir, "missing.xls")); !errors.Is(err, os.ErrNotExist) {
		t.Fatalf("expected not-exist error, got %v", err)
	}
}

func TestIngestSkipsBrokenXLS(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "U014-a-RAW.xls", "not a workbook")
	writeFile(t, dir, "U014-b-RAW.csv", "TEMP\n1\n")

	res, err := NewIngestor(Options{}).Ingest(context.Background(), dir)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if res.Files[0].Status != StatusSkipped || res.Files[0].Format != "xls" {
		t.Fatalf("expected broken xls to be skipped, got %+v", res.Files[0])
	}
	if res.Files[1].Status != StatusAccepted || res.Files[1].Test != 1 {
		t.Fatalf("expected csv to be the unit's first test, got %+v", res.Files[1])
	}
}

func TestIngestNoData(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "notes.txt", "hello")
	writeFile(t, dir, "NOUNIT-RAW.csv", "TEMP\n1\n")

	res, err := NewIngestor(Options{}).Ingest(context.Background(), dir)
	if !errors.Is(err, ErrNoData) {
		t.Fatalf("expected ErrNoData, got %v", err)
	}
	if len(res.Files) != 2 {
		t.Fatalf("expected reports for both files, got %d", len(res.Files))
	}
}

func TestIngestOrderByModTime(t *testing.T) {
	dir := t.TempDir()
	first := writeFile(t, dir, "U009-b-RAW.csv", "TEMP\n1\n")
	second := writeFile(t, dir, "U009-a-RAW.csv", "TEMP\n2\n")
	base := time.Now().Add(-time.Hour)
	if err := os.Chtimes(first, base, base); err != nil {
		t.Fatalf("chtimes: %v", err)
	}
	if err := os.Chtimes(second, base.Add(time.Minute), base.Add(time.Minute)); err != nil {
		t.Fatalf("chtimes: %v", err)
	}

	res, err := NewIngestor(Options{Order: OrderByModTime}).Ingest(context.Background(), dir)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if res.Files[0].Name != "U009-b-RAW.csv" || res.Files[0].Test != 1 {
		t.Fatalf("expected oldest file first, got %+v", res.Files[0])
	}
}

func TestIngestHonoursCancellation(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "U001-RAW.csv", "TEMP\n1\n")
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if _, err := NewIngestor(Options{}).Ingest(ctx, dir); !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
}

func TestParseOrder(t *testing.T) {
	if o, err := ParseOrder(""); err != nil || o != OrderByName {
		t.Fatalf("expected default name order, got %q %v", o, err)
	}
	if _, err := ParseOrder("random"); err == nil {
		t.Fatal("expected error for unknown order")
	}
}
