package ingestion

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strconv"

	"github.com/synaptica-ai/rigcast/pkg/common/logger"
	"github.com/synaptica-ai/rigcast/pkg/dataset"
	"github.com/synaptica-ai/rigcast/pkg/labeler"
)

// ErrNoData is returned when no file in the directory contributed rows.
var ErrNoData = errors.New("no raw data ingested")

// Order fixes the sequence in which directory entries are visited. Row order
// of the combined table, and therefore the chronological split, follows it.
type Order string

const (
	OrderByName    Order = "name"
	OrderByModTime Order = "modtime"
	OrderAsListed  Order = "listing"
)

func ParseOrder(s string) (Order, error) {
	switch Order(s) {
	case "", OrderByName:
		return OrderByName, nil
	case OrderByModTime, OrderAsListed:
		return Order(s), nil
	}
	return "", fmt.Errorf("unknown ingest order %q", s)
}

// UnitTally counts how many accepted files each unit has had so far. The
// count after an increment is that file's TEST number.
type UnitTally map[int]int

func (t UnitTally) Next(unit int) int {
	t[unit]++
	return t[unit]
}

type Options struct {
	Marker     string
	Order      Order
	Readers    map[labeler.Format]ReadFunc
	Strategies []labeler.Strategy
}

type Ingestor struct {
	marker     string
	order      Order
	readers    map[labeler.Format]ReadFunc
	strategies []labeler.Strategy
}

func NewIngestor(opts Options) *Ingestor {
	ing := &Ingestor{
		marker:     opts.Marker,
		order:      opts.Order,
		readers:    opts.Readers,
		strategies: opts.Strategies,
	}
	if ing.marker == "" {
		ing.marker = labeler.DefaultMarker
	}
	if ing.order == "" {
		ing.order = OrderByName
	}
	if ing.readers == nil {
		ing.readers = DefaultReaders()
	}
	if ing.strategies == nil {
		ing.strategies = labeler.Strategies
	}
	return ing
}

// Result is the combined table plus a per-file account of the scan.
type Result struct {
	Table *dataset.Table
	Files []FileReport
	Tally UnitTally
}

// Columns is the full schema of the combined table.
func (r *Result) Columns() []string {
	return r.Table.Columns
}

func (r *Result) Count(status string) int {
	n := 0
	for _, f := range r.Files {
		if f.Status == status {
			n++
		}
	}
	return n
}

// Ingest scans dir with a fresh tally.
func (ing *Ingestor) Ingest(ctx context.Context, dir string) (*Result, error) {
	return ing.IngestWithTally(ctx, dir, UnitTally{})
}

// IngestWithTally scans dir and appends every accepted file's rows, tagged
// with UNIT and TEST, to one table. Files that cannot be read or labeled are
// skipped and reported; the scan only fails when listing fails, ctx is done,
// or nothing was ingested.
func (ing *Ingestor) IngestWithTally(ctx context.Context, dir string, tally UnitTally) (*Result, error) {
	entries, err := listDir(dir, ing.order)
	if err != nil {
		return nil, fmt.Errorf("listing %s: %w", dir, err)
	}

	result := &Result{Table: dataset.NewTable(), Tally: tally}
	for _, entry := range entries {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		report := ing.ingestFile(filepath.Join(dir, entry.Name()), result)
		result.Files = append(result.Files, report)
	}

	if result.Table.Len() == 0 {
		return result, ErrNoData
	}
	logger.Stage("ingest").WithFields(map[string]interface{}{
		"rows":     result.Table.Len(),
		"columns":  len(result.Table.Columns),
		"accepted": result.Count(StatusAccepted),
		"skipped":  result.Count(StatusSkipped),
		"rejected": result.Count(StatusRejected),
	}).Info("raw data combined")
	return result, nil
}

func (ing *Ingestor) ingestFile(path string, result *Result) FileReport {
	name := filepath.Base(path)
	log := logger.Stage("ingest").WithField("file", name)
	report := FileReport{Name: name}

	format, ok := labeler.Accept(name, ing.marker)
	if !ok {
		log.Info("not a raw data file")
		report.Status = StatusRejected
		report.Reason = "not a raw data file"
		return report
	}
	report.Format = string(format)

	read, ok := ing.readers[format]
	if !ok {
		log.Warn("no reader for format")
		report.Status = StatusSkipped
		report.Reason = fmt.Sprintf("no reader for %s", format)
		return report
	}

	unit, err := labeler.UnitWith(name, ing.strategies)
	if err != nil {
		log.WithError(err).Warn("cannot label file")
		report.Status = StatusSkipped
		report.Reason = err.Error()
		return report
	}

	header, rows, err := read(path)
	if err != nil {
		log.WithError(err).Warn("cannot read file")
		report.Status = StatusSkipped
		report.Reason = err.Error()
		return report
	}

	test := result.Tally.Next(unit)
	unitText, testText := strconv.Itoa(unit), strconv.Itoa(test)
	for _, row := range rows {
		row[dataset.UnitColumn] = unitText
		row[dataset.TestColumn] = testText
	}
	columns := append(header, dataset.UnitColumn, dataset.TestColumn)
	result.Table.Append(columns, rows)

	log.WithFields(map[string]interface{}{
		"unit": unit,
		"test": test,
		"rows": len(rows),
	}).Info("file has been read")

	report.Status = StatusAccepted
	report.Unit = unit
	report.Test = test
	report.Rows = len(rows)
	return report
}

func listDir(dir string, order Order) ([]fs.DirEntry, error) {
	var (
		entries []fs.DirEntry
		err     error
	)
	if order == OrderAsListed {
		entries, err = readDirUnsorted(dir)
	} else {
		entries, err = os.ReadDir(dir)
	}
	if err != nil {
		return nil, err
	}

	files := entries[:0]
	for _, e := range entries {
		if e.Type().IsRegular() {
			files = append(files, e)
		}
	}

	if order == OrderByModTime {
		modTimes := make(map[string]int64, len(files))
		for _, e := range files {
			info, err := e.Info()
			if err != nil {
				return nil, err
			}
			modTimes[e.Name()] = info.ModTime().UnixNano()
		}
		sort.SliceStable(files, func(i, j int) bool {
			return modTimes[files[i].Name()] < modTimes[files[j].Name()]
		})
	}
	return files, nil
}

func readDirUnsorted(dir string) ([]fs.DirEntry, error) {
	f, err := os.Open(dir)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	return f.ReadDir(-1)
}
