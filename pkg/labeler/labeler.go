// Package labeler derives test-unit identifiers from raw test-rig file names.
//
// Raw files are named like "U013-run1-RAW.csv" or "D042_RAW_2023.xlsx": the
// unit number is the last three characters of the leading name segment, with
// leading zeros and the "D" prefix removed.
package labeler

import (
	"errors"
	"fmt"
	"path/filepath"
	"strconv"
	"strings"
)

// DefaultMarker is the substring that marks a file as raw rig output.
const DefaultMarker = "RAW"

type Format string

const (
	FormatCSV  Format = "csv"
	FormatXLSX Format = "xlsx"
	FormatXLS  Format = "xls"
)

var extensions = map[string]Format{
	".csv":  FormatCSV,
	".xlsx": FormatXLSX,
	".xls":  FormatXLS,
}

// Accept reports whether name is a raw data file and which reader handles it.
// The extension must be a known tabular one and the name must contain marker.
func Accept(name, marker string) (Format, bool) {
	if marker == "" {
		marker = DefaultMarker
	}
	base := filepath.Base(name)
	format, ok := extensions[strings.ToLower(filepath.Ext(base))]
	if !ok {
		return "", false
	}
	if !strings.Contains(base, marker) {
		return "", false
	}
	return format, true
}

// Strategy extracts the candidate segment holding the unit code from a file
// name. Strategies are tried in order until one yields a parseable unit.
type Strategy struct {
	Name    string
	Segment func(name string) string
}

// Strategies is the ordered fallback chain used by Unit.
var Strategies = []Strategy{
	{Name: "dash-prefix", Segment: dashPrefix},
	{Name: "underscore-prefix", Segment: underscorePrefix},
}

func dashPrefix(name string) string {
	return strings.Split(name, "-")[0]
}

func underscorePrefix(name string) string {
	return strings.Split(dashPrefix(name), "_")[0]
}

var ErrNoUnitCode = errors.New("no unit code in file name")

// Attempt records why one strategy failed.
type Attempt struct {
	Strategy  string
	Candidate string
	Err       error
}

// LabelError is returned when no strategy can extract a unit from a file name.
type LabelError struct {
	File     string
	Attempts []Attempt
}

func (e *LabelError) Error() string {
	parts := make([]string, 0, len(e.Attempts))
	for _, a := range e.Attempts {
		parts = append(parts, fmt.Sprintf("%s(%q): %v", a.Strategy, a.Candidate, a.Err))
	}
	return fmt.Sprintf("cannot label %s: %s", e.File, strings.Join(parts, "; "))
}

func (e *LabelError) Unwrap() error {
	return ErrNoUnitCode
}

func IsLabelError(err error) bool {
	var le *LabelError
	return errors.As(err, &le)
}

// Unit extracts the unit number from a file name using Strategies.
func Unit(name string) (int, error) {
	return UnitWith(name, Strategies)
}

// UnitWith is Unit with an explicit strategy chain.
func UnitWith(name string, strategies []Strategy) (int, error) {
	base := filepath.Base(name)
	lerr := &LabelError{File: base}
	for _, s := range strategies {
		candidate := s.Segment(base)
		unit, err := parseUnitCode(candidate)
		if err == nil {
			return unit, nil
		}
		lerr.Attempts = append(lerr.Attempts, Attempt{Strategy: s.Name, Candidate: candidate, Err: err})
	}
	return 0, lerr
}

// parseUnitCode takes the last three characters of segment, drops any leading
// '0' or 'D' characters and parses the rest as a decimal integer.
func parseUnitCode(segment string) (int, error) {
	code := segment
	if len(code) > 3 {
		code = code[len(code)-3:]
	}
	code = strings.TrimLeft(code, "0D")
	if code == "" {
		return 0, fmt.Errorf("empty code after trimming %q", segment)
	}
	unit, err := strconv.Atoi(code)
	if err != nil {
		return 0, err
	}
	return unit, nil
}
