package dataset

import (
	"errors"
	"fmt"
	"math"
)

var ErrInvalidFraction = errors.New("train fraction must be in (0, 1)")

// Split cuts t chronologically at k = floor(n*trainFraction). The train part
// holds rows [0, k] inclusive and the test part rows [k, n), so row k is in
// both. Rows are never reordered.
func Split(t *Table, trainFraction float64) (train, test *Table, err error) {
	if math.IsNaN(trainFraction) || trainFraction <= 0 || trainFraction >= 1 {
		return nil, nil, fmt.Errorf("%w: got %v", ErrInvalidFraction, trainFraction)
	}
	n := t.Len()
	if n == 0 {
		return nil, nil, ErrEmptyTable
	}
	k := CutIndex(n, trainFraction)
	return t.Slice(0, k+1), t.Slice(k, n), nil
}

// CutIndex returns floor(n*trainFraction).
func CutIndex(n int, trainFraction float64) int {
	return int(math.Floor(float64(n) * trainFraction))
}
