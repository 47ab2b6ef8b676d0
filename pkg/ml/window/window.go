// Package window turns a scaled series into supervised lookback windows.
package window

import (
	"errors"
	"fmt"
)

var ErrInsufficientData = errors.New("insufficient data for lookback window")

// Dataset holds ordered (window, label) pairs. Window i covers series
// positions [i, i+lookback) and Labels[i] is the value at i+lookback.
type Dataset struct {
	Lookback int
	Windows  [][]float64
	Labels   []float64
}

func (d *Dataset) Len() int {
	return len(d.Labels)
}

// Build slides a window of length lookback one step at a time over series,
// producing len(series)-lookback pairs. Windows share series' backing array.
func Build(series []float64, lookback int) (*Dataset, error) {
	if lookback <= 0 {
		return nil, fmt.Errorf("lookback must be positive, got %d", lookback)
	}
	if lookback >= len(series) {
		return nil, fmt.Errorf("%w: lookback %d needs at least %d values, have %d",
			ErrInsufficientData, lookback, lookback+1, len(series))
	}
	n := len(series) - lookback
	d := &Dataset{
		Lookback: lookback,
		Windows:  make([][]float64, n),
		Labels:   make([]float64, n),
	}
	for i := 0; i < n; i++ {
		d.Windows[i] = series[i : i+lookback : i+lookback]
		d.Labels[i] = series[i+lookback]
	}
	return d, nil
}

// SplitTail holds out the trailing fraction of pairs, keeping order. The
// split point is floor(n*(1-fraction)); both parts must be non-empty.
func (d *Dataset) SplitTail(fraction float64) (head, tail *Dataset, err error) {
	if fraction <= 0 || fraction >= 1 {
		return nil, nil, fmt.Errorf("validation fraction must be in (0, 1), got %v", fraction)
	}
	at := int(float64(d.Len()) * (1 - fraction))
	if at <= 0 || at >= d.Len() {
		return nil, nil, fmt.Errorf("%w: %d windows cannot be split %v/%v",
			ErrInsufficientData, d.Len(), 1-fraction, fraction)
	}
	head = &Dataset{Lookback: d.Lookback, Windows: d.Windows[:at], Labels: d.Labels[:at]}
	tail = &Dataset{Lookback: d.Lookback, Windows: d.Windows[at:], Labels: d.Labels[at:]}
	return head, tail, nil
}
