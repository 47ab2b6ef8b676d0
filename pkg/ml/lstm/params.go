// Package lstm implements a single-layer LSTM regressor: one recurrent layer
// whose final hidden state feeds a dense layer producing one scalar.
//
// All weights live in one flat vector so that a parameter snapshot is a plain
// slice copy and the optimizer can update every weight with the same loop.
// Gate blocks are ordered input, forget, cell, output.
package lstm

import (
	"fmt"
	"math"
	"math/rand"

	"gonum.org/v1/gonum/mat"
)

// Params is the complete learnable state of the network.
type Params struct {
	Units    int       `json:"units"`
	InputDim int       `json:"input_dim"`
	Data     []float64 `json:"data"`
}

// Size is the number of weights for the given architecture.
func Size(units, inputDim int) int {
	g := 4 * units
	return g*inputDim + g*units + g + units + 1
}

// NewParams initialises weights: Glorot-uniform input and dense kernels, an
// orthogonal recurrent kernel, zero biases except the forget gate at one.
func NewParams(units, inputDim int, rng *rand.Rand) *Params {
	p := &Params{Units: units, InputDim: inputDim, Data: make([]float64, Size(units, inputDim))}
	l := p.layout()
	g := 4 * units

	limit := math.Sqrt(6 / float64(inputDim+g))
	for k := 0; k < g; k++ {
		row := l.wxRow(p.Data, k)
		for j := range row {
			row[j] = (rng.Float64()*2 - 1) * limit
		}
	}

	q := orthogonal(g, units, rng)
	for k := 0; k < g; k++ {
		row := l.whRow(p.Data, k)
		for j := range row {
			row[j] = q.At(k, j)
		}
	}

	bias := l.b(p.Data)
	for j := units; j < 2*units; j++ {
		bias[j] = 1
	}

	limit = math.Sqrt(6 / float64(units+1))
	wd := l.wd(p.Data)
	for j := range wd {
		wd[j] = (rng.Float64()*2 - 1) * limit
	}
	return p
}

// orthogonal returns a rows x cols matrix (rows >= cols) with orthonormal
// columns taken from the QR decomposition of a Gaussian matrix.
func orthogonal(rows, cols int, rng *rand.Rand) *mat.Dense {
	data := make([]float64, rows*cols)
	for i := range data {
		data[i] = rng.NormFloat64()
	}
	var qr mat.QR
	qr.Factorize(mat.NewDense(rows, cols, data))

	var q, r mat.Dense
	qr.QTo(&q)
	qr.RTo(&r)

	out := mat.NewDense(rows, cols, nil)
	for j := 0; j < cols; j++ {
		sign := 1.0
		if r.At(j, j) < 0 {
			sign = -1
		}
		for i := 0; i < rows; i++ {
			out.Set(i, j, sign*q.At(i, j))
		}
	}
	return out
}

// Clone returns an independent copy.
func (p *Params) Clone() *Params {
	out := &Params{Units: p.Units, InputDim: p.InputDim, Data: make([]float64, len(p.Data))}
	copy(out.Data, p.Data)
	return out
}

// Validate checks that Data matches the declared architecture.
func (p *Params) Validate() error {
	if p.Units <= 0 || p.InputDim <= 0 {
		return fmt.Errorf("invalid architecture units=%d input_dim=%d", p.Units, p.InputDim)
	}
	if want := Size(p.Units, p.InputDim); len(p.Data) != want {
		return fmt.Errorf("expected %d weights, got %d", want, len(p.Data))
	}
	return nil
}

func (p *Params) layout() layout {
	return newLayout(p.Units, p.InputDim)
}

// layout addresses the blocks of a flat weight (or gradient) vector.
type layout struct {
	h     int
	d     int
	offWh int
	offB  int
	offWd int
	offBd int
}

func newLayout(units, inputDim int) layout {
	g := 4 * units
	l := layout{h: units, d: inputDim}
	l.offWh = g * inputDim
	l.offB = l.offWh + g*units
	l.offWd = l.offB + g
	l.offBd = l.offWd + units
	return l
}

func (l layout) wxRow(data []float64, k int) []float64 {
	return data[k*l.d : (k+1)*l.d]
}

func (l layout) whRow(data []float64, k int) []float64 {
	start := l.offWh + k*l.h
	return data[start : start+l.h]
}

func (l layout) b(data []float64) []float64 {
	return data[l.offB : l.offB+4*l.h]
}

func (l layout) wd(data []float64) []float64 {
	return data[l.offWd : l.offWd+l.h]
}
