package lstm

import "math"

const (
	DefaultRho     = 0.9
	DefaultEpsilon = 1e-7
)

// RMSProp keeps a decaying average of squared gradients per weight and
// divides each step by its root. Rate may be changed between steps.
type RMSProp struct {
	Rate     float64   `json:"rate"`
	Rho      float64   `json:"rho"`
	Epsilon  float64   `json:"epsilon"`
	Velocity []float64 `json:"velocity"`
}

func NewRMSProp(rate float64, size int) *RMSProp {
	return &RMSProp{
		Rate:     rate,
		Rho:      DefaultRho,
		Epsilon:  DefaultEpsilon,
		Velocity: make([]float64, size),
	}
}

// Step applies one update to p in place.
func (o *RMSProp) Step(p *Params, grad []float64) {
	for i, g := range grad {
		v := o.Rho*o.Velocity[i] + (1-o.Rho)*g*g
		o.Velocity[i] = v
		p.Data[i] -= o.Rate * g / (math.Sqrt(v) + o.Epsilon)
	}
}

func (o *RMSProp) Clone() *RMSProp {
	out := *o
	out.Velocity = append([]float64(nil), o.Velocity...)
	return &out
}
