package lstm

import (
	"math"

	"gonum.org/v1/gonum/floats"
)

type step struct {
	x     []float64
	hPrev []float64
	cPrev []float64
	gates []float64
	c     []float64
	tc    []float64
}

// trace keeps per-timestep activations of one forward pass for BPTT.
type trace struct {
	steps []step
	h, c  []float64
	dh    []float64
	dhNew []float64
	dc    []float64
	dz    []float64
}

func newTrace(timesteps, units int) *trace {
	tr := &trace{
		steps: make([]step, timesteps),
		h:     make([]float64, units),
		c:     make([]float64, units),
		dh:    make([]float64, units),
		dhNew: make([]float64, units),
		dc:    make([]float64, units),
		dz:    make([]float64, 4*units),
	}
	for t := range tr.steps {
		tr.steps[t] = step{
			hPrev: make([]float64, units),
			cPrev: make([]float64, units),
			gates: make([]float64, 4*units),
			c:     make([]float64, units),
			tc:    make([]float64, units),
		}
	}
	return tr
}

func sigmoid(x float64) float64 {
	return 1 / (1 + math.Exp(-x))
}

// forward runs x (timesteps*InputDim values, time-major) through the network.
func (p *Params) forward(x []float64, tr *trace) float64 {
	l := p.layout()
	H := p.Units
	bias := l.b(p.Data)

	for j := range tr.h {
		tr.h[j] = 0
		tr.c[j] = 0
	}
	for t := range tr.steps {
		st := &tr.steps[t]
		st.x = x[t*l.d : (t+1)*l.d]
		copy(st.hPrev, tr.h)
		copy(st.cPrev, tr.c)

		for k := 0; k < 4*H; k++ {
			z := bias[k] + floats.Dot(l.wxRow(p.Data, k), st.x) + floats.Dot(l.whRow(p.Data, k), st.hPrev)
			if k >= 2*H && k < 3*H {
				st.gates[k] = math.Tanh(z)
			} else {
				st.gates[k] = sigmoid(z)
			}
		}
		for j := 0; j < H; j++ {
			i, f, g, o := st.gates[j], st.gates[H+j], st.gates[2*H+j], st.gates[3*H+j]
			tr.c[j] = f*st.cPrev[j] + i*g
			st.c[j] = tr.c[j]
			st.tc[j] = math.Tanh(tr.c[j])
			tr.h[j] = o * st.tc[j]
		}
	}
	return floats.Dot(l.wd(p.Data), tr.h) + p.Data[l.offBd]
}

// backward accumulates into grad the gradient of the loss given dy, its
// derivative with respect to the output of the last forward pass.
func (p *Params) backward(tr *trace, dy float64, grad []float64) {
	l := p.layout()
	H := p.Units

	floats.AddScaled(l.wd(grad), dy, tr.h)
	grad[l.offBd] += dy

	copy(tr.dh, l.wd(p.Data))
	floats.Scale(dy, tr.dh)
	for j := range tr.dc {
		tr.dc[j] = 0
	}

	gb := l.b(grad)
	for t := len(tr.steps) - 1; t >= 0; t-- {
		st := &tr.steps[t]
		for j := 0; j < H; j++ {
			i, f, g, o := st.gates[j], st.gates[H+j], st.gates[2*H+j], st.gates[3*H+j]
			tc := st.tc[j]
			do := tr.dh[j] * tc
			dc := tr.dc[j] + tr.dh[j]*o*(1-tc*tc)

			tr.dz[j] = dc * g * i * (1 - i)
			tr.dz[H+j] = dc * st.cPrev[j] * f * (1 - f)
			tr.dz[2*H+j] = dc * i * (1 - g*g)
			tr.dz[3*H+j] = do * o * (1 - o)
			tr.dc[j] = dc * f
		}

		for j := range tr.dhNew {
			tr.dhNew[j] = 0
		}
		for k := 0; k < 4*H; k++ {
			dz := tr.dz[k]
			if dz == 0 {
				continue
			}
			floats.AddScaled(l.wxRow(grad, k), dz, st.x)
			floats.AddScaled(l.whRow(grad, k), dz, st.hPrev)
			gb[k] += dz
			floats.AddScaled(tr.dhNew, dz, l.whRow(p.Data, k))
		}
		tr.dh, tr.dhNew = tr.dhNew, tr.dh
	}
}

// Predict returns the network output for one window.
func (p *Params) Predict(x []float64) float64 {
	return p.forward(x, newTrace(len(x)/p.InputDim, p.Units))
}

// Evaluator computes losses and gradients over windows of a fixed length,
// reusing its buffers between calls. It is not safe for concurrent use.
type Evaluator struct {
	tr *trace
}

func NewEvaluator(p *Params, timesteps int) *Evaluator {
	return &Evaluator{tr: newTrace(timesteps, p.Units)}
}

// Gradient overwrites grad with the gradient of the mean squared error over
// the batch and returns that error.
func (e *Evaluator) Gradient(p *Params, windows [][]float64, labels []float64, grad []float64) float64 {
	for i := range grad {
		grad[i] = 0
	}
	n := float64(len(windows))
	var loss float64
	for s, x := range windows {
		diff := p.forward(x, e.tr) - labels[s]
		loss += diff * diff
		p.backward(e.tr, 2*diff/n, grad)
	}
	return loss / n
}

// MSE is the mean squared error of p over the given pairs.
func (e *Evaluator) MSE(p *Params, windows [][]float64, labels []float64) float64 {
	var loss float64
	for s, x := range windows {
		diff := p.forward(x, e.tr) - labels[s]
		loss += diff * diff
	}
	return loss / float64(len(windows))
}
