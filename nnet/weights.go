package nnet

import (
	"math/rand"

	"github.com/chewxy/math32"
	"github.com/pkg/errors"
)

// Layer holds the parameters of one layer transition.  W is stored
// row-major with shape (Out, In); B has one bias per output node.
type Layer struct {
	In  int
	Out int
	W   []float32
	B   []float32
}

// At returns the weight from input node j to output node i.
func (l *Layer) At(i, j int) float32 { return l.W[i*l.In+j] }

// Set stores the weight from input node j to output node i.
func (l *Layer) Set(i, j int, v float32) { l.W[i*l.In+j] = v }

// WeightSet is one weight matrix and bias vector per layer transition.
// During training it is owned exclusively by the repetition mutating it;
// once the repetition terminates it is never written again.
type WeightSet struct {
	Layers []Layer
}

// NewWeightSet allocates a zero-valued weight set shaped by the topology.
func NewWeightSet(t Topology) *WeightSet {
	sizes := t.Sizes()
	ws := &WeightSet{Layers: make([]Layer, len(sizes)-1)}
	for l := 0; l < len(sizes)-1; l++ {
		in, out := sizes[l], sizes[l+1]
		ws.Layers[l] = Layer{
			In:  in,
			Out: out,
			W:   make([]float32, out*in),
			B:   make([]float32, out),
		}
	}
	return ws
}

// RandomWeightSet draws every weight and bias independently from a small
// zero-centred Gaussian.  The caller-supplied rand source is the sole
// source of run-to-run variability.
func RandomWeightSet(t Topology, r *rand.Rand) *WeightSet {
	ws := NewWeightSet(t)
	for l := range ws.Layers {
		lay := &ws.Layers[l]
		for i := range lay.W {
			lay.W[i] = float32(r.NormFloat64()) * 0.5
		}
		for i := range lay.B {
			lay.B[i] = float32(r.NormFloat64()) * 0.5
		}
	}
	return ws
}

// Clone returns a deep copy.
func (ws *WeightSet) Clone() *WeightSet {
	out := &WeightSet{Layers: make([]Layer, len(ws.Layers))}
	for l, lay := range ws.Layers {
		out.Layers[l] = Layer{
			In:  lay.In,
			Out: lay.Out,
			W:   append([]float32(nil), lay.W...),
			B:   append([]float32(nil), lay.B...),
		}
	}
	return out
}

// Zero resets every entry in place.  Used to recycle gradient buffers.
func (ws *WeightSet) Zero() {
	for l := range ws.Layers {
		lay := &ws.Layers[l]
		for i := range lay.W {
			lay.W[i] = 0
		}
		for i := range lay.B {
			lay.B[i] = 0
		}
	}
}

// ParamCount returns the total number of weights and biases.
func (ws *WeightSet) ParamCount() int {
	n := 0
	for _, lay := range ws.Layers {
		n += len(lay.W) + len(lay.B)
	}
	return n
}

// Finite reports whether every entry is a finite number.
func (ws *WeightSet) Finite() bool {
	for _, lay := range ws.Layers {
		for _, v := range lay.W {
			if math32.IsNaN(v) || math32.IsInf(v, 0) {
				return false
			}
		}
		for _, v := range lay.B {
			if math32.IsNaN(v) || math32.IsInf(v, 0) {
				return false
			}
		}
	}
	return true
}

// MaxAbs returns the largest absolute entry across all layers.
func (ws *WeightSet) MaxAbs() float32 {
	var m float32
	for _, lay := range ws.Layers {
		for _, v := range lay.W {
			if a := math32.Abs(v); a > m {
				m = a
			}
		}
		for _, v := range lay.B {
			if a := math32.Abs(v); a > m {
				m = a
			}
		}
	}
	return m
}

// WeightCoord names a single parameter.  LayerIndex counts transitions
// from the input side, starting at zero.  Output is the index of the
// receiving node.  Input 0 names the bias of that node; input i for i>=1
// names the connection from node i-1 of the previous layer.
type WeightCoord struct {
	LayerIndex int
	Input      int
	Output     int
}

// validate checks a coordinate against the layer shapes of a topology.
func (c WeightCoord) validate(t Topology) error {
	sizes := t.Sizes()
	if c.LayerIndex < 0 || c.LayerIndex >= len(sizes)-1 {
		return errors.Wrapf(ErrInvalidConfiguration, "weight coordinate layer %d out of range [0,%d)", c.LayerIndex, len(sizes)-1)
	}
	in, out := sizes[c.LayerIndex], sizes[c.LayerIndex+1]
	if c.Output < 0 || c.Output >= out {
		return errors.Wrapf(ErrInvalidConfiguration, "weight coordinate output %d out of range [0,%d) in layer %d", c.Output, out, c.LayerIndex)
	}
	if c.Input < 0 || c.Input > in {
		return errors.Wrapf(ErrInvalidConfiguration, "weight coordinate input %d out of range [0,%d] in layer %d", c.Input, in, c.LayerIndex)
	}
	return nil
}

// at returns a pointer to the addressed parameter.
func (c WeightCoord) at(ws *WeightSet) *float32 {
	lay := &ws.Layers[c.LayerIndex]
	if c.Input == 0 {
		return &lay.B[c.Output]
	}
	return &lay.W[c.Output*lay.In+(c.Input-1)]
}

// freezeMask marks parameters excluded from gradient application, in the
// same shape as a weight set.
type freezeMask struct {
	w [][]bool
	b [][]bool
	n int // number of frozen parameters
}

func newFreezeMask(ws *WeightSet, coords []WeightCoord) *freezeMask {
	m := &freezeMask{
		w: make([][]bool, len(ws.Layers)),
		b: make([][]bool, len(ws.Layers)),
	}
	for l, lay := range ws.Layers {
		m.w[l] = make([]bool, len(lay.W))
		m.b[l] = make([]bool, len(lay.B))
	}
	for _, c := range coords {
		lay := &ws.Layers[c.LayerIndex]
		if c.Input == 0 {
			if !m.b[c.LayerIndex][c.Output] {
				m.b[c.LayerIndex][c.Output] = true
				m.n++
			}
		} else {
			idx := c.Output*lay.In + (c.Input - 1)
			if !m.w[c.LayerIndex][idx] {
				m.w[c.LayerIndex][idx] = true
				m.n++
			}
		}
	}
	return m
}

// apply zeroes the frozen entries of a gradient so that neither the
// convergence test nor any update strategy ever moves them.
func (m *freezeMask) apply(grad *WeightSet) {
	if m == nil || m.n == 0 {
		return
	}
	for l := range grad.Layers {
		lay := &grad.Layers[l]
		for i, frozen := range m.w[l] {
			if frozen {
				lay.W[i] = 0
			}
		}
		for i, frozen := range m.b[l] {
			if frozen {
				lay.B[i] = 0
			}
		}
	}
}
