package nnet

import (
	"github.com/chewxy/math32"
)

// gradScratch holds the per-layer activation and delta buffers one
// repetition recycles across every sample and step.
type gradScratch struct {
	acts   [][]float32
	deltas [][]float32
	target []float32
}

func newGradScratch(ws *WeightSet) *gradScratch {
	s := &gradScratch{
		acts:   newActivationStack(ws),
		deltas: newActivationStack(ws),
		target: make([]float32, NumClasses),
	}
	return s
}

// sampleGradient accumulates the gradient of the error for one labeled
// sample into grad (shaped like the weight set) and returns the sample's
// error contribution.  Reverse accumulation: the error signal propagates
// backward through the layers computed by the forward pass, picking up
// the local activation derivative at each layer and the transpose of each
// layer's weights.
func (m *Model) sampleGradient(ef ErrorFunc, x []float32, label int, grad *WeightSet, s *gradScratch) float32 {
	m.forward(x, s.acts)

	last := len(m.Weights.Layers) - 1
	pred := s.acts[last]
	s.target[ClassBenign] = 0
	s.target[ClassMalignant] = 0
	s.target[label] = 1

	loss := ef.Loss(pred, s.target)

	// Output-layer deltas (dE/dz).
	logisticOutput := m.Activation == Logistic && !m.LinearOutput
	for i := range pred {
		dadz := float32(1)
		if !m.LinearOutput {
			dadz = m.Activation.DerivFromOutput(pred[i])
		}
		s.deltas[last][i] = ef.outputDelta(pred[i], s.target[i], dadz, logisticOutput)
	}

	// Propagate deltas backward through the hidden layers.
	for l := last - 1; l >= 0; l-- {
		next := &m.Weights.Layers[l+1]
		for j := 0; j < next.In; j++ {
			var sum float32
			for i := 0; i < next.Out; i++ {
				sum += s.deltas[l+1][i] * next.At(i, j)
			}
			s.deltas[l][j] = sum * m.Activation.DerivFromOutput(s.acts[l][j])
		}
	}

	// Accumulate dE/dw = delta_i * input_j and dE/db = delta_i.
	prev := x
	for l := range m.Weights.Layers {
		lay := &m.Weights.Layers[l]
		g := &grad.Layers[l]
		for i := 0; i < lay.Out; i++ {
			d := s.deltas[l][i]
			row := g.W[i*lay.In : i*lay.In+lay.In]
			for j := range row {
				row[j] += d * prev[j]
			}
			g.B[i] += d
		}
		prev = s.acts[l]
	}

	return loss
}

// batchGradient accumulates the full-batch gradient over the dataset into
// grad, which is zeroed first, and returns the total error.  Samples are
// summed sequentially so a fixed seed reproduces training exactly.
func (m *Model) batchGradient(ef ErrorFunc, d *Dataset, grad *WeightSet, s *gradScratch) float32 {
	grad.Zero()
	var loss float32
	for k := 0; k < d.Len(); k++ {
		loss += m.sampleGradient(ef, d.Features(k), d.Label(k), grad, s)
	}
	return loss
}

func finite32(v float32) bool {
	return !math32.IsNaN(v) && !math32.IsInf(v, 0)
}
