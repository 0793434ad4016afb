package nnet

// Model binds a topology, a trained (or in-training) weight set, and the
// function choices needed to evaluate it.  Inference through a Model is a
// pure function of its inputs.
type Model struct {
	Topology     Topology
	Weights      *WeightSet
	Activation   Activation
	LinearOutput bool
}

// Eval runs one feature vector forward through the network and returns
// the two output scores.  It fails with DimensionMismatchError if the
// input length disagrees with the topology's input width.
func (m *Model) Eval(x []float32) ([]float32, error) {
	if len(x) != m.Topology.Inputs {
		return nil, DimensionMismatchError{What: "input feature vector", Want: m.Topology.Inputs, Got: len(x)}
	}
	acts := newActivationStack(m.Weights)
	m.forward(x, acts)
	out := make([]float32, NumClasses)
	copy(out, acts[len(acts)-1])
	return out, nil
}

// newActivationStack allocates one output buffer per layer transition.
func newActivationStack(ws *WeightSet) [][]float32 {
	acts := make([][]float32, len(ws.Layers))
	for l, lay := range ws.Layers {
		acts[l] = make([]float32, lay.Out)
	}
	return acts
}

// forward computes every layer's activations into acts, whose buffers
// must be shaped by newActivationStack.  The input vector is not copied.
//
// Equivalent to, per layer: z = W*prev + b; a = act(z), with the output
// layer skipping the activation when LinearOutput is set.
func (m *Model) forward(x []float32, acts [][]float32) {
	prev := x
	last := len(m.Weights.Layers) - 1
	for l := range m.Weights.Layers {
		lay := &m.Weights.Layers[l]
		out := acts[l]
		for i := 0; i < lay.Out; i++ {
			z := denseDot(lay.W[i*lay.In:i*lay.In+lay.In], prev)
			z += lay.B[i]
			if l == last && m.LinearOutput {
				out[i] = z
			} else {
				out[i] = m.Activation.Apply(z)
			}
		}
		prev = out
	}
}

func denseDot(w, x []float32) float32 {
	var sum float32
	for i := range w {
		sum += w[i] * x[i]
	}
	return sum
}
