package nnet

// PredictionOutput is one two-element score vector per dataset sample,
// aligned positionally with the dataset it was computed from.
type PredictionOutput [][NumClasses]float32

// Class returns the predicted class for sample k: the index of the larger
// of the two scores, with ties broken toward the benign class.
func (p PredictionOutput) Class(k int) int {
	if p[k][ClassMalignant] > p[k][ClassBenign] {
		return ClassMalignant
	}
	return ClassBenign
}

// Predict runs the forward evaluator over every sample independently.  It
// has no training side effects and fails with DimensionMismatchError if
// the dataset's feature width disagrees with the model topology.
func (m *Model) Predict(d *Dataset) (PredictionOutput, error) {
	if d.Dim() != m.Topology.Inputs {
		return nil, DimensionMismatchError{What: "dataset feature width", Want: m.Topology.Inputs, Got: d.Dim()}
	}

	out := make(PredictionOutput, d.Len())
	acts := newActivationStack(m.Weights)
	last := len(acts) - 1
	for k := 0; k < d.Len(); k++ {
		m.forward(d.Features(k), acts)
		out[k][ClassBenign] = acts[last][ClassBenign]
		out[k][ClassMalignant] = acts[last][ClassMalignant]
	}
	return out, nil
}
