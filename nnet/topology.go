package nnet

import (
	"github.com/pkg/errors"
)

// NumClasses is the fixed output width: one node per tumor class.
const NumClasses = 2

// Class indices within every two-element score vector.
const (
	ClassBenign    = 0
	ClassMalignant = 1
)

// Topology declares the layer sizes of a feedforward network: a fixed
// input width, zero or more hidden-layer widths, and two output nodes.
type Topology struct {
	Inputs int
	Hidden []int
}

// NewTopology builds a topology with the given input width and hidden
// layer widths, in order from the input side.
func NewTopology(inputs int, hidden ...int) Topology {
	return Topology{Inputs: inputs, Hidden: hidden}
}

// Validate checks that every declared width is positive.
func (t Topology) Validate() error {
	if t.Inputs <= 0 {
		return errors.Wrapf(ErrInvalidConfiguration, "topology input width %d must be positive", t.Inputs)
	}
	for i, h := range t.Hidden {
		if h <= 0 {
			return errors.Wrapf(ErrInvalidConfiguration, "topology hidden layer %d width %d must be positive", i, h)
		}
	}
	return nil
}

// Sizes returns the full layer-size sequence: inputs, hidden widths,
// outputs.
func (t Topology) Sizes() []int {
	sizes := make([]int, 0, len(t.Hidden)+2)
	sizes = append(sizes, t.Inputs)
	sizes = append(sizes, t.Hidden...)
	sizes = append(sizes, NumClasses)
	return sizes
}

// Transitions returns the number of weight-bearing layer transitions.  A
// topology with no hidden layers has exactly one (direct input to output).
func (t Topology) Transitions() int {
	return len(t.Hidden) + 1
}
