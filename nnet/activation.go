package nnet

import (
	"github.com/chewxy/math32"
)

// Activation selects the differentiable function applied elementwise to
// every non-output layer (and to the output layer unless the model is
// configured with a linear output).
type Activation int

const (
	Logistic Activation = iota
	Tanh
)

func (a Activation) String() string {
	switch a {
	case Logistic:
		return "logistic"
	case Tanh:
		return "tanh"
	}
	return "unknown"
}

// Apply evaluates the activation function at z.
func (a Activation) Apply(z float32) float32 {
	switch a {
	case Logistic:
		return 1 / (1 + math32.Exp(-z))
	case Tanh:
		return math32.Tanh(z)
	default:
		panic("unhandled activation function")
	}
}

// DerivFromOutput returns da/dz expressed in terms of the already-computed
// activation output.  Both supported functions admit this form, which saves
// keeping the pre-activations around during the backward pass.
func (a Activation) DerivFromOutput(out float32) float32 {
	switch a {
	case Logistic:
		return out * (1 - out)
	case Tanh:
		return 1 - out*out
	default:
		panic("unhandled activation function")
	}
}

// ErrorFunc selects the training error measure.
type ErrorFunc int

const (
	SumSquared ErrorFunc = iota
	CrossEntropy
)

func (e ErrorFunc) String() string {
	switch e {
	case SumSquared:
		return "sse"
	case CrossEntropy:
		return "ce"
	}
	return "unknown"
}

// Clamp predicted probabilities away from 0 and 1 so the cross-entropy
// loss stays finite.
const probEps = 1e-7

// Loss evaluates the per-sample error for a prediction against a one-hot
// target.  The two slices must have equal length.
func (e ErrorFunc) Loss(pred, target []float32) float32 {
	var loss float32
	switch e {
	case SumSquared:
		for i := range pred {
			diff := pred[i] - target[i]
			loss += diff * diff / 2
		}
	case CrossEntropy:
		for i := range pred {
			p := pred[i]
			if p < probEps {
				p = probEps
			}
			if p > 1-probEps {
				p = 1 - probEps
			}
			loss += -(target[i]*math32.Log(p) + (1-target[i])*math32.Log(1-p))
		}
	default:
		panic("unhandled error function")
	}
	return loss
}

// outputDelta returns dE/dz for one output node, where dadz is the local
// derivative of the output activation at that node.  The cross-entropy +
// logistic-output combination cancels analytically to pred-target, which is
// the numerically stable path.
func (e ErrorFunc) outputDelta(pred, target, dadz float32, logisticOutput bool) float32 {
	switch e {
	case SumSquared:
		return (pred - target) * dadz
	case CrossEntropy:
		if logisticOutput {
			return pred - target
		}
		p := pred
		if p < probEps {
			p = probEps
		}
		if p > 1-probEps {
			p = 1 - probEps
		}
		return (p - target) / (p * (1 - p)) * dadz
	default:
		panic("unhandled error function")
	}
}
