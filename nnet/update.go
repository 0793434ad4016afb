package nnet

// Strategy selects the weight-update rule driving a repetition.
type Strategy int

const (
	// RpropPlus is resilient backpropagation with weight backtracking,
	// the default strategy.
	RpropPlus Strategy = iota
	// RpropMinus is resilient backpropagation without backtracking.
	RpropMinus
	// Backprop is traditional backpropagation with a fixed learning rate.
	Backprop
)

func (s Strategy) String() string {
	switch s {
	case RpropPlus:
		return "rprop+"
	case RpropMinus:
		return "rprop-"
	case Backprop:
		return "backprop"
	}
	return "unknown"
}

// updater applies one full-batch weight update.  Implementations own any
// per-weight adaptive state and are recycled across every step of one
// repetition.
type updater interface {
	step(ws, grad *WeightSet)
}

type backpropUpdater struct {
	eta float32
}

func (u *backpropUpdater) step(ws, grad *WeightSet) {
	for l := range ws.Layers {
		lay := &ws.Layers[l]
		g := &grad.Layers[l]
		for i := range lay.W {
			lay.W[i] -= u.eta * g.W[i]
		}
		for i := range lay.B {
			lay.B[i] -= u.eta * g.B[i]
		}
	}
}

// rpropUpdater holds the per-weight adaptive step sizes and previous-step
// memory shared by both resilient variants.
type rpropUpdater struct {
	backtrack bool

	grow    float32 // step growth factor, > 1
	shrink  float32 // step shrink factor, < 1
	stepMin float32
	stepMax float32

	steps     *WeightSet // current per-weight step sizes
	prevGrad  *WeightSet
	prevDelta *WeightSet
}

// rpropInitialStep is the step size every weight starts from, clamped to
// the configured bounds.
const rpropInitialStep = 0.1

func newRpropUpdater(ws *WeightSet, t Topology, backtrack bool, grow, shrink, stepMin, stepMax float32) *rpropUpdater {
	u := &rpropUpdater{
		backtrack: backtrack,
		grow:      grow,
		shrink:    shrink,
		stepMin:   stepMin,
		stepMax:   stepMax,
		steps:     NewWeightSet(t),
		prevGrad:  NewWeightSet(t),
		prevDelta: NewWeightSet(t),
	}
	init := clamp32(rpropInitialStep, stepMin, stepMax)
	for l := range u.steps.Layers {
		lay := &u.steps.Layers[l]
		for i := range lay.W {
			lay.W[i] = init
		}
		for i := range lay.B {
			lay.B[i] = init
		}
	}
	return u
}

func (u *rpropUpdater) step(ws, grad *WeightSet) {
	for l := range ws.Layers {
		u.stepSlice(ws.Layers[l].W, grad.Layers[l].W,
			u.steps.Layers[l].W, u.prevGrad.Layers[l].W, u.prevDelta.Layers[l].W)
		u.stepSlice(ws.Layers[l].B, grad.Layers[l].B,
			u.steps.Layers[l].B, u.prevGrad.Layers[l].B, u.prevDelta.Layers[l].B)
	}
}

// stepSlice applies the resilient update rule to one parameter slice.
// The move is by the signed step size, irrespective of gradient
// magnitude: same gradient sign as last step grows the step, a sign flip
// shrinks it.  With backtracking a flip instead reverts the previous
// move, shrinks the step, and clears the sign memory so the smaller step
// applies on the following iteration without re-triggering a flip.
func (u *rpropUpdater) stepSlice(w, g, step, prevG, prevD []float32) {
	for i := range w {
		grad := g[i]
		if grad == 0 {
			// Frozen or exactly flat: leave the weight and the step
			// memory untouched so no spurious flip is detected later.
			prevD[i] = 0
			prevG[i] = 0
			continue
		}

		signProduct := prevG[i] * grad
		if signProduct > 0 {
			step[i] = clamp32(step[i]*u.grow, u.stepMin, u.stepMax)
		} else if signProduct < 0 {
			if u.backtrack {
				w[i] -= prevD[i]
				step[i] = clamp32(step[i]*u.shrink, u.stepMin, u.stepMax)
				prevD[i] = 0
				prevG[i] = 0
				continue
			}
			step[i] = clamp32(step[i]*u.shrink, u.stepMin, u.stepMax)
		}

		delta := -sign32(grad) * step[i]
		w[i] += delta
		prevD[i] = delta
		prevG[i] = grad
	}
}

func sign32(v float32) float32 {
	if v > 0 {
		return 1
	}
	if v < 0 {
		return -1
	}
	return 0
}

func clamp32(v, lo, hi float32) float32 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
