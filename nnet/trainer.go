package nnet

import (
	"context"
	"math"
	"math/rand"
	"runtime"
	"sync"

	"github.com/pkg/errors"
)

// Config carries every training option.  The zero value is not usable;
// start from DefaultConfig and override.
type Config struct {
	Strategy     Strategy
	Activation   Activation
	ErrorFunc    ErrorFunc
	LinearOutput bool

	// Threshold is the convergence criterion: training stops once the
	// largest absolute partial derivative falls below it.
	Threshold float32
	// StepLimit caps the number of weight updates per repetition.
	StepLimit int

	// LearningRate is the fixed rate for the Backprop strategy.
	LearningRate float32

	// Resilient-backpropagation step control.
	StepGrow   float32 // factor on unchanged gradient sign, > 1
	StepShrink float32 // factor on a sign flip, < 1
	StepMin    float32 // lower learning-rate bound
	StepMax    float32 // upper learning-rate bound

	// Excluded weights take part in forward evaluation but are never
	// updated.  Fixed weights are additionally pinned to a constant
	// before training begins.
	Excluded []WeightCoord
	Fixed    map[WeightCoord]float32

	// ComputeLikelihoodCriteria requests AIC/BIC when the error function
	// is the negative log-likelihood (CrossEntropy).
	ComputeLikelihoodCriteria bool

	// Workers bounds the number of repetitions trained concurrently.
	// Zero means one worker per CPU.
	Workers int
}

// DefaultConfig returns the defaults of the original system: rprop+ with
// logistic activation, sum-of-squared error, threshold 0.01, step limit
// 1e5, step factors 1.2/0.5 and learning-rate bounds [1e-10, 0.1].
func DefaultConfig() Config {
	return Config{
		Strategy:   RpropPlus,
		Activation: Logistic,
		ErrorFunc:  SumSquared,
		Threshold:  0.01,
		StepLimit:  100000,
		StepGrow:   1.2,
		StepShrink: 0.5,
		StepMin:    1e-10,
		StepMax:    0.1,
	}
}

// Validate rejects an unusable configuration before any computation
// begins.  Every returned error wraps ErrInvalidConfiguration.
func (c Config) Validate(t Topology) error {
	switch c.Strategy {
	case RpropPlus, RpropMinus, Backprop:
	default:
		return errors.Wrapf(ErrInvalidConfiguration, "unknown strategy %d", int(c.Strategy))
	}
	switch c.Activation {
	case Logistic, Tanh:
	default:
		return errors.Wrapf(ErrInvalidConfiguration, "unknown activation %d", int(c.Activation))
	}
	switch c.ErrorFunc {
	case SumSquared, CrossEntropy:
	default:
		return errors.Wrapf(ErrInvalidConfiguration, "unknown error function %d", int(c.ErrorFunc))
	}
	if !(c.Threshold > 0) {
		return errors.Wrapf(ErrInvalidConfiguration, "threshold %v must be positive", c.Threshold)
	}
	if c.StepLimit <= 0 {
		return errors.Wrapf(ErrInvalidConfiguration, "step limit %d must be positive", c.StepLimit)
	}
	if c.Workers < 0 {
		return errors.Wrapf(ErrInvalidConfiguration, "workers %d must not be negative", c.Workers)
	}

	switch c.Strategy {
	case Backprop:
		if !(c.LearningRate > 0) {
			return errors.Wrapf(ErrInvalidConfiguration, "backprop requires a positive learning rate, got %v", c.LearningRate)
		}
	case RpropPlus, RpropMinus:
		if !(c.StepGrow > 1) {
			return errors.Wrapf(ErrInvalidConfiguration, "step growth factor %v must be greater than 1", c.StepGrow)
		}
		if !(c.StepShrink > 0 && c.StepShrink < 1) {
			return errors.Wrapf(ErrInvalidConfiguration, "step shrink factor %v must be in (0,1)", c.StepShrink)
		}
		if !(c.StepMin > 0 && c.StepMin <= c.StepMax) {
			return errors.Wrapf(ErrInvalidConfiguration, "learning-rate bounds (%v,%v) must satisfy 0 < min <= max", c.StepMin, c.StepMax)
		}
	}

	for _, coord := range c.Excluded {
		if err := coord.validate(t); err != nil {
			return err
		}
	}
	for coord, v := range c.Fixed {
		if err := coord.validate(t); err != nil {
			return err
		}
		if !finite32(v) {
			return errors.Wrapf(ErrInvalidConfiguration, "fixed weight %+v value %v is not finite", coord, v)
		}
	}
	return nil
}

// frozenCoords merges the excluded set with the fixed-weight keys.
func (c Config) frozenCoords() []WeightCoord {
	coords := append([]WeightCoord(nil), c.Excluded...)
	for coord := range c.Fixed {
		coords = append(coords, coord)
	}
	return coords
}

// TerminationReason records how a repetition's training loop ended.
type TerminationReason int

const (
	// Converged: the maximum absolute partial derivative fell below the
	// threshold.
	Converged TerminationReason = iota
	// StepLimitReached: the step ceiling was hit first.  Reported, not
	// fatal.
	StepLimitReached
	// Cancelled: the caller's context was cancelled at a step boundary.
	Cancelled
	// Diverged: the error or a weight became non-finite.  The repetition
	// is excluded from best-repetition selection.
	Diverged
)

func (r TerminationReason) String() string {
	switch r {
	case Converged:
		return "converged"
	case StepLimitReached:
		return "step limit reached"
	case Cancelled:
		return "cancelled"
	case Diverged:
		return "diverged"
	}
	return "unknown"
}

// Repetition is one complete training run.  It is immutable once the
// trainer hands it out.
type Repetition struct {
	// Index is the 1-based position within the training result.
	Index int

	// StartWeights is the random initialization this run began from.
	StartWeights *WeightSet
	// Model holds the final weights together with the evaluation options
	// needed to run inference on them.
	Model *Model

	Steps      int
	FinalError float32
	Reason     TerminationReason

	// AIC and BIC are populated when the error function is CrossEntropy
	// and the configuration requested likelihood criteria.
	AIC, BIC    float64
	HasCriteria bool
}

// Failed reports whether the repetition must be excluded from model
// selection.
func (r *Repetition) Failed() bool { return r.Reason == Diverged }

// TrainingResult is the ordered set of repetitions produced by one Train
// call.  Repetitions[i] has Index i+1.
type TrainingResult struct {
	Topology    Topology
	Repetitions []*Repetition
}

// Train runs the requested number of independently-initialized training
// repetitions and returns all of them.  Each repetition draws its start
// weights from a seed derived deterministically from the given master
// seed, so a fixed seed reproduces the full result exactly.  Repetitions
// run concurrently on a bounded worker pool; ctx cancellation stops every
// running repetition at its next step boundary.
func Train(ctx context.Context, d *Dataset, t Topology, cfg Config, repetitions int, seed int64) (*TrainingResult, error) {
	if repetitions <= 0 {
		return nil, errors.Wrapf(ErrInvalidConfiguration, "repetition count %d must be positive", repetitions)
	}
	if err := t.Validate(); err != nil {
		return nil, err
	}
	if err := cfg.Validate(t); err != nil {
		return nil, err
	}
	if d.Dim() != t.Inputs {
		return nil, DimensionMismatchError{What: "dataset feature width", Want: t.Inputs, Got: d.Dim()}
	}

	// Derive per-repetition seeds up front so the assignment of seeds to
	// repetition indices does not depend on scheduling.
	master := rand.New(rand.NewSource(seed))
	seeds := make([]int64, repetitions)
	for i := range seeds {
		seeds[i] = master.Int63()
	}

	workers := cfg.Workers
	if workers == 0 {
		workers = runtime.NumCPU()
	}
	if workers > repetitions {
		workers = repetitions
	}

	result := &TrainingResult{
		Topology:    t,
		Repetitions: make([]*Repetition, repetitions),
	}

	indices := make(chan int)
	var wg sync.WaitGroup
	for w := 0; w < workers; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := range indices {
				result.Repetitions[i] = trainOne(ctx, d, t, cfg, i+1, seeds[i])
			}
		}()
	}
	for i := 0; i < repetitions; i++ {
		indices <- i
	}
	close(indices)
	wg.Wait()

	return result, nil
}

// trainOne runs a single repetition to termination.
func trainOne(ctx context.Context, d *Dataset, t Topology, cfg Config, index int, seed int64) *Repetition {
	rng := rand.New(rand.NewSource(seed))
	ws := RandomWeightSet(t, rng)
	for coord, v := range cfg.Fixed {
		*coord.at(ws) = v
	}
	start := ws.Clone()

	model := &Model{
		Topology:     t,
		Weights:      ws,
		Activation:   cfg.Activation,
		LinearOutput: cfg.LinearOutput,
	}

	var up updater
	switch cfg.Strategy {
	case Backprop:
		up = &backpropUpdater{eta: cfg.LearningRate}
	case RpropMinus:
		up = newRpropUpdater(ws, t, false, cfg.StepGrow, cfg.StepShrink, cfg.StepMin, cfg.StepMax)
	case RpropPlus:
		up = newRpropUpdater(ws, t, true, cfg.StepGrow, cfg.StepShrink, cfg.StepMin, cfg.StepMax)
	}

	grad := NewWeightSet(t)
	scratch := newGradScratch(ws)
	mask := newFreezeMask(ws, cfg.frozenCoords())

	reason := StepLimitReached
	steps := 0
	var trainErr float32

loop:
	for steps < cfg.StepLimit {
		select {
		case <-ctx.Done():
			reason = Cancelled
			break loop
		default:
		}

		trainErr = model.batchGradient(cfg.ErrorFunc, d, grad, scratch)
		if !finite32(trainErr) {
			reason = Diverged
			break loop
		}
		mask.apply(grad)
		if grad.MaxAbs() < cfg.Threshold {
			reason = Converged
			break loop
		}

		up.step(ws, grad)
		steps++

		if !ws.Finite() {
			reason = Diverged
			break loop
		}
	}

	// The loop reports the error measured before its last update; when it
	// stopped for a reason other than convergence, re-measure on the final
	// weights so the reported error matches the reported model.
	if reason == StepLimitReached || reason == Cancelled {
		trainErr = model.batchGradient(cfg.ErrorFunc, d, grad, scratch)
		if !finite32(trainErr) {
			reason = Diverged
		}
	}

	rep := &Repetition{
		Index:        index,
		StartWeights: start,
		Model:        model,
		Steps:        steps,
		FinalError:   trainErr,
		Reason:       reason,
	}

	if cfg.ComputeLikelihoodCriteria && cfg.ErrorFunc == CrossEntropy && reason != Diverged {
		params := ws.ParamCount() - mask.n
		rep.AIC = 2*float64(trainErr) + 2*float64(params)
		rep.BIC = 2*float64(trainErr) + math.Log(float64(d.Len()))*float64(params)
		rep.HasCriteria = true
	}

	return rep
}
