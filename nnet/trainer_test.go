package nnet

import (
	"context"
	"math"
	"math/rand"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/pkg/errors"
)

// separableDataset generates two well-separated clusters: benign samples
// near 0.1 in every feature, malignant near 0.9.
func separableDataset(t *testing.T, n, dim int, seed int64) *Dataset {
	t.Helper()
	r := rand.New(rand.NewSource(seed))
	rows := make([][]float32, n)
	labels := make([]int, n)
	for k := 0; k < n; k++ {
		label := k % NumClasses
		base := float32(0.1)
		if label == ClassMalignant {
			base = 0.9
		}
		row := make([]float32, dim)
		for j := range row {
			row[j] = base + (r.Float32()-0.5)*0.2
		}
		rows[k] = row
		labels[k] = label
	}
	d, err := NewDataset(rows, labels)
	if err != nil {
		t.Fatalf("NewDataset: %v", err)
	}
	return d
}

// Scenario: 30 inputs, no hidden layers, linearly separable data, rprop+
// with the default threshold and step ceiling.  Training must terminate
// by threshold, not by running out of steps.
func TestTrainSeparableConvergesByThreshold(t *testing.T) {
	d := separableDataset(t, 40, 30, 5)
	topo := NewTopology(30)

	cfg := DefaultConfig()
	cfg.Threshold = 0.01
	cfg.StepLimit = 100000

	result, err := Train(context.Background(), d, topo, cfg, 1, 7)
	if err != nil {
		t.Fatalf("Train: %v", err)
	}
	rep := result.Repetitions[0]
	if rep.Reason != Converged {
		t.Fatalf("termination reason = %s after %d steps (error %v), want converged", rep.Reason, rep.Steps, rep.FinalError)
	}
	if rep.Steps == 0 || rep.Steps >= cfg.StepLimit {
		t.Errorf("steps = %d, want within (0, %d)", rep.Steps, cfg.StepLimit)
	}
	if !finite32(rep.FinalError) {
		t.Errorf("final error %v is not finite", rep.FinalError)
	}
}

func TestTrainReproducibleWithFixedSeed(t *testing.T) {
	d := separableDataset(t, 20, 4, 9)
	topo := NewTopology(4, 3)

	cfg := DefaultConfig()
	cfg.Threshold = 1e-9
	cfg.StepLimit = 50
	cfg.Workers = 2

	first, err := Train(context.Background(), d, topo, cfg, 3, 42)
	if err != nil {
		t.Fatalf("Train: %v", err)
	}
	second, err := Train(context.Background(), d, topo, cfg, 3, 42)
	if err != nil {
		t.Fatalf("Train: %v", err)
	}

	for i := range first.Repetitions {
		a, b := first.Repetitions[i], second.Repetitions[i]
		if diff := cmp.Diff(a.StartWeights, b.StartWeights); diff != "" {
			t.Errorf("rep %d start weights differ (-first +second):\n%s", i+1, diff)
		}
		if diff := cmp.Diff(a.Model.Weights, b.Model.Weights); diff != "" {
			t.Errorf("rep %d final weights differ (-first +second):\n%s", i+1, diff)
		}
		if a.Steps != b.Steps || a.FinalError != b.FinalError || a.Reason != b.Reason {
			t.Errorf("rep %d outcome differs: (%d,%v,%s) vs (%d,%v,%s)",
				i+1, a.Steps, a.FinalError, a.Reason, b.Steps, b.FinalError, b.Reason)
		}
	}
}

func TestTrainDistinctSeedsDistinctStarts(t *testing.T) {
	d := separableDataset(t, 20, 4, 9)
	topo := NewTopology(4)

	cfg := DefaultConfig()
	cfg.StepLimit = 5
	cfg.Threshold = 1e-9

	result, err := Train(context.Background(), d, topo, cfg, 2, 42)
	if err != nil {
		t.Fatalf("Train: %v", err)
	}
	if diff := cmp.Diff(result.Repetitions[0].StartWeights, result.Repetitions[1].StartWeights); diff == "" {
		t.Error("two repetitions drew identical start weights")
	}
}

func TestTrainExcludedAndFixedWeightsBitIdentical(t *testing.T) {
	d := separableDataset(t, 20, 3, 11)
	topo := NewTopology(3, 2)

	excluded := []WeightCoord{
		{LayerIndex: 0, Input: 2, Output: 1},
		{LayerIndex: 1, Input: 0, Output: 0}, // output bias
	}
	fixedCoord := WeightCoord{LayerIndex: 0, Input: 1, Output: 0}

	cfg := DefaultConfig()
	cfg.Threshold = 1e-9
	cfg.StepLimit = 60
	cfg.Excluded = excluded
	cfg.Fixed = map[WeightCoord]float32{fixedCoord: 0.123}

	result, err := Train(context.Background(), d, topo, cfg, 2, 3)
	if err != nil {
		t.Fatalf("Train: %v", err)
	}

	for _, rep := range result.Repetitions {
		for _, c := range excluded {
			startBits := math.Float32bits(*c.at(rep.StartWeights))
			finalBits := math.Float32bits(*c.at(rep.Model.Weights))
			if startBits != finalBits {
				t.Errorf("rep %d: excluded weight %+v changed: %#x -> %#x", rep.Index, c, startBits, finalBits)
			}
		}
		if got := *fixedCoord.at(rep.Model.Weights); got != 0.123 {
			t.Errorf("rep %d: fixed weight = %v, want 0.123", rep.Index, got)
		}
		if got := *fixedCoord.at(rep.StartWeights); got != 0.123 {
			t.Errorf("rep %d: fixed weight not pinned in start weights: %v", rep.Index, got)
		}
	}
}

func TestTrainCancelledAtStepBoundary(t *testing.T) {
	d := separableDataset(t, 20, 4, 13)
	topo := NewTopology(4, 3)

	cfg := DefaultConfig()
	cfg.Threshold = 1e-9
	cfg.StepLimit = 100000

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	result, err := Train(ctx, d, topo, cfg, 3, 1)
	if err != nil {
		t.Fatalf("Train: %v", err)
	}
	for _, rep := range result.Repetitions {
		if rep.Reason != Cancelled {
			t.Errorf("rep %d reason = %s, want cancelled", rep.Index, rep.Reason)
		}
		if rep.Steps != 0 {
			t.Errorf("rep %d took %d steps after pre-cancelled context", rep.Index, rep.Steps)
		}
	}
}

func TestTrainDivergenceMarkedNotFatal(t *testing.T) {
	d := separableDataset(t, 20, 3, 17)
	topo := NewTopology(3)

	cfg := DefaultConfig()
	cfg.Strategy = Backprop
	cfg.LearningRate = 1e20
	cfg.LinearOutput = true
	cfg.Threshold = 1e-9
	cfg.StepLimit = 100

	result, err := Train(context.Background(), d, topo, cfg, 2, 4)
	if err != nil {
		t.Fatalf("Train: %v", err)
	}
	for _, rep := range result.Repetitions {
		if rep.Reason != Diverged {
			t.Errorf("rep %d reason = %s, want diverged", rep.Index, rep.Reason)
		}
		if !rep.Failed() {
			t.Errorf("rep %d not marked failed", rep.Index)
		}
	}

	if _, _, err := BestRepetition(result, d); !errors.Is(err, ErrNoViableRepetition) {
		t.Errorf("BestRepetition over all-diverged result = %v, want ErrNoViableRepetition", err)
	}
}

func TestTrainRejectsInvalidConfiguration(t *testing.T) {
	d := separableDataset(t, 10, 3, 19)
	topo := NewTopology(3)
	ctx := context.Background()

	cases := []struct {
		name   string
		mutate func(*Config)
	}{
		{"zero threshold", func(c *Config) { c.Threshold = 0 }},
		{"negative step limit", func(c *Config) { c.StepLimit = -1 }},
		{"backprop without learning rate", func(c *Config) { c.Strategy = Backprop; c.LearningRate = 0 }},
		{"shrink factor above one", func(c *Config) { c.StepShrink = 1.5 }},
		{"grow factor below one", func(c *Config) { c.StepGrow = 0.9 }},
		{"inverted rate bounds", func(c *Config) { c.StepMin = 1; c.StepMax = 0.1 }},
		{"excluded weight out of range", func(c *Config) {
			c.Excluded = []WeightCoord{{LayerIndex: 0, Input: 4, Output: 0}}
		}},
		{"fixed weight bad layer", func(c *Config) {
			c.Fixed = map[WeightCoord]float32{{LayerIndex: 5, Input: 0, Output: 0}: 1}
		}},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			cfg := DefaultConfig()
			tc.mutate(&cfg)
			if _, err := Train(ctx, d, topo, cfg, 1, 1); !errors.Is(err, ErrInvalidConfiguration) {
				t.Errorf("Train = %v, want ErrInvalidConfiguration", err)
			}
		})
	}

	if _, err := Train(ctx, d, topo, DefaultConfig(), 0, 1); !errors.Is(err, ErrInvalidConfiguration) {
		t.Errorf("Train with zero repetitions = %v, want ErrInvalidConfiguration", err)
	}
}

func TestTrainRejectsMismatchedDataset(t *testing.T) {
	d := separableDataset(t, 10, 3, 23)
	topo := NewTopology(4)

	_, err := Train(context.Background(), d, topo, DefaultConfig(), 1, 1)
	var dim DimensionMismatchError
	if !errors.As(err, &dim) {
		t.Fatalf("Train = %v, want DimensionMismatchError", err)
	}
}

func TestTrainLikelihoodCriteria(t *testing.T) {
	d := separableDataset(t, 24, 3, 29)
	topo := NewTopology(3, 2)

	cfg := DefaultConfig()
	cfg.ErrorFunc = CrossEntropy
	cfg.ComputeLikelihoodCriteria = true
	cfg.Threshold = 1e-9
	cfg.StepLimit = 40

	result, err := Train(context.Background(), d, topo, cfg, 1, 31)
	if err != nil {
		t.Fatalf("Train: %v", err)
	}
	rep := result.Repetitions[0]
	if !rep.HasCriteria {
		t.Fatal("HasCriteria = false, want true")
	}

	params := float64(rep.Model.Weights.ParamCount())
	wantAIC := 2*float64(rep.FinalError) + 2*params
	wantBIC := 2*float64(rep.FinalError) + math.Log(float64(d.Len()))*params
	if math.Abs(rep.AIC-wantAIC) > 1e-9 {
		t.Errorf("AIC = %v, want %v", rep.AIC, wantAIC)
	}
	if math.Abs(rep.BIC-wantBIC) > 1e-9 {
		t.Errorf("BIC = %v, want %v", rep.BIC, wantBIC)
	}

	// Criteria are only defined for the negative log-likelihood.
	cfg.ErrorFunc = SumSquared
	result, err = Train(context.Background(), d, topo, cfg, 1, 31)
	if err != nil {
		t.Fatalf("Train: %v", err)
	}
	if result.Repetitions[0].HasCriteria {
		t.Error("HasCriteria = true under sse, want false")
	}
}
