package nnet

import (
	"context"
	"math/rand"
	"testing"
)

// constantModel predicts the same score vector for every input: no hidden
// layers, zero weights, and the scores baked into the output biases.
func constantModel(inputs int, benignScore, malignantScore float32) *Model {
	topo := NewTopology(inputs)
	ws := NewWeightSet(topo)
	ws.Layers[0].B[ClassBenign] = benignScore
	ws.Layers[0].B[ClassMalignant] = malignantScore
	return &Model{Topology: topo, Weights: ws, Activation: Logistic, LinearOutput: true}
}

func TestEvaluateConfusionTable(t *testing.T) {
	pred := PredictionOutput{
		{0.9, 0.1}, // benign, correct
		{0.8, 0.2}, // benign, correct
		{0.6, 0.4}, // benign, wrong
		{0.3, 0.7}, // malignant, correct
	}
	labels := []int{ClassBenign, ClassBenign, ClassMalignant, ClassMalignant}

	ct, acc, err := Evaluate(pred, labels)
	if err != nil {
		t.Fatalf("Evaluate: %v", err)
	}
	want := [NumClasses][NumClasses]int{
		{2, 0},
		{1, 1},
	}
	if ct.Counts != want {
		t.Errorf("counts = %v, want %v", ct.Counts, want)
	}
	if acc != 0.75 {
		t.Errorf("accuracy = %v, want 0.75", acc)
	}
	if _, collapsed := ct.Collapsed(); collapsed {
		t.Error("table with both predicted classes reported as collapsed")
	}
}

func TestEvaluateLengthMismatch(t *testing.T) {
	pred := PredictionOutput{{1, 0}, {0, 1}}
	if _, _, err := Evaluate(pred, []int{ClassBenign}); err == nil {
		t.Fatal("Evaluate with short label vector succeeded")
	}
}

func TestClassTieGoesToBenign(t *testing.T) {
	pred := PredictionOutput{{0.5, 0.5}, {0, 0}, {0.4, 0.6}}
	if got := pred.Class(0); got != ClassBenign {
		t.Errorf("Class on equal scores = %d, want benign", got)
	}
	if got := pred.Class(1); got != ClassBenign {
		t.Errorf("Class on zero scores = %d, want benign", got)
	}
	if got := pred.Class(2); got != ClassMalignant {
		t.Errorf("Class on malignant-leaning scores = %d, want malignant", got)
	}
}

// Swapping the score columns and flipping every label must leave accuracy
// unchanged: the two classes get no special treatment beyond tie-breaking.
func TestEvaluateRelabelSymmetry(t *testing.T) {
	r := rand.New(rand.NewSource(21))
	n := 50
	pred := make(PredictionOutput, n)
	swapped := make(PredictionOutput, n)
	labels := make([]int, n)
	flipped := make([]int, n)
	for k := 0; k < n; k++ {
		a, b := r.Float32(), r.Float32()
		for a == b {
			b = r.Float32()
		}
		pred[k] = [NumClasses]float32{a, b}
		swapped[k] = [NumClasses]float32{b, a}
		labels[k] = r.Intn(NumClasses)
		flipped[k] = 1 - labels[k]
	}

	_, acc, err := Evaluate(pred, labels)
	if err != nil {
		t.Fatalf("Evaluate: %v", err)
	}
	_, accSwapped, err := Evaluate(swapped, flipped)
	if err != nil {
		t.Fatalf("Evaluate: %v", err)
	}
	if acc != accSwapped {
		t.Errorf("accuracy %v changed to %v under relabeling", acc, accSwapped)
	}
}

func TestEvaluateCollapsedModel(t *testing.T) {
	d := separableDataset(t, 10, 3, 37)
	m := constantModel(3, 1, 0)

	pred, err := m.Predict(d)
	if err != nil {
		t.Fatalf("Predict: %v", err)
	}
	ct, acc, err := Evaluate(pred, d.Labels())
	if err != nil {
		t.Fatalf("Evaluate: %v", err)
	}
	class, collapsed := ct.Collapsed()
	if !collapsed || class != ClassBenign {
		t.Errorf("Collapsed() = (%d, %v), want (benign, true)", class, collapsed)
	}
	if acc != 0.5 {
		t.Errorf("accuracy = %v, want 0.5 on a balanced dataset", acc)
	}

	// An all-benign predictor on an all-benign dataset is perfectly
	// accurate; the collapse flag is what warns the caller.
	rows := [][]float32{{0.1, 0.1, 0.1}, {0.2, 0.1, 0.1}}
	allBenign, err := NewDataset(rows, []int{ClassBenign, ClassBenign})
	if err != nil {
		t.Fatalf("NewDataset: %v", err)
	}
	pred, err = m.Predict(allBenign)
	if err != nil {
		t.Fatalf("Predict: %v", err)
	}
	ct, acc, err = Evaluate(pred, allBenign.Labels())
	if err != nil {
		t.Fatalf("Evaluate: %v", err)
	}
	if acc != 1.0 {
		t.Errorf("accuracy = %v, want 1.0", acc)
	}
	if _, collapsed := ct.Collapsed(); !collapsed {
		t.Error("all-benign prediction not flagged as collapsed")
	}
}

func TestBestRepetitionPicksHighestAccuracy(t *testing.T) {
	rows := [][]float32{{0.1, 0.1}, {0.2, 0.1}, {0.1, 0.2}, {0.9, 0.9}}
	labels := []int{ClassBenign, ClassBenign, ClassBenign, ClassMalignant}
	d, err := NewDataset(rows, labels)
	if err != nil {
		t.Fatalf("NewDataset: %v", err)
	}

	benign := constantModel(2, 1, 0)    // 3/4 correct
	malignant := constantModel(2, 0, 1) // 1/4 correct

	tr := &TrainingResult{
		Topology: benign.Topology,
		Repetitions: []*Repetition{
			{Index: 1, Model: malignant, Reason: Converged},
			{Index: 2, Model: benign, Reason: Converged},
		},
	}

	best, ct, err := BestRepetition(tr, d)
	if err != nil {
		t.Fatalf("BestRepetition: %v", err)
	}
	if best.Index != 2 {
		t.Errorf("best repetition index = %d, want 2", best.Index)
	}
	if got := ct.Accuracy(); got != 0.75 {
		t.Errorf("best accuracy = %v, want 0.75", got)
	}
}

func TestBestRepetitionTieBreaksEarliest(t *testing.T) {
	d := separableDataset(t, 8, 2, 41)
	m := constantModel(2, 1, 0)

	tr := &TrainingResult{
		Topology: m.Topology,
		Repetitions: []*Repetition{
			{Index: 1, Model: m, Reason: StepLimitReached},
			{Index: 2, Model: m, Reason: Converged},
			{Index: 3, Model: m, Reason: Converged},
		},
	}

	best, _, err := BestRepetition(tr, d)
	if err != nil {
		t.Fatalf("BestRepetition: %v", err)
	}
	if best.Index != 1 {
		t.Errorf("tied accuracies resolved to index %d, want 1", best.Index)
	}
}

func TestBestRepetitionSkipsDiverged(t *testing.T) {
	rows := [][]float32{{0.1, 0.1}, {0.2, 0.1}, {0.1, 0.2}, {0.9, 0.9}}
	labels := []int{ClassBenign, ClassBenign, ClassBenign, ClassMalignant}
	d, err := NewDataset(rows, labels)
	if err != nil {
		t.Fatalf("NewDataset: %v", err)
	}

	tr := &TrainingResult{
		Topology: NewTopology(2),
		Repetitions: []*Repetition{
			// Higher accuracy, but diverged: must be skipped.
			{Index: 1, Model: constantModel(2, 1, 0), Reason: Diverged},
			{Index: 2, Model: constantModel(2, 0, 1), Reason: Converged},
		},
	}

	best, _, err := BestRepetition(tr, d)
	if err != nil {
		t.Fatalf("BestRepetition: %v", err)
	}
	if best.Index != 2 {
		t.Errorf("best repetition index = %d, want 2", best.Index)
	}
}

// Scenario: a narrow (2,2) hidden stack trained with several random
// restarts.  Whatever repetition the selector picks must dominate every
// viable repetition on the selection dataset.
func TestBestRepetitionDominatesAllViable(t *testing.T) {
	d := separableDataset(t, 30, 4, 43)
	topo := NewTopology(4, 2, 2)

	cfg := DefaultConfig()
	cfg.StepLimit = 2000

	result, err := Train(context.Background(), d, topo, cfg, 5, 17)
	if err != nil {
		t.Fatalf("Train: %v", err)
	}

	best, bestTable, err := BestRepetition(result, d)
	if err != nil {
		t.Fatalf("BestRepetition: %v", err)
	}
	bestAcc := bestTable.Accuracy()

	for _, rep := range result.Repetitions {
		if rep.Failed() {
			continue
		}
		pred, err := rep.Model.Predict(d)
		if err != nil {
			t.Fatalf("Predict rep %d: %v", rep.Index, err)
		}
		_, acc, err := Evaluate(pred, d.Labels())
		if err != nil {
			t.Fatalf("Evaluate rep %d: %v", rep.Index, err)
		}
		if acc > bestAcc {
			t.Errorf("rep %d accuracy %v exceeds selected best %v (index %d)", rep.Index, acc, bestAcc, best.Index)
		}
	}
}
