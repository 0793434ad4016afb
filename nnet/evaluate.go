package nnet

// ConfusionTable cross-tabulates actual class against predicted class
// over one prediction output.
type ConfusionTable struct {
	// Counts[actual][predicted]
	Counts [NumClasses][NumClasses]int
	Total  int
}

// Evaluate builds a confusion table from a prediction output and the true
// labels, and returns the resulting accuracy.  The label vector must
// align with the predictions.
func Evaluate(pred PredictionOutput, labels []int) (ConfusionTable, float64, error) {
	if len(labels) != len(pred) {
		return ConfusionTable{}, 0, DimensionMismatchError{What: "label vector", Want: len(pred), Got: len(labels)}
	}

	var ct ConfusionTable
	for k := range pred {
		ct.Counts[labels[k]][pred.Class(k)]++
		ct.Total++
	}
	return ct, ct.Accuracy(), nil
}

// Accuracy is the fraction of samples on the diagonal.  The same rule
// covers the collapsed-model case, where one predicted-class column is
// entirely empty and only a single diagonal entry contributes.
func (ct ConfusionTable) Accuracy() float64 {
	if ct.Total == 0 {
		return 0
	}
	correct := 0
	for c := 0; c < NumClasses; c++ {
		correct += ct.Counts[c][c]
	}
	return float64(correct) / float64(ct.Total)
}

// Collapsed reports whether the model predicted a single class for every
// sample, and which class that was.  A collapsed model can still post a
// high accuracy on a skewed dataset, so callers must check this flag
// rather than trust the accuracy number alone.
func (ct ConfusionTable) Collapsed() (class int, collapsed bool) {
	if ct.Total == 0 {
		return 0, false
	}
	for pc := 0; pc < NumClasses; pc++ {
		n := 0
		for ac := 0; ac < NumClasses; ac++ {
			n += ct.Counts[ac][pc]
		}
		if n == ct.Total {
			return pc, true
		}
	}
	return 0, false
}

// BestRepetition evaluates every repetition of a training result against
// the given dataset and returns the one with the strictly highest
// accuracy, breaking ties by earliest repetition index.  Diverged
// repetitions are skipped; if every repetition diverged the result is
// ErrNoViableRepetition.
func BestRepetition(tr *TrainingResult, d *Dataset) (*Repetition, ConfusionTable, error) {
	var best *Repetition
	var bestTable ConfusionTable
	bestAcc := -1.0

	for _, rep := range tr.Repetitions {
		if rep.Failed() {
			continue
		}
		pred, err := rep.Model.Predict(d)
		if err != nil {
			return nil, ConfusionTable{}, err
		}
		ct, acc, err := Evaluate(pred, d.labels)
		if err != nil {
			return nil, ConfusionTable{}, err
		}
		if acc > bestAcc {
			best = rep
			bestTable = ct
			bestAcc = acc
		}
	}

	if best == nil {
		return nil, ConfusionTable{}, ErrNoViableRepetition
	}
	return best, bestTable, nil
}
