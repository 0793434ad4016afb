package nnet

import (
	"math/rand"

	"github.com/pkg/errors"
)

// Dataset is an immutable feature matrix with one binary class label per
// row.  Features are stored flat in row-major order.
type Dataset struct {
	features []float32 // n*dim
	labels   []int     // ClassBenign or ClassMalignant
	n        int
	dim      int
}

// NewDataset copies the given rows into a dataset.  Every row must have
// the same length, every label must be one of the two class indices, and
// the label vector must align with the rows.
func NewDataset(rows [][]float32, labels []int) (*Dataset, error) {
	if len(rows) == 0 {
		return nil, errors.New("dataset has no samples")
	}
	if len(labels) != len(rows) {
		return nil, DimensionMismatchError{What: "label vector", Want: len(rows), Got: len(labels)}
	}

	dim := len(rows[0])
	if dim == 0 {
		return nil, errors.New("dataset has zero-width feature rows")
	}

	d := &Dataset{
		features: make([]float32, len(rows)*dim),
		labels:   make([]int, len(rows)),
		n:        len(rows),
		dim:      dim,
	}
	for k, row := range rows {
		if len(row) != dim {
			return nil, DimensionMismatchError{What: "feature row", Want: dim, Got: len(row)}
		}
		copy(d.features[k*dim:(k+1)*dim], row)
	}
	for k, label := range labels {
		if label != ClassBenign && label != ClassMalignant {
			return nil, errors.Errorf("label %d for sample %d is not a valid class index", label, k)
		}
		d.labels[k] = label
	}
	return d, nil
}

// Len returns the number of samples.
func (d *Dataset) Len() int { return d.n }

// Dim returns the feature dimensionality shared by every sample.
func (d *Dataset) Dim() int { return d.dim }

// Features returns the feature vector of sample k as a read-only view
// into the dataset's storage.
func (d *Dataset) Features(k int) []float32 {
	return d.features[k*d.dim : (k+1)*d.dim]
}

// Label returns the class index of sample k.
func (d *Dataset) Label(k int) int { return d.labels[k] }

// Labels returns a copy of the label vector.
func (d *Dataset) Labels() []int {
	out := make([]int, d.n)
	copy(out, d.labels)
	return out
}

// target writes the one-hot encoding of sample k's label into dst, which
// must have length NumClasses.
func (d *Dataset) target(k int, dst []float32) {
	dst[ClassBenign] = 0
	dst[ClassMalignant] = 0
	dst[d.labels[k]] = 1
}

// Split partitions the dataset into train and validation subsets by a
// uniform random draw per sample.  trainFrac is the probability that a
// sample lands in the training subset.  Either subset may come out empty
// for extreme fractions or small datasets; callers should check.
func (d *Dataset) Split(r *rand.Rand, trainFrac float64) (train, valid *Dataset) {
	trainRows := make([][]float32, 0, d.n)
	trainLabels := make([]int, 0, d.n)
	validRows := make([][]float32, 0, d.n)
	validLabels := make([]int, 0, d.n)

	for k := 0; k < d.n; k++ {
		if r.Float64() < trainFrac {
			trainRows = append(trainRows, d.Features(k))
			trainLabels = append(trainLabels, d.labels[k])
		} else {
			validRows = append(validRows, d.Features(k))
			validLabels = append(validLabels, d.labels[k])
		}
	}

	train = fromViews(trainRows, trainLabels, d.dim)
	valid = fromViews(validRows, validLabels, d.dim)
	return train, valid
}

func fromViews(rows [][]float32, labels []int, dim int) *Dataset {
	d := &Dataset{
		features: make([]float32, len(rows)*dim),
		labels:   make([]int, len(rows)),
		n:        len(rows),
		dim:      dim,
	}
	for k, row := range rows {
		copy(d.features[k*dim:(k+1)*dim], row)
	}
	copy(d.labels, labels)
	return d
}
