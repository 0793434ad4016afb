package main

import (
	"encoding/csv"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/sbinet/npyio/npz"

	"github.com/pieberrykinnie/neuralnet-breast-cancer/nnet"
)

// loadDataset reads a dataset file, dispatching on extension: .npz with
// x.npy/y.npy arrays, anything else as CSV in the WDBC layout
// (id, diagnosis M/B, then the feature columns).
func loadDataset(path string) (*nnet.Dataset, error) {
	if path == "" {
		return nil, fmt.Errorf("no dataset file given")
	}
	if filepath.Ext(path) == ".npz" {
		return loadNPZ(path)
	}
	return loadCSV(path)
}

func loadCSV(path string) (*nnet.Dataset, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("while opening csv file: %w", err)
	}
	defer f.Close()

	reader := csv.NewReader(f)
	reader.FieldsPerRecord = -1

	var rows [][]float32
	var labels []int
	line := 0
	for {
		record, err := reader.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("while reading csv: %w", err)
		}
		line++

		if len(record) < 3 {
			return nil, fmt.Errorf("csv line %d has %d fields, want at least 3", line, len(record))
		}

		var label int
		switch strings.TrimSpace(record[1]) {
		case "B", "b":
			label = nnet.ClassBenign
		case "M", "m":
			label = nnet.ClassMalignant
		default:
			// Tolerate a single header line.
			if line == 1 {
				continue
			}
			return nil, fmt.Errorf("csv line %d has unknown diagnosis %q", line, record[1])
		}

		features := make([]float32, len(record)-2)
		for i, field := range record[2:] {
			v, err := strconv.ParseFloat(strings.TrimSpace(field), 32)
			if err != nil {
				return nil, fmt.Errorf("csv line %d field %d: %w", line, i+3, err)
			}
			features[i] = float32(v)
		}

		rows = append(rows, features)
		labels = append(labels, label)
	}

	return nnet.NewDataset(rows, labels)
}

// loadNPZ reads a dataset from an npz archive holding an x.npy feature
// matrix (n rows) and a y.npy label vector of 0 (benign) / 1 (malignant).
func loadNPZ(path string) (*nnet.Dataset, error) {
	r, err := npz.Open(path)
	if err != nil {
		return nil, fmt.Errorf("while opening npz file: %w", err)
	}
	defer r.Close()

	xHeader := r.Header("x.npy")
	if len(xHeader.Descr.Shape) != 2 {
		return nil, fmt.Errorf("x.npy has shape %v, want 2 dimensions", xHeader.Descr.Shape)
	}
	n, dim := xHeader.Descr.Shape[0], xHeader.Descr.Shape[1]

	var xRaw []float64
	if err := r.Read("x.npy", &xRaw); err != nil {
		return nil, fmt.Errorf("while reading x.npy: %w", err)
	}

	var yRaw []float64
	if err := r.Read("y.npy", &yRaw); err != nil {
		return nil, fmt.Errorf("while reading y.npy: %w", err)
	}
	if len(yRaw) != n {
		return nil, fmt.Errorf("y.npy has %d entries, want %d", len(yRaw), n)
	}

	rows := make([][]float32, n)
	labels := make([]int, n)
	for k := 0; k < n; k++ {
		row := make([]float32, dim)
		for j := 0; j < dim; j++ {
			row[j] = float32(xRaw[k*dim+j])
		}
		rows[k] = row
		labels[k] = int(yRaw[k])
	}

	return nnet.NewDataset(rows, labels)
}

func parseHidden(s string) ([]int, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil, nil
	}
	parts := strings.Split(s, ",")
	hidden := make([]int, len(parts))
	for i, part := range parts {
		v, err := strconv.Atoi(strings.TrimSpace(part))
		if err != nil {
			return nil, fmt.Errorf("while parsing hidden layer widths %q: %w", s, err)
		}
		hidden[i] = v
	}
	return hidden, nil
}

func parseStrategy(s string) (nnet.Strategy, error) {
	switch s {
	case "rprop+":
		return nnet.RpropPlus, nil
	case "rprop-":
		return nnet.RpropMinus, nil
	case "backprop":
		return nnet.Backprop, nil
	}
	return 0, fmt.Errorf("unknown strategy %q (want rprop+, rprop- or backprop)", s)
}

func parseActivation(s string) (nnet.Activation, error) {
	switch s {
	case "logistic":
		return nnet.Logistic, nil
	case "tanh":
		return nnet.Tanh, nil
	}
	return 0, fmt.Errorf("unknown activation %q (want logistic or tanh)", s)
}

func parseErrorFunc(s string) (nnet.ErrorFunc, error) {
	switch s {
	case "sse":
		return nnet.SumSquared, nil
	case "ce":
		return nnet.CrossEntropy, nil
	}
	return 0, fmt.Errorf("unknown error function %q (want sse or ce)", s)
}
