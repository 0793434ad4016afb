package nnet

import (
	"encoding/binary"
	"encoding/json"
	"fmt"
	"io"
	"math"
	"slices"

	"github.com/pkg/errors"
)

// Weight files use the safetensors layout: a little-endian uint64 header
// length, a JSON header mapping tensor names to dtype/shape/offsets, then
// the raw little-endian float32 data.  Float32 values survive the trip
// bit-for-bit, so a saved model reproduces its predictions exactly.

type safeTensorInfo struct {
	DType       string `json:"dtype"`
	Shape       []int  `json:"shape"`
	DataOffsets []int  `json:"data_offsets"`
}

type tensor struct {
	v     []float32
	shape []int
}

func scalarTensor(v float32) tensor {
	return tensor{v: []float32{v}, shape: []int{1}}
}

func writeSafeTensors(w io.Writer, tensors map[string]tensor) error {
	keys := make([]string, 0, len(tensors))
	for k := range tensors {
		keys = append(keys, k)
	}
	slices.Sort(keys)

	header := map[string]safeTensorInfo{}
	dataOffset := 0
	for _, k := range keys {
		begin := dataOffset
		dataOffset += len(tensors[k].v) * 4
		header[k] = safeTensorInfo{
			DType:       "F32",
			Shape:       tensors[k].shape,
			DataOffsets: []int{begin, dataOffset},
		}
	}

	headerBytes, err := json.Marshal(header)
	if err != nil {
		return fmt.Errorf("while marshaling header: %w", err)
	}
	if err := binary.Write(w, binary.LittleEndian, uint64(len(headerBytes))); err != nil {
		return fmt.Errorf("while writing header length: %w", err)
	}
	if _, err := w.Write(headerBytes); err != nil {
		return fmt.Errorf("while writing header: %w", err)
	}
	for _, k := range keys {
		if err := binary.Write(w, binary.LittleEndian, tensors[k].v); err != nil {
			return fmt.Errorf("while writing %s values: %w", k, err)
		}
	}
	return nil
}

func readSafeTensors(r io.Reader) (map[string]tensor, error) {
	var headerLen uint64
	if err := binary.Read(r, binary.LittleEndian, &headerLen); err != nil {
		return nil, fmt.Errorf("while reading header length: %w", err)
	}

	headerBytes := make([]byte, int(headerLen))
	if _, err := io.ReadFull(r, headerBytes); err != nil {
		return nil, fmt.Errorf("while reading header: %w", err)
	}
	header := map[string]safeTensorInfo{}
	if err := json.Unmarshal(headerBytes, &header); err != nil {
		return nil, fmt.Errorf("while decoding header: %w", err)
	}

	data, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("while reading tensor data: %w", err)
	}

	tensors := map[string]tensor{}
	for k, hdr := range header {
		if hdr.DType != "F32" {
			return nil, fmt.Errorf("unsupported dtype %s for %s", hdr.DType, k)
		}
		size := 1
		for _, s := range hdr.Shape {
			if s < 1 {
				return nil, fmt.Errorf("bad shape %v for %s", hdr.Shape, k)
			}
			size *= s
		}
		if len(hdr.DataOffsets) != 2 || hdr.DataOffsets[1]-hdr.DataOffsets[0] != size*4 ||
			hdr.DataOffsets[0] < 0 || hdr.DataOffsets[1] > len(data) {
			return nil, fmt.Errorf("bad data offsets %v for %s", hdr.DataOffsets, k)
		}

		v := make([]float32, size)
		for i := 0; i < size; i++ {
			bits := binary.LittleEndian.Uint32(data[hdr.DataOffsets[0]+i*4:])
			v[i] = math.Float32frombits(bits)
		}
		tensors[k] = tensor{v: v, shape: hdr.Shape}
	}
	return tensors, nil
}

// SaveModel writes a trained model (topology dimensions, weights, biases
// and evaluation options) as a safetensors stream.
func SaveModel(w io.Writer, m *Model) error {
	tensors := map[string]tensor{}

	sizes := m.Topology.Sizes()
	sizesV := make([]float32, len(sizes))
	for i, s := range sizes {
		sizesV[i] = float32(s)
	}
	tensors["meta.sizes"] = tensor{v: sizesV, shape: []int{len(sizesV)}}
	tensors["meta.activation"] = scalarTensor(float32(m.Activation))
	linear := float32(0)
	if m.LinearOutput {
		linear = 1
	}
	tensors["meta.linear_output"] = scalarTensor(linear)

	for l, lay := range m.Weights.Layers {
		tensors[fmt.Sprintf("net.%d.weights", l)] = tensor{
			v:     append([]float32(nil), lay.W...),
			shape: []int{lay.Out, lay.In},
		}
		tensors[fmt.Sprintf("net.%d.biases", l)] = tensor{
			v:     append([]float32(nil), lay.B...),
			shape: []int{lay.Out},
		}
	}

	return writeSafeTensors(w, tensors)
}

// LoadModel reads a model previously written by SaveModel.
func LoadModel(r io.Reader) (*Model, error) {
	tensors, err := readSafeTensors(r)
	if err != nil {
		return nil, err
	}

	sizesT, ok := tensors["meta.sizes"]
	if !ok {
		return nil, errors.New("weight file has no meta.sizes tensor")
	}
	if len(sizesT.v) < 2 {
		return nil, errors.Errorf("meta.sizes has %d entries, want at least 2", len(sizesT.v))
	}
	sizes := make([]int, len(sizesT.v))
	for i, v := range sizesT.v {
		sizes[i] = int(v)
	}
	if sizes[len(sizes)-1] != NumClasses {
		return nil, errors.Errorf("weight file output width %d, want %d", sizes[len(sizes)-1], NumClasses)
	}
	topo := NewTopology(sizes[0], sizes[1:len(sizes)-1]...)
	if err := topo.Validate(); err != nil {
		return nil, err
	}

	actT, ok := tensors["meta.activation"]
	if !ok {
		return nil, errors.New("weight file has no meta.activation tensor")
	}
	act := Activation(actT.v[0])
	switch act {
	case Logistic, Tanh:
	default:
		return nil, errors.Errorf("weight file has unknown activation %v", actT.v[0])
	}

	linearT, ok := tensors["meta.linear_output"]
	if !ok {
		return nil, errors.New("weight file has no meta.linear_output tensor")
	}

	ws := NewWeightSet(topo)
	for l := range ws.Layers {
		lay := &ws.Layers[l]

		wT, ok := tensors[fmt.Sprintf("net.%d.weights", l)]
		if !ok {
			return nil, errors.Errorf("weight file has no tensor net.%d.weights", l)
		}
		if !slices.Equal(wT.shape, []int{lay.Out, lay.In}) {
			return nil, errors.Errorf("net.%d.weights shape %v, want %v", l, wT.shape, []int{lay.Out, lay.In})
		}
		copy(lay.W, wT.v)

		bT, ok := tensors[fmt.Sprintf("net.%d.biases", l)]
		if !ok {
			return nil, errors.Errorf("weight file has no tensor net.%d.biases", l)
		}
		if !slices.Equal(bT.shape, []int{lay.Out}) {
			return nil, errors.Errorf("net.%d.biases shape %v, want %v", l, bT.shape, []int{lay.Out})
		}
		copy(lay.B, bT.v)
	}

	return &Model{
		Topology:     topo,
		Weights:      ws,
		Activation:   act,
		LinearOutput: linearT.v[0] != 0,
	}, nil
}
