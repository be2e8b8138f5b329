package utils

import (
	"sort"

	"github.com/pkg/errors"
	"gorgonia.org/tensor"
)

func VStack(tensors []*tensor.Dense) (*tensor.Dense, error) {
	var nonEmptyTensors []*tensor.Dense
	for _, t := range tensors {
		shape := t.Shape()
		if shape[0] > 0 {
			nonEmptyTensors = append(nonEmptyTensors, t)
		}
	}

	if len(nonEmptyTensors) == 0 {
		return tensor.New(tensor.Of(tensor.Float32), tensor.WithShape(0, 1)), nil
	}
	if len(nonEmptyTensors) == 1 {
		return nonEmptyTensors[0], nil
	}

	result, err := nonEmptyTensors[0].Concat(0, nonEmptyTensors[1:]...)
	if err != nil {
		return nil, errors.Wrap(err, "concat tensors along rows")
	}

	return result, nil
}

func HStack(tensors []*tensor.Dense) (*tensor.Dense, error) {
	var nonEmptyTensors []*tensor.Dense
	for _, t := range tensors {
		shape := t.Shape()
		if shape[0] > 0 {
			nonEmptyTensors = append(nonEmptyTensors, t)
		}
	}

	if len(nonEmptyTensors) == 0 {
		return tensor.New(tensor.Of(tensor.Float32), tensor.WithShape(0, 1)), nil
	}
	if len(nonEmptyTensors) == 1 {
		return nonEmptyTensors[0], nil
	}

	result, err := nonEmptyTensors[0].Concat(1, nonEmptyTensors[1:]...)
	if err != nil {
		return nil, errors.Wrap(err, "concat tensors along columns")
	}

	return result, nil
}

// ArgSortDescending returns the indices that order t from the highest value
// down. Equal values keep their original relative order.
func ArgSortDescending(t *tensor.Dense) ([]int, error) {
	shape := t.Shape()
	if len(shape) != 1 {
		return nil, errors.Errorf("expected a 1D tensor, got shape %v", shape)
	}

	data := t.Float32s()

	indices := make([]int, len(data))
	for i := range indices {
		indices[i] = i
	}

	sort.SliceStable(indices, func(i, j int) bool {
		return data[indices[i]] > data[indices[j]]
	})

	return indices, nil
}

// SelectRows1D gathers the given elements of a 1D tensor into a new tensor.
func SelectRows1D(t *tensor.Dense, indices []int) (*tensor.Dense, error) {
	shape := t.Shape()
	if len(shape) != 1 {
		return nil, errors.Errorf("expected a 1D tensor, got shape %v", shape)
	}
	if len(indices) == 0 {
		return tensor.New(tensor.Of(tensor.Float32), tensor.WithShape(0)), nil
	}

	vals := t.Float32s()
	selected := make([]float32, 0, len(indices))
	for _, idx := range indices {
		if idx < 0 || idx >= shape[0] {
			return nil, errors.Errorf("index %d is out of bounds", idx)
		}
		selected = append(selected, vals[idx])
	}

	return tensor.New(tensor.Of(tensor.Float32), tensor.WithShape(len(indices)), tensor.WithBacking(selected)), nil
}

// SelectRows2D gathers the given rows of a 2D tensor into a new tensor.
// The input must own its data.
func SelectRows2D(t *tensor.Dense, indices []int) (*tensor.Dense, error) {
	shape := t.Shape()
	if len(shape) != 2 {
		return nil, errors.Errorf("expected a 2D tensor, got shape %v", shape)
	}
	numRows, numCols := shape[0], shape[1]
	if len(indices) == 0 {
		return tensor.New(tensor.Of(tensor.Float32), tensor.WithShape(0, numCols)), nil
	}

	vals := t.Float32s()
	selected := make([]float32, 0, len(indices)*numCols)
	for _, idx := range indices {
		if idx < 0 || idx >= numRows {
			return nil, errors.Errorf("index %d is out of bounds", idx)
		}
		selected = append(selected, vals[idx*numCols:(idx+1)*numCols]...)
	}

	return tensor.New(
		tensor.Of(tensor.Float32),
		tensor.WithShape(len(indices), numCols),
		tensor.WithBacking(selected),
	), nil
}

func TensorByIndices(t *tensor.Dense, indices []int) (*tensor.Dense, error) {
	shape := t.Shape()

	if len(shape) != 1 {
		return nil, errors.Errorf("input tensor should be 1D, got shape %v", shape)
	}
	if len(indices) == 0 {
		return tensor.New(tensor.Of(tensor.Float32), tensor.WithShape(0)), nil
	}

	resultData := make([]float32, len(indices))

	for i, idx := range indices {
		element, err := t.At(idx)
		if err != nil {
			return nil, err
		}
		resultData[i] = element.(float32)
	}
	result := tensor.New(tensor.Of(tensor.Float32), tensor.WithShape(len(indices)), tensor.WithBacking(resultData))

	return result, nil
}
