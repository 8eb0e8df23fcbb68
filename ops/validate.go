package ops

import (
	"github.com/pkg/errors"
	"gorgonia.org/tensor"
)

// floatData extracts the float32 backing of a dense tensor. Single-element
// tensors may surface their value as a bare scalar; both layouts are
// accepted.
func floatData(t *tensor.Dense, name string) ([]float32, error) {
	switch data := t.Data().(type) {
	case []float32:
		return data, nil
	case float32:
		return []float32{data}, nil
	}
	return nil, errors.Wrapf(ErrInvalidAttribute, "%s must hold float32 data, got %v", name, t.Dtype())
}

// intData extracts the int32 backing of a dense tensor as []int.
func intData(t *tensor.Dense, name string) ([]int, error) {
	switch data := t.Data().(type) {
	case []int32:
		out := make([]int, len(data))
		for i, v := range data {
			out[i] = int(v)
		}
		return out, nil
	case int32:
		return []int{int(data)}, nil
	}
	return nil, errors.Wrapf(ErrInvalidAttribute, "%s must hold int32 data, got %v", name, t.Dtype())
}

// checkBoxes validates a [numBoxes, 6] box tensor and returns the box count
// and the flat coordinate data.
func checkBoxes(boxes *tensor.Dense) (int, []float32, error) {
	shape := boxes.Shape()
	if len(shape) != 2 {
		return 0, nil, errors.Wrapf(ErrInvalidRank, "boxes must be 2-D, got shape %v", shape)
	}
	if shape[1] != 6 {
		return 0, nil, errors.Wrapf(ErrShapeMismatch, "boxes must have 6 columns, got %d", shape[1])
	}
	data, err := floatData(boxes, "boxes")
	if err != nil {
		return 0, nil, err
	}
	return shape[0], data, nil
}

// checkScores validates a [numBoxes] score tensor against the box count.
func checkScores(scores *tensor.Dense, numBoxes int) ([]float32, error) {
	shape := scores.Shape()
	if len(shape) != 1 {
		return nil, errors.Wrapf(ErrInvalidRank, "scores must be 1-D, got shape %v", shape)
	}
	if shape[0] != numBoxes {
		return nil, errors.Wrapf(ErrShapeMismatch, "scores has %d entries for %d boxes", shape[0], numBoxes)
	}
	return floatData(scores, "scores")
}

// checkBoxBatch validates a [numBoxes] batch-index tensor and its values
// against the source batch size.
func checkBoxBatch(boxBatch *tensor.Dense, numBoxes, numBatches int) ([]int, error) {
	shape := boxBatch.Shape()
	if len(shape) != 1 {
		return nil, errors.Wrapf(ErrInvalidRank, "box batch indices must be 1-D, got shape %v", shape)
	}
	if shape[0] != numBoxes {
		return nil, errors.Wrapf(ErrShapeMismatch, "box batch indices has %d entries for %d boxes", shape[0], numBoxes)
	}
	data, err := intData(boxBatch, "box batch indices")
	if err != nil {
		return nil, err
	}
	for i, b := range data {
		if b < 0 || b >= numBatches {
			return nil, errors.Wrapf(ErrInvalidAttribute, "box %d references batch %d of %d", i, b, numBatches)
		}
	}
	return data, nil
}

// checkThreshold validates a unit-interval attribute such as an IoU
// threshold.
func checkThreshold(v float32, name string) error {
	if v < 0 || v > 1 {
		return errors.Wrapf(ErrInvalidAttribute, "%s must be in [0, 1], got %v", name, v)
	}
	return nil
}
