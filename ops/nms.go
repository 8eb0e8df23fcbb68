package ops

import (
	"math"

	"github.com/pkg/errors"
	"gorgonia.org/tensor"

	"github.com/nvr-ai/go-vol3d/geometry"
	"github.com/nvr-ai/go-vol3d/suppress"
)

// NonMaxSuppression3D greedily selects up to maxOutput boxes in descending
// score order, discarding any box whose 3D IoU with an already-selected box
// reaches iouThreshold. This is the hard-suppression surface; use
// NonMaxSuppression3DWithScores for soft NMS, padding and score output.
//
// Arguments:
//   - boxes: [numBoxes, 6] float32 tensor of (y1,x1,z1,y2,x2,z2) cuboids.
//   - scores: [numBoxes] float32 tensor.
//   - maxOutput: Maximum number of selections.
//   - iouThreshold: Overlap threshold in [0, 1].
//
// Returns:
//   - A 1-D int32 tensor of selected box indices in selection order.
func NonMaxSuppression3D(boxes, scores *tensor.Dense, maxOutput int, iouThreshold float32) (*tensor.Dense, error) {
	indices, _, _, err := NonMaxSuppression3DWithScores(boxes, scores, maxOutput, iouThreshold,
		float32(math.Inf(-1)), 0, false)
	return indices, err
}

// NonMaxSuppression3DWithScores is the full single-class suppression
// surface: Gaussian soft decay when softNMSSigma > 0, a score floor, and
// optional zero-padding of the outputs up to maxOutput.
//
// Returns:
//   - indices: 1-D int32 tensor of selections (padded if requested).
//   - scores: 1-D float32 tensor of final, possibly decayed scores.
//   - valid: Count of genuine (non-padding) selections.
func NonMaxSuppression3DWithScores(boxes, scores *tensor.Dense, maxOutput int, iouThreshold, scoreThreshold, softNMSSigma float32, padToMaxOutput bool) (*tensor.Dense, *tensor.Dense, int, error) {
	if maxOutput < 0 {
		return nil, nil, 0, errors.Wrapf(ErrInvalidAttribute, "max output size must be >= 0, got %d", maxOutput)
	}
	if err := checkThreshold(iouThreshold, "iou threshold"); err != nil {
		return nil, nil, 0, err
	}
	if softNMSSigma < 0 {
		return nil, nil, 0, errors.Wrapf(ErrInvalidAttribute, "soft nms sigma must be >= 0, got %v", softNMSSigma)
	}
	numBoxes, boxData, err := checkBoxes(boxes)
	if err != nil {
		return nil, nil, 0, err
	}
	scoreData, err := checkScores(scores, numBoxes)
	if err != nil {
		return nil, nil, 0, err
	}

	res := suppress.SingleClass(scoreData, geometry.IoUSimilarity(boxData), suppress.Options{
		MaxOutput:           maxOutput,
		SimilarityThreshold: iouThreshold,
		ScoreThreshold:      scoreThreshold,
		SoftNMSSigma:        softNMSSigma,
		PadToMaxOutput:      padToMaxOutput,
	})

	indicesOut, scoresOut := selectionTensors(res)
	return indicesOut, scoresOut, res.Valid, nil
}

// NonMaxSuppression3DWithOverlaps runs hard suppression against a
// precomputed [numBoxes, numBoxes] overlap matrix instead of box geometry.
// The matrix need not be symmetric; entry (i, j) scores candidate i against
// selected box j. Because overlap values carry whatever scale the caller
// chose, overlapThreshold is deliberately not range-checked, unlike the
// IoU thresholds elsewhere.
func NonMaxSuppression3DWithOverlaps(overlaps, scores *tensor.Dense, maxOutput int, overlapThreshold, scoreThreshold float32) (*tensor.Dense, error) {
	if maxOutput < 0 {
		return nil, errors.Wrapf(ErrInvalidAttribute, "max output size must be >= 0, got %d", maxOutput)
	}
	shape := overlaps.Shape()
	if len(shape) != 2 {
		return nil, errors.Wrapf(ErrInvalidRank, "overlaps must be 2-D, got shape %v", shape)
	}
	if shape[0] != shape[1] {
		return nil, errors.Wrapf(ErrShapeMismatch, "overlaps must be square, got shape %v", shape)
	}
	numBoxes := shape[0]
	overlapData, err := floatData(overlaps, "overlaps")
	if err != nil {
		return nil, err
	}
	scoreData, err := checkScores(scores, numBoxes)
	if err != nil {
		return nil, err
	}

	res := suppress.SingleClass(scoreData, geometry.MatrixSimilarity(overlapData, numBoxes), suppress.Options{
		MaxOutput:           maxOutput,
		SimilarityThreshold: overlapThreshold,
		ScoreThreshold:      scoreThreshold,
	})

	indicesOut, _ := selectionTensors(res)
	return indicesOut, nil
}

// CombinedNMSOptions mirrors suppress.BatchedOptions at the tensor boundary.
type CombinedNMSOptions struct {
	MaxPerClass    int
	TotalSize      int
	IoUThreshold   float32
	ScoreThreshold float32
	PadPerClass    bool
	ClipBoxes      bool
	NumWorkers     int
}

// CombinedNonMaxSuppression3D runs per-class hard suppression over a batch
// and merges each batch element's classes into one top-scoring detection
// list.
//
// Arguments:
//   - boxes: [numBatches, numBoxes, q, 6] float32 tensor; q is 1 for a
//     box representation shared across classes, numClasses otherwise.
//   - scores: [numBatches, numBoxes, numClasses] float32 tensor.
//
// Returns:
//   - boxes [numBatches, width, 6], scores [numBatches, width], classes
//     [numBatches, width] (float-encoded labels; round to recover the
//     integer class), and validCounts [numBatches] int32 tensors.
func CombinedNonMaxSuppression3D(boxes, scores *tensor.Dense, opt CombinedNMSOptions) (*tensor.Dense, *tensor.Dense, *tensor.Dense, *tensor.Dense, error) {
	if opt.MaxPerClass < 0 {
		return nil, nil, nil, nil, errors.Wrapf(ErrInvalidAttribute,
			"max detections per class must be >= 0, got %d", opt.MaxPerClass)
	}
	if opt.TotalSize <= 0 {
		return nil, nil, nil, nil, errors.Wrapf(ErrInvalidAttribute,
			"total detection size must be > 0, got %d", opt.TotalSize)
	}
	if err := checkThreshold(opt.IoUThreshold, "iou threshold"); err != nil {
		return nil, nil, nil, nil, err
	}

	boxShape := boxes.Shape()
	if len(boxShape) != 4 {
		return nil, nil, nil, nil, errors.Wrapf(ErrInvalidRank, "boxes must be 4-D, got shape %v", boxShape)
	}
	scoreShape := scores.Shape()
	if len(scoreShape) != 3 {
		return nil, nil, nil, nil, errors.Wrapf(ErrInvalidRank, "scores must be 3-D, got shape %v", scoreShape)
	}

	numBatches, numBoxes, q := boxShape[0], boxShape[1], boxShape[2]
	numClasses := scoreShape[2]
	if boxShape[3] != 6 {
		return nil, nil, nil, nil, errors.Wrapf(ErrShapeMismatch, "boxes must have 6 columns, got %d", boxShape[3])
	}
	if scoreShape[0] != numBatches || scoreShape[1] != numBoxes {
		return nil, nil, nil, nil, errors.Wrapf(ErrShapeMismatch,
			"scores shape %v does not match boxes shape %v", scoreShape, boxShape)
	}
	if q != 1 && q != numClasses {
		return nil, nil, nil, nil, errors.Wrapf(ErrShapeMismatch,
			"third dimension of boxes must be 1 or the class count, got %d for %d classes", q, numClasses)
	}

	boxData, err := floatData(boxes, "boxes")
	if err != nil {
		return nil, nil, nil, nil, err
	}
	scoreData, err := floatData(scores, "scores")
	if err != nil {
		return nil, nil, nil, nil, err
	}

	res := suppress.Batched(boxData, scoreData, numBatches, numBoxes, q, numClasses, suppress.BatchedOptions{
		MaxPerClass:    opt.MaxPerClass,
		TotalSize:      opt.TotalSize,
		IoUThreshold:   opt.IoUThreshold,
		ScoreThreshold: opt.ScoreThreshold,
		PadPerClass:    opt.PadPerClass,
		ClipBoxes:      opt.ClipBoxes,
		NumWorkers:     opt.NumWorkers,
	})

	valid := make([]int32, numBatches)
	for i, v := range res.Valid {
		valid[i] = int32(v)
	}

	boxesOut := tensor.New(tensor.WithShape(numBatches, res.Width, 6), tensor.WithBacking(res.Boxes))
	scoresOut := tensor.New(tensor.WithShape(numBatches, res.Width), tensor.WithBacking(res.Scores))
	classesOut := tensor.New(tensor.WithShape(numBatches, res.Width), tensor.WithBacking(res.Classes))
	validOut := tensor.New(tensor.WithShape(numBatches), tensor.WithBacking(valid))
	return boxesOut, scoresOut, classesOut, validOut, nil
}

// selectionTensors materializes a single-class result as index and score
// tensors.
func selectionTensors(res suppress.Result) (*tensor.Dense, *tensor.Dense) {
	indices := make([]int32, len(res.Indices))
	for i, idx := range res.Indices {
		indices[i] = int32(idx)
	}
	indicesOut := tensor.New(tensor.WithShape(len(indices)), tensor.WithBacking(indices))
	scoresOut := tensor.New(tensor.WithShape(len(res.Scores)), tensor.WithBacking(res.Scores))
	return indicesOut, scoresOut
}
