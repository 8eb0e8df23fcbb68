package suppress

import (
	"sort"
	"sync"

	"github.com/chewxy/math32"

	"github.com/nvr-ai/go-vol3d/geometry"
)

// BatchedOptions defines parameters for batched multi-class suppression.
type BatchedOptions struct {
	// MaxPerClass caps selections per class within a batch element.
	MaxPerClass int
	// TotalSize caps detections per batch element across all classes.
	TotalSize int
	// IoUThreshold is the overlap above which a box is suppressed within
	// its class.
	IoUThreshold float32
	// ScoreThreshold excludes boxes whose class score does not exceed it.
	ScoreThreshold float32
	// PadPerClass shrinks the output width to
	// min(TotalSize, MaxPerClass*numClasses) instead of always TotalSize.
	PadPerClass bool
	// ClipBoxes clamps every emitted coordinate into [0, 1].
	ClipBoxes bool
	// NumWorkers bounds goroutines processing batch elements in parallel.
	// Values < 2 run sequentially.
	NumWorkers int
}

// BatchedResult holds the per-batch merged detections in flat row-major
// buffers of a single shared Width.
type BatchedResult struct {
	// Boxes is [numBatches, Width, 6].
	Boxes []float32
	// Scores is [numBatches, Width].
	Scores []float32
	// Classes is [numBatches, Width]. Labels are float values holding
	// integral class indices; consumers reconstruct the integer label by
	// rounding.
	Classes []float32
	// Valid is the count of genuine (non-padding) detections per batch.
	Valid []int
	// Width is the shared per-batch output width.
	Width int
}

// resultCandidate is one class's surviving detection prior to the
// cross-class merge.
type resultCandidate struct {
	score float32
	class int
	box   [6]float32
}

// Batched runs hard Non-Maximum Suppression per class within each batch
// element, then merges all classes into one top-scoring list per batch.
//
// Arguments:
//   - boxes: Flat [numBatches, numBoxes, q, 6] buffer. q is 1 when the box
//     representation is shared across classes, numClasses otherwise.
//   - scores: Flat [numBatches, numBoxes, numClasses] buffer.
//
// Returns:
//   - A BatchedResult with clipped (optional), zero-padded detections and
//     per-batch valid counts.
func Batched(boxes, scores []float32, numBatches, numBoxes, q, numClasses int, opt BatchedOptions) BatchedResult {
	width := opt.TotalSize
	if opt.PadPerClass {
		width = min(opt.TotalSize, opt.MaxPerClass*numClasses)
	}

	out := BatchedResult{
		Boxes:   make([]float32, numBatches*width*6),
		Scores:  make([]float32, numBatches*width),
		Classes: make([]float32, numBatches*width),
		Valid:   make([]int, numBatches),
		Width:   width,
	}

	// Batch elements are independent and write to disjoint output regions.
	if opt.NumWorkers > 1 && numBatches > 1 {
		var wg sync.WaitGroup
		batches := make(chan int)
		for w := 0; w < opt.NumWorkers; w++ {
			wg.Add(1)
			go func() {
				defer wg.Done()
				for batch := range batches {
					suppressBatch(boxes, scores, batch, numBoxes, q, numClasses, opt, &out)
				}
			}()
		}
		for batch := 0; batch < numBatches; batch++ {
			batches <- batch
		}
		close(batches)
		wg.Wait()
		return out
	}

	for batch := 0; batch < numBatches; batch++ {
		suppressBatch(boxes, scores, batch, numBoxes, q, numClasses, opt, &out)
	}
	return out
}

// suppressBatch processes one batch element: per-class hard NMS, cross-class
// merge, clipping and padding into the batch's slice of the output buffers.
func suppressBatch(boxes, scores []float32, batch, numBoxes, q, numClasses int, opt BatchedOptions, out *BatchedResult) {
	batchBoxes := boxes[batch*numBoxes*q*6 : (batch+1)*numBoxes*q*6]
	batchScores := scores[batch*numBoxes*numClasses : (batch+1)*numBoxes*numClasses]

	merged := make([]resultCandidate, 0, numClasses*opt.MaxPerClass)

	classBoxes := make([]float32, numBoxes*6)
	for class := 0; class < numClasses; class++ {
		// Extract this class's score column and box set. Boxes are shared
		// across classes when q == 1.
		for box := 0; box < numBoxes; box++ {
			src := box * 6
			if q > 1 {
				src = (box*q + class) * 6
			}
			copy(classBoxes[box*6:box*6+6], batchBoxes[src:src+6])
		}

		type scored struct {
			index int
			score float32
		}
		candidates := make([]scored, 0, numBoxes)
		for box := 0; box < numBoxes; box++ {
			if s := batchScores[box*numClasses+class]; s > opt.ScoreThreshold {
				candidates = append(candidates, scored{index: box, score: s})
			}
		}
		sort.SliceStable(candidates, func(i, j int) bool {
			return candidates[i].score > candidates[j].score
		})

		// Hard-only greedy selection; at per-class scale the plain
		// backwards scan over selected boxes is enough.
		perClass := min(opt.MaxPerClass, numBoxes)
		selected := make([]int, 0, perClass)
		for _, cand := range candidates {
			if len(selected) >= perClass {
				break
			}
			keep := true
			for j := len(selected) - 1; j >= 0; j-- {
				iou := geometry.BoxAt(classBoxes, cand.index).IoU(geometry.BoxAt(classBoxes, selected[j]))
				if iou > opt.IoUThreshold {
					keep = false
					break
				}
			}
			if !keep {
				continue
			}
			selected = append(selected, cand.index)

			rc := resultCandidate{score: cand.score, class: class}
			copy(rc.box[:], classBoxes[cand.index*6:cand.index*6+6])
			merged = append(merged, rc)
		}
	}

	sort.SliceStable(merged, func(i, j int) bool {
		return merged[i].score > merged[j].score
	})

	detections := min(len(merged), out.Width)
	out.Valid[batch] = detections

	boxOut := out.Boxes[batch*out.Width*6:]
	scoreOut := out.Scores[batch*out.Width:]
	classOut := out.Classes[batch*out.Width:]
	for i := 0; i < detections; i++ {
		rc := merged[i]
		for c := 0; c < 6; c++ {
			v := rc.box[c]
			if opt.ClipBoxes {
				v = math32.Max(0, math32.Min(v, 1))
			}
			boxOut[i*6+c] = v
		}
		scoreOut[i] = rc.score
		classOut[i] = float32(rc.class)
	}
}
