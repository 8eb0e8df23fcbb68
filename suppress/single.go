// Package suppress - Non-Maximum Suppression engines for volumetric detections.
package suppress

import (
	"container/heap"

	"github.com/chewxy/math32"

	"github.com/nvr-ai/go-vol3d/geometry"
)

// Options defines parameters for single-class Non-Maximum Suppression.
type Options struct {
	// MaxOutput caps the number of selected boxes.
	MaxOutput int
	// SimilarityThreshold is the overlap at or above which a candidate is
	// hard-suppressed by an already-selected box.
	SimilarityThreshold float32
	// ScoreThreshold excludes boxes whose score does not exceed it, both at
	// seeding time and after soft decay.
	ScoreThreshold float32
	// SoftNMSSigma enables soft suppression when > 0: instead of discarding
	// overlapping candidates outright, their scores decay by a Gaussian
	// weight of the overlap. 0 selects classic hard NMS.
	SoftNMSSigma float32
	// PadToMaxOutput zero-pads indices and scores up to MaxOutput entries.
	PadToMaxOutput bool
}

// Result holds the outcome of a single-class suppression run. Indices are
// ordered by selection time; Valid counts the genuine (non-padding) entries.
type Result struct {
	Indices []int
	Scores  []float32
	Valid   int
}

// candidate is a box under consideration. suppressBegin records how many
// previously-selected boxes this candidate has already been compared
// against, so no (candidate, selected) pair is ever compared twice.
type candidate struct {
	index         int
	score         float32
	suppressBegin int
}

// candidateHeap is a max-heap over (score, index). On equal scores the
// larger box index ranks strictly lower, a deterministic tie-break.
type candidateHeap []candidate

func (h candidateHeap) Len() int { return len(h) }

func (h candidateHeap) Less(i, j int) bool {
	if h[i].score == h[j].score {
		return h[i].index < h[j].index
	}
	return h[i].score > h[j].score
}

func (h candidateHeap) Swap(i, j int) { h[i], h[j] = h[j], h[i] }

func (h *candidateHeap) Push(x any) { *h = append(*h, x.(candidate)) }

func (h *candidateHeap) Pop() any {
	old := *h
	n := len(old)
	c := old[n-1]
	*h = old[:n-1]
	return c
}

// SingleClass runs greedy soft/hard Non-Maximum Suppression over one score
// vector and one similarity source.
//
// The engine pops candidates from a max-priority queue and compares each
// against previously selected boxes in reverse selection order, skipping
// boxes recorded by suppressBegin from an earlier pop. Under hard NMS
// (SoftNMSSigma == 0) any similarity at or above the threshold discards the
// candidate. Under soft NMS each comparison multiplies the candidate's score
// by exp(-similarity² / (2·sigma²)) while the similarity stays below the
// threshold; a candidate whose score decayed but still exceeds the score
// threshold is re-inserted for a later round instead of being selected
// immediately. Every (candidate, selected) pair is compared at most once,
// bounding total comparisons by O(N·K).
//
// Arguments:
//   - scores: One score per box; boxes whose score does not exceed
//     opt.ScoreThreshold are never considered.
//   - similarity: Overlap source over box indices, typically
//     geometry.IoUSimilarity or geometry.MatrixSimilarity.
//   - opt: Engine parameters.
//
// Returns:
//   - A Result with up to opt.MaxOutput selected indices in selection order
//     and their final (possibly decayed) scores.
func SingleClass(scores []float32, similarity geometry.SimilarityFunc, opt Options) Result {
	h := make(candidateHeap, 0, len(scores))
	for i, s := range scores {
		if s > opt.ScoreThreshold {
			h = append(h, candidate{index: i, score: s})
		}
	}
	heap.Init(&h)

	var scale float32
	if opt.SoftNMSSigma > 0 {
		scale = -0.5 / (opt.SoftNMSSigma * opt.SoftNMSSigma)
	}

	suppressWeight := func(sim float32) float32 {
		if sim >= opt.SimilarityThreshold {
			return 0
		}
		if scale == 0 {
			return 1
		}
		return math32.Exp(scale * sim * sim)
	}

	selected := make([]int, 0, opt.MaxOutput)
	selectedScores := make([]float32, 0, opt.MaxOutput)

	for len(selected) < opt.MaxOutput && h.Len() > 0 {
		next := heap.Pop(&h).(candidate)
		original := next.score

		// Overlapping boxes tend to have similar scores, so walking the
		// selected list backwards finds the likely suppressor quickly.
		hardSuppressed := false
		for j := len(selected) - 1; j >= next.suppressBegin; j-- {
			sim := similarity(next.index, selected[j])
			next.score *= suppressWeight(sim)
			if sim >= opt.SimilarityThreshold {
				hardSuppressed = true
				break
			}
			if next.score <= opt.ScoreThreshold {
				break
			}
		}

		// Whatever happened above, this candidate has now been measured
		// against everything selected so far.
		next.suppressBegin = len(selected)

		if hardSuppressed {
			continue
		}
		switch {
		case next.score == original:
			// No decay occurred: select in this pop.
			selected = append(selected, next.index)
			selectedScores = append(selectedScores, next.score)
		case next.score > opt.ScoreThreshold:
			// Soft decay occurred but the candidate survives; requeue it to
			// compete against boxes selected after this point.
			heap.Push(&h, next)
		}
	}

	valid := len(selected)
	if opt.PadToMaxOutput {
		for len(selected) < opt.MaxOutput {
			selected = append(selected, 0)
			selectedScores = append(selectedScores, 0)
		}
	}

	return Result{Indices: selected, Scores: selectedScores, Valid: valid}
}
