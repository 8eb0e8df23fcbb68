package geometry

// SimilarityFunc scores the overlap of the boxes at two indices as a value
// in [0, 1]. The suppression engine makes no symmetry assumption, so a
// matrix-backed source may be asymmetric.
type SimilarityFunc func(i, j int) float32

// IoUSimilarity returns a SimilarityFunc backed by pairwise 3D IoU over a
// flat [N,6] coordinate buffer.
func IoUSimilarity(boxes []float32) SimilarityFunc {
	return func(i, j int) float32 {
		return BoxAt(boxes, i).IoU(BoxAt(boxes, j))
	}
}

// MatrixSimilarity returns a SimilarityFunc that ignores geometry and reads
// entry (i, j) from a precomputed row-major [N,N] overlap matrix. Callers
// that already have overlaps computed use this to skip the IoU arithmetic.
func MatrixSimilarity(overlaps []float32, n int) SimilarityFunc {
	return func(i, j int) float32 {
		return overlaps[i*n+j]
	}
}
