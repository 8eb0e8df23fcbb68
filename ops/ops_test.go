package ops

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorgonia.org/tensor"

	"github.com/nvr-ai/go-vol3d/resample"
)

func denseF32(data []float32, shape ...int) *tensor.Dense {
	return tensor.New(tensor.WithShape(shape...), tensor.WithBacking(data))
}

func denseI32(data []int32, shape ...int) *tensor.Dense {
	return tensor.New(tensor.WithShape(shape...), tensor.WithBacking(data))
}

func twoIdenticalBoxes() (*tensor.Dense, *tensor.Dense) {
	boxes := denseF32([]float32{
		0, 0, 0, 1, 1, 1,
		0, 0, 0, 1, 1, 1,
	}, 2, 6)
	scores := denseF32([]float32{0.9, 0.8}, 2)
	return boxes, scores
}

// TestNonMaxSuppression3D runs the distilled hard-suppression surface.
func TestNonMaxSuppression3D(t *testing.T) {
	boxes, scores := twoIdenticalBoxes()

	indices, err := NonMaxSuppression3D(boxes, scores, 2, 0.5)
	require.NoError(t, err)

	assert.Equal(t, []int32{0}, indices.Data(), "the duplicate box is suppressed")
}

// TestNonMaxSuppression3DWithScores exercises padding, valid count and
// score output.
func TestNonMaxSuppression3DWithScores(t *testing.T) {
	boxes, scores := twoIdenticalBoxes()

	indices, outScores, valid, err := NonMaxSuppression3DWithScores(boxes, scores, 3, 0.5, -1, 0, true)
	require.NoError(t, err)

	assert.Equal(t, 1, valid)
	assert.Equal(t, tensor.Shape{3}, indices.Shape())
	assert.Equal(t, []int32{0, 0, 0}, indices.Data())
	assert.Equal(t, []float32{0.9, 0, 0}, outScores.Data())
}

// TestNonMaxSuppression3DWithOverlaps drives suppression from a matrix.
func TestNonMaxSuppression3DWithOverlaps(t *testing.T) {
	overlaps := denseF32([]float32{
		1.0, 0.9, 0.0,
		0.9, 1.0, 0.0,
		0.0, 0.0, 1.0,
	}, 3, 3)
	scores := denseF32([]float32{0.9, 0.8, 0.7}, 3)

	indices, err := NonMaxSuppression3DWithOverlaps(overlaps, scores, 3, 0.5, -1)
	require.NoError(t, err)

	assert.Equal(t, []int32{0, 2}, indices.Data())
}

// TestCombinedNonMaxSuppression3D checks shapes and the merged content for
// a one-batch two-class fixture.
func TestCombinedNonMaxSuppression3D(t *testing.T) {
	boxes := denseF32([]float32{
		0, 0, 0, 1, 1, 1,
		0, 0, 0, 1, 1, 1,
		2, 2, 2, 3, 3, 3,
	}, 1, 3, 1, 6)
	scores := denseF32([]float32{
		0.9, 0.1,
		0.8, 0.75,
		0.3, 0.6,
	}, 1, 3, 2)

	outBoxes, outScores, outClasses, valid, err := CombinedNonMaxSuppression3D(boxes, scores, CombinedNMSOptions{
		MaxPerClass:    2,
		TotalSize:      3,
		IoUThreshold:   0.5,
		ScoreThreshold: 0.2,
		ClipBoxes:      true,
	})
	require.NoError(t, err)

	assert.Equal(t, tensor.Shape{1, 3, 6}, outBoxes.Shape())
	assert.Equal(t, tensor.Shape{1, 3}, outScores.Shape())
	assert.Equal(t, []float32{0.9, 0.75, 0.6}, outScores.Data())
	assert.Equal(t, []float32{0, 1, 1}, outClasses.Data())
	assert.Equal(t, []int32{3}, valid.Data())

	// Every clipped coordinate stays inside the unit volume.
	for _, v := range outBoxes.Data().([]float32) {
		assert.GreaterOrEqual(t, v, float32(0))
		assert.LessOrEqual(t, v, float32(1))
	}
}

// TestCombinedNonMaxSuppression3D_ZeroPerClass: a zero per-class cap is a
// legal degenerate configuration and yields all-padding output.
func TestCombinedNonMaxSuppression3D_ZeroPerClass(t *testing.T) {
	boxes := denseF32([]float32{
		0, 0, 0, 1, 1, 1,
		2, 2, 2, 3, 3, 3,
	}, 1, 2, 1, 6)
	scores := denseF32([]float32{
		0.9, 0.1,
		0.3, 0.6,
	}, 1, 2, 2)

	outBoxes, outScores, _, valid, err := CombinedNonMaxSuppression3D(boxes, scores, CombinedNMSOptions{
		MaxPerClass:  0,
		TotalSize:    2,
		IoUThreshold: 0.5,
	})
	require.NoError(t, err)

	assert.Equal(t, []int32{0}, valid.Data())
	assert.Equal(t, make([]float32, 2*6), outBoxes.Data())
	assert.Equal(t, make([]float32, 2), outScores.Data())
}

func identityCropInputs() (*tensor.Dense, *tensor.Dense, *tensor.Dense) {
	volume := denseF32([]float32{0, 1, 2, 3, 4, 5, 6, 7}, 1, 2, 2, 2, 1)
	boxes := denseF32([]float32{0, 0, 0, 1, 1, 1}, 1, 6)
	boxBatch := denseI32([]int32{0}, 1)
	return volume, boxes, boxBatch
}

// TestCropAndResize3D reproduces the source volume through a full-span
// nearest crop.
func TestCropAndResize3D(t *testing.T) {
	volume, boxes, boxBatch := identityCropInputs()

	crops, err := CropAndResize3D(volume, boxes, boxBatch, [3]int{2, 2, 2},
		resample.Options{Method: resample.Nearest})
	require.NoError(t, err)

	assert.Equal(t, tensor.Shape{1, 2, 2, 2, 1}, crops.Shape())
	assert.Equal(t, volume.Data(), crops.Data())
}

// TestCropAndResize3DGradVolume checks output shape and gradient mass for a
// full-span crop.
func TestCropAndResize3DGradVolume(t *testing.T) {
	_, boxes, boxBatch := identityCropInputs()
	grads := denseF32([]float32{1, 1, 1, 1, 1, 1, 1, 1}, 1, 2, 2, 2, 1)

	out, err := CropAndResize3DGradVolume(grads, boxes, boxBatch, [5]int{1, 2, 2, 2, 1},
		resample.Options{Method: resample.Trilinear})
	require.NoError(t, err)

	assert.Equal(t, tensor.Shape{1, 2, 2, 2, 1}, out.Shape())
	var sum float32
	for _, v := range out.Data().([]float32) {
		sum += v
	}
	assert.InDelta(t, 8.0, float64(sum), 1e-5, "8 real samples deposit 8 units")
}

// TestCropAndResize3DGradBoxes checks the output shape; numeric validation
// of the analytic derivative lives in the resample package tests.
func TestCropAndResize3DGradBoxes(t *testing.T) {
	volume, boxes, boxBatch := identityCropInputs()
	grads := denseF32([]float32{1, 1, 1, 1, 1, 1, 1, 1}, 1, 2, 2, 2, 1)

	out, err := CropAndResize3DGradBoxes(grads, volume, boxes, boxBatch,
		resample.Options{Method: resample.Trilinear})
	require.NoError(t, err)

	assert.Equal(t, tensor.Shape{1, 6}, out.Shape())
}

// TestValidationFailures triggers every error kind; each failing call must
// return before producing any output tensor.
func TestValidationFailures(t *testing.T) {
	volume, boxes, boxBatch := identityCropInputs()
	_, scores := twoIdenticalBoxes()
	okOpt := resample.Options{Method: resample.Trilinear}

	t.Run("boxes wrong rank", func(t *testing.T) {
		bad := denseF32(make([]float32, 12), 2, 1, 6)
		indices, err := NonMaxSuppression3D(bad, scores, 2, 0.5)
		assert.ErrorIs(t, err, ErrInvalidRank)
		assert.Nil(t, indices)
	})

	t.Run("boxes wrong columns", func(t *testing.T) {
		bad := denseF32(make([]float32, 10), 2, 5)
		_, err := NonMaxSuppression3D(bad, scores, 2, 0.5)
		assert.ErrorIs(t, err, ErrShapeMismatch)
	})

	t.Run("scores count mismatch", func(t *testing.T) {
		twoBoxes, _ := twoIdenticalBoxes()
		shortScores := denseF32([]float32{0.9}, 1)
		_, err := NonMaxSuppression3D(twoBoxes, shortScores, 2, 0.5)
		assert.ErrorIs(t, err, ErrShapeMismatch)
	})

	t.Run("iou threshold out of range", func(t *testing.T) {
		twoBoxes, twoScores := twoIdenticalBoxes()
		_, err := NonMaxSuppression3D(twoBoxes, twoScores, 2, 1.5)
		assert.ErrorIs(t, err, ErrInvalidAttribute)
	})

	t.Run("negative sigma", func(t *testing.T) {
		twoBoxes, twoScores := twoIdenticalBoxes()
		_, _, _, err := NonMaxSuppression3DWithScores(twoBoxes, twoScores, 2, 0.5, -1, -0.1, false)
		assert.ErrorIs(t, err, ErrInvalidAttribute)
	})

	t.Run("overlaps not square", func(t *testing.T) {
		overlaps := denseF32(make([]float32, 6), 2, 3)
		_, err := NonMaxSuppression3DWithOverlaps(overlaps, scores, 2, 0.5, -1)
		assert.ErrorIs(t, err, ErrShapeMismatch)
	})

	t.Run("combined negative max per class", func(t *testing.T) {
		combinedBoxes := denseF32(make([]float32, 3*6), 1, 3, 1, 6)
		combinedScores := denseF32(make([]float32, 6), 1, 3, 2)
		_, _, _, _, err := CombinedNonMaxSuppression3D(combinedBoxes, combinedScores, CombinedNMSOptions{
			MaxPerClass: -1, TotalSize: 1, IoUThreshold: 0.5,
		})
		assert.ErrorIs(t, err, ErrInvalidAttribute)
	})

	t.Run("combined zero total size", func(t *testing.T) {
		combinedBoxes := denseF32(make([]float32, 3*6), 1, 3, 1, 6)
		combinedScores := denseF32(make([]float32, 6), 1, 3, 2)
		_, _, _, _, err := CombinedNonMaxSuppression3D(combinedBoxes, combinedScores, CombinedNMSOptions{
			MaxPerClass: 1, TotalSize: 0, IoUThreshold: 0.5,
		})
		assert.ErrorIs(t, err, ErrInvalidAttribute)
	})

	t.Run("combined bad q", func(t *testing.T) {
		badBoxes := denseF32(make([]float32, 3*3*6), 1, 3, 3, 6)
		combinedScores := denseF32(make([]float32, 6), 1, 3, 2)
		_, _, _, _, err := CombinedNonMaxSuppression3D(badBoxes, combinedScores, CombinedNMSOptions{
			MaxPerClass: 1, TotalSize: 1, IoUThreshold: 0.5,
		})
		assert.ErrorIs(t, err, ErrShapeMismatch)
	})

	t.Run("volume wrong rank", func(t *testing.T) {
		bad := denseF32(make([]float32, 8), 2, 2, 2)
		_, err := CropAndResize3D(bad, boxes, boxBatch, [3]int{1, 1, 1}, okOpt)
		assert.ErrorIs(t, err, ErrInvalidRank)
	})

	t.Run("non-positive crop dimension", func(t *testing.T) {
		_, err := CropAndResize3D(volume, boxes, boxBatch, [3]int{0, 1, 1}, okOpt)
		assert.ErrorIs(t, err, ErrNonPositiveDimension)
	})

	t.Run("non-positive volume dimension", func(t *testing.T) {
		grads := denseF32(make([]float32, 8), 1, 2, 2, 2, 1)
		_, err := CropAndResize3DGradVolume(grads, boxes, boxBatch, [5]int{1, 0, 2, 2, 1}, okOpt)
		assert.ErrorIs(t, err, ErrNonPositiveDimension)
	})

	t.Run("unknown method", func(t *testing.T) {
		_, err := CropAndResize3D(volume, boxes, boxBatch, [3]int{1, 1, 1},
			resample.Options{Method: resample.Method(42)})
		assert.ErrorIs(t, err, ErrInvalidAttribute)
	})

	t.Run("batch index out of range", func(t *testing.T) {
		badBatch := denseI32([]int32{5}, 1)
		_, err := CropAndResize3D(volume, boxes, badBatch, [3]int{1, 1, 1}, okOpt)
		assert.ErrorIs(t, err, ErrInvalidAttribute)
	})

	t.Run("grads box count mismatch", func(t *testing.T) {
		grads := denseF32(make([]float32, 16), 2, 2, 2, 2, 1)
		_, err := CropAndResize3DGradVolume(grads, boxes, boxBatch, [5]int{1, 2, 2, 2, 1}, okOpt)
		assert.ErrorIs(t, err, ErrShapeMismatch)
	})
}
