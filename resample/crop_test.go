package resample

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// cubeVolume returns a single-batch single-channel 2x2x2 volume with values
// 0..7 in row-major (y, x, z) order.
func cubeVolume() ([]float32, VolumeShape) {
	return []float32{0, 1, 2, 3, 4, 5, 6, 7}, VolumeShape{Batch: 1, Height: 2, Width: 2, Depth: 2, Channels: 1}
}

// TestCropAndResize_NearestIdentity reproduces the source volume exactly
// when the crop shape matches the source and the box spans the full volume.
func TestCropAndResize_NearestIdentity(t *testing.T) {
	volume, vs := cubeVolume()
	boxes := []float32{0, 0, 0, 1, 1, 1}

	crops := CropAndResize(volume, vs, boxes, []int{0}, CropShape{2, 2, 2}, Options{Method: Nearest})

	assert.Equal(t, volume, crops, "full-span nearest crop is the identity")
}

// TestCropAndResize_TrilinearIdentity hits integer sample coordinates, where
// trilinear blending degenerates to exact reads.
func TestCropAndResize_TrilinearIdentity(t *testing.T) {
	volume, vs := cubeVolume()
	boxes := []float32{0, 0, 0, 1, 1, 1}

	crops := CropAndResize(volume, vs, boxes, []int{0}, CropShape{2, 2, 2}, Options{Method: Trilinear})

	assert.Equal(t, volume, crops)
}

// TestCropAndResize_TrilinearMidpoints upsamples a 2-voxel axis to 3 samples
// and expects the exact linear midpoint.
func TestCropAndResize_TrilinearMidpoints(t *testing.T) {
	volume := []float32{0, 10}
	vs := VolumeShape{Batch: 1, Height: 2, Width: 1, Depth: 1, Channels: 1}
	boxes := []float32{0, 0, 0, 1, 1, 1}

	crops := CropAndResize(volume, vs, boxes, []int{0}, CropShape{3, 1, 1}, Options{Method: Trilinear})

	assert.Equal(t, []float32{0, 5, 10}, crops)
}

// TestCropAndResize_SingleSampleAxis verifies the midpoint rule when a crop
// axis has extent 1.
func TestCropAndResize_SingleSampleAxis(t *testing.T) {
	volume := []float32{0, 10}
	vs := VolumeShape{Batch: 1, Height: 2, Width: 1, Depth: 1, Channels: 1}
	boxes := []float32{0, 0, 0, 1, 1, 1}

	crops := CropAndResize(volume, vs, boxes, []int{0}, CropShape{1, 1, 1}, Options{Method: Trilinear})

	require.Len(t, crops, 1)
	assert.InDelta(t, 5.0, crops[0], 1e-6, "a single sample lands on the span midpoint")
}

// TestCropAndResize_Extrapolation checks the per-axis out-of-range rule:
// one bad axis fills the position regardless of the other axes.
func TestCropAndResize_Extrapolation(t *testing.T) {
	volume, vs := cubeVolume()
	// z spans -1..2 in normalized coordinates; with 3 depth samples the
	// continuous z coordinates are -1, 0.5 and 2, so only the middle
	// sample is real.
	boxes := []float32{0, 0, -1, 1, 1, 2}
	opt := Options{Method: Trilinear, ExtrapolationValue: -1}

	crops := CropAndResize(volume, vs, boxes, []int{0}, CropShape{1, 1, 3}, opt)

	require.Len(t, crops, 3)
	assert.Equal(t, float32(-1), crops[0], "z=-1 is outside the source")
	assert.Equal(t, float32(-1), crops[2], "z=2 is outside the source")
	assert.NotEqual(t, float32(-1), crops[1], "z=0.5 is a real sample")
}

// TestCropAndResize_ExtrapolationShortCircuit: an out-of-range height fills
// the whole row even though width and depth are valid.
func TestCropAndResize_ExtrapolationShortCircuit(t *testing.T) {
	volume, vs := cubeVolume()
	boxes := []float32{0, 0, 0, 2, 1, 1}
	opt := Options{Method: Nearest, ExtrapolationValue: 9}

	crops := CropAndResize(volume, vs, boxes, []int{0}, CropShape{2, 2, 2}, opt)

	// y=1 maps to continuous coordinate 2, past the last row index 1.
	assert.Equal(t, []float32{9, 9, 9, 9}, crops[4:8], "the whole out-of-range row is extrapolated")
	assert.Equal(t, volume[:4], crops[:4], "the in-range row is sampled normally")
}

// TestCropAndResize_BatchIndex crops different boxes out of different batch
// elements.
func TestCropAndResize_BatchIndex(t *testing.T) {
	// Two batch elements of a 1x1x1 single-channel volume.
	volume := []float32{3, 7}
	vs := VolumeShape{Batch: 2, Height: 1, Width: 1, Depth: 1, Channels: 1}
	boxes := []float32{
		0, 0, 0, 1, 1, 1,
		0, 0, 0, 1, 1, 1,
	}

	crops := CropAndResize(volume, vs, boxes, []int{1, 0}, CropShape{1, 1, 1}, Options{Method: Nearest})

	assert.Equal(t, []float32{7, 3}, crops, "each crop reads its own batch element")
}

// TestCropAndResize_Channels preserves the channel dimension.
func TestCropAndResize_Channels(t *testing.T) {
	// 1x1x1x1 volume with 3 channels.
	volume := []float32{1, 2, 3}
	vs := VolumeShape{Batch: 1, Height: 1, Width: 1, Depth: 1, Channels: 3}
	boxes := []float32{0, 0, 0, 1, 1, 1}

	crops := CropAndResize(volume, vs, boxes, []int{0}, CropShape{1, 1, 1}, Options{Method: Trilinear})

	assert.Equal(t, []float32{1, 2, 3}, crops)
}

// TestCropAndResize_Parallel must agree with the sequential path exactly.
func TestCropAndResize_Parallel(t *testing.T) {
	volume, vs := gradFixtureVolume()
	boxes := []float32{
		0.1, 0.15, 0.2, 0.8, 0.7, 0.9,
		0, 0, 0, 1, 1, 1,
		-0.2, 0.1, 0.3, 1.3, 0.9, 0.8,
	}
	boxBatch := []int{0, 0, 0}
	cs := CropShape{3, 3, 3}

	sequential := CropAndResize(volume, vs, boxes, boxBatch, cs, Options{Method: Trilinear})
	parallel := CropAndResize(volume, vs, boxes, boxBatch, cs, Options{Method: Trilinear, NumWorkers: 4})

	assert.Equal(t, sequential, parallel, "worker count must not change results")
}

func BenchmarkCropAndResizeTrilinear(b *testing.B) {
	vs := VolumeShape{Batch: 1, Height: 32, Width: 32, Depth: 32, Channels: 4}
	volume := make([]float32, vs.Len())
	for i := range volume {
		volume[i] = float32(i%97) / 97
	}
	n := 16
	boxes := make([]float32, 0, n*6)
	boxBatch := make([]int, n)
	for i := 0; i < n; i++ {
		o := float32(i) / float32(2*n)
		boxes = append(boxes, o, o, o, o+0.5, o+0.5, o+0.5)
	}
	opt := Options{Method: Trilinear}
	cs := CropShape{8, 8, 8}

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		CropAndResize(volume, vs, boxes, boxBatch, cs, opt)
	}
}
