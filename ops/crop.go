package ops

import (
	"github.com/pkg/errors"
	"gorgonia.org/tensor"

	"github.com/nvr-ai/go-vol3d/resample"
)

// checkMethod rejects sampling methods other than the two defined ones.
func checkMethod(m resample.Method) error {
	if m != resample.Trilinear && m != resample.Nearest {
		return errors.Wrapf(ErrInvalidAttribute, "method must be trilinear or nearest, got %v", m)
	}
	return nil
}

// checkVolumeShape validates a 5-D volume shape's spatial dimensions.
func checkVolumeShape(shape []int, name string) (resample.VolumeShape, error) {
	if len(shape) != 5 {
		return resample.VolumeShape{}, errors.Wrapf(ErrInvalidRank, "%s must be 5-D, got shape %v", name, shape)
	}
	vs := resample.VolumeShape{
		Batch:    shape[0],
		Height:   shape[1],
		Width:    shape[2],
		Depth:    shape[3],
		Channels: shape[4],
	}
	if vs.Height <= 0 || vs.Width <= 0 || vs.Depth <= 0 {
		return resample.VolumeShape{}, errors.Wrapf(ErrNonPositiveDimension,
			"%s spatial dimensions must be positive, got (%d, %d, %d)", name, vs.Height, vs.Width, vs.Depth)
	}
	return vs, nil
}

// checkCropShape validates a target crop extent.
func checkCropShape(cropSize [3]int) (resample.CropShape, error) {
	cs := resample.CropShape{Height: cropSize[0], Width: cropSize[1], Depth: cropSize[2]}
	if cs.Height <= 0 || cs.Width <= 0 || cs.Depth <= 0 {
		return resample.CropShape{}, errors.Wrapf(ErrNonPositiveDimension,
			"crop dimensions must be positive, got (%d, %d, %d)", cs.Height, cs.Width, cs.Depth)
	}
	return cs, nil
}

// CropAndResize3D resamples a fixed-size crop per box out of a 5-D feature
// volume, by trilinear blending or nearest-voxel copying.
//
// Arguments:
//   - volume: [batch, height, width, depth, channel] float32 tensor.
//   - boxes: [numBoxes, 6] float32 tensor in normalized volume coordinates.
//   - boxBatch: [numBoxes] int32 tensor of source batch indices.
//   - cropSize: Target (height, width, depth) of every crop.
//   - opt: Sampling method, extrapolation value and parallelism.
//
// Returns:
//   - A [numBoxes, cropH, cropW, cropD, channel] float32 tensor.
func CropAndResize3D(volume, boxes, boxBatch *tensor.Dense, cropSize [3]int, opt resample.Options) (*tensor.Dense, error) {
	if err := checkMethod(opt.Method); err != nil {
		return nil, err
	}
	vs, err := checkVolumeShape(volume.Shape(), "volume")
	if err != nil {
		return nil, err
	}
	cs, err := checkCropShape(cropSize)
	if err != nil {
		return nil, err
	}
	numBoxes, boxData, err := checkBoxes(boxes)
	if err != nil {
		return nil, err
	}
	batchIdx, err := checkBoxBatch(boxBatch, numBoxes, vs.Batch)
	if err != nil {
		return nil, err
	}
	volData, err := floatData(volume, "volume")
	if err != nil {
		return nil, err
	}

	crops := resample.CropAndResize(volData, vs, boxData, batchIdx, cs, opt)
	return tensor.New(
		tensor.WithShape(numBoxes, cs.Height, cs.Width, cs.Depth, vs.Channels),
		tensor.WithBacking(crops),
	), nil
}

// CropAndResize3DGradVolume computes the gradient of CropAndResize3D with
// respect to the source volume: incoming crop gradients scatter-accumulate
// back onto the voxels the forward pass read, with the same interpolation
// weights.
//
// Arguments:
//   - grads: [numBoxes, cropH, cropW, cropD, channel] float32 tensor.
//   - boxes, boxBatch: As passed to the forward call.
//   - volumeShape: Shape of the volume the forward pass sampled.
//
// Returns:
//   - A float32 tensor of shape volumeShape.
func CropAndResize3DGradVolume(grads, boxes, boxBatch *tensor.Dense, volumeShape [5]int, opt resample.Options) (*tensor.Dense, error) {
	if err := checkMethod(opt.Method); err != nil {
		return nil, err
	}
	vs, err := checkVolumeShape(volumeShape[:], "volume")
	if err != nil {
		return nil, err
	}
	numBoxes, boxData, gradData, cs, err := checkCropGrads(grads, boxes, vs)
	if err != nil {
		return nil, err
	}
	batchIdx, err := checkBoxBatch(boxBatch, numBoxes, vs.Batch)
	if err != nil {
		return nil, err
	}

	out := resample.CropAndResizeGradVolume(gradData, vs, boxData, batchIdx, cs, opt)
	return tensor.New(
		tensor.WithShape(volumeShape[0], volumeShape[1], volumeShape[2], volumeShape[3], volumeShape[4]),
		tensor.WithBacking(out),
	), nil
}

// CropAndResize3DGradBoxes computes the gradient of CropAndResize3D with
// respect to each box's six coordinates, by analytic differentiation of the
// trilinear sampling formula. The nearest method yields all zeros.
//
// Returns:
//   - A [numBoxes, 6] float32 tensor.
func CropAndResize3DGradBoxes(grads, volume, boxes, boxBatch *tensor.Dense, opt resample.Options) (*tensor.Dense, error) {
	if err := checkMethod(opt.Method); err != nil {
		return nil, err
	}
	vs, err := checkVolumeShape(volume.Shape(), "volume")
	if err != nil {
		return nil, err
	}
	numBoxes, boxData, gradData, cs, err := checkCropGrads(grads, boxes, vs)
	if err != nil {
		return nil, err
	}
	batchIdx, err := checkBoxBatch(boxBatch, numBoxes, vs.Batch)
	if err != nil {
		return nil, err
	}
	volData, err := floatData(volume, "volume")
	if err != nil {
		return nil, err
	}

	out := resample.CropAndResizeGradBoxes(gradData, volData, vs, boxData, batchIdx, cs, opt)
	return tensor.New(tensor.WithShape(numBoxes, 6), tensor.WithBacking(out)), nil
}

// checkCropGrads validates an incoming [numBoxes, ch, cw, cd, channel]
// gradient tensor against the boxes and the source volume shape, returning
// the crop shape it implies.
func checkCropGrads(grads, boxes *tensor.Dense, vs resample.VolumeShape) (int, []float32, []float32, resample.CropShape, error) {
	numBoxes, boxData, err := checkBoxes(boxes)
	if err != nil {
		return 0, nil, nil, resample.CropShape{}, err
	}
	gradShape := grads.Shape()
	if len(gradShape) != 5 {
		return 0, nil, nil, resample.CropShape{}, errors.Wrapf(ErrInvalidRank,
			"crop gradients must be 5-D, got shape %v", gradShape)
	}
	if gradShape[0] != numBoxes {
		return 0, nil, nil, resample.CropShape{}, errors.Wrapf(ErrShapeMismatch,
			"crop gradients cover %d boxes, expected %d", gradShape[0], numBoxes)
	}
	if gradShape[4] != vs.Channels {
		return 0, nil, nil, resample.CropShape{}, errors.Wrapf(ErrShapeMismatch,
			"crop gradients have %d channels, volume has %d", gradShape[4], vs.Channels)
	}
	cs, err := checkCropShape([3]int{gradShape[1], gradShape[2], gradShape[3]})
	if err != nil {
		return 0, nil, nil, resample.CropShape{}, err
	}
	gradData, err := floatData(grads, "crop gradients")
	if err != nil {
		return 0, nil, nil, resample.CropShape{}, err
	}
	return numBoxes, boxData, gradData, cs, nil
}
