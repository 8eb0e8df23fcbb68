package resample

import (
	"sync"

	"github.com/chewxy/math32"

	"github.com/nvr-ai/go-vol3d/geometry"
)

// CropAndResizeGradVolume computes the gradient of CropAndResize with
// respect to its source volume.
//
// Each non-extrapolated output position distributes its incoming gradient
// back onto the voxels the forward pass read, using the identical
// interpolation weights: 8 voxels under Trilinear, 1 under Nearest.
// Contributions accumulate, since many crops may read the same voxel.
// Extrapolated positions contribute nothing.
//
// Every box scatters into its own scratch buffer and the buffers are
// reduced into the result in box order, so the float accumulation order
// is the same whether the boxes ran on one worker or many. The result is
// bit-identical for any NumWorkers.
//
// Arguments:
//   - grads: Flat [numBoxes, cs.Height, cs.Width, cs.Depth, channel]
//     incoming gradient buffer.
//   - vs: Shape of the source volume the forward pass sampled.
//   - boxes, boxBatch, cs, opt: As passed to the forward call.
//
// Returns:
//   - A flat gradient buffer of shape vs.
func CropAndResizeGradVolume(grads []float32, vs VolumeShape, boxes []float32, boxBatch []int, cs CropShape, opt Options) []float32 {
	out := make([]float32, vs.Len())
	numBoxes := len(boxBatch)
	if numBoxes == 0 {
		return out
	}

	cropStride := cs.Height * cs.Width * cs.Depth * vs.Channels
	scatter := func(b int, dst []float32) {
		scatterBox(grads[b*cropStride:(b+1)*cropStride], vs,
			geometry.BoxAt(boxes, b), boxBatch[b], cs, opt, dst)
	}

	if opt.NumWorkers < 2 || numBoxes < 2 {
		scratch := make([]float32, vs.Len())
		for b := 0; b < numBoxes; b++ {
			if b > 0 {
				for i := range scratch {
					scratch[i] = 0
				}
			}
			scatter(b, scratch)
			for i, v := range scratch {
				out[i] += v
			}
		}
		return out
	}

	workers := opt.NumWorkers
	if workers > numBoxes {
		workers = numBoxes
	}
	perBox := make([][]float32, numBoxes)
	var wg sync.WaitGroup
	for w := 0; w < workers; w++ {
		wg.Add(1)
		go func(w int) {
			defer wg.Done()
			for b := w; b < numBoxes; b += workers {
				buf := make([]float32, vs.Len())
				scatter(b, buf)
				perBox[b] = buf
			}
		}(w)
	}
	wg.Wait()

	for _, buf := range perBox {
		for i, v := range buf {
			out[i] += v
		}
	}
	return out
}

// scatterBox accumulates one box's output gradient back into dst, mirroring
// cropBox's coordinate mapping sample for sample.
func scatterBox(grads []float32, vs VolumeShape, box geometry.Box3D, batch int, cs CropShape, opt Options, dst []float32) {
	ch := vs.Channels
	rowStride := cs.Width * cs.Depth * ch
	colStride := cs.Depth * ch

	for y := 0; y < cs.Height; y++ {
		inY := axisCoord(box.Y1, box.Y2, vs.Height, cs.Height, y)
		if inY < 0 || inY > float32(vs.Height-1) {
			continue
		}
		topY := int(math32.Floor(inY))
		bottomY := int(math32.Ceil(inY))
		yLerp := inY - float32(topY)

		for x := 0; x < cs.Width; x++ {
			inX := axisCoord(box.X1, box.X2, vs.Width, cs.Width, x)
			if inX < 0 || inX > float32(vs.Width-1) {
				continue
			}
			leftX := int(math32.Floor(inX))
			rightX := int(math32.Ceil(inX))
			xLerp := inX - float32(leftX)

			for z := 0; z < cs.Depth; z++ {
				inZ := axisCoord(box.Z1, box.Z2, vs.Depth, cs.Depth, z)
				if inZ < 0 || inZ > float32(vs.Depth-1) {
					continue
				}
				off := y*rowStride + x*colStride + z*ch

				if opt.Method == Nearest {
					closestY := int(math32.Round(inY))
					closestX := int(math32.Round(inX))
					closestZ := int(math32.Round(inZ))
					base := vs.index(batch, closestY, closestX, closestZ, 0)
					for c := 0; c < ch; c++ {
						dst[base+c] += grads[off+c]
					}
					continue
				}

				frontZ := int(math32.Floor(inZ))
				backZ := int(math32.Ceil(inZ))
				zLerp := inZ - float32(frontZ)

				for c := 0; c < ch; c++ {
					g := grads[off+c]
					top := g * (1 - yLerp)
					bottom := g * yLerp
					dst[vs.index(batch, topY, leftX, frontZ, c)] += top * (1 - xLerp) * (1 - zLerp)
					dst[vs.index(batch, topY, leftX, backZ, c)] += top * (1 - xLerp) * zLerp
					dst[vs.index(batch, topY, rightX, frontZ, c)] += top * xLerp * (1 - zLerp)
					dst[vs.index(batch, topY, rightX, backZ, c)] += top * xLerp * zLerp
					dst[vs.index(batch, bottomY, leftX, frontZ, c)] += bottom * (1 - xLerp) * (1 - zLerp)
					dst[vs.index(batch, bottomY, leftX, backZ, c)] += bottom * (1 - xLerp) * zLerp
					dst[vs.index(batch, bottomY, rightX, frontZ, c)] += bottom * xLerp * (1 - zLerp)
					dst[vs.index(batch, bottomY, rightX, backZ, c)] += bottom * xLerp * zLerp
				}
			}
		}
	}
}
