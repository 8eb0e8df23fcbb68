package resample

import (
	"github.com/chewxy/math32"

	"github.com/nvr-ai/go-vol3d/geometry"
)

// CropAndResizeGradBoxes computes the gradient of CropAndResize with
// respect to the six coordinates of each box.
//
// Each box coordinate affects exactly one axis's mapping onto the source
// index range, so the partial derivative of a sampled value factors into the
// interpolation-weight derivative along that axis times the already-blended
// values along the other two. For a trilinearly sampled value
//
//	v = top + (bottom-top)·yLerp
//
// the height partial is (bottom-top) scaled by the coordinate's share of the
// sample position (axisCoordPartials); width and depth follow the same
// pattern one blend level down. Extrapolated positions contribute zero, as
// does the Nearest method, whose output is piecewise constant in the box
// coordinates.
//
// Returns:
//   - A flat [numBoxes, 6] gradient buffer in (y1,x1,z1,y2,x2,z2) order.
func CropAndResizeGradBoxes(grads, volume []float32, vs VolumeShape, boxes []float32, boxBatch []int, cs CropShape, opt Options) []float32 {
	numBoxes := len(boxBatch)
	out := make([]float32, numBoxes*6)
	if numBoxes == 0 || opt.Method == Nearest {
		return out
	}

	cropStride := cs.Height * cs.Width * cs.Depth * vs.Channels
	eachBox(numBoxes, opt, func(b int) {
		gradBox(grads[b*cropStride:(b+1)*cropStride], volume, vs,
			geometry.BoxAt(boxes, b), boxBatch[b], cs, out[b*6:b*6+6])
	})
	return out
}

// gradBox accumulates one box's six coordinate partials. out is the box's
// (y1,x1,z1,y2,x2,z2) slot.
func gradBox(grads, volume []float32, vs VolumeShape, box geometry.Box3D, batch int, cs CropShape, out []float32) {
	ch := vs.Channels
	rowStride := cs.Width * cs.Depth * ch
	colStride := cs.Depth * ch

	var gy1, gx1, gz1, gy2, gx2, gz2 float32

	for y := 0; y < cs.Height; y++ {
		inY := axisCoord(box.Y1, box.Y2, vs.Height, cs.Height, y)
		if inY < 0 || inY > float32(vs.Height-1) {
			continue
		}
		topY := int(math32.Floor(inY))
		bottomY := int(math32.Ceil(inY))
		yLerp := inY - float32(topY)
		dY1, dY2 := axisCoordPartials(vs.Height, cs.Height, y)

		for x := 0; x < cs.Width; x++ {
			inX := axisCoord(box.X1, box.X2, vs.Width, cs.Width, x)
			if inX < 0 || inX > float32(vs.Width-1) {
				continue
			}
			leftX := int(math32.Floor(inX))
			rightX := int(math32.Ceil(inX))
			xLerp := inX - float32(leftX)
			dX1, dX2 := axisCoordPartials(vs.Width, cs.Width, x)

			for z := 0; z < cs.Depth; z++ {
				inZ := axisCoord(box.Z1, box.Z2, vs.Depth, cs.Depth, z)
				if inZ < 0 || inZ > float32(vs.Depth-1) {
					continue
				}
				frontZ := int(math32.Floor(inZ))
				backZ := int(math32.Ceil(inZ))
				zLerp := inZ - float32(frontZ)
				dZ1, dZ2 := axisCoordPartials(vs.Depth, cs.Depth, z)

				off := y*rowStride + x*colStride + z*ch
				for c := 0; c < ch; c++ {
					topLeftFront := volume[vs.index(batch, topY, leftX, frontZ, c)]
					topLeftBack := volume[vs.index(batch, topY, leftX, backZ, c)]
					topRightFront := volume[vs.index(batch, topY, rightX, frontZ, c)]
					topRightBack := volume[vs.index(batch, topY, rightX, backZ, c)]
					bottomLeftFront := volume[vs.index(batch, bottomY, leftX, frontZ, c)]
					bottomLeftBack := volume[vs.index(batch, bottomY, leftX, backZ, c)]
					bottomRightFront := volume[vs.index(batch, bottomY, rightX, frontZ, c)]
					bottomRightBack := volume[vs.index(batch, bottomY, rightX, backZ, c)]

					topLeft := topLeftFront + (topLeftBack-topLeftFront)*zLerp
					topRight := topRightFront + (topRightBack-topRightFront)*zLerp
					bottomLeft := bottomLeftFront + (bottomLeftBack-bottomLeftFront)*zLerp
					bottomRight := bottomRightFront + (bottomRightBack-bottomRightFront)*zLerp

					// ∂v/∂inY: difference of the fully-blended y levels.
					top := topLeft + (topRight-topLeft)*xLerp
					bottom := bottomLeft + (bottomRight-bottomLeft)*xLerp
					dvdY := bottom - top

					// ∂v/∂inX: width differences blended over y.
					dvdX := (1-yLerp)*(topRight-topLeft) + yLerp*(bottomRight-bottomLeft)

					// ∂v/∂inZ: depth differences blended over x then y.
					dvdZ := (1-yLerp)*((1-xLerp)*(topLeftBack-topLeftFront)+xLerp*(topRightBack-topRightFront)) +
						yLerp*((1-xLerp)*(bottomLeftBack-bottomLeftFront)+xLerp*(bottomRightBack-bottomRightFront))

					g := grads[off+c]
					gy1 += g * dvdY * dY1
					gy2 += g * dvdY * dY2
					gx1 += g * dvdX * dX1
					gx2 += g * dvdX * dX2
					gz1 += g * dvdZ * dZ1
					gz2 += g * dvdZ * dZ2
				}
			}
		}
	}

	out[0] = gy1
	out[1] = gx1
	out[2] = gz1
	out[3] = gy2
	out[4] = gx2
	out[5] = gz2
}
