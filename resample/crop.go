package resample

import (
	"github.com/chewxy/math32"

	"github.com/nvr-ai/go-vol3d/geometry"
)

// CropAndResize samples one fixed-size crop per box out of a 5D feature
// volume.
//
// Every box is given in normalized volume coordinates (a full-volume box is
// (0,0,0,1,1,1)), may extend past [0,1], and carries a source-batch index.
// Each of the crop's sample positions maps linearly onto the continuous
// source index range of its axis; positions falling outside the source on
// any axis receive opt.ExtrapolationValue on every channel, checked per axis
// so an out-of-range height short-circuits the width and depth work for that
// row.
//
// Arguments:
//   - volume: Flat [batch, height, width, depth, channel] buffer.
//   - vs: Shape of volume.
//   - boxes: Flat [numBoxes, 6] buffer of (y1,x1,z1,y2,x2,z2) spans.
//   - boxBatch: Source batch element per box.
//   - cs: Target crop shape.
//
// Returns:
//   - A flat [numBoxes, cs.Height, cs.Width, cs.Depth, channel] buffer.
func CropAndResize(volume []float32, vs VolumeShape, boxes []float32, boxBatch []int, cs CropShape, opt Options) []float32 {
	numBoxes := len(boxBatch)
	crops := make([]float32, cs.Len(numBoxes, vs.Channels))
	if numBoxes == 0 {
		return crops
	}

	cropStride := cs.Height * cs.Width * cs.Depth * vs.Channels

	eachBox(numBoxes, opt, func(b int) {
		cropBox(volume, vs, geometry.BoxAt(boxes, b), boxBatch[b], cs, opt,
			crops[b*cropStride:(b+1)*cropStride])
	})

	return crops
}

// cropBox fills one box's crop. out is the box's [ch, cw, cd, channels]
// region of the output buffer.
func cropBox(volume []float32, vs VolumeShape, box geometry.Box3D, batch int, cs CropShape, opt Options, out []float32) {
	ch := vs.Channels
	rowStride := cs.Width * cs.Depth * ch
	colStride := cs.Depth * ch

	for y := 0; y < cs.Height; y++ {
		inY := axisCoord(box.Y1, box.Y2, vs.Height, cs.Height, y)
		if inY < 0 || inY > float32(vs.Height-1) {
			fill(out[y*rowStride:(y+1)*rowStride], opt.ExtrapolationValue)
			continue
		}

		topY := int(math32.Floor(inY))
		bottomY := int(math32.Ceil(inY))
		yLerp := inY - float32(topY)

		for x := 0; x < cs.Width; x++ {
			inX := axisCoord(box.X1, box.X2, vs.Width, cs.Width, x)
			if inX < 0 || inX > float32(vs.Width-1) {
				off := y*rowStride + x*colStride
				fill(out[off:off+colStride], opt.ExtrapolationValue)
				continue
			}

			leftX := int(math32.Floor(inX))
			rightX := int(math32.Ceil(inX))
			xLerp := inX - float32(leftX)

			for z := 0; z < cs.Depth; z++ {
				inZ := axisCoord(box.Z1, box.Z2, vs.Depth, cs.Depth, z)
				off := y*rowStride + x*colStride + z*ch
				if inZ < 0 || inZ > float32(vs.Depth-1) {
					fill(out[off:off+ch], opt.ExtrapolationValue)
					continue
				}

				if opt.Method == Nearest {
					closestY := int(math32.Round(inY))
					closestX := int(math32.Round(inX))
					closestZ := int(math32.Round(inZ))
					src := vs.index(batch, closestY, closestX, closestZ, 0)
					copy(out[off:off+ch], volume[src:src+ch])
					continue
				}

				frontZ := int(math32.Floor(inZ))
				backZ := int(math32.Ceil(inZ))
				zLerp := inZ - float32(frontZ)

				for c := 0; c < ch; c++ {
					topLeftFront := volume[vs.index(batch, topY, leftX, frontZ, c)]
					topLeftBack := volume[vs.index(batch, topY, leftX, backZ, c)]
					topRightFront := volume[vs.index(batch, topY, rightX, frontZ, c)]
					topRightBack := volume[vs.index(batch, topY, rightX, backZ, c)]
					bottomLeftFront := volume[vs.index(batch, bottomY, leftX, frontZ, c)]
					bottomLeftBack := volume[vs.index(batch, bottomY, leftX, backZ, c)]
					bottomRightFront := volume[vs.index(batch, bottomY, rightX, frontZ, c)]
					bottomRightBack := volume[vs.index(batch, bottomY, rightX, backZ, c)]

					// Blend depth-wise, then width-wise, then height-wise.
					topLeft := topLeftFront + (topLeftBack-topLeftFront)*zLerp
					topRight := topRightFront + (topRightBack-topRightFront)*zLerp
					bottomLeft := bottomLeftFront + (bottomLeftBack-bottomLeftFront)*zLerp
					bottomRight := bottomRightFront + (bottomRightBack-bottomRightFront)*zLerp
					top := topLeft + (topRight-topLeft)*xLerp
					bottom := bottomLeft + (bottomRight-bottomLeft)*xLerp
					out[off+c] = top + (bottom-top)*yLerp
				}
			}
		}
	}
}

func fill(dst []float32, v float32) {
	for i := range dst {
		dst[i] = v
	}
}
