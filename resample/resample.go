// Package resample - crop-and-resize sampling of 5D feature volumes and the
// gradients needed to backpropagate through it.
package resample

// Method selects how a crop samples the source volume.
type Method int

const (
	// Trilinear blends the 8 voxels surrounding each continuous sample
	// coordinate.
	Trilinear Method = iota
	// Nearest rounds each axis coordinate independently and copies the
	// closest voxel.
	Nearest
)

// String returns the attribute name of the method.
func (m Method) String() string {
	switch m {
	case Trilinear:
		return "trilinear"
	case Nearest:
		return "nearest"
	}
	return "unknown"
}

// VolumeShape describes a (batch, height, width, depth, channel) buffer.
type VolumeShape struct {
	Batch, Height, Width, Depth, Channels int
}

// Len returns the flat element count of the volume.
func (s VolumeShape) Len() int {
	return s.Batch * s.Height * s.Width * s.Depth * s.Channels
}

// index flattens a (b, y, x, z, c) coordinate.
func (s VolumeShape) index(b, y, x, z, c int) int {
	return ((((b*s.Height+y)*s.Width+x)*s.Depth+z)*s.Channels + c)
}

// CropShape describes the spatial extent of one output crop.
type CropShape struct {
	Height, Width, Depth int
}

// Len returns the flat element count of crops for n boxes over ch channels.
func (s CropShape) Len(n, ch int) int {
	return n * s.Height * s.Width * s.Depth * ch
}

// Options configures a resampling call.
type Options struct {
	// Method selects trilinear or nearest sampling.
	Method Method
	// ExtrapolationValue fills output positions whose sample coordinate
	// falls outside the source volume on any axis.
	ExtrapolationValue float32
	// NumWorkers bounds goroutines processing boxes in parallel. Values
	// < 2 run sequentially. Every box writes to a disjoint output region.
	NumWorkers int
}

// axisCoord maps output index i along one crop axis onto the continuous
// source index range [0, dim-1]. A single-sample axis lands on the box
// span's midpoint.
func axisCoord(c1, c2 float32, dim, extent, i int) float32 {
	if extent > 1 {
		scale := (c2 - c1) * float32(dim-1) / float32(extent-1)
		return c1*float32(dim-1) + float32(i)*scale
	}
	return 0.5 * (c1 + c2) * float32(dim-1)
}

// axisCoordPartials returns the partial derivatives of the continuous source
// coordinate with respect to the axis's two box scalars (corner1, corner2),
// for output index i. This mirrors axisCoord exactly; any drift between the
// two is a correctness bug.
func axisCoordPartials(dim, extent, i int) (d1, d2 float32) {
	if extent > 1 {
		r := float32(i) / float32(extent-1)
		return float32(dim-1) * (1 - r), float32(dim-1) * r
	}
	return 0.5 * float32(dim-1), 0.5 * float32(dim-1)
}

// eachBox invokes fn once per box index, fanning out across a bounded worker
// pool when opt.NumWorkers allows it.
func eachBox(numBoxes int, opt Options, fn func(b int)) {
	if opt.NumWorkers < 2 || numBoxes < 2 {
		for b := 0; b < numBoxes; b++ {
			fn(b)
		}
		return
	}
	runParallel(numBoxes, opt.NumWorkers, fn)
}
