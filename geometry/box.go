// Package geometry - axis-aligned cuboid geometry for volumetric detections.
package geometry

import "github.com/chewxy/math32"

// Box3D is an axis-aligned cuboid given by two opposite corners in
// (y1, x1, z1, y2, x2, z2) order. No ordering is required between the two
// corners on any axis; every measurement normalizes per axis first, so
// callers may hand boxes over exactly as a detector emitted them.
type Box3D struct {
	Y1, X1, Z1 float32
	Y2, X2, Z2 float32
}

// BoxAt reads the box at index i from a flat [N,6] coordinate buffer.
// The buffer stride is exactly 6 floats per box.
func BoxAt(boxes []float32, i int) Box3D {
	o := i * 6
	return Box3D{
		Y1: boxes[o], X1: boxes[o+1], Z1: boxes[o+2],
		Y2: boxes[o+3], X2: boxes[o+4], Z2: boxes[o+5],
	}
}

// Canon returns the box with min/max corner ordering restored on each axis.
func (b Box3D) Canon() Box3D {
	return Box3D{
		Y1: math32.Min(b.Y1, b.Y2), X1: math32.Min(b.X1, b.X2), Z1: math32.Min(b.Z1, b.Z2),
		Y2: math32.Max(b.Y1, b.Y2), X2: math32.Max(b.X1, b.X2), Z2: math32.Max(b.Z1, b.Z2),
	}
}

// Volume returns the volume of the canonical box. A degenerate box (zero
// extent on any axis) has volume 0.
func (b Box3D) Volume() float32 {
	c := b.Canon()
	return (c.Y2 - c.Y1) * (c.X2 - c.X1) * (c.Z2 - c.Z1)
}

// IoU (Intersection over Union) measures the extent of overlap between two
// axis-aligned cuboids as a value in [0, 1].
//
// The intersection extents are computed per axis as
//
//	max(0, min(max_b, max_o) - max(min_b, min_o))
//
// and the union follows the inclusion-exclusion principle:
//
//	Union(A, B) = Volume(A) + Volume(B) - Intersection(A, B)
//
// If either box has non-positive volume the overlap is defined as 0 rather
// than an error, which keeps suppression total over degenerate detections.
//
// Arguments:
//   - o: The other box to compare against.
//
// Returns:
//   - float32: A value between 0.0 and 1.0 representing the IoU score.
func (b Box3D) IoU(o Box3D) float32 {
	cb := b.Canon()
	co := o.Canon()

	volB := (cb.Y2 - cb.Y1) * (cb.X2 - cb.X1) * (cb.Z2 - cb.Z1)
	volO := (co.Y2 - co.Y1) * (co.X2 - co.X1) * (co.Z2 - co.Z1)
	if volB <= 0 || volO <= 0 {
		return 0
	}

	interY := math32.Max(0, math32.Min(cb.Y2, co.Y2)-math32.Max(cb.Y1, co.Y1))
	interX := math32.Max(0, math32.Min(cb.X2, co.X2)-math32.Max(cb.X1, co.X1))
	interZ := math32.Max(0, math32.Min(cb.Z2, co.Z2)-math32.Max(cb.Z1, co.Z1))
	inter := interY * interX * interZ

	return inter / (volB + volO - inter)
}
