// Package ops - host-facing volumetric detection operations over dense
// tensors.
//
// Every operation validates its inputs up front and either fails with one of
// the typed errors below before touching any output, or fully succeeds with
// correctly-shaped output tensors. Numeric edge cases (degenerate boxes,
// out-of-range sample coordinates) are defined results, never errors.
package ops

import "github.com/pkg/errors"

var (
	// ErrInvalidRank reports a buffer whose dimensionality does not match
	// the operation's contract.
	ErrInvalidRank = errors.New("invalid rank")
	// ErrShapeMismatch reports two buffers that must agree on a dimension
	// but disagree.
	ErrShapeMismatch = errors.New("shape mismatch")
	// ErrInvalidAttribute reports a scalar parameter outside its valid
	// domain, or a buffer whose element type or values violate the
	// operation's contract.
	ErrInvalidAttribute = errors.New("invalid attribute")
	// ErrNonPositiveDimension reports a declared spatial or crop dimension
	// that is not strictly positive.
	ErrNonPositiveDimension = errors.New("non-positive dimension")
)
