// Package fingerprint computes fixed-width average-hash fingerprints from
// square grayscale grids and compares them by Hamming distance.
//
// A fingerprint is always 64 bits wide. Bit i is taken from sample i of the
// grid in row-major order, so grids larger than 8x8 only contribute their
// first 64 cells and grids smaller than 8x8 leave the high bits clear.
package fingerprint

import (
	"errors"
	"fmt"
)

// Bits is the width of every fingerprint.
const Bits = 64

// DefaultHashSize is the default grid side length.
const DefaultHashSize = 8

var (
	// ErrInvalidInput reports a grid whose sample count does not match its size.
	ErrInvalidInput = errors.New("invalid input")
	// ErrPreconditionViolation reports a caller error such as an out of range
	// threshold or fingerprints of different hash sizes.
	ErrPreconditionViolation = errors.New("precondition violation")
)

// Kind names the algorithm a fingerprint was produced with.
type Kind string

const (
	KindAverage    Kind = "average"
	KindPerceptual Kind = "perceptual"
)

// Fingerprint is a 64-bit perceptual hash together with the parameters it
// was produced with.
type Fingerprint struct {
	Bits     uint64
	HashSize int
	Kind     Kind
}

// Comparable reports whether f and other were produced the same way.
func (f Fingerprint) Comparable(other Fingerprint) bool {
	return f.HashSize == other.HashSize && f.Kind == other.Kind
}

func (f Fingerprint) String() string {
	return fmt.Sprintf("%s:%d:%016x", f.Kind, f.HashSize, f.Bits)
}

// Grid is an N x N matrix of 8-bit intensities in row-major order.
type Grid struct {
	Size int
	Pix  []uint8
}

// NewGrid allocates a zeroed grid of the given side length.
func NewGrid(size int) Grid {
	if size < 0 {
		size = 0
	}
	return Grid{Size: size, Pix: make([]uint8, size*size)}
}

// Validate checks that the grid holds exactly Size*Size samples.
func (g Grid) Validate() error {
	if g.Size < 1 {
		return fmt.Errorf("%w: grid size %d, want >= 1", ErrInvalidInput, g.Size)
	}
	if len(g.Pix) != g.Size*g.Size {
		return fmt.Errorf("%w: grid of size %d has %d samples, want %d",
			ErrInvalidInput, g.Size, len(g.Pix), g.Size*g.Size)
	}
	return nil
}

// Extract computes the average-hash fingerprint of a grid.
func Extract(g Grid) (Fingerprint, error) {
	if err := g.Validate(); err != nil {
		return Fingerprint{}, err
	}

	var sum uint64
	for _, p := range g.Pix {
		sum += uint64(p)
	}
	n := uint64(len(g.Pix))

	limit := len(g.Pix)
	if limit > Bits {
		limit = Bits
	}

	// p >= sum/n, compared without dividing
	var bits uint64
	for i := 0; i < limit; i++ {
		if uint64(g.Pix[i])*n >= sum {
			bits |= 1 << uint(i)
		}
	}

	return Fingerprint{Bits: bits, HashSize: g.Size, Kind: KindAverage}, nil
}

// MaxHashSize is the largest accepted grid side.
const MaxHashSize = 256

// ValidateHashSize checks a configured hash size.
func ValidateHashSize(n int) error {
	if n < 1 || n > MaxHashSize {
		return fmt.Errorf("%w: hash size %d, want 1..%d", ErrInvalidInput, n, MaxHashSize)
	}
	return nil
}

// Truncates reports whether a grid of side n has more cells than a
// fingerprint can hold. Only the first 64 cells of such grids are used.
func Truncates(n int) bool {
	return n*n > Bits
}
