// SPDX-License-Identifier: MIT

package cdi

import (
	"fmt"
	"strings"
)

// PrecisionType selects the numeric representation of partial precisions.
type PrecisionType int

const (
	// Scalar stores one precision scalar per trait; the full precision of a
	// partial is that scalar times the active diffusion precision.
	Scalar PrecisionType = iota

	// Full stores a dimTrait×dimTrait precision and its variance per trait,
	// plus the carried effective scalar used for sufficient statistics.
	Full
)

// String returns the canonical lower-case name.
func (p PrecisionType) String() string {
	switch p {
	case Scalar:
		return "scalar"
	case Full:
		return "full"
	default:
		return fmt.Sprintf("precision(%d)", int(p))
	}
}

// Valid reports whether p is a known representation.
func (p PrecisionType) Valid() bool { return p == Scalar || p == Full }

// MatrixLength is the number of precision values stored per trait.
//   - Scalar: 1
//   - Full:   2·d² + 1 (precision, variance, effective scalar)
func (p PrecisionType) MatrixLength(dimTrait int) int {
	if p == Full {
		return 2*dimTrait*dimTrait + 1
	}

	return 1
}

// ParsePrecisionType maps "scalar" / "full" (case-insensitive) to a PrecisionType.
func ParsePrecisionType(s string) (PrecisionType, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "scalar":
		return Scalar, nil
	case "full":
		return Full, nil
	default:
		return 0, fmt.Errorf("ParsePrecisionType(%q): %w", s, ErrInvalidPrecision)
	}
}
