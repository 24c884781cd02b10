// Package geoindex validates H3 cell identifiers and normalizes resolutions.
// Geocoding itself is delegated to a Geocoder collaborator.
package geoindex

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
)

// H3 index layout constants
const (
	MinResolution     = 0
	MaxResolution     = 15
	DefaultResolution = 8

	cellIDLength  = 15
	cellMode      = 1
	baseCellCount = 122
	maxDigits     = 15
	unusedDigit   = 7
)

// ErrInvalidCell is returned for identifiers that are not H3 cell indexes
var ErrInvalidCell = errors.New("invalid cell identifier")

// CellInfo describes a validated cell identifier
type CellInfo struct {
	ID         string `json:"cell_id"`
	Resolution int    `json:"resolution"`
	BaseCell   int    `json:"base_cell"`
}

// NormalizeCellID trims and lower-cases an identifier
func NormalizeCellID(id string) string {
	return strings.ToLower(strings.TrimSpace(id))
}

// ValidateCell checks that id is a well-formed H3 cell index (mode 1)
// and returns its normalized form and resolution.
func ValidateCell(id string) (CellInfo, error) {
	norm := NormalizeCellID(id)
	if norm == "" {
		return CellInfo{}, fmt.Errorf("%w: empty", ErrInvalidCell)
	}
	if len(norm) != cellIDLength {
		return CellInfo{}, fmt.Errorf("%w: %q must have %d hex digits", ErrInvalidCell, id, cellIDLength)
	}

	v, err := strconv.ParseUint(norm, 16, 64)
	if err != nil {
		return CellInfo{}, fmt.Errorf("%w: %q is not hexadecimal", ErrInvalidCell, id)
	}

	if v>>63 != 0 {
		return CellInfo{}, fmt.Errorf("%w: %q has high bit set", ErrInvalidCell, id)
	}
	if mode := (v >> 59) & 0xF; mode != cellMode {
		return CellInfo{}, fmt.Errorf("%w: %q has mode %d, want %d", ErrInvalidCell, id, mode, cellMode)
	}
	if reserved := (v >> 56) & 0x7; reserved != 0 {
		return CellInfo{}, fmt.Errorf("%w: %q has reserved bits set", ErrInvalidCell, id)
	}

	res := int((v >> 52) & 0xF)
	base := int((v >> 45) & 0x7F)
	if base >= baseCellCount {
		return CellInfo{}, fmt.Errorf("%w: %q has base cell %d", ErrInvalidCell, id, base)
	}

	for i := 1; i <= maxDigits; i++ {
		digit := (v >> uint((maxDigits-i)*3)) & 0x7
		if i <= res && digit == unusedDigit {
			return CellInfo{}, fmt.Errorf("%w: %q has invalid digit at resolution %d", ErrInvalidCell, id, i)
		}
		if i > res && digit != unusedDigit {
			return CellInfo{}, fmt.Errorf("%w: %q has digits beyond resolution %d", ErrInvalidCell, id, res)
		}
	}

	return CellInfo{ID: norm, Resolution: res, BaseCell: base}, nil
}

// NormalizeResolution maps unset or negative resolutions to the default
// and clamps the rest to the maximum H3 resolution.
func NormalizeResolution(res int) int {
	if res <= MinResolution {
		return DefaultResolution
	}
	if res > MaxResolution {
		return MaxResolution
	}
	return res
}
