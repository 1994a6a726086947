// Package reconcile converts between wall quantities and removal heights:
// it infers the height an estimate's wall quantity implies and resolves a
// directive's quantity rule into a concrete target height.
package reconcile

import (
	"math"

	"github.com/jhouston2019/estimatereviewpro-sub000/internal/geometry"
	"github.com/jhouston2019/estimatereviewpro-sub000/internal/schema"
	"github.com/jhouston2019/estimatereviewpro-sub000/internal/validation"
)

// Cut heights in feet for the fixed-cut quantity rules.
const (
	Cut2Ft = 2.0
	Cut4Ft = 4.0
	Cut6Ft = 6.0
)

// heightTolerance absorbs float rounding when comparing an inferred height
// with the ceiling height (1/1000 inch).
const heightTolerance = 1.0 / 12000

// ResolveTargetHeight returns the wall removal height a quantity rule
// requires in a room whose ceiling height is ceilingHeight.
//
//	FULL_HEIGHT   → ceilingHeight
//	2/4/6FT_CUT   → the cut height, capped at ceilingHeight
//	CEILING_ONLY  → 0 (ceiling area is compared separately)
//	SPECIFIC_AREA → not resolvable (ok=false)
//
// An empty or unknown rule is not resolvable either.
func ResolveTargetHeight(rule schema.QuantityRule, ceilingHeight float64) (height float64, ok bool) {
	switch rule {
	case schema.RuleFullHeight:
		return ceilingHeight, true
	case schema.Rule2FtCut:
		return math.Min(Cut2Ft, ceilingHeight), true
	case schema.Rule4FtCut:
		return math.Min(Cut4Ft, ceilingHeight), true
	case schema.Rule6FtCut:
		return math.Min(Cut6Ft, ceilingHeight), true
	case schema.RuleCeilingOnly:
		return 0, true
	}
	return 0, false
}

// IsHeightRule reports whether rule drives a height-based wall comparison.
func IsHeightRule(rule schema.QuantityRule) bool {
	switch rule {
	case schema.RuleFullHeight, schema.Rule2FtCut, schema.Rule4FtCut, schema.Rule6FtCut:
		return true
	}
	return false
}

// InferHeight returns wallSF / perimeter, the removal height an estimate's
// wall quantity implies.
//
// It never clamps. A height above ceilingHeight almost always means ceiling
// removal was folded into the wall quantity, so it fails with
// HEIGHT_EXCEEDS_CEILING. A perimeter that is zero, negative or non-finite
// fails with INVALID_PERIMETER, and a negative or non-finite quantity with
// INVALID_QUANTITY. field names the room or bucket in the error.
func InferHeight(wallSF, perimeter, ceilingHeight float64, field string) (float64, error) {
	if err := geometry.CheckPerimeter(perimeter, field); err != nil {
		return 0, err
	}
	if !geometry.Finite(wallSF) || wallSF < 0 {
		return 0, validation.New(validation.CodeInvalidQuantity, field,
			"wall quantity must be non-negative and finite, got %v", wallSF)
	}
	h := wallSF / perimeter
	if h > ceilingHeight+heightTolerance {
		return 0, validation.New(validation.CodeHeightExceedsCeiling, field,
			"estimated wall quantity %.2f SF over %.2f LF implies %.2f ft, above the %.2f ft ceiling; ceiling removal may be included in the wall quantity",
			wallSF, perimeter, h, ceilingHeight)
	}
	return h, nil
}
