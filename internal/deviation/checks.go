package deviation

import (
	"fmt"

	"github.com/jhouston2019/estimatereviewpro-sub000/internal/geometry"
	"github.com/jhouston2019/estimatereviewpro-sub000/internal/reconcile"
	"github.com/jhouston2019/estimatereviewpro-sub000/internal/schema"
)

// WallCheck returns a ScopeCheck comparing estimated drywall wall removal
// with the height a quantity rule requires:
//
//	estimateHeight = wallSF / perimeter   (must not exceed the ceiling)
//	required       = targetHeight · perimeter
//	delta          = required − wallSF
//
// rule must be height-resolvable (see reconcile.IsHeightRule).
func WallCheck(rule schema.QuantityRule) ScopeCheck {
	return func(s Scope) (schema.RoomGeometryCalculation, error) {
		if err := geometry.CheckPerimeter(s.Perimeter, s.Name); err != nil {
			return schema.RoomGeometryCalculation{}, err
		}
		estH, err := reconcile.InferHeight(s.WallSF, s.Perimeter, s.CeilingHeight, s.Name)
		if err != nil {
			return schema.RoomGeometryCalculation{}, err
		}
		target, ok := reconcile.ResolveTargetHeight(rule, s.CeilingHeight)
		if !ok {
			return schema.RoomGeometryCalculation{}, fmt.Errorf("deviation: quantity rule %q is not height-resolvable", rule)
		}
		required := target * s.Perimeter
		delta := required - s.WallSF
		return schema.RoomGeometryCalculation{
			RoomName:       s.Name,
			Perimeter:      s.Perimeter,
			WallHeight:     s.CeilingHeight,
			EstimateHeight: estH,
			ReportHeight:   target,
			EstimateWallSF: s.WallSF,
			ReportWallSF:   required,
			DeltaSF:        delta,
			Formula: fmt.Sprintf("%s: required %.2f ft × %.2f LF = %.2f SF; estimate %.2f SF ÷ %.2f LF = %.2f ft; delta %.2f − %.2f = %.2f SF",
				s.Name, target, s.Perimeter, required, s.WallSF, s.Perimeter, estH, required, s.WallSF, delta),
		}, nil
	}
}

// CeilingCheck compares the ceiling area of a scope with its estimated
// ceiling removal. No height is inferred.
func CeilingCheck() ScopeCheck {
	return func(s Scope) (schema.RoomGeometryCalculation, error) {
		delta := s.CeilingArea - s.CeilingSF
		return schema.RoomGeometryCalculation{
			RoomName:        s.Name,
			Perimeter:       s.Perimeter,
			WallHeight:      s.CeilingHeight,
			EstimateWallSF:  s.CeilingSF,
			ReportWallSF:    s.CeilingArea,
			DeltaSF:         delta,
			CeilingIncluded: true,
			Formula: fmt.Sprintf("%s: required ceiling %.2f SF; estimate %.2f SF; delta %.2f SF",
				s.Name, s.CeilingArea, s.CeilingSF, delta),
		}, nil
	}
}

// InsulationCheck compares estimated wall insulation with the wall area of a
// scope. A fixed-cut rule limits the requirement to the cut height; any other
// rule requires the full wall.
func InsulationCheck(rule schema.QuantityRule) ScopeCheck {
	return func(s Scope) (schema.RoomGeometryCalculation, error) {
		if err := geometry.CheckPerimeter(s.Perimeter, s.Name); err != nil {
			return schema.RoomGeometryCalculation{}, err
		}
		height := s.CeilingHeight
		if reconcile.IsHeightRule(rule) {
			height, _ = reconcile.ResolveTargetHeight(rule, s.CeilingHeight)
		}
		required := height * s.Perimeter
		delta := required - s.InsulationSF
		return schema.RoomGeometryCalculation{
			RoomName:       s.Name,
			Perimeter:      s.Perimeter,
			WallHeight:     s.CeilingHeight,
			EstimateHeight: s.InsulationSF / s.Perimeter,
			ReportHeight:   height,
			EstimateWallSF: s.InsulationSF,
			ReportWallSF:   required,
			DeltaSF:        delta,
			Formula: fmt.Sprintf("%s: required insulation %.2f ft × %.2f LF = %.2f SF; estimate %.2f SF; delta %.2f SF",
				s.Name, height, s.Perimeter, required, s.InsulationSF, delta),
		}, nil
	}
}
