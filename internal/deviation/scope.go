package deviation

import "github.com/jhouston2019/estimatereviewpro-sub000/internal/schema"

// Scope is the geometry and estimate quantities of one room, of the whole
// structure (ALL_ROOMS), or of the UNMAPPED bucket.
type Scope struct {
	Name          string
	Perimeter     float64
	CeilingHeight float64
	CeilingArea   float64
	WallSF        float64
	CeilingSF     float64
	InsulationSF  float64
}

// ScopeCheck compares one scope against a requirement and returns its audit
// record. DeltaSF may be zero or negative; callers decide what to report.
type ScopeCheck func(Scope) (schema.RoomGeometryCalculation, error)

// Shortfall is the attributed result of running a ScopeCheck under an
// attribution mode.
type Shortfall struct {
	Mode     schema.AttributionMode
	Required float64
	Estimate float64
	// Delta is the reported shortfall: the sum of positive scope deltas less
	// any unmapped credit, never negative.
	Delta float64
	// Credit is the unmapped estimate quantity subtracted in HYBRID mode.
	Credit float64
	// Rooms holds the records with a positive delta.
	Rooms []schema.RoomGeometryCalculation
	// Audit holds every record computed, including the unmapped credit.
	Audit []schema.RoomGeometryCalculation
}

// Attributor runs a ScopeCheck across scopes according to its attribution
// mode. The attribution package provides the implementation.
type Attributor interface {
	Mode() schema.AttributionMode
	Shortfall(check ScopeCheck) (Shortfall, error)
}
