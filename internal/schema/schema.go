// Package schema defines the canonical data types consumed and produced by the
// deviation engine: estimate line items, report directives, room dimensions,
// deviations, and the final DeviationAnalysis.
package schema

// ActionType is the kind of work a line item performs.
type ActionType string

const (
	ActionRemove  ActionType = "REMOVE"
	ActionReplace ActionType = "REPLACE"
	ActionInstall ActionType = "INSTALL"
	ActionRepair  ActionType = "REPAIR"
	ActionClean   ActionType = "CLEAN"
	ActionOther   ActionType = "OTHER"
)

// QuantityRule is the abstract quantity a report directive requires.
type QuantityRule string

const (
	RuleFullHeight   QuantityRule = "FULL_HEIGHT"
	Rule2FtCut       QuantityRule = "2FT_CUT"
	Rule4FtCut       QuantityRule = "4FT_CUT"
	Rule6FtCut       QuantityRule = "6FT_CUT"
	RuleCeilingOnly  QuantityRule = "CEILING_ONLY"
	RuleSpecificArea QuantityRule = "SPECIFIC_AREA"
)

// Priority is the urgency an expert report assigns to a directive.
type Priority string

const (
	PriorityCritical Priority = "CRITICAL"
	PriorityHigh     Priority = "HIGH"
	PriorityModerate Priority = "MODERATE"
	PriorityLow      Priority = "LOW"
)

// Severity is the severity of an emitted deviation.
type Severity string

const (
	SeverityCritical Severity = "CRITICAL"
	SeverityHigh     Severity = "HIGH"
	SeverityModerate Severity = "MODERATE"
	SeverityLow      Severity = "LOW"
)

// DeviationType classifies what kind of shortfall a deviation describes.
type DeviationType string

const (
	DeviationMissingTrade          DeviationType = "MISSING_REQUIRED_TRADE"
	DeviationInsufficientCutHeight DeviationType = "INSUFFICIENT_CUT_HEIGHT"
	DeviationInsufficientCeiling   DeviationType = "INSUFFICIENT_CEILING_REMOVAL"
	DeviationInsufficientInsul     DeviationType = "INSUFFICIENT_INSULATION"
	DeviationQuantityShortfall     DeviationType = "QUANTITY_SHORTFALL"
)

// Source records which signal produced a deviation.
type Source string

const (
	SourceReport    Source = "REPORT"
	SourceDimension Source = "DIMENSION"
	SourceBoth      Source = "BOTH"
)

// AttributionMode is the strategy used to attribute estimate quantities to rooms.
type AttributionMode string

const (
	ModePerRoom   AttributionMode = "PER_ROOM"
	ModeAggregate AttributionMode = "AGGREGATE"
	ModeHybrid    AttributionMode = "HYBRID"
)

// UnmappedBucket is the reserved pseudo-room name for line items that match no room.
const UnmappedBucket = "UNMAPPED"

// AggregateBucket is the pseudo-room name used for whole-structure calculations.
const AggregateBucket = "ALL_ROOMS"

// Room holds raw room dimensions in feet. Derived quantities live in the
// geometry package and are always recomputed.
type Room struct {
	Name   string  `json:"name" yaml:"name"`
	Length float64 `json:"length" yaml:"length"`
	Width  float64 `json:"width" yaml:"width"`
	Height float64 `json:"height" yaml:"height"`
}

// LineItem is one structured estimate line. The engine never mutates it.
type LineItem struct {
	TradeCode   string     `json:"trade_code" yaml:"trade_code"`
	Description string     `json:"description" yaml:"description"`
	ActionType  ActionType `json:"action_type" yaml:"action_type"`
	Quantity    float64    `json:"quantity" yaml:"quantity"`
	Unit        string     `json:"unit" yaml:"unit"`
	RCV         float64    `json:"rcv" yaml:"rcv"`
	ACV         float64    `json:"acv" yaml:"acv"`
}

// Directive is a scope requirement extracted from an expert report.
type Directive struct {
	Trade         string       `json:"trade" yaml:"trade"`
	DirectiveType string       `json:"directive_type" yaml:"directive_type"`
	Measurable    bool         `json:"measurable" yaml:"measurable"`
	QuantityRule  QuantityRule `json:"quantity_rule,omitempty" yaml:"quantity_rule,omitempty"`
	Priority      Priority     `json:"priority" yaml:"priority"`
	RawText       string       `json:"raw_text" yaml:"raw_text"`
}

// ExposureRange is a dollar min/max range.
type ExposureRange struct {
	Min float64 `json:"min" yaml:"min"`
	Max float64 `json:"max" yaml:"max"`
}

// RoomGeometryCalculation is the audit record of one room (or pseudo-room)
// comparison. Built once and never modified.
type RoomGeometryCalculation struct {
	RoomName        string  `json:"room_name"`
	Perimeter       float64 `json:"perimeter"`
	WallHeight      float64 `json:"wall_height"`
	EstimateHeight  float64 `json:"estimate_height"`
	ReportHeight    float64 `json:"report_height"`
	EstimateWallSF  float64 `json:"estimate_wall_sf"`
	ReportWallSF    float64 `json:"report_wall_sf"`
	DeltaSF         float64 `json:"delta_sf"`
	CeilingIncluded bool    `json:"ceiling_included"`
	Formula         string  `json:"formula"`
}

// Deviation is a quantified scope shortfall.
type Deviation struct {
	ID              string                    `json:"id"`
	DeviationType   DeviationType             `json:"deviation_type"`
	Trade           string                    `json:"trade"`
	TradeName       string                    `json:"trade_name"`
	Issue           string                    `json:"issue"`
	EstimateValue   *float64                  `json:"estimate_value,omitempty"`
	ExpectedValue   *float64                  `json:"expected_value,omitempty"`
	Unit            string                    `json:"unit,omitempty"`
	DeltaQuantity   float64                   `json:"delta_quantity"`
	ReportDirective string                    `json:"report_directive,omitempty"`
	ImpactMin       float64                   `json:"impact_min"`
	ImpactMax       float64                   `json:"impact_max"`
	Severity        Severity                  `json:"severity"`
	Calculation     string                    `json:"calculation"`
	RoomGeometry    []RoomGeometryCalculation `json:"room_geometry,omitempty"`
	Source          Source                    `json:"source"`
}

// AuditTrail records how the analysis was computed.
type AuditTrail struct {
	DimensionsUsed      bool                      `json:"dimensions_used"`
	RoomCount           int                       `json:"room_count"`
	RoomGeometry        []RoomGeometryCalculation `json:"room_geometry"`
	TotalPerimeter      float64                   `json:"total_perimeter"`
	AvgCeilingHeight    float64                   `json:"avg_ceiling_height"`
	CalculationMethod   AttributionMode           `json:"calculation_method"`
	Warnings            []string                  `json:"warnings"`
	CostBaselineVersion string                    `json:"cost_baseline_version"`
	Policy              string                    `json:"policy"`
}

// DeviationAnalysis is the single output record of one engine invocation.
type DeviationAnalysis struct {
	AnalysisID     string      `json:"analysis_id"`
	Deviations     []Deviation `json:"deviations"`
	TotalImpactMin float64     `json:"total_impact_min"`
	TotalImpactMax float64     `json:"total_impact_max"`
	CriticalCount  int         `json:"critical_count"`
	HighCount      int         `json:"high_count"`
	ModerateCount  int         `json:"moderate_count"`
	LowCount       int         `json:"low_count"`
	Summary        string      `json:"summary"`
	AuditTrail     AuditTrail  `json:"audit_trail"`
}
