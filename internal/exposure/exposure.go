// Package exposure assembles the final DeviationAnalysis from already
// validated deviations: totals, severity counts, summary and audit trail.
// It performs no validation of its own.
package exposure

import (
	"fmt"
	"strings"

	"github.com/jhouston2019/estimatereviewpro-sub000/internal/baseline"
	"github.com/jhouston2019/estimatereviewpro-sub000/internal/geometry"
	"github.com/jhouston2019/estimatereviewpro-sub000/internal/money"
	"github.com/jhouston2019/estimatereviewpro-sub000/internal/schema"
)

// Input is everything Build needs.
type Input struct {
	AnalysisID      string
	Deviations      []schema.Deviation
	Geometry        []schema.RoomGeometryCalculation
	Totals          geometry.Totals
	Method          schema.AttributionMode
	Warnings        []string
	BaselineVersion string
	Policy          string
}

// Build numbers the deviations DEV-001, DEV-002, ... in order and returns a
// freshly allocated analysis. The input slices are copied, not retained.
func Build(in Input) *schema.DeviationAnalysis {
	a := &schema.DeviationAnalysis{
		AnalysisID: in.AnalysisID,
		Deviations: make([]schema.Deviation, len(in.Deviations)),
	}
	for i, d := range in.Deviations {
		d.ID = fmt.Sprintf("DEV-%03d", i+1)
		if d.RoomGeometry != nil {
			d.RoomGeometry = append([]schema.RoomGeometryCalculation(nil), d.RoomGeometry...)
		}
		a.Deviations[i] = d
		a.TotalImpactMin += d.ImpactMin
		a.TotalImpactMax += d.ImpactMax
	}
	a.TotalImpactMin = baseline.RoundCents(a.TotalImpactMin)
	a.TotalImpactMax = baseline.RoundCents(a.TotalImpactMax)
	a.CriticalCount, a.HighCount, a.ModerateCount, a.LowCount = CountSeverities(a.Deviations)
	a.Summary = Summarize(a)
	a.AuditTrail = schema.AuditTrail{
		DimensionsUsed:      in.Totals.RoomCount > 0,
		RoomCount:           in.Totals.RoomCount,
		RoomGeometry:        append(make([]schema.RoomGeometryCalculation, 0, len(in.Geometry)), in.Geometry...),
		TotalPerimeter:      in.Totals.Perimeter,
		AvgCeilingHeight:    in.Totals.AvgCeilingHeight,
		CalculationMethod:   in.Method,
		Warnings:            append(make([]string, 0, len(in.Warnings)), in.Warnings...),
		CostBaselineVersion: in.BaselineVersion,
		Policy:              in.Policy,
	}
	return a
}

// CountSeverities counts deviations per severity.
func CountSeverities(devs []schema.Deviation) (critical, high, moderate, low int) {
	for _, d := range devs {
		switch d.Severity {
		case schema.SeverityCritical:
			critical++
		case schema.SeverityHigh:
			high++
		case schema.SeverityModerate:
			moderate++
		case schema.SeverityLow:
			low++
		}
	}
	return
}

// Summarize returns the one-paragraph natural-language summary of a.
func Summarize(a *schema.DeviationAnalysis) string {
	n := len(a.Deviations)
	if n == 0 {
		return "No quantity deviations identified."
	}
	noun := "deviations"
	if n == 1 {
		noun = "deviation"
	}
	var b strings.Builder
	fmt.Fprintf(&b, "%d quantity %s identified with total exposure %s",
		n, noun, money.Range(schema.ExposureRange{Min: a.TotalImpactMin, Max: a.TotalImpactMax}))
	var tiers []string
	if a.CriticalCount > 0 {
		tiers = append(tiers, fmt.Sprintf("%d critical", a.CriticalCount))
	}
	if a.HighCount > 0 {
		tiers = append(tiers, fmt.Sprintf("%d high", a.HighCount))
	}
	if len(tiers) > 0 {
		fmt.Fprintf(&b, " (%s)", strings.Join(tiers, ", "))
	}
	b.WriteString(".")
	return b.String()
}

// SeverityOrdinal orders severities for threshold comparison.
// LOW=0, MODERATE=1, HIGH=2, CRITICAL=3; unknown values are -1.
func SeverityOrdinal(s schema.Severity) int {
	switch s {
	case schema.SeverityLow:
		return 0
	case schema.SeverityModerate:
		return 1
	case schema.SeverityHigh:
		return 2
	case schema.SeverityCritical:
		return 3
	default:
		return -1
	}
}

// MaxSeverity returns the most severe severity in a, or "" when a has no
// deviations.
func MaxSeverity(a *schema.DeviationAnalysis) schema.Severity {
	var max schema.Severity
	for _, d := range a.Deviations {
		if SeverityOrdinal(d.Severity) > SeverityOrdinal(max) {
			max = d.Severity
		}
	}
	return max
}

// Exceeds reports whether a holds any deviation at or above threshold.
func Exceeds(a *schema.DeviationAnalysis, threshold schema.Severity) bool {
	m := MaxSeverity(a)
	return m != "" && SeverityOrdinal(m) >= SeverityOrdinal(threshold)
}
