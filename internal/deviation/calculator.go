// Package deviation turns report directives and room dimensions into
// quantified, severity-ranked shortfalls against an estimate. It performs no
// I/O and holds no state; every call works on its arguments only.
package deviation

import (
	"errors"
	"fmt"
	"strings"

	"github.com/jhouston2019/estimatereviewpro-sub000/internal/baseline"
	"github.com/jhouston2019/estimatereviewpro-sub000/internal/classify"
	"github.com/jhouston2019/estimatereviewpro-sub000/internal/geometry"
	"github.com/jhouston2019/estimatereviewpro-sub000/internal/money"
	"github.com/jhouston2019/estimatereviewpro-sub000/internal/policy"
	"github.com/jhouston2019/estimatereviewpro-sub000/internal/reconcile"
	"github.com/jhouston2019/estimatereviewpro-sub000/internal/schema"
	"github.com/jhouston2019/estimatereviewpro-sub000/internal/validation"
)

// Calculator computes deviations using an injected cost baseline and a
// severity policy. The zero value is not usable; both fields are required.
type Calculator struct {
	Baseline baseline.Lookup
	Policy   policy.Policy
}

// Request is the input to Evaluate. Rooms must already be validated.
// Attributor may be nil only when Rooms is empty.
type Request struct {
	Directives []schema.Directive
	Items      []schema.LineItem
	Rooms      []schema.Room
	Attributor Attributor
}

// Result holds the deviations of one evaluation in emission order (IDs are
// not yet assigned), every geometry record computed, and warnings.
type Result struct {
	Deviations []schema.Deviation
	Audit      []schema.RoomGeometryCalculation
	Warnings   []string
}

// Outcome says why a check did or did not produce a deviation.
type Outcome int

const (
	Emitted Outcome = iota
	NoShortfall
	Unpriced
	// InvalidExposure means the baseline returned a negative, inverted or
	// non-finite range. Evaluate treats it as fatal.
	InvalidExposure
)

// ErrInvalidExposure is returned by Evaluate when the injected baseline
// produces a range that is negative, inverted or not finite.
var ErrInvalidExposure = errors.New("deviation: cost baseline returned an invalid exposure range")

// materials maps a category to the material key used for baseline lookups.
var materials = map[classify.Category]string{
	classify.CategoryDrywallWall:    "WALL",
	classify.CategoryDrywallCeiling: "CEILING",
	classify.CategoryInsulation:     "BATT",
}

// Evaluate runs every directive check and then the dimension-only checks.
// A validation error aborts the evaluation and no Result is returned.
func (c Calculator) Evaluate(req Request) (Result, error) {
	var (
		res      Result
		reported = make(map[classify.Category]int) // category → index in res.Deviations
		governed = make(map[classify.Category]bool)
		missing  = make(map[string]bool)
	)

	for i, d := range req.Directives {
		if !d.Measurable {
			continue
		}
		field := fmt.Sprintf("directives[%d]", i)
		trade := classify.CanonicalTrade(d.Trade)

		if !classify.TradePresent(req.Items, trade) {
			if missing[trade] {
				continue
			}
			missing[trade] = true
			dev, out := c.MissingTrade(d)
			if out == InvalidExposure {
				return Result{}, c.invalidExposure(field, trade)
			}
			if out == Unpriced {
				res.Warnings = append(res.Warnings, fmt.Sprintf(
					"%s: no missing-trade band for %s in cost baseline %s; %s not emitted",
					field, trade, c.Baseline.Version(), schema.DeviationMissingTrade))
				continue
			}
			res.Deviations = append(res.Deviations, dev)
			continue
		}

		kind, cat, check, ok := c.directiveCheck(trade, d.QuantityRule)
		if !ok {
			if d.QuantityRule == schema.RuleSpecificArea {
				res.Warnings = append(res.Warnings, fmt.Sprintf(
					"%s: %s directive uses SPECIFIC_AREA, which is not height-resolvable; excluded from geometric checks",
					field, classify.TradeName(trade)))
			}
			continue
		}
		if req.Attributor == nil || len(req.Rooms) == 0 {
			return Result{}, validation.New(validation.CodeMissingDimensions, field,
				"%s %s comparison requires room dimensions, none supplied", classify.TradeName(trade), kind)
		}

		sf, err := req.Attributor.Shortfall(check)
		if err != nil {
			return Result{}, fmt.Errorf("deviation: %s: %w", field, err)
		}
		res.Audit = append(res.Audit, sf.Audit...)
		governed[cat] = true

		directive := d
		dev, out := c.AreaDeviation(kind, cat, &directive, sf)
		switch out {
		case InvalidExposure:
			return Result{}, c.invalidExposure(field, cat.Trade())
		case Unpriced:
			res.Warnings = append(res.Warnings, c.unpricedWarning(field, cat, kind))
			continue
		case NoShortfall:
			continue
		}
		if j, dup := reported[cat]; dup {
			// Two directives on the same category: keep the larger shortfall.
			if dev.DeltaQuantity > res.Deviations[j].DeltaQuantity {
				res.Deviations[j] = dev
			}
			res.Warnings = append(res.Warnings, fmt.Sprintf(
				"%s: duplicates an earlier %s directive; the larger shortfall is reported", field, cat))
			continue
		}
		reported[cat] = len(res.Deviations)
		res.Deviations = append(res.Deviations, dev)
	}

	if len(req.Rooms) == 0 {
		return res, nil
	}

	totals := geometry.Summarize(req.Rooms)
	part := classify.PartitionItems(req.Items)
	for _, cat := range classify.Categories {
		items := part.Of(cat)
		if len(items) == 0 {
			continue
		}
		dev, out := c.DimensionDeviation(cat, expectedFor(cat, totals), classify.Quantity(items))
		if out == InvalidExposure {
			return Result{}, c.invalidExposure("dimensions", cat.Trade())
		}
		if j, ok := reported[cat]; ok {
			if out == Emitted {
				res.Deviations[j].Source = schema.SourceBoth
			}
			continue
		}
		if governed[cat] {
			continue
		}
		switch out {
		case Emitted:
			res.Deviations = append(res.Deviations, dev)
		case Unpriced:
			res.Warnings = append(res.Warnings, c.unpricedWarning("dimensions", cat, schema.DeviationQuantityShortfall))
		}
	}
	return res, nil
}

// directiveCheck selects the geometric check a directive on trade requires.
func (c Calculator) directiveCheck(trade string, rule schema.QuantityRule) (schema.DeviationType, classify.Category, ScopeCheck, bool) {
	switch trade {
	case classify.TradeDrywall:
		switch {
		case reconcile.IsHeightRule(rule):
			return schema.DeviationInsufficientCutHeight, classify.CategoryDrywallWall, WallCheck(rule), true
		case rule == schema.RuleCeilingOnly:
			return schema.DeviationInsufficientCeiling, classify.CategoryDrywallCeiling, CeilingCheck(), true
		}
	case classify.TradeInsulation:
		if rule == "" || reconcile.IsHeightRule(rule) {
			return schema.DeviationInsufficientInsul, classify.CategoryInsulation, InsulationCheck(rule), true
		}
	}
	return "", "", nil, false
}

func (c Calculator) invalidExposure(field, trade string) error {
	return fmt.Errorf("deviation: %s: %w for %s (baseline %s)", field, ErrInvalidExposure, trade, c.Baseline.Version())
}

func (c Calculator) unpricedWarning(field string, cat classify.Category, kind schema.DeviationType) string {
	return fmt.Sprintf("%s: no cost baseline rate for %s/%s/%s in version %s; %s not emitted",
		field, cat.Trade(), cat.Unit(), materials[cat], c.Baseline.Version(), kind)
}

func expectedFor(cat classify.Category, t geometry.Totals) float64 {
	switch cat {
	case classify.CategoryDrywallWall, classify.CategoryInsulation:
		return t.WallArea
	case classify.CategoryDrywallCeiling:
		return t.CeilingArea
	case classify.CategoryFlooring:
		return t.FloorArea
	default:
		return t.Perimeter
	}
}

// MissingTrade builds the deviation for a required trade absent from the
// estimate, priced with the baseline's fixed band.
func (c Calculator) MissingTrade(d schema.Directive) (schema.Deviation, Outcome) {
	trade := classify.CanonicalTrade(d.Trade)
	band, ok := c.Baseline.MissingTradeBand(trade)
	if !ok {
		return schema.Deviation{}, Unpriced
	}
	if baseline.CheckExposure(band) != nil {
		return schema.Deviation{}, InvalidExposure
	}
	name := classify.TradeName(trade)
	return schema.Deviation{
		DeviationType:   schema.DeviationMissingTrade,
		Trade:           trade,
		TradeName:       name,
		Issue:           fmt.Sprintf("Report requires %s but the estimate has no %s line items", name, name),
		ReportDirective: d.RawText,
		ImpactMin:       band.Min,
		ImpactMax:       band.Max,
		Severity:        policy.PrioritySeverity(d.Priority),
		Calculation: fmt.Sprintf("trade %s absent from estimate; fixed band %s (baseline %s); %s priority",
			trade, money.Range(band), c.Baseline.Version(), d.Priority),
		Source: schema.SourceReport,
	}, Emitted
}

// AreaDeviation prices an attributed shortfall. It never emits when the
// delta is not positive or when the baseline has no matching rate.
func (c Calculator) AreaDeviation(kind schema.DeviationType, cat classify.Category, d *schema.Directive, sf Shortfall) (schema.Deviation, Outcome) {
	if sf.Delta <= 0 {
		return schema.Deviation{}, NoShortfall
	}
	unit := cat.Unit()
	exp, ok := c.Baseline.Exposure(cat.Trade(), sf.Delta, unit, materials[cat])
	if !ok {
		return schema.Deviation{}, Unpriced
	}
	if baseline.CheckExposure(exp) != nil {
		return schema.Deviation{}, InvalidExposure
	}

	var calc strings.Builder
	fmt.Fprintf(&calc, "%s: required %.2f %s, estimated %.2f %s", sf.Mode, sf.Required, unit, sf.Estimate, unit)
	if len(sf.Rooms) > 0 && sf.Mode != schema.ModeAggregate {
		var sum float64
		for _, r := range sf.Rooms {
			sum += r.DeltaSF
		}
		fmt.Fprintf(&calc, "; room shortfalls sum to %.2f %s over %d room(s)", sum, unit, len(sf.Rooms))
	}
	if sf.Credit > 0 {
		fmt.Fprintf(&calc, "; unmapped estimate credit %.2f %s", sf.Credit, unit)
	}
	fmt.Fprintf(&calc, "; delta %.2f %s; exposure %s from %s/%s/%s rates (baseline %s)",
		sf.Delta, unit, money.Range(exp), cat.Trade(), unit, materials[cat], c.Baseline.Version())

	dev := schema.Deviation{
		DeviationType: kind,
		Trade:         cat.Trade(),
		TradeName:     classify.TradeName(cat.Trade()),
		Issue:         issueFor(kind, sf.Delta, unit, d),
		EstimateValue: f64(sf.Estimate),
		ExpectedValue: f64(sf.Required),
		Unit:          unit,
		DeltaQuantity: sf.Delta,
		ImpactMin:     exp.Min,
		ImpactMax:     exp.Max,
		Severity:      c.Policy.DeltaSeverity(sf.Delta),
		Calculation:   calc.String(),
		RoomGeometry:  sf.Rooms,
		Source:        schema.SourceReport,
	}
	if d != nil {
		dev.ReportDirective = d.RawText
	}
	return dev, Emitted
}

func issueFor(kind schema.DeviationType, delta float64, unit string, d *schema.Directive) string {
	switch kind {
	case schema.DeviationInsufficientCutHeight:
		rule := schema.QuantityRule("")
		if d != nil {
			rule = d.QuantityRule
		}
		return fmt.Sprintf("Drywall wall removal falls %.2f %s short of the report's %s requirement", delta, unit, rule)
	case schema.DeviationInsufficientCeiling:
		return fmt.Sprintf("Drywall ceiling removal falls %.2f %s short of the ceiling area the report requires", delta, unit)
	case schema.DeviationInsufficientInsul:
		return fmt.Sprintf("Insulation replacement falls %.2f %s short of the affected wall area", delta, unit)
	}
	return fmt.Sprintf("Estimate falls %.2f %s short", delta, unit)
}

// DimensionDeviation compares an aggregate estimate quantity with the
// quantity the room dimensions support. Only a shortfall whose share of
// expected exceeds the policy's variance threshold is flagged.
func (c Calculator) DimensionDeviation(cat classify.Category, expected, estimate float64) (schema.Deviation, Outcome) {
	if expected <= 0 || estimate >= expected {
		return schema.Deviation{}, NoShortfall
	}
	delta := expected - estimate
	variance := delta / expected
	sev, flagged := c.Policy.VarianceSeverity(variance)
	if !flagged {
		return schema.Deviation{}, NoShortfall
	}
	unit := cat.Unit()
	exp, ok := c.Baseline.Exposure(cat.Trade(), delta, unit, materials[cat])
	if !ok {
		return schema.Deviation{}, Unpriced
	}
	if baseline.CheckExposure(exp) != nil {
		return schema.Deviation{}, InvalidExposure
	}
	name := classify.TradeName(cat.Trade())
	if cat == classify.CategoryDrywallCeiling {
		name = "Drywall ceiling"
	}
	return schema.Deviation{
		DeviationType: schema.DeviationQuantityShortfall,
		Trade:         cat.Trade(),
		TradeName:     classify.TradeName(cat.Trade()),
		Issue: fmt.Sprintf("%s quantity %.2f %s is %.1f%% below the %.2f %s the room dimensions support",
			name, estimate, unit, variance*100, expected, unit),
		EstimateValue: f64(estimate),
		ExpectedValue: f64(expected),
		Unit:          unit,
		DeltaQuantity: delta,
		ImpactMin:     exp.Min,
		ImpactMax:     exp.Max,
		Severity:      sev,
		Calculation: fmt.Sprintf("%s: expected %.2f %s from room totals, estimated %.2f %s; variance %.1f%% (threshold %.0f%%, high above %.0f%%); exposure %s (baseline %s)",
			cat, expected, unit, estimate, unit, variance*100,
			c.Policy.VarianceThreshold*100, c.Policy.HighVarianceThreshold*100, money.Range(exp), c.Baseline.Version()),
		Source: schema.SourceDimension,
	}, Emitted
}

func f64(v float64) *float64 {
	return &v
}
