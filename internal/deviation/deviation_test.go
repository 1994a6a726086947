package deviation

import (
	"errors"
	"math"
	"strings"
	"testing"

	"github.com/jhouston2019/estimatereviewpro-sub000/internal/baseline"
	"github.com/jhouston2019/estimatereviewpro-sub000/internal/geometry"
	"github.com/jhouston2019/estimatereviewpro-sub000/internal/policy"
	"github.com/jhouston2019/estimatereviewpro-sub000/internal/schema"
	"github.com/jhouston2019/estimatereviewpro-sub000/internal/validation"
)

// singleScope attributes everything to one room-sized scope.
type singleScope struct {
	scope Scope
}

func (s singleScope) Mode() schema.AttributionMode { return schema.ModeAggregate }

func (s singleScope) Shortfall(check ScopeCheck) (Shortfall, error) {
	rec, err := check(s.scope)
	if err != nil {
		return Shortfall{}, err
	}
	sf := Shortfall{
		Mode:     schema.ModeAggregate,
		Required: rec.ReportWallSF,
		Estimate: rec.EstimateWallSF,
		Delta:    math.Max(rec.DeltaSF, 0),
		Audit:    []schema.RoomGeometryCalculation{rec},
	}
	if rec.DeltaSF > 0 {
		sf.Rooms = sf.Audit
	}
	return sf, nil
}

var living = schema.Room{Name: "Living Room", Length: 20, Width: 15, Height: 8}

func scopeFor(r schema.Room, wallSF, ceilingSF, insSF float64) singleScope {
	return singleScope{Scope{
		Name:          r.Name,
		Perimeter:     geometry.Perimeter(r),
		CeilingHeight: r.Height,
		CeilingArea:   geometry.CeilingArea(r),
		WallSF:        wallSF,
		CeilingSF:     ceilingSF,
		InsulationSF:  insSF,
	}}
}

func calc() Calculator {
	return Calculator{Baseline: baseline.Default(), Policy: policy.Default()}
}

func drywall(desc string, qty float64) schema.LineItem {
	return schema.LineItem{TradeCode: "DRY", Description: desc, ActionType: schema.ActionRemove, Quantity: qty, Unit: "SF"}
}

func fullHeight() schema.Directive {
	return schema.Directive{
		Trade:        "drywall",
		Measurable:   true,
		QuantityRule: schema.RuleFullHeight,
		Priority:     schema.PriorityHigh,
		RawText:      "Remove drywall full height in all affected rooms.",
	}
}

func TestEvaluate_ScenarioA(t *testing.T) {
	req := Request{
		Directives: []schema.Directive{fullHeight()},
		Items:      []schema.LineItem{drywall("Drywall flood cut 2ft - Living Room", 140)},
		Rooms:      []schema.Room{living},
		Attributor: scopeFor(living, 140, 0, 0),
	}
	res, err := calc().Evaluate(req)
	if err != nil {
		t.Fatalf("Evaluate: %v", err)
	}
	if len(res.Deviations) != 1 {
		t.Fatalf("got %d deviations, want 1: %+v", len(res.Deviations), res.Deviations)
	}
	d := res.Deviations[0]
	if d.DeviationType != schema.DeviationInsufficientCutHeight {
		t.Errorf("type = %s", d.DeviationType)
	}
	if d.DeltaQuantity != 420 {
		t.Errorf("delta = %v, want 420", d.DeltaQuantity)
	}
	if d.ImpactMin != 1197 || d.ImpactMax != 1848 {
		t.Errorf("exposure = %v–%v, want 1197–1848 (420 × 2.85–4.40)", d.ImpactMin, d.ImpactMax)
	}
	if d.Severity != schema.SeverityCritical {
		t.Errorf("severity = %s, want CRITICAL", d.Severity)
	}
	// Dimension check agrees (140 of 560 SF), so the source is upgraded.
	if d.Source != schema.SourceBoth {
		t.Errorf("source = %s, want BOTH", d.Source)
	}
	if d.EstimateValue == nil || *d.EstimateValue != 140 || d.ExpectedValue == nil || *d.ExpectedValue != 560 {
		t.Errorf("estimate/expected = %v/%v", d.EstimateValue, d.ExpectedValue)
	}
	if len(d.RoomGeometry) != 1 || d.RoomGeometry[0].EstimateHeight != 2 {
		t.Errorf("room geometry = %+v", d.RoomGeometry)
	}
}

func TestEvaluate_ScenarioB_NoShortfall(t *testing.T) {
	req := Request{
		Directives: []schema.Directive{fullHeight()},
		Items:      []schema.LineItem{drywall("Drywall full height - Living Room", 560)},
		Rooms:      []schema.Room{living},
		Attributor: scopeFor(living, 560, 0, 0),
	}
	res, err := calc().Evaluate(req)
	if err != nil {
		t.Fatalf("Evaluate: %v", err)
	}
	if len(res.Deviations) != 0 {
		t.Errorf("got %d deviations, want 0: %+v", len(res.Deviations), res.Deviations)
	}
	if len(res.Audit) != 1 || res.Audit[0].DeltaSF != 0 {
		t.Errorf("audit = %+v", res.Audit)
	}
}

func TestEvaluate_HeightExceedsCeiling(t *testing.T) {
	// 700 SF over 70 LF is 10 ft on an 8 ft wall.
	req := Request{
		Directives: []schema.Directive{fullHeight()},
		Items:      []schema.LineItem{drywall("Drywall - Living Room", 700)},
		Rooms:      []schema.Room{living},
		Attributor: scopeFor(living, 700, 0, 0),
	}
	_, err := calc().Evaluate(req)
	if got := validation.CodeOf(err); got != validation.CodeHeightExceedsCeiling {
		t.Fatalf("err = %v (code %q), want HEIGHT_EXCEEDS_CEILING", err, got)
	}
}

func TestEvaluate_MissingDimensions(t *testing.T) {
	req := Request{
		Directives: []schema.Directive{fullHeight()},
		Items:      []schema.LineItem{drywall("Drywall 2ft", 140)},
	}
	_, err := calc().Evaluate(req)
	if got := validation.CodeOf(err); got != validation.CodeMissingDimensions {
		t.Fatalf("err = %v, want MISSING_DIMENSIONS", err)
	}
}

func TestEvaluate_MissingTrade(t *testing.T) {
	cases := []struct {
		priority schema.Priority
		want     schema.Severity
	}{
		{schema.PriorityCritical, schema.SeverityCritical},
		{schema.PriorityHigh, schema.SeverityHigh},
		{schema.PriorityLow, schema.SeverityHigh},
	}
	for _, c := range cases {
		d := schema.Directive{Trade: "INS", Measurable: true, Priority: c.priority, RawText: "Replace wet insulation."}
		// No rooms: a missing trade needs no geometry.
		res, err := calc().Evaluate(Request{
			Directives: []schema.Directive{d, d},
			Items:      []schema.LineItem{drywall("Drywall 2ft", 140)},
		})
		if err != nil {
			t.Fatalf("%s: Evaluate: %v", c.priority, err)
		}
		if len(res.Deviations) != 1 {
			t.Fatalf("%s: got %d deviations, want 1 (duplicates collapse)", c.priority, len(res.Deviations))
		}
		dev := res.Deviations[0]
		if dev.DeviationType != schema.DeviationMissingTrade || dev.Severity != c.want {
			t.Errorf("%s: got %s/%s, want MISSING_REQUIRED_TRADE/%s", c.priority, dev.DeviationType, dev.Severity, c.want)
		}
		if dev.ImpactMin != 800 || dev.ImpactMax != 3200 {
			t.Errorf("%s: band = %v–%v", c.priority, dev.ImpactMin, dev.ImpactMax)
		}
	}
}

func TestEvaluate_NonMeasurableIgnored(t *testing.T) {
	d := fullHeight()
	d.Measurable = false
	res, err := calc().Evaluate(Request{Directives: []schema.Directive{d}})
	if err != nil {
		t.Fatalf("Evaluate: %v", err)
	}
	if len(res.Deviations) != 0 {
		t.Errorf("non-measurable directive produced %d deviations", len(res.Deviations))
	}
}

func TestEvaluate_SpecificAreaWarns(t *testing.T) {
	d := fullHeight()
	d.QuantityRule = schema.RuleSpecificArea
	res, err := calc().Evaluate(Request{
		Directives: []schema.Directive{d},
		Items:      []schema.LineItem{drywall("Drywall - Living Room", 560)},
	})
	if err != nil {
		t.Fatalf("Evaluate: %v", err)
	}
	if len(res.Deviations) != 0 {
		t.Errorf("SPECIFIC_AREA produced deviations: %+v", res.Deviations)
	}
	if len(res.Warnings) != 1 || !strings.Contains(res.Warnings[0], "SPECIFIC_AREA") {
		t.Errorf("warnings = %q", res.Warnings)
	}
}

func TestEvaluate_CeilingOnly(t *testing.T) {
	d := fullHeight()
	d.QuantityRule = schema.RuleCeilingOnly
	items := []schema.LineItem{
		drywall("Drywall full height - Living Room", 560),
		drywall("Drywall ceiling - Living Room", 100),
	}
	res, err := calc().Evaluate(Request{
		Directives: []schema.Directive{d},
		Items:      items,
		Rooms:      []schema.Room{living},
		Attributor: scopeFor(living, 560, 100, 0),
	})
	if err != nil {
		t.Fatalf("Evaluate: %v", err)
	}
	if len(res.Deviations) != 1 {
		t.Fatalf("got %d deviations: %+v", len(res.Deviations), res.Deviations)
	}
	dev := res.Deviations[0]
	if dev.DeviationType != schema.DeviationInsufficientCeiling || dev.DeltaQuantity != 200 {
		t.Errorf("got %s delta %v, want INSUFFICIENT_CEILING_REMOVAL delta 200", dev.DeviationType, dev.DeltaQuantity)
	}
	if dev.Severity != schema.SeverityModerate {
		t.Errorf("severity = %s, want MODERATE", dev.Severity)
	}
	if dev.ImpactMin != 680 || dev.ImpactMax != 1020 {
		t.Errorf("exposure = %v–%v, want ceiling rates 680–1020", dev.ImpactMin, dev.ImpactMax)
	}
}

func TestEvaluate_Insulation(t *testing.T) {
	ins := schema.Directive{Trade: "insulation", Measurable: true, Priority: schema.PriorityHigh}
	items := []schema.LineItem{
		{TradeCode: "INS", Description: "Replace batt insulation - Living Room", ActionType: schema.ActionReplace, Quantity: 280, Unit: "SF"},
	}
	res, err := calc().Evaluate(Request{
		Directives: []schema.Directive{ins},
		Items:      items,
		Rooms:      []schema.Room{living},
		Attributor: scopeFor(living, 0, 0, 280),
	})
	if err != nil {
		t.Fatalf("Evaluate: %v", err)
	}
	if len(res.Deviations) != 1 {
		t.Fatalf("got %d deviations: %+v", len(res.Deviations), res.Deviations)
	}
	dev := res.Deviations[0]
	if dev.DeviationType != schema.DeviationInsufficientInsul || dev.DeltaQuantity != 280 {
		t.Errorf("got %s delta %v", dev.DeviationType, dev.DeltaQuantity)
	}
	if dev.Severity != schema.SeverityHigh {
		t.Errorf("severity = %s, want HIGH", dev.Severity)
	}
}

func TestEvaluate_UnpricedSkipped(t *testing.T) {
	empty := baseline.FromFunc("empty-1", func(string, float64, string, string) (schema.ExposureRange, bool) {
		return schema.ExposureRange{}, false
	}, nil)
	c := Calculator{Baseline: empty, Policy: policy.Default()}
	res, err := c.Evaluate(Request{
		Directives: []schema.Directive{fullHeight(), {Trade: "FLR", Measurable: true, Priority: schema.PriorityLow}},
		Items:      []schema.LineItem{drywall("Drywall flood cut 2ft - Living Room", 140)},
		Rooms:      []schema.Room{living},
		Attributor: scopeFor(living, 140, 0, 0),
	})
	if err != nil {
		t.Fatalf("Evaluate: %v", err)
	}
	if len(res.Deviations) != 0 {
		t.Errorf("unpriced checks emitted deviations: %+v", res.Deviations)
	}
	if len(res.Warnings) < 2 {
		t.Errorf("warnings = %q, want one per unpriced check", res.Warnings)
	}
}

func TestEvaluate_InvalidExposureFatal(t *testing.T) {
	inverted := baseline.FromFunc("inverted-1", func(_ string, q float64, _, _ string) (schema.ExposureRange, bool) {
		return schema.ExposureRange{Min: 5 * q, Max: -q}, true
	}, map[string]schema.ExposureRange{"INS": {Min: 3200, Max: 800}})
	c := Calculator{Baseline: inverted, Policy: policy.Default()}

	cases := map[string]Request{
		"area": {
			Directives: []schema.Directive{fullHeight()},
			Items:      []schema.LineItem{drywall("Drywall flood cut 2ft - Living Room", 140)},
			Rooms:      []schema.Room{living},
			Attributor: scopeFor(living, 140, 0, 0),
		},
		"dimensions": {
			Items: []schema.LineItem{drywall("Drywall flood cut 2ft - Living Room", 140)},
			Rooms: []schema.Room{living},
		},
		"missing trade": {
			Directives: []schema.Directive{{Trade: "INS", Measurable: true, Priority: schema.PriorityHigh}},
			Items:      []schema.LineItem{drywall("Drywall 2ft", 140)},
		},
	}
	for name, req := range cases {
		res, err := c.Evaluate(req)
		if !errors.Is(err, ErrInvalidExposure) {
			t.Errorf("%s: err = %v, want ErrInvalidExposure", name, err)
			continue
		}
		if !strings.Contains(err.Error(), "inverted-1") {
			t.Errorf("%s: error does not name the baseline version: %v", name, err)
		}
		if len(res.Deviations) != 0 {
			t.Errorf("%s: deviations returned alongside error: %+v", name, res.Deviations)
		}
		if validation.CodeOf(err) != "" {
			t.Errorf("%s: invalid baseline reported as input validation %q", name, validation.CodeOf(err))
		}
	}
}

func TestEvaluate_NonFiniteExposureFatal(t *testing.T) {
	inf := baseline.FromFunc("inf-1", func(_ string, q float64, _, _ string) (schema.ExposureRange, bool) {
		return schema.ExposureRange{Min: q, Max: math.Inf(1)}, true
	}, nil)
	c := Calculator{Baseline: inf, Policy: policy.Default()}
	_, err := c.Evaluate(Request{
		Directives: []schema.Directive{fullHeight()},
		Items:      []schema.LineItem{drywall("Drywall flood cut 2ft - Living Room", 140)},
		Rooms:      []schema.Room{living},
		Attributor: scopeFor(living, 140, 0, 0),
	})
	if !errors.Is(err, ErrInvalidExposure) {
		t.Errorf("err = %v, want ErrInvalidExposure", err)
	}
}

func TestEvaluate_Monotonic(t *testing.T) {
	rules := []schema.QuantityRule{schema.Rule2FtCut, schema.Rule4FtCut, schema.Rule6FtCut, schema.RuleFullHeight}
	prevDelta, prevMax := -1.0, -1.0
	for _, r := range rules {
		d := fullHeight()
		d.QuantityRule = r
		res, err := calc().Evaluate(Request{
			Directives: []schema.Directive{d},
			Items:      []schema.LineItem{drywall("Drywall flood cut - Living Room", 140)},
			Rooms:      []schema.Room{living},
			Attributor: scopeFor(living, 140, 0, 0),
		})
		if err != nil {
			t.Fatalf("%s: Evaluate: %v", r, err)
		}
		var delta, max float64
		for _, dev := range res.Deviations {
			if dev.DeviationType == schema.DeviationInsufficientCutHeight {
				delta, max = dev.DeltaQuantity, dev.ImpactMax
			}
		}
		if delta < prevDelta || max < prevMax {
			t.Errorf("%s: delta %v max %v decreased from %v/%v", r, delta, max, prevDelta, prevMax)
		}
		prevDelta, prevMax = delta, max
	}
}

func TestDimensionDeviation(t *testing.T) {
	cases := []struct {
		name     string
		expected float64
		estimate float64
		wantOut  Outcome
		wantSev  schema.Severity
	}{
		{"within threshold", 1000, 850, NoShortfall, ""},
		{"exactly threshold", 1000, 800, NoShortfall, ""},
		{"moderate", 1000, 700, Emitted, schema.SeverityModerate},
		{"high", 1000, 500, Emitted, schema.SeverityHigh},
		{"over estimate", 1000, 1200, NoShortfall, ""},
		{"no expected", 0, 10, NoShortfall, ""},
	}
	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			dev, out := calc().DimensionDeviation("FLOORING", c.expected, c.estimate)
			if out != c.wantOut {
				t.Fatalf("outcome = %v, want %v", out, c.wantOut)
			}
			if out != Emitted {
				return
			}
			if dev.Severity != c.wantSev || dev.Source != schema.SourceDimension {
				t.Errorf("got %s/%s, want %s/DIMENSION", dev.Severity, dev.Source, c.wantSev)
			}
			if dev.DeltaQuantity != c.expected-c.estimate {
				t.Errorf("delta = %v", dev.DeltaQuantity)
			}
		})
	}
}

func TestEvaluate_DimensionOnly(t *testing.T) {
	// Flooring in a 20x15 room is 300 SF; 120 SF is 60% short.
	items := []schema.LineItem{
		{TradeCode: "FCC", Description: "Carpet - Living Room", ActionType: schema.ActionReplace, Quantity: 120, Unit: "SF"},
	}
	res, err := calc().Evaluate(Request{Items: items, Rooms: []schema.Room{living}, Attributor: scopeFor(living, 0, 0, 0)})
	if err != nil {
		t.Fatalf("Evaluate: %v", err)
	}
	if len(res.Deviations) != 1 {
		t.Fatalf("got %d deviations: %+v", len(res.Deviations), res.Deviations)
	}
	dev := res.Deviations[0]
	if dev.DeviationType != schema.DeviationQuantityShortfall || dev.Trade != "FLR" || dev.Severity != schema.SeverityHigh {
		t.Errorf("got %s %s %s", dev.DeviationType, dev.Trade, dev.Severity)
	}
	if dev.DeltaQuantity != 180 {
		t.Errorf("delta = %v, want 180", dev.DeltaQuantity)
	}
}

func TestWallCheck_InvalidPerimeter(t *testing.T) {
	_, err := WallCheck(schema.RuleFullHeight)(Scope{Name: "closet", CeilingHeight: 8, WallSF: 10})
	if validation.CodeOf(err) != validation.CodeInvalidPerimeter {
		t.Fatalf("err = %v, want INVALID_PERIMETER", err)
	}
}
