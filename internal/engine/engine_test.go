package engine

import (
	"encoding/json"
	"fmt"
	"math"
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
	"go.uber.org/zap/zaptest"
	"golang.org/x/sync/errgroup"

	"github.com/jhouston2019/estimatereviewpro-sub000/internal/baseline"
	"github.com/jhouston2019/estimatereviewpro-sub000/internal/deviation"
	"github.com/jhouston2019/estimatereviewpro-sub000/internal/policy"
	"github.com/jhouston2019/estimatereviewpro-sub000/internal/schema"
	"github.com/jhouston2019/estimatereviewpro-sub000/internal/validation"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

var (
	livingRoom = schema.Room{Name: "Living Room", Length: 20, Width: 15, Height: 8}
	bedroom    = schema.Room{Name: "Bedroom", Length: 10, Width: 10, Height: 8}
)

func fullHeight() schema.Directive {
	return schema.Directive{
		Trade:         "DRY",
		DirectiveType: "REMOVAL_HEIGHT",
		Measurable:    true,
		QuantityRule:  schema.RuleFullHeight,
		Priority:      schema.PriorityHigh,
		RawText:       "All wet drywall shall be removed full height.",
	}
}

func cut(room string, qty float64) schema.LineItem {
	return schema.LineItem{
		TradeCode:   "DRY",
		Description: "Tear out wet drywall, 2ft flood cut - " + room,
		ActionType:  schema.ActionRemove,
		Quantity:    qty,
		Unit:        "SF",
		RCV:         qty * 1.5,
		ACV:         qty * 1.2,
	}
}

func scenarioA() Input {
	return Input{
		Estimate:   []schema.LineItem{cut("Living Room", 140)},
		Directives: []schema.Directive{fullHeight()},
		Rooms:      []schema.Room{livingRoom},
	}
}

func TestAnalyze_ScenarioA(t *testing.T) {
	a, err := Analyze(scenarioA(), Options{Logger: zaptest.NewLogger(t)})
	require.NoError(t, err)
	require.Len(t, a.Deviations, 1)

	d := a.Deviations[0]
	assert.Equal(t, "DEV-001", d.ID)
	assert.Equal(t, schema.DeviationInsufficientCutHeight, d.DeviationType)
	assert.Equal(t, 420.0, d.DeltaQuantity)
	assert.Equal(t, 1197.0, d.ImpactMin)
	assert.Equal(t, 1848.0, d.ImpactMax)
	assert.Equal(t, schema.SeverityCritical, d.Severity)

	assert.Equal(t, 1, a.CriticalCount)
	assert.Equal(t, 1197.0, a.TotalImpactMin)
	assert.Equal(t, schema.ModePerRoom, a.AuditTrail.CalculationMethod)
	assert.True(t, a.AuditTrail.DimensionsUsed)
	assert.Equal(t, 1, a.AuditTrail.RoomCount)
	assert.Equal(t, 70.0, a.AuditTrail.TotalPerimeter)
	assert.Equal(t, 8.0, a.AuditTrail.AvgCeilingHeight)
	assert.Equal(t, baseline.Default().Version(), a.AuditTrail.CostBaselineVersion)
	assert.Equal(t, "standard", a.AuditTrail.Policy)
	assert.NotEmpty(t, a.AnalysisID)
}

func TestAnalyze_ScenarioB(t *testing.T) {
	in := scenarioA()
	in.Estimate[0].Quantity = 560
	in.Estimate[0].Description = "Tear out wet drywall full height - Living Room"

	a, err := Analyze(in, Options{})
	require.NoError(t, err)
	assert.Empty(t, a.Deviations)
	assert.Equal(t, 0.0, a.TotalImpactMax)
	assert.Equal(t, "No quantity deviations identified.", a.Summary)
	require.Len(t, a.AuditTrail.RoomGeometry, 1, "the satisfied comparison is still audited")
}

func TestAnalyze_ScenarioC(t *testing.T) {
	cases := []schema.Room{
		{Name: "Closet", Length: 0, Width: 0, Height: 8},
		{Name: "Closet", Length: 0, Width: 5, Height: 8},
		{Name: "Closet", Length: -4, Width: 5, Height: 8},
		{Name: "Closet", Length: math.NaN(), Width: 5, Height: 8},
		{Name: "Closet", Length: 4, Width: 5, Height: math.Inf(1)},
	}
	for i, room := range cases {
		t.Run(fmt.Sprint(i), func(t *testing.T) {
			in := scenarioA()
			in.Rooms = append(in.Rooms, room)
			a, err := Analyze(in, Options{})
			require.Error(t, err)
			assert.Nil(t, a)
			assert.Equal(t, validation.CodeInvalidRoom, validation.CodeOf(err))
		})
	}
}

func TestAnalyze_ScenarioD(t *testing.T) {
	in := Input{
		Estimate:   []schema.LineItem{cut("Living Room", 140)},
		Directives: []schema.Directive{fullHeight()},
		Rooms:      []schema.Room{livingRoom, bedroom},
	}
	a, err := Analyze(in, Options{})
	require.NoError(t, err)
	assert.Equal(t, schema.ModePerRoom, a.AuditTrail.CalculationMethod)
	require.Len(t, a.Deviations, 1)

	d := a.Deviations[0]
	require.Len(t, d.RoomGeometry, 2)
	assert.Equal(t, 420.0, d.RoomGeometry[0].DeltaSF)
	assert.Equal(t, 320.0, d.RoomGeometry[1].DeltaSF)
	assert.Equal(t, 0.0, d.RoomGeometry[1].EstimateWallSF)
	assert.Equal(t, d.RoomGeometry[0].DeltaSF+d.RoomGeometry[1].DeltaSF, d.DeltaQuantity)
	assert.Contains(t, strings.Join(a.AuditTrail.Warnings, "\n"), `"Bedroom" has no mapped line items`)
}

func TestAnalyze_Hybrid(t *testing.T) {
	in := Input{
		Estimate: []schema.LineItem{
			cut("Living Room", 140),
			cut("Bedroom", 80),
			{TradeCode: "DRY", Description: "Drywall removal - hallway", ActionType: schema.ActionRemove, Quantity: 100, Unit: "SF"},
		},
		Directives: []schema.Directive{fullHeight()},
		Rooms:      []schema.Room{livingRoom, bedroom},
	}
	a, err := Analyze(in, Options{})
	require.NoError(t, err)
	assert.Equal(t, schema.ModeHybrid, a.AuditTrail.CalculationMethod)
	require.Len(t, a.Deviations, 1)
	// 420 + 240 short in the rooms, less 100 SF of unmapped removal.
	assert.Equal(t, 560.0, a.Deviations[0].DeltaQuantity)
	assert.Contains(t, a.Deviations[0].Calculation, "unmapped estimate credit 100.00 SF")
}

func TestAnalyze_AggregateFallback(t *testing.T) {
	in := Input{
		Estimate:   []schema.LineItem{{TradeCode: "DRY", Description: "Flood cut 2ft", ActionType: schema.ActionRemove, Quantity: 220, Unit: "SF"}},
		Directives: []schema.Directive{fullHeight()},
		Rooms:      []schema.Room{livingRoom, bedroom},
	}
	a, err := Analyze(in, Options{})
	require.NoError(t, err)
	assert.Equal(t, schema.ModeAggregate, a.AuditTrail.CalculationMethod)
	require.Len(t, a.Deviations, 1)
	assert.Equal(t, 660.0, a.Deviations[0].DeltaQuantity)
	assert.Contains(t, strings.Join(a.AuditTrail.Warnings, "\n"), "aggregate fallback")
}

func TestAnalyze_MissingDimensions(t *testing.T) {
	in := scenarioA()
	in.Rooms = nil
	a, err := Analyze(in, Options{})
	assert.Nil(t, a)
	assert.Equal(t, validation.CodeMissingDimensions, validation.CodeOf(err))
}

func TestAnalyze_MissingTradeWithoutRooms(t *testing.T) {
	in := Input{
		Estimate: []schema.LineItem{cut("Living Room", 140)},
		Directives: []schema.Directive{
			{Trade: "INS", Measurable: true, Priority: schema.PriorityCritical, RawText: "Replace all wet insulation."},
		},
	}
	a, err := Analyze(in, Options{})
	require.NoError(t, err)
	require.Len(t, a.Deviations, 1)
	assert.Equal(t, schema.DeviationMissingTrade, a.Deviations[0].DeviationType)
	assert.Equal(t, schema.SeverityCritical, a.Deviations[0].Severity)
	assert.False(t, a.AuditTrail.DimensionsUsed)
	assert.Zero(t, a.AuditTrail.RoomCount)
}

func TestAnalyze_HeightExceedsCeiling(t *testing.T) {
	in := scenarioA()
	in.Estimate[0].Quantity = 700
	a, err := Analyze(in, Options{})
	assert.Nil(t, a)
	assert.Equal(t, validation.CodeHeightExceedsCeiling, validation.CodeOf(err))
}

func TestAnalyze_InvalidQuantity(t *testing.T) {
	for _, q := range []float64{-1, math.NaN(), math.Inf(1)} {
		in := scenarioA()
		in.Estimate[0].Quantity = q
		_, err := Analyze(in, Options{})
		assert.Equal(t, validation.CodeInvalidQuantity, validation.CodeOf(err), "quantity %v", q)
	}
}

func TestAnalyze_InvalidConfidence(t *testing.T) {
	cases := []struct {
		name  string
		parse float64
		rep   float64
		field string
	}{
		{"parse nan", math.NaN(), 0.9, "parse_confidence"},
		{"report nan", 0.9, math.NaN(), "report_confidence"},
		{"parse inf", math.Inf(1), 0, "parse_confidence"},
		{"report negative", 0, -0.1, "report_confidence"},
		{"parse above one", 1.5, 0, "parse_confidence"},
	}
	for _, c := range cases {
		in := scenarioA()
		in.ParseConfidence, in.ReportConfidence = c.parse, c.rep
		a, err := Analyze(in, Options{})
		assert.Nil(t, a, c.name)
		var ve *validation.Error
		if assert.ErrorAs(t, err, &ve, c.name) {
			assert.Equal(t, validation.CodeInvalidConfidence, ve.Code, c.name)
			assert.Equal(t, c.field, ve.Field, c.name)
		}
	}

	in := scenarioA()
	in.ParseConfidence, in.ReportConfidence = 1, 0
	_, err := Analyze(in, Options{})
	assert.NoError(t, err, "bounds are inclusive and zero means not supplied")
}

func TestAnalyze_InvalidBaselineRange(t *testing.T) {
	bad := baseline.FromFunc("bad-1", func(_ string, q float64, _, _ string) (schema.ExposureRange, bool) {
		return schema.ExposureRange{Min: 5 * q, Max: -q}, true
	}, nil)
	a, err := Analyze(scenarioA(), Options{Baseline: bad})
	assert.Nil(t, a)
	assert.ErrorIs(t, err, deviation.ErrInvalidExposure)
	assert.Empty(t, validation.CodeOf(err))
}

func TestAnalyze_Warnings(t *testing.T) {
	in := scenarioA()
	in.ParseConfidence = 0.55
	in.ReportConfidence = 0.95
	in.Estimate = append(in.Estimate, schema.LineItem{
		TradeCode: "DRY", Description: "Drywall patch - Living Room", ActionType: schema.ActionReplace, Quantity: 2, Unit: "EA",
	})
	a, err := Analyze(in, Options{})
	require.NoError(t, err)
	joined := strings.Join(a.AuditTrail.Warnings, "\n")
	assert.Contains(t, joined, "parse confidence 0.55")
	assert.NotContains(t, joined, "report extraction confidence")
	assert.Contains(t, joined, `unit "EA" is not SF`)
}

func TestAnalyze_PolicyChangesSeverity(t *testing.T) {
	lenient, err := policy.Load("lenient")
	require.NoError(t, err)
	a, err := Analyze(scenarioA(), Options{Policy: lenient})
	require.NoError(t, err)
	// 420 SF is HIGH under the lenient 500/250 thresholds.
	assert.Equal(t, schema.SeverityHigh, a.Deviations[0].Severity)

	std, err := Analyze(scenarioA(), Options{})
	require.NoError(t, err)
	assert.NotEqual(t, std.AnalysisID, a.AnalysisID)
}

func TestAnalyze_InvalidPolicy(t *testing.T) {
	p := policy.Default()
	p.HighDeltaSF = p.CriticalDeltaSF + 1
	_, err := Analyze(scenarioA(), Options{Policy: p})
	require.Error(t, err)
}

func TestAnalyze_Idempotent(t *testing.T) {
	first, err := Analyze(scenarioA(), Options{})
	require.NoError(t, err)
	second, err := Analyze(scenarioA(), Options{})
	require.NoError(t, err)
	if diff := cmp.Diff(first, second); diff != "" {
		t.Errorf("second run differs (-first +second):\n%s", diff)
	}
	b1, err := json.Marshal(first)
	require.NoError(t, err)
	b2, err := json.Marshal(second)
	require.NoError(t, err)
	assert.Equal(t, string(b1), string(b2))
}

func TestAnalyze_Concurrent(t *testing.T) {
	want, err := Analyze(scenarioA(), Options{})
	require.NoError(t, err)

	var g errgroup.Group
	results := make([]string, 32)
	for i := range results {
		i := i
		g.Go(func() error {
			a, err := Analyze(scenarioA(), Options{})
			if err != nil {
				return err
			}
			b, err := json.Marshal(a)
			results[i] = string(b)
			return err
		})
	}
	require.NoError(t, g.Wait())

	wantJSON, err := json.Marshal(want)
	require.NoError(t, err)
	for i, got := range results {
		assert.Equal(t, string(wantJSON), got, "goroutine %d", i)
	}
}

func TestAnalyze_InputNotMutated(t *testing.T) {
	in := scenarioA()
	before := scenarioA()
	_, err := Analyze(in, Options{})
	require.NoError(t, err)
	if diff := cmp.Diff(before, in); diff != "" {
		t.Errorf("input mutated:\n%s", diff)
	}
}
