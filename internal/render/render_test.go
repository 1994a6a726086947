package render

import (
	"encoding/json"
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"
	"gopkg.in/yaml.v3"

	"github.com/jhouston2019/estimatereviewpro-sub000/internal/schema"
)

func ptr(v float64) *float64 { return &v }

func sampleAnalysis() *schema.DeviationAnalysis {
	geo := []schema.RoomGeometryCalculation{{
		RoomName:       "Living Room",
		Perimeter:      70,
		WallHeight:     8,
		EstimateHeight: 2,
		ReportHeight:   8,
		EstimateWallSF: 140,
		ReportWallSF:   560,
		DeltaSF:        420,
		Formula:        "Living Room: required 8.00 ft × 70.00 LF = 560.00 SF",
	}}
	return &schema.DeviationAnalysis{
		AnalysisID: "0b7c7f6a-1d2e-5f00-9a1b-2c3d4e5f6a7b",
		Deviations: []schema.Deviation{
			{
				ID:              "DEV-001",
				DeviationType:   schema.DeviationInsufficientCutHeight,
				Trade:           "DRY",
				TradeName:       "Drywall",
				Issue:           "Drywall wall removal falls 420.00 SF short of the report's FULL_HEIGHT requirement",
				EstimateValue:   ptr(140),
				ExpectedValue:   ptr(560),
				Unit:            "SF",
				DeltaQuantity:   420,
				ReportDirective: "Remove drywall full height | all rooms",
				ImpactMin:       1197,
				ImpactMax:       1848,
				Severity:        schema.SeverityCritical,
				Calculation:     "PER_ROOM: required 560.00 SF, estimated 140.00 SF",
				RoomGeometry:    geo,
				Source:          schema.SourceBoth,
			},
			{
				ID:              "DEV-002",
				DeviationType:   schema.DeviationMissingTrade,
				Trade:           "INS",
				TradeName:       "Insulation",
				Issue:           "Report requires Insulation but the estimate has no Insulation line items",
				ReportDirective: "Replace wet insulation.",
				ImpactMin:       800,
				ImpactMax:       3200,
				Severity:        schema.SeverityHigh,
				Calculation:     "trade INS absent from estimate",
				Source:          schema.SourceReport,
			},
		},
		TotalImpactMin: 1997,
		TotalImpactMax: 5048,
		CriticalCount:  1,
		HighCount:      1,
		Summary:        "2 quantity deviations identified with total exposure $1,997.00–$5,048.00 (1 critical, 1 high).",
		AuditTrail: schema.AuditTrail{
			DimensionsUsed:      true,
			RoomCount:           1,
			RoomGeometry:        geo,
			TotalPerimeter:      70,
			AvgCeilingHeight:    8,
			CalculationMethod:   schema.ModePerRoom,
			Warnings:            []string{"estimate parse confidence 0.55 is below 0.70; line items may be incomplete"},
			CostBaselineVersion: "2026.10-national",
			Policy:              "standard",
		},
	}
}

func TestRenderJSON_RoundTrip(t *testing.T) {
	a := sampleAnalysis()
	b, err := RenderJSON(a)
	if err != nil {
		t.Fatalf("RenderJSON: %v", err)
	}
	var got schema.DeviationAnalysis
	if err := json.Unmarshal(b, &got); err != nil {
		t.Fatalf("json.Unmarshal: %v", err)
	}
	if diff := cmp.Diff(a, &got); diff != "" {
		t.Errorf("round trip mismatch (-want +got):\n%s", diff)
	}
	if !strings.Contains(string(b), "\n  \"analysis_id\"") {
		t.Error("expected indented JSON")
	}
	if !strings.HasSuffix(string(b), "}\n") {
		t.Error("expected trailing newline")
	}
}

func TestRenderJSON_Nil(t *testing.T) {
	if _, err := RenderJSON(nil); err == nil {
		t.Error("RenderJSON(nil): want error")
	}
	if RenderMarkdown(nil) != "" {
		t.Error("RenderMarkdown(nil): want empty")
	}
}

func TestRenderJSON_OptionalValuesOmitted(t *testing.T) {
	b, err := RenderJSON(sampleAnalysis())
	if err != nil {
		t.Fatal(err)
	}
	var raw struct {
		Deviations []map[string]any `json:"deviations"`
	}
	if err := json.Unmarshal(b, &raw); err != nil {
		t.Fatal(err)
	}
	if _, ok := raw.Deviations[1]["estimate_value"]; ok {
		t.Error("missing-trade deviation should omit estimate_value")
	}
	if _, ok := raw.Deviations[0]["estimate_value"]; !ok {
		t.Error("area deviation should carry estimate_value")
	}
}

func TestRenderMarkdown(t *testing.T) {
	md := RenderMarkdown(sampleAnalysis())
	want := []string{
		"## Estimate Deviation Analysis",
		"**Total exposure:** $1,997.00–$5,048.00",
		"**Critical:** 1 | **High:** 1 | **Moderate:** 0 | **Low:** 0",
		"| DEV-001 | CRITICAL | INSUFFICIENT_CUT_HEIGHT | Drywall | 420.00 SF | $1,197.00–$1,848.00 | BOTH |",
		"| DEV-002 | HIGH | MISSING_REQUIRED_TRADE | Insulation | n/a | $800.00–$3,200.00 | REPORT |",
		"**Estimate / expected:** 140.00 SF / 560.00 SF",
		`Remove drywall full height \| all rooms`,
		"| Living Room | 70.00 | 8.00 | 140.00 | 560.00 | 420.00 |",
		"- **Calculation method:** PER_ROOM",
		"- **Cost baseline:** 2026.10-national",
		"### Warnings",
		"parse confidence 0.55",
	}
	for _, w := range want {
		if !strings.Contains(md, w) {
			t.Errorf("markdown missing %q", w)
		}
	}
}

func TestRenderMarkdown_NoDeviations(t *testing.T) {
	a := sampleAnalysis()
	a.Deviations = []schema.Deviation{}
	a.AuditTrail.Warnings = []string{}
	md := RenderMarkdown(a)
	if strings.Contains(md, "## Deviations") || strings.Contains(md, "### Warnings") {
		t.Error("empty sections rendered")
	}
	if !strings.Contains(md, "## Audit Trail") {
		t.Error("audit trail always rendered")
	}
}

func TestRenderDirectives(t *testing.T) {
	ds := []schema.Directive{{
		Trade:        "DRY",
		Measurable:   true,
		QuantityRule: schema.RuleFullHeight,
		Priority:     schema.PriorityHigh,
		RawText:      "Remove drywall full height.",
	}}
	b, err := RenderDirectives(ds, 0.9)
	if err != nil {
		t.Fatalf("RenderDirectives: %v", err)
	}
	var got struct {
		ReportConfidence float64            `yaml:"report_confidence"`
		Directives       []schema.Directive `yaml:"directives"`
	}
	if err := yaml.Unmarshal(b, &got); err != nil {
		t.Fatalf("yaml.Unmarshal: %v\n%s", err, b)
	}
	if got.ReportConfidence != 0.9 {
		t.Errorf("report_confidence = %v", got.ReportConfidence)
	}
	if diff := cmp.Diff(ds, got.Directives); diff != "" {
		t.Errorf("directives mismatch (-want +got):\n%s", diff)
	}

	empty, err := RenderDirectives(nil, 0)
	if err != nil {
		t.Fatal(err)
	}
	if strings.TrimSpace(string(empty)) != "directives: []" {
		t.Errorf("empty = %q", empty)
	}
}
