// Package render produces output from a DeviationAnalysis or an extraction.
package render

import (
	"encoding/json"
	"fmt"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/jhouston2019/estimatereviewpro-sub000/internal/money"
	"github.com/jhouston2019/estimatereviewpro-sub000/internal/schema"
)

// RenderJSON produces a pretty-printed JSON representation of the analysis.
// The output round-trips through json.Unmarshal back to an equal analysis.
func RenderJSON(a *schema.DeviationAnalysis) ([]byte, error) {
	if a == nil {
		return nil, fmt.Errorf("render: nil analysis")
	}
	b, err := json.MarshalIndent(a, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("render: json marshal: %w", err)
	}
	return append(b, '\n'), nil
}

// RenderMarkdown produces a GitHub-flavoured Markdown report of the analysis.
// Every deviation ID and every warning appears in the output.
func RenderMarkdown(a *schema.DeviationAnalysis) string {
	if a == nil {
		return ""
	}
	var sb strings.Builder
	tr := a.AuditTrail

	sb.WriteString("## Estimate Deviation Analysis\n\n")
	fmt.Fprintf(&sb, "**Analysis:** `%s`  \n", a.AnalysisID)
	fmt.Fprintf(&sb, "**Total exposure:** %s  \n", money.Range(schema.ExposureRange{Min: a.TotalImpactMin, Max: a.TotalImpactMax}))
	fmt.Fprintf(&sb, "**Critical:** %d | **High:** %d | **Moderate:** %d | **Low:** %d\n\n",
		a.CriticalCount, a.HighCount, a.ModerateCount, a.LowCount)
	fmt.Fprintf(&sb, "%s\n\n", a.Summary)

	if len(a.Deviations) > 0 {
		sb.WriteString("## Deviations\n\n")
		sb.WriteString("| ID | Severity | Type | Trade | Shortfall | Exposure | Source |\n")
		sb.WriteString("|---|---|---|---|---|---|---|\n")
		for _, d := range a.Deviations {
			fmt.Fprintf(&sb, "| %s | %s | %s | %s | %s | %s | %s |\n",
				d.ID, d.Severity, d.DeviationType, mdEscape(d.TradeName), quantity(d.DeltaQuantity, d.Unit),
				money.Range(schema.ExposureRange{Min: d.ImpactMin, Max: d.ImpactMax}), d.Source)
		}
		sb.WriteString("\n")

		for _, d := range a.Deviations {
			fmt.Fprintf(&sb, "<details>\n<summary><strong>%s</strong> [%s] %s</summary>\n\n",
				d.ID, d.Severity, mdEscape(d.Issue))
			if d.ReportDirective != "" {
				fmt.Fprintf(&sb, "**Report directive:** %s\n\n", mdEscape(d.ReportDirective))
			}
			if d.EstimateValue != nil && d.ExpectedValue != nil {
				fmt.Fprintf(&sb, "**Estimate / expected:** %s / %s\n\n",
					quantity(*d.EstimateValue, d.Unit), quantity(*d.ExpectedValue, d.Unit))
			}
			fmt.Fprintf(&sb, "**Calculation:** %s\n\n", mdEscape(d.Calculation))
			writeGeometry(&sb, d.RoomGeometry)
			sb.WriteString("</details>\n\n")
		}
	}

	sb.WriteString("## Audit Trail\n\n")
	used := "no"
	if tr.DimensionsUsed {
		used = "yes"
	}
	fmt.Fprintf(&sb, "- **Dimensions used:** %s\n", used)
	fmt.Fprintf(&sb, "- **Rooms:** %d (total perimeter %.2f LF, average ceiling height %.2f ft)\n",
		tr.RoomCount, tr.TotalPerimeter, tr.AvgCeilingHeight)
	fmt.Fprintf(&sb, "- **Calculation method:** %s\n", tr.CalculationMethod)
	fmt.Fprintf(&sb, "- **Cost baseline:** %s\n", tr.CostBaselineVersion)
	fmt.Fprintf(&sb, "- **Severity policy:** %s\n\n", tr.Policy)

	if len(tr.RoomGeometry) > 0 {
		sb.WriteString("### Room Geometry\n\n")
		writeGeometry(&sb, tr.RoomGeometry)
	}
	if len(tr.Warnings) > 0 {
		sb.WriteString("### Warnings\n\n")
		for _, w := range tr.Warnings {
			fmt.Fprintf(&sb, "- %s\n", mdEscape(w))
		}
		sb.WriteString("\n")
	}
	return sb.String()
}

func writeGeometry(sb *strings.Builder, recs []schema.RoomGeometryCalculation) {
	if len(recs) == 0 {
		return
	}
	sb.WriteString("| Room | Perimeter (LF) | Ceiling (ft) | Estimate (SF) | Required (SF) | Delta (SF) | Formula |\n")
	sb.WriteString("|---|---|---|---|---|---|---|\n")
	for _, r := range recs {
		fmt.Fprintf(sb, "| %s | %.2f | %.2f | %.2f | %.2f | %.2f | %s |\n",
			mdEscape(r.RoomName), r.Perimeter, r.WallHeight, r.EstimateWallSF, r.ReportWallSF, r.DeltaSF, mdEscape(r.Formula))
	}
	sb.WriteString("\n")
}

func quantity(v float64, unit string) string {
	if unit == "" {
		return "n/a"
	}
	return fmt.Sprintf("%.2f %s", v, unit)
}

// mdEscape replaces characters that would break Markdown table cells.
func mdEscape(s string) string {
	s = strings.ReplaceAll(s, "|", "\\|")
	s = strings.ReplaceAll(s, "\n", " ")
	s = strings.ReplaceAll(s, "\r", "")
	return s
}

// RenderDirectives renders extracted directives as a YAML document that can
// be pasted into a claim file's directives key.
func RenderDirectives(directives []schema.Directive, confidence float64) ([]byte, error) {
	doc := struct {
		ReportConfidence float64            `yaml:"report_confidence,omitempty"`
		Directives       []schema.Directive `yaml:"directives"`
	}{confidence, directives}
	if doc.Directives == nil {
		doc.Directives = []schema.Directive{}
	}
	b, err := yaml.Marshal(doc)
	if err != nil {
		return nil, fmt.Errorf("render: yaml marshal: %w", err)
	}
	return b, nil
}
