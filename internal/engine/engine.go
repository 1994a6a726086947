// Package engine is the entry point of the deviation engine. Analyze
// validates its inputs, attributes estimate quantities to rooms, runs the
// deviation checks, and assembles a DeviationAnalysis.
//
// Analyze is a pure function of its arguments: it performs no I/O, keeps no
// package-level mutable state, and may be called concurrently. The same
// inputs with the same baseline version and policy always produce a
// byte-identical analysis. On any validation failure it returns a nil
// analysis; partial results are never returned.
package engine

import (
	"encoding/json"
	"fmt"
	"math"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/jhouston2019/estimatereviewpro-sub000/internal/attribution"
	"github.com/jhouston2019/estimatereviewpro-sub000/internal/baseline"
	"github.com/jhouston2019/estimatereviewpro-sub000/internal/classify"
	"github.com/jhouston2019/estimatereviewpro-sub000/internal/deviation"
	"github.com/jhouston2019/estimatereviewpro-sub000/internal/exposure"
	"github.com/jhouston2019/estimatereviewpro-sub000/internal/geometry"
	"github.com/jhouston2019/estimatereviewpro-sub000/internal/policy"
	"github.com/jhouston2019/estimatereviewpro-sub000/internal/schema"
	"github.com/jhouston2019/estimatereviewpro-sub000/internal/validation"
)

// Input is one claim: the parsed estimate, the extracted report directives,
// and the measured rooms. Confidences are in [0, 1]; zero means not supplied.
type Input struct {
	Estimate         []schema.LineItem  `json:"estimate"`
	Directives       []schema.Directive `json:"directives"`
	Rooms            []schema.Room      `json:"rooms"`
	ParseConfidence  float64            `json:"parse_confidence,omitempty"`
	ReportConfidence float64            `json:"report_confidence,omitempty"`
}

// Options configures Analyze. A nil Baseline uses baseline.Default(), a
// zero Policy uses policy.Default(), and a nil Logger discards output.
type Options struct {
	Baseline baseline.Lookup
	Policy   policy.Policy
	Logger   *zap.Logger
}

func (o Options) withDefaults() Options {
	if o.Baseline == nil {
		o.Baseline = baseline.Default()
	}
	if o.Policy == (policy.Policy{}) {
		o.Policy = policy.Default()
	}
	if o.Logger == nil {
		o.Logger = zap.NewNop()
	}
	return o
}

var analysisNamespace = uuid.NewSHA1(uuid.NameSpaceURL, []byte("https://github.com/jhouston2019/estimatereviewpro-sub000/deviation-analysis"))

// Analyze runs the deviation engine over one claim.
func Analyze(in Input, opts Options) (*schema.DeviationAnalysis, error) {
	opts = opts.withDefaults()
	log := opts.Logger

	if err := opts.Policy.Validate(); err != nil {
		return nil, fmt.Errorf("engine: policy %q: %w", opts.Policy.Name, err)
	}
	if err := Validate(in); err != nil {
		log.Debug("input rejected", zap.Error(err))
		return nil, err
	}

	warnings := confidenceWarnings(in, opts.Policy)
	for _, ex := range classify.PartitionItems(in.Estimate).Excluded {
		warnings = append(warnings, fmt.Sprintf("line item %q: %s", ex.Item.Description, ex.Reason))
	}

	req := deviation.Request{
		Directives: in.Directives,
		Items:      in.Estimate,
		Rooms:      in.Rooms,
	}
	method := schema.ModeAggregate
	var totals geometry.Totals
	if len(in.Rooms) > 0 {
		ctrl := attribution.New(in.Rooms, in.Estimate)
		req.Attributor = ctrl
		method = ctrl.Mode()
		totals = ctrl.Totals()
		warnings = append(warnings, ctrl.Warnings()...)
	} else {
		warnings = append(warnings, "no room dimensions supplied; only missing-trade checks were run")
	}

	calc := deviation.Calculator{Baseline: opts.Baseline, Policy: opts.Policy}
	res, err := calc.Evaluate(req)
	if err != nil {
		log.Debug("deviation run aborted", zap.Error(err))
		return nil, err
	}
	warnings = append(warnings, res.Warnings...)

	id, err := AnalysisID(in, opts.Baseline.Version(), opts.Policy)
	if err != nil {
		return nil, err
	}

	a := exposure.Build(exposure.Input{
		AnalysisID:      id,
		Deviations:      res.Deviations,
		Geometry:        res.Audit,
		Totals:          totals,
		Method:          method,
		Warnings:        warnings,
		BaselineVersion: opts.Baseline.Version(),
		Policy:          opts.Policy.Name,
	})
	log.Debug("analysis complete",
		zap.String("analysis_id", a.AnalysisID),
		zap.String("method", string(method)),
		zap.Int("deviations", len(a.Deviations)),
		zap.Float64("impact_min", a.TotalImpactMin),
		zap.Float64("impact_max", a.TotalImpactMax),
		zap.Int("warnings", len(warnings)))
	return a, nil
}

// Validate re-checks the invariants the engine depends on. Rooms need
// positive finite dimensions, line items a finite non-negative quantity, and
// supplied confidences must lie in [0, 1].
func Validate(in Input) error {
	for i, r := range in.Rooms {
		if err := geometry.ValidateRoom(r, fmt.Sprintf("rooms[%d]", i)); err != nil {
			return err
		}
	}
	for i, li := range in.Estimate {
		if !geometry.Finite(li.Quantity) || li.Quantity < 0 {
			return validation.New(validation.CodeInvalidQuantity, fmt.Sprintf("estimate[%d].quantity", i),
				"line item %q quantity must be finite and non-negative, got %v", li.Description, li.Quantity)
		}
	}
	for _, c := range []struct {
		field string
		v     float64
	}{
		{"parse_confidence", in.ParseConfidence},
		{"report_confidence", in.ReportConfidence},
	} {
		if !geometry.Finite(c.v) || c.v < 0 || c.v > 1 {
			return validation.New(validation.CodeInvalidConfidence, c.field,
				"confidence must be within [0, 1], got %v", c.v)
		}
	}
	return nil
}

func confidenceWarnings(in Input, p policy.Policy) []string {
	var out []string
	if in.ParseConfidence > 0 && in.ParseConfidence < p.LowConfidence {
		out = append(out, fmt.Sprintf("estimate parse confidence %.2f is below %.2f; line items may be incomplete",
			in.ParseConfidence, p.LowConfidence))
	}
	if in.ReportConfidence > 0 && in.ReportConfidence < p.LowConfidence {
		out = append(out, fmt.Sprintf("report extraction confidence %.2f is below %.2f; directives may be incomplete",
			in.ReportConfidence, p.LowConfidence))
	}
	return out
}

// AnalysisID derives a stable identifier from the inputs, the baseline
// version and the policy, so identical runs share an ID.
func AnalysisID(in Input, baselineVersion string, p policy.Policy) (string, error) {
	fp := struct {
		Input    Input         `json:"input"`
		Baseline string        `json:"baseline"`
		Policy   policy.Policy `json:"policy"`
	}{sanitize(in), baselineVersion, p}
	data, err := json.Marshal(fp)
	if err != nil {
		return "", fmt.Errorf("engine: fingerprint: %w", err)
	}
	return uuid.NewSHA1(analysisNamespace, data).String(), nil
}

// sanitize replaces non-finite money values, which JSON cannot encode. They
// take no part in the analysis.
func sanitize(in Input) Input {
	items := make([]schema.LineItem, len(in.Estimate))
	for i, li := range in.Estimate {
		if !geometry.Finite(li.RCV) {
			li.RCV = math.MaxFloat64
		}
		if !geometry.Finite(li.ACV) {
			li.ACV = math.MaxFloat64
		}
		items[i] = li
	}
	in.Estimate = items
	return in
}
