// Package llm extracts structured scope directives from expert-report text
// with an LLM. It builds the prompt, validates the response, and makes one
// repair attempt before giving up.
package llm

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"regexp"
	"strings"

	"github.com/jhouston2019/estimatereviewpro-sub000/internal/classify"
	"github.com/jhouston2019/estimatereviewpro-sub000/internal/reconcile"
	"github.com/jhouston2019/estimatereviewpro-sub000/internal/report"
	"github.com/jhouston2019/estimatereviewpro-sub000/internal/schema"
)

// ErrInvalidModelOutput is returned when both the initial and repair
// responses fail validation. The CLI exits with code 5.
var ErrInvalidModelOutput = errors.New("llm: invalid model output after repair attempt")

// ErrMissingAPIKey is returned by provider constructors when the provider's
// API key is not set.
var ErrMissingAPIKey = errors.New("llm: API key not set")

// Provider is the interface for LLM backends.
type Provider interface {
	Complete(ctx context.Context, systemPrompt, userPrompt string, maxTokens int, temperature float64) (string, error)
}

// NewProvider is the factory for creating providers. It is a package-level
// variable so tests can swap in a mock; restore it with t.Cleanup.
var NewProvider func(providerName, model string) (Provider, error) = defaultNewProvider

// Options configures an Extract call.
type Options struct {
	Provider    string
	Model       string
	MaxTokens   int
	Temperature float64
	// Debug, when non-nil, receives the prompts.
	Debug io.Writer
}

// Extraction is the validated result of one extraction.
type Extraction struct {
	Directives []schema.Directive `json:"directives"`
	// Confidence is the model's self-reported confidence in [0, 1]; it is
	// passed to the engine as the report confidence.
	Confidence float64 `json:"confidence"`
	Notes      string  `json:"notes,omitempty"`
	// Adjustments lists non-fatal corrections applied during validation.
	Adjustments []ValidationError `json:"-"`
}

// ValidationError records a single validation failure on a model response.
type ValidationError struct {
	Field   string
	Message string
}

func (e ValidationError) Error() string {
	return fmt.Sprintf("validation: %s: %s", e.Field, e.Message)
}

// Extract prompts the provider with the numbered report passages and returns
// the validated directives.
func Extract(ctx context.Context, passages []report.Passage, opts Options) (*Extraction, error) {
	if len(passages) == 0 {
		return &Extraction{Directives: []schema.Directive{}}, nil
	}
	provider, err := NewProvider(opts.Provider, opts.Model)
	if err != nil {
		return nil, fmt.Errorf("llm: create provider: %w", err)
	}

	sysPrompt := systemPrompt
	userPrompt := buildUserPrompt(passages)
	if opts.Debug != nil {
		fmt.Fprintf(opts.Debug, "=== DEBUG: system prompt ===\n%s\n", sysPrompt)
		fmt.Fprintf(opts.Debug, "=== DEBUG: user prompt ===\n%s\n", userPrompt)
	}

	raw, err := provider.Complete(ctx, sysPrompt, userPrompt, opts.MaxTokens, opts.Temperature)
	if err != nil {
		return nil, fmt.Errorf("llm: complete: %w", err)
	}
	ex, errs := ValidateResponse(raw)
	if ex != nil && !needsRepair(errs) {
		return ex, nil
	}

	repair := buildRepairPrompt(userPrompt, raw, errs)
	raw2, err := provider.Complete(ctx, sysPrompt, repair, opts.MaxTokens, opts.Temperature)
	if err != nil {
		return nil, fmt.Errorf("llm: repair complete: %w", err)
	}
	ex2, errs2 := ValidateResponse(raw2)
	if ex2 != nil && !needsRepair(errs2) {
		return ex2, nil
	}
	return nil, ErrInvalidModelOutput
}

// Fields whose failure makes a response unusable.
const (
	fieldJSONParse = "json_parse"
	fieldRequired  = "required_field"
	fieldEnum      = "enum"
)

func needsRepair(errs []ValidationError) bool {
	for _, e := range errs {
		switch e.Field {
		case fieldJSONParse, fieldRequired, fieldEnum:
			return true
		}
	}
	return false
}

// fenceRe matches a whole response wrapped in a ``` or ~~~ fence with an
// optional language tag.
var fenceRe = regexp.MustCompile("(?s)^(?:`{3}|~{3})[^\\n]*\\n(.*?)(?:`{3}|~{3})\\s*$")

// openFenceRe matches an opening fence line alone (truncated response).
var openFenceRe = regexp.MustCompile("^(?:`{3}|~{3})[^\\n]*\\n")

func stripMarkdownFences(s string) string {
	s = strings.TrimSpace(s)
	if m := fenceRe.FindStringSubmatch(s); m != nil {
		return strings.TrimSpace(m[1])
	}
	if loc := openFenceRe.FindStringIndex(s); loc != nil {
		return strings.TrimSpace(s[loc[1]:])
	}
	return s
}

var (
	validPriority = map[schema.Priority]bool{
		schema.PriorityCritical: true,
		schema.PriorityHigh:     true,
		schema.PriorityModerate: true,
		schema.PriorityLow:      true,
	}
	validRule = map[schema.QuantityRule]bool{
		"":                      true,
		schema.RuleFullHeight:   true,
		schema.Rule2FtCut:       true,
		schema.Rule4FtCut:       true,
		schema.Rule6FtCut:       true,
		schema.RuleCeilingOnly:  true,
		schema.RuleSpecificArea: true,
	}
)

// ValidateResponse parses and validates a raw model response. It returns a
// nil Extraction when the JSON cannot be parsed or required fields are
// missing. Enum violations are reported with the extraction so the caller
// can request a repair. Non-fatal issues are corrected in place and recorded
// both in the returned errors and in Extraction.Adjustments.
func ValidateResponse(raw string) (*Extraction, []ValidationError) {
	var (
		errs []ValidationError
		ex   Extraction
		// Directives is a pointer so a missing key is distinguishable from [].
		payload struct {
			Directives *[]schema.Directive `json:"directives"`
			Confidence *float64            `json:"confidence"`
			Notes      string              `json:"notes"`
		}
	)
	if err := json.Unmarshal([]byte(stripMarkdownFences(raw)), &payload); err != nil {
		return nil, []ValidationError{{Field: fieldJSONParse, Message: err.Error()}}
	}
	if payload.Directives == nil {
		return nil, []ValidationError{{Field: fieldRequired, Message: "directives is missing"}}
	}
	ex.Directives = *payload.Directives
	ex.Notes = payload.Notes

	for i := range ex.Directives {
		d := &ex.Directives[i]
		if strings.TrimSpace(d.Trade) == "" {
			errs = append(errs, ValidationError{Field: fieldRequired, Message: fmt.Sprintf("directives[%d].trade is empty", i)})
		}
		if strings.TrimSpace(d.RawText) == "" {
			errs = append(errs, ValidationError{Field: fieldRequired, Message: fmt.Sprintf("directives[%d].raw_text is empty", i)})
		}
		d.Priority = schema.Priority(strings.ToUpper(strings.TrimSpace(string(d.Priority))))
		if !validPriority[d.Priority] {
			errs = append(errs, ValidationError{Field: fieldEnum, Message: fmt.Sprintf("directives[%d].priority: invalid priority %q", i, d.Priority)})
		}
		d.QuantityRule = schema.QuantityRule(strings.ToUpper(strings.TrimSpace(string(d.QuantityRule))))
		if !validRule[d.QuantityRule] {
			errs = append(errs, ValidationError{Field: fieldEnum, Message: fmt.Sprintf("directives[%d].quantity_rule: invalid rule %q", i, d.QuantityRule)})
		}
		d.Trade = classify.CanonicalTrade(d.Trade)
		if (reconcile.IsHeightRule(d.QuantityRule) || d.QuantityRule == schema.RuleCeilingOnly) && !d.Measurable {
			d.Measurable = true
			ex.Adjustments = append(ex.Adjustments, ValidationError{
				Field:   fmt.Sprintf("directives[%d].measurable", i),
				Message: fmt.Sprintf("quantity rule %s is measurable; set to true", d.QuantityRule),
			})
		}
	}

	switch {
	case payload.Confidence == nil:
		ex.Adjustments = append(ex.Adjustments, ValidationError{Field: "confidence", Message: "missing; treated as not supplied"})
	case *payload.Confidence < 0 || *payload.Confidence > 1:
		ex.Adjustments = append(ex.Adjustments, ValidationError{Field: "confidence", Message: fmt.Sprintf("%v outside [0, 1]; treated as not supplied", *payload.Confidence)})
	default:
		ex.Confidence = *payload.Confidence
	}
	errs = append(errs, ex.Adjustments...)
	return &ex, errs
}

const systemPrompt = `You extract scope requirements from insurance-claim expert reports
(engineers, industrial hygienists, independent adjusters).

Output ONLY valid JSON conforming to the schema below. No prose, no markdown.

Rules:
- One directive per distinct requirement. Quote the requirement verbatim in raw_text.
- trade is the construction trade code: DRY (drywall), INS (insulation), FLR (flooring),
  BSB (baseboard), PNT (painting), WTR (water mitigation), CLN (cleaning), or another short code.
- quantity_rule is set only when the report states a removal extent:
  FULL_HEIGHT, 2FT_CUT, 4FT_CUT, 6FT_CUT, CEILING_ONLY, or SPECIFIC_AREA (a named area
  without a height). Omit it otherwise.
- measurable is true when the requirement can be checked against quantities.
- priority reflects the report's urgency: CRITICAL (health/safety or structural),
  HIGH, MODERATE, LOW.
- Never invent requirements that are not in the passages. If none exist return "directives": [].

Output schema (JSON only):
{
  "directives": [
    {
      "trade": "DRY",
      "directive_type": "REMOVAL_HEIGHT",
      "measurable": true,
      "quantity_rule": "FULL_HEIGHT",
      "priority": "HIGH",
      "raw_text": "Remove all affected drywall full height."
    }
  ],
  "confidence": 0.9,
  "notes": "optional"
}
`

func buildUserPrompt(passages []report.Passage) string {
	var sb strings.Builder
	sb.WriteString("EXPERT REPORT (numbered passages with line ranges):\n")
	sb.WriteString(report.Numbered(passages))
	sb.WriteString("\nExtract the directives now.")
	return sb.String()
}

// buildRepairPrompt includes the original prompt and the invalid response so
// the model has full context.
func buildRepairPrompt(originalUserPrompt, previousResponse string, errs []ValidationError) string {
	var sb strings.Builder
	sb.WriteString(originalUserPrompt)
	sb.WriteString("\n\nYour previous response was:\n")
	sb.WriteString(previousResponse)
	sb.WriteString("\n\nThat response was invalid. Errors:\n")
	for _, e := range errs {
		fmt.Fprintf(&sb, "  - %s\n", e.Error())
	}
	sb.WriteString("\nOutput only the corrected JSON conforming to the schema.")
	return sb.String()
}

// defaultNewProvider dispatches on provider name.
func defaultNewProvider(providerName, model string) (Provider, error) {
	switch strings.ToLower(providerName) {
	case "anthropic", "":
		return newAnthropicProvider(model)
	case "openai":
		return newOpenAIProvider(model)
	case "google":
		return newGoogleProvider(model)
	default:
		return nil, fmt.Errorf("llm: unknown provider %q", providerName)
	}
}

// DefaultModel returns the model used when none is configured.
func DefaultModel(providerName string) string {
	switch strings.ToLower(providerName) {
	case "openai":
		return "gpt-4o"
	case "google":
		return "gemini-1.5-pro"
	default:
		return "claude-sonnet-4-5"
	}
}
