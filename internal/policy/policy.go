// Package policy holds the severity thresholds applied to quantity
// shortfalls. The thresholds are policy, not law: a named built-in can be
// selected or a YAML file can override any of them.
package policy

import (
	"bytes"
	"fmt"
	"math"
	"os"
	"sort"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/jhouston2019/estimatereviewpro-sub000/internal/schema"
)

// Policy configures severity classification.
type Policy struct {
	Name        string `yaml:"name"`
	Description string `yaml:"description"`
	// CriticalDeltaSF and HighDeltaSF classify area shortfalls: a delta above
	// CriticalDeltaSF is CRITICAL, above HighDeltaSF is HIGH, else MODERATE.
	CriticalDeltaSF float64 `yaml:"critical_delta_sf"`
	HighDeltaSF     float64 `yaml:"high_delta_sf"`
	// VarianceThreshold is the fraction of the expected quantity a
	// dimension-only shortfall must exceed to be flagged at all;
	// HighVarianceThreshold promotes it from MODERATE to HIGH.
	VarianceThreshold     float64 `yaml:"variance_threshold"`
	HighVarianceThreshold float64 `yaml:"high_variance_threshold"`
	// LowConfidence is the parse/report confidence below which a warning is
	// added to the audit trail.
	LowConfidence float64 `yaml:"low_confidence"`
}

// builtins is the registry of built-in policies keyed by name.
var builtins = map[string]Policy{
	"standard": {
		Name:                  "standard",
		Description:           "Default thresholds: 400/200 SF, 20%/40% variance.",
		CriticalDeltaSF:       400,
		HighDeltaSF:           200,
		VarianceThreshold:     0.20,
		HighVarianceThreshold: 0.40,
		LowConfidence:         0.70,
	},
	"conservative": {
		Name:                  "conservative",
		Description:           "Flags smaller shortfalls earlier: 300/150 SF, 15%/30% variance.",
		CriticalDeltaSF:       300,
		HighDeltaSF:           150,
		VarianceThreshold:     0.15,
		HighVarianceThreshold: 0.30,
		LowConfidence:         0.80,
	},
	"lenient": {
		Name:                  "lenient",
		Description:           "Tolerates more estimating slack: 500/250 SF, 25%/50% variance.",
		CriticalDeltaSF:       500,
		HighDeltaSF:           250,
		VarianceThreshold:     0.25,
		HighVarianceThreshold: 0.50,
		LowConfidence:         0.60,
	},
}

// Default returns the standard policy.
func Default() Policy {
	return builtins["standard"]
}

// Names returns the built-in policy names, sorted.
func Names() []string {
	names := make([]string, 0, len(builtins))
	for n := range builtins {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}

// Load returns the named built-in policy or an error if the name is unknown.
func Load(name string) (Policy, error) {
	p, ok := builtins[name]
	if !ok {
		return Policy{}, fmt.Errorf("policy: unknown policy %q (available: %s)", name, strings.Join(Names(), ", "))
	}
	return p, nil
}

// LoadFile reads a YAML policy. Fields left out keep the standard values.
func LoadFile(path string) (Policy, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Policy{}, fmt.Errorf("policy: read %s: %w", path, err)
	}
	p := Default()
	p.Name = "custom"
	p.Description = ""
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(&p); err != nil {
		return Policy{}, fmt.Errorf("policy: parse %s: %w", path, err)
	}
	if err := p.Validate(); err != nil {
		return Policy{}, fmt.Errorf("policy: %s: %w", path, err)
	}
	return p, nil
}

// Validate rejects non-finite or non-positive thresholds and inverted tiers.
func (p Policy) Validate() error {
	for _, f := range []struct {
		name string
		v    float64
	}{
		{"critical_delta_sf", p.CriticalDeltaSF},
		{"high_delta_sf", p.HighDeltaSF},
		{"variance_threshold", p.VarianceThreshold},
		{"high_variance_threshold", p.HighVarianceThreshold},
		{"low_confidence", p.LowConfidence},
	} {
		if math.IsNaN(f.v) || math.IsInf(f.v, 0) {
			return fmt.Errorf("%s must be finite, got %v", f.name, f.v)
		}
	}
	if p.HighDeltaSF <= 0 || p.CriticalDeltaSF <= 0 {
		return fmt.Errorf("delta thresholds must be positive")
	}
	if p.HighDeltaSF >= p.CriticalDeltaSF {
		return fmt.Errorf("high_delta_sf (%v) must be below critical_delta_sf (%v)", p.HighDeltaSF, p.CriticalDeltaSF)
	}
	if p.VarianceThreshold <= 0 || p.HighVarianceThreshold <= 0 {
		return fmt.Errorf("variance thresholds must be positive")
	}
	if p.VarianceThreshold >= p.HighVarianceThreshold {
		return fmt.Errorf("variance_threshold (%v) must be below high_variance_threshold (%v)", p.VarianceThreshold, p.HighVarianceThreshold)
	}
	if p.LowConfidence < 0 || p.LowConfidence > 1 {
		return fmt.Errorf("low_confidence must be within [0, 1]")
	}
	return nil
}

// DeltaSeverity classifies an area shortfall in square feet.
func (p Policy) DeltaSeverity(deltaSF float64) schema.Severity {
	switch {
	case deltaSF > p.CriticalDeltaSF:
		return schema.SeverityCritical
	case deltaSF > p.HighDeltaSF:
		return schema.SeverityHigh
	default:
		return schema.SeverityModerate
	}
}

// VarianceSeverity classifies a dimension-only shortfall expressed as a
// fraction of the expected quantity. ok is false when the variance does not
// exceed VarianceThreshold and nothing should be flagged.
func (p Policy) VarianceSeverity(variance float64) (sev schema.Severity, ok bool) {
	switch {
	case variance > p.HighVarianceThreshold:
		return schema.SeverityHigh, true
	case variance > p.VarianceThreshold:
		return schema.SeverityModerate, true
	default:
		return "", false
	}
}

// PrioritySeverity maps a directive priority to the severity of a missing
// trade: CRITICAL stays CRITICAL, everything else is HIGH.
func PrioritySeverity(p schema.Priority) schema.Severity {
	if p == schema.PriorityCritical {
		return schema.SeverityCritical
	}
	return schema.SeverityHigh
}
