// Package claim loads claim files: the parsed estimate, report directives and
// room dimensions of one insurance claim, in YAML or JSON.
package claim

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/jhouston2019/estimatereviewpro-sub000/internal/engine"
	"github.com/jhouston2019/estimatereviewpro-sub000/internal/schema"
)

// Claim is the on-disk form of one claim.
type Claim struct {
	ID               string             `yaml:"id"`
	Report           string             `yaml:"report,omitempty"`
	ParseConfidence  float64            `yaml:"parse_confidence"`
	ReportConfidence float64            `yaml:"report_confidence"`
	Rooms            []schema.Room      `yaml:"rooms"`
	Estimate         []schema.LineItem  `yaml:"estimate"`
	Directives       []schema.Directive `yaml:"directives"`

	// Path is the file the claim was loaded from, if any.
	Path string `yaml:"-"`
}

// Load reads and validates a claim file. JSON is accepted since it is valid
// YAML.
func Load(path string) (*Claim, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("claim: read %s: %w", path, err)
	}
	c, err := Parse(data)
	if err != nil {
		return nil, fmt.Errorf("claim: %s: %w", path, err)
	}
	c.Path = path
	if c.ID == "" {
		c.ID = strings.TrimSuffix(filepath.Base(path), filepath.Ext(path))
	}
	return c, nil
}

// Parse decodes a single claim document with strict field checking.
func Parse(data []byte) (*Claim, error) {
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	var c Claim
	if err := dec.Decode(&c); err != nil {
		if errors.Is(err, io.EOF) {
			return nil, fmt.Errorf("empty claim document")
		}
		return nil, fmt.Errorf("decode: %w", err)
	}
	var extra yaml.Node
	if err := dec.Decode(&extra); !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("claim files hold a single document")
	}
	if err := c.validate(); err != nil {
		return nil, err
	}
	return &c, nil
}

var (
	actions = map[schema.ActionType]bool{
		schema.ActionRemove: true, schema.ActionReplace: true, schema.ActionInstall: true,
		schema.ActionRepair: true, schema.ActionClean: true, schema.ActionOther: true,
	}
	priorities = map[schema.Priority]bool{
		schema.PriorityCritical: true, schema.PriorityHigh: true,
		schema.PriorityModerate: true, schema.PriorityLow: true,
	}
	rules = map[schema.QuantityRule]bool{
		"": true, schema.RuleFullHeight: true, schema.Rule2FtCut: true, schema.Rule4FtCut: true,
		schema.Rule6FtCut: true, schema.RuleCeilingOnly: true, schema.RuleSpecificArea: true,
	}
)

// validate checks enums and confidences. Dimensions and quantities are left
// to the engine, which reports them as structured validation errors.
func (c *Claim) validate() error {
	confidences := []struct {
		name string
		v    float64
	}{
		{"parse_confidence", c.ParseConfidence},
		{"report_confidence", c.ReportConfidence},
	}
	for _, cf := range confidences {
		if !(cf.v >= 0 && cf.v <= 1) {
			return fmt.Errorf("%s %v outside [0, 1]", cf.name, cf.v)
		}
	}
	for i, li := range c.Estimate {
		if !actions[li.ActionType] {
			return fmt.Errorf("estimate[%d].action_type: unknown action %q", i, li.ActionType)
		}
	}
	for i, d := range c.Directives {
		if !priorities[d.Priority] {
			return fmt.Errorf("directives[%d].priority: unknown priority %q", i, d.Priority)
		}
		if !rules[d.QuantityRule] {
			return fmt.Errorf("directives[%d].quantity_rule: unknown rule %q", i, d.QuantityRule)
		}
	}
	return nil
}

// ReportPath resolves Report relative to the claim file's directory.
// It returns "" when the claim names no report.
func (c *Claim) ReportPath() string {
	if c.Report == "" || filepath.IsAbs(c.Report) || c.Path == "" {
		return c.Report
	}
	return filepath.Join(filepath.Dir(c.Path), c.Report)
}

// Input converts the claim to engine input.
func (c *Claim) Input() engine.Input {
	return engine.Input{
		Estimate:         c.Estimate,
		Directives:       c.Directives,
		Rooms:            c.Rooms,
		ParseConfidence:  c.ParseConfidence,
		ReportConfidence: c.ReportConfidence,
	}
}
