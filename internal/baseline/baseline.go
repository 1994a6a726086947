// Package baseline provides the cost-baseline lookup the deviation engine uses
// to turn a quantity shortfall into a dollar exposure range. Tables are
// versioned, immutable once built, and safe for concurrent reads.
package baseline

import (
	"bytes"
	_ "embed"
	"fmt"
	"math"
	"os"
	"sort"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/jhouston2019/estimatereviewpro-sub000/internal/classify"
	"github.com/jhouston2019/estimatereviewpro-sub000/internal/schema"
)

// Lookup resolves exposure ranges. A false result means no pricing data
// matched; callers must treat that as "not priced", never as zero.
type Lookup interface {
	Exposure(trade string, quantity float64, unit, material string) (schema.ExposureRange, bool)
	MissingTradeBand(trade string) (schema.ExposureRange, bool)
	Version() string
}

// Rate is a per-unit price range for one trade/unit/material combination.
type Rate struct {
	Trade    string  `yaml:"trade"`
	Unit     string  `yaml:"unit"`
	Material string  `yaml:"material"`
	Min      float64 `yaml:"min"`
	Max      float64 `yaml:"max"`
}

// Band is a fixed dollar range.
type Band struct {
	Min float64 `yaml:"min"`
	Max float64 `yaml:"max"`
}

type document struct {
	Version             string          `yaml:"version"`
	Rates               []Rate          `yaml:"rates"`
	MissingTrade        map[string]Band `yaml:"missing_trade"`
	DefaultMissingTrade *Band           `yaml:"default_missing_trade"`
}

type rateKey struct {
	trade, unit, material string
}

// Table is a Lookup backed by a rate table.
type Table struct {
	version        string
	rates          map[rateKey]Rate
	missing        map[string]schema.ExposureRange
	defaultMissing *schema.ExposureRange
}

//go:embed default.yaml
var defaultYAML []byte

var defaultTable = mustParse(defaultYAML)

// Default returns the embedded default table.
func Default() *Table {
	return defaultTable
}

func mustParse(data []byte) *Table {
	t, err := Parse(data)
	if err != nil {
		panic(fmt.Sprintf("baseline: embedded default: %v", err))
	}
	return t
}

// LoadFile reads and parses a baseline YAML file.
func LoadFile(path string) (*Table, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("baseline: read %s: %w", path, err)
	}
	t, err := Parse(data)
	if err != nil {
		return nil, fmt.Errorf("baseline: %s: %w", path, err)
	}
	return t, nil
}

// Parse decodes a baseline document. Unknown fields, missing version,
// negative or inverted ranges and duplicate keys are rejected.
func Parse(data []byte) (*Table, error) {
	var doc document
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(&doc); err != nil {
		return nil, fmt.Errorf("baseline: parse: %w", err)
	}
	if strings.TrimSpace(doc.Version) == "" {
		return nil, fmt.Errorf("baseline: version is required")
	}

	t := &Table{
		version: doc.Version,
		rates:   make(map[rateKey]Rate, len(doc.Rates)),
		missing: make(map[string]schema.ExposureRange, len(doc.MissingTrade)),
	}
	for i, r := range doc.Rates {
		if err := checkRange(r.Min, r.Max); err != nil {
			return nil, fmt.Errorf("baseline: rates[%d]: %w", i, err)
		}
		k := keyOf(r.Trade, r.Unit, r.Material)
		if k.trade == "" || k.unit == "" {
			return nil, fmt.Errorf("baseline: rates[%d]: trade and unit are required", i)
		}
		if _, dup := t.rates[k]; dup {
			return nil, fmt.Errorf("baseline: rates[%d]: duplicate rate for %s/%s/%q", i, k.trade, k.unit, k.material)
		}
		t.rates[k] = r
	}
	trades := make([]string, 0, len(doc.MissingTrade))
	for trade := range doc.MissingTrade {
		trades = append(trades, trade)
	}
	sort.Strings(trades)
	seen := make(map[string]string, len(trades))
	for _, trade := range trades {
		b := doc.MissingTrade[trade]
		if err := checkRange(b.Min, b.Max); err != nil {
			return nil, fmt.Errorf("baseline: missing_trade[%s]: %w", trade, err)
		}
		canon := classify.CanonicalTrade(trade)
		if prev, dup := seen[canon]; dup {
			return nil, fmt.Errorf("baseline: missing_trade[%s]: duplicate missing_trade for %s (also %s)", trade, canon, prev)
		}
		seen[canon] = trade
		t.missing[canon] = schema.ExposureRange{Min: b.Min, Max: b.Max}
	}
	if b := doc.DefaultMissingTrade; b != nil {
		if err := checkRange(b.Min, b.Max); err != nil {
			return nil, fmt.Errorf("baseline: default_missing_trade: %w", err)
		}
		t.defaultMissing = &schema.ExposureRange{Min: b.Min, Max: b.Max}
	}
	return t, nil
}

func checkRange(min, max float64) error {
	if !finite(min) || !finite(max) || min < 0 || max < 0 {
		return fmt.Errorf("min and max must be finite and non-negative")
	}
	if min > max {
		return fmt.Errorf("min %.2f exceeds max %.2f", min, max)
	}
	return nil
}

func finite(v float64) bool {
	return !math.IsNaN(v) && !math.IsInf(v, 0)
}

// CheckExposure reports whether r is a usable exposure range: finite,
// non-negative, and Min <= Max. Callers holding an injected Lookup use it to
// reject ranges a Table would have refused at load time.
func CheckExposure(r schema.ExposureRange) error {
	return checkRange(r.Min, r.Max)
}

func keyOf(trade, unit, material string) rateKey {
	return rateKey{
		trade:    classify.CanonicalTrade(trade),
		unit:     classify.NormalizeUnit(unit),
		material: strings.ToUpper(strings.TrimSpace(material)),
	}
}

// Version returns the table version string.
func (t *Table) Version() string {
	return t.version
}

// Exposure returns quantity × the unit rate range for trade/unit/material,
// falling back to the trade/unit rate with no material. Quantities that are
// not positive and finite never match.
func (t *Table) Exposure(trade string, quantity float64, unit, material string) (schema.ExposureRange, bool) {
	if quantity <= 0 || !finite(quantity) {
		return schema.ExposureRange{}, false
	}
	k := keyOf(trade, unit, material)
	r, ok := t.rates[k]
	if !ok && k.material != "" {
		k.material = ""
		r, ok = t.rates[k]
	}
	if !ok {
		return schema.ExposureRange{}, false
	}
	return schema.ExposureRange{
		Min: RoundCents(quantity * r.Min),
		Max: RoundCents(quantity * r.Max),
	}, true
}

// MissingTradeBand returns the fixed exposure band for a trade that is
// entirely absent from an estimate.
func (t *Table) MissingTradeBand(trade string) (schema.ExposureRange, bool) {
	if b, ok := t.missing[classify.CanonicalTrade(trade)]; ok {
		return b, true
	}
	if t.defaultMissing != nil {
		return *t.defaultMissing, true
	}
	return schema.ExposureRange{}, false
}

// Rates returns a copy of the rate table sorted by trade, unit, material.
func (t *Table) Rates() []Rate {
	out := make([]Rate, 0, len(t.rates))
	for k, r := range t.rates {
		r.Trade, r.Unit, r.Material = k.trade, k.unit, k.material
		out = append(out, r)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Trade != out[j].Trade {
			return out[i].Trade < out[j].Trade
		}
		if out[i].Unit != out[j].Unit {
			return out[i].Unit < out[j].Unit
		}
		return out[i].Material < out[j].Material
	})
	return out
}

// RoundCents rounds a dollar amount to two decimals.
func RoundCents(v float64) float64 {
	return math.Round(v*100) / 100
}

// LookupFunc prices a quantity; it has the same contract as Lookup.Exposure.
type LookupFunc func(trade string, quantity float64, unit, material string) (schema.ExposureRange, bool)

type funcLookup struct {
	version string
	fn      LookupFunc
	missing map[string]schema.ExposureRange
}

// FromFunc adapts a pricing function and a fixed missing-trade band table to
// Lookup. Useful for fixtures and for callers holding pricing elsewhere.
// When several keys name the same trade, the key spelled as the canonical
// code wins, else the first in sorted order.
func FromFunc(version string, fn LookupFunc, missing map[string]schema.ExposureRange) Lookup {
	keys := make([]string, 0, len(missing))
	for k := range missing {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	m := make(map[string]schema.ExposureRange, len(missing))
	for _, k := range keys {
		canon := classify.CanonicalTrade(k)
		if _, dup := m[canon]; dup && k != canon {
			continue
		}
		m[canon] = missing[k]
	}
	return funcLookup{version: version, fn: fn, missing: m}
}

func (f funcLookup) Exposure(trade string, quantity float64, unit, material string) (schema.ExposureRange, bool) {
	return f.fn(trade, quantity, unit, material)
}

func (f funcLookup) MissingTradeBand(trade string) (schema.ExposureRange, bool) {
	b, ok := f.missing[classify.CanonicalTrade(trade)]
	return b, ok
}

func (f funcLookup) Version() string {
	return f.version
}
