// Package classify sorts estimate line items into the quantity categories the
// deviation engine compares (drywall walls, drywall ceilings, insulation,
// flooring, baseboard) and attributes each item to a room by name.
package classify

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/jhouston2019/estimatereviewpro-sub000/internal/schema"
)

// Category is a quantity bucket compared against room geometry.
type Category string

const (
	CategoryDrywallWall    Category = "DRYWALL_WALL"
	CategoryDrywallCeiling Category = "DRYWALL_CEILING"
	CategoryInsulation     Category = "INSULATION"
	CategoryFlooring       Category = "FLOORING"
	CategoryBaseboard      Category = "BASEBOARD"
)

// Categories lists every category in reporting order.
var Categories = []Category{
	CategoryDrywallWall,
	CategoryDrywallCeiling,
	CategoryInsulation,
	CategoryFlooring,
	CategoryBaseboard,
}

// Unit returns the unit a category is measured in.
func (c Category) Unit() string {
	if c == CategoryBaseboard {
		return "LF"
	}
	return "SF"
}

// Trade returns the canonical trade code of a category.
func (c Category) Trade() string {
	switch c {
	case CategoryDrywallWall, CategoryDrywallCeiling:
		return TradeDrywall
	case CategoryInsulation:
		return TradeInsulation
	case CategoryFlooring:
		return TradeFlooring
	default:
		return TradeBaseboard
	}
}

// ceilingRe matches "ceiling" (any suffix) or the estimating abbreviation "clg".
var ceilingRe = regexp.MustCompile(`(?i)ceiling|\bclg\b`)

// IsCeiling reports whether a description names ceiling work.
func IsCeiling(description string) bool {
	return ceilingRe.MatchString(description)
}

// scopeAction reports whether an action contributes installed or removed
// quantity. Cleaning, repair and other actions never do.
func scopeAction(a schema.ActionType) bool {
	switch a {
	case schema.ActionRemove, schema.ActionReplace, schema.ActionInstall:
		return true
	}
	return false
}

// CategoryOf returns the category of a line item, or false when the item does
// not take part in any geometric comparison.
func CategoryOf(li schema.LineItem) (Category, bool) {
	if !scopeAction(li.ActionType) {
		return "", false
	}
	switch ItemTrade(li.TradeCode, li.Description) {
	case TradeDrywall:
		if IsCeiling(li.Description) {
			return CategoryDrywallCeiling, true
		}
		return CategoryDrywallWall, true
	case TradeInsulation:
		// Ceiling/attic insulation is not wall scope.
		if IsCeiling(li.Description) || strings.Contains(strings.ToLower(li.Description), "attic") {
			return "", false
		}
		return CategoryInsulation, true
	case TradeFlooring:
		return CategoryFlooring, true
	case TradeBaseboard:
		return CategoryBaseboard, true
	}
	return "", false
}

// Quantity sums the scope quantity of items. A REPLACE line already covers
// both removal and installation, so the result is
// Σreplace + max(Σremove, Σinstall); separate remove and install lines for
// the same area are not double counted.
func Quantity(items []schema.LineItem) float64 {
	var replace, remove, install float64
	for _, li := range items {
		switch li.ActionType {
		case schema.ActionReplace:
			replace += li.Quantity
		case schema.ActionRemove:
			remove += li.Quantity
		case schema.ActionInstall:
			install += li.Quantity
		}
	}
	if install > remove {
		return replace + install
	}
	return replace + remove
}

// Exclusion records a categorized item left out of its category sum.
type Exclusion struct {
	Item   schema.LineItem
	Reason string
}

// Partition holds the items of each category plus the exclusions.
type Partition struct {
	Items    map[Category][]schema.LineItem
	Excluded []Exclusion
}

// Of returns the items of one category (nil if none).
func (p Partition) Of(c Category) []schema.LineItem {
	return p.Items[c]
}

// PartitionItems categorizes items, excluding category items whose unit does
// not match the category's unit. Input order is preserved within each category.
func PartitionItems(items []schema.LineItem) Partition {
	p := Partition{Items: make(map[Category][]schema.LineItem)}
	for _, li := range items {
		c, ok := CategoryOf(li)
		if !ok {
			continue
		}
		if u := NormalizeUnit(li.Unit); u != c.Unit() {
			p.Excluded = append(p.Excluded, Exclusion{
				Item:   li,
				Reason: fmt.Sprintf("unit %q is not %s; excluded from %s quantity", li.Unit, c.Unit(), c),
			})
			continue
		}
		p.Items[c] = append(p.Items[c], li)
	}
	return p
}

// WallCeilingSplit is the result of ClassifyWallVsCeiling.
type WallCeilingSplit struct {
	Wall      []schema.LineItem
	Ceiling   []schema.LineItem
	WallSF    float64
	CeilingSF float64
}

// ClassifyWallVsCeiling separates ceiling items (description mentions
// "ceiling" or "clg") from wall items and sums each subset with Quantity.
// Attribution uses it to size the drywall scope of each room.
func ClassifyWallVsCeiling(items []schema.LineItem) WallCeilingSplit {
	var s WallCeilingSplit
	for _, li := range items {
		if IsCeiling(li.Description) {
			s.Ceiling = append(s.Ceiling, li)
		} else {
			s.Wall = append(s.Wall, li)
		}
	}
	s.WallSF = Quantity(s.Wall)
	s.CeilingSF = Quantity(s.Ceiling)
	return s
}

// TradePresent reports whether any line item belongs to trade (canonical or alias).
func TradePresent(items []schema.LineItem, trade string) bool {
	want := CanonicalTrade(trade)
	for _, li := range items {
		if ItemTrade(li.TradeCode, li.Description) == want {
			return true
		}
	}
	return false
}

// AttributedCategories are the categories compared room by room; flooring
// and baseboard are only compared in aggregate.
var AttributedCategories = []Category{CategoryDrywallWall, CategoryDrywallCeiling, CategoryInsulation}

// AttributedItems returns, in input order, the items whose category is in
// AttributedCategories and whose unit matches it.
func AttributedItems(items []schema.LineItem) []schema.LineItem {
	var out []schema.LineItem
	for _, li := range items {
		c, ok := CategoryOf(li)
		if !ok || NormalizeUnit(li.Unit) != c.Unit() {
			continue
		}
		for _, ac := range AttributedCategories {
			if c == ac {
				out = append(out, li)
				break
			}
		}
	}
	return out
}
