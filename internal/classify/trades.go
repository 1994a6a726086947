package classify

import "strings"

// Canonical trade codes used throughout the engine.
const (
	TradeDrywall    = "DRY"
	TradeInsulation = "INS"
	TradeFlooring   = "FLR"
	TradeBaseboard  = "BSB"
)

// tradeAliases maps estimate codes and report wording to a canonical code.
// Keys are upper-case.
var tradeAliases = map[string]string{
	"DRY":        TradeDrywall,
	"DRYWALL":    TradeDrywall,
	"SHEETROCK":  TradeDrywall,
	"GYPSUM":     TradeDrywall,
	"INS":        TradeInsulation,
	"INSULATION": TradeInsulation,
	"FLR":        TradeFlooring,
	"FLOORING":   TradeFlooring,
	"FCC":        TradeFlooring, // carpet
	"FCV":        TradeFlooring, // vinyl
	"FCW":        TradeFlooring, // wood
	"FCT":        TradeFlooring, // tile
	"BSB":        TradeBaseboard,
	"BASEBOARD":  TradeBaseboard,
}

var tradeNames = map[string]string{
	TradeDrywall:    "Drywall",
	TradeInsulation: "Insulation",
	TradeFlooring:   "Flooring",
	TradeBaseboard:  "Baseboard",
	"PNT":           "Painting",
	"WTR":           "Water Mitigation",
	"DMO":           "General Demolition",
	"CLN":           "Cleaning",
	"FNC":           "Finish Carpentry",
	"ELE":           "Electrical",
	"PLM":           "Plumbing",
	"CAB":           "Cabinetry",
}

// CanonicalTrade normalizes an estimate trade code or a report's trade
// wording. Unknown codes are returned upper-cased and trimmed.
func CanonicalTrade(code string) string {
	c := strings.ToUpper(strings.TrimSpace(code))
	if t, ok := tradeAliases[c]; ok {
		return t
	}
	return c
}

// ItemTrade returns the canonical trade of a line item. Finish-carpentry
// lines that describe baseboard are treated as the baseboard trade.
func ItemTrade(code, description string) string {
	t := CanonicalTrade(code)
	if t == "FNC" && isBaseboard(description) {
		return TradeBaseboard
	}
	return t
}

// TradeName returns a display name for a canonical trade code.
func TradeName(trade string) string {
	if n, ok := tradeNames[trade]; ok {
		return n
	}
	return trade
}

func isBaseboard(description string) bool {
	d := strings.ToLower(description)
	return strings.Contains(d, "baseboard") || strings.Contains(d, "base board") || strings.Contains(d, "base shoe")
}

// NormalizeUnit maps the common spellings of square and linear feet to SF
// and LF. Other units are upper-cased.
func NormalizeUnit(unit string) string {
	u := strings.ToUpper(strings.TrimSpace(unit))
	switch strings.ReplaceAll(u, " ", "") {
	case "SF", "SQFT", "FT2", "SQ.FT.", "SQ.FT":
		return "SF"
	case "LF", "LINFT", "LIN.FT.":
		return "LF"
	}
	return u
}
