// Package money formats dollar amounts for summaries and reports.
package money

import (
	"github.com/dustin/go-humanize"

	"github.com/jhouston2019/estimatereviewpro-sub000/internal/schema"
)

// Format renders v as "$1,234.50".
func Format(v float64) string {
	if v < 0 {
		return "-$" + humanize.FormatFloat("#,###.##", -v)
	}
	return "$" + humanize.FormatFloat("#,###.##", v)
}

// Range renders r as "$1,197.00–$1,848.00", or a single amount when min == max.
func Range(r schema.ExposureRange) string {
	if r.Min == r.Max {
		return Format(r.Min)
	}
	return Format(r.Min) + "–" + Format(r.Max)
}
