// Package attribution decides how estimate quantities are attributed to
// rooms and runs deviation checks accordingly.
//
// Items whose description names a room are attributed to that room. When no
// item names a room the whole structure is compared at once (AGGREGATE). When
// every item names a room each room is compared on its own (PER_ROOM). When
// only some do (HYBRID) each room is compared on its own and the quantity of
// the unattributed items is then credited against the summed room
// shortfalls, so a shortfall is never counted twice and unattributed work is
// never ignored.
package attribution

import (
	"fmt"
	"math"
	"strings"

	"github.com/jhouston2019/estimatereviewpro-sub000/internal/classify"
	"github.com/jhouston2019/estimatereviewpro-sub000/internal/deviation"
	"github.com/jhouston2019/estimatereviewpro-sub000/internal/geometry"
	"github.com/jhouston2019/estimatereviewpro-sub000/internal/schema"
)

// ChooseMode picks the attribution mode from the number of relevant items
// that did and did not map to a room.
func ChooseMode(mapped, unmapped int) schema.AttributionMode {
	switch {
	case mapped == 0:
		return schema.ModeAggregate
	case unmapped == 0:
		return schema.ModePerRoom
	default:
		return schema.ModeHybrid
	}
}

// Controller implements deviation.Attributor over a fixed set of rooms and
// line items. It is immutable after New.
type Controller struct {
	mode      schema.AttributionMode
	totals    geometry.Totals
	rooms     []deviation.Scope
	empty     []string
	aggregate deviation.Scope
	unmapped  deviation.Scope
	orphans   []schema.LineItem
	relevant  int
}

var _ deviation.Attributor = (*Controller)(nil)

// New maps the room-comparable items onto rooms and prepares one scope per
// room, one for the whole structure, and one for the unmapped items. Rooms
// must already be validated.
func New(rooms []schema.Room, items []schema.LineItem) *Controller {
	relevant := classify.AttributedItems(items)
	mapping := classify.MapItemsToRooms(relevant, rooms)
	totals := geometry.Summarize(rooms)

	c := &Controller{
		mode:     ChooseMode(mapping.MappedCount(), len(mapping.Unmapped)),
		totals:   totals,
		orphans:  mapping.Unmapped,
		relevant: len(relevant),
	}
	for _, b := range mapping.Rooms {
		c.rooms = append(c.rooms, scopeOf(b.Room.Name, geometry.Perimeter(b.Room), b.Room.Height, geometry.CeilingArea(b.Room), b.Items))
		if len(b.Items) == 0 {
			c.empty = append(c.empty, b.Room.Name)
		}
	}
	c.aggregate = scopeOf(schema.AggregateBucket, totals.Perimeter, totals.AvgCeilingHeight, totals.CeilingArea, relevant)
	c.unmapped = scopeOf(schema.UnmappedBucket, totals.Perimeter, totals.AvgCeilingHeight, totals.CeilingArea, mapping.Unmapped)
	return c
}

func scopeOf(name string, perimeter, height, ceiling float64, items []schema.LineItem) deviation.Scope {
	p := classify.PartitionItems(items)
	wall := p.Of(classify.CategoryDrywallWall)
	drywall := append(wall[:len(wall):len(wall)], p.Of(classify.CategoryDrywallCeiling)...)
	split := classify.ClassifyWallVsCeiling(drywall)
	return deviation.Scope{
		Name:          name,
		Perimeter:     perimeter,
		CeilingHeight: height,
		CeilingArea:   ceiling,
		WallSF:        split.WallSF,
		CeilingSF:     split.CeilingSF,
		InsulationSF:  classify.Quantity(p.Of(classify.CategoryInsulation)),
	}
}

// Mode returns the attribution mode chosen by New.
func (c *Controller) Mode() schema.AttributionMode { return c.mode }

// Totals returns the aggregate room geometry.
func (c *Controller) Totals() geometry.Totals { return c.totals }

// Shortfall runs check under the controller's mode.
func (c *Controller) Shortfall(check deviation.ScopeCheck) (deviation.Shortfall, error) {
	if c.mode == schema.ModeAggregate {
		rec, err := check(c.aggregate)
		if err != nil {
			return deviation.Shortfall{}, err
		}
		sf := deviation.Shortfall{
			Mode:     c.mode,
			Required: rec.ReportWallSF,
			Estimate: rec.EstimateWallSF,
			Delta:    math.Max(rec.DeltaSF, 0),
			Audit:    []schema.RoomGeometryCalculation{rec},
		}
		if rec.DeltaSF > 0 {
			sf.Rooms = []schema.RoomGeometryCalculation{rec}
		}
		return sf, nil
	}

	sf := deviation.Shortfall{Mode: c.mode}
	var positive float64
	for _, s := range c.rooms {
		rec, err := check(s)
		if err != nil {
			return deviation.Shortfall{}, err
		}
		sf.Audit = append(sf.Audit, rec)
		sf.Required += rec.ReportWallSF
		sf.Estimate += rec.EstimateWallSF
		if rec.DeltaSF > 0 {
			positive += rec.DeltaSF
			sf.Rooms = append(sf.Rooms, rec)
		}
	}
	sf.Delta = positive

	if c.mode != schema.ModeHybrid {
		return sf, nil
	}
	rec, err := check(c.unmapped)
	if err != nil {
		return deviation.Shortfall{}, err
	}
	if rec.EstimateWallSF <= 0 {
		return sf, nil
	}
	credit := math.Min(rec.EstimateWallSF, positive)
	sf.Estimate += rec.EstimateWallSF
	sf.Credit = credit
	sf.Delta = positive - credit
	sf.Audit = append(sf.Audit, schema.RoomGeometryCalculation{
		RoomName:        schema.UnmappedBucket,
		Perimeter:       rec.Perimeter,
		WallHeight:      rec.WallHeight,
		EstimateHeight:  rec.EstimateHeight,
		EstimateWallSF:  rec.EstimateWallSF,
		DeltaSF:         -credit,
		CeilingIncluded: rec.CeilingIncluded,
		Formula: fmt.Sprintf("%s: %.2f SF not attributable to a room; credited %.2f SF against room shortfalls of %.2f SF",
			schema.UnmappedBucket, rec.EstimateWallSF, credit, positive),
	})
	return sf, nil
}

// Warnings describes fallbacks and unmapped items. The result is
// deterministic for a given input.
func (c *Controller) Warnings() []string {
	var out []string
	switch c.mode {
	case schema.ModeAggregate:
		if c.relevant > 0 {
			out = append(out, fmt.Sprintf(
				"no line item names a room; using aggregate fallback (total perimeter %.2f LF, average ceiling height %.2f ft)",
				c.totals.Perimeter, c.totals.AvgCeilingHeight))
		}
	case schema.ModeHybrid:
		descs := make([]string, len(c.orphans))
		for i, li := range c.orphans {
			descs[i] = fmt.Sprintf("%q", li.Description)
		}
		out = append(out, fmt.Sprintf(
			"%d of %d line items could not be mapped to a room and are credited in aggregate: %s",
			len(c.orphans), c.relevant, strings.Join(descs, ", ")))
	}
	if c.mode != schema.ModeAggregate {
		for _, name := range c.empty {
			out = append(out, fmt.Sprintf("room %q has no mapped line items; its estimate quantity is treated as 0", name))
		}
	}
	return out
}
