// Package geometry derives perimeter and areas from raw room dimensions.
// Derived values are never stored; every caller recomputes them from the Room.
package geometry

import (
	"math"

	"github.com/jhouston2019/estimatereviewpro-sub000/internal/schema"
	"github.com/jhouston2019/estimatereviewpro-sub000/internal/validation"
)

// Perimeter returns 2·(length+width) in linear feet.
func Perimeter(r schema.Room) float64 {
	return 2 * (r.Length + r.Width)
}

// WallArea returns perimeter·height in square feet.
func WallArea(r schema.Room) float64 {
	return Perimeter(r) * r.Height
}

// CeilingArea returns length·width in square feet.
func CeilingArea(r schema.Room) float64 {
	return r.Length * r.Width
}

// FloorArea returns length·width in square feet.
func FloorArea(r schema.Room) float64 {
	return r.Length * r.Width
}

// Finite reports whether v is neither NaN nor ±Inf.
func Finite(v float64) bool {
	return !math.IsNaN(v) && !math.IsInf(v, 0)
}

// ValidateRoom checks that all dimensions are positive and finite.
// field is used as the error's Field, e.g. "rooms[2]".
func ValidateRoom(r schema.Room, field string) error {
	dims := []struct {
		name string
		v    float64
	}{
		{"length", r.Length},
		{"width", r.Width},
		{"height", r.Height},
	}
	for _, d := range dims {
		if !Finite(d.v) || d.v <= 0 {
			return validation.New(validation.CodeInvalidRoom, field,
				"room %q %s must be positive and finite, got %v", r.Name, d.name, d.v)
		}
	}
	return CheckPerimeter(Perimeter(r), field)
}

// CheckPerimeter fails with INVALID_PERIMETER unless p is positive and finite.
// Call it immediately before dividing by p.
func CheckPerimeter(p float64, field string) error {
	if !Finite(p) || p <= 0 {
		return validation.New(validation.CodeInvalidPerimeter, field,
			"perimeter must be positive and finite, got %v", p)
	}
	return nil
}

// Totals aggregates geometry across a set of rooms.
type Totals struct {
	RoomCount        int
	Perimeter        float64
	WallArea         float64
	CeilingArea      float64
	FloorArea        float64
	AvgCeilingHeight float64
}

// Summarize computes Totals. AvgCeilingHeight is weighted by perimeter
// (total wall area / total perimeter), so AvgCeilingHeight·Perimeter equals
// the summed wall area even when ceiling heights differ between rooms. It is
// zero when the total perimeter is not positive.
func Summarize(rooms []schema.Room) Totals {
	var t Totals
	for _, r := range rooms {
		t.RoomCount++
		t.Perimeter += Perimeter(r)
		t.WallArea += WallArea(r)
		t.CeilingArea += CeilingArea(r)
		t.FloorArea += FloorArea(r)
	}
	if t.Perimeter > 0 {
		t.AvgCeilingHeight = t.WallArea / t.Perimeter
	}
	return t
}
