package classify

import (
	"strings"

	"github.com/jhouston2019/estimatereviewpro-sub000/internal/schema"
)

// RoomBucket pairs a room with the line items attributed to it.
type RoomBucket struct {
	Room  schema.Room
	Items []schema.LineItem
}

// RoomMapping is the result of MapItemsToRooms. Rooms is parallel to the
// input room slice.
type RoomMapping struct {
	Rooms    []RoomBucket
	Unmapped []schema.LineItem
}

// MappedCount returns the number of items attributed to some room.
func (m RoomMapping) MappedCount() int {
	n := 0
	for _, b := range m.Rooms {
		n += len(b.Items)
	}
	return n
}

// MapItemsToRooms attributes each item to the first room whose name occurs,
// case-insensitively, as a substring of the item description.
//
// Matching policy: rooms are tried in the order given and the first match
// wins, so when one room name contains another ("Bed" and "Master Bed") the
// caller controls precedence by ordering the room list. Rooms with an empty
// name never match. Items that match no room go to the UNMAPPED bucket.
func MapItemsToRooms(items []schema.LineItem, rooms []schema.Room) RoomMapping {
	m := RoomMapping{Rooms: make([]RoomBucket, len(rooms))}
	names := make([]string, len(rooms))
	for i, r := range rooms {
		m.Rooms[i].Room = r
		names[i] = strings.ToLower(strings.TrimSpace(r.Name))
	}
	for _, li := range items {
		desc := strings.ToLower(li.Description)
		matched := false
		for i, name := range names {
			if name == "" || name == strings.ToLower(schema.UnmappedBucket) {
				continue
			}
			if strings.Contains(desc, name) {
				m.Rooms[i].Items = append(m.Rooms[i].Items, li)
				matched = true
				break
			}
		}
		if !matched {
			m.Unmapped = append(m.Unmapped, li)
		}
	}
	return m
}
