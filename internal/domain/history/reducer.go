package history

import "sort"

// EventType of a change-feed message
type EventType string

const (
	EventInsert EventType = "INSERT"
	EventUpdate EventType = "UPDATE"
	EventDelete EventType = "DELETE"
)

// ChangeEvent carries the full new row (insert/update) or the old row (delete).
type ChangeEvent struct {
	Type EventType `json:"eventType"`
	New  *Item     `json:"new,omitempty"`
	Old  *Item     `json:"old,omitempty"`
}

// Owner returns the owner the event belongs to, from whichever row is present.
func (e ChangeEvent) Owner() string {
	if e.New != nil && e.New.OwnerID != "" {
		return e.New.OwnerID
	}
	if e.Old != nil {
		return e.Old.OwnerID
	}
	return ""
}

// Less orders items by created_at descending. Zero timestamps sort last;
// two zero timestamps compare equal.
func Less(a, b *Item) bool {
	az, bz := a.CreatedAt.IsZero(), b.CreatedAt.IsZero()
	switch {
	case az && bz:
		return false
	case az:
		return false
	case bz:
		return true
	}
	return a.CreatedAt.After(b.CreatedAt)
}

// SortItems sorts in place, stable for equal keys.
func SortItems(items []*Item) {
	sort.SliceStable(items, func(i, j int) bool { return Less(items[i], items[j]) })
}

// Reduce applies one change event to items and returns the new list.
// The input slice is never modified. When the event cannot be applied
// safely (unknown type, delete without id) refetch is true and items is
// returned unchanged.
func Reduce(items []*Item, ev ChangeEvent, capacity int) (out []*Item, refetch bool) {
	if capacity <= 0 {
		capacity = DefaultCapacity
	}
	switch ev.Type {
	case EventInsert:
		if ev.New == nil || ev.New.ID == "" {
			return items, true
		}
		if indexOf(items, ev.New.ID) >= 0 {
			return items, false
		}
		out = make([]*Item, 0, len(items)+1)
		out = append(out, ev.New)
		out = append(out, items...)
		SortItems(out)
		if len(out) > capacity {
			out = out[:capacity]
		}
		return out, false

	case EventUpdate:
		if ev.New == nil || ev.New.ID == "" {
			return items, true
		}
		i := indexOf(items, ev.New.ID)
		if i < 0 {
			return items, false
		}
		out = append([]*Item(nil), items...)
		out[i] = ev.New
		SortItems(out)
		return out, false

	case EventDelete:
		if ev.Old == nil || ev.Old.ID == "" {
			return items, true
		}
		i := indexOf(items, ev.Old.ID)
		if i < 0 {
			return items, false
		}
		out = make([]*Item, 0, len(items)-1)
		out = append(out, items[:i]...)
		out = append(out, items[i+1:]...)
		return out, false
	}
	return items, true
}

func indexOf(items []*Item, id ItemID) int {
	for i, it := range items {
		if it.ID == id {
			return i
		}
	}
	return -1
}
