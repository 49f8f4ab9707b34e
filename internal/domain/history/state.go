package history

// State is what a mounted history view shows.
type State struct {
	Owner              string  `json:"owner"`
	Items              []*Item `json:"items"`
	Capacity           int     `json:"capacity"`
	SubscriptionActive bool    `json:"subscription_active"`
	// FetchError is set when the initial fetch failed; it is distinct from
	// an empty history.
	FetchError string `json:"fetch_error,omitempty"`
	// Warning is a non-fatal realtime problem; Items may be stale.
	Warning string `json:"warning,omitempty"`
}

// Copy returns a State whose Items slice is not shared with s.
func (s State) Copy() State {
	c := s
	c.Items = make([]*Item, len(s.Items))
	for i, it := range s.Items {
		c.Items[i] = it.Clone()
	}
	return c
}

// Filter narrows a listing for display.
type Filter struct {
	Language      string
	FavoritesOnly bool
}

// Apply returns the items matching f, preserving order.
func (f Filter) Apply(items []*Item) []*Item {
	if f.Language == "" && !f.FavoritesOnly {
		return items
	}
	out := make([]*Item, 0, len(items))
	for _, it := range items {
		if f.Language != "" && it.Language != f.Language {
			continue
		}
		if f.FavoritesOnly && !it.IsFavorite {
			continue
		}
		out = append(out, it)
	}
	return out
}
