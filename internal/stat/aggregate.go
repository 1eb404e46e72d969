package stat

import "time"

// Aggregate merges same-identity trackers into one job-level tracker. The
// input must be non-empty and every tracker must be stopped.
func Aggregate(trackers []Tracker) (Tracker, error) {
	if len(trackers) == 0 {
		return nil, ErrNoTrackers
	}
	return trackers[0].Aggregate(trackers[1:]...)
}

type groupKey struct {
	kind     Kind
	name     string
	interval time.Duration
}

// AggregateAll groups trackers by shape, name and interval, then aggregates
// each group. Groups are returned in first-seen order.
func AggregateAll(trackers []Tracker) ([]Tracker, error) {
	var order []groupKey
	groups := map[groupKey][]Tracker{}
	for _, t := range trackers {
		id := t.Identity()
		key := groupKey{kind: t.Kind(), name: id.Name, interval: id.Interval}
		if _, seen := groups[key]; !seen {
			order = append(order, key)
		}
		groups[key] = append(groups[key], t)
	}

	out := make([]Tracker, 0, len(order))
	for _, key := range order {
		merged, err := Aggregate(groups[key])
		if err != nil {
			return nil, err
		}
		out = append(out, merged)
	}
	return out, nil
}
