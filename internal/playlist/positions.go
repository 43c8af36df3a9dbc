package playlist

import (
	"musicroom/internal/sequence"
)

func entryIDs(entries []Entry) []string {
	ids := make([]string, len(entries))
	for i, e := range entries {
		ids[i] = e.ID
	}
	return ids
}

// resequence lays entries out in the given id order with positions 0..n-1. It returns
// the new snapshot and only the placements whose stored position changes.
func resequence(entries []Entry, order []string) ([]Entry, []sequence.Placement[string]) {
	byID := make(map[string]Entry, len(entries))
	for _, e := range entries {
		byID[e.ID] = e
	}

	placements := sequence.Renumber(order)
	out := make([]Entry, 0, len(placements))
	changed := make([]sequence.Placement[string], 0)
	for _, p := range placements {
		e := byID[p.Item]
		if e.Position != p.Position {
			changed = append(changed, p)
			e.Position = p.Position
		}
		out = append(out, e)
	}
	return out, changed
}
