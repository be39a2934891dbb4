package types

import (
	"encoding/json"
	"sort"
)

// MarshalSolution renders a room's filled cells as the initial snapshot
// pushed to joining clients. Cells are ordered row by row.
func MarshalSolution(items []SolutionItem) (string, error) {
	sorted := make([]SolutionItem, len(items))
	copy(sorted, items)
	sort.Slice(sorted, func(i, j int) bool {
		if sorted[i].Y != sorted[j].Y {
			return sorted[i].Y < sorted[j].Y
		}
		return sorted[i].X < sorted[j].X
	})

	b, err := json.Marshal(sorted)
	if err != nil {
		return "", err
	}
	return string(b), nil
}
