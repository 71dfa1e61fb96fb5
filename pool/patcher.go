package pool

import (
	"fmt"
	"sort"
)

// Patcher constructs a new pool set by applying a diff to a previous one.
// prevState is not modified; every pool in the result is a deep copy.
// Additions must be new ids and updates must refer to existing ones, so replaying a
// diff against the wrong base fails instead of silently diverging.
func Patcher(prevState []Pool, diff SystemDiff) ([]Pool, error) {
	// 1. Index the previous state, deep-copying as we go.
	newStateMap := make(map[ID]Pool, len(prevState)+len(diff.Additions))
	for _, p := range prevState {
		newStateMap[p.ID] = p.Clone()
	}

	// 2. Process additions.
	for _, added := range diff.Additions {
		if _, exists := newStateMap[added.ID]; exists {
			return nil, fmt.Errorf("%w: addition %s", ErrPoolAlreadyExists, added.ID.Hex())
		}
		newStateMap[added.ID] = added.Clone()
	}

	// 3. Process updates.
	for _, updated := range diff.Updates {
		prev, exists := newStateMap[updated.ID]
		if !exists {
			return nil, fmt.Errorf("%w: update %s", ErrPoolNotFound, updated.ID.Hex())
		}
		if prev.AssetX != updated.AssetX || prev.AssetY != updated.AssetY || prev.FeeBps != updated.FeeBps {
			return nil, fmt.Errorf("%w: update %s changes immutable fields", ErrInvariantViolation, updated.ID.Hex())
		}
		newStateMap[updated.ID] = updated.Clone()
	}

	// 4. Convert back to a slice ordered by id.
	finalState := make([]Pool, 0, len(newStateMap))
	for _, p := range newStateMap {
		finalState = append(finalState, p)
	}
	SortByID(finalState)

	return finalState, nil
}

// SortByID orders pools by id so snapshots compare and print deterministically.
func SortByID(pools []Pool) {
	sort.Slice(pools, func(i, j int) bool {
		return pools[i].ID.Cmp(pools[j].ID) < 0
	})
}
