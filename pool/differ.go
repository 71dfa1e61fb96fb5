package pool

// SystemDiff describes how one set of pools turns into another. Pools are never deleted,
// so there is no deletion list.
type SystemDiff struct {
	Additions []Pool `json:"additions,omitempty"`
	Updates   []Pool `json:"updates,omitempty"`
}

// IsEmpty returns true if the diff contains no changes.
func (d SystemDiff) IsEmpty() bool {
	return len(d.Additions) == 0 && len(d.Updates) == 0
}

// Len returns the number of pools touched by the diff.
func (d SystemDiff) Len() int {
	return len(d.Additions) + len(d.Updates)
}

// Differ calculates the difference between two snapshots of the pool set.
// 1. Index the old snapshot by ID for O(1) lookups.
// 2. Every new pool missing from the old index is an addition.
// 3. Every pool present in both whose mutable fields changed is an update.
func Differ(old, new []Pool) SystemDiff {
	oldPoolsMap := make(map[ID]Pool, len(old))
	for _, p := range old {
		oldPoolsMap[p.ID] = p
	}

	var additions []Pool
	var updates []Pool

	for _, newPool := range new {
		oldPool, exists := oldPoolsMap[newPool.ID]
		if !exists {
			additions = append(additions, newPool)
			continue
		}
		// Only reserves and shares move after creation; comparing them directly avoids reflect.DeepEqual.
		if !oldPool.ReserveX.Eq(newPool.ReserveX) ||
			!oldPool.ReserveY.Eq(newPool.ReserveY) ||
			!oldPool.TotalShares.Eq(newPool.TotalShares) {
			updates = append(updates, newPool)
		}
	}

	return SystemDiff{
		Additions: additions,
		Updates:   updates,
	}
}
