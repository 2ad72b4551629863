package override

import (
	"sort"
	"time"

	"noren/internal/model"
)

// SelectActive picks the override to apply at the given instant: filter to
// records active at now, order by priority descending with updatedAt
// descending as the tie-break, take the first. Returns nil when nothing
// qualifies.
func SelectActive(candidates []model.OverrideRecord, now time.Time) *model.OverrideRecord {
	var eligible []model.OverrideRecord
	for _, c := range candidates {
		if c.ActiveAt(now) {
			eligible = append(eligible, c)
		}
	}
	if len(eligible) == 0 {
		return nil
	}

	sort.SliceStable(eligible, func(i, j int) bool {
		if eligible[i].Priority != eligible[j].Priority {
			return eligible[i].Priority > eligible[j].Priority
		}
		return eligible[i].UpdatedAt.After(eligible[j].UpdatedAt)
	})

	selected := eligible[0]
	return &selected
}
