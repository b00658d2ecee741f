package update

import (
	"github.com/roostlabs/roost/pkg/types"
)

// rollingStrategy replaces outdated units one at a time, from the highest
// ordinal down, never touching ordinals below the partition. Ordinals
// below the partition keep their revision until the partition is lowered,
// which is how staged rollouts are driven.
type rollingStrategy struct{}

func (rollingStrategy) NextReplacement(w *types.Workload, units map[int]*types.Unit, updateRevision string) *int {
	for ordinal := w.Replicas - 1; ordinal >= w.UpdateStrategy.Partition; ordinal-- {
		u, ok := units[ordinal]
		if !ok {
			// A hole means a replacement is mid-flight; let it land.
			return nil
		}
		if u.Revision == updateRevision {
			if u.Phase != types.UnitReady {
				// The newest replacement has not settled yet.
				return nil
			}
			continue
		}
		if u.Phase != types.UnitReady {
			// Never retire a unit that is not healthy: a rollout only
			// proceeds through a stable workload. Anything else here
			// is surfaced through conditions, not papered over.
			return nil
		}
		o := ordinal
		return &o
	}
	return nil
}
