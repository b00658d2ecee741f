package update

import (
	"time"

	"github.com/roostlabs/roost/pkg/types"
)

// Strategy decides which unit, if any, is due for replacement. Strategies
// only pick targets; the reconciler executes the retire-and-recreate and
// the recreate naturally lands on the current template.
type Strategy interface {
	// NextReplacement returns the ordinal to replace, or nil when no
	// replacement is due. units maps ordinal to the stored record;
	// updateRevision is the hash of the current template.
	NextReplacement(w *types.Workload, units map[int]*types.Unit, updateRevision string) *int
}

// ForWorkload returns the strategy for the workload's configured type.
func ForWorkload(w *types.Workload) Strategy {
	switch w.UpdateStrategy.Type {
	case types.OnDelete:
		return onDeleteStrategy{}
	default:
		return rollingStrategy{}
	}
}

// Stalled reports whether a replacement has failed to settle within the
// update timeout, and at which ordinal. Only meaningful while a rollout
// is in progress; callers gate on CurrentRevision != updateRevision.
func Stalled(w *types.Workload, units map[int]*types.Unit, updateRevision string, now time.Time) (int, bool) {
	timeout := w.UpdateStrategy.Timeout()
	for ordinal := w.Replicas - 1; ordinal >= 0; ordinal-- {
		u, ok := units[ordinal]
		if !ok || u.Revision != updateRevision {
			continue
		}
		switch u.Phase {
		case types.UnitReady, types.UnitTerminating, types.UnitTerminated:
			continue
		}
		if now.Sub(u.CreatedAt) > timeout {
			return ordinal, true
		}
	}
	return 0, false
}
