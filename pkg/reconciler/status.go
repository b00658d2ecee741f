package reconciler

import (
	"fmt"
	"time"

	"github.com/roostlabs/roost/pkg/types"
	"github.com/roostlabs/roost/pkg/update"
)

// ComputeStatus derives the workload status from the snapshot. The
// CurrentRevision is sticky: it stays at the last fully rolled out
// revision until every in-range unit is Ready on the new template, so a
// rollout in progress is visible as CurrentRevision != UpdateRevision.
func ComputeStatus(w *types.Workload, st *State, updateRevision string, plan Plan, now time.Time) types.WorkloadStatus {
	s := types.WorkloadStatus{
		UpdateRevision:      updateRevision,
		HighestReadyOrdinal: -1,
		BlockedOrdinal:      plan.BlockedOrdinal,
		BlockedReason:       plan.BlockedReason,
		ObservedAt:          now,
	}

	for o, u := range st.Units {
		s.Replicas++
		if u.Phase == types.UnitReady {
			s.ReadyReplicas++
			if o > s.HighestReadyOrdinal {
				s.HighestReadyOrdinal = o
			}
		}
		if u.Revision == updateRevision &&
			u.Phase != types.UnitTerminating && u.Phase != types.UnitTerminated {
			s.UpdatedReplicas++
		}
	}

	s.CurrentRevision = w.Status.CurrentRevision
	if s.CurrentRevision == "" || rolloutComplete(w, st, updateRevision) {
		s.CurrentRevision = updateRevision
	}

	s.Conditions = mergeConditions(w.Status.Conditions, buildConditions(w, st, &s, now), now)
	return s
}

// rolloutComplete reports whether every in-range unit is Ready on the
// target revision with no strays left over.
func rolloutComplete(w *types.Workload, st *State, updateRevision string) bool {
	if len(st.Units) != w.Replicas {
		return false
	}
	for o := 0; o < w.Replicas; o++ {
		u := st.Units[o]
		if u == nil || u.Phase != types.UnitReady || u.Revision != updateRevision {
			return false
		}
	}
	return true
}

func buildConditions(w *types.Workload, st *State, s *types.WorkloadStatus, now time.Time) []types.Condition {
	var conds []types.Condition

	ready := 0
	for o := 0; o < w.Replicas; o++ {
		if u := st.Units[o]; u != nil && u.Phase == types.UnitReady {
			ready++
		}
	}
	available := types.Condition{Type: types.ConditionAvailable}
	if ready == w.Replicas {
		available.Status = true
		available.Reason = "AllUnitsReady"
	} else {
		available.Reason = "UnitsNotReady"
	}
	available.Message = fmt.Sprintf("%d/%d units ready", ready, w.Replicas)
	conds = append(conds, available)

	outstanding := len(st.Units) != w.Replicas
	for _, u := range st.Units {
		switch u.Phase {
		case types.UnitPending, types.UnitRunning, types.UnitTerminating, types.UnitTerminated:
			outstanding = true
		}
	}
	progressing := types.Condition{Type: types.ConditionProgressing}
	switch {
	case outstanding && s.BlockedOrdinal == nil:
		progressing.Status = true
		progressing.Reason = "Reconciling"
		progressing.Message = fmt.Sprintf("%d/%d units ready", ready, w.Replicas)
	case outstanding:
		progressing.Reason = "Blocked"
		progressing.Message = s.BlockedReason
	default:
		progressing.Reason = "Converged"
	}
	conds = append(conds, progressing)

	degraded := types.Condition{Type: types.ConditionDegraded, Reason: "Healthy"}
	for o := 0; o < w.Replicas; o++ {
		u := st.Units[o]
		if u == nil || u.Phase != types.UnitFailed {
			continue
		}
		degraded.Status = true
		degraded.Reason = "UnitFailed"
		degraded.Message = fmt.Sprintf("unit %s failed: %s", u.Name, u.Message)
		break
	}
	conds = append(conds, degraded)

	// The stall watch only runs while a rolling update is in flight:
	// initial bring-up and OnDelete drift are not rollouts.
	if w.UpdateStrategy.Type != types.OnDelete && s.CurrentRevision != s.UpdateRevision {
		stalled := types.Condition{Type: types.ConditionUpdateStalled, Reason: "RolloutProgressing"}
		if o, ok := update.Stalled(w, st.Units, s.UpdateRevision, now); ok {
			stalled.Status = true
			stalled.Reason = "ReplacementNotReady"
			stalled.Message = fmt.Sprintf("replacement at ordinal %d not ready after %s",
				o, w.UpdateStrategy.Timeout())
		}
		conds = append(conds, stalled)
	}

	return conds
}

// mergeConditions carries LastTransition forward for conditions whose
// status did not change, so operators can see how long a condition has
// held.
func mergeConditions(prev, next []types.Condition, now time.Time) []types.Condition {
	for i := range next {
		n := &next[i]
		n.LastTransition = now
		for j := range prev {
			if prev[j].Type == n.Type && prev[j].Status == n.Status {
				n.LastTransition = prev[j].LastTransition
				break
			}
		}
	}
	return next
}

// statusEqual compares statuses ignoring timestamps, deciding whether a
// pass needs to persist anything.
func statusEqual(a, b types.WorkloadStatus) bool {
	if a.Replicas != b.Replicas ||
		a.ReadyReplicas != b.ReadyReplicas ||
		a.UpdatedReplicas != b.UpdatedReplicas ||
		a.CurrentRevision != b.CurrentRevision ||
		a.UpdateRevision != b.UpdateRevision ||
		a.HighestReadyOrdinal != b.HighestReadyOrdinal ||
		a.BlockedReason != b.BlockedReason {
		return false
	}
	if (a.BlockedOrdinal == nil) != (b.BlockedOrdinal == nil) {
		return false
	}
	if a.BlockedOrdinal != nil && *a.BlockedOrdinal != *b.BlockedOrdinal {
		return false
	}
	if len(a.Conditions) != len(b.Conditions) {
		return false
	}
	for i := range a.Conditions {
		ca, cb := a.Conditions[i], b.Conditions[i]
		if ca.Type != cb.Type || ca.Status != cb.Status || ca.Reason != cb.Reason || ca.Message != cb.Message {
			return false
		}
	}
	return true
}
