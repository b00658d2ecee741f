package reconciler

import (
	"github.com/roostlabs/roost/pkg/types"
	"github.com/roostlabs/roost/pkg/update"
)

// Op is the kind of corrective action a pass emits.
type Op string

const (
	// OpCreate brings up the unit at an ordinal, creating a fresh record
	// or resuming an interrupted start.
	OpCreate Op = "create"
	// OpTerminate drives the unit at an ordinal to Terminated.
	OpTerminate Op = "terminate"
	// OpForget drops a Terminated record, releasing the ordinal for
	// recreation or, when it is out of range, retiring it for good.
	OpForget Op = "forget"
)

// Action is one corrective step against one ordinal. Actions in a plan
// are ordered for execution: forgets first, then terminates descending,
// then creates ascending.
type Action struct {
	Op      Op
	Ordinal int
	Reason  string
}

// Inputs carries the loop-owned context a pass plans against.
type Inputs struct {
	// UpdateRevision is the hash of the workload's current template.
	UpdateRevision string
	// Busy marks ordinals with an operation already in flight. The plan
	// never touches them.
	Busy map[int]bool
	// Holdback marks ordinals waiting out a provisioning backoff; their
	// creates are not re-dispatched yet.
	Holdback map[int]bool
	// Retire marks ordinals an operator asked to replace. Their units
	// are terminated regardless of phase or ordering gates.
	Retire map[int]bool
}

// Plan is the outcome of one reconcile pass over a state snapshot.
type Plan struct {
	Actions []Action

	// BlockedOrdinal names the unit stopping the workload from making
	// progress, when the impediment needs an operator or a backoff timer
	// rather than just time: a Failed unit or a provisioning holdback.
	BlockedOrdinal *int
	BlockedReason  string
}

func (p *Plan) add(op Op, ordinal int, reason string) {
	p.Actions = append(p.Actions, Action{Op: op, Ordinal: ordinal, Reason: reason})
}

// block records the lowest blocking ordinal; later calls lose.
func (p *Plan) block(ordinal int, reason string) {
	if p.BlockedOrdinal != nil {
		return
	}
	o := ordinal
	p.BlockedOrdinal = &o
	p.BlockedReason = reason
}

// Compute diffs the workload spec against the observed snapshot and
// returns the actions that move one step closer to desired state. It is
// a pure function of its arguments; the loop owns dispatch, concurrency
// limits and completion tracking.
func Compute(w *types.Workload, st *State, in Inputs) Plan {
	var p Plan
	ordered := w.ManagementPolicy != types.Parallel

	planForgets(&p, w, st, in)
	planTerminates(&p, w, st, in, ordered)
	planCreates(&p, w, st, in, ordered)
	planUpdate(&p, w, st, in)

	return p
}

// planForgets drops records of units that finished terminating. A record
// below the replica count is forgotten so a fresh unit can take the
// ordinal; a record at or above it is gone for good and the loop also
// releases its volume binding.
func planForgets(p *Plan, w *types.Workload, st *State, in Inputs) {
	for _, o := range st.Ordinals() {
		u := st.Units[o]
		if u.Phase != types.UnitTerminated || in.Busy[o] {
			continue
		}
		reason := "replaced"
		if o >= w.Replicas {
			reason = "scaled down"
		}
		p.add(OpForget, o, reason)
	}
}

// planTerminates emits terminations descending: units beyond the replica
// count, units stuck mid-termination from an interrupted run, and units
// an operator asked to retire. Under OrderedReady an out-of-range unit
// waits until its higher neighbor has fully terminated.
func planTerminates(p *Plan, w *types.Workload, st *State, in Inputs, ordered bool) {
	ords := st.Ordinals()
	for i := len(ords) - 1; i >= 0; i-- {
		o := ords[i]
		u := st.Units[o]
		if in.Busy[o] || u.Phase == types.UnitTerminated {
			continue
		}
		if u.Phase == types.UnitTerminating {
			p.add(OpTerminate, o, "resuming interrupted termination")
			continue
		}
		if o >= w.Replicas {
			if !ordered || deleteGateOpen(st, o) {
				p.add(OpTerminate, o, "scaling down")
			}
			continue
		}
		if in.Retire[o] {
			p.add(OpTerminate, o, "replacement requested")
		}
	}
}

// deleteGateOpen reports whether the unit above ordinal, if any, has
// finished terminating. Deletes proceed strictly top-down.
func deleteGateOpen(st *State, ordinal int) bool {
	neighbor := st.Units[ordinal+1]
	return neighbor == nil || neighbor.Phase == types.UnitTerminated
}

// planCreates walks ordinals 0..replicas-1 ascending and emits the next
// create. Under OrderedReady the walk stops at the first ordinal that is
// not Ready: a unit being replaced, still starting, or Failed gates
// everything above it. Failed units and provisioning backoffs are
// reported as the blocking ordinal.
func planCreates(p *Plan, w *types.Workload, st *State, in Inputs, ordered bool) {
	for o := 0; o < w.Replicas; o++ {
		u := st.Units[o]
		if in.Busy[o] {
			if ordered {
				return
			}
			continue
		}
		if in.Retire[o] && u != nil && u.Phase != types.UnitTerminated {
			// Being retired this pass; treat like a unit on its way down.
			if ordered {
				return
			}
			continue
		}
		if u == nil || u.Phase == types.UnitTerminated {
			if in.Holdback[o] {
				p.block(o, "waiting out volume provisioning backoff")
				if ordered {
					return
				}
				continue
			}
			p.add(OpCreate, o, "missing unit")
			if ordered {
				return
			}
			continue
		}
		switch u.Phase {
		case types.UnitReady:
		case types.UnitFailed:
			p.block(o, "unit failed: "+u.Message)
			if ordered {
				return
			}
		case types.UnitPending:
			// A Pending record with nothing in flight is an interrupted
			// or backed-off start.
			if in.Holdback[o] {
				p.block(o, "waiting out volume provisioning backoff")
			} else {
				p.add(OpCreate, o, "resuming interrupted start")
			}
			if ordered {
				return
			}
		default:
			// Running or Terminating: time will resolve it. Running units
			// are promoted by their monitor; Terminating units get
			// re-dispatched by planTerminates and recreated once gone.
			if ordered {
				return
			}
		}
	}
}

// planUpdate asks the update strategy for the next template replacement.
// Rollouts only proceed from a settled position: every ordinal in range
// present, nothing in flight, nothing marked for retirement.
func planUpdate(p *Plan, w *types.Workload, st *State, in Inputs) {
	if len(st.Units) != w.Replicas {
		return
	}
	for o := 0; o < w.Replicas; o++ {
		if st.Units[o] == nil {
			return
		}
	}
	if len(in.Busy) > 0 || len(in.Retire) > 0 {
		return
	}
	if o := update.ForWorkload(w).NextReplacement(w, st.Units, in.UpdateRevision); o != nil {
		p.add(OpTerminate, *o, "template update")
	}
}
