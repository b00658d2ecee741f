package reconciler

import (
	"fmt"
	"sort"

	"github.com/roostlabs/roost/pkg/errdefs"
	"github.com/roostlabs/roost/pkg/identity"
	"github.com/roostlabs/roost/pkg/types"
)

// State is the observed-state snapshot one reconcile pass works from. It
// is rebuilt from the store at the start of every pass and thrown away at
// the end; nothing is cached across passes.
type State struct {
	// Units maps ordinal to the stored record. At most one record per
	// ordinal; BuildState rejects anything else.
	Units map[int]*types.Unit
}

// BuildState indexes unit records by ordinal and verifies that every
// record's identity is consistent with its claimed ordinal. Inconsistent
// records mean two writers disagreed about ordinal ownership; the pass
// aborts with ErrOrdinalConflict and retries from fresh state.
func BuildState(workload string, units []*types.Unit) (*State, error) {
	st := &State{Units: make(map[int]*types.Unit, len(units))}
	for _, u := range units {
		if u.Ordinal < 0 {
			return nil, fmt.Errorf("%w: unit %s claims negative ordinal %d",
				errdefs.ErrOrdinalConflict, u.Name, u.Ordinal)
		}
		if want := identity.Name(workload, u.Ordinal); u.Name != want {
			return nil, fmt.Errorf("%w: record at ordinal %d is named %s, want %s",
				errdefs.ErrOrdinalConflict, u.Ordinal, u.Name, want)
		}
		if prev, ok := st.Units[u.Ordinal]; ok {
			return nil, fmt.Errorf("%w: units %s and %s both claim ordinal %d",
				errdefs.ErrOrdinalConflict, prev.Name, u.Name, u.Ordinal)
		}
		st.Units[u.Ordinal] = u
	}
	return st, nil
}

// Ordinals returns the ordinals present in the snapshot, ascending.
func (s *State) Ordinals() []int {
	out := make([]int, 0, len(s.Units))
	for o := range s.Units {
		out = append(out, o)
	}
	sort.Ints(out)
	return out
}

// Unit returns the record at ordinal, or nil.
func (s *State) Unit(ordinal int) *types.Unit {
	return s.Units[ordinal]
}
