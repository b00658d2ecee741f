package update

import (
	"github.com/roostlabs/roost/pkg/types"
)

// onDeleteStrategy never initiates replacements. Units keep running their
// old revision until the operator retires them; the recreate then picks up
// the current template.
type onDeleteStrategy struct{}

func (onDeleteStrategy) NextReplacement(*types.Workload, map[int]*types.Unit, string) *int {
	return nil
}
