package e2e

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roostlabs/roost/pkg/types"
)

// failingProbe can never pass: nothing listens on the probed port.
func failingProbe() *types.Probe {
	return &types.Probe{
		Type:             types.ProbeHTTP,
		Path:             "/health",
		Port:             1,
		IntervalSeconds:  1,
		TimeoutSeconds:   1,
		FailureThreshold: 2,
	}
}

// Under OrderedReady a Failed unit halts all progress at its ordinal:
// higher ordinals are never created until the failed unit is dealt with.
func TestFailedUnitBlocksOrderedProgress(t *testing.T) {
	ctrl, waiter, ctx := startController(t)
	c := ctrl.Client()

	w := testWorkload("stuck", 3)
	w.Template.Probe = failingProbe()
	_, err := c.Apply(ctx, w)
	require.NoError(t, err)

	require.NoError(t, waiter.WaitForUnitPhase(ctx, "default", "stuck", 0, types.UnitFailed))

	units, err := c.ListUnits(ctx, "default", "stuck")
	require.NoError(t, err)
	for _, u := range units {
		assert.Equal(t, 0, u.Ordinal, "no ordinal above the failed unit may exist")
	}

	require.NoError(t, waiter.WaitFor(ctx, func() bool {
		wl, err := c.GetWorkload(ctx, "default", "stuck")
		if err != nil || wl.Status.BlockedOrdinal == nil {
			return false
		}
		return *wl.Status.BlockedOrdinal == 0
	}, "status to report the blocking ordinal"))

	require.NoError(t, waiter.WaitForCondition(ctx, "default", "stuck", types.ConditionDegraded, true))
}

// Retiring a Failed unit is the recovery path: the replacement runs the
// current template against the ordinal's existing volume binding.
func TestRetireRecoversFailedUnit(t *testing.T) {
	ctrl, waiter, ctx := startController(t)
	c := ctrl.Client()

	w := testWorkload("sick", 1)
	w.Template.Probe = failingProbe()
	_, err := c.Apply(ctx, w)
	require.NoError(t, err)
	require.NoError(t, waiter.WaitForUnitPhase(ctx, "default", "sick", 0, types.UnitFailed))

	bindings, err := c.ListBindings(ctx, "default", "sick")
	require.NoError(t, err)
	require.Len(t, bindings, 1)
	bindingID := bindings[0].ID

	// Fix the template, then retire the failed unit.
	w.Template.Probe = nil
	_, err = c.Apply(ctx, w)
	require.NoError(t, err)
	require.NoError(t, c.RetireUnit(ctx, "default", "sick", 0))

	require.NoError(t, waiter.WaitForUnitPhase(ctx, "default", "sick", 0, types.UnitReady))

	units, err := c.ListUnits(ctx, "default", "sick")
	require.NoError(t, err)
	for _, u := range units {
		if u.Ordinal != 0 || u.Phase != types.UnitReady {
			continue
		}
		assert.Equal(t, "sick-0", u.Name)
		assert.Equal(t, bindingID, u.BindingID, "replacement must reattach the ordinal's binding")
	}
}
