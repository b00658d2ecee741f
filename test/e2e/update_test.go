package e2e

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roostlabs/roost/pkg/types"
)

func TestRollingUpdate(t *testing.T) {
	ctrl, waiter, ctx := startController(t)
	c := ctrl.Client()

	w := testWorkload("web", 3)
	_, err := c.Apply(ctx, w)
	require.NoError(t, err)
	require.NoError(t, waiter.WaitForReady(ctx, "default", "web", 3))

	before, err := c.GetWorkload(ctx, "default", "web")
	require.NoError(t, err)
	oldRevision := before.Status.CurrentRevision
	require.NotEmpty(t, oldRevision)

	w.Template.Image = "registry.local/postgres:17"
	_, err = c.Apply(ctx, w)
	require.NoError(t, err)

	require.NoError(t, waiter.WaitFor(ctx, func() bool {
		wl, err := c.GetWorkload(ctx, "default", "web")
		if err != nil {
			return false
		}
		return wl.Status.UpdatedReplicas == 3 &&
			wl.Status.ReadyReplicas == 3 &&
			wl.Status.CurrentRevision != oldRevision
	}, "rolling update to complete"))

	units, err := c.ListUnits(ctx, "default", "web")
	require.NoError(t, err)
	for _, u := range units {
		assert.NotEqual(t, oldRevision, u.Revision)
		// Replacements kept the ordinal's binding.
		assert.NotEmpty(t, u.BindingID)
	}
}

func TestRollingUpdateHonorsPartition(t *testing.T) {
	ctrl, waiter, ctx := startController(t)
	c := ctrl.Client()

	w := testWorkload("part", 4)
	_, err := c.Apply(ctx, w)
	require.NoError(t, err)
	require.NoError(t, waiter.WaitForReady(ctx, "default", "part", 4))

	before, err := c.GetWorkload(ctx, "default", "part")
	require.NoError(t, err)
	oldRevision := before.Status.CurrentRevision

	w.Template.Image = "registry.local/postgres:17"
	w.UpdateStrategy.Partition = 2
	_, err = c.Apply(ctx, w)
	require.NoError(t, err)

	// Only ordinals 2 and 3 move to the new revision.
	require.NoError(t, waiter.WaitFor(ctx, func() bool {
		wl, err := c.GetWorkload(ctx, "default", "part")
		if err != nil {
			return false
		}
		return wl.Status.UpdatedReplicas == 2 && wl.Status.ReadyReplicas == 4
	}, "partitioned update to settle"))

	units, err := c.ListUnits(ctx, "default", "part")
	require.NoError(t, err)
	for _, u := range units {
		if u.Ordinal < 2 {
			assert.Equal(t, oldRevision, u.Revision, "ordinal %d must keep the old revision", u.Ordinal)
		} else {
			assert.NotEqual(t, oldRevision, u.Revision, "ordinal %d must carry the new revision", u.Ordinal)
		}
	}

	// Lowering the partition to zero finishes the rollout.
	w.UpdateStrategy.Partition = 0
	_, err = c.Apply(ctx, w)
	require.NoError(t, err)
	require.NoError(t, waiter.WaitFor(ctx, func() bool {
		wl, err := c.GetWorkload(ctx, "default", "part")
		if err != nil {
			return false
		}
		return wl.Status.UpdatedReplicas == 4 && wl.Status.ReadyReplicas == 4
	}, "full rollout after partition cleared"))
}

func TestOnDeleteStrategy(t *testing.T) {
	ctrl, waiter, ctx := startController(t)
	c := ctrl.Client()

	w := testWorkload("manual", 2)
	w.UpdateStrategy.Type = types.OnDelete
	_, err := c.Apply(ctx, w)
	require.NoError(t, err)
	require.NoError(t, waiter.WaitForReady(ctx, "default", "manual", 2))

	before, err := c.ListUnits(ctx, "default", "manual")
	require.NoError(t, err)
	oldRevision := before[0].Revision

	w.Template.Image = "registry.local/postgres:17"
	_, err = c.Apply(ctx, w)
	require.NoError(t, err)

	// The pending revision shows up in status, but nothing moves on its
	// own under OnDelete.
	require.NoError(t, waiter.WaitFor(ctx, func() bool {
		wl, err := c.GetWorkload(ctx, "default", "manual")
		if err != nil {
			return false
		}
		return wl.Status.UpdateRevision != "" && wl.Status.UpdateRevision != oldRevision
	}, "status to carry the pending revision"))

	require.NoError(t, waiter.WaitForReady(ctx, "default", "manual", 2))
	units, err := c.ListUnits(ctx, "default", "manual")
	require.NoError(t, err)
	for _, u := range units {
		assert.Equal(t, oldRevision, u.Revision)
	}

	// Retiring a unit recreates it with the pending revision.
	require.NoError(t, c.RetireUnit(ctx, "default", "manual", 1))
	require.NoError(t, waiter.WaitFor(ctx, func() bool {
		units, err := c.ListUnits(ctx, "default", "manual")
		if err != nil {
			return false
		}
		for _, u := range units {
			if u.Ordinal == 1 {
				return u.Phase == types.UnitReady && u.Revision != oldRevision
			}
		}
		return false
	}, "retired unit to come back on the new revision"))
}

func TestPauseHoldsRollout(t *testing.T) {
	ctrl, waiter, ctx := startController(t)
	c := ctrl.Client()

	w := testWorkload("held", 2)
	_, err := c.Apply(ctx, w)
	require.NoError(t, err)
	require.NoError(t, waiter.WaitForReady(ctx, "default", "held", 2))

	_, err = c.Pause(ctx, "default", "held")
	require.NoError(t, err)

	w.Replicas = 4
	_, err = c.Apply(ctx, w)
	require.NoError(t, err)

	// Paused: the reconciler dispatches nothing new.
	require.NoError(t, waiter.WaitForReady(ctx, "default", "held", 2))
	units, err := c.ListUnits(ctx, "default", "held")
	require.NoError(t, err)
	assert.Len(t, units, 2)

	_, err = c.Resume(ctx, "default", "held")
	require.NoError(t, err)
	require.NoError(t, waiter.WaitForReady(ctx, "default", "held", 4))
}
