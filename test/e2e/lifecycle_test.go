package e2e

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roostlabs/roost/pkg/types"
)

func TestWorkloadLifecycle(t *testing.T) {
	ctrl, waiter, ctx := startController(t)
	c := ctrl.Client()

	_, err := c.Apply(ctx, testWorkload("db", 3))
	require.NoError(t, err)

	require.NoError(t, waiter.WaitForReady(ctx, "default", "db", 3))

	units, err := c.ListUnits(ctx, "default", "db")
	require.NoError(t, err)
	require.Len(t, units, 3)

	// Names and addresses are derived from the ordinal and never change.
	for _, u := range units {
		assert.Equal(t, types.UnitReady, u.Phase)
		assert.Contains(t, []string{"db-0", "db-1", "db-2"}, u.Name)
		assert.NotEmpty(t, u.Address)
		assert.NotEmpty(t, u.BindingID)
	}

	// Ordered creation: a unit never starts before its lower neighbor
	// was Ready, so creation timestamps ascend with the ordinal.
	byOrdinal := make(map[int]*types.Unit, len(units))
	for _, u := range units {
		byOrdinal[u.Ordinal] = u
	}
	require.Len(t, byOrdinal, 3)
	assert.False(t, byOrdinal[1].CreatedAt.Before(byOrdinal[0].CreatedAt))
	assert.False(t, byOrdinal[2].CreatedAt.Before(byOrdinal[1].CreatedAt))

	// Each ordinal got its own volume binding.
	bindings, err := c.ListBindings(ctx, "default", "db")
	require.NoError(t, err)
	require.Len(t, bindings, 3)
	for _, b := range bindings {
		assert.Equal(t, types.BindingBound, b.Phase)
		assert.NotEmpty(t, b.Path)
	}

	require.NoError(t, c.DeleteWorkload(ctx, "default", "db"))
	require.NoError(t, waiter.WaitForDeleted(ctx, "default", "db"))
}

func TestApplyRejectsInvalidSpec(t *testing.T) {
	ctrl, _, ctx := startController(t)
	c := ctrl.Client()

	w := testWorkload("bad", 1)
	w.Template.Image = ""
	_, err := c.Apply(ctx, w)
	require.Error(t, err)
}
