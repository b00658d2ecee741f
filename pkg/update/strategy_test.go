package update

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roostlabs/roost/pkg/identity"
	"github.com/roostlabs/roost/pkg/types"
)

const (
	oldRev = "aaaaaaaaaaaaaaaa"
	newRev = "bbbbbbbbbbbbbbbb"
)

func rollingWorkload(replicas, partition int) *types.Workload {
	w := &types.Workload{
		Name:      "db",
		Namespace: "default",
		Replicas:  replicas,
		Template:  types.UnitTemplate{Image: "postgres:16"},
		UpdateStrategy: types.UpdateStrategy{
			Type:      types.RollingUpdate,
			Partition: partition,
		},
	}
	w.SetDefaults()
	return w
}

func unit(ordinal int, rev string, phase types.UnitPhase) *types.Unit {
	return &types.Unit{
		Name:      identity.Name("db", ordinal),
		Namespace: "default",
		Workload:  "db",
		Ordinal:   ordinal,
		Revision:  rev,
		Phase:     phase,
		CreatedAt: time.Now(),
	}
}

func unitsAt(revs map[int]string, phases map[int]types.UnitPhase) map[int]*types.Unit {
	units := make(map[int]*types.Unit)
	for ordinal, rev := range revs {
		phase := types.UnitReady
		if p, ok := phases[ordinal]; ok {
			phase = p
		}
		units[ordinal] = unit(ordinal, rev, phase)
	}
	return units
}

func TestRollingPicksHighestOutdated(t *testing.T) {
	w := rollingWorkload(3, 0)
	units := unitsAt(map[int]string{0: oldRev, 1: oldRev, 2: oldRev}, nil)

	got := ForWorkload(w).NextReplacement(w, units, newRev)
	require.NotNil(t, got)
	assert.Equal(t, 2, *got)
}

func TestRollingWalksDownAsUnitsSettle(t *testing.T) {
	w := rollingWorkload(3, 0)

	// Ordinal 2 already replaced and Ready; 1 is next.
	units := unitsAt(map[int]string{0: oldRev, 1: oldRev, 2: newRev}, nil)
	got := ForWorkload(w).NextReplacement(w, units, newRev)
	require.NotNil(t, got)
	assert.Equal(t, 1, *got)
}

func TestRollingWaitsForReplacementToSettle(t *testing.T) {
	w := rollingWorkload(3, 0)

	// Ordinal 2 was replaced but is still coming up.
	units := unitsAt(
		map[int]string{0: oldRev, 1: oldRev, 2: newRev},
		map[int]types.UnitPhase{2: types.UnitRunning},
	)
	assert.Nil(t, ForWorkload(w).NextReplacement(w, units, newRev))
}

func TestRollingWaitsOnHole(t *testing.T) {
	w := rollingWorkload(3, 0)

	// Ordinal 2 was retired and its recreate has not landed yet.
	units := unitsAt(map[int]string{0: oldRev, 1: oldRev}, nil)
	assert.Nil(t, ForWorkload(w).NextReplacement(w, units, newRev))
}

func TestRollingRespectsPartition(t *testing.T) {
	w := rollingWorkload(4, 2)

	// Everything at or above the partition is updated; 0 and 1 stay old.
	units := unitsAt(map[int]string{0: oldRev, 1: oldRev, 2: newRev, 3: newRev}, nil)
	assert.Nil(t, ForWorkload(w).NextReplacement(w, units, newRev))

	// Lowering the partition resumes the walk.
	w.UpdateStrategy.Partition = 1
	got := ForWorkload(w).NextReplacement(w, units, newRev)
	require.NotNil(t, got)
	assert.Equal(t, 1, *got)
}

func TestRollingDoesNotRetireUnhealthyUnit(t *testing.T) {
	w := rollingWorkload(3, 0)

	units := unitsAt(
		map[int]string{0: oldRev, 1: oldRev, 2: oldRev},
		map[int]types.UnitPhase{2: types.UnitFailed},
	)
	assert.Nil(t, ForWorkload(w).NextReplacement(w, units, newRev))
}

func TestRollingNothingToDoWhenCurrent(t *testing.T) {
	w := rollingWorkload(3, 0)
	units := unitsAt(map[int]string{0: newRev, 1: newRev, 2: newRev}, nil)
	assert.Nil(t, ForWorkload(w).NextReplacement(w, units, newRev))
}

func TestOnDeleteNeverReplaces(t *testing.T) {
	w := rollingWorkload(3, 0)
	w.UpdateStrategy = types.UpdateStrategy{Type: types.OnDelete}

	units := unitsAt(map[int]string{0: oldRev, 1: oldRev, 2: oldRev}, nil)
	assert.Nil(t, ForWorkload(w).NextReplacement(w, units, newRev))
}

func TestStalledFlagsSlowReplacement(t *testing.T) {
	w := rollingWorkload(3, 0)
	w.UpdateStrategy.TimeoutSeconds = 300

	units := unitsAt(
		map[int]string{0: oldRev, 1: oldRev, 2: newRev},
		map[int]types.UnitPhase{2: types.UnitPending},
	)
	units[2].CreatedAt = time.Now().Add(-10 * time.Minute)

	ordinal, stalled := Stalled(w, units, newRev, time.Now())
	assert.True(t, stalled)
	assert.Equal(t, 2, ordinal)
}

func TestStalledIgnoresSettledAndOldUnits(t *testing.T) {
	w := rollingWorkload(3, 0)
	w.UpdateStrategy.TimeoutSeconds = 300
	now := time.Now()

	// Ready replacement: not stalled.
	units := unitsAt(map[int]string{2: newRev}, nil)
	units[2].CreatedAt = now.Add(-10 * time.Minute)
	_, stalled := Stalled(w, units, newRev, now)
	assert.False(t, stalled)

	// Old-revision unit stuck for unrelated reasons: not an update stall.
	units = unitsAt(
		map[int]string{2: oldRev},
		map[int]types.UnitPhase{2: types.UnitPending},
	)
	units[2].CreatedAt = now.Add(-10 * time.Minute)
	_, stalled = Stalled(w, units, newRev, now)
	assert.False(t, stalled)

	// Young replacement still within its window: not stalled yet.
	units = unitsAt(
		map[int]string{2: newRev},
		map[int]types.UnitPhase{2: types.UnitRunning},
	)
	_, stalled = Stalled(w, units, newRev, now)
	assert.False(t, stalled)
}
