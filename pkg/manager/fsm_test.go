package manager

import (
	"bytes"
	"encoding/json"
	"io"
	"testing"
	"time"

	"github.com/hashicorp/raft"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roostlabs/roost/pkg/errdefs"
	"github.com/roostlabs/roost/pkg/storage"
	"github.com/roostlabs/roost/pkg/types"
)

func newTestFSM(t *testing.T) (*FSM, storage.Store) {
	t.Helper()
	store, err := storage.NewBoltStore(t.TempDir())
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })
	return NewFSM(store), store
}

func applyOp(t *testing.T, f *FSM, op string, payload interface{}) interface{} {
	t.Helper()
	data, err := json.Marshal(payload)
	require.NoError(t, err)
	entry, err := json.Marshal(Command{Op: op, Data: data})
	require.NoError(t, err)
	return f.Apply(&raft.Log{Data: entry})
}

func testWorkload() *types.Workload {
	w := &types.Workload{
		Name:      "db",
		Namespace: "default",
		Replicas:  3,
		Template:  types.UnitTemplate{Image: "db:1.0"},
	}
	w.SetDefaults()
	return w
}

func TestFSMSaveAndDeleteWorkload(t *testing.T) {
	f, store := newTestFSM(t)

	assert.Nil(t, applyOp(t, f, opSaveWorkload, testWorkload()))

	got, err := store.GetWorkload("default", "db")
	require.NoError(t, err)
	assert.Equal(t, 3, got.Replicas)

	assert.Nil(t, applyOp(t, f, opDeleteWorkload, workloadRef{Namespace: "default", Name: "db"}))
	_, err = store.GetWorkload("default", "db")
	assert.True(t, errdefs.IsNotFound(err))
}

func TestFSMScalePreservesSpec(t *testing.T) {
	f, store := newTestFSM(t)
	require.Nil(t, applyOp(t, f, opSaveWorkload, testWorkload()))

	assert.Nil(t, applyOp(t, f, opScaleWorkload, scalePayload{Namespace: "default", Name: "db", Replicas: 5}))

	got, err := store.GetWorkload("default", "db")
	require.NoError(t, err)
	assert.Equal(t, 5, got.Replicas)
	// Only the count changes; the template survives untouched.
	assert.Equal(t, "db:1.0", got.Template.Image)
	assert.False(t, got.UpdatedAt.IsZero())
}

func TestFSMScaleUnknownWorkload(t *testing.T) {
	f, _ := newTestFSM(t)

	resp := applyOp(t, f, opScaleWorkload, scalePayload{Namespace: "default", Name: "ghost", Replicas: 1})
	err, ok := resp.(error)
	require.True(t, ok)
	assert.True(t, errdefs.IsNotFound(err))
}

func TestFSMStatusAndScaleDoNotClobber(t *testing.T) {
	f, store := newTestFSM(t)
	require.Nil(t, applyOp(t, f, opSaveWorkload, testWorkload()))

	// A status write landing after a scale must not undo the scale:
	// both ops read-modify-write inside the state machine.
	require.Nil(t, applyOp(t, f, opScaleWorkload, scalePayload{Namespace: "default", Name: "db", Replicas: 7}))
	require.Nil(t, applyOp(t, f, opUpdateStatus, statusPayload{
		Namespace: "default", Name: "db",
		Status: types.WorkloadStatus{Replicas: 3, ReadyReplicas: 3},
	}))

	got, err := store.GetWorkload("default", "db")
	require.NoError(t, err)
	assert.Equal(t, 7, got.Replicas)
	assert.Equal(t, 3, got.Status.ReadyReplicas)
}

func TestFSMPauseAndRequestDelete(t *testing.T) {
	f, store := newTestFSM(t)
	require.Nil(t, applyOp(t, f, opSaveWorkload, testWorkload()))

	require.Nil(t, applyOp(t, f, opPauseWorkload, pausePayload{Namespace: "default", Name: "db", Paused: true}))
	got, err := store.GetWorkload("default", "db")
	require.NoError(t, err)
	assert.True(t, got.Paused)

	first := time.Now()
	require.Nil(t, applyOp(t, f, opRequestDelete, requestDeletePayload{Namespace: "default", Name: "db", At: first}))
	got, err = store.GetWorkload("default", "db")
	require.NoError(t, err)
	require.NotNil(t, got.DeleteRequestedAt)
	assert.Equal(t, first.Unix(), got.DeleteRequestedAt.Unix())

	// A second request keeps the original timestamp.
	require.Nil(t, applyOp(t, f, opRequestDelete, requestDeletePayload{Namespace: "default", Name: "db", At: first.Add(time.Hour)}))
	got, err = store.GetWorkload("default", "db")
	require.NoError(t, err)
	assert.Equal(t, first.Unix(), got.DeleteRequestedAt.Unix())
}

func TestFSMUnitAndBindingOps(t *testing.T) {
	f, store := newTestFSM(t)

	u := &types.Unit{
		Name: "db-0", Namespace: "default", Workload: "db",
		Ordinal: 0, Address: "db-0.db.default", Phase: types.UnitPending,
	}
	require.Nil(t, applyOp(t, f, opSaveUnit, u))

	b := &types.VolumeBinding{
		ID: "vb-1", Namespace: "default", Workload: "db",
		Ordinal: 0, Class: "local", Phase: types.BindingBound,
	}
	require.Nil(t, applyOp(t, f, opSaveBinding, b))

	gotU, err := store.GetUnit("default", "db", 0)
	require.NoError(t, err)
	assert.Equal(t, types.UnitPending, gotU.Phase)

	gotB, err := store.GetBinding("default", "db", 0)
	require.NoError(t, err)
	assert.Equal(t, "vb-1", gotB.ID)

	require.Nil(t, applyOp(t, f, opDeleteUnit, ordinalRef{Namespace: "default", Workload: "db", Ordinal: 0}))
	require.Nil(t, applyOp(t, f, opDeleteBinding, ordinalRef{Namespace: "default", Workload: "db", Ordinal: 0}))

	_, err = store.GetUnit("default", "db", 0)
	assert.True(t, errdefs.IsNotFound(err))
	_, err = store.GetBinding("default", "db", 0)
	assert.True(t, errdefs.IsNotFound(err))
}

func TestFSMUnknownOp(t *testing.T) {
	f, _ := newTestFSM(t)
	resp := applyOp(t, f, "rewind_time", struct{}{})
	err, ok := resp.(error)
	require.True(t, ok)
	assert.Contains(t, err.Error(), "unknown command op")
}

// memorySink is an in-memory raft.SnapshotSink for snapshot tests.
type memorySink struct {
	bytes.Buffer
	cancelled bool
}

func (s *memorySink) ID() string    { return "test" }
func (s *memorySink) Close() error  { return nil }
func (s *memorySink) Cancel() error { s.cancelled = true; return nil }

func TestFSMSnapshotRestore(t *testing.T) {
	f, _ := newTestFSM(t)
	require.Nil(t, applyOp(t, f, opSaveWorkload, testWorkload()))
	require.Nil(t, applyOp(t, f, opSaveUnit, &types.Unit{
		Name: "db-0", Namespace: "default", Workload: "db",
		Ordinal: 0, Address: "db-0.db.default", Phase: types.UnitReady,
	}))
	require.Nil(t, applyOp(t, f, opSaveBinding, &types.VolumeBinding{
		ID: "vb-1", Namespace: "default", Workload: "db",
		Ordinal: 0, Class: "local", Phase: types.BindingBound,
	}))

	snap, err := f.Snapshot()
	require.NoError(t, err)

	sink := &memorySink{}
	require.NoError(t, snap.Persist(sink))
	assert.False(t, sink.cancelled)

	restored, store2 := newTestFSM(t)
	require.NoError(t, restored.Restore(io.NopCloser(&sink.Buffer)))

	w, err := store2.GetWorkload("default", "db")
	require.NoError(t, err)
	assert.Equal(t, 3, w.Replicas)

	u, err := store2.GetUnit("default", "db", 0)
	require.NoError(t, err)
	assert.Equal(t, types.UnitReady, u.Phase)

	b, err := store2.GetBinding("default", "db", 0)
	require.NoError(t, err)
	assert.Equal(t, "vb-1", b.ID)
}
