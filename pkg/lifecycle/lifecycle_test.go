package lifecycle

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roostlabs/roost/pkg/errdefs"
	"github.com/roostlabs/roost/pkg/health"
	"github.com/roostlabs/roost/pkg/identity"
	"github.com/roostlabs/roost/pkg/runtime"
	"github.com/roostlabs/roost/pkg/storage"
	"github.com/roostlabs/roost/pkg/types"
	"github.com/roostlabs/roost/pkg/volume"
)

func newTestManager(t *testing.T) (*Manager, *runtime.FakeRuntime, storage.Store) {
	t.Helper()

	store, err := storage.NewBoltStore(t.TempDir())
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })

	binder, err := volume.NewLocalBinder(store, t.TempDir())
	require.NoError(t, err)

	fake := runtime.NewFakeRuntime()
	m := NewManager(fake, binder, store, nil)
	t.Cleanup(m.Shutdown)
	return m, fake, store
}

func testWorkload(replicas int) *types.Workload {
	w := &types.Workload{
		Name:      "db",
		Namespace: "default",
		Replicas:  replicas,
		Template: types.UnitTemplate{
			Image: "postgres:16",
			Env:   []string{"PGUSER=roost"},
		},
	}
	w.SetDefaults()
	return w
}

func waitHandle(t *testing.T, h *Handle) error {
	t.Helper()
	select {
	case <-h.Done():
		return h.Err()
	case <-time.After(10 * time.Second):
		t.Fatal("operation did not complete")
		return nil
	}
}

func storedUnit(t *testing.T, store storage.Store, ordinal int) *types.Unit {
	t.Helper()
	u, err := store.GetUnit("default", "db", ordinal)
	require.NoError(t, err)
	return u
}

func TestCreateBringsUnitToReady(t *testing.T) {
	m, fake, store := newTestManager(t)
	w := testWorkload(1)

	h := m.Create(context.Background(), w, 0, nil)
	require.NoError(t, waitHandle(t, h))

	u := storedUnit(t, store, 0)
	assert.Equal(t, "db-0", u.Name)
	assert.Equal(t, "db-0.db.default", u.Address)
	assert.Equal(t, "default.db-0", u.RuntimeID)
	assert.NotEmpty(t, u.IP)
	assert.NotEmpty(t, u.BindingID)
	assert.Len(t, u.Revision, 16)
	assert.False(t, u.StartedAt.IsZero())

	// No probe configured, so the monitor promotes the unit as soon as
	// the container runs.
	require.Eventually(t, func() bool {
		return storedUnit(t, store, 0).Phase == types.UnitReady
	}, 5*time.Second, 20*time.Millisecond)

	assert.Equal(t, []string{"postgres:16"}, fake.Pulled())
	assert.True(t, m.Monitored(u.Key()))

	b, err := store.GetBinding("default", "db", 0)
	require.NoError(t, err)
	assert.Equal(t, types.BindingBound, b.Phase)
}

func TestUnitConfigCarriesIdentity(t *testing.T) {
	w := testWorkload(3)
	w.Template.Resources = &types.Resources{CPULimit: 0.5, MemoryLimitBytes: 1 << 28}
	id := identity.For("db", "default", 1)
	u := &types.Unit{
		Name:      id.Name,
		Namespace: "default",
		Workload:  "db",
		Ordinal:   1,
		Address:   id.Address,
	}

	cfg := unitConfig(w, u, "/var/lib/roost/volumes/default/bind-1")

	assert.Equal(t, "default.db-1", cfg.ID)
	assert.Equal(t, "db-1", cfg.Hostname)
	assert.Equal(t, "postgres:16", cfg.Image)
	assert.Contains(t, cfg.Env, "PGUSER=roost")
	assert.Contains(t, cfg.Env, "ROOST_UNIT_NAME=db-1")
	assert.Contains(t, cfg.Env, "ROOST_UNIT_ADDRESS=db-1.db.default")
	assert.Contains(t, cfg.Env, "ROOST_UNIT_ORDINAL=1")
	assert.Contains(t, cfg.Env, "ROOST_WORKLOAD=db")
	assert.Contains(t, cfg.Env, "ROOST_NAMESPACE=default")
	assert.Contains(t, cfg.Env, "ROOST_REPLICAS=3")
	assert.Contains(t, cfg.Env, "ROOST_PEERS=db-0.db.default,db-1.db.default,db-2.db.default")

	require.Len(t, cfg.Mounts, 1)
	assert.Equal(t, "/var/lib/roost/volumes/default/bind-1", cfg.Mounts[0].HostPath)
	assert.Equal(t, "/data", cfg.Mounts[0].ContainerPath)
	assert.Equal(t, 0.5, cfg.CPULimit)
	assert.Equal(t, int64(1<<28), cfg.MemoryLimitBytes)
}

type provisionFailBinder struct{}

func (provisionFailBinder) Bind(string, string, int, types.VolumeTemplate) (*types.VolumeBinding, error) {
	return nil, fmt.Errorf("no capacity in class local: %w", errdefs.ErrProvisioning)
}

func (provisionFailBinder) MountPath(*types.VolumeBinding) (string, error) {
	return "", nil
}

func TestCreateProvisioningFailureStaysPending(t *testing.T) {
	store, err := storage.NewBoltStore(t.TempDir())
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })

	fake := runtime.NewFakeRuntime()
	m := NewManager(fake, provisionFailBinder{}, store, nil)
	t.Cleanup(m.Shutdown)

	h := m.Create(context.Background(), testWorkload(1), 0, nil)
	err = waitHandle(t, h)
	require.Error(t, err)
	assert.True(t, errdefs.IsProvisioning(err))

	var uerr *errdefs.UnitError
	require.True(t, errors.As(err, &uerr))
	assert.Equal(t, 0, uerr.Ordinal)

	u := storedUnit(t, store, 0)
	assert.Equal(t, types.UnitPending, u.Phase)
	assert.Contains(t, u.Message, "no capacity")
	assert.Empty(t, fake.CreateOrder(), "no container should exist without a volume")
}

func TestCreateStartFailureMarksFailed(t *testing.T) {
	m, fake, store := newTestManager(t)
	fake.StartErr = errors.New("oci runtime blew up")

	h := m.Create(context.Background(), testWorkload(1), 0, nil)
	require.Error(t, waitHandle(t, h))

	u := storedUnit(t, store, 0)
	assert.Equal(t, types.UnitFailed, u.Phase)
	assert.Contains(t, u.Message, "failed to start container")

	// The failed container was cleaned up.
	ids, err := fake.ListUnits(context.Background())
	require.NoError(t, err)
	assert.Empty(t, ids)
}

func TestTerminateGraceful(t *testing.T) {
	m, fake, store := newTestManager(t)
	w := testWorkload(1)

	require.NoError(t, waitHandle(t, m.Create(context.Background(), w, 0, nil)))
	require.Eventually(t, func() bool {
		return storedUnit(t, store, 0).Phase == types.UnitReady
	}, 5*time.Second, 20*time.Millisecond)

	u := storedUnit(t, store, 0)
	require.NoError(t, waitHandle(t, m.Terminate(context.Background(), w, u)))

	u = storedUnit(t, store, 0)
	assert.Equal(t, types.UnitTerminated, u.Phase)
	assert.Empty(t, u.RuntimeID)
	assert.Empty(t, u.IP)
	assert.False(t, u.TerminatedAt.IsZero())
	assert.Empty(t, fake.ForceKilled())
	assert.False(t, m.Monitored(u.Key()))

	ids, err := fake.ListUnits(context.Background())
	require.NoError(t, err)
	assert.Empty(t, ids)
}

func TestTerminateEscalatesToKill(t *testing.T) {
	m, fake, store := newTestManager(t)
	w := testWorkload(1)
	w.TerminationGracePeriodSeconds = 1
	fake.StopDelay = 30 * time.Second

	require.NoError(t, waitHandle(t, m.Create(context.Background(), w, 0, nil)))
	u := storedUnit(t, store, 0)

	start := time.Now()
	require.NoError(t, waitHandle(t, m.Terminate(context.Background(), w, u)))
	assert.Less(t, time.Since(start), 5*time.Second, "grace period should bound the stop")

	assert.Equal(t, []string{"default.db-0"}, fake.ForceKilled())
	assert.Equal(t, types.UnitTerminated, storedUnit(t, store, 0).Phase)
}

func TestTerminatePendingUnitWithoutContainer(t *testing.T) {
	m, _, store := newTestManager(t)
	w := testWorkload(1)

	u := &types.Unit{
		Name:      "db-0",
		Namespace: "default",
		Workload:  "db",
		Ordinal:   0,
		Phase:     types.UnitPending,
		CreatedAt: time.Now(),
	}
	require.NoError(t, store.SaveUnit(u))

	require.NoError(t, waitHandle(t, m.Terminate(context.Background(), w, u)))
	assert.Equal(t, types.UnitTerminated, storedUnit(t, store, 0).Phase)
}

type stubChecker struct {
	healthy bool
	msg     string
}

func (c stubChecker) Check(context.Context) health.Result {
	return health.Result{Healthy: c.healthy, Message: c.msg, CheckedAt: time.Now()}
}

func (c stubChecker) Type() types.ProbeType { return types.ProbeHTTP }

func probeConfig() health.Config {
	return health.Config{
		Interval:         time.Second,
		Timeout:          time.Second,
		FailureThreshold: 3,
	}
}

// seedRunningUnit plants a Running unit record and a live container, the
// state observe ticks operate on, without going through Create.
func seedRunningUnit(t *testing.T, fake *runtime.FakeRuntime, store storage.Store) *types.Unit {
	t.Helper()
	id := identity.For("db", "default", 0)
	u := &types.Unit{
		Name:      id.Name,
		Namespace: "default",
		Workload:  "db",
		Ordinal:   0,
		Address:   id.Address,
		Phase:     types.UnitRunning,
		RuntimeID: "default.db-0",
		CreatedAt: time.Now(),
		StartedAt: time.Now(),
	}
	require.NoError(t, store.SaveUnit(u))
	fake.Seed(runtime.UnitConfig{ID: "default.db-0", Image: "postgres:16"}, true)
	return u
}

func TestObservePromotesRunningToReady(t *testing.T) {
	m, fake, store := newTestManager(t)
	u := seedRunningUnit(t, fake, store)

	status := health.NewStatus()
	stop := m.observe(context.Background(), u, stubChecker{healthy: true}, probeConfig(), status)
	assert.False(t, stop)

	got := storedUnit(t, store, 0)
	assert.Equal(t, types.UnitReady, got.Phase)
	assert.False(t, got.ReadyAt.IsZero())
	require.NotNil(t, got.Health)
	assert.True(t, got.Health.Healthy)
}

func TestObserveFailsAfterThreshold(t *testing.T) {
	m, fake, store := newTestManager(t)
	u := seedRunningUnit(t, fake, store)

	status := health.NewStatus()
	checker := stubChecker{healthy: false, msg: "connection refused"}
	config := probeConfig()

	assert.False(t, m.observe(context.Background(), u, checker, config, status))
	assert.False(t, m.observe(context.Background(), u, checker, config, status))

	// Degradation is persisted while the threshold counts up.
	mid := storedUnit(t, store, 0)
	require.NotNil(t, mid.Health)
	assert.Equal(t, 2, mid.Health.ConsecutiveFailures)

	assert.True(t, m.observe(context.Background(), u, checker, config, status))

	final := storedUnit(t, store, 0)
	assert.Equal(t, types.UnitFailed, final.Phase)
	assert.Contains(t, final.Message, "health check failed 3 times")
	assert.Contains(t, final.Message, "connection refused")
}

func TestObserveDetectsContainerExit(t *testing.T) {
	m, fake, store := newTestManager(t)
	u := seedRunningUnit(t, fake, store)

	fake.Exit("default.db-0", 2)

	assert.True(t, m.observe(context.Background(), u, nil, health.DefaultConfig(), health.NewStatus()))

	got := storedUnit(t, store, 0)
	assert.Equal(t, types.UnitFailed, got.Phase)
	assert.Equal(t, 2, got.ExitCode)
	assert.Contains(t, got.Message, "exited with code 2")
}

func TestAdoptRunningContainer(t *testing.T) {
	m, fake, store := newTestManager(t)
	w := testWorkload(1)

	id := identity.For("db", "default", 0)
	seed := &types.Unit{
		Name:      id.Name,
		Namespace: "default",
		Workload:  "db",
		Ordinal:   0,
		Address:   id.Address,
		Phase:     types.UnitRunning,
		RuntimeID: "default.db-0",
		CreatedAt: time.Now().Add(-time.Hour),
		StartedAt: time.Now().Add(-time.Hour),
	}
	require.NoError(t, store.SaveUnit(seed))
	fake.Seed(runtime.UnitConfig{ID: "default.db-0", Image: "postgres:16"}, true)

	require.NoError(t, waitHandle(t, m.Create(context.Background(), w, 0, seed)))

	assert.Empty(t, fake.CreateOrder(), "a live container must not be recreated")
	assert.True(t, m.Monitored("default/db/0"))

	u := storedUnit(t, store, 0)
	assert.NotEmpty(t, u.IP, "adoption refreshes the address")

	// The adopted unit has no probe, so the monitor promotes it.
	require.Eventually(t, func() bool {
		return storedUnit(t, store, 0).Phase == types.UnitReady
	}, 10*time.Second, 20*time.Millisecond)
}

func TestAdoptDeadContainerRecreates(t *testing.T) {
	m, fake, store := newTestManager(t)
	w := testWorkload(1)

	id := identity.For("db", "default", 0)
	seed := &types.Unit{
		Name:      id.Name,
		Namespace: "default",
		Workload:  "db",
		Ordinal:   0,
		Address:   id.Address,
		Phase:     types.UnitRunning,
		RuntimeID: "default.db-0",
		CreatedAt: time.Now().Add(-time.Hour),
	}
	require.NoError(t, store.SaveUnit(seed))
	// Container exists but is not running.
	fake.Seed(runtime.UnitConfig{ID: "default.db-0", Image: "postgres:16"}, false)

	require.NoError(t, waitHandle(t, m.Create(context.Background(), w, 0, seed)))

	assert.Equal(t, []string{"default.db-0"}, fake.CreateOrder(), "dead container is replaced")

	u := storedUnit(t, store, 0)
	assert.Equal(t, types.UnitRunning, u.Phase)
	assert.Equal(t, "default.db-0", u.RuntimeID)
}

func TestResyncAdoptsAndResets(t *testing.T) {
	m, fake, store := newTestManager(t)
	w := testWorkload(2)

	live := &types.Unit{
		Name: "db-0", Namespace: "default", Workload: "db", Ordinal: 0,
		Address: "db-0.db.default", Phase: types.UnitReady, RuntimeID: "default.db-0",
	}
	lost := &types.Unit{
		Name: "db-1", Namespace: "default", Workload: "db", Ordinal: 1,
		Address: "db-1.db.default", Phase: types.UnitRunning, RuntimeID: "default.db-1",
	}
	require.NoError(t, store.SaveUnit(live))
	require.NoError(t, store.SaveUnit(lost))
	fake.Seed(runtime.UnitConfig{ID: "default.db-0", Image: "postgres:16"}, true)
	// default.db-1 has no container at all.

	require.NoError(t, m.Resync(context.Background(), w, []*types.Unit{live, lost}))

	assert.True(t, m.Monitored("default/db/0"))
	assert.False(t, m.Monitored("default/db/1"))

	u1 := storedUnit(t, store, 1)
	assert.Equal(t, types.UnitPending, u1.Phase)
	assert.Empty(t, u1.RuntimeID)
	assert.Contains(t, u1.Message, "recreating")
}

func TestOnChangeFiresOnTransitions(t *testing.T) {
	m, _, store := newTestManager(t)
	w := testWorkload(1)

	changes := make(chan string, 32)
	m.OnChange(func(namespace, workload string) {
		select {
		case changes <- namespace + "/" + workload:
		default:
		}
	})

	require.NoError(t, waitHandle(t, m.Create(context.Background(), w, 0, nil)))
	require.Eventually(t, func() bool {
		return storedUnit(t, store, 0).Phase == types.UnitReady
	}, 5*time.Second, 20*time.Millisecond)

	select {
	case got := <-changes:
		assert.Equal(t, "default/db", got)
	default:
		t.Fatal("expected at least one change notification")
	}
}
