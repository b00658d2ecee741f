package lifecycle

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/roostlabs/roost/pkg/errdefs"
	"github.com/roostlabs/roost/pkg/events"
	"github.com/roostlabs/roost/pkg/identity"
	"github.com/roostlabs/roost/pkg/log"
	"github.com/roostlabs/roost/pkg/revision"
	"github.com/roostlabs/roost/pkg/runtime"
	"github.com/roostlabs/roost/pkg/types"
	"github.com/roostlabs/roost/pkg/volume"
)

// Recorder persists unit records as lifecycle operations progress.
type Recorder interface {
	SaveUnit(unit *types.Unit) error
}

// Binder attaches persistent volumes to units.
type Binder interface {
	Bind(namespace, workload string, ordinal int, tmpl types.VolumeTemplate) (*types.VolumeBinding, error)
	MountPath(binding *types.VolumeBinding) (string, error)
}

var _ Binder = (*volume.Binder)(nil)

// Manager drives single units through their phases. It owns the slow,
// per-unit work: volume binding, container create/start, graceful stop,
// and the watch goroutines that flip units between Running, Ready and
// Failed. Ordering across units is the reconciler's job, not ours.
type Manager struct {
	runtime  runtime.Runtime
	binder   Binder
	recorder Recorder
	broker   *events.Broker
	logger   zerolog.Logger

	onChange func(namespace, workload string)

	mu       sync.Mutex
	monitors map[string]*monitor
}

// NewManager creates a lifecycle manager on top of the given runtime,
// volume binder and record store.
func NewManager(rt runtime.Runtime, binder Binder, recorder Recorder, broker *events.Broker) *Manager {
	return &Manager{
		runtime:  rt,
		binder:   binder,
		recorder: recorder,
		broker:   broker,
		logger:   log.WithComponent("lifecycle"),
		monitors: make(map[string]*monitor),
	}
}

// OnChange registers a callback invoked after every persisted unit
// transition. The reconciler hooks this to wake its loop instead of
// waiting out the full pass interval.
func (m *Manager) OnChange(fn func(namespace, workload string)) {
	m.onChange = fn
}

// Create brings the unit at ordinal up: bind volume, pull image, create
// and start the container, then watch it towards Ready. observed is the
// stored record from a previous attempt or controller run; nil means the
// ordinal has never existed.
func (m *Manager) Create(ctx context.Context, w *types.Workload, ordinal int, observed *types.Unit) *Handle {
	h := newHandle()
	go func() {
		h.finish(m.create(ctx, w, ordinal, observed))
	}()
	return h
}

func (m *Manager) create(ctx context.Context, w *types.Workload, ordinal int, observed *types.Unit) error {
	id := identity.For(w.Name, w.Namespace, ordinal)
	logger := log.WithUnit(w.Namespace, w.Name, ordinal)

	unit := observed
	if unit == nil {
		unit = &types.Unit{
			Name:      id.Name,
			Namespace: w.Namespace,
			Workload:  w.Name,
			Ordinal:   ordinal,
			Address:   id.Address,
			Phase:     types.UnitPending,
			Revision:  revision.Compute(&w.Template),
			CreatedAt: time.Now(),
		}
		if err := m.persist(unit); err != nil {
			return err
		}
		m.publish(events.New(events.EventUnitCreated, w.Namespace, w.Name,
			fmt.Sprintf("created unit %s", unit.Name)).WithOrdinal(ordinal))
	}

	// A record that still points at a container is a leftover from a
	// previous controller run. Adopt the container if it is alive,
	// otherwise clear it and start over.
	if unit.RuntimeID != "" {
		adopted, err := m.adopt(ctx, w, unit)
		if err != nil {
			return err
		}
		if adopted {
			logger.Info().Str("runtime_id", unit.RuntimeID).Msg("Adopted running unit")
			return nil
		}
	}

	binding, err := m.binder.Bind(w.Namespace, w.Name, ordinal, w.VolumeTemplate)
	if err != nil {
		// Provisioning failures keep the unit Pending; the reconciler
		// retries with backoff.
		unit.Message = err.Error()
		if perr := m.persist(unit); perr != nil {
			return perr
		}
		if errdefs.IsProvisioning(err) {
			m.publish(events.New(events.EventVolumeProvisionFailed, w.Namespace, w.Name,
				err.Error()).WithOrdinal(ordinal))
		}
		return errdefs.WrapUnit(w.Namespace, w.Name, ordinal, err)
	}
	unit.BindingID = binding.ID

	mountPath, err := m.binder.MountPath(binding)
	if err != nil {
		return m.fail(unit, fmt.Sprintf("failed to resolve volume path: %v", err), err)
	}

	if err := m.runtime.PullImage(ctx, w.Template.Image); err != nil {
		return m.fail(unit, fmt.Sprintf("failed to pull image %s: %v", w.Template.Image, err), err)
	}

	cid := runtime.ContainerID(w.Namespace, unit.Name)

	// Clear any container left behind by an interrupted create.
	if err := m.runtime.RemoveUnit(ctx, cid); err != nil {
		return m.fail(unit, fmt.Sprintf("failed to clear stale container: %v", err), err)
	}

	// The record carries the revision the container actually runs.
	unit.Revision = revision.Compute(&w.Template)

	if _, err := m.runtime.CreateUnit(ctx, unitConfig(w, unit, mountPath)); err != nil {
		return m.fail(unit, fmt.Sprintf("failed to create container: %v", err), err)
	}

	if err := m.runtime.StartUnit(ctx, cid); err != nil {
		_ = m.runtime.RemoveUnit(ctx, cid)
		return m.fail(unit, fmt.Sprintf("failed to start container: %v", err), err)
	}

	ip, err := m.runtime.UnitIP(ctx, cid)
	if err != nil {
		logger.Warn().Err(err).Msg("Unit started without a resolvable address")
	}

	unit.Phase = types.UnitRunning
	unit.RuntimeID = cid
	unit.IP = ip
	unit.StartedAt = time.Now()
	unit.Message = ""
	unit.ExitCode = 0
	if err := m.persist(unit); err != nil {
		return err
	}
	m.publish(events.New(events.EventUnitRunning, w.Namespace, w.Name,
		fmt.Sprintf("unit %s is running", unit.Name)).WithOrdinal(ordinal))
	logger.Info().Str("image", w.Template.Image).Str("ip", ip).Msg("Unit started")

	m.ensureMonitor(w, unit)
	return nil
}

// Terminate drives a unit to Terminated: stop its monitor, stop the
// container with the workload's grace period, remove it, and persist the
// final phase. The volume binding is left alone; retention is decided by
// the reconciler.
func (m *Manager) Terminate(ctx context.Context, w *types.Workload, u *types.Unit) *Handle {
	h := newHandle()
	go func() {
		h.finish(m.terminate(ctx, w, u))
	}()
	return h
}

func (m *Manager) terminate(ctx context.Context, w *types.Workload, u *types.Unit) error {
	logger := log.WithUnit(u.Namespace, u.Workload, u.Ordinal)

	// The monitor must be fully stopped before the phase flips so a late
	// probe result cannot overwrite Terminating.
	m.stopMonitor(u.Key())

	if u.Phase != types.UnitTerminating {
		if !u.Phase.CanTransition(types.UnitTerminating) {
			return errdefs.WrapUnit(u.Namespace, u.Workload, u.Ordinal,
				fmt.Errorf("cannot terminate unit in phase %s", u.Phase))
		}
		u.Phase = types.UnitTerminating
		if err := m.persist(u); err != nil {
			return err
		}
	}

	if u.RuntimeID != "" {
		grace := w.GracePeriod()
		if err := m.runtime.StopUnit(ctx, u.RuntimeID, grace); err != nil {
			return errdefs.WrapUnit(u.Namespace, u.Workload, u.Ordinal,
				fmt.Errorf("failed to stop container: %w", err))
		}
		if err := m.runtime.RemoveUnit(ctx, u.RuntimeID); err != nil {
			return errdefs.WrapUnit(u.Namespace, u.Workload, u.Ordinal,
				fmt.Errorf("failed to remove container: %w", err))
		}
	}

	u.Phase = types.UnitTerminated
	u.RuntimeID = ""
	u.IP = ""
	u.Health = nil
	u.TerminatedAt = time.Now()
	if err := m.persist(u); err != nil {
		return err
	}
	m.publish(events.New(events.EventUnitTerminated, u.Namespace, u.Workload,
		fmt.Sprintf("unit %s terminated", u.Name)).WithOrdinal(u.Ordinal))
	logger.Info().Msg("Unit terminated")
	return nil
}

// Resync reattaches the controller to a workload's units after a restart.
// Running and Ready units with live containers get their monitors back;
// units whose containers died while the controller was down are reset to
// Pending so the reconciler recreates them.
func (m *Manager) Resync(ctx context.Context, w *types.Workload, units []*types.Unit) error {
	for _, u := range units {
		switch u.Phase {
		case types.UnitRunning, types.UnitReady:
		default:
			continue
		}
		if u.RuntimeID == "" {
			// Recorded as running but never got a container; the crash
			// hit mid-create. Writing Pending directly here is recovery
			// bookkeeping, not a live transition.
			u.Phase = types.UnitPending
			if err := m.persist(u); err != nil {
				return err
			}
			continue
		}
		if _, err := m.adopt(ctx, w, u); err != nil {
			return err
		}
	}
	return nil
}

// adopt reattaches to the unit's existing container. Returns true when the
// container is alive and now monitored; false when it was dead and cleared,
// in which case the record has been reset to Pending.
func (m *Manager) adopt(ctx context.Context, w *types.Workload, unit *types.Unit) (bool, error) {
	status, err := m.runtime.UnitStatus(ctx, unit.RuntimeID)
	if err != nil {
		return false, errdefs.WrapUnit(w.Namespace, w.Name, unit.Ordinal, err)
	}

	if status.State == runtime.StateRunning {
		if ip, err := m.runtime.UnitIP(ctx, unit.RuntimeID); err == nil && ip != "" {
			unit.IP = ip
		}
		if unit.Phase != types.UnitRunning && unit.Phase != types.UnitReady {
			unit.Phase = types.UnitRunning
			if unit.StartedAt.IsZero() {
				unit.StartedAt = time.Now()
			}
		}
		unit.Message = ""
		if err := m.persist(unit); err != nil {
			return false, err
		}
		m.ensureMonitor(w, unit)
		return true, nil
	}

	if err := m.runtime.RemoveUnit(ctx, unit.RuntimeID); err != nil {
		return false, errdefs.WrapUnit(w.Namespace, w.Name, unit.Ordinal, err)
	}
	unit.Phase = types.UnitPending
	unit.RuntimeID = ""
	unit.IP = ""
	unit.Health = nil
	unit.Message = "container lost; recreating"
	if err := m.persist(unit); err != nil {
		return false, err
	}
	return false, nil
}

// Shutdown stops all monitors. Unit containers keep running; they are
// adopted again on the next controller start.
func (m *Manager) Shutdown() {
	m.mu.Lock()
	monitors := make([]*monitor, 0, len(m.monitors))
	for _, mon := range m.monitors {
		monitors = append(monitors, mon)
	}
	m.monitors = make(map[string]*monitor)
	m.mu.Unlock()

	for _, mon := range monitors {
		mon.cancel()
		<-mon.done
	}
}

// fail marks the unit Failed and surfaces the cause through the handle.
func (m *Manager) fail(unit *types.Unit, msg string, cause error) error {
	unit.Phase = types.UnitFailed
	unit.Message = msg
	if err := m.persist(unit); err != nil {
		return err
	}
	m.publish(events.New(events.EventUnitFailed, unit.Namespace, unit.Workload, msg).WithOrdinal(unit.Ordinal))
	return errdefs.WrapUnit(unit.Namespace, unit.Workload, unit.Ordinal, cause)
}

func (m *Manager) persist(u *types.Unit) error {
	if err := m.recorder.SaveUnit(u); err != nil {
		return fmt.Errorf("failed to persist unit %s: %w", u.Name, err)
	}
	m.notify(u.Namespace, u.Workload)
	return nil
}

func (m *Manager) notify(namespace, workload string) {
	if m.onChange != nil {
		m.onChange(namespace, workload)
	}
}

func (m *Manager) publish(e *events.Event) {
	if m.broker != nil {
		m.broker.Publish(e)
	}
}

// unitConfig resolves the workload template into the runtime config for
// one unit, including the identity environment every unit receives.
func unitConfig(w *types.Workload, u *types.Unit, mountPath string) runtime.UnitConfig {
	env := append([]string(nil), w.Template.Env...)
	env = append(env,
		"ROOST_UNIT_NAME="+u.Name,
		"ROOST_UNIT_ADDRESS="+u.Address,
		"ROOST_UNIT_ORDINAL="+strconv.Itoa(u.Ordinal),
		"ROOST_WORKLOAD="+u.Workload,
		"ROOST_NAMESPACE="+u.Namespace,
		"ROOST_REPLICAS="+strconv.Itoa(w.Replicas),
		"ROOST_PEERS="+strings.Join(identity.Peers(w.Name, w.Namespace, w.Replicas), ","),
	)

	cfg := runtime.UnitConfig{
		ID:       runtime.ContainerID(u.Namespace, u.Name),
		Hostname: u.Name,
		Image:    w.Template.Image,
		Command:  w.Template.Command,
		Env:      env,
		Mounts: []runtime.Mount{
			{HostPath: mountPath, ContainerPath: w.Template.MountPath},
		},
	}
	if r := w.Template.Resources; r != nil {
		cfg.CPULimit = r.CPULimit
		cfg.MemoryLimitBytes = r.MemoryLimitBytes
	}
	return cfg
}
