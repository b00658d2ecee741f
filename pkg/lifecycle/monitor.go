package lifecycle

import (
	"context"
	"fmt"
	"time"

	"github.com/roostlabs/roost/pkg/events"
	"github.com/roostlabs/roost/pkg/health"
	"github.com/roostlabs/roost/pkg/log"
	"github.com/roostlabs/roost/pkg/runtime"
	"github.com/roostlabs/roost/pkg/types"
)

// containerWatchInterval is how often units without a probe are checked
// for container exit.
const containerWatchInterval = 5 * time.Second

type monitor struct {
	cancel context.CancelFunc
	done   chan struct{}
}

// ensureMonitor starts the watch goroutine for a unit. Idempotent: a unit
// already being watched is left alone.
func (m *Manager) ensureMonitor(w *types.Workload, u *types.Unit) {
	m.mu.Lock()
	defer m.mu.Unlock()

	key := u.Key()
	if _, exists := m.monitors[key]; exists {
		return
	}

	ctx, cancel := context.WithCancel(context.Background())
	mon := &monitor{cancel: cancel, done: make(chan struct{})}
	m.monitors[key] = mon

	// The monitor owns its own copies; reconciler passes and lifecycle
	// goroutines never share unit pointers.
	unit := *u
	tmpl := w.Template
	m.logger.Debug().Str("unit", key).Msg("Starting unit monitor")
	go m.watch(ctx, &tmpl, &unit, mon)
}

// stopMonitor cancels a unit's watch goroutine and waits for it to exit.
func (m *Manager) stopMonitor(key string) {
	m.mu.Lock()
	mon, ok := m.monitors[key]
	delete(m.monitors, key)
	m.mu.Unlock()

	if ok {
		mon.cancel()
		<-mon.done
	}
}

// clearMonitor removes a watch entry when its goroutine exits on its own.
func (m *Manager) clearMonitor(key string, mon *monitor) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.monitors[key] == mon {
		delete(m.monitors, key)
	}
}

// Monitored reports whether a unit currently has a watch goroutine.
func (m *Manager) Monitored(key string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	_, ok := m.monitors[key]
	return ok
}

// watch polls the unit's container state and probe until the unit fails
// or the monitor is stopped. Running units are promoted to Ready on their
// first passing probe; units without a probe are Ready as soon as the
// container runs.
func (m *Manager) watch(ctx context.Context, tmpl *types.UnitTemplate, u *types.Unit, mon *monitor) {
	defer close(mon.done)
	defer m.clearMonitor(u.Key(), mon)

	logger := log.WithUnit(u.Namespace, u.Workload, u.Ordinal)

	var checker health.Checker
	config := health.DefaultConfig()
	if tmpl.Probe != nil {
		c, cfg, err := health.ForProbe(tmpl.Probe, u.IP, u.RuntimeID)
		if err != nil {
			logger.Error().Err(err).Msg("Invalid probe; monitoring container state only")
		} else {
			checker = c
			config = cfg
		}
	}

	interval := config.Interval
	if checker == nil {
		interval = containerWatchInterval
	}
	status := health.NewStatus()

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		if stop := m.observe(ctx, u, checker, config, status); stop {
			return
		}
		select {
		case <-ticker.C:
		case <-ctx.Done():
			return
		}
	}
}

// observe performs one watch tick. It returns true when the monitor should
// stop: the unit failed, or the watch was canceled.
func (m *Manager) observe(ctx context.Context, u *types.Unit, checker health.Checker, config health.Config, status *health.Status) bool {
	rs, err := m.runtime.UnitStatus(ctx, u.RuntimeID)
	if err != nil {
		if ctx.Err() != nil {
			return true
		}
		logger := log.WithUnit(u.Namespace, u.Workload, u.Ordinal)
		logger.Warn().Err(err).Msg("Failed to read container state")
		return false
	}

	switch rs.State {
	case runtime.StateStopped:
		m.failUnit(ctx, u, healthState(checker, status), rs.ExitCode,
			fmt.Sprintf("container exited with code %d", rs.ExitCode))
		return true
	case runtime.StateNotFound:
		m.failUnit(ctx, u, healthState(checker, status), 0, "container disappeared")
		return true
	}

	if checker == nil {
		if u.Phase == types.UnitRunning {
			m.markReady(ctx, u, nil)
		}
		return false
	}

	checkCtx, cancel := context.WithTimeout(ctx, config.Timeout)
	result := checker.Check(checkCtx)
	cancel()
	if ctx.Err() != nil {
		return true
	}

	if exhausted := status.Update(result, config); exhausted {
		m.failUnit(ctx, u, status.State(), 0,
			fmt.Sprintf("health check failed %d times: %s", status.ConsecutiveFailures, result.Message))
		return true
	}

	wasHealthy := u.Health != nil && u.Health.Healthy
	u.Health = status.State()

	if status.Healthy && u.Phase == types.UnitRunning {
		m.markReady(ctx, u, status.State())
		return false
	}

	// Persist degradation and recovery, not steady healthy ticks.
	if !result.Healthy || !wasHealthy {
		if ctx.Err() == nil {
			if err := m.persist(u); err != nil {
				logger := log.WithUnit(u.Namespace, u.Workload, u.Ordinal)
				logger.Warn().Err(err).Msg("Failed to persist health state")
			}
		}
	}
	return false
}

// markReady promotes a Running unit to Ready.
func (m *Manager) markReady(ctx context.Context, u *types.Unit, hs *types.HealthState) {
	if ctx.Err() != nil {
		return
	}
	u.Phase = types.UnitReady
	u.ReadyAt = time.Now()
	u.Message = ""
	if hs != nil {
		u.Health = hs
	}
	logger := log.WithUnit(u.Namespace, u.Workload, u.Ordinal)
	if err := m.persist(u); err != nil {
		logger.Error().Err(err).Msg("Failed to persist ready transition")
		return
	}
	m.publish(events.New(events.EventUnitReady, u.Namespace, u.Workload,
		fmt.Sprintf("unit %s is ready", u.Name)).WithOrdinal(u.Ordinal))
	logger.Info().Msg("Unit ready")
}

// failUnit marks the unit Failed from inside its monitor.
func (m *Manager) failUnit(ctx context.Context, u *types.Unit, hs *types.HealthState, exitCode int, msg string) {
	if ctx.Err() != nil {
		return
	}
	if !u.Phase.CanTransition(types.UnitFailed) {
		return
	}
	u.Phase = types.UnitFailed
	u.ExitCode = exitCode
	u.Message = msg
	if hs != nil {
		u.Health = hs
	}
	logger := log.WithUnit(u.Namespace, u.Workload, u.Ordinal)
	if err := m.persist(u); err != nil {
		logger.Error().Err(err).Msg("Failed to persist failed transition")
		return
	}
	m.publish(events.New(events.EventUnitFailed, u.Namespace, u.Workload, msg).WithOrdinal(u.Ordinal))
	logger.Warn().Str("reason", msg).Msg("Unit failed")
}

func healthState(checker health.Checker, status *health.Status) *types.HealthState {
	if checker == nil {
		return nil
	}
	return status.State()
}
