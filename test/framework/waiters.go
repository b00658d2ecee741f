package framework

import (
	"context"
	"fmt"
	"time"

	"github.com/roostlabs/roost/pkg/client"
	"github.com/roostlabs/roost/pkg/errdefs"
	"github.com/roostlabs/roost/pkg/types"
)

// Waiter polls conditions against the controller API with a timeout.
type Waiter struct {
	client   *client.Client
	timeout  time.Duration
	interval time.Duration
}

// NewWaiter builds a waiter over the given client.
func NewWaiter(c *client.Client, timeout, interval time.Duration) *Waiter {
	return &Waiter{client: c, timeout: timeout, interval: interval}
}

// DefaultWaiter polls every second for up to a minute, which covers the
// slowest ordered rollout the suite provokes with the fake runtime.
func DefaultWaiter(c *client.Client) *Waiter {
	return NewWaiter(c, time.Minute, time.Second)
}

// WaitFor polls condition until true or the timeout expires.
func (w *Waiter) WaitFor(ctx context.Context, condition func() bool, description string) error {
	ctx, cancel := context.WithTimeout(ctx, w.timeout)
	defer cancel()

	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()

	if condition() {
		return nil
	}
	for {
		select {
		case <-ctx.Done():
			return fmt.Errorf("timeout waiting for: %s (timeout %v)", description, w.timeout)
		case <-ticker.C:
			if condition() {
				return nil
			}
		}
	}
}

// WaitForReady waits until the workload reports the given number of
// Ready replicas and no fewer total replicas.
func (w *Waiter) WaitForReady(ctx context.Context, namespace, name string, ready int) error {
	return w.WaitFor(ctx, func() bool {
		wl, err := w.client.GetWorkload(ctx, namespace, name)
		if err != nil {
			return false
		}
		return wl.Status.ReadyReplicas == ready && wl.Status.Replicas >= ready
	}, fmt.Sprintf("workload %s/%s to have %d ready units", namespace, name, ready))
}

// WaitForReplicaCount waits until exactly count unit records exist,
// Terminated ones excluded.
func (w *Waiter) WaitForReplicaCount(ctx context.Context, namespace, name string, count int) error {
	return w.WaitFor(ctx, func() bool {
		units, err := w.client.ListUnits(ctx, namespace, name)
		if err != nil {
			return false
		}
		live := 0
		for _, u := range units {
			if u.Phase != types.UnitTerminated {
				live++
			}
		}
		return live == count
	}, fmt.Sprintf("workload %s/%s to have %d units", namespace, name, count))
}

// WaitForUnitPhase waits for the unit at ordinal to reach phase.
func (w *Waiter) WaitForUnitPhase(ctx context.Context, namespace, name string, ordinal int, phase types.UnitPhase) error {
	return w.WaitFor(ctx, func() bool {
		units, err := w.client.ListUnits(ctx, namespace, name)
		if err != nil {
			return false
		}
		for _, u := range units {
			if u.Ordinal == ordinal {
				return u.Phase == phase
			}
		}
		return false
	}, fmt.Sprintf("unit %s/%s/%d to reach %s", namespace, name, ordinal, phase))
}

// WaitForRevision waits until every live unit carries the given revision
// and is Ready.
func (w *Waiter) WaitForRevision(ctx context.Context, namespace, name, revision string) error {
	return w.WaitFor(ctx, func() bool {
		units, err := w.client.ListUnits(ctx, namespace, name)
		if err != nil || len(units) == 0 {
			return false
		}
		for _, u := range units {
			if u.Phase == types.UnitTerminated {
				continue
			}
			if u.Revision != revision || u.Phase != types.UnitReady {
				return false
			}
		}
		return true
	}, fmt.Sprintf("workload %s/%s to converge on revision %s", namespace, name, revision))
}

// WaitForDeleted waits until the workload record is gone.
func (w *Waiter) WaitForDeleted(ctx context.Context, namespace, name string) error {
	return w.WaitFor(ctx, func() bool {
		_, err := w.client.GetWorkload(ctx, namespace, name)
		return errdefs.IsNotFound(err)
	}, fmt.Sprintf("workload %s/%s to be deleted", namespace, name))
}

// WaitForCondition waits for a status condition to hold the wanted value.
func (w *Waiter) WaitForCondition(ctx context.Context, namespace, name string, condType types.ConditionType, status bool) error {
	return w.WaitFor(ctx, func() bool {
		wl, err := w.client.GetWorkload(ctx, namespace, name)
		if err != nil {
			return false
		}
		cond := wl.Status.Condition(condType)
		return cond != nil && cond.Status == status
	}, fmt.Sprintf("workload %s/%s condition %s=%v", namespace, name, condType, status))
}

// WaitForBindingCount waits until count bindings exist, any phase.
func (w *Waiter) WaitForBindingCount(ctx context.Context, namespace, name string, count int) error {
	return w.WaitFor(ctx, func() bool {
		bindings, err := w.client.ListBindings(ctx, namespace, name)
		if err != nil {
			return false
		}
		return len(bindings) == count
	}, fmt.Sprintf("workload %s/%s to have %d volume bindings", namespace, name, count))
}
