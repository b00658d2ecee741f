package main

import (
	"fmt"

	"github.com/roostlabs/roost/pkg/events"
	"github.com/roostlabs/roost/pkg/manager"
	"github.com/roostlabs/roost/pkg/reconciler"
	"github.com/roostlabs/roost/pkg/scale"
	"github.com/roostlabs/roost/pkg/types"
)

// controlBackend joins the replicated store, the scale coordinator and
// the reconcile loops behind the API surface. Every mutation lands in
// the store first, then pokes the workload's loop so the change takes
// effect without waiting for the next periodic pass.
type controlBackend struct {
	mgr    *manager.Manager
	recon  *reconciler.Reconciler
	scaler *scale.Coordinator
	broker *events.Broker
}

func (b *controlBackend) ApplyWorkload(w *types.Workload) (*types.Workload, error) {
	applied, err := b.mgr.ApplyWorkload(w)
	if err != nil {
		return nil, err
	}
	b.recon.Track(applied.Namespace, applied.Name)
	b.recon.Poke(applied.Namespace, applied.Name)
	b.broker.Publish(events.New(events.EventWorkloadApplied, applied.Namespace, applied.Name,
		fmt.Sprintf("workload applied, %d replicas", applied.Replicas)))
	return applied, nil
}

func (b *controlBackend) GetWorkload(namespace, name string) (*types.Workload, error) {
	return b.mgr.GetWorkload(namespace, name)
}

func (b *controlBackend) ListWorkloads() ([]*types.Workload, error) {
	return b.mgr.ListWorkloads()
}

func (b *controlBackend) DeleteWorkload(namespace, name string) error {
	if err := b.mgr.RequestDelete(namespace, name); err != nil {
		return err
	}
	b.broker.Publish(events.New(events.EventWorkloadDeleting, namespace, name,
		"teardown requested"))
	b.recon.Track(namespace, name)
	b.recon.Poke(namespace, name)
	return nil
}

func (b *controlBackend) ScaleWorkload(namespace, name string, replicas int) (*types.Workload, error) {
	w, err := b.scaler.ScaleTo(namespace, name, replicas)
	if err != nil {
		return nil, err
	}
	b.recon.Poke(namespace, name)
	return w, nil
}

func (b *controlBackend) PauseWorkload(namespace, name string, paused bool) (*types.Workload, error) {
	w, err := b.mgr.SetPaused(namespace, name, paused)
	if err != nil {
		return nil, err
	}
	if paused {
		b.broker.Publish(events.New(events.EventWorkloadPaused, namespace, name, "rollout paused"))
	} else {
		b.broker.Publish(events.New(events.EventWorkloadResumed, namespace, name, "rollout resumed"))
		b.recon.Poke(namespace, name)
	}
	return w, nil
}

func (b *controlBackend) RetireUnit(namespace, workload string, ordinal int) error {
	return b.recon.RetireUnit(namespace, workload, ordinal)
}

func (b *controlBackend) ListUnits(namespace, workload string) ([]*types.Unit, error) {
	return b.mgr.ListUnits(namespace, workload)
}

func (b *controlBackend) ListBindings(namespace, workload string) ([]*types.VolumeBinding, error) {
	return b.mgr.ListBindings(namespace, workload)
}
