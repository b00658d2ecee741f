package scale

import (
	"fmt"

	"github.com/rs/zerolog"

	"github.com/roostlabs/roost/pkg/errdefs"
	"github.com/roostlabs/roost/pkg/events"
	"github.com/roostlabs/roost/pkg/log"
	"github.com/roostlabs/roost/pkg/types"
)

// SpecStore is the slice of the control plane ScaleTo mutates through.
type SpecStore interface {
	GetWorkload(namespace, name string) (*types.Workload, error)
	PutReplicas(namespace, name string, replicas int) error
}

// Coordinator is the single entrance for replica count changes. Every
// scale, up or down, goes through ScaleTo; the reconciler converges the
// unit set towards whatever count is stored.
type Coordinator struct {
	store  SpecStore
	broker *events.Broker
	logger zerolog.Logger
}

// NewCoordinator builds a scale coordinator over the given spec store.
func NewCoordinator(store SpecStore, broker *events.Broker) *Coordinator {
	return &Coordinator{
		store:  store,
		broker: broker,
		logger: log.WithComponent("scale"),
	}
}

// ScaleTo sets the desired replica count and returns the updated
// workload. Scaling a workload that is being torn down is rejected;
// scaling to the current count is a no-op.
func (c *Coordinator) ScaleTo(namespace, name string, replicas int) (*types.Workload, error) {
	if replicas < 0 {
		return nil, fmt.Errorf("%w: replicas must be >= 0, got %d", errdefs.ErrInvalidSpec, replicas)
	}

	w, err := c.store.GetWorkload(namespace, name)
	if err != nil {
		return nil, err
	}
	if w.Deleting() {
		return nil, fmt.Errorf("%w: workload %s is being deleted", errdefs.ErrInvalidSpec, w.Key())
	}
	if w.Replicas == replicas {
		return w, nil
	}

	prev := w.Replicas
	if err := c.store.PutReplicas(namespace, name, replicas); err != nil {
		return nil, err
	}
	w.Replicas = replicas

	c.logger.Info().
		Str("workload", w.Key()).
		Int("from", prev).
		Int("to", replicas).
		Msg("Workload scaled")
	if c.broker != nil {
		c.broker.Publish(events.New(events.EventWorkloadScaled, namespace, name,
			fmt.Sprintf("scaled from %d to %d replicas", prev, replicas)))
	}
	return w, nil
}
