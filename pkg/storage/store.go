package storage

import (
	"github.com/roostlabs/roost/pkg/types"
)

// Store defines the interface for durable controller state.
// Implemented by the BoltDB-backed store; the manager wraps the write
// half behind the replicated log.
type Store interface {
	// Workloads
	SaveWorkload(w *types.Workload) error
	GetWorkload(namespace, name string) (*types.Workload, error)
	ListWorkloads() ([]*types.Workload, error)
	DeleteWorkload(namespace, name string) error

	// Units
	SaveUnit(u *types.Unit) error
	GetUnit(namespace, workload string, ordinal int) (*types.Unit, error)
	ListUnits(namespace, workload string) ([]*types.Unit, error)
	DeleteUnit(namespace, workload string, ordinal int) error

	// Volume bindings
	SaveBinding(b *types.VolumeBinding) error
	GetBinding(namespace, workload string, ordinal int) (*types.VolumeBinding, error)
	ListBindings(namespace, workload string) ([]*types.VolumeBinding, error)
	DeleteBinding(namespace, workload string, ordinal int) error

	// Utility
	Close() error
}
