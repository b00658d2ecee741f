package volume

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/roostlabs/roost/pkg/types"
)

const (
	// DefaultVolumesPath is the base directory for local volumes
	DefaultVolumesPath = "/var/lib/roost/volumes"
)

// Driver defines the interface for volume drivers
type Driver interface {
	// Provision allocates backing storage for a binding and fills in
	// the binding's Path
	Provision(binding *types.VolumeBinding) error

	// Remove destroys the backing storage
	Remove(binding *types.VolumeBinding) error

	// Mount returns the host path for bind mounting into a unit
	Mount(binding *types.VolumeBinding) (string, error)

	// Unmount performs cleanup after the unit stops using the volume
	Unmount(binding *types.VolumeBinding) error
}

// LocalDriver backs bindings with plain directories on the local disk
type LocalDriver struct {
	basePath string
}

// NewLocalDriver creates a new local volume driver
func NewLocalDriver(basePath string) (*LocalDriver, error) {
	if basePath == "" {
		basePath = DefaultVolumesPath
	}

	if err := os.MkdirAll(basePath, 0755); err != nil {
		return nil, fmt.Errorf("failed to create volumes directory: %w", err)
	}

	return &LocalDriver{
		basePath: basePath,
	}, nil
}

// Provision creates the backing directory for a binding
func (d *LocalDriver) Provision(binding *types.VolumeBinding) error {
	path := d.path(binding)

	if err := os.MkdirAll(path, 0755); err != nil {
		return fmt.Errorf("failed to create volume directory: %w", err)
	}

	binding.Path = path
	return nil
}

// Remove deletes the backing directory and all data in it
func (d *LocalDriver) Remove(binding *types.VolumeBinding) error {
	path := d.path(binding)

	if _, err := os.Stat(path); os.IsNotExist(err) {
		return nil // Already removed
	}

	if err := os.RemoveAll(path); err != nil {
		return fmt.Errorf("failed to delete volume directory: %w", err)
	}

	return nil
}

// Mount returns the host path for bind mounting into a unit
func (d *LocalDriver) Mount(binding *types.VolumeBinding) (string, error) {
	path := d.path(binding)

	if _, err := os.Stat(path); os.IsNotExist(err) {
		return "", fmt.Errorf("volume directory does not exist: %s", path)
	}

	return path, nil
}

// Unmount performs cleanup (no-op for local directories; the data stays
// on disk)
func (d *LocalDriver) Unmount(binding *types.VolumeBinding) error {
	return nil
}

// path keys the directory by binding ID, not ordinal: a released binding
// must never collide with a future binding at the same ordinal.
func (d *LocalDriver) path(binding *types.VolumeBinding) string {
	return filepath.Join(d.basePath, binding.Namespace, binding.ID)
}
