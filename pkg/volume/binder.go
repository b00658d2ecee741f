package volume

import (
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/roostlabs/roost/pkg/errdefs"
	"github.com/roostlabs/roost/pkg/log"
	"github.com/roostlabs/roost/pkg/types"
)

// BindingStore is the slice of durable storage the binder needs. The
// manager satisfies it with log-replicated writes; tests use the bolt
// store directly.
type BindingStore interface {
	SaveBinding(b *types.VolumeBinding) error
	GetBinding(namespace, workload string, ordinal int) (*types.VolumeBinding, error)
	DeleteBinding(namespace, workload string, ordinal int) error
}

// Binder owns the ordinal-to-volume association. Bind is idempotent per
// ordinal: a replacement unit at ordinal k reattaches the binding the
// previous unit at k used, which is what makes unit identity stick to
// data across restarts and updates.
type Binder struct {
	store   BindingStore
	drivers map[string]Driver
	logger  zerolog.Logger
}

// NewBinder creates a binder dispatching to the given drivers by volume
// class name.
func NewBinder(store BindingStore, drivers map[string]Driver) *Binder {
	return &Binder{
		store:   store,
		drivers: drivers,
		logger:  log.WithComponent("volume"),
	}
}

// NewLocalBinder is the common construction: a binder with only the
// local directory driver, rooted at basePath.
func NewLocalBinder(store BindingStore, basePath string) (*Binder, error) {
	local, err := NewLocalDriver(basePath)
	if err != nil {
		return nil, err
	}
	return NewBinder(store, map[string]Driver{types.DefaultVolumeClass: local}), nil
}

// Bind returns the binding for the ordinal, provisioning it on first use.
// Calling Bind again for a live ordinal returns the existing binding
// unchanged. A binding released under the Retain policy is re-attached,
// data intact.
//
// Provisioning failures are reported as errdefs.ErrProvisioning; the
// caller keeps the unit Pending and retries with backoff.
func (b *Binder) Bind(namespace, workload string, ordinal int, tmpl types.VolumeTemplate) (*types.VolumeBinding, error) {
	existing, err := b.store.GetBinding(namespace, workload, ordinal)
	if err != nil && !errdefs.IsNotFound(err) {
		return nil, fmt.Errorf("lookup binding: %w", err)
	}
	if existing != nil {
		if existing.Phase == types.BindingReleased {
			existing.Phase = types.BindingBound
			existing.ReleasedAt = nil
			if err := b.store.SaveBinding(existing); err != nil {
				return nil, fmt.Errorf("reattach binding: %w", err)
			}
			b.logger.Info().
				Str("workload", workload).
				Int("ordinal", ordinal).
				Str("binding", existing.ID).
				Msg("reattached released volume binding")
		}
		return existing, nil
	}

	driver, ok := b.drivers[tmpl.Class]
	if !ok {
		return nil, fmt.Errorf("volume class %q: %w", tmpl.Class, errdefs.ErrProvisioning)
	}

	binding := &types.VolumeBinding{
		ID:        uuid.New().String(),
		Namespace: namespace,
		Workload:  workload,
		Ordinal:   ordinal,
		Class:     tmpl.Class,
		SizeBytes: tmpl.SizeBytes,
		Phase:     types.BindingBound,
		CreatedAt: time.Now(),
	}

	if err := driver.Provision(binding); err != nil {
		return nil, fmt.Errorf("provision ordinal %d: %w: %v", ordinal, errdefs.ErrProvisioning, err)
	}

	if err := b.store.SaveBinding(binding); err != nil {
		// Roll the directory back so a retry starts clean.
		_ = driver.Remove(binding)
		return nil, fmt.Errorf("persist binding: %w", err)
	}

	b.logger.Info().
		Str("workload", workload).
		Int("ordinal", ordinal).
		Str("binding", binding.ID).
		Str("path", binding.Path).
		Msg("bound volume")

	return binding, nil
}

// Unbind detaches the ordinal's binding. Retain keeps the record and the
// data, marked Released; Delete destroys both. Unbinding an ordinal with
// no binding is a no-op.
func (b *Binder) Unbind(namespace, workload string, ordinal int, policy types.RetentionPolicy) error {
	binding, err := b.store.GetBinding(namespace, workload, ordinal)
	if err != nil {
		if errdefs.IsNotFound(err) {
			return nil
		}
		return fmt.Errorf("lookup binding: %w", err)
	}

	switch policy {
	case types.DeleteVolume:
		if driver, ok := b.drivers[binding.Class]; ok {
			if err := driver.Remove(binding); err != nil {
				return fmt.Errorf("remove volume: %w", err)
			}
		}
		if err := b.store.DeleteBinding(namespace, workload, ordinal); err != nil {
			return fmt.Errorf("delete binding: %w", err)
		}
		b.logger.Info().
			Str("workload", workload).
			Int("ordinal", ordinal).
			Str("binding", binding.ID).
			Msg("deleted volume binding")
	default:
		// Retain. The record stays so a future Bind at this ordinal
		// finds the data again.
		if binding.Phase == types.BindingReleased {
			return nil
		}
		now := time.Now()
		binding.Phase = types.BindingReleased
		binding.ReleasedAt = &now
		if err := b.store.SaveBinding(binding); err != nil {
			return fmt.Errorf("release binding: %w", err)
		}
		b.logger.Info().
			Str("workload", workload).
			Int("ordinal", ordinal).
			Str("binding", binding.ID).
			Msg("released volume binding, data retained")
	}

	return nil
}

// MountPath returns the host path for the binding, suitable for a bind
// mount into the unit's container.
func (b *Binder) MountPath(binding *types.VolumeBinding) (string, error) {
	driver, ok := b.drivers[binding.Class]
	if !ok {
		return "", fmt.Errorf("volume class %q has no driver", binding.Class)
	}
	return driver.Mount(binding)
}
