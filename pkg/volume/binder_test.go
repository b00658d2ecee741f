package volume

import (
	"errors"
	"os"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roostlabs/roost/pkg/errdefs"
	"github.com/roostlabs/roost/pkg/storage"
	"github.com/roostlabs/roost/pkg/types"
)

func newTestBinder(t *testing.T) (*Binder, *storage.BoltStore) {
	t.Helper()
	store, err := storage.NewBoltStore(t.TempDir())
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })

	binder, err := NewLocalBinder(store, t.TempDir())
	require.NoError(t, err)
	return binder, store
}

func localTemplate() types.VolumeTemplate {
	return types.VolumeTemplate{
		Class:     "local",
		SizeBytes: 1 << 20,
		Retention: types.VolumeRetention{
			WhenScaled:  types.RetainVolume,
			WhenDeleted: types.RetainVolume,
		},
	}
}

func TestBindProvisionsOnFirstUse(t *testing.T) {
	binder, store := newTestBinder(t)

	binding, err := binder.Bind("default", "db", 0, localTemplate())
	require.NoError(t, err)
	assert.NotEmpty(t, binding.ID)
	assert.Equal(t, types.BindingBound, binding.Phase)
	assert.DirExists(t, binding.Path)

	stored, err := store.GetBinding("default", "db", 0)
	require.NoError(t, err)
	assert.Equal(t, binding.ID, stored.ID)
}

func TestBindIsIdempotent(t *testing.T) {
	binder, _ := newTestBinder(t)

	first, err := binder.Bind("default", "db", 1, localTemplate())
	require.NoError(t, err)

	second, err := binder.Bind("default", "db", 1, localTemplate())
	require.NoError(t, err)

	assert.Equal(t, first.ID, second.ID, "a live ordinal must keep its binding")
	assert.Equal(t, first.Path, second.Path)
}

func TestUnbindRetainKeepsData(t *testing.T) {
	binder, store := newTestBinder(t)

	binding, err := binder.Bind("default", "db", 0, localTemplate())
	require.NoError(t, err)
	require.NoError(t, os.WriteFile(binding.Path+"/state.dat", []byte("precious"), 0644))

	require.NoError(t, binder.Unbind("default", "db", 0, types.RetainVolume))

	released, err := store.GetBinding("default", "db", 0)
	require.NoError(t, err)
	assert.Equal(t, types.BindingReleased, released.Phase)
	require.NotNil(t, released.ReleasedAt)
	assert.FileExists(t, binding.Path+"/state.dat")

	// A later Bind at the same ordinal reattaches the same data.
	reattached, err := binder.Bind("default", "db", 0, localTemplate())
	require.NoError(t, err)
	assert.Equal(t, binding.ID, reattached.ID)
	assert.Equal(t, types.BindingBound, reattached.Phase)
	data, err := os.ReadFile(reattached.Path + "/state.dat")
	require.NoError(t, err)
	assert.Equal(t, "precious", string(data))
}

func TestUnbindDeleteDestroysData(t *testing.T) {
	binder, store := newTestBinder(t)

	binding, err := binder.Bind("default", "db", 2, localTemplate())
	require.NoError(t, err)

	require.NoError(t, binder.Unbind("default", "db", 2, types.DeleteVolume))

	_, err = store.GetBinding("default", "db", 2)
	assert.True(t, errdefs.IsNotFound(err))
	assert.NoDirExists(t, binding.Path)

	// A fresh Bind at the ordinal starts from scratch with a new ID.
	fresh, err := binder.Bind("default", "db", 2, localTemplate())
	require.NoError(t, err)
	assert.NotEqual(t, binding.ID, fresh.ID)
}

func TestUnbindMissingBindingIsNoop(t *testing.T) {
	binder, _ := newTestBinder(t)
	assert.NoError(t, binder.Unbind("default", "db", 9, types.DeleteVolume))
}

func TestBindUnknownClassIsProvisioningError(t *testing.T) {
	binder, _ := newTestBinder(t)

	tmpl := localTemplate()
	tmpl.Class = "nvme-fast"

	_, err := binder.Bind("default", "db", 0, tmpl)
	require.Error(t, err)
	assert.True(t, errdefs.IsProvisioning(err))
}

// failingDriver simulates storage that cannot allocate.
type failingDriver struct{}

func (failingDriver) Provision(*types.VolumeBinding) error { return errors.New("disk full") }
func (failingDriver) Remove(*types.VolumeBinding) error    { return nil }
func (failingDriver) Mount(*types.VolumeBinding) (string, error) {
	return "", errors.New("not provisioned")
}
func (failingDriver) Unmount(*types.VolumeBinding) error { return nil }

func TestBindDriverFailureIsProvisioningError(t *testing.T) {
	store, err := storage.NewBoltStore(t.TempDir())
	require.NoError(t, err)
	defer store.Close()

	binder := NewBinder(store, map[string]Driver{"local": failingDriver{}})

	_, err = binder.Bind("default", "db", 0, localTemplate())
	require.Error(t, err)
	assert.True(t, errdefs.IsProvisioning(err))

	// Nothing persisted: the retry starts from a clean slate.
	_, err = store.GetBinding("default", "db", 0)
	assert.True(t, errdefs.IsNotFound(err))
}

func TestMountPath(t *testing.T) {
	binder, _ := newTestBinder(t)

	binding, err := binder.Bind("default", "db", 0, localTemplate())
	require.NoError(t, err)

	path, err := binder.MountPath(binding)
	require.NoError(t, err)
	assert.Equal(t, binding.Path, path)

	_, err = binder.MountPath(&types.VolumeBinding{Class: "ghost"})
	assert.Error(t, err)
}
