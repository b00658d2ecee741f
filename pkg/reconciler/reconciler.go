package reconciler

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/roostlabs/roost/pkg/errdefs"
	"github.com/roostlabs/roost/pkg/events"
	"github.com/roostlabs/roost/pkg/lifecycle"
	"github.com/roostlabs/roost/pkg/log"
	"github.com/roostlabs/roost/pkg/scale"
	"github.com/roostlabs/roost/pkg/storage"
	"github.com/roostlabs/roost/pkg/types"
	"github.com/roostlabs/roost/pkg/volume"
)

// DefaultInterval is how often a workload is reconciled when nothing
// wakes its loop earlier.
const DefaultInterval = 30 * time.Second

// Source is the read side of controller state.
type Source interface {
	GetWorkload(namespace, name string) (*types.Workload, error)
	ListUnits(namespace, workload string) ([]*types.Unit, error)
	ListBindings(namespace, workload string) ([]*types.VolumeBinding, error)
}

// Recorder is the write side: status updates and record removal. The
// manager satisfies it with log-replicated writes.
type Recorder interface {
	UpdateStatus(w *types.Workload) error
	DeleteUnit(namespace, workload string, ordinal int) error
	DeleteWorkload(namespace, name string) error
}

// UnitDriver runs the slow per-unit operations. Both calls return
// immediately; the loop tracks completion through the handle.
type UnitDriver interface {
	Create(ctx context.Context, w *types.Workload, ordinal int, observed *types.Unit) *lifecycle.Handle
	Terminate(ctx context.Context, w *types.Workload, u *types.Unit) *lifecycle.Handle
}

// VolumeReleaser detaches a retired ordinal's volume binding.
type VolumeReleaser interface {
	Unbind(namespace, workload string, ordinal int, policy types.RetentionPolicy) error
}

var (
	_ Source         = storage.Store(nil)
	_ UnitDriver     = (*lifecycle.Manager)(nil)
	_ VolumeReleaser = (*volume.Binder)(nil)
)

// Config wires a Reconciler.
type Config struct {
	Source   Source
	Recorder Recorder
	Driver   UnitDriver
	Releaser VolumeReleaser
	Broker   *events.Broker

	// Interval between periodic passes; DefaultInterval when zero.
	Interval time.Duration
	// Limits caps in-flight creates and deletes per workload.
	Limits scale.Limits
}

// Reconciler runs one serialized reconcile loop per workload. Loops for
// different workloads are fully independent; within a loop, passes never
// overlap, which is what keeps ordinal assignment race-free.
type Reconciler struct {
	cfg    Config
	logger zerolog.Logger

	ctx    context.Context
	cancel context.CancelFunc

	mu      sync.Mutex
	loops   map[string]*loop
	stopped bool
	wg      sync.WaitGroup
}

// New builds a Reconciler; call Track to start reconciling a workload.
func New(cfg Config) *Reconciler {
	if cfg.Interval <= 0 {
		cfg.Interval = DefaultInterval
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &Reconciler{
		cfg:    cfg,
		logger: log.WithComponent("reconciler"),
		ctx:    ctx,
		cancel: cancel,
		loops:  make(map[string]*loop),
	}
}

// Track ensures a reconcile loop exists for the workload and wakes it.
// Called when a workload is applied and once per stored workload at
// startup. Idempotent.
func (r *Reconciler) Track(namespace, name string) {
	key := namespace + "/" + name
	r.mu.Lock()
	if r.stopped {
		r.mu.Unlock()
		return
	}
	l, ok := r.loops[key]
	if !ok {
		l = newLoop(r, namespace, name)
		r.loops[key] = l
		r.wg.Add(1)
		go func() {
			defer r.wg.Done()
			l.run(r.ctx)
		}()
		r.logger.Info().Str("workload", key).Msg("Tracking workload")
	}
	r.mu.Unlock()
	l.poke()
}

// Poke wakes the workload's loop for an early pass instead of waiting
// out the interval. No-op for untracked workloads.
func (r *Reconciler) Poke(namespace, name string) {
	r.mu.Lock()
	l := r.loops[namespace+"/"+name]
	r.mu.Unlock()
	if l != nil {
		l.poke()
	}
}

// RetireUnit asks the workload's loop to terminate the unit at ordinal
// and let the ordinary create path bring up a replacement on the current
// template. This is the recovery route for Failed units and the manual
// replacement trigger under the OnDelete strategy. The volume binding
// stays put; the replacement reattaches it.
func (r *Reconciler) RetireUnit(namespace, workload string, ordinal int) error {
	r.mu.Lock()
	l := r.loops[namespace+"/"+workload]
	r.mu.Unlock()
	if l == nil {
		return fmt.Errorf("workload %s/%s is not tracked: %w", namespace, workload, errdefs.ErrNotFound)
	}
	l.requestRetire(ordinal)
	return nil
}

// Tracked reports whether a loop is running for the workload.
func (r *Reconciler) Tracked(namespace, name string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	_, ok := r.loops[namespace+"/"+name]
	return ok
}

func (r *Reconciler) drop(key string) {
	r.mu.Lock()
	delete(r.loops, key)
	r.mu.Unlock()
}

// Stop cancels every loop and waits for them to exit. Operations cut
// short by the cancel are repaired through adoption on the next start.
func (r *Reconciler) Stop() {
	r.mu.Lock()
	r.stopped = true
	r.mu.Unlock()
	r.cancel()
	r.wg.Wait()
}
