package runtime

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"
)

// FakeRuntime is an in-memory Runtime for tests. It tracks creation order,
// simulates SIGTERM/SIGKILL escalation through StopDelay, and lets tests
// crash or pre-seed units.
type FakeRuntime struct {
	mu        sync.Mutex
	units     map[string]*fakeUnit
	pulled    []string
	created   []string
	stopped   []string
	killed    []string
	failStart map[string]error
	nextIP    int

	// StopDelay simulates a unit that keeps running after SIGTERM for
	// this long. Stops with a shorter grace period are force-killed.
	StopDelay time.Duration

	// Error injection. While set, the corresponding call fails.
	PullErr   error
	CreateErr error
	StartErr  error
}

type fakeUnit struct {
	config   UnitConfig
	state    State
	exitCode int
	ip       string
}

var _ Runtime = (*FakeRuntime)(nil)

// NewFakeRuntime returns an empty fake.
func NewFakeRuntime() *FakeRuntime {
	return &FakeRuntime{
		units:     make(map[string]*fakeUnit),
		failStart: make(map[string]error),
	}
}

func (f *FakeRuntime) PullImage(_ context.Context, image string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.PullErr != nil {
		return f.PullErr
	}
	f.pulled = append(f.pulled, image)
	return nil
}

func (f *FakeRuntime) CreateUnit(_ context.Context, cfg UnitConfig) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.CreateErr != nil {
		return "", f.CreateErr
	}
	if _, exists := f.units[cfg.ID]; exists {
		return "", fmt.Errorf("container %s already exists", cfg.ID)
	}
	f.units[cfg.ID] = &fakeUnit{config: cfg, state: StateCreated}
	f.created = append(f.created, cfg.ID)
	return cfg.ID, nil
}

func (f *FakeRuntime) StartUnit(_ context.Context, id string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.StartErr != nil {
		return f.StartErr
	}
	if err, ok := f.failStart[id]; ok {
		return err
	}
	u, ok := f.units[id]
	if !ok {
		return fmt.Errorf("container %s not found", id)
	}
	u.state = StateRunning
	if u.ip == "" {
		f.nextIP++
		u.ip = fmt.Sprintf("10.42.0.%d", f.nextIP)
	}
	return nil
}

func (f *FakeRuntime) StopUnit(ctx context.Context, id string, grace time.Duration) error {
	f.mu.Lock()
	u, ok := f.units[id]
	if !ok || u.state != StateRunning {
		f.mu.Unlock()
		return nil
	}
	delay := f.StopDelay
	f.mu.Unlock()

	// The unit exits on SIGTERM after StopDelay; if the grace period is
	// shorter, the stop escalates to SIGKILL at the grace boundary.
	wait := delay
	forced := false
	if delay > grace {
		wait = grace
		forced = true
	}
	if wait > 0 {
		select {
		case <-time.After(wait):
		case <-ctx.Done():
			return ctx.Err()
		}
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	u.state = StateStopped
	f.stopped = append(f.stopped, id)
	if forced {
		u.exitCode = 137
		f.killed = append(f.killed, id)
	} else {
		u.exitCode = 0
	}
	return nil
}

func (f *FakeRuntime) RemoveUnit(_ context.Context, id string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.units, id)
	return nil
}

func (f *FakeRuntime) UnitStatus(_ context.Context, id string) (Status, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	u, ok := f.units[id]
	if !ok {
		return Status{State: StateNotFound}, nil
	}
	return Status{State: u.state, ExitCode: u.exitCode}, nil
}

func (f *FakeRuntime) UnitIP(_ context.Context, id string) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	u, ok := f.units[id]
	if !ok {
		return "", fmt.Errorf("container %s not found", id)
	}
	if u.ip == "" {
		return "", fmt.Errorf("no IP recorded for %s", id)
	}
	return u.ip, nil
}

func (f *FakeRuntime) ListUnits(_ context.Context) ([]string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	ids := make([]string, 0, len(f.units))
	for id := range f.units {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids, nil
}

func (f *FakeRuntime) Close() error { return nil }

// Seed inserts a unit as if a previous controller run created it. Seeded
// units do not appear in CreateOrder.
func (f *FakeRuntime) Seed(cfg UnitConfig, running bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	u := &fakeUnit{config: cfg, state: StateCreated}
	if running {
		f.nextIP++
		u.state = StateRunning
		u.ip = fmt.Sprintf("10.42.0.%d", f.nextIP)
	}
	f.units[cfg.ID] = u
}

// Exit simulates the unit process dying with the given exit code.
func (f *FakeRuntime) Exit(id string, code int) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if u, ok := f.units[id]; ok {
		u.state = StateStopped
		u.exitCode = code
	}
}

// Unit returns the config a unit was created with.
func (f *FakeRuntime) Unit(id string) (UnitConfig, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	u, ok := f.units[id]
	if !ok {
		return UnitConfig{}, false
	}
	return u.config, true
}

// FailStartOf makes StartUnit fail for one specific unit ID; other
// units start normally. Pass a nil error to clear the injection.
func (f *FakeRuntime) FailStartOf(id string, err error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err == nil {
		delete(f.failStart, id)
		return
	}
	f.failStart[id] = err
}

// CreateOrder returns unit IDs in the order CreateUnit was called.
func (f *FakeRuntime) CreateOrder() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.created...)
}

// StopOrder returns unit IDs in the order their stops completed.
func (f *FakeRuntime) StopOrder() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.stopped...)
}

// ForceKilled returns unit IDs whose stop escalated to SIGKILL.
func (f *FakeRuntime) ForceKilled() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.killed...)
}

// Pulled returns images in the order they were pulled.
func (f *FakeRuntime) Pulled() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.pulled...)
}
