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
	"github.com/roostlabs/roost/pkg/metrics"
	"github.com/roostlabs/roost/pkg/revision"
	"github.com/roostlabs/roost/pkg/scale"
	"github.com/roostlabs/roost/pkg/types"
)

// completion is delivered to the loop when a dispatched operation ends.
type completion struct {
	ordinal int
	op      Op
	err     error
}

type backoffEntry struct {
	attempts int
	retryAt  time.Time
}

// loop reconciles one workload. All fields below mu, plus handles and
// backoff, are owned by the run goroutine; retire is the only state
// shared with callers.
type loop struct {
	r          *Reconciler
	namespace  string
	name       string
	key        string
	logger     zerolog.Logger
	limiter    *scale.Limiter
	pokeCh     chan struct{}
	completeCh chan completion

	mu     sync.Mutex
	retire map[int]bool

	handles map[int]Op
	backoff map[int]backoffEntry
}

func newLoop(r *Reconciler, namespace, name string) *loop {
	return &loop{
		r:          r,
		namespace:  namespace,
		name:       name,
		key:        namespace + "/" + name,
		logger:     log.WithWorkload(namespace, name),
		limiter:    scale.NewLimiter(r.cfg.Limits),
		pokeCh:     make(chan struct{}, 1),
		completeCh: make(chan completion, 16),
		retire:     make(map[int]bool),
		handles:    make(map[int]Op),
		backoff:    make(map[int]backoffEntry),
	}
}

func (l *loop) poke() {
	select {
	case l.pokeCh <- struct{}{}:
	default:
	}
}

func (l *loop) pokeAfter(d time.Duration) {
	if d <= 0 {
		l.poke()
		return
	}
	time.AfterFunc(d, l.poke)
}

func (l *loop) requestRetire(ordinal int) {
	l.mu.Lock()
	l.retire[ordinal] = true
	l.mu.Unlock()
	l.poke()
}

func (l *loop) run(ctx context.Context) {
	ticker := time.NewTicker(l.r.cfg.Interval)
	defer ticker.Stop()
	for {
		if !l.pass(ctx) {
			l.r.drop(l.key)
			return
		}
		select {
		case <-ticker.C:
		case <-l.pokeCh:
		case c := <-l.completeCh:
			l.finishOp(c)
		case <-ctx.Done():
			return
		}
	}
}

// pass runs one reconcile cycle: re-read state, plan, dispatch, publish
// status. Returns false when the workload is gone and the loop is done.
func (l *loop) pass(ctx context.Context) bool {
	timer := metrics.NewTimer()
	defer func() {
		timer.ObserveDuration(metrics.ReconcilePassDuration)
		metrics.ReconcilePassesTotal.Inc()
	}()

	now := time.Now()

	w, err := l.r.cfg.Source.GetWorkload(l.namespace, l.name)
	if err != nil {
		if errdefs.IsNotFound(err) {
			l.logger.Debug().Msg("Workload record gone; stopping loop")
			return false
		}
		l.logger.Error().Err(err).Msg("Failed to load workload")
		return true
	}

	units, err := l.r.cfg.Source.ListUnits(l.namespace, l.name)
	if err != nil {
		l.logger.Error().Err(err).Msg("Failed to list units")
		return true
	}

	st, err := BuildState(l.name, units)
	if err != nil {
		// Conflicting records mean this snapshot cannot be trusted.
		// Nothing is dispatched on top of it; re-read shortly.
		l.logger.Error().Err(err).Msg("Aborting pass on inconsistent state")
		l.saveStatus(w, conflictStatus(w, err, now))
		if retry, delay := errdefs.ShouldRequeue(err); retry {
			l.pokeAfter(delay)
		}
		return true
	}

	l.dropStaleRetires(st)

	if w.Deleting() {
		return l.teardown(ctx, w, st)
	}

	updateRev := revision.Compute(&w.Template)
	var plan Plan
	if !w.Paused {
		plan = Compute(w, st, l.inputs(updateRev, now))
		l.execute(ctx, w, st, plan)
	}
	l.saveStatus(w, ComputeStatus(w, st, updateRev, plan, now))
	return true
}

// inputs snapshots the loop-owned dispatch context for the planner.
func (l *loop) inputs(updateRev string, now time.Time) Inputs {
	busy := make(map[int]bool, len(l.handles))
	for o := range l.handles {
		busy[o] = true
	}
	hold := make(map[int]bool)
	for o, b := range l.backoff {
		if b.retryAt.After(now) {
			hold[o] = true
		}
	}
	l.mu.Lock()
	retire := make(map[int]bool, len(l.retire))
	for o := range l.retire {
		retire[o] = true
	}
	l.mu.Unlock()
	return Inputs{UpdateRevision: updateRev, Busy: busy, Holdback: hold, Retire: retire}
}

// dropStaleRetires clears retirement requests for ordinals that no
// longer have a record, so a stale request cannot hit a future unit.
func (l *loop) dropStaleRetires(st *State) {
	l.mu.Lock()
	for o := range l.retire {
		if st.Units[o] == nil {
			delete(l.retire, o)
		}
	}
	l.mu.Unlock()
}

// execute dispatches the planned actions, as far as the concurrency
// limits allow. Skipped actions are re-planned on a later pass; plans
// are cheap and never carried over.
func (l *loop) execute(ctx context.Context, w *types.Workload, st *State, plan Plan) {
	for _, a := range plan.Actions {
		u := st.Units[a.Ordinal]
		switch a.Op {
		case OpForget:
			l.forget(w, u)
		case OpTerminate:
			if u == nil {
				continue
			}
			if _, busy := l.handles[a.Ordinal]; busy {
				continue
			}
			if !l.limiter.TryAcquireDelete() {
				continue
			}
			l.logger.Info().Int("ordinal", a.Ordinal).Str("reason", a.Reason).Msg("Terminating unit")
			target := *u
			l.dispatch(ctx, a.Ordinal, OpTerminate, l.r.cfg.Driver.Terminate(ctx, w, &target))
		case OpCreate:
			if _, busy := l.handles[a.Ordinal]; busy {
				continue
			}
			if !l.limiter.TryAcquireCreate() {
				continue
			}
			var observed *types.Unit
			if u != nil && u.Phase != types.UnitTerminated {
				copied := *u
				observed = &copied
			}
			l.logger.Info().Int("ordinal", a.Ordinal).Str("reason", a.Reason).Msg("Creating unit")
			l.dispatch(ctx, a.Ordinal, OpCreate, l.r.cfg.Driver.Create(ctx, w, a.Ordinal, observed))
		}
	}
}

// dispatch records the in-flight operation and forwards its completion
// into the loop's select.
func (l *loop) dispatch(ctx context.Context, ordinal int, op Op, h *lifecycle.Handle) {
	l.handles[ordinal] = op
	go func() {
		<-h.Done()
		select {
		case l.completeCh <- completion{ordinal: ordinal, op: op, err: h.Err()}:
		case <-ctx.Done():
		}
	}()
}

// finishOp releases the ordinal's slot and classifies the result.
// Provisioning failures arm an exponential backoff; everything else
// either succeeded or left the unit Failed for the next pass to report.
func (l *loop) finishOp(c completion) {
	delete(l.handles, c.ordinal)
	switch c.op {
	case OpCreate:
		l.limiter.ReleaseCreate()
	case OpTerminate:
		l.limiter.ReleaseDelete()
	}

	if c.err == nil {
		metrics.UnitOperationsTotal.WithLabelValues(string(c.op), "ok").Inc()
		delete(l.backoff, c.ordinal)
		return
	}
	if errdefs.IsProvisioning(c.err) {
		metrics.UnitOperationsTotal.WithLabelValues(string(c.op), "provisioning").Inc()
		metrics.ProvisionFailuresTotal.Inc()
		b := l.backoff[c.ordinal]
		b.attempts++
		delay := errdefs.BackoffDelay(b.attempts - 1)
		b.retryAt = time.Now().Add(delay)
		l.backoff[c.ordinal] = b
		l.logger.Warn().Err(c.err).
			Int("ordinal", c.ordinal).
			Int("attempt", b.attempts).
			Dur("retry_in", delay).
			Msg("Volume provisioning failed; backing off")
		l.pokeAfter(delay)
		return
	}
	metrics.UnitOperationsTotal.WithLabelValues(string(c.op), "error").Inc()
	delete(l.backoff, c.ordinal)
	l.logger.Error().Err(c.err).
		Int("ordinal", c.ordinal).
		Str("op", string(c.op)).
		Msg("Unit operation failed")
}

// forget removes a Terminated unit's record. When the ordinal is retired
// for good, its volume binding is released first under the applicable
// retention policy; an unbind failure leaves the record in place so the
// next pass retries.
func (l *loop) forget(w *types.Workload, u *types.Unit) {
	if u == nil {
		return
	}
	if u.Ordinal >= w.Replicas || w.Deleting() {
		policy := w.VolumeTemplate.Retention.WhenScaled
		if w.Deleting() {
			policy = w.VolumeTemplate.Retention.WhenDeleted
		}
		if err := l.r.cfg.Releaser.Unbind(l.namespace, l.name, u.Ordinal, policy); err != nil {
			l.logger.Warn().Err(err).Int("ordinal", u.Ordinal).Msg("Failed to release volume binding; will retry")
			return
		}
		if u.BindingID != "" {
			et := events.EventVolumeReleased
			msg := fmt.Sprintf("released volume for ordinal %d, data retained", u.Ordinal)
			if policy == types.DeleteVolume {
				et = events.EventVolumeDeleted
				msg = fmt.Sprintf("deleted volume for ordinal %d", u.Ordinal)
			}
			l.publish(events.New(et, l.namespace, l.name, msg).WithOrdinal(u.Ordinal))
		}
	}
	if err := l.r.cfg.Recorder.DeleteUnit(l.namespace, l.name, u.Ordinal); err != nil {
		l.logger.Error().Err(err).Int("ordinal", u.Ordinal).Msg("Failed to drop unit record")
		return
	}
	l.mu.Lock()
	delete(l.retire, u.Ordinal)
	l.mu.Unlock()
	delete(l.backoff, u.Ordinal)
	l.logger.Debug().Int("ordinal", u.Ordinal).Msg("Dropped terminated unit record")
}

// teardown drains the workload and removes its records: terminate all
// units descending, release every binding under the WhenDeleted policy,
// then drop the workload itself. Pausing does not stop a teardown.
// Returns false once the workload is fully gone.
func (l *loop) teardown(ctx context.Context, w *types.Workload, st *State) bool {
	now := time.Now()
	drained := *w
	drained.Replicas = 0
	plan := Compute(&drained, st, l.inputs(revision.Compute(&w.Template), now))
	l.execute(ctx, &drained, st, plan)
	if len(plan.Actions) > 0 {
		// Forgets are synchronous; re-evaluate right away instead of
		// waiting out the tick.
		l.poke()
	}
	if len(st.Units) > 0 || len(l.handles) > 0 {
		return true
	}

	bindings, err := l.r.cfg.Source.ListBindings(l.namespace, l.name)
	if err != nil {
		l.logger.Error().Err(err).Msg("Failed to list bindings during teardown")
		return true
	}
	policy := w.VolumeTemplate.Retention.WhenDeleted
	for _, b := range bindings {
		if b.Phase == types.BindingReleased && policy != types.DeleteVolume {
			continue
		}
		if err := l.r.cfg.Releaser.Unbind(l.namespace, l.name, b.Ordinal, policy); err != nil {
			l.logger.Warn().Err(err).Int("ordinal", b.Ordinal).Msg("Failed to release binding during teardown")
			return true
		}
	}

	if err := l.r.cfg.Recorder.DeleteWorkload(l.namespace, l.name); err != nil {
		l.logger.Error().Err(err).Msg("Failed to delete workload record")
		return true
	}
	l.publish(events.New(events.EventWorkloadDeleted, l.namespace, l.name, "workload deleted"))
	l.logger.Info().Msg("Workload deleted")
	return false
}

// saveStatus persists the status when it changed and publishes the
// rollout transitions the change reveals.
func (l *loop) saveStatus(w *types.Workload, next types.WorkloadStatus) {
	prev := w.Status
	if statusEqual(prev, next) {
		return
	}
	updated := *w
	updated.Status = next
	if err := l.r.cfg.Recorder.UpdateStatus(&updated); err != nil {
		l.logger.Error().Err(err).Msg("Failed to persist workload status")
		return
	}
	l.publishTransitions(prev, next)
}

func (l *loop) publishTransitions(prev, next types.WorkloadStatus) {
	if prev.UpdateRevision != "" && next.UpdateRevision != prev.UpdateRevision {
		l.publish(events.New(events.EventUpdateStarted, l.namespace, l.name,
			fmt.Sprintf("rolling out template revision %s", next.UpdateRevision)))
	}
	wasRolling := prev.CurrentRevision != "" && prev.CurrentRevision != prev.UpdateRevision
	if wasRolling && next.CurrentRevision == next.UpdateRevision {
		l.publish(events.New(events.EventUpdateCompleted, l.namespace, l.name,
			fmt.Sprintf("all units on revision %s", next.CurrentRevision)))
	}
	if !conditionTrue(prev, types.ConditionUpdateStalled) && conditionTrue(next, types.ConditionUpdateStalled) {
		c := next.Condition(types.ConditionUpdateStalled)
		l.publish(events.New(events.EventUpdateStalled, l.namespace, l.name, c.Message))
	}
}

func conditionTrue(s types.WorkloadStatus, t types.ConditionType) bool {
	c := s.Condition(t)
	return c != nil && c.Status
}

// conflictStatus patches the previous status with a Degraded condition
// describing the inconsistent records; counts are left as last observed.
func conflictStatus(w *types.Workload, err error, now time.Time) types.WorkloadStatus {
	s := w.Status
	s.ObservedAt = now
	degraded := types.Condition{
		Type:    types.ConditionDegraded,
		Status:  true,
		Reason:  "OrdinalConflict",
		Message: err.Error(),
	}
	next := append([]types.Condition(nil), w.Status.Conditions...)
	found := false
	for i := range next {
		if next[i].Type == types.ConditionDegraded {
			next[i] = degraded
			found = true
			break
		}
	}
	if !found {
		next = append(next, degraded)
	}
	s.Conditions = mergeConditions(w.Status.Conditions, next, now)
	return s
}

func (l *loop) publish(e *events.Event) {
	if l.r.cfg.Broker != nil {
		l.r.cfg.Broker.Publish(e)
	}
}
