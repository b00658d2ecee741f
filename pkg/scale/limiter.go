package scale

import (
	"sync"
)

// Limits caps how many unit operations a workload may have in flight at
// once. The defaults keep churn low: one container coming up and one
// going down at any moment, so a bad template cannot stampede the node.
type Limits struct {
	MaxInflightCreates int
	MaxInflightDeletes int
}

// DefaultLimits returns the stock 1/1 limits.
func DefaultLimits() Limits {
	return Limits{MaxInflightCreates: 1, MaxInflightDeletes: 1}
}

// Limiter hands out create and delete slots. Each workload's reconcile
// loop owns its own limiter; the caps matter most under the Parallel
// management policy, where the ordinal gates that normally serialize
// operations are off.
type Limiter struct {
	limits Limits

	mu      sync.Mutex
	creates int
	deletes int
}

// NewLimiter builds a limiter; non-positive limits fall back to defaults.
func NewLimiter(limits Limits) *Limiter {
	def := DefaultLimits()
	if limits.MaxInflightCreates <= 0 {
		limits.MaxInflightCreates = def.MaxInflightCreates
	}
	if limits.MaxInflightDeletes <= 0 {
		limits.MaxInflightDeletes = def.MaxInflightDeletes
	}
	return &Limiter{limits: limits}
}

// TryAcquireCreate claims a create slot. Returns false when the cap is
// reached; the caller retries on a later pass.
func (l *Limiter) TryAcquireCreate() bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.creates >= l.limits.MaxInflightCreates {
		return false
	}
	l.creates++
	return true
}

// ReleaseCreate returns a create slot.
func (l *Limiter) ReleaseCreate() {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.creates > 0 {
		l.creates--
	}
}

// TryAcquireDelete claims a delete slot.
func (l *Limiter) TryAcquireDelete() bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.deletes >= l.limits.MaxInflightDeletes {
		return false
	}
	l.deletes++
	return true
}

// ReleaseDelete returns a delete slot.
func (l *Limiter) ReleaseDelete() {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.deletes > 0 {
		l.deletes--
	}
}

// InflightCreates reports claimed create slots.
func (l *Limiter) InflightCreates() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.creates
}

// InflightDeletes reports claimed delete slots.
func (l *Limiter) InflightDeletes() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.deletes
}
