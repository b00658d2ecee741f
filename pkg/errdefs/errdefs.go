package errdefs

import (
	"errors"
	"fmt"
	"time"
)

// Sentinel errors for the failure classes the reconciler reacts to.
// Callers wrap these with %w and classify with errors.Is.
var (
	// ErrProvisioning marks a volume binding failure. The unit stays
	// Pending and the create is retried with backoff.
	ErrProvisioning = errors.New("volume provisioning failed")

	// ErrHealthCheckTimeout marks a unit that exhausted its probe
	// failure threshold and moved to Failed.
	ErrHealthCheckTimeout = errors.New("health check failures exceeded threshold")

	// ErrUpdateStalled marks a rollout whose replacement never became
	// Ready within the strategy timeout. Surfaced, never rolled back.
	ErrUpdateStalled = errors.New("update stalled")

	// ErrOrdinalConflict marks two live units claiming the same ordinal.
	// The reconcile pass aborts and re-reads observed state.
	ErrOrdinalConflict = errors.New("ordinal conflict")

	// ErrNotFound marks a missing record in the store.
	ErrNotFound = errors.New("not found")

	// ErrInvalidSpec marks a workload spec that failed validation.
	ErrInvalidSpec = errors.New("invalid workload spec")
)

func IsProvisioning(err error) bool {
	return errors.Is(err, ErrProvisioning)
}

func IsHealthCheckTimeout(err error) bool {
	return errors.Is(err, ErrHealthCheckTimeout)
}

func IsUpdateStalled(err error) bool {
	return errors.Is(err, ErrUpdateStalled)
}

func IsOrdinalConflict(err error) bool {
	return errors.Is(err, ErrOrdinalConflict)
}

func IsNotFound(err error) bool {
	return errors.Is(err, ErrNotFound)
}

func IsInvalidSpec(err error) bool {
	return errors.Is(err, ErrInvalidSpec)
}

// UnitError carries the ordinal context of a failed operation up to the
// reconcile loop, which needs to know which unit to blame.
type UnitError struct {
	Namespace string
	Workload  string
	Ordinal   int
	Err       error
}

func (e *UnitError) Error() string {
	return fmt.Sprintf("unit %s/%s-%d: %v", e.Namespace, e.Workload, e.Ordinal, e.Err)
}

func (e *UnitError) Unwrap() error {
	return e.Err
}

// WrapUnit attaches ordinal context to err. Returns nil when err is nil.
func WrapUnit(namespace, workload string, ordinal int, err error) error {
	if err == nil {
		return nil
	}
	return &UnitError{Namespace: namespace, Workload: workload, Ordinal: ordinal, Err: err}
}

const (
	// provisioningBaseDelay seeds the exponential backoff for binding
	// retries; the reconcile loop doubles it per attempt.
	provisioningBaseDelay = 5 * time.Second

	conflictDelay = 1 * time.Second
)

// ShouldRequeue classifies err for the reconcile loop: whether the
// operation is worth retrying and after how long. Zero delay means the
// next periodic pass is soon enough.
func ShouldRequeue(err error) (bool, time.Duration) {
	switch {
	case err == nil:
		return false, 0
	case errors.Is(err, ErrProvisioning):
		return true, provisioningBaseDelay
	case errors.Is(err, ErrOrdinalConflict):
		return true, conflictDelay
	case errors.Is(err, ErrNotFound):
		// The record disappeared under us; the next pass re-reads state.
		return true, 0
	case errors.Is(err, ErrUpdateStalled), errors.Is(err, ErrHealthCheckTimeout), errors.Is(err, ErrInvalidSpec):
		// Deliberate halts. Operator action required.
		return false, 0
	default:
		// Unknown errors are assumed transient.
		return true, 0
	}
}

// BackoffDelay computes the exponential retry delay for the given attempt
// count, capped at two minutes. Attempt 0 is the first retry.
func BackoffDelay(attempt int) time.Duration {
	d := provisioningBaseDelay
	for i := 0; i < attempt; i++ {
		d *= 2
		if d >= 2*time.Minute {
			return 2 * time.Minute
		}
	}
	return d
}
