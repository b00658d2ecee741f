package health

import (
	"context"
	"fmt"
	"time"

	"github.com/roostlabs/roost/pkg/types"
)

// Result represents the outcome of a single probe
type Result struct {
	Healthy   bool
	Message   string
	CheckedAt time.Time
	Duration  time.Duration
}

// Checker is the interface that all probe implementations satisfy
type Checker interface {
	// Check performs the probe and returns the result
	Check(ctx context.Context) Result

	// Type returns the probe mechanism
	Type() types.ProbeType
}

// Config carries the probe schedule derived from the unit template
type Config struct {
	// Interval is the time between probes
	Interval time.Duration

	// Timeout is the maximum time to wait for a single probe
	Timeout time.Duration

	// FailureThreshold is the number of consecutive failures before the
	// unit is declared Failed
	FailureThreshold int
}

// DefaultConfig returns a Config with the standard defaults
func DefaultConfig() Config {
	return Config{
		Interval:         types.DefaultProbeIntervalSeconds * time.Second,
		Timeout:          types.DefaultProbeTimeoutSeconds * time.Second,
		FailureThreshold: types.DefaultProbeFailureThreshold,
	}
}

// ForProbe builds the checker and schedule for a unit's probe. The target
// address is the unit's IP; exec probes run inside the container named by
// runtimeID.
func ForProbe(probe *types.Probe, ip, runtimeID string) (Checker, Config, error) {
	cfg := Config{
		Interval:         probe.Interval(),
		Timeout:          probe.Timeout(),
		FailureThreshold: probe.FailureThreshold,
	}
	if cfg.Interval <= 0 {
		cfg.Interval = types.DefaultProbeIntervalSeconds * time.Second
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = types.DefaultProbeTimeoutSeconds * time.Second
	}
	if cfg.FailureThreshold <= 0 {
		cfg.FailureThreshold = types.DefaultProbeFailureThreshold
	}

	switch probe.Type {
	case types.ProbeHTTP:
		path := probe.Path
		if path == "" {
			path = "/"
		}
		url := fmt.Sprintf("http://%s:%d%s", ip, probe.Port, path)
		return NewHTTPChecker(url), cfg, nil
	case types.ProbeTCP:
		return NewTCPChecker(fmt.Sprintf("%s:%d", ip, probe.Port)), cfg, nil
	case types.ProbeExec:
		return NewExecChecker(probe.Command).WithContainer(runtimeID), cfg, nil
	default:
		return nil, cfg, fmt.Errorf("unknown probe type %q", probe.Type)
	}
}

// Status accumulates probe results for one unit
type Status struct {
	// ConsecutiveFailures tracks the number of consecutive failed probes
	ConsecutiveFailures int

	// ConsecutiveSuccesses tracks the number of consecutive successful probes
	ConsecutiveSuccesses int

	// LastCheck is the timestamp of the last probe
	LastCheck time.Time

	// LastResult is the result of the last probe
	LastResult Result

	// Healthy indicates if the unit currently passes its probe
	Healthy bool

	// StartedAt is when monitoring began for this unit
	StartedAt time.Time
}

// NewStatus creates a new Status. Units start unproven: Healthy stays
// false until the first successful probe, which is what gates the
// Running to Ready transition.
func NewStatus() *Status {
	return &Status{
		StartedAt: time.Now(),
	}
}

// Update folds a probe result into the status and reports whether the
// failure threshold has just been crossed.
func (s *Status) Update(result Result, config Config) (exhausted bool) {
	s.LastCheck = result.CheckedAt
	s.LastResult = result

	if result.Healthy {
		s.ConsecutiveSuccesses++
		s.ConsecutiveFailures = 0
		s.Healthy = true
		return false
	}

	s.ConsecutiveFailures++
	s.ConsecutiveSuccesses = 0
	if s.ConsecutiveFailures >= config.FailureThreshold {
		s.Healthy = false
	}
	// Report the crossing exactly once so the caller fails the unit on
	// the Nth failure, not on every failure after it.
	return s.ConsecutiveFailures == config.FailureThreshold
}

// State snapshots the status into the persisted representation.
func (s *Status) State() *types.HealthState {
	return &types.HealthState{
		Healthy:              s.Healthy,
		ConsecutiveFailures:  s.ConsecutiveFailures,
		ConsecutiveSuccesses: s.ConsecutiveSuccesses,
		Message:              s.LastResult.Message,
		CheckedAt:            s.LastCheck,
	}
}
