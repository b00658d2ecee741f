package health

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roostlabs/roost/pkg/types"
)

func result(healthy bool) Result {
	return Result{Healthy: healthy, CheckedAt: time.Now()}
}

func TestStatusStartsUnproven(t *testing.T) {
	s := NewStatus()
	assert.False(t, s.Healthy, "a unit must pass a probe before it counts as healthy")
}

func TestStatusThreshold(t *testing.T) {
	cfg := Config{Interval: time.Second, Timeout: time.Second, FailureThreshold: 3}
	s := NewStatus()

	assert.False(t, s.Update(result(true), cfg))
	assert.True(t, s.Healthy)

	// Two failures: under threshold, still healthy.
	assert.False(t, s.Update(result(false), cfg))
	assert.False(t, s.Update(result(false), cfg))
	assert.True(t, s.Healthy)
	assert.Equal(t, 2, s.ConsecutiveFailures)

	// Third consecutive failure crosses the threshold exactly once.
	assert.True(t, s.Update(result(false), cfg))
	assert.False(t, s.Healthy)

	// Further failures do not re-cross.
	assert.False(t, s.Update(result(false), cfg))
	assert.False(t, s.Healthy)
}

func TestStatusSuccessResetsFailures(t *testing.T) {
	cfg := Config{FailureThreshold: 3}
	s := NewStatus()

	s.Update(result(false), cfg)
	s.Update(result(false), cfg)
	require.Equal(t, 2, s.ConsecutiveFailures)

	s.Update(result(true), cfg)
	assert.Equal(t, 0, s.ConsecutiveFailures)
	assert.Equal(t, 1, s.ConsecutiveSuccesses)
	assert.True(t, s.Healthy)

	// The counter starts over: two more failures stay under threshold.
	assert.False(t, s.Update(result(false), cfg))
	assert.False(t, s.Update(result(false), cfg))
	assert.True(t, s.Healthy)
}

func TestStatusState(t *testing.T) {
	cfg := Config{FailureThreshold: 1}
	s := NewStatus()
	s.Update(Result{Healthy: false, Message: "connection refused", CheckedAt: time.Now()}, cfg)

	state := s.State()
	assert.False(t, state.Healthy)
	assert.Equal(t, 1, state.ConsecutiveFailures)
	assert.Equal(t, "connection refused", state.Message)
	assert.False(t, state.CheckedAt.IsZero())
}

func TestForProbeHTTP(t *testing.T) {
	probe := &types.Probe{
		Type:             types.ProbeHTTP,
		Port:             8080,
		Path:             "/healthz",
		IntervalSeconds:  5,
		TimeoutSeconds:   2,
		FailureThreshold: 4,
	}

	checker, cfg, err := ForProbe(probe, "10.0.0.3", "db-0")
	require.NoError(t, err)

	httpChecker, ok := checker.(*HTTPChecker)
	require.True(t, ok)
	assert.Equal(t, "http://10.0.0.3:8080/healthz", httpChecker.URL)
	assert.Equal(t, 5*time.Second, cfg.Interval)
	assert.Equal(t, 2*time.Second, cfg.Timeout)
	assert.Equal(t, 4, cfg.FailureThreshold)
}

func TestForProbeHTTPDefaultPath(t *testing.T) {
	probe := &types.Probe{Type: types.ProbeHTTP, Port: 80}
	checker, _, err := ForProbe(probe, "10.0.0.3", "db-0")
	require.NoError(t, err)
	assert.Equal(t, "http://10.0.0.3:80/", checker.(*HTTPChecker).URL)
}

func TestForProbeTCP(t *testing.T) {
	probe := &types.Probe{Type: types.ProbeTCP, Port: 5432}
	checker, cfg, err := ForProbe(probe, "10.0.0.7", "db-1")
	require.NoError(t, err)

	tcpChecker, ok := checker.(*TCPChecker)
	require.True(t, ok)
	assert.Equal(t, "10.0.0.7:5432", tcpChecker.Address)

	// Unset schedule fields pick up defaults.
	assert.Equal(t, types.DefaultProbeIntervalSeconds*time.Second, cfg.Interval)
	assert.Equal(t, types.DefaultProbeFailureThreshold, cfg.FailureThreshold)
}

func TestForProbeExec(t *testing.T) {
	probe := &types.Probe{Type: types.ProbeExec, Command: []string{"pg_isready", "-h", "10.0.0.3"}}
	checker, _, err := ForProbe(probe, "10.0.0.3", "db-0")
	require.NoError(t, err)

	execChecker, ok := checker.(*ExecChecker)
	require.True(t, ok)
	assert.Equal(t, []string{"pg_isready", "-h", "10.0.0.3"}, execChecker.Command)
	assert.Equal(t, "db-0", execChecker.ContainerID)
}

func TestForProbeUnknownType(t *testing.T) {
	_, _, err := ForProbe(&types.Probe{Type: "icmp"}, "10.0.0.3", "db-0")
	assert.Error(t, err)
}
