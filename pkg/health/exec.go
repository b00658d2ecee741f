package health

import (
	"bytes"
	"context"
	"fmt"
	"os/exec"
	"time"

	"github.com/roostlabs/roost/pkg/types"
)

// ExecChecker probes a unit by running a command and checking its exit
// code. Commands run on the host, so they should address the unit by IP
// (e.g. ["pg_isready", "-h", "10.0.0.3"]).
type ExecChecker struct {
	// Command is the command to execute
	Command []string

	// Timeout is the command execution timeout (default: 10 seconds)
	Timeout time.Duration

	// ContainerID names the unit's container, recorded in the result
	// message for correlation.
	// TODO: run the command inside the container via containerd task exec.
	ContainerID string
}

// NewExecChecker creates a new exec prober
func NewExecChecker(command []string) *ExecChecker {
	return &ExecChecker{
		Command: command,
		Timeout: 10 * time.Second,
	}
}

// Check performs the exec probe
func (e *ExecChecker) Check(ctx context.Context) Result {
	start := time.Now()

	if len(e.Command) == 0 {
		return Result{
			Healthy:   false,
			Message:   "no command specified",
			CheckedAt: start,
			Duration:  time.Since(start),
		}
	}

	execCtx, cancel := context.WithTimeout(ctx, e.Timeout)
	defer cancel()

	cmd := exec.CommandContext(execCtx, e.Command[0], e.Command[1:]...)

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	err := cmd.Run()

	message := fmt.Sprintf("Command: %v", e.Command)
	if e.ContainerID != "" {
		message = fmt.Sprintf("%s, Container: %s", message, e.ContainerID)
	}
	if err != nil {
		message = fmt.Sprintf("%s, Error: %v", message, err)
		if stderr.Len() > 0 {
			message = fmt.Sprintf("%s, Stderr: %s", message, stderr.String())
		}

		return Result{
			Healthy:   false,
			Message:   message,
			CheckedAt: start,
			Duration:  time.Since(start),
		}
	}

	if stdout.Len() > 0 {
		output := stdout.String()
		if len(output) > 100 {
			output = output[:100] + "..."
		}
		message = fmt.Sprintf("%s, Output: %s", message, output)
	}

	return Result{
		Healthy:   true,
		Message:   message,
		CheckedAt: start,
		Duration:  time.Since(start),
	}
}

// Type returns the probe mechanism
func (e *ExecChecker) Type() types.ProbeType {
	return types.ProbeExec
}

// WithTimeout sets the execution timeout
func (e *ExecChecker) WithTimeout(timeout time.Duration) *ExecChecker {
	e.Timeout = timeout
	return e
}

// WithContainer records the container the probe concerns
func (e *ExecChecker) WithContainer(containerID string) *ExecChecker {
	e.ContainerID = containerID
	return e
}
