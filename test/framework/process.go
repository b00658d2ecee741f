package framework

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"os"
	"os/exec"
	"strings"
	"sync"
	"syscall"
	"time"
)

// Process runs one controller binary with captured logs and lifecycle
// control. Restart keeps the same arguments, which is how the durability
// tests simulate a controller crash and recovery against the same data
// directory.
type Process struct {
	Binary string
	Args   []string
	Env    []string

	mu   sync.Mutex
	cmd  *exec.Cmd
	logs *logBuffer
}

// NewProcess wraps the binary at the given path.
func NewProcess(binary string, args ...string) *Process {
	return &Process{
		Binary: binary,
		Args:   args,
		logs:   &logBuffer{},
	}
}

// Start launches the process and begins capturing its output.
func (p *Process) Start() error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.cmd != nil && p.cmd.ProcessState == nil && p.cmd.Process != nil {
		return fmt.Errorf("process already running with PID %d", p.cmd.Process.Pid)
	}

	cmd := exec.Command(p.Binary, p.Args...)
	cmd.Env = append(os.Environ(), p.Env...)

	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return fmt.Errorf("stdout pipe: %w", err)
	}
	stderr, err := cmd.StderrPipe()
	if err != nil {
		return fmt.Errorf("stderr pipe: %w", err)
	}

	if err := cmd.Start(); err != nil {
		return fmt.Errorf("start %s: %w", p.Binary, err)
	}
	p.cmd = cmd

	go p.capture(stdout)
	go p.capture(stderr)
	return nil
}

// Stop sends SIGTERM and waits for a clean exit, escalating to SIGKILL
// after ten seconds.
func (p *Process) Stop() error {
	p.mu.Lock()
	cmd := p.cmd
	p.mu.Unlock()

	if cmd == nil || cmd.Process == nil {
		return fmt.Errorf("process not running")
	}
	if err := cmd.Process.Signal(syscall.SIGTERM); err != nil {
		return fmt.Errorf("send SIGTERM: %w", err)
	}

	done := make(chan error, 1)
	go func() { done <- cmd.Wait() }()

	select {
	case err := <-done:
		if err != nil && !strings.Contains(err.Error(), "terminated") {
			return fmt.Errorf("process exited with error: %w", err)
		}
		return nil
	case <-time.After(10 * time.Second):
		return p.Kill()
	}
}

// Kill sends SIGKILL. Used to simulate a crash: no shutdown sequence
// runs, so whatever the controller recovers it must recover from disk.
func (p *Process) Kill() error {
	p.mu.Lock()
	cmd := p.cmd
	p.mu.Unlock()

	if cmd == nil || cmd.Process == nil {
		return fmt.Errorf("process not running")
	}
	if err := cmd.Process.Kill(); err != nil {
		return fmt.Errorf("send SIGKILL: %w", err)
	}
	_ = cmd.Wait()
	return nil
}

// Running reports whether the process is alive.
func (p *Process) Running() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.cmd == nil || p.cmd.Process == nil {
		return false
	}
	return p.cmd.Process.Signal(syscall.Signal(0)) == nil
}

// Logs returns everything captured so far.
func (p *Process) Logs() string {
	return p.logs.String()
}

// WaitForLog polls until the logs contain pattern.
func (p *Process) WaitForLog(pattern string, timeout time.Duration) error {
	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()

	ticker := time.NewTicker(100 * time.Millisecond)
	defer ticker.Stop()
	for {
		if p.logs.contains(pattern) {
			return nil
		}
		select {
		case <-ctx.Done():
			return fmt.Errorf("timeout waiting for log pattern %q", pattern)
		case <-ticker.C:
		}
	}
}

func (p *Process) capture(r io.Reader) {
	scanner := bufio.NewScanner(r)
	for scanner.Scan() {
		p.logs.append(scanner.Text())
	}
}

type logBuffer struct {
	mu    sync.RWMutex
	lines []string
}

func (lb *logBuffer) append(line string) {
	lb.mu.Lock()
	defer lb.mu.Unlock()
	lb.lines = append(lb.lines, line)
}

func (lb *logBuffer) String() string {
	lb.mu.RLock()
	defer lb.mu.RUnlock()
	return strings.Join(lb.lines, "\n")
}

func (lb *logBuffer) contains(pattern string) bool {
	lb.mu.RLock()
	defer lb.mu.RUnlock()
	for _, line := range lb.lines {
		if strings.Contains(line, pattern) {
			return true
		}
	}
	return false
}
