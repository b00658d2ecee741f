package health

import (
	"context"
	"fmt"
	"net"
	"time"

	"github.com/roostlabs/roost/pkg/types"
)

// TCPChecker probes a unit by opening a TCP connection
type TCPChecker struct {
	// Address is the TCP address to connect to (e.g., "10.0.0.3:5432")
	Address string

	// Timeout is the connection timeout (default: 5 seconds)
	Timeout time.Duration
}

// NewTCPChecker creates a new TCP prober
func NewTCPChecker(address string) *TCPChecker {
	return &TCPChecker{
		Address: address,
		Timeout: 5 * time.Second,
	}
}

// Check performs the TCP probe
func (t *TCPChecker) Check(ctx context.Context) Result {
	start := time.Now()

	dialer := &net.Dialer{
		Timeout: t.Timeout,
	}

	conn, err := dialer.DialContext(ctx, "tcp", t.Address)
	if err != nil {
		return Result{
			Healthy:   false,
			Message:   fmt.Sprintf("connection failed: %v", err),
			CheckedAt: start,
			Duration:  time.Since(start),
		}
	}
	defer conn.Close()

	return Result{
		Healthy:   true,
		Message:   fmt.Sprintf("TCP connection to %s successful", t.Address),
		CheckedAt: start,
		Duration:  time.Since(start),
	}
}

// Type returns the probe mechanism
func (t *TCPChecker) Type() types.ProbeType {
	return types.ProbeTCP
}

// WithTimeout sets the connection timeout
func (t *TCPChecker) WithTimeout(timeout time.Duration) *TCPChecker {
	t.Timeout = timeout
	return t
}
