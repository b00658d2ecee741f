package framework

import (
	"fmt"
	"net"
	"net/http"
	"os"
	"testing"
	"time"

	"github.com/roostlabs/roost/pkg/client"
)

// BinaryEnv names the environment variable pointing at a built roost
// binary. End-to-end tests skip when it is unset, so the suite never
// runs against a stale or missing build by accident.
const BinaryEnv = "ROOST_E2E_BIN"

// Controller is one roost server process running with the fake runtime
// against its own data directory. Restarting the controller reuses the
// directory, which is what the durability tests exercise.
type Controller struct {
	DataDir string
	APIAddr string

	process *Process
	client  *client.Client
}

// NewController prepares a controller on free ports with a fresh data
// directory under t.TempDir(). Skips the test when BinaryEnv is unset.
func NewController(t *testing.T) *Controller {
	t.Helper()

	binary := os.Getenv(BinaryEnv)
	if binary == "" {
		t.Skipf("set %s to a built roost binary to run end-to-end tests", BinaryEnv)
	}

	dataDir := t.TempDir()
	apiAddr := freeAddr(t)

	c := &Controller{
		DataDir: dataDir,
		APIAddr: apiAddr,
	}
	c.process = NewProcess(binary,
		"server",
		"--runtime", "fake",
		"--data-dir", dataDir,
		"--api-addr", apiAddr,
		"--raft-addr", freeAddr(t),
		"--metrics-addr", freeAddr(t),
		"--log-level", "debug",
	)
	c.client = client.New(apiAddr)
	return c
}

// Start launches the process and blocks until the API answers.
func (c *Controller) Start(t *testing.T) {
	t.Helper()
	if err := c.process.Start(); err != nil {
		t.Fatalf("start controller: %v", err)
	}
	if err := c.waitForAPI(30 * time.Second); err != nil {
		t.Fatalf("controller API never came up: %v\nlogs:\n%s", err, c.process.Logs())
	}
}

// Stop shuts the controller down cleanly.
func (c *Controller) Stop(t *testing.T) {
	t.Helper()
	if err := c.process.Stop(); err != nil {
		t.Logf("stop controller: %v", err)
	}
}

// Crash kills the process without any shutdown sequence.
func (c *Controller) Crash(t *testing.T) {
	t.Helper()
	if err := c.process.Kill(); err != nil {
		t.Fatalf("kill controller: %v", err)
	}
}

// Restart brings the controller back up on the same data directory and
// ports.
func (c *Controller) Restart(t *testing.T) {
	t.Helper()
	c.Start(t)
}

// Client returns an API client bound to this controller.
func (c *Controller) Client() *client.Client {
	return c.client
}

// Logs returns the captured process output.
func (c *Controller) Logs() string {
	return c.process.Logs()
}

func (c *Controller) waitForAPI(timeout time.Duration) error {
	deadline := time.Now().Add(timeout)
	url := fmt.Sprintf("http://%s/healthz", c.APIAddr)
	for time.Now().Before(deadline) {
		resp, err := http.Get(url)
		if err == nil {
			resp.Body.Close()
			if resp.StatusCode == http.StatusOK {
				return nil
			}
		}
		time.Sleep(200 * time.Millisecond)
	}
	return fmt.Errorf("no answer from %s within %v", url, timeout)
}

// freeAddr reserves an ephemeral localhost port and releases it for the
// controller to bind. A small race window exists; acceptable in tests.
func freeAddr(t *testing.T) string {
	t.Helper()
	l, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("reserve port: %v", err)
	}
	addr := l.Addr().String()
	l.Close()
	return addr
}
