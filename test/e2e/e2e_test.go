// Package e2e runs black-box scenarios against a real controller binary
// using the fake runtime. Build the binary first and point ROOST_E2E_BIN
// at it:
//
//	go build -o /tmp/roost ./cmd/roost
//	ROOST_E2E_BIN=/tmp/roost go test ./test/e2e/
package e2e

import (
	"context"
	"testing"
	"time"

	"github.com/roostlabs/roost/test/framework"

	"github.com/roostlabs/roost/pkg/types"
)

func testWorkload(name string, replicas int) *types.Workload {
	return &types.Workload{
		Name:      name,
		Namespace: "default",
		Replicas:  replicas,
		Template: types.UnitTemplate{
			Image: "registry.local/postgres:16",
			Env:   []string{"PGDATA=/data/pg"},
		},
		VolumeTemplate: types.VolumeTemplate{
			SizeBytes: 64 * 1024 * 1024,
		},
	}
}

func startController(t *testing.T) (*framework.Controller, *framework.Waiter, context.Context) {
	t.Helper()
	ctrl := framework.NewController(t)
	ctrl.Start(t)
	t.Cleanup(func() { ctrl.Stop(t) })

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Minute)
	t.Cleanup(cancel)
	return ctrl, framework.DefaultWaiter(ctrl.Client()), ctx
}
