package main

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/roostlabs/roost/pkg/client"
	"github.com/roostlabs/roost/pkg/types"
)

var rolloutCmd = &cobra.Command{
	Use:   "rollout",
	Short: "Inspect and control rollouts",
}

var rolloutStatusCmd = &cobra.Command{
	Use:   "status [workload]",
	Short: "Show rollout progress",
	Long: `Report how far the current template revision has propagated. With
--watch the command polls until the rollout completes or stalls.`,
	Args: cobra.ExactArgs(1),
	RunE: runRolloutStatus,
}

var rolloutPauseCmd = &cobra.Command{
	Use:   "pause [workload]",
	Short: "Pause reconciliation for a workload",
	Args:  cobra.ExactArgs(1),
	RunE:  runRolloutPause,
}

var rolloutResumeCmd = &cobra.Command{
	Use:   "resume [workload]",
	Short: "Resume a paused workload",
	Args:  cobra.ExactArgs(1),
	RunE:  runRolloutResume,
}

func init() {
	rolloutStatusCmd.Flags().BoolP("watch", "w", false, "Poll until the rollout finishes")

	rolloutCmd.AddCommand(rolloutStatusCmd)
	rolloutCmd.AddCommand(rolloutPauseCmd)
	rolloutCmd.AddCommand(rolloutResumeCmd)
	rootCmd.AddCommand(rolloutCmd)
}

func runRolloutStatus(cmd *cobra.Command, args []string) error {
	watch, _ := cmd.Flags().GetBool("watch")

	c := client.New(controllerAddr(cmd))
	ctx := cmd.Context()
	ns := namespaceFlag(cmd)
	name := args[0]

	for {
		w, err := c.GetWorkload(ctx, ns, name)
		if err != nil {
			return fmt.Errorf("failed to get workload: %v", err)
		}

		done := printRolloutStatus(w)
		if done || !watch {
			return nil
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(2 * time.Second):
		}
	}
}

// printRolloutStatus reports progress and returns true when there is
// nothing left to wait for.
func printRolloutStatus(w *types.Workload) bool {
	st := w.Status

	if stalled := st.Condition(types.ConditionUpdateStalled); stalled != nil && stalled.Status {
		fmt.Printf("✗ Rollout stalled: %s\n", stalled.Message)
		return true
	}
	if w.Paused {
		fmt.Printf("Rollout paused: %d of %d units updated\n", st.UpdatedReplicas, w.Replicas)
		return true
	}
	if st.UpdatedReplicas < w.Replicas || st.ReadyReplicas < w.Replicas {
		fmt.Printf("Waiting: %d of %d units updated, %d ready (revision %s)\n",
			st.UpdatedReplicas, w.Replicas, st.ReadyReplicas, shortRevision(st.UpdateRevision))
		return false
	}
	if p := w.UpdateStrategy.Partition; p > 0 {
		fmt.Printf("✓ Rollout complete above partition %d (revision %s)\n",
			p, shortRevision(st.UpdateRevision))
		return true
	}
	fmt.Printf("✓ Rollout complete: %d units at revision %s\n",
		st.ReadyReplicas, shortRevision(st.CurrentRevision))
	return true
}

func runRolloutPause(cmd *cobra.Command, args []string) error {
	c := client.New(controllerAddr(cmd))
	w, err := c.Pause(cmd.Context(), namespaceFlag(cmd), args[0])
	if err != nil {
		return fmt.Errorf("failed to pause workload: %v", err)
	}
	fmt.Printf("✓ Workload paused: %s\n", w.Key())
	return nil
}

func runRolloutResume(cmd *cobra.Command, args []string) error {
	c := client.New(controllerAddr(cmd))
	w, err := c.Resume(cmd.Context(), namespaceFlag(cmd), args[0])
	if err != nil {
		return fmt.Errorf("failed to resume workload: %v", err)
	}
	fmt.Printf("✓ Workload resumed: %s\n", w.Key())
	return nil
}
