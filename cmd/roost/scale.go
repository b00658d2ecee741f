package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/roostlabs/roost/pkg/client"
)

var scaleCmd = &cobra.Command{
	Use:   "scale [workload]",
	Short: "Change the replica count of a workload",
	Long: `Set the desired replica count. Scaling up creates units in ascending
ordinal order; scaling down removes the highest ordinals first. Volume
bindings for removed ordinals follow the workload's retention policy.

Examples:
  # Grow to five replicas
  roost scale db --replicas 5

  # Drain to zero without deleting the workload
  roost scale db --replicas 0`,
	Args: cobra.ExactArgs(1),
	RunE: runScale,
}

func init() {
	scaleCmd.Flags().Int("replicas", -1, "Desired replica count (required)")
	_ = scaleCmd.MarkFlagRequired("replicas")

	rootCmd.AddCommand(scaleCmd)
}

func runScale(cmd *cobra.Command, args []string) error {
	replicas, _ := cmd.Flags().GetInt("replicas")

	c := client.New(controllerAddr(cmd))
	w, err := c.Scale(cmd.Context(), namespaceFlag(cmd), args[0], replicas)
	if err != nil {
		return fmt.Errorf("failed to scale workload: %v", err)
	}

	fmt.Printf("✓ Workload scaled: %s (replicas=%d)\n", w.Key(), w.Replicas)
	return nil
}
