package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/roostlabs/roost/pkg/client"
)

var describeCmd = &cobra.Command{
	Use:   "describe [workload]",
	Short: "Show detailed workload state",
	Long: `Print the full picture of one workload: spec, rollout status,
per-unit phases and the volume bindings behind each ordinal.`,
	Args: cobra.ExactArgs(1),
	RunE: runDescribe,
}

func init() {
	rootCmd.AddCommand(describeCmd)
}

func runDescribe(cmd *cobra.Command, args []string) error {
	c := client.New(controllerAddr(cmd))
	ctx := cmd.Context()
	ns := namespaceFlag(cmd)
	name := args[0]

	w, err := c.GetWorkload(ctx, ns, name)
	if err != nil {
		return fmt.Errorf("failed to get workload: %v", err)
	}

	fmt.Printf("Name:       %s\n", w.Name)
	fmt.Printf("Namespace:  %s\n", w.Namespace)
	fmt.Printf("Image:      %s\n", w.Template.Image)
	fmt.Printf("Replicas:   %d desired, %d ready, %d updated\n",
		w.Replicas, w.Status.ReadyReplicas, w.Status.UpdatedReplicas)
	fmt.Printf("Policy:     %s\n", w.ManagementPolicy)
	fmt.Printf("Strategy:   %s", w.UpdateStrategy.Type)
	if w.UpdateStrategy.Partition > 0 {
		fmt.Printf(" (partition=%d)", w.UpdateStrategy.Partition)
	}
	fmt.Println()
	fmt.Printf("Revision:   current=%s update=%s\n",
		shortRevision(w.Status.CurrentRevision), shortRevision(w.Status.UpdateRevision))
	if w.Paused {
		fmt.Println("Paused:     yes")
	}
	if w.Deleting() {
		fmt.Printf("Deleting:   since %s\n", w.DeleteRequestedAt.Format("2006-01-02 15:04:05"))
	}
	if w.Status.BlockedOrdinal != nil {
		fmt.Printf("Blocked:    ordinal %d (%s)\n", *w.Status.BlockedOrdinal, w.Status.BlockedReason)
	}

	if len(w.Status.Conditions) > 0 {
		fmt.Println("\nConditions:")
		for _, cond := range w.Status.Conditions {
			mark := "False"
			if cond.Status {
				mark = "True"
			}
			fmt.Printf("  %-14s %-5s %s\n", cond.Type, mark, cond.Message)
		}
	}

	units, err := c.ListUnits(ctx, ns, name)
	if err != nil {
		return fmt.Errorf("failed to list units: %v", err)
	}
	fmt.Println("\nUnits:")
	for _, u := range units {
		fmt.Printf("  %-24s ordinal=%d phase=%-12s revision=%s addr=%s\n",
			u.Name, u.Ordinal, u.Phase, shortRevision(u.Revision), u.Address)
		if u.Health != nil && !u.Health.Healthy {
			fmt.Printf("    health: %d consecutive failures: %s\n",
				u.Health.ConsecutiveFailures, u.Health.Message)
		}
	}

	bindings, err := c.ListBindings(ctx, ns, name)
	if err != nil {
		return fmt.Errorf("failed to list volume bindings: %v", err)
	}
	if len(bindings) > 0 {
		fmt.Println("\nVolumes:")
		for _, b := range bindings {
			fmt.Printf("  ordinal=%d class=%s phase=%s path=%s\n",
				b.Ordinal, b.Class, b.Phase, b.Path)
		}
	}
	return nil
}
