package main

import (
	"fmt"
	"strconv"

	"github.com/spf13/cobra"

	"github.com/roostlabs/roost/pkg/client"
)

var deleteCmd = &cobra.Command{
	Use:   "delete",
	Short: "Delete a workload or retire a unit",
}

var deleteWorkloadCmd = &cobra.Command{
	Use:   "workload [name]",
	Short: "Delete a workload and all of its units",
	Long: `Request workload teardown. Units terminate in descending ordinal
order; the record disappears once the last unit is gone. Volume data is
kept or removed per the workload's whenDeleted retention policy.`,
	Args: cobra.ExactArgs(1),
	RunE: runDeleteWorkload,
}

var deleteUnitCmd = &cobra.Command{
	Use:   "unit [workload] [ordinal]",
	Short: "Retire one unit",
	Long: `Terminate the unit at the given ordinal. The reconciler recreates
it with the current template revision and the same volume binding. This
is also how a Failed unit is put back into service.`,
	Args: cobra.ExactArgs(2),
	RunE: runDeleteUnit,
}

func init() {
	deleteCmd.AddCommand(deleteWorkloadCmd)
	deleteCmd.AddCommand(deleteUnitCmd)
	rootCmd.AddCommand(deleteCmd)
}

func runDeleteWorkload(cmd *cobra.Command, args []string) error {
	c := client.New(controllerAddr(cmd))
	ns := namespaceFlag(cmd)
	if err := c.DeleteWorkload(cmd.Context(), ns, args[0]); err != nil {
		return fmt.Errorf("failed to delete workload: %v", err)
	}
	fmt.Printf("✓ Workload deletion requested: %s/%s\n", ns, args[0])
	return nil
}

func runDeleteUnit(cmd *cobra.Command, args []string) error {
	ordinal, err := strconv.Atoi(args[1])
	if err != nil || ordinal < 0 {
		return fmt.Errorf("ordinal must be a non-negative integer, got %q", args[1])
	}

	c := client.New(controllerAddr(cmd))
	ns := namespaceFlag(cmd)
	if err := c.RetireUnit(cmd.Context(), ns, args[0], ordinal); err != nil {
		return fmt.Errorf("failed to retire unit: %v", err)
	}
	fmt.Printf("✓ Unit retiring: %s/%s ordinal %d\n", ns, args[0], ordinal)
	return nil
}
