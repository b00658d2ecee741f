package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var (
	// Version information (set via ldflags during build)
	Version   = "dev"
	Commit    = "unknown"
	BuildTime = "unknown"
)

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

var rootCmd = &cobra.Command{
	Use:   "roost",
	Short: "Roost - stateful workload controller",
	Long: `Roost keeps replicated, stateful workloads converged: every replica
gets a stable ordinal identity, a dedicated persistent volume that
survives replacement, and ordered create/update/delete transitions.

Run 'roost server' to start a controller, then drive it with apply,
get, scale, rollout and the other client commands.`,
	Version: Version,
}

func init() {
	rootCmd.SetVersionTemplate(fmt.Sprintf(
		"Roost version %s\nCommit: %s\nBuilt: %s\n",
		Version, Commit, BuildTime,
	))

	rootCmd.PersistentFlags().String("controller", "127.0.0.1:7441", "Controller API address")
	rootCmd.PersistentFlags().StringP("namespace", "n", "default", "Workload namespace")
}

func controllerAddr(cmd *cobra.Command) string {
	addr, _ := cmd.Flags().GetString("controller")
	return addr
}

func namespaceFlag(cmd *cobra.Command) string {
	ns, _ := cmd.Flags().GetString("namespace")
	return ns
}
