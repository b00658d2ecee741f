package main

import (
	"fmt"
	"os"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/roostlabs/roost/pkg/client"
)

var volumesCmd = &cobra.Command{
	Use:     "volumes [workload]",
	Aliases: []string{"volume", "vol"},
	Short:   "List the volume bindings of a workload",
	Long: `Show the per-ordinal volume bindings, including Released bindings
left behind by scale-downs under the Retain policy.`,
	Args: cobra.ExactArgs(1),
	RunE: runVolumes,
}

func init() {
	rootCmd.AddCommand(volumesCmd)
}

func runVolumes(cmd *cobra.Command, args []string) error {
	c := client.New(controllerAddr(cmd))
	bindings, err := c.ListBindings(cmd.Context(), namespaceFlag(cmd), args[0])
	if err != nil {
		return fmt.Errorf("failed to list volume bindings: %v", err)
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "ORDINAL\tCLASS\tPHASE\tSIZE\tPATH\tAGE")
	for _, b := range bindings {
		size := "-"
		if b.SizeBytes > 0 {
			size = fmt.Sprintf("%dM", b.SizeBytes/(1024*1024))
		}
		fmt.Fprintf(w, "%d\t%s\t%s\t%s\t%s\t%s\n",
			b.Ordinal, b.Class, b.Phase, size, b.Path, age(b.CreatedAt))
	}
	return w.Flush()
}
