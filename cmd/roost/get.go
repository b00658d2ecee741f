package main

import (
	"fmt"
	"os"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/roostlabs/roost/pkg/client"
	"github.com/roostlabs/roost/pkg/types"
)

var getCmd = &cobra.Command{
	Use:   "get",
	Short: "List workloads or units",
}

var getWorkloadsCmd = &cobra.Command{
	Use:     "workloads",
	Aliases: []string{"workload", "wl"},
	Short:   "List workloads",
	RunE:    runGetWorkloads,
}

var getUnitsCmd = &cobra.Command{
	Use:     "units [workload]",
	Aliases: []string{"unit"},
	Short:   "List the units of a workload",
	Args:    cobra.ExactArgs(1),
	RunE:    runGetUnits,
}

func init() {
	getCmd.AddCommand(getWorkloadsCmd)
	getCmd.AddCommand(getUnitsCmd)
	rootCmd.AddCommand(getCmd)
}

func runGetWorkloads(cmd *cobra.Command, args []string) error {
	c := client.New(controllerAddr(cmd))
	workloads, err := c.ListWorkloads(cmd.Context())
	if err != nil {
		return fmt.Errorf("failed to list workloads: %v", err)
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "NAMESPACE\tNAME\tREADY\tUPDATED\tREVISION\tAGE")
	for _, wl := range workloads {
		state := fmt.Sprintf("%d/%d", wl.Status.ReadyReplicas, wl.Replicas)
		if wl.Deleting() {
			state = "terminating"
		} else if wl.Paused {
			state += " (paused)"
		}
		fmt.Fprintf(w, "%s\t%s\t%s\t%d\t%s\t%s\n",
			wl.Namespace, wl.Name, state,
			wl.Status.UpdatedReplicas,
			shortRevision(wl.Status.UpdateRevision),
			age(wl.CreatedAt))
	}
	return w.Flush()
}

func runGetUnits(cmd *cobra.Command, args []string) error {
	c := client.New(controllerAddr(cmd))
	units, err := c.ListUnits(cmd.Context(), namespaceFlag(cmd), args[0])
	if err != nil {
		return fmt.Errorf("failed to list units: %v", err)
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "NAME\tORDINAL\tPHASE\tREVISION\tADDRESS\tAGE")
	for _, u := range units {
		fmt.Fprintf(w, "%s\t%d\t%s\t%s\t%s\t%s\n",
			u.Name, u.Ordinal, phaseText(u),
			shortRevision(u.Revision), u.Address, age(u.CreatedAt))
	}
	return w.Flush()
}

func phaseText(u *types.Unit) string {
	if u.Phase == types.UnitFailed && u.Message != "" {
		return fmt.Sprintf("%s (%s)", u.Phase, u.Message)
	}
	return string(u.Phase)
}

func shortRevision(rev string) string {
	if len(rev) > 8 {
		return rev[:8]
	}
	if rev == "" {
		return "-"
	}
	return rev
}

func age(t time.Time) string {
	if t.IsZero() {
		return "-"
	}
	d := time.Since(t).Round(time.Second)
	switch {
	case d > 48*time.Hour:
		return fmt.Sprintf("%dd", int(d.Hours())/24)
	case d > time.Hour:
		return fmt.Sprintf("%dh", int(d.Hours()))
	case d > time.Minute:
		return fmt.Sprintf("%dm", int(d.Minutes()))
	default:
		return fmt.Sprintf("%ds", int(d.Seconds()))
	}
}
