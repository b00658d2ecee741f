package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/roostlabs/roost/pkg/client"
)

var eventsCmd = &cobra.Command{
	Use:   "events",
	Short: "Stream controller events",
	Long: `Follow the controller's event stream. Without filters every event
is printed; --workload narrows the stream to one workload.

Examples:
  # Everything
  roost events

  # One workload in the default namespace
  roost events --workload db`,
	RunE: runEvents,
}

func init() {
	eventsCmd.Flags().String("workload", "", "Only events for this workload")

	rootCmd.AddCommand(eventsCmd)
}

func runEvents(cmd *cobra.Command, args []string) error {
	workload, _ := cmd.Flags().GetString("workload")
	ns := ""
	if workload != "" {
		ns = namespaceFlag(cmd)
	}

	c := client.New(controllerAddr(cmd))
	ch, err := c.Events(cmd.Context(), ns, workload)
	if err != nil {
		return fmt.Errorf("failed to open event stream: %v", err)
	}

	for e := range ch {
		subject := e.Metadata["namespace"] + "/" + e.Metadata["workload"]
		if ord, ok := e.Metadata["ordinal"]; ok {
			subject += "/" + ord
		}
		fmt.Printf("%s  %-26s %-32s %s\n",
			e.Timestamp.Format("15:04:05"), e.Type, subject, e.Message)
	}
	return nil
}
