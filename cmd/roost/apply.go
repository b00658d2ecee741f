package main

import (
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/roostlabs/roost/pkg/client"
	"github.com/roostlabs/roost/pkg/types"
)

var applyCmd = &cobra.Command{
	Use:   "apply",
	Short: "Apply a workload definition",
	Long: `Apply a workload from a YAML file. Creating and updating use the
same verb: an existing workload is patched to the new definition and the
rollout strategy takes over.

Examples:
  # Apply a workload definition
  roost apply -f db.yaml

  # Apply several workloads from one file
  roost apply -f stack.yaml`,
	RunE: runApply,
}

func init() {
	applyCmd.Flags().StringP("file", "f", "", "YAML file to apply (required)")
	_ = applyCmd.MarkFlagRequired("file")

	rootCmd.AddCommand(applyCmd)
}

func runApply(cmd *cobra.Command, args []string) error {
	filename, _ := cmd.Flags().GetString("file")

	f, err := os.Open(filename)
	if err != nil {
		return fmt.Errorf("failed to read file: %v", err)
	}
	defer f.Close()

	c := client.New(controllerAddr(cmd))
	ctx := cmd.Context()

	// A file may hold several workloads separated by ---.
	dec := yaml.NewDecoder(f)
	applied := 0
	for {
		var w types.Workload
		if err := dec.Decode(&w); err != nil {
			if errors.Is(err, io.EOF) {
				break
			}
			return fmt.Errorf("failed to parse YAML: %v", err)
		}
		if w.Name == "" {
			continue
		}
		if w.Namespace == "" {
			w.Namespace = namespaceFlag(cmd)
		}

		out, err := c.Apply(ctx, &w)
		if err != nil {
			return fmt.Errorf("failed to apply workload %s: %v", w.Name, err)
		}
		fmt.Printf("✓ Workload applied: %s (replicas=%d, revision=%s)\n",
			out.Key(), out.Replicas, out.Status.UpdateRevision)
		applied++
	}

	if applied == 0 {
		return fmt.Errorf("no workloads found in %s", filename)
	}
	return nil
}
