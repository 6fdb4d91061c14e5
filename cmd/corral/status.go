package main

import (
	"fmt"
	"os"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/corralhq/corral/pkg/client"
)

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show cluster-wide status",
	RunE: func(cmd *cobra.Command, args []string) error {
		server, _ := cmd.Flags().GetString("server")

		c := client.NewClient(server)
		status, err := c.ClusterStatus()
		if err != nil {
			return fmt.Errorf("failed to get status: %v", err)
		}

		fmt.Println("NODES")
		w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
		fmt.Fprintln(w, "ID\tPHASE\tCPU FREE\tMEMORY FREE")
		for _, ns := range status.Nodes {
			fmt.Fprintf(w, "%s\t%s\t%d/%d\t%s/%s\n",
				ns.Node.ID, ns.Node.Phase,
				ns.Free.CPUCores, ns.Node.Capacity.CPUCores,
				formatBytes(ns.Free.MemoryBytes), formatBytes(ns.Node.Capacity.MemoryBytes))
		}
		if err := w.Flush(); err != nil {
			return err
		}

		fmt.Println()
		fmt.Println("WORKLOADS")
		w = tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
		fmt.Fprintln(w, "ID\tNAME\tPHASE\tNODE")
		for _, wl := range status.Workloads {
			nodeID := wl.NodeID
			if nodeID == "" {
				nodeID = "-"
			}
			fmt.Fprintf(w, "%s\t%s\t%s\t%s\n", wl.ID, wl.Name, wl.Phase, nodeID)
		}
		return w.Flush()
	},
}
