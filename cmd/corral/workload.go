package main

import (
	"fmt"
	"os"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/corralhq/corral/pkg/client"
)

var workloadCmd = &cobra.Command{
	Use:   "workload",
	Short: "Manage workloads",
}

var workloadSubmitCmd = &cobra.Command{
	Use:   "submit NAME",
	Short: "Submit a workload for scheduling",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		cpu, _ := cmd.Flags().GetInt("cpu")
		memoryGB, _ := cmd.Flags().GetInt64("memory-gb")
		server, _ := cmd.Flags().GetString("server")

		c := client.NewClient(server)
		workload, err := c.CreateWorkload(args[0], cpu, memoryGB*1024*1024*1024)
		if err != nil {
			return fmt.Errorf("failed to submit workload: %v", err)
		}

		fmt.Printf("✓ Workload submitted: %s (ID: %s)\n", workload.Name, workload.ID)
		return nil
	},
}

var workloadListCmd = &cobra.Command{
	Use:     "list",
	Aliases: []string{"ls"},
	Short:   "List workloads",
	RunE: func(cmd *cobra.Command, args []string) error {
		server, _ := cmd.Flags().GetString("server")

		c := client.NewClient(server)
		workloads, err := c.ListWorkloads()
		if err != nil {
			return fmt.Errorf("failed to list workloads: %v", err)
		}

		w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
		fmt.Fprintln(w, "ID\tNAME\tPHASE\tCPU\tMEMORY\tNODE\tSTATUS")
		for _, wl := range workloads {
			nodeID := wl.NodeID
			if nodeID == "" {
				nodeID = "-"
			}
			status := wl.UnscheduledReason
			if wl.Error != "" {
				status = wl.Error
			}
			if status == "" {
				status = "-"
			}
			fmt.Fprintf(w, "%s\t%s\t%s\t%d\t%s\t%s\t%s\n",
				wl.ID, wl.Name, wl.Phase, wl.Request.CPUCores,
				formatBytes(wl.Request.MemoryBytes), nodeID, status)
		}
		return w.Flush()
	},
}

var workloadGetCmd = &cobra.Command{
	Use:   "get ID",
	Short: "Show one workload",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		server, _ := cmd.Flags().GetString("server")

		c := client.NewClient(server)
		wl, err := c.GetWorkload(args[0])
		if err != nil {
			return fmt.Errorf("failed to get workload: %v", err)
		}

		fmt.Printf("ID:       %s\n", wl.ID)
		fmt.Printf("Name:     %s\n", wl.Name)
		fmt.Printf("Phase:    %s\n", wl.Phase)
		fmt.Printf("Request:  %d CPU, %s\n", wl.Request.CPUCores, formatBytes(wl.Request.MemoryBytes))
		fmt.Printf("Revision: %d\n", wl.Revision)
		if wl.NodeID != "" {
			fmt.Printf("Node:     %s\n", wl.NodeID)
		}
		if wl.UnscheduledReason != "" {
			fmt.Printf("Status:   %s\n", wl.UnscheduledReason)
		}
		if wl.Error != "" {
			fmt.Printf("Error:    %s\n", wl.Error)
		}
		return nil
	},
}

var workloadDeleteCmd = &cobra.Command{
	Use:     "delete ID",
	Aliases: []string{"rm"},
	Short:   "Terminate and remove a workload",
	Args:    cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		server, _ := cmd.Flags().GetString("server")
		revision, _ := cmd.Flags().GetUint64("revision")

		c := client.NewClient(server)
		if err := c.DeleteWorkload(args[0], revision); err != nil {
			return fmt.Errorf("failed to delete workload: %v", err)
		}
		fmt.Printf("✓ Workload deleted: %s\n", args[0])
		return nil
	},
}

var workloadResubmitCmd = &cobra.Command{
	Use:   "resubmit ID",
	Short: "Resubmit a failed workload as a new object",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		server, _ := cmd.Flags().GetString("server")

		c := client.NewClient(server)
		fresh, err := c.ResubmitWorkload(args[0])
		if err != nil {
			return fmt.Errorf("failed to resubmit workload: %v", err)
		}
		fmt.Printf("✓ Workload resubmitted: %s (new ID: %s)\n", fresh.Name, fresh.ID)
		return nil
	},
}

func init() {
	workloadCmd.AddCommand(workloadSubmitCmd)
	workloadCmd.AddCommand(workloadListCmd)
	workloadCmd.AddCommand(workloadGetCmd)
	workloadCmd.AddCommand(workloadDeleteCmd)
	workloadCmd.AddCommand(workloadResubmitCmd)

	workloadSubmitCmd.Flags().Int("cpu", 1, "Requested CPU cores")
	workloadSubmitCmd.Flags().Int64("memory-gb", 1, "Requested memory in GiB")
	workloadDeleteCmd.Flags().Uint64("revision", 0, "Expected revision (0 = unconditional)")
}
