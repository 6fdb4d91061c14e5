package main

import (
	"fmt"
	"os"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/corralhq/corral/pkg/client"
	"github.com/corralhq/corral/pkg/types"
)

var nodeCmd = &cobra.Command{
	Use:   "node",
	Short: "Manage nodes",
}

var nodeCreateCmd = &cobra.Command{
	Use:   "create",
	Short: "Provision a new node",
	RunE: func(cmd *cobra.Command, args []string) error {
		cpu, _ := cmd.Flags().GetInt("cpu")
		memoryGB, _ := cmd.Flags().GetInt64("memory-gb")
		server, _ := cmd.Flags().GetString("server")

		c := client.NewClient(server)
		node, err := c.CreateNode(cpu, memoryGB*1024*1024*1024)
		if err != nil {
			return fmt.Errorf("failed to create node: %v", err)
		}

		fmt.Printf("✓ Node created: %s (phase=%s, cpu=%d, memory=%dGB)\n",
			node.ID, node.Phase, node.Capacity.CPUCores, memoryGB)
		return nil
	},
}

var nodeListCmd = &cobra.Command{
	Use:     "list",
	Aliases: []string{"ls"},
	Short:   "List nodes in the cluster",
	RunE: func(cmd *cobra.Command, args []string) error {
		server, _ := cmd.Flags().GetString("server")

		c := client.NewClient(server)
		nodeList, err := c.ListNodes()
		if err != nil {
			return fmt.Errorf("failed to list nodes: %v", err)
		}

		w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
		fmt.Fprintln(w, "ID\tPHASE\tCPU\tMEMORY\tHEARTBEAT\tAGE")
		for _, node := range nodeList {
			fmt.Fprintf(w, "%s\t%s\t%d\t%s\t%s\t%s\n",
				node.ID, node.Phase, node.Capacity.CPUCores,
				formatBytes(node.Capacity.MemoryBytes),
				formatAge(node.LastHeartbeat),
				formatAge(node.CreatedAt))
		}
		return w.Flush()
	},
}

var nodeGetCmd = &cobra.Command{
	Use:   "get ID",
	Short: "Show one node",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		server, _ := cmd.Flags().GetString("server")

		c := client.NewClient(server)
		node, err := c.GetNode(args[0])
		if err != nil {
			return fmt.Errorf("failed to get node: %v", err)
		}
		printNode(node)
		return nil
	},
}

var nodeDeleteCmd = &cobra.Command{
	Use:     "delete ID",
	Aliases: []string{"rm"},
	Short:   "Terminate a node, evicting its workloads",
	Args:    cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		server, _ := cmd.Flags().GetString("server")
		revision, _ := cmd.Flags().GetUint64("revision")

		c := client.NewClient(server)
		if err := c.DeleteNode(args[0], revision); err != nil {
			if client.IsConflict(err) {
				return fmt.Errorf("node changed since revision %d, re-read and retry", revision)
			}
			return fmt.Errorf("failed to delete node: %v", err)
		}

		fmt.Printf("✓ Node deleted: %s\n", args[0])
		return nil
	},
}

var nodeHeartbeatCmd = &cobra.Command{
	Use:   "heartbeat ID",
	Short: "Record a heartbeat for a node",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		server, _ := cmd.Flags().GetString("server")

		c := client.NewClient(server)
		if err := c.Heartbeat(args[0]); err != nil {
			return fmt.Errorf("failed to record heartbeat: %v", err)
		}
		fmt.Printf("✓ Heartbeat recorded: %s\n", args[0])
		return nil
	},
}

func init() {
	nodeCmd.AddCommand(nodeCreateCmd)
	nodeCmd.AddCommand(nodeListCmd)
	nodeCmd.AddCommand(nodeGetCmd)
	nodeCmd.AddCommand(nodeDeleteCmd)
	nodeCmd.AddCommand(nodeHeartbeatCmd)

	nodeCreateCmd.Flags().Int("cpu", 2, "CPU cores")
	nodeCreateCmd.Flags().Int64("memory-gb", 4, "Memory in GiB")
	nodeDeleteCmd.Flags().Uint64("revision", 0, "Expected revision (0 = unconditional)")
}

func printNode(node *types.Node) {
	fmt.Printf("ID:                %s\n", node.ID)
	fmt.Printf("Phase:             %s\n", node.Phase)
	fmt.Printf("Capacity:          %d CPU, %s\n", node.Capacity.CPUCores, formatBytes(node.Capacity.MemoryBytes))
	fmt.Printf("Revision:          %d\n", node.Revision)
	fmt.Printf("Missed heartbeats: %d\n", node.MissedHeartbeats)
	if node.RuntimeHandle != "" {
		fmt.Printf("Runtime handle:    %s\n", node.RuntimeHandle)
	}
	if node.Error != "" {
		fmt.Printf("Error:             %s\n", node.Error)
	}
}

func formatBytes(b int64) string {
	const gb = 1024 * 1024 * 1024
	const mb = 1024 * 1024
	switch {
	case b >= gb:
		return fmt.Sprintf("%.1fGB", float64(b)/gb)
	case b >= mb:
		return fmt.Sprintf("%.0fMB", float64(b)/mb)
	default:
		return fmt.Sprintf("%dB", b)
	}
}

func formatAge(t time.Time) string {
	if t.IsZero() {
		return "-"
	}
	d := time.Since(t).Round(time.Second)
	if d < 0 {
		d = 0
	}
	return d.String()
}
