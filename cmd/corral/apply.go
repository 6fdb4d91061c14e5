package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/corralhq/corral/pkg/client"
)

var applyCmd = &cobra.Command{
	Use:   "apply",
	Short: "Apply a resource definition file",
	Long: `Apply a Corral resource from a YAML file.

Examples:
  # Provision a node
  corral apply -f node.yaml

  # Submit a workload
  corral apply -f workload.yaml`,
	RunE: runApply,
}

func init() {
	applyCmd.Flags().StringP("file", "f", "", "YAML file to apply (required)")
	_ = applyCmd.MarkFlagRequired("file")
}

// resource is the generic YAML envelope.
type resource struct {
	APIVersion string           `yaml:"apiVersion"`
	Kind       string           `yaml:"kind"`
	Metadata   resourceMetadata `yaml:"metadata"`
	Spec       resourceSpec     `yaml:"spec"`
}

type resourceMetadata struct {
	Name string `yaml:"name"`
}

type resourceSpec struct {
	CPUCores    int   `yaml:"cpuCores"`
	MemoryBytes int64 `yaml:"memoryBytes"`
}

func runApply(cmd *cobra.Command, args []string) error {
	filename, _ := cmd.Flags().GetString("file")
	server, _ := cmd.Flags().GetString("server")

	data, err := os.ReadFile(filename)
	if err != nil {
		return fmt.Errorf("failed to read file: %v", err)
	}

	var res resource
	if err := yaml.Unmarshal(data, &res); err != nil {
		return fmt.Errorf("failed to parse YAML: %v", err)
	}

	c := client.NewClient(server)

	switch res.Kind {
	case "Node":
		node, err := c.CreateNode(res.Spec.CPUCores, res.Spec.MemoryBytes)
		if err != nil {
			return fmt.Errorf("failed to create node: %v", err)
		}
		fmt.Printf("✓ Node created: %s\n", node.ID)
		return nil
	case "Workload":
		if res.Metadata.Name == "" {
			return fmt.Errorf("workload name is required")
		}
		workload, err := c.CreateWorkload(res.Metadata.Name, res.Spec.CPUCores, res.Spec.MemoryBytes)
		if err != nil {
			return fmt.Errorf("failed to create workload: %v", err)
		}
		fmt.Printf("✓ Workload submitted: %s (ID: %s)\n", workload.Name, workload.ID)
		return nil
	default:
		return fmt.Errorf("unsupported resource kind: %s", res.Kind)
	}
}
