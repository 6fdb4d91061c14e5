package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/corralhq/corral/pkg/api"
	"github.com/corralhq/corral/pkg/config"
	"github.com/corralhq/corral/pkg/events"
	"github.com/corralhq/corral/pkg/log"
	"github.com/corralhq/corral/pkg/metrics"
	"github.com/corralhq/corral/pkg/nodes"
	"github.com/corralhq/corral/pkg/runtime"
	"github.com/corralhq/corral/pkg/scheduler"
	"github.com/corralhq/corral/pkg/store"
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
	Use:   "corral",
	Short: "Corral - container orchestration control plane simulator",
	Long: `Corral is a small container orchestration control plane: an object
store with optimistic concurrency, a node lifecycle manager driving a
container runtime, and a first-fit FIFO scheduler, exposed over a REST API
with a single-binary CLI.`,
	Version: Version,
}

func init() {
	rootCmd.SetVersionTemplate(fmt.Sprintf(
		"Corral version %s\nCommit: %s\nBuilt: %s\n",
		Version, Commit, BuildTime,
	))

	rootCmd.PersistentFlags().String("server", "localhost:8080", "API server address")

	rootCmd.AddCommand(serverCmd)
	rootCmd.AddCommand(nodeCmd)
	rootCmd.AddCommand(workloadCmd)
	rootCmd.AddCommand(statusCmd)
	rootCmd.AddCommand(applyCmd)
}

var serverCmd = &cobra.Command{
	Use:   "server",
	Short: "Run the control plane",
	RunE: func(cmd *cobra.Command, args []string) error {
		configPath, _ := cmd.Flags().GetString("config")

		cfg, err := config.Load(configPath)
		if err != nil {
			return err
		}
		if addr, _ := cmd.Flags().GetString("listen"); addr != "" {
			cfg.ListenAddr = addr
		}
		if rt, _ := cmd.Flags().GetString("runtime"); rt != "" {
			cfg.Runtime = rt
			if err := cfg.Validate(); err != nil {
				return err
			}
		}
		if dir, _ := cmd.Flags().GetString("data-dir"); dir != "" {
			cfg.DataDir = dir
		}

		log.Init(log.Config{Level: log.Level(cfg.Log.Level), JSONOutput: cfg.Log.JSON})
		metrics.SetVersion(Version)

		st, err := openStore(cfg)
		if err != nil {
			return fmt.Errorf("failed to open store: %v", err)
		}
		defer func() { _ = st.Close() }()
		metrics.RegisterComponent("store", true, "")

		rt, err := openRuntime(cfg)
		if err != nil {
			return fmt.Errorf("failed to open runtime: %v", err)
		}
		defer func() { _ = rt.Close() }()
		metrics.RegisterComponent("runtime", true, cfg.Runtime)

		broker := events.NewBroker()
		broker.Start()

		mgr := nodes.NewManager(st, rt, broker, nodes.Config{
			EnvironmentImage:         cfg.EnvironmentImage,
			DataDir:                  cfg.DataDir,
			RuntimeTimeout:           cfg.RuntimeTimeout(),
			DrainTimeout:             cfg.DrainTimeout(),
			HeartbeatInterval:        cfg.HeartbeatInterval(),
			MissedHeartbeatThreshold: cfg.MissedHeartbeatThreshold,
		})

		sched := scheduler.NewScheduler(st, mgr, broker, scheduler.Config{
			Interval: cfg.ReconcileInterval(),
		})
		mgr.SetKick(sched.Kick)

		collector := metrics.NewCollector(st, 15*time.Second)

		mgr.Start()
		sched.Start()
		collector.Start()
		metrics.RegisterComponent("scheduler", true, "")

		apiServer := api.NewServer(cfg.ListenAddr, st, mgr, sched, broker)
		errCh := make(chan error, 1)
		go func() {
			if err := apiServer.Start(); err != nil {
				errCh <- fmt.Errorf("API server error: %v", err)
			}
		}()

		fmt.Printf("Corral is running on %s (runtime: %s). Press Ctrl+C to stop.\n",
			cfg.ListenAddr, cfg.Runtime)

		sigCh := make(chan os.Signal, 1)
		signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)

		select {
		case <-sigCh:
			fmt.Println("\nShutting down...")
		case err := <-errCh:
			fmt.Fprintf(os.Stderr, "\nError: %v\n", err)
		}

		shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
		defer cancel()
		if err := apiServer.Shutdown(shutdownCtx); err != nil {
			fmt.Fprintf(os.Stderr, "API shutdown error: %v\n", err)
		}
		collector.Stop()
		sched.Stop()
		mgr.Stop()
		broker.Stop()

		fmt.Println("✓ Shutdown complete")
		return nil
	},
}

func init() {
	serverCmd.Flags().String("config", "", "Path to YAML config file")
	serverCmd.Flags().String("listen", "", "API bind address (overrides config)")
	serverCmd.Flags().String("runtime", "", "Container runtime: containerd, docker, or sim (overrides config)")
	serverCmd.Flags().String("data-dir", "", "Data directory for persistent state (overrides config)")
}

func openStore(cfg *config.Config) (store.Store, error) {
	if cfg.DataDir == "" {
		return store.NewMemStore(), nil
	}
	return store.NewBoltStore(cfg.DataDir)
}

func openRuntime(cfg *config.Config) (runtime.Runtime, error) {
	switch cfg.Runtime {
	case "containerd":
		return runtime.NewContainerdRuntime(cfg.ContainerdSocket)
	case "docker":
		return runtime.NewDockerRuntime()
	case "sim":
		return runtime.NewSimRuntime(), nil
	default:
		return nil, fmt.Errorf("unknown runtime %q", cfg.Runtime)
	}
}
