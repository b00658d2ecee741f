package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/roostlabs/roost/pkg/api"
	"github.com/roostlabs/roost/pkg/dns"
	"github.com/roostlabs/roost/pkg/events"
	"github.com/roostlabs/roost/pkg/lifecycle"
	"github.com/roostlabs/roost/pkg/log"
	"github.com/roostlabs/roost/pkg/manager"
	"github.com/roostlabs/roost/pkg/metrics"
	"github.com/roostlabs/roost/pkg/reconciler"
	"github.com/roostlabs/roost/pkg/runtime"
	"github.com/roostlabs/roost/pkg/scale"
	"github.com/roostlabs/roost/pkg/volume"
)

// serverConfig is the YAML-loadable server configuration. Flags override
// the file; unset fields fall back to the defaults below.
type serverConfig struct {
	NodeID      string `yaml:"nodeId"`
	DataDir     string `yaml:"dataDir"`
	APIAddr     string `yaml:"apiAddr"`
	RaftAddr    string `yaml:"raftAddr"`
	MetricsAddr string `yaml:"metricsAddr"`

	ReconcileIntervalSeconds int `yaml:"reconcileIntervalSeconds"`
	MaxInflightCreates       int `yaml:"maxInflightCreates"`
	MaxInflightDeletes       int `yaml:"maxInflightDeletes"`

	Runtime struct {
		// Type is "containerd" or "fake". The fake runtime keeps all
		// unit state in memory, for development without containerd.
		Type        string `yaml:"type"`
		Socket      string `yaml:"socket"`
		Namespace   string `yaml:"namespace"`
		HostNetwork bool   `yaml:"hostNetwork"`
	} `yaml:"runtime"`

	DNS struct {
		Enabled    bool     `yaml:"enabled"`
		ListenAddr string   `yaml:"listenAddr"`
		Zone       string   `yaml:"zone"`
		Upstream   []string `yaml:"upstream"`
	} `yaml:"dns"`

	Log struct {
		Level string `yaml:"level"`
		JSON  bool   `yaml:"json"`
	} `yaml:"log"`
}

func defaultServerConfig() serverConfig {
	var cfg serverConfig
	cfg.NodeID = "roost-1"
	cfg.DataDir = "/var/lib/roost"
	cfg.APIAddr = api.DefaultListenAddr
	cfg.RaftAddr = "127.0.0.1:7440"
	cfg.MetricsAddr = "127.0.0.1:9410"
	cfg.Runtime.Type = "containerd"
	cfg.DNS.Enabled = true
	cfg.Log.Level = "info"
	return cfg
}

func loadServerConfig(path string) (serverConfig, error) {
	cfg := defaultServerConfig()
	if path == "" {
		return cfg, nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return cfg, fmt.Errorf("read config: %w", err)
	}
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return cfg, fmt.Errorf("parse config: %w", err)
	}
	return cfg, nil
}

var serverCmd = &cobra.Command{
	Use:   "server",
	Short: "Run the roost controller",
	Long: `Start the controller: the replicated state store, the reconcile
loops, the embedded DNS server for unit discovery, the metrics listener
and the control API.

State lives under --data-dir and survives restarts; reconciliation
resumes from the persisted unit records without reassigning ordinals or
re-provisioning volumes.`,
	RunE: runServer,
}

func init() {
	serverCmd.Flags().String("config", "", "YAML config file")
	serverCmd.Flags().String("node-id", "", "Node ID (overrides config)")
	serverCmd.Flags().String("data-dir", "", "Data directory (overrides config)")
	serverCmd.Flags().String("api-addr", "", "Control API listen address (overrides config)")
	serverCmd.Flags().String("raft-addr", "", "Raft bind address (overrides config)")
	serverCmd.Flags().String("metrics-addr", "", "Metrics listen address (overrides config)")
	serverCmd.Flags().String("runtime", "", "Unit runtime: containerd or fake (overrides config)")
	serverCmd.Flags().String("log-level", "", "Log level: debug, info, warn, error (overrides config)")

	rootCmd.AddCommand(serverCmd)
}

func runServer(cmd *cobra.Command, args []string) error {
	configPath, _ := cmd.Flags().GetString("config")
	cfg, err := loadServerConfig(configPath)
	if err != nil {
		return err
	}
	applyFlagOverrides(cmd, &cfg)

	log.Init(log.Config{
		Level:      log.Level(cfg.Log.Level),
		JSONOutput: cfg.Log.JSON,
	})
	logger := log.WithComponent("server")
	metrics.SetVersion(Version)

	// Replicated state first; everything else reads and writes through it.
	mgr, err := manager.New(manager.Config{
		NodeID:       cfg.NodeID,
		RaftBindAddr: cfg.RaftAddr,
		DataDir:      cfg.DataDir,
	})
	if err != nil {
		return fmt.Errorf("create manager: %w", err)
	}
	if err := mgr.Bootstrap(); err != nil {
		return fmt.Errorf("bootstrap state: %w", err)
	}
	metrics.RegisterComponent("raft", true, "log ready")

	broker := events.NewBroker()
	broker.Start()

	rt, err := buildRuntime(cfg)
	if err != nil {
		return err
	}
	metrics.RegisterComponent("runtime", true, cfg.Runtime.Type)

	binder, err := volume.NewLocalBinder(mgr, filepath.Join(cfg.DataDir, "volumes"))
	if err != nil {
		return fmt.Errorf("create volume binder: %w", err)
	}

	lcm := lifecycle.NewManager(rt, binder, mgr, broker)

	limits := scale.DefaultLimits()
	if cfg.MaxInflightCreates > 0 {
		limits.MaxInflightCreates = cfg.MaxInflightCreates
	}
	if cfg.MaxInflightDeletes > 0 {
		limits.MaxInflightDeletes = cfg.MaxInflightDeletes
	}

	recon := reconciler.New(reconciler.Config{
		Source:   mgr,
		Recorder: mgr,
		Driver:   lcm,
		Releaser: binder,
		Broker:   broker,
		Interval: time.Duration(cfg.ReconcileIntervalSeconds) * time.Second,
		Limits:   limits,
	})
	lcm.OnChange(recon.Poke)

	scaler := scale.NewCoordinator(mgr, broker)

	// Reattach to whatever survived the previous run, then start loops.
	ctx := context.Background()
	workloads, err := mgr.ListWorkloads()
	if err != nil {
		return fmt.Errorf("list workloads: %w", err)
	}
	for _, w := range workloads {
		units, err := mgr.ListUnits(w.Namespace, w.Name)
		if err != nil {
			return fmt.Errorf("list units for %s: %w", w.Key(), err)
		}
		if err := lcm.Resync(ctx, w, units); err != nil {
			logger.Warn().Err(err).Str("workload", w.Key()).Msg("Resync failed; reconciler will repair")
		}
		recon.Track(w.Namespace, w.Name)
	}
	logger.Info().Int("workloads", len(workloads)).Msg("Resumed tracked workloads")

	var dnsServer *dns.Server
	dnsCtx, dnsCancel := context.WithCancel(ctx)
	defer dnsCancel()
	if cfg.DNS.Enabled {
		dnsServer = dns.NewServer(mgr, &dns.Config{
			ListenAddr: cfg.DNS.ListenAddr,
			Zone:       cfg.DNS.Zone,
			Upstream:   cfg.DNS.Upstream,
		})
		if err := dnsServer.Start(dnsCtx); err != nil {
			return fmt.Errorf("start dns server: %w", err)
		}
		metrics.RegisterComponent("dns", true, "serving")
	}

	collector := metrics.NewCollector(mgr, mgr)
	collector.Start()

	metricsServer := startMetricsServer(cfg.MetricsAddr)

	apiServer := api.NewServer(api.Config{
		ListenAddr: cfg.APIAddr,
		Backend: &controlBackend{
			mgr:    mgr,
			recon:  recon,
			scaler: scaler,
			broker: broker,
		},
		Broker: broker,
	})
	if err := apiServer.Start(); err != nil {
		return err
	}

	logger.Info().
		Str("api", cfg.APIAddr).
		Str("metrics", cfg.MetricsAddr).
		Str("data_dir", cfg.DataDir).
		Msg("Controller running")

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
	<-sigCh
	logger.Info().Msg("Shutting down")

	shutdownCtx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()
	if err := apiServer.Stop(shutdownCtx); err != nil {
		logger.Warn().Err(err).Msg("API shutdown failed")
	}
	_ = metricsServer.Shutdown(shutdownCtx)
	recon.Stop()
	lcm.Shutdown()
	collector.Stop()
	if dnsServer != nil {
		_ = dnsServer.Stop()
	}
	broker.Stop()
	if err := mgr.Shutdown(); err != nil {
		return fmt.Errorf("shutdown manager: %w", err)
	}

	logger.Info().Msg("Shutdown complete")
	return nil
}

func applyFlagOverrides(cmd *cobra.Command, cfg *serverConfig) {
	if v, _ := cmd.Flags().GetString("node-id"); v != "" {
		cfg.NodeID = v
	}
	if v, _ := cmd.Flags().GetString("data-dir"); v != "" {
		cfg.DataDir = v
	}
	if v, _ := cmd.Flags().GetString("api-addr"); v != "" {
		cfg.APIAddr = v
	}
	if v, _ := cmd.Flags().GetString("raft-addr"); v != "" {
		cfg.RaftAddr = v
	}
	if v, _ := cmd.Flags().GetString("metrics-addr"); v != "" {
		cfg.MetricsAddr = v
	}
	if v, _ := cmd.Flags().GetString("runtime"); v != "" {
		cfg.Runtime.Type = v
	}
	if v, _ := cmd.Flags().GetString("log-level"); v != "" {
		cfg.Log.Level = v
	}
}

func buildRuntime(cfg serverConfig) (runtime.Runtime, error) {
	switch cfg.Runtime.Type {
	case "fake":
		return runtime.NewFakeRuntime(), nil
	case "containerd", "":
		rt, err := runtime.NewContainerdRuntime(runtime.Config{
			SocketPath:  cfg.Runtime.Socket,
			Namespace:   cfg.Runtime.Namespace,
			HostNetwork: cfg.Runtime.HostNetwork,
		})
		if err != nil {
			return nil, fmt.Errorf("connect to containerd: %w", err)
		}
		return rt, nil
	default:
		return nil, fmt.Errorf("unknown runtime type %q", cfg.Runtime.Type)
	}
}

// startMetricsServer serves /metrics plus the JSON health endpoints on
// the operations listener, separate from the control API.
func startMetricsServer(addr string) *http.Server {
	mux := http.NewServeMux()
	mux.Handle("/metrics", metrics.Handler())
	mux.HandleFunc("/health", metrics.HealthHandler())
	mux.HandleFunc("/ready", metrics.ReadyHandler())
	mux.HandleFunc("/live", metrics.LivenessHandler())

	srv := &http.Server{Addr: addr, Handler: mux, ReadHeaderTimeout: 10 * time.Second}
	go func() {
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger := log.WithComponent("metrics")
			logger.Error().Err(err).Msg("Metrics server exited")
		}
	}()
	return srv
}
