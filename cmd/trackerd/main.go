// Command trackerd runs a single content-tracker host: it serves the
// Cache.ContentTracker RPC, maintains this machine's view of cluster
// membership, and (optionally) joins an existing deployment.
package main

import (
	"context"
	"fmt"
	"net"
	"net/http"
	"os"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"trackerd/buildring"
	"trackerd/cluster"
	"trackerd/clock"
	trackerconfig "trackerd/config"
	"trackerd/distributed"
	"trackerd/machine"
	"trackerd/shard"
	"trackerd/tracker"
	"trackerd/transport"
)

func main() {
	logger, err := zap.NewProduction()
	if err != nil {
		fmt.Fprintf(os.Stderr, "trackerd: failed to build logger: %v\n", err)
		os.Exit(1)
	}
	defer logger.Sync()

	cfg, err := trackerconfig.ParseFlags(os.Args[1:])
	if err != nil {
		logger.Fatal("failed to parse flags", zap.Error(err))
	}

	backing, err := tracker.OpenPebbleBackingStore(cfg.DataDir)
	if err != nil {
		logger.Fatal("failed to open backing store", zap.Error(err))
	}
	defer backing.Close()

	registry := cluster.NewRegistry(logger)

	ip, err := localIP()
	if err != nil {
		logger.Warn("failed to determine local IP, binding to all interfaces", zap.Error(err))
		ip = "0.0.0.0"
	}
	loc := machine.Canonicalize(ip, cfg.ListenPort)

	self := registry.RegisterMachine(loc, time.Now(), cfg.ReclaimThreshold)
	logger.Info("registered machine",
		zap.Uint32("machine_id", uint32(self)),
		zap.String("location", string(loc)),
		zap.Uint32("cluster_size", uint32(len(registry.Snapshot().Records()))))

	shards := shard.NewManager()
	shard.Watch(shards, registry)

	rings := buildring.NewCoordinator()
	ring := rings.AddRing([]machine.ID{self})
	logger.Info("formed build ring", zap.String("ring_id", ring.ID), zap.Bool("leader", ring.IsLeader(self)))

	local := tracker.NewLocal(self, clock.Real{})
	peers := distributed.NewPeerDialer(registry)
	metricsRegistry := prometheus.NewRegistry()

	dist := distributed.New(self, local, shards, rings, peers, backing, distributed.DefaultConfig(), logger, metricsRegistry)

	lis, err := net.Listen("tcp", fmt.Sprintf(":%d", cfg.ListenPort))
	if err != nil {
		logger.Fatal("failed to bind listener", zap.Error(err))
	}
	defer lis.Close()

	server := transport.NewServer(dist, logger)
	go func() {
		if err := server.Serve(lis); err != nil {
			logger.Error("rpc server exited", zap.Error(err))
		}
	}()
	logger.Info("listening", zap.String("service", transport.ServiceName), zap.Int("port", cfg.ListenPort))

	if cfg.JoinAddr != "" {
		if err := joinCluster(cfg.JoinAddr, registry, self, loc); err != nil {
			logger.Warn("failed to join cluster", zap.String("addr", cfg.JoinAddr), zap.Error(err))
		} else {
			logger.Info("joined cluster", zap.String("addr", cfg.JoinAddr))
		}
	}

	go runLivenessLoop(registry, cfg, logger)
	go runMetricsServer(cfg.MetricsPort, metricsRegistry, logger)
	go runHeartbeatLoop(registry, self, cfg, logger)

	select {}
}

// joinCluster probes an existing member over the Cache.ContentTracker
// transport and, once it answers, force-registers self into the local
// registry under self's locally assigned id. It does not fetch the remote
// member's cluster snapshot and does not take an id from it.
func joinCluster(addr string, registry *cluster.Registry, self machine.ID, loc machine.Location) error {
	client := transport.NewClient(addr)
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	// A join is itself an empty GetLocations probe: it confirms
	// reachability of the remote member and nothing more.
	if _, err := client.GetLocations(ctx, nil); err != nil {
		return fmt.Errorf("probing join target: %w", err)
	}
	registry.ForceRegisterMachine(self, loc, time.Now())
	return nil
}

func runLivenessLoop(registry *cluster.Registry, cfg trackerconfig.HostConfig, logger *zap.Logger) {
	ticker := time.NewTicker(cfg.ActiveToClosed)
	defer ticker.Stop()
	liveness := cfg.Liveness()
	for range ticker.C {
		registry.TransitionInactiveMachines(liveness, time.Now())
	}
}

func runHeartbeatLoop(registry *cluster.Registry, self machine.ID, cfg trackerconfig.HostConfig, logger *zap.Logger) {
	ticker := time.NewTicker(cfg.HeartbeatInterval)
	defer ticker.Stop()
	for range ticker.C {
		stats := cluster.SampleHostStatsBounded()
		if _, err := registry.Heartbeat(self, time.Now(), nil, stats); err != nil {
			logger.Warn("self heartbeat failed", zap.Error(err))
		}
	}
}

func runMetricsServer(port int, reg *prometheus.Registry, logger *zap.Logger) {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{}))
	addr := fmt.Sprintf(":%d", port)
	logger.Info("metrics listening", zap.String("addr", addr))
	if err := http.ListenAndServe(addr, mux); err != nil {
		logger.Error("metrics server exited", zap.Error(err))
	}
}

func localIP() (string, error) {
	conn, err := net.Dial("udp", "8.8.8.8:80")
	if err != nil {
		return "", err
	}
	defer conn.Close()
	return conn.LocalAddr().(*net.UDPAddr).IP.String(), nil
}
