// Package config loads the host configuration keys table of section 6
// via pflag-backed command-line flags, with an optional JSON overlay.
package config

import (
	"encoding/json"
	"os"
	"time"

	"github.com/spf13/pflag"

	"trackerd/cluster"
)

// HostConfig is every configuration key the tracker consumes from its
// host, plus operational knobs (listen ports, data directory) this
// daemon needs to actually start.
type HostConfig struct {
	ActiveToClosed            time.Duration
	ActiveToExpired           time.Duration
	ClosedToExpired           time.Duration
	ActiveToUnavailable       time.Duration
	ReclaimThreshold          time.Duration
	EventBatchSize            int
	EventNagleInterval        time.Duration
	RemoteConstructionTimeout time.Duration
	HeartbeatInterval         time.Duration

	ListenPort  int
	MetricsPort int
	DataDir     string
	JoinAddr    string
}

// Defaults returns the tracker's out-of-the-box configuration.
func Defaults() HostConfig {
	return HostConfig{
		ActiveToClosed:            10 * time.Second,
		ActiveToExpired:           5 * time.Minute,
		ClosedToExpired:           2 * time.Minute,
		ActiveToUnavailable:       30 * time.Second,
		ReclaimThreshold:          0,
		EventBatchSize:            64,
		EventNagleInterval:        50 * time.Millisecond,
		RemoteConstructionTimeout: 10 * time.Second,
		HeartbeatInterval:         5 * time.Second,
		ListenPort:                7500,
		MetricsPort:               9500,
		DataDir:                   "trackerd-data",
	}
}

// Liveness projects the subset of HostConfig the cluster state machine's
// TransitionInactiveMachines needs.
func (c HostConfig) Liveness() cluster.LivenessConfig {
	return cluster.LivenessConfig{
		ActiveToClosed:      c.ActiveToClosed,
		ActiveToExpired:     c.ActiveToExpired,
		ClosedToExpired:     c.ClosedToExpired,
		ActiveToUnavailable: c.ActiveToUnavailable,
	}
}

// ParseFlags parses args (normally os.Args[1:]) into a HostConfig
// starting from Defaults, applying --config-file as a JSON overlay
// before the explicit flags above take final effect.
func ParseFlags(args []string) (HostConfig, error) {
	cfg := Defaults()
	fs := pflag.NewFlagSet("trackerd", pflag.ContinueOnError)

	fs.DurationVar(&cfg.ActiveToClosed, "active-to-closed", cfg.ActiveToClosed, "inactivity before Open->Closed")
	fs.DurationVar(&cfg.ActiveToExpired, "active-to-expired", cfg.ActiveToExpired, "inactivity before Open->DeadExpired")
	fs.DurationVar(&cfg.ClosedToExpired, "closed-to-expired", cfg.ClosedToExpired, "inactivity before Closed->DeadExpired")
	fs.DurationVar(&cfg.ActiveToUnavailable, "active-to-unavailable", cfg.ActiveToUnavailable, "inactivity before any state->DeadUnavailable")
	fs.DurationVar(&cfg.ReclaimThreshold, "reclaim-threshold", cfg.ReclaimThreshold, "additional dead time required before an id may be reclaimed")
	fs.IntVar(&cfg.EventBatchSize, "event-batch-size", cfg.EventBatchSize, "batching queue flush size")
	fs.DurationVar(&cfg.EventNagleInterval, "event-nagle-interval", cfg.EventNagleInterval, "batching queue flush interval")
	fs.DurationVar(&cfg.RemoteConstructionTimeout, "remote-construction-timeout", cfg.RemoteConstructionTimeout, "per-RPC timeout")
	fs.DurationVar(&cfg.HeartbeatInterval, "heartbeat-interval", cfg.HeartbeatInterval, "interval between outgoing heartbeats")
	fs.IntVar(&cfg.ListenPort, "port", cfg.ListenPort, "Cache.ContentTracker listen port")
	fs.IntVar(&cfg.MetricsPort, "metrics-port", cfg.MetricsPort, "/metrics listen port")
	fs.StringVar(&cfg.DataDir, "data-dir", cfg.DataDir, "backing store directory")
	fs.StringVar(&cfg.JoinAddr, "join", cfg.JoinAddr, "address of an existing cluster member to join (optional)")

	var overlay string
	fs.StringVar(&overlay, "config-file", "", "optional JSON file overlaying these defaults")

	if err := fs.Parse(args); err != nil {
		return cfg, err
	}
	if overlay != "" {
		if err := applyOverlay(&cfg, overlay); err != nil {
			return cfg, err
		}
		// Parse again so explicitly given flags win over the overlay.
		if err := fs.Parse(args); err != nil {
			return cfg, err
		}
	}
	return cfg, nil
}

func applyOverlay(cfg *HostConfig, path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return err
	}
	return json.Unmarshal(data, cfg)
}
