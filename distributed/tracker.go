package distributed

import (
	"context"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"

	"trackerd/buildring"
	"trackerd/content"
	"trackerd/machine"
	"trackerd/shard"
	"trackerd/stamp"
	"trackerd/tracker"
	"trackerd/trackererr"
)

// Config carries the distributed tracker's tunables, sourced from the
// host configuration keys of section 6.
type Config struct {
	// MaxRemoteWait bounds any single remote hop attempt
	// (remote_construction_timeout_ms).
	MaxRemoteWait time.Duration
	// MaxAttempts bounds Transient retries, including the first try.
	MaxAttempts int
	// InitialBackoff is the first retry delay; it doubles, capped at
	// MaxRemoteWait.
	InitialBackoff time.Duration
	// MinReachableLocations is k: a hash is considered sufficiently
	// informed locally once it has at least this many live locations.
	MinReachableLocations int
}

// DefaultConfig returns the tracker's defaults: a 10s remote timeout (the
// section 6 default), three attempts, and k=1.
func DefaultConfig() Config {
	return Config{
		MaxRemoteWait:         10 * time.Second,
		MaxAttempts:           3,
		InitialBackoff:        100 * time.Millisecond,
		MinReachableLocations: 1,
	}
}

// Tracker is the Distributed Tracker: it owns a Local tracker and routes
// updates/lookups through the build ring and the DHT.
type Tracker struct {
	self    machine.ID
	local   *tracker.Local
	shards  *shard.Manager
	rings   *buildring.Coordinator
	peers   *PeerDialer
	backing tracker.BackingStore
	cfg     Config
	logger  *zap.Logger
	metrics *metrics
}

// New builds a Tracker for self. backing may be nil; when present, it
// backs GetLocationsWithFallback's read-through after a ring removal.
func New(self machine.ID, local *tracker.Local, shards *shard.Manager, rings *buildring.Coordinator, peers *PeerDialer, backing tracker.BackingStore, cfg Config, logger *zap.Logger, reg prometheus.Registerer) *Tracker {
	return &Tracker{
		self:    self,
		local:   local,
		shards:  shards,
		rings:   rings,
		peers:   peers,
		backing: backing,
		cfg:     cfg,
		logger:  logger,
		metrics: newMetrics(reg),
	}
}

func (t *Tracker) currentLeader() (machine.ID, bool) {
	if t.rings == nil {
		return 0, false
	}
	r, ok := t.rings.RingFor(t.self)
	if !ok {
		return 0, false
	}
	leader := r.Leader()
	if leader == 0 {
		return 0, false
	}
	return leader, true
}

// ProcessLocalChange implements the update path: mint and merge locally,
// then either forward to the ring leader (if self isn't it) or perform
// the leader's own forward-to-DHT-owner duty directly.
func (t *Tracker) ProcessLocalChange(ctx context.Context, op stamp.Op, hash string, size int64) (content.Entry, error) {
	entry := t.local.ProcessLocalChange(op, hash, size)
	t.metrics.mergeTotal.Inc()

	if leader, ok := t.currentLeader(); ok && leader != t.self {
		if err := t.sendUpdate(ctx, leader, []content.Entry{entry}); err != nil {
			return entry, err
		}
		return entry, nil
	}

	if err := t.forwardIfNotOwner(ctx, entry); err != nil {
		return entry, err
	}
	return entry, nil
}

// UpdateLocations implements transport.Handler: this is what a peer's
// forwarded entries land on. It merges locally, then continues
// propagation toward the DHT shard owner if this machine isn't already
// it -- the same rule whether this machine is acting as ring leader
// receiving a worker's forward, or as the DHT owner itself (in which
// case forwardIfNotOwner is a no-op and propagation stops here).
func (t *Tracker) UpdateLocations(ctx context.Context, entries []content.Entry) error {
	t.local.UpdateLocations(entries)
	t.metrics.mergeTotal.Add(float64(len(entries)))

	var firstErr error
	for _, e := range entries {
		if err := t.forwardIfNotOwner(ctx, e); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}

func (t *Tracker) forwardIfNotOwner(ctx context.Context, entry content.Entry) error {
	owner, err := t.shards.Shard(entry.Hash)
	if err != nil {
		return err
	}
	if owner == t.self {
		return nil
	}
	return t.sendUpdate(ctx, owner, []content.Entry{entry})
}

func (t *Tracker) sendUpdate(ctx context.Context, target machine.ID, entries []content.Entry) error {
	client, err := t.peers.Client(target)
	if err != nil {
		return err
	}
	return t.withRetry(ctx, trackererr.Transient, func(ctx context.Context) error {
		return client.UpdateLocations(ctx, entries)
	})
}

// withRetry runs fn, retrying Transient failures with exponential
// backoff up to cfg.MaxAttempts, each attempt bounded by MaxRemoteWait.
// PermanentRejected and Corrupted surface immediately; Cancelled
// surfaces immediately and is never retried.
func (t *Tracker) withRetry(ctx context.Context, recordKindOnFailure trackererr.Kind, fn func(context.Context) error) error {
	backoff := t.cfg.InitialBackoff
	var lastErr error
	for attempt := 1; attempt <= t.cfg.MaxAttempts; attempt++ {
		if err := ctx.Err(); err != nil {
			return trackererr.Wrap(trackererr.Cancelled, err, "cancelled before attempt %d", attempt)
		}

		callCtx, cancel := context.WithTimeout(ctx, t.cfg.MaxRemoteWait)
		started := time.Now()
		err := fn(callCtx)
		t.metrics.rpcDuration.Observe(time.Since(started).Seconds())
		cancel()

		if err == nil {
			return nil
		}
		lastErr = err
		t.metrics.rpcFailures.WithLabelValues(trackererr.KindOf(err).String()).Inc()

		if !trackererr.Is(err, trackererr.Transient) {
			return err
		}
		if attempt == t.cfg.MaxAttempts {
			break
		}
		select {
		case <-time.After(backoff):
		case <-ctx.Done():
			return trackererr.Wrap(trackererr.Cancelled, ctx.Err(), "retry wait cancelled")
		}
		backoff *= 2
		if backoff > t.cfg.MaxRemoteWait {
			backoff = t.cfg.MaxRemoteWait
		}
	}
	return lastErr
}

// Local exposes the underlying Local tracker for direct local-only
// queries (GetSequenceNumber, etc.) that never need to leave the
// machine.
func (t *Tracker) Local() *tracker.Local { return t.local }
