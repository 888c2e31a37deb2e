package cluster

import (
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	"trackerd/machine"
)

// Registry owns the live Snapshot for one running machine and fans out
// shape changes to subscribers. The current Snapshot is held in an
// atomic.Pointer so readers -- Snapshot() and anything built on it, like
// the shard manager's membership view -- never block behind a writer; a
// mutex serializes each mutator's read-modify-write window and the
// subscriber notification that follows it, so concurrent callers don't
// race on next-machine-id or reclamation and notifications go out in the
// order the changes were accepted.
type Registry struct {
	writeMu sync.Mutex
	current atomic.Pointer[Snapshot]

	subMu sync.Mutex
	subs  []func(Snapshot)

	logger *zap.Logger
}

// NewRegistry returns a Registry seeded with an empty cluster state.
func NewRegistry(logger *zap.Logger) *Registry {
	r := &Registry{logger: logger}
	empty := Empty()
	r.current.Store(&empty)
	return r
}

// Snapshot returns the current cluster state. It never blocks on a
// concurrent writer.
func (r *Registry) Snapshot() Snapshot {
	return *r.current.Load()
}

// Subscribe registers fn to be called, synchronously on the calling
// mutator's goroutine, after any record is added, changes state, or
// flips availability. Delivery order matches acceptance order. fn runs
// while the Registry's write lock is held, so it must not call the
// Registry's mutators.
func (r *Registry) Subscribe(fn func(Snapshot)) {
	r.subMu.Lock()
	defer r.subMu.Unlock()
	r.subs = append(r.subs, fn)
}

func (r *Registry) notify(next Snapshot) {
	r.subMu.Lock()
	subs := make([]func(Snapshot), len(r.subs))
	copy(subs, r.subs)
	r.subMu.Unlock()

	for _, fn := range subs {
		fn(next)
	}
}

// apply performs the copy-on-write swap and notifies subscribers if the
// shape actually changed. mutate must be pure: given the currently-held
// snapshot, return the replacement.
func (r *Registry) apply(mutate func(Snapshot) Snapshot) Snapshot {
	r.writeMu.Lock()
	defer r.writeMu.Unlock()
	prev := *r.current.Load()
	next := mutate(prev)
	r.current.Store(&next)

	if !sameShape(prev, next) {
		r.notify(next)
	}
	return next
}

func sameShape(a, b Snapshot) bool {
	if a.nextMachineID != b.nextMachineID || len(a.records) != len(b.records) {
		return false
	}
	for id, ra := range a.records {
		rb, ok := b.records[id]
		if !ok || ra.State != rb.State || ra.Location != rb.Location {
			return false
		}
	}
	return true
}

// RegisterMachine is Snapshot.RegisterMachine applied against the
// Registry's live state.
func (r *Registry) RegisterMachine(loc machine.Location, now time.Time, reclaimThreshold time.Duration) machine.ID {
	var id machine.ID
	r.apply(func(s Snapshot) Snapshot {
		next, assigned := s.RegisterMachine(loc, now, reclaimThreshold)
		id = assigned
		return next
	})
	if r.logger != nil {
		r.logger.Debug("registered machine", zap.Uint32("id", uint32(id)), zap.String("location", string(loc)))
	}
	return id
}

// ForceRegisterMachine is Snapshot.ForceRegisterMachine applied against
// the Registry's live state.
func (r *Registry) ForceRegisterMachine(id machine.ID, loc machine.Location, now time.Time) {
	r.apply(func(s Snapshot) Snapshot { return s.ForceRegisterMachine(id, loc, now) })
}

// Heartbeat is Snapshot.Heartbeat applied against the Registry's live
// state.
func (r *Registry) Heartbeat(id machine.ID, now time.Time, desiredState *State, stats *HostStats) (State, error) {
	var prev State
	var err error
	r.apply(func(s Snapshot) Snapshot {
		next, p, e := s.Heartbeat(id, now, desiredState, stats)
		prev, err = p, e
		if e != nil {
			return s
		}
		return next
	})
	return prev, err
}

// TransitionInactiveMachines is Snapshot.TransitionInactiveMachines
// applied against the Registry's live state.
func (r *Registry) TransitionInactiveMachines(cfg LivenessConfig, now time.Time) {
	r.apply(func(s Snapshot) Snapshot { return s.TransitionInactiveMachines(cfg, now) })
}

// RegisterMany is Snapshot.RegisterMany applied against the Registry's
// live state.
func (r *Registry) RegisterMany(locations []machine.Location, now time.Time, reclaimThreshold time.Duration) []machine.ID {
	var ids []machine.ID
	r.apply(func(s Snapshot) Snapshot {
		next, assigned := s.RegisterMany(locations, now, reclaimThreshold)
		ids = assigned
		return next
	})
	return ids
}
