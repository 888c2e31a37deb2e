// Package buildring implements the Ring Coordinator: a small group of
// machines cooperating on one build, with a designated leader and no
// election protocol beyond registration order.
package buildring

import (
	"sync"
	"time"

	"github.com/google/uuid"

	"trackerd/cluster"
	"trackerd/machine"
)

// Ring is a build group: builders in registration order, leader always
// builders[0].
type Ring struct {
	mu       sync.RWMutex
	ID       string
	builders []machine.ID
}

// New creates a ring with the given builders already registered, in
// order.
func New(builders []machine.ID) *Ring {
	r := &Ring{ID: uuid.NewString(), builders: make([]machine.ID, len(builders))}
	copy(r.builders, builders)
	return r
}

// Leader returns builders[0], or 0 if the ring is empty.
func (r *Ring) Leader() machine.ID {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if len(r.builders) == 0 {
		return 0
	}
	return r.builders[0]
}

// IsLeader reports whether id is the current leader.
func (r *Ring) IsLeader(id machine.ID) bool {
	return r.Leader() == id
}

// Builders returns a defensive copy of the current builder order.
func (r *Ring) Builders() []machine.ID {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]machine.ID, len(r.builders))
	copy(out, r.builders)
	return out
}

// Join appends id to the ring if it isn't already a member. A newly
// joined builder never displaces the current leader.
func (r *Ring) Join(id machine.ID) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, b := range r.builders {
		if b == id {
			return
		}
	}
	r.builders = append(r.builders, id)
}

// Depart removes id from the ring. If id was the leader, the next
// builder in order becomes leader -- no election beyond that.
func (r *Ring) Depart(id machine.ID) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for i, b := range r.builders {
		if b == id {
			r.builders = append(r.builders[:i:i], r.builders[i+1:]...)
			return
		}
	}
}

// removeRing marks every builder in r DeadUnavailable in the cluster
// registry and empties the ring. Availability propagates to the shard
// manager on the registry's next notification rather than immediately.
func removeRing(r *Ring, registry *cluster.Registry, now time.Time) {
	r.mu.Lock()
	builders := make([]machine.ID, len(r.builders))
	copy(builders, r.builders)
	r.builders = nil
	r.mu.Unlock()

	dead := cluster.DeadUnavailable
	for _, id := range builders {
		registry.Heartbeat(id, now, &dead, nil)
	}
}
