package buildring

import (
	"sync"
	"time"

	"trackerd/cluster"
	"trackerd/machine"
)

// Coordinator tracks every ring currently active across the datacenter
// and which ring, if any, each machine belongs to. A machine may be in
// exactly one ring at a time.
type Coordinator struct {
	mu       sync.RWMutex
	rings    map[string]*Ring
	memberOf map[machine.ID]string
}

// NewCoordinator returns an empty Coordinator.
func NewCoordinator() *Coordinator {
	return &Coordinator{rings: map[string]*Ring{}, memberOf: map[machine.ID]string{}}
}

// AddRing registers a new ring over builders and returns it.
func (c *Coordinator) AddRing(builders []machine.ID) *Ring {
	r := New(builders)
	c.mu.Lock()
	c.rings[r.ID] = r
	for _, b := range builders {
		c.memberOf[b] = r.ID
	}
	c.mu.Unlock()
	return r
}

// RemoveRing removes ringID wholesale: every machine in it is marked
// DeadUnavailable in registry and released from ring membership.
func (c *Coordinator) RemoveRing(ringID string, registry *cluster.Registry, now time.Time) {
	c.mu.Lock()
	r, ok := c.rings[ringID]
	if ok {
		delete(c.rings, ringID)
		for _, b := range r.Builders() {
			delete(c.memberOf, b)
		}
	}
	c.mu.Unlock()

	if ok {
		removeRing(r, registry, now)
	}
}

// RingFor returns the ring m currently belongs to, if any.
func (c *Coordinator) RingFor(m machine.ID) (*Ring, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	id, ok := c.memberOf[m]
	if !ok {
		return nil, false
	}
	return c.rings[id], true
}

// Ring returns the ring by id, if it exists.
func (c *Coordinator) Ring(ringID string) (*Ring, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	r, ok := c.rings[ringID]
	return r, ok
}
