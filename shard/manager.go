package shard

import (
	"sort"
	"sync"

	"trackerd/cluster"
	"trackerd/machine"
)

// Member is one entry in the shard manager's ordered membership view.
type Member struct {
	ID        machine.ID
	Location  machine.Location
	Available bool
}

// Manager exposes the ordered membership view and fires OnChange
// listeners whenever membership or availability changes, and answers
// Shard queries against the current ring.
type Manager struct {
	mu        sync.RWMutex
	members   []Member
	ring      *Ring
	listeners []func([]Member)
}

// NewManager returns an empty Manager; call Update (directly, or via
// Watch against a *cluster.Registry) to populate it.
func NewManager() *Manager {
	return &Manager{ring: BuildRing(nil)}
}

// Watch subscribes m to registry so every cluster-state
// change refreshes the shard manager's view automatically.
func Watch(m *Manager, registry *cluster.Registry) {
	m.Update(registry.Snapshot())
	registry.Subscribe(m.Update)
}

// Update recomputes the membership view and ring from a cluster
// Snapshot, firing OnChange listeners if the shape actually changed.
func (m *Manager) Update(snap cluster.Snapshot) {
	records := snap.Records()
	sort.Slice(records, func(i, j int) bool { return records[i].ID < records[j].ID })

	members := make([]Member, 0, len(records))
	for _, r := range records {
		members = append(members, Member{ID: r.ID, Location: r.Location, Available: cluster.IsAvailable(r.State)})
	}

	m.mu.Lock()
	changed := !sameMembers(m.members, members)
	m.members = members
	m.ring = BuildRing(members)
	listeners := m.listeners
	m.mu.Unlock()

	if changed {
		for _, fn := range listeners {
			fn(members)
		}
	}
}

// Members returns the current ordered membership view.
func (m *Manager) Members() []Member {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]Member, len(m.members))
	copy(out, m.members)
	return out
}

// OnChange registers fn to be called whenever membership or availability
// changes.
func (m *Manager) OnChange(fn func([]Member)) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.listeners = append(m.listeners, fn)
}

// Shard resolves key to its responsible machine under the current ring.
func (m *Manager) Shard(key string) (machine.ID, error) {
	m.mu.RLock()
	ring := m.ring
	m.mu.RUnlock()
	return ring.Resolve(key)
}

func sameMembers(a, b []Member) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}
