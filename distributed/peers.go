// Package distributed implements the Distributed Tracker: the local
// tracker's owner, routing updates through the build ring to the
// datacenter-wide DHT shard owner and merging lookup responses back.
package distributed

import (
	"strings"
	"sync"

	"trackerd/cluster"
	"trackerd/machine"
	"trackerd/trackererr"
	"trackerd/transport"
)

// PeerDialer resolves a machine id to a transport client for its current
// location, caching one Client per id across calls. The cached Client
// still opens a fresh connection for every call.
type PeerDialer struct {
	registry *cluster.Registry
	clients  sync.Map // machine.ID -> *transport.Client
}

// NewPeerDialer returns a dialer resolving locations from registry.
func NewPeerDialer(registry *cluster.Registry) *PeerDialer {
	return &PeerDialer{registry: registry}
}

// Client returns the transport client for id, creating and caching one
// if this is the first call for that id. It fails with UnknownMachine if
// id has no record in the current cluster state.
func (d *PeerDialer) Client(id machine.ID) (*transport.Client, error) {
	if c, ok := d.clients.Load(id); ok {
		return c.(*transport.Client), nil
	}
	rec, ok := d.registry.Snapshot().Record(id)
	if !ok {
		return nil, trackererr.New(trackererr.UnknownMachine, "machine %d not in cluster state", id)
	}
	c := transport.NewClient(locationAddr(rec.Location))
	actual, _ := d.clients.LoadOrStore(id, c)
	return actual.(*transport.Client), nil
}

// Forget drops any cached client for id, used after a location changes
// (e.g. a reclaimed id) so a later call re-resolves it.
func (d *PeerDialer) Forget(id machine.ID) {
	d.clients.Delete(id)
}

func locationAddr(loc machine.Location) string {
	s := strings.TrimPrefix(string(loc), "grpc://")
	s = strings.TrimSuffix(s, "/")
	return s
}
