// Package shard implements the Shard Manager and its sharding scheme: a
// deterministic, stable mapping from a hash key to the machine currently
// responsible for it, built as a ring of virtual nodes so that adding or
// removing one machine moves only a small, bounded fraction of keys.
package shard

import (
	"fmt"
	"sort"

	"github.com/howeyc/crc16"

	"trackerd/machine"
	"trackerd/trackererr"
)

// vnodesPerMachine controls resharding stability: more virtual nodes per
// machine means a more even key distribution and a smaller fraction of
// keys disturbed by any single membership change.
const vnodesPerMachine = 32

type vnode struct {
	hash uint16
	id   machine.ID
}

// Ring is the sharding scheme's current membership view: a sorted set of
// virtual nodes over every available machine.
type Ring struct {
	vnodes []vnode
}

// BuildRing constructs a Ring over the available members of ms. Members
// with Available == false contribute no virtual nodes, so the scheme
// never resolves a key to an unavailable machine while any available one
// exists.
func BuildRing(ms []Member) *Ring {
	vnodes := make([]vnode, 0, len(ms)*vnodesPerMachine)
	for _, m := range ms {
		if !m.Available {
			continue
		}
		for i := 0; i < vnodesPerMachine; i++ {
			vnodes = append(vnodes, vnode{hash: hashKey(vnodeKey(m.Location, i)), id: m.ID})
		}
	}
	sort.Slice(vnodes, func(i, j int) bool { return vnodes[i].hash < vnodes[j].hash })
	return &Ring{vnodes: vnodes}
}

// Resolve returns the machine responsible for key: the first virtual
// node at or after key's hash, wrapping around the ring. It returns
// NoShards if no member is available.
func (r *Ring) Resolve(key string) (machine.ID, error) {
	if len(r.vnodes) == 0 {
		return 0, trackererr.New(trackererr.NoShards, "no available shards to resolve %q", key)
	}
	h := hashKey(key)
	idx := sort.Search(len(r.vnodes), func(i int) bool { return r.vnodes[i].hash >= h })
	if idx == len(r.vnodes) {
		idx = 0
	}
	return r.vnodes[idx].id, nil
}

func vnodeKey(loc machine.Location, i int) string {
	return fmt.Sprintf("%s#%d", loc, i)
}

func hashKey(s string) uint16 {
	return crc16.Checksum([]byte(s), crc16.IBMTable)
}
