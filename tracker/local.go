// Package tracker implements the Local Content Tracker: an in-memory
// per-hash store with idempotent merge semantics, striped by hash so
// contention is proportional to hot-hash overlap rather than total hash
// count.
package tracker

import (
	"sync"

	"github.com/howeyc/crc16"

	"trackerd/clock"
	"trackerd/content"
	"trackerd/machine"
	"trackerd/stamp"
)

// stripeCount is S in "stripe by hash % S": the number of independent
// locks guarding the hash space.
const stripeCount = 64

type stripe struct {
	mu      sync.RWMutex
	entries map[string]content.Entry
}

// Local is the Local Content Tracker for one machine. It is purely
// local: no method here can fail except on programming error, and
// readers always observe a fully-merged entry, never a torn one, because
// every read and write of a given hash takes the same stripe lock.
type Local struct {
	self    machine.ID
	clock   clock.Clock
	stripes [stripeCount]*stripe
}

// NewLocal returns a Local tracker for self, using clk to mint stamps.
func NewLocal(self machine.ID, clk clock.Clock) *Local {
	l := &Local{self: self, clock: clk}
	for i := range l.stripes {
		l.stripes[i] = &stripe{entries: map[string]content.Entry{}}
	}
	return l
}

// Self returns the machine id this tracker mints local stamps under.
func (l *Local) Self() machine.ID { return l.self }

func (l *Local) stripeFor(hash string) *stripe {
	idx := int(crc16.Checksum([]byte(hash), crc16.IBMTable)) % stripeCount
	return l.stripes[idx]
}

// UpdateLocations merges each incoming entry into local state.
func (l *Local) UpdateLocations(entries []content.Entry) {
	for _, e := range entries {
		s := l.stripeFor(e.Hash)
		s.mu.Lock()
		cur, ok := s.entries[e.Hash]
		if !ok {
			cur = content.Empty(e.Hash)
		}
		s.entries[e.Hash] = content.Merge(cur, e)
		s.mu.Unlock()
	}
}

// GetLocations returns one Content Entry per requested hash, in the same
// order, Empty for any hash with no local state.
func (l *Local) GetLocations(hashes []string) []content.Entry {
	out := make([]content.Entry, len(hashes))
	for i, h := range hashes {
		s := l.stripeFor(h)
		s.mu.RLock()
		e, ok := s.entries[h]
		s.mu.RUnlock()
		if !ok {
			e = content.Empty(h)
		}
		out[i] = e
	}
	return out
}

// GetSequenceNumber returns the highest sequence number observed for
// (hash, m), 0 if none.
func (l *Local) GetSequenceNumber(hash string, m machine.ID) uint64 {
	s := l.stripeFor(hash)
	s.mu.RLock()
	defer s.mu.RUnlock()
	e, ok := s.entries[hash]
	if !ok {
		return 0
	}
	for _, op := range e.Operations {
		if op.Value == m {
			return op.Stamp.Seq
		}
	}
	return 0
}

// ProcessLocalChange mints a stamp for self -- sequence number one past
// the last one this tracker issued for (hash, self) -- and merges the
// resulting single-operation entry into local state. The stripe lock
// held across the read-increment-write sequence is what serializes
// minting per (hash, self) as required.
func (l *Local) ProcessLocalChange(op stamp.Op, hash string, size int64) content.Entry {
	s := l.stripeFor(hash)
	s.mu.Lock()
	defer s.mu.Unlock()

	cur, ok := s.entries[hash]
	if !ok {
		cur = content.Empty(hash)
	}
	var seq uint64
	for _, o := range cur.Operations {
		if o.Value == l.self {
			seq = o.Stamp.Seq
			break
		}
	}

	st := stamp.New(seq+1, l.clock.Now(), op)
	single := content.Single(hash, size, l.self, st)
	s.entries[hash] = content.Merge(cur, single)
	return single
}
