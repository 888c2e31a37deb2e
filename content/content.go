// Package content implements the Content Entry merge algebra: a
// state-based CRDT over per-hash location metadata. Merge is idempotent,
// commutative, and associative by construction, so replicas converge
// regardless of delivery order.
package content

import (
	"sort"

	"trackerd/machine"
	"trackerd/stamp"
)

// UnknownSize is the sentinel for "size not yet observed".
const UnknownSize int64 = -1

// Entry is the merged per-hash record: the latest surviving stamped
// operation per machine, plus the largest non-negative size observed.
type Entry struct {
	Hash       string
	Size       int64
	Operations []stamp.Stamped[machine.ID]
}

// Empty returns a fresh, presence-free Entry for hash.
func Empty(hash string) Entry {
	return Entry{Hash: hash, Size: UnknownSize}
}

// Contains reports whether m's latest surviving operation is an Add.
func (e Entry) Contains(m machine.ID) bool {
	for _, op := range e.Operations {
		if op.Value == m {
			return op.Stamp.Op == stamp.Add
		}
	}
	return false
}

// Tombstone reports whether m's latest surviving operation is a Delete.
func (e Entry) Tombstone(m machine.ID) bool {
	for _, op := range e.Operations {
		if op.Value == m {
			return op.Stamp.Op == stamp.Delete
		}
	}
	return false
}

// IsEmpty reports that no machine currently has a surviving Add.
func (e Entry) IsEmpty() bool {
	for _, op := range e.Operations {
		if op.Stamp.Op == stamp.Add {
			return false
		}
	}
	return true
}

// Single builds an Entry carrying exactly one machine's stamped operation,
// as produced by a local change.
func Single(hash string, size int64, m machine.ID, st stamp.Stamp) Entry {
	return Entry{
		Hash:       hash,
		Size:       size,
		Operations: []stamp.Stamped[machine.ID]{{Stamp: st, Value: m}},
	}
}

// Merge combines two Content Entries for the same hash into the entry a
// fully-informed observer of both would hold: the larger known size, and
// for every machine appearing in either, its operation with the greatest
// stamp. Merge is idempotent, commutative, and associative.
func Merge(a, b Entry) Entry {
	hash := a.Hash
	if hash == "" {
		hash = b.Hash
	}

	latest := make(map[machine.ID]stamp.Stamped[machine.ID], len(a.Operations)+len(b.Operations))
	absorb := func(ops []stamp.Stamped[machine.ID]) {
		for _, op := range ops {
			if cur, ok := latest[op.Value]; !ok || op.Stamp.GreaterThan(cur.Stamp) {
				latest[op.Value] = op
			}
		}
	}
	absorb(a.Operations)
	absorb(b.Operations)

	ops := make([]stamp.Stamped[machine.ID], 0, len(latest))
	for _, op := range latest {
		ops = append(ops, op)
	}
	sort.Slice(ops, func(i, j int) bool { return ops[i].Value < ops[j].Value })

	return Entry{Hash: hash, Size: mergeSize(a.Size, b.Size), Operations: ops}
}

// MergeAll folds Merge over a slice of entries sharing a hash, returning
// an Empty entry for that hash if the slice is empty.
func MergeAll(hash string, entries []Entry) Entry {
	result := Empty(hash)
	for _, e := range entries {
		result = Merge(result, e)
	}
	return result
}

func mergeSize(a, b int64) int64 {
	if a == UnknownSize {
		return b
	}
	if b == UnknownSize {
		return a
	}
	if a > b {
		return a
	}
	return b
}
