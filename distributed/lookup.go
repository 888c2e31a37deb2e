package distributed

import (
	"context"

	"trackerd/content"
	"trackerd/machine"
	"trackerd/stamp"
	"trackerd/trackererr"
)

// GetLocations implements the lookup path and transport.Handler: query
// local, then the ring leader, then the DHT shard owner, merging
// responses via the section 4.1 algebra at each step. It never returns
// an error as long as at least one hash ends up with non-empty data, or
// no hop produced a non-transient failure.
func (t *Tracker) GetLocations(ctx context.Context, hashes []string) ([]content.Entry, error) {
	results := t.local.GetLocations(hashes)
	var diagnostics []error
	anyNonEmpty := containsNonEmpty(results)

	pending := pendingIndices(results, t.cfg.MinReachableLocations)
	if len(pending) > 0 {
		if leader, ok := t.currentLeader(); ok && leader != t.self {
			queried := subset(hashes, pending)
			remote, err := t.queryRemote(ctx, leader, queried)
			if err != nil {
				diagnostics = append(diagnostics, err)
			} else {
				for j, idx := range pending {
					results[idx] = content.Merge(results[idx], remote[j])
				}
			}
		}
	}

	pending = pendingIndices(results, t.cfg.MinReachableLocations)
	for _, idx := range pending {
		owner, err := t.shards.Shard(hashes[idx])
		if err != nil {
			diagnostics = append(diagnostics, err)
			continue
		}
		if owner == t.self {
			continue
		}
		remote, err := t.queryRemote(ctx, owner, []string{hashes[idx]})
		if err != nil {
			diagnostics = append(diagnostics, err)
			continue
		}
		results[idx] = content.Merge(results[idx], remote[0])
	}

	anyNonEmpty = anyNonEmpty || containsNonEmpty(results)
	if anyNonEmpty || len(diagnostics) == 0 {
		return results, nil
	}
	return results, aggregateFailure(diagnostics)
}

// GetLocationsWithFallback wraps GetLocations with the backing-store
// read-through called for once a ring has been removed (section 6,
// scenario S4): for any hash that still resolves empty after the
// local/leader/DHT path and a backing store is configured, it asks the
// backing store whether the hash might exist and, if so, folds in
// whatever it has on record.
func (t *Tracker) GetLocationsWithFallback(ctx context.Context, hashes []string) ([]content.Entry, error) {
	results, err := t.GetLocations(ctx, hashes)
	if t.backing == nil {
		return results, err
	}
	for i, e := range results {
		if !e.IsEmpty() {
			continue
		}
		might, mErr := t.backing.MightExist(hashes[i])
		if mErr != nil || !might {
			continue
		}
		stored, fErr := t.backing.Fetch(hashes[i])
		if fErr != nil {
			continue
		}
		results[i] = content.Merge(e, stored)
	}
	return results, err
}

func (t *Tracker) queryRemote(ctx context.Context, target machine.ID, hashes []string) ([]content.Entry, error) {
	client, err := t.peers.Client(target)
	if err != nil {
		return nil, err
	}
	var result []content.Entry
	err = t.withRetry(ctx, trackererr.Transient, func(ctx context.Context) error {
		r, callErr := client.GetLocations(ctx, hashes)
		if callErr != nil {
			return callErr
		}
		result = r
		return nil
	})
	if err == nil {
		return result, nil
	}
	if trackererr.Is(err, trackererr.Transient) {
		// Retries exhausted: this hop is Unreachable, an empty
		// contribution that must never abort the overall lookup.
		return emptyEntries(hashes), nil
	}
	return nil, err
}

func presentLocationCount(e content.Entry) int {
	n := 0
	for _, op := range e.Operations {
		if op.Stamp.Op == stamp.Add {
			n++
		}
	}
	return n
}

func pendingIndices(results []content.Entry, k int) []int {
	var idx []int
	for i, e := range results {
		if presentLocationCount(e) < k {
			idx = append(idx, i)
		}
	}
	return idx
}

func subset(hashes []string, idx []int) []string {
	out := make([]string, len(idx))
	for i, j := range idx {
		out[i] = hashes[j]
	}
	return out
}

func emptyEntries(hashes []string) []content.Entry {
	out := make([]content.Entry, len(hashes))
	for i, h := range hashes {
		out[i] = content.Empty(h)
	}
	return out
}

func containsNonEmpty(entries []content.Entry) bool {
	for _, e := range entries {
		if !e.IsEmpty() {
			return true
		}
	}
	return false
}

func aggregateFailure(diagnostics []error) error {
	for _, d := range diagnostics {
		if !trackererr.Is(d, trackererr.Transient) {
			return d
		}
	}
	return diagnostics[0]
}
