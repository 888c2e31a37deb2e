package cluster

import (
	"time"

	"trackerd/machine"
	"trackerd/trackererr"
)

// RegisterMachine assigns location a machine id. If location already has
// a non-dead record, that record's id is returned unchanged. Otherwise,
// if some dead record's id has been inactive at least reclaimThreshold,
// the smallest such id is reused; else next-machine-id is allocated and
// incremented. Registration never reclaims an id that is still Open or
// Closed, matching the Open-questions resolution recorded in DESIGN.md:
// reclaimability is judged against the state actually stored in s, not a
// prediction of where a record is heading.
func (s Snapshot) RegisterMachine(loc machine.Location, now time.Time, reclaimThreshold time.Duration) (Snapshot, machine.ID) {
	for id, rec := range s.records {
		if rec.Location == loc && !IsDead(rec.State) {
			return s, id
		}
	}

	var reclaimID machine.ID
	reclaimable := false
	for id, rec := range s.records {
		if !IsDead(rec.State) {
			continue
		}
		if now.Sub(rec.LastHeartbeatTimeUtc) < reclaimThreshold {
			continue
		}
		if !reclaimable || id < reclaimID {
			reclaimID = id
			reclaimable = true
		}
	}

	next := s.clone()
	if reclaimable {
		next.records[reclaimID] = Record{ID: reclaimID, Location: loc, State: Open, LastHeartbeatTimeUtc: now}
		return next, reclaimID
	}

	id := s.nextMachineID
	next.nextMachineID = id + 1
	next.records[id] = Record{ID: id, Location: loc, State: Open, LastHeartbeatTimeUtc: now}
	return next, id
}

// ForceRegisterMachine unconditionally upserts id -> location, used only
// during migration from a legacy id scheme. next-machine-id is raised to
// max(next+1, id+1) so future RegisterMachine calls never collide with a
// forced id.
func (s Snapshot) ForceRegisterMachine(id machine.ID, loc machine.Location, now time.Time) Snapshot {
	next := s.clone()
	next.records[id] = Record{ID: id, Location: loc, State: Open, LastHeartbeatTimeUtc: now}
	candidate := s.nextMachineID + 1
	if id+1 > candidate {
		candidate = id + 1
	}
	next.nextMachineID = candidate
	return next
}

// Heartbeat updates id's last-heartbeat time and, if desiredState is
// non-nil, its state. It returns the updated Snapshot and the record's
// state prior to this call. Fails with UnknownMachine only if id is
// absent. A heartbeat for an id that has been reclaimed for a different
// location is not rejected: it updates the new holder's record, since
// nothing in the call identifies which location sent it.
func (s Snapshot) Heartbeat(id machine.ID, now time.Time, desiredState *State, stats *HostStats) (Snapshot, State, error) {
	rec, ok := s.records[id]
	if !ok {
		return s, 0, trackererr.New(trackererr.UnknownMachine, "machine %d not registered", id)
	}
	prev := rec.State

	next := s.clone()
	updated := rec
	updated.LastHeartbeatTimeUtc = now
	if desiredState != nil {
		updated.State = *desiredState
	}
	if stats != nil {
		updated.LastKnownStats = stats
	}
	next.records[id] = updated
	return next, prev, nil
}

// LivenessConfig carries the inactivity thresholds driving
// TransitionInactiveMachines, sourced from the host's configuration keys.
type LivenessConfig struct {
	ActiveToClosed      time.Duration
	ActiveToExpired     time.Duration
	ClosedToExpired     time.Duration
	ActiveToUnavailable time.Duration
}

// TransitionInactiveMachines applies the liveness state machine to every
// record. Expired thresholds are evaluated before Closed so that a record
// inactive long enough skips Closed and lands directly on DeadExpired;
// Unavailable is evaluated between the two since it is not specified to
// take priority over either.
func (s Snapshot) TransitionInactiveMachines(cfg LivenessConfig, now time.Time) Snapshot {
	next := s.clone()
	changed := false
	for id, rec := range s.records {
		newState := nextLivenessState(rec.State, now.Sub(rec.LastHeartbeatTimeUtc), cfg)
		if newState != rec.State {
			updated := rec
			updated.State = newState
			next.records[id] = updated
			changed = true
		}
	}
	if !changed {
		return s
	}
	return next
}

func nextLivenessState(state State, elapsed time.Duration, cfg LivenessConfig) State {
	switch state {
	case Open:
		switch {
		case elapsed >= cfg.ActiveToExpired:
			return DeadExpired
		case elapsed >= cfg.ActiveToUnavailable:
			return DeadUnavailable
		case elapsed >= cfg.ActiveToClosed:
			return Closed
		default:
			return Open
		}
	case Closed:
		switch {
		case elapsed >= cfg.ClosedToExpired:
			return DeadExpired
		case elapsed >= cfg.ActiveToUnavailable:
			return DeadUnavailable
		default:
			return Closed
		}
	default:
		return state
	}
}

// RegisterMany applies RegisterMachine to each location in order, folding
// the resulting Snapshot forward. Because RegisterMachine only ever
// reclaims ids in the dead set, no id whose record is still Open or
// Closed can be reassigned by this call.
func (s Snapshot) RegisterMany(locations []machine.Location, now time.Time, reclaimThreshold time.Duration) (Snapshot, []machine.ID) {
	cur := s
	ids := make([]machine.ID, 0, len(locations))
	for _, loc := range locations {
		next, id := cur.RegisterMachine(loc, now, reclaimThreshold)
		cur = next
		ids = append(ids, id)
	}
	return cur, ids
}
