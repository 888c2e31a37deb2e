package cluster

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"trackerd/machine"
)

func TestRegisterMachineAssignsSequentialIds(t *testing.T) {
	s := Empty()
	now := time.Now()

	s, id1 := s.RegisterMachine("loc-a", now, 0)
	s, id2 := s.RegisterMachine("loc-b", now, 0)

	assert.Equal(t, machine.ID(1), id1)
	assert.Equal(t, machine.ID(2), id2)
	assert.Equal(t, machine.ID(3), s.NextMachineID())
}

func TestRegisterMachineIsIdempotentForSameLocation(t *testing.T) {
	s := Empty()
	now := time.Now()

	s, id1 := s.RegisterMachine("loc-a", now, 0)
	s, id2 := s.RegisterMachine("loc-a", now.Add(time.Minute), 0)

	assert.Equal(t, id1, id2)
}

func TestRegisterMachineNeverReclaimsOpenOrClosed(t *testing.T) {
	s := Empty()
	now := time.Now()
	s, id1 := s.RegisterMachine("loc-a", now, 0)
	require.Equal(t, machine.ID(1), id1)

	closed := Closed
	s, _, err := s.Heartbeat(id1, now, &closed, nil)
	require.NoError(t, err)

	// loc-a's record is Closed, not dead: a new location must not reclaim id1.
	s, id2 := s.RegisterMachine("loc-b", now, 0)
	assert.NotEqual(t, id1, id2)
	assert.Equal(t, machine.ID(2), id2)
}

func TestRegisterMachineReclaimsSmallestDeadIdPastThreshold(t *testing.T) {
	s := Empty()
	start := time.Now()
	s, id1 := s.RegisterMachine("loc-a", start, 0)
	s, id2 := s.RegisterMachine("loc-b", start, 0)
	require.Equal(t, machine.ID(1), id1)
	require.Equal(t, machine.ID(2), id2)

	dead := DeadUnavailable
	s, _, err := s.Heartbeat(id1, start, &dead, nil)
	require.NoError(t, err)
	s, _, err = s.Heartbeat(id2, start, &dead, nil)
	require.NoError(t, err)

	later := start.Add(time.Hour)
	s, reclaimed := s.RegisterMachine("loc-c", later, 10*time.Minute)

	assert.Equal(t, machine.ID(1), reclaimed)
	rec, ok := s.Record(machine.ID(1))
	require.True(t, ok)
	assert.Equal(t, machine.Location("loc-c"), rec.Location)
	assert.Equal(t, Open, rec.State)
}

func TestRegisterMachineRespectsReclaimThreshold(t *testing.T) {
	s := Empty()
	start := time.Now()
	s, id1 := s.RegisterMachine("loc-a", start, 0)

	dead := DeadExpired
	s, _, err := s.Heartbeat(id1, start, &dead, nil)
	require.NoError(t, err)

	soon := start.Add(time.Minute)
	s, id2 := s.RegisterMachine("loc-b", soon, 10*time.Minute)

	// Not enough time has elapsed since the dead record's last heartbeat:
	// a fresh id is allocated instead of reclaiming id1.
	assert.Equal(t, machine.ID(2), id2)
}

func TestHeartbeatUnknownMachine(t *testing.T) {
	s := Empty()
	_, _, err := s.Heartbeat(machine.ID(99), time.Now(), nil, nil)
	require.Error(t, err)
}

func TestHeartbeatAfterReclaimBelongsToNewLocation(t *testing.T) {
	s := Empty()
	start := time.Now()
	s, id1 := s.RegisterMachine("loc-a", start, 0)

	dead := DeadUnavailable
	s, _, err := s.Heartbeat(id1, start, &dead, nil)
	require.NoError(t, err)

	later := start.Add(time.Hour)
	s, reclaimed := s.RegisterMachine("loc-b", later, time.Minute)
	require.Equal(t, id1, reclaimed)

	// id1 now belongs to loc-b; a heartbeat carrying only the id (as
	// Heartbeat's signature does) updates loc-b's record, since Heartbeat has no
	// way to know the caller believes itself to still be loc-a.
	s, _, err = s.Heartbeat(id1, later.Add(time.Second), nil, nil)
	require.NoError(t, err)

	rec, _ := s.Record(id1)
	assert.Equal(t, machine.Location("loc-b"), rec.Location)
}

func TestTransitionInactiveMachinesPriorityOrder(t *testing.T) {
	cfg := LivenessConfig{
		ActiveToClosed:      time.Minute,
		ActiveToUnavailable: 2 * time.Minute,
		ActiveToExpired:     3 * time.Minute,
		ClosedToExpired:     5 * time.Minute,
	}
	start := time.Now()
	s := Empty()
	s, id := s.RegisterMachine("loc-a", start, 0)

	// Inactive long enough to skip Closed entirely.
	later := start.Add(4 * time.Minute)
	s = s.TransitionInactiveMachines(cfg, later)

	rec, ok := s.Record(id)
	require.True(t, ok)
	assert.Equal(t, DeadExpired, rec.State)
}

func TestTransitionInactiveMachinesToClosed(t *testing.T) {
	cfg := LivenessConfig{
		ActiveToClosed:      time.Minute,
		ActiveToUnavailable: 10 * time.Minute,
		ActiveToExpired:     20 * time.Minute,
		ClosedToExpired:     30 * time.Minute,
	}
	start := time.Now()
	s := Empty()
	s, id := s.RegisterMachine("loc-a", start, 0)

	s = s.TransitionInactiveMachines(cfg, start.Add(90*time.Second))

	rec, _ := s.Record(id)
	assert.Equal(t, Closed, rec.State)
}

func TestTransitionInactiveMachinesLeavesDeadStatesAlone(t *testing.T) {
	cfg := LivenessConfig{ActiveToClosed: time.Second, ActiveToUnavailable: time.Second, ActiveToExpired: time.Second, ClosedToExpired: time.Second}
	start := time.Now()
	s := Empty()
	s, id := s.RegisterMachine("loc-a", start, 0)

	dead := DeadUnavailable
	s, _, err := s.Heartbeat(id, start, &dead, nil)
	require.NoError(t, err)

	s = s.TransitionInactiveMachines(cfg, start.Add(time.Hour))

	rec, _ := s.Record(id)
	assert.Equal(t, DeadUnavailable, rec.State)
}
