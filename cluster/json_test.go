package cluster

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"trackerd/machine"
)

func TestMarshalMatchesContractExample(t *testing.T) {
	s := Empty()
	s = s.ForceRegisterMachine(machine.ID(1), "grpc://node:1234/", time.Time{})

	out, err := json.Marshal(s)
	require.NoError(t, err)

	want := `{"NextMachineId":2,"Records":[{"Id":1,"Location":"grpc://node:1234/","State":"Open","LastHeartbeatTimeUtc":"0001-01-01T00:00:00"}]}`
	assert.JSONEq(t, want, string(out))
}

func TestRoundTripPreservesValue(t *testing.T) {
	s := Empty()
	now := time.Date(2026, 3, 4, 5, 6, 7, 0, time.UTC)
	s = s.ForceRegisterMachine(machine.ID(1), "grpc://a:1/", now)
	s = s.ForceRegisterMachine(machine.ID(2), "grpc://b:1/", now)

	out, err := json.Marshal(s)
	require.NoError(t, err)

	var restored Snapshot
	require.NoError(t, json.Unmarshal(out, &restored))

	assert.Equal(t, s.NextMachineID(), restored.NextMachineID())
	rec1, ok := restored.Record(machine.ID(1))
	require.True(t, ok)
	assert.Equal(t, machine.Location("grpc://a:1/"), rec1.Location)
	assert.True(t, rec1.LastHeartbeatTimeUtc.Equal(now))
}

func TestUnmarshalIgnoresUnknownFields(t *testing.T) {
	raw := `{"NextMachineId":2,"Records":[{"Id":1,"Location":"grpc://a:1/","State":"Open","LastHeartbeatTimeUtc":"0001-01-01T00:00:00","SomeFutureField":"x"}]}`

	var s Snapshot
	require.NoError(t, json.Unmarshal([]byte(raw), &s))

	rec, ok := s.Record(machine.ID(1))
	require.True(t, ok)
	assert.Equal(t, Open, rec.State)
}
