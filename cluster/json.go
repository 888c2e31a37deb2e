package cluster

import (
	"encoding/json"
	"fmt"
	"time"

	"trackerd/machine"
)

// utcLayout drops the trailing "Z"/offset that time.RFC3339 would add and
// trims unused fractional digits, matching the contract's example
// "0001-01-01T00:00:00" exactly for a zero-value time.
const utcLayout = "2006-01-02T15:04:05.999999999"

func marshalState(s State) ([]byte, error) {
	return json.Marshal(s.String())
}

func unmarshalState(b []byte) (State, error) {
	var name string
	if err := json.Unmarshal(b, &name); err != nil {
		return 0, err
	}
	switch name {
	case "Open":
		return Open, nil
	case "Closed":
		return Closed, nil
	case "DeadUnavailable":
		return DeadUnavailable, nil
	case "DeadExpired":
		return DeadExpired, nil
	default:
		return 0, fmt.Errorf("cluster: unknown machine state %q", name)
	}
}

// MarshalJSON renders s as one of the four contract state names.
func (s State) MarshalJSON() ([]byte, error) { return marshalState(s) }

// UnmarshalJSON parses one of the four contract state names.
func (s *State) UnmarshalJSON(b []byte) error {
	v, err := unmarshalState(b)
	if err != nil {
		return err
	}
	*s = v
	return nil
}

type recordJSON struct {
	Id                   machine.ID
	Location             machine.Location
	State                State
	LastHeartbeatTimeUtc string
	// LastKnownStats is additive: older readers that don't know this
	// field ignore it on decode, per section 6's unknown-fields rule.
	LastKnownStats *HostStats `json:",omitempty"`
}

type snapshotJSON struct {
	NextMachineId machine.ID
	Records       []recordJSON
}

// MarshalJSON renders the snapshot in the exact shape of the cluster
// state contract: {NextMachineId, Records:[{Id, Location, State,
// LastHeartbeatTimeUtc}]}.
func (s Snapshot) MarshalJSON() ([]byte, error) {
	out := snapshotJSON{NextMachineId: s.nextMachineID}
	for _, r := range s.records {
		out.Records = append(out.Records, recordJSON{
			Id:                   r.ID,
			Location:             r.Location,
			State:                r.State,
			LastHeartbeatTimeUtc: r.LastHeartbeatTimeUtc.UTC().Format(utcLayout),
			LastKnownStats:       r.LastKnownStats,
		})
	}
	// Keep output deterministic: sort by id ascending.
	for i := 1; i < len(out.Records); i++ {
		for j := i; j > 0 && out.Records[j-1].Id > out.Records[j].Id; j-- {
			out.Records[j-1], out.Records[j] = out.Records[j], out.Records[j-1]
		}
	}
	return json.Marshal(out)
}

// UnmarshalJSON parses the cluster state contract shape. Unknown fields
// in the input are ignored, as encoding/json does by default for fields
// it doesn't recognize on the target struct.
func (s *Snapshot) UnmarshalJSON(b []byte) error {
	var in snapshotJSON
	if err := json.Unmarshal(b, &in); err != nil {
		return err
	}
	records := make(map[machine.ID]Record, len(in.Records))
	for _, r := range in.Records {
		ts, err := parseUtc(r.LastHeartbeatTimeUtc)
		if err != nil {
			return fmt.Errorf("cluster: record %d: %w", r.Id, err)
		}
		records[r.Id] = Record{
			ID:                   r.Id,
			Location:             r.Location,
			State:                r.State,
			LastHeartbeatTimeUtc: ts,
			LastKnownStats:       r.LastKnownStats,
		}
	}
	s.nextMachineID = in.NextMachineId
	s.records = records
	return nil
}

func parseUtc(s string) (time.Time, error) {
	if s == "" {
		return time.Time{}, nil
	}
	if t, err := time.Parse(utcLayout, s); err == nil {
		return t, nil
	}
	return time.Parse(time.RFC3339Nano, s)
}
