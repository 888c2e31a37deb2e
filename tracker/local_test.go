package tracker

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"trackerd/clock"
	"trackerd/content"
	"trackerd/machine"
	"trackerd/stamp"
)

func fixedStart() time.Time {
	return time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
}

func TestProcessLocalChangeMintsMonotoneSequenceNumbers(t *testing.T) {
	l := NewLocal(machine.ID(1), clock.NewVirtual(fixedStart()))

	e1 := l.ProcessLocalChange(stamp.Add, "h1", 10)
	e2 := l.ProcessLocalChange(stamp.Delete, "h1", 10)
	e3 := l.ProcessLocalChange(stamp.Add, "h1", 10)

	assert.Equal(t, uint64(1), e1.Operations[0].Stamp.Seq)
	assert.Equal(t, uint64(2), e2.Operations[0].Stamp.Seq)
	assert.Equal(t, uint64(3), e3.Operations[0].Stamp.Seq)
}

func TestProcessLocalChangeSeparatesSequencesPerHash(t *testing.T) {
	l := NewLocal(machine.ID(1), clock.NewVirtual(fixedStart()))

	l.ProcessLocalChange(stamp.Add, "h1", 10)
	e := l.ProcessLocalChange(stamp.Add, "h2", 10)

	assert.Equal(t, uint64(1), e.Operations[0].Stamp.Seq)
}

func TestGetSequenceNumberTracksLatestMint(t *testing.T) {
	l := NewLocal(machine.ID(1), clock.NewVirtual(fixedStart()))
	l.ProcessLocalChange(stamp.Add, "h1", 10)
	l.ProcessLocalChange(stamp.Add, "h1", 10)

	assert.Equal(t, uint64(2), l.GetSequenceNumber("h1", machine.ID(1)))
	assert.Equal(t, uint64(0), l.GetSequenceNumber("h1", machine.ID(2)))
}

func TestUpdateLocationsMergesIntoExistingState(t *testing.T) {
	l := NewLocal(machine.ID(1), clock.NewVirtual(fixedStart()))
	local := l.ProcessLocalChange(stamp.Add, "h1", 10)

	remote := content.Single("h1", 10, machine.ID(2), stamp.New(1, fixedStart(), stamp.Add))
	l.UpdateLocations([]content.Entry{remote})

	results := l.GetLocations([]string{"h1"})
	require.Len(t, results, 1)
	assert.True(t, results[0].Contains(machine.ID(1)))
	assert.True(t, results[0].Contains(machine.ID(2)))
	_ = local
}

func TestGetLocationsReturnsEmptyForUnknownHash(t *testing.T) {
	l := NewLocal(machine.ID(1), clock.NewVirtual(fixedStart()))
	results := l.GetLocations([]string{"never-seen"})
	require.Len(t, results, 1)
	assert.True(t, results[0].IsEmpty())
}

func TestProcessLocalChangeConcurrentMintsAreSerialized(t *testing.T) {
	l := NewLocal(machine.ID(1), clock.NewVirtual(fixedStart()))
	const n = 100

	var wg sync.WaitGroup
	wg.Add(n)
	for i := 0; i < n; i++ {
		go func() {
			defer wg.Done()
			l.ProcessLocalChange(stamp.Add, "hot-hash", 10)
		}()
	}
	wg.Wait()

	assert.Equal(t, uint64(n), l.GetSequenceNumber("hot-hash", machine.ID(1)))
}
