package stamp

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestCompareOrdersBySeqFirst(t *testing.T) {
	now := time.Now()
	earlier := New(1, now.Add(time.Hour), Add)
	later := New(2, now, Add)

	assert.True(t, later.GreaterThan(earlier))
	assert.Equal(t, -1, earlier.Compare(later))
}

func TestCompareOrdersByTimestampWhenSeqTies(t *testing.T) {
	now := time.Now()
	a := New(5, now, Add)
	b := New(5, now.Add(time.Second), Add)

	assert.True(t, b.GreaterThan(a))
}

func TestCompareDeleteDominatesAddAtEqualSeqAndTs(t *testing.T) {
	now := time.Now()
	a := New(5, now, Add)
	d := New(5, now, Delete)

	assert.True(t, d.GreaterThan(a))
	assert.Equal(t, 0, a.Compare(a))
}

func TestCompareReflexive(t *testing.T) {
	s := New(1, time.Now(), Delete)
	assert.Equal(t, 0, s.Compare(s))
	assert.False(t, s.GreaterThan(s))
}

func TestOpString(t *testing.T) {
	assert.Equal(t, "Add", Add.String())
	assert.Equal(t, "Delete", Delete.String())
}
