package random

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStreamIsReproducibleForFixedSeed(t *testing.T) {
	a := New(42)
	b := New(42)
	for i := 0; i < 100; i++ {
		require.Equal(t, a.Float64(), b.Float64(), "draw %d", i)
	}
	assert.Equal(t, int64(42), a.Seed())
}

func TestZeroSeedPicksTimeBasedSeed(t *testing.T) {
	s := New(0)
	assert.NotZero(t, s.Seed())
}

func TestDiceStaysInRange(t *testing.T) {
	s := New(7)
	seen := make(map[int]bool)
	for i := 0; i < 2000; i++ {
		v := s.Dice(5)
		require.GreaterOrEqual(t, v, 0)
		require.Less(t, v, 5)
		seen[v] = true
	}
	assert.Len(t, seen, 5)
	assert.Equal(t, 0, s.Dice(0))
}

func TestSignIsPlusOrMinusOne(t *testing.T) {
	s := New(3)
	for i := 0; i < 100; i++ {
		v := s.Sign()
		require.True(t, v == 1 || v == -1)
	}
}

func TestRestoreResumesAtSamePosition(t *testing.T) {
	s := New(99)
	for i := 0; i < 37; i++ {
		s.Float64()
	}
	s.NormFloat64()
	pos := s.Position()
	want := []float64{s.Float64(), s.Float64(), s.Float64()}

	restored := New(1)
	restored.Restore(99, pos)
	got := []float64{restored.Float64(), restored.Float64(), restored.Float64()}
	assert.Equal(t, want, got)
	assert.Equal(t, int64(99), restored.Seed())
}
