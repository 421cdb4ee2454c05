package random

import (
	"math/rand"
	"time"
)

// Source is the single sequential pseudo-random stream consumed by every
// stochastic operator of the classifier system.
type Source interface {
	// Float64 returns a uniform draw in [0,1).
	Float64() float64
	// NormFloat64 returns a standard normal draw.
	NormFloat64() float64
	// Dice returns an integer in [0,n).
	Dice(n int) int
	// Seed reports the seed the stream was started from.
	Seed() int64
}

// Stream is the math/rand backed Source. It counts the values drawn from
// the underlying generator so a stream can be restored to the same
// position later.
type Stream struct {
	seed int64
	src  *countingSource
	rng  *rand.Rand
}

// New starts a stream. A zero seed selects a time based one.
func New(seed int64) *Stream {
	if seed == 0 {
		seed = time.Now().UnixNano()
	}
	src := &countingSource{src: rand.NewSource(seed).(rand.Source64)}
	return &Stream{seed: seed, src: src, rng: rand.New(src)}
}

func (s *Stream) Float64() float64 {
	return s.rng.Float64()
}

func (s *Stream) NormFloat64() float64 {
	return s.rng.NormFloat64()
}

func (s *Stream) Dice(n int) int {
	if n <= 0 {
		return 0
	}
	v := int(s.rng.Float64() * float64(n))
	if v >= n {
		v = n - 1
	}
	return v
}

// Sign returns -1 or +1 with equal probability.
func (s *Stream) Sign() int {
	if s.rng.Float64() < 0.5 {
		return -1
	}
	return 1
}

func (s *Stream) Seed() int64 {
	return s.seed
}

// Position is the number of raw values drawn since the stream was seeded.
func (s *Stream) Position() uint64 {
	return s.src.drawn
}

// Restore reseeds the stream and fast-forwards it to position.
func (s *Stream) Restore(seed int64, position uint64) {
	s.seed = seed
	s.src.src.Seed(seed)
	s.src.drawn = 0
	s.rng = rand.New(s.src)
	for s.src.drawn < position {
		s.src.Int63()
	}
}

type countingSource struct {
	src   rand.Source64
	drawn uint64
}

func (c *countingSource) Int63() int64 {
	c.drawn++
	return c.src.Int63()
}

func (c *countingSource) Uint64() uint64 {
	c.drawn++
	return c.src.Uint64()
}

func (c *countingSource) Seed(seed int64) {
	c.drawn = 0
	c.src.Seed(seed)
}
