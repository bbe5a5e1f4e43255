// Package entropy provides the randomness sources used for behavior, branch,
// roll, and encounter draws. Every consumer takes a Source so tests can pin
// the sequence.
package entropy

import (
	"crypto/rand"
	"encoding/binary"
	mrand "math/rand"
)

// Source yields uniform floats in [0, 1).
type Source interface {
	Float64() float64
}

// Seeded is a deterministic Source backed by math/rand.
type Seeded struct {
	rng *mrand.Rand
}

// NewSeeded returns a deterministic source for the given seed.
func NewSeeded(seed int64) *Seeded {
	return &Seeded{rng: mrand.New(mrand.NewSource(seed))}
}

// Float64 implements Source.
func (s *Seeded) Float64() float64 {
	return s.rng.Float64()
}

// Sequence replays a fixed list of values, cycling when exhausted.
// Values outside [0, 1) are clamped into range.
type Sequence struct {
	values []float64
	next   int
}

// NewSequence returns a Source that replays values in order.
func NewSequence(values ...float64) *Sequence {
	if len(values) == 0 {
		values = []float64{0}
	}
	return &Sequence{values: values}
}

// Float64 implements Source.
func (s *Sequence) Float64() float64 {
	v := s.values[s.next%len(s.values)]
	s.next++
	if v < 0 {
		return 0
	}
	if v >= 1 {
		return 0.9999999999
	}
	return v
}

// Crypto is a non-deterministic Source backed by crypto/rand.
type Crypto struct{}

// Float64 implements Source.
func (Crypto) Float64() float64 {
	return cryptoRandFloat()
}

// cryptoRandFloat generates a random float64 using crypto/rand.
func cryptoRandFloat() float64 {
	var buf [8]byte
	_, err := rand.Read(buf[:])
	if err != nil {
		// This should never happen but return 0.5 as a safe default.
		return 0.5
	}
	// Use only 53 bits for a uniform float64 in [0, 1).
	n := binary.LittleEndian.Uint64(buf[:]) >> 11
	return float64(n) / float64(1<<53)
}

// OrDefault returns src, or a Crypto source when src is nil.
func OrDefault(src Source) Source {
	if src == nil {
		return Crypto{}
	}
	return src
}

// Roll returns a uniform integer in [1, sides].
func Roll(src Source, sides int) int {
	if sides < 1 {
		return 1
	}
	n := int(src.Float64()*float64(sides)) + 1
	if n > sides {
		n = sides
	}
	return n
}
