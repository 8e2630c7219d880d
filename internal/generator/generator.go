// Package generator produces the random line payloads emitted by spam workers.
//
// Each Generator owns its own rand source, so workers can generate payloads
// concurrently without sharing any mutable state.
package generator

import (
	"math/rand"
	"time"
)

// Alphabet is the symbol set payloads are drawn from: uppercase ASCII
// letters and digits, 36 symbols total.
const Alphabet = "ABCDEFGHIJKLMNOPQRSTUVWXYZ0123456789"

// DefaultLineLength is the payload length used when none is configured.
const DefaultLineLength = 100

// Generator produces fixed-alphabet random strings.
type Generator struct {
	rng *rand.Rand
}

// New creates a generator seeded from the given seed.
func New(seed int64) *Generator {
	return &Generator{
		rng: rand.New(rand.NewSource(seed)),
	}
}

// NewTimeSeeded creates a generator seeded from the current time, mixed with
// an offset so concurrently created generators get distinct streams.
func NewTimeSeeded(offset int64) *Generator {
	return New(time.Now().UnixNano() ^ (offset << 21))
}

// Line returns a string of exactly n characters, each independently and
// uniformly sampled from Alphabet. For n <= 0 it returns the empty string.
func (g *Generator) Line(n int) string {
	if n <= 0 {
		return ""
	}

	buf := make([]byte, n)
	for i := range buf {
		buf[i] = Alphabet[g.rng.Intn(len(Alphabet))]
	}
	return string(buf)
}
