// Package payload provides the filler bytes streamed by uploads, downloads
// and echo probes.
//
// A Pool is filled once at construction and never written afterwards, so a
// single instance is shared by every connection without locking. Callers must
// treat the slices returned by Window and Tail as read-only.
package payload

import (
	"math/rand/v2"
	"time"
)

const (
	// PoolSize is the size of a Pool buffer.
	PoolSize = 2 * 1024 * 1024

	// MaxWindow is the largest contiguous slice handed out by Window.
	MaxWindow = 1024 * 1024

	// printable ASCII range [0x20, 0x7F)
	printableLow  = 0x20
	printableHigh = 0x7F

	alphanumeric = "ABCDEFGHIJKLMNOPQRSTUVWXYZabcdefghijklmnopqrstuvwxyz0123456789"
)

// Pool is an immutable buffer of printable ASCII bytes.
type Pool struct {
	buf []byte
}

// NewPool builds a pool from a deterministic seed.
func NewPool(seed uint64) *Pool {
	return fill(NewRand(seed))
}

// NewRandomPool builds a pool from a non-deterministic seed.
func NewRandomPool() *Pool {
	return fill(rand.New(rand.NewPCG(rand.Uint64(), rand.Uint64())))
}

// NewSessionPool builds a pool seeded from the current unix time. The
// content is cosmetic filler; determinism only keeps a session reproducible.
func NewSessionPool() *Pool {
	return NewPool(uint64(time.Now().Unix()))
}

func fill(rng *rand.Rand) *Pool {
	buf := make([]byte, PoolSize)
	for i := range buf {
		buf[i] = byte(printableLow + rng.IntN(printableHigh-printableLow))
	}
	return &Pool{buf: buf}
}

// Window returns n contiguous bytes starting at a random offset in the first
// MaxWindow bytes. n is clamped to MaxWindow.
func (p *Pool) Window(rng *rand.Rand, n int) []byte {
	if n > MaxWindow {
		n = MaxWindow
	}
	if n <= 0 {
		return nil
	}
	start := rng.IntN(MaxWindow)
	return p.buf[start : start+n]
}

// Tail returns the last n bytes of the pool.
func (p *Pool) Tail(n int) []byte {
	if n > len(p.buf) {
		n = len(p.buf)
	}
	return p.buf[len(p.buf)-n:]
}

// NewRand returns a deterministic generator for seed.
func NewRand(seed uint64) *rand.Rand {
	return rand.New(rand.NewPCG(seed, seed^0x9E3779B97F4A7C15))
}

// Filler returns n alphanumeric bytes derived from seed.
func Filler(seed uint64, n int) []byte {
	if n <= 0 {
		return nil
	}
	rng := NewRand(seed)
	out := make([]byte, n)
	for i := range out {
		out[i] = alphanumeric[rng.IntN(len(alphanumeric))]
	}
	return out
}
