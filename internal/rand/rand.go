// Package rand generates wire request identifiers. Identifiers only need to
// be unique within one connection, not unpredictable, so a fast seeded PCG
// source is sufficient.
package rand

import (
	"crypto/rand"
	"encoding/binary"
	mathrand "math/rand/v2"
	"sync"
)

const charset = "ABCDEFGHIJKLMNOPQRSTUVWXYZabcdefghijklmnopqrstuvwxyz0123456789"

var (
	mu  sync.Mutex
	rng = newRNG()
)

func newRNG() *mathrand.Rand {
	var seed [16]byte
	if _, err := rand.Read(seed[:]); err != nil {
		panic("rand: failed to seed request id source")
	}
	return mathrand.New(mathrand.NewPCG(
		binary.LittleEndian.Uint64(seed[:8]),
		binary.LittleEndian.Uint64(seed[8:]),
	))
}

// RequestID returns a fresh identifier of the given length.
func RequestID(length int) string {
	buf := make([]byte, length)
	mu.Lock()
	for i := range buf {
		buf[i] = charset[rng.IntN(len(charset))]
	}
	mu.Unlock()
	return string(buf)
}
