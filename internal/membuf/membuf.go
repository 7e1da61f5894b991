// Package membuf implements the growable in-memory sink used by heap-backed
// archive writers. Capacity always grows to the next power of two.
package membuf

import (
	"errors"
	"math"

	"github.com/meigma/zpack/internal/sizing"
)

// MinCapacity is the smallest capacity a Buffer starts with.
const MinCapacity = 10

// ErrTooLarge is returned when a reservation cannot be satisfied.
var ErrTooLarge = errors.New("membuf: buffer too large")

// Buffer is an append-only byte buffer.
type Buffer struct {
	buf []byte
}

// New returns a Buffer whose capacity is the next power of two at least
// max(initial, MinCapacity).
func New(initial int) *Buffer {
	initial = max(initial, MinCapacity)
	return &Buffer{buf: make([]byte, 0, sizing.NextPow2(uint64(initial)))} //nolint:gosec // initial is positive
}

// Reserve makes room for n more bytes without further allocation.
func (b *Buffer) Reserve(n int) error {
	if n < 0 {
		return ErrTooLarge
	}
	if cap(b.buf)-len(b.buf) >= n {
		return nil
	}
	need, ok := sizing.AddUint64(uint64(len(b.buf)), uint64(n))
	if !ok || need > math.MaxInt {
		return ErrTooLarge
	}
	newCap := sizing.NextPow2(need)
	if newCap == 0 || newCap > math.MaxInt {
		return ErrTooLarge
	}
	grown := make([]byte, len(b.buf), int(newCap))
	copy(grown, b.buf)
	b.buf = grown
	return nil
}

// Write appends p, growing the buffer as needed.
func (b *Buffer) Write(p []byte) (int, error) {
	if err := b.Reserve(len(p)); err != nil {
		return 0, err
	}
	b.buf = append(b.buf, p...)
	return len(p), nil
}

// Len returns the number of bytes written.
func (b *Buffer) Len() int { return len(b.buf) }

// Cap returns the current capacity.
func (b *Buffer) Cap() int { return cap(b.buf) }

// Bytes returns the written bytes. The slice aliases the buffer until the
// next write.
func (b *Buffer) Bytes() []byte { return b.buf }

// Release drops the backing storage.
func (b *Buffer) Release() { b.buf = nil }
