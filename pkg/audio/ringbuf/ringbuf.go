// ABOUTME: Lock-free single-producer single-consumer byte ring buffer
// ABOUTME: Shared between the emulator producer and the real-time renderer
package ringbuf

import (
	"errors"
	"fmt"
	"sync/atomic"

	"github.com/harperreed/emuaudio/pkg/audio"
)

// DefaultCapacity holds roughly one second of baseline audio
const DefaultCapacity = audio.DefaultBytesPerSecond

// ErrInvalidCapacity is returned for a non-positive capacity
var ErrInvalidCapacity = errors.New("ring buffer capacity must be positive")

// Buffer is a fixed-capacity SPSC byte queue.
//
// Producer and consumer coordinate only through two monotonically increasing
// cursors. The writer owns writePos, the reader owns readPos; Reset moves
// readPos forward with a compare-and-swap so a concurrent Pop never commits
// stale data.
//
// Thread assignment:
//   - Push, AvailableWrite: producer goroutine
//   - Pop: consumer (render callback)
//   - AvailableRead, Reset, Capacity: any goroutine
type Buffer struct {
	writePos atomic.Uint64
	_pad1    [56]byte
	readPos  atomic.Uint64
	_pad2    [56]byte

	buf      []byte
	capacity uint64
}

// New allocates a ring buffer with exactly the given capacity in bytes
func New(capacity int) (*Buffer, error) {
	if capacity <= 0 {
		return nil, fmt.Errorf("%w: %d", ErrInvalidCapacity, capacity)
	}
	return &Buffer{
		buf:      make([]byte, capacity),
		capacity: uint64(capacity),
	}, nil
}

// Capacity returns the fixed size of the buffer in bytes
func (b *Buffer) Capacity() int {
	return int(b.capacity)
}

// AvailableRead returns the number of bytes waiting to be consumed
func (b *Buffer) AvailableRead() int {
	r := b.readPos.Load()
	w := b.writePos.Load()
	return int(b.used(w, r))
}

// AvailableWrite returns the number of bytes that can be pushed without overflow
func (b *Buffer) AvailableWrite() int {
	return b.Capacity() - b.AvailableRead()
}

// Push appends all of p or nothing. It returns false, leaving the buffer
// untouched, when p does not fit. Never blocks.
func (b *Buffer) Push(p []byte) bool {
	n := uint64(len(p))
	if n == 0 {
		return true
	}

	w := b.writePos.Load()
	r := b.readPos.Load()
	if n > b.capacity-b.used(w, r) {
		return false
	}

	pos := w % b.capacity
	first := b.capacity - pos
	if first >= n {
		copy(b.buf[pos:pos+n], p)
	} else {
		copy(b.buf[pos:], p[:first])
		copy(b.buf[:n-first], p[first:])
	}

	b.writePos.Store(w + n)
	return true
}

// Pop copies up to len(p) bytes into p and returns the count consumed.
// A Reset racing with Pop wins; the popped bytes are then discarded and
// Pop reports zero.
func (b *Buffer) Pop(p []byte) int {
	r := b.readPos.Load()
	w := b.writePos.Load()

	n := min(uint64(len(p)), b.used(w, r))
	if n == 0 {
		return 0
	}

	pos := r % b.capacity
	first := b.capacity - pos
	if first >= n {
		copy(p[:n], b.buf[pos:pos+n])
	} else {
		copy(p[:first], b.buf[pos:])
		copy(p[first:n], b.buf[:n-first])
	}

	if !b.readPos.CompareAndSwap(r, r+n) {
		return 0
	}
	return int(n)
}

// Reset discards every unread byte and returns how many were dropped
func (b *Buffer) Reset() int {
	for {
		r := b.readPos.Load()
		w := b.writePos.Load()
		if b.readPos.CompareAndSwap(r, w) {
			return int(b.used(w, r))
		}
	}
}

// used clamps the cursor distance; a reader that observed an older writePos
// than a concurrent Reset could otherwise see read ahead of write.
func (b *Buffer) used(w, r uint64) uint64 {
	if r >= w {
		return 0
	}
	return min(w-r, b.capacity)
}
