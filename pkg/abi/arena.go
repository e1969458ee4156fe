package abi

import (
	"sync"

	"rigz/pkg/value"
)

// Arena is a call-scoped byte buffer. Request frames are encoded into it
// and lent to the dispatch side; the loan ends when the call returns and
// the arena is Reset. Nothing written here outlives a single call.
type Arena struct {
	buf []byte
}

// NewArena creates a new Arena with the specified initial capacity.
func NewArena(capacity int) *Arena {
	return &Arena{buf: make([]byte, 0, capacity)}
}

// Reset drops every buffer handed out since the last Reset. O(1).
func (a *Arena) Reset() {
	a.buf = a.buf[:0]
}

// Encode appends the encoding of v and returns a view of just that value.
// The view is valid until the next Reset.
func (a *Arena) Encode(v value.Value) []byte {
	start := len(a.buf)
	a.buf = AppendValue(a.buf, v)
	return a.buf[start:len(a.buf):len(a.buf)]
}

// EncodeRequest appends a request frame and returns a view of it.
func (a *Arena) EncodeRequest(req Request) []byte {
	start := len(a.buf)
	a.buf = AppendRequest(a.buf, req)
	return a.buf[start:len(a.buf):len(a.buf)]
}

// Stats returns information about the arena usage.
func (a *Arena) Stats() (used int, total int) {
	return len(a.buf), cap(a.buf)
}

const maxPooledArena = 1 << 20

var arenaPool = sync.Pool{
	New: func() any { return NewArena(4096) },
}

// AcquireArena takes an arena from the pool. Pair with ReleaseArena.
func AcquireArena() *Arena {
	return arenaPool.Get().(*Arena)
}

// ReleaseArena resets a and returns it to the pool. Oversized arenas are
// dropped so one huge call does not pin memory.
func ReleaseArena(a *Arena) {
	if cap(a.buf) > maxPooledArena {
		return
	}
	a.Reset()
	arenaPool.Put(a)
}
