// Copyright (c) Microsoft Corporation.
// Licensed under the MIT License.
package inference

// DefaultArenaSize is the workspace reserved for inference scratch, in bytes.
const DefaultArenaSize = 2 * 1024

// Arena is the fixed-capacity inference workspace. Its backing memory is
// allocated once and never grows; every forward pass reuses it.
type Arena struct {
	buf  []float32
	peak int
}

// NewArena reserves size bytes, rounded down to a whole number of float32
// slots.
func NewArena(size int) *Arena {
	return &Arena{buf: make([]float32, max(size, 0)/4)}
}

// Cap returns the reserved capacity in bytes.
func (a *Arena) Cap() int {
	return len(a.buf) * 4
}

// Peak returns the largest number of bytes used by any single pass.
func (a *Arena) Peak() int {
	return a.peak
}

// Fits reports whether a pass needing n bytes fits in the arena.
func (a *Arena) Fits(n int) bool {
	return n <= a.Cap()
}

// pair carves two width-sized activation buffers out of the arena. The
// buffers alias the arena; they are valid only until the next call.
func (a *Arena) pair(width int) (x, y []float32, ok bool) {
	used := 2 * width
	if width <= 0 || used > len(a.buf) {
		return nil, nil, false
	}
	if bytes := used * 4; bytes > a.peak {
		a.peak = bytes
	}
	return a.buf[:width:width], a.buf[width:used:used], true
}
