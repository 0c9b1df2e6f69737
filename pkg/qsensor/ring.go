package qsensor

import "sync"

// DefaultBufferSize is the default ring buffer capacity.
const DefaultBufferSize = 1000

// RingBuffer is a thread-safe fixed-capacity FIFO of readings. Appending
// beyond capacity silently evicts the oldest reading.
type RingBuffer struct {
	mu       sync.Mutex
	readings []Reading
	head     int // index of oldest element
	count    int
	capacity int
}

// NewRingBuffer creates a buffer with the given capacity. Non-positive
// capacities fall back to DefaultBufferSize.
func NewRingBuffer(capacity int) *RingBuffer {
	if capacity <= 0 {
		capacity = DefaultBufferSize
	}
	return &RingBuffer{
		readings: make([]Reading, capacity),
		capacity: capacity,
	}
}

// Append adds a reading, evicting the oldest one when full.
func (b *RingBuffer) Append(r Reading) {
	b.mu.Lock()
	defer b.mu.Unlock()

	tail := (b.head + b.count) % b.capacity
	b.readings[tail] = r
	if b.count == b.capacity {
		b.head = (b.head + 1) % b.capacity
		bufferEvictions.Inc()
	} else {
		b.count++
	}
}

// Snapshot returns a copy of the current contents, ordered oldest to newest.
func (b *RingBuffer) Snapshot() []Reading {
	b.mu.Lock()
	defer b.mu.Unlock()

	out := make([]Reading, b.count)
	for i := 0; i < b.count; i++ {
		out[i] = b.readings[(b.head+i)%b.capacity]
	}
	return out
}

// Clear removes all readings.
func (b *RingBuffer) Clear() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.head = 0
	b.count = 0
}

// Len returns the current number of buffered readings.
func (b *RingBuffer) Len() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.count
}

// Cap returns the fixed capacity.
func (b *RingBuffer) Cap() int {
	return b.capacity
}
