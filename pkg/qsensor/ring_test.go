package qsensor

import (
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testReading(i int) Reading {
	return Reading{
		Timestamp: time.Date(2025, 3, 1, 0, 0, i, 0, time.UTC),
		SensorID:  "QSE0042",
		Mode:      ModeFreerun,
		Value:     float64(i),
	}
}

func TestRingBufferEvictsOldest(t *testing.T) {
	rb := NewRingBuffer(5)
	for i := 1; i <= 10; i++ {
		rb.Append(testReading(i))
	}

	snap := rb.Snapshot()
	require.Len(t, snap, 5)
	for i, r := range snap {
		assert.Equal(t, float64(i+6), r.Value, "slot %d", i)
	}
	assert.Equal(t, 5, rb.Len())
	assert.Equal(t, 5, rb.Cap())
}

func TestRingBufferSnapshotIsCopy(t *testing.T) {
	rb := NewRingBuffer(3)
	rb.Append(testReading(1))

	snap := rb.Snapshot()
	snap[0].Value = 999

	again := rb.Snapshot()
	assert.Equal(t, float64(1), again[0].Value)
}

func TestRingBufferOrderBeforeWrap(t *testing.T) {
	rb := NewRingBuffer(10)
	for i := 1; i <= 3; i++ {
		rb.Append(testReading(i))
	}
	snap := rb.Snapshot()
	require.Len(t, snap, 3)
	assert.Equal(t, float64(1), snap[0].Value)
	assert.Equal(t, float64(3), snap[2].Value)
}

func TestRingBufferClear(t *testing.T) {
	rb := NewRingBuffer(5)
	for i := 0; i < 7; i++ {
		rb.Append(testReading(i))
	}
	rb.Clear()
	assert.Equal(t, 0, rb.Len())
	assert.Empty(t, rb.Snapshot())

	rb.Append(testReading(42))
	snap := rb.Snapshot()
	require.Len(t, snap, 1)
	assert.Equal(t, float64(42), snap[0].Value)
}

func TestRingBufferDefaultCapacity(t *testing.T) {
	assert.Equal(t, DefaultBufferSize, NewRingBuffer(0).Cap())
	assert.Equal(t, DefaultBufferSize, NewRingBuffer(-3).Cap())
}

func TestRingBufferConcurrentAccess(t *testing.T) {
	rb := NewRingBuffer(100)
	var wg sync.WaitGroup

	for w := 0; w < 4; w++ {
		wg.Add(1)
		go func(w int) {
			defer wg.Done()
			for i := 0; i < 250; i++ {
				rb.Append(testReading(w*1000 + i))
			}
		}(w)
	}
	wg.Add(1)
	go func() {
		defer wg.Done()
		for i := 0; i < 100; i++ {
			snap := rb.Snapshot()
			assert.LessOrEqual(t, len(snap), 100)
		}
	}()
	wg.Wait()

	assert.Equal(t, 100, rb.Len())
}

func BenchmarkRingBufferAppend(b *testing.B) {
	rb := NewRingBuffer(1000)
	r := testReading(1)
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		rb.Append(r)
	}
}

func ExampleRingBuffer() {
	rb := NewRingBuffer(2)
	rb.Append(Reading{Value: 1})
	rb.Append(Reading{Value: 2})
	rb.Append(Reading{Value: 3})
	for _, r := range rb.Snapshot() {
		fmt.Println(r.Value)
	}
	// Output:
	// 2
	// 3
}
