package recorder

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Matthue7/Q-Sensor-API/pkg/qsensor"
)

// fakeSource serves a settable snapshot, standing in for a controller.
type fakeSource struct {
	mu   sync.Mutex
	snap []qsensor.Reading
}

func (f *fakeSource) set(readings []qsensor.Reading) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.snap = readings
}

func (f *fakeSource) BufferSnapshot() []qsensor.Reading {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]qsensor.Reading, len(f.snap))
	copy(out, f.snap)
	return out
}

func readingAt(sec int, value float64) qsensor.Reading {
	return qsensor.Reading{
		Timestamp: time.Date(2025, 3, 1, 12, 0, sec, 0, time.UTC),
		SensorID:  "QSE0042",
		Mode:      qsensor.ModeFreerun,
		Value:     value,
	}
}

func TestCollectDeduplicates(t *testing.T) {
	src := &fakeSource{}
	r := New(src, Options{})

	src.set([]qsensor.Reading{readingAt(1, 1.0), readingAt(2, 2.0)})
	r.Collect()
	require.Equal(t, 2, r.Len())

	// Same snapshot again: nothing new.
	r.Collect()
	assert.Equal(t, 2, r.Len())

	// Overlapping snapshot with one new reading.
	src.set([]qsensor.Reading{readingAt(2, 2.0), readingAt(3, 3.0)})
	r.Collect()
	rows := r.Rows()
	require.Len(t, rows, 3)
	assert.Equal(t, 1.0, rows[0].Value)
	assert.Equal(t, 3.0, rows[2].Value)
}

func TestCollectAverages(t *testing.T) {
	src := &fakeSource{}
	r := New(src, Options{AverageSamples: 3})

	src.set([]qsensor.Reading{
		readingAt(1, 1.0),
		readingAt(2, 2.0),
		readingAt(3, 6.0),
		readingAt(4, 10.0),
	})
	r.Collect()

	rows := r.Rows()
	require.Len(t, rows, 1, "one full group of 3, one reading pending")
	assert.InDelta(t, 3.0, rows[0].Value, 1e-9)
	assert.Equal(t, readingAt(3, 0).Timestamp, rows[0].Timestamp, "group carries last timestamp")

	// Two more complete the second group.
	src.set([]qsensor.Reading{readingAt(5, 20.0), readingAt(6, 30.0)})
	r.Collect()
	rows = r.Rows()
	require.Len(t, rows, 2)
	assert.InDelta(t, 20.0, rows[1].Value, 1e-9)
}

func TestMaxRowsEvictsOldest(t *testing.T) {
	src := &fakeSource{}
	r := New(src, Options{MaxRows: 3})

	var snap []qsensor.Reading
	for i := 1; i <= 5; i++ {
		snap = append(snap, readingAt(i, float64(i)))
	}
	src.set(snap)
	r.Collect()

	rows := r.Rows()
	require.Len(t, rows, 3)
	assert.Equal(t, 3.0, rows[0].Value)
	assert.Equal(t, 5.0, rows[2].Value)
}

func TestClearKeepsWatermark(t *testing.T) {
	src := &fakeSource{}
	r := New(src, Options{})

	src.set([]qsensor.Reading{readingAt(1, 1.0), readingAt(2, 2.0)})
	r.Collect()
	r.Clear()
	assert.Equal(t, 0, r.Len())

	// The same old readings must not come back after a clear.
	r.Collect()
	assert.Equal(t, 0, r.Len())

	src.set([]qsensor.Reading{readingAt(3, 3.0)})
	r.Collect()
	assert.Equal(t, 1, r.Len())
}

func TestStartStop(t *testing.T) {
	src := &fakeSource{}
	r := New(src, Options{Interval: 20 * time.Millisecond})

	src.set([]qsensor.Reading{readingAt(1, 1.0)})
	require.NoError(t, r.Start())
	assert.Error(t, r.Start(), "double start must fail")

	require.Eventually(t, func() bool {
		return r.Len() == 1
	}, 2*time.Second, 5*time.Millisecond)

	// New readings appear while running.
	src.set([]qsensor.Reading{readingAt(1, 1.0), readingAt(2, 2.0)})
	require.Eventually(t, func() bool {
		return r.Len() == 2
	}, 2*time.Second, 5*time.Millisecond)

	r.Stop()
	r.Stop() // idempotent

	// Restartable after stop.
	require.NoError(t, r.Start())
	r.Stop()
}

func TestStopDrainsFinalSnapshot(t *testing.T) {
	src := &fakeSource{}
	r := New(src, Options{Interval: time.Hour}) // ticker never fires

	require.NoError(t, r.Start())
	src.set([]qsensor.Reading{readingAt(1, 1.0)})
	r.Stop()

	assert.Equal(t, 1, r.Len(), "stop performs a final collection")
}

func TestDownsample(t *testing.T) {
	var rows []qsensor.Reading
	for i := 0; i < 100; i++ {
		rows = append(rows, readingAt(i%60, float64(i)))
	}

	out := Downsample(nil, rows, 10)
	require.Len(t, out, 10)
	assert.Equal(t, 0.0, out[0].Value)
	assert.Equal(t, 90.0, out[9].Value)

	// Fewer rows than points: straight copy.
	out = Downsample(nil, rows[:5], 10)
	assert.Len(t, out, 5)

	// Destination reuse.
	dst := make([]qsensor.Reading, 0, 64)
	out = Downsample(dst, rows, 10)
	assert.Len(t, out, 10)
}
