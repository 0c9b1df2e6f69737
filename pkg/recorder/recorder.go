// Package recorder accumulates sensor readings into a bounded in-memory
// table. It periodically drains a controller's ring buffer, deduplicates
// against what it has already seen, and optionally averages groups of
// readings to reduce noise before storing them.
package recorder

import (
	"context"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/Matthue7/Q-Sensor-API/pkg/qsensor"
)

// Source is anything that exposes a snapshot of buffered readings, ordered
// oldest to newest. *qsensor.Controller satisfies it.
type Source interface {
	BufferSnapshot() []qsensor.Reading
}

// Options tunes the recorder. Zero values get defaults from New.
type Options struct {
	// Interval is how often the source buffer is drained.
	Interval time.Duration
	// MaxRows caps the in-memory table; the oldest rows are evicted.
	MaxRows int
	// AverageSamples collapses that many consecutive readings into one
	// stored row (mean value, temp and vin; last reading's timestamp).
	// Zero or one stores readings as they come.
	AverageSamples int
}

const (
	defaultInterval = 2 * time.Second
	defaultMaxRows  = 100000
)

// Recorder drains a Source in the background. Start and Stop may be called
// once each; Rows and Len are safe from any goroutine.
type Recorder struct {
	mu       sync.Mutex
	opts     Options
	src      Source
	rows     []qsensor.Reading
	pending  []qsensor.Reading // readings awaiting an averaging group
	lastSeen time.Time

	cancel context.CancelFunc
	done   chan struct{}
}

func New(src Source, opts Options) *Recorder {
	if opts.Interval <= 0 {
		opts.Interval = defaultInterval
	}
	if opts.MaxRows <= 0 {
		opts.MaxRows = defaultMaxRows
	}
	return &Recorder{opts: opts, src: src}
}

// Start launches the background drain loop.
func (r *Recorder) Start() error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.cancel != nil {
		return fmt.Errorf("recorder already running")
	}
	ctx, cancel := context.WithCancel(context.Background())
	r.cancel = cancel
	done := make(chan struct{})
	r.done = done

	go func() {
		defer close(done)
		ticker := time.NewTicker(r.opts.Interval)
		defer ticker.Stop()
		log.Printf("[recorder] started, interval %v", r.opts.Interval)
		for {
			select {
			case <-ctx.Done():
				// Final drain so nothing buffered at stop time is lost.
				r.Collect()
				log.Printf("[recorder] stopped with %d rows", r.Len())
				return
			case <-ticker.C:
				r.Collect()
			}
		}
	}()
	return nil
}

// Stop halts the drain loop after one final collection. Idempotent.
func (r *Recorder) Stop() {
	r.mu.Lock()
	cancel, done := r.cancel, r.done
	r.cancel = nil
	r.done = nil
	r.mu.Unlock()

	if cancel == nil {
		return
	}
	cancel()
	<-done
}

// Collect drains the source once. The loop calls it on every tick; tests
// and callers wanting an immediate drain may call it directly.
func (r *Recorder) Collect() {
	snap := r.src.BufferSnapshot()

	r.mu.Lock()
	defer r.mu.Unlock()

	for _, reading := range snap {
		if !reading.Timestamp.After(r.lastSeen) {
			continue
		}
		r.lastSeen = reading.Timestamp
		r.ingestLocked(reading)
	}

	if excess := len(r.rows) - r.opts.MaxRows; excess > 0 {
		r.rows = r.rows[excess:]
	}
}

func (r *Recorder) ingestLocked(reading qsensor.Reading) {
	if r.opts.AverageSamples <= 1 {
		r.rows = append(r.rows, reading)
		return
	}
	r.pending = append(r.pending, reading)
	if len(r.pending) >= r.opts.AverageSamples {
		r.rows = append(r.rows, averageReadings(r.pending))
		r.pending = r.pending[:0]
	}
}

// averageReadings collapses a group into one reading: mean value, temp and
// vin, with the most recent reading's timestamp and identity.
func averageReadings(group []qsensor.Reading) qsensor.Reading {
	last := group[len(group)-1]
	var sumValue, sumTemp, sumVin float64
	for _, g := range group {
		sumValue += g.Value
		sumTemp += g.TempC
		sumVin += g.Vin
	}
	n := float64(len(group))
	avg := last
	avg.Value = sumValue / n
	if last.HasTemp {
		avg.TempC = sumTemp / n
	}
	if last.HasVin {
		avg.Vin = sumVin / n
	}
	return avg
}

// Rows returns a copy of the stored table, oldest first.
func (r *Recorder) Rows() []qsensor.Reading {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]qsensor.Reading, len(r.rows))
	copy(out, r.rows)
	return out
}

// Len returns the number of stored rows.
func (r *Recorder) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.rows)
}

// Clear discards all stored rows and any partial averaging group. The
// dedup watermark is kept so already-seen readings are not re-ingested.
func (r *Recorder) Clear() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.rows = nil
	r.pending = nil
}

// Downsample decimates rows to at most maxPoints for display or export.
// Destination-based: reuses dst when it has sufficient capacity.
func Downsample(dst []qsensor.Reading, rows []qsensor.Reading, maxPoints int) []qsensor.Reading {
	if len(rows) <= maxPoints {
		if cap(dst) >= len(rows) {
			dst = dst[:len(rows)]
			copy(dst, rows)
			return dst
		}
		result := make([]qsensor.Reading, len(rows))
		copy(result, rows)
		return result
	}

	if cap(dst) >= maxPoints {
		dst = dst[:0]
	} else {
		dst = make([]qsensor.Reading, 0, maxPoints)
	}

	step := float64(len(rows)) / float64(maxPoints)
	for i := 0; i < maxPoints; i++ {
		idx := int(float64(i) * step)
		if idx < len(rows) {
			dst = append(dst, rows[idx])
		}
	}
	return dst
}
