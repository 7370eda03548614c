// Package history keeps a bounded in-memory record of recent samples for
// the dashboard.
package history

import (
	"context"
	"sync"
	"time"

	"github.com/luki/sensorlink/internal/telemetry"
	"github.com/luki/sensorlink/internal/transport"
)

// DefaultCapacity holds ten minutes at the default one-second interval.
const DefaultCapacity = 600

// Point is a single temperature at a point in time.
type Point struct {
	Celsius int
	Time    time.Time
}

// Series is a ring buffer of points for one sensor.
type Series struct {
	points []Point
	cap    int
	min    int
	peak   int
	total  int
}

// NewSeries creates a series holding at most capacity points.
func NewSeries(capacity int) *Series {
	if capacity <= 0 {
		capacity = DefaultCapacity
	}
	return &Series{points: make([]Point, 0, capacity), cap: capacity}
}

// Push appends a point, evicting the oldest when full. Min and peak cover
// everything ever pushed, not only what is still buffered.
func (s *Series) Push(celsius int, t time.Time) {
	p := Point{Celsius: celsius, Time: t}
	if len(s.points) >= s.cap {
		copy(s.points, s.points[1:])
		s.points[len(s.points)-1] = p
	} else {
		s.points = append(s.points, p)
	}
	s.total++
	if s.total == 1 {
		s.min, s.peak = celsius, celsius
	}
	if celsius < s.min {
		s.min = celsius
	}
	if celsius > s.peak {
		s.peak = celsius
	}
}

// Len returns the number of buffered points.
func (s *Series) Len() int { return len(s.points) }

// Stats summarises a series.
type Stats struct {
	Last  int
	Min   int
	Peak  int
	Avg   float64
	Count int
}

func (s *Series) stats() Stats {
	st := Stats{Min: s.min, Peak: s.peak, Count: len(s.points)}
	if len(s.points) == 0 {
		return st
	}
	st.Last = s.points[len(s.points)-1].Celsius
	sum := 0
	for _, p := range s.points {
		sum += p.Celsius
	}
	st.Avg = float64(sum) / float64(len(s.points))
	return st
}

// LastN returns a copy of the last n points.
func (s *Series) LastN(n int) []Point {
	if n <= 0 || len(s.points) == 0 {
		return nil
	}
	start := len(s.points) - n
	if start < 0 {
		start = 0
	}
	out := make([]Point, len(s.points)-start)
	copy(out, s.points[start:])
	return out
}

// Recorder collects samples from the telemetry loop. It is safe for
// concurrent use: the loop writes while the dashboard reads.
type Recorder struct {
	mu        sync.Mutex
	cpu       *Series
	gpu       *Series
	delivered uint64
	dropped   uint64
	last      telemetry.Sample
	seen      bool
}

// NewRecorder creates a recorder keeping capacity points per sensor.
func NewRecorder(capacity int) *Recorder {
	return &Recorder{cpu: NewSeries(capacity), gpu: NewSeries(capacity)}
}

// Observe records s. Sensors without a valid value are skipped so the
// charts show gaps rather than zeros.
func (r *Recorder) Observe(_ context.Context, s telemetry.Sample) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if s.Reading.CPUValid {
		r.cpu.Push(s.Reading.CPU, s.Time)
	}
	if s.Reading.GPUValid {
		r.gpu.Push(s.Reading.GPU, s.Time)
	}
	if s.Delivered() {
		r.delivered++
	} else {
		r.dropped++
	}
	r.last = s
	r.seen = true
}

// Snapshot is a consistent copy of the recorder state.
type Snapshot struct {
	CPU, GPU           []Point
	CPUStats, GPUStats Stats
	Delivered, Dropped uint64
	Last               telemetry.Sample
	Links              []transport.LinkStatus
	// Empty is true until the first sample arrives.
	Empty bool
}

// Snapshot copies the last n points of each series plus the counters.
func (r *Recorder) Snapshot(n int) Snapshot {
	r.mu.Lock()
	defer r.mu.Unlock()
	return Snapshot{
		CPU:       r.cpu.LastN(n),
		GPU:       r.gpu.LastN(n),
		CPUStats:  r.cpu.stats(),
		GPUStats:  r.gpu.stats(),
		Delivered: r.delivered,
		Dropped:   r.dropped,
		Last:      r.last,
		Links:     r.last.Links,
		Empty:     !r.seen,
	}
}
