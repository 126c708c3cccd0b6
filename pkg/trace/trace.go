package trace

import (
	"math"
	"sync"
	"time"
)

// Stats summarizes the points inside the window.
type Stats struct {
	Count int
	Min   float64
	Max   float64
	Mean  float64
	Rate  float64 // Points per second
}

// Trace keeps a time window of points and notifies listeners as it changes.
// Points are ordered oldest first and removed by timestamp, not by count.
type Trace struct {
	window   time.Duration
	interval time.Duration

	mu         sync.RWMutex
	points     []Point
	lastNotify time.Time
	shutdown   bool

	callbacks []func(points []Point, stats Stats)
	cbMu      sync.RWMutex
}

// New creates a trace over window. Listeners are notified at most once per
// interval of point time; zero notifies on every point.
func New(window, interval time.Duration) *Trace {
	return &Trace{
		window:   window,
		interval: interval,
	}
}

// ProcessPoints consumes input until it closes. Afterwards no callbacks run
// until ResetShutdown.
func (t *Trace) ProcessPoints(input <-chan Point) {
	for p := range input {
		t.Add(p)
	}
	t.mu.Lock()
	t.shutdown = true
	t.mu.Unlock()
}

// Add appends p and trims points older than the window.
func (t *Trace) Add(p Point) {
	t.mu.Lock()
	t.points = append(t.points, p)

	cutoff := p.Timestamp.Add(-t.window)
	drop := 0
	for drop < len(t.points) && !t.points[drop].Timestamp.After(cutoff) {
		drop++
	}
	if drop > 0 {
		t.points = append(t.points[:0], t.points[drop:]...)
	}

	notify := !t.shutdown && (t.lastNotify.IsZero() || p.Timestamp.Sub(t.lastNotify) >= t.interval)
	if notify {
		t.lastNotify = p.Timestamp
	}
	t.mu.Unlock()

	if notify {
		t.notifyCallbacks()
	}
}

// Points returns a copy of the points in the window.
func (t *Trace) Points() []Point {
	t.mu.RLock()
	defer t.mu.RUnlock()

	result := make([]Point, len(t.points))
	copy(result, t.points)
	return result
}

func (t *Trace) Stats() Stats {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return summarize(t.points)
}

// Clear drops every point.
func (t *Trace) Clear() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.points = t.points[:0]
	t.lastNotify = time.Time{}
}

// OnUpdate registers a callback receiving a copy of the window. The callback
// should return quickly.
func (t *Trace) OnUpdate(callback func(points []Point, stats Stats)) {
	t.cbMu.Lock()
	defer t.cbMu.Unlock()
	t.callbacks = append(t.callbacks, callback)
}

// ResetShutdown allows callbacks again after the input channel closed.
func (t *Trace) ResetShutdown() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.shutdown = false
}

func (t *Trace) notifyCallbacks() {
	t.mu.RLock()
	points := make([]Point, len(t.points))
	copy(points, t.points)
	stats := summarize(t.points)
	t.mu.RUnlock()

	t.cbMu.RLock()
	callbacks := make([]func([]Point, Stats), len(t.callbacks))
	copy(callbacks, t.callbacks)
	t.cbMu.RUnlock()

	for _, cb := range callbacks {
		if cb != nil {
			cb(points, stats)
		}
	}
}

func summarize(points []Point) Stats {
	if len(points) == 0 {
		return Stats{}
	}

	s := Stats{Count: len(points), Min: math.Inf(1), Max: math.Inf(-1)}
	var sum float64
	for _, p := range points {
		s.Min = min(s.Min, p.Value)
		s.Max = max(s.Max, p.Value)
		sum += p.Value
	}
	s.Mean = sum / float64(len(points))

	if span := points[len(points)-1].Timestamp.Sub(points[0].Timestamp).Seconds(); span > 0 {
		s.Rate = float64(len(points)-1) / span
	}
	return s
}

// SetWindow changes the window; older points go with the next Add.
func (t *Trace) SetWindow(window time.Duration) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.window = window
}
