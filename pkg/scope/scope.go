package scope

import (
	"image/color"
	"sync"
	"time"

	"fyne.io/fyne/v2"
	"fyne.io/fyne/v2/canvas"
	"fyne.io/fyne/v2/widget"
	"github.com/itohio/goacq/pkg/trace"
)

const defaultDisplayPoints = 1000

// Bounds is the visible data range.
type Bounds struct {
	XMin, XMax time.Time
	YMin, YMax float64
}

// ScopeWidget is a custom Fyne widget that plots a telemetry trace.
type ScopeWidget struct {
	widget.BaseWidget

	mu      sync.RWMutex
	window  time.Duration
	unit    string
	display []trace.Point // Downsampled, reused between updates
	stats   trace.Stats
	bounds  Bounds
	label   string

	maxDisplayPoints int
}

// New creates a scope showing at least window of time, labelling values with
// unit.
func New(window time.Duration, unit string) *ScopeWidget {
	s := &ScopeWidget{
		window:           window,
		unit:             unit,
		display:          make([]trace.Point, 0, defaultDisplayPoints),
		maxDisplayPoints: defaultDisplayPoints,
	}
	s.bounds = AutoScale(nil, window, time.Now())
	s.ExtendBaseWidget(s)
	s.Refresh()
	return s
}

// SetUnit changes the value unit, e.g. after switching telemetry mode.
func (s *ScopeWidget) SetUnit(unit string) {
	s.mu.Lock()
	s.unit = unit
	s.mu.Unlock()
	s.Refresh()
}

// SetWindow changes the minimum visible time span.
func (s *ScopeWidget) SetWindow(window time.Duration) {
	s.mu.Lock()
	s.window = window
	s.mu.Unlock()
}

// SetLabel sets the caption drawn in the top left corner.
func (s *ScopeWidget) SetLabel(label string) {
	s.mu.Lock()
	s.label = label
	s.mu.Unlock()
	s.Refresh()
}

// UpdateData replaces the plotted points. Call it from the trace callback
// through fyne.Do.
func (s *ScopeWidget) UpdateData(points []trace.Point, stats trace.Stats) {
	s.mu.Lock()
	s.display = trace.Downsample(s.display, points, s.maxDisplayPoints)
	s.stats = stats
	s.bounds = AutoScale(s.display, s.window, time.Now())
	s.mu.Unlock()

	s.Refresh()
}

// AutoScale fits points with a 10% vertical margin. The time axis spans at
// least window starting at the first point.
func AutoScale(points []trace.Point, window time.Duration, now time.Time) Bounds {
	if len(points) == 0 {
		return Bounds{XMin: now, XMax: now.Add(window), YMin: 0, YMax: 1}
	}

	b := Bounds{
		XMin: points[0].Timestamp,
		XMax: points[len(points)-1].Timestamp,
		YMin: points[0].Value,
		YMax: points[0].Value,
	}
	for _, p := range points {
		b.YMin = min(b.YMin, p.Value)
		b.YMax = max(b.YMax, p.Value)
	}

	span := b.YMax - b.YMin
	if span == 0 {
		span = 1
	}
	b.YMin -= span * 0.1
	b.YMax += span * 0.1

	if b.XMax.Sub(b.XMin) < window {
		b.XMax = b.XMin.Add(window)
	}
	return b
}

func (s *ScopeWidget) CreateRenderer() fyne.WidgetRenderer {
	background := canvas.NewRectangle(color.RGBA{R: 20, G: 20, B: 20, A: 255})
	return &scopeRenderer{
		scope:      s,
		background: background,
		objects:    []fyne.CanvasObject{background},
	}
}
