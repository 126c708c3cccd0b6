package scope

import (
	"fmt"
	"image/color"
	"math"
	"time"

	"fyne.io/fyne/v2"
	"fyne.io/fyne/v2/canvas"
	"github.com/itohio/goacq/pkg/trace"
)

var (
	gridColor  = color.RGBA{R: 40, G: 40, B: 40, A: 255}
	axisColor  = color.RGBA{R: 150, G: 150, B: 150, A: 255}
	traceColor = color.RGBA{R: 255, G: 165, B: 0, A: 255}
	labelColor = color.RGBA{R: 200, G: 200, B: 200, A: 255}
)

const (
	marginLeft   = float32(70)
	marginRight  = float32(20)
	marginTop    = float32(20)
	marginBottom = float32(40)
)

// scopeRenderer renders the scope widget.
type scopeRenderer struct {
	scope      *ScopeWidget
	background *canvas.Rectangle
	objects    []fyne.CanvasObject
	lastSize   fyne.Size
}

// Plot is the drawing area inside the axis margins.
type Plot struct {
	X, Y, Width, Height float32
}

// PlotArea returns the plot rectangle for a widget of the given size.
func PlotArea(size fyne.Size) Plot {
	return Plot{
		X:      marginLeft,
		Y:      marginTop,
		Width:  size.Width - marginLeft - marginRight,
		Height: size.Height - marginTop - marginBottom,
	}
}

// Project maps p into plot coordinates.
func (pl Plot) Project(p trace.Point, b Bounds) fyne.Position {
	xSpan := b.XMax.Sub(b.XMin).Seconds()
	ySpan := b.YMax - b.YMin
	var fx, fy float64
	if xSpan > 0 {
		fx = p.Timestamp.Sub(b.XMin).Seconds() / xSpan
	}
	if ySpan > 0 {
		fy = (p.Value - b.YMin) / ySpan
	}
	return fyne.NewPos(pl.X+float32(fx)*pl.Width, pl.Y+pl.Height-float32(fy)*pl.Height)
}

func (r *scopeRenderer) MinSize() fyne.Size {
	return fyne.NewSize(400, 300)
}

func (r *scopeRenderer) Layout(size fyne.Size) {
	r.background.Resize(size)

	if r.lastSize != size {
		r.lastSize = size
		r.scope.BaseWidget.Refresh()
	}
}

func (r *scopeRenderer) Refresh() {
	r.scope.mu.RLock()
	points := r.scope.display
	stats := r.scope.stats
	b := r.scope.bounds
	unit := r.scope.unit
	label := r.scope.label
	r.scope.mu.RUnlock()

	size := r.scope.Size()
	if size.Width == 0 || size.Height == 0 {
		return
	}

	r.objects = []fyne.CanvasObject{r.background}
	plot := PlotArea(size)
	r.drawGrid(plot, b, unit)
	r.drawTrace(plot, b, points)
	r.drawLabel(plot, label, stats, unit)
}

// drawGrid draws the oscilloscope-style grid with value and time labels.
func (r *scopeRenderer) drawGrid(pl Plot, b Bounds, unit string) {
	const hLines, vLines = 8, 10

	for i := range hLines + 1 {
		y := pl.Y + float32(i)*pl.Height/hLines
		r.line(gridColor, 1, fyne.NewPos(pl.X, y), fyne.NewPos(pl.X+pl.Width, y))

		value := b.YMax - float64(i)*(b.YMax-b.YMin)/hLines
		r.text(FormatValue(value, unit), axisColor, 10, fyne.TextAlignTrailing, fyne.NewPos(pl.X-5, y-6))
	}

	span := b.XMax.Sub(b.XMin)
	for i := range vLines + 1 {
		x := pl.X + float32(i)*pl.Width/vLines
		r.line(gridColor, 1, fyne.NewPos(x, pl.Y), fyne.NewPos(x, pl.Y+pl.Height))

		offset := time.Duration(float64(i) * float64(span) / vLines)
		r.text(FormatTime(offset), axisColor, 10, fyne.TextAlignCenter, fyne.NewPos(x-20, pl.Y+pl.Height+5))
	}
}

func (r *scopeRenderer) drawTrace(pl Plot, b Bounds, points []trace.Point) {
	if len(points) < 2 {
		return
	}
	prev := pl.Project(points[0], b)
	for _, p := range points[1:] {
		next := pl.Project(p, b)
		r.line(traceColor, 1.5, prev, next)
		prev = next
	}
}

func (r *scopeRenderer) drawLabel(pl Plot, label string, st trace.Stats, unit string) {
	if label != "" {
		r.text(label, labelColor, 12, fyne.TextAlignLeading, fyne.NewPos(pl.X+10, pl.Y+5))
	}
	if st.Count == 0 {
		return
	}
	summary := fmt.Sprintf("mean %s  min %s  max %s  %.0f Hz",
		FormatValue(st.Mean, unit), FormatValue(st.Min, unit), FormatValue(st.Max, unit), st.Rate)
	r.text(summary, labelColor, 11, fyne.TextAlignLeading, fyne.NewPos(pl.X+10, pl.Y+22))
}

func (r *scopeRenderer) line(c color.Color, width float32, from, to fyne.Position) {
	l := canvas.NewLine(c)
	l.Position1 = from
	l.Position2 = to
	l.StrokeWidth = width
	r.objects = append(r.objects, l)
}

func (r *scopeRenderer) text(s string, c color.Color, size float32, align fyne.TextAlign, pos fyne.Position) {
	t := canvas.NewText(s, c)
	t.TextSize = size
	t.Alignment = align
	t.Move(pos)
	r.objects = append(r.objects, t)
}

func (r *scopeRenderer) Objects() []fyne.CanvasObject {
	return r.objects
}

func (r *scopeRenderer) Destroy() {}

// FormatValue formats v with a precision suited to its magnitude.
func FormatValue(v float64, unit string) string {
	var s string
	switch a := math.Abs(v); {
	case a == 0:
		s = "0"
	case a >= 1000:
		s = fmt.Sprintf("%.0f", v)
	case a >= 1:
		s = fmt.Sprintf("%.2f", v)
	default:
		s = fmt.Sprintf("%.3f", v)
	}
	if unit == "" {
		return s
	}
	return s + " " + unit
}

func FormatTime(d time.Duration) string {
	if d < time.Second {
		return fmt.Sprintf("%.0fms", float64(d)/float64(time.Millisecond))
	}
	return fmt.Sprintf("%.1fs", d.Seconds())
}
