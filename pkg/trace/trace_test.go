package trace

import (
	"sync"
	"testing"
	"time"

	"github.com/itohio/goacq/pkg/link"
	"github.com/itohio/goacq/pkg/telemetry"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var epoch = time.Unix(1_700_000_000, 0)

func at(ms int) time.Time {
	return epoch.Add(time.Duration(ms) * time.Millisecond)
}

func collect(ch <-chan Point) []Point {
	var points []Point
	for p := range ch {
		points = append(points, p)
	}
	return points
}

func TestValue(t *testing.T) {
	tests := []struct {
		name string
		v    uint32
		mode telemetry.Mode
		want float64
	}{
		{"raw counts", 40000, telemetry.Raw, 40000},
		{"processed milli", 812, telemetry.Processed, 0.812},
		{"processed zero", 0, telemetry.Processed, 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.InDelta(t, tt.want, Value(tt.v, tt.mode), 1e-9)
		})
	}
}

func TestNewConverter(t *testing.T) {
	in := make(chan link.Sample, 3)
	in <- link.Sample{Timestamp: at(0), Value: 1000}
	in <- link.Sample{Timestamp: at(1), Value: 2500}
	close(in)

	points := collect(NewConverter(telemetry.Processed, 0)(in))
	assert.Equal(t, []Point{{at(0), 1}, {at(1), 2.5}}, points)
}

func TestNewAveragingConverter(t *testing.T) {
	in := make(chan link.Sample, 8)
	for i, v := range []uint32{10, 20, 30, 40, 50, 60, 70} {
		in <- link.Sample{Timestamp: at(i), Value: v}
	}
	close(in)

	points := collect(NewAveragingConverter(telemetry.Raw, 3, 4)(in))
	require.Len(t, points, 3)
	assert.Equal(t, Point{at(2), 20}, points[0])
	assert.Equal(t, Point{at(5), 50}, points[1])
	assert.Equal(t, Point{at(6), 70}, points[2])
}

func TestDownsample(t *testing.T) {
	points := make([]Point, 10)
	for i := range points {
		points[i] = Point{Timestamp: at(i), Value: float64(i)}
	}

	tests := []struct {
		name      string
		dst       []Point
		maxPoints int
		want      []float64
	}{
		{"fits", nil, 20, []float64{0, 1, 2, 3, 4, 5, 6, 7, 8, 9}},
		{"halved", nil, 5, []float64{0, 2, 4, 6, 8}},
		{"uneven", nil, 4, []float64{0, 2, 5, 7}},
		{"reuses dst", make([]Point, 0, 16), 3, []float64{0, 3, 6}},
		{"zero", nil, 0, []float64{}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Downsample(tt.dst, points, tt.maxPoints)
			values := make([]float64, 0, len(got))
			for _, p := range got {
				values = append(values, p.Value)
			}
			assert.Equal(t, tt.want, values)
			if tt.dst != nil {
				assert.Equal(t, cap(tt.dst), cap(got))
			}
		})
	}
}

func TestTrace_Window(t *testing.T) {
	tr := New(100*time.Millisecond, 0)
	for i := 0; i <= 250; i += 10 {
		tr.Add(Point{Timestamp: at(i), Value: float64(i)})
	}

	points := tr.Points()
	require.NotEmpty(t, points)
	assert.Equal(t, at(160), points[0].Timestamp)
	assert.Equal(t, at(250), points[len(points)-1].Timestamp)
	assert.Len(t, points, 10)

	st := tr.Stats()
	assert.Equal(t, 10, st.Count)
	assert.Equal(t, 160.0, st.Min)
	assert.Equal(t, 250.0, st.Max)
	assert.InDelta(t, 205.0, st.Mean, 1e-9)
	assert.InDelta(t, 100.0, st.Rate, 1e-9)

	tr.Clear()
	assert.Empty(t, tr.Points())
	assert.Equal(t, Stats{}, tr.Stats())
}

func TestTrace_NotifyInterval(t *testing.T) {
	tr := New(time.Second, 10*time.Millisecond)
	var counts []int
	tr.OnUpdate(func(points []Point, _ Stats) {
		counts = append(counts, len(points))
	})

	for i := range 25 {
		tr.Add(Point{Timestamp: at(i), Value: 1})
	}

	assert.Equal(t, []int{1, 11, 21}, counts)
}

func TestTrace_GracefulShutdown(t *testing.T) {
	tr := New(time.Second, 0)
	var (
		mu    sync.Mutex
		calls int
	)
	tr.OnUpdate(func([]Point, Stats) {
		mu.Lock()
		calls++
		mu.Unlock()
	})

	input := make(chan Point, 4)
	done := make(chan struct{})
	go func() {
		defer close(done)
		tr.ProcessPoints(input)
	}()
	input <- Point{Timestamp: at(0), Value: 1}
	input <- Point{Timestamp: at(1), Value: 2}
	close(input)
	<-done

	mu.Lock()
	assert.Equal(t, 2, calls)
	mu.Unlock()

	tr.Add(Point{Timestamp: at(2), Value: 3})
	mu.Lock()
	assert.Equal(t, 2, calls)
	mu.Unlock()
	assert.Len(t, tr.Points(), 3)

	tr.ResetShutdown()
	tr.Add(Point{Timestamp: at(3), Value: 4})
	mu.Lock()
	assert.Equal(t, 3, calls)
	mu.Unlock()
}
