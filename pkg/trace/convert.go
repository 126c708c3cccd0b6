package trace

import (
	"time"

	"github.com/itohio/goacq/pkg/link"
	"github.com/itohio/goacq/pkg/telemetry"
)

// Point is one telemetry value in display units.
type Point struct {
	Timestamp time.Time
	Value     float64
}

// Converter transforms a telemetry sample channel into a point channel.
type Converter func(in <-chan link.Sample) <-chan Point

// Value converts a telemetry value of the given mode to display units:
// ADC counts in raw mode, the processed unit in processed mode.
func Value(v uint32, mode telemetry.Mode) float64 {
	if mode == telemetry.Processed {
		return link.Milli(v)
	}
	return float64(v)
}

// NewConverter creates a converter that forwards every sample.
func NewConverter(mode telemetry.Mode, bufSize int) Converter {
	return NewAveragingConverter(mode, 1, bufSize)
}

// NewAveragingConverter creates a converter that emits the mean of each block
// of windowSize consecutive samples, stamped with the last sample's time. A
// partial block is flushed when the input closes.
func NewAveragingConverter(mode telemetry.Mode, windowSize int, bufSize int) Converter {
	if windowSize <= 0 {
		windowSize = 1
	}
	if bufSize <= 0 {
		bufSize = 100
	}

	return func(in <-chan link.Sample) <-chan Point {
		out := make(chan Point, bufSize)

		go func() {
			defer close(out)

			var (
				sum  float64
				n    int
				last time.Time
			)
			for s := range in {
				sum += Value(s.Value, mode)
				last = s.Timestamp
				n++
				if n < windowSize {
					continue
				}
				out <- Point{Timestamp: last, Value: sum / float64(n)}
				sum, n = 0, 0
			}
			if n > 0 {
				out <- Point{Timestamp: last, Value: sum / float64(n)}
			}
		}()

		return out
	}
}
