package link

import (
	"context"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"sync/atomic"
	"time"

	"github.com/itohio/goacq/pkg/telemetry"
)

const (
	// DefaultBaudRate is the baud rate the telemetry port is opened with.
	DefaultBaudRate = 115200
	// DefaultBufferSize is the default size for the samples channel buffer.
	DefaultBufferSize = 1024
)

// Sample is one telemetry value stamped with the host receive time.
type Sample struct {
	Timestamp time.Time
	Value     uint32
}

// Source delivers the telemetry stream of one observed sensor.
type Source interface {
	Connect() error
	Close() error
	Samples() <-chan Sample
	IsConnected() bool
}

var (
	_ Source = (*Serial)(nil)
	_ Source = (*Websocket)(nil)
	_ Source = (*Mock)(nil)
)

// Decoder splits a byte stream into telemetry values.
type Decoder struct {
	out     chan<- Sample
	now     func() time.Time
	dropped atomic.Uint64
}

func NewDecoder(out chan<- Sample) *Decoder {
	return &Decoder{out: out, now: time.Now}
}

// Dropped returns the number of values lost to a full samples channel.
func (d *Decoder) Dropped() uint64 { return d.dropped.Load() }

// Decode reads 4-byte little-endian values from r until ctx is done or r
// fails. A clean EOF on a frame boundary returns nil.
func (d *Decoder) Decode(ctx context.Context, r io.Reader) error {
	var buf [telemetry.FrameSize]byte
	for {
		if ctx.Err() != nil {
			return nil
		}
		if _, err := io.ReadFull(r, buf[:]); err != nil {
			if errors.Is(err, io.EOF) {
				return nil
			}
			if errors.Is(err, io.ErrUnexpectedEOF) {
				return fmt.Errorf("truncated telemetry frame")
			}
			return fmt.Errorf("failed to read telemetry: %w", err)
		}
		d.Emit(ctx, binary.LittleEndian.Uint32(buf[:]))
	}
}

// Emit stamps v and forwards it without blocking.
func (d *Decoder) Emit(ctx context.Context, v uint32) {
	select {
	case d.out <- Sample{Timestamp: d.now(), Value: v}:
	case <-ctx.Done():
	default:
		d.dropped.Add(1)
	}
}

// Milli converts a processed-mode value back to the sensor's unit.
func Milli(v uint32) float64 {
	return float64(v) / 1000
}
