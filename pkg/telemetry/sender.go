package telemetry

import (
	"encoding/binary"
	"fmt"
	"io"
	"log"
	"sync"
	"sync/atomic"

	"github.com/itohio/goacq/pkg/config"
	"go.bug.st/serial"
)

// FrameSize is the size of one value on the wire.
const FrameSize = 4

// StreamSender writes each value as 4 little-endian bytes.
type StreamSender struct {
	mu      sync.Mutex
	w       io.Writer
	buf     [FrameSize]byte
	failing bool
	errors  atomic.Uint64
}

func NewStreamSender(w io.Writer) *StreamSender {
	return &StreamSender{w: w}
}

func (s *StreamSender) Send(value uint32) {
	s.mu.Lock()
	defer s.mu.Unlock()

	binary.LittleEndian.PutUint32(s.buf[:], value)
	if _, err := s.w.Write(s.buf[:]); err != nil {
		s.errors.Add(1)
		if !s.failing {
			log.Printf("Telemetry write failed: %v", err)
			s.failing = true
		}
		return
	}
	if s.failing {
		log.Printf("Telemetry write recovered after %d errors", s.errors.Load())
		s.failing = false
	}
}

// Errors returns the number of failed writes.
func (s *StreamSender) Errors() uint64 { return s.errors.Load() }

// SerialSender streams values to a serial port.
type SerialSender struct {
	*StreamSender
	port serial.Port
}

// OpenSerial opens the configured serial port for telemetry output.
func OpenSerial(cfg config.SerialConfig) (*SerialSender, error) {
	port, err := serial.Open(cfg.Port, &serial.Mode{BaudRate: cfg.BaudRate})
	if err != nil {
		return nil, fmt.Errorf("failed to open serial port %s: %w", cfg.Port, err)
	}
	return &SerialSender{StreamSender: NewStreamSender(port), port: port}, nil
}

func (s *SerialSender) Close() error {
	if err := s.port.Close(); err != nil {
		return fmt.Errorf("failed to close serial port: %w", err)
	}
	return nil
}

// Discard drops every value.
type Discard struct{}

func (Discard) Send(uint32) {}
