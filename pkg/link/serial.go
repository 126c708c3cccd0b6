package link

import (
	"context"
	"fmt"
	"log"
	"sync"

	"go.bug.st/serial"
)

// Port represents a serial port.
type Port struct {
	Name        string
	Description string
}

// Ports returns a list of available serial ports.
func Ports() ([]Port, error) {
	ports, err := serial.GetPortsList()
	if err != nil {
		return nil, fmt.Errorf("failed to list serial ports: %w", err)
	}

	result := make([]Port, 0, len(ports))
	for _, name := range ports {
		result = append(result, Port{Name: name, Description: name})
	}
	return result, nil
}

// Serial reads the telemetry stream from a serial port.
type Serial struct {
	port     string
	baudRate int

	conn      serial.Port
	samples   chan Sample
	decoder   *Decoder
	mu        sync.RWMutex
	ctx       context.Context
	cancel    context.CancelFunc
	connected bool
	closed    bool
	done      chan struct{}
}

// NewSerial creates a serial source for port. Zero values select defaults.
func NewSerial(port string, baudRate int, bufSize int) *Serial {
	if baudRate == 0 {
		baudRate = DefaultBaudRate
	}
	if bufSize == 0 {
		bufSize = DefaultBufferSize
	}

	samples := make(chan Sample, bufSize)
	return &Serial{
		port:     port,
		baudRate: baudRate,
		samples:  samples,
		decoder:  NewDecoder(samples),
	}
}

// Connect opens the port and starts reading values.
func (d *Serial) Connect() error {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.connected {
		return fmt.Errorf("already connected")
	}
	if d.closed {
		return fmt.Errorf("source closed")
	}

	port, err := serial.Open(d.port, &serial.Mode{BaudRate: d.baudRate})
	if err != nil {
		return fmt.Errorf("failed to open serial port %s: %w", d.port, err)
	}

	d.conn = port
	d.connected = true
	d.ctx, d.cancel = context.WithCancel(context.Background())
	d.done = make(chan struct{})

	go d.read(d.ctx, port, d.done)

	return nil
}

// Close closes the port and the samples channel.
func (d *Serial) Close() error {
	d.mu.Lock()
	if !d.connected {
		d.mu.Unlock()
		return nil
	}
	d.cancel()
	if err := d.conn.Close(); err != nil {
		log.Printf("Error closing serial port: %v", err)
	}
	d.conn = nil
	d.connected = false
	d.closed = true
	done := d.done
	d.mu.Unlock()

	<-done
	close(d.samples)
	return nil
}

func (d *Serial) Samples() <-chan Sample {
	return d.samples
}

func (d *Serial) IsConnected() bool {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return d.connected
}

// Dropped returns the number of values lost to a slow consumer.
func (d *Serial) Dropped() uint64 {
	return d.decoder.Dropped()
}

func (d *Serial) read(ctx context.Context, port serial.Port, done chan struct{}) {
	defer close(done)
	if err := d.decoder.Decode(ctx, port); err != nil && ctx.Err() == nil {
		log.Printf("Error reading from serial port: %v", err)
	}
}
