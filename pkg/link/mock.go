package link

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"github.com/itohio/goacq/pkg/config"
	"github.com/itohio/goacq/pkg/system"
	"github.com/itohio/goacq/pkg/telemetry"
)

// Mock runs a simulated acquisition system in-process and streams one sensor.
type Mock struct {
	cfg      *config.Config
	sensorID uint8
	mode     telemetry.Mode

	sys       *system.System
	samples   chan Sample
	decoder   *Decoder
	mu        sync.RWMutex
	ctx       context.Context
	cancel    context.CancelFunc
	connected bool
	closed    bool
	done      chan struct{}
}

// NewMock creates a mock source observing sensorID. A nil cfg uses the
// reference configuration.
func NewMock(cfg *config.Config, sensorID uint8, mode telemetry.Mode) *Mock {
	if cfg == nil {
		cfg = config.Default()
	}
	samples := make(chan Sample, DefaultBufferSize)
	return &Mock{
		cfg:      cfg,
		sensorID: sensorID,
		mode:     mode,
		samples:  samples,
		decoder:  NewDecoder(samples),
	}
}

// Connect starts the simulated system with acquisition enabled.
func (m *Mock) Connect() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.connected {
		return fmt.Errorf("already connected")
	}
	if m.closed {
		return fmt.Errorf("source closed")
	}

	hw, _ := system.Simulated(m.cfg)
	sys, err := system.New(m.cfg, hw, mockSender{m})
	if err != nil {
		return fmt.Errorf("failed to start simulated system: %w", err)
	}

	m.sys = sys
	m.ctx, m.cancel = context.WithCancel(context.Background())
	m.done = make(chan struct{})
	m.connected = true

	go func(ctx context.Context, done chan struct{}) {
		defer close(done)
		sys.Run(ctx)
	}(m.ctx, m.done)

	if !sys.Control.RequestEnable() {
		return fmt.Errorf("enable request rejected")
	}
	if !sys.TelemetryControl.RequestObserve(m.sensorID, m.mode) {
		return fmt.Errorf("telemetry request rejected")
	}
	return nil
}

func (m *Mock) Close() error {
	m.mu.Lock()
	if !m.connected {
		m.mu.Unlock()
		return nil
	}
	m.cancel()
	m.connected = false
	m.closed = true
	done := m.done
	m.mu.Unlock()

	<-done
	close(m.samples)
	return nil
}

func (m *Mock) Samples() <-chan Sample {
	return m.samples
}

func (m *Mock) IsConnected() bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.connected
}

// Execute runs a shell command line on the simulated system and returns its
// reply.
func (m *Mock) Execute(line string) (string, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if !m.connected {
		return "", fmt.Errorf("not connected")
	}
	var out strings.Builder
	m.sys.Shell.Execute(line, &out)
	return out.String(), nil
}

type mockSender struct {
	m *Mock
}

func (s mockSender) Send(v uint32) {
	s.m.decoder.Emit(s.m.ctx, v)
}
