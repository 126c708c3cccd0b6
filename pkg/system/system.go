package system

import (
	"context"
	"fmt"
	"log"
	"sync"

	"github.com/itohio/goacq/pkg/acq"
	"github.com/itohio/goacq/pkg/adc"
	"github.com/itohio/goacq/pkg/config"
	"github.com/itohio/goacq/pkg/sensor"
	"github.com/itohio/goacq/pkg/shell"
	"github.com/itohio/goacq/pkg/signal"
	"github.com/itohio/goacq/pkg/telemetry"
)

// Hardware is the set of capabilities the acquisition system runs on.
type Hardware struct {
	Pin         acq.OutputPin
	Ticks       acq.TickSource
	Peripherals [adc.NumGroups]adc.Peripheral
	Trigger     adc.TriggerSchedule

	// Connect routes DMA complete interrupts to the driver. Optional.
	Connect func(dma *adc.DMA)
}

// System is the fully wired acquisition system.
type System struct {
	cfg *config.Config

	Registry *sensor.Registry
	Group    *sensor.Group
	DMA      *adc.DMA

	Acquisition *acq.Task
	Control     *acq.Control

	Telemetry        *telemetry.Task
	TelemetryControl *telemetry.Control

	Shell *shell.Dispatcher
}

// New validates cfg and builds every component. Nothing runs until Run.
func New(cfg *config.Config, hw Hardware, sender telemetry.Sender) (*System, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	if hw.Pin == nil || hw.Ticks == nil {
		return nil, fmt.Errorf("hardware pin and tick source are required")
	}
	if sender == nil {
		sender = telemetry.Discard{}
	}

	registry, err := sensor.NewRegistry(cfg.Sensors.IDs)
	if err != nil {
		return nil, fmt.Errorf("failed to create sensor registry: %w", err)
	}

	group, err := newGroup(cfg, registry)
	if err != nil {
		return nil, err
	}

	frames := make(chan adc.FrameDescriptor, cfg.Acquisition.FrameQueueSize)
	dma, err := adc.NewDMA(cfg.Acquisition, hw.Peripherals, hw.Trigger, frames)
	if err != nil {
		return nil, fmt.Errorf("failed to create dma driver: %w", err)
	}
	if hw.Connect != nil {
		hw.Connect(dma)
	}

	decoders, err := newDecoders(cfg, group)
	if err != nil {
		return nil, err
	}

	commands := make(chan acq.Command, cfg.Acquisition.ControlQueueSize)
	state := &acq.StateCell{}
	sequencer := acq.NewSequencer(hw.Pin, acq.NewSpinDelay(hw.Ticks), dma)
	task := acq.NewTask(cfg.Acquisition, frames, commands, sequencer, decoders, group, state)
	control := acq.NewControl(commands, state)

	telemetryCommands := make(chan telemetry.Command, cfg.Telemetry.QueueSize)
	status := &telemetry.StatusCell{}
	telemetryTask := telemetry.NewTask(cfg.Telemetry.PeriodMs, telemetryCommands, status, registry, control, sender)
	telemetryControl := telemetry.NewControl(telemetryCommands, status)

	sh := shell.NewDispatcher()
	sh.Register("adc", "adc on|off|status", shell.Adc(control, task, cfg.Acquisition))
	sh.Register("sensor_rtt", "sensor_rtt <id> [raw|processed] | freq [hz] | off | status",
		shell.SensorRTT(telemetryControl, registry))

	return &System{
		cfg:              cfg,
		Registry:         registry,
		Group:            group,
		DMA:              dma,
		Acquisition:      task,
		Control:          control,
		Telemetry:        telemetryTask,
		TelemetryControl: telemetryControl,
		Shell:            sh,
	}, nil
}

// Run runs the acquisition and telemetry tasks until ctx is done. Acquisition
// is left disabled on return.
func (s *System) Run(ctx context.Context) {
	log.Printf("Acquisition: %d sensors, %d Hz per channel, %d sequences per half buffer",
		s.Registry.Len(), s.cfg.Acquisition.ChannelRateHz, s.cfg.Acquisition.SequencesPerHalfBuffer)

	var wg sync.WaitGroup
	wg.Add(2)
	go func() {
		defer wg.Done()
		s.Acquisition.Run(ctx)
	}()
	go func() {
		defer wg.Done()
		s.Telemetry.Run(ctx)
	}()
	wg.Wait()

	st := s.Acquisition.Stats()
	log.Printf("Acquisition stopped: %d frames, %d sequences, %d missed, %d dma drops",
		st.FramesProcessed, st.SequencesDecoded, st.FramesMissed, s.DMA.Dropped())
}

// newGroup binds sensor id n to index n-1 with a fresh processor per channel.
func newGroup(cfg *config.Config, registry *sensor.Registry) (*sensor.Group, error) {
	maxID := 0
	for _, id := range cfg.Sensors.IDs {
		maxID = max(maxID, int(id))
	}

	sensors := make([]*sensor.Sensor, maxID)
	processors := make([]signal.Processor, maxID)
	for i := range sensors {
		s, ok := registry.FindByID(uint8(i + 1))
		if !ok {
			continue
		}
		p, err := signal.New(cfg.Signal)
		if err != nil {
			return nil, fmt.Errorf("failed to create pipeline for sensor %d: %w", s.ID(), err)
		}
		sensors[i] = s
		processors[i] = p
	}

	group, err := sensor.NewGroup(sensors, processors)
	if err != nil {
		return nil, fmt.Errorf("failed to create sensor group: %w", err)
	}
	return group, nil
}

func newDecoders(cfg *config.Config, group *sensor.Group) ([adc.NumGroups]*acq.FrameDecoder, error) {
	var decoders [adc.NumGroups]*acq.FrameDecoder
	ranks := [adc.NumGroups][]uint8{cfg.Sensors.ADC1Rank, cfg.Sensors.ADC2Rank, cfg.Sensors.ADC3Rank}
	estimate := cfg.Acquisition.TicksPerSequenceEstimate()
	for _, g := range adc.Groups {
		d, err := acq.NewFrameDecoder(acq.RankMap(ranks[g]), group, estimate)
		if err != nil {
			return decoders, fmt.Errorf("failed to create %s decoder: %w", g, err)
		}
		decoders[g] = d
	}
	return decoders, nil
}
