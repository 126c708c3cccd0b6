package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// Config represents the acquisition system configuration.
//
// Default() is the reference build configuration. Acquisition timing must stay
// statically analyzable, so the running system reads the configuration once at
// start-up and never reloads it.
type Config struct {
	Acquisition AcquisitionConfig `yaml:"acquisition"`
	Sensors     SensorsConfig     `yaml:"sensors"`
	Signal      SignalConfig      `yaml:"signal"`
	Telemetry   TelemetryConfig   `yaml:"telemetry"`
	Serial      SerialConfig      `yaml:"serial"`
	Sim         SimConfig         `yaml:"sim"`
	Scope       ScopeConfig       `yaml:"scope"`
}

// AcquisitionConfig contains ADC trigger, DMA and task parameters.
type AcquisitionConfig struct {
	ChannelRateHz          uint32        `yaml:"channel_rate_hz"`           // Update rate per sensor
	SequencesPerHalfBuffer uint32        `yaml:"sequences_per_half_buffer"` // Higher: fewer IRQs, more latency
	KernelClockLimitHz     uint32        `yaml:"kernel_clock_limit_hz"`
	ADC2PhaseUs            uint32        `yaml:"adc2_phase_us"` // 0 = half period
	ADC3PhaseUs            uint32        `yaml:"adc3_phase_us"` // 0 = half period
	SettleUs               uint32        `yaml:"settle_us"`     // Analog front-end settle time after power-up
	TicksPerSecond         uint32        `yaml:"ticks_per_second"`
	TimerClockHz           uint32        `yaml:"timer_clock_hz"`
	FrameQueueSize         int           `yaml:"frame_queue_size"`
	ControlQueueSize       int           `yaml:"control_queue_size"`
	FrameWait              time.Duration `yaml:"frame_wait"` // Bounded wait for a frame while enabled
}

// SensorsConfig lists the sensor ids and the rank to sensor id table of each ADC.
type SensorsConfig struct {
	IDs      []uint8 `yaml:"ids"`
	ADC1Rank []uint8 `yaml:"adc1_ranks"`
	ADC2Rank []uint8 `yaml:"adc2_ranks"`
	ADC3Rank []uint8 `yaml:"adc3_ranks"`
}

// SignalConfig describes the per-channel processing pipeline.
type SignalConfig struct {
	FilteringEnabled bool      `yaml:"filtering_enabled"`
	Stages           []string  `yaml:"stages"` // identity, ema, sg5, tia
	EMA              EMAConfig `yaml:"ema"`
	Decimation       int       `yaml:"decimation"` // 1 = compute every sample
	TIA              TIAConfig `yaml:"tia"`
}

// EMAConfig holds the rational smoothing coefficient alpha = numerator/denominator.
type EMAConfig struct {
	Numerator   int32 `yaml:"numerator"`
	Denominator int32 `yaml:"denominator"`
}

// TIAConfig holds the transimpedance front-end constants.
type TIAConfig struct {
	VrefMilliVolts int32 `yaml:"vref_mv"`
	AdcBits        int32 `yaml:"adc_bits"`
	RfOhms         int32 `yaml:"rf_ohms"`
}

// TelemetryConfig contains sensor telemetry stream parameters.
type TelemetryConfig struct {
	PeriodMs    uint32 `yaml:"period_ms"`
	QueueSize   int    `yaml:"queue_size"`
	Transport   string `yaml:"transport"` // serial, websocket, none
	ListenAddr  string `yaml:"listen_addr"`
	ClientQueue int    `yaml:"client_queue"` // Per websocket client buffer
}

// SerialConfig contains serial port configuration.
type SerialConfig struct {
	Port     string `yaml:"port"`
	BaudRate int    `yaml:"baud_rate"`
}

// SimConfig contains simulated front-end parameters.
type SimConfig struct {
	FullScaleMicroAmps float64 `yaml:"full_scale_ua"` // Peak simulated current
	SignalHz           float64 `yaml:"signal_hz"`     // Base waveform frequency
	NoiseCounts        float64 `yaml:"noise_counts"`  // Noise amplitude in ADC counts
	FailCalibration    bool    `yaml:"fail_calibration"`
}

// ScopeConfig contains telemetry viewer parameters.
type ScopeConfig struct {
	Source         string  `yaml:"source"` // serial, websocket, mock
	URL            string  `yaml:"url"`
	SensorID       uint8   `yaml:"sensor_id"` // Observed by the mock source
	Mode           string  `yaml:"mode"`      // raw, processed
	WindowSeconds  float64 `yaml:"window_seconds"`
	AverageSamples int     `yaml:"average_samples"` // 0 = disabled
}

// Default returns the reference configuration.
func Default() *Config {
	return &Config{
		Acquisition: AcquisitionConfig{
			ChannelRateHz:          1500,
			SequencesPerHalfBuffer: 4,
			KernelClockLimitHz:     7_000_000,
			ADC2PhaseUs:            0,
			ADC3PhaseUs:            0,
			SettleUs:               70,
			TicksPerSecond:         1_000_000,
			TimerClockHz:           240_000_000,
			FrameQueueSize:         8,
			ControlQueueSize:       4,
			FrameWait:              time.Millisecond,
		},
		Sensors: SensorsConfig{
			IDs:      []uint8{1, 2, 3, 4, 5, 6, 7, 8, 9, 10, 11, 12, 13, 14, 15, 16, 17, 18, 19, 20, 21, 22},
			ADC1Rank: []uint8{1, 3, 5, 7, 9, 11, 12},
			ADC2Rank: []uint8{2, 4, 6, 8, 10, 15, 16},
			ADC3Rank: []uint8{13, 14, 17, 18, 19, 20, 21, 22},
		},
		Signal: SignalConfig{
			FilteringEnabled: true,
			Stages:           []string{"ema", "sg5"},
			EMA: EMAConfig{
				Numerator:   1,
				Denominator: 8,
			},
			Decimation: 1,
			TIA: TIAConfig{
				VrefMilliVolts: 2048,
				AdcBits:        16,
				RfOhms:         1800,
			},
		},
		Telemetry: TelemetryConfig{
			PeriodMs:    1,
			QueueSize:   4,
			Transport:   "serial",
			ListenAddr:  ":60001",
			ClientQueue: 256,
		},
		Serial: SerialConfig{
			Port:     "/dev/ttyACM0",
			BaudRate: 115200,
		},
		Sim: SimConfig{
			FullScaleMicroAmps: 800,
			SignalHz:           5,
			NoiseCounts:        40,
		},
		Scope: ScopeConfig{
			Source:        "serial",
			URL:           "ws://localhost:60001/telemetry",
			SensorID:      1,
			Mode:          "processed",
			WindowSeconds: 2,
		},
	}
}

// Load loads configuration from a YAML file. If the file doesn't exist or
// fields are missing, it uses default values.
func Load(filename string) (*Config, error) {
	cfg := Default()

	data, err := os.ReadFile(filename)
	if err != nil {
		if os.IsNotExist(err) {
			return cfg, nil
		}
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}

	cfg.ensureDefaults()

	return cfg, nil
}

// Save saves the configuration to a YAML file.
func (c *Config) Save(filename string) error {
	data, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}

	if err := os.WriteFile(filename, data, 0644); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}

	return nil
}

// ensureDefaults ensures that all required fields have default values if missing.
func (c *Config) ensureDefaults() {
	def := Default()

	a := &c.Acquisition
	if a.ChannelRateHz == 0 {
		a.ChannelRateHz = def.Acquisition.ChannelRateHz
	}
	if a.SequencesPerHalfBuffer == 0 {
		a.SequencesPerHalfBuffer = def.Acquisition.SequencesPerHalfBuffer
	}
	if a.KernelClockLimitHz == 0 {
		a.KernelClockLimitHz = def.Acquisition.KernelClockLimitHz
	}
	if a.TicksPerSecond == 0 {
		a.TicksPerSecond = def.Acquisition.TicksPerSecond
	}
	if a.TimerClockHz == 0 {
		a.TimerClockHz = def.Acquisition.TimerClockHz
	}
	if a.FrameQueueSize == 0 {
		a.FrameQueueSize = def.Acquisition.FrameQueueSize
	}
	if a.ControlQueueSize == 0 {
		a.ControlQueueSize = def.Acquisition.ControlQueueSize
	}
	if a.FrameWait == 0 {
		a.FrameWait = def.Acquisition.FrameWait
	}

	if len(c.Sensors.IDs) == 0 {
		c.Sensors.IDs = def.Sensors.IDs
	}
	if len(c.Sensors.ADC1Rank) == 0 {
		c.Sensors.ADC1Rank = def.Sensors.ADC1Rank
	}
	if len(c.Sensors.ADC2Rank) == 0 {
		c.Sensors.ADC2Rank = def.Sensors.ADC2Rank
	}
	if len(c.Sensors.ADC3Rank) == 0 {
		c.Sensors.ADC3Rank = def.Sensors.ADC3Rank
	}

	if len(c.Signal.Stages) == 0 {
		c.Signal.Stages = def.Signal.Stages
	}
	if c.Signal.EMA.Denominator == 0 {
		c.Signal.EMA = def.Signal.EMA
	}
	if c.Signal.Decimation == 0 {
		c.Signal.Decimation = def.Signal.Decimation
	}
	if c.Signal.TIA.VrefMilliVolts == 0 {
		c.Signal.TIA.VrefMilliVolts = def.Signal.TIA.VrefMilliVolts
	}
	if c.Signal.TIA.AdcBits == 0 {
		c.Signal.TIA.AdcBits = def.Signal.TIA.AdcBits
	}
	if c.Signal.TIA.RfOhms == 0 {
		c.Signal.TIA.RfOhms = def.Signal.TIA.RfOhms
	}

	if c.Telemetry.PeriodMs == 0 {
		c.Telemetry.PeriodMs = def.Telemetry.PeriodMs
	}
	if c.Telemetry.QueueSize == 0 {
		c.Telemetry.QueueSize = def.Telemetry.QueueSize
	}
	if c.Telemetry.Transport == "" {
		c.Telemetry.Transport = def.Telemetry.Transport
	}
	if c.Telemetry.ListenAddr == "" {
		c.Telemetry.ListenAddr = def.Telemetry.ListenAddr
	}
	if c.Telemetry.ClientQueue == 0 {
		c.Telemetry.ClientQueue = def.Telemetry.ClientQueue
	}

	if c.Serial.Port == "" {
		c.Serial.Port = def.Serial.Port
	}
	if c.Serial.BaudRate == 0 {
		c.Serial.BaudRate = def.Serial.BaudRate
	}

	if c.Sim.FullScaleMicroAmps == 0 {
		c.Sim.FullScaleMicroAmps = def.Sim.FullScaleMicroAmps
	}
	if c.Sim.SignalHz == 0 {
		c.Sim.SignalHz = def.Sim.SignalHz
	}

	if c.Scope.Source == "" {
		c.Scope.Source = def.Scope.Source
	}
	if c.Scope.URL == "" {
		c.Scope.URL = def.Scope.URL
	}
	if c.Scope.SensorID == 0 {
		c.Scope.SensorID = def.Scope.SensorID
	}
	if c.Scope.Mode == "" {
		c.Scope.Mode = def.Scope.Mode
	}
	if c.Scope.WindowSeconds <= 0 {
		c.Scope.WindowSeconds = def.Scope.WindowSeconds
	}
}

// TicksPerSequenceEstimate returns the rounded number of timestamp ticks
// between two sequences at the configured channel rate. It seeds the
// per-sequence timestamp step until two half-buffer timestamps are known.
func (a AcquisitionConfig) TicksPerSequenceEstimate() uint32 {
	if a.ChannelRateHz == 0 {
		return 0
	}
	return (a.TicksPerSecond + a.ChannelRateHz/2) / a.ChannelRateHz
}

// Window returns the visible time span of the viewer.
func (s ScopeConfig) Window() time.Duration {
	return time.Duration(s.WindowSeconds * float64(time.Second))
}
