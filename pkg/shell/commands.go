package shell

import (
	"fmt"
	"io"
	"strconv"

	"github.com/itohio/goacq/pkg/acq"
	"github.com/itohio/goacq/pkg/config"
	"github.com/itohio/goacq/pkg/telemetry"
)

// AcquisitionControl is what the adc command needs from the acquisition task.
type AcquisitionControl interface {
	RequestEnable() bool
	RequestDisable() bool
	State() acq.State
}

// AcquisitionStats reports counters for adc status. Implementations may be nil.
type AcquisitionStats interface {
	Stats() acq.Stats
}

// Adc returns the handler of "adc on|off|status".
func Adc(control AcquisitionControl, stats AcquisitionStats, cfg config.AcquisitionConfig) Handler {
	return func(args []string, out io.Writer) {
		switch arg(args, 1) {
		case "on":
			if !control.RequestEnable() {
				io.WriteString(out, "error: enable request rejected\r\n")
				return
			}
			io.WriteString(out, "ok\r\n")
		case "off":
			if !control.RequestDisable() {
				io.WriteString(out, "error: disable request rejected\r\n")
				return
			}
			io.WriteString(out, "ok\r\n")
		case "status":
			fmt.Fprintf(out, "%s channel_rate_hz=%d seq_half=%d adc_kernel_limit_hz=%d ticks_per_seq_est=%d\r\n",
				control.State(), cfg.ChannelRateHz, cfg.SequencesPerHalfBuffer, cfg.KernelClockLimitHz,
				cfg.TicksPerSequenceEstimate())
			if stats != nil {
				s := stats.Stats()
				fmt.Fprintf(out, "enables=%d enable_failures=%d frames=%d dropped=%d missed=%d sequences=%d\r\n",
					s.Enables, s.EnableFailures, s.FramesProcessed, s.FramesDropped, s.FramesMissed, s.SequencesDecoded)
			}
		default:
			io.WriteString(out, "usage: adc on|off|status\r\n")
		}
	}
}

// TelemetryControl is what the sensor_rtt command needs from the telemetry task.
type TelemetryControl interface {
	RequestOff() bool
	RequestObserve(id uint8, mode telemetry.Mode) bool
	RequestSetPeriod(ms uint32) bool
	Status() telemetry.Status
}

// SensorRTT returns the handler of "sensor_rtt".
func SensorRTT(control TelemetryControl, sensors telemetry.SensorFinder) Handler {
	usage := func(out io.Writer) {
		io.WriteString(out, "usage: sensor_rtt <id> [raw|processed]\r\n")
		io.WriteString(out, "       sensor_rtt freq [value]\r\n")
		io.WriteString(out, "       sensor_rtt off\r\n")
		io.WriteString(out, "       sensor_rtt status\r\n")
	}
	reply := func(out io.Writer, accepted bool) {
		if !accepted {
			io.WriteString(out, "error: request rejected\r\n")
			return
		}
		io.WriteString(out, "ok\r\n")
	}

	return func(args []string, out io.Writer) {
		op := arg(args, 1)
		switch op {
		case "":
			usage(out)
		case "off":
			reply(out, control.RequestOff())
		case "status":
			st := control.Status()
			if !st.Enabled {
				io.WriteString(out, "off\r\n")
				return
			}
			fmt.Fprintf(out, "on id=%d mode=%s period_ms=%d\r\n", st.SensorID, st.Mode, st.PeriodMs)
		case "freq":
			if arg(args, 2) == "" {
				var hz uint32
				if p := control.Status().PeriodMs; p > 0 {
					hz = 1000 / p
				}
				fmt.Fprintf(out, "%d\r\n", hz)
				return
			}
			hz, err := strconv.ParseUint(args[2], 10, 32)
			if err != nil {
				usage(out)
				return
			}
			period, err := telemetry.PeriodFromHz(uint32(hz))
			if err != nil {
				usage(out)
				return
			}
			reply(out, control.RequestSetPeriod(period))
		default:
			id, err := strconv.ParseUint(op, 10, 8)
			if err != nil {
				usage(out)
				return
			}
			mode := telemetry.Raw
			if m := arg(args, 2); m != "" {
				if mode, err = telemetry.ParseMode(m); err != nil {
					usage(out)
					return
				}
			}
			if _, ok := sensors.FindByID(uint8(id)); !ok {
				io.WriteString(out, "error: unknown sensor id\r\n")
				return
			}
			reply(out, control.RequestObserve(uint8(id), mode))
		}
	}
}
