package main

import (
	"flag"
	"fmt"
	"log"
	"strings"
	"time"

	"fyne.io/fyne/v2"
	"fyne.io/fyne/v2/app"
	"fyne.io/fyne/v2/container"
	"fyne.io/fyne/v2/dialog"
	"fyne.io/fyne/v2/theme"
	"fyne.io/fyne/v2/widget"
	"github.com/itohio/goacq/pkg/config"
	"github.com/itohio/goacq/pkg/link"
	"github.com/itohio/goacq/pkg/scope"
	"github.com/itohio/goacq/pkg/telemetry"
	"github.com/itohio/goacq/pkg/trace"
)

// ~60 FPS
const updateInterval = 16 * time.Millisecond

func main() {
	var (
		portFlag           = flag.String("p", "", "Serial port override (e.g., COM3 or /dev/ttyACM0)")
		configFlag         = flag.String("config", "config.yaml", "Configuration file path")
		mockFlag           = flag.Bool("mock", false, "Plot an in-process simulated system instead of a device")
		urlFlag            = flag.String("url", "", "Read telemetry from an acqsim websocket (e.g., ws://localhost:60001/telemetry)")
		averageSamplesFlag = flag.Int("average-samples", -1, "Number of samples to average (0 = disabled, overrides config)")
	)
	flag.Parse()

	cfg, err := config.Load(*configFlag)
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}
	if *portFlag != "" {
		cfg.Serial.Port = *portFlag
		cfg.Scope.Source = "serial"
	}
	if *urlFlag != "" {
		cfg.Scope.URL = *urlFlag
		cfg.Scope.Source = "websocket"
	}
	if *mockFlag {
		cfg.Scope.Source = "mock"
	}
	if *averageSamplesFlag >= 0 {
		cfg.Scope.AverageSamples = *averageSamplesFlag
	}
	mode, err := telemetry.ParseMode(cfg.Scope.Mode)
	if err != nil {
		log.Fatalf("Invalid scope mode: %v", err)
	}

	application := app.NewWithID("com.itohio.goacq.rttscope")

	window := application.NewWindow("Sensor Telemetry Scope")
	window.Resize(fyne.NewSize(1200, 800))
	window.CenterOnScreen()

	state := &appState{
		cfg:        cfg,
		configPath: *configFlag,
		window:     window,
		mode:       mode,
		trace:      trace.New(cfg.Scope.Window(), updateInterval),
	}

	toolbar := createToolbar(state)

	state.scopeWidget = scope.New(cfg.Scope.Window(), unitFor(mode))
	state.trace.OnUpdate(func(points []trace.Point, stats trace.Stats) {
		fyne.Do(func() {
			state.scopeWidget.UpdateData(points, stats)
		})
	})

	window.SetContent(container.NewBorder(
		toolbar,
		createShell(state),
		nil,
		nil,
		state.scopeWidget,
	))
	window.SetOnClosed(func() {
		closeChain(state.chain)
	})
	window.ShowAndRun()
}

// chain tracks the running source and its consumer for graceful shutdown.
type chain struct {
	source    link.Source
	traceDone chan struct{} // Closed when the trace goroutine exits
}

type appState struct {
	cfg         *config.Config
	configPath  string
	window      fyne.Window
	mode        telemetry.Mode
	trace       *trace.Trace
	scopeWidget *scope.ScopeWidget
	connectBtn  *widget.Button
	shellOutput *widget.Label
	chain       *chain // nil if not connected
}

func createToolbar(state *appState) fyne.CanvasObject {
	connectBtn := widget.NewButtonWithIcon("", theme.LoginIcon(), func() {
		handleConnect(state)
	})
	state.connectBtn = connectBtn

	settingsBtn := widget.NewButtonWithIcon("", theme.SettingsIcon(), func() {
		showSettingsDialog(state)
	})

	clearBtn := widget.NewButtonWithIcon("", theme.DeleteIcon(), func() {
		state.trace.Clear()
		state.scopeWidget.UpdateData(nil, trace.Stats{})
	})

	return container.NewHBox(connectBtn, settingsBtn, clearBtn)
}

// createShell builds the command line forwarded to the mock system's shell.
func createShell(state *appState) fyne.CanvasObject {
	state.shellOutput = widget.NewLabel("")

	entry := widget.NewEntry()
	entry.SetPlaceHolder("adc status | sensor_rtt <id> [raw|processed] | help")
	entry.OnSubmitted = func(line string) {
		entry.SetText("")
		state.shellOutput.SetText(runShell(state, line))
	}

	return container.NewBorder(nil, nil, widget.NewLabel(">"), nil,
		container.NewVBox(entry, state.shellOutput))
}

func runShell(state *appState, line string) string {
	if state.chain == nil {
		return "not connected"
	}
	mock, ok := state.chain.source.(*link.Mock)
	if !ok {
		return "the shell is only available with the mock source"
	}
	reply, err := mock.Execute(line)
	if err != nil {
		return err.Error()
	}
	return strings.TrimRight(strings.ReplaceAll(reply, "\r\n", "\n"), "\n")
}

func newSource(cfg *config.Config, mode telemetry.Mode) (link.Source, error) {
	switch cfg.Scope.Source {
	case "serial":
		return link.NewSerial(cfg.Serial.Port, cfg.Serial.BaudRate, link.DefaultBufferSize), nil
	case "websocket":
		return link.NewWebsocket(cfg.Scope.URL, link.DefaultBufferSize), nil
	case "mock":
		return link.NewMock(cfg, cfg.Scope.SensorID, mode), nil
	default:
		return nil, fmt.Errorf("unknown source %q", cfg.Scope.Source)
	}
}

// closeChain closes the source and waits for the trace to drain.
func closeChain(c *chain) {
	if c == nil {
		return
	}
	if err := c.source.Close(); err != nil {
		log.Printf("Error closing source: %v", err)
	}
	<-c.traceDone
}

func handleConnect(state *appState) {
	if state.chain != nil {
		closeChain(state.chain)
		state.chain = nil
		state.connectBtn.SetIcon(theme.LoginIcon())
		log.Printf("Disconnected from %s source", state.cfg.Scope.Source)
		return
	}

	source, err := newSource(state.cfg, state.mode)
	if err != nil {
		dialog.ShowError(err, state.window)
		return
	}
	if err := source.Connect(); err != nil {
		_ = source.Close()
		dialog.ShowError(fmt.Errorf("failed to connect: %w", err), state.window)
		return
	}
	log.Printf("Connected to %s source", state.cfg.Scope.Source)
	state.connectBtn.SetIcon(theme.LogoutIcon())

	var convert trace.Converter
	if state.cfg.Scope.AverageSamples > 1 {
		convert = trace.NewAveragingConverter(state.mode, state.cfg.Scope.AverageSamples, 500)
	} else {
		convert = trace.NewConverter(state.mode, 500)
	}
	points := convert(source.Samples())

	state.trace.Clear()
	state.trace.ResetShutdown()
	state.scopeWidget.SetLabel(caption(state.cfg, state.mode))

	done := make(chan struct{})
	go func() {
		defer close(done)
		state.trace.ProcessPoints(points)
	}()

	state.chain = &chain{source: source, traceDone: done}
}

func caption(cfg *config.Config, mode telemetry.Mode) string {
	switch cfg.Scope.Source {
	case "mock":
		return fmt.Sprintf("simulated sensor %d (%s)", cfg.Scope.SensorID, mode)
	case "websocket":
		return fmt.Sprintf("%s (%s)", cfg.Scope.URL, mode)
	default:
		return fmt.Sprintf("%s (%s)", cfg.Serial.Port, mode)
	}
}

func unitFor(mode telemetry.Mode) string {
	if mode == telemetry.Raw {
		return "counts"
	}
	return ""
}
