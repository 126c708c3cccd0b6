package main

import (
	"fmt"
	"strconv"

	"fyne.io/fyne/v2"
	"fyne.io/fyne/v2/container"
	"fyne.io/fyne/v2/dialog"
	"fyne.io/fyne/v2/widget"
	"github.com/itohio/goacq/pkg/link"
	"github.com/itohio/goacq/pkg/telemetry"
)

// showSettingsDialog displays the source and display settings.
func showSettingsDialog(state *appState) {
	tabs := container.NewAppTabs(
		createSourceTab(state),
		createDisplayTab(state),
	)

	content := container.NewBorder(nil, nil, nil, nil, tabs)
	content.Resize(fyne.NewSize(600, 400))

	d := dialog.NewCustom("Settings", "Close", content, state.window)
	d.Resize(fyne.NewSize(600, 400))
	d.Show()
}

// portOptions lists serial ports by display name, keeping current selectable
// even when it is not present.
func portOptions(current string) ([]string, map[string]string, string) {
	var options []string
	names := make(map[string]string)

	if ports, err := link.Ports(); err == nil {
		for _, port := range ports {
			display := port.Name
			if port.Description != "" && port.Description != port.Name {
				display = fmt.Sprintf("%s (%s)", port.Name, port.Description)
			}
			options = append(options, display)
			names[display] = port.Name
		}
	}

	for display, name := range names {
		if name == current {
			return options, names, display
		}
	}
	if current != "" {
		options = append(options, current)
		names[current] = current
	}
	return options, names, current
}

func createSourceTab(state *appState) *container.TabItem {
	sourceSelect := widget.NewSelect([]string{"serial", "websocket", "mock"}, nil)
	sourceSelect.SetSelected(state.cfg.Scope.Source)

	options, names, current := portOptions(state.cfg.Serial.Port)
	portSelect := widget.NewSelect(options, nil)
	if current != "" {
		portSelect.SetSelected(current)
	}

	urlEntry := widget.NewEntry()
	urlEntry.SetText(state.cfg.Scope.URL)

	sensorEntry := widget.NewEntry()
	sensorEntry.SetText(strconv.Itoa(int(state.cfg.Scope.SensorID)))

	form := &widget.Form{
		Items: []*widget.FormItem{
			{Text: "Source", Widget: sourceSelect},
			{Text: "Serial Port", Widget: portSelect},
			{Text: "Websocket URL", Widget: urlEntry},
			{Text: "Simulated Sensor ID", Widget: sensorEntry},
		},
		OnSubmit: func() {
			scope := state.cfg.Scope
			serialPort := state.cfg.Serial.Port

			if sourceSelect.Selected != "" {
				scope.Source = sourceSelect.Selected
			}
			if portSelect.Selected != "" {
				serialPort = names[portSelect.Selected]
				if serialPort == "" {
					serialPort = portSelect.Selected
				}
			}
			if urlEntry.Text != "" {
				scope.URL = urlEntry.Text
			}
			if id, err := strconv.ParseUint(sensorEntry.Text, 10, 8); err == nil && id > 0 {
				scope.SensorID = uint8(id)
			}

			changed := scope != state.cfg.Scope || serialPort != state.cfg.Serial.Port
			state.cfg.Scope = scope
			state.cfg.Serial.Port = serialPort
			applySettings(state, changed)
		},
	}

	return container.NewTabItem("Source", form)
}

func createDisplayTab(state *appState) *container.TabItem {
	modeSelect := widget.NewSelect([]string{telemetry.Raw.String(), telemetry.Processed.String()}, nil)
	modeSelect.SetSelected(state.mode.String())

	windowEntry := widget.NewEntry()
	windowEntry.SetText(fmt.Sprintf("%.1f", state.cfg.Scope.WindowSeconds))

	averageEntry := widget.NewEntry()
	averageEntry.SetText(strconv.Itoa(state.cfg.Scope.AverageSamples))

	form := &widget.Form{
		Items: []*widget.FormItem{
			{Text: "Mode", Widget: modeSelect},
			{Text: "Window (seconds)", Widget: windowEntry},
			{Text: "Average Samples (0=disabled)", Widget: averageEntry},
		},
		OnSubmit: func() {
			scope := state.cfg.Scope
			if mode, err := telemetry.ParseMode(modeSelect.Selected); err == nil {
				scope.Mode = mode.String()
				state.mode = mode
				state.scopeWidget.SetUnit(unitFor(mode))
			}
			if ws, err := strconv.ParseFloat(windowEntry.Text, 64); err == nil && ws > 0 {
				scope.WindowSeconds = ws
			}
			if avg, err := strconv.Atoi(averageEntry.Text); err == nil && avg >= 0 {
				scope.AverageSamples = avg
			}

			changed := scope != state.cfg.Scope
			state.cfg.Scope = scope
			state.trace.SetWindow(scope.Window())
			state.scopeWidget.SetWindow(scope.Window())
			applySettings(state, changed)
		},
	}

	return container.NewTabItem("Display", form)
}

// applySettings saves the configuration and restarts a running chain when the
// settings changed.
func applySettings(state *appState, changed bool) {
	if err := state.cfg.Save(state.configPath); err != nil {
		dialog.ShowError(fmt.Errorf("failed to save config: %w", err), state.window)
		return
	}
	if !changed || state.chain == nil {
		return
	}

	// disconnect, then reconnect with the new settings
	handleConnect(state)
	handleConnect(state)
}
