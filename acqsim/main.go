package main

import (
	"context"
	"flag"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/itohio/goacq/pkg/config"
	"github.com/itohio/goacq/pkg/system"
	"github.com/itohio/goacq/pkg/telemetry"
)

func main() {
	var (
		configFlag    = flag.String("config", "config.yaml", "Configuration file path")
		telemetryFlag = flag.String("telemetry", "", "Telemetry transport override: serial, websocket or none")
		portFlag      = flag.String("p", "", "Serial port override (e.g., COM3 or /dev/ttyACM0)")
		listenFlag    = flag.String("listen", "", "Websocket listen address override (e.g., :60001)")
		enableFlag    = flag.Bool("enable", false, "Enable acquisition at start-up")
	)
	flag.Parse()

	cfg, err := config.Load(*configFlag)
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}
	if *telemetryFlag != "" {
		cfg.Telemetry.Transport = *telemetryFlag
	}
	if *portFlag != "" {
		cfg.Serial.Port = *portFlag
	}
	if *listenFlag != "" {
		cfg.Telemetry.ListenAddr = *listenFlag
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	sender, closeSender := openTelemetry(ctx, cfg)
	defer closeSender()

	hw, _ := system.Simulated(cfg)
	sys, err := system.New(cfg, hw, sender)
	if err != nil {
		log.Fatalf("Failed to create acquisition system: %v", err)
	}

	done := make(chan struct{})
	go func() {
		defer close(done)
		sys.Run(ctx)
	}()

	if *enableFlag && !sys.Control.RequestEnable() {
		log.Printf("Enable request rejected")
	}

	go func() {
		if err := sys.Shell.Serve(ctx, os.Stdin, os.Stdout); err != nil {
			log.Printf("Shell stopped: %v", err)
		}
	}()

	<-done
}

// openTelemetry creates the configured telemetry sender and its cleanup.
func openTelemetry(ctx context.Context, cfg *config.Config) (telemetry.Sender, func()) {
	switch cfg.Telemetry.Transport {
	case "serial":
		s, err := telemetry.OpenSerial(cfg.Serial)
		if err != nil {
			log.Fatalf("Failed to open telemetry output: %v", err)
		}
		log.Printf("Streaming telemetry to serial port: %s", cfg.Serial.Port)
		return s, func() {
			if err := s.Close(); err != nil {
				log.Printf("Error closing telemetry output: %v", err)
			}
		}
	case "websocket":
		hub := telemetry.NewHub(cfg.Telemetry.ClientQueue)
		go func() {
			if err := hub.ListenAndServe(ctx, cfg.Telemetry.ListenAddr); err != nil {
				log.Printf("Telemetry server stopped: %v", err)
			}
		}()
		return hub, hub.Close
	default:
		return telemetry.Discard{}, func() {}
	}
}
