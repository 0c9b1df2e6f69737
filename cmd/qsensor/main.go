// Command qsensor connects to a Q-Series sensor (or a simulated one),
// pushes the configured acquisition settings, and records readings until
// interrupted.
package main

import (
	"flag"
	"io"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"gopkg.in/natefinch/lumberjack.v2"

	"github.com/Matthue7/Q-Sensor-API/pkg/config"
	"github.com/Matthue7/Q-Sensor-API/pkg/qsensor"
	"github.com/Matthue7/Q-Sensor-API/pkg/recorder"
)

func main() {
	var (
		portFlag   = flag.String("p", "", "Serial port override (e.g., /dev/ttyUSB0)")
		configFlag = flag.String("config", "config.yaml", "Configuration file path")
		simFlag    = flag.Bool("sim", false, "Use a simulated sensor instead of a serial port")
	)
	flag.Parse()

	// Load configuration
	cfg, err := config.Load(*configFlag)
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}
	if *portFlag != "" {
		cfg.Serial.Port = *portFlag
	}
	if *simFlag {
		cfg.Sim.Enabled = true
	}

	setupLogging(cfg.Logging)

	if cfg.Metrics.Listen != "" {
		go func() {
			mux := http.NewServeMux()
			mux.Handle("/metrics", promhttp.Handler())
			log.Printf("[main] metrics endpoint on %s", cfg.Metrics.Listen)
			if err := http.ListenAndServe(cfg.Metrics.Listen, mux); err != nil {
				log.Printf("[main] metrics server: %v", err)
			}
		}()
	}

	ctrl := qsensor.NewController(cfg.Buffer.Capacity)
	if err := connect(ctrl, cfg); err != nil {
		log.Fatalf("Failed to connect: %v", err)
	}
	defer ctrl.Disconnect()

	if err := applySettings(ctrl, cfg.Sensor); err != nil {
		log.Fatalf("Failed to apply sensor settings: %v", err)
	}

	rec := recorder.New(ctrl, recorder.Options{
		Interval:       cfg.Recorder.Interval,
		MaxRows:        cfg.Recorder.MaxRows,
		AverageSamples: cfg.Recorder.AverageSamples,
	})
	if err := rec.Start(); err != nil {
		log.Fatalf("Failed to start recorder: %v", err)
	}
	defer rec.Stop()

	if err := ctrl.StartAcquisition(cfg.Sensor.PollHz); err != nil {
		log.Fatalf("Failed to start acquisition: %v", err)
	}

	// Run until interrupted.
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	sig := <-sigCh
	log.Printf("[main] received %v, shutting down", sig)

	if err := ctrl.Stop(); err != nil {
		log.Printf("[main] stop acquisition: %v", err)
	}
	rec.Stop()
	log.Printf("[main] recorded %d rows", rec.Len())
}

// setupLogging routes the standard logger to a rotating file when one is
// configured, keeping stderr in the mix so interactive runs stay visible.
func setupLogging(lc config.LoggingConfig) {
	if lc.File == "" {
		return
	}
	rotator := &lumberjack.Logger{
		Filename:   lc.File,
		MaxSize:    lc.MaxSizeMB,
		MaxBackups: lc.MaxBackups,
		MaxAge:     lc.MaxAgeDays,
		Compress:   true,
	}
	log.SetOutput(io.MultiWriter(os.Stderr, rotator))
}

func connect(ctrl *qsensor.Controller, cfg *config.Config) error {
	if cfg.Sim.Enabled {
		log.Printf("[main] using simulated sensor %s", cfg.Sim.SerialNumber)
		sim := qsensor.NewSim(qsensor.SimOptions{
			SerialNumber:   cfg.Sim.SerialNumber,
			Firmware:       cfg.Sim.Firmware,
			StreamInterval: cfg.Sim.StreamInterval,
			IncludeTemp:    cfg.Sim.IncludeTemp,
			IncludeVin:     cfg.Sim.IncludeVin,
		})
		return ctrl.ConnectPort(sim)
	}
	log.Printf("[main] connecting to %s at %d baud", cfg.Serial.Port, cfg.Serial.Baud)
	return ctrl.Connect(cfg.Serial.Port, cfg.Serial.Baud)
}

// applySettings pushes non-zero configured values to the device. Zero
// values leave the device's stored configuration alone.
func applySettings(ctrl *qsensor.Controller, sc config.SensorConfig) error {
	if sc.Averaging != 0 {
		if _, err := ctrl.SetAveraging(sc.Averaging); err != nil {
			return err
		}
	}
	if sc.ADCRateHz != 0 {
		if _, err := ctrl.SetADCRate(sc.ADCRateHz); err != nil {
			return err
		}
	}

	current, err := ctrl.Config()
	if err != nil {
		return err
	}
	want := qsensor.Mode(sc.Mode)
	if want != "" && (want != current.Mode || (want == qsensor.ModePolled && sc.Tag != current.Tag)) {
		if _, err := ctrl.SetMode(want, sc.Tag); err != nil {
			return err
		}
	}
	return nil
}
