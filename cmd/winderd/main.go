// winderd is the coil winder controller daemon. It loads the winder
// configuration, builds the per-axis pulse and homing engines, and
// serves the execution protocol (one G-code command per line, one ack
// per line) plus an HTTP/websocket status endpoint.
//
// Usage:
//
//	winderd -config winder.cfg [options]
//
// Options:
//
//	-config string   Winder configuration file (required)
//	-listen string   Override the [link] listen address
//	-status string   Override the [status] listen address
//	-logfile string  Log to a rotating file instead of stderr
//	-debug           Log at DEBUG level
//	-sim             Simulate hardware I/O (default true; no GPIO
//	                 driver is bound in this build)
//
// Environment (loaded from .env if present):
//
//	WINDER_LISTEN, WINDER_STATUS_LISTEN override the config file;
//	WINDER_LOG_LEVEL, WINDER_LOG_FORMAT configure logging.
package main

import (
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"

	"winder-go/pkg/config"
	"winder-go/pkg/endstop"
	"winder-go/pkg/gcode"
	"winder-go/pkg/log"
	"winder-go/pkg/motion"
	"winder-go/pkg/serial"
	"winder-go/pkg/status"
	"winder-go/pkg/stepper"
	"winder-go/pkg/winder"
)

func main() {
	configFile := flag.String("config", "", "Winder configuration file (required)")
	listenAddr := flag.String("listen", "", "Override the [link] listen address")
	statusAddr := flag.String("status", "", "Override the [status] listen address")
	logFile := flag.String("logfile", "", "Log to a rotating file instead of stderr")
	debug := flag.Bool("debug", false, "Log at DEBUG level")
	sim := flag.Bool("sim", true, "Simulate hardware I/O")
	flag.Parse()

	if *configFile == "" {
		fmt.Fprintln(os.Stderr, "Error: -config is required")
		flag.Usage()
		os.Exit(1)
	}

	// .env is optional; environment always wins over the config file.
	_ = godotenv.Load()

	logger := log.New("winderd")
	log.ConfigureFromEnv(logger)
	if *debug {
		logger.SetLevel(log.DEBUG)
	}
	if *logFile != "" {
		writer, err := log.NewRotatingFileWriter(log.RotationConfig{Filename: *logFile})
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error opening log file: %v\n", err)
			os.Exit(1)
		}
		defer writer.Close()
		logger.SetWriter(writer)
		logger.SetColorize(false)
	}
	log.SetDefault(logger)

	raw, err := config.Load(*configFile)
	if err != nil {
		logger.Error("config: %v", err)
		os.Exit(1)
	}
	cfg, err := config.BuildWinderConfig(raw)
	if err != nil {
		logger.Error("config: %v", err)
		os.Exit(1)
	}
	for _, opt := range raw.UnusedOptions() {
		logger.Warn("unused config option %s", opt)
	}
	applyOverride(&cfg.Link.Listen, *listenAddr, os.Getenv("WINDER_LISTEN"))
	applyOverride(&cfg.Status.Listen, *statusAddr, os.Getenv("WINDER_STATUS_LISTEN"))

	controller, err := buildController(cfg, *sim, logger)
	if err != nil {
		logger.Error("controller: %v", err)
		os.Exit(1)
	}

	server := winder.NewServer(controller)
	if err := server.Start(cfg.Link.Listen); err != nil {
		logger.Error("link server: %v", err)
		os.Exit(1)
	}
	defer server.Stop()

	if cfg.Link.Device != "" {
		port, err := serial.Open(serial.Config{
			Device:      cfg.Link.Device,
			BaudRate:    cfg.Link.Baud,
			ReadTimeout: -1, // block until the attached side writes
		})
		if err != nil {
			logger.Error("serial link: %v", err)
			os.Exit(1)
		}
		defer port.Close()
		go server.ServeStream(port, cfg.Link.Device)
		logger.Info("serving execution link on %s", cfg.Link.Device)
	}

	if cfg.Status.Listen != "" {
		statusServer := status.New(status.Config{
			Addr:   cfg.Status.Listen,
			Source: controller,
		})
		if err := statusServer.Start(); err != nil {
			logger.Error("status server: %v", err)
			os.Exit(1)
		}
		defer statusServer.Stop()
	}

	logger.Info("winderd ready on %s", cfg.Link.Listen)

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	<-sigCh

	logger.Info("shutting down")
}

func applyOverride(target *string, values ...string) {
	for _, v := range values {
		if v != "" {
			*target = v
			return
		}
	}
}

// buildController wires the configured axes. Without a bound GPIO
// driver the output lines are null and the limit switches are fed by a
// simulated query that asserts after a fixed travel.
func buildController(cfg *config.WinderConfig, sim bool, logger *log.Logger) (*winder.Controller, error) {
	ctrl := winder.Config{
		RapidFeedrate:   cfg.RapidFeedrate,
		DefaultFeedrate: cfg.DefaultFeedrate,
		HomingFeedrate:  cfg.HomingFeedrate,
		Logger:          logger.WithPrefix("winder"),
	}

	for i, axis := range gcode.Axes() {
		settings, ok := cfg.Axes[config.AxisNames[i]]
		if !ok {
			continue
		}

		homeDir := motion.DirNegative
		if settings.HomingDir == "positive" {
			homeDir = motion.DirPositive
		}
		ctrl.Calibration[axis] = motion.AxisCalibration{
			MicronsPerStep: settings.MicronsPerStep,
			HomeDir:        homeDir,
		}

		limit := endstop.New(endstop.Config{
			Axis:     axis.String(),
			Pin:      settings.EndstopPin.Name,
			Inverted: settings.EndstopPin.Invert,
		})
		if sim {
			limit.SetQuery(simTravelQuery(5000))
		}

		ctrl.Hardware[axis] = winder.AxisHardware{
			Step:      stepper.NullLine{},
			Dir:       stepper.NullLine{},
			InvertDir: settings.DirPin.Invert,
			Limit:     limit,
		}

		logger.Info("axis %s: %.3g microns/step, step=%s dir=%s endstop=%s home=%s",
			axis, settings.MicronsPerStep,
			settings.StepPin.Name, settings.DirPin.Name,
			settings.EndstopPin.Name, settings.HomingDir)
	}

	return winder.NewController(ctrl)
}

// simTravelQuery fakes a limit switch that asserts after the given
// number of samples and releases once observed, so repeated homing
// passes behave like a switch the axis backs away from.
func simTravelQuery(travel uint64) func() bool {
	var samples uint64
	return func() bool {
		samples++
		if samples > travel {
			samples = 0
			return true
		}
		return false
	}
}
