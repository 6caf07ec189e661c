package main

import (
	"context"
	"fmt"
	"io"
	"time"

	"github.com/cjeanneret/ThermoBox/internal/config"
	"github.com/cjeanneret/ThermoBox/internal/hw/camera"
	"github.com/cjeanneret/ThermoBox/internal/hw/gpio"
	"github.com/cjeanneret/ThermoBox/internal/hw/led"
	"github.com/cjeanneret/ThermoBox/internal/hw/printer"
	"github.com/cjeanneret/ThermoBox/internal/hw/shell"
	"github.com/cjeanneret/ThermoBox/internal/journal"
	"github.com/cjeanneret/ThermoBox/internal/logging"
	"github.com/cjeanneret/ThermoBox/internal/logic/counter"
	"github.com/cjeanneret/ThermoBox/internal/logic/session"
	"github.com/sirupsen/logrus"
)

const bannerTime = "2006-01-02 15:04:05 MST"

// lifecycle owns the kiosk resources from startup to teardown.
type lifecycle struct {
	cfgPath string
	stdout  io.Writer
	stderr  io.Writer

	// Hooks for tests; nil selects the real implementation.
	runner   shell.Runner
	openGPIO func(mock bool, log *logrus.Entry) (gpio.Driver, error)
	observe  func(from, to session.State)
}

// run starts the kiosk and blocks until ctx is cancelled or a fatal error
// occurs. Every path releases the camera and GPIO before returning.
func (l *lifecycle) run(ctx context.Context) (code int) {
	defer func() {
		if r := recover(); r != nil {
			fmt.Fprintf(l.stderr, "thermobox: panic during startup: %v\n", r)
			code = exitNotStarted
		}
	}()

	cfg, err := config.Load(l.cfgPath)
	if err != nil {
		fmt.Fprintf(l.stderr, "thermobox: load config: %v\n", err)
		return exitConfig
	}

	logger, logFile, err := logging.New(logging.Options{
		LogFile:    cfg.Logging.LogFile,
		DebugLevel: cfg.Logging.DebugLevel,
		Stdout:     l.stdout,
	})
	if err != nil {
		fmt.Fprintf(l.stderr, "thermobox: %v\n", err)
		return exitConfig
	}
	defer logFile.Close()

	log := logging.Component(logger, "main")
	begin := time.Now()
	log.Infof("ThermoBox started at %s", begin.UTC().Format(bannerTime))
	defer func() {
		end := time.Now()
		log.WithField("exit_code", code).Infof("ThermoBox stopped at %s, ran for %s",
			end.UTC().Format(bannerTime), end.Sub(begin).Round(time.Second))
	}()

	logging.Section(log, "Initialization")
	logging.Value(log, "Config path", l.cfgPath)
	logging.Value(log, "Debug level", cfg.Logging.DebugLevel)

	return l.serve(ctx, cfg, logger)
}

// serve opens the hardware, runs the controller and tears everything down
// in reverse order: journal, camera, LEDs, GPIO.
func (l *lifecycle) serve(ctx context.Context, cfg *config.Config, logger *logrus.Logger) (code int) {
	log := logging.Component(logger, "main")
	started := false
	defer func() {
		if r := recover(); r != nil {
			log.WithField("panic", r).Error("Unexpected error")
			code = exitNotStarted
			if started {
				code = exitRuntime
			}
		}
	}()

	runner := l.runner
	if runner == nil {
		runner = &shell.ExecRunner{Log: logging.Component(logger, "shell")}
	}
	openGPIO := l.openGPIO
	if openGPIO == nil {
		openGPIO = gpio.NewDriver
	}

	logging.Step(log, 1, "Initializing GPIO driver")
	logging.Value(log, "Mock GPIO", cfg.GPIO.Mock)
	driver, err := openGPIO(cfg.GPIO.Mock, logging.Component(logger, "gpio"))
	if err != nil {
		log.WithError(err).Error("Init GPIO failed")
		return exitRuntime
	}
	defer func() {
		if err := driver.Close(); err != nil {
			log.WithError(err).Warn("Closing GPIO driver failed")
		}
	}()

	if err := driver.SetupPin(cfg.GPIO.ButtonPin, gpio.InputPullDown); err != nil {
		log.WithError(err).WithField("pin", cfg.GPIO.ButtonPin).Error("Setup button pin failed")
		return exitRuntime
	}
	logging.Value(log, "Button pin", cfg.GPIO.ButtonPin)

	logging.Step(log, 2, "Initializing LEDs")
	indicator, err := led.New(driver, cfg.GPIO.GreenLEDPin, cfg.GPIO.RedLEDPin, logging.Component(logger, "led"))
	if err != nil {
		log.WithError(err).Error("Init LEDs failed")
		return exitRuntime
	}
	defer func() {
		if err := indicator.Off(); err != nil {
			log.WithError(err).Warn("Switching LEDs off failed")
		}
	}()

	logging.Step(log, 3, "Initializing camera")
	cam, err := camera.Open(ctx, cfg.CameraSettings(), runner, logging.Component(logger, "camera"))
	if err != nil {
		log.WithError(err).Error("Init camera failed")
		return exitRuntime
	}
	defer func() {
		if err := cam.Close(); err != nil {
			log.WithError(err).Warn("Closing camera failed")
		}
	}()

	logging.Step(log, 4, "Reading image counter")
	store, err := counter.Open(cfg.Output.CounterFile)
	if err != nil {
		log.WithError(err).WithField("counter_file", cfg.Output.CounterFile).Error("Read image counter failed")
		return exitRuntime
	}
	logging.Value(log, "Image counter", store.Current())
	if cfg.Output.Temporary {
		log.Info("Images are saved only temporarily")
	}

	deps := session.Deps{
		Button:    driver,
		Indicator: indicator,
		Counter:   store,
		Camera:    cam,
		Printer: printer.New(printer.Config{
			Name:          cfg.Printer.Name,
			SubmitCommand: cfg.Printer.SubmitCommand,
			StatusCommand: cfg.Printer.StatusCommand,
			Options:       cfg.Printer.Options,
		}, runner, logging.Component(logger, "printer")),
	}
	logging.Value(log, "Printer", cfg.Printer.Name)

	if cfg.Journal.Path != "" {
		logging.Step(log, 5, "Opening session journal")
		j, err := journal.Open(cfg.Journal.Path)
		if err != nil {
			log.WithError(err).WithField("journal", cfg.Journal.Path).Warn("Session journal disabled")
		} else {
			deps.Journal = j
			defer j.Close()
		}
	}

	ctrl := session.NewController(session.Options{
		ButtonPin:           cfg.GPIO.ButtonPin,
		OutputPath:          cfg.Output.OutputPath,
		ImageName:           cfg.Output.ImageName,
		Temporary:           cfg.Output.Temporary,
		PollInterval:        cfg.PollInterval(),
		Slow:                patternOf(cfg.Feedback.Slow),
		Fast:                patternOf(cfg.Feedback.Fast),
		PrinterPollInterval: cfg.PrinterPollInterval(),
		PrinterIdleTimeout:  cfg.PrinterIdleTimeout(),
		OnTransition:        l.observe,
	}, deps, logging.Component(logger, "session"))

	started = true
	logging.Section(log, "Ready")
	if err := ctrl.Run(ctx); err != nil {
		log.WithError(err).Error("Kiosk stopped on error")
		return exitRuntime
	}
	log.Info("Shutdown requested")
	return exitOK
}

func patternOf(p config.PatternConfig) led.Pattern {
	return led.Pattern{On: p.On(), Off: p.Off(), Repeats: p.Repeats}
}
