package session

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/cjeanneret/ThermoBox/internal/hw/gpio"
	"github.com/cjeanneret/ThermoBox/internal/hw/led"
	"github.com/cjeanneret/ThermoBox/internal/journal"
	"github.com/sirupsen/logrus"
)

// Button samples the arcade button line.
type Button interface {
	ReadPin(pin int) (gpio.Level, error)
}

// Indicator drives the ready/busy LEDs.
type Indicator interface {
	SetReady() error
	SetBusy() error
	Pulse(pin int, p led.Pattern) error
	Write(pin int, level gpio.Level) error
	BusyPin() int
}

// Counter hands out image ids.
type Counter interface {
	Current() uint64
	Reserve() (uint64, error)
}

// Camera takes a still at the given path.
type Camera interface {
	Capture(ctx context.Context, path string) error
}

// Printer prints a file and reports when the printer is done.
type Printer interface {
	Submit(ctx context.Context, path string) error
	AwaitIdle(ctx context.Context, interval time.Duration) error
}

// Journal records finished sessions.
type Journal interface {
	Record(ctx context.Context, e journal.Entry) error
}

// Deps are the collaborators of a Controller. Journal may be nil.
type Deps struct {
	Button    Button
	Indicator Indicator
	Counter   Counter
	Camera    Camera
	Printer   Printer
	Journal   Journal
}

// Options tune the controller.
type Options struct {
	ButtonPin  int
	OutputPath string // prefix including the trailing separator
	ImageName  string
	Temporary  bool // reuse the current id instead of reserving a new one

	PollInterval        time.Duration // button sampling period
	Slow                led.Pattern
	Fast                led.Pattern
	PrinterPollInterval time.Duration
	PrinterIdleTimeout  time.Duration // 0 waits as long as the printer needs

	// OnTransition, if set, is called after every state change.
	OnTransition func(from, to State)
}

// Controller runs one capture-print session at a time. It is not safe for
// concurrent use: the button is never read while a session is in flight.
type Controller struct {
	opts  Options
	deps  Deps
	log   *logrus.Entry
	state State
}

func NewController(opts Options, deps Deps, log *logrus.Entry) *Controller {
	if opts.PollInterval <= 0 {
		opts.PollInterval = 50 * time.Millisecond
	}
	if opts.PrinterPollInterval <= 0 {
		opts.PrinterPollInterval = time.Second
	}
	return &Controller{opts: opts, deps: deps, log: log, state: Ready}
}

// ImagePath builds the file name of picture id.
func ImagePath(outputPath, imageName string, id uint64) string {
	return outputPath + imageName + "_" + strconv.FormatUint(id, 10) + ".jpeg"
}

// State returns the current state.
func (c *Controller) State() State {
	return c.state
}

// Run polls the button and runs a session on every press. It returns nil
// once ctx is cancelled, or the first fatal error.
func (c *Controller) Run(ctx context.Context) error {
	c.log.WithField("poll_interval", c.opts.PollInterval).Info("Starting main loop")

	ticker := time.NewTicker(c.opts.PollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			c.transition(ShuttingDown)
			return nil
		default:
		}

		level, err := c.deps.Button.ReadPin(c.opts.ButtonPin)
		if err != nil {
			c.transition(ShuttingDown)
			return fmt.Errorf("read button pin %d: %w", c.opts.ButtonPin, err)
		}

		if level == gpio.High {
			if err := c.RunSession(ctx); err != nil {
				if ctx.Err() != nil && errors.Is(err, ctx.Err()) {
					return nil
				}
				return err
			}
		}

		select {
		case <-ctx.Done():
			c.transition(ShuttingDown)
			return nil
		case <-ticker.C:
		}
	}
}

// RunSession performs one full session: feedback, capture, print.
// Counter, camera and LED failures are fatal and returned; print failures
// are logged and the controller goes back to Ready.
func (c *Controller) RunSession(ctx context.Context) error {
	entry := journal.Entry{ID: journal.NewID(), StartedAt: time.Now()}
	log := c.log.WithField("session", entry.ID)
	defer c.record(ctx, &entry, log)

	c.transition(Feedback)
	log.Info("Button pressed! Switching LEDs")
	if err := c.feedback(); err != nil {
		return c.abort(&entry, err)
	}

	c.transition(Capturing)
	id, err := c.nextImageID(log)
	if err != nil {
		return c.abort(&entry, err)
	}
	entry.ImageID = id
	entry.ImagePath = ImagePath(c.opts.OutputPath, c.opts.ImageName, id)

	// A started shot always runs to completion.
	if err := c.deps.Camera.Capture(context.WithoutCancel(ctx), entry.ImagePath); err != nil {
		return c.abort(&entry, err)
	}

	c.transition(Printing)
	if err := c.deps.Indicator.Write(c.deps.Indicator.BusyPin(), gpio.High); err != nil {
		return c.abort(&entry, err)
	}

	entry.Outcome = journal.OutcomePrinted
	submitErr, waitErr := c.print(ctx, entry.ImagePath, log)
	if submitErr != nil {
		entry.Outcome = journal.OutcomePrintFailed
		entry.Error = submitErr.Error()
	}
	if waitErr != nil {
		if ctx.Err() != nil {
			entry.Outcome = journal.OutcomeInterrupted
			c.transition(ShuttingDown)
			return ctx.Err()
		}
		entry.Outcome = journal.OutcomePrintFailed
		entry.Error = waitErr.Error()
		c.transition(Error)
		log.WithError(waitErr).WithField("image", entry.ImagePath).Error("Printer did not report idle, back to ready")
	}

	log.Debug("Switching LEDs back")
	if err := c.deps.Indicator.SetReady(); err != nil {
		return c.abort(&entry, err)
	}
	c.transition(Ready)
	return nil
}

// feedback warns the user: busy LED on, slow then fast blinking, then
// dark for the shot.
func (c *Controller) feedback() error {
	ind := c.deps.Indicator
	if err := ind.SetBusy(); err != nil {
		return err
	}
	if err := ind.Pulse(ind.BusyPin(), c.opts.Slow); err != nil {
		return err
	}
	if err := ind.Pulse(ind.BusyPin(), c.opts.Fast); err != nil {
		return err
	}
	return ind.Write(ind.BusyPin(), gpio.Low)
}

func (c *Controller) nextImageID(log *logrus.Entry) (uint64, error) {
	if c.opts.Temporary {
		id := c.deps.Counter.Current()
		log.WithField("image_counter", id).Debug("Temporary mode, counter unchanged")
		return id, nil
	}
	id, err := c.deps.Counter.Reserve()
	if err != nil {
		return 0, err
	}
	log.WithField("image_counter", id).Debug("Image counter reserved")
	return id, nil
}

// print submits the picture and waits for the printer. A failed submit
// still waits: the printer may be busy with an earlier job.
func (c *Controller) print(ctx context.Context, path string, log *logrus.Entry) (submitErr, waitErr error) {
	if err := c.deps.Printer.Submit(ctx, path); err != nil {
		submitErr = err
		log.WithError(err).WithField("image", path).Warn("Print submit failed")
	}

	waitCtx := ctx
	if c.opts.PrinterIdleTimeout > 0 {
		var cancel context.CancelFunc
		waitCtx, cancel = context.WithTimeout(ctx, c.opts.PrinterIdleTimeout)
		defer cancel()
	}
	waitErr = c.deps.Printer.AwaitIdle(waitCtx, c.opts.PrinterPollInterval)
	return submitErr, waitErr
}

func (c *Controller) abort(entry *journal.Entry, err error) error {
	entry.Outcome = journal.OutcomeAborted
	entry.Error = err.Error()
	c.transition(ShuttingDown)
	return err
}

func (c *Controller) record(ctx context.Context, entry *journal.Entry, log *logrus.Entry) {
	entry.FinishedAt = time.Now()
	log.WithFields(logrus.Fields{
		"image":    entry.ImagePath,
		"outcome":  entry.Outcome,
		"duration": entry.FinishedAt.Sub(entry.StartedAt).Round(time.Millisecond),
	}).Info("Session finished")

	if c.deps.Journal == nil {
		return
	}
	if err := c.deps.Journal.Record(context.WithoutCancel(ctx), *entry); err != nil {
		log.WithError(err).Warn("Journal write failed")
	}
}

func (c *Controller) transition(to State) {
	from := c.state
	c.state = to
	c.log.WithFields(logrus.Fields{"from": from, "to": to}).Debug("State transition")
	if c.opts.OnTransition != nil {
		c.opts.OnTransition(from, to)
	}
}
