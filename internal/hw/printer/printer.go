// Package printer talks to the CUPS spooler that feeds the thermal printer.
package printer

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/cjeanneret/ThermoBox/internal/hw/shell"
	"github.com/sirupsen/logrus"
)

var (
	// ErrSubmit means the job could not be handed to the spooler.
	ErrSubmit = errors.New("print submit failed")
	// ErrStatus means the printer state could not be queried.
	ErrStatus = errors.New("printer status query failed")
)

// Config names the printer queue and the spooler commands.
type Config struct {
	Name          string   // CUPS queue name, e.g. "Zijiang-ZJ-58"
	SubmitCommand string   // "lp"
	StatusCommand string   // "lpstat"
	Options       []string // passed as "-o <option>" to SubmitCommand
}

// Dispatcher submits image files and waits for the printer to drain.
type Dispatcher struct {
	cfg    Config
	runner shell.Runner
	log    *logrus.Entry
}

func New(cfg Config, runner shell.Runner, log *logrus.Entry) *Dispatcher {
	return &Dispatcher{cfg: cfg, runner: runner, log: log}
}

// Submit queues path on the printer. It does not wait for the job.
func (d *Dispatcher) Submit(ctx context.Context, path string) error {
	args := make([]string, 0, 2*len(d.cfg.Options)+3)
	for _, o := range d.cfg.Options {
		args = append(args, "-o", o)
	}
	args = append(args, path, "-d", d.cfg.Name)

	d.log.WithField("image", path).Info("Print image")
	if _, err := d.runner.Run(ctx, d.cfg.SubmitCommand, args...); err != nil {
		return fmt.Errorf("%w: %s on %s: %v", ErrSubmit, path, d.cfg.Name, err)
	}
	return nil
}

// IdleMarker is the status text reported by the spooler when the printer
// has finished its jobs.
func (d *Dispatcher) IdleMarker() string {
	return d.cfg.Name + " is idle"
}

// AwaitIdle polls the printer status every interval until it reports idle.
// There is no built-in timeout; bound the wait through ctx.
func (d *Dispatcher) AwaitIdle(ctx context.Context, interval time.Duration) error {
	d.log.WithField("printer", d.cfg.Name).Info("Wait for printer to finish printing")

	marker := d.IdleMarker()
	for polls := 1; ; polls++ {
		out, err := d.runner.Run(ctx, d.cfg.StatusCommand, "-p", d.cfg.Name)
		if err != nil {
			if ctxErr := ctx.Err(); ctxErr != nil {
				return ctxErr
			}
			return fmt.Errorf("%w: %s: %v", ErrStatus, d.cfg.Name, err)
		}
		if strings.Contains(out, marker) {
			d.log.WithField("polls", polls).Debug("Printer is idle")
			return nil
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(interval):
		}
	}
}
