// Package shell runs the external helper programs the kiosk relies on
// (camera still tool, print spooler client).
package shell

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os/exec"
	"strings"

	"github.com/sirupsen/logrus"
)

// ErrNotFound is returned when the program is not installed.
var ErrNotFound = errors.New("command not found")

// Runner runs a command and returns its combined output.
type Runner interface {
	Run(ctx context.Context, name string, args ...string) (string, error)
}

// ExecRunner runs commands with os/exec. Stdin is closed and stderr is
// merged into stdout; the output is returned with trailing whitespace removed.
type ExecRunner struct {
	Log *logrus.Entry
}

func (r ExecRunner) Run(ctx context.Context, name string, args ...string) (string, error) {
	line := strings.Join(append([]string{name}, args...), " ")
	r.Log.Debugf("Start subprocess %q", line)

	var out bytes.Buffer
	cmd := exec.CommandContext(ctx, name, args...)
	cmd.Stdout = &out
	cmd.Stderr = &out

	err := cmd.Run()
	output := strings.TrimRight(out.String(), " \t\r\n")
	r.Log.WithField("output", output).Debugf("Finished subprocess %q", line)

	if err != nil {
		if errors.Is(err, exec.ErrNotFound) {
			return output, fmt.Errorf("%s: %w", name, ErrNotFound)
		}
		if ctxErr := ctx.Err(); ctxErr != nil {
			return output, ctxErr
		}
		var exitErr *exec.ExitError
		if errors.As(err, &exitErr) {
			return output, fmt.Errorf("%s exited with code %d: %s", name, exitErr.ExitCode(), output)
		}
		return output, fmt.Errorf("run %s: %w", name, err)
	}
	return output, nil
}
