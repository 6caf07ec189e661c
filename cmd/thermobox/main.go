package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/spf13/cobra"
)

// Process exit codes.
const (
	exitOK         = 0 // supervised shutdown
	exitConfig     = 1 // config or log file unusable
	exitNotStarted = 2 // panic before startup finished
	exitRuntime    = 3 // counter, device, capture or GPIO failure
)

// exitError carries a lifecycle exit code through cobra.
type exitError struct {
	code int
}

func (e *exitError) Error() string {
	return fmt.Sprintf("exit status %d", e.code)
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	code := execute(ctx, os.Args[1:], os.Stdout, os.Stderr)
	stop()
	os.Exit(code)
}

// execute runs the command line and returns the process exit code.
func execute(ctx context.Context, args []string, stdout, stderr io.Writer) int {
	root := newRootCmd(stdout, stderr)
	root.SetArgs(args)

	err := root.ExecuteContext(ctx)
	if err == nil {
		return exitOK
	}
	var ee *exitError
	if errors.As(err, &ee) {
		return ee.code
	}
	fmt.Fprintf(stderr, "thermobox: %v\n", err)
	return exitConfig
}

func newRootCmd(stdout, stderr io.Writer) *cobra.Command {
	var cfgPath string

	root := &cobra.Command{
		Use:           "thermobox",
		Short:         "Thermal printer photo kiosk",
		Long:          "Waits for the button, takes a black-and-white picture and prints it on the thermal printer.",
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			l := &lifecycle{cfgPath: cfgPath, stdout: stdout, stderr: stderr}
			if code := l.run(cmd.Context()); code != exitOK {
				return &exitError{code: code}
			}
			return nil
		},
	}
	root.SetOut(stdout)
	root.SetErr(stderr)
	root.PersistentFlags().StringVarP(&cfgPath, "config", "c", filepath.Join("configs", "thermobox.yaml"), "path to config file")

	root.AddCommand(newCounterCmd(&cfgPath))
	root.AddCommand(newJournalCmd(&cfgPath))
	return root
}
