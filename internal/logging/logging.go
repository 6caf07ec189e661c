package logging

import (
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/sirupsen/logrus"
)

// Debug levels (same 0-4 scale as the config file).
const (
	LevelOff     = 0 // warnings and errors only
	LevelInfo    = 1 // startup values, sessions
	LevelLive    = 2 // state transitions
	LevelVerbose = 3 // command lines, timings
	LevelTrace   = 4 // GPIO, very low level
)

// DefaultLogFile is used when no log file is configured or the configured
// one is not writable.
const DefaultLogFile = "thermobox.log"

// Options configures New.
type Options struct {
	LogFile    string
	DebugLevel int
	Stdout     io.Writer // nil disables console output
}

// New builds the process logger. The returned closer releases the log file.
// An unwritable LogFile falls back to DefaultLogFile in the working directory;
// the fallback is reported on the returned logger. Failing to open the
// fallback is an error.
func New(opts Options) (*logrus.Logger, io.Closer, error) {
	logger := logrus.New()
	logger.SetLevel(levelFor(opts.DebugLevel))
	logger.SetFormatter(&logrus.TextFormatter{
		FullTimestamp:   true,
		TimestampFormat: "2006-01-02 15:04:05.000",
		DisableColors:   true,
	})

	path := opts.LogFile
	if path == "" {
		path = defaultPath()
	}

	f, err := openLogFile(path)
	fallbackErr := err
	if err != nil {
		path = defaultPath()
		f, err = openLogFile(path)
		if err != nil {
			return nil, nil, fmt.Errorf("open log file %s: %w", path, err)
		}
	}

	if opts.Stdout != nil {
		logger.SetOutput(io.MultiWriter(f, opts.Stdout))
	} else {
		logger.SetOutput(f)
	}

	if fallbackErr != nil {
		logger.WithError(fallbackErr).WithField("log_file", path).
			Errorf("No write access to %s, log file moved to working directory", opts.LogFile)
	}
	return logger, f, nil
}

// Discard returns a logger that drops everything. Used by tests.
func Discard() *logrus.Entry {
	l := logrus.New()
	l.SetOutput(io.Discard)
	return logrus.NewEntry(l)
}

// Component returns a child entry tagged with the component name.
func Component(l *logrus.Logger, name string) *logrus.Entry {
	return l.WithField("component", name)
}

func levelFor(debugLevel int) logrus.Level {
	switch {
	case debugLevel <= LevelOff:
		return logrus.WarnLevel
	case debugLevel <= LevelLive:
		return logrus.InfoLevel
	case debugLevel == LevelVerbose:
		return logrus.DebugLevel
	default:
		return logrus.TraceLevel
	}
}

// openLogFile truncates the file like the kiosk always did: one run, one log.
func openLogFile(path string) (*os.File, error) {
	return os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0o644)
}

func defaultPath() string {
	wd, err := os.Getwd()
	if err != nil {
		return DefaultLogFile
	}
	return filepath.Join(wd, DefaultLogFile)
}

// --- Banner helpers ---

// Section prints a section separator.
func Section(l logrus.FieldLogger, name string) {
	l.Debug("━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━")
	l.Debugf("  %s", name)
	l.Debug("━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━")
}

// Step prints a numbered startup step.
func Step(l logrus.FieldLogger, num int, description string) {
	l.Debugf("Step %d: %s", num, description)
}

// Value prints a named value.
func Value(l logrus.FieldLogger, name string, value interface{}) {
	l.Infof("  %s = %v", name, value)
}
