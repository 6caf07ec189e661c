package config

import (
	"errors"
	"fmt"
	"io"
	"os"
	"sort"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/cjeanneret/ThermoBox/internal/hw/camera"
)

// MaxConfigFileBytes bounds the size of the configuration file.
const MaxConfigFileBytes = 1 << 20

// ErrConfig is wrapped by every error returned from Load.
var ErrConfig = errors.New("invalid configuration")

// OutputConfig describes where pictures and the counter live.
type OutputConfig struct {
	OutputPath  string `yaml:"output_path"` // prefix, keeps its trailing slash
	Temporary   bool   `yaml:"temporary"`   // overwrite the same file every session
	ImageName   string `yaml:"image_name"`  // base file name stem
	CounterFile string `yaml:"counter_file"`
}

// CameraConfig holds the picture settings applied once at startup.
type CameraConfig struct {
	Type               string `yaml:"type"`    // "rpicam" or "mock"
	Command            string `yaml:"command"` // still capture tool
	CaptureTimeoutMs   int    `yaml:"capture_timeout_ms"`
	ResolutionHeight   int    `yaml:"resolution_height"`
	ResolutionWidth    int    `yaml:"resolution_width"`
	Contrast           int    `yaml:"contrast"`   // -100..100
	Brightness         int    `yaml:"brightness"` // 0..100
	Annotate           bool   `yaml:"annotate"`
	AnnotateText       string `yaml:"annotate_text"`
	AnnotateTextSize   int    `yaml:"annotate_text_size"`
	AnnotateForeground string `yaml:"annotate_foreground"`
	AnnotateBackground string `yaml:"annotate_background"`
}

// GPIOConfig lists the BCM pin numbers of the kiosk wiring.
type GPIOConfig struct {
	ButtonPin   int  `yaml:"button_pin"`    // arcade button, active HIGH
	GreenLEDPin int  `yaml:"green_led_pin"` // ready indicator
	RedLEDPin   int  `yaml:"red_led_pin"`   // busy indicator
	Mock        bool `yaml:"mock"`          // use mock GPIO (true=dev/test, false=real Raspberry Pi)
}

// PrinterConfig describes the CUPS queue of the thermal printer.
type PrinterConfig struct {
	Name           string   `yaml:"name"`
	SubmitCommand  string   `yaml:"submit_command"`
	StatusCommand  string   `yaml:"status_command"`
	Options        []string `yaml:"options"`
	PollIntervalMs int      `yaml:"poll_interval_ms"`
	IdleTimeoutMs  int      `yaml:"idle_timeout_ms"` // 0 = wait forever
}

// PatternConfig is one LED blink pattern.
type PatternConfig struct {
	OnMs    int `yaml:"on_ms"`
	OffMs   int `yaml:"off_ms"`
	Repeats int `yaml:"repeats"`
}

// FeedbackConfig tunes the button poll and the pre-capture blinking.
type FeedbackConfig struct {
	PollIntervalMs int           `yaml:"poll_interval_ms"`
	Slow           PatternConfig `yaml:"slow"`
	Fast           PatternConfig `yaml:"fast"`
}

// LoggingConfig selects the log sink and verbosity.
type LoggingConfig struct {
	LogFile    string `yaml:"log_file"`
	DebugLevel int    `yaml:"debug_level"` // 0-4 (0=warnings, 1=info, 2=live, 3=verbose, 4=trace)
}

// JournalConfig enables the SQLite session journal.
type JournalConfig struct {
	Path string `yaml:"path"` // empty disables the journal
}

// Config aggregates all application configuration.
type Config struct {
	Output   OutputConfig   `yaml:"output"`
	Camera   CameraConfig   `yaml:"camera"`
	GPIO     GPIOConfig     `yaml:"gpio"`
	Printer  PrinterConfig  `yaml:"printer"`
	Feedback FeedbackConfig `yaml:"feedback"`
	Logging  LoggingConfig  `yaml:"logging"`
	Journal  JournalConfig  `yaml:"journal"`
}

// requiredKeys must be present in the file; there is no runtime default.
var requiredKeys = map[string][]string{
	"output": {"output_path", "temporary", "image_name"},
	"camera": {
		"resolution_height", "resolution_width", "contrast", "brightness",
		"annotate", "annotate_text", "annotate_text_size",
		"annotate_foreground", "annotate_background",
	},
	"gpio": {"button_pin", "green_led_pin", "red_led_pin"},
}

// Load reads a YAML file and returns the configuration.
func Load(path string) (*Config, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("%w: read config file: %v", ErrConfig, err)
	}
	defer f.Close()

	data, err := io.ReadAll(io.LimitReader(f, MaxConfigFileBytes+1))
	if err != nil {
		return nil, fmt.Errorf("%w: read config file: %v", ErrConfig, err)
	}
	if len(data) > MaxConfigFileBytes {
		return nil, fmt.Errorf("%w: config file larger than %d bytes", ErrConfig, MaxConfigFileBytes)
	}

	return Parse(data)
}

// Parse decodes and validates a YAML document.
func Parse(data []byte) (*Config, error) {
	var root yaml.Node
	if err := yaml.Unmarshal(data, &root); err != nil {
		return nil, fmt.Errorf("%w: unmarshal yaml: %v", ErrConfig, err)
	}
	if missing := missingKeys(&root); len(missing) > 0 {
		return nil, fmt.Errorf("%w: missing required keys: %s", ErrConfig, strings.Join(missing, ", "))
	}

	var cfg Config
	if err := root.Decode(&cfg); err != nil {
		return nil, fmt.Errorf("%w: unmarshal yaml: %v", ErrConfig, err)
	}

	cfg.applyDefaults()
	if err := cfg.validate(); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrConfig, err)
	}
	return &cfg, nil
}

// missingKeys returns "section.key" for every required key not present.
func missingKeys(root *yaml.Node) []string {
	sections := map[string]*yaml.Node{}
	if len(root.Content) > 0 && root.Content[0].Kind == yaml.MappingNode {
		doc := root.Content[0]
		for i := 0; i+1 < len(doc.Content); i += 2 {
			sections[doc.Content[i].Value] = doc.Content[i+1]
		}
	}

	var missing []string
	for section, keys := range requiredKeys {
		present := map[string]bool{}
		if n, ok := sections[section]; ok && n.Kind == yaml.MappingNode {
			for i := 0; i+1 < len(n.Content); i += 2 {
				present[n.Content[i].Value] = true
			}
		}
		for _, k := range keys {
			if !present[k] {
				missing = append(missing, section+"."+k)
			}
		}
	}
	sort.Strings(missing)
	return missing
}

func (c *Config) applyDefaults() {
	if c.Output.CounterFile == "" {
		c.Output.CounterFile = "counter"
	}
	if c.Camera.Type == "" {
		c.Camera.Type = camera.TypeRPiCam
	}
	if c.Camera.Command == "" {
		c.Camera.Command = "rpicam-still"
	}
	if c.Camera.CaptureTimeoutMs <= 0 {
		c.Camera.CaptureTimeoutMs = 1000 // sensor settle time before the shot
	}
	if c.Printer.Name == "" {
		c.Printer.Name = "Zijiang-ZJ-58"
	}
	if c.Printer.SubmitCommand == "" {
		c.Printer.SubmitCommand = "lp"
	}
	if c.Printer.StatusCommand == "" {
		c.Printer.StatusCommand = "lpstat"
	}
	if c.Printer.Options == nil {
		c.Printer.Options = []string{"fit-to-page"}
	}
	if c.Printer.PollIntervalMs <= 0 {
		c.Printer.PollIntervalMs = 1000
	}
	if c.Feedback.PollIntervalMs <= 0 {
		c.Feedback.PollIntervalMs = 50
	}
	if c.Feedback.Slow == (PatternConfig{}) {
		c.Feedback.Slow = PatternConfig{OnMs: 500, OffMs: 500, Repeats: 3}
	}
	if c.Feedback.Fast == (PatternConfig{}) {
		c.Feedback.Fast = PatternConfig{OnMs: 200, OffMs: 200, Repeats: 3}
	}
}

func (c *Config) validate() error {
	if c.Output.ImageName == "" {
		return fmt.Errorf("output.image_name must not be empty")
	}
	if strings.ContainsRune(c.Output.ImageName, os.PathSeparator) {
		return fmt.Errorf("output.image_name must not contain %q", os.PathSeparator)
	}
	if c.Camera.Type != camera.TypeRPiCam && c.Camera.Type != camera.TypeMock {
		return fmt.Errorf("unsupported camera type: %s", c.Camera.Type)
	}
	if c.Camera.ResolutionWidth <= 0 || c.Camera.ResolutionHeight <= 0 {
		return fmt.Errorf("camera resolution must be > 0, got %dx%d", c.Camera.ResolutionWidth, c.Camera.ResolutionHeight)
	}
	if c.Camera.Contrast < -100 || c.Camera.Contrast > 100 {
		return fmt.Errorf("camera.contrast must be between -100 and 100, got %d", c.Camera.Contrast)
	}
	if c.Camera.Brightness < 0 || c.Camera.Brightness > 100 {
		return fmt.Errorf("camera.brightness must be between 0 and 100, got %d", c.Camera.Brightness)
	}
	if c.Camera.Annotate {
		if c.Camera.AnnotateTextSize < 6 || c.Camera.AnnotateTextSize > 160 {
			return fmt.Errorf("camera.annotate_text_size must be between 6 and 160, got %d", c.Camera.AnnotateTextSize)
		}
		if _, err := camera.ParseColor(c.Camera.AnnotateForeground); err != nil {
			return fmt.Errorf("camera.annotate_foreground: %v", err)
		}
		if _, err := camera.ParseColor(c.Camera.AnnotateBackground); err != nil {
			return fmt.Errorf("camera.annotate_background: %v", err)
		}
	}

	pins := map[int]string{}
	for _, p := range []struct {
		name string
		pin  int
	}{
		{"gpio.button_pin", c.GPIO.ButtonPin},
		{"gpio.green_led_pin", c.GPIO.GreenLEDPin},
		{"gpio.red_led_pin", c.GPIO.RedLEDPin},
	} {
		if p.pin < 0 || p.pin > 27 {
			return fmt.Errorf("%s must be a BCM pin between 0 and 27, got %d", p.name, p.pin)
		}
		if other, dup := pins[p.pin]; dup {
			return fmt.Errorf("%s and %s share pin %d", other, p.name, p.pin)
		}
		pins[p.pin] = p.name
	}

	if c.Printer.IdleTimeoutMs < 0 {
		return fmt.Errorf("printer.idle_timeout_ms must be >= 0, got %d", c.Printer.IdleTimeoutMs)
	}
	for name, p := range map[string]PatternConfig{"feedback.slow": c.Feedback.Slow, "feedback.fast": c.Feedback.Fast} {
		if p.OnMs < 0 || p.OffMs < 0 || p.Repeats < 0 {
			return fmt.Errorf("%s timings must be >= 0", name)
		}
	}
	if c.Logging.DebugLevel < 0 || c.Logging.DebugLevel > 4 {
		return fmt.Errorf("logging.debug_level must be between 0 and 4, got %d", c.Logging.DebugLevel)
	}
	return nil
}

// CameraSettings returns the capture settings for camera.Open.
// Colours were validated by Load.
func (c *Config) CameraSettings() camera.Settings {
	s := camera.Settings{
		Type:           c.Camera.Type,
		Command:        c.Camera.Command,
		Width:          c.Camera.ResolutionWidth,
		Height:         c.Camera.ResolutionHeight,
		Contrast:       c.Camera.Contrast,
		Brightness:     c.Camera.Brightness,
		CaptureTimeout: time.Duration(c.Camera.CaptureTimeoutMs) * time.Millisecond,
	}
	if c.Camera.Annotate {
		fg, _ := camera.ParseColor(c.Camera.AnnotateForeground)
		bg, _ := camera.ParseColor(c.Camera.AnnotateBackground)
		s.Annotation = &camera.Annotation{
			Text:       c.Camera.AnnotateText,
			Size:       c.Camera.AnnotateTextSize,
			Foreground: fg,
			Background: bg,
		}
	}
	return s
}

// PollInterval returns the button sampling period.
func (c *Config) PollInterval() time.Duration {
	return time.Duration(c.Feedback.PollIntervalMs) * time.Millisecond
}

// PrinterPollInterval returns the delay between two printer status queries.
func (c *Config) PrinterPollInterval() time.Duration {
	return time.Duration(c.Printer.PollIntervalMs) * time.Millisecond
}

// PrinterIdleTimeout bounds the wait for the printer; 0 means no bound.
func (c *Config) PrinterIdleTimeout() time.Duration {
	return time.Duration(c.Printer.IdleTimeoutMs) * time.Millisecond
}

// Duration helpers for blink patterns.
func (p PatternConfig) On() time.Duration  { return time.Duration(p.OnMs) * time.Millisecond }
func (p PatternConfig) Off() time.Duration { return time.Duration(p.OffMs) * time.Millisecond }
