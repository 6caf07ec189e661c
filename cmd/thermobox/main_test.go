package main

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/cjeanneret/ThermoBox/internal/hw/gpio"
	"github.com/cjeanneret/ThermoBox/internal/journal"
	"github.com/cjeanneret/ThermoBox/internal/logic/session"
	"github.com/sirupsen/logrus"
)

const (
	testButtonPin = 17
	testGreenPin  = 22
	testRedPin    = 27
)

// kioskDriver is a GPIO driver that presses the button a few times, then
// calls onIdle once. It records every pin access.
type kioskDriver struct {
	mu          sync.Mutex
	presses     int
	onIdle      func()
	panicOnRead bool
	events      []string
}

func (d *kioskDriver) SetupPin(pin int, mode gpio.PinMode) error {
	d.record(fmt.Sprintf("setup %d %s", pin, mode))
	return nil
}

func (d *kioskDriver) WritePin(pin int, level gpio.Level) error {
	d.record(fmt.Sprintf("write %d %s", pin, level))
	return nil
}

func (d *kioskDriver) ReadPin(pin int) (gpio.Level, error) {
	d.mu.Lock()
	if d.panicOnRead {
		d.mu.Unlock()
		panic("gpio bus fault")
	}
	if d.presses > 0 {
		d.presses--
		d.mu.Unlock()
		return gpio.High, nil
	}
	idle := d.onIdle
	d.onIdle = nil
	d.mu.Unlock()
	if idle != nil {
		idle()
	}
	return gpio.Low, nil
}

func (d *kioskDriver) Close() error {
	d.record("close")
	return nil
}

func (d *kioskDriver) record(e string) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.events = append(d.events, e)
}

func (d *kioskDriver) tail(n int) []string {
	d.mu.Lock()
	defer d.mu.Unlock()
	if len(d.events) < n {
		return slices.Clone(d.events)
	}
	return slices.Clone(d.events[len(d.events)-n:])
}

// spooler answers like lp and lpstat for a printer that is always idle.
type spooler struct {
	mu    sync.Mutex
	calls []string
}

func (s *spooler) Run(ctx context.Context, name string, args ...string) (string, error) {
	s.mu.Lock()
	s.calls = append(s.calls, name+" "+strings.Join(args, " "))
	s.mu.Unlock()
	switch name {
	case "lp":
		return "request id is TestPrinter-1 (1 file(s))", nil
	case "lpstat":
		return "printer TestPrinter is idle.  enabled since Thu 01 Jan 1970", nil
	}
	return "", fmt.Errorf("unexpected command %s", name)
}

type kiosk struct {
	dir     string
	cfgPath string
	stdout  bytes.Buffer
	stderr  bytes.Buffer
	driver  *kioskDriver
	spooler *spooler
	states  []session.State
}

// newKiosk writes a config using the mock camera and a counter at 0.
func newKiosk(t *testing.T) *kiosk {
	t.Helper()
	k := &kiosk{dir: t.TempDir(), driver: &kioskDriver{}, spooler: &spooler{}}
	k.writeConfig(t, k.dir+string(os.PathSeparator))
	if err := os.WriteFile(filepath.Join(k.dir, "counter"), []byte("0\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	return k
}

func (k *kiosk) writeConfig(t *testing.T, outputPath string) {
	t.Helper()
	cfg := fmt.Sprintf(`
output:
  output_path: %q
  temporary: false
  image_name: "pic"
  counter_file: %q
camera:
  type: "mock"
  resolution_height: 48
  resolution_width: 64
  contrast: 0
  brightness: 50
  annotate: false
  annotate_text: ""
  annotate_text_size: 0
  annotate_foreground: ""
  annotate_background: ""
gpio:
  button_pin: %d
  green_led_pin: %d
  red_led_pin: %d
  mock: true
printer:
  name: "TestPrinter"
  poll_interval_ms: 1
feedback:
  poll_interval_ms: 1
  slow: { on_ms: 1, off_ms: 1, repeats: 1 }
  fast: { on_ms: 1, off_ms: 1, repeats: 1 }
logging:
  log_file: %q
  debug_level: 3
journal:
  path: %q
`, outputPath, filepath.Join(k.dir, "counter"), testButtonPin, testGreenPin, testRedPin,
		filepath.Join(k.dir, "thermobox.log"), filepath.Join(k.dir, "journal.db"))

	k.cfgPath = filepath.Join(k.dir, "thermobox.yaml")
	if err := os.WriteFile(k.cfgPath, []byte(cfg), 0o644); err != nil {
		t.Fatal(err)
	}
}

func (k *kiosk) lifecycle() *lifecycle {
	return &lifecycle{
		cfgPath: k.cfgPath,
		stdout:  &k.stdout,
		stderr:  &k.stderr,
		runner:  k.spooler,
		openGPIO: func(bool, *logrus.Entry) (gpio.Driver, error) {
			return k.driver, nil
		},
		observe: func(from, to session.State) {
			k.states = append(k.states, to)
		},
	}
}

func (k *kiosk) counterValue(t *testing.T) string {
	t.Helper()
	data, err := os.ReadFile(filepath.Join(k.dir, "counter"))
	if err != nil {
		t.Fatal(err)
	}
	return strings.TrimSpace(string(data))
}

// wantTeardown checks that both LEDs went dark before GPIO was released.
func (k *kiosk) wantTeardown(t *testing.T) {
	t.Helper()
	want := []string{
		fmt.Sprintf("write %d LOW", testGreenPin),
		fmt.Sprintf("write %d LOW", testRedPin),
		"close",
	}
	if got := k.driver.tail(3); !slices.Equal(got, want) {
		t.Errorf("teardown = %v, want %v", got, want)
	}
}

func TestRun_SessionThenSupervisedShutdown(t *testing.T) {
	k := newKiosk(t)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	k.driver.presses = 1
	k.driver.onIdle = cancel

	if code := k.lifecycle().run(ctx); code != exitOK {
		t.Fatalf("exit code = %d, want %d (stderr: %s)", code, exitOK, k.stderr.String())
	}

	if got := k.counterValue(t); got != "1" {
		t.Errorf("counter = %q, want 1", got)
	}
	image := filepath.Join(k.dir, "pic_1.jpeg")
	if _, err := os.Stat(image); err != nil {
		t.Errorf("image not written: %v", err)
	}
	if !slices.Contains(k.spooler.calls, "lp -o fit-to-page "+image+" -d TestPrinter") {
		t.Errorf("spooler calls = %v", k.spooler.calls)
	}
	if k.states[len(k.states)-1] != session.ShuttingDown {
		t.Errorf("last state = %s, want SHUTTING_DOWN", k.states[len(k.states)-1])
	}
	k.wantTeardown(t)

	j, err := journal.Open(filepath.Join(k.dir, "journal.db"))
	if err != nil {
		t.Fatal(err)
	}
	defer j.Close()
	entries, err := j.Recent(context.Background(), 10)
	if err != nil {
		t.Fatal(err)
	}
	if len(entries) != 1 || entries[0].Outcome != journal.OutcomePrinted || entries[0].ImagePath != image {
		t.Errorf("journal = %+v", entries)
	}

	log, err := os.ReadFile(filepath.Join(k.dir, "thermobox.log"))
	if err != nil {
		t.Fatal(err)
	}
	for _, want := range []string{"ThermoBox started at", "ThermoBox stopped at", "exit_code=0"} {
		if !strings.Contains(string(log), want) {
			t.Errorf("log file missing %q", want)
		}
	}
}

func TestRun_MissingConfig(t *testing.T) {
	l := &lifecycle{cfgPath: filepath.Join(t.TempDir(), "nope.yaml"), stdout: &bytes.Buffer{}, stderr: &bytes.Buffer{}}
	if code := l.run(context.Background()); code != exitConfig {
		t.Errorf("exit code = %d, want %d", code, exitConfig)
	}
}

func TestRun_ConfigMissingKey(t *testing.T) {
	k := newKiosk(t)
	data, _ := os.ReadFile(k.cfgPath)
	data = bytes.Replace(data, []byte("  red_led_pin: 27\n"), nil, 1)
	if err := os.WriteFile(k.cfgPath, data, 0o644); err != nil {
		t.Fatal(err)
	}

	if code := k.lifecycle().run(context.Background()); code != exitConfig {
		t.Errorf("exit code = %d, want %d", code, exitConfig)
	}
	if !strings.Contains(k.stderr.String(), "gpio.red_led_pin") {
		t.Errorf("stderr does not name the missing key: %q", k.stderr.String())
	}
	if len(k.driver.events) != 0 {
		t.Errorf("GPIO touched with invalid config: %v", k.driver.events)
	}
}

func TestRun_CorruptCounter(t *testing.T) {
	k := newKiosk(t)
	if err := os.WriteFile(filepath.Join(k.dir, "counter"), []byte("abc"), 0o644); err != nil {
		t.Fatal(err)
	}

	if code := k.lifecycle().run(context.Background()); code != exitRuntime {
		t.Errorf("exit code = %d, want %d", code, exitRuntime)
	}
	k.wantTeardown(t)
}

func TestRun_GPIOInitFailure(t *testing.T) {
	k := newKiosk(t)
	l := k.lifecycle()
	l.openGPIO = func(bool, *logrus.Entry) (gpio.Driver, error) {
		return nil, errors.New("/dev/gpiomem: permission denied")
	}

	if code := l.run(context.Background()); code != exitRuntime {
		t.Errorf("exit code = %d, want %d", code, exitRuntime)
	}
}

func TestRun_PanicBeforeStartup(t *testing.T) {
	k := newKiosk(t)
	l := k.lifecycle()
	l.openGPIO = func(bool, *logrus.Entry) (gpio.Driver, error) {
		panic("driver table corrupted")
	}

	if code := l.run(context.Background()); code != exitNotStarted {
		t.Errorf("exit code = %d, want %d", code, exitNotStarted)
	}
}

func TestRun_PanicInLoopStillTearsDown(t *testing.T) {
	k := newKiosk(t)
	k.driver.panicOnRead = true

	if code := k.lifecycle().run(context.Background()); code != exitRuntime {
		t.Errorf("exit code = %d, want %d", code, exitRuntime)
	}
	k.wantTeardown(t)
}

func TestRun_CaptureFailureKeepsReservation(t *testing.T) {
	k := newKiosk(t)
	k.writeConfig(t, filepath.Join(k.dir, "missing")+string(os.PathSeparator))
	k.driver.presses = 1

	if code := k.lifecycle().run(context.Background()); code != exitRuntime {
		t.Fatalf("exit code = %d, want %d", code, exitRuntime)
	}
	if got := k.counterValue(t); got != "1" {
		t.Errorf("counter = %q, want 1", got)
	}
	if len(k.spooler.calls) != 0 {
		t.Errorf("printed after failed capture: %v", k.spooler.calls)
	}
	k.wantTeardown(t)
}

func TestRun_CancelledWhileIdle(t *testing.T) {
	k := newKiosk(t)
	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	if code := k.lifecycle().run(ctx); code != exitOK {
		t.Errorf("exit code = %d, want %d", code, exitOK)
	}
	if got := k.counterValue(t); got != "0" {
		t.Errorf("counter = %q, want 0", got)
	}
}

func TestExecute_MissingConfigExitCode(t *testing.T) {
	var stdout, stderr bytes.Buffer
	code := execute(context.Background(), []string{"--config", filepath.Join(t.TempDir(), "nope.yaml")}, &stdout, &stderr)
	if code != exitConfig {
		t.Errorf("exit code = %d, want %d", code, exitConfig)
	}
}

func TestExecute_UnknownFlag(t *testing.T) {
	var stdout, stderr bytes.Buffer
	if code := execute(context.Background(), []string{"--bogus"}, &stdout, &stderr); code != exitConfig {
		t.Errorf("exit code = %d, want %d", code, exitConfig)
	}
	if !strings.Contains(stderr.String(), "bogus") {
		t.Errorf("stderr = %q", stderr.String())
	}
}

func TestExecute_CounterInitAndShow(t *testing.T) {
	k := newKiosk(t)
	var stdout, stderr bytes.Buffer

	if code := execute(context.Background(), []string{"--config", k.cfgPath, "counter", "init", "41"}, &stdout, &stderr); code != exitConfig {
		t.Fatalf("init over an existing counter: exit code = %d, want %d", code, exitConfig)
	}
	if !strings.Contains(stderr.String(), "--force") {
		t.Errorf("stderr = %q", stderr.String())
	}

	stdout.Reset()
	if code := execute(context.Background(), []string{"--config", k.cfgPath, "counter", "init", "--force", "41"}, &stdout, &stderr); code != exitOK {
		t.Fatalf("init --force: exit code = %d (stderr: %s)", code, stderr.String())
	}
	if got := k.counterValue(t); got != "41" {
		t.Errorf("counter = %q, want 41", got)
	}

	stdout.Reset()
	if code := execute(context.Background(), []string{"--config", k.cfgPath, "counter", "show"}, &stdout, &stderr); code != exitOK {
		t.Fatalf("show: exit code = %d (stderr: %s)", code, stderr.String())
	}
	if !strings.Contains(stdout.String(), "current:      41") {
		t.Errorf("show output = %q", stdout.String())
	}
	if !strings.Contains(stdout.String(), filepath.Join(k.dir, "pic_42.jpeg")) {
		t.Errorf("show output missing next image: %q", stdout.String())
	}
}

func TestExecute_CounterInitRejectsNegative(t *testing.T) {
	k := newKiosk(t)
	var stdout, stderr bytes.Buffer
	if code := execute(context.Background(), []string{"--config", k.cfgPath, "counter", "init", "--force", "--", "-1"}, &stdout, &stderr); code != exitConfig {
		t.Errorf("exit code = %d, want %d", code, exitConfig)
	}
	if got := k.counterValue(t); got != "0" {
		t.Errorf("counter changed to %q", got)
	}
}

func TestExecute_JournalList(t *testing.T) {
	k := newKiosk(t)
	j, err := journal.Open(filepath.Join(k.dir, "journal.db"))
	if err != nil {
		t.Fatal(err)
	}
	start := time.Date(2026, 3, 14, 15, 9, 26, 0, time.UTC)
	entries := []journal.Entry{
		{ID: journal.NewID(), ImageID: 1, ImagePath: "/tmp/pic_1.jpeg", StartedAt: start, FinishedAt: start.Add(4 * time.Second), Outcome: journal.OutcomePrinted},
		{ID: journal.NewID(), ImageID: 2, ImagePath: "/tmp/pic_2.jpeg", StartedAt: start.Add(time.Minute), FinishedAt: start.Add(time.Minute + 5*time.Second), Outcome: journal.OutcomePrintFailed, Error: "printer status query failed"},
	}
	for _, e := range entries {
		if err := j.Record(context.Background(), e); err != nil {
			t.Fatal(err)
		}
	}
	j.Close()

	var stdout, stderr bytes.Buffer
	if code := execute(context.Background(), []string{"--config", k.cfgPath, "journal", "list", "-n", "5"}, &stdout, &stderr); code != exitOK {
		t.Fatalf("exit code = %d (stderr: %s)", code, stderr.String())
	}
	out := stdout.String()
	for _, want := range []string{"OUTCOME", "/tmp/pic_1.jpeg", "/tmp/pic_2.jpeg", "print_failed", "printer status query failed"} {
		if !strings.Contains(out, want) {
			t.Errorf("output missing %q:\n%s", want, out)
		}
	}
	if strings.Index(out, "pic_2") > strings.Index(out, "pic_1") {
		t.Errorf("most recent session not listed first:\n%s", out)
	}
}
