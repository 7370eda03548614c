// Package hwmon implements sensor.Computer on Linux. Chips are read from
// the hwmon class in sysfs; NVIDIA GPUs running the proprietary driver,
// which exposes no hwmon chip, are read through nvidia-smi.
//
// GPU sensors are renamed to the "GPU Core" / "GPU Hot Spot" /
// "GPU Memory" convention so the die sensor can be picked by name.
package hwmon

import (
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"sort"
	"strconv"
	"strings"

	"go.uber.org/zap"

	"github.com/luki/sensorlink/internal/sensor"
)

// runner executes an external command and returns its stdout.
type runner func(name string, args ...string) ([]byte, error)

func execRunner(name string, args ...string) ([]byte, error) {
	return exec.Command(name, args...).Output()
}

// Computer enumerates hwmon chips below sysRoot.
type Computer struct {
	sysRoot   string
	nvidiaSMI bool
	run       runner
	log       *zap.Logger

	nodes []sensor.Hardware
}

// Option configures a Computer.
type Option func(*Computer)

// WithSysRoot points the computer at a sysfs mount other than /sys.
func WithSysRoot(root string) Option {
	return func(c *Computer) { c.sysRoot = root }
}

// WithNvidiaSMI enables or disables the nvidia-smi source.
func WithNvidiaSMI(enabled bool) Option {
	return func(c *Computer) { c.nvidiaSMI = enabled }
}

// WithLogger sets the logger.
func WithLogger(logger *zap.Logger) Option {
	return func(c *Computer) { c.log = logger.Named("hwmon") }
}

func withRunner(r runner) Option {
	return func(c *Computer) { c.run = r }
}

// New returns a Computer reading the real /sys.
func New(opts ...Option) *Computer {
	c := &Computer{
		sysRoot:   "/sys",
		nvidiaSMI: true,
		run:       execRunner,
		log:       zap.NewNop(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Open enumerates the chips belonging to the enabled subsystems.
func (c *Computer) Open(subsystems sensor.Subsystems) error {
	c.nodes = nil

	chips, err := c.scanChips()
	if err != nil {
		c.log.Warn("hwmon scan failed", zap.Error(err))
	}
	for _, ch := range chips {
		if !subsystems.Enabled(ch.typ) {
			continue
		}
		c.nodes = append(c.nodes, ch)
	}

	if subsystems.GPU && c.nvidiaSMI {
		for _, g := range c.scanNvidia() {
			c.nodes = append(c.nodes, g)
		}
	}

	if len(c.nodes) == 0 && err != nil {
		return err
	}
	c.log.Debug("hardware enumerated", zap.Int("nodes", len(c.nodes)))
	return nil
}

// Hardware returns the nodes found by the last Open.
func (c *Computer) Hardware() []sensor.Hardware {
	return c.nodes
}

// scanChips reads every /sys/class/hwmon/hwmonN directory.
func (c *Computer) scanChips() ([]*chip, error) {
	base := filepath.Join(c.sysRoot, "class", "hwmon")
	entries, err := os.ReadDir(base)
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", base, err)
	}

	var chips []*chip
	for _, entry := range entries {
		if !strings.HasPrefix(entry.Name(), "hwmon") {
			continue
		}
		dir := filepath.Join(base, entry.Name())
		name := readSysfsString(filepath.Join(dir, "name"))
		if name == "" {
			continue
		}
		ch := &chip{
			dir:  dir,
			name: name,
			id:   "/hwmon/" + entry.Name(),
			typ:  sensor.Classify(name),
		}
		ch.sensors = readTempSensors(dir, ch.typ)
		chips = append(chips, ch)
	}
	sort.Slice(chips, func(i, j int) bool {
		return hwmonIndex(chips[i].id) < hwmonIndex(chips[j].id)
	})
	return chips, nil
}

func hwmonIndex(id string) int {
	n, err := strconv.Atoi(strings.TrimPrefix(filepath.Base(id), "hwmon"))
	if err != nil {
		return 1 << 30
	}
	return n
}

// chip is one hwmon directory.
type chip struct {
	dir     string
	name    string
	id      string
	typ     sensor.HardwareType
	sensors []*tempSensor
}

func (c *chip) Name() string {
	return sensor.FriendlyName(c.name) + " " + c.name
}

func (c *chip) Identifier() string             { return c.id }
func (c *chip) Type() sensor.HardwareType      { return c.typ }
func (c *chip) SubHardware() []sensor.Hardware { return nil }

func (c *chip) Sensors() []sensor.Sensor {
	out := make([]sensor.Sensor, len(c.sensors))
	for i, s := range c.sensors {
		out[i] = s
	}
	return out
}

func (c *chip) Update() {
	for _, s := range c.sensors {
		s.read()
	}
}

// tempSensor is a tempN_input file. Values are millidegrees Celsius.
type tempSensor struct {
	name  string
	input string
	value float64
	ok    bool
}

func (s *tempSensor) Name() string      { return s.name }
func (s *tempSensor) Kind() sensor.Kind { return sensor.KindTemperature }

func (s *tempSensor) Value() (float64, bool) { return s.value, s.ok }

func (s *tempSensor) read() {
	raw := readSysfsString(s.input)
	milli, err := strconv.ParseFloat(raw, 64)
	if raw == "" || err != nil {
		s.ok = false
		return
	}
	s.value = milli / 1000.0
	s.ok = true
}

// readTempSensors lists tempN_input files in index order.
func readTempSensors(dir string, typ sensor.HardwareType) []*tempSensor {
	matches, _ := filepath.Glob(filepath.Join(dir, "temp*_input"))

	type indexed struct {
		n    int
		path string
	}
	var inputs []indexed
	for _, m := range matches {
		base := filepath.Base(m)
		n, err := strconv.Atoi(strings.TrimSuffix(strings.TrimPrefix(base, "temp"), "_input"))
		if err != nil {
			continue
		}
		inputs = append(inputs, indexed{n: n, path: m})
	}
	sort.Slice(inputs, func(i, j int) bool { return inputs[i].n < inputs[j].n })

	sensors := make([]*tempSensor, 0, len(inputs))
	for i, in := range inputs {
		label := readSysfsString(filepath.Join(dir, fmt.Sprintf("temp%d_label", in.n)))
		if label == "" {
			label = fmt.Sprintf("temp%d", in.n)
		}
		if typ.IsGPU() {
			label = gpuSensorName(label, i == 0)
		}
		sensors = append(sensors, &tempSensor{name: label, input: in.path})
	}
	return sensors
}

// gpuSensorName maps driver labels onto the naming used by the provider.
// An unlabelled first sensor is taken to be the die.
func gpuSensorName(label string, first bool) string {
	switch strings.ToLower(label) {
	case "edge", "pkg", "gpu":
		return "GPU Core"
	case "junction", "hotspot":
		return "GPU Hot Spot"
	case "mem", "vram":
		return "GPU Memory"
	}
	if first && strings.HasPrefix(label, "temp") {
		return "GPU Core"
	}
	return "GPU " + label
}

func readSysfsString(path string) string {
	data, err := os.ReadFile(path)
	if err != nil {
		return ""
	}
	return strings.TrimSpace(string(data))
}
