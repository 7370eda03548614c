package hwmon

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/luki/sensorlink/internal/sensor"
)

// writeChip creates a synthetic /sys/class/hwmon/<dir> entry. files maps
// file names to contents.
func writeChip(t *testing.T, root, dir string, files map[string]string) string {
	t.Helper()
	path := filepath.Join(root, "class", "hwmon", dir)
	if err := os.MkdirAll(path, 0o755); err != nil {
		t.Fatal(err)
	}
	for name, content := range files {
		if err := os.WriteFile(filepath.Join(path, name), []byte(content+"\n"), 0o644); err != nil {
			t.Fatal(err)
		}
	}
	return path
}

func noNvidia(string, ...string) ([]byte, error) {
	return nil, errors.New("not installed")
}

func syntheticSys(t *testing.T) string {
	root := t.TempDir()
	writeChip(t, root, "hwmon0", map[string]string{
		"name":        "nvme",
		"temp1_input": "36850",
		"temp1_label": "Composite",
	})
	writeChip(t, root, "hwmon2", map[string]string{
		"name":         "coretemp",
		"temp1_input":  "48000",
		"temp1_label":  "Package id 0",
		"temp2_input":  "46000",
		"temp2_label":  "Core 0",
		"temp10_input": "45000",
		"temp10_label": "Core 8",
	})
	writeChip(t, root, "hwmon10", map[string]string{
		"name":        "amdgpu",
		"temp1_input": "51000",
		"temp1_label": "edge",
		"temp2_input": "63000",
		"temp2_label": "junction",
		"temp3_input": "70000",
		"temp3_label": "mem",
	})
	return root
}

func TestOpenFiltersSubsystems(t *testing.T) {
	c := New(WithSysRoot(syntheticSys(t)), withRunner(noNvidia))
	if err := c.Open(sensor.CPUAndGPU); err != nil {
		t.Fatalf("Open: %v", err)
	}
	nodes := c.Hardware()
	if len(nodes) != 2 {
		t.Fatalf("expected 2 nodes, got %d", len(nodes))
	}
	if nodes[0].Type() != sensor.HardwareCPU {
		t.Errorf("first node: got %s, want cpu", nodes[0].Type())
	}
	if nodes[1].Type() != sensor.HardwareGPUAmd {
		t.Errorf("second node: got %s, want gpu-amd", nodes[1].Type())
	}
	if nodes[1].Identifier() != "/hwmon/hwmon10" {
		t.Errorf("identifier: got %q", nodes[1].Identifier())
	}
}

func TestSensorOrderAndValues(t *testing.T) {
	c := New(WithSysRoot(syntheticSys(t)), withRunner(noNvidia))
	if err := c.Open(sensor.Subsystems{CPU: true}); err != nil {
		t.Fatalf("Open: %v", err)
	}
	cpu := c.Hardware()[0]
	cpu.Update()

	var names []string
	for _, s := range cpu.Sensors() {
		names = append(names, s.Name())
	}
	if got := strings.Join(names, ","); got != "Package id 0,Core 0,Core 8" {
		t.Errorf("sensor order: got %s", got)
	}
	v, ok := cpu.Sensors()[0].Value()
	if !ok || v != 48.0 {
		t.Errorf("package value: got %v (ok=%v), want 48", v, ok)
	}
}

func TestGPUSensorNames(t *testing.T) {
	c := New(WithSysRoot(syntheticSys(t)), withRunner(noNvidia))
	if err := c.Open(sensor.Subsystems{GPU: true}); err != nil {
		t.Fatalf("Open: %v", err)
	}
	gpu := c.Hardware()[0]
	var names []string
	for _, s := range gpu.Sensors() {
		names = append(names, s.Name())
	}
	if got := strings.Join(names, ","); got != "GPU Core,GPU Hot Spot,GPU Memory" {
		t.Errorf("gpu sensor names: got %s", got)
	}
}

func TestUpdateRereadsValues(t *testing.T) {
	root := syntheticSys(t)
	c := New(WithSysRoot(root), withRunner(noNvidia))
	if err := c.Open(sensor.Subsystems{CPU: true}); err != nil {
		t.Fatalf("Open: %v", err)
	}
	cpu := c.Hardware()[0]
	cpu.Update()

	path := filepath.Join(root, "class", "hwmon", "hwmon2", "temp1_input")
	if err := os.WriteFile(path, []byte("55500\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	cpu.Update()
	if v, _ := cpu.Sensors()[0].Value(); v != 55.5 {
		t.Errorf("after rewrite: got %v, want 55.5", v)
	}

	if err := os.Remove(path); err != nil {
		t.Fatal(err)
	}
	cpu.Update()
	if _, ok := cpu.Sensors()[0].Value(); ok {
		t.Error("expected no value after the input file disappeared")
	}
}

func TestOpenMissingSysfs(t *testing.T) {
	c := New(WithSysRoot(filepath.Join(t.TempDir(), "missing")), withRunner(noNvidia))
	if err := c.Open(sensor.CPUAndGPU); err == nil {
		t.Error("expected an error for a missing hwmon class")
	}
}

func TestNvidiaSMI(t *testing.T) {
	temps := map[string]string{"0": "57", "1": "[N/A]"}
	run := func(name string, args ...string) ([]byte, error) {
		if name != "nvidia-smi" {
			return nil, errors.New("unexpected command " + name)
		}
		if args[0] == "--query-gpu=index,name,pci.bus_id" {
			return []byte("0, NVIDIA GeForce RTX 4080, 00000000:01:00.0\n1, NVIDIA T400, 00000000:02:00.0\n"), nil
		}
		return []byte(temps[args[len(args)-1]] + "\n"), nil
	}
	root := syntheticSys(t)
	c := New(WithSysRoot(root), withRunner(run))
	if err := c.Open(sensor.Subsystems{GPU: true}); err != nil {
		t.Fatalf("Open: %v", err)
	}
	nodes := c.Hardware()
	if len(nodes) != 3 {
		t.Fatalf("expected amdgpu + 2 nvidia nodes, got %d", len(nodes))
	}
	rtx := nodes[1]
	if rtx.Name() != "NVIDIA GeForce RTX 4080" || rtx.Identifier() != "/gpu-nvidia/0" {
		t.Errorf("nvidia node: got %q %q", rtx.Name(), rtx.Identifier())
	}
	rtx.Update()
	if v, ok := rtx.Sensors()[0].Value(); !ok || v != 57 {
		t.Errorf("rtx core: got %v (ok=%v), want 57", v, ok)
	}
	t400 := nodes[2]
	t400.Update()
	if _, ok := t400.Sensors()[0].Value(); ok {
		t.Error("expected [N/A] to produce no value")
	}
}

func TestNvidiaDisabled(t *testing.T) {
	called := false
	run := func(string, ...string) ([]byte, error) {
		called = true
		return nil, nil
	}
	c := New(WithSysRoot(syntheticSys(t)), WithNvidiaSMI(false), withRunner(run))
	if err := c.Open(sensor.CPUAndGPU); err != nil {
		t.Fatalf("Open: %v", err)
	}
	if called {
		t.Error("nvidia-smi was run while disabled")
	}
}

func TestProviderOverHwmon(t *testing.T) {
	c := New(WithSysRoot(syntheticSys(t)), withRunner(noNvidia))
	p := sensor.NewProvider(c, nil, nil)
	if err := p.Initialize(); err != nil {
		t.Fatalf("Initialize: %v", err)
	}
	r := p.Read()
	if r.CPU != 48 || r.GPU != 51 {
		t.Errorf("Read: got %d:%d, want 48:51", r.CPU, r.GPU)
	}
}
