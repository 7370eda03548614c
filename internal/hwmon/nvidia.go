package hwmon

import (
	"fmt"
	"strconv"
	"strings"

	"go.uber.org/zap"

	"github.com/luki/sensorlink/internal/sensor"
)

// scanNvidia lists GPUs known to nvidia-smi. It returns nil when the tool
// is missing or fails.
func (c *Computer) scanNvidia() []*nvidiaGPU {
	out, err := c.run("nvidia-smi",
		"--query-gpu=index,name,pci.bus_id",
		"--format=csv,noheader,nounits",
	)
	if err != nil {
		c.log.Debug("nvidia-smi unavailable", zap.Error(err))
		return nil
	}

	var gpus []*nvidiaGPU
	for _, line := range strings.Split(strings.TrimSpace(string(out)), "\n") {
		parts := strings.SplitN(line, ", ", 3)
		if len(parts) < 3 {
			continue
		}
		idx := strings.TrimSpace(parts[0])
		if _, err := strconv.Atoi(idx); err != nil {
			continue
		}
		gpus = append(gpus, &nvidiaGPU{
			index: idx,
			name:  strings.TrimSpace(parts[1]),
			busID: strings.TrimSpace(parts[2]),
			run:   c.run,
			core:  &smiSensor{name: "GPU Core"},
		})
	}
	return gpus
}

// nvidiaGPU is one GPU reported by nvidia-smi.
type nvidiaGPU struct {
	index string
	name  string
	busID string
	run   runner
	core  *smiSensor
}

func (g *nvidiaGPU) Name() string                   { return g.name }
func (g *nvidiaGPU) Identifier() string             { return fmt.Sprintf("/gpu-nvidia/%s", g.index) }
func (g *nvidiaGPU) Type() sensor.HardwareType      { return sensor.HardwareGPUNvidia }
func (g *nvidiaGPU) SubHardware() []sensor.Hardware { return nil }
func (g *nvidiaGPU) Sensors() []sensor.Sensor       { return []sensor.Sensor{g.core} }

// Update queries the current core temperature.
func (g *nvidiaGPU) Update() {
	out, err := g.run("nvidia-smi",
		"--query-gpu=temperature.gpu",
		"--format=csv,noheader,nounits",
		"-i", g.index,
	)
	if err != nil {
		g.core.ok = false
		return
	}
	v, err := strconv.ParseFloat(strings.TrimSpace(string(out)), 64)
	if err != nil {
		// "[N/A]" on GPUs without a readable sensor.
		g.core.ok = false
		return
	}
	g.core.value = v
	g.core.ok = true
}

type smiSensor struct {
	name  string
	value float64
	ok    bool
}

func (s *smiSensor) Name() string           { return s.name }
func (s *smiSensor) Kind() sensor.Kind      { return sensor.KindTemperature }
func (s *smiSensor) Value() (float64, bool) { return s.value, s.ok }
