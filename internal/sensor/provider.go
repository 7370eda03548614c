package sensor

import (
	"errors"
	"fmt"
	"math"
	"strconv"
	"strings"

	"go.uber.org/zap"
)

var (
	// ErrNoCPU means the hardware tree holds no CPU.
	ErrNoCPU = errors.New("no CPU found")
	// ErrNoGPU means the hardware tree holds no NVIDIA, AMD or Intel GPU.
	ErrNoGPU = errors.New("no GPU found")
)

// InitError is returned by Provider.Initialize. Initialization errors are
// fatal: the provider cannot be used afterwards.
type InitError struct {
	Err error
}

func (e *InitError) Error() string { return "sensor provider init: " + e.Err.Error() }

func (e *InitError) Unwrap() error { return e.Err }

// gpuSensorMarker picks the die sensor among a GPU's temperature sensors,
// skipping memory and hot-spot readings.
const gpuSensorMarker = "Core"

// Chooser picks one entry from a list of options and returns its
// zero-based index.
type Chooser interface {
	Choose(title string, options []string) (int, error)
}

// Provider owns the hardware handle and the resolved CPU and GPU
// temperature sensors. Sensors are resolved once by Initialize; a sensor
// that cannot be resolved stays absent and reads as 0.
//
// Initialize must complete before any Read call. After that the provider
// is only used from the telemetry loop and needs no locking.
type Provider struct {
	computer Computer
	chooser  Chooser
	gpuHint  string
	log      *zap.Logger

	cpu       Hardware
	cpuSensor Sensor
	gpu       Hardware
	gpuSensor Sensor
}

// Option configures a Provider.
type Option func(*Provider)

// WithGPU preselects the GPU when several are present. hint is either a
// hardware identifier or a 1-based index into the GPU list. A hint that
// matches nothing falls back to the chooser.
func WithGPU(hint string) Option {
	return func(p *Provider) { p.gpuHint = strings.TrimSpace(hint) }
}

// NewProvider creates a provider over computer. chooser is consulted only
// when more than one GPU is found.
func NewProvider(computer Computer, chooser Chooser, logger *zap.Logger, opts ...Option) *Provider {
	if logger == nil {
		logger = zap.NewNop()
	}
	p := &Provider{
		computer: computer,
		chooser:  chooser,
		log:      logger.Named("sensor"),
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Initialize opens the hardware handle with only the CPU and GPU
// subsystems enabled, runs one full update pass over the tree and
// resolves the temperature sensors.
func (p *Provider) Initialize() error {
	p.log.Info("retrieving devices")
	if err := p.computer.Open(CPUAndGPU); err != nil {
		return &InitError{Err: fmt.Errorf("open hardware: %w", err)}
	}
	nodes := p.computer.Hardware()
	UpdateAll(nodes)

	p.cpu = findCPU(nodes)
	if p.cpu == nil {
		p.log.Error("unable to retrieve CPU")
		return &InitError{Err: ErrNoCPU}
	}
	p.log.Info("retrieved CPU", zap.String("name", p.cpu.Name()))
	p.cpuSensor = firstTemperature(p.cpu, "")
	if p.cpuSensor == nil {
		p.log.Warn("CPU has no temperature sensor, reporting 0", zap.String("cpu", p.cpu.Name()))
	}

	gpus := listGPUs(nodes)
	if len(gpus) == 0 {
		p.log.Error("unable to retrieve GPU")
		return &InitError{Err: ErrNoGPU}
	}
	gpu, err := p.selectGPU(gpus)
	if err != nil {
		return &InitError{Err: fmt.Errorf("select GPU: %w", err)}
	}
	p.gpu = gpu
	p.log.Info("retrieved GPU", zap.String("name", gpu.Name()), zap.String("id", gpu.Identifier()))
	p.gpuSensor = firstTemperature(gpu, gpuSensorMarker)
	if p.gpuSensor == nil {
		p.log.Warn("GPU has no core temperature sensor, reporting 0", zap.String("gpu", gpu.Name()))
	}
	return nil
}

func (p *Provider) selectGPU(gpus []Hardware) (Hardware, error) {
	if len(gpus) == 1 {
		return gpus[0], nil
	}
	if hw := matchHint(gpus, p.gpuHint); hw != nil {
		return hw, nil
	}
	if p.gpuHint != "" {
		p.log.Warn("configured GPU not found, asking", zap.String("gpu", p.gpuHint))
	}
	if p.chooser == nil {
		return nil, fmt.Errorf("%d GPUs found and no way to choose", len(gpus))
	}
	options := make([]string, len(gpus))
	for i, hw := range gpus {
		options[i] = fmt.Sprintf("GPU Name: %s - GPU Identifier: %s", hw.Name(), hw.Identifier())
	}
	idx, err := p.chooser.Choose("Multiple GPUs detected. Please input the number of the GPU to use and press enter.", options)
	if err != nil {
		return nil, err
	}
	if idx < 0 || idx >= len(gpus) {
		return nil, fmt.Errorf("GPU choice %d out of range", idx+1)
	}
	return gpus[idx], nil
}

func matchHint(gpus []Hardware, hint string) Hardware {
	if hint == "" {
		return nil
	}
	for _, hw := range gpus {
		if hw.Identifier() == hint {
			return hw
		}
	}
	if n, err := strconv.Atoi(hint); err == nil && n >= 1 && n <= len(gpus) {
		return gpus[n-1]
	}
	return nil
}

// CPU returns the resolved CPU, or nil before a successful Initialize.
func (p *Provider) CPU() Hardware { return p.cpu }

// GPU returns the selected GPU, or nil before a successful Initialize.
func (p *Provider) GPU() Hardware { return p.gpu }

// CPUTemperature refreshes the CPU and returns its temperature.
func (p *Provider) CPUTemperature() Temperature {
	return readTemperature(p.cpu, p.cpuSensor)
}

// GPUTemperature refreshes the selected GPU and returns its temperature.
func (p *Provider) GPUTemperature() Temperature {
	return readTemperature(p.gpu, p.gpuSensor)
}

// ReadCPUTemp returns the CPU temperature in whole degrees, or 0 when the
// sensor was never resolved.
func (p *Provider) ReadCPUTemp() int { return p.CPUTemperature().Celsius }

// ReadGPUTemp returns the GPU temperature in whole degrees, or 0 when the
// sensor was never resolved.
func (p *Provider) ReadGPUTemp() int { return p.GPUTemperature().Celsius }

// Read samples both components.
func (p *Provider) Read() Reading {
	cpu := p.CPUTemperature()
	gpu := p.GPUTemperature()
	return Reading{
		CPU:      cpu.Celsius,
		GPU:      gpu.Celsius,
		CPUValid: cpu.Valid,
		GPUValid: gpu.Valid,
	}
}

func readTemperature(hw Hardware, s Sensor) Temperature {
	if hw == nil || s == nil {
		return Temperature{}
	}
	hw.Update()
	v, ok := s.Value()
	if !ok || math.IsNaN(v) || math.IsInf(v, 0) {
		return Temperature{}
	}
	return Temperature{Celsius: Truncate(v), Valid: true}
}

func findCPU(nodes []Hardware) Hardware {
	for _, hw := range nodes {
		if hw.Type() == HardwareCPU {
			return hw
		}
	}
	return nil
}

func listGPUs(nodes []Hardware) []Hardware {
	var gpus []Hardware
	for _, hw := range nodes {
		if hw.Type().IsGPU() {
			gpus = append(gpus, hw)
		}
	}
	return gpus
}

// firstTemperature returns the first temperature sensor of hw whose name
// contains marker. An empty marker matches any name.
func firstTemperature(hw Hardware, marker string) Sensor {
	for _, s := range hw.Sensors() {
		if s.Kind() != KindTemperature {
			continue
		}
		if marker == "" || strings.Contains(s.Name(), marker) {
			return s
		}
	}
	return nil
}
