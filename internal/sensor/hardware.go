package sensor

// HardwareType classifies a hardware component.
type HardwareType int

const (
	HardwareOther HardwareType = iota
	HardwareCPU
	HardwareGPUNvidia
	HardwareGPUAmd
	HardwareGPUIntel
	HardwareMotherboard
	HardwareMemory
	HardwareStorage
	HardwareNetwork
	HardwareController
)

var hardwareTypeNames = map[HardwareType]string{
	HardwareOther:       "other",
	HardwareCPU:         "cpu",
	HardwareGPUNvidia:   "gpu-nvidia",
	HardwareGPUAmd:      "gpu-amd",
	HardwareGPUIntel:    "gpu-intel",
	HardwareMotherboard: "motherboard",
	HardwareMemory:      "memory",
	HardwareStorage:     "storage",
	HardwareNetwork:     "network",
	HardwareController:  "controller",
}

func (t HardwareType) String() string {
	if s, ok := hardwareTypeNames[t]; ok {
		return s
	}
	return "unknown"
}

// IsGPU reports whether t is one of the GPU vendor classes.
func (t HardwareType) IsGPU() bool {
	return t == HardwareGPUNvidia || t == HardwareGPUAmd || t == HardwareGPUIntel
}

// Kind is the physical quantity a sensor measures.
type Kind int

const (
	KindTemperature Kind = iota
	KindFan
	KindVoltage
	KindPower
	KindLoad
)

// Sensor is a single measurement point on a hardware component.
type Sensor interface {
	Name() string
	Kind() Kind
	// Value returns the last value populated by the owning hardware's
	// Update. ok is false when the sensor has no value.
	Value() (v float64, ok bool)
}

// Hardware is one node of the hardware tree.
type Hardware interface {
	Name() string
	Identifier() string
	Type() HardwareType
	// Update refreshes the values of this node's sensors. It does not
	// recurse into sub-hardware.
	Update()
	Sensors() []Sensor
	SubHardware() []Hardware
}

// Subsystems selects which parts of the hardware tree are enumerated.
type Subsystems struct {
	CPU         bool
	GPU         bool
	Memory      bool
	Motherboard bool
	Controller  bool
	Network     bool
	Storage     bool
}

// CPUAndGPU enables only the processors. Everything else is left out to
// keep enumeration cheap and the tree free of unrelated sensors.
var CPUAndGPU = Subsystems{CPU: true, GPU: true}

// Enabled reports whether hardware of type t belongs to an enabled
// subsystem.
func (s Subsystems) Enabled(t HardwareType) bool {
	switch {
	case t == HardwareCPU:
		return s.CPU
	case t.IsGPU():
		return s.GPU
	case t == HardwareMemory:
		return s.Memory
	case t == HardwareMotherboard:
		return s.Motherboard
	case t == HardwareController:
		return s.Controller
	case t == HardwareNetwork:
		return s.Network
	case t == HardwareStorage:
		return s.Storage
	}
	return false
}

// Computer is the handle onto the enumerated hardware tree.
type Computer interface {
	Open(Subsystems) error
	// Hardware returns the top-level nodes found by Open.
	Hardware() []Hardware
}

// Walk visits every node of the tree depth first, parents before their
// sub-hardware.
func Walk(nodes []Hardware, fn func(Hardware)) {
	for _, hw := range nodes {
		fn(hw)
		Walk(hw.SubHardware(), fn)
	}
}

// UpdateAll refreshes every node of the tree.
func UpdateAll(nodes []Hardware) {
	Walk(nodes, func(hw Hardware) { hw.Update() })
}
