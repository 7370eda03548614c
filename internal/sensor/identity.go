package sensor

import "strings"

// chipIdentityMap maps hwmon chip name prefixes to a hardware class and
// a friendly component name. Order matters: the first matching prefix
// wins, so "nvidia-gpu" must precede "nvidia".
var chipIdentityMap = []struct {
	prefix string
	typ    HardwareType
	name   string
}{
	{"coretemp", HardwareCPU, "CPU"},
	{"k10temp", HardwareCPU, "CPU"},
	{"zenpower", HardwareCPU, "CPU"},
	{"cpu_thermal", HardwareCPU, "CPU"},
	{"amdgpu", HardwareGPUAmd, "GPU (AMD)"},
	{"radeon", HardwareGPUAmd, "GPU (AMD)"},
	{"nouveau", HardwareGPUNvidia, "GPU (NVIDIA)"},
	{"nvidia-gpu", HardwareGPUNvidia, "GPU (NVIDIA)"},
	{"nvidia", HardwareGPUNvidia, "GPU (NVIDIA)"},
	{"intel_gpu", HardwareGPUIntel, "GPU (Intel)"},
	{"i915", HardwareGPUIntel, "GPU (Intel)"},
	{"xe", HardwareGPUIntel, "GPU (Intel)"},
	{"nvme", HardwareStorage, "NVMe SSD"},
	{"drivetemp", HardwareStorage, "HDD/SSD"},
	{"iwlwifi", HardwareNetwork, "WiFi"},
	{"ath", HardwareNetwork, "WiFi"},
	{"mt7", HardwareNetwork, "WiFi"},
	{"rtw", HardwareNetwork, "WiFi"},
	{"pch", HardwareController, "PCH (Chipset)"},
	{"it87", HardwareMotherboard, "Motherboard"},
	{"nct", HardwareMotherboard, "Motherboard"},
	{"w83", HardwareMotherboard, "Motherboard"},
	{"f71", HardwareMotherboard, "Motherboard"},
	{"asus", HardwareMotherboard, "Motherboard"},
	{"spd5118", HardwareMemory, "Memory"},
	{"jc42", HardwareMemory, "Memory"},
}

// Classify returns the hardware class for a chip name.
func Classify(chip string) HardwareType {
	lower := strings.ToLower(chip)
	for _, entry := range chipIdentityMap {
		if strings.HasPrefix(lower, entry.prefix) {
			return entry.typ
		}
	}
	return HardwareOther
}

// FriendlyName returns a human-readable component name for a chip ID.
func FriendlyName(chip string) string {
	lower := strings.ToLower(chip)
	for _, entry := range chipIdentityMap {
		if strings.HasPrefix(lower, entry.prefix) {
			return entry.name
		}
	}
	return "Sensor"
}
