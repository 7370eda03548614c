package sensor

import "testing"

func TestFriendlyName(t *testing.T) {
	tests := []struct {
		chip string
		want string
	}{
		{"coretemp-isa-0000", "CPU"},
		{"nvme-pci-0300", "NVMe SSD"},
		{"iwlwifi_1-virtual-0", "WiFi"},
		{"pch_cannonlake-virtual-0", "PCH (Chipset)"},
		{"amdgpu-pci-0600", "GPU (AMD)"},
		{"nvidia-gpu-0", "GPU (NVIDIA)"},
		{"drivetemp-hwmon4", "HDD/SSD"},
		{"some-unknown-chip", "Sensor"},
	}
	for _, tt := range tests {
		got := FriendlyName(tt.chip)
		if got != tt.want {
			t.Errorf("FriendlyName(%q) = %q, want %q", tt.chip, got, tt.want)
		}
	}
}

func TestClassify(t *testing.T) {
	tests := []struct {
		chip string
		want HardwareType
	}{
		{"coretemp", HardwareCPU},
		{"k10temp", HardwareCPU},
		{"amdgpu", HardwareGPUAmd},
		{"nouveau", HardwareGPUNvidia},
		{"i915", HardwareGPUIntel},
		{"nvme", HardwareStorage},
		{"acpitz", HardwareOther},
	}
	for _, tt := range tests {
		if got := Classify(tt.chip); got != tt.want {
			t.Errorf("Classify(%q) = %s, want %s", tt.chip, got, tt.want)
		}
	}
}
