// Package sensor models the host's hardware tree and resolves the CPU and
// GPU temperature sensors that feed the display. The hardware itself is
// reached through the Computer capability set; internal/hwmon provides
// the Linux implementation.
package sensor

// Reading is one CPU/GPU sample in whole degrees Celsius.
//
// An unresolved sensor reads as 0. CPUValid and GPUValid record whether
// the value came from a real sensor, so a genuine 0°C can be told apart
// from a missing one without changing the wire format.
type Reading struct {
	CPU      int
	GPU      int
	CPUValid bool
	GPUValid bool
}

// Temperature is a single tri-state temperature value.
type Temperature struct {
	Celsius int
	Valid   bool
}

// Truncate converts a floating point sensor value to whole degrees,
// truncating toward zero.
func Truncate(v float64) int {
	return int(v)
}
