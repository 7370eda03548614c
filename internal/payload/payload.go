// Package payload encodes readings for the display firmware.
//
// The wire form is "CC:GG\n": CPU and GPU temperatures in whole degrees,
// each zero-padded to at least two digits, followed by a newline.
// Values of three or more digits are written as they are.
package payload

import (
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/luki/sensorlink/internal/sensor"
)

// Terminator ends every payload.
const Terminator = "\n"

// ErrMalformed is returned by Decode for input that is not a payload.
var ErrMalformed = errors.New("malformed payload")

// Encode renders r. Unresolved sensors are already 0 in r and are
// encoded as "00".
func Encode(r sensor.Reading) string {
	return fmt.Sprintf("%02d:%02d"+Terminator, r.CPU, r.GPU)
}

// Decode parses a payload produced by Encode. Validity flags are not
// carried on the wire, so both are reported as set.
func Decode(s string) (sensor.Reading, error) {
	body, ok := strings.CutSuffix(s, Terminator)
	if !ok {
		return sensor.Reading{}, fmt.Errorf("%w: missing terminator in %q", ErrMalformed, s)
	}
	cpuStr, gpuStr, ok := strings.Cut(body, ":")
	if !ok {
		return sensor.Reading{}, fmt.Errorf("%w: missing separator in %q", ErrMalformed, s)
	}
	cpu, err := parseField(cpuStr)
	if err != nil {
		return sensor.Reading{}, fmt.Errorf("%w: cpu field: %v", ErrMalformed, err)
	}
	gpu, err := parseField(gpuStr)
	if err != nil {
		return sensor.Reading{}, fmt.Errorf("%w: gpu field: %v", ErrMalformed, err)
	}
	return sensor.Reading{CPU: cpu, GPU: gpu, CPUValid: true, GPUValid: true}, nil
}

func parseField(s string) (int, error) {
	if len(s) < 2 {
		return 0, fmt.Errorf("%q is shorter than two digits", s)
	}
	return strconv.Atoi(s)
}
