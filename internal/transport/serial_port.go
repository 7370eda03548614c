package transport

import (
	"fmt"
	"io"

	"go.bug.st/serial"
	"go.bug.st/serial/enumerator"
)

// SystemPorts opens the host's serial ports.
type SystemPorts struct{}

// List returns the names of the serial ports present.
func (SystemPorts) List() ([]string, error) {
	return serial.GetPortsList()
}

// Open opens name with mode.
func (SystemPorts) Open(name string, mode Mode) (io.WriteCloser, error) {
	m := &serial.Mode{
		BaudRate: mode.BaudRate,
		DataBits: mode.DataBits,
		Parity:   serial.NoParity,
		StopBits: serial.OneStopBit,
	}
	switch mode.Parity {
	case OddParity:
		m.Parity = serial.OddParity
	case EvenParity:
		m.Parity = serial.EvenParity
	}
	if mode.StopBits == TwoStopBits {
		m.StopBits = serial.TwoStopBits
	}
	return serial.Open(name, m)
}

// PortInfo describes a serial port for listing.
type PortInfo struct {
	Name    string
	USB     bool
	VID     string
	PID     string
	Serial  string
	Product string
}

func (p PortInfo) String() string {
	if !p.USB {
		return p.Name
	}
	return fmt.Sprintf("%s  USB %s:%s %s %s", p.Name, p.VID, p.PID, p.Product, p.Serial)
}

// DescribePorts lists the serial ports with USB details where known.
func DescribePorts() ([]PortInfo, error) {
	details, err := enumerator.GetDetailedPortsList()
	if err != nil {
		return nil, err
	}
	out := make([]PortInfo, 0, len(details))
	for _, d := range details {
		out = append(out, PortInfo{
			Name:    d.Name,
			USB:     d.IsUSB,
			VID:     d.VID,
			PID:     d.PID,
			Serial:  d.SerialNumber,
			Product: d.Product,
		})
	}
	return out, nil
}
