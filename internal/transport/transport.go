// Package transport delivers payloads to the display over a serial link
// or a UDP link found through DNS-SD.
//
// Channels are probed once at startup in priority order. The Router then
// sends each payload through the first Available channel only. A channel
// whose send fails becomes Degraded and stays out of rotation for the
// rest of the run unless re-probing is enabled.
package transport

import (
	"context"
	"errors"
	"fmt"
	"strconv"
)

var (
	// ErrNoTransport means no channel could be opened at startup.
	ErrNoTransport = errors.New("no transport available")
	// ErrNoChannel means every channel is Degraded or Unavailable.
	ErrNoChannel = errors.New("no channel available")
	// ErrNotOpen is returned by Send on a channel that was never opened.
	ErrNotOpen = errors.New("channel not open")
)

// State is a channel's availability.
type State int

const (
	Unprobed State = iota
	Available
	Unavailable
	Degraded
)

func (s State) String() string {
	switch s {
	case Unprobed:
		return "unprobed"
	case Available:
		return "available"
	case Unavailable:
		return "unavailable"
	case Degraded:
		return "degraded"
	}
	return "state(" + strconv.Itoa(int(s)) + ")"
}

// Channel is one way of reaching the display.
type Channel interface {
	Name() string
	// TryOpen acquires the underlying port or socket. A non-nil error
	// leaves the channel unusable.
	TryOpen(ctx context.Context) error
	// Send delivers one payload. It must return within ctx's deadline
	// where the underlying transport allows it.
	Send(ctx context.Context, payload string) error
	// Endpoint reports where the channel delivers to. It is the zero
	// Endpoint until TryOpen succeeds.
	Endpoint() Endpoint
	Close() error
}

// Chooser picks one entry from a list of options and returns its
// zero-based index.
type Chooser interface {
	Choose(title string, options []string) (int, error)
}

// EndpointKind tells which half of an Endpoint is set.
type EndpointKind int

const (
	EndpointNone EndpointKind = iota
	EndpointSerial
	EndpointNetwork
)

// Endpoint is either a serial port name or a network address and port.
type Endpoint struct {
	Kind       EndpointKind
	SerialPort string
	Address    string
	Port       int
}

// SerialEndpoint returns the endpoint for a serial port.
func SerialEndpoint(name string) Endpoint {
	return Endpoint{Kind: EndpointSerial, SerialPort: name}
}

// NetworkEndpoint returns the endpoint for a UDP address and port.
func NetworkEndpoint(address string, port int) Endpoint {
	return Endpoint{Kind: EndpointNetwork, Address: address, Port: port}
}

func (e Endpoint) String() string {
	switch e.Kind {
	case EndpointSerial:
		return e.SerialPort
	case EndpointNetwork:
		return fmt.Sprintf("%s:%d", e.Address, e.Port)
	}
	return "-"
}
