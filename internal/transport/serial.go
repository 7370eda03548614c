package transport

import (
	"context"
	"errors"
	"fmt"
	"io"
	"slices"
	"strings"

	"go.uber.org/zap"

	"github.com/luki/sensorlink/internal/payload"
)

// ErrNoPorts means no serial port is present.
var ErrNoPorts = errors.New("no serial ports found")

// Parity is the serial parity mode.
type Parity int

const (
	NoParity Parity = iota
	OddParity
	EvenParity
)

// StopBits is the number of serial stop bits.
type StopBits int

const (
	OneStopBit StopBits = iota
	TwoStopBits
)

// Mode is a serial line configuration.
type Mode struct {
	BaudRate int
	DataBits int
	Parity   Parity
	StopBits StopBits
}

// DisplayMode is the line configuration the display firmware expects:
// 115200 baud, 8 data bits, no parity, one stop bit.
var DisplayMode = Mode{BaudRate: 115200, DataBits: 8, Parity: NoParity, StopBits: OneStopBit}

// PortOpener lists and opens the host's serial ports.
type PortOpener interface {
	List() ([]string, error)
	Open(name string, mode Mode) (io.WriteCloser, error)
}

// SerialChannel writes payloads to a serial port.
//
// The operator is asked to pick a port only during the first TryOpen,
// and only when several ports exist. Later opens reuse the chosen port.
type SerialChannel struct {
	ports   PortOpener
	chooser Chooser
	mode    Mode
	fixed   string
	log     *zap.Logger

	probed   bool
	selected string
	port     io.WriteCloser
}

// SerialOption configures a SerialChannel.
type SerialOption func(*SerialChannel)

// WithPort uses name without enumerating ports.
func WithPort(name string) SerialOption {
	return func(c *SerialChannel) { c.fixed = strings.TrimSpace(name) }
}

// WithMode overrides DisplayMode.
func WithMode(mode Mode) SerialOption {
	return func(c *SerialChannel) { c.mode = mode }
}

// NewSerialChannel returns a channel over ports. chooser may be nil, in
// which case several ports without a configured one fail the probe.
func NewSerialChannel(ports PortOpener, chooser Chooser, logger *zap.Logger, opts ...SerialOption) *SerialChannel {
	if logger == nil {
		logger = zap.NewNop()
	}
	c := &SerialChannel{
		ports:   ports,
		chooser: chooser,
		mode:    DisplayMode,
		log:     logger.Named("serial"),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

func (c *SerialChannel) Name() string { return "serial" }

// Endpoint returns the open port, if any.
func (c *SerialChannel) Endpoint() Endpoint {
	if c.port == nil {
		return Endpoint{}
	}
	return SerialEndpoint(c.selected)
}

// TryOpen selects a port and opens it with the channel's mode.
func (c *SerialChannel) TryOpen(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	c.closePort()

	interactive := !c.probed
	c.probed = true

	name, err := c.pick(interactive)
	if err != nil {
		c.log.Warn("no display device on serial", zap.Error(err))
		return err
	}

	port, err := c.ports.Open(name, c.mode)
	if err != nil {
		c.log.Warn("unable to open serial port", zap.String("port", name), zap.Error(err))
		return fmt.Errorf("open %s: %w", name, err)
	}
	c.port = port
	c.selected = name
	c.log.Info("opened serial port", zap.String("port", name), zap.Int("baud", c.mode.BaudRate))
	return nil
}

func (c *SerialChannel) pick(interactive bool) (string, error) {
	if c.fixed != "" {
		return c.fixed, nil
	}
	names, err := c.ports.List()
	if err != nil {
		return "", fmt.Errorf("list serial ports: %w", err)
	}
	switch {
	case len(names) == 0:
		return "", ErrNoPorts
	case c.selected != "" && slices.Contains(names, c.selected):
		return c.selected, nil
	case len(names) == 1:
		return names[0], nil
	}

	if !interactive || c.chooser == nil {
		return "", fmt.Errorf("%d serial ports found and none selected", len(names))
	}
	options := make([]string, len(names))
	for i, n := range names {
		options[i] = "COM Port: " + n
	}
	idx, err := c.chooser.Choose("Multiple COM ports detected. Please input the number of the COM port to use and press enter.", options)
	if err != nil {
		return "", fmt.Errorf("choose serial port: %w", err)
	}
	if idx < 0 || idx >= len(names) {
		return "", fmt.Errorf("serial port choice %d out of range", idx+1)
	}
	return names[idx], nil
}

// Send writes payload followed by exactly one line terminator. A write
// still pending when ctx is done, or after DefaultSendTimeout when ctx has
// no deadline, closes the port to unblock it and returns the ctx error.
func (c *SerialChannel) Send(ctx context.Context, p string) error {
	if c.port == nil {
		return ErrNotOpen
	}
	if !strings.HasSuffix(p, payload.Terminator) {
		p += payload.Terminator
	}
	if _, ok := ctx.Deadline(); !ok {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, DefaultSendTimeout)
		defer cancel()
	}

	port := c.port
	done := make(chan error, 1)
	go func() {
		_, err := io.WriteString(port, p)
		done <- err
	}()

	select {
	case err := <-done:
		if err != nil {
			return fmt.Errorf("write %s: %w", c.selected, err)
		}
		return nil
	case <-ctx.Done():
		c.log.Warn("serial write stalled, closing port", zap.String("port", c.selected))
		if err := c.closePort(); err != nil {
			c.log.Debug("close after stalled write", zap.Error(err))
		}
		return fmt.Errorf("write %s: %w", c.selected, ctx.Err())
	}
}

// Close releases the port.
func (c *SerialChannel) Close() error {
	return c.closePort()
}

func (c *SerialChannel) closePort() error {
	if c.port == nil {
		return nil
	}
	err := c.port.Close()
	c.port = nil
	return err
}
