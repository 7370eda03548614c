package transport

import (
	"context"
	"errors"
	"fmt"
	"net"
	"strconv"
	"time"

	"go.uber.org/zap"
)

var (
	// ErrNoService means discovery returned no records.
	ErrNoService = errors.New("no service records discovered")
	// ErrInstanceNotFound means no discovered record carries the expected
	// instance name.
	ErrInstanceNotFound = errors.New("display instance not found")
)

const (
	// DefaultService is the DNS-SD service type the display advertises.
	DefaultService = "_esp32udp._udp.local."
	// DefaultDiscoveryTimeout bounds one discovery pass.
	DefaultDiscoveryTimeout = 5 * time.Second
	// DefaultSendTimeout bounds a datagram write when the caller's
	// context carries no deadline.
	DefaultSendTimeout = 2 * time.Second
)

// Record is one discovered service instance.
type Record struct {
	Instance string
	Host     string
	Addrs    []net.IP
	Port     int
}

// Resolver looks up the instances of a DNS-SD service type. Resolve
// returns when ctx is done or the lookup completes.
type Resolver interface {
	Resolve(ctx context.Context, service string) ([]Record, error)
}

// PacketListener opens the local UDP socket. *net.ListenConfig
// satisfies it.
type PacketListener interface {
	ListenPacket(ctx context.Context, network, address string) (net.PacketConn, error)
}

// NetworkChannel sends each payload as one UDP datagram to a display
// found through DNS-SD. Nothing is acknowledged, so a lost datagram is
// not an error. The socket is left unconnected so an ICMP
// port-unreachable from a restarting display never fails a later send.
type NetworkChannel struct {
	resolver Resolver
	listener PacketListener
	service  string
	instance string
	timeout  time.Duration
	log      *zap.Logger

	endpoint Endpoint
	addr     *net.UDPAddr
	conn     net.PacketConn
}

// NetworkOption configures a NetworkChannel.
type NetworkOption func(*NetworkChannel)

// WithService overrides DefaultService.
func WithService(service string) NetworkOption {
	return func(c *NetworkChannel) { c.service = service }
}

// WithDiscoveryTimeout overrides DefaultDiscoveryTimeout.
func WithDiscoveryTimeout(d time.Duration) NetworkOption {
	return func(c *NetworkChannel) {
		if d > 0 {
			c.timeout = d
		}
	}
}

// WithPacketListener replaces the UDP socket factory.
func WithPacketListener(l PacketListener) NetworkOption {
	return func(c *NetworkChannel) { c.listener = l }
}

// NewNetworkChannel returns a channel that looks for the service instance
// named instance.
func NewNetworkChannel(resolver Resolver, instance string, logger *zap.Logger, opts ...NetworkOption) *NetworkChannel {
	if logger == nil {
		logger = zap.NewNop()
	}
	c := &NetworkChannel{
		resolver: resolver,
		listener: &net.ListenConfig{},
		service:  DefaultService,
		instance: instance,
		timeout:  DefaultDiscoveryTimeout,
		log:      logger.Named("network"),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

func (c *NetworkChannel) Name() string { return "network" }

// Endpoint returns the resolved address, if any.
func (c *NetworkChannel) Endpoint() Endpoint { return c.endpoint }

// TryOpen discovers the display and opens a local UDP socket for it.
func (c *NetworkChannel) TryOpen(ctx context.Context) error {
	c.closeConn()

	dctx, cancel := context.WithTimeout(ctx, c.timeout)
	records, err := c.resolver.Resolve(dctx, c.service)
	cancel()
	if err != nil {
		c.log.Warn("service discovery failed", zap.String("service", c.service), zap.Error(err))
		return fmt.Errorf("discover %s: %w", c.service, err)
	}
	if len(records) == 0 {
		c.log.Warn("no service records", zap.String("service", c.service))
		return ErrNoService
	}

	rec, ok := findInstance(records, c.instance)
	if !ok {
		c.log.Warn("display not advertised",
			zap.String("instance", c.instance), zap.Int("records", len(records)))
		return fmt.Errorf("%w: %q", ErrInstanceNotFound, c.instance)
	}
	ip := pickAddr(rec.Addrs)
	if ip == nil {
		return fmt.Errorf("%w: %q has no address", ErrInstanceNotFound, c.instance)
	}

	addr := net.JoinHostPort(ip.String(), strconv.Itoa(rec.Port))
	network := "udp6"
	if ip.To4() != nil {
		network = "udp4"
	}
	conn, err := c.listener.ListenPacket(ctx, network, ":0")
	if err != nil {
		c.log.Warn("unable to open UDP socket", zap.String("addr", addr), zap.Error(err))
		return fmt.Errorf("open socket for %s: %w", addr, err)
	}
	c.conn = conn
	c.addr = &net.UDPAddr{IP: ip, Port: rec.Port}
	c.endpoint = NetworkEndpoint(ip.String(), rec.Port)
	c.log.Info("found display", zap.String("instance", rec.Instance), zap.String("addr", addr))
	return nil
}

// Send writes payload as one datagram.
func (c *NetworkChannel) Send(ctx context.Context, payload string) error {
	if c.conn == nil {
		return ErrNotOpen
	}
	deadline, ok := ctx.Deadline()
	if !ok {
		deadline = time.Now().Add(DefaultSendTimeout)
	}
	if err := c.conn.SetWriteDeadline(deadline); err != nil {
		return fmt.Errorf("set deadline: %w", err)
	}
	if _, err := c.conn.WriteTo([]byte(payload), c.addr); err != nil {
		return fmt.Errorf("send to %s: %w", c.endpoint, err)
	}
	return nil
}

// Close releases the socket.
func (c *NetworkChannel) Close() error {
	return c.closeConn()
}

func (c *NetworkChannel) closeConn() error {
	if c.conn == nil {
		return nil
	}
	err := c.conn.Close()
	c.conn = nil
	c.addr = nil
	c.endpoint = Endpoint{}
	return err
}

func findInstance(records []Record, instance string) (Record, bool) {
	for _, r := range records {
		if r.Instance == instance {
			return r, true
		}
	}
	return Record{}, false
}

// pickAddr prefers the first IPv4 address.
func pickAddr(addrs []net.IP) net.IP {
	for _, ip := range addrs {
		if ip.To4() != nil {
			return ip
		}
	}
	if len(addrs) > 0 {
		return addrs[0]
	}
	return nil
}
