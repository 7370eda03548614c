// Package discovery browses DNS-SD (mDNS) for the display's service.
package discovery

import (
	"context"
	"fmt"
	"net"
	"strings"

	"github.com/grandcat/zeroconf"
	"go.uber.org/zap"

	"github.com/luki/sensorlink/internal/transport"
)

// browseFunc streams the entries of one service type into entries.
type browseFunc func(ctx context.Context, service, domain string, entries chan<- *zeroconf.ServiceEntry) error

func browseMDNS(ctx context.Context, service, domain string, entries chan<- *zeroconf.ServiceEntry) error {
	res, err := zeroconf.NewResolver(nil)
	if err != nil {
		return fmt.Errorf("mdns resolver: %w", err)
	}
	return res.Browse(ctx, service, domain, entries)
}

// Resolver implements transport.Resolver over multicast DNS.
type Resolver struct {
	log    *zap.Logger
	browse browseFunc
}

// New returns a Resolver.
func New(logger *zap.Logger) *Resolver {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Resolver{log: logger.Named("mdns"), browse: browseMDNS}
}

// Resolve browses service until ctx is done and returns every instance
// seen, deduplicated by instance name in arrival order. service is a full
// type such as "_esp32udp._udp.local.".
func (r *Resolver) Resolve(ctx context.Context, service string) ([]transport.Record, error) {
	svc, domain := SplitService(service)
	if svc == "" {
		return nil, fmt.Errorf("invalid service type %q", service)
	}

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	entries := make(chan *zeroconf.ServiceEntry)
	done := make(chan []transport.Record, 1)
	go func() {
		done <- collect(ctx, entries)
	}()

	if err := r.browse(ctx, svc, domain, entries); err != nil {
		return nil, fmt.Errorf("browse %s: %w", service, err)
	}
	records := <-done
	r.log.Debug("browse finished", zap.String("service", service), zap.Int("records", len(records)))
	return records, nil
}

func collect(ctx context.Context, entries <-chan *zeroconf.ServiceEntry) []transport.Record {
	var out []transport.Record
	seen := make(map[string]int)
	for {
		select {
		case <-ctx.Done():
			return out
		case e, ok := <-entries:
			if !ok {
				return out
			}
			if e == nil {
				continue
			}
			rec := toRecord(e)
			if i, dup := seen[rec.Instance]; dup {
				out[i] = rec
				continue
			}
			seen[rec.Instance] = len(out)
			out = append(out, rec)
		}
	}
}

func toRecord(e *zeroconf.ServiceEntry) transport.Record {
	addrs := make([]net.IP, 0, len(e.AddrIPv4)+len(e.AddrIPv6))
	addrs = append(addrs, e.AddrIPv4...)
	addrs = append(addrs, e.AddrIPv6...)
	return transport.Record{
		Instance: e.Instance,
		Host:     e.HostName,
		Addrs:    addrs,
		Port:     e.Port,
	}
}

// SplitService splits a full service type into the service and domain
// parts zeroconf expects: "_esp32udp._udp.local." becomes
// ("_esp32udp._udp", "local."). A type without a domain gets "local.".
func SplitService(full string) (service, domain string) {
	full = strings.TrimSuffix(strings.TrimSpace(full), ".")
	if full == "" {
		return "", ""
	}
	labels := strings.Split(full, ".")
	// service is "_name._proto"
	n := 0
	for n < len(labels) && n < 2 && strings.HasPrefix(labels[n], "_") {
		n++
	}
	if n < 2 {
		return "", ""
	}
	service = strings.Join(labels[:n], ".")
	domain = strings.Join(labels[n:], ".")
	if domain == "" {
		domain = "local"
	}
	return service, domain + "."
}
