package discovery

import (
	"context"
	"errors"
	"net"
	"runtime"
	"testing"
	"time"

	"github.com/grandcat/zeroconf"
	"go.uber.org/zap"
)

func TestSplitService(t *testing.T) {
	tests := []struct {
		in, service, domain string
	}{
		{"_esp32udp._udp.local.", "_esp32udp._udp", "local."},
		{"_esp32udp._udp.local", "_esp32udp._udp", "local."},
		{"_esp32udp._udp", "_esp32udp._udp", "local."},
		{"_http._tcp.example.org.", "_http._tcp", "example.org."},
		{"esp32udp.local.", "", ""},
		{"", "", ""},
	}
	for _, tt := range tests {
		svc, dom := SplitService(tt.in)
		if svc != tt.service || dom != tt.domain {
			t.Errorf("SplitService(%q) = (%q, %q), want (%q, %q)", tt.in, svc, dom, tt.service, tt.domain)
		}
	}
}

func entry(instance string, port int, v4 ...net.IP) *zeroconf.ServiceEntry {
	e := zeroconf.NewServiceEntry(instance, "_esp32udp._udp", "local.")
	e.HostName = instance + ".local."
	e.Port = port
	e.AddrIPv4 = v4
	return e
}

func TestCollectDeduplicates(t *testing.T) {
	entries := make(chan *zeroconf.ServiceEntry, 4)
	entries <- entry("esp32-display", 4210, net.IPv4(192, 168, 1, 20))
	entries <- entry("kitchen", 4210, net.IPv4(192, 168, 1, 30))
	entries <- entry("esp32-display", 4211, net.IPv4(192, 168, 1, 21))
	close(entries)

	got := collect(context.Background(), entries)
	if len(got) != 2 {
		t.Fatalf("got %d records, want 2", len(got))
	}
	if got[0].Instance != "esp32-display" || got[0].Port != 4211 {
		t.Errorf("first record: got %+v", got[0])
	}
	if got[1].Instance != "kitchen" {
		t.Errorf("second record: got %+v", got[1])
	}
}

func TestCollectStopsOnContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if got := collect(ctx, make(chan *zeroconf.ServiceEntry)); len(got) != 0 {
		t.Errorf("got %v, want none", got)
	}
}

func TestToRecordOrdersIPv4First(t *testing.T) {
	e := entry("esp32-display", 4210, net.IPv4(192, 168, 1, 20))
	e.AddrIPv6 = []net.IP{net.ParseIP("fe80::1")}
	rec := toRecord(e)
	if len(rec.Addrs) != 2 || rec.Addrs[0].To4() == nil {
		t.Errorf("addrs: got %v", rec.Addrs)
	}
	if rec.Host != "esp32-display.local." {
		t.Errorf("host: got %q", rec.Host)
	}
}

func TestResolveBrowseErrorReleasesCollector(t *testing.T) {
	errBrowse := errors.New("no multicast interface")
	r := &Resolver{
		log: zap.NewNop(),
		browse: func(context.Context, string, string, chan<- *zeroconf.ServiceEntry) error {
			return errBrowse
		},
	}

	before := runtime.NumGoroutine()
	for i := 0; i < 10; i++ {
		if _, err := r.Resolve(context.Background(), "_esp32udp._udp.local."); !errors.Is(err, errBrowse) {
			t.Fatalf("got %v, want wrapped browse error", err)
		}
	}

	deadline := time.Now().Add(2 * time.Second)
	for runtime.NumGoroutine() > before {
		if time.Now().After(deadline) {
			t.Fatalf("goroutines: got %d, want at most %d", runtime.NumGoroutine(), before)
		}
		time.Sleep(10 * time.Millisecond)
	}
}

func TestResolveCollectsBrowsedEntries(t *testing.T) {
	r := &Resolver{
		log: zap.NewNop(),
		browse: func(ctx context.Context, service, domain string, entries chan<- *zeroconf.ServiceEntry) error {
			if service != "_esp32udp._udp" || domain != "local." {
				t.Errorf("browse(%q, %q)", service, domain)
			}
			go func() {
				defer close(entries)
				entries <- entry("esp32", 4210, net.IPv4(192, 168, 1, 40))
			}()
			return nil
		},
	}
	got, err := r.Resolve(context.Background(), "_esp32udp._udp.local.")
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	if len(got) != 1 || got[0].Instance != "esp32" || got[0].Port != 4210 {
		t.Errorf("got %+v, want one esp32 record on 4210", got)
	}
}
