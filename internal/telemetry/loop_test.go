package telemetry

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/luki/sensorlink/internal/sensor"
	"github.com/luki/sensorlink/internal/transport"
)

type fakeReader struct {
	readings []sensor.Reading
	n        int
}

func (r *fakeReader) Read() sensor.Reading {
	rd := r.readings[r.n%len(r.readings)]
	r.n++
	return rd
}

func reading(cpu, gpu int) sensor.Reading {
	return sensor.Reading{CPU: cpu, GPU: gpu, CPUValid: true, GPUValid: true}
}

type fakeChannel struct {
	name    string
	openErr error
	sendErr error
	sent    []string
}

func (c *fakeChannel) Name() string                  { return c.name }
func (c *fakeChannel) TryOpen(context.Context) error { return c.openErr }
func (c *fakeChannel) Endpoint() transport.Endpoint  { return transport.SerialEndpoint(c.name) }
func (c *fakeChannel) Close() error                  { return nil }

func (c *fakeChannel) Send(_ context.Context, p string) error {
	if c.sendErr != nil {
		return c.sendErr
	}
	c.sent = append(c.sent, p)
	return nil
}

type recorder struct {
	mu      sync.Mutex
	samples []Sample
}

func (r *recorder) Observe(_ context.Context, s Sample) {
	r.mu.Lock()
	r.samples = append(r.samples, s)
	r.mu.Unlock()
}

func TestTickEncodesAndDelivers(t *testing.T) {
	serial := &fakeChannel{name: "serial"}
	router, err := transport.Probe(context.Background(), nil, serial)
	if err != nil {
		t.Fatalf("Probe: %v", err)
	}
	rec := &recorder{}
	l := New(&fakeReader{readings: []sensor.Reading{reading(3, 100)}}, router, nil, WithObservers(rec))

	s := l.Tick(context.Background())
	if s.Payload != "03:100\n" {
		t.Errorf("payload: got %q, want %q", s.Payload, "03:100\n")
	}
	if !s.Delivered() || s.Channel != "serial" {
		t.Errorf("sample: got channel %q err %v", s.Channel, s.Err)
	}
	if len(serial.sent) != 1 || serial.sent[0] != "03:100\n" {
		t.Errorf("sent: got %q", serial.sent)
	}
	if len(rec.samples) != 1 || len(rec.samples[0].Links) != 1 {
		t.Errorf("observer: got %+v", rec.samples)
	}
}

func TestTickFallsBackOnNextTick(t *testing.T) {
	serial := &fakeChannel{name: "serial"}
	network := &fakeChannel{name: "network"}
	router, _ := transport.Probe(context.Background(), nil, serial, network)
	l := New(&fakeReader{readings: []sensor.Reading{reading(7, 42)}}, router, nil)

	serial.sendErr = errors.New("unplugged")
	first := l.Tick(context.Background())
	if first.Delivered() || first.Channel != "serial" {
		t.Fatalf("first tick: got channel %q err %v", first.Channel, first.Err)
	}
	if len(network.sent) != 0 {
		t.Fatal("network used in the failing tick")
	}

	second := l.Tick(context.Background())
	if !second.Delivered() || second.Channel != "network" {
		t.Fatalf("second tick: got channel %q err %v", second.Channel, second.Err)
	}
	if network.sent[0] != "07:42\n" {
		t.Errorf("network payload: got %q", network.sent[0])
	}
	if first.Links[0].State != transport.Degraded {
		t.Errorf("serial state: got %s, want degraded", first.Links[0].State)
	}
}

func TestTickWithoutChannels(t *testing.T) {
	serial := &fakeChannel{name: "serial", sendErr: errors.New("unplugged")}
	router, _ := transport.Probe(context.Background(), nil, serial)
	reader := &fakeReader{readings: []sensor.Reading{reading(55, 0)}}
	l := New(reader, router, nil)

	l.Tick(context.Background())
	s := l.Tick(context.Background())
	if !errors.Is(s.Err, transport.ErrNoChannel) || s.Channel != "" {
		t.Errorf("got channel %q err %v, want ErrNoChannel", s.Channel, s.Err)
	}
	if s.Payload != "55:00\n" {
		t.Errorf("payload still computed: got %q", s.Payload)
	}
	if reader.n != 2 {
		t.Errorf("reads: got %d, want 2", reader.n)
	}
}

type deadlineDispatcher struct {
	hadDeadline bool
	reprobes    int
}

func (d *deadlineDispatcher) Deliver(ctx context.Context, _ string) (string, error) {
	_, d.hadDeadline = ctx.Deadline()
	return "serial", nil
}

func (d *deadlineDispatcher) Status() []transport.LinkStatus { return nil }

func (d *deadlineDispatcher) Reprobe(context.Context) { d.reprobes++ }

func TestTickBoundsDelivery(t *testing.T) {
	d := &deadlineDispatcher{}
	l := New(&fakeReader{readings: []sensor.Reading{reading(1, 2)}}, d, nil, WithSendTimeout(time.Second))
	l.Tick(context.Background())
	if !d.hadDeadline {
		t.Error("delivery context carried no deadline")
	}
	if d.reprobes != 1 {
		t.Errorf("reprobes: got %d, want 1", d.reprobes)
	}
}

func TestRunStopsOnCancel(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	var mu sync.Mutex
	ticks := 0
	stop := ObserverFunc(func(context.Context, Sample) {
		mu.Lock()
		defer mu.Unlock()
		ticks++
		if ticks == 3 {
			cancel()
		}
	})
	d := &deadlineDispatcher{}
	l := New(&fakeReader{readings: []sensor.Reading{reading(1, 2)}}, d, nil,
		WithInterval(time.Millisecond), WithObservers(stop))

	done := make(chan error, 1)
	go func() { done <- l.Run(ctx) }()
	select {
	case err := <-done:
		if err != nil {
			t.Errorf("Run: %v", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("Run did not return after cancel")
	}
	mu.Lock()
	defer mu.Unlock()
	if ticks != 3 {
		t.Errorf("ticks: got %d, want 3", ticks)
	}
}

func TestDefaults(t *testing.T) {
	l := New(&fakeReader{readings: []sensor.Reading{{}}}, &deadlineDispatcher{}, nil, WithInterval(0))
	if l.Interval() != DefaultInterval {
		t.Errorf("interval: got %v, want %v", l.Interval(), DefaultInterval)
	}
}
