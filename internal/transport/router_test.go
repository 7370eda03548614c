package transport

import (
	"context"
	"errors"
	"testing"
	"time"
)

func TestProbeRunsEveryChannel(t *testing.T) {
	serial := &fakeChannel{name: "serial"}
	network := &fakeChannel{name: "network"}
	r, err := Probe(context.Background(), nil, serial, network)
	if err != nil {
		t.Fatalf("Probe: %v", err)
	}
	if serial.opens != 1 || network.opens != 1 {
		t.Errorf("opens: serial=%d network=%d, want 1 each", serial.opens, network.opens)
	}
	st := r.Status()
	if st[0].State != Available || st[1].State != Available {
		t.Errorf("states: got %s/%s, want available/available", st[0].State, st[1].State)
	}
}

func TestProbeNothingAvailable(t *testing.T) {
	r, err := Probe(context.Background(), nil,
		&fakeChannel{name: "serial", openErr: ErrNoPorts},
		&fakeChannel{name: "network", openErr: ErrNoService},
	)
	if !errors.Is(err, ErrNoTransport) {
		t.Fatalf("got %v, want ErrNoTransport", err)
	}
	if r == nil {
		t.Fatal("router is nil")
	}
	for _, st := range r.Status() {
		if st.State != Unavailable || st.LastErr == "" {
			t.Errorf("%s: got %s (%q), want unavailable with an error", st.Name, st.State, st.LastErr)
		}
	}
}

func TestDeliverPrefersFirstChannel(t *testing.T) {
	serial := &fakeChannel{name: "serial"}
	network := &fakeChannel{name: "network"}
	r, _ := Probe(context.Background(), nil, serial, network)

	name, err := r.Deliver(context.Background(), "07:42\n")
	if err != nil || name != "serial" {
		t.Fatalf("Deliver: got %q, %v", name, err)
	}
	if len(serial.sent) != 1 || len(network.sent) != 0 {
		t.Errorf("sent: serial=%d network=%d, want 1/0", len(serial.sent), len(network.sent))
	}
}

func TestDeliverFallsBackOnNextCall(t *testing.T) {
	serial := &fakeChannel{name: "serial"}
	network := &fakeChannel{name: "network"}
	r, _ := Probe(context.Background(), nil, serial, network)

	serial.sendErr = errBoom
	name, err := r.Deliver(context.Background(), "07:42\n")
	if !errors.Is(err, errBoom) || name != "serial" {
		t.Fatalf("failed Deliver: got %q, %v", name, err)
	}
	if len(network.sent) != 0 {
		t.Error("network used in the same call as the serial failure")
	}
	if st := r.Status()[0]; st.State != Degraded || st.Failed != 1 {
		t.Errorf("serial status: got %+v", st)
	}

	serial.sendErr = nil
	name, err = r.Deliver(context.Background(), "07:43\n")
	if err != nil || name != "network" {
		t.Fatalf("next Deliver: got %q, %v", name, err)
	}
	if len(serial.sent) != 0 {
		t.Error("degraded serial channel was retried")
	}
	if r.Active() != "network" {
		t.Errorf("Active: got %q, want network", r.Active())
	}
}

func TestDeliverSkipsUnavailable(t *testing.T) {
	serial := &fakeChannel{name: "serial", openErr: ErrNoPorts}
	network := &fakeChannel{name: "network"}
	r, err := Probe(context.Background(), nil, serial, network)
	if err != nil {
		t.Fatalf("Probe: %v", err)
	}
	if name, err := r.Deliver(context.Background(), "07:42\n"); err != nil || name != "network" {
		t.Errorf("Deliver: got %q, %v", name, err)
	}
}

func TestDeliverNoChannelLeft(t *testing.T) {
	serial := &fakeChannel{name: "serial"}
	r, _ := Probe(context.Background(), nil, serial)
	serial.sendErr = errBoom
	_, _ = r.Deliver(context.Background(), "07:42\n")

	if _, err := r.Deliver(context.Background(), "07:42\n"); !errors.Is(err, ErrNoChannel) {
		t.Errorf("got %v, want ErrNoChannel", err)
	}
	if r.Active() != "" {
		t.Errorf("Active: got %q, want empty", r.Active())
	}
}

func TestRouterClose(t *testing.T) {
	serial := &fakeChannel{name: "serial"}
	network := &fakeChannel{name: "network", openErr: ErrNoService}
	r, _ := Probe(context.Background(), nil, serial, network)
	if err := r.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}
	if !serial.closed || !network.closed {
		t.Errorf("closed: serial=%v network=%v", serial.closed, network.closed)
	}
}

func TestReprobeDisabledByDefault(t *testing.T) {
	serial := &fakeChannel{name: "serial"}
	r, _ := Probe(context.Background(), nil, serial)
	serial.sendErr = errBoom
	_, _ = r.Deliver(context.Background(), "07:42\n")

	r.Reprobe(context.Background())
	if serial.opens != 1 {
		t.Errorf("opens: got %d, want 1", serial.opens)
	}
}

func TestReprobeRestoresChannel(t *testing.T) {
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	serial := &fakeChannel{name: "serial"}
	network := &fakeChannel{name: "network"}
	r, _ := Probe(context.Background(), nil, serial, network)
	r.now = func() time.Time { return now }
	r.EnableReprobe(ReprobePolicy{InitialInterval: 5 * time.Second, MaxInterval: 20 * time.Second})

	serial.sendErr = errBoom
	_, _ = r.Deliver(context.Background(), "07:42\n")
	serial.sendErr = nil

	// First pass only schedules the attempt.
	r.Reprobe(context.Background())
	if serial.opens != 1 {
		t.Fatalf("opens after scheduling: got %d, want 1", serial.opens)
	}

	serial.openErr = errBoom
	now = now.Add(5 * time.Second)
	r.Reprobe(context.Background())
	if serial.opens != 2 {
		t.Fatalf("opens after first due attempt: got %d, want 2", serial.opens)
	}
	if st := r.Status()[0].State; st != Unavailable {
		t.Errorf("state after failed re-probe: got %s", st)
	}

	// Backoff doubled: 5s is not enough.
	serial.openErr = nil
	now = now.Add(5 * time.Second)
	r.Reprobe(context.Background())
	if serial.opens != 2 {
		t.Fatalf("re-probed before backoff elapsed")
	}
	now = now.Add(5 * time.Second)
	r.Reprobe(context.Background())
	if serial.opens != 3 {
		t.Fatalf("opens after backoff: got %d, want 3", serial.opens)
	}
	if r.Active() != "serial" {
		t.Errorf("Active: got %q, want serial", r.Active())
	}
	if network.opens != 1 {
		t.Errorf("available network channel was re-probed")
	}
}
