package transport

import (
	"bytes"
	"context"
	"errors"
	"io"
)

type fakePort struct {
	buf      bytes.Buffer
	writeErr error
	closed   bool
}

func (p *fakePort) Write(b []byte) (int, error) {
	if p.writeErr != nil {
		return 0, p.writeErr
	}
	return p.buf.Write(b)
}

func (p *fakePort) Close() error {
	p.closed = true
	return nil
}

type fakePorts struct {
	names   []string
	listErr error
	openErr error
	opened  []string
	modes   []Mode
	last    *fakePort
}

func (f *fakePorts) List() ([]string, error) { return f.names, f.listErr }

func (f *fakePorts) Open(name string, mode Mode) (io.WriteCloser, error) {
	f.opened = append(f.opened, name)
	f.modes = append(f.modes, mode)
	if f.openErr != nil {
		return nil, f.openErr
	}
	f.last = &fakePort{}
	return f.last, nil
}

type fakeChooser struct {
	answer int
	calls  int
}

func (c *fakeChooser) Choose(string, []string) (int, error) {
	c.calls++
	return c.answer, nil
}

type fakeChannel struct {
	name    string
	openErr error
	sendErr error
	opens   int
	sent    []string
	closed  bool
}

func (c *fakeChannel) Name() string { return c.name }

func (c *fakeChannel) TryOpen(context.Context) error {
	c.opens++
	return c.openErr
}

func (c *fakeChannel) Send(_ context.Context, p string) error {
	if c.sendErr != nil {
		return c.sendErr
	}
	c.sent = append(c.sent, p)
	return nil
}

func (c *fakeChannel) Endpoint() Endpoint {
	if c.openErr != nil {
		return Endpoint{}
	}
	return SerialEndpoint(c.name)
}

func (c *fakeChannel) Close() error {
	c.closed = true
	return nil
}

var errBoom = errors.New("boom")
