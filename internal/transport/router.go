package transport

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v4"
	"go.uber.org/zap"
)

// Link tracks the state of one channel. State is guarded because the
// dashboard and metrics read it from other goroutines.
type Link struct {
	ch Channel

	mu       sync.Mutex
	state    State
	endpoint Endpoint
	lastErr  error
	sent     uint64
	failed   uint64

	// re-probe schedule, touched only by the loop goroutine
	retry   *backoff.ExponentialBackOff
	retryAt time.Time
}

// LinkStatus is a point-in-time copy of a Link.
type LinkStatus struct {
	Name     string
	State    State
	Endpoint Endpoint
	Sent     uint64
	Failed   uint64
	LastErr  string
}

func newLink(ch Channel) *Link {
	return &Link{ch: ch, state: Unprobed}
}

// State returns the link's current state.
func (l *Link) State() State {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.state
}

func (l *Link) status() LinkStatus {
	l.mu.Lock()
	defer l.mu.Unlock()
	st := LinkStatus{
		Name:     l.ch.Name(),
		State:    l.state,
		Endpoint: l.endpoint,
		Sent:     l.sent,
		Failed:   l.failed,
	}
	if l.lastErr != nil {
		st.LastErr = l.lastErr.Error()
	}
	return st
}

// open runs the channel's TryOpen and records the outcome.
func (l *Link) open(ctx context.Context) error {
	err := l.ch.TryOpen(ctx)
	ep := l.ch.Endpoint()

	l.mu.Lock()
	defer l.mu.Unlock()
	if err != nil {
		l.state = Unavailable
		l.lastErr = err
		l.endpoint = Endpoint{}
		return err
	}
	l.state = Available
	l.lastErr = nil
	l.endpoint = ep
	return nil
}

func (l *Link) markSent() {
	l.mu.Lock()
	l.sent++
	l.mu.Unlock()
}

func (l *Link) markDegraded(err error) {
	l.mu.Lock()
	l.failed++
	l.state = Degraded
	l.lastErr = err
	l.mu.Unlock()
}

// Router delivers payloads through the first Available link.
type Router struct {
	links []*Link
	log   *zap.Logger

	reprobe *ReprobePolicy
	now     func() time.Time
}

// Probe opens every channel in priority order, highest first. All
// channels are probed even after one succeeds, so every state is known
// before the first payload. It returns ErrNoTransport, together with the
// router, when nothing could be opened.
func Probe(ctx context.Context, logger *zap.Logger, channels ...Channel) (*Router, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	r := &Router{log: logger.Named("router"), now: time.Now}
	available := 0
	for _, ch := range channels {
		l := newLink(ch)
		r.links = append(r.links, l)
		if err := l.open(ctx); err != nil {
			r.log.Info("channel unavailable", zap.String("channel", ch.Name()), zap.Error(err))
			continue
		}
		available++
		r.log.Info("channel available", zap.String("channel", ch.Name()), zap.Stringer("endpoint", l.endpoint))
	}
	if available == 0 {
		return r, ErrNoTransport
	}
	return r, nil
}

// Deliver sends payload through the highest-priority Available link. A
// failed send marks that link Degraded and is not retried on another link
// within the same call; the next call goes to the next link. It returns
// the name of the link used, or ErrNoChannel when none is Available.
func (r *Router) Deliver(ctx context.Context, payload string) (string, error) {
	for _, l := range r.links {
		if l.State() != Available {
			continue
		}
		name := l.ch.Name()
		if err := l.ch.Send(ctx, payload); err != nil {
			l.markDegraded(err)
			r.log.Warn("send failed, channel degraded", zap.String("channel", name), zap.Error(err))
			return name, fmt.Errorf("%s: %w", name, err)
		}
		l.markSent()
		return name, nil
	}
	return "", ErrNoChannel
}

// Active returns the name of the link the next payload would use, or ""
// when none is Available.
func (r *Router) Active() string {
	for _, l := range r.links {
		if l.State() == Available {
			return l.ch.Name()
		}
	}
	return ""
}

// Status returns a snapshot of every link in priority order.
func (r *Router) Status() []LinkStatus {
	out := make([]LinkStatus, len(r.links))
	for i, l := range r.links {
		out[i] = l.status()
	}
	return out
}

// Close closes every channel.
func (r *Router) Close() error {
	var errs []error
	for _, l := range r.links {
		if err := l.ch.Close(); err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", l.ch.Name(), err))
		}
	}
	return errors.Join(errs...)
}
