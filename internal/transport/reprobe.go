package transport

import (
	"context"
	"time"

	"github.com/cenkalti/backoff/v4"
	"go.uber.org/zap"
)

// ReprobePolicy schedules reopening of Degraded and Unavailable links.
// Re-probing is off unless a policy is installed with EnableReprobe.
type ReprobePolicy struct {
	InitialInterval time.Duration
	MaxInterval     time.Duration
}

// EnableReprobe installs p. Links that are down become eligible for a
// reopen after p.InitialInterval, backing off exponentially up to
// p.MaxInterval between attempts, doubling each time.
func (r *Router) EnableReprobe(p ReprobePolicy) {
	if p.InitialInterval <= 0 {
		p.InitialInterval = 5 * time.Second
	}
	if p.MaxInterval < p.InitialInterval {
		p.MaxInterval = p.InitialInterval
	}
	r.reprobe = &p
}

func (r *Router) newBackOff() *backoff.ExponentialBackOff {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = r.reprobe.InitialInterval
	b.MaxInterval = r.reprobe.MaxInterval
	b.Multiplier = 2
	b.MaxElapsedTime = 0
	b.RandomizationFactor = 0
	b.Reset()
	return b
}

// Reprobe tries to reopen every down link whose next attempt is due. It
// runs on the loop goroutine between ticks and is a no-op unless
// EnableReprobe was called.
func (r *Router) Reprobe(ctx context.Context) {
	if r.reprobe == nil {
		return
	}
	now := r.now()
	for _, l := range r.links {
		switch l.State() {
		case Available:
			l.retry = nil
			continue
		case Unprobed:
			continue
		}
		if l.retry == nil {
			l.retry = r.newBackOff()
			l.retryAt = now.Add(l.retry.NextBackOff())
			continue
		}
		if now.Before(l.retryAt) {
			continue
		}
		name := l.ch.Name()
		if err := l.open(ctx); err != nil {
			next := l.retry.NextBackOff()
			l.retryAt = now.Add(next)
			r.log.Debug("re-probe failed", zap.String("channel", name), zap.Duration("next", next), zap.Error(err))
			continue
		}
		l.retry = nil
		r.log.Info("channel restored", zap.String("channel", name))
	}
}
