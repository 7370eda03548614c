// Package telemetry drives the periodic read, encode and deliver cycle.
package telemetry

import (
	"context"
	"errors"
	"time"

	"go.uber.org/zap"

	"github.com/luki/sensorlink/internal/payload"
	"github.com/luki/sensorlink/internal/sensor"
	"github.com/luki/sensorlink/internal/transport"
)

const (
	// DefaultInterval is the tick period.
	DefaultInterval = time.Second
	// DefaultSendTimeout bounds one delivery and each observer call.
	DefaultSendTimeout = 2 * time.Second
)

// Reader is the part of sensor.Provider the loop needs.
type Reader interface {
	Read() sensor.Reading
}

// Dispatcher delivers an encoded payload. *transport.Router satisfies it.
type Dispatcher interface {
	Deliver(ctx context.Context, payload string) (string, error)
	Status() []transport.LinkStatus
}

// reprober is implemented by dispatchers that can reopen lost channels.
type reprober interface {
	Reprobe(ctx context.Context)
}

// Sample is the outcome of one tick.
type Sample struct {
	Time    time.Time
	Reading sensor.Reading
	Payload string
	// Channel is the name of the channel the payload went to, empty when
	// nothing was available.
	Channel string
	Err     error
	Links   []transport.LinkStatus
}

// Delivered reports whether the payload reached a channel without error.
func (s Sample) Delivered() bool {
	return s.Channel != "" && s.Err == nil
}

// Observer receives every sample. Observe must not block past ctx.
type Observer interface {
	Observe(ctx context.Context, s Sample)
}

// ObserverFunc adapts a function to Observer.
type ObserverFunc func(ctx context.Context, s Sample)

func (f ObserverFunc) Observe(ctx context.Context, s Sample) { f(ctx, s) }

// Loop reads the sensors on a fixed period and forwards each reading.
type Loop struct {
	reader      Reader
	out         Dispatcher
	interval    time.Duration
	sendTimeout time.Duration
	observers   []Observer
	log         *zap.Logger
	now         func() time.Time
}

// Option configures a Loop.
type Option func(*Loop)

func WithInterval(d time.Duration) Option {
	return func(l *Loop) {
		if d > 0 {
			l.interval = d
		}
	}
}

func WithSendTimeout(d time.Duration) Option {
	return func(l *Loop) {
		if d > 0 {
			l.sendTimeout = d
		}
	}
}

// WithObservers appends observers, called in order after every tick.
func WithObservers(obs ...Observer) Option {
	return func(l *Loop) { l.observers = append(l.observers, obs...) }
}

// New returns a Loop reading from r and delivering through out.
func New(r Reader, out Dispatcher, logger *zap.Logger, opts ...Option) *Loop {
	if logger == nil {
		logger = zap.NewNop()
	}
	l := &Loop{
		reader:      r,
		out:         out,
		interval:    DefaultInterval,
		sendTimeout: DefaultSendTimeout,
		log:         logger.Named("loop"),
		now:         time.Now,
	}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// Interval returns the tick period.
func (l *Loop) Interval() time.Duration { return l.interval }

// Run ticks immediately and then every interval until ctx is done. A tick
// finishes before the next one starts; ticks missed while one runs are
// dropped. Run returns nil when ctx is cancelled.
func (l *Loop) Run(ctx context.Context) error {
	l.log.Info("telemetry loop started", zap.Duration("interval", l.interval))
	ticker := time.NewTicker(l.interval)
	defer ticker.Stop()

	for ctx.Err() == nil {
		l.Tick(ctx)
		select {
		case <-ctx.Done():
		case <-ticker.C:
		}
	}
	l.log.Info("telemetry loop stopped")
	return nil
}

// Tick runs one cycle and returns its sample.
func (l *Loop) Tick(ctx context.Context) Sample {
	if rp, ok := l.out.(reprober); ok {
		rp.Reprobe(ctx)
	}

	r := l.reader.Read()
	s := Sample{
		Time:    l.now(),
		Reading: r,
		Payload: payload.Encode(r),
	}

	sctx, cancel := context.WithTimeout(ctx, l.sendTimeout)
	s.Channel, s.Err = l.out.Deliver(sctx, s.Payload)
	cancel()

	switch {
	case errors.Is(s.Err, transport.ErrNoChannel):
		l.log.Debug("no channel available, reading dropped", zap.String("payload", trim(s.Payload)))
	case s.Err != nil:
		l.log.Warn("delivery failed", zap.String("channel", s.Channel), zap.Error(s.Err))
	default:
		l.log.Debug("delivered", zap.String("channel", s.Channel), zap.String("payload", trim(s.Payload)))
	}
	s.Links = l.out.Status()

	for _, o := range l.observers {
		octx, cancel := context.WithTimeout(ctx, l.sendTimeout)
		o.Observe(octx, s)
		cancel()
	}
	return s
}

func trim(p string) string {
	if n := len(p); n > 0 && p[n-1] == '\n' {
		return p[:n-1]
	}
	return p
}
