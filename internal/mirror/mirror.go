// Package mirror copies every reading to external systems: an MQTT topic
// and an InfluxDB bucket. Mirrors are best effort. Each sits behind a
// circuit breaker so an unreachable service costs one fast failure per
// tick instead of a timeout.
package mirror

import (
	"errors"
	"time"

	"github.com/sony/gobreaker"
	"go.uber.org/zap"

	"github.com/luki/sensorlink/internal/telemetry"
)

const (
	breakerFailures = 3
	breakerOpen     = 30 * time.Second
	breakerInterval = time.Minute
)

func newBreaker(name string, log *zap.Logger) *gobreaker.CircuitBreaker {
	return gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:     name,
		Interval: breakerInterval,
		Timeout:  breakerOpen,
		ReadyToTrip: func(c gobreaker.Counts) bool {
			return c.ConsecutiveFailures >= breakerFailures
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			log.Info("mirror breaker state changed",
				zap.String("mirror", name), zap.Stringer("from", from), zap.Stringer("to", to))
		},
	})
}

// run executes fn through cb and logs the outcome.
func run(cb *gobreaker.CircuitBreaker, log *zap.Logger, fn func() error) error {
	_, err := cb.Execute(func() (interface{}, error) {
		return nil, fn()
	})
	switch {
	case err == nil:
	case errors.Is(err, gobreaker.ErrOpenState), errors.Is(err, gobreaker.ErrTooManyRequests):
		log.Debug("mirror skipped, breaker open", zap.String("mirror", cb.Name()))
	default:
		log.Warn("mirror write failed", zap.String("mirror", cb.Name()), zap.Error(err))
	}
	return err
}

// Record is the document mirrored for one sample.
type Record struct {
	Time      time.Time `json:"time"`
	CPU       *int      `json:"cpu"`
	GPU       *int      `json:"gpu"`
	Channel   string    `json:"channel,omitempty"`
	Delivered bool      `json:"delivered"`
}

// NewRecord converts s. Unresolved sensors are null.
func NewRecord(s telemetry.Sample) Record {
	r := Record{Time: s.Time, Channel: s.Channel, Delivered: s.Delivered()}
	if s.Reading.CPUValid {
		v := s.Reading.CPU
		r.CPU = &v
	}
	if s.Reading.GPUValid {
		v := s.Reading.GPU
		r.GPU = &v
	}
	return r
}
