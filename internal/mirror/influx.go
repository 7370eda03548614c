package mirror

import (
	"context"
	"fmt"

	influxdb2 "github.com/influxdata/influxdb-client-go/v2"
	"github.com/influxdata/influxdb-client-go/v2/api/write"
	"github.com/sony/gobreaker"
	"go.uber.org/zap"

	"github.com/luki/sensorlink/internal/telemetry"
)

type InfluxConfig struct {
	URL         string
	Token       string
	Org         string
	Bucket      string
	Measurement string
	// Host tags every point.
	Host string
}

// pointWriter is satisfied by api.WriteAPIBlocking.
type pointWriter interface {
	WritePoint(ctx context.Context, point ...*write.Point) error
}

// Influx writes one point per sample.
type Influx struct {
	client      influxdb2.Client
	writer      pointWriter
	measurement string
	host        string
	cb          *gobreaker.CircuitBreaker
	log         *zap.Logger
}

// NewInflux creates the client. No connection is made until the first
// write.
func NewInflux(cfg InfluxConfig, logger *zap.Logger) *Influx {
	if logger == nil {
		logger = zap.NewNop()
	}
	client := influxdb2.NewClient(cfg.URL, cfg.Token)
	in := newInflux(client.WriteAPIBlocking(cfg.Org, cfg.Bucket), cfg.Measurement, cfg.Host, logger.Named("influx"))
	in.client = client
	return in
}

func newInflux(w pointWriter, measurement, host string, log *zap.Logger) *Influx {
	if measurement == "" {
		measurement = "temperature"
	}
	return &Influx{writer: w, measurement: measurement, host: host, cb: newBreaker("influx", log), log: log}
}

// Point converts s. It returns nil when neither sensor has a value.
func (in *Influx) Point(s telemetry.Sample) *write.Point {
	fields := make(map[string]interface{}, 3)
	if s.Reading.CPUValid {
		fields["cpu"] = s.Reading.CPU
	}
	if s.Reading.GPUValid {
		fields["gpu"] = s.Reading.GPU
	}
	if len(fields) == 0 {
		return nil
	}
	fields["delivered"] = s.Delivered()

	tags := map[string]string{}
	if in.host != "" {
		tags["host"] = in.host
	}
	if s.Channel != "" {
		tags["channel"] = s.Channel
	}
	return influxdb2.NewPoint(in.measurement, tags, fields, s.Time)
}

// Observe writes s.
func (in *Influx) Observe(ctx context.Context, s telemetry.Sample) {
	p := in.Point(s)
	if p == nil {
		return
	}
	_ = run(in.cb, in.log, func() error {
		if err := in.writer.WritePoint(ctx, p); err != nil {
			return fmt.Errorf("write point: %w", err)
		}
		return nil
	})
}

// Close releases the client.
func (in *Influx) Close() error {
	if in.client != nil {
		in.client.Close()
	}
	return nil
}
