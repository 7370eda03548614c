// Package config loads the sensorlink configuration: built-in defaults,
// then an optional YAML file, then flags given on the command line.
package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/spf13/pflag"
	"gopkg.in/yaml.v3"

	"github.com/luki/sensorlink/internal/logging"
)

// EnvPath names the environment variable holding the config file path
// when --config is not given.
const EnvPath = "SENSORLINK_CONFIG"

// Config is the top-level configuration.
type Config struct {
	// Interval is the telemetry tick period.
	Interval time.Duration `yaml:"interval"`
	// SendTimeout bounds one delivery and each observer.
	SendTimeout time.Duration `yaml:"send_timeout"`

	Log     logging.Config `yaml:"log"`
	Sensors Sensors        `yaml:"sensors"`
	Serial  Serial         `yaml:"serial"`
	Network Network        `yaml:"network"`
	Reprobe Reprobe        `yaml:"reprobe"`
	Record  Record         `yaml:"record"`
	Metrics Metrics        `yaml:"metrics"`
	MQTT    MQTT           `yaml:"mqtt"`
	Influx  Influx         `yaml:"influx"`

	// TUI shows the live dashboard instead of logging to the terminal.
	TUI bool `yaml:"tui"`
}

type Sensors struct {
	// SysRoot is the sysfs mount point, normally /sys.
	SysRoot string `yaml:"sys_root"`
	// NvidiaSMI enables querying NVIDIA GPUs through nvidia-smi.
	NvidiaSMI bool `yaml:"nvidia_smi"`
	// GPU preselects a GPU by identifier or 1-based index when several
	// are present.
	GPU string `yaml:"gpu"`
}

type Serial struct {
	Enabled bool `yaml:"enabled"`
	// Port skips enumeration when set.
	Port     string `yaml:"port"`
	BaudRate int    `yaml:"baud_rate"`
}

type Network struct {
	Enabled bool `yaml:"enabled"`
	// Service is the DNS-SD service type, e.g. "_esp32udp._udp.local.".
	Service string `yaml:"service"`
	// Instance is the advertised instance name of the display.
	Instance         string        `yaml:"instance"`
	DiscoveryTimeout time.Duration `yaml:"discovery_timeout"`
}

type Reprobe struct {
	Enabled         bool          `yaml:"enabled"`
	InitialInterval time.Duration `yaml:"initial_interval"`
	MaxInterval     time.Duration `yaml:"max_interval"`
}

type Record struct {
	Enabled bool `yaml:"enabled"`
	// Dir defaults to ~/.sensorlink.
	Dir string `yaml:"dir"`
}

type Metrics struct {
	// Addr is the listen address of the /metrics endpoint; empty disables it.
	Addr string `yaml:"addr"`
}

type MQTT struct {
	// Broker is a URL such as tcp://localhost:1883; empty disables the mirror.
	Broker   string `yaml:"broker"`
	Topic    string `yaml:"topic"`
	ClientID string `yaml:"client_id"`
	Username string `yaml:"username"`
	Password string `yaml:"password"`
}

type Influx struct {
	// URL of the InfluxDB server; empty disables the mirror.
	URL         string `yaml:"url"`
	Token       string `yaml:"token"`
	Org         string `yaml:"org"`
	Bucket      string `yaml:"bucket"`
	Measurement string `yaml:"measurement"`
}

// Default returns the built-in configuration.
func Default() *Config {
	return &Config{
		Interval:    time.Second,
		SendTimeout: 2 * time.Second,
		Log:         logging.Config{Level: "info", Format: "console"},
		Sensors:     Sensors{SysRoot: "/sys", NvidiaSMI: true},
		Serial:      Serial{Enabled: true, BaudRate: 115200},
		Network: Network{
			Enabled:          true,
			Service:          "_esp32udp._udp.local.",
			Instance:         "esp32",
			DiscoveryTimeout: 5 * time.Second,
		},
		Reprobe: Reprobe{InitialInterval: 5 * time.Second, MaxInterval: time.Minute},
		MQTT:    MQTT{Topic: "sensorlink/reading"},
		Influx:  Influx{Measurement: "temperature"},
	}
}

// Load reads a YAML file over the defaults.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}
	cfg := Default()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}
	return cfg, nil
}

// AddFlags registers the command-line overrides, bound to c.
func (c *Config) AddFlags(fs *pflag.FlagSet) {
	fs.DurationVar(&c.Interval, "interval", c.Interval, "telemetry tick period")
	fs.DurationVar(&c.SendTimeout, "send-timeout", c.SendTimeout, "bound on one delivery")
	fs.StringVar(&c.Log.Level, "log-level", c.Log.Level, "log level (debug, info, warn, error)")
	fs.StringVar(&c.Log.File, "log-file", c.Log.File, "write logs to this file")
	fs.StringVar(&c.Sensors.GPU, "gpu", c.Sensors.GPU, "GPU identifier or 1-based index to use when several exist")
	fs.StringVar(&c.Serial.Port, "serial-port", c.Serial.Port, "serial port of the display (skips enumeration)")
	fs.VarPF(inverted{&c.Serial.Enabled}, "no-serial", "", "disable the serial channel").NoOptDefVal = "true"
	fs.VarPF(inverted{&c.Network.Enabled}, "no-network", "", "disable the network channel").NoOptDefVal = "true"
	fs.StringVar(&c.Network.Instance, "instance", c.Network.Instance, "advertised instance name of the display")
	fs.BoolVar(&c.TUI, "tui", c.TUI, "show the live dashboard")
	fs.BoolVar(&c.Record.Enabled, "record", c.Record.Enabled, "record samples to daily CSV files")
	fs.StringVar(&c.Metrics.Addr, "metrics-addr", c.Metrics.Addr, "serve Prometheus metrics on this address")
	fs.BoolVar(&c.Reprobe.Enabled, "reprobe", c.Reprobe.Enabled, "reopen lost channels with exponential backoff")
}

// Resolve builds the effective configuration from the file at path (or
// the defaults when path is empty) and every flag the user set on fs.
// fs must have been populated by AddFlags and parsed.
func Resolve(fs *pflag.FlagSet, path string) (*Config, error) {
	cfg := Default()
	if path != "" {
		loaded, err := Load(path)
		if err != nil {
			return nil, err
		}
		cfg = loaded
	}

	overrides := pflag.NewFlagSet("overrides", pflag.ContinueOnError)
	cfg.AddFlags(overrides)
	var errs []error
	fs.Visit(func(f *pflag.Flag) {
		if overrides.Lookup(f.Name) == nil {
			return
		}
		if err := overrides.Set(f.Name, f.Value.String()); err != nil {
			errs = append(errs, fmt.Errorf("--%s: %w", f.Name, err))
		}
	})
	if err := errors.Join(errs...); err != nil {
		return nil, err
	}
	return cfg, cfg.Validate()
}

// Validate checks that the configuration is usable.
func (c *Config) Validate() error {
	var errs []error
	if c.Interval <= 0 {
		errs = append(errs, errors.New("interval must be positive"))
	}
	if c.SendTimeout <= 0 {
		errs = append(errs, errors.New("send_timeout must be positive"))
	}
	if !c.Serial.Enabled && !c.Network.Enabled {
		errs = append(errs, errors.New("serial and network are both disabled"))
	}
	if c.Serial.Enabled && c.Serial.BaudRate <= 0 {
		errs = append(errs, errors.New("serial.baud_rate must be positive"))
	}
	if c.Network.Enabled {
		if c.Network.Service == "" {
			errs = append(errs, errors.New("network.service is required"))
		}
		if c.Network.Instance == "" {
			errs = append(errs, errors.New("network.instance is required"))
		}
		if c.Network.DiscoveryTimeout <= 0 {
			errs = append(errs, errors.New("network.discovery_timeout must be positive"))
		}
	}
	if c.Reprobe.Enabled && c.Reprobe.MaxInterval < c.Reprobe.InitialInterval {
		errs = append(errs, errors.New("reprobe.max_interval is below reprobe.initial_interval"))
	}
	if c.MQTT.Broker != "" && c.MQTT.Topic == "" {
		errs = append(errs, errors.New("mqtt.topic is required with mqtt.broker"))
	}
	if c.Influx.URL != "" && (c.Influx.Org == "" || c.Influx.Bucket == "") {
		errs = append(errs, errors.New("influx.org and influx.bucket are required with influx.url"))
	}
	return errors.Join(errs...)
}

// inverted exposes a bool as its negation, for --no-* flags.
type inverted struct{ p *bool }

func (v inverted) String() string {
	if v.p == nil {
		return "false"
	}
	return strconv.FormatBool(!*v.p)
}

func (v inverted) Set(s string) error {
	b, err := strconv.ParseBool(s)
	if err != nil {
		return err
	}
	*v.p = !b
	return nil
}

func (v inverted) Type() string { return "bool" }
