package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/spf13/pflag"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "sensorlink.yaml")
	if err := os.WriteFile(path, []byte(body), 0o644); err != nil {
		t.Fatal(err)
	}
	return path
}

func parse(t *testing.T, args ...string) *pflag.FlagSet {
	t.Helper()
	fs := pflag.NewFlagSet("test", pflag.ContinueOnError)
	Default().AddFlags(fs)
	if err := fs.Parse(args); err != nil {
		t.Fatalf("Parse: %v", err)
	}
	return fs
}

func TestDefaultIsValid(t *testing.T) {
	cfg := Default()
	if err := cfg.Validate(); err != nil {
		t.Fatalf("Validate: %v", err)
	}
	if cfg.Interval != time.Second || cfg.Serial.BaudRate != 115200 || cfg.Reprobe.Enabled {
		t.Errorf("unexpected defaults: %+v", cfg)
	}
}

func TestLoadOverridesDefaults(t *testing.T) {
	path := writeConfig(t, `
interval: 500ms
log:
  level: debug
serial:
  port: /dev/ttyACM0
network:
  instance: desk-display
  discovery_timeout: 3s
reprobe:
  enabled: true
`)
	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Interval != 500*time.Millisecond {
		t.Errorf("interval: got %v", cfg.Interval)
	}
	if cfg.Serial.Port != "/dev/ttyACM0" || !cfg.Serial.Enabled || cfg.Serial.BaudRate != 115200 {
		t.Errorf("serial: got %+v", cfg.Serial)
	}
	if cfg.Network.Instance != "desk-display" || cfg.Network.Service != "_esp32udp._udp.local." {
		t.Errorf("network: got %+v", cfg.Network)
	}
	if cfg.Log.Level != "debug" || cfg.Log.Format != "console" {
		t.Errorf("log: got %+v", cfg.Log)
	}
	if !cfg.Reprobe.Enabled || cfg.Reprobe.InitialInterval != 5*time.Second {
		t.Errorf("reprobe: got %+v", cfg.Reprobe)
	}
}

func TestLoadErrors(t *testing.T) {
	if _, err := Load(filepath.Join(t.TempDir(), "missing.yaml")); err == nil {
		t.Error("expected error for missing file")
	}
	if _, err := Load(writeConfig(t, "interval: [")); err == nil {
		t.Error("expected error for invalid YAML")
	}
}

func TestResolveFlagsWinOverFile(t *testing.T) {
	path := writeConfig(t, "interval: 3s\nnetwork:\n  instance: from-file\n")
	fs := parse(t, "--interval=250ms", "--no-serial", "--reprobe")

	cfg, err := Resolve(fs, path)
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	if cfg.Interval != 250*time.Millisecond {
		t.Errorf("interval: got %v, want 250ms", cfg.Interval)
	}
	if cfg.Serial.Enabled {
		t.Error("--no-serial ignored")
	}
	if !cfg.Reprobe.Enabled {
		t.Error("--reprobe ignored")
	}
	if cfg.Network.Instance != "from-file" {
		t.Errorf("unset flag replaced file value: got %q", cfg.Network.Instance)
	}
}

func TestResolveWithoutFile(t *testing.T) {
	cfg, err := Resolve(parse(t, "--instance", "bench"), "")
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	if cfg.Network.Instance != "bench" || cfg.Interval != time.Second {
		t.Errorf("got %+v", cfg)
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
		want   string
	}{
		{"interval", func(c *Config) { c.Interval = 0 }, "interval"},
		{"no channels", func(c *Config) { c.Serial.Enabled, c.Network.Enabled = false, false }, "both disabled"},
		{"instance", func(c *Config) { c.Network.Instance = "" }, "network.instance"},
		{"reprobe", func(c *Config) {
			c.Reprobe = Reprobe{Enabled: true, InitialInterval: time.Minute, MaxInterval: time.Second}
		}, "reprobe.max_interval"},
		{"mqtt", func(c *Config) { c.MQTT.Broker, c.MQTT.Topic = "tcp://localhost:1883", "" }, "mqtt.topic"},
		{"influx", func(c *Config) { c.Influx.URL = "http://localhost:8086" }, "influx.org"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			tt.mutate(cfg)
			err := cfg.Validate()
			if err == nil || !strings.Contains(err.Error(), tt.want) {
				t.Errorf("got %v, want error mentioning %q", err, tt.want)
			}
		})
	}
}

func TestNetworkOnlyIsValid(t *testing.T) {
	cfg := Default()
	cfg.Serial.Enabled = false
	cfg.Serial.BaudRate = 0
	if err := cfg.Validate(); err != nil {
		t.Errorf("Validate: %v", err)
	}
}
