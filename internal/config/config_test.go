package config

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

const sampleTOML = `
mainloopinterval = 10

[logger]
log-level = "debug"

[mqtt]
broker = "10.0.0.5"
retain_default = true
noreadonexit = true

[interface]
device = "/dev/ttyUSB0"
baudrate = 2400

[[updatecycles]]
id = 1
interval = 10

[[updatecycles]]
id = 2
interval = 60

[[tags]]
channel = 3
topic = "t/3"
update_cycle = 1
multiplier = 0.1
noreadaction = "publish-substitute"
noreadvalue = -99.0
expiry = 5
retain = false

[[tags]]
channel = 7
topic = "t/7"
update_cycle = 2
`

const sampleYAML = `
mqtt:
  broker: broker.local
interface:
  device: /dev/ttyS1
updatecycles:
  - id: 1
    interval: 5
tags:
  - channel: 1
    topic: yaml/1
    update_cycle: 1
    format: "%.2f"
`

func writeFile(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatalf("write %s: %v", path, err)
	}
	return path
}

func TestNewConfigTOML(t *testing.T) {
	cfg, err := NewConfig(writeFile(t, "bridge.toml", sampleTOML))
	if err != nil {
		t.Fatalf("NewConfig() error = %v", err)
	}

	if cfg.MainLoopInterval != MainLoopIntervalMin {
		t.Errorf("MainLoopInterval = %d, want clamp to %d", cfg.MainLoopInterval, MainLoopIntervalMin)
	}
	if cfg.MQTT.Host != "10.0.0.5" || cfg.MQTT.Port != defaultPort {
		t.Errorf("broker = %s:%s, want 10.0.0.5:%s", cfg.MQTT.Host, cfg.MQTT.Port, defaultPort)
	}
	if cfg.MQTT.ReconnectInterval != defaultReconnectInterval {
		t.Errorf("ReconnectInterval = %d, want %d", cfg.MQTT.ReconnectInterval, defaultReconnectInterval)
	}
	if cfg.Interface.Baudrate != 2400 || cfg.Interface.Timeout != defaultReadTimeout {
		t.Errorf("interface = %+v", cfg.Interface)
	}
	if len(cfg.UpdateCycles) != 2 || len(cfg.Tags) != 2 {
		t.Fatalf("got %d cycles, %d tags", len(cfg.UpdateCycles), len(cfg.Tags))
	}

	t3 := cfg.Tags[0]
	if *t3.Multiplier != 0.1 || t3.NoreadAction != NoreadPublishSubstitute || t3.NoreadValue != -99 {
		t.Errorf("tag 3 = %+v", t3)
	}
	if *t3.Retain {
		t.Error("tag 3 retain = true, explicit false must win over retain_default")
	}
	if t3.Format != defaultFormat || t3.Mode != ModePublish {
		t.Errorf("tag 3 format/mode = %q/%q", t3.Format, t3.Mode)
	}

	t7 := cfg.Tags[1]
	if *t7.Multiplier != 1 || t7.NoreadAction != NoreadIgnore || !*t7.Retain {
		t.Errorf("tag 7 defaults = multiplier %v action %q retain %v", *t7.Multiplier, t7.NoreadAction, *t7.Retain)
	}
}

func TestNewConfigYAML(t *testing.T) {
	cfg, err := NewConfig(writeFile(t, "bridge.yaml", sampleYAML))
	if err != nil {
		t.Fatalf("NewConfig() error = %v", err)
	}
	if cfg.MQTT.Host != "broker.local" {
		t.Errorf("Host = %q", cfg.MQTT.Host)
	}
	if cfg.MainLoopInterval != MainLoopIntervalDefault {
		t.Errorf("MainLoopInterval = %d, want %d", cfg.MainLoopInterval, MainLoopIntervalDefault)
	}
	if got := cfg.Tags[0].Format; got != "%.2f" {
		t.Errorf("Format = %q, want %%.2f", got)
	}
}

func TestNewConfigMissingFile(t *testing.T) {
	if _, err := NewConfig(filepath.Join(t.TempDir(), "absent.toml")); err == nil {
		t.Fatal("NewConfig() expected error for missing file")
	}
}

func intPtr(v int) *int { return &v }

func validConfig() *Config {
	cfg := &Config{
		Interface:    InterfaceConf{Device: "/dev/ttyUSB0"},
		UpdateCycles: []UpdateCycle{{ID: intPtr(1), Interval: intPtr(10)}},
		Tags:         []TagConf{{Channel: intPtr(1), Topic: "t/1", UpdateCycle: intPtr(1)}},
	}
	cfg.applyDefaults()
	return cfg
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name   string
		modify func(*Config)
		want   error
	}{
		{name: "valid", modify: func(*Config) {}},
		{name: "no device", modify: func(c *Config) { c.Interface.Device = "" }, want: ErrMissingField},
		{name: "no cycles", modify: func(c *Config) { c.UpdateCycles = nil }, want: ErrNoCycles},
		{name: "no tags", modify: func(c *Config) { c.Tags = nil }, want: ErrNoTags},
		{name: "cycle without id", modify: func(c *Config) { c.UpdateCycles[0].ID = nil }, want: ErrMissingField},
		{name: "cycle without interval", modify: func(c *Config) { c.UpdateCycles[0].Interval = nil }, want: ErrMissingField},
		{name: "zero interval", modify: func(c *Config) { c.UpdateCycles[0].Interval = intPtr(0) }, want: ErrInvalidValue},
		{name: "duplicate cycle", modify: func(c *Config) {
			c.UpdateCycles = append(c.UpdateCycles, UpdateCycle{ID: intPtr(1), Interval: intPtr(5)})
		}, want: ErrDuplicateCycle},
		{name: "tag without channel", modify: func(c *Config) { c.Tags[0].Channel = nil }, want: ErrMissingField},
		{name: "negative channel", modify: func(c *Config) { c.Tags[0].Channel = intPtr(-1) }, want: ErrInvalidValue},
		{name: "duplicate channel", modify: func(c *Config) { c.Tags = append(c.Tags, c.Tags[0]) }, want: ErrDuplicateChannel},
		{name: "bad noread action", modify: func(c *Config) { c.Tags[0].NoreadAction = "explode" }, want: ErrInvalidValue},
		{name: "bad mode", modify: func(c *Config) { c.Tags[0].Mode = "both" }, want: ErrInvalidValue},
		{name: "subscribe without topic", modify: func(c *Config) {
			c.Tags[0].Mode = ModeSubscribe
			c.Tags[0].Topic = ""
		}, want: ErrMissingField},
		{name: "bad format", modify: func(c *Config) { c.Tags[0].Format = "celsius" }, want: ErrInvalidValue},
		{name: "integer verb", modify: func(c *Config) { c.Tags[0].Format = "%d" }, want: ErrInvalidValue},
		{name: "extra verb", modify: func(c *Config) { c.Tags[0].Format = "%.1f %s" }, want: ErrInvalidValue},
		{name: "format with unit", modify: func(c *Config) { c.Tags[0].Format = "%.2f C" }},
		{name: "bad qos", modify: func(c *Config) { c.MQTT.Qos = 3 }, want: ErrInvalidValue},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := validConfig()
			tt.modify(cfg)
			err := cfg.Validate()
			if tt.want == nil {
				if err != nil {
					t.Fatalf("Validate() error = %v, want nil", err)
				}
				return
			}
			if !errors.Is(err, tt.want) {
				t.Errorf("Validate() error = %v, want %v", err, tt.want)
			}
		})
	}
}

func TestClampMainLoopInterval(t *testing.T) {
	tests := []struct{ in, want int }{
		{in: 1, want: MainLoopIntervalMin},
		{in: 500, want: 500},
		{in: 9000, want: MainLoopIntervalMax},
	}
	for _, tt := range tests {
		if got := ClampMainLoopInterval(tt.in); got != tt.want {
			t.Errorf("ClampMainLoopInterval(%d) = %d, want %d", tt.in, got, tt.want)
		}
	}
}

func TestShippedConfig(t *testing.T) {
	cfg, err := NewConfig(filepath.Join("..", "..", "configs", "1820bridge.toml"))
	if err != nil {
		t.Fatalf("NewConfig() error = %v", err)
	}
	if len(cfg.Tags) != 3 || len(cfg.UpdateCycles) != 2 {
		t.Errorf("loaded %d tags, %d cycles", len(cfg.Tags), len(cfg.UpdateCycles))
	}
	if cfg.Tags[1].NoreadValue != -99 || cfg.Tags[1].Offset != -0.5 {
		t.Errorf("boiler tag noread %v offset %v", cfg.Tags[1].NoreadValue, cfg.Tags[1].Offset)
	}
	if cfg.Tags[2].Mode != ModeSubscribe || *cfg.Tags[2].Multiplier != 1 {
		t.Errorf("subscribe tag = %+v", cfg.Tags[2])
	}
	if !*cfg.Tags[1].Retain || *cfg.Tags[0].Retain {
		t.Error("retain defaults not applied per tag")
	}
}

const integerFloatsTOML = `
[interface]
device = "/dev/ttyUSB0"

[[updatecycles]]
id = 1
interval = 10

[[tags]]
channel = 1
topic = "t/1"
update_cycle = 1
multiplier = 2
offset = 0
noreadvalue = -99

[[tags]]
channel = 2
topic = "t/2"
update_cycle = 1
multiplier = 0.5
offset = -1.5
noreadvalue = 85.0
`

const integerFloatsYAML = `
interface:
  device: /dev/ttyUSB0
updatecycles:
  - id: 1
    interval: 10
tags:
  - channel: 1
    topic: t/1
    update_cycle: 1
    multiplier: 2
    offset: 0
    noreadvalue: -99
  - channel: 2
    topic: t/2
    update_cycle: 1
    multiplier: 0.5
    offset: -1.5
    noreadvalue: 85.0
`

func TestFloatFieldsAcceptIntegers(t *testing.T) {
	tests := []struct {
		name, file, body string
	}{
		{name: "toml", file: "ints.toml", body: integerFloatsTOML},
		{name: "yaml", file: "ints.yaml", body: integerFloatsYAML},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg, err := NewConfig(writeFile(t, tt.file, tt.body))
			if err != nil {
				t.Fatalf("NewConfig() error = %v", err)
			}
			t1, t2 := cfg.Tags[0], cfg.Tags[1]
			if *t1.Multiplier != 2 || t1.Offset != 0 || t1.NoreadValue != -99 {
				t.Errorf("tag 1 = multiplier %v offset %v noread %v", *t1.Multiplier, t1.Offset, t1.NoreadValue)
			}
			if *t2.Multiplier != 0.5 || t2.Offset != -1.5 || t2.NoreadValue != 85 {
				t.Errorf("tag 2 = multiplier %v offset %v noread %v", *t2.Multiplier, t2.Offset, t2.NoreadValue)
			}
		})
	}
}

func TestFloatFieldRejectsText(t *testing.T) {
	body := strings.Replace(integerFloatsTOML, "multiplier = 2", `multiplier = "two"`, 1)
	if _, err := NewConfig(writeFile(t, "text.toml", body)); err == nil {
		t.Error("NewConfig() accepted a text multiplier")
	}
	body = strings.Replace(integerFloatsYAML, "multiplier: 2", "multiplier: two", 1)
	if _, err := NewConfig(writeFile(t, "text.yaml", body)); err == nil {
		t.Error("NewConfig() accepted a text multiplier")
	}
}

func TestValidFormat(t *testing.T) {
	tests := []struct {
		format string
		want   bool
	}{
		{"%.1f", true},
		{"%g", true},
		{"%6.2f", true},
		{"%.1f degC", true},
		{"", false},
		{"25", false},
		{"%d", false},
		{"%s", false},
		{"%.1f/%.1f", false},
		{"%%", false},
	}
	for _, tt := range tests {
		if got := ValidFormat(tt.format); got != tt.want {
			t.Errorf("ValidFormat(%q) = %v, want %v", tt.format, got, tt.want)
		}
	}
}
