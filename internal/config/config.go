package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/BurntSushi/toml"
	"gopkg.in/yaml.v3"
)

// Main loop interval limits in milliseconds.
const (
	MainLoopIntervalMin     = 50
	MainLoopIntervalMax     = 2000
	MainLoopIntervalDefault = 250
)

const (
	defaultBroker            = "127.0.0.1"
	defaultPort              = "1883"
	defaultReconnectInterval = 10 // seconds
	defaultBaudrate          = 9600
	defaultReadTimeout       = 20 // seconds
	defaultFormat            = "%.1f"
)

// Noread actions.
const (
	NoreadPublishNull       = "publish-null"
	NoreadPublishSubstitute = "publish-substitute"
	NoreadIgnore            = "ignore"
)

// Tag modes.
const (
	ModePublish   = "publish"
	ModeSubscribe = "subscribe"
)

// Config структура конфигурации.
type Config struct {
	MainLoopInterval int           `toml:"mainloopinterval" yaml:"mainloopinterval"` // MainLoopInterval - период главного цикла, мс.
	Logger           LogConf       `toml:"logger" yaml:"logger"`                     // Logger - конфигурация регистратора.
	MQTT             MQTTConf      `toml:"mqtt" yaml:"mqtt"`                         // MQTT - конфигурация MQTT клиента.
	Interface        InterfaceConf `toml:"interface" yaml:"interface"`               // Interface - последовательный порт.
	UpdateCycles     []UpdateCycle `toml:"updatecycles" yaml:"updatecycles"`
	Tags             []TagConf     `toml:"tags" yaml:"tags"`
}

// LogConf logger settings.
type LogConf struct {
	Level  string `toml:"log-level" yaml:"log-level"` // Level - уровень логирования.
	Syslog bool   `toml:"syslog" yaml:"syslog"`       // Syslog - дублировать записи в syslog.
}

// MQTTConf broker connection and publish defaults.
type MQTTConf struct {
	ClientID          string `toml:"clientID" yaml:"clientID"`                     // ClientID - имя клиента.
	Host              string `toml:"broker" yaml:"broker"`                         // Host - адрес MQTT сервера.
	Port              string `toml:"port" yaml:"port"`                             // Port - порт MQTT сервера.
	User              string `toml:"user" yaml:"user"`                             // User - логин.
	Password          string `toml:"password" yaml:"password"`                     // Password - пароль.
	Qos               byte   `toml:"qos" yaml:"qos"`                               // Qos - качество обслуживания.
	RetainDefault     bool   `toml:"retain_default" yaml:"retain_default"`         // RetainDefault - retain для тегов без явного значения.
	ClearOnExit       bool   `toml:"clearonexit" yaml:"clearonexit"`               // ClearOnExit - снять retained сообщения при выходе.
	NoreadOnExit      bool   `toml:"noreadonexit" yaml:"noreadonexit"`             // NoreadOnExit - опубликовать noread значения при выходе.
	Debug             bool   `toml:"debug" yaml:"debug"`                           // Debug - журнал paho.
	ReconnectInterval int    `toml:"reconnect_interval" yaml:"reconnect_interval"` // ReconnectInterval - пауза между попытками, с.
}

// InterfaceConf serial device settings.
type InterfaceConf struct {
	Device   string `toml:"device" yaml:"device"`
	Baudrate int    `toml:"baudrate" yaml:"baudrate"`
	Timeout  int    `toml:"timeout" yaml:"timeout"` // seconds without a complete line before a read times out
}

// UpdateCycle publish cadence.
type UpdateCycle struct {
	ID       *int `toml:"id" yaml:"id"`
	Interval *int `toml:"interval" yaml:"interval"` // seconds
}

// TagConf is one configured channel. Pointer fields are optional.
type TagConf struct {
	Channel      *int   `toml:"channel" yaml:"channel"`
	Topic        string `toml:"topic" yaml:"topic"`
	UpdateCycle  *int   `toml:"update_cycle" yaml:"update_cycle"`
	Format       string `toml:"format" yaml:"format"`
	Multiplier   *Float `toml:"multiplier" yaml:"multiplier"`
	Offset       Float  `toml:"offset" yaml:"offset"`
	NoreadValue  Float  `toml:"noreadvalue" yaml:"noreadvalue"`
	NoreadAction string `toml:"noreadaction" yaml:"noreadaction"`
	Expiry       int    `toml:"expiry" yaml:"expiry"` // seconds, 0 = never
	Retain       *bool  `toml:"retain" yaml:"retain"`
	Mode         string `toml:"mode" yaml:"mode"`
}

// NewConfig конструктор. The decoder is picked by file extension: .yaml and
// .yml use YAML, everything else TOML.
func NewConfig(path string) (*Config, error) {
	cfg := Config{
		Logger: LogConf{Level: "info"},
		MQTT:   MQTTConf{},
	}

	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		data, err := os.ReadFile(path)
		if err != nil {
			return &cfg, err
		}
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return &cfg, fmt.Errorf("parse %s: %w", path, err)
		}
	default:
		if _, err := toml.DecodeFile(path, &cfg); err != nil {
			return &cfg, err
		}
	}

	cfg.applyDefaults()
	if err := cfg.Validate(); err != nil {
		return &cfg, err
	}
	return &cfg, nil
}

func (c *Config) applyDefaults() {
	if c.MainLoopInterval == 0 {
		c.MainLoopInterval = MainLoopIntervalDefault
	}
	c.MainLoopInterval = ClampMainLoopInterval(c.MainLoopInterval)

	if c.MQTT.Host == "" {
		c.MQTT.Host = defaultBroker
	}
	if c.MQTT.Port == "" {
		c.MQTT.Port = defaultPort
	}
	if c.MQTT.ReconnectInterval <= 0 {
		c.MQTT.ReconnectInterval = defaultReconnectInterval
	}
	if c.Interface.Baudrate == 0 {
		c.Interface.Baudrate = defaultBaudrate
	}
	if c.Interface.Timeout <= 0 {
		c.Interface.Timeout = defaultReadTimeout
	}

	for i := range c.Tags {
		t := &c.Tags[i]
		if t.Format == "" {
			t.Format = defaultFormat
		}
		if t.Multiplier == nil {
			one := Float(1)
			t.Multiplier = &one
		}
		if t.NoreadAction == "" {
			t.NoreadAction = NoreadIgnore
		}
		if t.Mode == "" {
			t.Mode = ModePublish
		}
		if t.Retain == nil {
			retain := c.MQTT.RetainDefault
			t.Retain = &retain
		}
	}
}

// ValidFormat reports whether format renders a single float without a
// formatting error, e.g. "%.1f" but not "%d" or "%.1f %s".
func ValidFormat(format string) bool {
	if !strings.Contains(format, "%") {
		return false
	}
	return !strings.Contains(fmt.Sprintf(format, 0.0), "%!")
}

// ClampMainLoopInterval limits ms to the permitted main loop range.
func ClampMainLoopInterval(ms int) int {
	if ms < MainLoopIntervalMin {
		return MainLoopIntervalMin
	}
	if ms > MainLoopIntervalMax {
		return MainLoopIntervalMax
	}
	return ms
}

// Validate reports the first configuration error found.
func (c *Config) Validate() error {
	if c.Interface.Device == "" {
		return fmt.Errorf("%w: interface.device", ErrMissingField)
	}
	if c.MQTT.Qos > 2 {
		return fmt.Errorf("%w: mqtt.qos %d", ErrInvalidValue, c.MQTT.Qos)
	}

	if len(c.UpdateCycles) == 0 {
		return ErrNoCycles
	}
	cycleIDs := make(map[int]struct{}, len(c.UpdateCycles))
	for i, uc := range c.UpdateCycles {
		if uc.ID == nil {
			return fmt.Errorf("%w: updatecycles entry %d id", ErrMissingField, i+1)
		}
		if uc.Interval == nil {
			return fmt.Errorf("%w: updatecycles entry %d interval", ErrMissingField, i+1)
		}
		if *uc.Interval <= 0 {
			return fmt.Errorf("%w: updatecycles entry %d interval %d", ErrInvalidValue, i+1, *uc.Interval)
		}
		if _, ok := cycleIDs[*uc.ID]; ok {
			return fmt.Errorf("%w: updatecycles id %d", ErrDuplicateCycle, *uc.ID)
		}
		cycleIDs[*uc.ID] = struct{}{}
	}

	if len(c.Tags) == 0 {
		return ErrNoTags
	}
	channels := make(map[int]struct{}, len(c.Tags))
	for i, t := range c.Tags {
		if t.Channel == nil {
			return fmt.Errorf("%w: tags entry %d channel", ErrMissingField, i+1)
		}
		ch := *t.Channel
		if ch < 0 || ch > MaxChannel {
			return fmt.Errorf("%w: tags entry %d channel %d", ErrInvalidValue, i+1, ch)
		}
		if _, ok := channels[ch]; ok {
			return fmt.Errorf("%w: %d", ErrDuplicateChannel, ch)
		}
		channels[ch] = struct{}{}

		switch t.NoreadAction {
		case NoreadPublishNull, NoreadPublishSubstitute, NoreadIgnore:
		default:
			return fmt.Errorf("%w: channel %d noreadaction %q", ErrInvalidValue, ch, t.NoreadAction)
		}
		switch t.Mode {
		case ModePublish, ModeSubscribe:
		default:
			return fmt.Errorf("%w: channel %d mode %q", ErrInvalidValue, ch, t.Mode)
		}
		if t.Mode == ModeSubscribe && t.Topic == "" {
			return fmt.Errorf("%w: channel %d subscribe tag without topic", ErrMissingField, ch)
		}
		if t.Expiry < 0 {
			return fmt.Errorf("%w: channel %d expiry %d", ErrInvalidValue, ch, t.Expiry)
		}
		if !ValidFormat(t.Format) {
			return fmt.Errorf("%w: channel %d format %q", ErrInvalidValue, ch, t.Format)
		}
	}
	return nil
}
