// Package config loads the ingester's YAML configuration.
package config

import (
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"

	"meshmap/internal/radio"
)

const (
	DefaultBroker      = "tcp://mqtt.meshtastic.org:1883"
	DefaultTopic       = "msh/#"
	DefaultUsername    = "meshdev"
	DefaultPassword    = "large4cats"
	DefaultDBPath      = "meshmap.db"
	DefaultListen      = ":8040"
	DefaultTxPowerDBm  = -10
	DefaultWindowHours = 72
	DefaultLogLevel    = "info"
)

// Config is the full process configuration.
type Config struct {
	MQTT    MQTTConfig    `yaml:"mqtt"`
	Storage StorageConfig `yaml:"storage"`
	HTTP    HTTPConfig    `yaml:"http"`
	Mesh    MeshConfig    `yaml:"mesh"`
	Log     LogConfig     `yaml:"log"`
}

// MQTTConfig points at the broker relaying mesh traffic.
type MQTTConfig struct {
	Broker   string `yaml:"broker"`
	Topic    string `yaml:"topic"`
	Username string `yaml:"username"`
	Password string `yaml:"password"`
	ClientID string `yaml:"client_id"`
}

type StorageConfig struct {
	Path string `yaml:"path"`
}

type HTTPConfig struct {
	Listen string `yaml:"listen"`
}

// MeshConfig carries radio-side parameters: the channel key envelopes are
// encrypted with and the tuning knobs for connection inference.
type MeshConfig struct {
	ChannelKey  string `yaml:"channel_key"`
	TxPowerDBm  int    `yaml:"tx_power_dbm"`
	WindowHours int    `yaml:"window_hours"`
}

type LogConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
	File   string `yaml:"file"`
}

// Default returns a configuration pointing at the public Meshtastic broker
// with the default channel key.
func Default() Config {
	cfg := Config{}
	ApplyDefaults(&cfg)
	return cfg
}

// Load reads and parses a YAML config file, fills in defaults and
// validates the result.
func Load(path string) (Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Config{}, err
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return Config{}, fmt.Errorf("parse %s: %w", path, err)
	}

	ApplyDefaults(&cfg)
	if err := Validate(cfg); err != nil {
		return Config{}, fmt.Errorf("%s: %w", path, err)
	}
	return cfg, nil
}

// ApplyDefaults fills in default values when empty.
func ApplyDefaults(cfg *Config) {
	if cfg.MQTT.Broker == "" {
		cfg.MQTT.Broker = DefaultBroker
	}
	if cfg.MQTT.Topic == "" {
		cfg.MQTT.Topic = DefaultTopic
	}
	if cfg.MQTT.Username == "" {
		cfg.MQTT.Username = DefaultUsername
	}
	if cfg.MQTT.Password == "" {
		cfg.MQTT.Password = DefaultPassword
	}
	if cfg.Storage.Path == "" {
		cfg.Storage.Path = DefaultDBPath
	}
	if cfg.HTTP.Listen == "" {
		cfg.HTTP.Listen = DefaultListen
	}
	if cfg.Mesh.ChannelKey == "" {
		cfg.Mesh.ChannelKey = radio.DefaultChannelKeyBase64
	}
	if cfg.Mesh.TxPowerDBm == 0 {
		cfg.Mesh.TxPowerDBm = DefaultTxPowerDBm
	}
	if cfg.Mesh.WindowHours == 0 {
		cfg.Mesh.WindowHours = DefaultWindowHours
	}
	if cfg.Log.Level == "" {
		cfg.Log.Level = DefaultLogLevel
	}
}

// Validate performs minimal validation for required fields.
func Validate(cfg Config) error {
	if !strings.Contains(cfg.MQTT.Broker, "://") {
		return fmt.Errorf("mqtt.broker %q must be a scheme://host:port URL", cfg.MQTT.Broker)
	}
	if cfg.MQTT.Topic == "" {
		return fmt.Errorf("mqtt.topic is required")
	}
	if _, err := radio.ParseKey(cfg.Mesh.ChannelKey); err != nil {
		return fmt.Errorf("mesh.channel_key: %w", err)
	}
	if cfg.Mesh.WindowHours < 0 {
		return fmt.Errorf("mesh.window_hours must not be negative")
	}
	return nil
}
